package http

import (
	"net/http"

	"commerce-service/internal/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const serviceName = "commerce-service"

func Router(h *Handler, verifier *TokenVerifier, log *zap.Logger) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept-Language"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	r.Use(metrics.PrometheusMiddleware(serviceName))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// колбэки шлюзов без авторизации: доверие через подпись
	pay := r.Group("/payments")
	{
		pay.GET("/globalpayments/result", h.GPResult)
		pay.POST("/globalpayments/result", h.GPResult)
		pay.GET("/globalpayments/result/:orderID", h.GPResult)
		pay.POST("/globalpayments/result/:orderID", h.GPResult)
		pay.POST("/stripe/webhook", h.StripeWebhook)
	}

	api := r.Group("/api/v1", AuthRequired(verifier, log))
	{
		cart := api.Group("/cart")
		cart.GET("", h.GetCart)
		cart.POST("/items", h.AddItem)
		cart.DELETE("/items/:id", h.RemoveItem)
		cart.PUT("/delivery", h.SetDelivery)
		cart.PUT("/billing", h.SetBilling)
		cart.PUT("/contact", h.SetContact)
		cart.PUT("/shipping", h.SetShipping)
		cart.PUT("/payment", h.SetPayment)
		cart.POST("/discount", h.ApplyDiscount)
		cart.DELETE("/discount", h.UnapplyDiscount)
		cart.PUT("/loyalty", h.SetLoyalty)

		api.POST("/checkout", h.Checkout)
		api.GET("/loyalty", h.LoyaltyBalance)
		api.GET("/orders/:id", h.GetOrder)
		api.GET("/orders/:id/payment", h.PaymentInfo)

		admin := api.Group("/admin/orders", AdminOnly())
		admin.POST("/invoice", h.AdminCreateInvoices)
		admin.POST("/details", h.AdminSendDetails)
		admin.POST("/reminder", h.AdminSendReminders)
		admin.POST("/status", h.AdminSetStatus)
		admin.POST("/bank-sync", h.AdminBankSync)
	}

	return r
}
