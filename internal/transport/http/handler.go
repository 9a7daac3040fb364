package http

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"commerce-service/internal/dto"
	"commerce-service/internal/gateway"
	"commerce-service/internal/gateway/globalpayments"
	"commerce-service/internal/gateway/stripe"
	"commerce-service/internal/models"
	"commerce-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type Options struct {
	// PaymentReturnURL страница магазина, куда клиент возвращается после оплаты; пусто: JSON-ответ
	PaymentReturnURL string
	BankSyncWindow   time.Duration
}

type Handler struct {
	cart     service.CartService
	checkout service.CheckoutService
	orders   service.OrderService
	payments service.PaymentService
	opts     Options
	log      *zap.Logger
	now      func() time.Time
}

func NewHandler(cart service.CartService, checkout service.CheckoutService, orders service.OrderService,
	payments service.PaymentService, opts Options, log *zap.Logger) *Handler {
	if opts.BankSyncWindow <= 0 {
		opts.BankSyncWindow = 24 * time.Hour
	}
	return &Handler{
		cart:     cart,
		checkout: checkout,
		orders:   orders,
		payments: payments,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

func (h *Handler) respondCart(c *gin.Context, op string, sum *service.CartSummary, err error) {
	if err != nil {
		h.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewValidationError("invalid "+name, nil))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) GetCart(c *gin.Context) {
	sum, err := h.cart.Get(c.Request.Context())
	h.respondCart(c, "get cart", sum, err)
}

func (h *Handler) AddItem(c *gin.Context) {
	var req dto.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ref := models.ProductRef{Type: req.ProductType, ID: req.ProductID}
	sum, err := h.cart.AddItem(c.Request.Context(), ref, req.Option, req.Quantity)
	h.respondCart(c, "add item", sum, err)
}

func (h *Handler) RemoveItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sum, err := h.cart.RemoveItem(c.Request.Context(), id)
	h.respondCart(c, "remove item", sum, err)
}

func (h *Handler) SetDelivery(c *gin.Context) {
	var req dto.AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sum, err := h.cart.SetDelivery(c.Request.Context(), req.Model())
	h.respondCart(c, "set delivery", sum, err)
}

func (h *Handler) SetBilling(c *gin.Context) {
	var req dto.BillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sum, err := h.cart.SetBilling(c.Request.Context(), req.Model())
	h.respondCart(c, "set billing", sum, err)
}

func (h *Handler) SetContact(c *gin.Context) {
	var req dto.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sum, err := h.cart.SetContact(c.Request.Context(), req.Email, req.Phone)
	h.respondCart(c, "set contact", sum, err)
}

func (h *Handler) SetShipping(c *gin.Context) {
	var req dto.SelectOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sum, err := h.cart.SetShipping(c.Request.Context(), req.ID)
	h.respondCart(c, "set shipping", sum, err)
}

func (h *Handler) SetPayment(c *gin.Context) {
	var req dto.SelectOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sum, err := h.cart.SetPayment(c.Request.Context(), req.ID)
	h.respondCart(c, "set payment", sum, err)
}

func (h *Handler) ApplyDiscount(c *gin.Context) {
	var req dto.DiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sum, err := h.cart.ApplyDiscount(c.Request.Context(), req.Code)
	h.respondCart(c, "apply discount", sum, err)
}

func (h *Handler) UnapplyDiscount(c *gin.Context) {
	sum, err := h.cart.UnapplyDiscount(c.Request.Context())
	h.respondCart(c, "unapply discount", sum, err)
}

func (h *Handler) SetLoyalty(c *gin.Context) {
	var req dto.LoyaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sum, err := h.cart.SetLoyaltyPoints(c.Request.Context(), req.Points)
	h.respondCart(c, "set loyalty", sum, err)
}

func (h *Handler) Checkout(c *gin.Context) {
	res, err := h.checkout.Checkout(c.Request.Context())
	if err != nil {
		h.fail(c, "checkout", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get order", err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) PaymentInfo(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	info, err := h.payments.Info(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "payment info", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) LoyaltyBalance(c *gin.Context) {
	uid, ok := service.UserIDFromContext(c.Request.Context())
	if !ok {
		h.fail(c, "loyalty balance", service.ErrUnauthorized)
		return
	}
	points, err := h.orders.LoyaltyBalance(c.Request.Context(), uid)
	if err != nil {
		h.fail(c, "loyalty balance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points})
}

// GPResult возврат клиента со шлюза GP; параметры приходят в query (GET) или форме (POST).
func (h *Handler) GPResult(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		badRequest(c, err)
		return
	}
	cb := gateway.Callback{Params: c.Request.Form, Header: c.Request.Header}
	if raw := c.Param("orderID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.NewValidationError("invalid orderID", nil))
			return
		}
		cb.OrderID = id
	}
	res, err := h.payments.HandleCallback(c.Request.Context(), globalpayments.Key, cb)
	if err != nil {
		h.fail(c, "gp result", err)
		return
	}
	if h.opts.PaymentReturnURL != "" {
		q := url.Values{}
		q.Set("success", strconv.FormatBool(res.Success))
		q.Set("message", res.Message)
		if cb.OrderID != uuid.Nil {
			q.Set("order_id", cb.OrderID.String())
		}
		c.Redirect(http.StatusSeeOther, h.opts.PaymentReturnURL+"?"+q.Encode())
		return
	}
	c.JSON(http.StatusOK, dto.PaymentCallbackResponse{Success: res.Success, Message: res.Message})
}

// StripeWebhook отклонённая подпись отвечает 400, тогда Stripe повторит доставку.
func (h *Handler) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, err)
		return
	}
	cb := gateway.Callback{Header: c.Request.Header, Body: body}
	res, err := h.payments.HandleCallback(c.Request.Context(), stripe.Key, cb)
	if err != nil {
		h.fail(c, "stripe webhook", err)
		return
	}
	status := http.StatusOK
	if !res.Success && res.Message == stripe.MsgInvalidSignature {
		status = http.StatusBadRequest
	}
	c.JSON(status, dto.PaymentCallbackResponse{Success: res.Success, Message: res.Message})
}
