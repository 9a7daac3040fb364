package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"commerce-service/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// bulk применяет fn к каждому заказу; ошибка по одному заказу не останавливает остальные.
func bulk(ctx context.Context, ids []uuid.UUID, fn func(ctx context.Context, id uuid.UUID) error) dto.BulkResult {
	res := dto.BulkResult{Done: []uuid.UUID{}}
	for _, id := range ids {
		if err := fn(ctx, id); err != nil {
			res.Fail(id, err)
			continue
		}
		res.Done = append(res.Done, id)
	}
	return res
}

func (h *Handler) AdminCreateInvoices(c *gin.Context) {
	var req dto.InvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res := bulk(c.Request.Context(), req.OrderIDs, func(ctx context.Context, id uuid.UUID) error {
		_, err := h.orders.CreateInvoice(ctx, id, req.Type)
		return err
	})
	c.JSON(http.StatusOK, res)
}

func (h *Handler) AdminSendDetails(c *gin.Context) {
	var req dto.OrderIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, bulk(c.Request.Context(), req.OrderIDs, h.orders.SendDetails))
}

// AdminSendReminders ручная отправка повторяет напоминание независимо от прошлой отметки.
func (h *Handler) AdminSendReminders(c *gin.Context) {
	var req dto.OrderIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res := bulk(c.Request.Context(), req.OrderIDs, func(ctx context.Context, id uuid.UUID) error {
		_, err := h.orders.SendReminder(ctx, id, true)
		return err
	})
	c.JSON(http.StatusOK, res)
}

func (h *Handler) AdminSetStatus(c *gin.Context) {
	var req dto.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, dto.NewValidationError("unknown order status", nil))
		return
	}
	res := bulk(c.Request.Context(), req.OrderIDs, func(ctx context.Context, id uuid.UUID) error {
		_, err := h.orders.SetStatus(ctx, id, req.Status)
		return err
	})
	c.JSON(http.StatusOK, res)
}

func (h *Handler) AdminBankSync(c *gin.Context) {
	var req dto.BankSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	to := h.now()
	if req.To != nil {
		to = *req.To
	}
	from := to.Add(-h.opts.BankSyncWindow)
	if req.From != nil {
		from = *req.From
	}
	if from.After(to) {
		c.JSON(http.StatusBadRequest, dto.NewValidationError("from must not be after to", nil))
		return
	}
	report, err := h.payments.SyncBankStatement(c.Request.Context(), req.OrderIDs, from, to)
	if err != nil {
		h.fail(c, "bank sync", err)
		return
	}
	c.JSON(http.StatusOK, report)
}
