package http

import (
	"errors"
	"net/http"

	"commerce-service/internal/discount"
	"commerce-service/internal/dto"
	"commerce-service/internal/gateway"
	"commerce-service/internal/gateway/bankstatement"
	"commerce-service/internal/metrics"
	"commerce-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// discountCodes машинные коды отказа по коду скидки
var discountCodes = map[error]string{
	discount.ErrNotFound:       "discount_not_found",
	discount.ErrNotOwned:       "discount_not_owned",
	discount.ErrUsed:           "discount_used",
	discount.ErrExpired:        "discount_expired",
	discount.ErrMaxItems:       "discount_max_items",
	discount.ErrProductMissing: "discount_product_missing",
}

func toHTTPError(err error) (int, dto.BaseError) {
	for target, code := range discountCodes {
		if errors.Is(err, target) {
			e := dto.NewValidationError(err.Error(), nil)
			e.Code = code
			return http.StatusBadRequest, e
		}
	}
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, dto.NewUnauthorizedError("unauthorized")
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, dto.NewForbiddenError("forbidden")
	case errors.Is(err, service.ErrCartNotFound),
		errors.Is(err, service.ErrCartItemNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrShippingNotFound),
		errors.Is(err, service.ErrPaymentNotFound),
		errors.Is(err, gateway.ErrUnknownGateway):
		return http.StatusNotFound, dto.NewNotFoundError(err.Error())
	case service.IsValidation(err), errors.Is(err, gateway.ErrInvalidPayload):
		return http.StatusBadRequest, dto.NewValidationError(err.Error(), nil)
	case errors.Is(err, service.ErrStatusConflict):
		return http.StatusConflict, dto.NewConflictError(err.Error())
	case errors.Is(err, service.ErrCartNotFinishable),
		errors.Is(err, service.ErrNotAwaitingPayment),
		errors.Is(err, service.ErrNoPaymentGateway),
		errors.Is(err, service.ErrBankSyncDisabled),
		errors.Is(err, gateway.ErrNotSupported):
		return http.StatusConflict, dto.NewPreconditionError(err.Error())
	case errors.Is(err, bankstatement.ErrNotConfigured):
		return http.StatusConflict, dto.NewPreconditionError(err.Error())
	case errors.Is(err, service.ErrCallbackInFlight), errors.Is(err, metrics.ErrCircuitOpen):
		return http.StatusServiceUnavailable, dto.NewUpstreamError(err.Error())
	case errors.Is(err, bankstatement.ErrUpstream):
		return http.StatusBadGateway, dto.NewUpstreamError(err.Error())
	default:
		return http.StatusInternalServerError, dto.NewInternalError("")
	}
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	status, body := toHTTPError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(op+" failed", zap.Error(err))
	} else {
		h.log.Warn(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.NewValidationError("invalid request body", fieldErrors(err)))
}

func fieldErrors(err error) []dto.FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]dto.FieldError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, dto.FieldError{Field: fe.Field(), Message: fe.Error(), Tag: fe.Tag()})
	}
	return out
}
