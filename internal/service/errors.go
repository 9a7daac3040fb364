package service

import (
	"errors"

	"commerce-service/internal/discount"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrCartNotFound       = errors.New("cart not found")
	ErrCartItemNotFound   = errors.New("cart item not found")
	ErrCartNotFinishable  = errors.New("cart cannot be checked out")
	ErrInvalidQuantity    = errors.New("quantity must be > 0")
	ErrProductUnavailable = errors.New("product is not available")

	ErrShippingNotFound    = errors.New("shipping option not found")
	ErrShippingUnavailable = errors.New("shipping option is not available for delivery country")
	ErrPaymentNotFound     = errors.New("payment method not found")

	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidStatus      = errors.New("invalid order status")
	ErrStatusConflict     = errors.New("order status changed concurrently")
	ErrNotAwaitingPayment = errors.New("order is not awaiting payment")
	ErrNoPaymentGateway   = errors.New("payment method has no online gateway")
	ErrCallbackInFlight   = errors.New("identical payment callback is being processed")
	ErrBankSyncDisabled   = errors.New("bank statement sync is not configured")
)

// Ошибки ввода кода скидки пробрасываются из пакета discount без обёртки,
// чтобы транспорт различал их через errors.Is.
var (
	ErrDiscountNotFound       = discount.ErrNotFound
	ErrDiscountNotOwned       = discount.ErrNotOwned
	ErrDiscountUsed           = discount.ErrUsed
	ErrDiscountExpired        = discount.ErrExpired
	ErrDiscountMaxItems       = discount.ErrMaxItems
	ErrDiscountProductMissing = discount.ErrProductMissing
)

// IsValidation ошибка пользовательского ввода (400).
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidQuantity, ErrProductUnavailable, ErrShippingUnavailable, ErrInvalidStatus,
		ErrDiscountNotFound, ErrDiscountNotOwned, ErrDiscountUsed, ErrDiscountExpired,
		ErrDiscountMaxItems, ErrDiscountProductMissing,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
