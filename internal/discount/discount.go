package discount

import (
	"errors"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/pricing"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("discount code not found")
	ErrNotOwned       = errors.New("discount code belongs to another user")
	ErrUsed           = errors.New("discount code was already used")
	ErrExpired        = errors.New("discount code is no longer valid")
	ErrMaxItems       = errors.New("too many items in cart for this discount code")
	ErrProductMissing = errors.New("cart does not contain any product this discount code applies to")

	ErrPercentageRange   = errors.New("percentage discount must be between 0 and 100")
	ErrCurrencyWithTypes = errors.New("currency discount cannot be restricted by product type")
	ErrNegativeAmount    = errors.New("discount amount must not be negative")
	ErrEmptyCode         = errors.New("discount code must not be empty")
)

// Validate проверяет инварианты скидки при создании/редактировании.
func Validate(d *models.Discount) error {
	if d.Code == "" {
		return ErrEmptyCode
	}
	if d.Amount < 0 {
		return ErrNegativeAmount
	}
	switch d.Unit {
	case models.DiscountUnitPercentage:
		if d.Amount > 100 {
			return ErrPercentageRange
		}
	case models.DiscountUnitCurrency:
		if len(d.ContentTypes) > 0 {
			return ErrCurrencyWithTypes
		}
	}
	return nil
}

func IsValid(d *models.Discount, now time.Time) bool {
	return d.ValidUntil == nil || d.ValidUntil.After(now)
}

// Terms условия скидки для движка цен.
func Terms(d *models.Discount) *pricing.Discount {
	if d == nil {
		return nil
	}
	refs := make([]models.ProductRef, 0, len(d.Products))
	for _, p := range d.Products {
		refs = append(refs, p.Ref())
	}
	return &pricing.Discount{
		Amount:       d.Amount,
		Unit:         d.Unit,
		Products:     refs,
		ContentTypes: []string(d.ContentTypes),
	}
}

// Eligible проверка применимости к содержимому корзины, без учёта владельца и использования.
func Eligible(d *models.Discount, lines []models.ProductRef, lineCount int, now time.Time) error {
	if !IsValid(d, now) {
		return ErrExpired
	}
	if d.MaxItems != nil && lineCount > *d.MaxItems {
		return ErrMaxItems
	}
	if len(d.Products) > 0 {
		terms := Terms(d)
		for _, ref := range lines {
			if terms.AppliesTo(ref) {
				return nil
			}
		}
		return ErrProductMissing
	}
	return nil
}

func CanBeUsedInCart(d *models.Discount, lines []models.ProductRef, lineCount int, now time.Time) bool {
	return Eligible(d, lines, lineCount, now) == nil
}

// ApplyRequest контекст ввода кода пользователем.
type ApplyRequest struct {
	UserID    uuid.UUID
	Lines     []models.ProductRef
	LineCount int
	Used      bool // одноразовый код уже привязан к другой корзине или заказу
	Now       time.Time
}

// CheckApply полная проверка кода, введённого пользователем; у каждой причины своя ошибка.
func CheckApply(d *models.Discount, req ApplyRequest) error {
	if d == nil {
		return ErrNotFound
	}
	if d.UserID != nil && *d.UserID != req.UserID {
		return ErrNotOwned
	}
	if d.Usage == models.DiscountUsageOneTime && req.Used {
		return ErrUsed
	}
	return Eligible(d, req.Lines, req.LineCount, req.Now)
}
