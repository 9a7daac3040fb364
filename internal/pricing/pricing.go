// Package pricing contains the pure money arithmetic of carts and orders.
package pricing

import (
	"commerce-service/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Line одна позиция корзины или заказа с известной ценой за единицу.
type Line struct {
	Ref       models.ProductRef
	Quantity  int
	UnitPrice decimal.Decimal
}

// Discount условия скидки, достаточные для расчёта цены.
type Discount struct {
	Amount       int
	Unit         models.DiscountUnit
	Products     []models.ProductRef
	ContentTypes []string
}

func (d *Discount) IsPercentage() bool { return d != nil && d.Unit == models.DiscountUnitPercentage }
func (d *Discount) IsCurrency() bool   { return d != nil && d.Unit == models.DiscountUnitCurrency }

// AppliesTo: явный список товаров важнее типов; без списка скидка работает для
// перечисленных типов или для всех, если типы не заданы.
func (d *Discount) AppliesTo(ref models.ProductRef) bool {
	if d == nil {
		return false
	}
	if len(d.Products) > 0 {
		for _, p := range d.Products {
			if p == ref {
				return true
			}
		}
		return false
	}
	if len(d.ContentTypes) == 0 {
		return true
	}
	for _, ct := range d.ContentTypes {
		if ct == ref.Type {
			return true
		}
	}
	return false
}

// PercentageDiscountPrice цена после процентной скидки, округлённая до копеек.
func PercentageDiscountPrice(price decimal.Decimal, percent int) decimal.Decimal {
	return price.Mul(hundred.Sub(decimal.NewFromInt(int64(percent)))).Div(hundred).Round(2)
}

func UnitPrice(l Line, d *Discount) decimal.Decimal {
	if d.IsPercentage() && d.AppliesTo(l.Ref) {
		return PercentageDiscountPrice(l.UnitPrice, d.Amount)
	}
	return l.UnitPrice
}

func ItemSubtotal(l Line, d *Discount) decimal.Decimal {
	return UnitPrice(l, d).Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
}

func ItemsSubtotal(lines []Line, d *Discount) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(ItemSubtotal(l, d))
	}
	return sum
}

// FixedDiscountAmount сумма скидки в валюте; для процентной скидки 0.
func FixedDiscountAmount(d *Discount) decimal.Decimal {
	if !d.IsCurrency() {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(d.Amount))
}

// Subtotal never goes below zero.
func Subtotal(itemsSubtotal, fixedDiscount, loyaltyCredit decimal.Decimal) decimal.Decimal {
	s := itemsSubtotal.Sub(fixedDiscount).Sub(loyaltyCredit)
	if s.IsNegative() {
		return decimal.Zero
	}
	return s.Round(2)
}

// TaxCalculator считает налог с суммы по ставке (в процентах).
type TaxCalculator interface {
	CalculateTax(amount, rate decimal.Decimal) decimal.Decimal
}

// Tax применяется только если цены указаны без налога и политика активна.
type Tax struct {
	Rate       decimal.Decimal
	Calculator TaxCalculator
}

type Input struct {
	Lines         []Line
	Discount      *Discount
	LoyaltyCredit decimal.Decimal
	ShippingFee   decimal.Decimal
	PaymentFee    decimal.Decimal
	Tax           *Tax
}

type Breakdown struct {
	ItemsSubtotal  decimal.Decimal `json:"items_subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	LoyaltyCredit  decimal.Decimal `json:"loyalty_credit"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingFee    decimal.Decimal `json:"shipping_fee"`
	PaymentFee     decimal.Decimal `json:"payment_fee"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
}

func Compute(in Input) Breakdown {
	b := Breakdown{
		ItemsSubtotal:  ItemsSubtotal(in.Lines, in.Discount),
		DiscountAmount: FixedDiscountAmount(in.Discount),
		LoyaltyCredit:  in.LoyaltyCredit.Round(2),
		ShippingFee:    in.ShippingFee.Round(2),
		PaymentFee:     in.PaymentFee.Round(2),
		Tax:            decimal.Zero,
	}
	b.Subtotal = Subtotal(b.ItemsSubtotal, b.DiscountAmount, b.LoyaltyCredit)
	b.Total = b.Subtotal.Add(b.ShippingFee).Add(b.PaymentFee)

	if in.Tax != nil && in.Tax.Calculator != nil && b.Total.IsPositive() {
		b.Tax = in.Tax.Calculator.CalculateTax(b.Total, in.Tax.Rate).Round(2)
		b.Total = b.Total.Add(b.Tax)
	}
	return b
}

// ToMinorUnits сумма в центах для платёжных шлюзов, дробная часть отбрасывается.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Truncate(0).IntPart()
}

// WithoutTax переводит цену с налогом в цену без налога.
func WithoutTax(price, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return price
	}
	return price.Div(hundred.Add(rate)).Mul(hundred).Round(2)
}
