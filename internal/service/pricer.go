package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-service/internal/catalog"
	"commerce-service/internal/discount"
	"commerce-service/internal/loyalty"
	"commerce-service/internal/models"
	"commerce-service/internal/pricing"
	"commerce-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// pricedLine позиция корзины вместе с разрешённым товаром. Item == nil, если товар удалён.
type pricedLine struct {
	Cart models.CartItem
	Item *catalog.Item
}

// pricedCart снимок корзины, из которого строятся и сводка, и заказ.
type pricedCart struct {
	Cart      *models.Cart
	Lines     []pricedLine
	Discount  *models.Discount
	Shipping  *models.ShippingOption
	Payment   *models.PaymentMethod
	Breakdown pricing.Breakdown
	Available int // баллов доступно к списанию
	Points    int // баллов реально применено
	Unused    int // остаток баланса за вычетом баллов этой корзины

	// корзина изменилась при пересчёте и должна быть сохранена
	dirty bool
}

type pricer struct {
	repo     *repository.Repository
	catalog  *catalog.Registry
	settings Settings
	now      func() time.Time
}

func (p *pricer) loyaltyBalance(ctx context.Context, userID uuid.UUID) (earned, spent int, err error) {
	if !p.settings.Loyalty.Enabled() {
		return 0, 0, nil
	}
	totals, err := p.repo.Orders.TotalsForUser(ctx, userID, loyalty.EarningExcluded)
	if err != nil {
		return 0, 0, fmt.Errorf("loyalty totals: %w", err)
	}
	spent, err = p.repo.Orders.LoyaltyPointsSpent(ctx, userID, loyalty.SpendingExcluded)
	if err != nil {
		return 0, 0, fmt.Errorf("loyalty spent: %w", err)
	}
	return p.settings.Loyalty.Earned(totals), spent, nil
}

func (p *pricer) tax(billing models.Billing) *pricing.Tax {
	if p.settings.PricesIncludeTax || p.settings.TaxPolicy == nil || p.settings.SupplierVAT == "" {
		return nil
	}
	return &pricing.Tax{
		Rate:       p.settings.TaxPolicy.TaxRate(p.settings.SupplierVAT, billing.VatID),
		Calculator: p.settings.TaxPolicy,
	}
}

// price пересчитывает корзину: снимает ставшую недействительной скидку и
// ограничивает баллы лояльности доступными. Изменения отмечает в dirty.
func (p *pricer) price(ctx context.Context, cart *models.Cart) (*pricedCart, error) {
	pc := &pricedCart{Cart: cart}

	for _, it := range cart.Items {
		item, err := p.catalog.Resolve(ctx, it.Ref())
		if err != nil && !errors.Is(err, catalog.ErrUnknownType) {
			return nil, fmt.Errorf("resolve %s: %w", it.Ref(), err)
		}
		pc.Lines = append(pc.Lines, pricedLine{Cart: it, Item: item})
	}

	refs := pc.refs()
	if cart.DiscountID != nil {
		d, err := p.repo.Discounts.GetByID(ctx, *cart.DiscountID)
		if err != nil {
			return nil, fmt.Errorf("get discount: %w", err)
		}
		if d == nil || !discount.CanBeUsedInCart(d, refs, len(cart.Items), p.now()) {
			cart.DiscountID = nil
			pc.dirty = true
		} else {
			pc.Discount = d
		}
	}

	if cart.ShippingOptionID != nil {
		so, err := p.repo.ShippingOptions.GetByID(ctx, *cart.ShippingOptionID)
		if err != nil {
			return nil, fmt.Errorf("get shipping option: %w", err)
		}
		ok := so != nil
		if ok {
			if ok, err = p.shippingAvailable(ctx, so, cart.Delivery.Country); err != nil {
				return nil, err
			}
		}
		if !ok {
			cart.ShippingOptionID = nil
			pc.dirty = true
		} else {
			pc.Shipping = so
		}
	}

	if cart.PaymentMethodID != nil {
		pm, err := p.repo.PaymentMethods.GetByID(ctx, *cart.PaymentMethodID)
		if err != nil {
			return nil, fmt.Errorf("get payment method: %w", err)
		}
		if pm == nil {
			cart.PaymentMethodID = nil
			pc.dirty = true
		}
		pc.Payment = pm
	}

	terms := discount.Terms(pc.Discount)
	lines := pc.pricingLines()
	itemsSubtotal := pricing.ItemsSubtotal(lines, terms)

	earned, spent, err := p.loyaltyBalance(ctx, cart.UserID)
	if err != nil {
		return nil, err
	}
	pc.Available = p.settings.Loyalty.Available(earned, spent, itemsSubtotal)
	pc.Points = loyalty.Clamp(cart.LoyaltyPoints, pc.Available)
	if pc.Points != cart.LoyaltyPoints {
		cart.LoyaltyPoints = pc.Points
		pc.dirty = true
	}
	pc.Unused = max(earned-spent-pc.Points, 0)

	in := pricing.Input{
		Lines:         lines,
		Discount:      terms,
		LoyaltyCredit: p.settings.Loyalty.ToCurrency(pc.Points),
		Tax:           p.tax(cart.Billing),
	}
	if pc.Shipping != nil {
		in.ShippingFee = pc.Shipping.Fee
	}
	if pc.Payment != nil {
		in.PaymentFee = pc.Payment.Fee
	}
	pc.Breakdown = pricing.Compute(in)
	return pc, nil
}

func (pc *pricedCart) refs() []models.ProductRef {
	out := make([]models.ProductRef, 0, len(pc.Lines))
	for _, l := range pc.Lines {
		out = append(out, l.Cart.Ref())
	}
	return out
}

// pricingLines только позиции с существующим товаром; удалённые не стоят ничего.
func (pc *pricedCart) pricingLines() []pricing.Line {
	out := make([]pricing.Line, 0, len(pc.Lines))
	for _, l := range pc.Lines {
		if l.Item == nil {
			continue
		}
		out = append(out, pricing.Line{Ref: l.Cart.Ref(), Quantity: l.Cart.Quantity, UnitPrice: l.Item.Price})
	}
	return out
}

// deliveryRequired хотя бы одна позиция требует физической доставки.
func (pc *pricedCart) deliveryRequired() bool {
	for _, l := range pc.Lines {
		if l.Item != nil && !l.Item.Digital() {
			return true
		}
	}
	return false
}

// billingRequired платёжные данные нужны, если заказ не бесплатный или платной может быть доставка.
func (pc *pricedCart) billingRequired(options []*models.ShippingOption) bool {
	if !pc.Breakdown.Total.IsZero() {
		return true
	}
	for _, o := range options {
		if o.Fee.IsPositive() {
			return true
		}
	}
	return false
}

func (pc *pricedCart) canBeFinished() bool {
	if pc.Cart.Quantity() <= 0 || pc.Shipping == nil {
		return false
	}
	for _, l := range pc.Lines {
		if l.Item == nil || !l.Item.Purchasable() {
			return false
		}
	}
	if pc.Breakdown.Total.IsNegative() {
		return false
	}
	if pc.Breakdown.Total.IsPositive() && pc.Payment == nil {
		return false
	}
	return true
}

// shippingFor опции с явно указанной страной; если таких нет, опции без списка стран.
func shippingFor(options []*models.ShippingOption, country string) []*models.ShippingOption {
	if country == "" {
		return options
	}
	var specific, general []*models.ShippingOption
	for _, o := range options {
		switch {
		case len(o.Countries) == 0:
			general = append(general, o)
		case o.ShipsTo(country):
			specific = append(specific, o)
		}
	}
	if len(specific) > 0 {
		return specific
	}
	if general == nil {
		return []*models.ShippingOption{}
	}
	return general
}

func (p *pricer) shippingAvailable(ctx context.Context, so *models.ShippingOption, country string) (bool, error) {
	if country == "" {
		return true, nil
	}
	all, err := p.repo.ShippingOptions.List(ctx)
	if err != nil {
		return false, fmt.Errorf("list shipping options: %w", err)
	}
	for _, o := range shippingFor(all, country) {
		if o.ID == so.ID {
			return true, nil
		}
	}
	return false, nil
}

// LineView позиция корзины в ответе клиенту.
type LineView struct {
	ID        uuid.UUID         `json:"id"`
	Product   models.ProductRef `json:"product"`
	Option    string            `json:"option,omitempty"`
	Title     string            `json:"title"`
	Quantity  int               `json:"quantity"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	Available bool              `json:"available"`
}

type CartSummary struct {
	CartID uuid.UUID  `json:"cart_id"`
	Lines  []LineView `json:"lines"`
	pricing.Breakdown

	Currency         string                   `json:"currency"`
	DiscountCode     string                   `json:"discount_code,omitempty"`
	LoyaltyPoints    int                      `json:"loyalty_points"`
	AvailablePoints  int                      `json:"available_points"`
	UnusedPoints     int                      `json:"unused_points"`
	ShippingOptionID *uuid.UUID               `json:"shipping_option_id,omitempty"`
	PaymentMethodID  *uuid.UUID               `json:"payment_method_id,omitempty"`
	ShippingOptions  []*models.ShippingOption `json:"shipping_options"`

	CanBeFinished           bool `json:"can_be_finished"`
	BillingDetailsRequired  bool `json:"billing_details_required"`
	DeliveryDetailsRequired bool `json:"delivery_details_required"`
}

func (p *pricer) summary(ctx context.Context, pc *pricedCart) (*CartSummary, error) {
	all, err := p.repo.ShippingOptions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shipping options: %w", err)
	}
	options := shippingFor(all, pc.Cart.Delivery.Country)

	terms := discount.Terms(pc.Discount)
	s := &CartSummary{
		CartID:                  pc.Cart.ID,
		Lines:                   make([]LineView, 0, len(pc.Lines)),
		Breakdown:               pc.Breakdown,
		Currency:                p.settings.Currency,
		LoyaltyPoints:           pc.Points,
		AvailablePoints:         pc.Available,
		UnusedPoints:            pc.Unused,
		ShippingOptionID:        pc.Cart.ShippingOptionID,
		PaymentMethodID:         pc.Cart.PaymentMethodID,
		ShippingOptions:         options,
		CanBeFinished:           pc.canBeFinished(),
		BillingDetailsRequired:  pc.billingRequired(options),
		DeliveryDetailsRequired: pc.deliveryRequired(),
	}
	if pc.Discount != nil {
		s.DiscountCode = pc.Discount.Code
	}
	for _, l := range pc.Lines {
		v := LineView{
			ID:       l.Cart.ID,
			Product:  l.Cart.Ref(),
			Option:   l.Cart.Option,
			Title:    catalog.DeletedTitle,
			Quantity: l.Cart.Quantity,
		}
		if l.Item != nil {
			pl := pricing.Line{Ref: l.Cart.Ref(), Quantity: l.Cart.Quantity, UnitPrice: l.Item.Price}
			v.Title = l.Item.Title
			v.UnitPrice = pricing.UnitPrice(pl, terms)
			v.Subtotal = pricing.ItemSubtotal(pl, terms)
			v.Available = l.Item.Purchasable()
		}
		s.Lines = append(s.Lines, v)
	}
	return s, nil
}

func emptySummary(currency string) *CartSummary {
	return &CartSummary{Lines: []LineView{}, Currency: currency, ShippingOptions: []*models.ShippingOption{}}
}
