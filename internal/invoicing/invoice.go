package invoicing

import (
	"strconv"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/pricing"

	"github.com/shopspring/decimal"
)

const (
	DeliveryMailing = "MAILING"
	DeliveryDigital = "DIGITAL"
)

type Supplier struct {
	Name    string
	Street  string
	City    string
	Country string
	RegID   string
	VatID   string
}

type Bank struct {
	Name  string
	IBAN  string
	SWIFT string
}

type Settings struct {
	Supplier         Supplier
	Bank             Bank
	Currency         string
	UnitPriceWithTax bool
	ExcludeFreeItems bool
	DueDays          int
}

// Source заказ и подписи строк доставки/оплаты, которых нет в самом заказе.
type Source struct {
	Order         *models.Order
	ShippingTitle string
	PaymentTitle  string
}

type Builder struct {
	settings Settings
	tax      TaxPolicy
	now      func() time.Time
}

func NewBuilder(settings Settings, tax TaxPolicy) *Builder {
	if settings.DueDays <= 0 {
		settings.DueDays = 7
	}
	return &Builder{settings: settings, tax: tax, now: time.Now}
}

func (b *Builder) rate(customerVAT string) decimal.Decimal {
	if b.tax == nil {
		return decimal.Zero
	}
	return b.tax.TaxRate(b.settings.Supplier.VatID, customerVAT)
}

func (b *Builder) price(p, rate decimal.Decimal) decimal.Decimal {
	if b.settings.UnitPriceWithTax {
		return pricing.WithoutTax(p, rate)
	}
	return p
}

// Build собирает документ без номера; номер присваивает хранилище.
func (b *Builder) Build(src Source, typ models.InvoiceType, status models.InvoiceStatus) *models.Invoice {
	o := src.Order
	today := b.now().UTC().Truncate(24 * time.Hour)
	rate := b.rate(o.Billing.VatID)

	dueDays := b.settings.DueDays
	if status == models.InvoiceStatusPaid {
		dueDays = 0
	}

	inv := &models.Invoice{
		Type:            typ,
		Status:          status,
		IssueDate:       today,
		DueDate:         today.AddDate(0, 0, dueDays),
		DeliveryDate:    today,
		DeliveryMethod:  DeliveryDigital,
		Language:        o.Language,
		SupplierName:    b.settings.Supplier.Name,
		SupplierStreet:  b.settings.Supplier.Street,
		SupplierCity:    b.settings.Supplier.City,
		SupplierCountry: b.settings.Supplier.Country,
		SupplierRegID:   b.settings.Supplier.RegID,
		SupplierVatID:   b.settings.Supplier.VatID,
		Customer:        o.Billing,
		Shipping:        o.Delivery,
		BankName:        b.settings.Bank.Name,
		BankIBAN:        b.settings.Bank.IBAN,
		BankSWIFT:       b.settings.Bank.SWIFT,
		VariableSymbol:  strconv.FormatInt(o.Number, 10),
		Currency:        b.settings.Currency,
		TaxRate:         rate,
	}
	if o.Delivery.Street != "" {
		inv.DeliveryMethod = DeliveryMailing
	}

	pos := 0
	add := func(title string, qty int, unit decimal.Decimal) {
		pos++
		inv.Items = append(inv.Items, models.InvoiceItem{
			Position:  pos,
			Title:     title,
			Quantity:  qty,
			UnitPrice: b.price(unit, rate),
			TaxRate:   rate,
		})
	}

	for _, it := range o.Items {
		add(it.Title, it.Quantity, it.Price)
	}
	if o.ShippingFee.IsPositive() || (!b.settings.ExcludeFreeItems && src.ShippingTitle != "") {
		add(src.ShippingTitle, 1, o.ShippingFee)
	}
	if o.PaymentFee.IsPositive() || (!b.settings.ExcludeFreeItems && src.PaymentTitle != "") {
		add(src.PaymentTitle, 1, o.PaymentFee)
	}

	subtotal := decimal.Zero
	for _, it := range inv.Items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	credit := b.price(o.LoyaltyCredit.Add(o.DiscountAmount), rate)
	if credit.GreaterThan(subtotal) {
		credit = subtotal
	}

	base := subtotal.Sub(credit)
	tax := decimal.Zero
	if b.tax != nil && base.IsPositive() {
		tax = b.tax.CalculateTax(base, rate)
	}

	inv.Subtotal = subtotal.Round(2)
	inv.Credit = credit.Round(2)
	inv.Total = base.Add(tax).Round(2)
	return inv
}
