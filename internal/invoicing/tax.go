package invoicing

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type TaxPolicy interface {
	TaxRate(supplierVAT, customerVAT string) decimal.Decimal
	CalculateTax(amount, rate decimal.Decimal) decimal.Decimal
}

// FlatVAT одна ставка для всех, пока у поставщика есть VAT ID.
type FlatVAT struct {
	Rate decimal.Decimal
}

func (p FlatVAT) TaxRate(supplierVAT, _ string) decimal.Decimal {
	if supplierVAT == "" {
		return decimal.Zero
	}
	return p.Rate
}

func (FlatVAT) CalculateTax(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// EUVAT как FlatVAT, но плательщик НДС из другой страны ЕС получает reverse charge (ставка 0).
type EUVAT struct {
	Rate decimal.Decimal
}

func (p EUVAT) TaxRate(supplierVAT, customerVAT string) decimal.Decimal {
	if supplierVAT == "" {
		return decimal.Zero
	}
	if customerVAT != "" && vatCountry(customerVAT) != vatCountry(supplierVAT) {
		return decimal.Zero
	}
	return p.Rate
}

func (EUVAT) CalculateTax(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

func vatCountry(vat string) string {
	vat = strings.ToUpper(strings.TrimSpace(vat))
	if len(vat) < 2 {
		return vat
	}
	return vat[:2]
}

// NewTaxPolicy по имени из конфигурации; пустое имя выключает налоги.
func NewTaxPolicy(name string, rate decimal.Decimal) TaxPolicy {
	switch strings.ToLower(name) {
	case "flat":
		return FlatVAT{Rate: rate}
	case "eu":
		return EUVAT{Rate: rate}
	default:
		return nil
	}
}
