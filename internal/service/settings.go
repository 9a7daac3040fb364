package service

import (
	"commerce-service/internal/invoicing"
	"commerce-service/internal/loyalty"
	"commerce-service/internal/orderstate"
)

type Settings struct {
	Currency         string
	OrderNumberStart int64
	Loyalty          loyalty.Rates
	// цены в каталоге уже включают налог; сверху ничего не начисляется
	PricesIncludeTax bool
	SupplierVAT      string
	TaxPolicy        invoicing.TaxPolicy
	States           orderstate.Policy
	OrdersURL        string
}

func (s Settings) numberStart() int64 {
	if s.OrderNumberStart <= 0 {
		return 1
	}
	return s.OrderNumberStart
}
