package repository

import (
	"context"

	"gorm.io/gorm"
)

type Repository struct {
	DB              *gorm.DB
	Tx              TxManager
	Carts           CartRepo
	Orders          OrderRepo
	Discounts       DiscountRepo
	ShippingOptions ShippingOptionRepo
	PaymentMethods  PaymentMethodRepo
	Products        ProductRepo
	Invoices        InvoiceRepo
	Gateway         GatewayRepo
	BankTxs         BankTransactionRepo
}

func buildRepository(db *gorm.DB) *Repository {
	return &Repository{
		DB:              db,
		Tx:              NewTxManager(db),
		Carts:           NewCartRepo(db),
		Orders:          NewOrderRepo(db),
		Discounts:       NewDiscountRepo(db),
		ShippingOptions: NewShippingOptionRepo(db),
		PaymentMethods:  NewPaymentMethodRepo(db),
		Products:        NewProductRepo(db),
		Invoices:        NewInvoiceRepo(db),
		Gateway:         NewGatewayRepo(db),
		BankTxs:         NewBankTransactionRepo(db),
	}
}

func New(db *gorm.DB) *Repository { return buildRepository(db) }

// Глобальная транзакция на весь набор репо: все вызовы с полученным ctx идут в одну транзакцию.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.Tx == nil {
		return fn(ctx)
	}
	return r.Tx.WithTransaction(ctx, fn)
}
