package dto

import (
	"time"

	"commerce-service/internal/models"

	"github.com/google/uuid"
)

type AddItemRequest struct {
	ProductType string `json:"product_type" binding:"required"`
	ProductID   string `json:"product_id" binding:"required"`
	Option      string `json:"option"`
	Quantity    int    `json:"quantity" binding:"required"`
}

type AddressRequest struct {
	Name     string `json:"name" binding:"required"`
	Street   string `json:"street" binding:"required"`
	Postcode string `json:"postcode" binding:"required"`
	City     string `json:"city" binding:"required"`
	Country  string `json:"country" binding:"required,len=2"`
}

func (r AddressRequest) Model() models.Address {
	return models.Address{Name: r.Name, Street: r.Street, Postcode: r.Postcode, City: r.City, Country: r.Country}
}

type BillingRequest struct {
	Name     string `json:"name" binding:"required"`
	Company  string `json:"company"`
	Street   string `json:"street" binding:"required"`
	Postcode string `json:"postcode" binding:"required"`
	City     string `json:"city" binding:"required"`
	Country  string `json:"country" binding:"required,len=2"`
	RegID    string `json:"reg_id"`
	TaxID    string `json:"tax_id"`
	VatID    string `json:"vat_id"`
}

func (r BillingRequest) Model() models.Billing {
	return models.Billing{
		Name: r.Name, Company: r.Company, Street: r.Street, Postcode: r.Postcode,
		City: r.City, Country: r.Country, RegID: r.RegID, TaxID: r.TaxID, VatID: r.VatID,
	}
}

type ContactRequest struct {
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone"`
}

type SelectOptionRequest struct {
	ID uuid.UUID `json:"id" binding:"required"`
}

type DiscountRequest struct {
	Code string `json:"code" binding:"required"`
}

type LoyaltyRequest struct {
	Points int `json:"points" binding:"min=0"`
}

type OrderIDsRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" binding:"required,min=1"`
}

type InvoiceRequest struct {
	OrderIDs []uuid.UUID        `json:"order_ids" binding:"required,min=1"`
	Type     models.InvoiceType `json:"type" binding:"required,oneof=INVOICE PROFORMA"`
}

type StatusRequest struct {
	OrderIDs []uuid.UUID        `json:"order_ids" binding:"required,min=1"`
	Status   models.OrderStatus `json:"status" binding:"required"`
}

type BankSyncRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids"`
	From     *time.Time  `json:"from"`
	To       *time.Time  `json:"to"`
}

// BulkResult итог массового действия, ошибки по отдельным заказам не прерывают остальные
type BulkResult struct {
	Done   []uuid.UUID       `json:"done"`
	Failed map[string]string `json:"failed,omitempty"`
}

func (r *BulkResult) Fail(id uuid.UUID, err error) {
	if r.Failed == nil {
		r.Failed = map[string]string{}
	}
	r.Failed[id.String()] = err.Error()
}

type PaymentCallbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
