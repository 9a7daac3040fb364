package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ProductRef ссылка на товар любого типа: дискриминатор типа + стабильный идентификатор.
type ProductRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r ProductRef) String() string { return r.Type + ":" + r.ID }

type Address struct {
	Name     string `gorm:"type:text;not null;default:''" json:"name"`
	Street   string `gorm:"type:text;not null;default:''" json:"street"`
	Postcode string `gorm:"type:text;not null;default:''" json:"postcode"`
	City     string `gorm:"type:text;not null;default:''" json:"city"`
	Country  string `gorm:"type:varchar(2);not null;default:''" json:"country"`
}

type Billing struct {
	Name     string `gorm:"type:text;not null;default:''" json:"name"`
	Company  string `gorm:"type:text;not null;default:''" json:"company"`
	Street   string `gorm:"type:text;not null;default:''" json:"street"`
	Postcode string `gorm:"type:text;not null;default:''" json:"postcode"`
	City     string `gorm:"type:text;not null;default:''" json:"city"`
	Country  string `gorm:"type:varchar(2);not null;default:''" json:"country"`
	RegID    string `gorm:"type:text;not null;default:''" json:"reg_id"`
	TaxID    string `gorm:"type:text;not null;default:''" json:"tax_id"`
	VatID    string `gorm:"type:text;not null;default:''" json:"vat_id"`
}

type ShippingOption struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Title     string          `gorm:"type:text;not null"`
	Fee       decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	Countries pq.StringArray  `gorm:"type:text[];not null;default:'{}'"` // пусто: доступна везде
	CreatedAt time.Time       `gorm:"not null;default:now()"`
	UpdatedAt time.Time       `gorm:"not null;default:now()"`
}

func (ShippingOption) TableName() string { return "shipping_options" }

func (o *ShippingOption) ShipsTo(country string) bool {
	if len(o.Countries) == 0 {
		return true
	}
	for _, c := range o.Countries {
		if c == country {
			return true
		}
	}
	return false
}

type PaymentMethod struct {
	ID        uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Title     string            `gorm:"type:text;not null"`
	Method    PaymentMethodKind `gorm:"type:text;not null"`
	Gateway   string            `gorm:"type:text;not null;default:''"` // ключ в реестре платёжных шлюзов
	Fee       decimal.Decimal   `gorm:"type:numeric(10,2);not null;default:0"`
	CreatedAt time.Time         `gorm:"not null;default:now()"`
	UpdatedAt time.Time         `gorm:"not null;default:now()"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

type Product struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Type         string          `gorm:"type:text;not null;index"`
	Title        string          `gorm:"type:text;not null"`
	Price        decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Availability Availability    `gorm:"type:text;not null;default:'STOCK'"`
	CreatedAt    time.Time       `gorm:"not null;default:now()"`
	UpdatedAt    time.Time       `gorm:"not null;default:now()"`
}

func (Product) TableName() string { return "products" }

type Discount struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code         string         `gorm:"type:text;not null;uniqueIndex"`
	Description  string         `gorm:"type:text;not null;default:''"`
	Amount       int            `gorm:"type:int;not null"`
	Unit         DiscountUnit   `gorm:"type:text;not null"`
	Usage        DiscountUsage  `gorm:"type:text;not null"`
	ValidUntil   *time.Time     `gorm:"index"`
	UserID       *uuid.UUID     `gorm:"type:uuid;index"`
	MaxItems     *int           `gorm:"column:max_items_in_cart;type:int"`
	ContentTypes pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	Promoted     bool           `gorm:"not null;default:false"`
	AddToCart    bool           `gorm:"not null;default:false"`
	CreatedAt    time.Time      `gorm:"not null;default:now()"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()"`

	Products []DiscountProduct `gorm:"foreignKey:DiscountID;constraint:OnDelete:CASCADE"`
}

func (Discount) TableName() string { return "discounts" }

type DiscountProduct struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DiscountID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_discount_products_ref"`
	ProductType string    `gorm:"type:text;not null;uniqueIndex:ux_discount_products_ref"`
	ProductID   string    `gorm:"type:text;not null;uniqueIndex:ux_discount_products_ref"`
}

func (DiscountProduct) TableName() string { return "discount_products" }

func (p DiscountProduct) Ref() ProductRef { return ProductRef{Type: p.ProductType, ID: p.ProductID} }

type Cart struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex"`
	Delivery         Address    `gorm:"embedded;embeddedPrefix:delivery_"`
	Billing          Billing    `gorm:"embedded;embeddedPrefix:billing_"`
	Email            string     `gorm:"type:text;not null;default:''"`
	Phone            string     `gorm:"type:text;not null;default:''"`
	ShippingOptionID *uuid.UUID `gorm:"type:uuid"`
	PaymentMethodID  *uuid.UUID `gorm:"type:uuid"`
	DiscountID       *uuid.UUID `gorm:"type:uuid;index"`
	LoyaltyPoints    int        `gorm:"type:int;not null;default:0"`
	CreatedAt        time.Time  `gorm:"not null;default:now();index"`
	UpdatedAt        time.Time  `gorm:"not null;default:now()"`

	Items []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
}

func (Cart) TableName() string { return "carts" }

// Quantity суммарное количество по всем строкам; 0 у пустой корзины.
func (c *Cart) Quantity() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

type CartItem struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CartID      uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_cart_items_line"`
	ProductType string    `gorm:"type:text;not null;uniqueIndex:ux_cart_items_line"`
	ProductID   string    `gorm:"type:text;not null;uniqueIndex:ux_cart_items_line"`
	Option      string    `gorm:"type:text;not null;default:'';uniqueIndex:ux_cart_items_line"`
	Quantity    int       `gorm:"type:int;not null"`
	CreatedAt   time.Time `gorm:"not null;default:now()"`
	UpdatedAt   time.Time `gorm:"not null;default:now()"`
}

func (CartItem) TableName() string { return "cart_items" }

func (i CartItem) Ref() ProductRef { return ProductRef{Type: i.ProductType, ID: i.ProductID} }

type Order struct {
	ID       uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Number   int64       `gorm:"not null;uniqueIndex"`
	UserID   uuid.UUID   `gorm:"type:uuid;not null;index"`
	Status   OrderStatus `gorm:"type:text;not null;index"`
	Language string      `gorm:"type:text;not null;default:''"`

	Delivery Address `gorm:"embedded;embeddedPrefix:delivery_"`
	Billing  Billing `gorm:"embedded;embeddedPrefix:billing_"`
	Email    string  `gorm:"type:text;not null;default:''"`
	Phone    string  `gorm:"type:text;not null;default:''"`

	ShippingOptionID *uuid.UUID      `gorm:"type:uuid"`
	ShippingFee      decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	PaymentMethodID  *uuid.UUID      `gorm:"type:uuid"`
	PaymentFee       decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	DiscountID       *uuid.UUID      `gorm:"type:uuid;index"`
	LoyaltyPoints    int             `gorm:"type:int;not null;default:0"`

	// Зафиксированная на момент оформления разбивка цены
	ItemsSubtotal  decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	LoyaltyCredit  decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	Subtotal       decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	Tax            decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	Total          decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	Currency       string          `gorm:"type:char(3);not null"`

	ReminderSent *time.Time
	CreatedAt    time.Time `gorm:"not null;default:now();index"`
	UpdatedAt    time.Time `gorm:"not null;default:now()"`

	Items []PurchasedItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (Order) TableName() string { return "orders" }

type PurchasedItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductType string          `gorm:"type:text;not null"`
	ProductID   string          `gorm:"type:text;not null"`
	Option      string          `gorm:"type:text;not null;default:''"`
	Title       string          `gorm:"type:text;not null;default:''"`
	Quantity    int             `gorm:"type:int;not null"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	CreatedAt   time.Time       `gorm:"not null;default:now()"`
}

func (PurchasedItem) TableName() string { return "purchased_items" }

func (i PurchasedItem) Ref() ProductRef { return ProductRef{Type: i.ProductType, ID: i.ProductID} }

func (i PurchasedItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Invoice struct {
	ID             uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Type           InvoiceType   `gorm:"type:text;not null;index"`
	Status         InvoiceStatus `gorm:"type:text;not null;index"`
	Number         string        `gorm:"type:text;not null;uniqueIndex"`
	IssueDate      time.Time     `gorm:"type:date;not null"`
	DueDate        time.Time     `gorm:"type:date;not null"`
	DeliveryDate   time.Time     `gorm:"type:date;not null"`
	DeliveryMethod string        `gorm:"type:text;not null;default:''"`
	Language       string        `gorm:"type:text;not null;default:''"`

	SupplierName    string `gorm:"type:text;not null;default:''"`
	SupplierStreet  string `gorm:"type:text;not null;default:''"`
	SupplierCity    string `gorm:"type:text;not null;default:''"`
	SupplierCountry string `gorm:"type:text;not null;default:''"`
	SupplierRegID   string `gorm:"type:text;not null;default:''"`
	SupplierVatID   string `gorm:"type:text;not null;default:''"`

	Customer Billing `gorm:"embedded;embeddedPrefix:customer_"`
	Shipping Address `gorm:"embedded;embeddedPrefix:shipping_"`

	BankName       string `gorm:"type:text;not null;default:''"`
	BankIBAN       string `gorm:"type:text;not null;default:''"`
	BankSWIFT      string `gorm:"type:text;not null;default:''"`
	VariableSymbol string `gorm:"type:text;not null;default:''"`

	Currency string          `gorm:"type:char(3);not null"`
	TaxRate  decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
	Credit   decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	Subtotal decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`
	Total    decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

func (Invoice) TableName() string { return "invoices" }

type InvoiceItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position  int             `gorm:"type:int;not null"`
	Title     string          `gorm:"type:text;not null"`
	Quantity  int             `gorm:"type:int;not null"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	TaxRate   decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// OrderInvoice связь заказ <-> документ (один документ может покрывать несколько заказов)
type OrderInvoice struct {
	OrderID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	InvoiceID uuid.UUID `gorm:"type:uuid;primaryKey"`
}

func (OrderInvoice) TableName() string { return "order_invoices" }

type GatewayPayment struct {
	ID        int64                `gorm:"primaryKey;autoIncrement"`
	Gateway   string               `gorm:"type:text;not null;index"`
	OrderID   uuid.UUID            `gorm:"type:uuid;not null;index"`
	Amount    decimal.Decimal      `gorm:"type:numeric(10,2);not null"`
	Currency  string               `gorm:"type:char(3);not null"`
	Status    GatewayPaymentStatus `gorm:"type:text;not null;default:'PROCESSING'"`
	CreatedAt time.Time            `gorm:"not null;default:now()"`
	UpdatedAt time.Time            `gorm:"not null;default:now()"`
}

func (GatewayPayment) TableName() string { return "gateway_payments" }

// GatewayResult одна входящая нотификация от шлюза, append-only.
type GatewayResult struct {
	ID                  uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID           int64     `gorm:"not null;index;uniqueIndex:ux_gateway_results_natural"`
	Operation           string    `gorm:"type:text;not null;uniqueIndex:ux_gateway_results_natural"`
	OrderNumber         string    `gorm:"type:text;not null;uniqueIndex:ux_gateway_results_natural"`
	MerchantOrderNumber string    `gorm:"type:text;not null;default:'';uniqueIndex:ux_gateway_results_natural"`
	PRCode              int       `gorm:"column:prcode;not null;uniqueIndex:ux_gateway_results_natural"`
	SRCode              int       `gorm:"column:srcode;not null;uniqueIndex:ux_gateway_results_natural"`
	Digest              string    `gorm:"type:text;not null;uniqueIndex:ux_gateway_results_natural"`
	Digest1             string    `gorm:"type:text;not null;default:''"`
	ResultText          string    `gorm:"type:text;not null;default:''"`
	Verified            bool      `gorm:"not null;default:false"`
	CreatedAt           time.Time `gorm:"not null;default:now()"`
}

func (GatewayResult) TableName() string { return "gateway_results" }

// BankTransaction строка банковской выписки, уже просмотренная синхронизацией.
type BankTransaction struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID  string          `gorm:"type:text;not null;uniqueIndex"`
	VariableSymbol string          `gorm:"type:text;not null;default:''"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency       string          `gorm:"type:char(3);not null"`
	Sender         string          `gorm:"type:text;not null;default:''"`
	OrderID        *uuid.UUID      `gorm:"type:uuid;index"`
	Error          string          `gorm:"type:text;not null;default:''"`
	CreatedAt      time.Time       `gorm:"not null;default:now()"`
}

func (BankTransaction) TableName() string { return "bank_transactions" }
