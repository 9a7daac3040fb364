package models

// Статус заказа хранится строкой, допустимые значения закреплены CHECK-ограничением в миграции
type OrderStatus string

const (
	OrderStatusAwaitingPayment     OrderStatus = "AWAITING_PAYMENT"
	OrderStatusPaymentReceived     OrderStatus = "PAYMENT_RECEIVED"
	OrderStatusProcessing          OrderStatus = "PROCESSING"
	OrderStatusAwaitingFulfillment OrderStatus = "AWAITING_FULFILLMENT"
	OrderStatusAwaitingShipment    OrderStatus = "AWAITING_SHIPMENT"
	OrderStatusAwaitingPickup      OrderStatus = "AWAITING_PICKUP"
	OrderStatusPartiallyShipped    OrderStatus = "PARTIALLY_SHIPPED"
	OrderStatusShipped             OrderStatus = "SHIPPED"
	OrderStatusCompleted           OrderStatus = "COMPLETED"
	OrderStatusPending             OrderStatus = "PENDING"
	OrderStatusCancelled           OrderStatus = "CANCELLED"
	OrderStatusDeclined            OrderStatus = "DECLINED"
	OrderStatusRefunded            OrderStatus = "REFUNDED"
	OrderStatusPartiallyRefunded   OrderStatus = "PARTIALLY_REFUNDED"
	OrderStatusDisputed            OrderStatus = "DISPUTED"
	OrderStatusOnHold              OrderStatus = "ON_HOLD"
)

// AllOrderStatuses в порядке жизненного цикла.
var AllOrderStatuses = []OrderStatus{
	OrderStatusAwaitingPayment,
	OrderStatusPaymentReceived,
	OrderStatusProcessing,
	OrderStatusAwaitingFulfillment,
	OrderStatusAwaitingShipment,
	OrderStatusAwaitingPickup,
	OrderStatusPartiallyShipped,
	OrderStatusShipped,
	OrderStatusCompleted,
	OrderStatusPending,
	OrderStatusCancelled,
	OrderStatusDeclined,
	OrderStatusRefunded,
	OrderStatusPartiallyRefunded,
	OrderStatusDisputed,
	OrderStatusOnHold,
}

func (s OrderStatus) Valid() bool {
	for _, st := range AllOrderStatuses {
		if st == s {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusPending, OrderStatusCancelled, OrderStatusDeclined,
		OrderStatusRefunded, OrderStatusPartiallyRefunded, OrderStatusDisputed:
		return true
	}
	return false
}

type DiscountUnit string

const (
	DiscountUnitPercentage DiscountUnit = "PERCENTAGE"
	DiscountUnitCurrency   DiscountUnit = "CURRENCY"
)

type DiscountUsage string

const (
	DiscountUsageOneTime   DiscountUsage = "ONE_TIME"
	DiscountUsageUnlimited DiscountUsage = "UNLIMITED"
)

type Availability string

const (
	AvailabilityStock        Availability = "STOCK"
	AvailabilityInfinite     Availability = "INFINITE"
	AvailabilityDigitalGoods Availability = "DIGITAL_GOODS"
	AvailabilitySaleEnded    Availability = "SALE_ENDED"
)

type PaymentMethodKind string

const (
	PaymentCashOnDelivery PaymentMethodKind = "CASH_ON_DELIVERY"
	PaymentWireTransfer   PaymentMethodKind = "WIRE_TRANSFER"
	PaymentOnline         PaymentMethodKind = "ONLINE_PAYMENT"
	PaymentPayPal         PaymentMethodKind = "PAYPAL"
)

type InvoiceType string

const (
	InvoiceTypeInvoice  InvoiceType = "INVOICE"
	InvoiceTypeProforma InvoiceType = "PROFORMA"
)

type InvoiceStatus string

const (
	InvoiceStatusNew      InvoiceStatus = "NEW"
	InvoiceStatusSent     InvoiceStatus = "SENT"
	InvoiceStatusPaid     InvoiceStatus = "PAID"
	InvoiceStatusReturned InvoiceStatus = "RETURNED"
	InvoiceStatusCanceled InvoiceStatus = "CANCELED"
)

type GatewayPaymentStatus string

const (
	GatewayPaymentProcessing GatewayPaymentStatus = "PROCESSING"
	GatewayPaymentApproved   GatewayPaymentStatus = "APPROVED"
	GatewayPaymentPaid       GatewayPaymentStatus = "PAID"
	GatewayPaymentPartial    GatewayPaymentStatus = "PARTIAL"
	GatewayPaymentCanceled   GatewayPaymentStatus = "CANCELED"
	GatewayPaymentUnpaid     GatewayPaymentStatus = "UNPAID"
	GatewayPaymentReturned   GatewayPaymentStatus = "RETURNED"
)
