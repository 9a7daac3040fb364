// Package orderstate decides which side effects a status change of an order implies.
// The caller persists the change and dispatches the returned effects.
package orderstate

import (
	"commerce-service/internal/models"
)

type Effect interface {
	// Deferred эффекты выполняются после коммита транзакции и не могут её откатить.
	Deferred() bool
}

type CreateInvoice struct {
	Type   models.InvoiceType
	Status models.InvoiceStatus
}

type CancelPendingInvoices struct{}

type NotifyStatusChanged struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (CreateInvoice) Deferred() bool         { return false }
func (CancelPendingInvoices) Deferred() bool { return false }
func (NotifyStatusChanged) Deferred() bool   { return true }

type Policy struct {
	NotifyStatuses   map[models.OrderStatus]bool
	ProformaOnAwaits bool
}

// DefaultNotifyStatuses статусы, о смене на которые клиент получает письмо.
var DefaultNotifyStatuses = []models.OrderStatus{
	models.OrderStatusPaymentReceived,
	models.OrderStatusProcessing,
	models.OrderStatusAwaitingPickup,
	models.OrderStatusShipped,
	models.OrderStatusCompleted,
	models.OrderStatusCancelled,
	models.OrderStatusRefunded,
}

func NewPolicy(notify []models.OrderStatus, proforma bool) Policy {
	p := Policy{NotifyStatuses: make(map[models.OrderStatus]bool, len(notify)), ProformaOnAwaits: proforma}
	for _, s := range notify {
		p.NotifyStatuses[s] = true
	}
	return p
}

// Facts состояние документов заказа, известное на момент перехода.
type Facts struct {
	HasInvoice  bool // есть документ типа INVOICE
	HasProforma bool
}

func IsPaid(s models.OrderStatus) bool {
	switch s {
	case models.OrderStatusPaymentReceived, models.OrderStatusProcessing, models.OrderStatusAwaitingFulfillment,
		models.OrderStatusAwaitingShipment, models.OrderStatusAwaitingPickup, models.OrderStatusPartiallyShipped,
		models.OrderStatusShipped, models.OrderStatusCompleted:
		return true
	}
	return false
}

func IsUnpaid(s models.OrderStatus) bool {
	return s == models.OrderStatusAwaitingPayment || s == models.OrderStatusOnHold
}

// Plan эффекты перехода from -> to. Пустой from означает только что созданный заказ:
// документы создаются, уведомление о смене статуса не уходит.
func Plan(from, to models.OrderStatus, facts Facts, p Policy) []Effect {
	var effects []Effect

	switch to {
	case models.OrderStatusPaymentReceived, models.OrderStatusCompleted:
		if !facts.HasInvoice {
			effects = append(effects, CreateInvoice{Type: models.InvoiceTypeInvoice, Status: models.InvoiceStatusPaid})
		}
	case models.OrderStatusAwaitingPayment:
		if p.ProformaOnAwaits && !facts.HasProforma && from != to {
			effects = append(effects, CreateInvoice{Type: models.InvoiceTypeProforma, Status: models.InvoiceStatusNew})
		}
	case models.OrderStatusCancelled:
		if IsUnpaid(from) {
			effects = append(effects, CancelPendingInvoices{})
		}
	}

	if from != "" && from != to && p.NotifyStatuses[to] {
		effects = append(effects, NotifyStatusChanged{From: from, To: to})
	}
	return effects
}

// Split делит эффекты на транзакционные и отложенные, сохраняя порядок.
func Split(effects []Effect) (inTx, deferred []Effect) {
	for _, e := range effects {
		if e.Deferred() {
			deferred = append(deferred, e)
		} else {
			inTx = append(inTx, e)
		}
	}
	return inTx, deferred
}
