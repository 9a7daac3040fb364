package bankstatement

import (
	"context"
	"strconv"

	"commerce-service/internal/gateway"
	"commerce-service/internal/models"
)

const (
	ErrCurrencyMismatch = "Currency mismatch"
	ErrTotalMismatch    = "Total value mismatch"
)

// Entry итог сопоставления одного движения.
type Entry struct {
	Transaction  Transaction        `json:"transaction"`
	OrderNumber  int64              `json:"order_number,omitempty"`
	OrderID      string             `json:"order_id,omitempty"`
	StatusBefore models.OrderStatus `json:"status_before,omitempty"`
	StatusAfter  models.OrderStatus `json:"status_after,omitempty"`
	Errors       []string           `json:"errors"`
}

func (e Entry) Paid() bool {
	return e.StatusBefore != e.StatusAfter && e.StatusAfter == models.OrderStatusPaymentReceived
}

// Reconcile сопоставляет движения с выбранными заказами по номеру в VS.
// Движения с VS вне выборки пропускаются; оплата фиксируется условным переходом.
// Ошибка возвращается только при отмене ctx.
func Reconcile(ctx context.Context, txs []Transaction, selected []*models.Order, currency string, rec gateway.Reconciler) ([]Entry, error) {
	byNumber := make(map[string]*models.Order, len(selected))
	for _, o := range selected {
		byNumber[strconv.FormatInt(o.Number, 10)] = o
	}

	var out []Entry
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		order, ok := byNumber[tx.VariableSymbol]
		if !ok {
			continue
		}
		e := Entry{
			Transaction:  tx,
			OrderNumber:  order.Number,
			OrderID:      order.ID.String(),
			StatusBefore: order.Status,
			StatusAfter:  order.Status,
			Errors:       []string{},
		}

		if order.Status == models.OrderStatusAwaitingPayment {
			switch {
			case tx.Currency != currency:
				e.Errors = append(e.Errors, ErrCurrencyMismatch)
			case !tx.Amount.Equal(order.Total):
				e.Errors = append(e.Errors, ErrTotalMismatch)
			default:
				advanced, err := rec.MarkPaid(ctx, order.ID)
				if err != nil {
					// ошибка пишется в движение, остальные движения обрабатываются дальше
					e.Errors = append(e.Errors, err.Error())
				} else if advanced {
					e.StatusAfter = models.OrderStatusPaymentReceived
					order.Status = models.OrderStatusPaymentReceived
				}
			}
		}
		out = append(out, e)
	}
	return out, nil
}
