package loyalty

import (
	"commerce-service/internal/models"

	"github.com/shopspring/decimal"
)

// Заказы в этих статусах не приносят баллов.
var EarningExcluded = []models.OrderStatus{
	models.OrderStatusAwaitingPayment,
	models.OrderStatusCancelled,
	models.OrderStatusRefunded,
	models.OrderStatusPartiallyRefunded,
}

// Баллы, потраченные в этих заказах, возвращаются клиенту. Набор уже, чем EarningExcluded:
// неоплаченный заказ всё ещё удерживает списанные баллы.
var SpendingExcluded = []models.OrderStatus{
	models.OrderStatusCancelled,
	models.OrderStatusRefunded,
	models.OrderStatusPartiallyRefunded,
}

func Earns(s models.OrderStatus) bool { return !contains(EarningExcluded, s) }

func Spends(s models.OrderStatus) bool { return !contains(SpendingExcluded, s) }

func contains(list []models.OrderStatus, s models.OrderStatus) bool {
	for _, st := range list {
		if st == s {
			return true
		}
	}
	return false
}

// Rates курсы программы лояльности. Нулевое PointValue выключает программу.
type Rates struct {
	PointValue    decimal.Decimal // валюта за 1 балл
	PointsPerUnit decimal.Decimal // баллы за 1 единицу валюты
}

func (r Rates) Enabled() bool { return r.PointValue.IsPositive() }

func (r Rates) ToCurrency(points int) decimal.Decimal {
	return decimal.NewFromInt(int64(points)).Mul(r.PointValue).Round(2)
}

func (r Rates) ToPoints(value decimal.Decimal) int {
	return int(value.Mul(r.PointsPerUnit).Truncate(0).IntPart())
}

// Earned сумма баллов по итогам заказов из earning-набора; округление вниз для каждого заказа.
func (r Rates) Earned(totals []decimal.Decimal) int {
	n := 0
	for _, t := range totals {
		n += r.ToPoints(t)
	}
	return n
}

// Available сколько баллов можно применить к корзине: не больше баланса
// и не больше, чем способна поглотить стоимость позиций.
func (r Rates) Available(earned, spent int, itemsSubtotal decimal.Decimal) int {
	if !r.Enabled() {
		return 0
	}
	balance := earned - spent
	if balance <= 0 {
		return 0
	}
	if !itemsSubtotal.IsPositive() {
		return 0
	}
	absorbable := int(itemsSubtotal.Div(r.PointValue).Truncate(0).IntPart())
	if balance > absorbable {
		return absorbable
	}
	return balance
}

// Clamp молча ограничивает запрошенные баллы доступными.
func Clamp(requested, available int) int {
	if requested < 0 {
		return 0
	}
	if requested > available {
		return available
	}
	return requested
}
