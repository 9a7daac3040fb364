package loyalty

import (
	"testing"

	"commerce-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rates = Rates{
	PointValue:    decimal.RequireFromString("0.10"),
	PointsPerUnit: decimal.RequireFromString("0.25"),
}

func TestAvailable_ClampedBySubtotal(t *testing.T) {
	for _, sub := range []string{"0", "0.05", "1.00", "4.99", "37.40", "205.00", "1000.00"} {
		items := decimal.RequireFromString(sub)
		limit := int(items.Div(rates.PointValue).Truncate(0).IntPart())
		for _, balance := range []int{0, 1, 50, 10_000, 1_000_000} {
			got := rates.Available(balance, 0, items)
			assert.LessOrEqual(t, got, limit, "subtotal %s balance %d", sub, balance)
			assert.LessOrEqual(t, got, balance, "subtotal %s balance %d", sub, balance)
		}
	}
}

func TestAvailable_ScenarioFiftyPoints(t *testing.T) {
	avail := rates.Available(80, 30, decimal.RequireFromString("200.00"))
	require.Equal(t, 50, avail)

	points := Clamp(500, avail)
	require.Equal(t, 50, points)
	assert.True(t, rates.ToCurrency(points).Equal(decimal.RequireFromString("5.00")))
}

func TestAvailable_NegativeBalance(t *testing.T) {
	assert.Equal(t, 0, rates.Available(10, 25, decimal.RequireFromString("100")))
}

func TestAvailable_Disabled(t *testing.T) {
	assert.Equal(t, 0, Rates{}.Available(100, 0, decimal.RequireFromString("100")))
}

func TestEarned_FloorsPerOrder(t *testing.T) {
	// 0.25 балла за единицу: 39.99 -> 9, 40.00 -> 10
	got := rates.Earned([]decimal.Decimal{
		decimal.RequireFromString("39.99"),
		decimal.RequireFromString("40.00"),
	})
	assert.Equal(t, 19, got)
}

func TestStatusSets_Asymmetry(t *testing.T) {
	assert.False(t, Earns(models.OrderStatusAwaitingPayment))
	assert.True(t, Spends(models.OrderStatusAwaitingPayment))

	for _, s := range []models.OrderStatus{models.OrderStatusCancelled, models.OrderStatusRefunded, models.OrderStatusPartiallyRefunded} {
		assert.False(t, Earns(s), s)
		assert.False(t, Spends(s), s)
	}
	assert.True(t, Earns(models.OrderStatusCompleted))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-5, 10))
	assert.Equal(t, 7, Clamp(7, 10))
	assert.Equal(t, 10, Clamp(70, 10))
}
