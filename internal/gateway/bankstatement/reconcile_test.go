package bankstatement

import (
	"context"
	"errors"
	"testing"

	"commerce-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReconciler struct {
	calls []uuid.UUID
	fail  map[uuid.UUID]error
}

func (m *mockReconciler) MarkPaid(_ context.Context, id uuid.UUID) (bool, error) {
	m.calls = append(m.calls, id)
	if err := m.fail[id]; err != nil {
		return false, err
	}
	return true, nil
}

func order(number int64, total string, status models.OrderStatus) *models.Order {
	return &models.Order{
		ID:       uuid.New(),
		Number:   number,
		Status:   status,
		Total:    decimal.RequireFromString(total),
		Currency: "EUR",
	}
}

func tx(vs, amount, currency string) Transaction {
	return Transaction{ID: uuid.NewString(), VariableSymbol: vs, Amount: decimal.RequireFromString(amount), Currency: currency}
}

func TestReconcile(t *testing.T) {
	paid := order(1001, "50.00", models.OrderStatusAwaitingPayment)
	wrongCurrency := order(1002, "10.00", models.OrderStatusAwaitingPayment)
	wrongTotal := order(1003, "10.00", models.OrderStatusAwaitingPayment)
	shipped := order(1004, "10.00", models.OrderStatusShipped)

	txs := []Transaction{
		tx("1001", "50", "EUR"),
		tx("1002", "10", "CZK"),
		tx("1003", "9.99", "EUR"),
		tx("1004", "10", "EUR"),
		tx("9999", "10", "EUR"), // не из выборки
		tx("", "1", "EUR"),
	}
	rec := &mockReconciler{}
	entries, err := Reconcile(context.Background(), txs, []*models.Order{paid, wrongCurrency, wrongTotal, shipped}, "EUR", rec)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.True(t, entries[0].Paid())
	assert.Empty(t, entries[0].Errors)
	assert.Equal(t, []string{ErrCurrencyMismatch}, entries[1].Errors)
	assert.Equal(t, []string{ErrTotalMismatch}, entries[2].Errors)
	assert.Empty(t, entries[3].Errors)
	assert.Equal(t, models.OrderStatusShipped, entries[3].StatusAfter)
	assert.Equal(t, []uuid.UUID{paid.ID}, rec.calls)
}

func TestReconcileSameOrderTwice(t *testing.T) {
	o := order(1001, "50.00", models.OrderStatusAwaitingPayment)
	rec := &mockReconciler{}
	entries, err := Reconcile(context.Background(), []Transaction{tx("1001", "50", "EUR"), tx("1001", "50", "EUR")}, []*models.Order{o}, "EUR", rec)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Paid())
	assert.False(t, entries[1].Paid())
	assert.Len(t, rec.calls, 1)
}

func TestReconcileContinuesAfterMarkPaidError(t *testing.T) {
	first := order(1001, "50.00", models.OrderStatusAwaitingPayment)
	second := order(1002, "20.00", models.OrderStatusAwaitingPayment)
	mismatch := order(1003, "10.00", models.OrderStatusAwaitingPayment)
	rec := &mockReconciler{fail: map[uuid.UUID]error{first.ID: errors.New("db hiccup")}}

	txs := []Transaction{tx("1001", "50", "EUR"), tx("1002", "20", "EUR"), tx("1003", "1", "EUR")}
	entries, err := Reconcile(context.Background(), txs, []*models.Order{first, second, mismatch}, "EUR", rec)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.False(t, entries[0].Paid())
	assert.Equal(t, []string{"db hiccup"}, entries[0].Errors)
	assert.Equal(t, models.OrderStatusAwaitingPayment, first.Status)
	assert.True(t, entries[1].Paid())
	assert.Equal(t, []string{ErrTotalMismatch}, entries[2].Errors)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, rec.calls)
}

func TestReconcileStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Reconcile(ctx, []Transaction{tx("1001", "50", "EUR")}, nil, "EUR", &mockReconciler{})
	assert.ErrorIs(t, err, context.Canceled)
}
