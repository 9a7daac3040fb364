package service

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"commerce-service/internal/gateway"
	"commerce-service/internal/gateway/bankstatement"
	"commerce-service/internal/gateway/wiretransfer"
	"commerce-service/internal/invoicing"
	"commerce-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MockGateway struct {
	HandleResultFunc func(ctx context.Context, cb gateway.Callback) (gateway.Result, error)
	calls            int
}

func (m *MockGateway) Key() string { return "mock" }

func (m *MockGateway) PaymentURL(context.Context, *models.Order) (string, error) {
	return "https://mock.example.com/pay", nil
}

func (m *MockGateway) RenderButton(context.Context, *models.Order) (*gateway.Button, error) {
	return &gateway.Button{Label: "Pay", URL: "https://mock.example.com/pay", Method: "GET"}, nil
}

func (m *MockGateway) RenderInformation(*models.Order) *gateway.Information { return nil }

func (m *MockGateway) HandleResult(ctx context.Context, cb gateway.Callback) (gateway.Result, error) {
	m.calls++
	if m.HandleResultFunc != nil {
		return m.HandleResultFunc(ctx, cb)
	}
	return gateway.Result{Success: true}, nil
}

type MockLocker struct {
	AcquireFunc func(ctx context.Context, key string, ttl time.Duration) (bool, error)
	released    []string
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, key, ttl)
	}
	return true, nil
}

func (m *MockLocker) Release(_ context.Context, key string) error {
	m.released = append(m.released, key)
	return nil
}

type MockFetcher struct {
	enabled bool
	txs     []bankstatement.Transaction
}

func (m *MockFetcher) Enabled() bool { return m.enabled }

func (m *MockFetcher) Fetch(context.Context, time.Time, time.Time) ([]bankstatement.Transaction, error) {
	return m.txs, nil
}

func newPaymentFixture(t *testing.T, locker Locker, fetcher StatementFetcher) (*fixture, PaymentService, *MockGateway) {
	t.Helper()
	f := newFixture(t)
	mock := &MockGateway{}
	reg := gateway.NewRegistry(mock, wiretransfer.New(invoicing.Bank{Name: "Fio", IBAN: "CZ65 0800 0000 1920 0014 5399"}, f.settings.OrdersURL))
	svc := NewPaymentService(f.repo, reg, f.orders, fetcher, locker, f.settings, zap.NewNop())
	return f, svc, mock
}

func TestPaymentService_HandleCallback_Lock(t *testing.T) {
	locker := &MockLocker{}
	_, svc, mock := newPaymentFixture(t, locker, nil)
	cb := gateway.Callback{Params: url.Values{"ORDERNUMBER": {"5"}, "PRCODE": {"0"}}}

	res, err := svc.HandleCallback(context.Background(), "mock", cb)
	if err != nil || !res.Success {
		t.Fatalf("Expected success, got %+v %v", res, err)
	}
	if len(locker.released) != 1 {
		t.Fatalf("Expected lock release, got %v", locker.released)
	}

	locker.AcquireFunc = func(context.Context, string, time.Duration) (bool, error) { return false, nil }
	if _, err := svc.HandleCallback(context.Background(), "mock", cb); !errors.Is(err, ErrCallbackInFlight) {
		t.Fatalf("Expected ErrCallbackInFlight, got %v", err)
	}

	locker.AcquireFunc = func(context.Context, string, time.Duration) (bool, error) {
		return false, errors.New("redis down")
	}
	if _, err := svc.HandleCallback(context.Background(), "mock", cb); err != nil {
		t.Fatalf("Expected processing without lock, got %v", err)
	}
	if mock.calls != 2 {
		t.Fatalf("Expected 2 gateway calls, got %d", mock.calls)
	}
}

func TestPaymentService_HandleCallback_UnknownGateway(t *testing.T) {
	_, svc, _ := newPaymentFixture(t, nil, nil)
	if _, err := svc.HandleCallback(context.Background(), "paypal", gateway.Callback{}); !errors.Is(err, gateway.ErrUnknownGateway) {
		t.Fatalf("Expected ErrUnknownGateway, got %v", err)
	}
}

func TestCallbackKey_IgnoresParamOrder(t *testing.T) {
	a := gateway.Callback{Params: url.Values{"A": {"1"}, "B": {"2"}}}
	b := gateway.Callback{Params: url.Values{"B": {"2"}, "A": {"1"}}}
	c := gateway.Callback{Params: url.Values{"A": {"1"}, "B": {"3"}}}
	if callbackKey("gp", a) != callbackKey("gp", b) {
		t.Fatal("Expected equal keys for reordered params")
	}
	if callbackKey("gp", a) == callbackKey("gp", c) {
		t.Fatal("Expected different keys for different params")
	}
}

func TestPaymentService_Info_WireTransfer(t *testing.T) {
	f, svc, _ := newPaymentFixture(t, nil, nil)
	pm := f.method("Bank transfer", "0", wiretransfer.Key)
	o := f.paidOrder(f.user, models.OrderStatusAwaitingPayment, "23.50")
	f.store.orders[o.ID].PaymentMethodID = &pm.ID

	info, err := svc.Info(f.ctx, o.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if info.Method != "Bank transfer" || info.Information == nil || info.Button == nil {
		t.Fatalf("Expected wire transfer details and button, got %+v", info)
	}
	last := info.Information.Lines[len(info.Information.Lines)-1]
	if last.Value != "23.50 EUR" {
		t.Fatalf("Expected amount line, got %+v", last)
	}

	if _, err := svc.PaymentURL(f.ctx, &models.Order{}); !errors.Is(err, ErrNoPaymentGateway) {
		t.Fatalf("Expected ErrNoPaymentGateway, got %v", err)
	}
}

func TestPaymentService_SyncBankStatement(t *testing.T) {
	fetcher := &MockFetcher{enabled: true}
	f, svc, _ := newPaymentFixture(t, nil, fetcher)
	good := f.paidOrder(f.user, models.OrderStatusAwaitingPayment, "23.50")
	short := f.paidOrder(f.user, models.OrderStatusAwaitingPayment, "99.00")

	fetcher.txs = []bankstatement.Transaction{
		{ID: "t1", Amount: dec("23.50"), Currency: "EUR", VariableSymbol: itoa(good.Number)},
		{ID: "t2", Amount: dec("50.00"), Currency: "EUR", VariableSymbol: itoa(short.Number)},
		{ID: "t3", Amount: dec("10.00"), Currency: "EUR", VariableSymbol: "777"},
	}
	from, to := f.now.Add(-24*time.Hour), f.now

	report, err := svc.SyncBankStatement(f.ctx, nil, from, to)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if report.Paid != 1 || len(report.Entries) != 2 {
		t.Fatalf("Expected 1 paid of 2 matched entries, got %+v", report)
	}
	if f.store.orders[good.ID].Status != models.OrderStatusPaymentReceived {
		t.Fatal("Expected matching order to be paid")
	}
	if f.store.orders[short.ID].Status != models.OrderStatusAwaitingPayment {
		t.Fatal("Expected short payment to leave order unpaid")
	}
	if rec := f.store.bankTxs["t2"]; rec == nil || rec.Error != bankstatement.ErrTotalMismatch {
		t.Fatalf("Expected mismatch to be recorded, got %+v", rec)
	}

	report, err = svc.SyncBankStatement(f.ctx, nil, from, to)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if report.Paid != 0 || report.Skipped != 1 {
		t.Fatalf("Expected paid transaction to be skipped on replay, got %+v", report)
	}
}

func TestPaymentService_SyncBankStatement_Disabled(t *testing.T) {
	_, svc, _ := newPaymentFixture(t, nil, &MockFetcher{})
	if _, err := svc.SyncBankStatement(context.Background(), []uuid.UUID{uuid.New()}, time.Now(), time.Now()); !errors.Is(err, ErrBankSyncDisabled) {
		t.Fatalf("Expected ErrBankSyncDisabled, got %v", err)
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
