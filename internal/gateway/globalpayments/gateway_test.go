package globalpayments

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"commerce-service/internal/gateway"
	"commerce-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type memPayments struct {
	mu       sync.Mutex
	nextID   int64
	payments map[int64]*models.GatewayPayment
	results  map[string]*models.GatewayResult
}

func newMemPayments() *memPayments {
	return &memPayments{payments: map[int64]*models.GatewayPayment{}, results: map[string]*models.GatewayResult{}}
}

func (m *memPayments) CreatePayment(_ context.Context, p *models.GatewayPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *memPayments) GetPayment(_ context.Context, id int64) (*models.GatewayPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) SetPaymentStatus(_ context.Context, id int64, status models.GatewayPaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok {
		p.Status = status
	}
	return nil
}

func (m *memPayments) GetOrCreateResult(_ context.Context, r *models.GatewayResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.Join([]string{
		strconv.FormatInt(r.PaymentID, 10), r.Operation, r.OrderNumber, r.MerchantOrderNumber,
		strconv.Itoa(r.PRCode), strconv.Itoa(r.SRCode), r.Digest,
	}, "|")
	if existing, ok := m.results[key]; ok {
		*r = *existing
		return false, nil
	}
	cp := *r
	m.results[key] = &cp
	return true, nil
}

func (m *memPayments) CountResults(_ context.Context, paymentID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.results {
		if r.PaymentID == paymentID {
			n++
		}
	}
	return n, nil
}

// memOrders заказы и условный переход в оплаченный.
type memOrders struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]*models.Order
	transitions int
}

func (m *memOrders) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) GetByNumber(_ context.Context, number int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Number == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memOrders) MarkPaid(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != models.OrderStatusAwaitingPayment {
		return false, nil
	}
	o.Status = models.OrderStatusPaymentReceived
	m.transitions++
	return true, nil
}

func (m *memOrders) status(id uuid.UUID) models.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

type fixture struct {
	gw         *Gateway
	payments   *memPayments
	orders     *memOrders
	order      *models.Order
	gatewayKey *rsa.PrivateKey // ключ банка, которым подписываются ответы
	merchant   *rsa.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	merchant, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate merchant key: %v", err)
	}
	bank, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate gateway key: %v", err)
	}
	order := &models.Order{
		ID:       uuid.New(),
		Number:   1042,
		Status:   models.OrderStatusAwaitingPayment,
		Total:    decimal.RequireFromString("123.45"),
		Currency: "EUR",
		Items:    []models.PurchasedItem{{Title: "Žluťoučký kůň", Quantity: 1, Price: decimal.RequireFromString("123.45")}},
	}
	orders := &memOrders{orders: map[uuid.UUID]*models.Order{order.ID: order}}
	payments := newMemPayments()
	cfg := Config{MerchantNumber: "M123", Debug: true, ReturnURL: "https://shop.test/payments/globalpayments/result", OrderNumberStart: 5000}
	gw := New(cfg, merchant, &bank.PublicKey, payments, orders, orders, zap.NewNop())
	return &fixture{gw: gw, payments: payments, orders: orders, order: order, gatewayKey: bank, merchant: merchant}
}

// callback подписанный ответ шлюза для платежа paymentID.
func (f *fixture) callback(t *testing.T, paymentID int64, prcode int, text string) url.Values {
	t.Helper()
	v := url.Values{}
	v.Set("OPERATION", "CREATE_ORDER")
	v.Set("ORDERNUMBER", strconv.FormatInt(f.gw.orderNumber(paymentID), 10))
	v.Set("MERORDERNUM", strconv.FormatInt(f.order.Number, 10))
	v.Set("PRCODE", strconv.Itoa(prcode))
	v.Set("SRCODE", "0")
	v.Set("RESULTTEXT", text)
	data := ResponseDigestInput(v)
	d, err := Sign(f.gatewayKey, data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	d1, err := Sign(f.gatewayKey, data+"|M123")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	v.Set("DIGEST", d)
	v.Set("DIGEST1", d1)
	return v
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sig, err := Sign(key, "M123|CREATE_ORDER|5000|12345")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(&key.PublicKey, "M123|CREATE_ORDER|5000|12345", sig) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(&key.PublicKey, "M123|CREATE_ORDER|5000|12346", sig) {
		t.Fatalf("tampered data must not verify")
	}
	if Verify(&key.PublicKey, "x", "not-base64!") {
		t.Fatalf("garbage signature must not verify")
	}
}

func TestRequestDigestInputKeepsEmptyFields(t *testing.T) {
	got := RequestDigestInput(map[string]string{
		"MERCHANTNUMBER": "M", "OPERATION": "CREATE_ORDER", "ORDERNUMBER": "1", "AMOUNT": "100",
		"DEPOSITFLAG": "1", "MERORDERNUM": "7", "URL": "u", "DESCRIPTION": "d", "REFERENCENUMBER": "r",
	})
	want := "M|CREATE_ORDER|1|100||1|7|u|d|r"
	if got != want {
		t.Fatalf("digest input = %q, want %q", got, want)
	}
}

func TestPaymentURLIsSigned(t *testing.T) {
	f := newFixture(t)
	raw, err := f.gw.PaymentURL(context.Background(), f.order)
	if err != nil {
		t.Fatalf("payment url: %v", err)
	}
	if !strings.HasPrefix(raw, URLTest+"?") {
		t.Fatalf("expected test gateway url, got %s", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("AMOUNT") != "12345" {
		t.Fatalf("AMOUNT = %s, want 12345", q.Get("AMOUNT"))
	}
	if q.Get("ORDERNUMBER") != "5000" {
		t.Fatalf("ORDERNUMBER = %s, want 5000 for first payment", q.Get("ORDERNUMBER"))
	}
	if q.Get("DESCRIPTION") != "Zlutoucky kun" {
		t.Fatalf("DESCRIPTION = %q", q.Get("DESCRIPTION"))
	}
	params := map[string]string{}
	for k := range q {
		params[k] = q.Get(k)
	}
	if !Verify(&f.merchant.PublicKey, RequestDigestInput(params), q.Get("DIGEST")) {
		t.Fatalf("request digest does not verify with merchant key")
	}
}

func TestHandleResultPaidAndReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.gw.PaymentURL(ctx, f.order); err != nil {
		t.Fatalf("payment url: %v", err)
	}
	cb := gateway.Callback{OrderID: f.order.ID, Params: f.callback(t, 1, 0, "OK")}

	res, err := f.gw.HandleResult(ctx, cb)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !res.Success || res.Message != MsgPaid {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = f.gw.HandleResult(ctx, cb)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Success {
		t.Fatalf("replay must not report a second payment: %+v", res)
	}
	if n, _ := f.payments.CountResults(ctx, 1); n != 1 {
		t.Fatalf("results stored = %d, want 1", n)
	}
	if f.orders.transitions != 1 {
		t.Fatalf("transitions = %d, want 1", f.orders.transitions)
	}
	if f.orders.status(f.order.ID) != models.OrderStatusPaymentReceived {
		t.Fatalf("order status = %s", f.orders.status(f.order.ID))
	}
}

func TestHandleResultReplayDoesNotReapply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.gw.PaymentURL(ctx, f.order); err != nil {
		t.Fatalf("payment url: %v", err)
	}
	paid := gateway.Callback{OrderID: f.order.ID, Params: f.callback(t, 1, 0, "OK")}
	if res, err := f.gw.HandleResult(ctx, paid); err != nil || !res.Success {
		t.Fatalf("first result: %+v %v", res, err)
	}
	if res, err := f.gw.HandleResult(ctx, gateway.Callback{Params: f.callback(t, 1, prCodeCanceled, "Canceled")}); err != nil || res.Success {
		t.Fatalf("cancel result: %+v %v", res, err)
	}

	res, err := f.gw.HandleResult(ctx, paid)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Success || res.Message != MsgWithoutResult {
		t.Fatalf("unexpected replay answer %+v", res)
	}
	if p, _ := f.payments.GetPayment(ctx, 1); p.Status != models.GatewayPaymentCanceled {
		t.Fatalf("payment status = %s, replay must not flip it back", p.Status)
	}
	if f.orders.transitions != 1 {
		t.Fatalf("transitions = %d, want 1", f.orders.transitions)
	}
}

func TestHandleResultInvalidSignatureKeepsStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.gw.PaymentURL(ctx, f.order); err != nil {
		t.Fatalf("payment url: %v", err)
	}
	params := f.callback(t, 1, 0, "OK")
	params.Set("DIGEST1", params.Get("DIGEST")) // второй дайджест не сходится

	res, err := f.gw.HandleResult(ctx, gateway.Callback{Params: params})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Success || !strings.HasPrefix(res.Message, MsgInvalidSignature) {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.orders.status(f.order.ID) != models.OrderStatusAwaitingPayment {
		t.Fatalf("status changed on invalid signature")
	}
	p, _ := f.payments.GetPayment(ctx, 1)
	if p.Status != models.GatewayPaymentProcessing {
		t.Fatalf("payment status = %s", p.Status)
	}
}

func TestHandleResultCodes(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		prcode  int
		wantMsg string
	}{
		{"canceled by cardholder", 50, ""},
		{"declined", 30, MsgPaymentFailed + " Declined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if _, err := f.gw.PaymentURL(ctx, f.order); err != nil {
				t.Fatalf("payment url: %v", err)
			}
			res, err := f.gw.HandleResult(ctx, gateway.Callback{Params: f.callback(t, 1, tt.prcode, "Declined")})
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			if res.Success || res.Message != tt.wantMsg {
				t.Fatalf("got %+v, want message %q", res, tt.wantMsg)
			}
			if f.orders.status(f.order.ID) != models.OrderStatusAwaitingPayment {
				t.Fatalf("status must not change")
			}
		})
	}
}

func TestHandleResultUnknownPayment(t *testing.T) {
	f := newFixture(t)
	res, err := f.gw.HandleResult(context.Background(), gateway.Callback{Params: f.callback(t, 99, 0, "OK")})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Success || res.Message != MsgNotRecognised {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHandleResultMalformed(t *testing.T) {
	f := newFixture(t)
	_, err := f.gw.HandleResult(context.Background(), gateway.Callback{Params: url.Values{"ORDERNUMBER": {"x"}}})
	if err == nil {
		t.Fatalf("expected error for malformed callback")
	}
}
