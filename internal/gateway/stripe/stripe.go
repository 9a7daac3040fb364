// Package stripe creates Stripe Checkout sessions over the REST API and
// reconciles orders from signed webhook events.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"commerce-service/internal/gateway"
	"commerce-service/internal/models"
	"commerce-service/internal/pricing"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	Key = "stripe"

	DefaultAPIBase   = "https://api.stripe.com"
	SignatureHeader  = "Stripe-Signature"
	defaultTolerance = 5 * time.Minute

	eventCheckoutCompleted = "checkout.session.completed"

	MsgInvalidSignature = "Invalid payment signature."
)

var ErrSignature = errors.New("stripe webhook signature mismatch")

type Config struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	SuccessURL     string
	CancelURL      string
	APIBase        string
	Timeout        time.Duration
}

type Gateway struct {
	cfg        Config
	http       *resty.Client
	orders     gateway.OrderLookup
	reconciler gateway.Reconciler
	log        *zap.Logger
	now        func() time.Time
}

func New(cfg Config, orders gateway.OrderLookup, reconciler gateway.Reconciler, log *zap.Logger) *Gateway {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.APIBase, "/")).
			SetTimeout(cfg.Timeout).
			SetRetryCount(0).
			SetAuthToken(cfg.SecretKey),
		orders:     orders,
		reconciler: reconciler,
		log:        log,
		now:        time.Now,
	}
}

func (g *Gateway) Key() string { return Key }

type session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// PaymentURL одна строка на всю сумму заказа: Stripe не принимает строки с отрицательной ценой.
func (g *Gateway) PaymentURL(ctx context.Context, o *models.Order) (string, error) {
	if o.Status != models.OrderStatusAwaitingPayment {
		return "", fmt.Errorf("order %d is not awaiting payment", o.Number)
	}
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", strconv.FormatInt(o.Number, 10))
	form.Set("success_url", g.cfg.SuccessURL)
	form.Set("cancel_url", g.cfg.CancelURL)
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(o.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(pricing.ToMinorUnits(o.Total), 10))
	form.Set("line_items[0][price_data][product_data][name]", fmt.Sprintf("Order number %d", o.Number))
	if o.Email != "" {
		form.Set("customer_email", o.Email)
	}

	var out session
	var apiErr apiError
	resp, err := g.http.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/checkout/sessions")
	if err != nil {
		return "", fmt.Errorf("stripe create session: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("stripe create session: status %d: %s", resp.StatusCode(), apiErr.Error.Message)
	}
	if out.URL == "" {
		return "", errors.New("stripe create session: empty url")
	}
	g.log.Info("stripe session created", zap.String("session_id", out.ID), zap.Int64("order_number", o.Number))
	return out.URL, nil
}

func (g *Gateway) RenderButton(ctx context.Context, o *models.Order) (*gateway.Button, error) {
	u, err := g.PaymentURL(ctx, o)
	if err != nil {
		return nil, err
	}
	return &gateway.Button{
		Label:  "Pay by card",
		URL:    u,
		Method: "GET",
		Fields: map[string]string{"publishable_key": g.cfg.PublishableKey},
	}, nil
}

func (g *Gateway) RenderInformation(*models.Order) *gateway.Information { return nil }

type event struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ClientReferenceID string `json:"client_reference_id"`
			PaymentStatus     string `json:"payment_status"`
		} `json:"object"`
	} `json:"data"`
}

// HandleResult вебхук; неизвестные события подтверждаются без действий.
func (g *Gateway) HandleResult(ctx context.Context, cb gateway.Callback) (gateway.Result, error) {
	if err := VerifySignature(cb.Body, cb.Header.Get(SignatureHeader), g.cfg.WebhookSecret, g.now(), defaultTolerance); err != nil {
		g.log.Warn("stripe webhook rejected", zap.Error(err))
		return gateway.Result{Success: false, Message: MsgInvalidSignature}, nil
	}
	var ev event
	if err := json.Unmarshal(cb.Body, &ev); err != nil {
		return gateway.Result{}, fmt.Errorf("%w: %v", gateway.ErrInvalidPayload, err)
	}
	if ev.Type != eventCheckoutCompleted {
		return gateway.Result{Success: true, Message: "ignored"}, nil
	}
	obj := ev.Data.Object
	if obj.PaymentStatus != "paid" {
		return gateway.Result{Success: false, Message: "Payment not completed."}, nil
	}
	number, err := strconv.ParseInt(obj.ClientReferenceID, 10, 64)
	if err != nil {
		return gateway.Result{}, fmt.Errorf("%w: client_reference_id", gateway.ErrInvalidPayload)
	}
	order, err := g.orders.GetByNumber(ctx, number)
	if err != nil {
		return gateway.Result{}, err
	}
	if order == nil {
		return gateway.Result{Success: false, Message: "Transaction not recognised"}, nil
	}
	advanced, err := g.reconciler.MarkPaid(ctx, order.ID)
	if err != nil {
		return gateway.Result{}, err
	}
	if !advanced {
		return gateway.Result{Success: true, Message: "Payment without result."}, nil
	}
	return gateway.Result{Success: true, Message: "Order successfully paid."}, nil
}

// VerifySignature заголовок вида "t=<unix>,v1=<hex>"; подписывается "<t>.<body>".
func VerifySignature(body []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	if secret == "" || header == "" {
		return ErrSignature
	}
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || len(sigs) == 0 {
		return ErrSignature
	}
	if d := now.Sub(time.Unix(unix, 0)); d > tolerance || d < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignature)
	}
	expected := Sign(body, secret, unix)
	for _, s := range sigs {
		if hmac.Equal([]byte(s), []byte(expected)) {
			return nil
		}
	}
	return ErrSignature
}

func Sign(body []byte, secret string, unix int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(unix, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
