// Package globalpayments implements the GP webpay redirect gateway: signed
// CREATE_ORDER requests and verification of signed return callbacks.
package globalpayments

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"commerce-service/internal/gateway"
	"commerce-service/internal/models"
	"commerce-service/internal/pricing"
	"commerce-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	Key = "globalpayments"

	URLTest = "https://test.3dsecure.gpwebpay.com/pgw/order.do"
	URLProd = "https://3dsecure.gpwebpay.com/pgw/order.do"

	// PRCODE: клиент отменил оплату
	prCodeCanceled = 50

	maxDescription = 255
)

const (
	MsgInvalidSignature = "Invalid payment signature."
	MsgPaymentFailed    = "Payment failed. Error detail:"
	MsgNotRecognised    = "Transaction not recognised"
	MsgPaid             = "Order successfully paid."
	MsgWithoutResult    = "Payment without result."
)

type Config struct {
	MerchantNumber string
	Debug          bool
	// ReturnURL база адреса возврата; к ней добавляется /{orderID}
	ReturnURL string
	// ORDERNUMBER = id платежа + OrderNumberStart - 1
	OrderNumberStart int64
	// пустое значение: валюта магазина по умолчанию на стороне шлюза
	Currency string
}

type Gateway struct {
	cfg        Config
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	payments   repository.GatewayRepo
	orders     gateway.OrderLookup
	reconciler gateway.Reconciler
	log        *zap.Logger
}

func New(cfg Config, privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey,
	payments repository.GatewayRepo, orders gateway.OrderLookup, reconciler gateway.Reconciler, log *zap.Logger) *Gateway {
	if cfg.OrderNumberStart <= 0 {
		cfg.OrderNumberStart = 1
	}
	return &Gateway{
		cfg:        cfg,
		privateKey: privateKey,
		publicKey:  publicKey,
		payments:   payments,
		orders:     orders,
		reconciler: reconciler,
		log:        log,
	}
}

func (g *Gateway) Key() string { return Key }

func (g *Gateway) gatewayURL() string {
	if g.cfg.Debug {
		return URLTest
	}
	return URLProd
}

func (g *Gateway) orderNumber(paymentID int64) int64 { return paymentID + g.cfg.OrderNumberStart - 1 }

func (g *Gateway) paymentID(orderNumber int64) int64 { return orderNumber - g.cfg.OrderNumberStart + 1 }

func (g *Gateway) returnURL(orderID uuid.UUID) string {
	return strings.TrimRight(g.cfg.ReturnURL, "/") + "/" + orderID.String()
}

// PaymentURL заводит новую запись платежа и возвращает подписанный адрес шлюза.
func (g *Gateway) PaymentURL(ctx context.Context, o *models.Order) (string, error) {
	p := &models.GatewayPayment{
		Gateway:  Key,
		OrderID:  o.ID,
		Amount:   o.Total,
		Currency: o.Currency,
		Status:   models.GatewayPaymentProcessing,
	}
	if err := g.payments.CreatePayment(ctx, p); err != nil {
		return "", fmt.Errorf("create payment: %w", err)
	}

	params := map[string]string{
		"MERCHANTNUMBER":  g.cfg.MerchantNumber,
		"OPERATION":       "CREATE_ORDER",
		"ORDERNUMBER":     strconv.FormatInt(g.orderNumber(p.ID), 10),
		"AMOUNT":          strconv.FormatInt(pricing.ToMinorUnits(o.Total), 10),
		"CURRENCY":        g.cfg.Currency,
		"DEPOSITFLAG":     "1",
		"MERORDERNUM":     strconv.FormatInt(o.Number, 10),
		"URL":             g.returnURL(o.ID),
		"DESCRIPTION":     Description(o.Items),
		"REFERENCENUMBER": o.ID.String(),
	}
	digest, err := Sign(g.privateKey, RequestDigestInput(params))
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("DIGEST", digest)
	return g.gatewayURL() + "?" + q.Encode(), nil
}

func (g *Gateway) RenderButton(ctx context.Context, o *models.Order) (*gateway.Button, error) {
	u, err := g.PaymentURL(ctx, o)
	if err != nil {
		return nil, err
	}
	return &gateway.Button{Label: "Pay", URL: u, Method: "GET"}, nil
}

func (g *Gateway) RenderInformation(*models.Order) *gateway.Information { return nil }

// HandleResult проверяет подпись, идемпотентно сохраняет результат и
// при PRCODE=0 переводит заказ в оплаченный.
func (g *Gateway) HandleResult(ctx context.Context, cb gateway.Callback) (gateway.Result, error) {
	params := cb.Params
	orderNumber, err := strconv.ParseInt(params.Get("ORDERNUMBER"), 10, 64)
	if err != nil {
		return gateway.Result{}, fmt.Errorf("%w: ORDERNUMBER", gateway.ErrInvalidPayload)
	}
	prcode, err := strconv.Atoi(params.Get("PRCODE"))
	if err != nil {
		return gateway.Result{}, fmt.Errorf("%w: PRCODE", gateway.ErrInvalidPayload)
	}
	srcode, err := strconv.Atoi(params.Get("SRCODE"))
	if err != nil {
		return gateway.Result{}, fmt.Errorf("%w: SRCODE", gateway.ErrInvalidPayload)
	}
	text := params.Get("RESULTTEXT")
	verified := VerifyResponse(g.publicKey, params, g.cfg.MerchantNumber)

	paymentID := g.paymentID(orderNumber)
	payment, err := g.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return gateway.Result{}, err
	}
	if payment != nil {
		stored := &models.GatewayResult{
			PaymentID:           paymentID,
			Operation:           params.Get("OPERATION"),
			OrderNumber:         params.Get("ORDERNUMBER"),
			MerchantOrderNumber: params.Get("MERORDERNUM"),
			PRCode:              prcode,
			SRCode:              srcode,
			Digest:              params.Get("DIGEST"),
			Digest1:             params.Get("DIGEST1"),
			ResultText:          text,
			Verified:            verified,
			CreatedAt:           time.Now(),
		}
		created, err := g.payments.GetOrCreateResult(ctx, stored)
		if err != nil {
			return gateway.Result{}, fmt.Errorf("store result: %w", err)
		}
		if !created {
			g.log.Info("gp result replayed", zap.Int64("payment_id", paymentID))
			return replayed(stored), nil
		}
	}

	if !verified {
		g.log.Warn("gp result signature mismatch", zap.Int64("order_number", orderNumber))
		return gateway.Result{Success: false, Message: strings.TrimSpace(MsgInvalidSignature + " " + text)}, nil
	}
	if prcode == prCodeCanceled {
		if payment != nil {
			if err := g.payments.SetPaymentStatus(ctx, paymentID, models.GatewayPaymentCanceled); err != nil {
				return gateway.Result{}, err
			}
		}
		return gateway.Result{Success: false}, nil
	}
	if prcode != 0 {
		return gateway.Result{Success: false, Message: strings.TrimSpace(MsgPaymentFailed + " " + text)}, nil
	}

	if payment == nil || (cb.OrderID != uuid.Nil && payment.OrderID != cb.OrderID) {
		return gateway.Result{Success: false, Message: MsgNotRecognised}, nil
	}
	order, err := g.orders.GetByID(ctx, payment.OrderID)
	if err != nil {
		return gateway.Result{}, err
	}
	if order == nil {
		return gateway.Result{Success: false, Message: MsgNotRecognised}, nil
	}
	if mer := params.Get("MERORDERNUM"); mer != "" && mer != strconv.FormatInt(order.Number, 10) {
		return gateway.Result{Success: false, Message: MsgNotRecognised}, nil
	}

	if err := g.payments.SetPaymentStatus(ctx, paymentID, models.GatewayPaymentPaid); err != nil {
		return gateway.Result{}, err
	}
	advanced, err := g.reconciler.MarkPaid(ctx, order.ID)
	if err != nil {
		return gateway.Result{}, err
	}
	if advanced {
		return gateway.Result{Success: true, Message: MsgPaid}, nil
	}
	return gateway.Result{Success: false, Message: MsgWithoutResult}, nil
}

// replayed ответ на повтор уже сохранённого результата; платёж и заказ не трогаются.
func replayed(r *models.GatewayResult) gateway.Result {
	switch {
	case !r.Verified:
		return gateway.Result{Success: false, Message: strings.TrimSpace(MsgInvalidSignature + " " + r.ResultText)}
	case r.PRCode == prCodeCanceled:
		return gateway.Result{Success: false}
	case r.PRCode != 0:
		return gateway.Result{Success: false, Message: strings.TrimSpace(MsgPaymentFailed + " " + r.ResultText)}
	}
	return gateway.Result{Success: false, Message: MsgWithoutResult}
}

// Description названия позиций через запятую в ASCII, не длиннее 255 символов.
func Description(items []models.PurchasedItem) string {
	titles := make([]string, 0, len(items))
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	s := ToASCII(strings.Join(titles, ", "))
	if len(s) > maxDescription {
		s = s[:maxDescription]
	}
	return s
}

// ToASCII убирает диакритику; прочие не-ASCII символы выбрасываются.
func ToASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range folded {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}
