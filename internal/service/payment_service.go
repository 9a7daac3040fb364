package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"commerce-service/internal/gateway"
	"commerce-service/internal/gateway/bankstatement"
	"commerce-service/internal/metrics"
	"commerce-service/internal/models"
	"commerce-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const callbackLockTTL = 30 * time.Second

// StatementFetcher источник банковской выписки.
type StatementFetcher interface {
	Enabled() bool
	Fetch(ctx context.Context, from, to time.Time) ([]bankstatement.Transaction, error)
}

type PaymentInfo struct {
	OrderID     uuid.UUID            `json:"order_id"`
	Status      models.OrderStatus   `json:"status"`
	Method      string               `json:"method"`
	Button      *gateway.Button      `json:"button,omitempty"`
	Information *gateway.Information `json:"information,omitempty"`
}

type BankSyncReport struct {
	Entries []bankstatement.Entry `json:"entries"`
	Paid    int                   `json:"paid"`
	Skipped int                   `json:"skipped"`
}

type PaymentService interface {
	PaymentLinker
	Info(ctx context.Context, orderID uuid.UUID) (*PaymentInfo, error)
	HandleCallback(ctx context.Context, gatewayKey string, cb gateway.Callback) (gateway.Result, error)
	// SyncBankStatement пустой orderIDs: все заказы в AWAITING_PAYMENT.
	SyncBankStatement(ctx context.Context, orderIDs []uuid.UUID, from, to time.Time) (*BankSyncReport, error)
}

type paymentService struct {
	repo     *repository.Repository
	gateways *gateway.Registry
	orders   OrderService
	bank     StatementFetcher
	locker   Locker
	settings Settings
	log      *zap.Logger
}

func NewPaymentService(repo *repository.Repository, gateways *gateway.Registry, orders OrderService,
	bank StatementFetcher, locker Locker, settings Settings, log *zap.Logger) PaymentService {
	return &paymentService{
		repo:     repo,
		gateways: gateways,
		orders:   orders,
		bank:     bank,
		locker:   locker,
		settings: settings,
		log:      log,
	}
}

func (s *paymentService) gatewayFor(ctx context.Context, o *models.Order) (*models.PaymentMethod, gateway.PaymentGateway, error) {
	if o.PaymentMethodID == nil {
		return nil, nil, ErrNoPaymentGateway
	}
	pm, err := s.repo.PaymentMethods.GetByID(ctx, *o.PaymentMethodID)
	if err != nil {
		return nil, nil, err
	}
	if pm == nil {
		return nil, nil, ErrPaymentNotFound
	}
	if pm.Gateway == "" {
		return pm, nil, nil
	}
	g, err := s.gateways.Get(pm.Gateway)
	if err != nil {
		return pm, nil, err
	}
	return pm, g, nil
}

func (s *paymentService) PaymentURL(ctx context.Context, o *models.Order) (string, error) {
	_, g, err := s.gatewayFor(ctx, o)
	if err != nil {
		return "", err
	}
	if g == nil {
		return "", ErrNoPaymentGateway
	}
	return g.PaymentURL(ctx, o)
}

func (s *paymentService) Info(ctx context.Context, orderID uuid.UUID) (*PaymentInfo, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	pm, g, err := s.gatewayFor(ctx, o)
	if err != nil && !errors.Is(err, ErrNoPaymentGateway) {
		return nil, err
	}
	info := &PaymentInfo{OrderID: o.ID, Status: o.Status}
	if pm != nil {
		info.Method = pm.Title
	}
	if g == nil {
		return info, nil
	}
	info.Information = g.RenderInformation(o)
	if o.Status == models.OrderStatusAwaitingPayment && o.Total.IsPositive() {
		if info.Button, err = g.RenderButton(ctx, o); err != nil {
			return nil, fmt.Errorf("render payment button: %w", err)
		}
	}
	return info, nil
}

// HandleCallback одинаковые одновременные колбэки отсекаются блокировкой;
// повтор после завершения обрабатывается шлюзом идемпотентно.
func (s *paymentService) HandleCallback(ctx context.Context, gatewayKey string, cb gateway.Callback) (gateway.Result, error) {
	g, err := s.gateways.Get(gatewayKey)
	if err != nil {
		return gateway.Result{}, err
	}
	if s.locker != nil {
		key := callbackKey(gatewayKey, cb)
		ok, err := s.locker.Acquire(ctx, key, callbackLockTTL)
		if err != nil {
			// без Redis продолжаем: запись результата всё равно идемпотентна
			s.log.Warn("callback lock unavailable", zap.Error(err))
		} else if !ok {
			metrics.GatewayCallbacksTotal.WithLabelValues(gatewayKey, "in_flight").Inc()
			return gateway.Result{}, ErrCallbackInFlight
		} else {
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), key); err != nil {
					s.log.Warn("callback lock release failed", zap.Error(err))
				}
			}()
		}
	}

	res, err := g.HandleResult(ctx, cb)
	outcome := "rejected"
	switch {
	case err != nil:
		outcome = "error"
	case res.Success:
		outcome = "success"
	}
	metrics.GatewayCallbacksTotal.WithLabelValues(gatewayKey, outcome).Inc()
	if err != nil {
		s.log.Error("gateway callback failed", zap.String("gateway", gatewayKey), zap.Error(err))
		return gateway.Result{}, err
	}
	s.log.Info("gateway callback handled",
		zap.String("gateway", gatewayKey),
		zap.Bool("success", res.Success),
		zap.String("message", res.Message),
	)
	return res, nil
}

// callbackKey отпечаток колбэка: параметры в каноническом порядке плюс тело.
func callbackKey(gatewayKey string, cb gateway.Callback) string {
	h := sha256.New()
	keys := make([]string, 0, len(cb.Params))
	for k := range cb.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k + "=" + strings.Join(cb.Params[k], ",") + "&"))
	}
	h.Write(cb.Body)
	return "callback:" + gatewayKey + ":" + hex.EncodeToString(h.Sum(nil))
}

func (s *paymentService) SyncBankStatement(ctx context.Context, orderIDs []uuid.UUID, from, to time.Time) (*BankSyncReport, error) {
	if s.bank == nil || !s.bank.Enabled() {
		return nil, ErrBankSyncDisabled
	}
	var (
		selected []*models.Order
		err      error
	)
	if len(orderIDs) > 0 {
		selected, err = s.repo.Orders.ListByIDs(ctx, orderIDs)
	} else {
		selected, err = s.repo.Orders.ListByStatus(ctx, models.OrderStatusAwaitingPayment)
	}
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}

	txs, err := s.bank.Fetch(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch statement: %w", err)
	}
	report := &BankSyncReport{}
	fresh := make([]bankstatement.Transaction, 0, len(txs))
	for _, tx := range txs {
		seen, err := s.repo.BankTxs.Seen(ctx, tx.ID)
		if err != nil {
			return nil, err
		}
		if seen {
			report.Skipped++
			continue
		}
		fresh = append(fresh, tx)
	}

	entries, err := bankstatement.Reconcile(ctx, fresh, selected, s.settings.Currency, s.orders)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		rec := &models.BankTransaction{
			TransactionID:  e.Transaction.ID,
			VariableSymbol: e.Transaction.VariableSymbol,
			Amount:         e.Transaction.Amount,
			Currency:       e.Transaction.Currency,
			Sender:         e.Transaction.Sender,
			Error:          strings.Join(e.Errors, "; "),
		}
		outcome := "mismatch"
		if e.Paid() {
			id, _ := uuid.Parse(e.OrderID)
			rec.OrderID = &id
			report.Paid++
			outcome = "paid"
		} else if len(e.Errors) == 0 {
			outcome = "ignored"
		} else {
			s.log.Warn("bank transaction not reconciled",
				zap.String("transaction_id", e.Transaction.ID),
				zap.Int64("order_number", e.OrderNumber),
				zap.Strings("errors", e.Errors),
			)
		}
		metrics.BankTransactionsTotal.WithLabelValues(outcome).Inc()
		if err := s.repo.BankTxs.Record(ctx, rec); err != nil {
			return nil, fmt.Errorf("record bank transaction: %w", err)
		}
	}
	report.Entries = entries
	s.log.Info("bank statement synced",
		zap.Int("transactions", len(txs)),
		zap.Int("matched", len(entries)),
		zap.Int("paid", report.Paid),
	)
	return report, nil
}
