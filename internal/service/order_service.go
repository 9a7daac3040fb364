package service

import (
	"context"
	"fmt"
	"time"

	"commerce-service/internal/invoicing"
	"commerce-service/internal/loyalty"
	"commerce-service/internal/metrics"
	"commerce-service/internal/models"
	"commerce-service/internal/orderstate"
	"commerce-service/internal/producer"
	"commerce-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TemplateOrderCreated       = "order_created"
	TemplateOrderDetails       = "order_details"
	TemplateOrderReminder      = "order_reminder"
	TemplateOrderStatusChanged = "order_status_changed"
	TemplateLoyaltyReminder    = "loyalty_reminder"
)

type OrderService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	SetStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) (*models.Order, error)
	// Advance условный переход from -> to; false, если заказ уже не в from.
	Advance(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (bool, error)
	SendReminder(ctx context.Context, id uuid.UUID, force bool) (bool, error)
	SendDetails(ctx context.Context, id uuid.UUID) error
	CreateInvoice(ctx context.Context, id uuid.UUID, typ models.InvoiceType) (*models.Invoice, error)
	LoyaltyBalance(ctx context.Context, userID uuid.UUID) (int, error)
	SendLoyaltyReminder(ctx context.Context, o *models.Order) (bool, error)
}

type orderService struct {
	repo     *repository.Repository
	invoices *invoicing.Builder
	notifier Notifier
	settings Settings
	log      *zap.Logger
	now      func() time.Time
}

func NewOrderService(repo *repository.Repository, invoices *invoicing.Builder, notifier Notifier, settings Settings, log *zap.Logger) OrderService {
	return newOrderService(repo, invoices, notifier, settings, log, time.Now)
}

func newOrderService(repo *repository.Repository, invoices *invoicing.Builder, notifier Notifier, settings Settings, log *zap.Logger, now func() time.Time) *orderService {
	return &orderService{repo: repo, invoices: invoices, notifier: notifier, settings: settings, log: log, now: now}
}

// Get заказ владельца; администратор видит любой.
func (s *orderService) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	uid, role, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.Orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if role != RoleAdmin && o.UserID != uid {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *orderService) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, err := s.repo.Orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *orderService) SetStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == to {
		return o, nil
	}
	ok, err := s.Advance(ctx, id, o.Status, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStatusConflict
	}
	return s.load(ctx, id)
}

func (s *orderService) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.Advance(ctx, id, models.OrderStatusAwaitingPayment, models.OrderStatusPaymentReceived)
}

func (s *orderService) Advance(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error) {
	var (
		order    *models.Order
		deferred []orderstate.Effect
		changed  bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.Orders.TransitionStatus(ctx, id, from, to)
		if err != nil {
			return fmt.Errorf("transition: %w", err)
		}
		if !ok {
			return nil
		}
		changed = true
		if order, err = s.load(ctx, id); err != nil {
			return err
		}
		facts, err := s.facts(ctx, id)
		if err != nil {
			return err
		}
		var inTx []orderstate.Effect
		inTx, deferred = orderstate.Split(orderstate.Plan(from, to, facts, s.settings.States))
		return s.applyEffects(ctx, order, inTx)
	})
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	s.log.Info("order status changed",
		zap.String("order_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.dispatch(ctx, order, deferred)
	return true, nil
}

func (s *orderService) facts(ctx context.Context, orderID uuid.UUID) (orderstate.Facts, error) {
	var f orderstate.Facts
	var err error
	if f.HasInvoice, err = s.repo.Invoices.HasForOrder(ctx, orderID, models.InvoiceTypeInvoice); err != nil {
		return f, err
	}
	if f.HasProforma, err = s.repo.Invoices.HasForOrder(ctx, orderID, models.InvoiceTypeProforma); err != nil {
		return f, err
	}
	return f, nil
}

// applyEffects выполняет транзакционные эффекты; ошибка откатывает переход целиком.
func (s *orderService) applyEffects(ctx context.Context, o *models.Order, effects []orderstate.Effect) error {
	for _, e := range effects {
		switch eff := e.(type) {
		case orderstate.CreateInvoice:
			if _, err := s.createInvoice(ctx, o, eff.Type, eff.Status); err != nil {
				return err
			}
		case orderstate.CancelPendingInvoices:
			n, err := s.repo.Invoices.CancelPendingForOrder(ctx, o.ID)
			if err != nil {
				return fmt.Errorf("cancel invoices: %w", err)
			}
			s.log.Info("invoices canceled", zap.String("order_id", o.ID.String()), zap.Int64("count", n))
		default:
			return fmt.Errorf("unexpected in-tx effect %T", e)
		}
	}
	return nil
}

// dispatch отложенные эффекты после коммита: ошибки только логируются.
func (s *orderService) dispatch(ctx context.Context, o *models.Order, effects []orderstate.Effect) {
	for _, e := range effects {
		switch eff := e.(type) {
		case orderstate.NotifyStatusChanged:
			subject := fmt.Sprintf("Order %d: %s", o.Number, eff.To)
			err := s.notify(ctx, o, TemplateOrderStatusChanged, subject, map[string]any{
				"from": eff.From,
				"to":   eff.To,
			})
			if err != nil {
				s.log.Warn("status notification failed", zap.String("order_id", o.ID.String()), zap.Error(err))
			}
		default:
			s.log.Warn("unexpected deferred effect", zap.String("effect", fmt.Sprintf("%T", e)))
		}
	}
}

func (s *orderService) createInvoice(ctx context.Context, o *models.Order, typ models.InvoiceType, status models.InvoiceStatus) (*models.Invoice, error) {
	src := invoicing.Source{Order: o}
	if o.ShippingOptionID != nil {
		so, err := s.repo.ShippingOptions.GetByID(ctx, *o.ShippingOptionID)
		if err != nil {
			return nil, err
		}
		if so != nil {
			src.ShippingTitle = so.Title
		}
	}
	if o.PaymentMethodID != nil {
		pm, err := s.repo.PaymentMethods.GetByID(ctx, *o.PaymentMethodID)
		if err != nil {
			return nil, err
		}
		if pm != nil {
			src.PaymentTitle = pm.Title
		}
	}
	inv := s.invoices.Build(src, typ, status)
	if err := s.repo.Invoices.CreateForOrder(ctx, o.ID, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	s.log.Info("invoice created",
		zap.String("order_id", o.ID.String()),
		zap.String("number", inv.Number),
		zap.String("type", string(typ)),
	)
	return inv, nil
}

// CreateInvoice ручное создание документа администратором.
func (s *orderService) CreateInvoice(ctx context.Context, id uuid.UUID, typ models.InvoiceType) (*models.Invoice, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	var inv *models.Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		status := models.InvoiceStatusNew
		if typ == models.InvoiceTypeInvoice && orderstate.IsPaid(o.Status) {
			status = models.InvoiceStatusPaid
		}
		inv, err = s.createInvoice(ctx, o, typ, status)
		return err
	})
	return inv, err
}

// SendReminder напоминание об оплате. Без force повторно не отправляется;
// отметка ставится только после успешной отправки.
func (s *orderService) SendReminder(ctx context.Context, id uuid.UUID, force bool) (bool, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	if !o.Total.IsPositive() || !orderstate.IsUnpaid(o.Status) {
		return false, nil
	}
	if o.ReminderSent != nil && !force {
		return false, nil
	}
	subject := fmt.Sprintf("Payment reminder for order %d", o.Number)
	if err := s.notify(ctx, o, TemplateOrderReminder, subject, nil); err != nil {
		return false, fmt.Errorf("send reminder: %w", err)
	}
	if err := s.repo.Orders.MarkReminded(ctx, o.ID, s.now()); err != nil {
		return false, err
	}
	return true, nil
}

func (s *orderService) SendDetails(ctx context.Context, id uuid.UUID) error {
	o, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	return s.notify(ctx, o, TemplateOrderDetails, fmt.Sprintf("Order %d", o.Number), nil)
}

func (s *orderService) LoyaltyBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	if !s.settings.Loyalty.Enabled() {
		return 0, nil
	}
	totals, err := s.repo.Orders.TotalsForUser(ctx, userID, loyalty.EarningExcluded)
	if err != nil {
		return 0, err
	}
	spent, err := s.repo.Orders.LoyaltyPointsSpent(ctx, userID, loyalty.SpendingExcluded)
	if err != nil {
		return 0, err
	}
	if b := s.settings.Loyalty.Earned(totals) - spent; b > 0 {
		return b, nil
	}
	return 0, nil
}

// SendLoyaltyReminder письмо о неиспользованных баллах; o последний заказ клиента.
func (s *orderService) SendLoyaltyReminder(ctx context.Context, o *models.Order) (bool, error) {
	balance, err := s.LoyaltyBalance(ctx, o.UserID)
	if err != nil {
		return false, err
	}
	if balance <= 0 {
		return false, nil
	}
	err = s.notify(ctx, o, TemplateLoyaltyReminder, "Your loyalty points", map[string]any{
		"points": balance,
		"value":  s.settings.Loyalty.ToCurrency(balance).String(),
	})
	return err == nil, err
}

func (s *orderService) notify(ctx context.Context, o *models.Order, template, subject string, extra map[string]any) error {
	if s.notifier == nil || o.Email == "" {
		return nil
	}
	data := orderData(o, s.settings.OrdersURL)
	for k, v := range extra {
		data[k] = v
	}
	err := s.notifier.Send(ctx, o.ID.String(), producer.Notification{
		To:       o.Email,
		Subject:  subject,
		Template: template,
		Language: o.Language,
		Data:     data,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.NotificationsTotal.WithLabelValues(template, outcome).Inc()
	return err
}

func orderData(o *models.Order, ordersURL string) map[string]any {
	items := make([]map[string]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]any{
			"title":    it.Title,
			"quantity": it.Quantity,
			"price":    it.Price.String(),
			"subtotal": it.Subtotal().String(),
		})
	}
	data := map[string]any{
		"order_id": o.ID.String(),
		"number":   o.Number,
		"status":   o.Status,
		"total":    o.Total.String(),
		"currency": o.Currency,
		"items":    items,
	}
	if ordersURL != "" {
		data["url"] = ordersURL + "/" + o.ID.String()
	}
	return data
}
