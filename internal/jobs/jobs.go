package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-service/internal/loyalty"
	"commerce-service/internal/metrics"
	"commerce-service/internal/models"
	"commerce-service/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	JobReminders = "reminders"
	JobCancel    = "cancel"
	JobCarts     = "carts"
	JobLoyalty   = "loyalty"
	JobBankSync  = "banksync"
)

// Names порядок выполнения для RunAll.
var Names = []string{JobReminders, JobCancel, JobCarts, JobLoyalty, JobBankSync}

var ErrUnknownJob = errors.New("unknown job")

type OrderFinder interface {
	ListDueForReminder(ctx context.Context, createdBefore time.Time) ([]*models.Order, error)
	ListUnpaidCreatedBefore(ctx context.Context, createdBefore time.Time) ([]*models.Order, error)
	LatestPerUserCreatedBetween(ctx context.Context, from, to time.Time, exclude []models.OrderStatus) ([]*models.Order, error)
}

type CartPurger interface {
	PurgeEmpty(ctx context.Context, createdBefore time.Time) (int64, error)
}

type Orders interface {
	Advance(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error)
	SendReminder(ctx context.Context, id uuid.UUID, force bool) (bool, error)
	SendLoyaltyReminder(ctx context.Context, o *models.Order) (bool, error)
}

type BankSyncer interface {
	SyncBankStatement(ctx context.Context, orderIDs []uuid.UUID, from, to time.Time) (*service.BankSyncReport, error)
}

// SyncCursor хранит конец последнего успешно обработанного окна выписки.
type SyncCursor interface {
	LastSync(ctx context.Context, job string) (time.Time, error)
	SetLastSync(ctx context.Context, job string, at time.Time) error
}

type Thresholds struct {
	ReminderAfter  time.Duration
	CancelAfter    time.Duration
	CartPurgeAfter time.Duration
	// письмо о баллах уходит клиентам с заказом ровно N дней назад; 0 выключает
	LoyaltyReminderAfterDays int
	// окно выписки при первом запуске
	BankSyncWindow time.Duration
}

type Runner struct {
	finder     OrderFinder
	carts      CartPurger
	orders     Orders
	bank       BankSyncer
	cursor     SyncCursor
	thresholds Thresholds
	log        *zap.Logger
	now        func() time.Time
}

func NewRunner(finder OrderFinder, carts CartPurger, orders Orders, bank BankSyncer, cursor SyncCursor, th Thresholds, log *zap.Logger) *Runner {
	return &Runner{
		finder:     finder,
		carts:      carts,
		orders:     orders,
		bank:       bank,
		cursor:     cursor,
		thresholds: th,
		log:        log,
		now:        time.Now,
	}
}

func (r *Runner) Run(ctx context.Context, name string) error {
	var err error
	switch name {
	case JobReminders:
		err = r.SendReminders(ctx)
	case JobCancel:
		err = r.CancelUnpaid(ctx)
	case JobCarts:
		err = r.PurgeCarts(ctx)
	case JobLoyalty:
		err = r.LoyaltyReminders(ctx)
	case JobBankSync:
		err = r.BankSync(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.JobRunsTotal.WithLabelValues(name, outcome).Inc()
	return err
}

// RunAll выполняет все задачи; ошибка одной не останавливает остальные.
func (r *Runner) RunAll(ctx context.Context) error {
	r.log.Info("starting all jobs")
	var errs []error
	for _, name := range Names {
		if err := r.Run(ctx, name); err != nil {
			r.log.Error("job failed", zap.String("job", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	r.log.Info("all jobs completed", zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// SendReminders напоминания по неоплаченным заказам старше ReminderAfter.
func (r *Runner) SendReminders(ctx context.Context) error {
	list, err := r.finder.ListDueForReminder(ctx, r.now().Add(-r.thresholds.ReminderAfter))
	if err != nil {
		return fmt.Errorf("list due orders: %w", err)
	}
	sent := 0
	for _, o := range list {
		ok, err := r.orders.SendReminder(ctx, o.ID, false)
		if err != nil {
			r.log.Error("reminder failed", zap.String("order_id", o.ID.String()), zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}
	if sent > 0 {
		r.log.Info("payment reminders sent", zap.Int("count", sent))
	}
	return nil
}

// CancelUnpaid отменяет заказы, не оплаченные за CancelAfter.
func (r *Runner) CancelUnpaid(ctx context.Context) error {
	list, err := r.finder.ListUnpaidCreatedBefore(ctx, r.now().Add(-r.thresholds.CancelAfter))
	if err != nil {
		return fmt.Errorf("list unpaid orders: %w", err)
	}
	canceled := 0
	for _, o := range list {
		ok, err := r.orders.Advance(ctx, o.ID, o.Status, models.OrderStatusCancelled)
		if err != nil {
			r.log.Error("cancel failed", zap.String("order_id", o.ID.String()), zap.Error(err))
			continue
		}
		if ok {
			canceled++
		}
	}
	if canceled > 0 {
		r.log.Info("unpaid orders cancelled", zap.Int("count", canceled))
	}
	return nil
}

func (r *Runner) PurgeCarts(ctx context.Context) error {
	n, err := r.carts.PurgeEmpty(ctx, r.now().Add(-r.thresholds.CartPurgeAfter))
	if err != nil {
		return fmt.Errorf("purge carts: %w", err)
	}
	if n > 0 {
		r.log.Info("empty carts purged", zap.Int64("count", n))
	}
	return nil
}

// LoyaltyReminders по одному письму на клиента, чей заказ создан ровно N дней назад.
func (r *Runner) LoyaltyReminders(ctx context.Context) error {
	days := r.thresholds.LoyaltyReminderAfterDays
	if days <= 0 {
		return nil
	}
	y, m, d := r.now().Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, r.now().Location()).AddDate(0, 0, -days)
	to := from.AddDate(0, 0, 1)

	list, err := r.finder.LatestPerUserCreatedBetween(ctx, from, to, loyalty.EarningExcluded)
	if err != nil {
		return fmt.Errorf("list loyalty customers: %w", err)
	}
	sent := 0
	for _, o := range list {
		ok, err := r.orders.SendLoyaltyReminder(ctx, o)
		if err != nil {
			r.log.Error("loyalty reminder failed", zap.String("user_id", o.UserID.String()), zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}
	if sent > 0 {
		r.log.Info("loyalty reminders sent", zap.Int("count", sent))
	}
	return nil
}

// BankSync сверяет выписку с момента прошлой синхронизации.
func (r *Runner) BankSync(ctx context.Context) error {
	if r.bank == nil {
		return nil
	}
	to := r.now()
	from := to.Add(-r.thresholds.BankSyncWindow)
	if r.cursor != nil {
		last, err := r.cursor.LastSync(ctx, JobBankSync)
		if err != nil {
			r.log.Warn("bank sync cursor unavailable", zap.Error(err))
		} else if !last.IsZero() && last.Before(to) {
			from = last
		}
	}

	report, err := r.bank.SyncBankStatement(ctx, nil, from, to)
	if errors.Is(err, service.ErrBankSyncDisabled) {
		r.log.Debug("bank sync disabled")
		return nil
	}
	if err != nil {
		return err
	}
	if r.cursor != nil {
		if err := r.cursor.SetLastSync(ctx, JobBankSync, to); err != nil {
			r.log.Warn("bank sync cursor not saved", zap.Error(err))
		}
	}
	r.log.Info("bank sync completed",
		zap.Int("entries", len(report.Entries)),
		zap.Int("paid", report.Paid),
		zap.Int("skipped", report.Skipped),
	)
	return nil
}
