package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"commerce-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderListFilter struct {
	UserID *uuid.UUID
	Status *models.OrderStatus
	Limit  int
	Offset int
}

type OrderRepo interface {
	NextNumber(ctx context.Context, start int64) (int64, error)
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, number int64) (*models.Order, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Order, error)
	List(ctx context.Context, f OrderListFilter) ([]*models.Order, int64, error)
	ListByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error
	ListDueForReminder(ctx context.Context, createdBefore time.Time) ([]*models.Order, error)
	ListUnpaidCreatedBefore(ctx context.Context, createdBefore time.Time) ([]*models.Order, error)
	LatestPerUserCreatedBetween(ctx context.Context, from, to time.Time, exclude []models.OrderStatus) ([]*models.Order, error)
	TotalsForUser(ctx context.Context, userID uuid.UUID, exclude []models.OrderStatus) ([]decimal.Decimal, error)
	LoyaltyPointsSpent(ctx context.Context, userID uuid.UUID, exclude []models.OrderStatus) (int, error)
	CountByDiscount(ctx context.Context, discountID uuid.UUID) (int64, error)
}

type orderRepo struct{ db *gorm.DB }

func NewOrderRepo(db *gorm.DB) OrderRepo { return &orderRepo{db: db} }

// NextNumber следующий номер заказа. Вызывать только внутри транзакции, которая вставит заказ:
// эксклюзивная блокировка таблицы держится до коммита.
func (r *orderRepo) NextNumber(ctx context.Context, start int64) (int64, error) {
	db := conn(ctx, r.db)
	if err := db.Exec("LOCK TABLE orders IN EXCLUSIVE MODE").Error; err != nil {
		return 0, err
	}

	var last sql.NullInt64
	if err := db.Model(&models.Order{}).Select("MAX(number)").Scan(&last).Error; err != nil {
		return 0, err
	}

	next := start
	if last.Valid && last.Int64 >= start {
		next = last.Int64 + 1
	}

	for {
		var cnt int64
		if err := db.Model(&models.Order{}).Where("number = ?", next).Count(&cnt).Error; err != nil {
			return 0, err
		}
		if cnt == 0 {
			return next, nil
		}
		next++
	}
}

func (r *orderRepo) Create(ctx context.Context, o *models.Order) error {
	return conn(ctx, r.db).Create(o).Error
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var ord models.Order
	err := conn(ctx, r.db).Preload("Items").First(&ord, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &ord, err
}

func (r *orderRepo) GetByNumber(ctx context.Context, number int64) (*models.Order, error) {
	var ord models.Order
	err := conn(ctx, r.db).Preload("Items").First(&ord, "number = ?", number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &ord, err
}

func (r *orderRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Order, error) {
	var list []*models.Order
	if len(ids) == 0 {
		return list, nil
	}
	err := conn(ctx, r.db).Preload("Items").Where("id IN ?", ids).Order("number").Find(&list).Error
	return list, err
}

func (r *orderRepo) List(ctx context.Context, f OrderListFilter) ([]*models.Order, int64, error) {
	q := conn(ctx, r.db).Model(&models.Order{})

	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var list []*models.Order
	err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Preload("Items").Find(&list).Error
	return list, total, err
}

// ListByStatus без пагинации, для фоновых сверок.
func (r *orderRepo) ListByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error) {
	var list []*models.Order
	err := conn(ctx, r.db).Where("status = ?", status).Order("number").Find(&list).Error
	return list, err
}

// TransitionStatus условное обновление: статус меняется, только если заказ всё ещё в from.
func (r *orderRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error) {
	res := conn(ctx, r.db).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *orderRepo) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	return conn(ctx, r.db).Model(&models.Order{}).Where("id = ?", id).Update("reminder_sent", at).Error
}

func (r *orderRepo) ListDueForReminder(ctx context.Context, createdBefore time.Time) ([]*models.Order, error) {
	var list []*models.Order
	err := conn(ctx, r.db).
		Where("status = ? AND reminder_sent IS NULL AND created_at < ?", models.OrderStatusAwaitingPayment, createdBefore).
		Order("created_at").
		Find(&list).Error
	return list, err
}

func (r *orderRepo) ListUnpaidCreatedBefore(ctx context.Context, createdBefore time.Time) ([]*models.Order, error) {
	var list []*models.Order
	err := conn(ctx, r.db).
		Where("status = ? AND created_at < ?", models.OrderStatusAwaitingPayment, createdBefore).
		Order("created_at").
		Find(&list).Error
	return list, err
}

// LatestPerUserCreatedBetween последний заказ каждого клиента за период: из него берутся контакты.
func (r *orderRepo) LatestPerUserCreatedBetween(ctx context.Context, from, to time.Time, exclude []models.OrderStatus) ([]*models.Order, error) {
	var out []*models.Order
	err := conn(ctx, r.db).
		Raw(`SELECT DISTINCT ON (user_id) * FROM orders
			WHERE created_at >= ? AND created_at < ? AND status NOT IN ?
			ORDER BY user_id, created_at DESC`, from, to, exclude).
		Scan(&out).Error
	return out, err
}

func (r *orderRepo) TotalsForUser(ctx context.Context, userID uuid.UUID, exclude []models.OrderStatus) ([]decimal.Decimal, error) {
	var totals []decimal.Decimal
	err := conn(ctx, r.db).Model(&models.Order{}).
		Where("user_id = ? AND status NOT IN ?", userID, exclude).
		Pluck("total", &totals).Error
	return totals, err
}

func (r *orderRepo) LoyaltyPointsSpent(ctx context.Context, userID uuid.UUID, exclude []models.OrderStatus) (int, error) {
	var sum sql.NullInt64
	err := conn(ctx, r.db).Model(&models.Order{}).
		Select("COALESCE(SUM(loyalty_points), 0)").
		Where("user_id = ? AND status NOT IN ?", userID, exclude).
		Scan(&sum).Error
	return int(sum.Int64), err
}

func (r *orderRepo) CountByDiscount(ctx context.Context, discountID uuid.UUID) (int64, error) {
	var cnt int64
	err := conn(ctx, r.db).Model(&models.Order{}).Where("discount_id = ?", discountID).Count(&cnt).Error
	return cnt, err
}
