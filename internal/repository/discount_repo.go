package repository

import (
	"context"
	"errors"

	"commerce-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DiscountRepo interface {
	Create(ctx context.Context, d *models.Discount) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Discount, error)
	GetByCode(ctx context.Context, code string) (*models.Discount, error)
	// IsUsed привязан ли код к какому-либо заказу или чужой корзине
	IsUsed(ctx context.Context, id uuid.UUID, exceptCartID uuid.UUID) (bool, error)
}

type discountRepo struct{ db *gorm.DB }

func NewDiscountRepo(db *gorm.DB) DiscountRepo { return &discountRepo{db: db} }

func (r *discountRepo) Create(ctx context.Context, d *models.Discount) error {
	return conn(ctx, r.db).Create(d).Error
}

func (r *discountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Discount, error) {
	var d models.Discount
	err := conn(ctx, r.db).Preload("Products").First(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &d, err
}

func (r *discountRepo) GetByCode(ctx context.Context, code string) (*models.Discount, error) {
	var d models.Discount
	err := conn(ctx, r.db).Preload("Products").First(&d, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &d, err
}

func (r *discountRepo) IsUsed(ctx context.Context, id uuid.UUID, exceptCartID uuid.UUID) (bool, error) {
	var used bool
	err := conn(ctx, r.db).Raw(`
SELECT EXISTS (SELECT 1 FROM orders WHERE discount_id = @id)
    OR EXISTS (SELECT 1 FROM carts WHERE discount_id = @id AND id <> @cart)`,
		map[string]any{"id": id, "cart": exceptCartID}).Scan(&used).Error
	return used, err
}
