package repository

import (
	"context"
	"errors"
	"time"

	"commerce-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCartGone корзина уже удалена: оформлена другим запросом или вычищена.
var ErrCartGone = errors.New("cart already deleted")

type CartRepo interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	// GetByUserForUpdate блокирует строку корзины до конца транзакции.
	GetByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Save(ctx context.Context, c *models.Cart) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddItem(ctx context.Context, cartID uuid.UUID, ref models.ProductRef, option string, qty int) error
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error)
	PurgeEmpty(ctx context.Context, createdBefore time.Time) (int64, error)
}

type cartRepo struct{ db *gorm.DB }

func NewCartRepo(db *gorm.DB) CartRepo { return &cartRepo{db: db} }

func (r *cartRepo) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return r.getByUser(conn(ctx, r.db), userID)
}

func (r *cartRepo) GetByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return r.getByUser(conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

func (r *cartRepo) getByUser(db *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	var c models.Cart
	err := db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		First(&c, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &c, err
}

// GetOrCreate корзина создаётся лениво; гонка двух запросов решается уникальным user_id.
func (r *cartRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	c := &models.Cart{UserID: userID}
	if err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(c).Error; err != nil {
		return nil, err
	}
	return r.GetByUser(ctx, userID)
}

func (r *cartRepo) Save(ctx context.Context, c *models.Cart) error {
	return conn(ctx, r.db).Omit(clause.Associations).Save(c).Error
}

func (r *cartRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := conn(ctx, r.db).Delete(&models.Cart{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrCartGone
	}
	return nil
}

// AddItem слияние по (товар, опция): существующая строка увеличивает количество.
func (r *cartRepo) AddItem(ctx context.Context, cartID uuid.UUID, ref models.ProductRef, option string, qty int) error {
	item := &models.CartItem{
		CartID:      cartID,
		ProductType: ref.Type,
		ProductID:   ref.ID,
		Option:      option,
		Quantity:    qty,
	}
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_type"}, {Name: "product_id"}, {Name: "option"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":   gorm.Expr("cart_items.quantity + EXCLUDED.quantity"),
			"updated_at": gorm.Expr("now()"),
		}),
	}).Create(item).Error
}

// RemoveItem уменьшает количество на 1, строку с последней единицей удаляет.
func (r *cartRepo) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error) {
	db := conn(ctx, r.db)
	res := db.Model(&models.CartItem{}).
		Where("id = ? AND cart_id = ? AND quantity > 1", itemID, cartID).
		UpdateColumn("quantity", gorm.Expr("quantity - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	res = db.Where("id = ? AND cart_id = ?", itemID, cartID).Delete(&models.CartItem{})
	return res.RowsAffected > 0, res.Error
}

func (r *cartRepo) PurgeEmpty(ctx context.Context, createdBefore time.Time) (int64, error) {
	res := conn(ctx, r.db).Exec(`
DELETE FROM carts
WHERE created_at < ?
  AND NOT EXISTS (SELECT 1 FROM cart_items WHERE cart_items.cart_id = carts.id)`, createdBefore)
	return res.RowsAffected, res.Error
}
