package repository

import (
	"context"
	"errors"

	"commerce-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ShippingOptionRepo interface {
	Create(ctx context.Context, o *models.ShippingOption) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ShippingOption, error)
	List(ctx context.Context) ([]*models.ShippingOption, error)
}

type PaymentMethodRepo interface {
	Create(ctx context.Context, m *models.PaymentMethod) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error)
	List(ctx context.Context) ([]*models.PaymentMethod, error)
}

type ProductRepo interface {
	Create(ctx context.Context, p *models.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type shippingOptionRepo struct{ db *gorm.DB }

func NewShippingOptionRepo(db *gorm.DB) ShippingOptionRepo { return &shippingOptionRepo{db: db} }

func (r *shippingOptionRepo) Create(ctx context.Context, o *models.ShippingOption) error {
	return conn(ctx, r.db).Create(o).Error
}

func (r *shippingOptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ShippingOption, error) {
	var o models.ShippingOption
	err := conn(ctx, r.db).First(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &o, err
}

func (r *shippingOptionRepo) List(ctx context.Context) ([]*models.ShippingOption, error) {
	var list []*models.ShippingOption
	err := conn(ctx, r.db).Order("fee, title").Find(&list).Error
	return list, err
}

type paymentMethodRepo struct{ db *gorm.DB }

func NewPaymentMethodRepo(db *gorm.DB) PaymentMethodRepo { return &paymentMethodRepo{db: db} }

func (r *paymentMethodRepo) Create(ctx context.Context, m *models.PaymentMethod) error {
	return conn(ctx, r.db).Create(m).Error
}

func (r *paymentMethodRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	err := conn(ctx, r.db).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &m, err
}

func (r *paymentMethodRepo) List(ctx context.Context) ([]*models.PaymentMethod, error) {
	var list []*models.PaymentMethod
	err := conn(ctx, r.db).Order("fee, title").Find(&list).Error
	return list, err
}

type productRepo struct{ db *gorm.DB }

func NewProductRepo(db *gorm.DB) ProductRepo { return &productRepo{db: db} }

func (r *productRepo) Create(ctx context.Context, p *models.Product) error {
	return conn(ctx, r.db).Create(p).Error
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := conn(ctx, r.db).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}
