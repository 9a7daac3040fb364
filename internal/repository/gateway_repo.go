package repository

import (
	"context"
	"errors"

	"commerce-service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GatewayRepo interface {
	CreatePayment(ctx context.Context, p *models.GatewayPayment) error
	GetPayment(ctx context.Context, id int64) (*models.GatewayPayment, error)
	SetPaymentStatus(ctx context.Context, id int64, status models.GatewayPaymentStatus) error
	// GetOrCreateResult идемпотентная запись по естественному ключу; при повторе r заполняется
	// сохранённой строкой и created = false.
	GetOrCreateResult(ctx context.Context, r *models.GatewayResult) (created bool, err error)
	CountResults(ctx context.Context, paymentID int64) (int64, error)
}

type gatewayRepo struct{ db *gorm.DB }

func NewGatewayRepo(db *gorm.DB) GatewayRepo { return &gatewayRepo{db: db} }

func (r *gatewayRepo) CreatePayment(ctx context.Context, p *models.GatewayPayment) error {
	return conn(ctx, r.db).Create(p).Error
}

func (r *gatewayRepo) GetPayment(ctx context.Context, id int64) (*models.GatewayPayment, error) {
	var p models.GatewayPayment
	err := conn(ctx, r.db).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *gatewayRepo) SetPaymentStatus(ctx context.Context, id int64, status models.GatewayPaymentStatus) error {
	return conn(ctx, r.db).Model(&models.GatewayPayment{}).Where("id = ?", id).Update("status", status).Error
}

func (r *gatewayRepo) GetOrCreateResult(ctx context.Context, res *models.GatewayResult) (bool, error) {
	db := conn(ctx, r.db)
	tx := db.Clauses(clause.OnConflict{DoNothing: true}).Create(res)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected > 0 {
		return true, nil
	}
	err := db.Where(
		"payment_id = ? AND operation = ? AND order_number = ? AND merchant_order_number = ? AND prcode = ? AND srcode = ? AND digest = ?",
		res.PaymentID, res.Operation, res.OrderNumber, res.MerchantOrderNumber, res.PRCode, res.SRCode, res.Digest,
	).First(res).Error
	return false, err
}

func (r *gatewayRepo) CountResults(ctx context.Context, paymentID int64) (int64, error) {
	var cnt int64
	err := conn(ctx, r.db).Model(&models.GatewayResult{}).Where("payment_id = ?", paymentID).Count(&cnt).Error
	return cnt, err
}
