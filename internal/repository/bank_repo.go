package repository

import (
	"context"

	"commerce-service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BankTransactionRepo interface {
	Seen(ctx context.Context, transactionID string) (bool, error)
	Record(ctx context.Context, t *models.BankTransaction) error
}

type bankTransactionRepo struct{ db *gorm.DB }

func NewBankTransactionRepo(db *gorm.DB) BankTransactionRepo { return &bankTransactionRepo{db: db} }

func (r *bankTransactionRepo) Seen(ctx context.Context, transactionID string) (bool, error) {
	var cnt int64
	err := conn(ctx, r.db).Model(&models.BankTransaction{}).
		Where("transaction_id = ? AND order_id IS NOT NULL", transactionID).
		Count(&cnt).Error
	return cnt > 0, err
}

// Record повторная запись той же транзакции обновляет результат сопоставления.
func (r *bankTransactionRepo) Record(ctx context.Context, t *models.BankTransaction) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"order_id", "error"}),
	}).Create(t).Error
}
