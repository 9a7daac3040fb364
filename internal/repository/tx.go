package repository

import (
	"context"

	"gorm.io/gorm"
)

// TxManager абстракция транзакции; транзакция едет в context.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

type gormTx struct{ db *gorm.DB }

func NewTxManager(db *gorm.DB) TxManager { return &gormTx{db: db} }

func (m *gormTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// вложенный вызов присоединяется к внешней транзакции
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn возвращает транзакцию из ctx либо обычное соединение.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
