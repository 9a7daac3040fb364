package repository

import (
	"context"
	"fmt"
	"time"

	"commerce-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvoiceRepo interface {
	CreateForOrder(ctx context.Context, orderID uuid.UUID, inv *models.Invoice) error
	HasForOrder(ctx context.Context, orderID uuid.UUID, typ models.InvoiceType) (bool, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]*models.Invoice, error)
	CancelPendingForOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
}

type invoiceRepo struct{ db *gorm.DB }

func NewInvoiceRepo(db *gorm.DB) InvoiceRepo { return &invoiceRepo{db: db} }

var invoicePrefix = map[models.InvoiceType]string{
	models.InvoiceTypeInvoice:  "INV",
	models.InvoiceTypeProforma: "PRO",
}

// CreateForOrder присваивает номер вида INV-2026-00001 и связывает документ с заказом.
// Нумерация сериализуется блокировкой таблицы, поэтому вызывать внутри транзакции.
func (r *invoiceRepo) CreateForOrder(ctx context.Context, orderID uuid.UUID, inv *models.Invoice) error {
	db := conn(ctx, r.db)
	if err := db.Exec("LOCK TABLE invoices IN EXCLUSIVE MODE").Error; err != nil {
		return err
	}

	year := inv.IssueDate.Year()
	yearStart := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	var cnt int64
	if err := db.Model(&models.Invoice{}).
		Where("type = ? AND issue_date >= ? AND issue_date < ?", inv.Type, yearStart, yearStart.AddDate(1, 0, 0)).
		Count(&cnt).Error; err != nil {
		return err
	}

	for seq := cnt + 1; ; seq++ {
		number := fmt.Sprintf("%s-%d-%05d", invoicePrefix[inv.Type], year, seq)
		var exists int64
		if err := db.Model(&models.Invoice{}).Where("number = ?", number).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			inv.Number = number
			break
		}
	}

	if err := db.Create(inv).Error; err != nil {
		return err
	}
	return db.Create(&models.OrderInvoice{OrderID: orderID, InvoiceID: inv.ID}).Error
}

func (r *invoiceRepo) HasForOrder(ctx context.Context, orderID uuid.UUID, typ models.InvoiceType) (bool, error) {
	var cnt int64
	err := conn(ctx, r.db).Model(&models.Invoice{}).
		Joins("JOIN order_invoices oi ON oi.invoice_id = invoices.id").
		Where("oi.order_id = ? AND invoices.type = ?", orderID, typ).
		Count(&cnt).Error
	return cnt > 0, err
}

func (r *invoiceRepo) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]*models.Invoice, error) {
	var list []*models.Invoice
	err := conn(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Joins("JOIN order_invoices oi ON oi.invoice_id = invoices.id").
		Where("oi.order_id = ?", orderID).
		Order("invoices.created_at").
		Find(&list).Error
	return list, err
}

// CancelPendingForOrder отменяет неоплаченные счета заказа (NEW, SENT, RETURNED).
func (r *invoiceRepo) CancelPendingForOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	res := conn(ctx, r.db).Exec(`
UPDATE invoices SET status = ?
WHERE type = ?
  AND status IN ?
  AND id IN (SELECT invoice_id FROM order_invoices WHERE order_id = ?)`,
		models.InvoiceStatusCanceled,
		models.InvoiceTypeInvoice,
		[]models.InvoiceStatus{models.InvoiceStatusNew, models.InvoiceStatusSent, models.InvoiceStatusReturned},
		orderID,
	)
	return res.RowsAffected, res.Error
}
