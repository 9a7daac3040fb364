package catalog

import (
	"context"

	"commerce-service/internal/models"

	"github.com/google/uuid"
)

// ProductSource чтение строк таблицы products.
type ProductSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// TableHandler товары одного типа из таблицы products.
type TableHandler struct {
	productType string
	src         ProductSource
}

func NewTableHandler(productType string, src ProductSource) *TableHandler {
	return &TableHandler{productType: productType, src: src}
}

func (h *TableHandler) Lookup(ctx context.Context, id string) (*Item, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	p, err := h.src.GetByID(ctx, pid)
	if err != nil || p == nil {
		return nil, err
	}
	if p.Type != h.productType {
		return nil, nil
	}
	return &Item{
		Title:        p.Title,
		Price:        p.Price,
		Availability: p.Availability,
	}, nil
}
