package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"commerce-service/internal/models"

	"github.com/shopspring/decimal"
)

var ErrUnknownType = errors.New("unknown product type")

// DeletedTitle подставляется вместо названия товара, которого больше нет в каталоге.
const DeletedTitle = "(deleted product)"

// Item разрешённый товар: всё, что нужно корзине для цены и доставки.
type Item struct {
	Ref          models.ProductRef
	Title        string
	Price        decimal.Decimal
	Availability models.Availability
}

func (i *Item) Purchasable() bool { return i.Availability != models.AvailabilitySaleEnded }

func (i *Item) Digital() bool { return i.Availability == models.AvailabilityDigitalGoods }

// Handler поставщик товаров одного типа. Отсутствующий товар: (nil, nil).
type Handler interface {
	Lookup(ctx context.Context, id string) (*Item, error)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Register(productType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[productType] = h
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

func (r *Registry) Resolve(ctx context.Context, ref models.ProductRef) (*Item, error) {
	r.mu.RLock()
	h, ok := r.handlers[ref.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, ref.Type)
	}
	it, err := h.Lookup(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	if it != nil {
		it.Ref = ref
	}
	return it, nil
}

// Availability резолвер доступности; неизвестный или удалённый товар считается снятым с продажи.
func (r *Registry) Availability(ctx context.Context, ref models.ProductRef) (models.Availability, error) {
	it, err := r.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if it == nil {
		return models.AvailabilitySaleEnded, nil
	}
	return it.Availability, nil
}

// StaticHandler фиксированный набор товаров в памяти (подарочные карты, услуги).
type StaticHandler struct {
	items map[string]Item
}

func NewStaticHandler(items map[string]Item) *StaticHandler {
	return &StaticHandler{items: items}
}

func (h *StaticHandler) Lookup(_ context.Context, id string) (*Item, error) {
	it, ok := h.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}
