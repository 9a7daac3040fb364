// Package gateway defines the contract of payment gateways and a registry
// that maps a payment method's gateway key to its implementation.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"commerce-service/internal/models"

	"github.com/google/uuid"
)

var (
	ErrUnknownGateway = errors.New("unknown payment gateway")
	ErrNotSupported   = errors.New("operation not supported by gateway")
	ErrInvalidPayload = errors.New("malformed gateway callback")
)

// Callback сырые данные обратного вызова шлюза.
type Callback struct {
	// OrderID из пути возврата, если шлюз его передаёт; иначе uuid.Nil
	OrderID uuid.UUID
	Params  url.Values
	Header  http.Header
	Body    []byte
}

// Result ответ обработки колбэка для клиента.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Button struct {
	Label  string            `json:"label"`
	URL    string            `json:"url"`
	Method string            `json:"method"`
	Fields map[string]string `json:"fields,omitempty"`
}

type InfoLine struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Information struct {
	Title string     `json:"title"`
	Lines []InfoLine `json:"lines"`
}

type PaymentGateway interface {
	Key() string
	// PaymentURL может создать запись ожидающего платежа на стороне шлюза.
	PaymentURL(ctx context.Context, o *models.Order) (string, error)
	RenderButton(ctx context.Context, o *models.Order) (*Button, error)
	RenderInformation(o *models.Order) *Information
	HandleResult(ctx context.Context, cb Callback) (Result, error)
}

// Reconciler переводит заказ в оплаченный условным обновлением.
// false означает, что заказ уже ушёл из AWAITING_PAYMENT.
type Reconciler interface {
	MarkPaid(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// OrderLookup чтение заказов без проверки владельца.
type OrderLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, number int64) (*models.Order, error)
}

type Registry struct {
	mu       sync.RWMutex
	gateways map[string]PaymentGateway
}

func NewRegistry(gws ...PaymentGateway) *Registry {
	r := &Registry{gateways: make(map[string]PaymentGateway, len(gws))}
	for _, g := range gws {
		r.Register(g)
	}
	return r
}

func (r *Registry) Register(g PaymentGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Key()] = g
}

func (r *Registry) Get(key string) (PaymentGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, key)
	}
	return g, nil
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.gateways))
	for k := range r.gateways {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
