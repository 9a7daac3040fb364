package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/producer"
	"commerce-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore хранилище в памяти для сервисных тестов. Транзакция упрощённая:
// при ошибке откатываются только удаление корзины и созданные заказы и счета.
type memStore struct {
	mu sync.Mutex

	carts     map[uuid.UUID]*models.Cart
	orders    map[uuid.UUID]*models.Order
	discounts map[uuid.UUID]*models.Discount
	shipping  map[uuid.UUID]*models.ShippingOption
	methods   map[uuid.UUID]*models.PaymentMethod
	products  map[uuid.UUID]*models.Product
	invoices  map[uuid.UUID][]*models.Invoice
	payments  map[int64]*models.GatewayPayment
	results   []*models.GatewayResult
	bankTxs   map[string]*models.BankTransaction

	failCreateOrder error
	// afterCartLock вызывается один раз после блокирующего чтения корзины
	afterCartLock func()
}

type memTxKey struct{}

type memTx struct{ s *memStore }

func (m memTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*[]func()); ok {
		return fn(ctx)
	}
	undo := &[]func(){}
	if err := fn(context.WithValue(ctx, memTxKey{}, undo)); err != nil {
		m.s.mu.Lock()
		for i := len(*undo) - 1; i >= 0; i-- {
			(*undo)[i]()
		}
		m.s.mu.Unlock()
		return err
	}
	return nil
}

// onRollback вызывается под r.s.mu.
func onRollback(ctx context.Context, fn func()) {
	if undo, ok := ctx.Value(memTxKey{}).(*[]func()); ok {
		*undo = append(*undo, fn)
	}
}

func newMemStore() *memStore {
	return &memStore{
		carts:     map[uuid.UUID]*models.Cart{},
		orders:    map[uuid.UUID]*models.Order{},
		discounts: map[uuid.UUID]*models.Discount{},
		shipping:  map[uuid.UUID]*models.ShippingOption{},
		methods:   map[uuid.UUID]*models.PaymentMethod{},
		products:  map[uuid.UUID]*models.Product{},
		invoices:  map[uuid.UUID][]*models.Invoice{},
		payments:  map[int64]*models.GatewayPayment{},
		bankTxs:   map[string]*models.BankTransaction{},
	}
}

func (s *memStore) repository() *repository.Repository {
	return &repository.Repository{
		Tx:              memTx{s},
		Carts:           memCarts{s},
		Orders:          memOrders{s},
		Discounts:       memDiscounts{s},
		ShippingOptions: memShipping{s},
		PaymentMethods:  memMethods{s},
		Products:        memProducts{s},
		Invoices:        memInvoices{s},
		Gateway:         memGateway{s},
		BankTxs:         memBank{s},
	}
}

func copyCart(c *models.Cart) *models.Cart {
	cp := *c
	cp.Items = append([]models.CartItem(nil), c.Items...)
	return &cp
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.PurchasedItem(nil), o.Items...)
	return &cp
}

type memCarts struct{ s *memStore }

func (r memCarts) GetByUser(_ context.Context, userID uuid.UUID) (*models.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.carts {
		if c.UserID == userID {
			return copyCart(c), nil
		}
	}
	return nil, nil
}

func (r memCarts) GetByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	c, err := r.GetByUser(ctx, userID)
	if hook := r.s.afterCartLock; hook != nil {
		r.s.afterCartLock = nil
		hook()
	}
	return c, err
}

func (r memCarts) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	c, err := r.GetByUser(ctx, userID)
	if err != nil || c != nil {
		return c, err
	}
	r.s.mu.Lock()
	c = &models.Cart{ID: uuid.New(), UserID: userID, CreatedAt: time.Now()}
	r.s.carts[c.ID] = c
	r.s.mu.Unlock()
	return copyCart(c), nil
}

func (r memCarts) Save(_ context.Context, c *models.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.carts[c.ID]
	if !ok {
		return fmt.Errorf("cart %s not found", c.ID)
	}
	cp := *c
	cp.Items = stored.Items
	r.s.carts[c.ID] = &cp
	return nil
}

func (r memCarts) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[id]
	if !ok {
		return repository.ErrCartGone
	}
	delete(r.s.carts, id)
	onRollback(ctx, func() { r.s.carts[id] = c })
	return nil
}

func (r memCarts) AddItem(_ context.Context, cartID uuid.UUID, ref models.ProductRef, option string, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.carts[cartID]
	for i := range c.Items {
		it := &c.Items[i]
		if it.ProductType == ref.Type && it.ProductID == ref.ID && it.Option == option {
			it.Quantity += qty
			return nil
		}
	}
	c.Items = append(c.Items, models.CartItem{
		ID:          uuid.New(),
		CartID:      cartID,
		ProductType: ref.Type,
		ProductID:   ref.ID,
		Option:      option,
		Quantity:    qty,
	})
	return nil
}

func (r memCarts) RemoveItem(_ context.Context, cartID, itemID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.carts[cartID]
	for i := range c.Items {
		if c.Items[i].ID != itemID {
			continue
		}
		if c.Items[i].Quantity > 1 {
			c.Items[i].Quantity--
		} else {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		}
		return true, nil
	}
	return false, nil
}

func (r memCarts) PurgeEmpty(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, c := range r.s.carts {
		if len(c.Items) == 0 && c.CreatedAt.Before(before) {
			delete(r.s.carts, id)
			n++
		}
	}
	return n, nil
}

type memOrders struct{ s *memStore }

func (r memOrders) NextNumber(_ context.Context, start int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	next := start
	for _, o := range r.s.orders {
		if o.Number >= next {
			next = o.Number + 1
		}
	}
	return next, nil
}

func (r memOrders) Create(ctx context.Context, o *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failCreateOrder != nil {
		return r.s.failCreateOrder
	}
	if o.Total.IsNegative() {
		return fmt.Errorf("total must not be negative")
	}
	o.ID = uuid.New()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	for i := range o.Items {
		o.Items[i].ID = uuid.New()
		o.Items[i].OrderID = o.ID
	}
	r.s.orders[o.ID] = copyOrder(o)
	id := o.ID
	onRollback(ctx, func() { delete(r.s.orders, id) })
	return nil
}

func (r memOrders) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o, ok := r.s.orders[id]; ok {
		return copyOrder(o), nil
	}
	return nil, nil
}

func (r memOrders) GetByNumber(_ context.Context, number int64) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.Number == number {
			return copyOrder(o), nil
		}
	}
	return nil, nil
}

func (r memOrders) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Order
	for _, id := range ids {
		if o, ok := r.s.orders[id]; ok {
			out = append(out, copyOrder(o))
		}
	}
	return out, nil
}

func (r memOrders) filter(keep func(*models.Order) bool) []*models.Order {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Order
	for _, o := range r.s.orders {
		if keep(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (r memOrders) List(_ context.Context, f repository.OrderListFilter) ([]*models.Order, int64, error) {
	out := r.filter(func(o *models.Order) bool {
		return (f.UserID == nil || o.UserID == *f.UserID) && (f.Status == nil || o.Status == *f.Status)
	})
	return out, int64(len(out)), nil
}

func (r memOrders) ListByStatus(_ context.Context, status models.OrderStatus) ([]*models.Order, error) {
	return r.filter(func(o *models.Order) bool { return o.Status == status }), nil
}

func (r memOrders) TransitionStatus(_ context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (r memOrders) MarkReminded(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[id].ReminderSent = &at
	return nil
}

func (r memOrders) ListDueForReminder(_ context.Context, before time.Time) ([]*models.Order, error) {
	return r.filter(func(o *models.Order) bool {
		return o.Status == models.OrderStatusAwaitingPayment && o.ReminderSent == nil && o.CreatedAt.Before(before)
	}), nil
}

func (r memOrders) ListUnpaidCreatedBefore(_ context.Context, before time.Time) ([]*models.Order, error) {
	return r.filter(func(o *models.Order) bool {
		return o.Status == models.OrderStatusAwaitingPayment && o.CreatedAt.Before(before)
	}), nil
}

func (r memOrders) LatestPerUserCreatedBetween(_ context.Context, from, to time.Time, exclude []models.OrderStatus) ([]*models.Order, error) {
	latest := map[uuid.UUID]*models.Order{}
	for _, o := range r.filter(func(o *models.Order) bool {
		return !o.CreatedAt.Before(from) && o.CreatedAt.Before(to) && !statusIn(o.Status, exclude)
	}) {
		if cur, ok := latest[o.UserID]; !ok || o.CreatedAt.After(cur.CreatedAt) {
			latest[o.UserID] = o
		}
	}
	out := make([]*models.Order, 0, len(latest))
	for _, o := range latest {
		out = append(out, o)
	}
	return out, nil
}

func (r memOrders) TotalsForUser(_ context.Context, userID uuid.UUID, exclude []models.OrderStatus) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	for _, o := range r.filter(func(o *models.Order) bool { return o.UserID == userID && !statusIn(o.Status, exclude) }) {
		out = append(out, o.Total)
	}
	return out, nil
}

func (r memOrders) LoyaltyPointsSpent(_ context.Context, userID uuid.UUID, exclude []models.OrderStatus) (int, error) {
	n := 0
	for _, o := range r.filter(func(o *models.Order) bool { return o.UserID == userID && !statusIn(o.Status, exclude) }) {
		n += o.LoyaltyPoints
	}
	return n, nil
}

func (r memOrders) CountByDiscount(_ context.Context, discountID uuid.UUID) (int64, error) {
	out := r.filter(func(o *models.Order) bool { return o.DiscountID != nil && *o.DiscountID == discountID })
	return int64(len(out)), nil
}

func statusIn(s models.OrderStatus, list []models.OrderStatus) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

type memDiscounts struct{ s *memStore }

func (r memDiscounts) Create(_ context.Context, d *models.Discount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.s.discounts[d.ID] = d
	return nil
}

func (r memDiscounts) GetByID(_ context.Context, id uuid.UUID) (*models.Discount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.discounts[id], nil
}

func (r memDiscounts) GetByCode(_ context.Context, code string) (*models.Discount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.discounts {
		if d.Code == code {
			return d, nil
		}
	}
	return nil, nil
}

func (r memDiscounts) IsUsed(_ context.Context, id uuid.UUID, exceptCartID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.DiscountID != nil && *o.DiscountID == id {
			return true, nil
		}
	}
	for _, c := range r.s.carts {
		if c.ID != exceptCartID && c.DiscountID != nil && *c.DiscountID == id {
			return true, nil
		}
	}
	return false, nil
}

type memShipping struct{ s *memStore }

func (r memShipping) Create(_ context.Context, o *models.ShippingOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	r.s.shipping[o.ID] = o
	return nil
}

func (r memShipping) GetByID(_ context.Context, id uuid.UUID) (*models.ShippingOption, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.shipping[id], nil
}

func (r memShipping) List(_ context.Context) ([]*models.ShippingOption, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.ShippingOption, 0, len(r.s.shipping))
	for _, o := range r.s.shipping {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

type memMethods struct{ s *memStore }

func (r memMethods) Create(_ context.Context, m *models.PaymentMethod) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	r.s.methods[m.ID] = m
	return nil
}

func (r memMethods) GetByID(_ context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.methods[id], nil
}

func (r memMethods) List(_ context.Context) ([]*models.PaymentMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.PaymentMethod, 0, len(r.s.methods))
	for _, m := range r.s.methods {
		out = append(out, m)
	}
	return out, nil
}

type memProducts struct{ s *memStore }

func (r memProducts) Create(_ context.Context, p *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.s.products[p.ID] = p
	return nil
}

func (r memProducts) GetByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.products[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

type memInvoices struct{ s *memStore }

func (r memInvoices) CreateForOrder(ctx context.Context, orderID uuid.UUID, inv *models.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, list := range r.s.invoices {
		for _, i := range list {
			if i.Type == inv.Type {
				n++
			}
		}
	}
	inv.ID = uuid.New()
	inv.Number = fmt.Sprintf("%s-%d-%05d", inv.Type, inv.IssueDate.Year(), n+1)
	prev := r.s.invoices[orderID]
	r.s.invoices[orderID] = append(prev, inv)
	onRollback(ctx, func() { r.s.invoices[orderID] = prev })
	return nil
}

func (r memInvoices) HasForOrder(_ context.Context, orderID uuid.UUID, typ models.InvoiceType) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range r.s.invoices[orderID] {
		if i.Type == typ {
			return true, nil
		}
	}
	return false, nil
}

func (r memInvoices) ListForOrder(_ context.Context, orderID uuid.UUID) ([]*models.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]*models.Invoice(nil), r.s.invoices[orderID]...), nil
}

func (r memInvoices) CancelPendingForOrder(_ context.Context, orderID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, i := range r.s.invoices[orderID] {
		if i.Type != models.InvoiceTypeInvoice {
			continue
		}
		switch i.Status {
		case models.InvoiceStatusNew, models.InvoiceStatusSent, models.InvoiceStatusReturned:
			i.Status = models.InvoiceStatusCanceled
			n++
		}
	}
	return n, nil
}

type memGateway struct{ s *memStore }

func (r memGateway) CreatePayment(_ context.Context, p *models.GatewayPayment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = int64(len(r.s.payments) + 1)
	r.s.payments[p.ID] = p
	return nil
}

func (r memGateway) GetPayment(_ context.Context, id int64) (*models.GatewayPayment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.payments[id], nil
}

func (r memGateway) SetPaymentStatus(_ context.Context, id int64, status models.GatewayPaymentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.payments[id].Status = status
	return nil
}

func (r memGateway) GetOrCreateResult(_ context.Context, res *models.GatewayResult) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.results {
		if x.PaymentID == res.PaymentID && x.Digest == res.Digest && x.PRCode == res.PRCode {
			*res = *x
			return false, nil
		}
	}
	r.s.results = append(r.s.results, res)
	return true, nil
}

func (r memGateway) CountResults(_ context.Context, paymentID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, x := range r.s.results {
		if x.PaymentID == paymentID {
			n++
		}
	}
	return n, nil
}

type memBank struct{ s *memStore }

func (r memBank) Seen(_ context.Context, txID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.bankTxs[txID]
	return ok && t.OrderID != nil, nil
}

func (r memBank) Record(_ context.Context, t *models.BankTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.bankTxs[t.TransactionID] = t
	return nil
}

// recordingNotifier запоминает отправленные уведомления.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []producer.Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, _ string, msg producer.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.Template)
	}
	return out
}
