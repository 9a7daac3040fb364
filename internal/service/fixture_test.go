package service

import (
	"context"
	"testing"
	"time"

	"commerce-service/internal/catalog"
	"commerce-service/internal/invoicing"
	"commerce-service/internal/loyalty"
	"commerce-service/internal/models"
	"commerce-service/internal/orderstate"
	"commerce-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const productTypeBook = "book"

type fixture struct {
	t        *testing.T
	store    *memStore
	repo     *repository.Repository
	catalog  *catalog.Registry
	notifier *recordingNotifier
	settings Settings
	now      time.Time

	user uuid.UUID
	ctx  context.Context

	carts    *cartService
	orders   *orderService
	checkout *checkoutService
	linker   *fakeLinker
}

type fakeLinker struct {
	url   string
	err   error
	calls int
}

func (l *fakeLinker) PaymentURL(context.Context, *models.Order) (string, error) {
	l.calls++
	return l.url, l.err
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		store:    newMemStore(),
		catalog:  catalog.NewRegistry(),
		notifier: &recordingNotifier{},
		now:      time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC),
		user:     uuid.New(),
		linker:   &fakeLinker{url: "https://pay.example.com/redirect"},
	}
	f.repo = f.store.repository()
	f.catalog.Register(productTypeBook, catalog.NewTableHandler(productTypeBook, f.repo.Products))
	f.catalog.Register("gift", catalog.NewStaticHandler(map[string]catalog.Item{
		"card-25": {Title: "Gift card", Price: decimal.RequireFromString("25.00"), Availability: models.AvailabilityDigitalGoods},
	}))
	f.settings = Settings{
		Currency:         "EUR",
		OrderNumberStart: 1000,
		Loyalty: loyalty.Rates{
			PointValue:    decimal.RequireFromString("0.10"),
			PointsPerUnit: decimal.NewFromInt(1),
		},
		PricesIncludeTax: true,
		States:           orderstate.NewPolicy(orderstate.DefaultNotifyStatuses, true),
		OrdersURL:        "https://shop.example.com/orders",
	}
	f.ctx = WithUserID(context.Background(), f.user)

	clock := func() time.Time { return f.now }
	builder := invoicing.NewBuilder(invoicing.Settings{Currency: "EUR"}, nil)
	log := zap.NewNop()
	f.carts = newCartService(f.repo, f.catalog, f.settings, log, clock)
	f.orders = newOrderService(f.repo, builder, f.notifier, f.settings, log, clock)
	f.checkout = newCheckoutService(f.repo, f.catalog, f.orders, f.linker, f.settings, log, clock)
	return f
}

func (f *fixture) admin() context.Context {
	return WithRole(WithUserID(context.Background(), uuid.New()), RoleAdmin)
}

func (f *fixture) book(title, price string, av models.Availability) models.ProductRef {
	f.t.Helper()
	p := &models.Product{Type: productTypeBook, Title: title, Price: decimal.RequireFromString(price), Availability: av}
	if err := f.repo.Products.Create(context.Background(), p); err != nil {
		f.t.Fatalf("create product: %v", err)
	}
	return models.ProductRef{Type: productTypeBook, ID: p.ID.String()}
}

func (f *fixture) shipping(title, fee string, countries ...string) *models.ShippingOption {
	f.t.Helper()
	so := &models.ShippingOption{Title: title, Fee: decimal.RequireFromString(fee), Countries: countries}
	if err := f.repo.ShippingOptions.Create(context.Background(), so); err != nil {
		f.t.Fatalf("create shipping: %v", err)
	}
	return so
}

func (f *fixture) method(title, fee, gateway string) *models.PaymentMethod {
	f.t.Helper()
	pm := &models.PaymentMethod{Title: title, Method: models.PaymentOnline, Gateway: gateway, Fee: decimal.RequireFromString(fee)}
	if err := f.repo.PaymentMethods.Create(context.Background(), pm); err != nil {
		f.t.Fatalf("create payment method: %v", err)
	}
	return pm
}

func (f *fixture) discount(d *models.Discount) *models.Discount {
	f.t.Helper()
	if err := f.repo.Discounts.Create(context.Background(), d); err != nil {
		f.t.Fatalf("create discount: %v", err)
	}
	return d
}

func (f *fixture) must(s *CartSummary, err error) *CartSummary {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("cart operation: %v", err)
	}
	return s
}

// readyCart корзина с книгой за 10.00 x2, доставкой 3.50 и онлайн-оплатой.
func (f *fixture) readyCart() (*models.ShippingOption, *models.PaymentMethod) {
	f.t.Helper()
	ref := f.book("Go in Action", "10.00", models.AvailabilityStock)
	so := f.shipping("Post", "3.50")
	pm := f.method("Card", "0", "globalpayments")
	f.must(f.carts.AddItem(f.ctx, ref, "", 2))
	f.must(f.carts.SetContact(f.ctx, "buyer@example.com", ""))
	f.must(f.carts.SetShipping(f.ctx, so.ID))
	f.must(f.carts.SetPayment(f.ctx, pm.ID))
	return so, pm
}

// paidOrder готовый заказ в заданном статусе, минуя оформление.
func (f *fixture) paidOrder(user uuid.UUID, status models.OrderStatus, total string) *models.Order {
	f.t.Helper()
	o := &models.Order{
		Number:   int64(len(f.store.orders) + 1),
		UserID:   user,
		Status:   status,
		Total:    decimal.RequireFromString(total),
		Currency: "EUR",
		Email:    "buyer@example.com",
	}
	if err := f.repo.Orders.Create(context.Background(), o); err != nil {
		f.t.Fatalf("create order: %v", err)
	}
	return o
}
