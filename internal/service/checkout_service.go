package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-service/internal/catalog"
	"commerce-service/internal/discount"
	"commerce-service/internal/metrics"
	"commerce-service/internal/models"
	"commerce-service/internal/orderstate"
	"commerce-service/internal/pricing"
	"commerce-service/internal/repository"

	"go.uber.org/zap"
)

// PaymentLinker адрес, куда отправить клиента для оплаты созданного заказа.
type PaymentLinker interface {
	PaymentURL(ctx context.Context, o *models.Order) (string, error)
}

type CheckoutResult struct {
	Order *models.Order `json:"order"`
	// RedirectURL пуст, если оплата онлайн не требуется или шлюз недоступен
	RedirectURL string `json:"redirect_url,omitempty"`
	Confirmed   bool   `json:"confirmed"`
}

type CheckoutService interface {
	Checkout(ctx context.Context) (*CheckoutResult, error)
}

type checkoutService struct {
	repo     *repository.Repository
	pricer   *pricer
	orders   *orderService
	payments PaymentLinker
	log      *zap.Logger
}

func NewCheckoutService(repo *repository.Repository, reg *catalog.Registry, orders OrderService, payments PaymentLinker, settings Settings, log *zap.Logger) CheckoutService {
	svc, ok := orders.(*orderService)
	if !ok {
		panic("checkout requires the order service from NewOrderService")
	}
	return newCheckoutService(repo, reg, svc, payments, settings, log, time.Now)
}

func newCheckoutService(repo *repository.Repository, reg *catalog.Registry, orders *orderService, payments PaymentLinker, settings Settings, log *zap.Logger, now func() time.Time) *checkoutService {
	return &checkoutService{
		repo:     repo,
		pricer:   &pricer{repo: repo, catalog: reg, settings: settings, now: now},
		orders:   orders,
		payments: payments,
		log:      log,
	}
}

// Checkout превращает корзину в заказ. Номер, заказ, удаление корзины и
// начальные документы выполняются в одной транзакции; письма и ссылка на оплату после коммита.
func (s *checkoutService) Checkout(ctx context.Context) (*CheckoutResult, error) {
	uid, _, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	lang := LanguageFromContext(ctx)

	var (
		order    *models.Order
		deferred []orderstate.Effect
		method   *models.PaymentMethod
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		// блокировка строки: параллельный checkout той же корзины ждёт коммита и корзину уже не находит
		cart, err := s.repo.Carts.GetByUserForUpdate(ctx, uid)
		if err != nil {
			return err
		}
		if cart == nil || len(cart.Items) == 0 {
			return ErrCartNotFound
		}
		pc, err := s.pricer.price(ctx, cart)
		if err != nil {
			return err
		}
		if !pc.canBeFinished() {
			return ErrCartNotFinishable
		}
		if pc.Discount != nil && pc.Discount.Usage == models.DiscountUsageOneTime {
			used, err := s.repo.Discounts.IsUsed(ctx, pc.Discount.ID, cart.ID)
			if err != nil {
				return err
			}
			if used {
				return discount.ErrUsed
			}
		}

		// корзина забирается до вставки заказа: удалить её может только одна транзакция
		if err := s.repo.Carts.Delete(ctx, cart.ID); err != nil {
			if errors.Is(err, repository.ErrCartGone) {
				return ErrCartNotFound
			}
			return fmt.Errorf("delete cart: %w", err)
		}

		number, err := s.repo.Orders.NextNumber(ctx, s.pricer.settings.numberStart())
		if err != nil {
			return fmt.Errorf("next number: %w", err)
		}
		order = buildOrder(pc, number, lang, s.pricer.settings.Currency)
		if err := s.repo.Orders.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		var inTx []orderstate.Effect
		inTx, deferred = orderstate.Split(orderstate.Plan("", order.Status, orderstate.Facts{}, s.orders.settings.States))
		if err := s.orders.applyEffects(ctx, order, inTx); err != nil {
			return err
		}
		method = pc.Payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreatedTotal.WithLabelValues(string(order.Status)).Inc()
	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.Int64("number", order.Number),
		zap.String("total", order.Total.String()),
	)

	s.orders.dispatch(ctx, order, deferred)
	if err := s.orders.notify(ctx, order, TemplateOrderCreated, fmt.Sprintf("Order %d", order.Number), nil); err != nil {
		s.log.Warn("order created notification failed", zap.String("order_id", order.ID.String()), zap.Error(err))
	}

	res := &CheckoutResult{Order: order}
	if order.Status != models.OrderStatusAwaitingPayment || method == nil || method.Gateway == "" || s.payments == nil {
		res.Confirmed = true
		return res, nil
	}
	url, err := s.payments.PaymentURL(ctx, order)
	if err != nil {
		// заказ уже создан, ссылку можно получить позже
		s.log.Warn("payment url failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		res.Confirmed = true
		return res, nil
	}
	res.RedirectURL = url
	return res, nil
}

func buildOrder(pc *pricedCart, number int64, lang, currency string) *models.Order {
	c := pc.Cart
	b := pc.Breakdown
	status := models.OrderStatusAwaitingPayment
	if b.Total.IsZero() {
		status = models.OrderStatusPending
	}
	o := &models.Order{
		Number:           number,
		UserID:           c.UserID,
		Status:           status,
		Language:         lang,
		Delivery:         c.Delivery,
		Billing:          c.Billing,
		Email:            c.Email,
		Phone:            c.Phone,
		ShippingOptionID: c.ShippingOptionID,
		ShippingFee:      b.ShippingFee,
		PaymentMethodID:  c.PaymentMethodID,
		PaymentFee:       b.PaymentFee,
		DiscountID:       c.DiscountID,
		LoyaltyPoints:    pc.Points,
		ItemsSubtotal:    b.ItemsSubtotal,
		DiscountAmount:   b.DiscountAmount,
		LoyaltyCredit:    b.LoyaltyCredit,
		Subtotal:         b.Subtotal,
		Tax:              b.Tax,
		Total:            b.Total,
		Currency:         currency,
	}
	terms := discount.Terms(pc.Discount)
	for _, l := range pc.Lines {
		pl := pricing.Line{Ref: l.Cart.Ref(), Quantity: l.Cart.Quantity, UnitPrice: l.Item.Price}
		o.Items = append(o.Items, models.PurchasedItem{
			ProductType: l.Cart.ProductType,
			ProductID:   l.Cart.ProductID,
			Option:      l.Cart.Option,
			Title:       l.Item.Title,
			Quantity:    l.Cart.Quantity,
			Price:       pricing.UnitPrice(pl, terms),
		})
	}
	return o
}
