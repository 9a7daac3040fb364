package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerce-service/internal/catalog"
	"commerce-service/internal/discount"
	"commerce-service/internal/models"
	"commerce-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CartService interface {
	Get(ctx context.Context) (*CartSummary, error)
	AddItem(ctx context.Context, ref models.ProductRef, option string, qty int) (*CartSummary, error)
	RemoveItem(ctx context.Context, itemID uuid.UUID) (*CartSummary, error)
	SetDelivery(ctx context.Context, addr models.Address) (*CartSummary, error)
	SetBilling(ctx context.Context, billing models.Billing) (*CartSummary, error)
	SetContact(ctx context.Context, email, phone string) (*CartSummary, error)
	SetShipping(ctx context.Context, optionID uuid.UUID) (*CartSummary, error)
	SetPayment(ctx context.Context, methodID uuid.UUID) (*CartSummary, error)
	ApplyDiscount(ctx context.Context, code string) (*CartSummary, error)
	UnapplyDiscount(ctx context.Context) (*CartSummary, error)
	SetLoyaltyPoints(ctx context.Context, points int) (*CartSummary, error)
}

type cartService struct {
	repo    *repository.Repository
	catalog *catalog.Registry
	pricer  *pricer
	log     *zap.Logger
	now     func() time.Time
}

func NewCartService(repo *repository.Repository, reg *catalog.Registry, settings Settings, log *zap.Logger) CartService {
	return newCartService(repo, reg, settings, log, time.Now)
}

func newCartService(repo *repository.Repository, reg *catalog.Registry, settings Settings, log *zap.Logger, now func() time.Time) *cartService {
	return &cartService{
		repo:    repo,
		catalog: reg,
		pricer:  &pricer{repo: repo, catalog: reg, settings: settings, now: now},
		log:     log,
		now:     now,
	}
}

func (s *cartService) Get(ctx context.Context) (*CartSummary, error) {
	uid, _, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	var out *CartSummary
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		cart, err := s.repo.Carts.GetByUser(ctx, uid)
		if err != nil {
			return err
		}
		if cart == nil {
			out = emptySummary(s.pricer.settings.Currency)
			return nil
		}
		out, err = s.settle(ctx, cart)
		return err
	})
	return out, err
}

func (s *cartService) AddItem(ctx context.Context, ref models.ProductRef, option string, qty int) (*CartSummary, error) {
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, ErrInvalidQuantity
	}
	item, err := s.catalog.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownType) {
			return nil, ErrProductUnavailable
		}
		return nil, err
	}
	if item == nil || !item.Purchasable() {
		return nil, ErrProductUnavailable
	}
	return s.mutate(ctx, true, func(ctx context.Context, cart *models.Cart) error {
		return s.repo.Carts.AddItem(ctx, cart.ID, ref, option, qty)
	})
}

func (s *cartService) RemoveItem(ctx context.Context, itemID uuid.UUID) (*CartSummary, error) {
	return s.mutate(ctx, false, func(ctx context.Context, cart *models.Cart) error {
		ok, err := s.repo.Carts.RemoveItem(ctx, cart.ID, itemID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCartItemNotFound
		}
		return nil
	})
}

func (s *cartService) SetDelivery(ctx context.Context, addr models.Address) (*CartSummary, error) {
	addr.Country = strings.ToUpper(strings.TrimSpace(addr.Country))
	return s.mutate(ctx, false, func(ctx context.Context, cart *models.Cart) error {
		cart.Delivery = addr
		return s.repo.Carts.Save(ctx, cart)
	})
}

func (s *cartService) SetBilling(ctx context.Context, billing models.Billing) (*CartSummary, error) {
	billing.Country = strings.ToUpper(strings.TrimSpace(billing.Country))
	return s.mutate(ctx, false, func(ctx context.Context, cart *models.Cart) error {
		cart.Billing = billing
		return s.repo.Carts.Save(ctx, cart)
	})
}

func (s *cartService) SetContact(ctx context.Context, email, phone string) (*CartSummary, error) {
	return s.mutate(ctx, false, func(ctx context.Context, cart *models.Cart) error {
		cart.Email = strings.TrimSpace(email)
		cart.Phone = strings.TrimSpace(phone)
		return s.repo.Carts.Save(ctx, cart)
	})
}

func (s *cartService) SetShipping(ctx context.Context, optionID uuid.UUID) (*CartSummary, error) {
	return s.mutate(ctx, false, func(ctx context.Context, cart *models.Cart) error {
		so, err := s.repo.ShippingOptions.GetByID(ctx, optionID)
		if err != nil {
			return err
		}
		if so == nil {
			return ErrShippingNotFound
		}
		ok, err := s.pricer.shippingAvailable(ctx, so, cart.Delivery.Country)
		if err != nil {
			return err
		}
		if !ok {
			return ErrShippingUnavailable
		}
		cart.ShippingOptionID = &so.ID
		return s.repo.Carts.Save(ctx, cart)
	})
}

func (s *cartService) SetPayment(ctx context.Context, methodID uuid.UUID) (*CartSummary, error) {
	return s.mutate(ctx, false, func(ctx context.Context, cart *models.Cart) error {
		pm, err := s.repo.PaymentMethods.GetByID(ctx, methodID)
		if err != nil {
			return err
		}
		if pm == nil {
			return ErrPaymentNotFound
		}
		cart.PaymentMethodID = &pm.ID
		return s.repo.Carts.Save(ctx, cart)
	})
}

func (s *cartService) ApplyDiscount(ctx context.Context, code string) (*CartSummary, error) {
	code = strings.TrimSpace(code)
	return s.mutate(ctx, false, func(ctx context.Context, cart *models.Cart) error {
		d, err := s.repo.Discounts.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		used := false
		if d != nil && d.Usage == models.DiscountUsageOneTime {
			if used, err = s.repo.Discounts.IsUsed(ctx, d.ID, cart.ID); err != nil {
				return err
			}
		}
		refs := make([]models.ProductRef, 0, len(cart.Items))
		for _, it := range cart.Items {
			refs = append(refs, it.Ref())
		}
		err = discount.CheckApply(d, discount.ApplyRequest{
			UserID:    cart.UserID,
			Lines:     refs,
			LineCount: len(cart.Items),
			Used:      used,
			Now:       s.now(),
		})
		if err != nil {
			return err
		}
		cart.DiscountID = &d.ID
		return s.repo.Carts.Save(ctx, cart)
	})
}

func (s *cartService) UnapplyDiscount(ctx context.Context) (*CartSummary, error) {
	return s.mutate(ctx, false, func(ctx context.Context, cart *models.Cart) error {
		cart.DiscountID = nil
		return s.repo.Carts.Save(ctx, cart)
	})
}

func (s *cartService) SetLoyaltyPoints(ctx context.Context, points int) (*CartSummary, error) {
	if points < 0 {
		points = 0
	}
	// лишние баллы молча срезаются в settle
	return s.mutate(ctx, false, func(ctx context.Context, cart *models.Cart) error {
		cart.LoyaltyPoints = points
		return s.repo.Carts.Save(ctx, cart)
	})
}

// mutate: загрузка корзины, изменение и пересчёт в одной транзакции.
// create=false и нет корзины: ErrCartNotFound.
func (s *cartService) mutate(ctx context.Context, create bool, fn func(ctx context.Context, cart *models.Cart) error) (*CartSummary, error) {
	uid, _, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	var out *CartSummary
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		var cart *models.Cart
		if create {
			cart, err = s.repo.Carts.GetOrCreate(ctx, uid)
		} else {
			cart, err = s.repo.Carts.GetByUserForUpdate(ctx, uid)
		}
		if err != nil {
			return err
		}
		if cart == nil {
			return ErrCartNotFound
		}
		if err := fn(ctx, cart); err != nil {
			return err
		}
		// позиции могли поменяться в хранилище: перечитываем
		cart, err = s.repo.Carts.GetByUser(ctx, uid)
		if err != nil {
			return err
		}
		if cart == nil {
			return ErrCartNotFound
		}
		if len(cart.Items) == 0 && !create {
			if err := s.repo.Carts.Delete(ctx, cart.ID); err != nil {
				return err
			}
			out = emptySummary(s.pricer.settings.Currency)
			return nil
		}
		out, err = s.settle(ctx, cart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// settle пересчитывает корзину и сохраняет её, если пересчёт что-то поправил.
func (s *cartService) settle(ctx context.Context, cart *models.Cart) (*CartSummary, error) {
	pc, err := s.pricer.price(ctx, cart)
	if err != nil {
		return nil, err
	}
	if pc.dirty {
		if err := s.repo.Carts.Save(ctx, cart); err != nil {
			return nil, fmt.Errorf("save cart: %w", err)
		}
		s.log.Debug("cart normalized", zap.String("cart_id", cart.ID.String()))
	}
	return s.pricer.summary(ctx, pc)
}
