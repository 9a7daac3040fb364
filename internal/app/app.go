// Package app собирает сервисы, шлюзы и фоновые задачи из конфигурации.
package app

import (
	"fmt"
	"os"

	"commerce-service/config"
	"commerce-service/internal/cache"
	"commerce-service/internal/catalog"
	"commerce-service/internal/gateway"
	"commerce-service/internal/gateway/bankstatement"
	"commerce-service/internal/gateway/globalpayments"
	"commerce-service/internal/gateway/stripe"
	"commerce-service/internal/gateway/wiretransfer"
	"commerce-service/internal/invoicing"
	"commerce-service/internal/jobs"
	"commerce-service/internal/loyalty"
	"commerce-service/internal/orderstate"
	"commerce-service/internal/producer"
	"commerce-service/internal/repository"
	"commerce-service/internal/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Repo     *repository.Repository
	Carts    service.CartService
	Checkout service.CheckoutService
	Orders   service.OrderService
	Payments service.PaymentService
	Runner   *jobs.Runner

	closers []func()
}

func Settings(cfg *config.Config) service.Settings {
	shop := cfg.Shop
	return service.Settings{
		Currency:         shop.Currency,
		OrderNumberStart: shop.OrderNumberStart,
		Loyalty:          loyalty.Rates{PointValue: shop.LoyaltyPointValue, PointsPerUnit: shop.LoyaltyPointsPerUnit},
		PricesIncludeTax: shop.PricesIncludeTax,
		SupplierVAT:      shop.SupplierVatID,
		TaxPolicy:        invoicing.NewTaxPolicy(shop.TaxPolicy, shop.TaxRate),
		States:           orderstate.NewPolicy(shop.NotifyStatuses, shop.ProformaOnAwaits),
		OrdersURL:        shop.OrdersURL,
	}
}

func bankDetails(shop config.Shop) invoicing.Bank {
	return invoicing.Bank{Name: shop.BankName, IBAN: shop.BankIBAN, SWIFT: shop.BankSWIFT}
}

func invoiceSettings(shop config.Shop) invoicing.Settings {
	return invoicing.Settings{
		Supplier: invoicing.Supplier{
			Name:    shop.SupplierName,
			Street:  shop.SupplierStreet,
			City:    shop.SupplierCity,
			Country: shop.SupplierCountry,
			RegID:   shop.SupplierRegID,
			VatID:   shop.SupplierVatID,
		},
		Bank:             bankDetails(shop),
		Currency:         shop.Currency,
		UnitPriceWithTax: shop.UnitPriceWithTax,
		ExcludeFreeItems: shop.ExcludeFreeItems,
		DueDays:          shop.InvoiceDueDays,
	}
}

func Intervals(j config.Jobs) jobs.Intervals {
	return jobs.Intervals{
		jobs.JobReminders: j.RemindersInterval,
		jobs.JobCancel:    j.CancelInterval,
		jobs.JobCarts:     j.CartsInterval,
		jobs.JobLoyalty:   j.LoyaltyInterval,
		jobs.JobBankSync:  j.BankSyncInterval,
	}
}

func New(cfg *config.Config, db *gorm.DB, log *zap.Logger) (*App, error) {
	a := &App{Repo: repository.New(db)}
	settings := Settings(cfg)

	var notifier service.Notifier = producer.NewLogNotifier(log)
	if cfg.Kafka.Enabled() {
		p := producer.NewNotificationProducer(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic)
		a.onClose(func() {
			if err := p.Close(); err != nil {
				log.Warn("kafka producer close failed", zap.Error(err))
			}
		})
		notifier = p
		log.Info("Kafka notifications enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		log.Info("Kafka not configured, notifications are logged only")
	}

	var (
		locker service.Locker
		cursor jobs.SyncCursor
	)
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.onClose(func() { _ = rc.Close() })
		locker, cursor = rc, rc
		log.Info("Redis enabled")
	} else {
		log.Info("Redis disabled")
	}

	reg := catalog.NewRegistry()
	for _, t := range cfg.Shop.ProductTypes {
		reg.Register(t, catalog.NewTableHandler(t, a.Repo.Products))
	}

	orders := service.NewOrderService(a.Repo, invoicing.NewBuilder(invoiceSettings(cfg.Shop), settings.TaxPolicy), notifier, settings, log)

	gateways, err := buildGateways(cfg, a.Repo, orders, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	bank := bankstatement.NewClient(bankstatement.Config{
		Token:   cfg.Bank.Token,
		BaseURL: cfg.Bank.BaseURL,
		Timeout: cfg.Bank.Timeout,
	}, log)
	payments := service.NewPaymentService(a.Repo, gateways, orders, bank, locker, settings, log)

	a.Orders = orders
	a.Payments = payments
	a.Carts = service.NewCartService(a.Repo, reg, settings, log)
	a.Checkout = service.NewCheckoutService(a.Repo, reg, orders, payments, settings, log)
	a.Runner = jobs.NewRunner(a.Repo.Orders, a.Repo.Carts, orders, payments, cursor, jobs.Thresholds{
		ReminderAfter:            cfg.Jobs.ReminderAfter,
		CancelAfter:              cfg.Jobs.CancelAfter,
		CartPurgeAfter:           cfg.Jobs.CartPurgeAfter,
		LoyaltyReminderAfterDays: cfg.Jobs.LoyaltyReminderAfterDays,
		BankSyncWindow:           cfg.Jobs.BankSyncWindow,
	}, log)
	return a, nil
}

// buildGateways банковский перевод доступен всегда, онлайн-шлюзы только при наличии ключей.
func buildGateways(cfg *config.Config, repo *repository.Repository, orders service.OrderService, log *zap.Logger) (*gateway.Registry, error) {
	reg := gateway.NewRegistry(wiretransfer.New(bankDetails(cfg.Shop), cfg.Shop.OrdersURL))

	if cfg.GP.Enabled() {
		privPEM, err := os.ReadFile(cfg.GP.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read GP private key: %w", err)
		}
		priv, err := globalpayments.ParsePrivateKey(privPEM)
		if err != nil {
			return nil, err
		}
		pubPEM, err := os.ReadFile(cfg.GP.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read GP public key: %w", err)
		}
		pub, err := globalpayments.ParsePublicKey(pubPEM)
		if err != nil {
			return nil, err
		}
		reg.Register(globalpayments.New(globalpayments.Config{
			MerchantNumber:   cfg.GP.MerchantNumber,
			Debug:            cfg.GP.Debug,
			ReturnURL:        cfg.GP.ReturnURL,
			OrderNumberStart: cfg.GP.OrderNumberStart,
			Currency:         cfg.GP.Currency,
		}, priv, pub, repo.Gateway, repo.Orders, orders, log))
	}

	if cfg.Stripe.Enabled() {
		reg.Register(stripe.New(stripe.Config{
			SecretKey:      cfg.Stripe.SecretKey,
			PublishableKey: cfg.Stripe.PublishableKey,
			WebhookSecret:  cfg.Stripe.WebhookSecret,
			SuccessURL:     cfg.Stripe.SuccessURL,
			CancelURL:      cfg.Stripe.CancelURL,
			APIBase:        cfg.Stripe.APIBase,
		}, repo.Orders, orders, log))
	}

	log.Info("payment gateways registered", zap.Strings("gateways", reg.Keys()))
	return reg, nil
}

func (a *App) onClose(fn func()) { a.closers = append(a.closers, fn) }

// Close освобождает внешние клиенты в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
