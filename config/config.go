package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/orderstate"
	"commerce-service/pkg/database"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	Port   string
	JWT    JWT
	DB     DB
	Redis  Redis
	Kafka  Kafka
	Shop   Shop
	Jobs   Jobs
	GP     GP
	Stripe Stripe
	Bank   BankStatement
}

type JWT struct {
	Secret   string
	Issuer   string
	Audience string
}

type DB struct {
	database.Config
}

type Redis struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type Kafka struct {
	Brokers            []string
	NotificationsTopic string
}

func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 && k.NotificationsTopic != "" }

type Shop struct {
	Currency         string
	OrderNumberStart int64
	OrdersURL        string
	// PaymentReturnURL страница, на которую клиент возвращается из платёжного шлюза
	PaymentReturnURL string
	// ProductTypes типы товаров из таблицы products
	ProductTypes     []string

	LoyaltyPointValue    decimal.Decimal
	LoyaltyPointsPerUnit decimal.Decimal

	PricesIncludeTax bool
	TaxPolicy        string
	TaxRate          decimal.Decimal

	NotifyStatuses   []models.OrderStatus
	ProformaOnAwaits bool

	UnitPriceWithTax bool
	ExcludeFreeItems bool
	InvoiceDueDays   int
	SupplierName     string
	SupplierStreet   string
	SupplierCity     string
	SupplierCountry  string
	SupplierRegID    string
	SupplierVatID    string
	BankName         string
	BankIBAN         string
	BankSWIFT        string
}

type Jobs struct {
	Enabled bool

	ReminderAfter            time.Duration
	CancelAfter              time.Duration
	CartPurgeAfter           time.Duration
	LoyaltyReminderAfterDays int
	BankSyncWindow           time.Duration

	RemindersInterval time.Duration
	CancelInterval    time.Duration
	CartsInterval     time.Duration
	LoyaltyInterval   time.Duration
	BankSyncInterval  time.Duration
}

type GP struct {
	MerchantNumber   string
	PrivateKeyPath   string
	PublicKeyPath    string
	Debug            bool
	ReturnURL        string
	OrderNumberStart int64
	Currency         string
}

func (g GP) Enabled() bool { return g.MerchantNumber != "" }

type Stripe struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	SuccessURL     string
	CancelURL      string
	APIBase        string
}

func (s Stripe) Enabled() bool { return s.SecretKey != "" }

type BankStatement struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

func Load(log *zap.Logger) *Config {
	return &Config{
		Port: getEnv("APP_PORT", log),
		JWT: JWT{
			Secret:   getEnv("JWT_SECRET", log),
			Issuer:   getEnvDefault("JWT_ISSUER", ""),
			Audience: getEnvDefault("JWT_AUDIENCE", ""),
		},
		DB: DB{
			Config: database.Config{
				Host:     getEnv("DB_HOST", log),
				Port:     getEnv("DB_PORT", log),
				User:     getEnv("DB_USER", log),
				Password: getEnv("DB_PASSWORD", log),
				Name:     getEnv("DB_NAME", log),
				SSLMode:  getEnvDefault("DB_SSLMODE", "disable"),
			},
		},
		Redis: Redis{
			Enabled:  getEnvDefault("REDIS_ENABLED", "false") == "true",
			Addr:     getEnvDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvDefault("REDIS_PASSWORD", ""),
			DB:       atoiDefault(getEnvDefault("REDIS_DB", "0"), 0),
		},
		Kafka: Kafka{
			Brokers:            splitAndTrim(getEnvDefault("KAFKA_BROKERS", "")),
			NotificationsTopic: getEnvDefault("KAFKA_TOPIC_NOTIFICATIONS", "notifications"),
		},
		Shop: Shop{
			Currency:         strings.ToUpper(getEnvDefault("SHOP_CURRENCY", "EUR")),
			OrderNumberStart: int64(atoiDefault(getEnvDefault("ORDER_NUMBER_STARTS_FROM", "1"), 1)),
			OrdersURL:        getEnvDefault("SHOP_ORDERS_URL", ""),
			PaymentReturnURL: getEnvDefault("SHOP_PAYMENT_RETURN_URL", ""),
			ProductTypes:     splitAndTrim(getEnvDefault("CATALOG_PRODUCT_TYPES", "product")),

			LoyaltyPointValue:    decimalDefault(getEnvDefault("LOYALTY_POINT_VALUE", "0"), decimal.Zero),
			LoyaltyPointsPerUnit: decimalDefault(getEnvDefault("LOYALTY_POINTS_PER_UNIT", "0"), decimal.Zero),

			PricesIncludeTax: getEnvDefault("PRICES_INCLUDE_TAX", "true") == "true",
			TaxPolicy:        getEnvDefault("TAX_POLICY", ""),
			TaxRate:          decimalDefault(getEnvDefault("TAX_RATE", "0"), decimal.Zero),

			NotifyStatuses:   statusesDefault(getEnvDefault("NOTIFY_STATUSES", ""), orderstate.DefaultNotifyStatuses, log),
			ProformaOnAwaits: getEnvDefault("PROFORMA_ON_AWAITING_PAYMENT", "false") == "true",

			UnitPriceWithTax: getEnvDefault("UNIT_PRICE_IS_WITH_TAX", "false") == "true",
			ExcludeFreeItems: getEnvDefault("INVOICE_EXCLUDE_FREE_ITEMS", "false") == "true",
			InvoiceDueDays:   atoiDefault(getEnvDefault("INVOICE_DUE_DAYS", "7"), 7),
			SupplierName:     getEnvDefault("SUPPLIER_NAME", ""),
			SupplierStreet:   getEnvDefault("SUPPLIER_STREET", ""),
			SupplierCity:     getEnvDefault("SUPPLIER_CITY", ""),
			SupplierCountry:  getEnvDefault("SUPPLIER_COUNTRY", ""),
			SupplierRegID:    getEnvDefault("SUPPLIER_REG_ID", ""),
			SupplierVatID:    getEnvDefault("SUPPLIER_VAT_ID", ""),
			BankName:         getEnvDefault("BANK_NAME", ""),
			BankIBAN:         getEnvDefault("BANK_IBAN", ""),
			BankSWIFT:        getEnvDefault("BANK_SWIFT", ""),
		},
		Jobs: Jobs{
			Enabled: getEnvDefault("JOBS_ENABLED", "true") == "true",

			ReminderAfter:            parseDurationWithDays(getEnvDefault("REMINDER_AFTER", "7d")),
			CancelAfter:              parseDurationWithDays(getEnvDefault("CANCEL_UNPAID_AFTER", "14d")),
			CartPurgeAfter:           parseDurationWithDays(getEnvDefault("CART_PURGE_AFTER", "30d")),
			LoyaltyReminderAfterDays: atoiDefault(getEnvDefault("LOYALTY_REMINDER_AFTER_DAYS", "0"), 0),
			BankSyncWindow:           parseDurationWithDays(getEnvDefault("BANK_SYNC_WINDOW", "7d")),

			RemindersInterval: parseDurationWithDays(getEnvDefault("JOB_REMINDERS_INTERVAL", "1h")),
			CancelInterval:    parseDurationWithDays(getEnvDefault("JOB_CANCEL_INTERVAL", "6h")),
			CartsInterval:     parseDurationWithDays(getEnvDefault("JOB_CARTS_INTERVAL", "1d")),
			LoyaltyInterval:   parseDurationWithDays(getEnvDefault("JOB_LOYALTY_INTERVAL", "1d")),
			BankSyncInterval:  parseDurationWithDays(getEnvDefault("JOB_BANKSYNC_INTERVAL", "30m")),
		},
		GP: GP{
			MerchantNumber:   getEnvDefault("GP_MERCHANT_NUMBER", ""),
			PrivateKeyPath:   getEnvDefault("GP_PRIVATE_KEY_PATH", ""),
			PublicKeyPath:    getEnvDefault("GP_PUBLIC_KEY_PATH", ""),
			Debug:            getEnvDefault("GP_DEBUG", "true") == "true",
			ReturnURL:        getEnvDefault("GP_RETURN_URL", ""),
			OrderNumberStart: int64(atoiDefault(getEnvDefault("GP_ORDER_NUMBER_START", "1"), 1)),
			Currency:         getEnvDefault("GP_CURRENCY", ""),
		},
		Stripe: Stripe{
			SecretKey:      getEnvDefault("STRIPE_SECRET_KEY", ""),
			PublishableKey: getEnvDefault("STRIPE_PUBLISHABLE_KEY", ""),
			WebhookSecret:  getEnvDefault("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:     getEnvDefault("STRIPE_SUCCESS_URL", ""),
			CancelURL:      getEnvDefault("STRIPE_CANCEL_URL", ""),
			APIBase:        getEnvDefault("STRIPE_API_BASE", ""),
		},
		Bank: BankStatement{
			Token:   getEnvDefault("BANK_STATEMENT_TOKEN", ""),
			BaseURL: getEnvDefault("BANK_STATEMENT_URL", ""),
			Timeout: parseDurationWithDays(getEnvDefault("BANK_STATEMENT_TIMEOUT", "30s")),
		},
	}
}

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("Обязательная переменная окружения не установлена", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func getEnvDefault(key, def string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return def
}

// parseDurationWithDays понимает суффикс d ("3d"); ошибка разбора даёт 0
func parseDurationWithDays(s string) time.Duration {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0
		}
		return time.Duration(days) * 24 * time.Hour
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func decimalDefault(s string, def decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return d
}

func splitAndTrim(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// statusesDefault список статусов через запятую; неизвестные значения пропускаются с предупреждением
func statusesDefault(s string, def []models.OrderStatus, log *zap.Logger) []models.OrderStatus {
	parts := splitAndTrim(s)
	if len(parts) == 0 {
		return def
	}
	out := make([]models.OrderStatus, 0, len(parts))
	for _, p := range parts {
		st := models.OrderStatus(strings.ToUpper(p))
		if !st.Valid() {
			log.Warn("unknown order status in config", zap.String("status", p))
			continue
		}
		out = append(out, st)
	}
	return out
}
