package migrate

import (
	"context"
	"fmt"
	"strings"

	"commerce-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions       bool // pgcrypto
	CreateChecks           bool // CHECK-constraint для целостности
	CreateIndexes          bool // индексы и UNIQUE
	CreateFKsViaSQL        bool // FK через SQL (поверх GORM-constraint)
	CreateUpdatedAtTrigger bool // триггер обновления updated_at
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions:       true,
		CreateChecks:           true,
		CreateIndexes:          true,
		CreateFKsViaSQL:        true,
		CreateUpdatedAtTrigger: true,
	}
}

type step struct {
	name string
	sql  string
}

func quoteList[T ~string](values []T) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, "'"+string(v)+"'")
	}
	return strings.Join(parts, ",")
}

func run(ctx context.Context, db *gorm.DB, log *zap.Logger, steps []step) error {
	for _, s := range steps {
		if err := db.WithContext(ctx).Exec(s.sql).Error; err != nil {
			log.Error("Не удалось выполнить шаг миграции", zap.String("step", s.name), zap.Error(err))
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func MigrateCommerceDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции базы данных магазина")

	if opt.CreateExtensions {
		log.Info("Создание расширений PostgreSQL")
		if err := db.WithContext(ctx).Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
			log.Error("Не удалось включить расширение pgcrypto", zap.Error(err))
			return err
		}
	}

	log.Info("Создание таблиц")
	if err := db.WithContext(ctx).AutoMigrate(
		&models.ShippingOption{},
		&models.PaymentMethod{},
		&models.Product{},
		&models.Discount{},
		&models.DiscountProduct{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.PurchasedItem{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.OrderInvoice{},
		&models.GatewayPayment{},
		&models.GatewayResult{},
		&models.BankTransaction{},
	); err != nil {
		log.Error("Не удалось создать таблицы", zap.Error(err))
		return err
	}
	log.Info("Таблицы успешно созданы")

	if opt.CreateUpdatedAtTrigger {
		log.Info("Создание триггеров updated_at")
		steps := []step{{name: "set_updated_at", sql: `
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN NEW.updated_at = now(); RETURN NEW; END; $$ LANGUAGE plpgsql;`}}
		for _, table := range []string{
			"shipping_options", "payment_methods", "products", "discounts",
			"carts", "cart_items", "orders", "invoices", "gateway_payments",
		} {
			steps = append(steps, step{name: "trigger " + table, sql: fmt.Sprintf(`
DROP TRIGGER IF EXISTS trg_%[1]s_updated ON %[1]s;
CREATE TRIGGER trg_%[1]s_updated
BEFORE UPDATE ON %[1]s
FOR EACH ROW EXECUTE FUNCTION set_updated_at();`, table)})
		}
		if err := run(ctx, db, log, steps); err != nil {
			return err
		}
		log.Info("Триггеры updated_at успешно созданы")
	}

	if opt.CreateChecks {
		log.Info("Создание CHECK-ограничений")
		if err := run(ctx, db, log, checks()); err != nil {
			return err
		}
		log.Info("CHECK-ограничения успешно созданы")
	}

	if opt.CreateIndexes {
		log.Info("Создание индексов")
		if err := run(ctx, db, log, indexes()); err != nil {
			return err
		}
		log.Info("Индексы успешно созданы")
	}

	if opt.CreateFKsViaSQL {
		log.Info("Создание внешних ключей")
		if err := run(ctx, db, log, foreignKeys()); err != nil {
			return err
		}
		log.Info("Внешние ключи успешно созданы")
	}

	log.Info("Миграция базы данных магазина завершена")
	return nil
}

func check(table, name, expr string) step {
	return step{name: name, sql: fmt.Sprintf(`
ALTER TABLE %[1]s DROP CONSTRAINT IF EXISTS %[2]s;
ALTER TABLE %[1]s ADD CONSTRAINT %[2]s CHECK (%[3]s);`, table, name, expr)}
}

func checks() []step {
	return []step{
		check("orders", "chk_orders_status_allowed", "status IN ("+quoteList(models.AllOrderStatuses)+")"),
		check("orders", "chk_orders_total_non_negative", "total >= 0 AND subtotal >= 0"),
		check("orders", "chk_orders_number_positive", "number > 0"),
		check("orders", "chk_orders_loyalty_non_negative", "loyalty_points >= 0"),
		check("carts", "chk_carts_loyalty_non_negative", "loyalty_points >= 0"),
		check("cart_items", "chk_cart_items_quantity_gt_zero", "quantity > 0"),
		check("purchased_items", "chk_purchased_items_quantity_gt_zero", "quantity > 0"),
		check("purchased_items", "chk_purchased_items_price_non_negative", "price >= 0"),
		check("discounts", "chk_discounts_unit_allowed", "unit IN ('PERCENTAGE','CURRENCY')"),
		check("discounts", "chk_discounts_usage_allowed", "usage IN ('ONE_TIME','UNLIMITED')"),
		check("discounts", "chk_discounts_percentage_range", "unit <> 'PERCENTAGE' OR (amount >= 0 AND amount <= 100)"),
		check("discounts", "chk_discounts_currency_without_types", "unit <> 'CURRENCY' OR cardinality(content_types) = 0"),
		check("shipping_options", "chk_shipping_options_fee_non_negative", "fee >= 0"),
		check("payment_methods", "chk_payment_methods_fee_non_negative", "fee >= 0"),
		check("products", "chk_products_availability_allowed", "availability IN ('STOCK','INFINITE','DIGITAL_GOODS','SALE_ENDED')"),
		check("invoices", "chk_invoices_type_allowed", "type IN ('INVOICE','PROFORMA')"),
		check("invoices", "chk_invoices_status_allowed", "status IN ('NEW','SENT','PAID','RETURNED','CANCELED')"),
		check("gateway_payments", "chk_gateway_payments_status_allowed",
			"status IN ('PROCESSING','APPROVED','PAID','PARTIAL','CANCELED','UNPAID','RETURNED')"),
	}
}

func indexes() []step {
	return []step{
		{name: "ux_cart_items_line", sql: `
CREATE UNIQUE INDEX IF NOT EXISTS ux_cart_items_line
ON cart_items (cart_id, product_type, product_id, option);`},
		{name: "ix_orders_user_created", sql: `
CREATE INDEX IF NOT EXISTS ix_orders_user_created
ON orders (user_id, created_at DESC);`},
		// выборки фоновых задач: неоплаченные и не напомненные
		{name: "ix_orders_status_created", sql: `
CREATE INDEX IF NOT EXISTS ix_orders_status_created
ON orders (status, created_at);`},
		{name: "ix_orders_awaiting_not_reminded", sql: `
CREATE INDEX IF NOT EXISTS ix_orders_awaiting_not_reminded
ON orders (created_at)
WHERE status = 'AWAITING_PAYMENT' AND reminder_sent IS NULL;`},
		{name: "ix_order_invoices_invoice", sql: `
CREATE INDEX IF NOT EXISTS ix_order_invoices_invoice
ON order_invoices (invoice_id);`},
		{name: "ix_carts_created", sql: `
CREATE INDEX IF NOT EXISTS ix_carts_created
ON carts (created_at);`},
	}
}

func fk(table, name, column, ref, onDelete string) step {
	return step{name: name, sql: fmt.Sprintf(`
ALTER TABLE %[1]s
  DROP CONSTRAINT IF EXISTS %[2]s,
  ADD CONSTRAINT %[2]s
    FOREIGN KEY (%[3]s) REFERENCES %[4]s(id) ON DELETE %[5]s;`, table, name, column, ref, onDelete)}
}

func foreignKeys() []step {
	return []step{
		fk("cart_items", "fk_cart_items_cart", "cart_id", "carts", "CASCADE"),
		fk("carts", "fk_carts_shipping_option", "shipping_option_id", "shipping_options", "SET NULL"),
		fk("carts", "fk_carts_payment_method", "payment_method_id", "payment_methods", "SET NULL"),
		fk("carts", "fk_carts_discount", "discount_id", "discounts", "SET NULL"),
		fk("purchased_items", "fk_purchased_items_order", "order_id", "orders", "CASCADE"),
		fk("orders", "fk_orders_shipping_option", "shipping_option_id", "shipping_options", "SET NULL"),
		fk("orders", "fk_orders_payment_method", "payment_method_id", "payment_methods", "SET NULL"),
		fk("orders", "fk_orders_discount", "discount_id", "discounts", "RESTRICT"),
		fk("discount_products", "fk_discount_products_discount", "discount_id", "discounts", "CASCADE"),
		fk("invoice_items", "fk_invoice_items_invoice", "invoice_id", "invoices", "CASCADE"),
		fk("order_invoices", "fk_order_invoices_order", "order_id", "orders", "CASCADE"),
		fk("order_invoices", "fk_order_invoices_invoice", "invoice_id", "invoices", "CASCADE"),
		fk("gateway_payments", "fk_gateway_payments_order", "order_id", "orders", "CASCADE"),
		fk("gateway_results", "fk_gateway_results_payment", "payment_id", "gateway_payments", "CASCADE"),
		fk("bank_transactions", "fk_bank_transactions_order", "order_id", "orders", "SET NULL"),
	}
}
