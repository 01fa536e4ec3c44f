package repository

// Schema definitions for the Prism database.
// Compatible with both SQLite and PostgreSQL.

const schemaProducts = `
CREATE TABLE IF NOT EXISTS products (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    category_id TEXT,
    base_price REAL NOT NULL,
    currency TEXT NOT NULL,
    gst_percent REAL NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id);
`

const schemaModifiers = `
CREATE TABLE IF NOT EXISTS pricing_modifiers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    applies_to TEXT NOT NULL,
    scope_ref TEXT NOT NULL DEFAULT '',
    applies_on TEXT NOT NULL,
    modifier_type TEXT NOT NULL,
    value REAL NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    stackable INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_modifiers_scope ON pricing_modifiers(applies_to, scope_ref);
CREATE INDEX IF NOT EXISTS idx_modifiers_active ON pricing_modifiers(active);
`

const schemaRules = `
CREATE TABLE IF NOT EXISTS attribute_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    when_attribute TEXT NOT NULL,
    when_value TEXT NOT NULL,
    condition TEXT,
    actions TEXT NOT NULL,
    category_id TEXT NOT NULL DEFAULT '',
    product_id TEXT NOT NULL DEFAULT '',
    priority INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_active ON attribute_rules(active);
CREATE INDEX IF NOT EXISTS idx_rules_product ON attribute_rules(product_id);
CREATE INDEX IF NOT EXISTS idx_rules_category ON attribute_rules(category_id);
`

const schemaAttributePrices = `
CREATE TABLE IF NOT EXISTS attribute_prices (
    product_id TEXT NOT NULL,
    pricing_key TEXT NOT NULL,
    modifier_type TEXT NOT NULL,
    value REAL NOT NULL,
    applies_on TEXT NOT NULL,
    PRIMARY KEY (product_id, pricing_key)
);

CREATE INDEX IF NOT EXISTS idx_attribute_prices_product ON attribute_prices(product_id);
`

const schemaQuotes = `
CREATE TABLE IF NOT EXISTS quotes (
    id TEXT PRIMARY KEY,
    product_id TEXT NOT NULL,
    response TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quotes_product ON quotes(product_id);
CREATE INDEX IF NOT EXISTS idx_quotes_created ON quotes(created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaProducts,
		schemaModifiers,
		schemaRules,
		schemaAttributePrices,
		schemaQuotes,
	}
}
