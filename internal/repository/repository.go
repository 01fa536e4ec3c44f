// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/printcore/prism/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveProduct stores or updates a product.
func (r *SQLRepository) SaveProduct(ctx context.Context, p *domain.Product) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO products (
			id, name, category_id, base_price, currency, gst_percent, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category_id = excluded.category_id,
			base_price = excluded.base_price,
			currency = excluded.currency,
			gst_percent = excluded.gst_percent,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.Name, p.CategoryID, p.BasePrice, p.Currency, p.GSTPercent,
		boolToInt(p.Active), now, now,
	)
	return err
}

// GetProduct retrieves a product by ID.
func (r *SQLRepository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	query := `
		SELECT id, name, category_id, base_price, currency, gst_percent, active, created_at, updated_at
		FROM products
		WHERE id = ?
	`

	var p domain.Product
	var active int

	err := r.db.QueryRowContext(ctx, r.rebind(query), productID).Scan(
		&p.ID, &p.Name, &p.CategoryID, &p.BasePrice, &p.Currency, &p.GSTPercent,
		&active, &p.CreatedAt, &p.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Active = active == 1
	return &p, nil
}

// SaveModifier stores or updates a pricing modifier.
func (r *SQLRepository) SaveModifier(ctx context.Context, m *domain.PricingModifier) error {
	if m == nil {
		return fmt.Errorf("%w: modifier is required", ErrInvalidInput)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO pricing_modifiers (
			id, name, applies_to, scope_ref, applies_on, modifier_type,
			value, priority, stackable, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			applies_to = excluded.applies_to,
			scope_ref = excluded.scope_ref,
			applies_on = excluded.applies_on,
			modifier_type = excluded.modifier_type,
			value = excluded.value,
			priority = excluded.priority,
			stackable = excluded.stackable,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		m.ID, m.Name, string(m.AppliesTo), m.ScopeRef, string(m.AppliesOn), string(m.Type),
		m.Value, m.Priority, boolToInt(m.Stackable), boolToInt(m.Active),
		now, now,
	)
	return err
}

// GetModifier retrieves an active pricing modifier by ID. Soft-deleted
// modifiers are not returned.
func (r *SQLRepository) GetModifier(ctx context.Context, modifierID string) (*domain.PricingModifier, error) {
	query := modifierSelect + ` WHERE id = ? AND active = 1`

	row := r.db.QueryRowContext(ctx, r.rebind(query), modifierID)
	m, err := scanModifier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// ListModifiers retrieves all pricing modifiers.
func (r *SQLRepository) ListModifiers(ctx context.Context) ([]*domain.PricingModifier, error) {
	query := modifierSelect + ` ORDER BY priority, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectModifiers(rows)
}

// ListActiveModifiers retrieves the active modifiers relevant for one
// pricing request: every GLOBAL modifier plus those whose scope_ref matches
// the query's zone, segment, product, or selected pricing keys.
func (r *SQLRepository) ListActiveModifiers(ctx context.Context, q domain.ModifierQuery) ([]*domain.PricingModifier, error) {
	clauses := []string{`applies_to = 'GLOBAL'`}
	var args []any

	if q.ZoneID != "" {
		clauses = append(clauses, `(applies_to = 'ZONE' AND scope_ref = ?)`)
		args = append(args, q.ZoneID)
	}
	if q.SegmentID != "" {
		clauses = append(clauses, `(applies_to = 'SEGMENT' AND scope_ref = ?)`)
		args = append(args, q.SegmentID)
	}
	if q.ProductID != "" {
		clauses = append(clauses, `(applies_to = 'PRODUCT' AND scope_ref = ?)`)
		args = append(args, q.ProductID)
	}
	if len(q.PricingKeys) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(q.PricingKeys)), ", ")
		clauses = append(clauses, `(applies_to = 'ATTRIBUTE' AND scope_ref IN (`+placeholders+`))`)
		for _, k := range q.PricingKeys {
			args = append(args, k)
		}
	}

	query := modifierSelect + `
		WHERE active = 1 AND (` + strings.Join(clauses, " OR ") + `)
		ORDER BY priority, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectModifiers(rows)
}

// DeleteModifier soft-deletes a modifier by setting active = 0.
func (r *SQLRepository) DeleteModifier(ctx context.Context, modifierID string) error {
	query := `
		UPDATE pricing_modifiers
		SET active = 0, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), modifierID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveRule stores or updates an attribute rule.
func (r *SQLRepository) SaveRule(ctx context.Context, rule *domain.AttributeRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is required", ErrInvalidInput)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	actions, _ := json.Marshal(rule.Actions)
	now := time.Now().UTC()

	query := `
		INSERT INTO attribute_rules (
			id, name, description, when_attribute, when_value, condition,
			actions, category_id, product_id, priority, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			when_attribute = excluded.when_attribute,
			when_value = excluded.when_value,
			condition = excluded.condition,
			actions = excluded.actions,
			category_id = excluded.category_id,
			product_id = excluded.product_id,
			priority = excluded.priority,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.When.Attribute, rule.When.Value, rule.Condition,
		string(actions), rule.CategoryID, rule.ProductID,
		rule.Priority, boolToInt(rule.Active), now, now,
	)
	return err
}

// GetRule retrieves an active attribute rule by ID. Soft-deleted rules are
// not returned.
func (r *SQLRepository) GetRule(ctx context.Context, ruleID string) (*domain.AttributeRule, error) {
	query := ruleSelect + ` WHERE id = ? AND active = 1`

	row := r.db.QueryRowContext(ctx, r.rebind(query), ruleID)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRules retrieves all attribute rules.
func (r *SQLRepository) ListRules(ctx context.Context) ([]*domain.AttributeRule, error) {
	query := ruleSelect + ` ORDER BY priority, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AttributeRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// DeleteRule soft-deletes a rule by setting active = 0.
func (r *SQLRepository) DeleteRule(ctx context.Context, ruleID string) error {
	query := `
		UPDATE attribute_rules
		SET active = 0, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveAttributePrice stores or updates one attribute price table entry.
func (r *SQLRepository) SaveAttributePrice(ctx context.Context, ap *domain.AttributePrice) error {
	if ap == nil || ap.ProductID == "" {
		return fmt.Errorf("%w: productId is required", ErrInvalidInput)
	}
	if err := domain.ValidatePricingKey(ap.PricingKey); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	query := `
		INSERT INTO attribute_prices (
			product_id, pricing_key, modifier_type, value, applies_on
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(product_id, pricing_key) DO UPDATE SET
			modifier_type = excluded.modifier_type,
			value = excluded.value,
			applies_on = excluded.applies_on
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		ap.ProductID, ap.PricingKey, string(ap.Type), ap.Value, string(ap.AppliesOn),
	)
	return err
}

// GetAttributePrices retrieves the full attribute price table for a product,
// keyed by pricing key.
func (r *SQLRepository) GetAttributePrices(ctx context.Context, productID string) (map[string]domain.AttributePrice, error) {
	query := `
		SELECT product_id, pricing_key, modifier_type, value, applies_on
		FROM attribute_prices
		WHERE product_id = ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := make(map[string]domain.AttributePrice)
	for rows.Next() {
		var ap domain.AttributePrice
		var mtype, appliesOn string

		if err := rows.Scan(&ap.ProductID, &ap.PricingKey, &mtype, &ap.Value, &appliesOn); err != nil {
			return nil, err
		}

		ap.Type = domain.ModifierType(mtype)
		ap.AppliesOn = domain.AppliesOn(appliesOn)
		table[ap.PricingKey] = ap
	}

	return table, rows.Err()
}

// SaveQuote stores a computed quote for audit.
func (r *SQLRepository) SaveQuote(ctx context.Context, q *domain.Quote) error {
	if q == nil || q.ID == "" {
		return fmt.Errorf("%w: quote id is required", ErrInvalidInput)
	}

	response, err := json.Marshal(q.Response)
	if err != nil {
		return fmt.Errorf("failed to marshal quote response: %w", err)
	}

	query := `
		INSERT INTO quotes (id, product_id, response, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		q.ID, q.ProductID, string(response), q.CreatedAt,
	)
	return err
}

// GetQuote retrieves a stored quote by ID.
func (r *SQLRepository) GetQuote(ctx context.Context, quoteID string) (*domain.Quote, error) {
	query := `
		SELECT id, product_id, response, created_at
		FROM quotes
		WHERE id = ?
	`

	var q domain.Quote
	var response string

	err := r.db.QueryRowContext(ctx, r.rebind(query), quoteID).Scan(
		&q.ID, &q.ProductID, &response, &q.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(response), &q.Response); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %w", err)
	}

	return &q, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

const modifierSelect = `
	SELECT id, name, applies_to, scope_ref, applies_on, modifier_type,
		   value, priority, stackable, active, created_at, updated_at
	FROM pricing_modifiers`

const ruleSelect = `
	SELECT id, name, description, when_attribute, when_value, condition,
		   actions, category_id, product_id, priority, active, created_at, updated_at
	FROM attribute_rules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModifier(row rowScanner) (*domain.PricingModifier, error) {
	var m domain.PricingModifier
	var appliesTo, appliesOn, mtype string
	var stackable, active int

	err := row.Scan(
		&m.ID, &m.Name, &appliesTo, &m.ScopeRef, &appliesOn, &mtype,
		&m.Value, &m.Priority, &stackable, &active,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.AppliesTo = domain.ModifierScope(appliesTo)
	m.AppliesOn = domain.AppliesOn(appliesOn)
	m.Type = domain.ModifierType(mtype)
	m.Stackable = stackable == 1
	m.Active = active == 1

	return &m, nil
}

func collectModifiers(rows *sql.Rows) ([]*domain.PricingModifier, error) {
	var mods []*domain.PricingModifier
	for rows.Next() {
		m, err := scanModifier(rows)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

func scanRule(row rowScanner) (*domain.AttributeRule, error) {
	var rule domain.AttributeRule
	var actions string
	var active int

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description,
		&rule.When.Attribute, &rule.When.Value, &rule.Condition,
		&actions, &rule.CategoryID, &rule.ProductID,
		&rule.Priority, &active, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Active = active == 1
	if err := json.Unmarshal([]byte(actions), &rule.Actions); err != nil {
		return nil, fmt.Errorf("failed to parse actions for rule %s: %w", rule.ID, err)
	}

	return &rule, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
