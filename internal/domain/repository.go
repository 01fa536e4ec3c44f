// Package domain defines the core types and interfaces for Prism.
package domain

import (
	"context"
	"time"
)

// Repository defines the persistence boundary. The engine itself never
// touches it; the quote service reads immutable snapshots through it.
type Repository interface {
	// Product operations
	SaveProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, productID string) (*Product, error)

	// Pricing modifier operations
	SaveModifier(ctx context.Context, m *PricingModifier) error
	GetModifier(ctx context.Context, modifierID string) (*PricingModifier, error)
	ListModifiers(ctx context.Context) ([]*PricingModifier, error)
	ListActiveModifiers(ctx context.Context, q ModifierQuery) ([]*PricingModifier, error)
	DeleteModifier(ctx context.Context, modifierID string) error

	// Attribute rule operations
	SaveRule(ctx context.Context, r *AttributeRule) error
	GetRule(ctx context.Context, ruleID string) (*AttributeRule, error)
	ListRules(ctx context.Context) ([]*AttributeRule, error)
	DeleteRule(ctx context.Context, ruleID string) error

	// Attribute price table operations
	SaveAttributePrice(ctx context.Context, ap *AttributePrice) error
	GetAttributePrices(ctx context.Context, productID string) (map[string]AttributePrice, error)

	// Quote audit trail
	SaveQuote(ctx context.Context, q *Quote) error
	GetQuote(ctx context.Context, quoteID string) (*Quote, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
