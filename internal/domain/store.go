package domain

import (
	"context"
	"time"
)

// Store defines the data-access interface consumed by the decision
// pipeline. Constructed once and passed down, never opened ad hoc.
type Store interface {
	// Application data
	SaveApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, applicationID string) (*Application, error)
	GetEvaluationContext(ctx context.Context, applicationID string) (EvaluationContext, error)

	// Rule lifecycle. SaveRuleVersion atomically closes the currently
	// active version of (schemeCode, name), if any, and inserts the new
	// one, preserving the at-most-one-active invariant.
	SaveRuleVersion(ctx context.Context, rule *Rule) error
	GetActiveRules(ctx context.Context, schemeCode string, at time.Time) ([]*Rule, error)
	ListRuleVersions(ctx context.Context, schemeCode, name string) ([]*Rule, error)

	// Snapshots are insert-only.
	SaveSnapshot(ctx context.Context, snap *RuleSetSnapshot) error
	GetSnapshot(ctx context.Context, schemeCode, name string) (*RuleSetSnapshot, error)

	// Scheme configuration
	GetSchemeConfig(ctx context.Context, schemeCode string) (*SchemeConfig, error)
	SaveSchemeConfig(ctx context.Context, cfg *SchemeConfig) error

	// Connector configuration
	GetConnectorConfig(ctx context.Context, name, schemeCode string) (*ConnectorConfig, error)
	SaveConnectorConfig(ctx context.Context, cfg *ConnectorConfig) error

	// Decisions are insert-only; re-evaluation creates a new row.
	SaveDecision(ctx context.Context, d *Decision) error
	GetDecision(ctx context.Context, decisionID string) (*Decision, error)
	LatestDecision(ctx context.Context, applicationID string) (*Decision, error)

	// CreatePaymentTrigger inserts at most one trigger per decision.
	// Returns false when a trigger for the decision already exists.
	CreatePaymentTrigger(ctx context.Context, pt *PaymentTrigger) (bool, error)
	GetPaymentTrigger(ctx context.Context, decisionID string) (*PaymentTrigger, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// StoreConfig holds configuration for store initialization.
type StoreConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgresPort"`
	PostgresUser     string `json:"postgresUser" yaml:"postgresUser"`
	PostgresPassword string `json:"postgresPassword" yaml:"postgresPassword"`
	PostgresDB       string `json:"postgresDb" yaml:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}
