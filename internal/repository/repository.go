// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opengov-stack/adjudex/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLStore implements domain.Store using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// New creates a new store based on configuration.
func New(cfg domain.StoreConfig) (domain.Store, error) {
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

	store := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveApplication stores an applicant record.
func (s *SQLStore) SaveApplication(ctx context.Context, app *domain.Application) error {
	if app.ID == "" || app.SchemeCode == "" {
		return fmt.Errorf("%w: application id and scheme code are required", ErrInvalidInput)
	}

	attributes, _ := json.Marshal(app.Attributes)

	query := `
		INSERT INTO applications (
			id, scheme_code, attributes, submission_mode, submitted_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			attributes = excluded.attributes,
			submission_mode = excluded.submission_mode,
			submitted_at = excluded.submitted_at
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		app.ID, app.SchemeCode, string(attributes),
		app.SubmissionMode, app.SubmittedAt, app.CreatedAt,
	)
	return err
}

// GetApplication retrieves an application by ID.
func (s *SQLStore) GetApplication(ctx context.Context, applicationID string) (*domain.Application, error) {
	query := `
		SELECT id, scheme_code, attributes, submission_mode, submitted_at, created_at
		FROM applications
		WHERE id = ?
	`

	var app domain.Application
	var attributes string

	err := s.db.QueryRowContext(ctx, s.rebind(query), applicationID).Scan(
		&app.ID, &app.SchemeCode, &attributes,
		&app.SubmissionMode, &app.SubmittedAt, &app.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if attributes != "" {
		json.Unmarshal([]byte(attributes), &app.Attributes)
	}

	return &app, nil
}

// GetEvaluationContext returns the applicant attributes rules read.
func (s *SQLStore) GetEvaluationContext(ctx context.Context, applicationID string) (domain.EvaluationContext, error) {
	app, err := s.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return app.Attributes, nil
}

// SaveRuleVersion inserts a new version of (scheme, name) and closes the
// previously open version in the same transaction, preserving the
// at-most-one-active invariant.
func (s *SQLStore) SaveRuleVersion(ctx context.Context, rule *domain.Rule) error {
	if rule.SchemeCode == "" || rule.Name == "" {
		return fmt.Errorf("%w: scheme code and rule name are required", ErrInvalidInput)
	}
	if rule.EffectiveFrom.IsZero() {
		rule.EffectiveFrom = time.Now().UTC()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT COALESCE(MAX(version), 0) FROM rules WHERE scheme_code = ? AND name = ?`),
		rule.SchemeCode, rule.Name,
	).Scan(&version)
	if err != nil {
		return err
	}
	rule.Version = version + 1

	_, err = tx.ExecContext(ctx,
		s.rebind(`UPDATE rules SET effective_to = ? WHERE scheme_code = ? AND name = ? AND effective_to IS NULL`),
		rule.EffectiveFrom, rule.SchemeCode, rule.Name,
	)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rules (
			id, scheme_code, name, type, category, field, operator, value,
			mandatory, priority, version, effective_from, effective_to, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	mandatory := 0
	if rule.Mandatory {
		mandatory = 1
	}

	_, err = tx.ExecContext(ctx, s.rebind(query),
		rule.ID, rule.SchemeCode, rule.Name, rule.Type, rule.Category,
		rule.Field, rule.Operator, string(rule.Value),
		mandatory, rule.Priority, rule.Version,
		rule.EffectiveFrom, rule.EffectiveTo, rule.CreatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

const ruleColumns = `id, scheme_code, name, type, category, field, operator, value,
			   mandatory, priority, version, effective_from, effective_to, created_at`

// GetActiveRules retrieves the rule versions in effect at a point in time.
func (s *SQLStore) GetActiveRules(ctx context.Context, schemeCode string, at time.Time) ([]*domain.Rule, error) {
	if schemeCode == "" {
		return nil, fmt.Errorf("%w: scheme code is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE scheme_code = ?
		  AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to > ?)
		ORDER BY priority DESC, name
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), schemeCode, at, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRules(rows)
}

// ListRuleVersions retrieves the full version history of one rule.
func (s *SQLStore) ListRuleVersions(ctx context.Context, schemeCode, name string) ([]*domain.Rule, error) {
	if schemeCode == "" || name == "" {
		return nil, fmt.Errorf("%w: scheme code and rule name are required", ErrInvalidInput)
	}

	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE scheme_code = ? AND name = ?
		ORDER BY version DESC
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), schemeCode, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRules(rows)
}

func scanRules(rows *sql.Rows) ([]*domain.Rule, error) {
	var rules []*domain.Rule
	for rows.Next() {
		var r domain.Rule
		var value string
		var mandatory int
		var effectiveTo sql.NullTime

		if err := rows.Scan(
			&r.ID, &r.SchemeCode, &r.Name, &r.Type, &r.Category,
			&r.Field, &r.Operator, &value,
			&mandatory, &r.Priority, &r.Version,
			&r.EffectiveFrom, &effectiveTo, &r.CreatedAt,
		); err != nil {
			return nil, err
		}

		r.Value = json.RawMessage(value)
		r.Mandatory = mandatory == 1
		if effectiveTo.Valid {
			t := effectiveTo.Time
			r.EffectiveTo = &t
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

// SaveSnapshot stores a frozen rule set. Snapshots are insert-only.
func (s *SQLStore) SaveSnapshot(ctx context.Context, snap *domain.RuleSetSnapshot) error {
	if snap.ID == "" || snap.SchemeCode == "" || snap.Name == "" {
		return fmt.Errorf("%w: snapshot id, scheme code and name are required", ErrInvalidInput)
	}

	rules, _ := json.Marshal(snap.Rules)

	query := `
		INSERT INTO rule_snapshots (id, scheme_code, name, taken_at, rules)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		snap.ID, snap.SchemeCode, snap.Name, snap.TakenAt, string(rules),
	)
	return err
}

// GetSnapshot retrieves the most recent snapshot with the given name.
func (s *SQLStore) GetSnapshot(ctx context.Context, schemeCode, name string) (*domain.RuleSetSnapshot, error) {
	query := `
		SELECT id, scheme_code, name, taken_at, rules
		FROM rule_snapshots
		WHERE scheme_code = ? AND name = ?
		ORDER BY taken_at DESC
		LIMIT 1
	`

	var snap domain.RuleSetSnapshot
	var rules string

	err := s.db.QueryRowContext(ctx, s.rebind(query), schemeCode, name).Scan(
		&snap.ID, &snap.SchemeCode, &snap.Name, &snap.TakenAt, &rules,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(rules), &snap.Rules); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot rules: %w", err)
	}

	return &snap, nil
}

// GetSchemeConfig retrieves the thresholds and policy flags for a scheme.
func (s *SQLStore) GetSchemeConfig(ctx context.Context, schemeCode string) (*domain.SchemeConfig, error) {
	query := `
		SELECT scheme_code, low_risk_max, medium_risk_max,
			   allow_auto_approve, route_high_to_fraud, payment_system, weights
		FROM scheme_configs
		WHERE scheme_code = ?
	`

	var cfg domain.SchemeConfig
	var allowAutoApprove, routeHighToFraud int
	var paymentSystem, weights sql.NullString

	err := s.db.QueryRowContext(ctx, s.rebind(query), schemeCode).Scan(
		&cfg.SchemeCode, &cfg.LowRiskMax, &cfg.MediumRiskMax,
		&allowAutoApprove, &routeHighToFraud, &paymentSystem, &weights,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.AllowAutoApprove = allowAutoApprove == 1
	cfg.RouteHighToFraud = routeHighToFraud == 1
	cfg.PaymentSystem = paymentSystem.String
	if weights.Valid && weights.String != "" {
		json.Unmarshal([]byte(weights.String), &cfg.Weights)
	}

	return &cfg, nil
}

// SaveSchemeConfig upserts a scheme configuration.
func (s *SQLStore) SaveSchemeConfig(ctx context.Context, cfg *domain.SchemeConfig) error {
	if cfg.SchemeCode == "" {
		return fmt.Errorf("%w: scheme code is required", ErrInvalidInput)
	}

	allowAutoApprove := 0
	if cfg.AllowAutoApprove {
		allowAutoApprove = 1
	}
	routeHighToFraud := 0
	if cfg.RouteHighToFraud {
		routeHighToFraud = 1
	}

	var weights any
	if cfg.Weights != nil {
		b, _ := json.Marshal(cfg.Weights)
		weights = string(b)
	}

	query := `
		INSERT INTO scheme_configs (
			scheme_code, low_risk_max, medium_risk_max,
			allow_auto_approve, route_high_to_fraud, payment_system, weights, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scheme_code) DO UPDATE SET
			low_risk_max = excluded.low_risk_max,
			medium_risk_max = excluded.medium_risk_max,
			allow_auto_approve = excluded.allow_auto_approve,
			route_high_to_fraud = excluded.route_high_to_fraud,
			payment_system = excluded.payment_system,
			weights = excluded.weights,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		cfg.SchemeCode, cfg.LowRiskMax, cfg.MediumRiskMax,
		allowAutoApprove, routeHighToFraud, cfg.PaymentSystem, weights,
		time.Now().UTC(),
	)
	return err
}

// GetConnectorConfig retrieves a connector endpoint configuration.
func (s *SQLStore) GetConnectorConfig(ctx context.Context, name, schemeCode string) (*domain.ConnectorConfig, error) {
	query := `
		SELECT name, scheme_code, type, base_url, endpoint_path,
			   auth, auth_config, max_retries, retry_delay_seconds,
			   retryable_status_codes, timeout_seconds, sender_code
		FROM connector_configs
		WHERE name = ? AND scheme_code = ?
	`

	var cfg domain.ConnectorConfig
	var authConfig, retryableCodes string
	var senderCode sql.NullString

	err := s.db.QueryRowContext(ctx, s.rebind(query), name, schemeCode).Scan(
		&cfg.Name, &cfg.SchemeCode, &cfg.Type, &cfg.BaseURL, &cfg.EndpointPath,
		&cfg.Auth, &authConfig, &cfg.MaxRetries, &cfg.RetryDelaySeconds,
		&retryableCodes, &cfg.TimeoutSeconds, &senderCode,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.SenderCode = senderCode.String
	if err := json.Unmarshal([]byte(authConfig), &cfg.AuthConfig); err != nil {
		return nil, fmt.Errorf("failed to parse connector auth config: %w", err)
	}
	json.Unmarshal([]byte(retryableCodes), &cfg.RetryableStatusCodes)

	return &cfg, nil
}

// SaveConnectorConfig upserts a connector endpoint configuration.
func (s *SQLStore) SaveConnectorConfig(ctx context.Context, cfg *domain.ConnectorConfig) error {
	if cfg.Name == "" || cfg.SchemeCode == "" {
		return fmt.Errorf("%w: connector name and scheme code are required", ErrInvalidInput)
	}

	authConfig, _ := json.Marshal(cfg.AuthConfig)
	retryableCodes, _ := json.Marshal(cfg.RetryableStatusCodes)

	query := `
		INSERT INTO connector_configs (
			name, scheme_code, type, base_url, endpoint_path,
			auth, auth_config, max_retries, retry_delay_seconds,
			retryable_status_codes, timeout_seconds, sender_code, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, scheme_code) DO UPDATE SET
			type = excluded.type,
			base_url = excluded.base_url,
			endpoint_path = excluded.endpoint_path,
			auth = excluded.auth,
			auth_config = excluded.auth_config,
			max_retries = excluded.max_retries,
			retry_delay_seconds = excluded.retry_delay_seconds,
			retryable_status_codes = excluded.retryable_status_codes,
			timeout_seconds = excluded.timeout_seconds,
			sender_code = excluded.sender_code,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		cfg.Name, cfg.SchemeCode, cfg.Type, cfg.BaseURL, cfg.EndpointPath,
		cfg.Auth, string(authConfig), cfg.MaxRetries, cfg.RetryDelaySeconds,
		string(retryableCodes), cfg.TimeoutSeconds, cfg.SenderCode,
		time.Now().UTC(),
	)
	return err
}

// SaveDecision stores a decision. Decisions are insert-only; saving an
// existing decision ID is a no-op so retried routing stays idempotent.
func (s *SQLStore) SaveDecision(ctx context.Context, d *domain.Decision) error {
	if d.ID == "" || d.ApplicationID == "" {
		return fmt.Errorf("%w: decision id and application id are required", ErrInvalidInput)
	}

	ruleResult, _ := json.Marshal(d.RuleResult)

	query := `
		INSERT INTO decisions (
			id, application_id, scheme_code, type, status,
			risk_score, risk_band, reason, routed_to, rule_result, trace_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		d.ID, d.ApplicationID, d.SchemeCode, d.Type, d.Status,
		d.RiskScore, d.RiskBand, d.Reason, d.RoutedTo,
		string(ruleResult), d.TraceID, d.CreatedAt,
	)
	return err
}

// GetDecision retrieves a decision by ID.
func (s *SQLStore) GetDecision(ctx context.Context, decisionID string) (*domain.Decision, error) {
	query := `
		SELECT id, application_id, scheme_code, type, status,
			   risk_score, risk_band, reason, routed_to, rule_result, trace_id, created_at
		FROM decisions
		WHERE id = ?
	`
	return s.scanDecision(s.db.QueryRowContext(ctx, s.rebind(query), decisionID))
}

// LatestDecision retrieves the most recent decision for an application.
func (s *SQLStore) LatestDecision(ctx context.Context, applicationID string) (*domain.Decision, error) {
	query := `
		SELECT id, application_id, scheme_code, type, status,
			   risk_score, risk_band, reason, routed_to, rule_result, trace_id, created_at
		FROM decisions
		WHERE application_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return s.scanDecision(s.db.QueryRowContext(ctx, s.rebind(query), applicationID))
}

func (s *SQLStore) scanDecision(row *sql.Row) (*domain.Decision, error) {
	var d domain.Decision
	var reason, routedTo, ruleResult, traceID sql.NullString

	err := row.Scan(
		&d.ID, &d.ApplicationID, &d.SchemeCode, &d.Type, &d.Status,
		&d.RiskScore, &d.RiskBand, &reason, &routedTo, &ruleResult, &traceID, &d.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	d.Reason = reason.String
	d.RoutedTo = routedTo.String
	d.TraceID = traceID.String
	if ruleResult.Valid && ruleResult.String != "" && ruleResult.String != "null" {
		json.Unmarshal([]byte(ruleResult.String), &d.RuleResult)
	}

	return &d, nil
}

// CreatePaymentTrigger inserts at most one trigger per decision.
// Returns false when a trigger for the decision already exists.
func (s *SQLStore) CreatePaymentTrigger(ctx context.Context, pt *domain.PaymentTrigger) (bool, error) {
	if pt.ID == "" || pt.DecisionID == "" {
		return false, fmt.Errorf("%w: trigger id and decision id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO payment_triggers (
			id, decision_id, application_id, scheme_code, payment_system, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(decision_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, s.rebind(query),
		pt.ID, pt.DecisionID, pt.ApplicationID, pt.SchemeCode,
		pt.PaymentSystem, pt.Status, pt.CreatedAt,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetPaymentTrigger retrieves the trigger created for a decision.
func (s *SQLStore) GetPaymentTrigger(ctx context.Context, decisionID string) (*domain.PaymentTrigger, error) {
	query := `
		SELECT id, decision_id, application_id, scheme_code, payment_system, status, created_at
		FROM payment_triggers
		WHERE decision_id = ?
	`

	var pt domain.PaymentTrigger

	err := s.db.QueryRowContext(ctx, s.rebind(query), decisionID).Scan(
		&pt.ID, &pt.DecisionID, &pt.ApplicationID, &pt.SchemeCode,
		&pt.PaymentSystem, &pt.Status, &pt.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &pt, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

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
