package repository

// Schema definitions for the adjudication database.
// Compatible with both SQLite and PostgreSQL.

const schemaApplications = `
CREATE TABLE IF NOT EXISTS applications (
    id TEXT PRIMARY KEY,
    scheme_code TEXT NOT NULL,
    attributes TEXT NOT NULL,
    submission_mode TEXT NOT NULL,
    submitted_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_applications_scheme ON applications(scheme_code);
`

// Rules are versioned: a new version closes the previous one by setting
// its effective_to. At most one open version exists per (scheme, name).
const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id TEXT NOT NULL,
    scheme_code TEXT NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    category TEXT NOT NULL,
    field TEXT NOT NULL,
    operator TEXT NOT NULL,
    value TEXT NOT NULL,
    mandatory INTEGER NOT NULL DEFAULT 0,
    priority INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL,
    effective_from TIMESTAMP NOT NULL,
    effective_to TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (scheme_code, name, version)
);

CREATE INDEX IF NOT EXISTS idx_rules_scheme ON rules(scheme_code);
CREATE INDEX IF NOT EXISTS idx_rules_active ON rules(scheme_code, effective_from, effective_to);
`

const schemaRuleSnapshots = `
CREATE TABLE IF NOT EXISTS rule_snapshots (
    id TEXT PRIMARY KEY,
    scheme_code TEXT NOT NULL,
    name TEXT NOT NULL,
    taken_at TIMESTAMP NOT NULL,
    rules TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_snapshots_name ON rule_snapshots(scheme_code, name, taken_at);
`

const schemaSchemeConfigs = `
CREATE TABLE IF NOT EXISTS scheme_configs (
    scheme_code TEXT PRIMARY KEY,
    low_risk_max REAL NOT NULL,
    medium_risk_max REAL NOT NULL,
    allow_auto_approve INTEGER NOT NULL DEFAULT 0,
    route_high_to_fraud INTEGER NOT NULL DEFAULT 1,
    payment_system TEXT,
    weights TEXT,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaConnectorConfigs = `
CREATE TABLE IF NOT EXISTS connector_configs (
    name TEXT NOT NULL,
    scheme_code TEXT NOT NULL,
    type TEXT NOT NULL,
    base_url TEXT NOT NULL,
    endpoint_path TEXT NOT NULL,
    auth TEXT NOT NULL,
    auth_config TEXT NOT NULL,
    max_retries INTEGER NOT NULL DEFAULT 3,
    retry_delay_seconds INTEGER NOT NULL DEFAULT 2,
    retryable_status_codes TEXT NOT NULL,
    timeout_seconds INTEGER NOT NULL DEFAULT 30,
    sender_code TEXT,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (name, scheme_code)
);
`

// Decisions are insert-only; re-evaluation adds a row rather than
// rewriting history.
const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    application_id TEXT NOT NULL,
    scheme_code TEXT NOT NULL,
    type TEXT NOT NULL,
    status TEXT NOT NULL,
    risk_score REAL NOT NULL,
    risk_band TEXT NOT NULL,
    reason TEXT,
    routed_to TEXT,
    rule_result TEXT,
    trace_id TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_application ON decisions(application_id, created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_scheme ON decisions(scheme_code);
`

const schemaPaymentTriggers = `
CREATE TABLE IF NOT EXISTS payment_triggers (
    id TEXT PRIMARY KEY,
    decision_id TEXT NOT NULL UNIQUE,
    application_id TEXT NOT NULL,
    scheme_code TEXT NOT NULL,
    payment_system TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payment_triggers_application ON payment_triggers(application_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaApplications,
		schemaRules,
		schemaRuleSnapshots,
		schemaSchemeConfigs,
		schemaConnectorConfigs,
		schemaDecisions,
		schemaPaymentTriggers,
	}
}
