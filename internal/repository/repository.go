// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
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

// SaveTransaction stores a transaction in the ledger.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, amount, type, description, sender_id, receiver_id,
			beneficiary_type, timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.Amount, string(tx.Type), tx.Description,
		tx.SenderID, tx.ReceiverID, string(tx.BeneficiaryType),
		tx.Timestamp, tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, amount, type, description, sender_id, receiver_id,
			   beneficiary_type, timestamp, created_at
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	var txType, beneficiary string

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.Amount, &txType, &tx.Description,
		&tx.SenderID, &tx.ReceiverID, &beneficiary,
		&tx.Timestamp, &tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Type = domain.TransactionType(txType)
	tx.BeneficiaryType = domain.BeneficiaryType(beneficiary)

	return &tx, nil
}

// GetHistoryBySender returns the sender's most recent outgoing records,
// most-recent-first.
func (r *SQLRepository) GetHistoryBySender(ctx context.Context, senderID string, limit int) ([]domain.HistoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT amount, timestamp
		FROM transactions
		WHERE sender_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), senderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		if err := rows.Scan(&rec.Amount, &rec.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetLastIncoming returns the most recent record where payeeID sent money
// to payerID. No such record yields nil, nil; absence is a meaningful
// answer, not an error.
func (r *SQLRepository) GetLastIncoming(ctx context.Context, payerID, payeeID string) (*domain.HistoryRecord, error) {
	query := `
		SELECT amount, timestamp
		FROM transactions
		WHERE sender_id = ? AND receiver_id = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var rec domain.HistoryRecord
	err := r.db.QueryRowContext(ctx, r.rebind(query), payeeID, payerID).Scan(
		&rec.Amount, &rec.Timestamp,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// SaveAnalysis stores a fraud analysis result.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	if result == nil || result.ID == "" {
		return fmt.Errorf("%w: analysis id is required", ErrInvalidInput)
	}

	triggered, _ := json.Marshal(result.TriggeredRules)

	query := `
		INSERT INTO fraud_logs (
			id, transaction_id, risk_score, verdict, triggered_rules, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, result.TransactionID, result.RiskScore,
		string(result.Verdict), string(triggered), result.Timestamp,
	)
	return err
}

// GetAnalysis retrieves a fraud analysis by ID.
func (r *SQLRepository) GetAnalysis(ctx context.Context, analysisID string) (*domain.AnalysisResult, error) {
	query := `
		SELECT id, transaction_id, risk_score, verdict, triggered_rules, created_at
		FROM fraud_logs
		WHERE id = ?
	`

	var result domain.AnalysisResult
	var verdict, triggered string

	err := r.db.QueryRowContext(ctx, r.rebind(query), analysisID).Scan(
		&result.ID, &result.TransactionID, &result.RiskScore,
		&verdict, &triggered, &result.Timestamp,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	result.Verdict = domain.Verdict(verdict)
	json.Unmarshal([]byte(triggered), &result.TriggeredRules)

	return &result, nil
}

// SaveCustomRule stores a custom rule configuration, upserting by ID.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, rule *domain.CustomRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO custom_rules (
			id, name, description, expression, risk, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			risk = excluded.risk,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		rule.Risk, rule.Reason, enabled, now, now,
	)
	return err
}

// ListCustomRules retrieves all enabled custom rules ordered by name.
func (r *SQLRepository) ListCustomRules(ctx context.Context) ([]*domain.CustomRule, error) {
	query := `
		SELECT id, name, description, expression, risk, reason, enabled, created_at, updated_at
		FROM custom_rules
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.CustomRule
	for rows.Next() {
		var rule domain.CustomRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
			&rule.Risk, &rule.Reason, &enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteCustomRule soft-deletes a custom rule by setting enabled = 0.
func (r *SQLRepository) DeleteCustomRule(ctx context.Context, ruleID string) error {
	query := `
		UPDATE custom_rules
		SET enabled = 0, updated_at = ?
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

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
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
