package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Transaction ledger
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// Rule context queries
	GetHistoryBySender(ctx context.Context, senderID string, limit int) ([]HistoryRecord, error)
	GetLastIncoming(ctx context.Context, payerID, payeeID string) (*HistoryRecord, error)

	// Fraud analysis log
	SaveAnalysis(ctx context.Context, result *AnalysisResult) error
	GetAnalysis(ctx context.Context, analysisID string) (*AnalysisResult, error)

	// Custom rule configuration
	SaveCustomRule(ctx context.Context, rule *CustomRule) error
	ListCustomRules(ctx context.Context) ([]*CustomRule, error)
	DeleteCustomRule(ctx context.Context, ruleID string) error

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
