package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/umputun/commentscope/pkg/domain"
)

//go:embed schema_sqlite.sql schema_postgres.sql
var schemaFS embed.FS

// SQLStore keeps quota records in sqlite or postgres
type SQLStore struct {
	db        *sqlx.DB
	txOpts    *sql.TxOptions
	forUpdate string
	retry     retryPolicy
	retryable func(error) bool
}

// quotaRow is the users table row
type quotaRow struct {
	ID                 string    `db:"id"`
	Email              string    `db:"email"`
	SubscriptionStatus string    `db:"subscription_status"`
	QuotaLimit         int       `db:"quota_limit"`
	UsageCount         int       `db:"usage_count"`
	QuotaResetDate     time.Time `db:"quota_reset_date"`
	CreatedAt          time.Time `db:"created_at"`
}

// NewSQLiteStore opens sqlite database. Write transactions take the lock on begin,
// so concurrent updates of the same record serialize instead of failing on commit.
func NewSQLiteStore(ctx context.Context, cfg Config) (*SQLStore, error) {
	if cfg.DSN == "" {
		cfg.DSN = "file:commentscope.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if !strings.Contains(cfg.DSN, "_txlock=") {
		sep := "?"
		if strings.Contains(cfg.DSN, "?") {
			sep = "&"
		}
		cfg.DSN += sep + "_txlock=immediate"
	}

	db, err := sqlx.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	configurePool(db, cfg)

	// optimize SQLite settings
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000", // 5 second timeout for locks
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if err := initSchema(ctx, db, "schema_sqlite.sql"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	lgr.Printf("[DEBUG] sqlite quota store ready")
	return &SQLStore{db: db, txOpts: &sql.TxOptions{}, retry: lockRetry, retryable: isLockError}, nil
}

// NewPostgresStore opens postgres database. Updates run in serializable transactions
// with the record row locked.
func NewPostgresStore(ctx context.Context, cfg Config) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	configurePool(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := initSchema(ctx, db, "schema_postgres.sql"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	lgr.Printf("[DEBUG] postgres quota store ready")
	return &SQLStore{db: db, txOpts: &sql.TxOptions{Isolation: sql.LevelSerializable},
		forUpdate: " FOR UPDATE", retry: conflictRetry, retryable: isPgRetryable}, nil
}

func configurePool(db *sqlx.DB, cfg Config) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sqlx.DB, name string) error {
	schema, err := schemaFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Update runs fn over the caller's record inside one transaction, retrying on lock
// contention and serialization failures
func (s *SQLStore) Update(ctx context.Context, callerID string, fn func(current *domain.Quota) (*domain.Quota, error)) error {
	return withRetry(ctx, s.retry, s.retryable, func() error {
		return s.updateTx(ctx, callerID, fn)
	})
}

func (s *SQLStore) updateTx(ctx context.Context, callerID string, fn func(current *domain.Quota) (*domain.Quota, error)) error {
	tx, err := s.db.BeginTxx(ctx, s.txOpts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var row quotaRow
	query := s.db.Rebind(`SELECT id, email, subscription_status, quota_limit, usage_count, quota_reset_date, created_at
		FROM users WHERE id = ?` + s.forUpdate)

	var current *domain.Quota
	err = tx.GetContext(ctx, &row, query, callerID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("get quota record: %w", err)
	default:
		current = row.toDomain()
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	upsert := s.db.Rebind(`
		INSERT INTO users (id, email, subscription_status, quota_limit, usage_count, quota_reset_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			subscription_status = excluded.subscription_status,
			quota_limit = excluded.quota_limit,
			usage_count = excluded.usage_count,
			quota_reset_date = excluded.quota_reset_date
	`)
	_, err = tx.ExecContext(ctx, upsert, callerID, next.Email, next.SubscriptionStatus, next.QuotaLimit,
		next.UsageCount, next.QuotaResetDate.UTC(), next.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save quota record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit quota record: %w", err)
	}
	return nil
}

// Ping verifies the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (r quotaRow) toDomain() *domain.Quota {
	return &domain.Quota{
		CallerID:           r.ID,
		Email:              r.Email,
		SubscriptionStatus: r.SubscriptionStatus,
		QuotaLimit:         r.QuotaLimit,
		UsageCount:         r.UsageCount,
		QuotaResetDate:     r.QuotaResetDate,
		CreatedAt:          r.CreatedAt,
	}
}
