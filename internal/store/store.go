package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/storage"
)

// Store implements backend.Client on an embedded SQLite database.
type Store struct {
	db    *sql.DB
	path  string
	blobs storage.Blobs

	now                func() time.Time
	deferredDelay      time.Duration
	defaultMaxAttempts int
}

var _ backend.Client = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for leases and availability.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDeferredDelay sets how long jobs entered without the immediate flag
// wait before becoming claimable.
func WithDeferredDelay(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.deferredDelay = d
		}
	}
}

// WithDefaultMaxAttempts sets the attempt budget for jobs that don't name one.
func WithDefaultMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.defaultMaxAttempts = n
		}
	}
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	defaultDeferredDelay = 5 * time.Second
	fallbackMaxAttempts  = 3
)

// Open connects to the store database under cfg's state directory,
// creating the schema on first use.
func Open(cfg *config.Config, blobs storage.Blobs, opts ...Option) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	opts = append([]Option{WithDefaultMaxAttempts(cfg.Workflow.MaxAttempts)}, opts...)
	return OpenPath(cfg.DatabasePath(), blobs, opts...)
}

// OpenPath connects to the SQLite database at dbPath.
func OpenPath(dbPath string, blobs storage.Blobs, opts ...Option) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("store requires blob storage")
	}
	db, err := sql.Open("sqlite", dataSourceName(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{
		db:                 db,
		path:               dbPath,
		blobs:              blobs,
		now:                time.Now,
		deferredDelay:      defaultDeferredDelay,
		defaultMaxAttempts: fallbackMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// dataSourceName applies pragmas per connection; a one-off PRAGMA statement
// would only configure whichever pooled connection ran it.
func dataSourceName(dbPath string) string {
	params := url.Values{}
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Set("_txlock", "immediate")
	return "file:" + dbPath + "?" + params.Encode()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// withTx runs fn in a write transaction, retrying the whole transaction
// when SQLite reports the database busy.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// HealthReport summarizes database diagnostics for the queue health command.
type HealthReport struct {
	DBPath         string
	DatabaseExists bool
	Readable       bool
	SchemaVersion  int
	IntegrityCheck bool
	TotalJobs      int
	Error          string
}

// CheckHealth returns diagnostic information about the store database.
func (s *Store) CheckHealth(ctx context.Context) (HealthReport, error) {
	report := HealthReport{DBPath: s.path}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, nil
		}
		return report, fmt.Errorf("stat store database: %w", err)
	}
	if info.IsDir() {
		return report, fmt.Errorf("store database path %q is a directory", s.path)
	}
	report.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		report.Error = err.Error()
		return report, fmt.Errorf("ping store database: %w", err)
	}
	report.Readable = true

	if err := s.db.QueryRowContext(connCtx, "PRAGMA user_version").Scan(&report.SchemaVersion); err != nil {
		report.Error = err.Error()
		return report, fmt.Errorf("read schema version: %w", err)
	}
	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM jobs").Scan(&report.TotalJobs); err != nil {
		report.Error = err.Error()
		return report, fmt.Errorf("count jobs: %w", err)
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		report.Error = err.Error()
		return report, fmt.Errorf("integrity check: %w", err)
	}
	report.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return report, nil
}
