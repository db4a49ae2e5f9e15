package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"price-floor-alerts/internal/history"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	historyTable = "history_records"

	createHistorySQL = `CREATE TABLE IF NOT EXISTS history_records (
        id              BIGSERIAL PRIMARY KEY,
        date            DATE        NOT NULL,
        source_name     TEXT        NOT NULL,
        category        TEXT        NOT NULL,
        label           TEXT        NOT NULL,
        price           BIGINT      NOT NULL,
        floor           BIGINT      NOT NULL DEFAULT 0,
        deficit         BIGINT      NOT NULL DEFAULT 0,
        suggested_price BIGINT      NOT NULL DEFAULT 0,
        source_locator  TEXT        NOT NULL DEFAULT '',
        state           TEXT        NOT NULL DEFAULT 'unhandled',
        UNIQUE (date, source_name, label, category, price)
    );`

	listHistorySQL = `SELECT
        date,
        source_name,
        category,
        label,
        price,
        floor,
        deficit,
        suggested_price,
        source_locator,
        state
    FROM history_records
    ORDER BY id;`

	deleteHistorySQL = `DELETE FROM history_records;`

	advisoryLockSQL    = `SELECT pg_advisory_lock($1);`
	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

var historyColumns = []string{
	"date", "source_name", "category", "label", "price", "floor",
	"deficit", "suggested_price", "source_locator", "state",
}

// AdvisoryLocker exposes non-blocking advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists the history ledger in PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	lockKey int64
	logger  zerolog.Logger
}

// NewStore wires a pgx pool into a Store. lockKey selects the advisory lock
// that serializes ledger writers; zero disables it.
func NewStore(pool *pgxpool.Pool, lockKey int64, logger zerolog.Logger) *Store {
	return &Store{
		pool:    pool,
		lockKey: lockKey,
		logger:  logger.With().Str("component", "storage_postgres").Logger(),
	}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the history table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createHistorySQL); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

// Load implements history.Store.
func (s *Store) Load(ctx context.Context) ([]history.Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listHistorySQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list history: %w", queryErr)
	}
	defer rows.Close()

	records := make([]history.Record, 0)
	for rows.Next() {
		var row recordRow
		if err := rows.Scan(
			&row.Date,
			&row.SourceName,
			&row.Category,
			&row.Label,
			&row.Price,
			&row.Floor,
			&row.Deficit,
			&row.SuggestedPrice,
			&row.SourceLocator,
			&row.State,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		rec, convErr := row.record()
		if convErr != nil {
			s.logger.Warn().Err(convErr).Str("source", row.SourceName).Msg("skip unreadable history row")
			continue
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// Save replaces the whole table inside one transaction.
func (s *Store) Save(ctx context.Context, records []history.Record) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	values := make([][]any, 0, len(records))
	for _, r := range records {
		row, err := rowFromRecord(r)
		if err != nil {
			return err
		}
		values = append(values, row.values())
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteHistorySQL); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if len(values) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{historyTable}, historyColumns, pgx.CopyFromRows(values)); err != nil {
			return fmt.Errorf("copy history rows: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	return nil
}

// Lock blocks until the ledger advisory lock is held.
func (s *Store) Lock(ctx context.Context) (func(), error) {
	if s.lockKey == 0 {
		return func() {}, nil
	}
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, advisoryLockSQL, s.lockKey); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	return s.releaser(conn, s.lockKey), nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}
	return s.releaser(conn, key), true, nil
}

func (s *Store) releaser(conn *pgxpool.Conn, key int64) func() {
	return func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			s.logger.Warn().Err(err).Int64("key", key).Msg("advisory unlock failed")
		}
		conn.Release()
	}
}

var (
	_ history.Store  = (*Store)(nil)
	_ history.Locker = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
