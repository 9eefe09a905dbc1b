package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/hayashi/prowl/internal/model"
	"github.com/hayashi/prowl/internal/proxypool"
)

// dbFileName is the SQLite file created under the data directory.
const dbFileName = "prowl.db"

// ProxyDB stores per-address proxy health metadata in SQLite.
//
// Design decision: One database file for the whole installation rather
// than one per run. Proxy reputation is the point of persisting at all,
// and reputation only helps if the next run sees it.
type ProxyDB struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
}

// Options configures ProxyDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool

	// Logger receives warnings from the observation hooks, which cannot
	// return errors. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ProxyDB under the specified directory.
func Open(dbDir string, opts Options) (*ProxyDB, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pdb := &ProxyDB{
		db:     db,
		dbPath: dbPath,
		logger: opts.Logger,
	}
	if pdb.logger == nil {
		pdb.logger = slog.Default()
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := pdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return pdb, nil
}

// Close closes the database connection.
func (pdb *ProxyDB) Close() error {
	return pdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (pdb *ProxyDB) createTables() error {
	schema := `
	-- Per-address proxy health, keyed by normalized proxy URL.
	CREATE TABLE IF NOT EXISTS proxies (
		address TEXT PRIMARY KEY,
		state TEXT NOT NULL DEFAULT 'good',
		ok_streak INTEGER NOT NULL DEFAULT 0,
		fail_streak INTEGER NOT NULL DEFAULT 0,
		last_ok DATETIME,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_proxies_state ON proxies(state);
	`
	_, err := pdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveAddresses upserts newly verified addresses as good. Existing rows
// keep their counters; a verified probe is not a crawl success.
func (pdb *ProxyDB) SaveAddresses(ctx context.Context, addrs []string) error {
	tx, err := pdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	const query = `
	INSERT INTO proxies (address, state, updated_at)
	VALUES (?, 'good', CURRENT_TIMESTAMP)
	ON CONFLICT(address) DO UPDATE SET
		state = CASE WHEN proxies.state = 'dead' THEN 'good' ELSE proxies.state END,
		updated_at = CURRENT_TIMESTAMP
	`
	for _, addr := range addrs {
		if _, err := tx.ExecContext(ctx, query, addr); err != nil {
			return fmt.Errorf("save address %s: %w", addr, err)
		}
	}
	return tx.Commit()
}

// LoadAddresses returns every address not marked dead, in insertion order.
func (pdb *ProxyDB) LoadAddresses(ctx context.Context) ([]string, error) {
	rows, err := pdb.db.QueryContext(ctx,
		`SELECT address FROM proxies WHERE state != 'dead' ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("load addresses: %w", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, rows.Err()
}

// LoadMeta returns prior health metadata for every known address, for
// seeding pool counters at construction.
func (pdb *ProxyDB) LoadMeta(ctx context.Context) (map[string]model.ProxyMeta, error) {
	rows, err := pdb.db.QueryContext(ctx,
		`SELECT address, ok_streak, fail_streak, last_ok FROM proxies`)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]model.ProxyMeta)
	for rows.Next() {
		var (
			addr   string
			m      model.ProxyMeta
			lastOK sql.NullTime
		)
		if err := rows.Scan(&addr, &m.OKStreak, &m.FailStreak, &lastOK); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		if lastOK.Valid {
			m.LastSuccess = lastOK.Time
		}
		meta[addr] = m
	}
	return meta, rows.Err()
}

// MarkDead records a structurally rejected address so later runs skip it.
func (pdb *ProxyDB) MarkDead(ctx context.Context, addr string) error {
	_, err := pdb.db.ExecContext(ctx, `
	INSERT INTO proxies (address, state, updated_at)
	VALUES (?, 'dead', CURRENT_TIMESTAMP)
	ON CONFLICT(address) DO UPDATE SET
		state = 'dead',
		updated_at = CURRENT_TIMESTAMP
	`, addr)
	if err != nil {
		return fmt.Errorf("mark dead %s: %w", addr, err)
	}
	return nil
}

// OnSuccess implements proxypool.Observer. It resets the failure streak
// and stamps the success time.
func (pdb *ProxyDB) OnSuccess(addr string) {
	_, err := pdb.db.ExecContext(context.Background(), `
	INSERT INTO proxies (address, state, ok_streak, fail_streak, last_ok, updated_at)
	VALUES (?, 'good', 1, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(address) DO UPDATE SET
		state = 'good',
		ok_streak = proxies.ok_streak + 1,
		fail_streak = 0,
		last_ok = CURRENT_TIMESTAMP,
		updated_at = CURRENT_TIMESTAMP
	`, addr)
	if err != nil {
		pdb.logger.Warn("failed to record proxy success", "proxy", addr, "error", err)
	}
}

// OnFailure implements proxypool.Observer. Structural rejections mark the
// address dead; transient faults only bump the failure streak.
func (pdb *ProxyDB) OnFailure(addr string, class proxypool.Classification) {
	state := "cooldown"
	if class == proxypool.ClassDead {
		state = "dead"
	}
	_, err := pdb.db.ExecContext(context.Background(), `
	INSERT INTO proxies (address, state, ok_streak, fail_streak, updated_at)
	VALUES (?, ?, 0, 1, CURRENT_TIMESTAMP)
	ON CONFLICT(address) DO UPDATE SET
		state = ?,
		ok_streak = 0,
		fail_streak = proxies.fail_streak + 1,
		updated_at = CURRENT_TIMESTAMP
	`, addr, state, state)
	if err != nil {
		pdb.logger.Warn("failed to record proxy failure", "proxy", addr, "error", err)
	}
}
