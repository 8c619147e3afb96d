package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/logx"
)

// CurrentSchemaVersion is the archive schema version written by this package.
const CurrentSchemaVersion = 2

// SQLiteStore archives items in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *logx.Logger
}

// OpenSQLite opens or creates the database at path and brings its schema up to
// date. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite archive requires a path")
	}
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	// SQLite only supports one writer, and an in-memory database lives on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logx.NewLogger("archive")}
	s.logger.Info("sqlite archive ready: %s (schema v%d)", path, CurrentSchemaVersion)
	return s, nil
}

// SchemaVersion returns the highest applied schema version, 0 for an empty database.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}

//nolint:gochecknoglobals // migration table
var migrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
		`CREATE TABLE IF NOT EXISTS archived_items (
			key TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			priority INTEGER NOT NULL,
			token_count INTEGER NOT NULL,
			inserted_at INTEGER NOT NULL,
			archived_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archived_items_category ON archived_items(category, archived_at)`,
	},
	2: {
		`ALTER TABLE archived_items ADD COLUMN model_id TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE archived_items ADD COLUMN metadata TEXT NOT NULL DEFAULT '{}'`,
	},
}

func migrate(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	for version := current + 1; version <= CurrentSchemaVersion; version++ {
		if err := applyMigration(ctx, db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range migrations[version] {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", firstLine(stmt), err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Store writes item under a key derived from its ID. Storing the same ID
// again replaces the earlier record.
func (s *SQLiteStore) Store(ctx context.Context, item contextbuf.Item) (string, error) {
	md, err := json.Marshal(item.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	key := "sqlite:" + string(item.ID)

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO archived_items
			(key, item_id, content, category, priority, token_count, inserted_at, archived_at, model_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key, string(item.ID), item.Content, item.Category.String(), int(item.Priority),
		item.TokenCount, int64(item.InsertedAt), time.Now().UnixNano(), //nolint:gosec // sequence numbers stay far below MaxInt64
		item.ModelID, string(md))
	if err != nil {
		return "", fmt.Errorf("insert archived item %s: %w", item.ID, err)
	}
	return key, nil
}

const selectColumns = `key, item_id, content, category, priority, token_count, inserted_at, archived_at, model_id, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec                    Record
		id, category, metadata string
		priority, tokens       int
		insertedAt, archivedAt int64
	)
	if err := row.Scan(&rec.Key, &id, &rec.Item.Content, &category, &priority, &tokens,
		&insertedAt, &archivedAt, &rec.Item.ModelID, &metadata); err != nil {
		return Record{}, err
	}

	cat, err := contextbuf.ParseCategory(category)
	if err != nil {
		return Record{}, fmt.Errorf("record %s: %w", rec.Key, err)
	}
	rec.Item.ID = contextbuf.ItemID(id)
	rec.Item.Category = cat
	rec.Item.Priority = contextbuf.Priority(priority)
	rec.Item.TokenCount = tokens
	rec.Item.InsertedAt = uint64(insertedAt) //nolint:gosec // written from a uint64
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &rec.Item.Metadata); err != nil {
			return Record{}, fmt.Errorf("record %s metadata: %w", rec.Key, err)
		}
	}
	rec.ArchivedAt = time.Unix(0, archivedAt)
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM archived_items WHERE key = ?`, key)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get archived item %s: %w", key, err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM archived_items WHERE 1=1`
	var args []any
	if f.Category != nil {
		query += ` AND category = ?`
		args = append(args, f.Category.String())
	}
	if f.MinPriority != nil {
		query += ` AND priority <= ?`
		args = append(args, int(*f.MinPriority))
	}
	query += ` ORDER BY archived_at, inserted_at`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list archived items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archived item: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived items: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count archived items: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close archive database: %w", err)
	}
	return nil
}
