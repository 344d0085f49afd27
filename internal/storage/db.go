package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect is the SQL flavour of an open DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// DB wraps the SQL connection that backs the canvas collections.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	path    string // sqlite file, empty for network databases

	subsMu sync.Mutex
	subs   map[chan struct{}]struct{}
}

// Open opens (and migrates) the database. For SQLite dsn is a file path.
func Open(dialect Dialect, dsn string) (*DB, error) {
	var (
		driver = string(dialect)
		source = dsn
		path   string
	)
	switch dialect {
	case SQLite:
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		path = dsn
		source = dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	case MySQL, Postgres:
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	conn, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// one writer
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, dialect: dialect, path: path, subs: make(map[chan struct{}]struct{})}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Path is the SQLite file, or empty.
func (db *DB) Path() string {
	return db.path
}

// rebind rewrites ? placeholders for postgres.
func (db *DB) rebind(q string) string {
	if db.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.rebind(q), args...)
}

func (db *DB) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, db.rebind(q), args...)
}

func (db *DB) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, db.rebind(q), args...)
}

// subscribe returns a channel that receives after every local write.
func (db *DB) subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	db.subsMu.Lock()
	db.subs[ch] = struct{}{}
	db.subsMu.Unlock()
	return ch, func() {
		db.subsMu.Lock()
		delete(db.subs, ch)
		db.subsMu.Unlock()
	}
}

// touch wakes the watchers after a local write.
func (db *DB) touch() {
	db.subsMu.Lock()
	defer db.subsMu.Unlock()
	for ch := range db.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (db *DB) migrate() error {
	id, real, indexInline := "TEXT", "REAL", false
	switch db.dialect {
	case MySQL:
		id, real, indexInline = "VARCHAR(191)", "DOUBLE", true
	case Postgres:
		real = "DOUBLE PRECISION"
	}
	index := func(name string) string {
		if indexInline {
			return fmt.Sprintf(",\n\t\t\tINDEX %s (canvas_id)", name)
		}
		return ""
	}

	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS canvases (
			id %[1]s PRIMARY KEY,
			short_code %[1]s NOT NULL,
			created_at BIGINT NOT NULL
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS previews (
			id %[1]s PRIMARY KEY,
			canvas_id %[1]s NOT NULL,
			preview_name TEXT NOT NULL,
			asset_id TEXT NOT NULL,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			width %[2]s NOT NULL,
			height %[2]s NOT NULL,
			container_id TEXT NOT NULL,
			container_x %[2]s NOT NULL,
			container_y %[2]s NOT NULL,
			linked INTEGER NOT NULL,
			daemon_id TEXT NOT NULL,
			instances_json TEXT NOT NULL,
			rev BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL%[3]s
		)`, id, real, index("idx_previews_canvas")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS containers (
			id %[1]s PRIMARY KEY,
			canvas_id %[1]s NOT NULL,
			directory_id TEXT NOT NULL,
			name TEXT NOT NULL,
			width %[2]s NOT NULL,
			height %[2]s NOT NULL,
			linked INTEGER NOT NULL,
			daemon_id TEXT NOT NULL,
			instances_json TEXT NOT NULL,
			rev BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL%[3]s
		)`, id, real, index("idx_containers_canvas")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS participants (
			canvas_id %[1]s NOT NULL,
			id %[1]s NOT NULL,
			name TEXT NOT NULL,
			avatar TEXT NOT NULL,
			daemon_id TEXT NOT NULL,
			rev BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			last_seen_at BIGINT NOT NULL,
			PRIMARY KEY (canvas_id, id)
		)`, id),
	}
	if !indexInline {
		migrations = append(migrations,
			`CREATE INDEX IF NOT EXISTS idx_previews_canvas ON previews(canvas_id)`,
			`CREATE INDEX IF NOT EXISTS idx_containers_canvas ON containers(canvas_id)`,
		)
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", firstLine(m), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
