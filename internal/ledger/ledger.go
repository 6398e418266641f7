package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cruciblehq/kiln/internal/paths"
)

// Connections in the pool. Writes are serialized by SQLite regardless, a
// handful of connections lets concurrent targets and readers proceed.
const poolSize = 4

// Applied to every connection before first use.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

const schema = `
CREATE TABLE IF NOT EXISTS builds (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	platform  TEXT    NOT NULL,
	triple    TEXT    NOT NULL,
	recipe    TEXT    NOT NULL,
	source    TEXT    NOT NULL,
	cache_hit INTEGER NOT NULL,
	started   INTEGER NOT NULL,
	duration  INTEGER NOT NULL,
	status    TEXT    NOT NULL,
	error     TEXT    NOT NULL,
	output    TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS builds_triple ON builds (triple, id);
`

// Outcome of a target build.
type Status string

const (
	Succeeded Status = "succeeded"
	Failed    Status = "failed"
)

// One target build.
type Entry struct {
	ID       int64         `json:"id"`
	Platform string        `json:"platform"`
	Triple   string        `json:"triple"`
	Recipe   string        `json:"recipe"`    // Digest keying the dependency layer.
	Source   string        `json:"source"`    // Fingerprint of the source tree.
	CacheHit bool          `json:"cache_hit"` // Dependency layer reused.
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Output   string        `json:"output,omitempty"` // Exported archive path.
}

// Build history backed by a SQLite connection pool.
type Ledger struct {
	pool *sqlitex.Pool
	path string
}

// Opens the ledger at path, creating the database on first use.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepare,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrLedger, path, err)
	}

	slog.Debug("ledger opened", "path", path)
	return &Ledger{pool: pool, path: path}, nil
}

// Closes every connection. Blocks until borrowed connections are returned.
func (l *Ledger) Close() error {
	if err := l.pool.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrLedger, l.path, err)
	}
	return nil
}

// Appends e and sets its ID.
func (l *Ledger) Record(ctx context.Context, e *Entry) error {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLedger, err)
	}
	defer l.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO builds (platform, triple, recipe, source, cache_hit, started, duration, status, error, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				e.Platform, e.Triple, e.Recipe, e.Source, e.CacheHit,
				e.Started.UnixNano(), int64(e.Duration), string(e.Status), e.Error, e.Output,
			},
		})
	if err != nil {
		return fmt.Errorf("%w: recording build: %w", ErrLedger, err)
	}

	e.ID = conn.LastInsertRowID()
	return nil
}

// Returns up to limit entries, newest first. A non-positive limit returns all.
func (l *Ledger) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	return l.query(ctx, `SELECT `+columns+` FROM builds ORDER BY id DESC LIMIT ?`, limit)
}

// Returns the newest entry for triple.
func (l *Ledger) Last(ctx context.Context, triple string) (*Entry, error) {
	entries, err := l.query(ctx, `SELECT `+columns+` FROM builds WHERE triple = ? ORDER BY id DESC LIMIT 1`, triple)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, triple)
	}
	return &entries[0], nil
}

const columns = `id, platform, triple, recipe, source, cache_hit, started, duration, status, error, output`

func (l *Ledger) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	defer l.pool.Put(conn)

	var entries []Entry
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entries = append(entries, Entry{
				ID:       stmt.ColumnInt64(0),
				Platform: stmt.ColumnText(1),
				Triple:   stmt.ColumnText(2),
				Recipe:   stmt.ColumnText(3),
				Source:   stmt.ColumnText(4),
				CacheHit: stmt.ColumnBool(5),
				Started:  time.Unix(0, stmt.ColumnInt64(6)),
				Duration: time.Duration(stmt.ColumnInt64(7)),
				Status:   Status(stmt.ColumnText(8)),
				Error:    stmt.ColumnText(9),
				Output:   stmt.ColumnText(10),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	return entries, nil
}

func prepare(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return sqlitex.ExecuteScript(conn, schema, nil)
}
