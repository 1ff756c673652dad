// Package manifest records ingestion outcomes and the embedding dimension of
// every index namespace in a SQLite database.
//
// The manifest never stores document content; only origin, type, status,
// chunk count and time.
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fyrsmithlabs/tutord/internal/manifest/migrations"
)

// ErrNotFound is returned when a document has no manifest row.
var ErrNotFound = errors.New("manifest record not found")

// Status is the outcome of one ingestion.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Record is one manifest row, keyed by document id and namespace. Chunks is
// the number of the document's entries left in the index: a failed
// re-ingestion keeps the count of the revision still indexed.
type Record struct {
	DocumentID   string    `json:"document_id"`
	Origin       string    `json:"origin"`
	DocumentType string    `json:"document_type"`
	Namespace    string    `json:"namespace"`
	Status       Status    `json:"status"`
	Chunks       int       `json:"chunks"`
	Error        string    `json:"error,omitempty"`
	IngestedAt   time.Time `json:"ingested_at"`
}

// Summary aggregates the manifest.
type Summary struct {
	Processed    int
	Failed       int
	LastIngested time.Time // zero when nothing was ingested
	Namespaces   map[string]int
}

// Store is the SQLite-backed manifest. It also implements
// vectorstore.DimensionRegistry.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the manifest database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("manifest path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating manifest directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies every NNN_*.up.sql newer than the recorded version.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var ups []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	for _, name := range ups {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", version, time.Now().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}
	return nil
}

// Record inserts or replaces the row for r.DocumentID in r.Namespace.
func (s *Store) Record(ctx context.Context, r Record) error {
	if r.DocumentID == "" || r.Namespace == "" {
		return errors.New("document id and namespace required")
	}
	if r.IngestedAt.IsZero() {
		r.IngestedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, origin, document_type, namespace, status, chunk_count, error, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, namespace) DO UPDATE SET
			origin = excluded.origin,
			document_type = excluded.document_type,
			status = excluded.status,
			chunk_count = excluded.chunk_count,
			error = excluded.error,
			ingested_at = excluded.ingested_at
	`, r.DocumentID, r.Origin, r.DocumentType, r.Namespace, string(r.Status), r.Chunks, r.Error, r.IngestedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording document %s: %w", r.DocumentID, err)
	}
	return nil
}

// Get returns the row for a document in namespace.
func (s *Store) Get(ctx context.Context, namespace, documentID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, origin, document_type, namespace, status, chunk_count, error, ingested_at
		FROM documents WHERE id = ? AND namespace = ?
	`, documentID, namespace)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

// List returns the most recent rows, newest first. An empty namespace lists
// every namespace; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, namespace string, limit int) ([]Record, error) {
	query := `SELECT id, origin, document_type, namespace, status, chunk_count, error, ingested_at FROM documents`
	var args []any
	if namespace != "" {
		query += ` WHERE namespace = ?`
		args = append(args, namespace)
	}
	query += ` ORDER BY ingested_at DESC, id, namespace`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summarize counts rows by status and processed rows by namespace.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	sum := Summary{Namespaces: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT status, namespace, COUNT(*) FROM documents GROUP BY status, namespace`)
	if err != nil {
		return sum, fmt.Errorf("summarizing manifest: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status, ns string
			n          int
		)
		if err := rows.Scan(&status, &ns, &n); err != nil {
			return sum, err
		}
		switch Status(status) {
		case StatusProcessed:
			sum.Processed += n
			sum.Namespaces[ns] += n
		case StatusFailed:
			sum.Failed += n
		}
	}
	if err := rows.Err(); err != nil {
		return sum, err
	}

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(ingested_at) FROM documents WHERE status = ?`, string(StatusProcessed)).Scan(&last); err != nil {
		return sum, fmt.Errorf("reading last ingestion: %w", err)
	}
	if last.Valid {
		sum.LastIngested = time.UnixMilli(last.Int64)
	}
	return sum, nil
}

// RemoveNamespace deletes every document row of namespace.
func (s *Store) RemoveNamespace(ctx context.Context, namespace string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE namespace = ?`, namespace)
	if err != nil {
		return 0, fmt.Errorf("removing namespace %s: %w", namespace, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Dimension returns the recorded embedding dimension of namespace.
func (s *Store) Dimension(ctx context.Context, namespace string) (int, bool, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM namespaces WHERE name = ?`, namespace).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading dimension of %s: %w", namespace, err)
	}
	return dim, true, nil
}

// SetDimension records dim for namespace. An existing record is kept, so
// the first writer wins.
func (s *Store) SetDimension(ctx context.Context, namespace string, dim int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO namespaces (name, dimension, created_at) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		namespace, dim, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("recording dimension of %s: %w", namespace, err)
	}
	return nil
}

// ForgetDimension removes the dimension record of namespace.
func (s *Store) ForgetDimension(ctx context.Context, namespace string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM namespaces WHERE name = ?`, namespace); err != nil {
		return fmt.Errorf("forgetting dimension of %s: %w", namespace, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r      Record
		status string
		at     int64
	)
	if err := row.Scan(&r.DocumentID, &r.Origin, &r.DocumentType, &r.Namespace, &status, &r.Chunks, &r.Error, &at); err != nil {
		return Record{}, err
	}
	r.Status = Status(status)
	r.IngestedAt = time.UnixMilli(at)
	return r, nil
}
