// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-vector/internal/logging"
	"github.com/pdiddy/pubmed-vector/internal/vecmath"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// SQLite keeps records in a local database file and answers searches by
// exact cosine over every non-degraded row. Writes commit immediately.
type SQLite struct {
	db     *sql.DB
	schema Schema
	log    *zap.Logger
	mu     sync.Mutex
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at cfg.Path and the table named
// cfg.Collection. ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, cfg types.StoreConfig, log *zap.Logger) (*SQLite, error) {
	cfg = cfg.WithDefaults()
	if err := checkCollectionName(cfg.Collection); err != nil {
		return nil, err
	}

	dsn := "file::memory:?cache=private"
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		dsn = cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &StoreError{Op: "connect", Collection: cfg.Collection, Err: err}
	}
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &SQLite{
		db:     db,
		schema: NewSchema(cfg.Collection, cfg.Dimension),
		log:    logging.OrNop(log).Named("sqlite"),
	}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) createSchema(ctx context.Context) error {
	name := s.schema.Collection
	fail := func(err error) error {
		return &StoreError{Op: "schema", Collection: name, Err: err}
	}

	cols := make([]string, 0, len(s.schema.Fields)+1)
	for _, f := range s.schema.Fields {
		def := f.Name + " TEXT NOT NULL"
		if f.Name == FieldID {
			def += " PRIMARY KEY"
		}
		cols = append(cols, def)
	}
	cols = append(cols,
		FieldDegraded+" INTEGER NOT NULL DEFAULT 0",
		FieldEmbedding+" BLOB NOT NULL",
	)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS vector_collections (
			name TEXT PRIMARY KEY,
			dim INTEGER NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, name, strings.Join(cols, ", ")),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fail(fmt.Errorf("executing schema statement: %w", err))
		}
	}

	if err := s.addDegradedColumn(ctx); err != nil {
		return fail(err)
	}

	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dim FROM vector_collections WHERE name = ?`, name).Scan(&dim)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, `INSERT INTO vector_collections (name, dim) VALUES (?, ?)`, name, s.schema.Dim); err != nil {
			return fail(err)
		}
	case err != nil:
		return fail(err)
	case dim != s.schema.Dim:
		return fail(fmt.Errorf("schema mismatch: collection dim %d, want %d", dim, s.schema.Dim))
	}
	return nil
}

// addDegradedColumn upgrades tables created before the degraded flag was
// stored. Existing rows count as real embeddings.
func (s *SQLite) addDegradedColumn(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, s.schema.Collection))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return err
		}
		if name == FieldDegraded {
			return rows.Err()
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	s.log.Info("adding degraded column", zap.String("collection", s.schema.Collection))
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s INTEGER NOT NULL DEFAULT 0`,
		s.schema.Collection, FieldDegraded))
	return err
}

// Insert writes recs in one transaction. INSERT OR REPLACE makes a repeated
// id overwrite the stored row.
func (s *SQLite) Insert(ctx context.Context, recs []types.Record) error {
	if len(recs) == 0 {
		return nil
	}
	recs, err := prepare(s.schema, recs, s.log)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		return &StoreError{Op: "insert", Collection: s.schema.Collection, Err: err}
	}

	names := append(s.schema.TextFieldNames(), FieldDegraded, FieldEmbedding)
	query := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (%s)`,
		s.schema.Collection, strings.Join(names, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "))

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fail(err)
	}
	defer stmt.Close()

	for _, r := range recs {
		args := make([]any, 0, len(names))
		for _, f := range s.schema.Fields {
			args = append(args, *field(&r, f.Name))
		}
		args = append(args, r.Degraded, vecmath.Encode(r.Embedding))
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fail(fmt.Errorf("record %s: %w", r.ID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fail(err)
	}
	return nil
}

// Flush is a no-op: committed rows are immediately visible.
func (s *SQLite) Flush(context.Context) error { return nil }

// Search scores every non-degraded row against vec and returns the topK best.
func (s *SQLite) Search(ctx context.Context, vec []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	fail := func(err error) error {
		return &StoreError{Op: "search", Collection: s.schema.Collection, Err: err}
	}
	if len(vec) != s.schema.Dim {
		return nil, fail(fmt.Errorf("query vector length %d, want %d", len(vec), s.schema.Dim))
	}

	names := append(s.schema.TextFieldNames(), FieldEmbedding)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s = 0`,
		strings.Join(names, ", "), s.schema.Collection, FieldDegraded))
	if err != nil {
		return nil, fail(err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var blob []byte
		dest := make([]any, 0, len(names))
		for _, f := range s.schema.Fields {
			dest = append(dest, field(&h.Record, f.Name))
		}
		dest = append(dest, &blob)
		if err := rows.Scan(dest...); err != nil {
			return nil, fail(err)
		}
		h.Score = vecmath.Cosine(vec, vecmath.Decode(blob))
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(err)
	}

	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Count returns the number of stored records.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.schema.Collection)).Scan(&n)
	if err != nil {
		return 0, &StoreError{Op: "search", Collection: s.schema.Collection, Err: err}
	}
	return n, nil
}
