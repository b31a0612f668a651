package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/rectify/internal/model"
)

// SQLiteStore persists documents and vectors in a single SQLite file.
// Search scans the collection and ranks by cosine similarity.
type SQLiteStore struct {
	db         *sql.DB
	table      string
	collection string
	embedder   Embedder
}

var tableNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// collectionTable maps a collection name onto a safe table name
func collectionTable(collection string) string {
	name := tableNameSanitizer.ReplaceAllString(collection, "_")
	if name == "" {
		name = "default"
	}
	return "docs_" + strings.ToLower(name)
}

// sqlitePath resolves db_path: a directory gets a vectors.db file inside it
func sqlitePath(dbPath string) string {
	if dbPath == ":memory:" || strings.HasSuffix(dbPath, ".db") || strings.HasSuffix(dbPath, ".sqlite") {
		return dbPath
	}
	return filepath.Join(dbPath, "vectors.db")
}

// OpenSQLiteStore opens (creating if needed) the store at dbPath
func OpenSQLiteStore(ctx context.Context, dbPath, collection string, embedder Embedder) (*SQLiteStore, error) {
	path := sqlitePath(dbPath)
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases shared and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:         db,
		table:      collectionTable(collection),
		collection: collection,
		embedder:   embedder,
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         TEXT PRIMARY KEY,
		content    TEXT NOT NULL,
		source     TEXT NOT NULL DEFAULT 'unknown',
		authority  TEXT NOT NULL DEFAULT 'unknown',
		metadata   TEXT,
		embedding  BLOB NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Add implements Store
func (s *SQLiteStore) Add(ctx context.Context, documents []string, metadata []map[string]any) ([]string, error) {
	docs, err := prepare(ctx, s.embedder, s.collection, documents, metadata)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, content, source, authority, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			source = excluded.source,
			authority = excluded.authority,
			metadata = excluded.metadata,
			embedding = excluded.embedding`, s.table))
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ids := make([]string, len(docs))
	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Text, d.Source, d.Authority.String(), string(meta), encodeVector(d.Vector)); err != nil {
			return nil, fmt.Errorf("insert %s: %w", d.ID, err)
		}
		ids[i] = d.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// Search implements Store
func (s *SQLiteStore) Search(ctx context.Context, query string, k int, threshold float64) ([]model.EvidenceSnippet, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return nil, retrievalError("count", err)
	}
	if n == 0 {
		return []model.EvidenceSnippet{}, nil
	}

	vec, err := embedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, retrievalError("embed query", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, content, source, authority, embedding FROM %s ORDER BY created_at, id", s.table))
	if err != nil {
		return nil, retrievalError("query", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]scored, 0, n)
	for rows.Next() {
		var (
			d         document
			authority string
			blob      []byte
		)
		if err := rows.Scan(&d.ID, &d.Text, &d.Source, &authority, &blob); err != nil {
			return nil, retrievalError("scan", err)
		}
		d.Authority = model.ParseAuthorityTier(authority)
		d.Vector = decodeVector(blob)
		candidates = append(candidates, scored{doc: d, similarity: Similarity(vec, d.Vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, retrievalError("rows", err)
	}

	return rank(candidates, k, threshold), nil
}

// Count implements Store
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n)
	return n, err
}

// Backend implements Store
func (s *SQLiteStore) Backend() string { return "sqlite" }

// Close implements Store
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// encodeVector stores a vector as little-endian float32s
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
