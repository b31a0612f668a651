package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/ppiankov/rectify/internal/model"
)

// PostgresStore keeps documents in PostgreSQL and searches with pgvector
// cosine distance
type PostgresStore struct {
	db         *sql.DB
	table      string
	collection string
	embedder   Embedder
}

// OpenPostgresStore connects to dsn and ensures the schema exists
func OpenPostgresStore(ctx context.Context, dsn, collection string, embedder Embedder) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresStore(db, collection, embedder)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sql.DB, collection string, embedder Embedder) *PostgresStore {
	return &PostgresStore{
		db:         db,
		table:      collectionTable(collection),
		collection: collection,
		embedder:   embedder,
	}
}

// Migrate creates the vector extension and collection table
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id         TEXT PRIMARY KEY,
		content    TEXT NOT NULL,
		source     TEXT NOT NULL DEFAULT 'unknown',
		authority  TEXT NOT NULL DEFAULT 'unknown',
		metadata   JSONB,
		embedding  vector NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Add implements Store
func (s *PostgresStore) Add(ctx context.Context, documents []string, metadata []map[string]any) ([]string, error) {
	docs, err := prepare(ctx, s.embedder, s.collection, documents, metadata)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, content, source, authority, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			source = EXCLUDED.source,
			authority = EXCLUDED.authority,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, s.table)

	ids := make([]string, len(docs))
	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, d.ID, d.Text, d.Source, d.Authority.String(), string(meta), pgvector.NewVector(d.Vector)); err != nil {
			return nil, fmt.Errorf("insert %s: %w", d.ID, err)
		}
		ids[i] = d.ID
	}
	return ids, nil
}

// Search implements Store. Similarity is 1 - cosine distance; the threshold
// and limit are applied in SQL.
func (s *PostgresStore) Search(ctx context.Context, query string, k int, threshold float64) ([]model.EvidenceSnippet, error) {
	if k <= 0 {
		return []model.EvidenceSnippet{}, nil
	}

	vec, err := embedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, retrievalError("embed query", err)
	}

	q := fmt.Sprintf(`
		SELECT content, source, authority, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3`, s.table)

	rows, err := s.db.QueryContext(ctx, q, pgvector.NewVector(vec), threshold, k)
	if err != nil {
		return nil, retrievalError("query", err)
	}
	defer func() { _ = rows.Close() }()

	snippets := []model.EvidenceSnippet{}
	for rows.Next() {
		var (
			sn        model.EvidenceSnippet
			authority string
		)
		if err := rows.Scan(&sn.Text, &sn.Source, &authority, &sn.Similarity); err != nil {
			return nil, retrievalError("scan", err)
		}
		sn.Authority = model.ParseAuthorityTier(authority)
		if sn.Similarity > 1 {
			sn.Similarity = 1
		}
		// Guard against float rounding around the SQL threshold
		if sn.Similarity < threshold {
			continue
		}
		sn.Rank = len(snippets) + 1
		snippets = append(snippets, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, retrievalError("rows", err)
	}

	return snippets, nil
}

// Count implements Store
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n)
	return n, err
}

// Backend implements Store
func (s *PostgresStore) Backend() string { return "postgres" }

// Close implements Store
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
