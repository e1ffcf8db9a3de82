// Package vectorstore persists content embeddings in PostgreSQL with the
// pgvector extension and answers nearest-neighbour queries.
package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"weft/internal/config"
	"weft/internal/services"
)

var tablePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Chunk is one embedded span of an owner's text.
type Chunk struct {
	Index  int
	Text   string
	Vector []float32
}

// Match is a nearest-neighbour hit; lower Distance is closer.
type Match struct {
	Owner    string
	Index    int
	Text     string
	Distance float64
}

// Store is a pgvector-backed embedding table.
type Store struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
}

// Open connects to the configured database and verifies connectivity.
func Open(ctx context.Context, cfg config.Vector) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "vectorstore", "open", "vector.dsn not configured", nil)
	}
	if err := validateTable(cfg.Table); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "vectorstore", "open", "parse dsn", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create vector pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, services.Wrap(services.ErrExternalTool, "vectorstore", "open", "ping", err)
	}
	return &Store{pool: pool, table: cfg.Table, dimensions: cfg.Dimensions}, nil
}

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the extension, table, and HNSW cosine index.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	owner TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	embedding vector(%d) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner, chunk_index)
)`, s.table, s.dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return services.Wrap(services.ErrExternalTool, "vectorstore", "ensure schema", "", err)
		}
	}
	return nil
}

// Replace swaps all of owner's chunks for chunks in one transaction.
func (s *Store) Replace(ctx context.Context, owner string, chunks []Chunk) error {
	for _, c := range chunks {
		if len(c.Vector) != s.dimensions {
			return services.Wrap(services.ErrValidation, "vectorstore", "replace",
				fmt.Sprintf("chunk %d has %d dimensions, table expects %d", c.Index, len(c.Vector), s.dimensions), nil)
		}
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE owner = $1`, s.table), owner); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		insert := fmt.Sprintf(`INSERT INTO %s (owner, chunk_index, content, embedding) VALUES ($1, $2, $3, $4::vector)`, s.table)
		for _, c := range chunks {
			batch.Queue(insert, owner, c.Index, c.Text, VectorLiteral(c.Vector))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "vectorstore", "replace", owner, err)
	}
	return nil
}

// Query returns the limit chunks closest to vector by cosine distance.
func (s *Store) Query(ctx context.Context, vector []float32, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT owner, chunk_index, content, embedding <=> $1::vector AS distance
FROM %s ORDER BY distance LIMIT $2`, s.table)
	rows, err := s.pool.Query(ctx, query, VectorLiteral(vector), limit)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "vectorstore", "query", "", err)
	}
	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Match, error) {
		var m Match
		err := row.Scan(&m.Owner, &m.Index, &m.Text, &m.Distance)
		return m, err
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "vectorstore", "query", "scan", err)
	}
	return matches, nil
}

// VectorLiteral renders v in pgvector's text input format.
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func validateTable(name string) error {
	if !tablePattern.MatchString(name) {
		return services.Wrap(services.ErrConfiguration, "vectorstore", "open",
			fmt.Sprintf("vector.table %q must be a lowercase SQL identifier", name), nil)
	}
	return nil
}
