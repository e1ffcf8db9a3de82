package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"weft/internal/backend"
)

const defaultSearchLimit = 20

// IndexDocument replaces the search entry for the document's entity.
func (s *Store) IndexDocument(ctx context.Context, doc backend.SearchDocument) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		resolved, err := resolveRef(ctx, tx, doc.Target)
		if err != nil {
			return err
		}
		owner := ownerKey(resolved)
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_index WHERE owner = ?`, owner); err != nil {
			return fmt.Errorf("clear search entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_attributes WHERE owner = ?`, owner); err != nil {
			return fmt.Errorf("clear search attributes: %w", err)
		}

		keys := make([]string, 0, len(doc.Attributes))
		for key := range doc.Attributes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var flattened strings.Builder
		for _, key := range keys {
			value := fmt.Sprint(doc.Attributes[key])
			fmt.Fprintf(&flattened, "%s %s\n", key, value)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO search_attributes (owner, name, value) VALUES (?, ?, ?)`,
				owner, key, value,
			); err != nil {
				return fmt.Errorf("index attribute %s: %w", key, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO search_index (owner, title, body, attributes) VALUES (?, ?, ?, ?)`,
			owner, doc.Title, doc.Body, flattened.String(),
		); err != nil {
			return fmt.Errorf("index document: %w", err)
		}
		return nil
	})
}

// RemoveDocument deletes the search entry for ref.
func (s *Store) RemoveDocument(ctx context.Context, ref backend.ContentRef) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		resolved, err := resolveRef(ctx, tx, ref)
		if err != nil {
			return err
		}
		owner := ownerKey(resolved)
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_index WHERE owner = ?`, owner); err != nil {
			return fmt.Errorf("remove search entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_attributes WHERE owner = ?`, owner); err != nil {
			return fmt.Errorf("remove search attributes: %w", err)
		}
		return nil
	})
}

// Search runs a full-text query. Every term must match; filters require an
// exact attribute value.
func (s *Store) Search(ctx context.Context, query backend.SearchQuery) ([]backend.SearchHit, error) {
	match := ftsQuery(query.Query)
	if match == "" {
		return nil, validationError("search", "query is required")
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	sqlText := `SELECT owner, title, snippet(search_index, 2, '[', ']', '...', 12), bm25(search_index)
        FROM search_index WHERE search_index MATCH ?`
	args := []any{match}
	names := make([]string, 0, len(query.Filter))
	for name := range query.Filter {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sqlText += ` AND owner IN (SELECT owner FROM search_attributes WHERE name = ? AND value = ?)`
		args = append(args, name, query.Filter[name])
	}
	sqlText += ` ORDER BY bm25(search_index) LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var hits []backend.SearchHit
	for rows.Next() {
		var (
			owner string
			hit   backend.SearchHit
			rank  float64
		)
		if err := rows.Scan(&owner, &hit.Title, &hit.Snippet, &rank); err != nil {
			return nil, err
		}
		target, err := parseOwnerKey(owner)
		if err != nil {
			return nil, err
		}
		hit.Target = target
		hit.Score = -rank
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ftsQuery quotes each whitespace-separated term so user input never reaches
// the FTS5 query grammar.
func ftsQuery(raw string) string {
	fields := strings.Fields(raw)
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		terms = append(terms, `"`+strings.ReplaceAll(field, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}
