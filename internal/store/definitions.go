package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"weft/internal/backend"
)

const definitionColumns = "category, key, name, body_json, created_at, updated_at"

// FindDefinition looks up a definition by natural key. A missing definition
// returns nil without error.
func (s *Store) FindDefinition(ctx context.Context, category backend.Category, key string) (*backend.Definition, error) {
	return findDefinition(ctx, s.db, category, key)
}

func findDefinition(ctx context.Context, q querier, category backend.Category, key string) (*backend.Definition, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM definitions WHERE category = ? AND key = ?`,
		category, key,
	)
	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find definition %s/%s: %w", category, key, err)
	}
	return def, nil
}

// CreateDefinition inserts a new definition; the natural key must be unused.
func (s *Store) CreateDefinition(ctx context.Context, def backend.Definition) error {
	key := strings.TrimSpace(def.Key)
	if key == "" {
		return validationError("create definition", fmt.Sprintf("%s definition has no key", def.Category))
	}
	body, err := encodeJSON(def.Body)
	if err != nil {
		return validationError("create definition", fmt.Sprintf("encode %s/%s: %v", def.Category, key, err))
	}
	now := formatTime(s.timestamp())
	res, err := s.execWithRetry(ctx,
		`INSERT INTO definitions (category, key, name, body_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (category, key) DO NOTHING`,
		def.Category, key, def.Name, body, now, now,
	)
	if err != nil {
		return fmt.Errorf("create definition %s/%s: %w", def.Category, key, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return validationError("create definition", fmt.Sprintf("%s/%s already exists", def.Category, key))
	}
	return nil
}

// UpdateDefinition replaces the name and body of an existing definition.
func (s *Store) UpdateDefinition(ctx context.Context, def backend.Definition) error {
	body, err := encodeJSON(def.Body)
	if err != nil {
		return validationError("update definition", fmt.Sprintf("encode %s/%s: %v", def.Category, def.Key, err))
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE definitions SET name = ?, body_json = ?, updated_at = ? WHERE category = ? AND key = ?`,
		def.Name, body, formatTime(s.timestamp()), def.Category, def.Key,
	)
	if err != nil {
		return fmt.Errorf("update definition %s/%s: %w", def.Category, def.Key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFoundError("update definition", fmt.Sprintf("%s/%s", def.Category, def.Key))
	}
	return nil
}

// ListDefinitions returns a category's definitions ordered by key.
func (s *Store) ListDefinitions(ctx context.Context, category backend.Category) ([]backend.Definition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+definitionColumns+` FROM definitions WHERE category = ? ORDER BY key`,
		category,
	)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []backend.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

func scanDefinition(scanner interface{ Scan(dest ...any) error }) (*backend.Definition, error) {
	var (
		def        backend.Definition
		category   string
		body       sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&category, &def.Key, &def.Name, &body, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	def.Category = backend.Category(category)
	decoded, err := decodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("decode definition %s/%s: %w", category, def.Key, err)
	}
	def.Body = decoded
	def.CreatedAt, _ = parseTimeString(createdRaw)
	def.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &def, nil
}
