package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"weft/internal/backend"
	"weft/internal/storage"
)

const defaultContentType = "application/octet-stream"

// CreateMetadata stores body as the primary content of a new metadata entity
// at version 1.
func (s *Store) CreateMetadata(ctx context.Context, in backend.MetadataInput, body io.Reader) (*backend.Metadata, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationError("create metadata", "name is required")
	}
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	attributes, err := encodeJSON(in.Attributes)
	if err != nil {
		return nil, validationError("create metadata", fmt.Sprintf("encode attributes: %v", err))
	}

	id := uuid.NewString()
	const version = 1
	size, err := s.blobs.Put(ctx, storage.ContentKey(id, version), body, contentType)
	if err != nil {
		return nil, fmt.Errorf("store content: %w", err)
	}

	now := formatTime(s.timestamp())
	_, err = s.execWithRetry(ctx,
		`INSERT INTO metadata (id, version, name, content_type, content_length, attributes_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, version, name, contentType, size, attributes, now, now,
	)
	if err != nil {
		_ = s.blobs.Delete(context.WithoutCancel(ctx), storage.ContentKey(id, version))
		return nil, fmt.Errorf("insert metadata: %w", err)
	}
	return s.GetMetadata(ctx, id, version)
}

// CreateCollection inserts a new collection.
func (s *Store) CreateCollection(ctx context.Context, name string, attributes map[string]any) (*backend.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("create collection", "name is required")
	}
	encoded, err := encodeJSON(attributes)
	if err != nil {
		return nil, validationError("create collection", fmt.Sprintf("encode attributes: %v", err))
	}
	id := uuid.NewString()
	now := formatTime(s.timestamp())
	_, err = s.execWithRetry(ctx,
		`INSERT INTO collections (id, name, attributes_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, encoded, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert collection: %w", err)
	}
	return s.GetCollection(ctx, id)
}

const metadataColumns = "id, version, name, content_type, content_length, attributes_json, workflow_state, state_status, created_at, updated_at"

// GetMetadata fetches a metadata version; version 0 selects the latest.
func (s *Store) GetMetadata(ctx context.Context, id string, version int) (*backend.Metadata, error) {
	var row *sql.Row
	if version > 0 {
		row = s.db.QueryRowContext(ctx, `SELECT `+metadataColumns+` FROM metadata WHERE id = ? AND version = ?`, id, version)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT `+metadataColumns+` FROM metadata WHERE id = ? ORDER BY version DESC LIMIT 1`, id)
	}
	meta, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError("get metadata", backend.MetadataRef(id, version).String())
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	return meta, nil
}

func scanMetadata(scanner interface{ Scan(dest ...any) error }) (*backend.Metadata, error) {
	var (
		meta       backend.Metadata
		attributes sql.NullString
		state      sql.NullString
		status     sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&meta.ID,
		&meta.Version,
		&meta.Name,
		&meta.ContentType,
		&meta.ContentLength,
		&attributes,
		&state,
		&status,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	attrs, err := decodeJSON(attributes)
	if err != nil {
		return nil, fmt.Errorf("decode metadata %s attributes: %w", meta.ID, err)
	}
	meta.Attributes = attrs
	meta.WorkflowState = state.String
	meta.StateStatus = status.String
	meta.CreatedAt, _ = parseTimeString(createdRaw)
	meta.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &meta, nil
}

// GetCollection fetches a collection by id.
func (s *Store) GetCollection(ctx context.Context, id string) (*backend.Collection, error) {
	var (
		coll       backend.Collection
		attributes sql.NullString
		state      sql.NullString
		status     sql.NullString
		createdRaw string
		updatedRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, attributes_json, workflow_state, state_status, created_at, updated_at FROM collections WHERE id = ?`,
		id,
	).Scan(&coll.ID, &coll.Name, &attributes, &state, &status, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError("get collection", backend.CollectionRef(id).String())
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	attrs, err := decodeJSON(attributes)
	if err != nil {
		return nil, fmt.Errorf("decode collection %s attributes: %w", id, err)
	}
	coll.Attributes = attrs
	coll.WorkflowState = state.String
	coll.StateStatus = status.String
	coll.CreatedAt, _ = parseTimeString(createdRaw)
	coll.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &coll, nil
}

// resolveRef confirms the referenced entity exists and pins a metadata
// reference without a version to the latest version.
func resolveRef(ctx context.Context, q querier, ref backend.ContentRef) (backend.ContentRef, error) {
	if err := ref.Validate(); err != nil {
		return ref, validationError("resolve", err.Error())
	}
	if ref.IsCollection() {
		var id string
		err := q.QueryRowContext(ctx, `SELECT id FROM collections WHERE id = ?`, ref.CollectionID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return ref, notFoundError("resolve", ref.String())
		}
		if err != nil {
			return ref, fmt.Errorf("resolve collection: %w", err)
		}
		return ref, nil
	}

	var version int
	var err error
	if ref.MetadataVersion > 0 {
		err = q.QueryRowContext(ctx, `SELECT version FROM metadata WHERE id = ? AND version = ?`, ref.MetadataID, ref.MetadataVersion).Scan(&version)
	} else {
		err = q.QueryRowContext(ctx, `SELECT version FROM metadata WHERE id = ? ORDER BY version DESC LIMIT 1`, ref.MetadataID).Scan(&version)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ref, notFoundError("resolve", ref.String())
	}
	if err != nil {
		return ref, fmt.Errorf("resolve metadata: %w", err)
	}
	return backend.MetadataRef(ref.MetadataID, version), nil
}

// entityTable returns the table and key predicate for a resolved reference.
func entityTable(ref backend.ContentRef) (string, string, []any) {
	if ref.IsCollection() {
		return "collections", "id = ?", []any{ref.CollectionID}
	}
	return "metadata", "id = ? AND version = ?", []any{ref.MetadataID, ref.MetadataVersion}
}

// OpenContent streams a metadata entity's primary content.
func (s *Store) OpenContent(ctx context.Context, ref backend.ContentRef) (io.ReadCloser, error) {
	if ref.IsCollection() {
		return nil, validationError("open content", "collections have no primary content")
	}
	resolved, err := resolveRef(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}
	return s.blobs.Open(ctx, storage.ContentKey(resolved.MetadataID, resolved.MetadataVersion))
}

// PutSupplementary stores body under key for the entity, replacing any
// earlier content with the same key.
func (s *Store) PutSupplementary(ctx context.Context, ref backend.ContentRef, in backend.SupplementaryInput, body io.Reader) (*backend.Supplementary, error) {
	key, err := storage.CleanKey(in.Key)
	if err != nil {
		return nil, validationError("put supplementary", err.Error())
	}
	resolved, err := resolveRef(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = key
	}

	owner := ownerKey(resolved)
	size, err := s.blobs.Put(ctx, storage.SupplementaryKey(owner, key), body, contentType)
	if err != nil {
		return nil, fmt.Errorf("store supplementary %s: %w", key, err)
	}
	now := s.timestamp()
	_, err = s.execWithRetry(ctx,
		`INSERT INTO supplementary (owner, key, name, content_type, content_length, created_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (owner, key) DO UPDATE SET
             name = excluded.name,
             content_type = excluded.content_type,
             content_length = excluded.content_length,
             created_at = excluded.created_at`,
		owner, key, name, contentType, size, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("record supplementary %s: %w", key, err)
	}
	return &backend.Supplementary{
		Owner:         resolved,
		Key:           key,
		Name:          name,
		ContentType:   contentType,
		ContentLength: size,
		CreatedAt:     now,
	}, nil
}

// ListSupplementary returns the entity's supplementary content ordered by key.
func (s *Store) ListSupplementary(ctx context.Context, ref backend.ContentRef) ([]backend.Supplementary, error) {
	resolved, err := resolveRef(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, name, content_type, content_length, created_at FROM supplementary WHERE owner = ? ORDER BY key`,
		ownerKey(resolved),
	)
	if err != nil {
		return nil, fmt.Errorf("list supplementary: %w", err)
	}
	defer rows.Close()

	var items []backend.Supplementary
	for rows.Next() {
		item := backend.Supplementary{Owner: resolved}
		var createdRaw string
		if err := rows.Scan(&item.Key, &item.Name, &item.ContentType, &item.ContentLength, &createdRaw); err != nil {
			return nil, err
		}
		item.CreatedAt, _ = parseTimeString(createdRaw)
		items = append(items, item)
	}
	return items, rows.Err()
}

// OpenSupplementary streams supplementary content by key.
func (s *Store) OpenSupplementary(ctx context.Context, ref backend.ContentRef, key string) (io.ReadCloser, error) {
	cleaned, err := storage.CleanKey(key)
	if err != nil {
		return nil, validationError("open supplementary", err.Error())
	}
	resolved, err := resolveRef(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}
	owner := ownerKey(resolved)
	var found string
	err = s.db.QueryRowContext(ctx, `SELECT key FROM supplementary WHERE owner = ? AND key = ?`, owner, cleaned).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError("open supplementary", fmt.Sprintf("%s %s", resolved, cleaned))
	}
	if err != nil {
		return nil, fmt.Errorf("lookup supplementary: %w", err)
	}
	return s.blobs.Open(ctx, storage.SupplementaryKey(owner, cleaned))
}

// SetAttributes merges attributes into the entity's attribute map. A nil
// value removes the attribute.
func (s *Store) SetAttributes(ctx context.Context, ref backend.ContentRef, attributes map[string]any) error {
	if len(attributes) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		resolved, err := resolveRef(ctx, tx, ref)
		if err != nil {
			return err
		}
		table, where, args := entityTable(resolved)
		var raw sql.NullString
		if err := tx.QueryRowContext(ctx, `SELECT attributes_json FROM `+table+` WHERE `+where, args...).Scan(&raw); err != nil {
			return fmt.Errorf("read attributes: %w", err)
		}
		current, err := decodeJSON(raw)
		if err != nil {
			return fmt.Errorf("decode attributes: %w", err)
		}
		if current == nil {
			current = make(map[string]any, len(attributes))
		}
		for key, value := range attributes {
			if value == nil {
				delete(current, key)
				continue
			}
			current[key] = value
		}
		encoded, err := encodeJSON(current)
		if err != nil {
			return validationError("set attributes", fmt.Sprintf("encode attributes: %v", err))
		}
		update := append([]any{encoded, formatTime(s.timestamp())}, args...)
		if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET attributes_json = ?, updated_at = ? WHERE `+where, update...); err != nil {
			return fmt.Errorf("update attributes: %w", err)
		}
		return nil
	})
}
