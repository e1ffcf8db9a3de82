package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"weft/internal/backend"
	"weft/internal/services"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func encodeJSON(value map[string]any) (any, error) {
	if len(value) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeJSON(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ownerKey is the stable text form of a content reference used as a foreign
// key by supplementary content, state history, and the search index. A
// metadata reference must carry a resolved version.
func ownerKey(ref backend.ContentRef) string {
	if ref.IsCollection() {
		return "collection:" + ref.CollectionID
	}
	return "metadata:" + ref.MetadataID + "@" + strconv.Itoa(ref.MetadataVersion)
}

func parseOwnerKey(value string) (backend.ContentRef, error) {
	if id, ok := strings.CutPrefix(value, "collection:"); ok {
		return backend.CollectionRef(id), nil
	}
	if rest, ok := strings.CutPrefix(value, "metadata:"); ok {
		idx := strings.LastIndex(rest, "@")
		if idx <= 0 {
			return backend.ContentRef{}, fmt.Errorf("owner %q has no version", value)
		}
		version, err := strconv.Atoi(rest[idx+1:])
		if err != nil {
			return backend.ContentRef{}, fmt.Errorf("owner %q: %w", value, err)
		}
		return backend.MetadataRef(rest[:idx], version), nil
	}
	return backend.ContentRef{}, fmt.Errorf("unrecognized owner %q", value)
}

func validationError(op, message string) error {
	return services.Wrap(services.ErrValidation, "store", op, message, nil)
}

func notFoundError(op, message string) error {
	return services.Wrap(services.ErrNotFound, "store", op, message, nil)
}

const jobColumns = "id, queue, metadata_id, metadata_version, collection_id, workflow_id, activity_id, configuration_json, attempts, max_attempts, phase, next_state, next_immediate, status, lease_owner, lease_expires_at, available_at, last_error, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*backend.Job, error) {
	var (
		id              string
		queue           string
		metadataID      sql.NullString
		metadataVersion sql.NullInt64
		collectionID    sql.NullString
		workflowID      sql.NullString
		activityID      string
		configuration   sql.NullString
		attempts        int
		maxAttempts     int
		phase           string
		nextState       sql.NullString
		nextImmediate   bool
		status          string
		leaseOwner      sql.NullString
		leaseExpiresRaw sql.NullString
		availableRaw    string
		lastError       sql.NullString
		createdRaw      string
		updatedRaw      string
	)
	if err := scanner.Scan(
		&id,
		&queue,
		&metadataID,
		&metadataVersion,
		&collectionID,
		&workflowID,
		&activityID,
		&configuration,
		&attempts,
		&maxAttempts,
		&phase,
		&nextState,
		&nextImmediate,
		&status,
		&leaseOwner,
		&leaseExpiresRaw,
		&availableRaw,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &backend.Job{
		ID:            id,
		Queue:         queue,
		WorkflowID:    workflowID.String,
		ActivityID:    activityID,
		Attempts:      attempts,
		MaxAttempts:   maxAttempts,
		Phase:         backend.Phase(phase),
		NextState:     nextState.String,
		NextImmediate: nextImmediate,
		Status:        backend.JobStatus(status),
		LeaseOwner:    leaseOwner.String,
		LastError:     lastError.String,
	}
	if collectionID.Valid {
		job.Target = backend.CollectionRef(collectionID.String)
	} else {
		job.Target = backend.MetadataRef(metadataID.String, int(metadataVersion.Int64))
	}
	cfg, err := decodeJSON(configuration)
	if err != nil {
		return nil, fmt.Errorf("decode job %s configuration: %w", id, err)
	}
	job.Configuration = cfg
	if leaseExpiresRaw.Valid {
		if t, err := parseTimeString(leaseExpiresRaw.String); err == nil {
			job.LeaseExpiresAt = &t
		}
	}
	if t, err := parseTimeString(availableRaw); err == nil {
		job.AvailableAt = t
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = t
	}
	return job, nil
}
