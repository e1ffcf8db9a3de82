package backend

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ContentRef identifies the entity a job is bound to: either a versioned
// metadata entity or a collection, never both.
type ContentRef struct {
	MetadataID      string `json:"metadata_id,omitempty"`
	MetadataVersion int    `json:"metadata_version,omitempty"`
	CollectionID    string `json:"collection_id,omitempty"`
}

// MetadataRef builds a reference to a metadata entity version.
func MetadataRef(id string, version int) ContentRef {
	return ContentRef{MetadataID: id, MetadataVersion: version}
}

// CollectionRef builds a reference to a collection.
func CollectionRef(id string) ContentRef {
	return ContentRef{CollectionID: id}
}

// IsMetadata reports whether the reference points at a metadata entity.
func (r ContentRef) IsMetadata() bool { return r.MetadataID != "" }

// IsCollection reports whether the reference points at a collection.
func (r ContentRef) IsCollection() bool { return r.CollectionID != "" }

// Validate enforces that exactly one target is set.
func (r ContentRef) Validate() error {
	hasMetadata := strings.TrimSpace(r.MetadataID) != ""
	hasCollection := strings.TrimSpace(r.CollectionID) != ""
	switch {
	case hasMetadata && hasCollection:
		return errors.New("content reference must target a metadata entity or a collection, not both")
	case !hasMetadata && !hasCollection:
		return errors.New("content reference is empty")
	case hasMetadata && r.MetadataVersion < 0:
		return fmt.Errorf("metadata version %d is negative", r.MetadataVersion)
	}
	return nil
}

func (r ContentRef) String() string {
	if r.IsCollection() {
		return "collection:" + r.CollectionID
	}
	if r.MetadataVersion > 0 {
		return fmt.Sprintf("metadata:%s@%d", r.MetadataID, r.MetadataVersion)
	}
	return "metadata:" + r.MetadataID
}

// JobStatus is the persisted lifecycle status of a job.
type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
)

// Phase records how far a job progressed so a retry resumes after the last
// step that must not be repeated.
type Phase string

const (
	// PhaseNone means the activity has not completed yet.
	PhaseNone Phase = ""
	// PhaseExecuted means the activity succeeded; only the transition remains.
	PhaseExecuted Phase = "executed"
	// PhaseStateCompleted means the current state was completed; only
	// entering the next state remains.
	PhaseStateCompleted Phase = "state_completed"
	// PhaseFailing means the job failed but its entity has not entered the
	// error state yet; a retry only enters the error state.
	PhaseFailing Phase = "failing"
)

// Progress is what SetJobPhase persists. NextState carries a state the
// activity computed so a resumed job enters the same state.
type Progress struct {
	Phase     Phase  `json:"phase"`
	NextState string `json:"next_state,omitempty"`
	Immediate bool   `json:"immediate,omitempty"`
}

// Job is one unit of queued work bound to a single content entity and activity.
type Job struct {
	ID             string         `json:"id"`
	Queue          string         `json:"queue"`
	Target         ContentRef     `json:"target"`
	WorkflowID     string         `json:"workflow_id,omitempty"`
	ActivityID     string         `json:"activity_id"`
	Configuration  map[string]any `json:"configuration,omitempty"`
	Attempts       int            `json:"attempts"`
	MaxAttempts    int            `json:"max_attempts"`
	Phase          Phase          `json:"phase,omitempty"`
	NextState      string         `json:"next_state,omitempty"`
	NextImmediate  bool           `json:"next_immediate,omitempty"`
	Status         JobStatus      `json:"status"`
	LeaseOwner     string         `json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time     `json:"lease_expires_at,omitempty"`
	AvailableAt    time.Time      `json:"available_at"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ConfigString returns a trimmed string configuration value.
func (j *Job) ConfigString(key string) string {
	if j == nil || j.Configuration == nil {
		return ""
	}
	switch v := j.Configuration[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// ConfigBool returns a boolean configuration value, accepting "true"/"false" strings.
func (j *Job) ConfigBool(key string) bool {
	if j == nil || j.Configuration == nil {
		return false
	}
	switch v := j.Configuration[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

// EnqueueRequest submits a job directly, bypassing workflow definitions.
type EnqueueRequest struct {
	Queue         string         `json:"queue"`
	Target        ContentRef     `json:"target"`
	WorkflowID    string         `json:"workflow_id,omitempty"`
	ActivityID    string         `json:"activity_id"`
	Configuration map[string]any `json:"configuration,omitempty"`
	MaxAttempts   int            `json:"max_attempts,omitempty"`
}

// JobFilter narrows job listings.
type JobFilter struct {
	Queue    string
	Statuses []JobStatus
	Limit    int
}

// Metadata is a versioned content entity with a primary content blob.
type Metadata struct {
	ID            string         `json:"id"`
	Version       int            `json:"version"`
	Name          string         `json:"name"`
	ContentType   string         `json:"content_type"`
	ContentLength int64          `json:"content_length"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	WorkflowState string         `json:"workflow_state,omitempty"`
	StateStatus   string         `json:"state_status,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Ref returns the reference to this metadata version.
func (m *Metadata) Ref() ContentRef { return MetadataRef(m.ID, m.Version) }

// MetadataInput describes new metadata content.
type MetadataInput struct {
	Name        string         `json:"name"`
	ContentType string         `json:"content_type"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// Collection groups content; it has no primary content blob.
type Collection struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	WorkflowState string         `json:"workflow_state,omitempty"`
	StateStatus   string         `json:"state_status,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Supplementary is derived content attached to an entity under a unique key.
type Supplementary struct {
	Owner         ContentRef `json:"owner"`
	Key           string     `json:"key"`
	Name          string     `json:"name"`
	ContentType   string     `json:"content_type"`
	ContentLength int64      `json:"content_length"`
	CreatedAt     time.Time  `json:"created_at"`
}

// SupplementaryInput describes supplementary content to upsert.
type SupplementaryInput struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

// StateEvent is one completed workflow state in an entity's history.
type StateEvent struct {
	Target      ContentRef `json:"target"`
	State       string     `json:"state"`
	Status      string     `json:"status"`
	CompletedAt time.Time  `json:"completed_at"`
}

// SearchDocument is the indexed representation of an entity.
type SearchDocument struct {
	Target     ContentRef     `json:"target"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// SearchQuery is an ad-hoc full-text query with exact-match attribute filters.
type SearchQuery struct {
	Query  string            `json:"query"`
	Filter map[string]string `json:"filter,omitempty"`
	Limit  int               `json:"limit,omitempty"`
}

// SearchHit is one search result.
type SearchHit struct {
	Target  ContentRef `json:"target"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	Score   float64    `json:"score"`
}
