package backend

import (
	"context"
	"io"
	"time"
)

// Jobs is the job claim and lease contract. ClaimJob must atomically lease at
// most one job to one owner; a nil job with a nil error means the queue is idle.
type Jobs interface {
	EnqueueJob(ctx context.Context, req EnqueueRequest) (*Job, error)
	EnqueueWorkflow(ctx context.Context, workflowID string, target ContentRef) ([]*Job, error)
	ClaimJob(ctx context.Context, queue, owner string, lease time.Duration) (*Job, error)
	RenewLease(ctx context.Context, jobID, owner string, lease time.Duration) error
	SetJobPhase(ctx context.Context, jobID, owner string, progress Progress) error
	CompleteJob(ctx context.Context, jobID, owner string) error
	RetryJob(ctx context.Context, jobID, owner string, availableAt time.Time, reason string) error
	FailJob(ctx context.Context, jobID, owner, reason string) error
	ReleaseJob(ctx context.Context, jobID, owner string) error
}

// JobAdmin exposes operator views over jobs.
type JobAdmin interface {
	GetJob(ctx context.Context, jobID string) (*Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
	JobStats(ctx context.Context) (map[string]map[JobStatus]int, error)
	RetryFailedJobs(ctx context.Context, jobIDs ...string) (int, error)
}

// Content covers entity reads and the mutations activities perform.
type Content interface {
	CreateMetadata(ctx context.Context, in MetadataInput, body io.Reader) (*Metadata, error)
	CreateCollection(ctx context.Context, name string, attributes map[string]any) (*Collection, error)
	GetMetadata(ctx context.Context, id string, version int) (*Metadata, error)
	GetCollection(ctx context.Context, id string) (*Collection, error)
	OpenContent(ctx context.Context, ref ContentRef) (io.ReadCloser, error)
	PutSupplementary(ctx context.Context, ref ContentRef, in SupplementaryInput, body io.Reader) (*Supplementary, error)
	ListSupplementary(ctx context.Context, ref ContentRef) ([]Supplementary, error)
	OpenSupplementary(ctx context.Context, ref ContentRef, key string) (io.ReadCloser, error)
	SetAttributes(ctx context.Context, ref ContentRef, attributes map[string]any) error
	IndexDocument(ctx context.Context, doc SearchDocument) error
	// RemoveDocument drops the entity's search entry; a missing entry is not
	// an error.
	RemoveDocument(ctx context.Context, ref ContentRef) error
	Search(ctx context.Context, query SearchQuery) ([]SearchHit, error)
}

// Workflows is the two-call state protocol. CompleteCurrentState appends to
// the entity's state history and is not idempotent. SetState is a
// compare-and-set: re-issuing the state the entity is already in is a no-op.
type Workflows interface {
	CompleteCurrentState(ctx context.Context, ref ContentRef, status string) error
	SetState(ctx context.Context, ref ContentRef, stateID, status string, immediate bool) error
	StateHistory(ctx context.Context, ref ContentRef) ([]StateEvent, error)
}

// Definitions is the natural-key store behind installers.
type Definitions interface {
	FindDefinition(ctx context.Context, category Category, key string) (*Definition, error)
	CreateDefinition(ctx context.Context, def Definition) error
	UpdateDefinition(ctx context.Context, def Definition) error
	ListDefinitions(ctx context.Context, category Category) ([]Definition, error)
}

// Client is the full content service contract consumed by the engine.
type Client interface {
	Jobs
	JobAdmin
	Content
	Workflows
	Definitions
	Close() error
}
