package activity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"weft/internal/backend"
	"weft/internal/fileutil"
	"weft/internal/logging"
	"weft/internal/services"
)

// Context is the per-job resource owner handed to Activity.Execute. It is
// used by one job at a time but tolerates concurrent registration from
// goroutines an activity spawns.
type Context struct {
	job     *backend.Job
	client  backend.Client
	logger  *slog.Logger
	tempDir string

	mu         sync.Mutex
	paths      []string
	released   bool
	releaseOne sync.Once

	metadata   *backend.Metadata
	collection *backend.Collection

	nextState     string
	nextImmediate bool
	nextSet       bool
}

// ContextOptions configures a new Context.
type ContextOptions struct {
	Logger  *slog.Logger
	TempDir string
}

// NewContext binds a Context to job.
func NewContext(job *backend.Job, client backend.Client, opts ContextOptions) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	tempDir := strings.TrimSpace(opts.TempDir)
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Context{
		job:     job,
		client:  client,
		logger:  logger,
		tempDir: tempDir,
	}
}

// Job returns the job being executed.
func (c *Context) Job() *backend.Job { return c.job }

// Client returns the content backend.
func (c *Context) Client() backend.Client { return c.client }

// Logger returns the job-scoped logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// AddFile registers a file or directory for removal by ReleaseAll.
func (c *Context) AddFile(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

// CreateTemp creates a registered temp file under the configured temp dir.
func (c *Context) CreateTemp(pattern string) (*os.File, error) {
	if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}
	f, err := os.CreateTemp(c.tempDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	c.AddFile(f.Name())
	return f, nil
}

// CreateTempDir creates a registered temp directory under the configured temp dir.
func (c *Context) CreateTempDir(pattern string) (string, error) {
	if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp root: %w", err)
	}
	dir, err := os.MkdirTemp(c.tempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	c.AddFile(dir)
	return dir, nil
}

// ReleaseAll removes every registered path, most recent first. It runs once;
// later calls do nothing. Failures are logged, never returned.
func (c *Context) ReleaseAll() {
	c.releaseOne.Do(func() {
		c.mu.Lock()
		paths := c.paths
		c.paths = nil
		c.released = true
		c.mu.Unlock()

		for i := len(paths) - 1; i >= 0; i-- {
			if err := os.RemoveAll(paths[i]); err != nil {
				logging.WarnWithContext(c.logger, "temp cleanup failed", "cleanup_failed",
					logging.String("path", paths[i]),
					logging.Error(err),
					logging.String(logging.FieldImpact, "temporary files left on disk"),
				)
			}
		}
	})
}

// Released reports whether ReleaseAll has run.
func (c *Context) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Metadata fetches the job's metadata entity once and caches it.
func (c *Context) Metadata(ctx context.Context) (*backend.Metadata, error) {
	if !c.job.Target.IsMetadata() {
		return nil, services.Wrap(services.ErrValidation, "activity", "metadata",
			fmt.Sprintf("job targets %s, not metadata", c.job.Target), nil)
	}
	c.mu.Lock()
	cached := c.metadata
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	meta, err := c.client.GetMetadata(ctx, c.job.Target.MetadataID, c.job.Target.MetadataVersion)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.metadata = meta
	c.mu.Unlock()
	return meta, nil
}

// Collection fetches the job's collection once and caches it.
func (c *Context) Collection(ctx context.Context) (*backend.Collection, error) {
	if !c.job.Target.IsCollection() {
		return nil, services.Wrap(services.ErrValidation, "activity", "collection",
			fmt.Sprintf("job targets %s, not a collection", c.job.Target), nil)
	}
	c.mu.Lock()
	cached := c.collection
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	coll, err := c.client.GetCollection(ctx, c.job.Target.CollectionID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.collection = coll
	c.mu.Unlock()
	return coll, nil
}

// Download streams the entity's primary content into a registered temp file
// and returns its path.
func (c *Context) Download(ctx context.Context) (string, error) {
	meta, err := c.Metadata(ctx)
	if err != nil {
		return "", err
	}
	body, err := c.client.OpenContent(ctx, meta.Ref())
	if err != nil {
		return "", err
	}
	defer body.Close()

	f, err := c.CreateTemp("content-*" + filepath.Ext(meta.Name))
	if err != nil {
		return "", err
	}
	if _, _, err := fileutil.CopyToFile(f, body); err != nil {
		return "", fmt.Errorf("download %s: %w", meta.Ref(), err)
	}
	return f.Name(), nil
}

// SetNextState records the state the transition manager enters after the
// activity succeeds, overriding the job configuration.
func (c *Context) SetNextState(state string, immediate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextState = strings.TrimSpace(state)
	c.nextImmediate = immediate
	c.nextSet = true
}

// NextState returns the activity-computed next state, if any.
func (c *Context) NextState() (state string, immediate bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextState, c.nextImmediate, c.nextSet
}

// Entity is the target-agnostic view of a job's metadata or collection.
type Entity struct {
	Ref           backend.ContentRef
	Name          string
	ContentType   string
	Attributes    map[string]any
	WorkflowState string
}

// Entity resolves the job target, whichever kind it is.
func (c *Context) Entity(ctx context.Context) (*Entity, error) {
	if c.job.Target.IsCollection() {
		coll, err := c.Collection(ctx)
		if err != nil {
			return nil, err
		}
		return &Entity{
			Ref:           backend.CollectionRef(coll.ID),
			Name:          coll.Name,
			Attributes:    coll.Attributes,
			WorkflowState: coll.WorkflowState,
		}, nil
	}
	meta, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return &Entity{
		Ref:           meta.Ref(),
		Name:          meta.Name,
		ContentType:   meta.ContentType,
		Attributes:    meta.Attributes,
		WorkflowState: meta.WorkflowState,
	}, nil
}

// Text returns up to limit bytes of the primary content when it is textual.
// Collections and binary content yield an empty string.
func (c *Context) Text(ctx context.Context, limit int64) (string, error) {
	entity, err := c.Entity(ctx)
	if err != nil {
		return "", err
	}
	if !entity.Ref.IsMetadata() || !IsTextual(entity.ContentType) {
		return "", nil
	}
	body, err := c.client.OpenContent(ctx, entity.Ref)
	if err != nil {
		return "", err
	}
	defer body.Close()
	if limit <= 0 {
		limit = defaultTextLimit
	}
	data, err := io.ReadAll(io.LimitReader(body, limit))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", entity.Ref, err)
	}
	return string(data), nil
}

const defaultTextLimit = 1 << 20

// IsTextual reports whether contentType carries human-readable text.
func IsTextual(contentType string) bool {
	mediaType, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(contentType)), ";")
	mediaType = strings.TrimSpace(mediaType)
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json", mediaType == "application/xml", mediaType == "application/x-yaml":
		return true
	case strings.HasSuffix(mediaType, "+json"), strings.HasSuffix(mediaType, "+xml"):
		return true
	}
	return false
}
