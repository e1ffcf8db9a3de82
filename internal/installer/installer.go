// Package installer bootstraps workflow definitions into the content backend.
//
// Each Installer owns one definition category and upserts entries by natural
// key, so a second run over unchanged input reports every entry unchanged.
// The Sequencer runs installers in dependency order under a file lock.
package installer

import (
	"context"
	"fmt"

	"weft/internal/backend"
)

// Installer seeds one kind of definition data.
type Installer interface {
	Name() string
	Install(ctx context.Context, client backend.Client, workDir string) error
}

// Reporter is implemented by installers that record per-entry outcomes.
// The sequencer collects Results after each successful Install.
type Reporter interface {
	Results() []Result
}

// Outcome is the effect of one upsert.
type Outcome string

const (
	Created   Outcome = "created"
	Updated   Outcome = "updated"
	Unchanged Outcome = "unchanged"
)

// Result records the outcome for one definition.
type Result struct {
	Installer string
	Category  backend.Category
	Key       string
	Outcome   Outcome
}

// Report aggregates results across a sequencer run.
type Report struct {
	Results []Result
}

// Counts tallies results by outcome.
func (r Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, 3)
	for _, res := range r.Results {
		counts[res.Outcome]++
	}
	return counts
}

// Changed reports whether any definition was created or updated.
func (r Report) Changed() bool {
	for _, res := range r.Results {
		if res.Outcome != Unchanged {
			return true
		}
	}
	return false
}

// Upsert creates def when its key is new, updates it when its content
// differs, and otherwise leaves it untouched.
func Upsert(ctx context.Context, client backend.Definitions, def backend.Definition) (Outcome, error) {
	existing, err := client.FindDefinition(ctx, def.Category, def.Key)
	if err != nil {
		return "", fmt.Errorf("find %s/%s: %w", def.Category, def.Key, err)
	}
	if existing == nil {
		if err := client.CreateDefinition(ctx, def); err != nil {
			return "", fmt.Errorf("create %s/%s: %w", def.Category, def.Key, err)
		}
		return Created, nil
	}
	if existing.SameContent(def) {
		return Unchanged, nil
	}
	if err := client.UpdateDefinition(ctx, def); err != nil {
		return "", fmt.Errorf("update %s/%s: %w", def.Category, def.Key, err)
	}
	return Updated, nil
}
