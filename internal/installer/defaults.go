package installer

import (
	"context"
	"sync"

	"weft/internal/activity"
	"weft/internal/backend"
)

// ActivitiesInstaller registers the definitions of every registry activity.
type ActivitiesInstaller struct {
	registry *activity.Registry

	mu      sync.Mutex
	results []Result
}

// NewActivities returns an installer for reg's activity definitions.
func NewActivities(reg *activity.Registry) *ActivitiesInstaller {
	return &ActivitiesInstaller{registry: reg}
}

func (a *ActivitiesInstaller) Name() string { return string(backend.CategoryActivities) }

// Results returns the outcomes of the most recent Install.
func (a *ActivitiesInstaller) Results() []Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Result(nil), a.results...)
}

func (a *ActivitiesInstaller) Install(ctx context.Context, client backend.Client, _ string) error {
	a.mu.Lock()
	a.results = nil
	a.mu.Unlock()

	for _, def := range a.registry.Definitions() {
		outcome, err := Upsert(ctx, client, backend.Definition{
			Category: backend.CategoryActivities,
			Key:      def.ID,
			Name:     def.Name,
			Body:     def.Body(),
		})
		if err != nil {
			return err
		}
		a.mu.Lock()
		a.results = append(a.results, Result{Installer: a.Name(), Category: backend.CategoryActivities, Key: def.ID, Outcome: outcome})
		a.mu.Unlock()
	}
	return nil
}

// Defaults returns the built-in installers in dependency order.
func Defaults(reg *activity.Registry) []Installer {
	return []Installer{
		NewYAML(backend.CategoryCategories),
		NewYAML(backend.CategoryAttributeTypes, Reference{Field: "category", Category: backend.CategoryCategories}),
		NewYAML(backend.CategoryStates),
		NewYAML(backend.CategoryPrompts),
		NewYAML(backend.CategoryModels),
		NewYAML(backend.CategoryStorageSystems),
		NewActivities(reg),
		NewYAML(backend.CategoryTransitions,
			Reference{Field: "from", Category: backend.CategoryStates},
			Reference{Field: "to", Category: backend.CategoryStates},
		),
		NewYAML(backend.CategoryWorkflows, Reference{Field: "initial_state", Category: backend.CategoryStates}),
		NewYAML(backend.CategoryTraits, Reference{Field: "attribute_type", Category: backend.CategoryAttributeTypes}),
		NewYAML(backend.CategoryCollections, Reference{Field: "category", Category: backend.CategoryCategories}),
	}
}
