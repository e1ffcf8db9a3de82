package metadata

import (
	"context"
	"time"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/logging"
	"weft/internal/services"
)

// ReadyActivityID identifies the collection readiness activity.
const ReadyActivityID = "collection.set.ready"

// ReadyAttribute holds the time a collection was marked ready.
const ReadyAttribute = "ready"

type ReadyConfig struct {
	Public bool `json:"public"`
}

// Ready stamps a collection as ready, and optionally public, once. A
// collection that is already ready is left alone.
type Ready struct {
	now func() time.Time
}

func NewReady() *Ready { return &Ready{now: time.Now} }

func (Ready) ID() string { return ReadyActivityID }

func (Ready) Definition() activity.Definition {
	return activity.Definition{
		ID:            ReadyActivityID,
		Name:          "Set collection ready",
		Description:   "Marks the collection ready and optionally public.",
		Inputs:        []activity.Parameter{{Name: "collection", Type: "collection", Required: true}},
		Configuration: []activity.Parameter{{Name: "public", Type: "bool"}},
	}
}

func (r Ready) Execute(ctx context.Context, actx *activity.Context, job *backend.Job) error {
	var cfg ReadyConfig
	if err := activity.DecodeConfig(job, &cfg); err != nil {
		return err
	}
	if !job.Target.IsCollection() {
		return services.Wrap(services.ErrValidation, "metadata", "set ready", "target is not a collection", nil)
	}
	coll, err := actx.Collection(ctx)
	if err != nil {
		return err
	}
	if _, ok := coll.Attributes[ReadyAttribute]; ok {
		actx.Logger().Debug("collection already ready")
		return nil
	}
	attrs := map[string]any{ReadyAttribute: r.now().UTC().Format(time.RFC3339)}
	if cfg.Public {
		attrs["public"] = true
	}
	if err := actx.Client().SetAttributes(ctx, job.Target, attrs); err != nil {
		return err
	}
	actx.Logger().Info("collection ready", logging.Bool("public", cfg.Public))
	return nil
}
