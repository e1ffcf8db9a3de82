package metadata

import (
	"context"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/logging"
)

// AttributesActivityID identifies the attribute merge activity.
const AttributesActivityID = "metadata.attributes.set"

// AttributesConfig lists attributes to merge; a null value removes the key.
type AttributesConfig struct {
	Attributes map[string]any `json:"attributes" validate:"required,min=1"`
}

// Attributes merges configured attributes into the entity.
type Attributes struct{}

func NewAttributes() *Attributes { return &Attributes{} }

func (Attributes) ID() string { return AttributesActivityID }

func (Attributes) Definition() activity.Definition {
	return activity.Definition{
		ID:            AttributesActivityID,
		Name:          "Set attributes",
		Description:   "Merges the configured attributes into the entity's attributes.",
		Inputs:        []activity.Parameter{{Name: "entity", Type: "metadata|collection", Required: true}},
		Configuration: []activity.Parameter{{Name: "attributes", Type: "map", Required: true}},
	}
}

func (Attributes) Execute(ctx context.Context, actx *activity.Context, job *backend.Job) error {
	var cfg AttributesConfig
	if err := activity.DecodeConfig(job, &cfg); err != nil {
		return err
	}
	if err := actx.Client().SetAttributes(ctx, job.Target, cfg.Attributes); err != nil {
		return err
	}
	actx.Logger().Info("attributes merged", logging.Int("count", len(cfg.Attributes)))
	return nil
}
