// Package search provides the activity that feeds entities into the
// backend's full-text index.
package search

import (
	"context"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/logging"
)

// IndexActivityID identifies the search indexer.
const IndexActivityID = "search.index.add"

const indexTextLimit = 1 << 20

// IndexConfig controls what is indexed besides name and attributes.
type IndexConfig struct {
	IncludeText bool `json:"include_text"`
}

// Index writes the entity's name, attributes, and text content to the index.
type Index struct{}

func NewIndex() *Index { return &Index{} }

func (Index) ID() string { return IndexActivityID }

func (Index) Definition() activity.Definition {
	return activity.Definition{
		ID:            IndexActivityID,
		Name:          "Add to search index",
		Description:   "Indexes the entity name, attributes, and textual content.",
		Inputs:        []activity.Parameter{{Name: "entity", Type: "metadata|collection", Required: true}},
		Configuration: []activity.Parameter{{Name: "include_text", Type: "bool", Description: "index textual primary content, default true"}},
	}
}

func (Index) Execute(ctx context.Context, actx *activity.Context, job *backend.Job) error {
	cfg := IndexConfig{IncludeText: true}
	if err := activity.DecodeConfig(job, &cfg); err != nil {
		return err
	}
	entity, err := actx.Entity(ctx)
	if err != nil {
		return err
	}
	doc := backend.SearchDocument{
		Target:     entity.Ref,
		Title:      entity.Name,
		Attributes: entity.Attributes,
	}
	if cfg.IncludeText {
		if doc.Body, err = actx.Text(ctx, indexTextLimit); err != nil {
			return err
		}
	}
	if err := actx.Client().IndexDocument(ctx, doc); err != nil {
		return err
	}
	actx.Logger().Debug("entity indexed",
		logging.String("title", doc.Title),
		logging.Int("body_bytes", len(doc.Body)))
	return nil
}
