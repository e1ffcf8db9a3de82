package search

import (
	"context"

	"weft/internal/activity"
	"weft/internal/backend"
)

// RemoveActivityID identifies the search index removal activity.
const RemoveActivityID = "search.index.delete"

// Remove drops the entity from the search index, typically on a workflow
// that archives or deletes it.
type Remove struct{}

func NewRemove() *Remove { return &Remove{} }

func (Remove) ID() string { return RemoveActivityID }

func (Remove) Definition() activity.Definition {
	return activity.Definition{
		ID:          RemoveActivityID,
		Name:        "Delete from search index",
		Description: "Removes the entity's entry from the search index.",
		Inputs:      []activity.Parameter{{Name: "entity", Type: "metadata|collection", Required: true}},
	}
}

func (Remove) Execute(ctx context.Context, actx *activity.Context, job *backend.Job) error {
	if err := actx.Client().RemoveDocument(ctx, job.Target); err != nil {
		return err
	}
	actx.Logger().Debug("entity removed from index")
	return nil
}
