package daemonrun

import (
	"context"

	"weft/internal/activity"
	"weft/internal/ai"
	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/extension"
	"weft/internal/media"
	"weft/internal/metadata"
	"weft/internal/search"
	"weft/internal/services/drapto"
	"weft/internal/services/llm"
	"weft/internal/services/vectorstore"
)

// Services are the external clients the open-build activities depend on.
// Nil members leave the dependent activities registered but unhealthy.
type Services struct {
	LLM     *llm.Client
	Vectors *vectorstore.Store
	Encoder drapto.Client
}

// DefaultActivities returns the activities shipped in the open build.
func DefaultActivities(cfg *config.Config, svc Services) []activity.Activity {
	var completer ai.Completer
	var embedder ai.Embedder
	if svc.LLM != nil {
		completer = svc.LLM
		embedder = svc.LLM
	}
	var vectors ai.VectorWriter
	if svc.Vectors != nil {
		vectors = svc.Vectors
	}
	return []activity.Activity{
		metadata.NewTransition(),
		metadata.NewAttributes(),
		metadata.NewBranch(),
		metadata.NewReady(),
		media.NewThumbnails(cfg),
		media.NewEncode(cfg, svc.Encoder),
		ai.NewPrompt(completer),
		ai.NewEmbeddings(embedder, vectors),
		search.NewIndex(),
		search.NewRemove(),
	}
}

// BuildRegistry loads the extension bundle and registers its activities
// ahead of the defaults.
func BuildRegistry(ctx context.Context, cfg *config.Config, client backend.Client, svc Services) (*activity.Registry, *extension.Bundle, error) {
	bundle, err := extension.Load(ctx, client)
	if err != nil {
		return nil, nil, err
	}
	reg, err := activity.Build(DefaultActivities(cfg, svc), bundle.ActivityList())
	if err != nil {
		return nil, nil, err
	}
	return reg, bundle, nil
}
