package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/logging"
	"weft/internal/services"
	"weft/internal/services/vectorstore"
)

// EmbeddingsActivityID identifies the embedding generator.
const EmbeddingsActivityID = "ai.embeddings.generate"

const embeddingTextLimit = 4 << 20

// Embedder turns text into vectors, one per input in order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// VectorWriter replaces the stored chunks of an owner.
type VectorWriter interface {
	Replace(ctx context.Context, owner string, chunks []vectorstore.Chunk) error
}

// EmbeddingsConfig controls chunking. Sizes are in runes.
type EmbeddingsConfig struct {
	ChunkSize    int `json:"chunk_size" validate:"gte=64"`
	ChunkOverlap int `json:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	BatchSize    int `json:"batch_size" validate:"gte=1,lte=256"`
}

// Embeddings chunks the entity's text and stores one vector per chunk.
type Embeddings struct {
	embedder Embedder
	vectors  VectorWriter
}

// NewEmbeddings wires the embedder and vector store; either may be nil, in
// which case execution fails with a configuration error.
func NewEmbeddings(embedder Embedder, vectors VectorWriter) *Embeddings {
	return &Embeddings{embedder: embedder, vectors: vectors}
}

func (e *Embeddings) ID() string { return EmbeddingsActivityID }

func (e *Embeddings) Definition() activity.Definition {
	return activity.Definition{
		ID:          EmbeddingsActivityID,
		Name:        "Generate embeddings",
		Description: "Chunks text content, embeds each chunk, and stores the vectors.",
		Inputs:      []activity.Parameter{{Name: "content", Type: "text/*", Required: true}},
		Configuration: []activity.Parameter{
			{Name: "chunk_size", Type: "int", Description: "runes per chunk, default 1000"},
			{Name: "chunk_overlap", Type: "int", Description: "runes shared by neighbouring chunks, default 100"},
			{Name: "batch_size", Type: "int", Description: "chunks per embeddings request, default 32"},
		},
	}
}

func (e *Embeddings) HealthCheck(context.Context) activity.Health {
	switch {
	case e.embedder == nil:
		return activity.Unhealthy(EmbeddingsActivityID, "embedding client not configured")
	case e.vectors == nil:
		return activity.Unhealthy(EmbeddingsActivityID, "vector store not configured")
	}
	if c, ok := e.embedder.(interface{ Configured() bool }); ok && !c.Configured() {
		return activity.Unhealthy(EmbeddingsActivityID, "llm api key not configured")
	}
	return activity.Healthy(EmbeddingsActivityID)
}

func (e *Embeddings) Execute(ctx context.Context, actx *activity.Context, job *backend.Job) error {
	cfg := EmbeddingsConfig{ChunkSize: 1000, ChunkOverlap: 100, BatchSize: 32}
	if err := activity.DecodeConfig(job, &cfg); err != nil {
		return err
	}
	if e.embedder == nil || e.vectors == nil {
		return services.Wrap(services.ErrConfiguration, "ai", "embeddings", "embedding client or vector store not configured", nil)
	}
	entity, err := actx.Entity(ctx)
	if err != nil {
		return err
	}
	text, err := actx.Text(ctx, embeddingTextLimit)
	if err != nil {
		return err
	}
	pieces := Chunk(text, cfg.ChunkSize, cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return services.Wrap(services.ErrValidation, "ai", "embeddings",
			fmt.Sprintf("%s has no text content to embed", entity.Ref), nil)
	}

	chunks := make([]vectorstore.Chunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += cfg.BatchSize {
		end := min(start+cfg.BatchSize, len(pieces))
		vectors, err := e.embedder.Embed(ctx, pieces[start:end])
		if err != nil {
			return err
		}
		for i, vec := range vectors {
			chunks = append(chunks, vectorstore.Chunk{Index: start + i, Text: pieces[start+i], Vector: vec})
		}
	}
	if err := e.vectors.Replace(ctx, entity.Ref.String(), chunks); err != nil {
		return err
	}
	actx.Logger().Info("embeddings stored", logging.Int("chunks", len(chunks)))
	return nil
}

// Chunk splits text into windows of at most size runes, each sharing overlap
// runes with its predecessor. Windows end on whitespace when one falls in
// the trailing quarter, so words are rarely cut.
func Chunk(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	var out []string
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			for cut := end; cut > start+size*3/4; cut-- {
				if unicode.IsSpace(runes[cut-1]) {
					end = cut
					break
				}
			}
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}
