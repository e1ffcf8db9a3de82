package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"weft/internal/services"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "embed", "api key required", nil)
	}
	if c.cfg.EmbeddingModel == "" {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "embed", "embedding model required", nil)
	}
	req := embeddingRequest{Model: c.cfg.EmbeddingModel, Input: inputs}

	var vectors [][]float32
	err := c.withRetry(ctx, "embed", func() error {
		body, err := c.post(ctx, c.cfg.EmbeddingURL, req)
		if err != nil {
			return err
		}
		vectors, err = parseEmbeddings(body, len(inputs))
		return err
	})
	if err != nil {
		return nil, classify("embed", err)
	}
	return vectors, nil
}

func parseEmbeddings(body []byte, want int) ([][]float32, error) {
	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("api error: %s", strings.TrimSpace(resp.Error.Message))
	}
	if len(resp.Data) != want {
		return nil, fmt.Errorf("expected %d vectors, got %d", want, len(resp.Data))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}
