//go:build !enterprise

package extension

import (
	"context"

	"weft/internal/backend"
)

// Load reports that no enterprise extension is compiled in.
func Load(context.Context, backend.Client) (*Bundle, error) {
	return nil, nil
}
