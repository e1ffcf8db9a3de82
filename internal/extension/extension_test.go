//go:build !enterprise

package extension_test

import (
	"context"
	"testing"

	"weft/internal/extension"
)

func TestOpenBuildHasNoBundle(t *testing.T) {
	bundle, err := extension.Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bundle != nil {
		t.Fatalf("expected nil bundle, got %+v", bundle)
	}
	if bundle.ActivityList() != nil || bundle.InstallerOrNil() != nil {
		t.Fatal("nil bundle accessors must return nil")
	}
}
