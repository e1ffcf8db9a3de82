// Package extension is the seam through which private distributions add
// activities and an installer. The open build's Load returns no bundle.
package extension

import (
	"context"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/installer"
)

// Bundle is what an enterprise distribution contributes.
type Bundle struct {
	Activities []activity.Activity
	Installer  installer.Installer
}

// Factory builds the bundle for a backend. A nil bundle means no extension.
type Factory func(ctx context.Context, client backend.Client) (*Bundle, error)

var _ Factory = Load

// ActivityList returns the bundle's activities; nil-safe.
func (b *Bundle) ActivityList() []activity.Activity {
	if b == nil {
		return nil
	}
	return b.Activities
}

// InstallerOrNil returns the bundle's installer; nil-safe.
func (b *Bundle) InstallerOrNil() installer.Installer {
	if b == nil {
		return nil
	}
	return b.Installer
}
