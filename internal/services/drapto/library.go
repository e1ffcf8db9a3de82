package drapto

import (
	"context"
	"fmt"
	"strings"

	draptolib "github.com/five82/drapto"

	"weft/internal/services"
)

// Library encodes in-process through the drapto Go module.
type Library struct{}

var _ Client = (*Library)(nil)

// NewLibrary returns a Library. Encodes use drapto's responsive preset.
func NewLibrary() *Library {
	return &Library{}
}

// Encode writes OutputPath(inputPath, outputDir) and returns it. progress
// may be nil.
func (l *Library) Encode(ctx context.Context, inputPath, outputDir string, progress func(ProgressUpdate)) (string, error) {
	switch {
	case strings.TrimSpace(inputPath) == "":
		return "", services.Wrap(services.ErrValidation, "drapto", "encode", "input path required", nil)
	case strings.TrimSpace(outputDir) == "":
		return "", services.Wrap(services.ErrValidation, "drapto", "encode", "output directory required", nil)
	}

	encoder, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return "", fmt.Errorf("drapto: init encoder: %w", err)
	}
	var reporter draptolib.Reporter
	if progress != nil {
		reporter = newReporter(progress)
	}
	if _, err := encoder.EncodeWithReporter(ctx, inputPath, outputDir, reporter); err != nil {
		return "", err
	}
	return OutputPath(inputPath, outputDir), nil
}
