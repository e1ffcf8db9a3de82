package drapto

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

// EventType names a Drapto progress event.
type EventType string

const (
	EventTypeInitialization    EventType = "initialization"
	EventTypeStageProgress     EventType = "stage_progress"
	EventTypeEncodingStarted   EventType = "encoding_started"
	EventTypeEncodingProgress  EventType = "encoding_progress"
	EventTypeValidation        EventType = "validation"
	EventTypeEncodingComplete  EventType = "encoding_complete"
	EventTypeWarning           EventType = "warning"
	EventTypeError             EventType = "error"
	EventTypeOperationComplete EventType = "operation_complete"
)

// ProgressUpdate captures one Drapto progress event.
type ProgressUpdate struct {
	Type        EventType
	Timestamp   time.Time
	Percent     float64
	Stage       string
	Message     string
	ETA         time.Duration
	TotalFrames int64
	Validation  *ValidationSummary
	Result      *EncodingResult
}

// ValidationSummary is Drapto's post-encode validation outcome.
type ValidationSummary struct {
	Passed bool
	Failed []string
}

// EncodingResult summarizes a finished encode.
type EncodingResult struct {
	OutputPath   string
	OriginalSize int64
	EncodedSize  int64
}

// Client defines Drapto encoding behaviour.
type Client interface {
	Encode(ctx context.Context, inputPath, outputDir string, progress func(ProgressUpdate)) (string, error)
}

// OutputPath is where Drapto writes the encode of inputPath inside outputDir.
func OutputPath(inputPath, outputDir string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(strings.TrimSpace(outputDir), stem+".mkv")
}
