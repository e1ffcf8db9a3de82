package drapto

import (
	"time"

	draptolib "github.com/five82/drapto"
)

// reporter adapts the Drapto Reporter interface to ProgressUpdate callbacks.
// Hardware, crop, config, and batch events carry nothing an activity acts on
// and are dropped.
type reporter struct {
	callback func(ProgressUpdate)
}

func newReporter(callback func(ProgressUpdate)) *reporter {
	return &reporter{callback: callback}
}

func (r *reporter) emit(update ProgressUpdate) {
	update.Timestamp = time.Now()
	r.callback(update)
}

func (r *reporter) Hardware(draptolib.HardwareSummary) {}

func (r *reporter) Initialization(s draptolib.InitializationSummary) {
	r.emit(ProgressUpdate{Type: EventTypeInitialization, Message: s.InputFile})
}

func (r *reporter) StageProgress(s draptolib.StageProgress) {
	var eta time.Duration
	if s.ETA != nil {
		eta = *s.ETA
	}
	r.emit(ProgressUpdate{
		Type:    EventTypeStageProgress,
		Percent: float64(s.Percent),
		Stage:   s.Stage,
		Message: s.Message,
		ETA:     eta,
	})
}

func (r *reporter) CropResult(draptolib.CropSummary) {}

func (r *reporter) EncodingConfig(draptolib.EncodingConfigSummary) {}

func (r *reporter) EncodingStarted(totalFrames uint64) {
	r.emit(ProgressUpdate{Type: EventTypeEncodingStarted, TotalFrames: int64(totalFrames)})
}

func (r *reporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	r.emit(ProgressUpdate{
		Type:        EventTypeEncodingProgress,
		Percent:     float64(s.Percent),
		Stage:       "encoding",
		ETA:         s.ETA,
		TotalFrames: int64(s.TotalFrames),
	})
}

func (r *reporter) ValidationComplete(s draptolib.ValidationSummary) {
	summary := &ValidationSummary{Passed: s.Passed}
	for _, step := range s.Steps {
		if !step.Passed {
			summary.Failed = append(summary.Failed, step.Name)
		}
	}
	r.emit(ProgressUpdate{Type: EventTypeValidation, Validation: summary})
}

func (r *reporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.emit(ProgressUpdate{
		Type:    EventTypeEncodingComplete,
		Percent: 100,
		Result: &EncodingResult{
			OutputPath:   s.OutputPath,
			OriginalSize: int64(s.OriginalSize),
			EncodedSize:  int64(s.EncodedSize),
		},
	})
}

func (r *reporter) Warning(message string) {
	r.emit(ProgressUpdate{Type: EventTypeWarning, Message: message})
}

func (r *reporter) Error(e draptolib.ReporterError) {
	r.emit(ProgressUpdate{Type: EventTypeError, Stage: e.Title, Message: e.Message})
}

func (r *reporter) OperationComplete(message string) {
	r.emit(ProgressUpdate{Type: EventTypeOperationComplete, Message: message})
}

func (r *reporter) BatchStarted(draptolib.BatchStartInfo) {}

func (r *reporter) FileProgress(draptolib.FileProgressContext) {}

func (r *reporter) BatchComplete(draptolib.BatchSummary) {}

var _ draptolib.Reporter = (*reporter)(nil)
