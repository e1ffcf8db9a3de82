package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/logging"
	"weft/internal/preflight"
	"weft/internal/services"
	"weft/internal/services/drapto"
)

const (
	// EncodeActivityID identifies the AV1 encoder.
	EncodeActivityID = "video.encode.av1"

	encodedContentType = "video/x-matroska"
)

// EncodeConfig is the per-job configuration of the AV1 encoder.
type EncodeConfig struct {
	OutputKey string `json:"output_key" validate:"required,max=200"`
}

// Encode transcodes the primary video to AV1 with Drapto.
type Encode struct {
	client     drapto.Client
	tempDir    string
	minFreeGiB int
}

// NewEncode builds the activity. A nil client uses the Drapto library.
func NewEncode(cfg *config.Config, client drapto.Client) *Encode {
	if client == nil {
		client = drapto.NewLibrary()
	}
	return &Encode{
		client:     client,
		tempDir:    cfg.Paths.TempDir,
		minFreeGiB: cfg.Media.MinFreeGiB,
	}
}

func (a *Encode) ID() string { return EncodeActivityID }

func (a *Encode) Definition() activity.Definition {
	return activity.Definition{
		ID:          EncodeActivityID,
		Name:        "AV1 encoder",
		Description: "Encodes the primary video to AV1 in a Matroska container.",
		Inputs:      []activity.Parameter{{Name: "content", Type: "video/*", Required: true}},
		Outputs:     []activity.Parameter{{Name: "encoded", Type: encodedContentType}},
		Configuration: []activity.Parameter{
			{Name: "output_key", Type: "string", Description: "supplementary key, default encoded"},
		},
	}
}

func (a *Encode) Execute(ctx context.Context, actx *activity.Context, job *backend.Job) error {
	opts := EncodeConfig{OutputKey: "encoded"}
	if err := activity.DecodeConfig(job, &opts); err != nil {
		return err
	}
	if err := preflight.EnsureFreeSpace(a.tempDir, a.minFreeGiB); err != nil {
		return err
	}
	meta, err := actx.Metadata(ctx)
	if err != nil {
		return err
	}
	input, err := actx.Download(ctx)
	if err != nil {
		return err
	}
	outDir, err := actx.CreateTempDir("encode-*")
	if err != nil {
		return err
	}

	output, err := a.client.Encode(ctx, input, outDir, progressLogger(actx))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "encode", "drapto", "", err)
	}
	actx.AddFile(output)

	f, err := os.Open(output)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "encode", "open output", "encoder reported success without output", err)
	}
	defer f.Close()
	stem := strings.TrimSuffix(meta.Name, filepath.Ext(meta.Name))
	if _, err := actx.Client().PutSupplementary(ctx, meta.Ref(), backend.SupplementaryInput{
		Key:         opts.OutputKey,
		Name:        stem + ".mkv",
		ContentType: encodedContentType,
	}, f); err != nil {
		return err
	}
	actx.Logger().Info("encoded content uploaded", logging.String("key", opts.OutputKey))
	return nil
}

// progressLogger logs encode progress in 10% steps along with warnings and errors.
func progressLogger(actx *activity.Context) func(drapto.ProgressUpdate) {
	var mu sync.Mutex
	lastBucket := -1
	logger := actx.Logger()
	return func(update drapto.ProgressUpdate) {
		switch update.Type {
		case drapto.EventTypeWarning:
			logging.WarnWithContext(logger, "drapto warning", "encode_warning",
				logging.String("detail", update.Message),
				logging.String(logging.FieldErrorHint, "review the encode output"),
			)
		case drapto.EventTypeError:
			logging.ErrorWithContext(logger, "drapto error", "encode_error",
				logging.String("title", update.Stage),
				logging.String("detail", update.Message),
			)
		case drapto.EventTypeEncodingProgress:
			bucket := int(update.Percent) / 10
			mu.Lock()
			report := bucket > lastBucket
			if report {
				lastBucket = bucket
			}
			mu.Unlock()
			if report {
				logger.Info("encode progress",
					logging.String("percent", fmt.Sprintf("%.0f", update.Percent)),
					logging.Duration("eta", update.ETA),
				)
			}
		}
	}
}
