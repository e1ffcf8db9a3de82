package media

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/logging"
	"weft/internal/media/ffprobe"
	"weft/internal/preflight"
	"weft/internal/services"
)

const (
	// ThumbnailActivityID identifies the thumbnail extractor.
	ThumbnailActivityID = "video.thumbnail.extractor"

	thumbnailContentType = "image/jpeg"
	framePattern         = "frame-%04d.jpg"
)

// ThumbnailConfig is the per-job configuration of the thumbnail extractor.
type ThumbnailConfig struct {
	MaxThumbnails int `json:"max_thumbnails" validate:"gte=1"`
	Width         int `json:"width" validate:"gte=16"`
}

// Thumbnails extracts I-frames from the primary video and uploads them as
// supplementary thumbnail-N images.
type Thumbnails struct {
	ffmpeg     string
	ffprobe    string
	tempDir    string
	minFreeGiB int
	defaults   ThumbnailConfig
}

// NewThumbnails builds the activity from the media section of cfg.
func NewThumbnails(cfg *config.Config) *Thumbnails {
	return &Thumbnails{
		ffmpeg:     cfg.Media.FFmpegBinary,
		ffprobe:    cfg.Media.FFprobeBinary,
		tempDir:    cfg.Paths.TempDir,
		minFreeGiB: cfg.Media.MinFreeGiB,
		defaults: ThumbnailConfig{
			MaxThumbnails: cfg.Media.MaxThumbnails,
			Width:         cfg.Media.ThumbnailWidth,
		},
	}
}

func (a *Thumbnails) ID() string { return ThumbnailActivityID }

func (a *Thumbnails) Definition() activity.Definition {
	return activity.Definition{
		ID:          ThumbnailActivityID,
		Name:        "Video thumbnail extractor",
		Description: "Extracts key frames from the primary video as JPEG thumbnails.",
		Inputs: []activity.Parameter{
			{Name: "content", Type: "video/*", Required: true},
		},
		Outputs: []activity.Parameter{
			{Name: "thumbnail-N", Type: thumbnailContentType, Description: "one per extracted key frame"},
		},
		Configuration: []activity.Parameter{
			{Name: "max_thumbnails", Type: "int", Description: fmt.Sprintf("upload cap, default %d", a.defaults.MaxThumbnails)},
			{Name: "width", Type: "int", Description: fmt.Sprintf("scaled width in pixels, default %d", a.defaults.Width)},
		},
	}
}

// HealthCheck reports whether ffmpeg and ffprobe resolve.
func (a *Thumbnails) HealthCheck(context.Context) activity.Health {
	for _, result := range preflight.CheckBinaries([]preflight.Requirement{
		{Name: "ffmpeg", Command: a.ffmpeg},
		{Name: "ffprobe", Command: a.ffprobe},
	}) {
		if !result.Passed {
			return activity.Unhealthy(ThumbnailActivityID, result.Name+": "+result.Detail)
		}
	}
	return activity.Healthy(ThumbnailActivityID)
}

func (a *Thumbnails) Execute(ctx context.Context, actx *activity.Context, job *backend.Job) error {
	opts := a.defaults
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

	probe, err := ffprobe.Inspect(ctx, a.ffprobe, input)
	if err != nil {
		return err
	}
	if _, ok := probe.FirstVideo(); !ok {
		return services.Wrap(services.ErrValidation, "thumbnail", "probe", fmt.Sprintf("%s has no video stream", meta.Name), nil)
	}
	if err := actx.Client().SetAttributes(ctx, meta.Ref(), probe.Attributes()); err != nil {
		return err
	}

	outDir, err := actx.CreateTempDir("thumbnails-*")
	if err != nil {
		return err
	}
	if err := a.extract(ctx, input, outDir, opts.Width); err != nil {
		return err
	}

	frames, err := filepath.Glob(filepath.Join(outDir, "frame-*.jpg"))
	if err != nil {
		return fmt.Errorf("list frames: %w", err)
	}
	if len(frames) == 0 {
		return services.Wrap(services.ErrExternalTool, "thumbnail", "ffmpeg", "no key frames extracted", nil)
	}
	sortFrames(frames)
	if len(frames) > opts.MaxThumbnails {
		actx.Logger().Info("thumbnail cap applied",
			logging.Args(logging.DecisionAttrs("thumbnail_cap", "truncate",
				fmt.Sprintf("%d frames extracted, cap %d", len(frames), opts.MaxThumbnails))...)...)
		frames = frames[:opts.MaxThumbnails]
	}

	for i, frame := range frames {
		if err := uploadThumbnail(ctx, actx.Client(), meta.Ref(), i+1, frame); err != nil {
			return err
		}
	}
	actx.Logger().Info("thumbnails uploaded", logging.Int("count", len(frames)))
	return nil
}

// sortFrames orders extracted frames by number. Names stop sorting lexically
// once the count outgrows the zero padding.
func sortFrames(frames []string) {
	slices.SortStableFunc(frames, func(a, b string) int {
		return cmp.Compare(frameIndex(a), frameIndex(b))
	})
}

func frameIndex(path string) int {
	digits := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "frame-"), ".jpg")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return math.MaxInt
	}
	return n
}

func (a *Thumbnails) extract(ctx context.Context, input, outDir string, width int) error {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", input,
		"-vf", fmt.Sprintf("select='eq(pict_type,I)',scale=%d:-2", width),
		"-vsync", "vfr",
		"-q:v", "2",
		filepath.Join(outDir, framePattern),
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...) //nolint:gosec
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "thumbnail", "ffmpeg", strings.TrimSpace(stderr.String()), err)
	}
	return nil
}

func uploadThumbnail(ctx context.Context, client backend.Content, ref backend.ContentRef, n int, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open thumbnail: %w", err)
	}
	defer f.Close()
	_, err = client.PutSupplementary(ctx, ref, backend.SupplementaryInput{
		Key:         fmt.Sprintf("thumbnail-%d", n),
		Name:        fmt.Sprintf("Thumbnail #%d", n),
		ContentType: thumbnailContentType,
	}, f)
	return err
}
