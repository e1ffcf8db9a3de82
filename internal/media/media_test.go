package media_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/config"
	"weft/internal/media"
	"weft/internal/services"
	"weft/internal/services/drapto"
	"weft/internal/store"
	"weft/internal/testsupport"
)

const videoProbe = `cat <<'JSON'
{"streams":[{"index":0,"codec_type":"video","width":1920,"height":1080}],"format":{"duration":"60"}}
JSON
`

// ffmpegFrames writes n JPEG stubs next to the output pattern (the last argument).
func ffmpegFrames(n int) string {
	return fmt.Sprintf(`for last; do :; done
dir=$(dirname "$last")
i=1
while [ $i -le %d ]; do
  printf 'jpeg-%%d' $i > "$dir/$(printf 'frame-%%04d.jpg' $i)"
  i=$((i+1))
done
`, n)
}

type fixture struct {
	cfg   *config.Config
	store *store.Store
	meta  *backend.Metadata
}

func newFixture(t *testing.T, scripts map[string]string) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries(scripts))
	st := testsupport.MustOpenStore(t, cfg)
	meta := testsupport.NewMetadata(t, st, "holiday.mp4", "video/mp4", "not really a video")
	return &fixture{cfg: cfg, store: st, meta: meta}
}

func (f *fixture) context(t *testing.T, activityID string, configuration map[string]any) (*backend.Job, *activity.Context) {
	t.Helper()
	job := testsupport.ClaimJob(t, f.store, activityID, f.meta.Ref(), configuration)
	actx := activity.NewContext(job, f.store, activity.ContextOptions{TempDir: f.cfg.Paths.TempDir})
	return job, actx
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp dir to be empty after release, found %d entries", len(entries))
	}
}

func TestThumbnailsCapAndCleanup(t *testing.T) {
	f := newFixture(t, map[string]string{"ffprobe": videoProbe, "ffmpeg": ffmpegFrames(15)})
	act := media.NewThumbnails(f.cfg)
	job, actx := f.context(t, media.ThumbnailActivityID, nil)

	if err := act.Execute(context.Background(), actx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	actx.ReleaseAll()
	assertTempDirEmpty(t, f.cfg.Paths.TempDir)

	items, err := f.store.ListSupplementary(context.Background(), f.meta.Ref())
	if err != nil {
		t.Fatalf("ListSupplementary: %v", err)
	}
	if len(items) != 10 {
		t.Fatalf("expected 10 thumbnails, got %d", len(items))
	}
	byKey := make(map[string]backend.Supplementary, len(items))
	for _, item := range items {
		byKey[item.Key] = item
	}
	first, ok := byKey["thumbnail-1"]
	if !ok || first.Name != "Thumbnail #1" || first.ContentType != "image/jpeg" {
		t.Fatalf("unexpected first thumbnail %+v", first)
	}
	if _, ok := byKey["thumbnail-11"]; ok {
		t.Fatal("thumbnail cap exceeded")
	}
	rc, err := f.store.OpenSupplementary(context.Background(), f.meta.Ref(), "thumbnail-10")
	if err != nil {
		t.Fatalf("OpenSupplementary: %v", err)
	}
	defer rc.Close()
	if data, _ := io.ReadAll(rc); string(data) != "jpeg-10" {
		t.Fatalf("unexpected thumbnail body %q", data)
	}

	meta, err := f.store.GetMetadata(context.Background(), f.meta.ID, 0)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if meta.Attributes["video.width"] != float64(1920) || meta.Attributes["video.duration_seconds"] != float64(60) {
		t.Fatalf("expected probe attributes on metadata, got %v", meta.Attributes)
	}
}

func TestThumbnailsHonorsConfiguredCap(t *testing.T) {
	f := newFixture(t, map[string]string{"ffprobe": videoProbe, "ffmpeg": ffmpegFrames(5)})
	act := media.NewThumbnails(f.cfg)
	job, actx := f.context(t, media.ThumbnailActivityID, map[string]any{"max_thumbnails": 3})
	defer actx.ReleaseAll()

	if err := act.Execute(context.Background(), actx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	items, err := f.store.ListSupplementary(context.Background(), f.meta.Ref())
	if err != nil {
		t.Fatalf("ListSupplementary: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 thumbnails, got %d", len(items))
	}
}

func TestThumbnailsFailures(t *testing.T) {
	tests := []struct {
		name    string
		scripts map[string]string
		config  map[string]any
		want    error
	}{
		{
			name:    "no video stream",
			scripts: map[string]string{"ffprobe": `echo '{"streams":[{"codec_type":"audio"}]}'`, "ffmpeg": ""},
			want:    services.ErrValidation,
		},
		{
			name:    "ffmpeg fails",
			scripts: map[string]string{"ffprobe": videoProbe, "ffmpeg": "echo 'invalid data' >&2\nexit 1\n"},
			want:    services.ErrExternalTool,
		},
		{
			name:    "no frames",
			scripts: map[string]string{"ffprobe": videoProbe, "ffmpeg": ""},
			want:    services.ErrExternalTool,
		},
		{
			name:    "bad configuration",
			scripts: map[string]string{"ffprobe": videoProbe, "ffmpeg": ""},
			config:  map[string]any{"max_thumbnails": 0},
			want:    services.ErrConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.scripts)
			act := media.NewThumbnails(f.cfg)
			job, actx := f.context(t, media.ThumbnailActivityID, tt.config)

			err := act.Execute(context.Background(), actx, job)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			actx.ReleaseAll()
			assertTempDirEmpty(t, f.cfg.Paths.TempDir)
		})
	}
}

func TestThumbnailsCancellationStopsFFmpeg(t *testing.T) {
	f := newFixture(t, map[string]string{"ffprobe": videoProbe, "ffmpeg": "exec sleep 30\n"})
	act := media.NewThumbnails(f.cfg)
	job, actx := f.context(t, media.ThumbnailActivityID, nil)
	defer actx.ReleaseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := act.Execute(ctx, actx, job)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("ffmpeg was not cancelled promptly (%s)", elapsed)
	}
}

func TestThumbnailsHealthCheck(t *testing.T) {
	f := newFixture(t, nil)
	if health := media.NewThumbnails(f.cfg).HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected stubbed binaries to be healthy, got %+v", health)
	}
	f.cfg.Media.FFmpegBinary = "definitely-missing-ffmpeg"
	if health := media.NewThumbnails(f.cfg).HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected missing ffmpeg to be unhealthy")
	}
}

type fakeEncoder struct {
	err error
}

func (e fakeEncoder) Encode(ctx context.Context, inputPath, outputDir string, progress func(drapto.ProgressUpdate)) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	progress(drapto.ProgressUpdate{Type: drapto.EventTypeEncodingProgress, Percent: 50})
	out := drapto.OutputPath(inputPath, outputDir)
	if err := os.WriteFile(out, []byte("av1"), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

func TestEncodeUploadsResult(t *testing.T) {
	f := newFixture(t, nil)
	act := media.NewEncode(f.cfg, fakeEncoder{})
	job, actx := f.context(t, media.EncodeActivityID, nil)

	if err := act.Execute(context.Background(), actx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	actx.ReleaseAll()
	assertTempDirEmpty(t, f.cfg.Paths.TempDir)

	items, err := f.store.ListSupplementary(context.Background(), f.meta.Ref())
	if err != nil {
		t.Fatalf("ListSupplementary: %v", err)
	}
	if len(items) != 1 || items[0].Key != "encoded" || items[0].Name != "holiday.mkv" || items[0].ContentType != "video/x-matroska" {
		t.Fatalf("unexpected supplementary %+v", items)
	}
}

func TestEncodeFailureIsRetriable(t *testing.T) {
	f := newFixture(t, nil)
	act := media.NewEncode(f.cfg, fakeEncoder{err: errors.New("svt-av1 crashed")})
	job, actx := f.context(t, media.EncodeActivityID, nil)
	defer actx.ReleaseAll()

	err := act.Execute(context.Background(), actx, job)
	if !errors.Is(err, services.ErrExternalTool) || !services.Retriable(err) {
		t.Fatalf("expected retriable external tool error, got %v", err)
	}
}
