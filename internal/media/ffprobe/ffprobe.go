package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"weft/internal/services"
)

// Result is the subset of `ffprobe -show_format -show_streams` output the
// media activities read.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  struct {
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

type Stream struct {
	Index       int    `json:"index"`
	CodecName   string `json:"codec_name"`
	CodecType   string `json:"codec_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Disposition struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

func (s Stream) isVideo() bool {
	return strings.EqualFold(s.CodecType, "video") && s.Disposition.AttachedPic == 0
}

func (s Stream) isAudio() bool { return strings.EqualFold(s.CodecType, "audio") }

// Inspect runs binary (ffprobe when empty) against path.
func Inspect(ctx context.Context, binary, path string) (Result, error) {
	if binary = strings.TrimSpace(binary); binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "ffprobe", "inspect", "empty path", nil)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, //nolint:gosec
		"-v", "error", "-hide_banner", "-of", "json", "-show_format", "-show_streams", "--", path)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "inspect", strings.TrimSpace(stderr.String()), err)
	}
	var result Result
	if err := json.Unmarshal(out, &result); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "parse", "decode json", err)
	}
	return result, nil
}

// FirstVideo returns the first video stream that is not an attached picture
// such as cover art.
func (r Result) FirstVideo() (Stream, bool) {
	for _, s := range r.Streams {
		if s.isVideo() {
			return s, true
		}
	}
	return Stream{}, false
}

// Attributes summarizes the probe as metadata attributes under the video.
// prefix. Values ffprobe did not report are omitted.
func (r Result) Attributes() map[string]any {
	attrs := make(map[string]any)
	if v, ok := r.FirstVideo(); ok {
		if v.CodecName != "" {
			attrs["video.codec"] = v.CodecName
		}
		if v.Width > 0 && v.Height > 0 {
			attrs["video.width"] = v.Width
			attrs["video.height"] = v.Height
		}
	}
	audio := 0
	for _, s := range r.Streams {
		if s.isAudio() {
			audio++
		}
	}
	attrs["video.audio_streams"] = audio
	if d, err := strconv.ParseFloat(strings.TrimSpace(r.Format.Duration), 64); err == nil && d > 0 {
		attrs["video.duration_seconds"] = d
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(r.Format.Size), 10, 64); err == nil && n > 0 {
		attrs["video.size_bytes"] = n
	}
	if name := strings.TrimSpace(r.Format.FormatName); name != "" {
		attrs["video.container"] = name
	}
	return attrs
}
