package media

import (
	"reflect"
	"testing"
)

func TestSortFramesPastPadding(t *testing.T) {
	frames := []string{
		"/tmp/x/frame-10000.jpg",
		"/tmp/x/frame-9999.jpg",
		"/tmp/x/frame-0002.jpg",
		"/tmp/x/frame-0010.jpg",
		"/tmp/x/frame-0001.jpg",
	}
	sortFrames(frames)
	want := []string{
		"/tmp/x/frame-0001.jpg",
		"/tmp/x/frame-0002.jpg",
		"/tmp/x/frame-0010.jpg",
		"/tmp/x/frame-9999.jpg",
		"/tmp/x/frame-10000.jpg",
	}
	if !reflect.DeepEqual(frames, want) {
		t.Fatalf("sortFrames = %v, want %v", frames, want)
	}
}
