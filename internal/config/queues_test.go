package config_test

import (
	"testing"

	"weft/internal/config"
)

func TestParseQueueSpec(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []config.QueueSpec
		wantErr bool
	}{
		{
			name: "two queues",
			raw:  "media,2;default,10",
			want: []config.QueueSpec{{Name: "media", Concurrency: 2}, {Name: "default", Concurrency: 10}},
		},
		{
			name: "trailing delimiter",
			raw:  "profiles,10;video,4;media,2;default,10;",
			want: []config.QueueSpec{
				{Name: "profiles", Concurrency: 10},
				{Name: "video", Concurrency: 4},
				{Name: "media", Concurrency: 2},
				{Name: "default", Concurrency: 10},
			},
		},
		{
			name: "whitespace",
			raw:  " media , 2 ; default,1 ",
			want: []config.QueueSpec{{Name: "media", Concurrency: 2}, {Name: "default", Concurrency: 1}},
		},
		{name: "empty", raw: "", wantErr: true},
		{name: "zero count", raw: "media,0", wantErr: true},
		{name: "negative count", raw: "media,-1", wantErr: true},
		{name: "signed count", raw: "media,+2", wantErr: true},
		{name: "doubled trailing delimiter", raw: "media,2;;", wantErr: true},
		{name: "non numeric count", raw: "media,two", wantErr: true},
		{name: "duplicate name", raw: "media,1;media,2", wantErr: true},
		{name: "missing count", raw: "media", wantErr: true},
		{name: "extra field", raw: "media,1,2", wantErr: true},
		{name: "empty middle segment", raw: "media,1;;default,2", wantErr: true},
		{name: "invalid name", raw: "me dia,1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := config.ParseQueueSpec(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %v", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseQueueSpec(%q): %v", tt.raw, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d specs, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("spec %d: got %+v want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
