package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/forPelevin/cliper/internal/config"
	"github.com/forPelevin/cliper/internal/ports/adapters/mjpeg"
	"github.com/forPelevin/cliper/internal/types"
)

func TestBuildVideoName(t *testing.T) {
	tests := []struct {
		source, override, want string
	}{
		{"/tmp/My Cool.Video.mp4", "", "my-cool-video"},
		{"/tmp/___.mp4", "", "input"},
		{"/tmp/a.mp4", "Podcast Ep. 12", "podcast-ep-12"},
		{"/videos/abc123.mkv", "", "abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.source+tt.override, func(t *testing.T) {
			if got := buildVideoName(tt.source, tt.override); got != tt.want {
				t.Fatalf("buildVideoName(%q, %q) = %q, want %q", tt.source, tt.override, got, tt.want)
			}
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadClips(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantN   int
		wantErr string
	}{
		{
			name:    "yaml list",
			content: "- clip_id: 1\n  start_time: 0\n  end_time: 30.5\n  style: viral\n- clip_id: 2\n  start_time: 40\n  end_time: 70\n",
			wantN:   2,
		},
		{
			name:    "json object",
			content: `{"video_id":"x","clips":[{"clip_id":3,"start_time":12.5,"end_time":40,"duration":27.5,"text_preview":"hi"}]}`,
			wantN:   1,
		},
		{
			name:    "json list",
			content: `[{"clip_id":1,"start_time":0,"end_time":5}]`,
			wantN:   1,
		},
		{name: "empty", content: `{"clips":[]}`, wantErr: "no clips"},
		{name: "duplicate", content: "- {clip_id: 1, start_time: 0, end_time: 1}\n- {clip_id: 1, start_time: 2, end_time: 3}\n", wantErr: "duplicate"},
		{name: "garbage", content: "{{{", wantErr: "parse clips"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeFile(t, dir, "clips"+string(rune('a'+i))+".yaml", tt.content)
			clips, err := LoadClips(p)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(clips) != tt.wantN {
				t.Fatalf("expected %d clips, got %d", tt.wantN, len(clips))
			}
		})
	}
}

func TestLoadClips_Fields(t *testing.T) {
	p := writeFile(t, t.TempDir(), "clips.json",
		`{"clips":[{"clip_id":3,"start_time":12.5,"end_time":40,"text_preview":"hi","style":"educational","subtitle_path":"3.srt"}]}`)
	clips, err := LoadClips(p)
	if err != nil {
		t.Fatal(err)
	}
	want := types.Clip{ID: 3, Start: 12.5, End: 40, TextPreview: "hi", Style: "educational", SubtitlePath: "3.srt"}
	if clips[0] != want {
		t.Fatalf("got %+v, want %+v", clips[0], want)
	}
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "in.mp4", "x")

	cfg := Config{Config: config.Default(), Source: src, ClipsPath: "clips.yaml", Log: zerolog.Nop()}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missing := cfg
	missing.Source = filepath.Join(dir, "missing.mp4")
	if err := missing.Validate(); err == nil {
		t.Fatalf("expected error for missing input")
	}

	noClips := cfg
	noClips.ClipsPath = ""
	if err := noClips.Validate(); err == nil {
		t.Fatalf("expected error without clips file")
	}

	bad := cfg
	bad.Aspect = "21:9"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error from embedded config")
	}
}

func TestThreadsPerWorker(t *testing.T) {
	if got := threadsPerWorker(1); got != 0 {
		t.Fatalf("single worker must leave threads to ffmpeg, got %d", got)
	}
	// 0 when the CPU count is unavailable.
	if got := threadsPerWorker(1 << 20); got > 1 {
		t.Fatalf("expected at most one thread per worker, got %d", got)
	}
}

func TestWriteManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "video", "manifest.json")
	m := types.Manifest{Input: "in.mp4", Clips: []types.ManifestClip{{ID: 1, StartSec: 0, EndSec: 5, File: "1.mp4", FaceTracked: true}}}
	if err := writeManifest(path, m); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got types.Manifest
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Input != "in.mp4" || len(got.Clips) != 1 || !got.Clips[0].FaceTracked || got.Clips[0].File != "1.mp4" {
		t.Fatalf("unexpected manifest: %+v", got)
	}
	if !strings.Contains(string(b), `"start_sec"`) {
		t.Fatalf("expected snake_case keys: %s", b)
	}
}

func TestEncoderFactory_Native(t *testing.T) {
	f, err := encoderFactory(context.Background(), config.EncoderConfig{Backend: config.BackendNative}, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.(*mjpeg.EncoderFactory); !ok || f.Container() != "avi" {
		t.Fatalf("expected native mjpeg factory, got %T", f)
	}
}
