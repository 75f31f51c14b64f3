//go:build integration

package itest

import (
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/cliper/internal/config"
	"github.com/forPelevin/cliper/internal/pipeline"
)

const transcriptFixture = `{"segments":[
 {"start":0,"end":3,"text":"Here is the key idea.","words":[
  {"start":0.2,"end":0.6,"word":"Here"},{"start":0.6,"end":0.8,"word":"is"},
  {"start":0.8,"end":1.0,"word":"the"},{"start":1.0,"end":1.4,"word":"key"},
  {"start":1.4,"end":2.0,"word":"idea."}]},
 {"start":5,"end":8,"text":"Step two: measure results.","words":[
  {"start":5.1,"end":5.5,"word":"Step"},{"start":5.5,"end":6.0,"word":"two:"},
  {"start":6.0,"end":6.8,"word":"measure"},{"start":6.8,"end":7.5,"word":"results."}]}
]}`

const clipsFixture = `
- clip_id: 1
  start_time: 0
  end_time: 4
  style: educational
- clip_id: 2
  start_time: 5
  end_time: 9
  style: viral
`

func ffmpegFixture(t *testing.T, args ...string) {
	t.Helper()
	cmd := exec.Command("ffmpeg", append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)...)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestE2E_VerticalWithLogoAndSubtitles(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "input.mp4")
	ffmpegFixture(t,
		"-f", "lavfi", "-i", "testsrc=s=1280x720:d=10:r=25",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=10",
		"-shortest",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		in,
	)
	logo := filepath.Join(tmp, "logo.png")
	ffmpegFixture(t, "-f", "lavfi", "-i", "color=c=red:s=200x100:d=0.04", "-frames:v", "1", logo)

	cfg := config.Default()
	cfg.OutDir = filepath.Join(tmp, "out")
	cfg.Aspect = "9:16"
	cfg.Workers = 2
	cfg.OrganizeByStyle = true
	cfg.Logo.Enabled = true
	cfg.Logo.Path = logo
	cfg.Subtitles.Enabled = true

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	res, err := pipeline.Run(ctx, pipeline.Config{
		Config:         cfg,
		Source:         in,
		ClipsPath:      writeFixture(t, tmp, "clips.yaml", clipsFixture),
		TranscriptPath: writeFixture(t, tmp, "transcript.json", transcriptFixture),
		Log:            zerolog.New(zerolog.NewTestWriter(t)),
	})
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if len(res.Paths) != 2 || len(res.Failures) != 0 {
		t.Fatalf("expected two clips, got paths=%v failures=%v", res.Paths, res.Failures)
	}
	if filepath.Base(filepath.Dir(res.Paths[0])) != "educational" || filepath.Base(filepath.Dir(res.Paths[1])) != "viral" {
		t.Fatalf("clips not organized by style: %v", res.Paths)
	}

	for _, p := range res.Paths {
		pr, err := probe(p)
		if err != nil {
			t.Fatalf("probe %s: %v", p, err)
		}
		if pr.count("subtitle") != 0 {
			t.Fatalf("%s: subtitles must be burned, not muxed", p)
		}
		if pr.count("audio") != 1 {
			t.Fatalf("%s: expected one audio stream", p)
		}
		for _, s := range pr.Streams {
			if s.CodecType == "video" && (s.Width != 1080 || s.Height != 1920) {
				t.Fatalf("%s: unexpected size %dx%d", p, s.Width, s.Height)
			}
		}
		sec, err := pr.durationSeconds()
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(sec-4) > 0.5 {
			t.Fatalf("%s: duration %.2f, want about 4s", p, sec)
		}
	}

	videoDir := filepath.Join(cfg.OutDir, "input")
	for _, name := range []string{"manifest.json", "educational/1.srt"} {
		if _, err := os.Stat(filepath.Join(videoDir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}

func TestE2E_FaceTrackingWithoutFaces(t *testing.T) {
	repoRoot := mustRepoRoot(t)
	cascade := filepath.Join(repoRoot, "internal", "ports", "adapters", "pigo", "testdata", "facefinder")

	tmp := t.TempDir()
	in := filepath.Join(tmp, "input.mp4")
	ffmpegFixture(t,
		"-f", "lavfi", "-i", "testsrc=s=640x360:d=3:r=25",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=3",
		"-shortest",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		in,
	)

	cfg := config.Default()
	cfg.OutDir = filepath.Join(tmp, "out")
	cfg.Aspect = "9:16"
	cfg.FaceTracking.Enabled = true
	cfg.FaceTracking.CascadePath = cascade

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	res, err := pipeline.Run(ctx, pipeline.Config{
		Config:    cfg,
		Source:    in,
		ClipsPath: writeFixture(t, tmp, "clips.yaml", "- {clip_id: 1, start_time: 0, end_time: 2}\n"),
		Log:       zerolog.New(zerolog.NewTestWriter(t)),
	})
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if len(res.Paths) != 1 || !res.Manifest.Clips[0].FaceTracked {
		t.Fatalf("expected one face-tracked clip, got %+v", res.Manifest)
	}
	pr, err := probe(res.Paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if pr.count("audio") != 1 {
		t.Fatalf("face-tracked clip lost its audio")
	}
}
