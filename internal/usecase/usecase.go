package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/cliper/internal/domain/filtergraph"
	"github.com/forPelevin/cliper/internal/logging"
	"github.com/forPelevin/cliper/internal/ports"
	"github.com/forPelevin/cliper/internal/types"
)

// Deps is the fixed configuration of an exporter. Nothing in it changes
// while a batch runs.
type Deps struct {
	Probe      ports.Prober
	Transcoder ports.Transcoder
	// Reframer is nil when face tracking is unavailable; such clips take the
	// static crop path.
	Reframer     ports.Reframer
	Styles       filtergraph.Styles
	Encoding     filtergraph.Encoding
	SubtitlePass filtergraph.SubtitlePass
	LogoMargin   int
	Log          zerolog.Logger
}

type Usecase struct {
	d   Deps
	log zerolog.Logger
}

func New(d Deps) *Usecase {
	if d.Encoding.VideoCodec == "" {
		d.Encoding = filtergraph.DefaultEncoding()
	}
	if d.SubtitlePass == "" {
		d.SubtitlePass = filtergraph.SubtitlePassSplit
	}
	return &Usecase{d: d, log: logging.WithComponent(d.Log, "export")}
}

type Input struct {
	Source string
	// VideoName scopes every output under Request.OutDir/VideoName.
	VideoName  string
	Clips      []types.Clip
	Request    types.ExportRequest
	Transcript *types.Transcript
	// Workers bounds how many clips export at once. Values below 2 export
	// sequentially.
	Workers int
	// OnClipDone is called once per clip as it finishes, possibly from
	// several goroutines.
	OnClipDone func(ClipOutcome)
}

type ClipOutcome struct {
	Clip     types.Clip
	Path     string
	Manifest types.ManifestClip
	Err      *StageError
}

type Result struct {
	// Paths lists exported clip files in input order. Failed clips are absent.
	Paths    []string
	Manifest types.Manifest
	Failures []StageError
}

// StageError records why one clip did not export.
type StageError struct {
	ClipID int
	Stage  string
	Err    error
}

func (e StageError) Error() string {
	return fmt.Sprintf("clip %d: %s: %v", e.ClipID, e.Stage, e.Err)
}

func (e StageError) Unwrap() error { return e.Err }

// Export renders every clip of the batch. Clip failures are collected in
// Result.Failures and never stop the batch; the returned error covers
// batch-level problems and cancellation only.
func (u *Usecase) Export(ctx context.Context, in Input) (Result, error) {
	res := Result{Manifest: types.Manifest{Input: in.Source}}
	info, err := u.d.Probe.Probe(ctx, in.Source)
	if err != nil {
		return res, fmt.Errorf("probe source: %w", err)
	}
	name := in.VideoName
	if name == "" {
		name = "input"
	}
	outRoot := in.Request.OutDir
	if outRoot == "" {
		outRoot = "out"
	}
	videoDir := filepath.Join(outRoot, name)
	if err := os.MkdirAll(videoDir, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	u.log.Info().
		Str("source", in.Source).
		Str("dir", videoDir).
		Int("clips", len(in.Clips)).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Msg("export started")

	outcomes := make([]ClipOutcome, len(in.Clips))
	var g errgroup.Group
	g.SetLimit(max(1, in.Workers))
	for i, clip := range in.Clips {
		i, clip := i, clip
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = ClipOutcome{Clip: clip, Err: &StageError{ClipID: clip.ID, Stage: "cancelled", Err: err}}
			} else {
				outcomes[i] = u.exportClip(ctx, in, info, videoDir, clip)
			}
			if in.OnClipDone != nil {
				in.OnClipDone(outcomes[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			res.Failures = append(res.Failures, *o.Err)
			continue
		}
		res.Paths = append(res.Paths, o.Path)
		res.Manifest.Clips = append(res.Manifest.Clips, o.Manifest)
	}
	u.log.Info().Int("exported", len(res.Paths)).Int("failed", len(res.Failures)).Msg("export finished")
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// PathSegment lower-cases s and collapses every run of characters other
// than letters and digits into one dash.
func PathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
