package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/cliper/internal/domain/filtergraph"
	"github.com/forPelevin/cliper/internal/domain/reframe"
	"github.com/forPelevin/cliper/internal/domain/subtitles"
	"github.com/forPelevin/cliper/internal/types"
)

// Stage names used in failure records and logs.
const (
	StageValidate  = "validate"
	StagePrepare   = "prepare"
	StageSubtitles = "subtitles"
	StageReframe   = "reframe"
	StagePlan      = "plan"
)

func (u *Usecase) exportClip(ctx context.Context, in Input, info types.VideoInfo, videoDir string, clip types.Clip) ClipOutcome {
	out := ClipOutcome{Clip: clip}
	log := u.log.With().Int("clip_id", clip.ID).Logger()
	fail := func(stage string, err error) ClipOutcome {
		log.Error().Err(err).Str("stage", stage).Msg("clip export failed")
		out.Err = &StageError{ClipID: clip.ID, Stage: stage, Err: err}
		return out
	}

	if err := clip.Validate(); err != nil {
		return fail(StageValidate, err)
	}
	end := clip.End
	if total := info.Duration.Seconds(); total > 0 {
		if clip.Start >= total {
			return fail(StageValidate, fmt.Errorf("start %.3f is past the source end %.3f", clip.Start, total))
		}
		if end > total {
			log.Warn().Float64("end", end).Float64("source_end", total).Msg("clip end past source end, trimming")
			end = total
		}
	}
	req := in.Request

	dir := clipDir(videoDir, clip, req)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(StagePrepare, err)
	}
	id := strconv.Itoa(clip.ID)
	final := filepath.Join(dir, id+".mp4")

	plan := filtergraph.Plan{
		Source:       in.Source,
		Start:        clip.Start,
		Duration:     end - clip.Start,
		Aspect:       req.Aspect,
		SourceHeight: info.Height,
		Output:       final,
		Pass1Output:  filepath.Join(dir, id+".pass1.mp4"),
		Encoding:     u.d.Encoding,
		SubtitlePass: u.d.SubtitlePass,
	}

	if req.Subtitles.Enabled {
		spec, err := u.subtitles(log, dir, id, clip, req, in.Transcript, end)
		if err != nil {
			return fail(StageSubtitles, err)
		}
		plan.Subtitles = spec
	}
	if req.Logo.Enabled {
		plan.Logo = u.logo(log, req.Logo)
	}

	if req.FaceTracking.Enabled && req.Aspect.NeedsHorizontalCrop() && u.d.Reframer != nil {
		intermediate := filepath.Join(dir, id+".reframed."+u.d.Reframer.Container())
		defer removeTemp(log, intermediate)
		ok, err := u.reframe(ctx, log, in.Source, intermediate, clip.Start, end, req)
		if err != nil {
			return fail(StageReframe, err)
		}
		if ok {
			plan.Intermediate = intermediate
			out.Manifest.FaceTracked = true
		}
	}

	passes, err := filtergraph.Build(plan)
	if err != nil {
		return fail(StagePlan, err)
	}
	if plan.Split() {
		defer removeTemp(log, plan.Pass1Output)
	}

	for _, pass := range passes {
		err := u.d.Transcoder.Transcode(ctx, pass.Name, pass.Args)
		if err == nil {
			if pass.Name == "pass1" {
				u.checkPass1(ctx, log, pass.Output)
			}
			continue
		}
		if pass.Name == "pass2" && ctx.Err() == nil {
			rerr := os.Rename(plan.Pass1Output, final)
			if rerr == nil {
				log.Warn().Err(err).Str("stage", pass.Name).Str("output", final).
					Msg("subtitle pass failed, keeping pass-1 output without subtitles")
				out.Manifest.Degraded = true
				break
			}
			log.Error().Err(rerr).Msg("could not keep pass-1 output")
		}
		removeTemp(log, final)
		return fail(pass.Name, err)
	}

	out.Path = final
	out.Manifest.ID = clip.ID
	out.Manifest.StartSec = clip.Start
	out.Manifest.EndSec = end
	out.Manifest.File = relPath(videoDir, final)
	out.Manifest.Style = styleLabel(clip, req)
	out.Manifest.Text = clip.TextPreview
	if plan.Subtitles != nil && !out.Manifest.Degraded {
		out.Manifest.Subtitles = relPath(videoDir, plan.Subtitles.Path)
	}
	log.Info().
		Str("output", final).
		Bool("face_tracked", out.Manifest.FaceTracked).
		Bool("degraded", out.Manifest.Degraded).
		Int("passes", len(passes)).
		Msg("clip exported")
	return out
}

// subtitles resolves the subtitle file for a clip. A nil spec with a nil
// error means the clip is exported without subtitles.
func (u *Usecase) subtitles(log zerolog.Logger, dir, id string, clip types.Clip, req types.ExportRequest, tr *types.Transcript, end float64) (*filtergraph.SubtitleSpec, error) {
	style, ok := u.d.Styles.Lookup(req.Subtitles.Style)
	if !ok {
		log.Warn().Str("style", req.Subtitles.Style).Msg("unknown subtitle style, using default")
		style, _ = u.d.Styles.Lookup(filtergraph.DefaultStyle)
	}

	path := clip.SubtitlePath
	if path == "" {
		path = req.Subtitles.Path
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			log.Warn().Err(err).Msg("subtitle file unavailable, exporting without subtitles")
			return nil, nil
		}
		return &filtergraph.SubtitleSpec{Path: path, Style: style}, nil
	}
	if tr == nil {
		log.Warn().Msg("no transcript or subtitle file, exporting without subtitles")
		return nil, nil
	}

	srt, err := subtitles.RenderClipSRT(*tr, clip.StartDur(), time.Duration(end*float64(time.Second)))
	if errors.Is(err, subtitles.ErrEmpty) {
		log.Warn().Msg("no transcript words in clip window, exporting without subtitles")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	path = filepath.Join(dir, id+".srt")
	if err := os.WriteFile(path, []byte(srt), 0o644); err != nil {
		return nil, fmt.Errorf("write subtitles: %w", err)
	}
	return &filtergraph.SubtitleSpec{Path: path, Style: style}, nil
}

func (u *Usecase) logo(log zerolog.Logger, l types.Logo) *filtergraph.LogoSpec {
	if _, err := os.Stat(l.Path); err != nil {
		log.Warn().Err(err).Str("logo", l.Path).Msg("logo unavailable, exporting without logo")
		return nil
	}
	return &filtergraph.LogoSpec{
		Path:     l.Path,
		Position: l.Position,
		Scale:    l.Scale,
		Margin:   u.d.LogoMargin,
	}
}

// reframe writes the face-tracked intermediate. ok is false when tracking
// failed and the clip should take the static crop path instead. Only
// cancellation is returned as an error.
func (u *Usecase) reframe(ctx context.Context, log zerolog.Logger, source, output string, start, end float64, req types.ExportRequest) (bool, error) {
	tw, th, _ := req.Aspect.Resolution()
	res, err := u.d.Reframer.Reframe(ctx, types.ReframeJob{
		Source:        source,
		Output:        output,
		TargetWidth:   tw,
		TargetHeight:  th,
		Start:         start,
		End:           end,
		Strategy:      req.FaceTracking.Strategy,
		SampleRate:    req.FaceTracking.SampleRate,
		Margin:        req.FaceTracking.Margin,
		MissThreshold: req.FaceTracking.MissThreshold,
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		var resErr *reframe.ResolutionError
		if errors.As(err, &resErr) {
			log.Warn().Err(err).Msg("source too small for face tracking, using static crop")
		} else {
			log.Warn().Err(err).Msg("face tracking failed, using static crop")
		}
		return false, nil
	}
	log.Debug().
		Int("frames", res.Frames).
		Int("detections", res.Detections).
		Int("write_failures", res.WriteFailures).
		Bool("fell_back", res.FellBack).
		Msg("face-tracked intermediate ready")
	return true, nil
}

// checkPass1 looks for subtitle streams carried into the pass-1 file. They
// would render twice once pass 2 burns subtitles in.
func (u *Usecase) checkPass1(ctx context.Context, log zerolog.Logger, path string) {
	info, err := u.d.Probe.Probe(ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("output", path).Msg("could not probe pass-1 output")
		return
	}
	if info.SubtitleStreams > 0 {
		log.Warn().Int("subtitle_streams", info.SubtitleStreams).Str("output", path).
			Msg("pass-1 output carries subtitle streams")
	}
}

func clipDir(videoDir string, clip types.Clip, req types.ExportRequest) string {
	if !req.OrganizeByStyle {
		return videoDir
	}
	if label := PathSegment(styleLabel(clip, req)); label != "" {
		return filepath.Join(videoDir, label)
	}
	return videoDir
}

func styleLabel(clip types.Clip, req types.ExportRequest) string {
	if clip.Style != "" {
		return clip.Style
	}
	return req.StyleLabel
}

func relPath(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func removeTemp(log zerolog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("could not remove temporary file")
	}
}
