package filtergraph

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/forPelevin/cliper/internal/types"
)

// SubtitlePass selects how subtitle burn-in combines with a logo overlay.
type SubtitlePass string

const (
	// SubtitlePassSplit burns subtitles in a second pass over a subtitle-free
	// pass-1 output. Needed where a single pass renders text twice.
	SubtitlePassSplit SubtitlePass = "split"
	// SubtitlePassCombined puts every filter in one pass.
	SubtitlePassCombined SubtitlePass = "combined"
)

func ParseSubtitlePass(s string) (SubtitlePass, error) {
	switch p := SubtitlePass(s); p {
	case SubtitlePassSplit, SubtitlePassCombined:
		return p, nil
	case "":
		return SubtitlePassSplit, nil
	}
	return "", fmt.Errorf("unknown subtitle pass mode %q (want split or combined)", s)
}

type Encoding struct {
	VideoCodec   string
	Preset       string
	CRF          int
	AudioCodec   string
	AudioBitrate string
}

func DefaultEncoding() Encoding {
	return Encoding{
		VideoCodec:   "libx264",
		Preset:       "fast",
		CRF:          23,
		AudioCodec:   "aac",
		AudioBitrate: "192k",
	}
}

type LogoSpec struct {
	Path     string
	Position types.LogoPosition
	Scale    float64
	Margin   int
}

type SubtitleSpec struct {
	Path  string
	Style Style
}

// Plan is everything needed to turn one clip into transcode passes.
type Plan struct {
	Source   string
	Start    float64
	Duration float64
	// Intermediate is a silent face-tracked video already at the target size.
	// When set, video comes from it and audio from Source.
	Intermediate string
	Aspect       types.AspectRatio
	// SourceHeight sizes the logo when Aspect keeps the source size.
	SourceHeight int

	Logo      *LogoSpec
	Subtitles *SubtitleSpec

	Output      string
	Pass1Output string

	Encoding     Encoding
	SubtitlePass SubtitlePass
}

// Split reports whether the plan needs two passes.
func (p Plan) Split() bool {
	return p.Logo != nil && p.Subtitles != nil && p.SubtitlePass != SubtitlePassCombined
}

type Pass struct {
	Name   string
	Args   []string
	Output string
}

func Build(p Plan) ([]Pass, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Encoding.VideoCodec == "" {
		p.Encoding = DefaultEncoding()
	}
	if !p.Split() {
		return []Pass{p.mainPass("single", p.Output, p.Subtitles)}, nil
	}
	return []Pass{
		p.mainPass("pass1", p.Pass1Output, nil),
		p.subtitlePass(),
	}, nil
}

func (p Plan) validate() error {
	switch {
	case p.Source == "":
		return errors.New("plan: source is empty")
	case p.Output == "":
		return errors.New("plan: output is empty")
	case p.Duration <= 0:
		return fmt.Errorf("plan: duration must be > 0, got %.3f", p.Duration)
	case p.Split() && p.Pass1Output == "":
		return errors.New("plan: pass-1 output is required for split subtitle pass")
	case p.Logo != nil && p.outputHeight() <= 0:
		return errors.New("plan: output height unknown for logo scaling")
	}
	return nil
}

func (p Plan) outputHeight() int {
	if _, h, ok := p.Aspect.Resolution(); ok {
		return h
	}
	return p.SourceHeight
}

// mainPass cuts the clip window, selects the video source and applies crop,
// logo and optionally subtitles.
func (p Plan) mainPass(name, out string, subs *SubtitleSpec) Pass {
	var args []string
	audio := 0
	if p.Intermediate != "" {
		args = append(args, "-t", fmtSeconds(p.Duration), "-i", p.Intermediate)
		args = append(args, trimmedInput(p.Source, p.Start, p.Duration)...)
		audio = 1
	} else {
		args = append(args, trimmedInput(p.Source, p.Start, p.Duration)...)
	}

	base := NewChain()
	if p.Intermediate == "" {
		base.Custom(AspectFilter(p.Aspect))
	}

	var graph string
	if p.Logo != nil {
		logoIdx := audio + 1
		args = append(args, "-i", p.Logo.Path)
		margin := p.Logo.Margin
		if margin <= 0 {
			margin = DefaultLogoMargin
		}
		if base.Empty() {
			base.Custom("null")
		}
		post := NewChain().Custom("overlay=" + OverlayPosition(p.Logo.Position, margin))
		if subs != nil {
			post.Custom(SubtitleFilter(subs.Path, subs.Style))
		}
		graph = fmt.Sprintf("[0:v]%s[base];[%d:v]scale=-1:%d[logo];[base][logo]%s[v]",
			base, logoIdx, LogoHeight(p.outputHeight(), p.Logo.Scale), post)
	} else {
		if subs != nil {
			base.Custom(SubtitleFilter(subs.Path, subs.Style))
		}
		if !base.Empty() {
			graph = fmt.Sprintf("[0:v]%s[v]", base)
		}
	}

	if graph != "" {
		args = append(args, "-filter_complex", graph, "-map", "[v]")
	} else {
		args = append(args, "-map", "0:v:0")
	}
	args = append(args, "-map", strconv.Itoa(audio)+":a:0?", "-sn")
	args = append(args, p.videoCodecArgs()...)
	args = append(args, "-c:a", p.Encoding.AudioCodec)
	if p.Encoding.AudioBitrate != "" {
		args = append(args, "-b:a", p.Encoding.AudioBitrate)
	}
	args = append(args, "-movflags", "+faststart", out)
	return Pass{Name: name, Args: args, Output: out}
}

// subtitlePass burns subtitles into the pass-1 output and copies its audio.
func (p Plan) subtitlePass() Pass {
	args := []string{
		"-i", p.Pass1Output,
		"-filter_complex", "[0:v]" + SubtitleFilter(p.Subtitles.Path, p.Subtitles.Style) + "[v]",
		"-map", "[v]",
		"-map", "0:a:0?",
		"-sn",
	}
	args = append(args, p.videoCodecArgs()...)
	args = append(args, "-c:a", "copy", "-movflags", "+faststart", p.Output)
	return Pass{Name: "pass2", Args: args, Output: p.Output}
}

func (p Plan) videoCodecArgs() []string {
	e := p.Encoding
	args := []string{"-c:v", e.VideoCodec}
	if e.Preset != "" {
		args = append(args, "-preset", e.Preset)
	}
	if e.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(e.CRF))
	}
	return append(args, "-pix_fmt", "yuv420p")
}

func trimmedInput(path string, start, dur float64) []string {
	return []string{"-ss", fmtSeconds(start), "-t", fmtSeconds(dur), "-i", path}
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
