package types

import "fmt"

type AspectRatio string

const (
	AspectOriginal  AspectRatio = "original"
	AspectVertical  AspectRatio = "9:16"
	AspectSquare    AspectRatio = "1:1"
	AspectLandscape AspectRatio = "16:9"
)

func ParseAspectRatio(s string) (AspectRatio, error) {
	switch a := AspectRatio(s); a {
	case AspectOriginal, AspectVertical, AspectSquare, AspectLandscape:
		return a, nil
	case "":
		return AspectOriginal, nil
	}
	return "", fmt.Errorf("unknown aspect ratio %q (want original, 9:16, 1:1 or 16:9)", s)
}

// Resolution returns the output frame size for the ratio. ok is false for
// AspectOriginal, which keeps the source size.
func (a AspectRatio) Resolution() (w, h int, ok bool) {
	switch a {
	case AspectVertical:
		return 1080, 1920, true
	case AspectSquare:
		return 1080, 1080, true
	case AspectLandscape:
		return 1920, 1080, true
	}
	return 0, 0, false
}

// NeedsHorizontalCrop reports whether face-tracked reframing applies.
func (a AspectRatio) NeedsHorizontalCrop() bool { return a == AspectVertical }

type Strategy string

const (
	StrategyKeepInFrame Strategy = "keep_in_frame"
	StrategyCentered    Strategy = "centered"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyKeepInFrame, StrategyCentered:
		return st, nil
	case "":
		return StrategyKeepInFrame, nil
	}
	return "", fmt.Errorf("unknown tracking strategy %q (want keep_in_frame or centered)", s)
}

type LogoPosition string

const (
	LogoTopLeft     LogoPosition = "top-left"
	LogoTopRight    LogoPosition = "top-right"
	LogoBottomLeft  LogoPosition = "bottom-left"
	LogoBottomRight LogoPosition = "bottom-right"
)

func ParseLogoPosition(s string) (LogoPosition, error) {
	switch p := LogoPosition(s); p {
	case LogoTopLeft, LogoTopRight, LogoBottomLeft, LogoBottomRight:
		return p, nil
	case "":
		return LogoTopRight, nil
	}
	return "", fmt.Errorf("unknown logo position %q", s)
}

type FaceTracking struct {
	Enabled       bool
	Strategy      Strategy
	SampleRate    int
	Margin        float64
	MissThreshold int
}

type Logo struct {
	Enabled  bool
	Path     string
	Position LogoPosition
	Scale    float64
}

type Subtitles struct {
	Enabled bool
	Style   string
	// Path is a pre-rendered subtitle file. Empty means render from transcript.
	Path string
}

// ExportRequest is the per-clip export configuration. It is built once per
// clip and treated as read-only afterwards.
type ExportRequest struct {
	Aspect          AspectRatio
	FaceTracking    FaceTracking
	Logo            Logo
	Subtitles       Subtitles
	OutDir          string
	OrganizeByStyle bool
	StyleLabel      string
}

// ReframeJob describes one face-tracked reframe of a clip window.
type ReframeJob struct {
	Source        string
	Output        string
	TargetWidth   int
	TargetHeight  int
	Start         float64
	End           float64
	Strategy      Strategy
	SampleRate    int
	Margin        float64
	MissThreshold int
}

type ReframeResult struct {
	Output        string
	Frames        int
	Detections    int
	WriteFailures int
	FellBack      bool
}

// EncodeOptions configures a streaming encoder.
type EncodeOptions struct {
	Width  int
	Height int
	FPS    float64
	Codec  string
	CRF    int
	Preset string
}
