package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forPelevin/cliper/internal/domain/filtergraph"
	"github.com/forPelevin/cliper/internal/domain/reframe"
	"github.com/forPelevin/cliper/internal/types"
)

// DefaultFile is read when no config path is given and it exists.
const DefaultFile = "cliper.yaml"

const (
	BackendAuto       = "auto"
	BackendSubprocess = "subprocess"
	BackendNative     = "native"
)

// Config holds every export option. Precedence is flags, then CLIPER_*
// environment, then the YAML file, then defaults.
type Config struct {
	OutDir          string `yaml:"out_dir"`
	Aspect          string `yaml:"aspect"`
	OrganizeByStyle bool   `yaml:"organize_by_style"`
	StyleLabel      string `yaml:"style_label"`
	Workers         int    `yaml:"workers"`
	FFmpegPath      string `yaml:"ffmpeg_path"`
	FFprobePath     string `yaml:"ffprobe_path"`

	FaceTracking FaceTrackingConfig `yaml:"face_tracking"`
	Encoder      EncoderConfig      `yaml:"encoder"`
	Logo         LogoConfig         `yaml:"logo"`
	Subtitles    SubtitleConfig     `yaml:"subtitles"`
}

type FaceTrackingConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Strategy      string  `yaml:"strategy"`
	SampleRate    int     `yaml:"sample_rate"`
	Margin        float64 `yaml:"margin"`
	MissThreshold int     `yaml:"miss_threshold"`
	MinConfidence float64 `yaml:"min_confidence"`
	CascadePath   string  `yaml:"cascade_path"`
	DetectWidth   int     `yaml:"detect_width"`
}

type EncoderConfig struct {
	// Codecs is the fallback chain for the face-tracked intermediate.
	Codecs       []string      `yaml:"codecs"`
	Backend      string        `yaml:"backend"`
	CloseTimeout time.Duration `yaml:"close_timeout"`
	// Final transcode settings.
	VideoCodec   string `yaml:"video_codec"`
	Preset       string `yaml:"preset"`
	CRF          int    `yaml:"crf"`
	AudioCodec   string `yaml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate"`
}

type LogoConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Path     string  `yaml:"path"`
	Position string  `yaml:"position"`
	Scale    float64 `yaml:"scale"`
	Margin   int     `yaml:"margin"`
}

type SubtitleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Style   string `yaml:"style"`
	// Pass is split or combined.
	Pass   string                       `yaml:"pass"`
	Styles map[string]filtergraph.Style `yaml:"styles"`
}

func Default() Config {
	enc := filtergraph.DefaultEncoding()
	return Config{
		OutDir:  "output",
		Aspect:  string(types.AspectOriginal),
		Workers: 1,
		FaceTracking: FaceTrackingConfig{
			Strategy:      string(types.StrategyKeepInFrame),
			SampleRate:    reframe.DefaultSampleRate,
			Margin:        reframe.DefaultMargin,
			MissThreshold: reframe.DefaultMissThreshold,
			MinConfidence: 0.5,
			CascadePath:   "models/facefinder",
			DetectWidth:   640,
		},
		Encoder: EncoderConfig{
			Codecs:       []string{"libx264", "h264_videotoolbox", "mpeg4"},
			Backend:      BackendAuto,
			CloseTimeout: 30 * time.Second,
			VideoCodec:   enc.VideoCodec,
			Preset:       enc.Preset,
			CRF:          enc.CRF,
			AudioCodec:   enc.AudioCodec,
			AudioBitrate: enc.AudioBitrate,
		},
		Logo: LogoConfig{
			Path:     "assets/logo.png",
			Position: string(types.LogoTopRight),
			Scale:    0.1,
			Margin:   filtergraph.DefaultLogoMargin,
		},
		Subtitles: SubtitleConfig{
			Style: filtergraph.DefaultStyle,
			Pass:  string(filtergraph.SubtitlePassSplit),
		},
	}
}

// Load reads path over the defaults. An empty path falls back to
// DefaultFile when it exists.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := decode(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from CLIPER_* variables. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("CLIPER_OUT_DIR", &c.OutDir)
	str("CLIPER_ASPECT", &c.Aspect)
	integer("CLIPER_WORKERS", &c.Workers)
	str("CLIPER_FFMPEG", &c.FFmpegPath)
	str("CLIPER_FFPROBE", &c.FFprobePath)
	boolean("CLIPER_FACE_TRACKING", &c.FaceTracking.Enabled)
	str("CLIPER_FACE_CASCADE", &c.FaceTracking.CascadePath)
	str("CLIPER_ENCODER_BACKEND", &c.Encoder.Backend)
	if v := strings.TrimSpace(getenv("CLIPER_CODECS")); v != "" {
		c.Encoder.Codecs = splitList(v)
	}
	str("CLIPER_LOGO", &c.Logo.Path)
	str("CLIPER_SUBTITLE_STYLE", &c.Subtitles.Style)
	str("CLIPER_SUBTITLE_PASS", &c.Subtitles.Pass)
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.OutDir) == "" {
		errs = append(errs, errors.New("out dir is empty"))
	}
	if _, err := types.ParseAspectRatio(c.Aspect); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}

	ft := c.FaceTracking
	if _, err := types.ParseStrategy(ft.Strategy); err != nil {
		errs = append(errs, err)
	}
	if ft.SampleRate < 1 {
		errs = append(errs, fmt.Errorf("sample rate must be >= 1, got %d", ft.SampleRate))
	}
	if ft.Margin <= 0 || ft.Margin >= 0.5 {
		errs = append(errs, fmt.Errorf("safe-zone margin must be in (0, 0.5), got %v", ft.Margin))
	}
	if ft.MissThreshold < 1 {
		errs = append(errs, fmt.Errorf("miss threshold must be >= 1, got %d", ft.MissThreshold))
	}
	if ft.MinConfidence <= 0 || ft.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("min confidence must be in (0, 1], got %v", ft.MinConfidence))
	}
	if ft.Enabled && strings.TrimSpace(ft.CascadePath) == "" {
		errs = append(errs, errors.New("face tracking needs a cascade path"))
	}

	enc := c.Encoder
	switch enc.Backend {
	case BackendAuto, BackendSubprocess, BackendNative:
	default:
		errs = append(errs, fmt.Errorf("unknown encoder backend %q (want auto, subprocess or native)", enc.Backend))
	}
	if enc.Backend != BackendNative && len(enc.Codecs) == 0 {
		errs = append(errs, errors.New("encoder codec chain is empty"))
	}
	if enc.CRF < 0 || enc.CRF > 51 {
		errs = append(errs, fmt.Errorf("crf must be in [0, 51], got %d", enc.CRF))
	}
	if strings.TrimSpace(enc.VideoCodec) == "" || strings.TrimSpace(enc.AudioCodec) == "" {
		errs = append(errs, errors.New("video and audio codecs are required"))
	}

	if _, err := types.ParseLogoPosition(c.Logo.Position); err != nil {
		errs = append(errs, err)
	}
	if c.Logo.Scale <= 0 || c.Logo.Scale > 1 {
		errs = append(errs, fmt.Errorf("logo scale must be in (0, 1], got %v", c.Logo.Scale))
	}
	if c.Logo.Enabled && strings.TrimSpace(c.Logo.Path) == "" {
		errs = append(errs, errors.New("logo enabled without a path"))
	}

	if _, err := filtergraph.ParseSubtitlePass(c.Subtitles.Pass); err != nil {
		errs = append(errs, err)
	}
	styles := c.Styles()
	if _, ok := styles.Lookup(c.Subtitles.Style); !ok {
		errs = append(errs, fmt.Errorf("unknown subtitle style %q (known: %s)", c.Subtitles.Style, strings.Join(styles.Names(), ", ")))
	}
	for name, st := range c.Subtitles.Styles {
		if err := st.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("subtitle style %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (c Config) Styles() filtergraph.Styles { return filtergraph.NewStyles(c.Subtitles.Styles) }

func (c Config) Encoding() filtergraph.Encoding {
	return filtergraph.Encoding{
		VideoCodec:   c.Encoder.VideoCodec,
		Preset:       c.Encoder.Preset,
		CRF:          c.Encoder.CRF,
		AudioCodec:   c.Encoder.AudioCodec,
		AudioBitrate: c.Encoder.AudioBitrate,
	}
}

// ExportRequest converts a validated config into the per-clip request.
func (c Config) ExportRequest() (types.ExportRequest, error) {
	aspect, err := types.ParseAspectRatio(c.Aspect)
	if err != nil {
		return types.ExportRequest{}, err
	}
	strategy, err := types.ParseStrategy(c.FaceTracking.Strategy)
	if err != nil {
		return types.ExportRequest{}, err
	}
	pos, err := types.ParseLogoPosition(c.Logo.Position)
	if err != nil {
		return types.ExportRequest{}, err
	}
	return types.ExportRequest{
		Aspect: aspect,
		FaceTracking: types.FaceTracking{
			Enabled:       c.FaceTracking.Enabled,
			Strategy:      strategy,
			SampleRate:    c.FaceTracking.SampleRate,
			Margin:        c.FaceTracking.Margin,
			MissThreshold: c.FaceTracking.MissThreshold,
		},
		Logo: types.Logo{
			Enabled:  c.Logo.Enabled,
			Path:     c.Logo.Path,
			Position: pos,
			Scale:    c.Logo.Scale,
		},
		Subtitles: types.Subtitles{
			Enabled: c.Subtitles.Enabled,
			Style:   c.Subtitles.Style,
		},
		OutDir:          c.OutDir,
		OrganizeByStyle: c.OrganizeByStyle,
		StyleLabel:      c.StyleLabel,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
