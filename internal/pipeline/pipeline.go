package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"gopkg.in/yaml.v3"

	"github.com/forPelevin/cliper/internal/config"
	"github.com/forPelevin/cliper/internal/domain/filtergraph"
	"github.com/forPelevin/cliper/internal/ports"
	"github.com/forPelevin/cliper/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/cliper/internal/ports/adapters/mjpeg"
	"github.com/forPelevin/cliper/internal/ports/adapters/pigo"
	"github.com/forPelevin/cliper/internal/ports/adapters/transcript"
	"github.com/forPelevin/cliper/internal/types"
	"github.com/forPelevin/cliper/internal/usecase"
)

type Config struct {
	config.Config

	Source         string
	ClipsPath      string
	TranscriptPath string
	// VideoName overrides the output directory name derived from Source.
	VideoName string

	Log zerolog.Logger
	// OnStart receives the number of clips about to be exported.
	OnStart    func(total int)
	OnClipDone func(usecase.ClipOutcome)
}

func (c Config) Validate() error {
	if c.Source == "" {
		return errors.New("input is empty")
	}
	if _, err := os.Stat(c.Source); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if c.ClipsPath == "" {
		return errors.New("clips file is required")
	}
	if c.Subtitles.Enabled && c.TranscriptPath == "" {
		c.Log.Warn().Msg("subtitles enabled without a transcript; only clips with a subtitle_path get subtitles")
	}
	return c.Config.Validate()
}

func Run(ctx context.Context, cfg Config) (usecase.Result, error) {
	if err := cfg.Validate(); err != nil {
		return usecase.Result{}, fmt.Errorf("config: %w", err)
	}
	log := cfg.Log

	clips, err := LoadClips(cfg.ClipsPath)
	if err != nil {
		return usecase.Result{}, err
	}
	var tr *types.Transcript
	if cfg.TranscriptPath != "" {
		t, err := transcript.Load(cfg.TranscriptPath)
		if err != nil {
			return usecase.Result{}, err
		}
		tr = &t
	}
	req, err := cfg.ExportRequest()
	if err != nil {
		return usecase.Result{}, err
	}

	ff, err := ffmpeg.New(ctx, log, ffmpeg.Options{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Threads:     threadsPerWorker(cfg.Workers),
	})
	if err != nil {
		return usecase.Result{}, err
	}

	var reframer ports.Reframer
	if req.FaceTracking.Enabled {
		if req.Aspect.NeedsHorizontalCrop() {
			reframer, err = newReframer(ctx, cfg, ff, log)
			if err != nil {
				log.Error().Err(err).Msg("face tracking setup failed")
				return usecase.Result{}, err
			}
		} else {
			log.Info().Str("aspect", string(req.Aspect)).Msg("face tracking applies to 9:16 only, using static crop")
		}
	}

	uc := usecase.New(usecase.Deps{
		Probe:        ff,
		Transcoder:   ff,
		Reframer:     reframer,
		Styles:       cfg.Styles(),
		Encoding:     cfg.Encoding(),
		SubtitlePass: mustSubtitlePass(cfg.Subtitles.Pass),
		LogoMargin:   cfg.Logo.Margin,
		Log:          log,
	})

	if cfg.OnStart != nil {
		cfg.OnStart(len(clips))
	}
	videoName := buildVideoName(cfg.Source, cfg.VideoName)
	res, err := uc.Export(ctx, usecase.Input{
		Source:     cfg.Source,
		VideoName:  videoName,
		Clips:      clips,
		Request:    req,
		Transcript: tr,
		Workers:    cfg.Workers,
		OnClipDone: cfg.OnClipDone,
	})
	if err != nil && len(res.Paths) == 0 {
		return res, err
	}

	manifestPath := filepath.Join(req.OutDir, videoName, "manifest.json")
	if werr := writeManifest(manifestPath, res.Manifest); werr != nil {
		return res, errors.Join(err, werr)
	}
	log.Info().Str("manifest", manifestPath).Int("clips", len(res.Manifest.Clips)).Msg("manifest written")
	return res, err
}

// newReframer loads the detector and picks the encoder backend. Any failure
// here stops the run before the first clip.
func newReframer(ctx context.Context, cfg Config, ff *ffmpeg.Adapter, log zerolog.Logger) (*usecase.Reframer, error) {
	det, err := pigo.New(cfg.FaceTracking.CascadePath, pigo.Options{
		DetectWidth:   cfg.FaceTracking.DetectWidth,
		MinConfidence: cfg.FaceTracking.MinConfidence,
	}, log)
	if err != nil {
		return nil, err
	}
	encoders, err := encoderFactory(ctx, cfg.Encoder, ff, log)
	if err != nil {
		return nil, err
	}
	return usecase.NewReframer(usecase.ReframerDeps{
		Probe:    ff,
		Decoder:  ff,
		Encoders: encoders,
		Detector: det,
		Encode: types.EncodeOptions{
			CRF:    cfg.Encoder.CRF,
			Preset: cfg.Encoder.Preset,
		},
		Log: log,
	}), nil
}

func encoderFactory(ctx context.Context, c config.EncoderConfig, ff *ffmpeg.Adapter, log zerolog.Logger) (ports.EncoderFactory, error) {
	if c.Backend == config.BackendNative {
		return mjpeg.NewEncoderFactory(log), nil
	}
	sub := ffmpeg.NewEncoderFactory(ff, ffmpeg.EncoderOptions{Codecs: c.Codecs, CloseTimeout: c.CloseTimeout})
	codec, ok := sub.Available(ctx)
	switch {
	case ok:
		log.Debug().Str("codec", codec).Msg("streaming encoder selected")
		return sub, nil
	case c.Backend == config.BackendSubprocess:
		return nil, fmt.Errorf("no usable encoder among %s", strings.Join(c.Codecs, ", "))
	}
	log.Warn().Strs("codecs", c.Codecs).Msg("no ffmpeg encoder usable, writing MJPEG intermediates")
	return mjpeg.NewEncoderFactory(log), nil
}

// threadsPerWorker splits logical CPUs across parallel workers. 0 lets
// ffmpeg decide.
func threadsPerWorker(workers int) int {
	if workers <= 1 {
		return 0
	}
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return 0
	}
	return max(1, n/workers)
}

func mustSubtitlePass(s string) filtergraph.SubtitlePass {
	p, err := filtergraph.ParseSubtitlePass(s)
	if err != nil {
		return filtergraph.SubtitlePassSplit
	}
	return p
}

type clipFile struct {
	Clips []types.Clip `yaml:"clips"`
}

// LoadClips reads a YAML or JSON clip list, either a bare list or an object
// with a clips key.
func LoadClips(path string) ([]types.Clip, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clips: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return nil, fmt.Errorf("parse clips %s: %w", path, err)
	}
	var clips []types.Clip
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		err = node.Decode(&clips)
	} else {
		var f clipFile
		err = node.Decode(&f)
		clips = f.Clips
	}
	if err != nil {
		return nil, fmt.Errorf("parse clips %s: %w", path, err)
	}
	if len(clips) == 0 {
		return nil, fmt.Errorf("clips %s: no clips", path)
	}
	seen := make(map[int]bool, len(clips))
	for _, c := range clips {
		if seen[c.ID] {
			return nil, fmt.Errorf("clips %s: duplicate clip_id %d", path, c.ID)
		}
		seen[c.ID] = true
	}
	return clips, nil
}

func buildVideoName(source, override string) string {
	name := override
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	}
	name = usecase.PathSegment(name)
	if name == "" {
		name = "input"
	}
	return name
}

func writeManifest(path string, m types.Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// ensure adapters implement ports
var (
	_ ports.Prober         = (*ffmpeg.Adapter)(nil)
	_ ports.Transcoder     = (*ffmpeg.Adapter)(nil)
	_ ports.FrameDecoder   = (*ffmpeg.Adapter)(nil)
	_ ports.EncoderFactory = (*ffmpeg.EncoderFactory)(nil)
	_ ports.EncoderFactory = (*mjpeg.EncoderFactory)(nil)
	_ ports.FaceDetector   = (*pigo.Detector)(nil)
	_ ports.Reframer       = (*usecase.Reframer)(nil)
)
