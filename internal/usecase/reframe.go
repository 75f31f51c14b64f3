package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/forPelevin/cliper/internal/domain/reframe"
	"github.com/forPelevin/cliper/internal/logging"
	"github.com/forPelevin/cliper/internal/ports"
	"github.com/forPelevin/cliper/internal/types"
)

// ErrEncoderBroken aborts a reframe once the encoder rejects
// maxConsecutiveWriteFailures frames in a row.
var ErrEncoderBroken = errors.New("encoder stopped accepting frames")

const (
	maxConsecutiveWriteFailures = 5
	defaultFPS                  = 30
)

type ReframerDeps struct {
	Probe    ports.Prober
	Decoder  ports.FrameDecoder
	Encoders ports.EncoderFactory
	Detector ports.FaceDetector
	// Encode carries codec, CRF and preset. Size and FPS are set per job.
	Encode types.EncodeOptions
	Log    zerolog.Logger
}

// Reframer turns a horizontal clip window into a silent vertical video that
// follows the largest face.
type Reframer struct {
	d   ReframerDeps
	log zerolog.Logger
}

func NewReframer(d ReframerDeps) *Reframer {
	return &Reframer{d: d, log: logging.WithComponent(d.Log, "reframer")}
}

func (r *Reframer) Container() string { return r.d.Encoders.Container() }

func (r *Reframer) Reframe(ctx context.Context, job types.ReframeJob) (res types.ReframeResult, err error) {
	res.Output = job.Output
	if job.End <= job.Start {
		return res, fmt.Errorf("reframe: empty window %.3f-%.3f", job.Start, job.End)
	}
	info, err := r.d.Probe.Probe(ctx, job.Source)
	if err != nil {
		return res, fmt.Errorf("reframe: %w", err)
	}
	geo, err := reframe.Scale(info.Width, info.Height, job.TargetWidth, job.TargetHeight)
	if err != nil {
		return res, err
	}
	fps := info.FPS
	if fps <= 0 {
		fps = defaultFPS
	}
	sampleRate := job.SampleRate
	if sampleRate <= 0 {
		sampleRate = reframe.DefaultSampleRate
	}
	log := r.log.With().Str("source", job.Source).Str("output", job.Output).Logger()

	frames, err := r.d.Decoder.OpenFrames(ctx, job.Source, job.Start, job.End-job.Start, geo.ScaledWidth, geo.ScaledHeight)
	if err != nil {
		return res, fmt.Errorf("reframe: open decoder: %w", err)
	}
	defer frames.Close()

	opts := r.d.Encode
	opts.Width, opts.Height, opts.FPS = job.TargetWidth, job.TargetHeight, fps
	enc, err := r.d.Encoders.Open(ctx, job.Output, opts)
	if err != nil {
		return res, fmt.Errorf("reframe: open encoder: %w", err)
	}
	defer func() {
		if cerr := enc.Close(); cerr != nil {
			// The container is usually still playable; the final transcode
			// decides whether it is usable.
			log.Warn().Err(cerr).Msg("encoder did not exit cleanly")
		}
	}()

	tracker := reframe.NewTracker(reframe.Params{
		FrameWidth:  geo.ScaledWidth,
		TargetWidth: job.TargetWidth,
		Margin:      job.Margin,
		Strategy:    job.Strategy,
	}, job.MissThreshold)

	frame := image.NewRGBA(image.Rect(0, 0, geo.ScaledWidth, geo.ScaledHeight))
	var resized *image.RGBA
	consecutive := 0

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := frames.Read(frame); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return res, fmt.Errorf("reframe: frame %d: %w", i, err)
		}
		if i%sampleRate == 0 {
			face := r.d.Detector.DetectLargestFace(frame)
			if face != nil {
				res.Detections++
			}
			if tracker.Observe(face) {
				log.Warn().Int("frame", i).Int("misses", tracker.Misses()).Msg("no face detected, using centered crop")
			}
		}
		x := tracker.Crop()
		out := cropFrame(frame, x, geo.CropY, job.TargetWidth, job.TargetHeight)
		if b := out.Bounds(); b.Dx() != job.TargetWidth || b.Dy() != job.TargetHeight {
			if resized == nil {
				resized = image.NewRGBA(image.Rect(0, 0, job.TargetWidth, job.TargetHeight))
			}
			draw.BiLinear.Scale(resized, resized.Bounds(), out, b, draw.Src, nil)
			out = resized
		}

		res.Frames++
		if enc.Write(out) {
			consecutive = 0
			continue
		}
		res.WriteFailures++
		consecutive++
		log.Warn().Int("frame", i).Int("consecutive", consecutive).Msg("frame write failed")
		if consecutive >= maxConsecutiveWriteFailures {
			return res, fmt.Errorf("reframe: frame %d: %w", i, ErrEncoderBroken)
		}
	}

	res.FellBack = tracker.FellBack()
	if res.Frames == 0 {
		return res, fmt.Errorf("reframe %s: %w", job.Source, ports.ErrNoFrames)
	}
	log.Debug().Int("frames", res.Frames).Int("detections", res.Detections).Bool("fell_back", res.FellBack).Msg("reframe done")
	return res, nil
}

// cropFrame cuts the target window out of frame. The rectangle is clipped to
// the frame bounds, so a short result signals a geometry mismatch.
func cropFrame(frame *image.RGBA, x, y, w, h int) *image.RGBA {
	return frame.SubImage(image.Rect(x, y, x+w, y+h)).(*image.RGBA)
}
