package ports

import (
	"context"
	"errors"
	"image"

	"github.com/forPelevin/cliper/internal/types"
)

// ErrNoFrames is returned when a decode window yields no frames.
var ErrNoFrames = errors.New("no frames decoded")

type Prober interface {
	Probe(ctx context.Context, path string) (types.VideoInfo, error)
}

// Transcoder runs one external transcode invocation.
type Transcoder interface {
	Transcode(ctx context.Context, stage string, args []string) error
}

// FrameReader yields decoded frames in presentation order. Read fills dst and
// returns io.EOF after the last frame.
type FrameReader interface {
	Read(dst *image.RGBA) error
	Close() error
}

// FrameDecoder opens the [start, start+duration) window of a video scaled to
// width x height.
type FrameDecoder interface {
	OpenFrames(ctx context.Context, path string, start, duration float64, width, height int) (FrameReader, error)
}

// FrameEncoder consumes frames in write order. Write reports false instead
// of failing once the encoder can no longer accept frames.
type FrameEncoder interface {
	Write(frame *image.RGBA) bool
	Close() error
}

type EncoderFactory interface {
	Open(ctx context.Context, path string, opts types.EncodeOptions) (FrameEncoder, error)
	// Container is the file extension written by this backend.
	Container() string
}

// FaceDetector returns the largest face above its confidence threshold, or
// nil when the frame has none.
type FaceDetector interface {
	DetectLargestFace(frame *image.RGBA) *types.FaceBox
}

// Reframer writes a silent face-tracked rendition of a clip window.
type Reframer interface {
	Reframe(ctx context.Context, job types.ReframeJob) (types.ReframeResult, error)
	// Container is the file extension of the written intermediate.
	Container() string
}
