// Package mjpeg writes face-tracked intermediates as MJPEG-in-AVI without an
// encoder subprocess. It is used when no ffmpeg video encoder passes the
// capability probe.
package mjpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/icza/mjpeg"
	"github.com/rs/zerolog"

	"github.com/forPelevin/cliper/internal/logging"
	"github.com/forPelevin/cliper/internal/ports"
	"github.com/forPelevin/cliper/internal/types"
)

type EncoderFactory struct {
	log zerolog.Logger
}

func NewEncoderFactory(log zerolog.Logger) *EncoderFactory {
	return &EncoderFactory{log: logging.WithComponent(log, "encoder").With().Str("backend", "native").Logger()}
}

func (f *EncoderFactory) Container() string { return "avi" }

func (f *EncoderFactory) Open(_ context.Context, path string, opts types.EncodeOptions) (ports.FrameEncoder, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("mjpeg: invalid size %dx%d", opts.Width, opts.Height)
	}
	fps := int32(math.Round(opts.FPS))
	if fps < 1 {
		fps = 1
	}
	w, err := mjpeg.New(path, int32(opts.Width), int32(opts.Height), fps)
	if err != nil {
		return nil, fmt.Errorf("mjpeg: create %s: %w", path, err)
	}
	f.log.Debug().Str("output", path).Int32("fps", fps).Int("quality", JPEGQuality(opts.CRF)).Msg("encoder started")
	return &encoder{
		w:       w,
		width:   opts.Width,
		height:  opts.Height,
		quality: JPEGQuality(opts.CRF),
		log:     f.log,
	}, nil
}

// JPEGQuality maps a CRF (0 best, 51 worst) onto JPEG quality 1..100.
func JPEGQuality(crf int) int {
	if crf <= 0 {
		crf = 23
	}
	if crf > 51 {
		crf = 51
	}
	q := 100 - crf*3/2
	if q < 20 {
		q = 20
	}
	return q
}

type encoder struct {
	w       mjpeg.AviWriter
	width   int
	height  int
	quality int
	buf     bytes.Buffer
	log     zerolog.Logger

	broken bool
	closed bool
}

func (e *encoder) Write(frame *image.RGBA) bool {
	if e.broken || e.closed || frame == nil {
		return false
	}
	b := frame.Bounds()
	if b.Dx() != e.width || b.Dy() != e.height {
		e.log.Warn().Int("got_w", b.Dx()).Int("got_h", b.Dy()).Msg("frame size mismatch, dropping")
		return false
	}
	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, frame, &jpeg.Options{Quality: e.quality}); err != nil {
		e.log.Warn().Err(err).Msg("jpeg encode failed")
		return false
	}
	if err := e.w.AddFrame(e.buf.Bytes()); err != nil {
		e.broken = true
		e.log.Warn().Err(err).Msg("writing frame failed")
		return false
	}
	return true
}

func (e *encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.w.Close(); err != nil {
		return fmt.Errorf("mjpeg: close: %w", err)
	}
	return nil
}
