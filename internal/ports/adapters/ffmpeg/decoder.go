package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/forPelevin/cliper/internal/ports"
)

// OpenFrames starts an ffmpeg process that emits the window as rgba rawvideo
// scaled to width x height on stdout.
func (a *Adapter) OpenFrames(ctx context.Context, path string, start, duration float64, width, height int) (ports.FrameReader, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("decode %s: invalid size %dx%d", path, width, height)
	}
	ctx, cancel := context.WithCancel(ctx)
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	if a.threads > 0 {
		args = append(args, "-threads", fmt.Sprint(a.threads))
	}
	args = append(args,
		"-ss", fmtSeconds(start),
		"-t", fmtSeconds(duration),
		"-i", path,
		"-map", "0:v:0",
		"-an", "-sn",
		"-vf", fmt.Sprintf("scale=%d:%d:flags=bicubic", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	stderr := newTailBuffer(maxStderrBytes)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("decode %s: stdout pipe: %w", path, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("decode %s: start ffmpeg: %w", path, err)
	}
	a.log.Debug().Str("input", path).Int("width", width).Int("height", height).Msg("frame decoder started")
	return &frameReader{
		cmd:    cmd,
		cancel: cancel,
		r:      bufio.NewReaderSize(stdout, 1<<20),
		stderr: stderr,
		width:  width,
		height: height,
		path:   path,
	}, nil
}

type frameReader struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	r      *bufio.Reader
	stderr *tailBuffer
	width  int
	height int
	path   string

	eof    bool
	closed bool
}

func (f *frameReader) Read(dst *image.RGBA) error {
	if f.eof {
		return io.EOF
	}
	b := dst.Bounds()
	if b.Dx() != f.width || b.Dy() != f.height || dst.Stride != f.width*4 {
		return fmt.Errorf("decode %s: destination %dx%d does not match %dx%d", f.path, b.Dx(), b.Dy(), f.width, f.height)
	}
	_, err := io.ReadFull(f.r, dst.Pix[:f.width*f.height*4])
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// A trailing partial frame is dropped.
		f.eof = true
		if werr := f.wait(); werr != nil {
			return werr
		}
		return io.EOF
	default:
		return fmt.Errorf("decode %s: read frame: %w", f.path, err)
	}
}

func (f *frameReader) wait() error {
	if f.closed {
		return nil
	}
	f.closed = true
	defer f.cancel()
	if err := f.cmd.Wait(); err != nil {
		return fmt.Errorf("decode %s: %w\n%s", f.path, err, f.stderr)
	}
	return nil
}

// Close stops the decoder. Stopping early is not an error.
func (f *frameReader) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.cancel()
	_ = f.cmd.Wait()
	return nil
}
