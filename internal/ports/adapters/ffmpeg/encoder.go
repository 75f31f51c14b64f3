package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/cliper/internal/logging"
	"github.com/forPelevin/cliper/internal/ports"
	"github.com/forPelevin/cliper/internal/types"
)

const DefaultCloseTimeout = 30 * time.Second

// DefaultCodecs is tried in order until one passes the capability probe.
var DefaultCodecs = []string{"libx264", "h264_videotoolbox", "mpeg4"}

// ExitError reports an encoder process that exited non-zero or had to be
// killed. The written file may still be usable.
type ExitError struct {
	Codec  string
	Killed bool
	Err    error
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Killed {
		return fmt.Sprintf("encoder %s killed after close timeout: %v", e.Codec, e.Err)
	}
	if e.Stderr == "" {
		return fmt.Sprintf("encoder %s: %v", e.Codec, e.Err)
	}
	return fmt.Sprintf("encoder %s: %v\n%s", e.Codec, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }

// EncoderFactory opens streaming ffmpeg encoders fed with rgba rawvideo on
// stdin.
type EncoderFactory struct {
	a            *Adapter
	codecs       []string
	closeTimeout time.Duration
	log          zerolog.Logger

	mu       sync.Mutex
	listed   map[string]bool
	probed   map[string]bool
	listErr  error
	listDone bool
}

type EncoderOptions struct {
	Codecs       []string
	CloseTimeout time.Duration
}

func NewEncoderFactory(a *Adapter, opts EncoderOptions) *EncoderFactory {
	codecs := opts.Codecs
	if len(codecs) == 0 {
		codecs = DefaultCodecs
	}
	timeout := opts.CloseTimeout
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}
	return &EncoderFactory{
		a:            a,
		codecs:       append([]string(nil), codecs...),
		closeTimeout: timeout,
		log:          logging.WithComponent(a.base, "encoder"),
		probed:       make(map[string]bool),
	}
}

func (f *EncoderFactory) Container() string { return "mp4" }

// Available reports the first codec in the chain that this ffmpeg build can
// actually encode with. ok is false when none can.
func (f *EncoderFactory) Available(ctx context.Context) (codec string, ok bool) {
	for _, c := range f.codecs {
		if f.usable(ctx, c) {
			return c, true
		}
	}
	return "", false
}

// Open starts an encoder. opts.Codec, when set, is tried first; the rest of
// the chain follows.
func (f *EncoderFactory) Open(ctx context.Context, path string, opts types.EncodeOptions) (ports.FrameEncoder, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("encoder: invalid size %dx%d", opts.Width, opts.Height)
	}
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("encoder: invalid fps %v", opts.FPS)
	}
	chain := f.codecs
	if opts.Codec != "" {
		chain = append([]string{opts.Codec}, without(f.codecs, opts.Codec)...)
	}
	var tried []string
	for _, c := range chain {
		if !f.usable(ctx, c) {
			tried = append(tried, c)
			continue
		}
		enc, err := f.start(ctx, path, c, opts)
		if err != nil {
			f.log.Warn().Err(err).Str("codec", c).Msg("encoder start failed, trying next codec")
			tried = append(tried, c)
			continue
		}
		if len(tried) > 0 {
			f.log.Info().Str("codec", c).Strs("skipped", tried).Msg("using fallback codec")
		}
		return enc, nil
	}
	return nil, fmt.Errorf("encoder: no usable codec among %s", strings.Join(chain, ", "))
}

func (f *EncoderFactory) usable(ctx context.Context, codec string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.listDone {
		f.listed, f.listErr = f.a.Encoders(ctx)
		f.listDone = true
		if f.listErr != nil {
			f.log.Warn().Err(f.listErr).Msg("listing encoders failed, probing directly")
		}
	}
	if f.listErr == nil && !f.listed[codec] {
		return false
	}
	if ok, seen := f.probed[codec]; seen {
		return ok
	}
	err := f.probe(ctx, codec)
	if ctx.Err() != nil {
		return false
	}
	f.probed[codec] = err == nil
	if err != nil {
		f.log.Debug().Err(err).Str("codec", codec).Msg("codec probe failed")
	}
	return err == nil
}

// probe encodes one black frame to the null muxer. Hardware encoders are
// listed even on hosts without the device, so the listing alone is not
// enough.
func (f *EncoderFactory) probe(ctx context.Context, codec string) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=black:s=64x64:d=0.04",
		"-frames:v", "1",
		"-c:v", codec,
		"-pix_fmt", "yuv420p",
		"-f", "null", "-",
	}
	b, err := exec.CommandContext(ctx, f.a.ffmpeg, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("probe %s: %w\n%s", codec, err, tail(b))
	}
	return nil
}

func (f *EncoderFactory) start(ctx context.Context, path, codec string, opts types.EncodeOptions) (*streamEncoder, error) {
	args := encodeArgs(codec, path, opts)
	cmd := exec.CommandContext(ctx, f.a.ffmpeg, args...)
	stderr := newTailBuffer(maxStderrBytes)
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	f.log.Debug().Str("codec", codec).Str("output", path).Strs("args", args).Msg("encoder started")
	return &streamEncoder{
		cmd:     cmd,
		stdin:   stdin,
		w:       bufio.NewWriterSize(stdin, opts.Width*opts.Height*4),
		stderr:  stderr,
		codec:   codec,
		width:   opts.Width,
		height:  opts.Height,
		timeout: f.closeTimeout,
		log:     f.log,
	}, nil
}

func encodeArgs(codec, path string, opts types.EncodeOptions) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", strconv.FormatFloat(opts.FPS, 'f', -1, 64),
		"-i", "-",
		"-an",
		"-c:v", codec,
	}
	args = append(args, qualityArgs(codec, opts.CRF, opts.Preset)...)
	return append(args, "-pix_fmt", "yuv420p", path)
}

// qualityArgs maps a CRF-style quality to the knob each codec family
// understands.
func qualityArgs(codec string, crf int, preset string) []string {
	if crf <= 0 {
		crf = 23
	}
	switch {
	case strings.HasSuffix(codec, "_videotoolbox"):
		kbps := (51 - crf) * 250
		if kbps < 500 {
			kbps = 500
		}
		return []string{"-b:v", fmt.Sprintf("%dk", kbps)}
	case strings.HasSuffix(codec, "_nvenc"):
		return []string{"-cq", strconv.Itoa(crf)}
	case codec == "mpeg4" || codec == "mjpeg":
		q := 2 + crf*29/51
		return []string{"-q:v", strconv.Itoa(q)}
	case codec == "libx264" || codec == "libx265":
		if preset == "" {
			preset = "fast"
		}
		return []string{"-preset", preset, "-crf", strconv.Itoa(crf)}
	}
	return nil
}

// Encoders lists the video encoders compiled into ffmpeg.
func (a *Adapter) Encoders(ctx context.Context) (map[string]bool, error) {
	b, err := exec.CommandContext(ctx, a.ffmpeg, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders: %w\n%s", err, tail(b))
	}
	return parseEncoders(string(b)), nil
}

// parseEncoders reads lines such as " V....D libx264   libx264 H.264 ...".
// Only video encoders are kept.
func parseEncoders(out string) map[string]bool {
	res := make(map[string]bool)
	body := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "------") {
			body = true
			continue
		}
		if !body {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 || fields[0][0] != 'V' {
			continue
		}
		res[fields[1]] = true
	}
	return res
}

type streamEncoder struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	w       *bufio.Writer
	stderr  *tailBuffer
	codec   string
	width   int
	height  int
	timeout time.Duration
	log     zerolog.Logger

	broken bool
	closed bool
}

func (e *streamEncoder) Write(frame *image.RGBA) bool {
	if e.broken || e.closed || frame == nil {
		return false
	}
	b := frame.Bounds()
	if b.Dx() != e.width || b.Dy() != e.height {
		e.log.Warn().Int("got_w", b.Dx()).Int("got_h", b.Dy()).Int("want_w", e.width).Int("want_h", e.height).
			Msg("frame size mismatch, dropping")
		return false
	}
	row := e.width * 4
	for y := 0; y < e.height; y++ {
		off := frame.PixOffset(b.Min.X, b.Min.Y+y)
		if _, err := e.w.Write(frame.Pix[off : off+row]); err != nil {
			e.fail(err)
			return false
		}
	}
	if err := e.w.Flush(); err != nil {
		e.fail(err)
		return false
	}
	return true
}

func (e *streamEncoder) fail(err error) {
	e.broken = true
	e.log.Warn().Err(err).Str("codec", e.codec).Str("stderr", e.stderr.String()).Msg("encoder pipe broken")
}

// Close flushes, closes stdin and waits for ffmpeg to finish the file. The
// process is killed if it does not exit within the close timeout.
func (e *streamEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if !e.broken {
		_ = e.w.Flush()
	}
	_ = e.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return &ExitError{Codec: e.codec, Err: err, Stderr: e.stderr.String()}
		}
		return nil
	case <-time.After(e.timeout):
		_ = e.cmd.Process.Kill()
		err := <-done
		if err == nil {
			err = errors.New("timed out")
		}
		return &ExitError{Codec: e.codec, Killed: true, Err: err, Stderr: e.stderr.String()}
	}
}

func without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
