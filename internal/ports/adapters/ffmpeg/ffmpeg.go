package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/forPelevin/cliper/internal/logging"
)

// maxStderrBytes bounds the stderr tail kept for error reports.
const maxStderrBytes = 8 << 10

type Adapter struct {
	ffmpeg  string
	ffprobe string
	threads int
	log     zerolog.Logger
	// base is the caller's logger, before the ffmpeg component tag.
	base zerolog.Logger
}

type Options struct {
	FFmpegPath  string
	FFprobePath string
	// Threads is passed as -threads to every transcode when > 0.
	Threads int
}

// New resolves both binaries and checks that ffmpeg runs, so a missing
// toolchain fails before any clip is processed.
func New(ctx context.Context, log zerolog.Logger, opts Options) (*Adapter, error) {
	ff, err := exec.LookPath(orDefault(opts.FFmpegPath, "ffmpeg"))
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	fp, err := exec.LookPath(orDefault(opts.FFprobePath, "ffprobe"))
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	b, err := exec.CommandContext(ctx, ff, "-hide_banner", "-version").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -version: %w\n%s", err, tail(b))
	}
	a := newAdapter(ff, fp, opts.Threads, log)
	a.log.Debug().Str("ffmpeg", ff).Str("version", firstLine(b)).Msg("toolchain ready")
	return a, nil
}

func newAdapter(ffmpeg, ffprobe string, threads int, log zerolog.Logger) *Adapter {
	return &Adapter{
		ffmpeg:  ffmpeg,
		ffprobe: ffprobe,
		threads: threads,
		log:     logging.WithComponent(log, "ffmpeg"),
		base:    log,
	}
}

func (a *Adapter) FFmpegPath() string { return a.ffmpeg }

// Transcode runs ffmpeg with args after the common flags. stage names the
// invocation in errors.
func (a *Adapter) Transcode(ctx context.Context, stage string, args []string) error {
	full := a.baseArgs()
	full = append(full, args...)
	a.log.Debug().Str("stage", stage).Strs("args", full).Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, a.ffmpeg, full...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg %s: %w", stage, ctx.Err())
		}
		return fmt.Errorf("ffmpeg %s: %w\n%s", stage, err, tail(b))
	}
	return nil
}

func (a *Adapter) baseArgs() []string {
	args := []string{"-y", "-hide_banner", "-nostdin", "-loglevel", "error"}
	if a.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(a.threads))
	}
	return args
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func firstLine(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func tail(b []byte) string {
	if len(b) > maxStderrBytes {
		b = b[len(b)-maxStderrBytes:]
	}
	return strings.TrimSpace(string(b))
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer { return &tailBuffer{max: max} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
