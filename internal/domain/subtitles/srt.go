package subtitles

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/cliper/internal/types"
)

const (
	maxLineChars    = 42
	maxLineDuration = 5 * time.Second
)

// ErrEmpty is returned when no transcript text falls inside the clip window.
var ErrEmpty = errors.New("no subtitle text in clip window")

type cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type word struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// RenderClipSRT renders the transcript slice [start, end) as SRT with
// clip-local timestamps.
func RenderClipSRT(tr types.Transcript, start, end time.Duration) (string, error) {
	var cues []cue
	for _, s := range tr.Segments {
		ss, se := dur(s.Start), dur(s.End)
		if se <= start || ss >= end {
			continue
		}
		words := collectWords(s, start, end)
		if len(words) > 0 {
			cues = append(cues, packWords(words)...)
			continue
		}
		if len(s.Words) > 0 {
			// Word timings exist but none lie fully inside the window.
			continue
		}
		cues = append(cues, splitSegment(s, start, end)...)
	}
	if len(cues) == 0 {
		return "", ErrEmpty
	}
	return renderSRT(cues), nil
}

func collectWords(s types.Segment, start, end time.Duration) []word {
	var out []word
	for _, w := range s.Words {
		ws, we := dur(w.Start), dur(w.End)
		if ws < start || we > end {
			continue
		}
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		out = append(out, word{Start: ws - start, End: we - start, Text: text})
	}
	return out
}

// packWords groups words into lines bounded by character count and duration.
func packWords(words []word) []cue {
	var out []cue
	var cur []word
	curLen := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		parts := make([]string, len(cur))
		for i, w := range cur {
			parts[i] = w.Text
		}
		out = append(out, cue{Start: cur[0].Start, End: cur[len(cur)-1].End, Text: strings.Join(parts, " ")})
		cur = nil
		curLen = 0
	}
	for _, w := range words {
		wl := len([]rune(w.Text)) + 1
		if len(cur) > 0 && (curLen+wl > maxLineChars || w.End-cur[0].Start > maxLineDuration) {
			flush()
		}
		cur = append(cur, w)
		curLen += wl
	}
	flush()
	return out
}

// splitSegment spreads segment text evenly over its clipped time range.
func splitSegment(s types.Segment, start, end time.Duration) []cue {
	text := strings.TrimSpace(s.Text)
	if text == "" {
		return nil
	}
	ss, se := dur(s.Start), dur(s.End)
	if ss < start {
		ss = start
	}
	if se > end {
		se = end
	}
	lines := splitLines(text, maxLineChars)
	step := (se - ss) / time.Duration(len(lines))
	out := make([]cue, 0, len(lines))
	for i, ln := range lines {
		cs := ss + time.Duration(i)*step
		out = append(out, cue{Start: cs - start, End: cs + step - start, Text: ln})
	}
	return out
}

func splitLines(text string, limit int) []string {
	var lines []string
	var cur []string
	n := 0
	for _, f := range strings.Fields(text) {
		l := len([]rune(f))
		if len(cur) > 0 && n+1+l > limit {
			lines = append(lines, strings.Join(cur, " "))
			cur, n = nil, 0
		}
		if len(cur) > 0 {
			n++
		}
		cur = append(cur, f)
		n += l
	}
	if len(cur) > 0 {
		lines = append(lines, strings.Join(cur, " "))
	}
	return lines
}

func renderSRT(cues []cue) string {
	var b strings.Builder
	for i, c := range cues {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1, srtTime(c.Start), srtTime(c.End), c.Text)
	}
	return b.String()
}

func srtTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	ms := int(d / time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
