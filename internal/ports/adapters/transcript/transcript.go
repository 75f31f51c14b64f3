// Package transcript loads word-timed transcripts written by whisper-style
// transcribers.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/forPelevin/cliper/internal/types"
)

type rawTranscript struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Start *float64 `json:"start"`
			End   *float64 `json:"end"`
			Word  string   `json:"word"`
		} `json:"words"`
	} `json:"segments"`
}

func Load(path string) (types.Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read transcript: %w", err)
	}
	tr, err := Parse(b)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("transcript %s: %w", path, err)
	}
	return tr, nil
}

// Parse trims text and drops words the aligner left without timings.
func Parse(b []byte) (types.Transcript, error) {
	var raw rawTranscript
	if err := json.Unmarshal(b, &raw); err != nil {
		return types.Transcript{}, fmt.Errorf("parse: %w", err)
	}
	tr := types.Transcript{Segments: make([]types.Segment, 0, len(raw.Segments))}
	for _, s := range raw.Segments {
		seg := types.Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)}
		for _, w := range s.Words {
			if w.Start == nil || w.End == nil {
				continue
			}
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			seg.Words = append(seg.Words, types.Word{Start: *w.Start, End: *w.End, Word: text})
		}
		tr.Segments = append(tr.Segments, seg)
	}
	return tr, nil
}
