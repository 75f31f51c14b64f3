package types

import (
	"fmt"
	"time"
)

type Transcript struct {
	Segments []Segment `json:"segments"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Clip is one export unit produced by upstream clip detection.
type Clip struct {
	ID           int     `json:"clip_id" yaml:"clip_id"`
	Start        float64 `json:"start_time" yaml:"start_time"`
	End          float64 `json:"end_time" yaml:"end_time"`
	TextPreview  string  `json:"text_preview,omitempty" yaml:"text_preview,omitempty"`
	Style        string  `json:"style,omitempty" yaml:"style,omitempty"`
	SubtitlePath string  `json:"subtitle_path,omitempty" yaml:"subtitle_path,omitempty"`
}

func (c Clip) Duration() float64 { return c.End - c.Start }

func (c Clip) StartDur() time.Duration { return seconds(c.Start) }

func (c Clip) EndDur() time.Duration { return seconds(c.End) }

func (c Clip) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("clip id must be > 0, got %d", c.ID)
	}
	if c.Start < 0 {
		return fmt.Errorf("clip %d: start must be >= 0", c.ID)
	}
	if c.End <= c.Start {
		return fmt.Errorf("clip %d: end (%.3f) must be > start (%.3f)", c.ID, c.End, c.Start)
	}
	return nil
}

// FaceBox is a face bounding box in pixel space of the frame it was detected on.
type FaceBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (f FaceBox) CenterX() int { return f.X + f.Width/2 }
func (f FaceBox) CenterY() int { return f.Y + f.Height/2 }
func (f FaceBox) Area() int    { return f.Width * f.Height }

type VideoInfo struct {
	Path            string
	Width           int
	Height          int
	FPS             float64
	Duration        time.Duration
	HasAudio        bool
	SubtitleStreams int
	VideoCodec      string
	AudioCodec      string
}

type Manifest struct {
	Input string         `json:"input"`
	Clips []ManifestClip `json:"clips"`
}

type ManifestClip struct {
	ID          int     `json:"id"`
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
	File        string  `json:"file"`
	Subtitles   string  `json:"subtitles,omitempty"`
	Style       string  `json:"style,omitempty"`
	FaceTracked bool    `json:"face_tracked"`
	Degraded    bool    `json:"degraded,omitempty"`
	Text        string  `json:"text,omitempty"`
}

func seconds(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
