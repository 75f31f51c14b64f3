//go:build integration

package itest

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

type probeResult struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p probeResult) count(codecType string) int {
	n := 0
	for _, s := range p.Streams {
		if s.CodecType == codecType {
			n++
		}
	}
	return n
}

func (p probeResult) durationSeconds() (float64, error) {
	sec, err := strconv.ParseFloat(p.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", p.Format.Duration, err)
	}
	return sec, nil
}

func probe(path string) (probeResult, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height:format=duration",
		"-of", "json",
		path,
	)
	b, err := cmd.Output()
	if err != nil {
		return probeResult{}, fmt.Errorf("ffprobe: %w", err)
	}
	var res probeResult
	if err := json.Unmarshal(b, &res); err != nil {
		return probeResult{}, fmt.Errorf("parse ffprobe: %w", err)
	}
	return res, nil
}
