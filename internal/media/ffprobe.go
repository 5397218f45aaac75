package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// probeResult is the subset of ffprobe JSON output the pipeline needs.
type probeResult struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
}

// Prober reports the playable duration of an audio file.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFprobe inspects audio files by executing the ffprobe binary.
type FFprobe struct {
	Binary string
}

// Duration returns the container duration. Undecodable input or a file with
// no audio stream returns an error; zero duration is reported as an error so
// callers fail the episode immediately.
func (p FFprobe) Duration(ctx context.Context, path string) (time.Duration, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(output)))
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}

	hasAudio := false
	for _, stream := range result.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			hasAudio = true
			break
		}
	}
	if !hasAudio {
		return 0, fmt.Errorf("ffprobe %s: no audio stream", path)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: unreadable duration %q", path, result.Format.Duration)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("ffprobe %s: zero duration", path)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
