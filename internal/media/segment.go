package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Segmenter splits an audio file into bounded-duration chunk files.
type Segmenter interface {
	Segment(ctx context.Context, sourcePath, outDir string, chunkSeconds int) ([]string, error)
}

// FFmpegSegmenter splits audio by executing ffmpeg's segment muxer. The
// source file is never modified; chunks are written to outDir as
// chunk_000.wav, chunk_001.wav, ...
type FFmpegSegmenter struct {
	Binary string
}

// Segment writes sequential fixed-duration chunks (the last may be shorter)
// and returns their paths in playback order.
func (s FFmpegSegmenter) Segment(ctx context.Context, sourcePath, outDir string, chunkSeconds int) ([]string, error) {
	binary := strings.TrimSpace(s.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if chunkSeconds <= 0 {
		return nil, errors.New("segment: chunk duration must be positive")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("segment: create chunk dir: %w", err)
	}

	pattern := filepath.Join(outDir, "chunk_%03d.wav")
	cmd := exec.CommandContext(ctx, binary,
		"-hide_banner", "-loglevel", "error",
		"-i", sourcePath,
		"-vn", "-ac", "1", "-ar", "16000",
		"-f", "segment",
		"-segment_time", strconv.Itoa(chunkSeconds),
		"-reset_timestamps", "1",
		"-y",
		pattern,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w: %s", sourcePath, err, strings.TrimSpace(string(output)))
	}

	matches, err := filepath.Glob(filepath.Join(outDir, "chunk_*.wav"))
	if err != nil {
		return nil, fmt.Errorf("segment: list chunks: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("segment %s: ffmpeg produced no chunks", sourcePath)
	}
	sort.Strings(matches)
	return matches, nil
}
