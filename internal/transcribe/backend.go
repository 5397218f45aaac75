// Package transcribe turns an episode's audio into transcript text one
// bounded-duration chunk at a time.
package transcribe

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Result is one chunk's transcription output.
type Result struct {
	Text       string
	Confidence float64
}

// Backend is the speech-recognition collaborator contract.
type Backend interface {
	Transcribe(ctx context.Context, chunkPath string) (Result, error)
}

// Error is a transcription failure for a specific chunk.
type Error struct {
	Chunk int
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcribe chunk %d: %v", e.Chunk, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WhisperCLI transcribes chunks by executing a whisper.cpp style binary.
// Chunks arrive as mono 16 kHz WAV files.
type WhisperCLI struct {
	Binary string
	Model  string
}

// Transcribe runs the binary against one chunk and returns its stdout as
// text. The CLI reports no usable confidence, so Confidence stays zero.
func (w WhisperCLI) Transcribe(ctx context.Context, chunkPath string) (Result, error) {
	binary := strings.TrimSpace(w.Binary)
	if binary == "" {
		binary = "whisper-cli"
	}

	args := []string{"-f", chunkPath, "-np", "-nt"}
	if model := strings.TrimSpace(w.Model); model != "" {
		args = append([]string{"-m", model}, args...)
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return Result{}, fmt.Errorf("whisper %s: %s", chunkPath, detail)
	}

	return Result{Text: strings.TrimSpace(string(output))}, nil
}
