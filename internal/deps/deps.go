// Package deps reports the availability of the external tools the pipeline
// shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"podsift/internal/config"
)

// Requirement defines an external tool the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of one requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements derives the tool list from configuration. The scoring API
// needs no local binary, so only the transcription tools appear here.
func Requirements(cfg *config.Config) []Requirement {
	whisper := cfg.Transcription.WhisperBinary
	if strings.TrimSpace(whisper) == "" {
		whisper = "whisper-cli"
	}
	return []Requirement{
		{
			Name:        "ffprobe",
			Command:     cfg.Transcription.FFprobeBinary,
			Description: "audio duration probing",
		},
		{
			Name:        "ffmpeg",
			Command:     cfg.Transcription.FFmpegBinary,
			Description: "audio chunk segmentation",
		},
		{
			Name:        "whisper",
			Command:     whisper,
			Description: "speech recognition backend",
		},
	}
}

// CheckBinaries evaluates the requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of unavailable non-optional tools.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status.Name)
		}
	}
	return missing
}
