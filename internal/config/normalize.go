package config

import (
	"os"
	"strings"
)

// normalize expands paths and applies environment fallbacks before
// validation runs.
func (c *Config) normalize() error {
	paths := []*string{
		&c.Paths.DataDir,
		&c.Paths.AudioDir,
		&c.Paths.WorkDir,
		&c.Paths.LogDir,
		&c.Paths.SubscriptionsPath,
		&c.Paths.RunLockPath,
	}
	for _, field := range paths {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Scoring.APIKey = strings.TrimSpace(c.Scoring.APIKey)
	if c.Scoring.APIKey == "" {
		c.Scoring.APIKey = strings.TrimSpace(os.Getenv("PODSIFT_SCORING_API_KEY"))
	}
	c.Scoring.BaseURL = strings.TrimSpace(c.Scoring.BaseURL)
	c.Scoring.Model = strings.TrimSpace(c.Scoring.Model)

	c.Transcription.WhisperBinary = strings.TrimSpace(c.Transcription.WhisperBinary)
	c.Transcription.FFmpegBinary = strings.TrimSpace(c.Transcription.FFmpegBinary)
	c.Transcription.FFprobeBinary = strings.TrimSpace(c.Transcription.FFprobeBinary)

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	return nil
}
