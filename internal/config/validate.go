package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	if err := c.validateDigest(); err != nil {
		return err
	}
	if err := c.validateFeeds(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.AudioDir == "" {
		return errors.New("paths.audio_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.SubscriptionsPath == "" {
		return errors.New("paths.subscriptions_path must be set")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.ChunkSeconds <= 0 {
		return errors.New("transcription.chunk_seconds must be positive")
	}
	if c.Transcription.MaxChunkRetries < 1 {
		return errors.New("transcription.max_chunk_retries must be at least 1")
	}
	if c.Transcription.FFmpegBinary == "" || c.Transcription.FFprobeBinary == "" {
		return errors.New("transcription.ffmpeg_binary and transcription.ffprobe_binary must be set")
	}
	return nil
}

func (c *Config) validateScoring() error {
	if c.Scoring.DefaultThreshold < 0 || c.Scoring.DefaultThreshold > 1 {
		return errors.New("scoring.default_threshold must be between 0 and 1")
	}
	if c.Scoring.MaxAttempts < 1 {
		return errors.New("scoring.max_attempts must be at least 1")
	}
	if c.Scoring.WorkerCount < 1 {
		return errors.New("scoring.worker_count must be at least 1")
	}
	return nil
}

func (c *Config) validateDigest() error {
	if c.Digest.LookbackDays < 1 {
		return errors.New("digest.lookback_days must be at least 1")
	}
	if c.Digest.MaxEpisodes < 1 {
		return errors.New("digest.max_episodes must be at least 1")
	}
	return nil
}

func (c *Config) validateFeeds() error {
	if c.Feeds.MaxConsecutiveFailures < 1 {
		return errors.New("feeds.max_consecutive_failures must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
