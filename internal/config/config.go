package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file location configuration.
type Paths struct {
	DataDir           string `toml:"data_dir"`
	AudioDir          string `toml:"audio_dir"`
	WorkDir           string `toml:"work_dir"`
	LogDir            string `toml:"log_dir"`
	SubscriptionsPath string `toml:"subscriptions_path"`
	RunLockPath       string `toml:"run_lock_path"`
}

// Transcription contains chunked transcription settings.
type Transcription struct {
	ChunkSeconds    int    `toml:"chunk_seconds"`
	MaxChunkRetries int    `toml:"max_chunk_retries"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	WhisperBinary   string `toml:"whisper_binary"`
	WhisperModel    string `toml:"whisper_model"`
	FFmpegBinary    string `toml:"ffmpeg_binary"`
	FFprobeBinary   string `toml:"ffprobe_binary"`
}

// Scoring contains topic relevance scoring settings.
type Scoring struct {
	APIKey           string  `toml:"api_key"`
	BaseURL          string  `toml:"base_url"`
	Model            string  `toml:"model"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
	MaxAttempts      int     `toml:"max_attempts"`
	DefaultThreshold float64 `toml:"default_threshold"`
	WorkerCount      int     `toml:"worker_count"`
}

// Digest contains digest assembly settings.
type Digest struct {
	LookbackDays int `toml:"lookback_days"`
	MaxEpisodes  int `toml:"max_episodes"`
}

// Feeds contains feed discovery settings.
type Feeds struct {
	MaxConsecutiveFailures int `toml:"max_consecutive_failures"`
	FetchTimeoutSeconds    int `toml:"fetch_timeout_seconds"`
}

// Workflow contains run timing settings.
type Workflow struct {
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for podsift.
//
// Configuration sections by subsystem:
//   - Paths: data, audio, and scratch directories plus the subscriptions file
//   - Transcription: chunk sizing, retry ceiling, and tool locations
//   - Scoring: LLM connection settings, attempts, and threshold default
//   - Digest: selection window and per-digest episode cap
//   - Feeds: discovery failure ceiling
//   - Workflow: run timing intervals
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Scoring       Scoring       `toml:"scoring"`
	Digest        Digest        `toml:"digest"`
	Feeds         Feeds         `toml:"feeds"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/podsift/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("podsift.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for a run.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.AudioDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the SQLite catalog database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "podsift.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
