package config

const (
	defaultDataDir           = "~/.local/share/podsift"
	defaultAudioDir          = "~/.local/share/podsift/audio"
	defaultWorkDir           = "~/.local/share/podsift/work"
	defaultLogDir            = "~/.local/share/podsift/logs"
	defaultSubscriptionsPath = "~/.config/podsift/subscriptions.yaml"
	defaultRunLockPath       = "~/.local/share/podsift/run.lock"

	defaultChunkSeconds    = 180
	defaultMaxChunkRetries = 3
	defaultWhisperBinary   = "whisper-cli"
	defaultWhisperModel    = "base.en"
	defaultFFmpegBinary    = "ffmpeg"
	defaultFFprobeBinary   = "ffprobe"

	defaultScoringBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultScoringModel          = "google/gemini-3-flash-preview"
	defaultScoringTimeoutSeconds = 60
	defaultScoringMaxAttempts    = 4
	defaultScoringThreshold      = 0.65
	defaultScoringWorkerCount    = 1

	defaultDigestLookbackDays = 1
	defaultDigestMaxEpisodes  = 5

	defaultFeedFailureCeiling      = 5
	defaultFeedFetchTimeoutSeconds = 30

	defaultErrorRetryInterval = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:           defaultDataDir,
			AudioDir:          defaultAudioDir,
			WorkDir:           defaultWorkDir,
			LogDir:            defaultLogDir,
			SubscriptionsPath: defaultSubscriptionsPath,
			RunLockPath:       defaultRunLockPath,
		},
		Transcription: Transcription{
			ChunkSeconds:    defaultChunkSeconds,
			MaxChunkRetries: defaultMaxChunkRetries,
			TimeoutSeconds:  600,
			WhisperBinary:   defaultWhisperBinary,
			WhisperModel:    defaultWhisperModel,
			FFmpegBinary:    defaultFFmpegBinary,
			FFprobeBinary:   defaultFFprobeBinary,
		},
		Scoring: Scoring{
			BaseURL:          defaultScoringBaseURL,
			Model:            defaultScoringModel,
			TimeoutSeconds:   defaultScoringTimeoutSeconds,
			MaxAttempts:      defaultScoringMaxAttempts,
			DefaultThreshold: defaultScoringThreshold,
			WorkerCount:      defaultScoringWorkerCount,
		},
		Digest: Digest{
			LookbackDays: defaultDigestLookbackDays,
			MaxEpisodes:  defaultDigestMaxEpisodes,
		},
		Feeds: Feeds{
			MaxConsecutiveFailures: defaultFeedFailureCeiling,
			FetchTimeoutSeconds:    defaultFeedFetchTimeoutSeconds,
		},
		Workflow: Workflow{
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
