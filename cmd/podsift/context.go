package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"podsift/internal/catalog"
	"podsift/internal/config"
	"podsift/internal/digest"
	"podsift/internal/discovery"
	"podsift/internal/logging"
	"podsift/internal/media"
	"podsift/internal/pipeline"
	"podsift/internal/scoring"
	"podsift/internal/subscriptions"
	"podsift/internal/transcribe"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
}

// withStore opens the catalog store for one command invocation.
func (c *commandContext) withStore(fn func(*config.Config, *catalog.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// loadSubscriptions reads the subscriptions file referenced by the config.
func (c *commandContext) loadSubscriptions() (*subscriptions.File, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	subs, err := subscriptions.Load(cfg.Paths.SubscriptionsPath, cfg.Scoring.DefaultThreshold)
	if errors.Is(err, subscriptions.ErrNoSubscriptions) {
		return nil, fmt.Errorf("%w at %s; create it with 'podsift config init'", err, cfg.Paths.SubscriptionsPath)
	}
	return subs, err
}

// buildRunner wires the full pipeline dependency graph.
func (c *commandContext) buildRunner(cfg *config.Config, store *catalog.Store, logger *slog.Logger) (*pipeline.Runner, error) {
	subs, err := c.loadSubscriptions()
	if err != nil {
		return nil, err
	}
	topics := subs.ActiveTopics()

	transcriber := transcribe.New(
		store,
		transcribe.WhisperCLI{
			Binary: cfg.Transcription.WhisperBinary,
			Model:  cfg.Transcription.WhisperModel,
		},
		media.FFprobe{Binary: cfg.Transcription.FFprobeBinary},
		media.FFmpegSegmenter{Binary: cfg.Transcription.FFmpegBinary},
		cfg,
		logger,
	)
	scorer := scoring.New(store, scoring.NewClient(cfg.Scoring), topics, logger)
	assembler := digest.New(store, topics, nil, cfg, logger)
	discoverer := discovery.New(store, discovery.NewParser(), subs.Feeds, cfg, logger)

	return pipeline.New(pipeline.Deps{
		Store:       store,
		Config:      cfg,
		Discoverer:  discoverer,
		Transcriber: transcriber,
		Scorer:      scorer,
		Assembler:   assembler,
		Topics:      topics,
		Logger:      logger,
	}), nil
}
