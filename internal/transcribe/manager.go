package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"podsift/internal/catalog"
	"podsift/internal/config"
	"podsift/internal/logging"
	"podsift/internal/media"
	"podsift/internal/retry"
)

// Manager moves an episode through transcribing -> transcribed, processing
// audio chunks strictly serially so peak memory stays bounded regardless of
// episode length. Parallel chunk transcription is deliberately not supported.
type Manager struct {
	store     *catalog.Store
	backend   Backend
	prober    media.Prober
	segmenter media.Segmenter
	cfg       config.Transcription
	workDir   string
	audioDir  string
	policy    retry.Policy
	logger    *slog.Logger
}

// New constructs a Manager from application config.
func New(store *catalog.Store, backend Backend, prober media.Prober, segmenter media.Segmenter, cfg *config.Config, logger *slog.Logger) *Manager {
	policy := retry.DefaultPolicy(cfg.Transcription.MaxChunkRetries)
	policy.InitialInterval = 2 * time.Second
	return &Manager{
		store:     store,
		backend:   backend,
		prober:    prober,
		segmenter: segmenter,
		cfg:       cfg.Transcription,
		workDir:   cfg.Paths.WorkDir,
		audioDir:  cfg.Paths.AudioDir,
		policy:    policy,
		logger:    logging.NewComponentLogger(logger, "transcribe"),
	}
}

// Process transcribes one pending episode. chunkLimit > 0 caps the number of
// chunks for constrained test runs; a capped episode keeps its partial
// transcript and stays in transcribing. Cancellation lets the current chunk
// finish, then stops before the next one.
func (m *Manager) Process(ctx context.Context, ep *catalog.Episode, chunkLimit int) error {
	if err := m.store.Advance(ctx, ep, catalog.StatusTranscribing); err != nil {
		return err
	}

	audioPath, err := m.ensureAudio(ctx, ep)
	if err != nil {
		return m.failEpisode(ctx, ep, fmt.Errorf("fetch audio: %w", err))
	}

	if _, err := m.prober.Duration(ctx, audioPath); err != nil {
		// Zero-duration or undecodable audio fails immediately with no
		// partial transcript.
		return m.failEpisode(ctx, ep, fmt.Errorf("probe audio: %w", err))
	}

	chunkDir := filepath.Join(m.workDir, sanitizeFileName(ep.GUID))
	defer m.cleanupChunkDir(chunkDir)

	chunks, err := m.segmenter.Segment(ctx, audioPath, chunkDir, m.cfg.ChunkSeconds)
	if err != nil {
		return m.failEpisode(ctx, ep, fmt.Errorf("segment audio: %w", err))
	}

	total := len(chunks)
	limited := total
	if chunkLimit > 0 && chunkLimit < total {
		limited = chunkLimit
	}

	var buffer string
	for i := 0; i < limited; i++ {
		select {
		case <-ctx.Done():
			// Leave the episode in transcribing; a later run reprocesses it
			// from scratch.
			return ctx.Err()
		default:
		}

		chunkPath := chunks[i]
		var result Result
		attempt := func() error {
			var transcribeErr error
			result, transcribeErr = m.backend.Transcribe(ctx, chunkPath)
			return transcribeErr
		}
		if err := m.policy.Do(ctx, attempt); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return m.failEpisode(ctx, ep, &Error{Chunk: i + 1, Err: err})
		}

		buffer = appendChunkText(buffer, result.Text)
		if err := m.store.SetPartialTranscript(ctx, ep.ID, buffer, i+1); err != nil {
			return fmt.Errorf("persist partial transcript: %w", err)
		}
		// The chunk's scratch audio is no longer needed; the source file is
		// preserved untouched.
		_ = os.Remove(chunkPath)

		m.logger.Debug("chunk transcribed",
			logging.Int64(logging.FieldEpisodeID, ep.ID),
			logging.Int(logging.FieldChunk, i+1),
			logging.Int("chunk_total", total),
		)
	}

	if limited < total {
		m.logger.Info("chunk limit reached, episode remains transcribing",
			logging.Int64(logging.FieldEpisodeID, ep.ID),
			logging.Int("chunks_done", limited),
			logging.Int("chunk_total", total),
		)
		return nil
	}

	wordCount := countWords(buffer)
	if err := m.store.SetTranscript(ctx, ep.ID, buffer, wordCount, total); err != nil {
		return fmt.Errorf("persist transcript: %w", err)
	}
	if err := m.store.Advance(ctx, ep, catalog.StatusTranscribed); err != nil {
		return err
	}
	ep.Transcript = buffer
	ep.WordCount = wordCount
	ep.ChunkCount = total

	m.logger.Info("episode transcribed",
		logging.Int64(logging.FieldEpisodeID, ep.ID),
		logging.Int("word_count", wordCount),
		logging.Int("chunk_count", total),
	)
	return nil
}

// failEpisode records the failure, discards any partial transcript so
// scoring never sees a dangling fragment, and moves the episode to failed.
func (m *Manager) failEpisode(ctx context.Context, ep *catalog.Episode, cause error) error {
	if err := m.store.ClearTranscript(ctx, ep.ID); err != nil {
		return fmt.Errorf("clear partial transcript: %w", err)
	}
	if err := m.store.RecordFailure(ctx, ep, cause.Error(), true); err != nil {
		return err
	}
	m.logger.Warn("episode transcription failed",
		logging.Int64(logging.FieldEpisodeID, ep.ID),
		logging.Error(cause),
		logging.String(logging.FieldEventType, "transcription_failed"),
		logging.String(logging.FieldErrorHint, "retry with 'podsift episodes retry' after fixing the cause"),
	)
	return cause
}

func (m *Manager) ensureAudio(ctx context.Context, ep *catalog.Episode) (string, error) {
	if ep.AudioPath != "" {
		if _, err := os.Stat(ep.AudioPath); err == nil {
			return ep.AudioPath, nil
		}
	}
	path, err := m.download(ctx, ep)
	if err != nil {
		return "", err
	}
	if err := m.store.SetAudioPath(ctx, ep.ID, path); err != nil {
		return "", err
	}
	ep.AudioPath = path
	return path, nil
}

func (m *Manager) cleanupChunkDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("failed to remove chunk scratch dir",
			logging.String("dir", dir),
			logging.Error(err),
		)
	}
}
