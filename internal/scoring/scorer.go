package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"podsift/internal/catalog"
	"podsift/internal/logging"
)

// ScoreClient is the model-backed collaborator contract.
type ScoreClient interface {
	ScoreTranscript(ctx context.Context, transcript string, topics []catalog.Topic) (catalog.ScoreVector, error)
}

// Scorer moves transcribed episodes to scored. A scoring failure leaves the
// episode in transcribed so a later run retries it; scoring never pushes an
// episode to failed.
type Scorer struct {
	store  *catalog.Store
	client ScoreClient
	topics []catalog.Topic
	logger *slog.Logger
}

// New constructs a Scorer for the given topic set.
func New(store *catalog.Store, client ScoreClient, topics []catalog.Topic, logger *slog.Logger) *Scorer {
	return &Scorer{
		store:  store,
		client: client,
		topics: topics,
		logger: logging.NewComponentLogger(logger, "scoring"),
	}
}

// Process scores one transcribed episode across every active topic in a
// single model call and advances it to scored.
func (s *Scorer) Process(ctx context.Context, ep *catalog.Episode) error {
	if ep.Status != catalog.StatusTranscribed {
		return fmt.Errorf("scoring: episode %d is %s, want %s", ep.ID, ep.Status, catalog.StatusTranscribed)
	}

	scores, err := s.client.ScoreTranscript(ctx, ep.Transcript, s.topics)
	if err != nil {
		recordErr := s.store.RecordFailure(ctx, ep, fmt.Sprintf("scoring: %v", err), false)
		if recordErr != nil {
			return fmt.Errorf("record scoring failure: %w (original: %v)", recordErr, err)
		}
		s.logger.Warn("episode scoring failed, will retry on a later run",
			logging.Int64(logging.FieldEpisodeID, ep.ID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "scoring_failed"),
		)
		return err
	}

	if err := s.store.SetScores(ctx, ep.ID, scores); err != nil {
		return err
	}
	if err := s.store.Advance(ctx, ep, catalog.StatusScored); err != nil {
		return err
	}
	ep.Scores = scores

	s.logger.Info("episode scored",
		logging.Int64(logging.FieldEpisodeID, ep.ID),
		logging.Int("topic_count", len(scores)),
	)
	return nil
}
