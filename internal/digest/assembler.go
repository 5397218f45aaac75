// Package digest compiles scored episodes into per-topic daily digests and
// hands the finished scripts to the synthesis and publishing collaborators.
package digest

import (
	"context"
	"log/slog"
	"time"

	"podsift/internal/catalog"
	"podsift/internal/config"
	"podsift/internal/logging"
)

// Summary reports what one assembly pass produced.
type Summary struct {
	TopicsConsidered int
	DigestsCreated   int
	DigestsExisting  int
	EpisodesDigested int
}

// Assembler builds one digest per topic per calendar date.
type Assembler struct {
	store        *catalog.Store
	topics       []catalog.Topic
	renderer     Renderer
	lookbackDays int
	maxEpisodes  int
	logger       *slog.Logger
}

// New constructs an Assembler from application config.
func New(store *catalog.Store, topics []catalog.Topic, renderer Renderer, cfg *config.Config, logger *slog.Logger) *Assembler {
	if renderer == nil {
		renderer = ScriptRenderer{}
	}
	return &Assembler{
		store:        store,
		topics:       topics,
		renderer:     renderer,
		lookbackDays: cfg.Digest.LookbackDays,
		maxEpisodes:  cfg.Digest.MaxEpisodes,
		logger:       logging.NewComponentLogger(logger, "digest"),
	}
}

// Run assembles digests for every active topic on the given date. An episode
// that clears several topic thresholds appears in each of those digests;
// episodes move to digested only once, after every topic has been assembled,
// so no topic's selection is starved by another's. Re-running for the same
// date is a no-op thanks to the (topic, date) uniqueness of digests.
func (a *Assembler) Run(ctx context.Context, date time.Time) (Summary, error) {
	var summary Summary
	dateKey := date.UTC().Format(catalog.DateFormat)
	since := date.UTC().AddDate(0, 0, -a.lookbackDays)

	// Union of every episode selected this pass, marked in one batch at the
	// end. Marking per topic would hide cross-topic episodes from the
	// remaining topics.
	selected := make(map[int64]struct{})

	for _, topic := range a.topics {
		if !topic.Active {
			continue
		}
		summary.TopicsConsidered++

		episodes, err := a.store.QualifyingEpisodes(ctx, catalog.SelectionQuery{
			Topic:     topic.Name,
			Threshold: topic.Threshold,
			Since:     since,
			Limit:     a.maxEpisodes,
		})
		if err != nil {
			return summary, err
		}
		if len(episodes) == 0 {
			a.logger.Debug("no qualifying episodes for topic",
				logging.String(logging.FieldTopic, topic.Name),
				logging.String("date", dateKey),
			)
			continue
		}

		ids := make([]int64, 0, len(episodes))
		var scoreSum float64
		for _, ep := range episodes {
			ids = append(ids, ep.ID)
			scoreSum += ep.Scores[topic.Name]
		}

		stored, created, err := a.store.CreateDigest(ctx, &catalog.Digest{
			Topic:        topic.Name,
			Date:         dateKey,
			EpisodeIDs:   ids,
			EpisodeCount: len(ids),
			AverageScore: scoreSum / float64(len(ids)),
			Script:       a.renderer.Render(topic, dateKey, episodes),
		})
		if err != nil {
			return summary, err
		}
		if created {
			summary.DigestsCreated++
			a.logger.Info("digest assembled",
				logging.String(logging.FieldTopic, topic.Name),
				logging.String("date", dateKey),
				logging.Int("episode_count", stored.EpisodeCount),
				logging.Float64("average_score", stored.AverageScore),
			)
			for _, id := range ids {
				selected[id] = struct{}{}
			}
			continue
		}
		summary.DigestsExisting++

		// The digest already exists, so this pass selected episodes a prior
		// run did not finalize. Only ids the stored digest references may be
		// marked; they are still scored because that run stopped between
		// creating the digest and marking its episodes. Episodes scored after
		// the digest was finalized stay scored for a later window, since a
		// digested episode must be referenced by a digest.
		referenced := make(map[int64]struct{}, len(stored.EpisodeIDs))
		for _, id := range stored.EpisodeIDs {
			referenced[id] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := referenced[id]; ok {
				selected[id] = struct{}{}
			}
		}
	}

	if len(selected) > 0 {
		ids := make([]int64, 0, len(selected))
		for id := range selected {
			ids = append(ids, id)
		}
		if err := a.store.MarkDigested(ctx, ids); err != nil {
			return summary, err
		}
		summary.EpisodesDigested = len(ids)
	}
	return summary, nil
}
