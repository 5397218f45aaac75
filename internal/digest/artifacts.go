package digest

import (
	"context"
	"time"

	"podsift/internal/catalog"
	"podsift/internal/logging"
)

// Synthesizer converts a digest script into narration audio and returns the
// path of the produced file.
type Synthesizer interface {
	Synthesize(ctx context.Context, script string, topic, date string) (string, error)
}

// Publisher pushes a finished digest to its destination and returns the
// external URL and publish time reported by the destination.
type Publisher interface {
	Publish(ctx context.Context, audioPath string, topic, date string) (string, time.Time, error)
}

// Synthesize runs the synthesis collaborator over every digest for the date
// that has a script but no audio yet. Artifact references come back from the
// collaborator and are stored verbatim.
func (a *Assembler) Synthesize(ctx context.Context, date time.Time, synth Synthesizer) (int, error) {
	dateKey := date.UTC().Format(catalog.DateFormat)
	digests, err := a.store.ListDigests(ctx, dateKey)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, d := range digests {
		if d.AudioPath != "" || d.Script == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return done, ctx.Err()
		default:
		}

		audioPath, err := synth.Synthesize(ctx, d.Script, d.Topic, d.Date)
		if err != nil {
			a.logger.Warn("digest synthesis failed",
				logging.String(logging.FieldTopic, d.Topic),
				logging.String("date", d.Date),
				logging.Error(err),
			)
			continue
		}
		if err := a.store.SetDigestAudio(ctx, d.ID, audioPath); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

// Publish runs the publishing collaborator over every synthesized,
// not-yet-published digest for the date.
func (a *Assembler) Publish(ctx context.Context, date time.Time, pub Publisher) (int, error) {
	dateKey := date.UTC().Format(catalog.DateFormat)
	digests, err := a.store.ListDigests(ctx, dateKey)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, d := range digests {
		if d.AudioPath == "" || d.PublishedAt != nil {
			continue
		}
		select {
		case <-ctx.Done():
			return done, ctx.Err()
		default:
		}

		externalURL, publishedAt, err := pub.Publish(ctx, d.AudioPath, d.Topic, d.Date)
		if err != nil {
			a.logger.Warn("digest publish failed",
				logging.String(logging.FieldTopic, d.Topic),
				logging.String("date", d.Date),
				logging.Error(err),
			)
			continue
		}
		if err := a.store.SetDigestPublished(ctx, d.ID, externalURL, publishedAt); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}
