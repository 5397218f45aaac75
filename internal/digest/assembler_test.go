package digest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"podsift/internal/catalog"
	"podsift/internal/config"
	"podsift/internal/digest"
	"podsift/internal/logging"
	"podsift/internal/testsupport"
)

var runDate = time.Date(2026, 8, 21, 6, 0, 0, 0, time.UTC)

func testTopics() []catalog.Topic {
	return []catalog.Topic{
		{Name: "ai", Title: "Artificial Intelligence", Threshold: 0.65, Active: true},
		{Name: "space", Title: "Space Exploration", Threshold: 0.65, Active: true},
	}
}

// seedScoredEpisode inserts an episode and walks it to scored with the given
// score vector, published the day before the run date.
func seedScoredEpisode(t *testing.T, store *catalog.Store, guid string, scores catalog.ScoreVector) *catalog.Episode {
	t.Helper()
	ctx := context.Background()

	feed, err := store.UpsertFeed(ctx, "https://example.com/feed.xml", "Example Show")
	if err != nil {
		t.Fatalf("upsert feed: %v", err)
	}
	published := runDate.Add(-18 * time.Hour)
	ep, _, err := store.InsertEpisodeIfNew(ctx, &catalog.Episode{
		GUID:        guid,
		FeedID:      feed.ID,
		Title:       "Episode " + guid,
		PublishedAt: &published,
		AudioURL:    "https://example.com/" + guid + ".mp3",
	})
	if err != nil {
		t.Fatalf("insert episode %s: %v", guid, err)
	}
	if err := store.Advance(ctx, ep, catalog.StatusTranscribing); err != nil {
		t.Fatalf("advance %s: %v", guid, err)
	}
	if err := store.SetTranscript(ctx, ep.ID, "transcript for "+guid, 3, 1); err != nil {
		t.Fatalf("set transcript %s: %v", guid, err)
	}
	if err := store.Advance(ctx, ep, catalog.StatusTranscribed); err != nil {
		t.Fatalf("advance %s: %v", guid, err)
	}
	if err := store.SetScores(ctx, ep.ID, scores); err != nil {
		t.Fatalf("set scores %s: %v", guid, err)
	}
	if err := store.Advance(ctx, ep, catalog.StatusScored); err != nil {
		t.Fatalf("advance %s: %v", guid, err)
	}
	return ep
}

func newAssembler(t *testing.T, cfg *config.Config, store *catalog.Store, topics []catalog.Topic) *digest.Assembler {
	t.Helper()
	return digest.New(store, topics, nil, cfg, logging.NewNop())
}

func TestRunAssemblesDigestPerTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	aiEp := seedScoredEpisode(t, store, "ai-1", catalog.ScoreVector{"ai": 0.9, "space": 0.1})
	spaceEp := seedScoredEpisode(t, store, "space-1", catalog.ScoreVector{"ai": 0.2, "space": 0.8})

	a := newAssembler(t, cfg, store, testTopics())
	summary, err := a.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.DigestsCreated != 2 {
		t.Fatalf("digests created = %d, want 2", summary.DigestsCreated)
	}
	if summary.EpisodesDigested != 2 {
		t.Fatalf("episodes digested = %d, want 2", summary.EpisodesDigested)
	}

	d, err := store.GetDigest(context.Background(), "ai", "2026-08-21")
	if err != nil {
		t.Fatalf("get ai digest: %v", err)
	}
	if len(d.EpisodeIDs) != 1 || d.EpisodeIDs[0] != aiEp.ID {
		t.Fatalf("ai digest episodes = %v, want [%d]", d.EpisodeIDs, aiEp.ID)
	}
	if d.AverageScore != 0.9 {
		t.Fatalf("ai digest average = %v, want 0.9", d.AverageScore)
	}
	if d.Script == "" {
		t.Fatal("ai digest has no script")
	}

	for _, ep := range []*catalog.Episode{aiEp, spaceEp} {
		stored, err := store.GetEpisodeByID(context.Background(), ep.ID)
		if err != nil {
			t.Fatalf("get episode: %v", err)
		}
		if stored.Status != catalog.StatusDigested {
			t.Fatalf("episode %s status = %s, want %s", ep.GUID, stored.Status, catalog.StatusDigested)
		}
	}
}

func TestRunIncludesCrossTopicEpisodeInEveryQualifyingDigest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	// Clears both thresholds; digestion must not let the first topic starve
	// the second.
	ep := seedScoredEpisode(t, store, "both-1", catalog.ScoreVector{"ai": 0.8, "space": 0.9})

	a := newAssembler(t, cfg, store, testTopics())
	summary, err := a.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.DigestsCreated != 2 {
		t.Fatalf("digests created = %d, want 2", summary.DigestsCreated)
	}
	if summary.EpisodesDigested != 1 {
		t.Fatalf("episodes digested = %d, want 1 (marked once)", summary.EpisodesDigested)
	}

	for _, topic := range []string{"ai", "space"} {
		d, err := store.GetDigest(context.Background(), topic, "2026-08-21")
		if err != nil {
			t.Fatalf("get %s digest: %v", topic, err)
		}
		if len(d.EpisodeIDs) != 1 || d.EpisodeIDs[0] != ep.ID {
			t.Fatalf("%s digest episodes = %v, want [%d]", topic, d.EpisodeIDs, ep.ID)
		}
	}
}

func TestRunIsIdempotentForSameDate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seedScoredEpisode(t, store, "ai-1", catalog.ScoreVector{"ai": 0.9, "space": 0.0})

	a := newAssembler(t, cfg, store, testTopics())
	if _, err := a.Run(context.Background(), runDate); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	summary, err := a.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.DigestsCreated != 0 || summary.EpisodesDigested != 0 {
		t.Fatalf("second run summary = %+v, want no new work", summary)
	}

	digests, err := store.ListDigests(context.Background(), "2026-08-21")
	if err != nil {
		t.Fatalf("list digests: %v", err)
	}
	if len(digests) != 1 {
		t.Fatalf("digest count = %d, want 1", len(digests))
	}
}

func TestRunLeavesLateScoredEpisodeForLaterWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	topics := []catalog.Topic{{Name: "ai", Threshold: 0.65, Active: true}}
	a := newAssembler(t, cfg, store, topics)

	early := seedScoredEpisode(t, store, "ai-early", catalog.ScoreVector{"ai": 0.9})
	if _, err := a.Run(context.Background(), runDate); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Scored after the day's digest was finalized.
	late := seedScoredEpisode(t, store, "ai-late", catalog.ScoreVector{"ai": 0.8})
	summary, err := a.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.DigestsCreated != 0 || summary.EpisodesDigested != 0 {
		t.Fatalf("second run summary = %+v, want no new work", summary)
	}

	d, err := store.GetDigest(context.Background(), "ai", "2026-08-21")
	if err != nil {
		t.Fatalf("get digest: %v", err)
	}
	if len(d.EpisodeIDs) != 1 || d.EpisodeIDs[0] != early.ID {
		t.Fatalf("digest episodes = %v, want [%d]", d.EpisodeIDs, early.ID)
	}

	// The latecomer is referenced by no digest, so it must not be digested.
	stored, err := store.GetEpisodeByID(context.Background(), late.ID)
	if err != nil {
		t.Fatalf("get episode: %v", err)
	}
	if stored.Status != catalog.StatusScored {
		t.Fatalf("late episode status = %s, want %s", stored.Status, catalog.StatusScored)
	}
}

func TestRunFinalizesEpisodesOfExistingUnmarkedDigest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	// A prior run created the digest but stopped before marking its episodes.
	ep := seedScoredEpisode(t, store, "ai-1", catalog.ScoreVector{"ai": 0.9})
	if _, _, err := store.CreateDigest(ctx, &catalog.Digest{
		Topic:        "ai",
		Date:         "2026-08-21",
		EpisodeIDs:   []int64{ep.ID},
		EpisodeCount: 1,
		AverageScore: 0.9,
		Script:       "script",
	}); err != nil {
		t.Fatalf("create digest: %v", err)
	}

	topics := []catalog.Topic{{Name: "ai", Threshold: 0.65, Active: true}}
	a := newAssembler(t, cfg, store, topics)
	summary, err := a.Run(ctx, runDate)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.DigestsCreated != 0 || summary.DigestsExisting != 1 {
		t.Fatalf("summary = %+v, want one existing digest", summary)
	}
	if summary.EpisodesDigested != 1 {
		t.Fatalf("episodes digested = %d, want 1", summary.EpisodesDigested)
	}

	stored, err := store.GetEpisodeByID(ctx, ep.ID)
	if err != nil {
		t.Fatalf("get episode: %v", err)
	}
	if stored.Status != catalog.StatusDigested {
		t.Fatalf("status = %s, want %s", stored.Status, catalog.StatusDigested)
	}
}

func TestRunSkipsTopicsWithNoQualifyingEpisodes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	// Below both thresholds.
	seedScoredEpisode(t, store, "low-1", catalog.ScoreVector{"ai": 0.3, "space": 0.2})

	a := newAssembler(t, cfg, store, testTopics())
	summary, err := a.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.DigestsCreated != 0 {
		t.Fatalf("digests created = %d, want 0", summary.DigestsCreated)
	}
	if summary.EpisodesDigested != 0 {
		t.Fatalf("episodes digested = %d, want 0", summary.EpisodesDigested)
	}

	stored, err := store.GetEpisodeByGUID(context.Background(), "low-1")
	if err != nil {
		t.Fatalf("get episode: %v", err)
	}
	if stored.Status != catalog.StatusScored {
		t.Fatalf("status = %s, want %s (stays available for later windows)", stored.Status, catalog.StatusScored)
	}
}

func TestRunCapsEpisodesPerDigest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Digest.MaxEpisodes = 2
	store := testsupport.MustOpenStore(t, cfg)

	seedScoredEpisode(t, store, "ai-1", catalog.ScoreVector{"ai": 0.95})
	seedScoredEpisode(t, store, "ai-2", catalog.ScoreVector{"ai": 0.85})
	seedScoredEpisode(t, store, "ai-3", catalog.ScoreVector{"ai": 0.75})

	topics := []catalog.Topic{{Name: "ai", Threshold: 0.65, Active: true}}
	a := newAssembler(t, cfg, store, topics)
	if _, err := a.Run(context.Background(), runDate); err != nil {
		t.Fatalf("Run: %v", err)
	}

	d, err := store.GetDigest(context.Background(), "ai", "2026-08-21")
	if err != nil {
		t.Fatalf("get digest: %v", err)
	}
	if d.EpisodeCount != 2 {
		t.Fatalf("episode count = %d, want capped 2", d.EpisodeCount)
	}

	// The episode that missed the cap stays scored for a later window.
	third, err := store.GetEpisodeByGUID(context.Background(), "ai-3")
	if err != nil {
		t.Fatalf("get episode: %v", err)
	}
	if third.Status != catalog.StatusScored {
		t.Fatalf("uncapped episode status = %s, want %s", third.Status, catalog.StatusScored)
	}
}

func TestRunIgnoresInactiveTopics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seedScoredEpisode(t, store, "ai-1", catalog.ScoreVector{"ai": 0.9})

	topics := []catalog.Topic{{Name: "ai", Threshold: 0.65, Active: false}}
	a := newAssembler(t, cfg, store, topics)
	summary, err := a.Run(context.Background(), runDate)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.TopicsConsidered != 0 || summary.DigestsCreated != 0 {
		t.Fatalf("summary = %+v, want inactive topic skipped", summary)
	}
}

type fakeSynthesizer struct {
	err   error
	calls int
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, script, topic, date string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/" + topic + "-" + date + ".mp3", nil
}

type fakePublisher struct {
	calls int
}

func (f *fakePublisher) Publish(ctx context.Context, audioPath, topic, date string) (string, time.Time, error) {
	f.calls++
	return "https://cdn.example.com/" + topic + "/" + date, time.Date(2026, 8, 21, 7, 0, 0, 0, time.UTC), nil
}

func TestSynthesizeAndPublishStoreArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seedScoredEpisode(t, store, "ai-1", catalog.ScoreVector{"ai": 0.9})

	topics := []catalog.Topic{{Name: "ai", Threshold: 0.65, Active: true}}
	a := newAssembler(t, cfg, store, topics)
	if _, err := a.Run(context.Background(), runDate); err != nil {
		t.Fatalf("Run: %v", err)
	}

	synth := &fakeSynthesizer{}
	if n, err := a.Synthesize(context.Background(), runDate, synth); err != nil || n != 1 {
		t.Fatalf("Synthesize = (%d, %v), want (1, nil)", n, err)
	}
	pub := &fakePublisher{}
	if n, err := a.Publish(context.Background(), runDate, pub); err != nil || n != 1 {
		t.Fatalf("Publish = (%d, %v), want (1, nil)", n, err)
	}

	d, err := store.GetDigest(context.Background(), "ai", "2026-08-21")
	if err != nil {
		t.Fatalf("get digest: %v", err)
	}
	if d.AudioPath != "/tmp/ai-2026-08-21.mp3" {
		t.Errorf("audio path = %q", d.AudioPath)
	}
	if d.ExternalURL != "https://cdn.example.com/ai/2026-08-21" {
		t.Errorf("external url = %q", d.ExternalURL)
	}
	if d.PublishedAt == nil {
		t.Error("published_at not set")
	}

	// Re-running the artifact steps does nothing new.
	if n, err := a.Synthesize(context.Background(), runDate, synth); err != nil || n != 0 {
		t.Fatalf("second Synthesize = (%d, %v), want (0, nil)", n, err)
	}
	if n, err := a.Publish(context.Background(), runDate, pub); err != nil || n != 0 {
		t.Fatalf("second Publish = (%d, %v), want (0, nil)", n, err)
	}
	if synth.calls != 1 || pub.calls != 1 {
		t.Fatalf("collaborator calls = (%d, %d), want (1, 1)", synth.calls, pub.calls)
	}
}

func TestSynthesizeFailureSkipsDigestWithoutAborting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seedScoredEpisode(t, store, "ai-1", catalog.ScoreVector{"ai": 0.9})

	topics := []catalog.Topic{{Name: "ai", Threshold: 0.65, Active: true}}
	a := newAssembler(t, cfg, store, topics)
	if _, err := a.Run(context.Background(), runDate); err != nil {
		t.Fatalf("Run: %v", err)
	}

	synth := &fakeSynthesizer{err: errors.New("tts unavailable")}
	n, err := a.Synthesize(context.Background(), runDate, synth)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if n != 0 {
		t.Fatalf("synthesized = %d, want 0", n)
	}

	d, err := store.GetDigest(context.Background(), "ai", "2026-08-21")
	if err != nil {
		t.Fatalf("get digest: %v", err)
	}
	if d.AudioPath != "" {
		t.Fatalf("audio path = %q, want empty after failure", d.AudioPath)
	}
}
