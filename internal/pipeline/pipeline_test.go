package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"podsift/internal/catalog"
	"podsift/internal/config"
	"podsift/internal/digest"
	"podsift/internal/discovery"
	"podsift/internal/logging"
	"podsift/internal/pipeline"
	"podsift/internal/testsupport"
)

type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *callRecorder) has(call string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == call {
			return true
		}
	}
	return false
}

type fakeDiscoverer struct {
	rec     *callRecorder
	summary discovery.Summary
}

func (f *fakeDiscoverer) Run(ctx context.Context) (discovery.Summary, error) {
	f.rec.record("discover")
	return f.summary, nil
}

type fakeTranscriber struct {
	rec  *callRecorder
	errs map[int64]error
}

func (f *fakeTranscriber) Process(ctx context.Context, ep *catalog.Episode, chunkLimit int) error {
	f.rec.record(fmt.Sprintf("transcribe:%s", ep.GUID))
	return f.errs[ep.ID]
}

type fakeScorer struct {
	rec  *callRecorder
	errs map[int64]error
}

func (f *fakeScorer) Process(ctx context.Context, ep *catalog.Episode) error {
	f.rec.record(fmt.Sprintf("score:%s", ep.GUID))
	return f.errs[ep.ID]
}

type fakeAssembler struct {
	rec     *callRecorder
	summary digest.Summary
}

func (f *fakeAssembler) Run(ctx context.Context, date time.Time) (digest.Summary, error) {
	f.rec.record("digest")
	return f.summary, nil
}

func (f *fakeAssembler) Synthesize(ctx context.Context, date time.Time, synth digest.Synthesizer) (int, error) {
	f.rec.record("synthesize")
	return 0, nil
}

func (f *fakeAssembler) Publish(ctx context.Context, date time.Time, pub digest.Publisher) (int, error) {
	f.rec.record("publish")
	return 0, nil
}

type nopSynthesizer struct{}

func (nopSynthesizer) Synthesize(ctx context.Context, script, topic, date string) (string, error) {
	return "", nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, audioPath, topic, date string) (string, time.Time, error) {
	return "", time.Time{}, nil
}

type harness struct {
	cfg   *config.Config
	store *catalog.Store
	rec   *callRecorder
	deps  pipeline.Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := &callRecorder{}
	return &harness{
		cfg:   cfg,
		store: store,
		rec:   rec,
		deps: pipeline.Deps{
			Store:       store,
			Config:      cfg,
			Discoverer:  &fakeDiscoverer{rec: rec},
			Transcriber: &fakeTranscriber{rec: rec},
			Scorer:      &fakeScorer{rec: rec},
			Assembler:   &fakeAssembler{rec: rec},
			Synthesizer: nopSynthesizer{},
			Publisher:   nopPublisher{},
			Topics:      []catalog.Topic{{Name: "ai", Threshold: 0.65, Active: true}},
			Logger:      logging.NewNop(),
		},
	}
}

func (h *harness) seedEpisode(t *testing.T, guid string, target catalog.Status) *catalog.Episode {
	t.Helper()
	ctx := context.Background()

	feed, err := h.store.UpsertFeed(ctx, "https://example.com/feed.xml", "Show")
	if err != nil {
		t.Fatalf("upsert feed: %v", err)
	}
	ep, _, err := h.store.InsertEpisodeIfNew(ctx, &catalog.Episode{
		GUID:     guid,
		FeedID:   feed.ID,
		AudioURL: "https://example.com/" + guid + ".mp3",
	})
	if err != nil {
		t.Fatalf("insert episode %s: %v", guid, err)
	}

	path := []catalog.Status{catalog.StatusTranscribing, catalog.StatusTranscribed, catalog.StatusScored}
	for _, status := range path {
		if ep.Status == target {
			break
		}
		if err := h.store.Advance(ctx, ep, status); err != nil {
			t.Fatalf("advance %s to %s: %v", guid, status, err)
		}
	}
	return ep
}

func TestParsePhases(t *testing.T) {
	all, err := pipeline.ParsePhases(nil)
	if err != nil {
		t.Fatalf("ParsePhases(nil): %v", err)
	}
	if len(all) != 6 || all[0] != pipeline.PhaseDiscover || all[5] != pipeline.PhasePublish {
		t.Fatalf("all phases = %v", all)
	}

	// Subsets come back in canonical order no matter how they were listed.
	subset, err := pipeline.ParsePhases([]string{"score", "Discover"})
	if err != nil {
		t.Fatalf("ParsePhases(subset): %v", err)
	}
	if len(subset) != 2 || subset[0] != pipeline.PhaseDiscover || subset[1] != pipeline.PhaseScore {
		t.Fatalf("subset = %v, want [discover score]", subset)
	}

	if _, err := pipeline.ParsePhases([]string{"encode"}); err == nil {
		t.Fatal("unknown phase accepted")
	}
}

func TestRunExecutesPhasesInOrder(t *testing.T) {
	h := newHarness(t)
	h.seedEpisode(t, "p-1", catalog.StatusPending)
	h.seedEpisode(t, "t-1", catalog.StatusTranscribed)

	runner := pipeline.New(h.deps)
	summary, err := runner.Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.RunID == "" {
		t.Error("run id missing")
	}
	if len(summary.Phases) != 6 {
		t.Fatalf("phase results = %d, want 6", len(summary.Phases))
	}

	want := []string{"discover", "transcribe:p-1", "score:t-1", "digest", "synthesize", "publish"}
	h.rec.mu.Lock()
	got := append([]string(nil), h.rec.calls...)
	h.rec.mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q (all: %v)", i, got[i], want[i], got)
		}
	}

	if summary.StatusCounts[catalog.StatusPending] != 1 {
		t.Errorf("status counts = %v", summary.StatusCounts)
	}
}

func TestRunPhaseSubsetSkipsOthers(t *testing.T) {
	h := newHarness(t)
	h.seedEpisode(t, "p-1", catalog.StatusPending)

	runner := pipeline.New(h.deps)
	phases, err := pipeline.ParsePhases([]string{"transcribe"})
	if err != nil {
		t.Fatalf("ParsePhases: %v", err)
	}
	summary, err := runner.Run(context.Background(), pipeline.Options{Phases: phases})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Phases) != 1 || summary.Phases[0].Phase != pipeline.PhaseTranscribe {
		t.Fatalf("phases = %+v", summary.Phases)
	}
	if h.rec.has("discover") || h.rec.has("digest") {
		t.Fatalf("unselected phases ran: %v", h.rec.calls)
	}
}

func TestRunDryRunInvokesNoCollaborators(t *testing.T) {
	h := newHarness(t)
	h.seedEpisode(t, "p-1", catalog.StatusPending)
	h.seedEpisode(t, "t-1", catalog.StatusTranscribed)

	runner := pipeline.New(h.deps)
	summary, err := runner.Run(context.Background(), pipeline.Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.DryRun {
		t.Error("summary not flagged dry run")
	}

	h.rec.mu.Lock()
	calls := len(h.rec.calls)
	h.rec.mu.Unlock()
	if calls != 0 {
		t.Fatalf("dry run invoked collaborators: %v", h.rec.calls)
	}

	// No status changed.
	ep, err := h.store.GetEpisodeByGUID(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("get episode: %v", err)
	}
	if ep.Status != catalog.StatusPending {
		t.Fatalf("dry run changed status to %s", ep.Status)
	}
}

func TestRunIsolatesEpisodeFailures(t *testing.T) {
	h := newHarness(t)
	bad := h.seedEpisode(t, "bad-1", catalog.StatusPending)
	h.seedEpisode(t, "good-1", catalog.StatusPending)

	h.deps.Transcriber = &fakeTranscriber{
		rec:  h.rec,
		errs: map[int64]error{bad.ID: errors.New("backend crashed")},
	}
	runner := pipeline.New(h.deps)

	summary, err := runner.Run(context.Background(), pipeline.Options{
		Phases: []pipeline.Phase{pipeline.PhaseTranscribe},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	result := summary.Phases[0]
	if result.Processed != 1 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 1 processed, 1 failed", result)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures = %v", result.Failures)
	}
	if !summary.Failed() {
		t.Error("summary.Failed() = false with a failed episode")
	}
	if !h.rec.has("transcribe:good-1") {
		t.Error("good episode skipped after bad episode failed")
	}
}

func TestRunAbortsOnIllegalTransition(t *testing.T) {
	h := newHarness(t)
	ep := h.seedEpisode(t, "bug-1", catalog.StatusPending)

	h.deps.Transcriber = &fakeTranscriber{
		rec:  h.rec,
		errs: map[int64]error{ep.ID: fmt.Errorf("advance: %w", catalog.ErrIllegalTransition)},
	}
	runner := pipeline.New(h.deps)

	_, err := runner.Run(context.Background(), pipeline.Options{
		Phases: []pipeline.Phase{pipeline.PhaseTranscribe},
	})
	if !errors.Is(err, catalog.ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestRunScoresWithWorkerPool(t *testing.T) {
	h := newHarness(t)
	h.cfg.Scoring.WorkerCount = 3
	for i := 0; i < 5; i++ {
		h.seedEpisode(t, fmt.Sprintf("t-%d", i), catalog.StatusTranscribed)
	}

	runner := pipeline.New(h.deps)
	summary, err := runner.Run(context.Background(), pipeline.Options{
		Phases: []pipeline.Phase{pipeline.PhaseScore},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Phases[0].Processed != 5 {
		t.Fatalf("processed = %d, want 5", summary.Phases[0].Processed)
	}
}

func TestRunLimitCapsEpisodesPerPhase(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 4; i++ {
		h.seedEpisode(t, fmt.Sprintf("p-%d", i), catalog.StatusPending)
	}

	runner := pipeline.New(h.deps)
	summary, err := runner.Run(context.Background(), pipeline.Options{
		Phases: []pipeline.Phase{pipeline.PhaseTranscribe},
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Phases[0].Processed != 2 {
		t.Fatalf("processed = %d, want limit 2", summary.Phases[0].Processed)
	}
}

func TestRunRefusesConcurrentRuns(t *testing.T) {
	h := newHarness(t)

	held := flock.New(h.cfg.Paths.RunLockPath)
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-acquire lock: locked=%v err=%v", locked, err)
	}
	defer held.Unlock()

	runner := pipeline.New(h.deps)
	if _, err := runner.Run(context.Background(), pipeline.Options{}); !errors.Is(err, pipeline.ErrRunLocked) {
		t.Fatalf("err = %v, want ErrRunLocked", err)
	}
}

// conflictingTranscriber loses the status race for the first conflicts
// attempts on every episode, then succeeds.
type conflictingTranscriber struct {
	rec       *callRecorder
	conflicts int
	attempts  map[int64]int
}

func (f *conflictingTranscriber) Process(ctx context.Context, ep *catalog.Episode, chunkLimit int) error {
	f.rec.record(fmt.Sprintf("transcribe:%s", ep.GUID))
	f.attempts[ep.ID]++
	if f.attempts[ep.ID] <= f.conflicts {
		return fmt.Errorf("advance: %w", catalog.ErrConcurrencyConflict)
	}
	return nil
}

// racingTranscriber simulates a second writer: it advances the episode
// through the store before reporting its own lost race.
type racingTranscriber struct {
	store *catalog.Store
	calls int
}

func (f *racingTranscriber) Process(ctx context.Context, ep *catalog.Episode, chunkLimit int) error {
	f.calls++
	other, err := f.store.GetEpisodeByID(ctx, ep.ID)
	if err != nil {
		return err
	}
	if err := f.store.Advance(ctx, other, catalog.StatusTranscribing); err != nil {
		return err
	}
	if err := f.store.Advance(ctx, other, catalog.StatusTranscribed); err != nil {
		return err
	}
	return fmt.Errorf("advance: %w", catalog.ErrConcurrencyConflict)
}

func TestRunRetriesConflictedEpisodeOnce(t *testing.T) {
	h := newHarness(t)
	ep := h.seedEpisode(t, "race-1", catalog.StatusPending)

	transcriber := &conflictingTranscriber{rec: h.rec, conflicts: 1, attempts: map[int64]int{}}
	h.deps.Transcriber = transcriber
	runner := pipeline.New(h.deps)

	summary, err := runner.Run(context.Background(), pipeline.Options{
		Phases: []pipeline.Phase{pipeline.PhaseTranscribe},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	result := summary.Phases[0]
	if result.Processed != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v, want retried episode counted processed", result)
	}
	if transcriber.attempts[ep.ID] != 2 {
		t.Fatalf("attempts = %d, want exactly one retry", transcriber.attempts[ep.ID])
	}
}

func TestRunAbortsOnPersistentConflict(t *testing.T) {
	h := newHarness(t)
	ep := h.seedEpisode(t, "race-2", catalog.StatusPending)

	transcriber := &conflictingTranscriber{rec: h.rec, conflicts: 10, attempts: map[int64]int{}}
	h.deps.Transcriber = transcriber
	runner := pipeline.New(h.deps)

	_, err := runner.Run(context.Background(), pipeline.Options{
		Phases: []pipeline.Phase{pipeline.PhaseTranscribe},
	})
	if !errors.Is(err, catalog.ErrConcurrencyConflict) {
		t.Fatalf("err = %v, want ErrConcurrencyConflict", err)
	}
	if transcriber.attempts[ep.ID] != 2 {
		t.Fatalf("attempts = %d, want one retry before aborting", transcriber.attempts[ep.ID])
	}
}

func TestRunLeavesEpisodeAnotherWriterAdvanced(t *testing.T) {
	h := newHarness(t)
	ep := h.seedEpisode(t, "race-3", catalog.StatusPending)

	transcriber := &racingTranscriber{store: h.store}
	h.deps.Transcriber = transcriber
	runner := pipeline.New(h.deps)

	summary, err := runner.Run(context.Background(), pipeline.Options{
		Phases: []pipeline.Phase{pipeline.PhaseTranscribe},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	result := summary.Phases[0]
	if result.Failed != 0 {
		t.Fatalf("result = %+v, want no failure for a row another writer moved on", result)
	}
	if transcriber.calls != 1 {
		t.Fatalf("calls = %d, want no reprocessing of an advanced row", transcriber.calls)
	}

	stored, err := h.store.GetEpisodeByID(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("get episode: %v", err)
	}
	if stored.Status != catalog.StatusTranscribed {
		t.Fatalf("status = %s, want the other writer's %s preserved", stored.Status, catalog.StatusTranscribed)
	}
}

func TestRunRestartsInterruptedTranscription(t *testing.T) {
	h := newHarness(t)
	ep := h.seedEpisode(t, "stuck-1", catalog.StatusTranscribing)
	if err := h.store.SetPartialTranscript(context.Background(), ep.ID, "partial text", 2); err != nil {
		t.Fatalf("set partial transcript: %v", err)
	}

	runner := pipeline.New(h.deps)
	summary, err := runner.Run(context.Background(), pipeline.Options{
		Phases: []pipeline.Phase{pipeline.PhaseTranscribe},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Phases[0].Processed != 1 {
		t.Fatalf("processed = %d, want 1", summary.Phases[0].Processed)
	}
	if !h.rec.has("transcribe:stuck-1") {
		t.Fatal("stuck episode not reprocessed")
	}
}
