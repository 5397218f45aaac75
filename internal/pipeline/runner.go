package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"podsift/internal/catalog"
	"podsift/internal/config"
	"podsift/internal/digest"
	"podsift/internal/discovery"
	"podsift/internal/logging"
)

// Discoverer is the feed-checking collaborator contract.
type Discoverer interface {
	Run(ctx context.Context) (discovery.Summary, error)
}

// Transcriber processes one pending episode.
type Transcriber interface {
	Process(ctx context.Context, ep *catalog.Episode, chunkLimit int) error
}

// EpisodeScorer processes one transcribed episode.
type EpisodeScorer interface {
	Process(ctx context.Context, ep *catalog.Episode) error
}

// Assembler compiles and finalizes digests for a run date.
type Assembler interface {
	Run(ctx context.Context, date time.Time) (digest.Summary, error)
	Synthesize(ctx context.Context, date time.Time, synth digest.Synthesizer) (int, error)
	Publish(ctx context.Context, date time.Time, pub digest.Publisher) (int, error)
}

// Options select what a run does.
type Options struct {
	Phases []Phase
	DryRun bool
	// Limit caps how many episodes the transcribe and score phases each pick
	// up. Zero means no cap.
	Limit int
	// ChunkLimit caps chunks per episode during transcription. Zero means no
	// cap.
	ChunkLimit int
	// RunDate is the digest date; zero means today.
	RunDate time.Time
}

// PhaseResult tallies one phase of a run.
type PhaseResult struct {
	Phase     Phase
	Processed int
	Failed    int
	Failures  []string
}

// Summary is the run report.
type Summary struct {
	RunID        string
	DryRun       bool
	Phases       []PhaseResult
	StatusCounts map[catalog.Status]int
}

// Failed reports whether any phase recorded a failure.
func (s *Summary) Failed() bool {
	for _, phase := range s.Phases {
		if phase.Failed > 0 {
			return true
		}
	}
	return false
}

// ErrRunLocked is returned when another run holds the run lock.
var ErrRunLocked = errors.New("another run is already in progress")

// Runner executes pipeline runs against one catalog store.
type Runner struct {
	store       *catalog.Store
	cfg         *config.Config
	discoverer  Discoverer
	transcriber Transcriber
	scorer      EpisodeScorer
	assembler   Assembler
	synthesizer digest.Synthesizer
	publisher   digest.Publisher
	topics      []catalog.Topic
	logger      *slog.Logger
}

// Deps wires the runner's collaborators. Synthesizer and Publisher may be
// nil, in which case their phases report nothing to do.
type Deps struct {
	Store       *catalog.Store
	Config      *config.Config
	Discoverer  Discoverer
	Transcriber Transcriber
	Scorer      EpisodeScorer
	Assembler   Assembler
	Synthesizer digest.Synthesizer
	Publisher   digest.Publisher
	Topics      []catalog.Topic
	Logger      *slog.Logger
}

// New constructs a Runner.
func New(deps Deps) *Runner {
	return &Runner{
		store:       deps.Store,
		cfg:         deps.Config,
		discoverer:  deps.Discoverer,
		transcriber: deps.Transcriber,
		scorer:      deps.Scorer,
		assembler:   deps.Assembler,
		synthesizer: deps.Synthesizer,
		publisher:   deps.Publisher,
		topics:      deps.Topics,
		logger:      deps.Logger,
	}
}

// Run executes the selected phases in canonical order under the run lock.
// Individual episode failures are tallied and never stop the run; illegal
// transitions and store errors abort it with phase context.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	lock := flock.New(r.cfg.Paths.RunLockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, ErrRunLocked
	}
	defer func() { _ = lock.Unlock() }()

	phases := opts.Phases
	if len(phases) == 0 {
		phases = AllPhases()
	}
	runDate := opts.RunDate
	if runDate.IsZero() {
		runDate = time.Now().UTC()
	}

	summary := &Summary{
		RunID:  uuid.NewString(),
		DryRun: opts.DryRun,
	}
	logger := logging.NewComponentLogger(r.logger, "pipeline").With(
		logging.String(logging.FieldRunID, summary.RunID),
	)
	logger.Info("run started",
		logging.Int("phase_count", len(phases)),
		logging.Bool("dry_run", opts.DryRun),
	)

	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		phaseLogger := logger.With(logging.String(logging.FieldPhase, string(phase)))
		result, err := r.runPhase(ctx, phase, opts, runDate, phaseLogger)
		summary.Phases = append(summary.Phases, result)
		if err != nil {
			return summary, fmt.Errorf("phase %s: %w", phase, err)
		}
		phaseLogger.Info("phase finished",
			logging.Int("processed", result.Processed),
			logging.Int("failed", result.Failed),
		)
	}

	counts, err := r.store.Stats(ctx)
	if err != nil {
		return summary, err
	}
	summary.StatusCounts = counts

	logger.Info("run finished",
		logging.Bool("had_failures", summary.Failed()),
	)
	return summary, nil
}

func (r *Runner) runPhase(ctx context.Context, phase Phase, opts Options, runDate time.Time, logger *slog.Logger) (PhaseResult, error) {
	switch phase {
	case PhaseDiscover:
		return r.runDiscover(ctx, opts, logger)
	case PhaseTranscribe:
		return r.runTranscribe(ctx, opts, logger)
	case PhaseScore:
		return r.runScore(ctx, opts, logger)
	case PhaseDigest:
		return r.runDigest(ctx, opts, runDate, logger)
	case PhaseSynthesize:
		return r.runSynthesize(ctx, opts, runDate, logger)
	case PhasePublish:
		return r.runPublish(ctx, opts, runDate, logger)
	default:
		return PhaseResult{Phase: phase}, fmt.Errorf("unknown phase %q", phase)
	}
}

func (r *Runner) runDiscover(ctx context.Context, opts Options, logger *slog.Logger) (PhaseResult, error) {
	result := PhaseResult{Phase: PhaseDiscover}
	if opts.DryRun {
		logger.Info("dry run: would check subscribed feeds")
		return result, nil
	}

	summary, err := r.discoverer.Run(ctx)
	result.Processed = summary.FeedsChecked
	result.Failed = summary.FeedsFailed
	if err != nil {
		return result, err
	}
	logger.Info("discovery complete",
		logging.Int("feeds_checked", summary.FeedsChecked),
		logging.Int("episodes_new", summary.EpisodesNew),
		logging.Int("feeds_deactivated", summary.FeedsDeactivated),
	)
	return result, nil
}

func (r *Runner) runTranscribe(ctx context.Context, opts Options, logger *slog.Logger) (PhaseResult, error) {
	result := PhaseResult{Phase: PhaseTranscribe}
	episodes, err := r.store.ListEpisodes(ctx, opts.Limit, catalog.StatusPending, catalog.StatusTranscribing)
	if err != nil {
		return result, err
	}
	if opts.DryRun {
		logger.Info("dry run: episodes awaiting transcription",
			logging.Int("count", len(episodes)),
		)
		return result, nil
	}

	for _, ep := range episodes {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		// An episode stuck in transcribing from an interrupted run restarts
		// from scratch.
		if ep.Status == catalog.StatusTranscribing {
			ep.Status = catalog.StatusPending
			if err := r.store.RestartTranscription(ctx, ep.ID); err != nil {
				return result, err
			}
		}

		err := r.transcriber.Process(ctx, ep, opts.ChunkLimit)
		if errors.Is(err, catalog.ErrConcurrencyConflict) {
			err = r.retryConflicted(ctx, ep.ID, catalog.StatusPending, func(fresh *catalog.Episode) error {
				return r.transcriber.Process(ctx, fresh, opts.ChunkLimit)
			})
		}
		if err != nil {
			if abortErr := classifyEpisodeError(err, ep.ID); abortErr != nil {
				return result, abortErr
			}
			result.Failed++
			result.Failures = append(result.Failures, fmt.Sprintf("episode %d: %v", ep.ID, err))
			continue
		}
		result.Processed++
	}
	return result, nil
}

func (r *Runner) runScore(ctx context.Context, opts Options, logger *slog.Logger) (PhaseResult, error) {
	result := PhaseResult{Phase: PhaseScore}
	episodes, err := r.store.ListEpisodes(ctx, opts.Limit, catalog.StatusTranscribed)
	if err != nil {
		return result, err
	}
	if opts.DryRun {
		logger.Info("dry run: episodes awaiting scoring",
			logging.Int("count", len(episodes)),
		)
		return result, nil
	}

	workers := r.cfg.Scoring.WorkerCount
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, ep := range episodes {
		ep := ep
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			err := r.scorer.Process(groupCtx, ep)
			if errors.Is(err, catalog.ErrConcurrencyConflict) {
				err = r.retryConflicted(groupCtx, ep.ID, catalog.StatusTranscribed, func(fresh *catalog.Episode) error {
					return r.scorer.Process(groupCtx, fresh)
				})
			}
			if err != nil {
				if abortErr := classifyEpisodeError(err, ep.ID); abortErr != nil {
					return abortErr
				}
				mu.Lock()
				result.Failed++
				result.Failures = append(result.Failures, fmt.Sprintf("episode %d: %v", ep.ID, err))
				mu.Unlock()
				return nil
			}
			mu.Lock()
			result.Processed++
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func (r *Runner) runDigest(ctx context.Context, opts Options, runDate time.Time, logger *slog.Logger) (PhaseResult, error) {
	result := PhaseResult{Phase: PhaseDigest}
	if opts.DryRun {
		since := runDate.UTC().AddDate(0, 0, -r.cfg.Digest.LookbackDays)
		for _, topic := range r.topics {
			if !topic.Active {
				continue
			}
			episodes, err := r.store.QualifyingEpisodes(ctx, catalog.SelectionQuery{
				Topic:     topic.Name,
				Threshold: topic.Threshold,
				Since:     since,
				Limit:     r.cfg.Digest.MaxEpisodes,
			})
			if err != nil {
				return result, err
			}
			logger.Info("dry run: qualifying episodes",
				logging.String(logging.FieldTopic, topic.Name),
				logging.Int("count", len(episodes)),
			)
		}
		return result, nil
	}

	summary, err := r.assembler.Run(ctx, runDate)
	result.Processed = summary.DigestsCreated
	if err != nil {
		return result, err
	}
	return result, nil
}

func (r *Runner) runSynthesize(ctx context.Context, opts Options, runDate time.Time, logger *slog.Logger) (PhaseResult, error) {
	result := PhaseResult{Phase: PhaseSynthesize}
	if r.synthesizer == nil {
		logger.Debug("no synthesizer configured, skipping")
		return result, nil
	}
	if opts.DryRun {
		logger.Info("dry run: would synthesize digest audio")
		return result, nil
	}
	done, err := r.assembler.Synthesize(ctx, runDate, r.synthesizer)
	result.Processed = done
	return result, err
}

func (r *Runner) runPublish(ctx context.Context, opts Options, runDate time.Time, logger *slog.Logger) (PhaseResult, error) {
	result := PhaseResult{Phase: PhasePublish}
	if r.publisher == nil {
		logger.Debug("no publisher configured, skipping")
		return result, nil
	}
	if opts.DryRun {
		logger.Info("dry run: would publish digests")
		return result, nil
	}
	done, err := r.assembler.Publish(ctx, runDate, r.publisher)
	result.Processed = done
	return result, err
}

// retryConflicted re-reads an episode whose first attempt lost a status race
// and runs the phase once more. A row another writer already moved past the
// phase's input status needs nothing further.
func (r *Runner) retryConflicted(ctx context.Context, id int64, want catalog.Status, process func(*catalog.Episode) error) error {
	fresh, err := r.store.GetEpisodeByID(ctx, id)
	if err != nil {
		return err
	}
	if fresh.Status != want {
		return nil
	}
	return process(fresh)
}

// classifyEpisodeError separates per-episode failures, which the run absorbs,
// from bugs and store corruption, which abort it. A concurrency conflict
// reaching this point already survived the single retry and is fatal.
func classifyEpisodeError(err error, episodeID int64) error {
	if errors.Is(err, catalog.ErrIllegalTransition) {
		return fmt.Errorf("episode %d: %w", episodeID, err)
	}
	if errors.Is(err, catalog.ErrConcurrencyConflict) {
		return fmt.Errorf("episode %d: persistent status conflict: %w", episodeID, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
