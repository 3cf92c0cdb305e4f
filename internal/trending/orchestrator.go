package trending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"trendradar/internal/metrics"
)

// ErrNoClusters is returned when the fast pass produced nothing worth persisting.
var ErrNoClusters = errors.New("trending: no topics built")

var errSuperseded = errors.New("trending: refinement superseded")

// Phase is the lifecycle state of the current refresh cycle.
type Phase string

const (
	PhaseEmpty   Phase = "empty"
	PhaseFast    Phase = "fast"
	PhaseRefined Phase = "refined"
)

// CandidateSource produces the ranked candidate pool for a refresh.
type CandidateSource interface {
	Fetch(ctx context.Context) ([]CandidatePost, error)
}

// RefreshResult describes the snapshot persisted by the synchronous phase.
type RefreshResult struct {
	Topics   int       `json:"topics"`
	Posts    int       `json:"posts"`
	CachedAt time.Time `json:"cached_at"`
	Refining bool      `json:"refining"`
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Phase        Phase     `json:"phase"`
	Refining     bool      `json:"refining"`
	LastRefresh  time.Time `json:"last_refresh,omitempty"`
	LastSnapshot time.Time `json:"last_snapshot,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// OrchestratorConfig wires the collaborators of an Orchestrator.
type OrchestratorConfig struct {
	Source   CandidateSource
	Fast     ClusterEngine
	Refiner  ClusterEngine
	Builder  SnapshotBuilder
	Sink     Sink
	CacheTTL time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Orchestrator runs the two-phase refresh: a synchronous heuristic snapshot followed by a
// cancellable background LLM refinement.
type Orchestrator struct {
	source   CandidateSource
	fast     ClusterEngine
	refiner  ClusterEngine
	builder  SnapshotBuilder
	sink     Sink
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	group   singleflight.Group

	mu           sync.Mutex
	refineCancel context.CancelFunc
	refineSeq    uint64
	refineWG     sync.WaitGroup
	lastStamp    time.Time
	status       Status

	persistMu     sync.Mutex
	lastPersisted time.Time
}

// NewOrchestrator validates the configuration and returns a ready orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, errors.New("orchestrator requires a candidate source")
	}
	if cfg.Sink == nil {
		return nil, errors.New("orchestrator requires a sink")
	}
	if cfg.Fast == nil {
		cfg.Fast = NewHeuristicClusterer(cfg.Builder.MaxTopics, 8)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 120 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		source:   cfg.Source,
		fast:     cfg.Fast,
		refiner:  cfg.Refiner,
		builder:  cfg.Builder,
		sink:     cfg.Sink,
		cacheTTL: cfg.CacheTTL,
		logger:   cfg.Logger,
		now:      cfg.Now,
		baseCtx:  ctx,
		stop:     stop,
		status:   Status{Phase: PhaseEmpty},
	}, nil
}

// Refresh runs the fast phase and schedules refinement. Concurrent callers share one run.
func (o *Orchestrator) Refresh(ctx context.Context) (RefreshResult, error) {
	v, err, _ := o.group.Do("refresh", func() (any, error) {
		return o.refresh(ctx)
	})
	if err != nil {
		return RefreshResult{}, err
	}
	return v.(RefreshResult), nil
}

// RefreshIfStale refreshes only when the persisted snapshot is missing or older than the TTL.
func (o *Orchestrator) RefreshIfStale(ctx context.Context) (RefreshResult, bool, error) {
	stale, err := o.IsStale(ctx)
	if err != nil {
		return RefreshResult{}, false, err
	}
	if !stale {
		return RefreshResult{}, false, nil
	}
	res, err := o.Refresh(ctx)
	return res, true, err
}

// IsStale reports whether the persisted snapshot is missing or older than the cache TTL.
func (o *Orchestrator) IsStale(ctx context.Context) (bool, error) {
	latest, ok, err := o.sink.LatestCachedAt(ctx)
	if err != nil {
		return false, fmt.Errorf("staleness check: %w", err)
	}
	if !ok {
		return true, nil
	}
	return o.now().Sub(latest) > o.cacheTTL, nil
}

// Status returns the current lifecycle state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.status
	st.Refining = o.refineCancel != nil
	return st
}

// Wait blocks until the in-flight refinement, if any, has finished.
func (o *Orchestrator) Wait() {
	o.refineWG.Wait()
}

// Close cancels any pending refinement and waits for it to stop.
func (o *Orchestrator) Close() {
	o.stop()
	o.refineWG.Wait()
}

func (o *Orchestrator) refresh(ctx context.Context) (RefreshResult, error) {
	started := time.Now()

	posts, err := o.source.Fetch(ctx)
	if err != nil {
		return o.failFast(started, fmt.Errorf("fetch: %w", err))
	}

	clusters, err := o.fast.BuildClusters(ctx, posts)
	if err != nil {
		return o.failFast(started, fmt.Errorf("cluster: %w", err))
	}

	snap, err := o.persist(ctx, posts, clusters, nil)
	if errors.Is(err, ErrNoClusters) {
		return o.failFast(started, ErrNoClusters)
	}
	if err != nil {
		return o.failFast(started, fmt.Errorf("persist: %w", err))
	}

	o.mu.Lock()
	if snap.CachedAt.After(o.status.LastSnapshot) {
		o.status.Phase = PhaseFast
		o.status.LastSnapshot = snap.CachedAt
	}
	o.status.LastRefresh = o.now().UTC()
	o.status.LastError = ""
	o.mu.Unlock()

	metrics.RecordPhase(string(PhaseFast), "ok", time.Since(started).Seconds())
	metrics.SetSnapshot(string(PhaseFast), len(snap.Topics))
	o.logger.Info().
		Str("phase", string(PhaseFast)).
		Int("topics", len(snap.Topics)).
		Int("posts", len(snap.Posts)).
		Int("reused_posts", snap.ReusedPosts).
		Msg("snapshot persisted")

	refining := o.startRefine(posts)
	return RefreshResult{
		Topics:   len(snap.Topics),
		Posts:    len(snap.Posts),
		CachedAt: snap.CachedAt,
		Refining: refining,
	}, nil
}

func (o *Orchestrator) failFast(started time.Time, err error) (RefreshResult, error) {
	metrics.RecordPhase(string(PhaseFast), "failed", time.Since(started).Seconds())
	o.mu.Lock()
	o.status.LastRefresh = o.now().UTC()
	o.status.LastError = err.Error()
	o.mu.Unlock()
	o.logger.Error().Err(err).Str("phase", string(PhaseFast)).Msg("refresh failed")
	return RefreshResult{}, err
}

func (o *Orchestrator) startRefine(posts []CandidatePost) bool {
	if o.refiner == nil {
		return false
	}

	o.mu.Lock()
	if o.baseCtx.Err() != nil {
		o.mu.Unlock()
		return false
	}
	if o.refineCancel != nil {
		o.refineCancel()
	}
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.refineCancel = cancel
	o.refineSeq++
	seq := o.refineSeq
	o.refineWG.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.refineWG.Done()
		defer o.finishRefine(seq, cancel)
		o.refine(ctx, posts)
	}()
	return true
}

func (o *Orchestrator) finishRefine(seq uint64, cancel context.CancelFunc) {
	o.mu.Lock()
	if o.refineSeq == seq {
		o.refineCancel = nil
	}
	o.mu.Unlock()
	cancel()
}

func (o *Orchestrator) refine(ctx context.Context, posts []CandidatePost) {
	started := time.Now()
	log := o.logger.With().Str("phase", string(PhaseRefined)).Logger()

	clusters, err := o.refiner.BuildClusters(ctx, posts)
	if ctx.Err() != nil {
		metrics.RecordPhase(string(PhaseRefined), "cancelled", time.Since(started).Seconds())
		log.Debug().Msg("refinement cancelled")
		return
	}
	if err != nil || len(clusters) == 0 {
		metrics.RecordPhase(string(PhaseRefined), "skipped", time.Since(started).Seconds())
		log.Info().Err(err).Msg("refinement produced no clusters, keeping fast snapshot")
		return
	}

	snap, err := o.persist(ctx, posts, clusters, ctx)
	if errors.Is(err, ErrNoClusters) {
		metrics.RecordPhase(string(PhaseRefined), "skipped", time.Since(started).Seconds())
		return
	}
	if err != nil {
		status := "failed"
		if errors.Is(err, errSuperseded) || ctx.Err() != nil {
			status = "cancelled"
		}
		metrics.RecordPhase(string(PhaseRefined), status, time.Since(started).Seconds())
		log.Warn().Err(err).Msg("refined snapshot not persisted")
		return
	}

	o.mu.Lock()
	if snap.CachedAt.After(o.status.LastSnapshot) {
		o.status.Phase = PhaseRefined
		o.status.LastSnapshot = snap.CachedAt
	}
	o.mu.Unlock()

	metrics.RecordPhase(string(PhaseRefined), "ok", time.Since(started).Seconds())
	metrics.SetSnapshot(string(PhaseRefined), len(snap.Topics))
	log.Info().Int("topics", len(snap.Topics)).Int("posts", len(snap.Posts)).Msg("snapshot persisted")
}

// persist stamps, builds and writes a snapshot under the single-writer lock, so stamp order
// matches write order. A refinement (guard set) is skipped once its guard is cancelled. A
// successful fast write (guard nil) supersedes whichever refinement is still running.
func (o *Orchestrator) persist(ctx context.Context, posts []CandidatePost, clusters []TopicCluster, guard context.Context) (*Snapshot, error) {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	if guard != nil && guard.Err() != nil {
		return nil, errSuperseded
	}
	snap := o.builder.Build(posts, clusters, o.nextStamp())
	if snap == nil {
		return nil, ErrNoClusters
	}
	if !snap.CachedAt.After(o.lastPersisted) {
		return nil, errSuperseded
	}

	var err error
	if tx, ok := o.sink.(Transactor); ok {
		err = tx.InTx(ctx, func(s Sink) error { return writeSnapshot(ctx, s, snap) })
	} else {
		err = writeSnapshot(ctx, o.sink, snap)
	}
	if err != nil {
		return nil, err
	}
	o.lastPersisted = snap.CachedAt

	if guard == nil {
		o.mu.Lock()
		if o.refineCancel != nil {
			o.refineCancel()
			o.refineCancel = nil
		}
		o.mu.Unlock()
	}
	return snap, nil
}

// nextStamp returns a millisecond-precision UTC timestamp strictly after every earlier stamp.
func (o *Orchestrator) nextStamp() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	ts := o.now().UTC().Truncate(time.Millisecond)
	if !ts.After(o.lastStamp) {
		ts = o.lastStamp.Add(time.Millisecond)
	}
	o.lastStamp = ts
	return ts
}
