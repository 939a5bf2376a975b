// Package orchestrator schedules the aggregation pipeline: it drives each
// pool source on its own cadence with per-source backoff, supervises the CEX
// feed, runs the detection cycle, and is the only component that schedules
// work. Everything else is reactive.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dexradar/internal/broadcast"
	"dexradar/internal/detector"
	"dexradar/internal/domain"
	"dexradar/internal/filter"
	"dexradar/internal/observability"
	"dexradar/internal/registry"
	"dexradar/internal/storage"
)

// poolUpdateChunk bounds the pool count per broadcast event so a large
// registry doesn't produce oversized frames.
const poolUpdateChunk = 50

// ReferenceFeed is the CEX price stream the detection cycle reads from.
type ReferenceFeed interface {
	FreshPrices(maxAge time.Duration) []domain.ReferencePrice
	Healthy(maxAge time.Duration) bool
}

// SourceSpec pairs a pool source with its polling parameters.
type SourceSpec struct {
	Source     domain.PoolSource
	Interval   time.Duration
	BackoffMax time.Duration
}

// Config configures the orchestrator.
type Config struct {
	CycleInterval  time.Duration
	RegistryMaxAge time.Duration
	FeedMaxAge     time.Duration
}

// sourceState tracks one source's scheduling and health.
type sourceState struct {
	spec SourceSpec

	mu          sync.Mutex
	delay       time.Duration
	succeeded   bool
	lastSuccess time.Time
	lastError   string
	fetches     uint64
	failures    uint64
	poolsMerged uint64
}

// SourceStatus is a point-in-time health view of one source, exposed through
// the stats and health endpoints.
type SourceStatus struct {
	Name        string    `json:"name"`
	Succeeded   bool      `json:"succeeded"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Fetches     uint64    `json:"fetches"`
	Failures    uint64    `json:"failures"`
	PoolsMerged uint64    `json:"pools_merged"`
}

// Orchestrator owns the pipeline heartbeat.
type Orchestrator struct {
	cfg      Config
	sources  []*sourceState
	universe []domain.Token
	reg      *registry.Registry
	filt     *filter.Filter
	det      *detector.Detector
	feed     ReferenceFeed
	bc       *broadcast.Broadcaster
	store    *storage.SnapshotWriter
	metrics  *observability.Metrics
	logger   *slog.Logger

	clock func() time.Time
}

// New creates an Orchestrator. store may be nil when local snapshots are
// disabled.
func New(
	cfg Config,
	specs []SourceSpec,
	universe []domain.Token,
	reg *registry.Registry,
	filt *filter.Filter,
	det *detector.Detector,
	refFeed ReferenceFeed,
	bc *broadcast.Broadcaster,
	store *storage.SnapshotWriter,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	states := make([]*sourceState, 0, len(specs))
	for _, spec := range specs {
		states = append(states, &sourceState{spec: spec, delay: spec.Interval})
	}
	return &Orchestrator{
		cfg:      cfg,
		sources:  states,
		universe: universe,
		reg:      reg,
		filt:     filt,
		det:      det,
		feed:     refFeed,
		bc:       bc,
		store:    store,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "orchestrator")),
		clock:    time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (o *Orchestrator) SetClock(clock func() time.Time) { o.clock = clock }

// Run starts one goroutine per source plus the detection cycle loop, and
// blocks until ctx is cancelled. Source failures never propagate: they are
// absorbed into per-source backoff.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting",
		slog.Int("sources", len(o.sources)),
		slog.Duration("cycle_interval", o.cfg.CycleInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	for _, st := range o.sources {
		g.Go(func() error {
			o.sourceLoop(ctx, st)
			return nil
		})
	}

	g.Go(func() error {
		o.cycleLoop(ctx)
		return nil
	})

	err := g.Wait()
	o.logger.Info("orchestrator stopped")
	if err != nil {
		return err
	}
	return ctx.Err()
}

// sourceLoop polls one source forever. The first fetch happens immediately;
// afterwards the wait doubles on failure up to the source's backoff cap and
// snaps back to the configured interval on success.
func (o *Orchestrator) sourceLoop(ctx context.Context, st *sourceState) {
	name := st.spec.Source.Name()
	logger := o.logger.With(slog.String("source", name))

	for {
		o.pollOnce(ctx, st, logger)

		st.mu.Lock()
		wait := st.delay
		st.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// pollOnce runs a single fetch-filter-merge step for one source.
func (o *Orchestrator) pollOnce(ctx context.Context, st *sourceState, logger *slog.Logger) {
	name := st.spec.Source.Name()
	if o.metrics != nil {
		o.metrics.FetchAttempts.WithLabelValues(name).Inc()
	}

	records, err := st.spec.Source.Fetch(ctx, o.universe)
	if err != nil {
		st.mu.Lock()
		st.fetches++
		st.failures++
		st.lastError = err.Error()
		st.delay = st.delay * 2
		if st.delay > st.spec.BackoffMax {
			st.delay = st.spec.BackoffMax
		}
		wait := st.delay
		st.mu.Unlock()

		if o.metrics != nil {
			o.metrics.FetchFailures.WithLabelValues(name, fetchKind(err)).Inc()
		}
		logger.Warn("fetch failed, backing off",
			slog.String("kind", fetchKind(err)),
			slog.Duration("next_attempt_in", wait),
			slog.String("error", err.Error()),
		)
		return
	}

	merged := o.reg.Upsert(records, o.filt)
	if o.metrics != nil {
		o.metrics.PoolsUpserted.Add(float64(merged))
	}

	st.mu.Lock()
	st.fetches++
	st.succeeded = true
	st.lastSuccess = o.clock()
	st.lastError = ""
	st.delay = st.spec.Interval
	st.poolsMerged += uint64(merged)
	st.mu.Unlock()

	logger.Debug("fetch complete",
		slog.Int("records", len(records)),
		slog.Int("merged", merged),
	)
}

// cycleLoop runs the detection pass on a fixed heartbeat. Each pass works on
// exactly one registry snapshot, so it never mixes pool data from two
// different points in time.
func (o *Orchestrator) cycleLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runCycle()
		}
	}
}

// runCycle executes one detection cycle: stale marking, snapshot, scan,
// broadcast, optional local snapshot persistence.
func (o *Orchestrator) runCycle() {
	now := o.clock()
	o.reg.MarkStale(now, o.cfg.RegistryMaxAge)

	admitted := o.reg.Snapshot(registry.AdmittedOnly, "")
	refs := o.feed.FreshPrices(o.cfg.FeedMaxAge)
	opps := o.det.Scan(admitted, refs, now)

	for _, opp := range opps {
		if o.metrics != nil {
			o.metrics.Opportunities.WithLabelValues(string(opp.Kind)).Inc()
		}
	}
	if len(opps) > 0 {
		o.bc.Publish(domain.Event{Type: domain.EventArbAlert, Payload: opps})
		o.logger.Info("opportunities detected", slog.Int("count", len(opps)))
	}

	all := o.reg.Snapshot(registry.All, "")
	for i := 0; i < len(all); i += poolUpdateChunk {
		end := min(i+poolUpdateChunk, len(all))
		o.bc.Publish(domain.Event{Type: domain.EventPoolUpdate, Payload: all[i:end]})
	}

	if o.store != nil {
		if err := o.store.Append(now, all); err != nil {
			o.logger.Warn("snapshot write failed", slog.String("error", err.Error()))
		}
	}
}

// TriggerFullRefresh forces one round across every source, waits for all of
// them, and returns the resulting full snapshot. Individual source failures
// leave their cached pools in place, consistent with the polling path.
func (o *Orchestrator) TriggerFullRefresh(ctx context.Context) []domain.Pool {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(len(o.sources))

	for _, st := range o.sources {
		g.Go(func() error {
			o.pollOnce(ctx, st, o.logger.With(slog.String("source", st.spec.Source.Name())))
			return nil
		})
	}
	_ = g.Wait()

	o.reg.MarkStale(o.clock(), o.cfg.RegistryMaxAge)
	return o.reg.Snapshot(registry.All, "")
}

// Ready reports whether every source has completed at least one successful
// cycle and the feed connection is active or recently active.
func (o *Orchestrator) Ready() bool {
	for _, st := range o.sources {
		st.mu.Lock()
		ok := st.succeeded
		st.mu.Unlock()
		if !ok {
			return false
		}
	}
	return o.feed.Healthy(o.cfg.FeedMaxAge)
}

// Status returns a per-source health view.
func (o *Orchestrator) Status() []SourceStatus {
	out := make([]SourceStatus, 0, len(o.sources))
	for _, st := range o.sources {
		st.mu.Lock()
		out = append(out, SourceStatus{
			Name:        st.spec.Source.Name(),
			Succeeded:   st.succeeded,
			LastSuccess: st.lastSuccess,
			LastError:   st.lastError,
			Fetches:     st.fetches,
			Failures:    st.failures,
			PoolsMerged: st.poolsMerged,
		})
		st.mu.Unlock()
	}
	return out
}

// fetchKind maps a fetch error to its taxonomy label.
func fetchKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrInvalidResponse):
		return "invalid_response"
	default:
		return "unreachable"
	}
}
