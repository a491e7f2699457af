// Package pool provides the Axion session pool: a bounded, dynamically
// sized collection of backend sessions with LIFO reuse, session-state
// tagging, connection-class partitioning and dead-connection detection.
//
// # Overview
//
// A Pool owns every session it opens. Callers check sessions out with
// Acquire and hand them back with Release or Drop; the pool keeps idle
// sessions in most-recently-released-first order so that repeated
// acquisitions of the same connection class keep hitting the same warm
// backend session.
//
// # Basic Usage
//
//	p, err := pool.New(ctx, pool.Options{
//	    Backend: memdb.New(),
//	    Config:  cfg,
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Close(ctx, true)
//
//	s, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer p.Release(ctx, s)
//
//	res, err := s.Execute(ctx, "select user from dual")
//
// # Concurrency
//
// All pool operations are safe for concurrent use. A session, once
// checked out, is owned exclusively by the acquiring goroutine until it
// is released or dropped; sharing a checked-out session between
// goroutines is undefined behavior.
package pool

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/axiondb/axion/pkg/axionerrors"
	"github.com/axiondb/axion/pkg/config"
	"github.com/axiondb/axion/pkg/logger"
	"github.com/axiondb/axion/pkg/session"
)

// janitorInterval is how often the background reclaim pass runs.
const janitorInterval = 30 * time.Second

// Pool manages a bounded set of backend sessions. Create one with New.
type Pool struct {
	factory  *session.Factory
	callback session.Callback
	log      *zap.Logger
	metrics  *collector
	tracer   trace.Tracer

	poolCreds session.Credentials
	closeCh   chan struct{}

	// mu serializes every mutation of the counters, the idle registry
	// and the waiter queue. It is never held across a backend call.
	mu          sync.Mutex
	cfg         config.PoolConfig
	idle        *idleRegistry
	busy        map[*session.Session]struct{}
	opened      int
	shardCounts map[string]int
	waiters     *list.List // of chan struct{}, FIFO
	closed      bool
}

// New creates a pool and synchronously opens Min backend sessions. The
// returned pool is ready for concurrent use. Creation fails if the
// configuration is invalid or any of the initial sessions cannot be
// opened.
func New(ctx context.Context, opts Options) (*Pool, error) {
	if opts.Backend == nil {
		return nil, axionerrors.Driverf(axionerrors.ErrInvalidPoolParams,
			"a backend is required")
	}

	cfg := opts.Config
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = config.DefaultWaitTimeout
	}
	if cfg.StmtCacheSize == 0 {
		cfg.StmtCacheSize = config.DefaultStmtCacheSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = generatePoolName()
	}

	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}
	log = log.With(
		zap.String("component", "session_pool"),
		zap.String("pool_name", cfg.Name))

	p := &Pool{
		factory:     session.NewFactory(opts.Backend, cfg.DSN, log),
		callback:    opts.SessionCallback,
		log:         log,
		metrics:     newCollector(cfg.Name),
		tracer:      otel.Tracer("github.com/axiondb/axion/pkg/pool"),
		poolCreds:   session.NewCredentials(cfg.User, cfg.Password),
		closeCh:     make(chan struct{}),
		cfg:         cfg,
		idle:        newIdleRegistry(cfg.Max),
		busy:        make(map[*session.Session]struct{}),
		shardCounts: make(map[string]int),
		waiters:     list.New(),
	}

	if err := p.warmUp(ctx); err != nil {
		return nil, err
	}

	go p.janitor()

	log.Info("pool created",
		zap.Int("min", cfg.Min),
		zap.Int("max", cfg.Max),
		zap.Int("increment", cfg.Increment),
		zap.Stringer("getmode", cfg.GetMode))
	return p, nil
}

// warmUp opens the initial Min sessions in parallel.
func (p *Pool) warmUp(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Min; i++ {
		g.Go(func() error {
			s, err := p.factory.Create(gctx, p.poolCreds, "", "", p.cfg.StmtCacheSize)
			if err != nil {
				return err
			}
			p.mu.Lock()
			p.idle.push(s)
			p.opened++
			p.shardCounts[""]++
			p.updateGaugesLocked()
			p.mu.Unlock()
			p.metrics.created.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Tear down whatever opened before the failure.
		p.mu.Lock()
		drained := p.idle.drain()
		p.opened = 0
		p.mu.Unlock()
		for _, e := range drained {
			_ = p.factory.Destroy(ctx, e.sess)
		}
		return err
	}
	return nil
}

// Acquire checks a session out of the pool, creating one when no idle
// session matches and the pool is below Max. At capacity the behavior
// follows the configured GetMode: WAIT blocks, NOWAIT fails immediately
// and TIMEDWAIT fails after WaitTimeout. Context cancellation unblocks a
// waiting Acquire with the context's error.
func (p *Pool) Acquire(ctx context.Context, opts ...AcquireOption) (*session.Session, error) {
	start := time.Now()
	req := acquireRequest{}
	for _, opt := range opts {
		opt(&req)
	}

	ctx, span := p.tracer.Start(ctx, "pool.Acquire", trace.WithAttributes(
		attribute.String("pool.name", p.Name()),
		attribute.String("pool.cclass", req.cclass),
		attribute.String("pool.tag", req.tag)))
	defer span.End()

	s, result, err := p.acquire(ctx, req, start)
	p.metrics.observeAcquire(result, start)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("pool.session_id", s.ID()))
	return s, nil
}

func (p *Pool) acquire(ctx context.Context, req acquireRequest, start time.Time) (*session.Session, string, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, resultClosed, axionerrors.Driver(axionerrors.ErrPoolClosed)
	}
	creds := p.poolCreds
	if req.hasCreds {
		if p.cfg.Homogeneous {
			p.mu.Unlock()
			return nil, resultError,
				axionerrors.Driver(axionerrors.ErrCredentialsNotAllowed)
		}
		creds = session.NewCredentials(req.user, req.password)
	}
	p.mu.Unlock()

	spec := matchSpec{
		credsKey:    creds.Key(),
		cclass:      req.cclass,
		tag:         req.tag,
		matchAnyTag: req.matchAnyTag,
	}

	// Under TIMEDWAIT a single timer bounds the whole acquisition, not
	// each individual wait.
	var timer *time.Timer
	var timeoutC <-chan time.Time

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, resultClosed, axionerrors.Driver(axionerrors.ErrPoolClosed)
		}

		// Phase 1: reuse an idle session unless a fresh one is forced.
		if req.purity != PurityNew {
			if e, ok, tagDiffers := p.idle.pop(spec); ok {
				p.busy[e.sess] = struct{}{}
				needPing := p.needsPingLocked(e)
				expired := p.expiredLocked(e.sess)
				p.updateGaugesLocked()
				p.mu.Unlock()

				s := e.sess
				if expired || !s.Healthy() || (needPing && s.Ping(ctx) != nil) {
					p.discard(ctx, s, "unhealthy")
					continue
				}
				if tagDiffers && p.callback != nil {
					if err := p.callback(ctx, s, req.tag); err != nil {
						p.discard(ctx, s, "callback_failed")
						return nil, resultError, err
					}
				}
				return s, resultReused, nil
			}
		}

		// Phase 2: grow the pool.
		if p.opened < p.cfg.Max && p.shardHasRoomLocked(req.shardKey) {
			p.opened++
			p.shardCounts[req.shardKey]++
			extras := p.growthExtrasLocked()
			cacheSize := p.cfg.StmtCacheSize
			p.mu.Unlock()

			s, err := p.factory.Create(ctx, creds, req.cclass, req.shardKey, cacheSize)
			if err != nil {
				p.mu.Lock()
				if !p.closed {
					p.opened--
					p.shardCounts[req.shardKey]--
					p.signalLocked()
					p.updateGaugesLocked()
				}
				p.mu.Unlock()
				return nil, resultError, err
			}
			p.metrics.created.Inc()

			p.mu.Lock()
			if p.closed {
				// The pool was force-closed while the factory was
				// connecting. Close already settled the counters, so
				// the loser of the race only destroys its session.
				p.mu.Unlock()
				_ = p.factory.Destroy(ctx, s)
				p.metrics.dropped.WithLabelValues("closed").Inc()
				return nil, resultClosed, axionerrors.Driver(axionerrors.ErrPoolClosed)
			}
			p.busy[s] = struct{}{}
			p.updateGaugesLocked()
			p.mu.Unlock()

			if p.callback != nil {
				if err := p.callback(ctx, s, req.tag); err != nil {
					p.discard(ctx, s, "callback_failed")
					return nil, resultError, err
				}
			}
			if extras > 0 {
				go p.growInBackground(creds, req.cclass, req.shardKey, cacheSize, extras)
			}
			return s, resultCreated, nil
		}

		// Phase 3: at capacity with idle sessions that cannot serve this
		// request (wrong cclass or credentials, or a fresh session was
		// forced). Evict the least recently used one to make room.
		if p.opened >= p.cfg.Max {
			if victim, ok := p.idle.evictOldest(); ok {
				p.opened--
				p.shardCounts[victim.sess.ShardKey()]--
				p.updateGaugesLocked()
				p.mu.Unlock()
				_ = p.factory.Destroy(ctx, victim.sess)
				p.metrics.dropped.WithLabelValues("evicted").Inc()
				continue
			}
		}

		// Phase 4: nothing available; follow the acquisition policy.
		mode := p.cfg.GetMode
		waitTimeout := p.cfg.WaitTimeout
		if mode == config.GetModeNoWait {
			p.mu.Unlock()
			return nil, resultExhausted, axionerrors.Driver(axionerrors.ErrPoolExhausted)
		}

		ch := make(chan struct{}, 1)
		el := p.waiters.PushBack(ch)
		p.mu.Unlock()

		if mode == config.GetModeTimedWait && timeoutC == nil {
			timer = time.NewTimer(waitTimeout)
			defer timer.Stop()
			timeoutC = timer.C
		}

		select {
		case <-ch:
			continue
		case <-p.closeCh:
			p.removeWaiter(el, ch)
			return nil, resultClosed, axionerrors.Driver(axionerrors.ErrPoolClosed)
		case <-timeoutC:
			p.removeWaiter(el, ch)
			return nil, resultExhausted, axionerrors.Driver(axionerrors.ErrPoolExhausted)
		case <-ctx.Done():
			p.removeWaiter(el, ch)
			return nil, resultError, ctx.Err()
		}
	}
}

// Release hands a session back to the pool. Uncommitted work is rolled
// back before the session returns to the top of the idle registry.
// Sessions that observed a connectivity error or outlived
// MaxLifetimeSession are destroyed instead of recycled.
func (p *Pool) Release(ctx context.Context, s *session.Session, opts ...ReleaseOption) error {
	req := releaseRequest{}
	for _, opt := range opts {
		opt(&req)
	}
	if req.hasTag {
		if err := validateTag(req.tag); err != nil {
			return err
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return axionerrors.Driver(axionerrors.ErrPoolClosed)
	}
	if _, ok := p.busy[s]; !ok {
		p.mu.Unlock()
		return axionerrors.Driver(axionerrors.ErrSessionNotOwned)
	}
	delete(p.busy, s)
	expired := p.expiredLocked(s)
	p.mu.Unlock()

	// Defensive rollback: callers must not rely on uncommitted work
	// surviving release.
	if s.Healthy() {
		_ = s.Rollback(ctx)
	}

	if !s.Healthy() || expired {
		reason := "unhealthy"
		if expired {
			reason = "max_lifetime"
		}
		p.mu.Lock()
		p.opened--
		p.shardCounts[s.ShardKey()]--
		p.signalLocked()
		p.updateGaugesLocked()
		p.mu.Unlock()
		_ = p.factory.Destroy(ctx, s)
		p.metrics.dropped.WithLabelValues(reason).Inc()
		return nil
	}

	if req.hasTag {
		s.SetTag(req.tag)
	}

	p.mu.Lock()
	p.idle.push(s)
	p.signalLocked()
	p.updateGaugesLocked()
	p.mu.Unlock()
	return nil
}

// Drop unconditionally destroys a checked-out session, shrinking the
// pool by one.
func (p *Pool) Drop(ctx context.Context, s *session.Session) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return axionerrors.Driver(axionerrors.ErrPoolClosed)
	}
	if _, ok := p.busy[s]; !ok {
		p.mu.Unlock()
		return axionerrors.Driver(axionerrors.ErrSessionNotOwned)
	}
	delete(p.busy, s)
	p.opened--
	p.shardCounts[s.ShardKey()]--
	p.signalLocked()
	p.updateGaugesLocked()
	p.mu.Unlock()

	_ = p.factory.Destroy(ctx, s)
	p.metrics.dropped.WithLabelValues("dropped").Inc()
	return nil
}

// Reconfigure atomically updates the named parameters; parameters not
// named keep their prior values. Sizing changes do not create or destroy
// sessions immediately; they take effect on subsequent acquire and
// reclaim cycles.
func (p *Pool) Reconfigure(opts ...ReconfigureOption) error {
	rc := reconfig{}
	for _, opt := range opts {
		opt(&rc)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return axionerrors.Driver(axionerrors.ErrPoolClosed)
	}

	updated := p.cfg
	if rc.min != nil {
		updated.Min = *rc.min
	}
	if rc.max != nil {
		updated.Max = *rc.max
	}
	if rc.increment != nil {
		updated.Increment = *rc.increment
	}
	if rc.getMode != nil {
		updated.GetMode = *rc.getMode
	}
	if rc.timeout != nil {
		updated.Timeout = *rc.timeout
	}
	if rc.waitTimeout != nil {
		updated.WaitTimeout = *rc.waitTimeout
	}
	if rc.maxLifetimeSession != nil {
		updated.MaxLifetimeSession = *rc.maxLifetimeSession
	}
	if rc.maxSessionsPerShard != nil {
		updated.MaxSessionsPerShard = *rc.maxSessionsPerShard
	}
	if rc.stmtCacheSize != nil {
		updated.StmtCacheSize = *rc.stmtCacheSize
	}
	if rc.pingInterval != nil {
		updated.PingInterval = *rc.pingInterval
	}
	if rc.sodaMetadataCache != nil {
		updated.SodaMetadataCache = *rc.sodaMetadataCache
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	p.cfg = updated
	return nil
}

// Close shuts the pool down. Without force it fails while sessions are
// checked out; with force it destroys idle and busy sessions alike and
// unblocks every goroutine waiting in Acquire with a closed-pool error.
func (p *Pool) Close(ctx context.Context, force bool) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return axionerrors.Driver(axionerrors.ErrPoolClosed)
	}
	if len(p.busy) > 0 && !force {
		p.mu.Unlock()
		return axionerrors.Driver(axionerrors.ErrPoolHasBusySessions)
	}
	p.closed = true
	close(p.closeCh)

	doomed := make([]*session.Session, 0, p.opened)
	for _, e := range p.idle.drain() {
		doomed = append(doomed, e.sess)
	}
	for s := range p.busy {
		doomed = append(doomed, s)
	}
	p.busy = make(map[*session.Session]struct{})
	p.opened = 0
	p.shardCounts = make(map[string]int)
	p.waiters.Init()
	p.metrics.setGauges(0, 0)
	p.mu.Unlock()

	for _, s := range doomed {
		_ = p.factory.Destroy(ctx, s)
	}
	p.log.Info("pool closed",
		zap.Bool("force", force),
		zap.Int("destroyed", len(doomed)))
	return nil
}

// Reclaim immediately destroys idle sessions that exceeded the idle
// timeout or the session lifetime bound. The janitor calls this
// periodically; it is exported for callers that want deterministic
// reclaim points.
func (p *Pool) Reclaim(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	expired := p.idle.reapExpired(p.cfg.Timeout, p.cfg.MaxLifetimeSession)
	p.opened -= len(expired)
	for _, e := range expired {
		p.shardCounts[e.sess.ShardKey()]--
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	for _, e := range expired {
		_ = p.factory.Destroy(ctx, e.sess)
		p.metrics.dropped.WithLabelValues("idle_timeout").Inc()
	}
	if len(expired) > 0 {
		p.log.Debug("reclaimed idle sessions", zap.Int("count", len(expired)))
	}
}

// janitor periodically reclaims expired idle sessions until the pool
// closes.
func (p *Pool) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Reclaim(context.Background())
		case <-p.closeCh:
			return
		}
	}
}

// growInBackground opens up to n additional idle sessions, honoring Max.
// Growth beyond the session handed to the caller is best-effort.
func (p *Pool) growInBackground(creds session.Credentials, cclass, shardKey string, cacheSize int, n int) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		p.mu.Lock()
		if p.closed || p.opened >= p.cfg.Max || !p.shardHasRoomLocked(shardKey) {
			p.mu.Unlock()
			return
		}
		p.opened++
		p.shardCounts[shardKey]++
		p.mu.Unlock()

		s, err := p.factory.Create(ctx, creds, cclass, shardKey, cacheSize)
		if err != nil {
			p.mu.Lock()
			if !p.closed {
				p.opened--
				p.shardCounts[shardKey]--
				p.updateGaugesLocked()
			}
			p.mu.Unlock()
			p.log.Warn("background session creation failed", zap.Error(err))
			return
		}
		p.metrics.created.Inc()

		p.mu.Lock()
		if p.closed {
			// Close already settled the counters.
			p.mu.Unlock()
			_ = p.factory.Destroy(ctx, s)
			return
		}
		p.idle.push(s)
		p.signalLocked()
		p.updateGaugesLocked()
		p.mu.Unlock()
	}
}

// discard destroys a checked-out session that failed validation or
// fixup, shrinking the pool and waking a waiter.
func (p *Pool) discard(ctx context.Context, s *session.Session, reason string) {
	p.mu.Lock()
	delete(p.busy, s)
	p.opened--
	p.shardCounts[s.ShardKey()]--
	p.signalLocked()
	p.updateGaugesLocked()
	p.mu.Unlock()
	_ = p.factory.Destroy(ctx, s)
	p.metrics.dropped.WithLabelValues(reason).Inc()
}

// signalLocked wakes the longest-waiting acquirer, if any. Must be called
// with mu held.
func (p *Pool) signalLocked() {
	if el := p.waiters.Front(); el != nil {
		p.waiters.Remove(el)
		el.Value.(chan struct{}) <- struct{}{}
	}
}

// removeWaiter unregisters a waiter that gave up. A signal that raced
// with the removal is passed on so it is not lost.
func (p *Pool) removeWaiter(el *list.Element, ch chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Remove is a no-op if signalLocked already took el off the list.
	p.waiters.Remove(el)
	select {
	case <-ch:
		p.signalLocked()
	default:
	}
}

// growthExtrasLocked returns how many sessions beyond the caller's to
// open for this growth event. Must be called with mu held.
func (p *Pool) growthExtrasLocked() int {
	extras := p.cfg.Increment - 1
	if extras <= 0 {
		return 0
	}
	if room := p.cfg.Max - p.opened; extras > room {
		extras = room
	}
	return extras
}

// needsPingLocked decides whether an idle session must be liveness
// checked before reuse. Must be called with mu held.
func (p *Pool) needsPingLocked(e idleEntry) bool {
	interval := p.cfg.PingInterval
	switch {
	case interval < 0:
		return false
	case interval == 0:
		return true
	default:
		return time.Since(e.releasedAt) > interval
	}
}

// expiredLocked reports whether a session outlived MaxLifetimeSession.
// Must be called with mu held.
func (p *Pool) expiredLocked(s *session.Session) bool {
	return p.cfg.MaxLifetimeSession > 0 && s.Age() > p.cfg.MaxLifetimeSession
}

// shardHasRoomLocked checks the per-shard session bound. Must be called
// with mu held.
func (p *Pool) shardHasRoomLocked(shardKey string) bool {
	if p.cfg.MaxSessionsPerShard <= 0 {
		return true
	}
	return p.shardCounts[shardKey] < p.cfg.MaxSessionsPerShard
}

// updateGaugesLocked refreshes the Prometheus gauges. Must be called with
// mu held.
func (p *Pool) updateGaugesLocked() {
	p.metrics.setGauges(p.opened, len(p.busy))
}
