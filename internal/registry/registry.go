// Package registry multiplexes concurrently active debug sessions
// (spec.md §6 "Session registry"): opaque-ID lookup, a concurrency cap,
// idle-timeout teardown, and an ordered shutdown that stops every session
// within a grace deadline.
//
// Grounded on the sessions map + mutex in the teacher's
// internal/debugging/debugger.go DebugService, generalized from a single
// global map to a bounded registry with its own sweep loop.
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apex-build/cdp-debugger/internal/dbgerr"
	"github.com/apex-build/cdp-debugger/internal/metrics"
	"github.com/apex-build/cdp-debugger/internal/session"
)

// Registry owns every live session and enforces MaxConcurrentSessions.
type Registry struct {
	cfg     session.Config
	ports   *session.PortAllocator
	log     *zap.Logger
	metrics *metrics.Sink

	maxSessions int
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session.Session

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New constructs a Registry. idleTimeout <= 0 disables the idle sweep. m, when
// non-nil, is propagated to every session it starts so session- and
// breakpoint-level counters reach the same sink the tool façade reports from.
func New(cfg session.Config, maxSessions int, idleTimeout time.Duration, log *zap.Logger, m *metrics.Sink) *Registry {
	r := &Registry{
		cfg:         cfg,
		ports:       session.NewPortAllocator(cfg.InspectorPortBase, cfg.InspectorPortMax),
		log:         log,
		metrics:     m,
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*session.Session),
		stopSweep:   make(chan struct{}),
	}
	if idleTimeout > 0 {
		go r.sweepIdle()
	}
	return r
}

// Start launches a new session and registers it, failing with InvalidState
// once MaxConcurrentSessions sessions are already registered (spec.md §6
// "Resource limits").
func (r *Registry) Start(ctx context.Context, target session.Target) (*session.Session, error) {
	r.mu.Lock()
	if len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		return nil, dbgerr.New(dbgerr.InvalidState, "at capacity: %d concurrent sessions already active", r.maxSessions)
	}
	r.mu.Unlock()

	s, err := session.Start(ctx, target, r.cfg, r.ports, r.log, r.metrics)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s, nil
}

// Get looks up a session by its opaque ID.
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, dbgerr.New(dbgerr.SessionNotFound, "no session with id %s", id)
	}
	return s, nil
}

// Stop tears a session down and removes it from the registry.
func (r *Registry) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return dbgerr.New(dbgerr.SessionNotFound, "no session with id %s", id)
	}
	return s.Stop(ctx)
}

// List returns every active session ID.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) sweepIdle() {
	ticker := time.NewTicker(r.idleTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepOnceNow()
		case <-r.stopSweep:
			return
		}
	}
}

func (r *Registry) sweepOnceNow() {
	r.mu.Lock()
	var stale []*session.Session
	for id, s := range r.sessions {
		if s.IdleSince() >= r.idleTimeout {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		r.log.Info("tearing down idle session", zap.String("session", s.ID))
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownGrace)
		_ = s.Stop(ctx)
		cancel()
	}
}

// Shutdown stops every registered session, waiting up to ShutdownGrace in
// total, and stops the idle sweep (spec.md §6 "Process shutdown").
func (r *Registry) Shutdown(ctx context.Context) {
	r.sweepOnce.Do(func() { close(r.stopSweep) })

	r.mu.Lock()
	sessions := make([]*session.Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			_ = s.Stop(ctx)
		}(s)
	}
	wg.Wait()
}
