// Package session implements the core debug-session engine (spec.md §4
// "Session lifecycle"): the Initializing/Paused/Running/Stopped/Crashed
// state machine, the event pump, and the stepping/breakpoint/variable
// operations the tool façade drives.
//
// Grounded on the activeSession/DebugService shape in the teacher's
// internal/debugging/debugger.go (StartSession/Continue/StepOver/StepInto/
// StepOut/Pause/StopSession), rebuilt around a real inspector transport
// instead of a simulated event loop.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apex-build/cdp-debugger/internal/breakpoints"
	"github.com/apex-build/cdp-debugger/internal/cdpwire"
	"github.com/apex-build/cdp-debugger/internal/dbgerr"
	"github.com/apex-build/cdp-debugger/internal/launcher"
	"github.com/apex-build/cdp-debugger/internal/metrics"
	"github.com/apex-build/cdp-debugger/internal/sourcemap"
	"github.com/apex-build/cdp-debugger/internal/transport"
	"github.com/apex-build/cdp-debugger/internal/variables"
)

// Status is a session's position in the lifecycle state machine (spec.md
// §4 "States"). Transitions are one-directional except Paused <-> Running,
// and Stopped/Crashed are terminal.
type Status string

const (
	Initializing Status = "initializing"
	Paused       Status = "paused"
	Running      Status = "running"
	Stopped      Status = "stopped"
	Crashed      Status = "crashed"
)

// Config bounds the deadlines and ports the session uses, sourced from
// internal/config.Config so every session in the registry shares one
// policy (spec.md §5).
type Config struct {
	InspectorPortBase    int
	InspectorPortMax     int
	CommandTimeout       time.Duration
	SessionStartTimeout  time.Duration
	AttachDeadline       time.Duration
	ShutdownGrace        time.Duration
	SourceMapSourceDir   string
	SourceMapOutputDir   string
}

// Target is what to launch and attach to (spec.md §3 "Launch target").
type Target struct {
	Language         string
	EntryPoint       string
	WorkingDirectory string
	Args             []string
}

// Event is pushed to subscribers on every state-relevant inspector or
// process occurrence (spec.md §4.2 "Event fan-out").
type Event struct {
	Type      string // "paused", "resumed", "exception", "console", "crashed"
	Timestamp time.Time
	Pause     *PauseInfo
	Exception *cdpwire.ExceptionDetails
	Console   *cdpwire.ConsoleAPICalledEvent
	Err       error
}

// PauseInfo describes why and where execution paused.
type PauseInfo struct {
	Reason         string
	HitBreakpoints []string
	TopFrame       variables.Frame
}

// Session is one attached debug target.
type Session struct {
	ID       string
	Language string
	log      *zap.Logger
	cfg      Config

	port    int
	ports   *PortAllocator
	process *launcher.Process
	tr      *transport.Transport
	metrics *metrics.Sink

	Breakpoints *breakpoints.Registry
	Vars        *variables.Inspector
	sourceMaps  *sourcemap.Manager

	mu           sync.Mutex
	status       Status
	watches      map[string]*Watch
	lastActive   time.Time
	transitionCh chan struct{} // closed on the next onPaused/onResumed

	events   chan Event
	stopOnce sync.Once
	doneCh   chan struct{}
}

// Watch is one registered watch expression, re-evaluated on every pause
// (spec.md §4.6 "Watches"). Per SPEC_FULL.md §6 Open Question decision,
// only the last value and whether it changed since the previous pause are
// kept — no history buffer.
type Watch struct {
	ID         string
	Expression string
	Last       variables.Value
	Changed    bool
	Err        string
}

// Start launches the target process, connects the inspector transport, and
// brings the session to Paused (Node halts at its first line under
// --inspect-brk, so the session starts paused until the caller issues a
// Continue — spec.md §4.1 "Attach sequencing").
func Start(ctx context.Context, target Target, cfg Config, ports *PortAllocator, log *zap.Logger, m *metrics.Sink) (*Session, error) {
	port, err := ports.Allocate()
	if err != nil {
		return nil, err
	}

	startCtx, cancel := context.WithTimeout(ctx, cfg.SessionStartTimeout)
	defer cancel()

	proc, err := launcher.Launch(startCtx, launcher.Target{
		Language:         target.Language,
		EntryPoint:       target.EntryPoint,
		WorkingDirectory: target.WorkingDirectory,
		Args:             target.Args,
	}, port)
	if err != nil {
		ports.Release(port)
		return nil, err
	}

	tr, err := transport.Connect(startCtx, proc.WSURL, log)
	if err != nil {
		_ = proc.Kill()
		ports.Release(port)
		return nil, err
	}

	s := &Session{
		ID:         uuid.NewString(),
		Language:   target.Language,
		log:        log,
		cfg:        cfg,
		port:       port,
		ports:      ports,
		process:    proc,
		tr:         tr,
		metrics:    m,
		Vars:       variables.New(tr),
		sourceMaps: sourcemap.NewManager(log, cfg.SourceMapSourceDir, cfg.SourceMapOutputDir),
		status:     Initializing,
		watches:    make(map[string]*Watch),
		events:     make(chan Event, 256),
		doneCh:     make(chan struct{}),
		lastActive: time.Now(),
	}
	s.Breakpoints = breakpoints.New(tr, log.Sugar(), s.sourceMaps, m)

	if _, err := tr.Send(startCtx, "Debugger.enable", map[string]any{}); err != nil {
		_ = s.teardown(ctx, false)
		return nil, err
	}
	if _, err := tr.Send(startCtx, "Runtime.enable", map[string]any{}); err != nil {
		_ = s.teardown(ctx, false)
		return nil, err
	}

	tr.OnEvent("Debugger.paused", s.onPaused)
	tr.OnEvent("Debugger.resumed", s.onResumed)
	tr.OnEvent("Runtime.exceptionThrown", s.onException)
	tr.OnEvent("Runtime.consoleAPICalled", s.onConsole)

	go s.watchProcessExit()

	s.mu.Lock()
	s.status = Paused // --inspect-brk halts before the first statement
	s.mu.Unlock()

	if m != nil {
		m.IncSessionStarted()
	}
	return s, nil
}

// Transport exposes the session's inspector transport for callers that
// need to drive a CDP domain this package doesn't wrap directly, such as
// internal/profiler's Profiler and HeapProfiler domains.
func (s *Session) Transport() *transport.Transport { return s.tr }

// Events returns the channel of session-lifetime events for the tool
// façade (or any other subscriber) to drain. Never closed while the
// session is alive; closed once Stop completes.
func (s *Session) Events() <-chan Event { return s.events }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// IdleSince reports how long it has been since the last operation touched
// this session, used by the registry's idle-timeout sweep.
func (s *Session) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive)
}

func (s *Session) emit(ev Event) {
	ev.Timestamp = time.Now()
	select {
	case s.events <- ev:
	default:
		s.log.Warn("session event channel full, dropping event", zap.String("session", s.ID), zap.String("type", ev.Type))
	}
}

func (s *Session) onPaused(raw json.RawMessage) {
	var ev cdpwire.PausedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}
	s.Vars.NewPause(ev.CallFrames)

	var topFrameID string
	if len(ev.CallFrames) > 0 {
		topFrameID = ev.CallFrames[0].CallFrameID
	}

	// Log and under-threshold hit-count breakpoints are evaluated here,
	// locally, rather than as a CDP condition string: V8 would otherwise
	// suppress the pause itself, leaving the orchestrator with no hit
	// observed and the log message never rendered (spec.md §4.5).
	hitCtx, cancel := context.WithTimeout(context.Background(), s.cfg.CommandTimeout)
	suppress := s.Breakpoints.HandlePause(hitCtx, topFrameID, ev.HitBreakpoints)
	cancel()

	if suppress {
		resumeCtx, rcancel := context.WithTimeout(context.Background(), s.cfg.CommandTimeout)
		_, _ = s.tr.Send(resumeCtx, "Debugger.resume", map[string]any{})
		rcancel()
		return
	}

	s.mu.Lock()
	s.status = Paused
	s.signalTransitionLocked()
	s.mu.Unlock()
	s.touch()
	s.reevaluateWatches()

	var top variables.Frame
	if len(ev.CallFrames) > 0 {
		cf := ev.CallFrames[0]
		top = variables.Frame{
			ID: cf.CallFrameID, FunctionName: cf.FunctionName, URL: cf.URL,
			Line: int(cf.Location.LineNumber), Column: int(cf.Location.ColumnNumber), ScriptID: cf.Location.ScriptID,
		}
	}
	s.emit(Event{Type: "paused", Pause: &PauseInfo{Reason: ev.Reason, HitBreakpoints: ev.HitBreakpoints, TopFrame: top}})
}

func (s *Session) onResumed(json.RawMessage) {
	s.Vars.Invalidate()
	s.mu.Lock()
	s.status = Running
	s.signalTransitionLocked()
	s.mu.Unlock()
	s.emit(Event{Type: "resumed"})
}

// armTransition opens a fresh one-shot channel that the next onPaused or
// onResumed closes, letting Continue/step/Pause block until the transition
// their command provoked actually lands instead of returning on the bare
// command ack (spec.md §5 "suspension points").
func (s *Session) armTransition() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.transitionCh = ch
	return ch
}

// signalTransitionLocked must be called with s.mu held.
func (s *Session) signalTransitionLocked() {
	if s.transitionCh != nil {
		close(s.transitionCh)
		s.transitionCh = nil
	}
}

func (s *Session) awaitTransition(ctx context.Context, ch chan struct{}) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()
	select {
	case <-ch:
		return nil
	case <-waitCtx.Done():
		return dbgerr.Wrap(dbgerr.Internal, waitCtx.Err(), "timed out waiting for session to transition")
	}
}

func (s *Session) onException(raw json.RawMessage) {
	var ev cdpwire.ExceptionThrownEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}
	s.emit(Event{Type: "exception", Exception: &ev.ExceptionDetails})
}

func (s *Session) onConsole(raw json.RawMessage) {
	var ev cdpwire.ConsoleAPICalledEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}
	s.emit(Event{Type: "console", Console: &ev})
}

func (s *Session) reevaluateWatches() {
	s.mu.Lock()
	watches := make([]*Watch, 0, len(s.watches))
	for _, w := range s.watches {
		watches = append(watches, w)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CommandTimeout)
	defer cancel()
	for _, w := range watches {
		v, err := s.Vars.Evaluate(ctx, w.Expression)
		s.mu.Lock()
		if err != nil {
			w.Err = err.Error()
			w.Changed = false
		} else {
			w.Changed = w.Last.Description != v.Description || w.Last.Type != v.Type ||
				string(w.Last.RawValue) != string(v.RawValue)
			w.Last = v
			w.Err = ""
		}
		s.mu.Unlock()
	}
}

func (s *Session) requireStatus(want Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != want {
		return dbgerr.New(dbgerr.InvalidState, "operation requires status %s, session is %s", want, s.status)
	}
	return nil
}

// Continue resumes a paused session (spec.md §4.5 "Continue"), blocking
// until the resulting Debugger.resumed event lands so the returned status
// reflects where the session actually ended up.
func (s *Session) Continue(ctx context.Context) error {
	if err := s.requireStatus(Paused); err != nil {
		return err
	}
	s.touch()
	ch := s.armTransition()
	if _, err := s.tr.Send(ctx, "Debugger.resume", map[string]any{}); err != nil {
		return wrapCommandErr(err, "resume")
	}
	return s.awaitTransition(ctx, ch)
}

// StepOver, StepInto, StepOut implement the three CDP stepping primitives
// (spec.md §4.5 "Stepping"). Each requires the session to be paused, and
// blocks until the step completes and the next Debugger.paused event lands.
func (s *Session) StepOver(ctx context.Context) error { return s.step(ctx, "Debugger.stepOver") }
func (s *Session) StepInto(ctx context.Context) error { return s.step(ctx, "Debugger.stepInto") }
func (s *Session) StepOut(ctx context.Context) error  { return s.step(ctx, "Debugger.stepOut") }

func (s *Session) step(ctx context.Context, method string) error {
	if err := s.requireStatus(Paused); err != nil {
		return err
	}
	s.touch()
	ch := s.armTransition()
	if _, err := s.tr.Send(ctx, method, map[string]any{}); err != nil {
		return wrapCommandErr(err, method)
	}
	if err := s.awaitTransition(ctx, ch); err != nil {
		return err
	}
	// A step resumes the target before it pauses again, so the transition
	// above may be the step's Debugger.resumed; if so, wait for the pause.
	s.mu.Lock()
	if s.status != Running {
		s.mu.Unlock()
		return nil
	}
	ch = make(chan struct{})
	s.transitionCh = ch
	s.mu.Unlock()
	return s.awaitTransition(ctx, ch)
}

// Pause requests an async interrupt of a running session (spec.md §4.5
// "Pause"). Unlike stepping, this is valid only while Running, and blocks
// until the resulting Debugger.paused event lands.
func (s *Session) Pause(ctx context.Context) error {
	if err := s.requireStatus(Running); err != nil {
		return err
	}
	s.touch()
	ch := s.armTransition()
	if _, err := s.tr.Send(ctx, "Debugger.pause", map[string]any{}); err != nil {
		return wrapCommandErr(err, "pause")
	}
	return s.awaitTransition(ctx, ch)
}

func wrapCommandErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := dbgerr.As(err); ok {
		return err
	}
	return dbgerr.Wrap(dbgerr.Internal, err, "command %s failed", op)
}

// AddWatch registers a watch expression and evaluates it immediately if the
// session is paused.
func (s *Session) AddWatch(ctx context.Context, expression string) (*Watch, error) {
	w := &Watch{ID: uuid.NewString(), Expression: expression}
	s.mu.Lock()
	s.watches[w.ID] = w
	paused := s.status == Paused
	s.mu.Unlock()

	if paused {
		v, err := s.Vars.Evaluate(ctx, expression)
		s.mu.Lock()
		if err != nil {
			w.Err = err.Error()
		} else {
			w.Last = v
		}
		s.mu.Unlock()
	}
	return w, nil
}

// RemoveWatch deregisters a watch.
func (s *Session) RemoveWatch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watches[id]; !ok {
		return dbgerr.New(dbgerr.InvalidArgument, "no watch with id %s", id)
	}
	delete(s.watches, id)
	return nil
}

// Watches returns every registered watch and its last-evaluated value.
func (s *Session) Watches() []*Watch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Watch, 0, len(s.watches))
	for _, w := range s.watches {
		cp := *w
		out = append(out, &cp)
	}
	return out
}

func (s *Session) watchProcessExit() {
	select {
	case <-s.process.Done():
		exited, err := s.process.Exited()
		if exited {
			s.mu.Lock()
			alreadyStopped := s.status == Stopped
			if !alreadyStopped {
				s.status = Crashed
			}
			s.mu.Unlock()
			if !alreadyStopped {
				if s.metrics != nil {
					s.metrics.IncSessionCrashed()
				}
				s.emit(Event{Type: "crashed", Err: err})
			}
		}
	case <-s.doneCh:
	}
}

// Stop tears the session down in order: disconnect the transport, SIGTERM
// the process, wait up to ShutdownGrace, then SIGKILL. Nothing still running
// on the inspector (such as a CPU profile) is stopped first. A crashed
// session is torn down the same way; Stop is idempotent once Stopped
// (spec.md §4.5 "Stop").
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.status == Stopped {
		s.mu.Unlock()
		return nil
	}
	s.status = Stopped
	s.mu.Unlock()
	return s.teardown(ctx, true)
}

func (s *Session) teardown(ctx context.Context, graceful bool) error {
	var stopErr error
	s.stopOnce.Do(func() {
		if s.tr != nil {
			_ = s.tr.Disconnect()
		}
		if s.process != nil && graceful {
			if exited, _ := s.process.Exited(); !exited {
				_ = s.process.Signal(syscall.SIGTERM)
				select {
				case <-s.process.Done():
				case <-time.After(s.cfg.ShutdownGrace):
					_ = s.process.Kill()
				}
			}
		} else if s.process != nil {
			_ = s.process.Kill()
		}
		if s.ports != nil {
			s.ports.Release(s.port)
		}
		close(s.doneCh)
		close(s.events)
	})
	return stopErr
}
