// Package breakpoints implements the breakpoint registry and CDP
// Debugger-domain operations (spec.md §4.4 "Breakpoints"): setting,
// removing, toggling and resolving line, conditional, log, exception,
// function and hit-count breakpoints.
//
// Grounded on the Breakpoint/BreakpointType vocabulary and
// SetBreakpoint/RemoveBreakpoint/ToggleBreakpoint method shapes in the
// teacher's internal/debugging/debugger.go, adapted from a gorm-persisted
// record to an in-memory registry keyed by inspector script IDs rather
// than database file IDs.
package breakpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apex-build/cdp-debugger/internal/cdpwire"
	"github.com/apex-build/cdp-debugger/internal/dbgerr"
	"github.com/apex-build/cdp-debugger/internal/metrics"
	"github.com/apex-build/cdp-debugger/internal/sourcemap"
	"github.com/apex-build/cdp-debugger/internal/transport"
)

// Kind enumerates the supported breakpoint flavors (spec.md §3).
type Kind string

const (
	Line        Kind = "line"
	Conditional Kind = "conditional"
	Log         Kind = "log"
	Exception   Kind = "exception"
	Function    Kind = "function"
	HitCount    Kind = "hit_count"
)

// Predicate selects how a HitCount breakpoint's local counter decides
// whether to surface a pause (spec.md §3 "Breakpoint" data model). CDP's own
// condition expressions can only express "pause iff true", evaluated inside
// the target's V8 runtime with no visibility into the orchestrator's
// counters, so these are all evaluated locally against Breakpoint.HitCount.
type Predicate string

const (
	PredicateGreaterThan Predicate = "gt" // hits > MinHitCount (default)
	PredicateEquals       Predicate = "eq" // hits == MinHitCount
	PredicateModulo        Predicate = "mod" // MinHitCount > 0 && hits % MinHitCount == 0
)

// Breakpoint is one registered breakpoint, local to this orchestrator.
// ID is the orchestrator-assigned identifier handed back to the tool
// façade; InspectorID is the id CDP's Debugger domain assigned, used only
// internally to remove/toggle the underlying CDP breakpoint.
type Breakpoint struct {
	ID            string
	Kind          Kind
	FilePath      string
	Line          int
	Column        int
	Condition     string
	LogMessage    string
	FunctionName  string
	ExceptionMode string // "uncaught" or "all", for Kind == Exception
	MinHitCount   int
	HitPredicate  Predicate // Kind == HitCount only; empty means PredicateGreaterThan
	Enabled       bool
	Verified      bool
	HitCount      int
	InspectorID   string
	ScriptID      string
}

// Registry tracks every breakpoint for one debug session and resolves
// pending ones against Debugger.scriptParsed events (spec.md §4.4 edge
// case: breakpoint set before the target script has loaded).
type Registry struct {
	tr         *transport.Transport
	log        logger
	sourceMaps *sourcemap.Manager
	metrics    *metrics.Sink

	mu          sync.Mutex
	byID        map[string]*Breakpoint
	byURL       map[string]string // script URL -> scriptId, once parsed
	pendingByURL map[string][]string // script URL -> breakpoint IDs awaiting that URL
}

// logger is the minimal structured-logging surface this package needs,
// kept narrow so tests can supply a no-op without importing zap.
type logger interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}

// New constructs a Registry bound to an inspector transport, and subscribes
// to Debugger.scriptParsed so pending breakpoints resolve as scripts load.
// sourceMaps resolves a breakpoint set against an original source file down
// to the compiled script CDP actually reports (spec.md §4.3); m, when
// non-nil, is incremented on every attributable breakpoint hit.
func New(tr *transport.Transport, log logger, sourceMaps *sourcemap.Manager, m *metrics.Sink) *Registry {
	r := &Registry{
		tr:           tr,
		log:          log,
		sourceMaps:   sourceMaps,
		metrics:      m,
		byID:         make(map[string]*Breakpoint),
		byURL:        make(map[string]string),
		pendingByURL: make(map[string][]string),
	}
	tr.OnEvent("Debugger.scriptParsed", r.onScriptParsed)
	return r
}

func (r *Registry) onScriptParsed(raw json.RawMessage) {
	var ev cdpwire.ScriptParsedEvent
	if err := unmarshal(raw, &ev); err != nil {
		return
	}
	r.mu.Lock()
	r.byURL[ev.URL] = ev.ScriptID
	ids := r.pendingByURL[ev.URL]
	delete(r.pendingByURL, ev.URL)
	r.mu.Unlock()

	// This handler runs on the transport's read pump, which is also what
	// delivers the Debugger.setBreakpoint responses, so resolution runs on
	// its own goroutine. A breakpoint disabled while pending only records
	// its script, so a later Toggle can resolve it.
	go func() {
		for _, id := range ids {
			r.mu.Lock()
			bp, ok := r.byID[id]
			enabled := ok && bp.Enabled
			if ok && !enabled {
				bp.ScriptID = ev.ScriptID
			}
			r.mu.Unlock()
			if !enabled {
				continue
			}
			_ = r.resolve(context.Background(), bp, ev.ScriptID)
		}
	}()
}

// Set registers a new breakpoint and attempts to resolve it immediately.
// If the target script has not yet parsed, the breakpoint is left
// unverified and resolved later by onScriptParsed, bounded by attachDeadline:
// if the deadline elapses first, Set still returns success with
// Verified == false (spec.md §4.4 "pending resolution").
func (r *Registry) Set(ctx context.Context, bp *Breakpoint, attachDeadline time.Duration) (*Breakpoint, error) {
	if bp.FilePath == "" && bp.Kind != Exception && bp.Kind != Function {
		return nil, dbgerr.New(dbgerr.InvalidArgument, "breakpoint requires a file path")
	}
	bp.ID = uuid.NewString()
	bp.Enabled = true

	r.mu.Lock()
	r.byID[bp.ID] = bp
	r.mu.Unlock()

	switch bp.Kind {
	case Exception:
		return bp, r.setExceptionBreakpoint(ctx, bp)
	case Function:
		return bp, r.setFunctionBreakpoint(ctx, bp)
	}

	// A breakpoint set against an original source file (TypeScript, JSX,
	// ...) resolves to whatever compiled script Debugger.scriptParsed
	// actually reports; a plain JS project's path passes through unchanged
	// (spec.md §4.3 "find_compiled").
	scriptURL := bp.FilePath
	if r.sourceMaps != nil {
		if compiled, ok := r.sourceMaps.FindCompiled(bp.FilePath); ok {
			scriptURL = compiled
		}
	}

	r.mu.Lock()
	scriptID, known := r.byURL[scriptURL]
	r.mu.Unlock()
	if known {
		return bp, r.resolve(ctx, bp, scriptID)
	}

	r.mu.Lock()
	r.pendingByURL[scriptURL] = append(r.pendingByURL[scriptURL], bp.ID)
	r.mu.Unlock()

	deadlineCtx, cancel := context.WithTimeout(ctx, attachDeadline)
	defer cancel()
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()
	resolved := false
	for !resolved && deadlineCtx.Err() == nil {
		select {
		case <-deadlineCtx.Done():
		case <-poll.C:
		}
		r.mu.Lock()
		resolved = bp.Verified
		r.mu.Unlock()
	}
	if !resolved && r.log != nil {
		r.log.Warnf("breakpoint %s for %s:%d left unresolved after attach deadline; will resolve if the script loads later", bp.ID, bp.FilePath, bp.Line)
	}
	return bp, nil
}

func (r *Registry) resolve(ctx context.Context, bp *Breakpoint, scriptID string) error {
	params := map[string]any{
		"location": map[string]any{
			"scriptId":     scriptID,
			"lineNumber":   bp.Line,
			"columnNumber": bp.Column,
		},
	}
	if cond := conditionExpr(bp); cond != "" {
		params["condition"] = cond
	}

	result, err := r.tr.Send(ctx, "Debugger.setBreakpoint", params)
	if err != nil {
		return dbgerr.Wrap(dbgerr.BreakpointUnresolvable, err, "failed to set breakpoint at %s:%d", bp.FilePath, bp.Line)
	}

	var resp struct {
		BreakpointID string           `json:"breakpointId"`
		ActualLocation cdpwire.Location `json:"actualLocation"`
	}
	if err := unmarshal(result, &resp); err != nil {
		return dbgerr.Wrap(dbgerr.Internal, err, "malformed setBreakpoint response")
	}

	r.mu.Lock()
	bp.InspectorID = resp.BreakpointID
	bp.ScriptID = scriptID
	bp.Line = int(resp.ActualLocation.LineNumber)
	bp.Column = int(resp.ActualLocation.ColumnNumber)
	bp.Verified = true
	r.mu.Unlock()
	return nil
}

// conditionExpr builds the CDP condition string for a breakpoint. Only
// Conditional breakpoints use V8's own condition evaluation; Log and
// HitCount breakpoints always pause at the CDP level and have their
// suppress-or-surface decision made by HandlePause once the orchestrator
// observes the pause, since that decision needs either the session's own
// logger (Log) or a local counter CDP's condition string cannot see
// (HitCount) (spec.md §4.5).
func conditionExpr(bp *Breakpoint) string {
	if bp.Kind == Conditional {
		return bp.Condition
	}
	return ""
}

// logTemplatePart is one literal or `{expr}` segment of a log message
// template (SPEC_FULL.md §5 "Structured log-point rendering").
type logTemplatePart struct {
	Literal string
	Expr    string
}

// parseLogTemplate splits a log message into literal and expression parts;
// each Expr part is evaluated against the paused frame at hit time and
// interpolated into the rendered message.
func parseLogTemplate(msg string) []logTemplatePart {
	var parts []logTemplatePart
	rest := msg
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			if rest != "" {
				parts = append(parts, logTemplatePart{Literal: rest})
			}
			return parts
		}
		shut := strings.Index(rest[open:], "}")
		if shut < 0 {
			parts = append(parts, logTemplatePart{Literal: rest})
			return parts
		}
		shut += open
		if open > 0 {
			parts = append(parts, logTemplatePart{Literal: rest[:open]})
		}
		parts = append(parts, logTemplatePart{Expr: rest[open+1 : shut]})
		rest = rest[shut+1:]
	}
}

// predicateMet evaluates a HitCount breakpoint's local predicate against its
// current hit count (spec.md §3 "Breakpoint" data model: hit-count modes
// beyond plain "> N").
func predicateMet(bp *Breakpoint, hits int) bool {
	switch bp.HitPredicate {
	case PredicateEquals:
		return hits == bp.MinHitCount
	case PredicateModulo:
		return bp.MinHitCount > 0 && hits%bp.MinHitCount == 0
	default:
		return hits > bp.MinHitCount
	}
}

func (r *Registry) setExceptionBreakpoint(ctx context.Context, bp *Breakpoint) error {
	state := "uncaught"
	if bp.ExceptionMode == "all" {
		state = "all"
	}
	_, err := r.tr.Send(ctx, "Debugger.setPauseOnExceptions", map[string]any{"state": state})
	if err != nil {
		return dbgerr.Wrap(dbgerr.BreakpointUnresolvable, err, "failed to set exception breakpoint")
	}
	r.mu.Lock()
	bp.Verified = true
	r.mu.Unlock()
	return nil
}

func (r *Registry) setFunctionBreakpoint(ctx context.Context, bp *Breakpoint) error {
	// CDP has no native function-name breakpoint. A function breakpoint is
	// recorded locally only: no inspector request is sent, so it stays
	// unverified and never causes a pause.
	return nil
}

// Remove deletes a breakpoint locally and, if resolved, on the inspector.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	bp, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
	}
	r.mu.Unlock()
	if !ok {
		return dbgerr.New(dbgerr.BreakpointNotFound, "no breakpoint with id %s", id)
	}
	if bp.InspectorID == "" {
		return nil
	}
	_, err := r.tr.Send(ctx, "Debugger.removeBreakpoint", map[string]any{"breakpointId": bp.InspectorID})
	if err != nil {
		return dbgerr.Wrap(dbgerr.Internal, err, "failed to remove breakpoint %s on inspector", id)
	}
	return nil
}

// Toggle enables or disables a breakpoint without discarding its
// registration, so it can be re-enabled later at the same location.
func (r *Registry) Toggle(ctx context.Context, id string, enabled bool) error {
	r.mu.Lock()
	bp, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return dbgerr.New(dbgerr.BreakpointNotFound, "no breakpoint with id %s", id)
	}

	if enabled == bp.Enabled {
		return nil
	}

	if !enabled {
		if bp.InspectorID != "" {
			if _, err := r.tr.Send(ctx, "Debugger.removeBreakpoint", map[string]any{"breakpointId": bp.InspectorID}); err != nil {
				return dbgerr.Wrap(dbgerr.Internal, err, "failed to disable breakpoint %s", id)
			}
		}
		r.mu.Lock()
		bp.Enabled = false
		bp.InspectorID = ""
		bp.Verified = false
		r.mu.Unlock()
		return nil
	}

	if enabled {
		r.mu.Lock()
		scriptID := bp.ScriptID
		r.mu.Unlock()
		if scriptID == "" {
			return dbgerr.New(dbgerr.BreakpointUnresolvable, "cannot re-enable breakpoint %s: script not loaded", id)
		}
		if err := r.resolve(ctx, bp, scriptID); err != nil {
			return err
		}
		r.mu.Lock()
		bp.Enabled = true
		r.mu.Unlock()
	}
	return nil
}

// List returns every breakpoint currently registered, in no particular
// order; callers that need stable output should sort by ID.
func (r *Registry) List() []*Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Breakpoint, 0, len(r.byID))
	for _, bp := range r.byID {
		out = append(out, bp)
	}
	return out
}

// HandlePause is invoked once per Debugger.paused event, naming every
// InspectorID the event's hitBreakpoints array attributes the pause to.
// Every attributable breakpoint's hit counter is incremented unconditionally
// (spec.md §4.5 "the local hit counter increments on every pause
// attributable to the breakpoint, evaluated before deciding whether to
// surface it"). It returns whether the caller should auto-resume instead of
// surfacing the pause: true only when every attributed breakpoint is a log
// point, or a hit-count breakpoint whose predicate is not yet met. A pause
// with no attributed breakpoints (a step, a manual pause, an exception) is
// never suppressed.
func (r *Registry) HandlePause(ctx context.Context, callFrameID string, hitInspectorIDs []string) bool {
	if len(hitInspectorIDs) == 0 {
		return false
	}

	r.mu.Lock()
	var matched []*Breakpoint
	for _, id := range hitInspectorIDs {
		for _, bp := range r.byID {
			if bp.InspectorID == id {
				matched = append(matched, bp)
			}
		}
	}
	r.mu.Unlock()

	suppress := true
	for _, bp := range matched {
		r.mu.Lock()
		bp.HitCount++
		hits := bp.HitCount
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.IncBreakpointHit()
		}

		switch bp.Kind {
		case Log:
			msg := r.renderLogMessage(ctx, callFrameID, bp)
			if r.log != nil {
				r.log.Infof("logpoint %s (%s:%d): %s", bp.ID, bp.FilePath, bp.Line, msg)
			}
		case HitCount:
			if predicateMet(bp, hits) {
				suppress = false
			}
		default:
			suppress = false
		}
	}
	return suppress
}

// renderLogMessage evaluates every {expr} segment of a log breakpoint's
// template against the paused frame and interpolates the results, routing
// the rendered message through the orchestrator's own logger rather than the
// debuggee's console (spec.md §4.5 "Log breakpoints never execute
// console.log in the target").
func (r *Registry) renderLogMessage(ctx context.Context, callFrameID string, bp *Breakpoint) string {
	var b strings.Builder
	for _, part := range parseLogTemplate(bp.LogMessage) {
		if part.Expr == "" {
			b.WriteString(part.Literal)
			continue
		}
		b.WriteString(r.evaluateForLog(ctx, callFrameID, part.Expr))
	}
	return b.String()
}

func (r *Registry) evaluateForLog(ctx context.Context, callFrameID, expr string) string {
	result, err := r.tr.Send(ctx, "Debugger.evaluateOnCallFrame", map[string]any{
		"callFrameId": callFrameID,
		"expression":  expr,
		"silent":      true,
	})
	if err != nil {
		return fmt.Sprintf("<error evaluating %q: %v>", expr, err)
	}
	var resp struct {
		Result cdpwire.RemoteObject `json:"result"`
	}
	if err := unmarshal(result, &resp); err != nil {
		return fmt.Sprintf("<error evaluating %q>", expr)
	}
	return describeRemoteObject(resp.Result)
}

func describeRemoteObject(ro cdpwire.RemoteObject) string {
	if ro.Description != "" {
		return ro.Description
	}
	if len(ro.Value) > 0 {
		return string(ro.Value)
	}
	return ro.Type
}
