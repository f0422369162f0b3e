package tool

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/apex-build/cdp-debugger/internal/breakpoints"
	"github.com/apex-build/cdp-debugger/internal/dbgerr"
	"github.com/apex-build/cdp-debugger/internal/hang"
	"github.com/apex-build/cdp-debugger/internal/launcher"
	"github.com/apex-build/cdp-debugger/internal/profiler"
	"github.com/apex-build/cdp-debugger/internal/registry"
	"github.com/apex-build/cdp-debugger/internal/session"
	"github.com/apex-build/cdp-debugger/internal/transport"
	"github.com/apex-build/cdp-debugger/internal/variables"
)

// cpuProfilers tracks the one outstanding CPU profile per session; CDP
// only allows a single Profiler.start/stop cycle at a time per target.
type cpuProfilers struct {
	byID map[string]*profiler.CPUProfiler
}

// RegisterDebuggerTools wires every tool named in spec.md §6 to the
// registry and session operations built above (spec.md §6 "Tool table").
func RegisterDebuggerTools(s *Server, reg *registry.Registry, hangPorts *session.PortAllocator, log *zap.Logger) {
	cp := &cpuProfilers{byID: make(map[string]*profiler.CPUProfiler)}

	s.RegisterTool(Tool{
		Name:        "debugger_start",
		Description: "Launch a program under an inspector-enabled managed runtime and attach a debug session.",
		InputSchema: schema(
			prop("language", "string", true),
			prop("entry_point", "string", true),
			prop("working_directory", "string", false),
		),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		target := session.Target{
			Language:         str(args, "language"),
			EntryPoint:       str(args, "entry_point"),
			WorkingDirectory: str(args, "working_directory"),
		}
		sess, err := reg.Start(ctx, target)
		if err != nil {
			return nil, err
		}
		return map[string]any{"session_id": sess.ID, "status": string(sess.Status())}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_stop_session",
		Description: "Tear down a debug session and terminate its target process.",
		InputSchema: schema(prop("session_id", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		id := str(args, "session_id")
		if err := reg.Stop(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"stopped": true}, nil
	})

	registerControlTool(s, reg, "debugger_continue", "Resume a paused session.", func(sess *session.Session, ctx context.Context) error {
		return sess.Continue(ctx)
	})
	registerControlTool(s, reg, "debugger_pause", "Interrupt a running session at its next statement.", func(sess *session.Session, ctx context.Context) error {
		return sess.Pause(ctx)
	})
	registerControlTool(s, reg, "debugger_step_over", "Step over the current line.", func(sess *session.Session, ctx context.Context) error {
		return sess.StepOver(ctx)
	})
	registerControlTool(s, reg, "debugger_step_into", "Step into the current call.", func(sess *session.Session, ctx context.Context) error {
		return sess.StepInto(ctx)
	})
	registerControlTool(s, reg, "debugger_step_out", "Step out of the current function.", func(sess *session.Session, ctx context.Context) error {
		return sess.StepOut(ctx)
	})

	s.RegisterTool(Tool{
		Name:        "debugger_set_breakpoint",
		Description: "Set a line, conditional, log, exception or function breakpoint.",
		InputSchema: schema(
			prop("session_id", "string", true),
			prop("kind", "string", true),
			prop("file_path", "string", false),
			prop("line", "integer", false),
			prop("column", "integer", false),
			prop("condition", "string", false),
			prop("log_message", "string", false),
			prop("min_hit_count", "integer", false),
			prop("hit_predicate", "string", false),
		),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		bp := &breakpoints.Breakpoint{
			Kind:         breakpoints.Kind(str(args, "kind")),
			FilePath:     str(args, "file_path"),
			Line:         int(num(args, "line")),
			Column:       int(num(args, "column")),
			Condition:    str(args, "condition"),
			LogMessage:   str(args, "log_message"),
			MinHitCount:  int(num(args, "min_hit_count")),
			HitPredicate: breakpoints.Predicate(str(args, "hit_predicate")),
		}
		out, err := sess.Breakpoints.Set(ctx, bp, 5*time.Second)
		if err != nil {
			return nil, err
		}
		return breakpointView(out), nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_remove_breakpoint",
		Description: "Remove a breakpoint.",
		InputSchema: schema(prop("session_id", "string", true), prop("breakpoint_id", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		if err := sess.Breakpoints.Remove(ctx, str(args, "breakpoint_id")); err != nil {
			return nil, err
		}
		return map[string]any{"removed": true}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_toggle_breakpoint",
		Description: "Enable or disable a breakpoint without discarding it.",
		InputSchema: schema(prop("session_id", "string", true), prop("breakpoint_id", "string", true), prop("enabled", "boolean", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		enabled, _ := args["enabled"].(bool)
		if err := sess.Breakpoints.Toggle(ctx, str(args, "breakpoint_id"), enabled); err != nil {
			return nil, err
		}
		return map[string]any{"enabled": enabled}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_list_breakpoints",
		Description: "List every breakpoint registered on a session.",
		InputSchema: schema(prop("session_id", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		list := sess.Breakpoints.List()
		out := make([]any, 0, len(list))
		for _, bp := range list {
			out = append(out, breakpointView(bp))
		}
		return map[string]any{"breakpoints": out}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_inspect",
		Description: "Evaluate an expression in the currently selected call frame.",
		InputSchema: schema(prop("session_id", "string", true), prop("expression", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		v, err := sess.Vars.Evaluate(ctx, str(args, "expression"))
		if err != nil {
			return nil, err
		}
		return valueView(v), nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_get_properties",
		Description: "Expand an object reference into its named properties.",
		InputSchema: schema(prop("session_id", "string", true), prop("object_ref", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		props, err := sess.Vars.GetProperties(ctx, str(args, "object_ref"))
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(props))
		for _, v := range props {
			out = append(out, valueView(v))
		}
		return map[string]any{"properties": out}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_get_stack",
		Description: "Return the current call stack.",
		InputSchema: schema(prop("session_id", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		frames := sess.Vars.Stack()
		out := make([]any, 0, len(frames))
		for _, f := range frames {
			out = append(out, map[string]any{
				"index": f.Index, "function_name": f.FunctionName, "url": f.URL,
				"line": f.Line, "column": f.Column,
			})
		}
		return map[string]any{"frames": out}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_switch_stack_frame",
		Description: "Select a different call frame for subsequent inspect calls and watch evaluations.",
		InputSchema: schema(prop("session_id", "string", true), prop("frame_index", "integer", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		if err := sess.Vars.SwitchFrame(int(num(args, "frame_index"))); err != nil {
			return nil, err
		}
		return map[string]any{"selected": int(num(args, "frame_index"))}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_add_watch",
		Description: "Register an expression to re-evaluate on every pause.",
		InputSchema: schema(prop("session_id", "string", true), prop("expression", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		w, err := sess.AddWatch(ctx, str(args, "expression"))
		if err != nil {
			return nil, err
		}
		return watchView(w), nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_remove_watch",
		Description: "Deregister a watch expression.",
		InputSchema: schema(prop("session_id", "string", true), prop("watch_id", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		if err := sess.RemoveWatch(str(args, "watch_id")); err != nil {
			return nil, err
		}
		return map[string]any{"removed": true}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_get_watches",
		Description: "List every registered watch and its last value.",
		InputSchema: schema(prop("session_id", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		watches := sess.Watches()
		out := make([]any, 0, len(watches))
		for _, w := range watches {
			out = append(out, watchView(w))
		}
		return map[string]any{"watches": out}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_detect_hang",
		Description: "Launch a program and sample its top stack frame to determine whether it is hung.",
		InputSchema: schema(
			prop("language", "string", true),
			prop("entry_point", "string", true),
			prop("working_directory", "string", false),
			prop("max_samples", "integer", false),
		),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		port, err := hangPorts.Allocate()
		if err != nil {
			return nil, err
		}
		defer hangPorts.Release(port)

		maxSamples := int(num(args, "max_samples"))
		if maxSamples <= 0 {
			maxSamples = 50
		}
		target := launcher.Target{
			Language:         str(args, "language"),
			EntryPoint:       str(args, "entry_point"),
			WorkingDirectory: str(args, "working_directory"),
		}
		result, err := hang.Detect(ctx, target, port, maxSamples, log)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"outcome":  string(result.Outcome),
			"location": result.Location,
			"samples":  result.Samples,
		}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_start_cpu_profile",
		Description: "Begin CPU sampling on an attached session.",
		InputSchema: schema(prop("session_id", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		p := profiler.NewCPUProfiler(sessionTransport(sess))
		if err := p.Start(ctx); err != nil {
			return nil, err
		}
		cp.byID[sess.ID] = p
		return map[string]any{"started": true}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_stop_cpu_profile",
		Description: "Stop CPU sampling and return bottleneck analysis.",
		InputSchema: schema(prop("session_id", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		p, ok := cp.byID[sess.ID]
		if !ok {
			return nil, dbgerr.New(dbgerr.InvalidState, "no CPU profile running for session %s", sess.ID)
		}
		delete(cp.byID, sess.ID)
		result, err := p.Stop(ctx)
		if err != nil {
			return nil, err
		}
		bottlenecks := make([]any, 0, len(result.Bottlenecks))
		for _, b := range result.Bottlenecks {
			bottlenecks = append(bottlenecks, map[string]any{
				"function_name":  b.FunctionName,
				"url":            b.URL,
				"line_number":    b.LineNumber,
				"self_time_frac": b.SelfTimeFrac,
				"hit_count":      b.HitCount,
			})
		}
		return map[string]any{
			"duration_ms": result.DurationMS,
			"total_hits":  result.TotalHits,
			"bottlenecks": bottlenecks,
		}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_take_heap_snapshot",
		Description: "Capture a heap snapshot from an attached session.",
		InputSchema: schema(prop("session_id", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		snap := profiler.NewHeapSnapshotter(sessionTransport(sess))
		data, err := snap.TakeSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"snapshot_bytes": len(data)}, nil
	})

	s.RegisterTool(Tool{
		Name:        "debugger_get_performance_metrics",
		Description: "Return operational metrics for this orchestrator process.",
		InputSchema: schema(),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		if s.metrics == nil {
			return map[string]any{}, nil
		}
		return s.metrics.Snapshot(), nil
	})
}

// registerControlTool wires a session-scoped control operation (continue/
// pause/step) behind the common session-lookup boilerplate. Each op blocks
// until its session transition actually lands (internal/session.Continue,
// Step*, Pause all await the resulting Debugger.resumed/paused event), so
// Status() below reflects where the session ended up, not where it was when
// the call started (spec.md §6 "Success payload: state, location?").
func registerControlTool(s *Server, reg *registry.Registry, name, description string, op func(*session.Session, context.Context) error) {
	s.RegisterTool(Tool{
		Name:        name,
		Description: description,
		InputSchema: schema(prop("session_id", "string", true)),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		sess, err := reg.Get(str(args, "session_id"))
		if err != nil {
			return nil, err
		}
		if err := op(sess, ctx); err != nil {
			return nil, err
		}
		resp := map[string]any{"status": string(sess.Status())}
		if sess.Status() == session.Paused {
			if frames := sess.Vars.Stack(); len(frames) > 0 {
				top := frames[0]
				resp["location"] = map[string]any{
					"file_path":     top.URL,
					"line":          top.Line,
					"column":        top.Column,
					"function_name": top.FunctionName,
				}
			}
		}
		return resp, nil
	})
}

// sessionTransport exposes the session's transport to the profiler tools;
// kept as a tiny accessor here rather than widening Session's public
// surface for a concern only this wiring layer needs.
func sessionTransport(sess *session.Session) *transport.Transport {
	return sess.Transport()
}

func schema(props ...map[string]any) map[string]any {
	properties := map[string]any{}
	var required []string
	for _, p := range props {
		name := p["__name"].(string)
		req := p["__required"].(bool)
		delete(p, "__name")
		delete(p, "__required")
		properties[name] = p
		if req {
			required = append(required, name)
		}
	}
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(name, jsonType string, required bool) map[string]any {
	return map[string]any{"__name": name, "__required": required, "type": jsonType}
}

func str(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func num(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func breakpointView(bp *breakpoints.Breakpoint) map[string]any {
	m := map[string]any{
		"id": bp.ID, "kind": string(bp.Kind), "file_path": bp.FilePath,
		"line": bp.Line, "column": bp.Column, "enabled": bp.Enabled,
		"verified": bp.Verified, "hit_count": bp.HitCount,
	}
	if bp.Kind == breakpoints.HitCount {
		m["min_hit_count"] = bp.MinHitCount
		m["hit_predicate"] = string(bp.HitPredicate)
	}
	return m
}

func watchView(w *session.Watch) map[string]any {
	m := map[string]any{"id": w.ID, "expression": w.Expression, "changed": w.Changed}
	if w.Err != "" {
		m["error"] = w.Err
	} else {
		m["value"] = fmt.Sprintf("%v", w.Last.Description)
		m["type"] = w.Last.Type
	}
	return m
}

func valueView(v variables.Value) map[string]any {
	m := map[string]any{
		"tag": string(v.Tag), "type": v.Type, "description": v.Description,
		"has_children": v.HasChildren,
	}
	if v.ObjectRef != "" {
		m["object_ref"] = v.ObjectRef
	}
	if len(v.RawValue) > 0 {
		m["raw_value"] = string(v.RawValue)
	}
	return m
}
