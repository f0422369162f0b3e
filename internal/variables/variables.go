// Package variables implements variable inspection and stack navigation
// (spec.md §4.6 "Variables and evaluation"): reading scopes, expanding
// object properties, evaluating expressions, and walking the call stack.
//
// Grounded on the Variable/Scope/StackFrame vocabulary in the teacher's
// internal/debugging/debugger.go (GetCallStack/GetVariables/
// EvaluateExpression), adapted from string-rendered values to the
// RemoteObject wire shape CDP actually returns.
package variables

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/apex-build/cdp-debugger/internal/cdpwire"
	"github.com/apex-build/cdp-debugger/internal/dbgerr"
	"github.com/apex-build/cdp-debugger/internal/transport"
)

// Tag classifies a variable's value the way the tool façade presents it
// (spec.md §3 "Variable"), independent of the underlying language's type
// system.
type Tag string

const (
	TagPrimitive Tag = "primitive"
	TagObject    Tag = "object"
	TagFunction  Tag = "function"
	TagUndefined Tag = "undefined"
)

// Value is one inspected variable or evaluation result.
type Value struct {
	Tag         Tag
	Type        string
	Description string
	RawValue    json.RawMessage
	ObjectRef   string // opaque, epoch-qualified; empty for primitives
	HasChildren bool
}

// Frame is one entry in a paused call stack (spec.md §3 "StackFrame").
type Frame struct {
	ID           string
	Index        int
	FunctionName string
	URL          string
	Line         int
	Column       int
	ScriptID     string
}

// Scope is one entry in a frame's scope chain.
type Scope struct {
	Type      string
	Name      string
	ObjectRef string
}

// Inspector reads variables and evaluates expressions against the call
// frames of whatever pause is currently active. It tracks a pause epoch so
// that object references from a previous pause are rejected rather than
// silently resolved against new, unrelated inspector object IDs (spec.md
// §4.6 "Object reference lifetime").
type Inspector struct {
	tr *transport.Transport

	epoch       int64
	mu          sync.Mutex
	frames      []Frame
	rawFrames   []cdpwire.CallFrame
	selected    int
	refToObject map[string]refEntry
}

type refEntry struct {
	epoch    int64
	objectID string
}

// New constructs an Inspector bound to a transport. Call NewPause whenever
// the session receives a Debugger.paused event, and Invalidate on resume.
func New(tr *transport.Transport) *Inspector {
	return &Inspector{tr: tr, refToObject: make(map[string]refEntry)}
}

// NewPause records the call frames of a fresh pause and bumps the epoch,
// invalidating every previously issued object reference.
func (insp *Inspector) NewPause(frames []cdpwire.CallFrame) {
	insp.mu.Lock()
	defer insp.mu.Unlock()
	insp.epoch++
	insp.refToObject = make(map[string]refEntry)
	insp.selected = 0

	out := make([]Frame, 0, len(frames))
	for i, f := range frames {
		out = append(out, Frame{
			ID:           f.CallFrameID,
			Index:        i,
			FunctionName: f.FunctionName,
			URL:          f.URL,
			Line:         int(f.Location.LineNumber),
			Column:       int(f.Location.ColumnNumber),
			ScriptID:     f.Location.ScriptID,
		})
	}
	insp.frames = out
	insp.rawFrames = frames
}

// Invalidate bumps the epoch and clears the frames, used when the session
// resumes and every outstanding reference must die even though no new pause
// has landed yet.
func (insp *Inspector) Invalidate() {
	insp.mu.Lock()
	defer insp.mu.Unlock()
	insp.epoch++
	insp.refToObject = make(map[string]refEntry)
	insp.frames = nil
	insp.rawFrames = nil
}

// Stack returns the current call stack snapshot.
func (insp *Inspector) Stack() []Frame {
	insp.mu.Lock()
	defer insp.mu.Unlock()
	return append([]Frame(nil), insp.frames...)
}

// SwitchFrame changes which frame subsequent scope/evaluate calls target.
func (insp *Inspector) SwitchFrame(index int) error {
	insp.mu.Lock()
	defer insp.mu.Unlock()
	if index < 0 || index >= len(insp.frames) {
		return dbgerr.New(dbgerr.InvalidArgument, "frame index %d out of range (have %d frames)", index, len(insp.frames))
	}
	insp.selected = index
	return nil
}

// Scopes returns the scope chain for the currently selected frame.
func (insp *Inspector) Scopes() ([]Scope, error) {
	insp.mu.Lock()
	defer insp.mu.Unlock()
	if insp.selected >= len(insp.rawFrames) {
		return nil, dbgerr.New(dbgerr.InvalidState, "no active call frame")
	}
	cf := insp.rawFrames[insp.selected]
	out := make([]Scope, 0, len(cf.ScopeChain))
	for _, s := range cf.ScopeChain {
		ref := insp.mintRefLocked(s.Object.ObjectID)
		out = append(out, Scope{Type: s.Type, Name: s.Name, ObjectRef: ref})
	}
	return out, nil
}

// mintRefLocked allocates an epoch-qualified opaque reference for an
// inspector object ID. Must be called with insp.mu held.
func (insp *Inspector) mintRefLocked(objectID string) string {
	if objectID == "" {
		return ""
	}
	ref := fmt.Sprintf("%d:%s", insp.epoch, objectID)
	insp.refToObject[ref] = refEntry{epoch: insp.epoch, objectID: objectID}
	return ref
}

// resolveRef maps an opaque reference back to an inspector object ID,
// failing with StaleReference if it belongs to an earlier pause epoch.
func (insp *Inspector) resolveRef(ref string) (string, error) {
	insp.mu.Lock()
	defer insp.mu.Unlock()
	e, ok := insp.refToObject[ref]
	if !ok || e.epoch != insp.epoch {
		return "", dbgerr.New(dbgerr.StaleReference, "object reference %s is from a previous pause and is no longer valid", ref)
	}
	return e.objectID, nil
}

// GetProperties expands an object reference into its named properties
// (spec.md §4.6 "Property expansion").
func (insp *Inspector) GetProperties(ctx context.Context, ref string) ([]Value, error) {
	objectID, err := insp.resolveRef(ref)
	if err != nil {
		return nil, err
	}

	result, err := insp.tr.Send(ctx, "Runtime.getProperties", map[string]any{
		"objectId":      objectID,
		"ownProperties": true,
	})
	if err != nil {
		return nil, dbgerr.Wrap(dbgerr.Internal, err, "failed to get properties for %s", ref)
	}

	var resp struct {
		Result []struct {
			Name  string               `json:"name"`
			Value *cdpwire.RemoteObject `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, dbgerr.Wrap(dbgerr.Internal, err, "malformed getProperties response")
	}

	insp.mu.Lock()
	defer insp.mu.Unlock()
	out := make([]Value, 0, len(resp.Result))
	for _, p := range resp.Result {
		if p.Value == nil {
			continue
		}
		out = append(out, insp.toValueLocked(p.Name, *p.Value))
	}
	return out, nil
}

func (insp *Inspector) toValueLocked(name string, ro cdpwire.RemoteObject) Value {
	v := Value{
		Type:        ro.Type,
		Description: ro.Description,
		RawValue:    ro.Value,
	}
	switch ro.Type {
	case "undefined":
		v.Tag = TagUndefined
	case "function":
		v.Tag = TagFunction
	case "object":
		v.Tag = TagObject
		v.HasChildren = ro.ObjectID != ""
		v.ObjectRef = insp.mintRefLocked(ro.ObjectID)
	default:
		v.Tag = TagPrimitive
	}
	_ = name
	return v
}

// Evaluate runs an expression against the currently selected frame via
// Debugger.evaluateOnCallFrame (spec.md §4.6 "Evaluate"). With no pause
// active, there is no call frame to target, so it falls back to the global
// Runtime.evaluate primitive instead of refusing the call outright — a
// watch or an inspect call issued while the target is running still gets a
// top-level evaluation (spec.md §4.6 edge case: evaluate while running).
func (insp *Inspector) Evaluate(ctx context.Context, expression string) (Value, error) {
	insp.mu.Lock()
	hasFrame := insp.selected < len(insp.rawFrames)
	var callFrameID string
	if hasFrame {
		callFrameID = insp.rawFrames[insp.selected].CallFrameID
	}
	insp.mu.Unlock()

	var (
		result json.RawMessage
		err    error
	)
	if hasFrame {
		result, err = insp.tr.Send(ctx, "Debugger.evaluateOnCallFrame", map[string]any{
			"callFrameId": callFrameID,
			"expression":  expression,
			"silent":      true,
		})
	} else {
		result, err = insp.tr.Send(ctx, "Runtime.evaluate", map[string]any{
			"expression": expression,
			"silent":     true,
		})
	}
	if err != nil {
		return Value{}, dbgerr.Wrap(dbgerr.ConditionError, err, "failed to evaluate expression")
	}

	var resp struct {
		Result           cdpwire.RemoteObject      `json:"result"`
		ExceptionDetails *cdpwire.ExceptionDetails `json:"exceptionDetails,omitempty"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return Value{}, dbgerr.Wrap(dbgerr.Internal, err, "malformed evaluate response")
	}
	if resp.ExceptionDetails != nil {
		return Value{}, dbgerr.New(dbgerr.ConditionError, "expression threw: %s", resp.ExceptionDetails.Text)
	}

	insp.mu.Lock()
	defer insp.mu.Unlock()
	return insp.toValueLocked("", resp.Result), nil
}
