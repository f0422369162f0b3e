package variables

import (
	"testing"

	"github.com/apex-build/cdp-debugger/internal/cdpwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInspector() *Inspector {
	return &Inspector{refToObject: make(map[string]refEntry)}
}

func TestNewPauseBuildsFramesAndBumpsEpoch(t *testing.T) {
	insp := newTestInspector()
	insp.NewPause([]cdpwire.CallFrame{
		{CallFrameID: "cf-0", FunctionName: "main", URL: "app.js", Location: cdpwire.Location{ScriptID: "1", LineNumber: 10, ColumnNumber: 2}},
		{CallFrameID: "cf-1", FunctionName: "caller", URL: "app.js", Location: cdpwire.Location{ScriptID: "1", LineNumber: 20}},
	})

	stack := insp.Stack()
	require.Len(t, stack, 2)
	assert.Equal(t, "main", stack[0].FunctionName)
	assert.Equal(t, 0, stack[0].Index)
	assert.Equal(t, int64(1), insp.epoch)
}

func TestSwitchFrameRejectsOutOfRange(t *testing.T) {
	insp := newTestInspector()
	insp.NewPause([]cdpwire.CallFrame{{CallFrameID: "cf-0"}})

	assert.NoError(t, insp.SwitchFrame(0))
	assert.Error(t, insp.SwitchFrame(5))
	assert.Error(t, insp.SwitchFrame(-1))
}

func TestScopesMintsReferences(t *testing.T) {
	insp := newTestInspector()
	insp.NewPause([]cdpwire.CallFrame{
		{
			CallFrameID: "cf-0",
			ScopeChain: []cdpwire.Scope{
				{Type: "local", Object: cdpwire.RemoteObject{Type: "object", ObjectID: "obj-1"}},
			},
		},
	})

	scopes, err := insp.Scopes()
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.NotEmpty(t, scopes[0].ObjectRef)

	objectID, err := insp.resolveRef(scopes[0].ObjectRef)
	require.NoError(t, err)
	assert.Equal(t, "obj-1", objectID)
}

func TestResolveRefRejectsStaleEpoch(t *testing.T) {
	insp := newTestInspector()
	insp.NewPause([]cdpwire.CallFrame{
		{
			CallFrameID: "cf-0",
			ScopeChain: []cdpwire.Scope{
				{Type: "local", Object: cdpwire.RemoteObject{Type: "object", ObjectID: "obj-1"}},
			},
		},
	})
	scopes, err := insp.Scopes()
	require.NoError(t, err)
	ref := scopes[0].ObjectRef

	insp.Invalidate()

	_, err = insp.resolveRef(ref)
	assert.Error(t, err)
}

func TestToValueLockedClassifiesTypes(t *testing.T) {
	insp := newTestInspector()

	undef := insp.toValueLocked("u", cdpwire.RemoteObject{Type: "undefined"})
	assert.Equal(t, TagUndefined, undef.Tag)

	fn := insp.toValueLocked("f", cdpwire.RemoteObject{Type: "function"})
	assert.Equal(t, TagFunction, fn.Tag)

	prim := insp.toValueLocked("p", cdpwire.RemoteObject{Type: "number"})
	assert.Equal(t, TagPrimitive, prim.Tag)

	obj := insp.toValueLocked("o", cdpwire.RemoteObject{Type: "object", ObjectID: "obj-9"})
	assert.Equal(t, TagObject, obj.Tag)
	assert.True(t, obj.HasChildren)
	assert.NotEmpty(t, obj.ObjectRef)
}
