package cdpwire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTripRequest(t *testing.T) {
	msg := Message{
		ID:     7,
		Method: "Debugger.resume",
		Params: json.RawMessage(`{"terminateOnResume":false}`),
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, msg.Method, decoded.Method)
	assert.JSONEq(t, string(msg.Params), string(decoded.Params))
}

func TestMessageRoundTripErrorResponse(t *testing.T) {
	raw := []byte(`{"id":3,"error":{"code":-32000,"message":"breakpoint not found"}}`)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	require.NotNil(t, msg.Error)
	assert.Equal(t, int64(-32000), msg.Error.Code)
	assert.Equal(t, "breakpoint not found", msg.Error.Error())
}

func TestPausedEventDecodesCallFrames(t *testing.T) {
	raw := []byte(`{
		"reason": "breakpoint",
		"hitBreakpoints": ["bp-1"],
		"callFrames": [{
			"callFrameId": "frame-0",
			"functionName": "main",
			"location": {"scriptId": "42", "lineNumber": 10, "columnNumber": 2},
			"url": "file:///app.js",
			"scopeChain": [{"type": "local", "object": {"type": "object", "objectId": "obj-1"}}],
			"this": {"type": "undefined"}
		}]
	}`)
	var ev PausedEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, "breakpoint", ev.Reason)
	assert.Equal(t, []string{"bp-1"}, ev.HitBreakpoints)
	require.Len(t, ev.CallFrames, 1)
	frame := ev.CallFrames[0]
	assert.Equal(t, "main", frame.FunctionName)
	require.Len(t, frame.ScopeChain, 1)
	assert.Equal(t, "local", frame.ScopeChain[0].Type)
	assert.Equal(t, "42", frame.Location.ScriptID)
}
