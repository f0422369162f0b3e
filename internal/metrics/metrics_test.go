package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinkCounters(t *testing.T) {
	s := NewSink()
	s.IncToolCall(false)
	s.IncToolCall(true)
	s.IncSessionStarted()
	s.IncSessionCrashed()
	s.IncBreakpointHit()

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap.ToolCallsTotal)
	assert.Equal(t, int64(1), snap.ToolCallsFailed)
	assert.Equal(t, int64(1), snap.SessionsStarted)
	assert.Equal(t, int64(1), snap.SessionsCrashed)
	assert.Equal(t, int64(1), snap.BreakpointsHit)
}
