package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeCPUProfileFindsBottleneck(t *testing.T) {
	prof := cpuProfile{
		StartTime: 0,
		EndTime:   1_000_000,
		Nodes: []cpuProfileNode{
			{ID: 1, HitCount: 80, CallFrame: struct {
				FunctionName string `json:"functionName"`
				URL          string `json:"url"`
				LineNumber   int    `json:"lineNumber"`
			}{FunctionName: "hot", URL: "app.js", LineNumber: 10}},
			{ID: 2, HitCount: 15, CallFrame: struct {
				FunctionName string `json:"functionName"`
				URL          string `json:"url"`
				LineNumber   int    `json:"lineNumber"`
			}{FunctionName: "warm", URL: "app.js", LineNumber: 20}},
			{ID: 3, HitCount: 5, CallFrame: struct {
				FunctionName string `json:"functionName"`
				URL          string `json:"url"`
				LineNumber   int    `json:"lineNumber"`
			}{FunctionName: "cold", URL: "app.js", LineNumber: 30}},
		},
	}

	result := analyzeCPUProfile(prof)
	assert.Equal(t, 100, result.TotalHits)
	assert.Equal(t, 1000.0, result.DurationMS)
	require := assert.New(t)
	require.Len(result.Bottlenecks, 3)
	require.Equal("hot", result.Bottlenecks[0].FunctionName)
	require.Equal("warm", result.Bottlenecks[1].FunctionName)
}

func TestAnalyzeCPUProfileNoSamples(t *testing.T) {
	result := analyzeCPUProfile(cpuProfile{})
	assert.Empty(t, result.Bottlenecks)
	assert.Equal(t, 0, result.TotalHits)
}

func TestDetectLeakFlagsSustainedGrowth(t *testing.T) {
	now := time.Now()
	samples := make([]MemorySample, 0, 10)
	for i := 0; i < 10; i++ {
		samples = append(samples, MemorySample{
			At:        now.Add(time.Duration(i) * time.Second),
			UsedBytes: float64(1_000_000 + i*200_000),
		})
	}
	verdict := DetectLeak(samples)
	assert.True(t, verdict.Leaking)
	assert.Greater(t, verdict.SlopeBPS, 0.0)
}

func TestDetectLeakFlatUsageIsNotLeaking(t *testing.T) {
	now := time.Now()
	samples := []MemorySample{
		{At: now, UsedBytes: 5_000_000},
		{At: now.Add(time.Second), UsedBytes: 5_000_100},
		{At: now.Add(2 * time.Second), UsedBytes: 4_999_950},
	}
	verdict := DetectLeak(samples)
	assert.False(t, verdict.Leaking)
}

func TestBuildTimelineFlagsSlowEntries(t *testing.T) {
	entries := []TimelineEntry{
		{Name: "fast", Duration: 10 * time.Millisecond},
		{Name: "slow", Duration: 150 * time.Millisecond},
	}
	out := BuildTimeline(entries)
	assert.False(t, out[0].Slow)
	assert.True(t, out[1].Slow)
}
