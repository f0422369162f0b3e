// Package profiler drives the CDP Profiler and HeapProfiler domains
// (spec.md §4.8 "Profiling"): CPU sampling with self-time bottleneck
// analysis, heap snapshots with a least-squares leak heuristic, and a
// coarse performance timeline of slow operations.
//
// Grounded on the event-channel/analysis shape of the teacher's
// internal/debugging/debugger.go DebugEvent plumbing, new here since the
// teacher never implemented profiling itself.
package profiler

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/apex-build/cdp-debugger/internal/dbgerr"
	"github.com/apex-build/cdp-debugger/internal/transport"
)

// BottleneckSelfTimeThreshold is the minimum share of total sample time a
// function must account for to be reported as a bottleneck (spec.md §4.8
// "CPU profile analysis").
const BottleneckSelfTimeThreshold = 0.05

// SlowOperationThreshold marks a timeline entry as slow (spec.md §4.8
// "Performance timeline").
const SlowOperationThreshold = 100 * time.Millisecond

// CPUProfiler owns one Profiler.start/stop cycle.
type CPUProfiler struct {
	tr      *transport.Transport
	running bool
}

// NewCPUProfiler constructs a profiler bound to an active session's
// transport.
func NewCPUProfiler(tr *transport.Transport) *CPUProfiler {
	return &CPUProfiler{tr: tr}
}

// Start enables the Profiler domain and begins CPU sampling.
func (p *CPUProfiler) Start(ctx context.Context) error {
	if p.running {
		return dbgerr.New(dbgerr.InvalidState, "CPU profiler already running")
	}
	if _, err := p.tr.Send(ctx, "Profiler.enable", map[string]any{}); err != nil {
		return dbgerr.Wrap(dbgerr.Internal, err, "failed to enable profiler")
	}
	if _, err := p.tr.Send(ctx, "Profiler.start", map[string]any{}); err != nil {
		return dbgerr.Wrap(dbgerr.Internal, err, "failed to start CPU profiler")
	}
	p.running = true
	return nil
}

// cpuProfileNode mirrors CDP's Profiler.ProfileNode.
type cpuProfileNode struct {
	ID            int   `json:"id"`
	CallFrame     struct {
		FunctionName string `json:"functionName"`
		URL          string `json:"url"`
		LineNumber   int    `json:"lineNumber"`
	} `json:"callFrame"`
	HitCount int   `json:"hitCount"`
	Children []int `json:"children"`
}

type cpuProfile struct {
	Nodes      []cpuProfileNode `json:"nodes"`
	StartTime  float64          `json:"startTime"`
	EndTime    float64          `json:"endTime"`
	Samples    []int            `json:"samples"`
	TimeDeltas []int            `json:"timeDeltas"`
}

// Bottleneck is one function whose self time reaches the reporting
// threshold.
type Bottleneck struct {
	FunctionName string
	URL          string
	LineNumber   int
	SelfTimeFrac float64
	HitCount     int
}

// CPUResult is the stopped profile plus its bottleneck analysis.
type CPUResult struct {
	DurationMS  float64
	TotalHits   int
	Bottlenecks []Bottleneck
}

// Stop ends CPU sampling and analyzes the returned profile for functions
// whose self time is at least BottleneckSelfTimeThreshold of total samples.
func (p *CPUProfiler) Stop(ctx context.Context) (CPUResult, error) {
	if !p.running {
		return CPUResult{}, dbgerr.New(dbgerr.InvalidState, "CPU profiler is not running")
	}
	p.running = false

	raw, err := p.tr.Send(ctx, "Profiler.stop", map[string]any{})
	if err != nil {
		return CPUResult{}, dbgerr.Wrap(dbgerr.Internal, err, "failed to stop CPU profiler")
	}

	var resp struct {
		Profile cpuProfile `json:"profile"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return CPUResult{}, dbgerr.Wrap(dbgerr.Internal, err, "malformed CPU profile")
	}

	return analyzeCPUProfile(resp.Profile), nil
}

func analyzeCPUProfile(prof cpuProfile) CPUResult {
	totalHits := 0
	byID := make(map[int]cpuProfileNode, len(prof.Nodes))
	for _, n := range prof.Nodes {
		byID[n.ID] = n
		totalHits += n.HitCount
	}

	result := CPUResult{
		DurationMS: (prof.EndTime - prof.StartTime) / 1000,
		TotalHits:  totalHits,
	}
	if totalHits == 0 {
		return result
	}

	for _, n := range prof.Nodes {
		frac := float64(n.HitCount) / float64(totalHits)
		if frac >= BottleneckSelfTimeThreshold {
			result.Bottlenecks = append(result.Bottlenecks, Bottleneck{
				FunctionName: n.CallFrame.FunctionName,
				URL:          n.CallFrame.URL,
				LineNumber:   n.CallFrame.LineNumber,
				SelfTimeFrac: frac,
				HitCount:     n.HitCount,
			})
		}
	}
	sort.Slice(result.Bottlenecks, func(i, j int) bool {
		return result.Bottlenecks[i].SelfTimeFrac > result.Bottlenecks[j].SelfTimeFrac
	})
	return result
}

// HeapSnapshotter drives HeapProfiler.takeHeapSnapshot and basic usage
// sampling for leak detection.
type HeapSnapshotter struct {
	tr *transport.Transport
}

// NewHeapSnapshotter constructs a snapshotter bound to a session's transport.
func NewHeapSnapshotter(tr *transport.Transport) *HeapSnapshotter {
	return &HeapSnapshotter{tr: tr}
}

// TakeSnapshot captures the heap snapshot chunks CDP streams back via
// HeapProfiler.addHeapSnapshotChunk events, concatenated into one string
// (the standard .heapsnapshot JSON format V8 emits).
func (h *HeapSnapshotter) TakeSnapshot(ctx context.Context) (string, error) {
	var chunks []string

	// The subscription outlives this call (Transport has no unsubscribe
	// API), which is harmless: later snapshots simply append to a fresh
	// chunks slice captured by their own closure.
	h.tr.OnEvent("HeapProfiler.addHeapSnapshotChunk", func(raw json.RawMessage) {
		var ev struct {
			Chunk string `json:"chunk"`
		}
		if json.Unmarshal(raw, &ev) == nil {
			chunks = append(chunks, ev.Chunk)
		}
	})

	if _, err := h.tr.Send(ctx, "HeapProfiler.enable", map[string]any{}); err != nil {
		return "", dbgerr.Wrap(dbgerr.Internal, err, "failed to enable heap profiler")
	}
	if _, err := h.tr.Send(ctx, "HeapProfiler.takeHeapSnapshot", map[string]any{"reportProgress": false}); err != nil {
		return "", dbgerr.Wrap(dbgerr.Internal, err, "failed to take heap snapshot")
	}

	result := ""
	for _, c := range chunks {
		result += c
	}
	return result, nil
}

// MemorySample is one point in a heap-usage time series.
type MemorySample struct {
	At        time.Time
	UsedBytes float64
}

// LeakVerdict reports whether a usage series shows a sustained upward
// trend (spec.md §4.8 "Leak detection").
type LeakVerdict struct {
	Leaking   bool
	SlopeBPS  float64 // bytes per second, via least squares
	Samples   int
}

// LeakSlopeThreshold is the minimum bytes/second growth rate, sustained
// across the whole sampling window, before a series is flagged as leaking.
const LeakSlopeThreshold = 1024 * 50 // 50 KB/s

// DetectLeak fits a least-squares line through (time, usedBytes) samples
// and flags a leak when the slope exceeds LeakSlopeThreshold.
func DetectLeak(samples []MemorySample) LeakVerdict {
	n := len(samples)
	if n < 2 {
		return LeakVerdict{Samples: n}
	}

	t0 := samples[0].At
	var sumX, sumY, sumXY, sumXX float64
	for _, s := range samples {
		x := s.At.Sub(t0).Seconds()
		y := s.UsedBytes
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return LeakVerdict{Samples: n}
	}
	slope := (fn*sumXY - sumX*sumY) / denom

	return LeakVerdict{
		Leaking:  slope > LeakSlopeThreshold,
		SlopeBPS: slope,
		Samples:  n,
	}
}

// TimelineEntry is one sampled operation in the performance timeline.
type TimelineEntry struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	Slow     bool
}

// BuildTimeline flags entries exceeding SlowOperationThreshold.
func BuildTimeline(entries []TimelineEntry) []TimelineEntry {
	out := make([]TimelineEntry, len(entries))
	for i, e := range entries {
		e.Slow = e.Duration > SlowOperationThreshold
		out[i] = e
	}
	return out
}
