// Package hang implements hang detection without a full debugger attach
// (spec.md §4.7 "Hang detection"): periodically sample the top stack frame
// of a running target and declare it hung once K consecutive samples land
// on the same location.
//
// Grounded on the lightweight polling loop shape of the teacher's
// internal/debugging/debugger.go handleCDPConnection stub, replaced here
// with a real Runtime.evaluate-driven sampler rather than a no-op ticker.
package hang

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/apex-build/cdp-debugger/internal/dbgerr"
	"github.com/apex-build/cdp-debugger/internal/launcher"
	"github.com/apex-build/cdp-debugger/internal/transport"
)

// Outcome is the verdict of one Detect call (spec.md §3 "HangVerdict").
type Outcome string

const (
	Hung      Outcome = "hung"
	Running   Outcome = "running"
	Completed Outcome = "completed"
)

// Result carries the verdict plus the sampled location when hung.
type Result struct {
	Outcome  Outcome
	Location string
	Samples  int
}

// DefaultConsecutiveSamples is how many identical top-frame samples in a
// row mark the target as hung (spec.md §4.7 edge case: tight busy loop).
const DefaultConsecutiveSamples = 5

// SampleInterval is the spacing between samples.
const SampleInterval = 200 * time.Millisecond

// Detect launches the target and attaches a bare transport rather than a
// full session (Runtime and Debugger are enabled only so the target can be
// resumed; no breakpoints, no pause tracking) and samples its top frame at
// SampleInterval until either the process exits, the sample count reaches
// maxSamples, or DefaultConsecutiveSamples identical samples in a row
// declare it hung.
func Detect(ctx context.Context, target launcher.Target, inspectorPort int, maxSamples int, log *zap.Logger) (Result, error) {
	proc, err := launcher.Launch(ctx, target, inspectorPort)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = proc.Kill() }()

	tr, err := transport.Connect(ctx, proc.WSURL, log)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = tr.Disconnect() }()

	if _, err := tr.Send(ctx, "Runtime.enable", map[string]any{}); err != nil {
		return Result{}, dbgerr.Wrap(dbgerr.Internal, err, "failed to enable runtime for hang sampling")
	}
	// --inspect-brk halts the process before its first statement; resume it
	// immediately since hang detection observes free-running execution.
	if _, err := tr.Send(ctx, "Debugger.enable", map[string]any{}); err == nil {
		_, _ = tr.Send(ctx, "Debugger.resume", map[string]any{})
	}

	var last string
	consecutive := 0

	ticker := time.NewTicker(SampleInterval)
	defer ticker.Stop()

	for i := 0; i < maxSamples; i++ {
		select {
		case <-proc.Done():
			return Result{Outcome: Completed, Samples: i}, nil
		case <-ctx.Done():
			return Result{}, dbgerr.New(dbgerr.CommandTimeout, "hang detection cancelled after %d samples", i)
		case <-ticker.C:
		}

		loc, err := sampleTopFrame(ctx, tr)
		if err != nil {
			continue // target busy evaluating or momentarily unresponsive; keep sampling
		}
		if loc == last {
			consecutive++
		} else {
			consecutive = 1
			last = loc
		}
		if consecutive >= DefaultConsecutiveSamples {
			return Result{Outcome: Hung, Location: loc, Samples: i + 1}, nil
		}
	}

	return Result{Outcome: Running, Location: last, Samples: maxSamples}, nil
}

// sampleTopFrame asks V8 for the current stack via an interrupting
// evaluate, which is cheaper than a full Debugger.pause/resume cycle and
// does not disturb any breakpoints (there are none in a hang-detection
// launch anyway).
func sampleTopFrame(ctx context.Context, tr *transport.Transport) (string, error) {
	result, err := tr.Send(ctx, "Runtime.evaluate", map[string]any{
		"expression":    "new Error().stack",
		"returnByValue": true,
		"timeout":       50,
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		Result struct {
			Value string `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", err
	}
	return resp.Result.Value, nil
}
