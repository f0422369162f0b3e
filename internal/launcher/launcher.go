// Package launcher spawns a managed-runtime process with its inspector
// enabled and discovers the WebSocket URL it prints on startup (spec.md
// §4.1 "Process launch").
//
// Grounded on the language-runner registry in the teacher's
// internal/execution/runner.go (Runner interface, RegisterRunner/GetRunner,
// alias table), generalized here to runtimes capable of exposing a CDP
// inspector rather than ones with a generic exec.Command launcher.
package launcher

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/apex-build/cdp-debugger/internal/dbgerr"
)

// Target describes what to launch (spec.md §3 "Launch target").
type Target struct {
	Language         string
	EntryPoint       string
	WorkingDirectory string
	Args             []string
	Env              []string
}

// Process is a launched inspector-enabled runtime.
type Process struct {
	Cmd       *exec.Cmd
	WSURL     string
	Language  string
	startedAt time.Time
	pty       *os.File

	mu       sync.Mutex
	exited   bool
	exitErr  error
	waitOnce sync.Once
	waitDone chan struct{}
}

// Runtime knows how to build an inspector-enabled launch command for one
// language, mirroring the teacher's Runner interface but narrowed to the
// subset of concerns a debugger orchestrator needs.
type Runtime interface {
	Language() string
	Aliases() []string
	// BuildCommand returns the exec.Cmd to run, plus a regexp that matches
	// the inspector's "listening on" line on the child's stderr/stdout and
	// captures the WebSocket URL in its first group.
	BuildCommand(t Target, inspectorPort int) (*exec.Cmd, *regexp.Regexp, error)
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]Runtime)
)

// Register adds a Runtime under its language name and aliases.
func Register(r Runtime) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[r.Language()] = r
	for _, a := range r.Aliases() {
		registry[a] = r
	}
}

func lookup(language string) (Runtime, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	language = strings.ToLower(strings.TrimSpace(language))
	r, ok := registry[language]
	if !ok {
		return nil, dbgerr.New(dbgerr.InvalidTarget, "unsupported debug target language: %s", language)
	}
	return r, nil
}

func init() {
	Register(&nodeRuntime{})
	Register(&pythonRuntime{})
}

// discoverTimeout bounds how long Launch waits for the runtime to print its
// inspector URL before giving up (spec.md §4.1).
const discoverTimeout = 10 * time.Second

// Launch starts the target process with its inspector enabled and blocks
// until the inspector's WebSocket URL has been discovered or ctx expires.
func Launch(ctx context.Context, t Target, inspectorPort int) (*Process, error) {
	rt, err := lookup(t.Language)
	if err != nil {
		return nil, err
	}

	cmd, urlPattern, err := rt.BuildCommand(t, inspectorPort)
	if err != nil {
		return nil, dbgerr.Wrap(dbgerr.SpawnFailed, err, "failed to build launch command for %s", t.Language)
	}
	if t.WorkingDirectory != "" {
		cmd.Dir = t.WorkingDirectory
	}
	cmd.Env = append(os.Environ(), t.Env...)

	// Run the child under a pty rather than plain pipes: Node and Python
	// both line-buffer stdout once they detect it isn't a terminal, which
	// can delay the inspector banner line past discoverTimeout under load.
	// A pty also merges stdout and stderr into the single stream order the
	// child actually wrote them in, so one scanner suffices instead of two
	// racing goroutines.
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, dbgerr.Wrap(dbgerr.SpawnFailed, err, "failed to start %s process", t.Language)
	}

	p := &Process{
		Cmd:       cmd,
		Language:  t.Language,
		startedAt: time.Now(),
		pty:       ptmx,
		waitDone:  make(chan struct{}),
	}
	go p.waitForExit()

	urlCh := make(chan string, 1)
	go scanForURL(ptmx, urlPattern, urlCh)

	discoverCtx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	select {
	case url := <-urlCh:
		p.WSURL = url
		return p, nil
	case <-discoverCtx.Done():
		_ = p.Kill()
		return nil, dbgerr.New(dbgerr.AttachTimeout, "timed out waiting for inspector URL from %s process", t.Language)
	case <-p.waitDone:
		return nil, dbgerr.Wrap(dbgerr.TargetCrashed, p.exitErr, "%s process exited before inspector was ready", t.Language)
	}
}

func scanForURL(r interface{ Read([]byte) (int, error) }, pattern *regexp.Regexp, out chan<- string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := pattern.FindStringSubmatch(line); m != nil {
			select {
			case out <- m[1]:
			default:
			}
			// Keep draining so the child's pipe never fills and blocks it.
		}
	}
}

func (p *Process) waitForExit() {
	err := p.Cmd.Wait()
	p.mu.Lock()
	p.exited = true
	p.exitErr = err
	p.mu.Unlock()
	if p.pty != nil {
		_ = p.pty.Close()
	}
	close(p.waitDone)
}

// Exited reports whether the process has already exited, and its error if so.
func (p *Process) Exited() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.exitErr
}

// Done returns a channel closed when the process has exited.
func (p *Process) Done() <-chan struct{} { return p.waitDone }

// Kill sends SIGKILL immediately, with no SIGTERM first.
func (p *Process) Kill() error {
	if p.Cmd.Process == nil {
		return nil
	}
	return p.Cmd.Process.Kill()
}

// Signal sends an arbitrary signal, used by session teardown to try SIGTERM
// before escalating to Kill (spec.md §4.5 "Stop").
func (p *Process) Signal(sig os.Signal) error {
	if p.Cmd.Process == nil {
		return nil
	}
	return p.Cmd.Process.Signal(sig)
}
