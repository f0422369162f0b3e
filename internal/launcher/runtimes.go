package launcher

import (
	"fmt"
	"os/exec"
	"regexp"
)

// nodeURLPattern matches Node's inspector banner:
// "Debugger listening on ws://127.0.0.1:9229/1a2b3c4d-..."
var nodeURLPattern = regexp.MustCompile(`Debugger listening on (ws://\S+)`)

type nodeRuntime struct{}

func (nodeRuntime) Language() string   { return "javascript" }
func (nodeRuntime) Aliases() []string  { return []string{"js", "node", "nodejs"} }

func (nodeRuntime) BuildCommand(t Target, port int) (*exec.Cmd, *regexp.Regexp, error) {
	nodePath, err := exec.LookPath("node")
	if err != nil {
		return nil, nil, fmt.Errorf("node not found on PATH: %w", err)
	}
	args := []string{
		fmt.Sprintf("--inspect-brk=127.0.0.1:%d", port),
		"--enable-source-maps",
		t.EntryPoint,
	}
	args = append(args, t.Args...)
	return exec.Command(nodePath, args...), nodeURLPattern, nil
}

// pythonURLPattern matches debugpy's adapter banner when started with
// --wait-for-client and a DAP-to-CDP-shaped proxy is not in play; here we
// document the contract the orchestrator relies on rather than depending on
// a vendored adapter: the launch wrapper script must print a line of the
// form "Debugger listening on ws://host:port/id" just like Node does, so
// internal/launcher stays language-agnostic above this file.
var pythonURLPattern = regexp.MustCompile(`Debugger listening on (ws://\S+)`)

type pythonRuntime struct{}

func (pythonRuntime) Language() string  { return "python" }
func (pythonRuntime) Aliases() []string { return []string{"py", "python3"} }

func (pythonRuntime) BuildCommand(t Target, port int) (*exec.Cmd, *regexp.Regexp, error) {
	pythonPath, err := exec.LookPath("python3")
	if err != nil {
		pythonPath, err = exec.LookPath("python")
		if err != nil {
			return nil, nil, fmt.Errorf("python not found on PATH: %w", err)
		}
	}
	args := []string{
		"-u",
		"-m", "debugpy",
		"--listen", fmt.Sprintf("127.0.0.1:%d", port),
		"--wait-for-client",
		t.EntryPoint,
	}
	args = append(args, t.Args...)
	return exec.Command(pythonPath, args...), pythonURLPattern, nil
}
