// Package sourcemap translates between original-source and compiled-script
// coordinates using V8-style source maps (spec.md §4.3 "Source map
// translation"). Grounded on github.com/go-sourcemap/sourcemap, the parser
// attested across the example pack's build tooling.
package sourcemap

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-sourcemap/sourcemap"
	"go.uber.org/zap"
)

// Position is a 1-based line, 0-based column location in either the
// original source or a compiled script (spec.md §3 "Location").
type Position struct {
	Source string
	Line   int
	Column int
}

// sourceMappingURLPattern finds a trailing `//# sourceMappingURL=...` or
// `//@ sourceMappingURL=...` comment in compiled output.
var sourceMappingURLPattern = regexp.MustCompile(`(?:^|\n)//[#@]\s*sourceMappingURL=(\S+)\s*$`)

// Manager caches parsed source maps per compiled-script path and logs a
// parse failure once instead of on every lookup (spec.md §4.3 edge case:
// malformed map).
type Manager struct {
	log       *zap.Logger
	sourceDir string
	outputDir string

	mu      sync.Mutex
	byPath  map[string]*entry
	warned  map[string]bool
	client  *http.Client
}

type entry struct {
	consumer *sourcemap.Consumer
	err      error
}

// NewManager constructs an empty Manager. sourceDir/outputDir, when both
// non-empty, let FindCompiled remap a source tree onto the directory a build
// step emits into (e.g. "src" -> "dist"), sourced from config.
func NewManager(log *zap.Logger, sourceDir, outputDir string) *Manager {
	return &Manager{
		log:       log,
		sourceDir: sourceDir,
		outputDir: outputDir,
		byPath:    make(map[string]*entry),
		warned:    make(map[string]bool),
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

// MapCompiledToSource translates a compiled-script position to its original
// source position. ok is false when the script has no usable source map or
// the position has no mapping, in which case callers should fall back to
// presenting the compiled position directly (spec.md §5 edge case).
func (m *Manager) MapCompiledToSource(scriptPath string, scriptContent string, line, column int) (Position, bool) {
	c, err := m.consumerFor(scriptPath, scriptContent)
	if err != nil || c == nil {
		return Position{}, false
	}
	file, fn, srcLine, srcCol, ok := c.Source(line, column)
	_ = fn
	if !ok {
		return Position{}, false
	}
	return Position{Source: file, Line: srcLine, Column: srcCol}, true
}

// maxReverseScanLines bounds the linear probe in MapSourceToCompiled: the
// Consumer only exposes a forward (compiled -> source) lookup, so resolving
// a breakpoint set against an original source file means walking compiled
// lines until one maps back to the requested source position.
const maxReverseScanLines = 200000

// MapSourceToCompiled translates an original-source position to a compiled
// position. Used to resolve a breakpoint set against a TypeScript/JSX
// source file down to the JavaScript line the runtime actually executes.
func (m *Manager) MapSourceToCompiled(scriptPath, scriptContent, sourceFile string, line, column int) (Position, bool) {
	c, err := m.consumerFor(scriptPath, scriptContent)
	if err != nil || c == nil {
		return Position{}, false
	}
	consecutiveMisses := 0
	for genLine := 1; genLine <= maxReverseScanLines; genLine++ {
		src, _, srcLine, _, ok := c.Source(genLine, column)
		if !ok {
			consecutiveMisses++
			if consecutiveMisses > 1000 {
				break // past the end of the compiled file
			}
			continue
		}
		consecutiveMisses = 0
		if sourceMatches(src, sourceFile) && srcLine == line {
			return Position{Line: genLine, Column: column}, true
		}
	}
	return Position{}, false
}

func sourceMatches(mapped, requested string) bool {
	if mapped == requested {
		return true
	}
	return filepath.Base(mapped) == filepath.Base(requested)
}

// compiledSuffixRewrites is the ordered list of source-extension ->
// compiled-extension rewrites FindCompiled tries, most specific first
// (spec.md §4.3 "find_compiled").
var compiledSuffixRewrites = []struct{ from, to string }{
	{".tsx", ".js"},
	{".jsx", ".js"},
	{".ts", ".js"},
	{".mts", ".mjs"},
	{".cts", ".cjs"},
}

// FindCompiled guesses the compiled script path a breakpoint set against an
// original source file should resolve to, before that script's content (and
// therefore its source map) is available to confirm the guess via
// MapSourceToCompiled. It tries, in order: the path unchanged (plain JS
// projects), each known extension rewrite applied directly, and then the
// same rewrites again under the configured output-directory remap. ok is
// false when no candidate file exists on disk, and sourceFile itself is
// returned, in which case callers should fall back to treating sourceFile
// as already-compiled.
func (m *Manager) FindCompiled(sourceFile string) (string, bool) {
	for _, candidate := range m.candidates(sourceFile) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return sourceFile, false
}

func (m *Manager) candidates(sourceFile string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	add(sourceFile)
	for _, rw := range compiledSuffixRewrites {
		if strings.HasSuffix(sourceFile, rw.from) {
			add(strings.TrimSuffix(sourceFile, rw.from) + rw.to)
		}
	}

	if m.sourceDir != "" && m.outputDir != "" {
		if remapped, ok := remapDir(sourceFile, m.sourceDir, m.outputDir); ok {
			add(remapped)
			for _, rw := range compiledSuffixRewrites {
				if strings.HasSuffix(remapped, rw.from) {
					add(strings.TrimSuffix(remapped, rw.from) + rw.to)
				}
			}
		}
	}
	return out
}

// remapDir rewrites a path rooted under sourceDir to the equivalent path
// rooted under outputDir, matching the layout a bundler/transpiler preserves
// between its input and output trees.
func remapDir(path, sourceDir, outputDir string) (string, bool) {
	rel, err := filepath.Rel(sourceDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.Join(outputDir, rel), true
}

func (m *Manager) consumerFor(scriptPath, scriptContent string) (*sourcemap.Consumer, error) {
	m.mu.Lock()
	if e, ok := m.byPath[scriptPath]; ok {
		m.mu.Unlock()
		return e.consumer, e.err
	}
	m.mu.Unlock()

	c, err := m.parse(scriptPath, scriptContent)

	m.mu.Lock()
	m.byPath[scriptPath] = &entry{consumer: c, err: err}
	if err != nil && !m.warned[scriptPath] {
		m.warned[scriptPath] = true
		if m.log != nil {
			m.log.Warn("failed to parse source map, falling back to compiled coordinates",
				zap.String("script", scriptPath), zap.Error(err))
		}
	}
	m.mu.Unlock()

	return c, err
}

func (m *Manager) parse(scriptPath, scriptContent string) (*sourcemap.Consumer, error) {
	data, mapURL, err := m.locate(scriptPath, scriptContent)
	if err != nil {
		return nil, err
	}
	c, err := sourcemap.Parse(mapURL, data)
	if err != nil {
		return nil, fmt.Errorf("parsing source map for %s: %w", scriptPath, err)
	}
	return c, nil
}

// locate finds the raw map bytes for a compiled script: first a trailing
// sourceMappingURL comment (data: URL or sibling file/HTTP reference), else
// a conventional "<script>.map" sibling file.
func (m *Manager) locate(scriptPath, scriptContent string) (data []byte, mapURL string, err error) {
	if match := sourceMappingURLPattern.FindStringSubmatch(scriptContent); match != nil {
		ref := match[1]
		if strings.HasPrefix(ref, "data:") {
			b, derr := decodeDataURL(ref)
			if derr != nil {
				return nil, "", derr
			}
			return b, scriptPath, nil
		}
		if u, perr := url.Parse(ref); perr == nil && u.IsAbs() {
			b, herr := m.fetch(ref)
			if herr != nil {
				return nil, "", herr
			}
			return b, ref, nil
		}
		siblingPath := filepath.Join(filepath.Dir(scriptPath), ref)
		b, rerr := os.ReadFile(siblingPath)
		if rerr != nil {
			return nil, "", rerr
		}
		return b, siblingPath, nil
	}

	conventional := scriptPath + ".map"
	b, rerr := os.ReadFile(conventional)
	if rerr != nil {
		return nil, "", fmt.Errorf("no sourceMappingURL comment and no %s: %w", conventional, rerr)
	}
	return b, conventional, nil
}

func (m *Manager) fetch(u string) ([]byte, error) {
	resp, err := m.client.Get(u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func decodeDataURL(ref string) ([]byte, error) {
	idx := strings.Index(ref, ",")
	if idx < 0 {
		return nil, fmt.Errorf("malformed data URL sourceMappingURL")
	}
	meta, payload := ref[:idx], ref[idx+1:]
	if strings.Contains(meta, ";base64") {
		return base64Decode(payload)
	}
	decoded, err := url.QueryUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(decoded), nil
}

func base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
