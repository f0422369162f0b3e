package sourcemap

import (
	"encoding/base64"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceMatches(t *testing.T) {
	assert.True(t, sourceMatches("src/app.ts", "src/app.ts"))
	assert.True(t, sourceMatches("/abs/path/app.ts", "app.ts"))
	assert.False(t, sourceMatches("app.ts", "other.ts"))
}

func TestDecodeDataURLBase64(t *testing.T) {
	payload := `{"version":3,"sources":["app.ts"],"names":[],"mappings":"AAAA"}`
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))
	ref := "data:application/json;base64," + encoded

	data, err := decodeDataURL(ref)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(data))
}

func TestDecodeDataURLRejectsMalformed(t *testing.T) {
	_, err := decodeDataURL("data:application/json;base64-no-comma")
	assert.Error(t, err)
}

func TestMapCompiledToSourceFromInlineDataURL(t *testing.T) {
	mgr := NewManager(nil, "", "")
	sourceMap := `{"version":3,"sources":["app.ts"],"names":[],"mappings":"AAAA"}`
	encoded := base64.StdEncoding.EncodeToString([]byte(sourceMap))
	scriptContent := "console.log(1);\n//# sourceMappingURL=data:application/json;base64," + encoded

	pos, ok := mgr.MapCompiledToSource("/tmp/app.js", scriptContent, 1, 0)
	require.True(t, ok)
	assert.Equal(t, "app.ts", pos.Source)
}

func TestMapCompiledToSourceFailsGracefullyWithoutMap(t *testing.T) {
	mgr := NewManager(nil, "", "")
	pos, ok := mgr.MapCompiledToSource("/tmp/nonexistent.js", "console.log(1);", 1, 0)
	assert.False(t, ok)
	assert.Equal(t, Position{}, pos)
}

func TestConsumerForCachesParseFailureAndWarnsOnce(t *testing.T) {
	mgr := NewManager(nil, "", "")
	_, err1 := mgr.consumerFor("/tmp/missing.js", "no sourcemap comment here")
	_, err2 := mgr.consumerFor("/tmp/missing.js", "no sourcemap comment here")
	require.Error(t, err1)
	require.Error(t, err2)
	assert.True(t, mgr.warned["/tmp/missing.js"])
}

func TestFindCompiledRewritesKnownExtensions(t *testing.T) {
	mgr := NewManager(nil, "", "")
	candidates := mgr.candidates("src/app.ts")
	assert.Contains(t, candidates, "src/app.ts")
	assert.Contains(t, candidates, "src/app.js")
}

func TestFindCompiledFallsBackToSourceFileWhenNothingExists(t *testing.T) {
	mgr := NewManager(nil, "", "")
	compiled, ok := mgr.FindCompiled("does/not/exist.ts")
	assert.False(t, ok)
	assert.Equal(t, "does/not/exist.ts", compiled)
}

func TestFindCompiledPrefersExistingCompiledFile(t *testing.T) {
	dir := t.TempDir()
	sourceDir := dir + "/src"
	outputDir := dir + "/dist"
	require.NoError(t, os.MkdirAll(sourceDir, 0o755))
	require.NoError(t, os.MkdirAll(outputDir, 0o755))
	require.NoError(t, os.WriteFile(outputDir+"/app.js", []byte("console.log(1);"), 0o644))

	mgr := NewManager(nil, sourceDir, outputDir)
	compiled, ok := mgr.FindCompiled(sourceDir + "/app.ts")
	require.True(t, ok)
	assert.Equal(t, outputDir+"/app.js", compiled)
}

func TestRemapDirRejectsPathsOutsideSourceDir(t *testing.T) {
	_, ok := remapDir("/other/app.ts", "/src", "/dist")
	assert.False(t, ok)
}
