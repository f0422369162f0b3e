package launcher

import (
	"strings"
	"testing"

	"github.com/apex-build/cdp-debugger/internal/dbgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupResolvesAliases(t *testing.T) {
	for _, alias := range []string{"javascript", "js", "node", "nodejs", "JS", " node "} {
		rt, err := lookup(alias)
		require.NoError(t, err, "alias %q should resolve", alias)
		assert.Equal(t, "javascript", rt.Language())
	}

	for _, alias := range []string{"python", "py", "python3"} {
		rt, err := lookup(alias)
		require.NoError(t, err, "alias %q should resolve", alias)
		assert.Equal(t, "python", rt.Language())
	}
}

func TestLookupRejectsUnknownLanguage(t *testing.T) {
	_, err := lookup("ruby")
	require.Error(t, err)
	assert.Equal(t, dbgerr.InvalidTarget, dbgerr.KindOf(err))
}

func TestNodeURLPatternExtractsWebSocketURL(t *testing.T) {
	line := "Debugger listening on ws://127.0.0.1:9229/1a2b3c4d-uuid"
	m := nodeURLPattern.FindStringSubmatch(line)
	require.NotNil(t, m)
	assert.Equal(t, "ws://127.0.0.1:9229/1a2b3c4d-uuid", m[1])
}

func TestScanForURLFindsMatchAcrossLines(t *testing.T) {
	r := strings.NewReader("starting up\nDebugger listening on ws://127.0.0.1:9230/abc\nready\n")
	out := make(chan string, 1)
	scanForURL(r, nodeURLPattern, out)

	select {
	case url := <-out:
		assert.Equal(t, "ws://127.0.0.1:9230/abc", url)
	default:
		t.Fatal("expected a URL to be found")
	}
}

func TestScanForURLNoMatchSendsNothing(t *testing.T) {
	r := strings.NewReader("nothing interesting here\n")
	out := make(chan string, 1)
	scanForURL(r, nodeURLPattern, out)

	select {
	case url := <-out:
		t.Fatalf("expected no URL, got %q", url)
	default:
	}
}
