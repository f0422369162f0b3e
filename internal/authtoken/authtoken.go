// Package authtoken enforces the optional bearer-token check on every
// tools/call request (spec.md §6 "Authentication"). Constant-time
// comparison avoids leaking the configured token through response timing.
package authtoken

import (
	"crypto/subtle"

	"github.com/apex-build/cdp-debugger/internal/dbgerr"
)

// Checker validates a presented token against the configured one.
type Checker struct {
	expected string
}

// New constructs a Checker. An empty expected token disables the check
// entirely (Check always succeeds) — the caller is responsible for
// refusing to run this way in production (internal/config.Load already
// does, via its production-requires-token validation).
func New(expected string) *Checker {
	return &Checker{expected: expected}
}

// Enabled reports whether a token is configured.
func (c *Checker) Enabled() bool { return c.expected != "" }

// Check validates presented against the configured token in constant time.
func (c *Checker) Check(presented string) error {
	if !c.Enabled() {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(c.expected)) != 1 {
		return dbgerr.New(dbgerr.Unauthorized, "invalid or missing auth token")
	}
	return nil
}
