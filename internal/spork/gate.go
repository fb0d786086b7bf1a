// Package spork implements the feature gate the block lock handler consults
// before signing or enforcing anything. It follows the node's own
// environment-variable override idiom (BLOCKNET_CHECKPOINTS_URL and
// friends): each named feature defaults to active, overridable per-process
// for testnets and integration tests.
package spork

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

const envPrefix = "BLOCKLOCK_SPORK_"

// Gate is a process-local feature gate. The zero value is ready to use with
// every feature defaulting to active.
type Gate struct {
	mu        sync.RWMutex
	overrides map[string]bool
}

// NewGate builds a Gate with every feature defaulting to active unless an
// environment override or an explicit SetActive call says otherwise.
func NewGate() *Gate {
	return &Gate{overrides: make(map[string]bool)}
}

// Active reports whether the named feature is currently active: an explicit
// SetActive call wins, then an environment override
// (BLOCKLOCK_SPORK_<UPPER_NAME>=0/1), then the default of active.
func (g *Gate) Active(name string) bool {
	g.mu.RLock()
	if v, ok := g.overrides[name]; ok {
		g.mu.RUnlock()
		return v
	}
	g.mu.RUnlock()

	envName := envPrefix + strings.ToUpper(name)
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return true
}

// SetActive overrides name's state for the lifetime of this Gate, taking
// precedence over any environment variable. Used by tests and by an
// operator-facing RPC to flip a spork without restarting the process.
func (g *Gate) SetActive(name string, active bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.overrides == nil {
		g.overrides = make(map[string]bool)
	}
	g.overrides[name] = active
}
