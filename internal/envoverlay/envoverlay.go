// Package envoverlay applies a per-node environment overlay to the host
// process environment for the duration of an inline executor call,
// serialising concurrent overlays through one mutex so overlapping inline
// nodes in the same flow cannot observe each other's overlay.
//
// Grounded in original_source/conductor/utils.py:scoped_env.
package envoverlay

import (
	"os"
	"sync"
)

var mu sync.Mutex

// Apply sets env into os.Environ, runs fn, then restores whatever was
// there before (or unsets the key if it was previously unset). The overlay
// holds the package mutex so no other Apply call can interleave its own
// overlay; a node with no env to set skips the lock entirely so unrelated
// concurrent inline invocations are never serialised against each other.
func Apply(env map[string]string, fn func()) {
	if len(env) == 0 {
		fn()
		return
	}

	mu.Lock()
	defer mu.Unlock()

	type saved struct {
		value   string
		existed bool
	}
	original := make(map[string]saved, len(env))
	for k, v := range env {
		prev, existed := os.LookupEnv(k)
		original[k] = saved{value: prev, existed: existed}
		os.Setenv(k, v)
	}
	defer func() {
		for k, s := range original {
			if s.existed {
				os.Setenv(k, s.value)
			} else {
				os.Unsetenv(k)
			}
		}
	}()

	fn()
}
