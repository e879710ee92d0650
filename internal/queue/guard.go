package queue

import "sync"

// RunGuard is the single-flight gate over the target interface. TryAcquire
// either claims the slot immediately or reports it busy; callers are never
// queued behind a live run.
type RunGuard struct {
	mu      sync.Mutex
	running bool
}

// TryAcquire claims the guard. The returned release is idempotent and must
// be called (normally deferred) once the run ends, whatever its outcome.
func (g *RunGuard) TryAcquire() (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return nil, false
	}
	g.running = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			g.running = false
		})
	}, true
}

// Busy reports whether a run currently holds the guard.
func (g *RunGuard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}
