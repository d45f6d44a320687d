package exam

import "sync"

// Registry holds the live runner of each (browser session, test) pair.
// A runner that is replaced or removed is closed.
type Registry struct {
	mu      sync.Mutex
	runners map[registryKey]*Runner
}

type registryKey struct {
	sessionID string
	testID    string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[registryKey]*Runner)}
}

// Put stores r under (sessionID, testID), closing any runner it replaces.
func (g *Registry) Put(sessionID, testID string, r *Runner) {
	key := registryKey{sessionID, testID}

	g.mu.Lock()
	old := g.runners[key]
	g.runners[key] = r
	g.mu.Unlock()

	if old != nil && old != r {
		old.Close()
	}
}

// Get returns the runner for (sessionID, testID).
func (g *Registry) Get(sessionID, testID string) (*Runner, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.runners[registryKey{sessionID, testID}]
	return r, ok
}

// Remove closes and forgets the runner for (sessionID, testID).
func (g *Registry) Remove(sessionID, testID string) {
	key := registryKey{sessionID, testID}

	g.mu.Lock()
	r := g.runners[key]
	delete(g.runners, key)
	g.mu.Unlock()

	if r != nil {
		r.Close()
	}
}

// RemoveSession closes every runner of a browser session.
func (g *Registry) RemoveSession(sessionID string) {
	var closing []*Runner

	g.mu.Lock()
	for key, r := range g.runners {
		if key.sessionID == sessionID {
			closing = append(closing, r)
			delete(g.runners, key)
		}
	}
	g.mu.Unlock()

	for _, r := range closing {
		r.Close()
	}
}

// Len returns the number of live runners.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.runners)
}

// Close closes all runners.
func (g *Registry) Close() {
	g.mu.Lock()
	runners := g.runners
	g.runners = make(map[registryKey]*Runner)
	g.mu.Unlock()

	for _, r := range runners {
		r.Close()
	}
}
