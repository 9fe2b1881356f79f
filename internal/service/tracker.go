package service

import "sync"

// fileTracker remembers which intake files are being handled and how many
// cycles each has failed to stabilize. Entries for files that left the
// directory are pruned on every scan.
type fileTracker struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	unstable map[string]int
}

func newFileTracker() *fileTracker {
	return &fileTracker{
		inflight: make(map[string]struct{}),
		unstable: make(map[string]int),
	}
}

// begin marks name as in flight. It reports false when it already was.
func (t *fileTracker) begin(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inflight[name]; ok {
		return false
	}
	t.inflight[name] = struct{}{}
	return true
}

func (t *fileTracker) done(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, name)
}

// unstableAgain increments and returns the stability retry counter.
func (t *fileTracker) unstableAgain(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unstable[name]++
	return t.unstable[name]
}

func (t *fileTracker) forget(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.unstable, name)
}

// prune drops counters of files not in present.
func (t *fileTracker) prune(present map[string]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name := range t.unstable {
		if _, ok := present[name]; !ok {
			delete(t.unstable, name)
		}
	}
}

func (t *fileTracker) unstableCount(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unstable[name]
}
