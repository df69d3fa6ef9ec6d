package cache

import (
	"regexp"
	"strconv"
	"sync"
)

// DependencyTracker maintains monotonically increasing version counters
// per logical dependency key. Consumers fold the current version into
// their own cache keys (see VersionedKey); bumping a version makes every
// derived key unreachable without enumerating or deleting the entries
// themselves — they simply stop being looked up and age out.
//
// The tracker stores no values and knows nothing about the Manager.
type DependencyTracker struct {
	mu       sync.RWMutex
	versions map[string]uint64
}

// NewDependencyTracker returns an empty tracker. Like the Manager, it is
// meant to be constructed once at startup and injected.
func NewDependencyTracker() *DependencyTracker {
	return &DependencyTracker{versions: make(map[string]uint64)}
}

// Version returns the current version for key; unseen keys are version 0.
func (t *DependencyTracker) Version(key string) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.versions[key]
}

// Invalidate bumps key's version, returning the new value.
func (t *DependencyTracker) Invalidate(key string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.versions[key]++
	return t.versions[key]
}

// InvalidatePattern bumps every tracked key matching re, returning how
// many were bumped. Keys never seen by Version or Invalidate are not
// tracked and cannot match.
func (t *DependencyTracker) InvalidatePattern(re *regexp.Regexp) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for key := range t.versions {
		if re.MatchString(key) {
			t.versions[key]++
			n++
		}
	}
	return n
}

// VersionedKey renders key with its current version folded in, e.g.
// "user:42@v3", for embedding into cache keys.
func (t *DependencyTracker) VersionedKey(key string) string {
	return key + "@v" + strconv.FormatUint(t.Version(key), 10)
}
