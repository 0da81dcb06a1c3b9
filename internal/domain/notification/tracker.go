package notification

import (
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultTrackerCapacity bounds how many entities a Tracker remembers.
const DefaultTrackerCapacity = 10000

// Tracker remembers the newest version seen per entity so duplicate or
// out-of-order deliveries can be discarded. Only the most recently touched
// entities are kept; an evicted entity accepts its next delivery as new.
type Tracker struct {
	mu   sync.Mutex
	seen *lru.Cache
}

type trackerKey struct {
	entityType EntityType
	entityID   uuid.UUID
}

func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultTrackerCapacity
	}
	seen, _ := lru.New(capacity) // only fails for a non-positive size
	return &Tracker{seen: seen}
}

// ShouldApply records version and reports true only if it is strictly newer.
func (t *Tracker) ShouldApply(entityType EntityType, entityID uuid.UUID, version int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := trackerKey{entityType: entityType, entityID: entityID}
	if cur, ok := t.seen.Get(k); ok && version <= cur.(int64) {
		return false
	}
	t.seen.Add(k, version)
	return true
}

// Len reports how many entities are currently tracked.
func (t *Tracker) Len() int {
	return t.seen.Len()
}
