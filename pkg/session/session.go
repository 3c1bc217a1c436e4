package session

import (
	"sync"

	"github.com/menta2k/ecorecycle/pkg/types"
)

// RequiredPhotos is the number of classified photos that unlocks the exchange
const RequiredPhotos = 3

// Tracker accumulates the photos classified during the current session
type Tracker struct {
	mu       sync.Mutex
	photos   []types.SessionPhoto
	required int
}

// New creates a Tracker with the default threshold
func New() *Tracker {
	return &Tracker{required: RequiredPhotos}
}

// NewWithThreshold creates a Tracker that unlocks after n photos (n < 1 means 1)
func NewWithThreshold(n int) *Tracker {
	if n < 1 {
		n = 1
	}
	return &Tracker{required: n}
}

// Add appends a photo to the collection
func (t *Tracker) Add(photo types.SessionPhoto) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.photos = append(t.photos, photo)
}

// Len returns the number of photos collected
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.photos)
}

// Required returns the unlock threshold
func (t *Tracker) Required() int {
	return t.required
}

// CanExchange reports whether enough photos have been collected
func (t *Tracker) CanExchange() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.photos) >= t.required
}

// Remaining returns how many photos are still missing before the exchange unlocks
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := t.required - len(t.photos); n > 0 {
		return n
	}
	return 0
}

// Reset empties the collection
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.photos = nil
}

// Photos returns a copy of the collection in insertion order
func (t *Tracker) Photos() []types.SessionPhoto {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.SessionPhoto, len(t.photos))
	copy(out, t.photos)
	return out
}

// RecentMaterials returns the display names of the last n photos, oldest first.
// n <= 0 returns all of them.
func (t *Tracker) RecentMaterials(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := 0
	if n > 0 && len(t.photos) > n {
		start = len(t.photos) - n
	}
	out := make([]string, 0, len(t.photos)-start)
	for _, p := range t.photos[start:] {
		out = append(out, p.Mapping.DisplayName)
	}
	return out
}
