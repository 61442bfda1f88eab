package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// rateWindow is the trailing interval used to bound call frequency per
// category.
const rateWindow = time.Minute

// DefaultSafetyThreshold is the fraction of a category ceiling at which
// admission starts being spread instead of burst through.
const DefaultSafetyThreshold = 0.70

// Decision answers "may this call proceed now, or must it wait?".
type Decision struct {
	Category string
	Wait     time.Duration
}

// Tracker maintains a sliding-window call count per endpoint category
// against a static ceiling table. One instance is shared for the life
// of the process: the remote ceiling is a property of the connection,
// not of any single batch.
type Tracker struct {
	classifier *classifier
	threshold  float64
	windows    map[string]*window
	clock      func() time.Time
}

// window holds the retained call timestamps for one category. Each
// window is guarded independently so contention on one category never
// stalls another.
type window struct {
	mu      sync.Mutex
	ceiling int
	stamps  []time.Time
}

// NewTracker builds a tracker over the given ceiling table. A nil or
// empty table and an out-of-range threshold are configuration errors.
func NewTracker(table []Category, threshold float64) (*Tracker, error) {
	if len(table) == 0 {
		return nil, errors.New("endpoint category table is empty")
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("safety threshold must be in (0, 1], got %v", threshold)
	}

	windows := make(map[string]*window, len(table)+1)
	for _, category := range table {
		if category.PerMinute <= 0 {
			return nil, fmt.Errorf("category %q has non-positive ceiling %d", category.Pattern, category.PerMinute)
		}
		windows[category.Pattern] = &window{ceiling: category.PerMinute}
	}
	windows[defaultCategoryName] = &window{ceiling: defaultCategoryPerMinute}

	return &Tracker{
		classifier: newClassifier(table),
		threshold:  threshold,
		windows:    windows,
		clock:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// NewDefaultTracker builds a tracker over DefaultCategories.
func NewDefaultTracker() *Tracker {
	tracker, err := NewTracker(DefaultCategories, DefaultSafetyThreshold)
	if err != nil {
		panic(err) // defaults are known-valid
	}
	return tracker
}

// SetClock overrides the tracker's time source. Intended for tests.
func (t *Tracker) SetClock(clock func() time.Time) {
	if clock != nil {
		t.clock = clock
	}
}

// Classify maps an operation path to its endpoint category.
func (t *Tracker) Classify(path string) string {
	return t.classifier.Classify(path)
}

// RecordAndCheck atomically evicts stale entries from the category's
// window and decides admission. At or above threshold*ceiling retained
// calls it returns the time until the oldest retained entry exits the
// window, spreading admission rather than rejecting outright. Below the
// threshold the call is recorded and admitted immediately.
func (t *Tracker) RecordAndCheck(category string) Decision {
	w := t.windowFor(category)
	now := t.clock()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now)

	limit := int(float64(w.ceiling) * t.threshold)
	if limit < 1 {
		limit = 1
	}

	if len(w.stamps) >= limit {
		oldest := w.stamps[0]
		wait := oldest.Add(rateWindow).Sub(now)
		if wait < 0 {
			wait = 0
		}
		return Decision{Category: category, Wait: wait}
	}

	w.stamps = append(w.stamps, now)
	return Decision{Category: category}
}

// Record unconditionally records a call that reached the network. Used
// when an attempt is dispatched past a saturated window after its
// single pacing re-check: it consumed real quota regardless of outcome.
func (t *Tracker) Record(category string) {
	w := t.windowFor(category)
	now := t.clock()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now)
	w.stamps = append(w.stamps, now)
}

// CategoryUsage reports the live window state for one category.
type CategoryUsage struct {
	Category string  `json:"category"`
	Ceiling  int     `json:"ceiling"`
	InWindow int     `json:"in_window"`
	Used     float64 `json:"used"`
}

// Snapshot returns the current usage of every category, sorted by
// category name at the call site if needed.
func (t *Tracker) Snapshot() []CategoryUsage {
	now := t.clock()
	usages := make([]CategoryUsage, 0, len(t.windows))

	for name, w := range t.windows {
		w.mu.Lock()
		w.evict(now)
		count := len(w.stamps)
		ceiling := w.ceiling
		w.mu.Unlock()

		usages = append(usages, CategoryUsage{
			Category: name,
			Ceiling:  ceiling,
			InWindow: count,
			Used:     float64(count) / float64(ceiling),
		})
	}
	return usages
}

// windowFor returns the category's window, falling back to the default
// category for unknown names. The windows map is immutable after
// construction, so reads need no lock.
func (t *Tracker) windowFor(category string) *window {
	if w, ok := t.windows[category]; ok {
		return w
	}
	return t.windows[defaultCategoryName]
}

// evict drops timestamps that have left the trailing window. Caller
// holds w.mu.
func (w *window) evict(now time.Time) {
	cutoff := now.Add(-rateWindow)
	idx := 0
	for idx < len(w.stamps) && !w.stamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[idx:]...)
	}
}
