package upload

import (
	"sort"
	"sync"
	"time"
)

type State string

const (
	StateIdle        State = "idle"
	StateAuthorizing State = "authorizing"
	StatePreparing   State = "preparing"
	StateUploading   State = "uploading"
	StateFinalizing  State = "finalizing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Progress percentages reported on entering each state.
var stateProgress = map[State]int{
	StateIdle:        0,
	StateAuthorizing: 0,
	StatePreparing:   10,
	StateUploading:   20,
	StateFinalizing:  90,
	StateDone:        100,
}

// Attempt is the observable status of one upload.
type Attempt struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	FileName  string    `json:"fileName"`
	Size      int64     `json:"size"`
	State     State     `json:"state"`
	Progress  int       `json:"progress"`
	SpeedBps  float64   `json:"speedBps,omitempty"`
	VideoID   string    `json:"videoId,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tracker keeps in-flight attempts per user. Finished attempts stay visible
// for clearDelay; failed ones are dropped at once. Attempt ids are scoped to
// their user, so two users may pick the same id.
type Tracker struct {
	mu         sync.Mutex
	attempts   map[string]*Attempt
	timers     map[string]*time.Timer
	clearDelay time.Duration
	now        func() time.Time
}

func NewTracker(clearDelay time.Duration) *Tracker {
	return &Tracker{
		attempts:   make(map[string]*Attempt),
		timers:     make(map[string]*time.Timer),
		clearDelay: clearDelay,
		now:        time.Now,
	}
}

func attemptKey(userID, id string) string {
	return userID + "/" + id
}

// start registers a new attempt. It returns false when the user already has
// an unfinished attempt with the same id. A finished one is replaced and its
// pending clear is cancelled.
func (t *Tracker) start(id, userID, fileName string, size int64) (*Attempt, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := attemptKey(userID, id)
	if prev, ok := t.attempts[key]; ok && prev.State != StateDone {
		return nil, false
	}
	t.stopTimer(key)

	now := t.now()
	a := &Attempt{
		ID:        id,
		UserID:    userID,
		FileName:  fileName,
		Size:      size,
		State:     StateIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
	t.attempts[key] = a
	return a, true
}

// update applies fn while a is still the registered attempt for its key.
func (t *Tracker) update(a *Attempt, fn func(a *Attempt)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.attempts[attemptKey(a.UserID, a.ID)] == a {
		fn(a)
		a.UpdatedAt = t.now()
	}
}

func (t *Tracker) transition(a *Attempt, state State) {
	t.update(a, func(a *Attempt) {
		a.State = state
		a.Progress = stateProgress[state]
	})
}

func (t *Tracker) complete(a *Attempt, videoID string) {
	t.update(a, func(a *Attempt) {
		a.State = StateDone
		a.Progress = stateProgress[StateDone]
		a.VideoID = videoID
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	key := attemptKey(a.UserID, a.ID)
	if t.attempts[key] != a {
		return
	}
	t.stopTimer(key)
	t.timers[key] = time.AfterFunc(t.clearDelay, func() { t.remove(a) })
}

func (t *Tracker) fail(a *Attempt) {
	t.remove(a)
}

// remove drops a unless a newer attempt has taken its key.
func (t *Tracker) remove(a *Attempt) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := attemptKey(a.UserID, a.ID)
	if t.attempts[key] != a {
		return
	}
	delete(t.attempts, key)
	t.stopTimer(key)
}

// stopTimer must be called with mu held.
func (t *Tracker) stopTimer(key string) {
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
}

// Get returns a copy of userID's attempt with the given id.
func (t *Tracker) Get(userID, id string) (Attempt, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.attempts[attemptKey(userID, id)]
	if !ok {
		return Attempt{}, false
	}
	return *a, true
}

// List returns copies of userID's attempts, oldest first.
func (t *Tracker) List(userID string) []Attempt {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Attempt, 0)
	for _, a := range t.attempts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Close cancels pending clear timers.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.timers {
		t.stopTimer(key)
	}
}
