package serverstate

import (
	"sync"
	"sync/atomic"
)

// State holds the gateway status, draining flag and whether the conversion
// engine is loaded. Status and ModelLoaded live in the Store; Draining is
// local to the process.
type State struct {
	Status      string `json:"status"`
	Draining    bool   `json:"draining,omitempty"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Store defines how the gateway state is persisted. Implementations may store
// state in memory or in an external service such as Redis so that replicas
// sharing a model volume can observe each other.
type Store interface {
	Load() State
	Store(State)
}

var (
	mu       sync.Mutex
	active   atomic.Value
	draining atomic.Bool
)

func init() {
	active.Store(storeBox{NewMemoryStore()})
}

type storeBox struct{ s Store }

func current() Store { return active.Load().(storeBox).s }

// UseStore replaces the active Store. It is safe for concurrent use.
func UseStore(s Store) {
	if s != nil {
		active.Store(storeBox{s})
	}
}

// memoryStore implements Store using an atomic.Value. It is the default
// strategy and is safe for concurrent use within a single process.
type memoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns a memory-backed Store initialized to "not_ready".
func NewMemoryStore() *memoryStore {
	ms := &memoryStore{}
	ms.v.Store(State{Status: "not_ready"})
	return ms
}

func (m *memoryStore) Load() State {
	if st, ok := m.v.Load().(State); ok {
		return st
	}
	return State{Status: "unknown"}
}

func (m *memoryStore) Store(s State) {
	m.v.Store(s)
}

func update(fn func(*State)) {
	mu.Lock()
	defer mu.Unlock()
	s := current()
	st := s.Load()
	fn(&st)
	st.Draining = false
	s.Store(st)
}

// Snapshot returns the full current state. Draining always reflects this
// process, whatever the shared store holds.
func Snapshot() State {
	st := current().Load()
	st.Draining = draining.Load()
	if st.Draining {
		st.Status = "draining"
	}
	return st
}

// SetState updates the status string. It is ignored once draining started.
func SetState(status string) {
	if draining.Load() {
		return
	}
	update(func(st *State) { st.Status = status })
}

// GetState returns the current status.
func GetState() string {
	return Snapshot().Status
}

// SetModelLoaded records whether the conversion engine is loaded.
func SetModelLoaded(v bool) {
	update(func(st *State) { st.ModelLoaded = v })
}

// StartDrain marks this process as draining. The flag is never written to
// the store, so replicas sharing a Redis key drain independently.
func StartDrain() { draining.Store(true) }

// StopDrain clears the draining flag.
func StopDrain() { draining.Store(false) }

// IsDraining reports whether this process is draining.
func IsDraining() bool { return draining.Load() }
