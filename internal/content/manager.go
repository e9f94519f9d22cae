package content

import (
	"sync"
	"sync/atomic"
	"time"
)

// Manager holds the active snapshot. Reads are lock-free; subscribers are
// called synchronously, in subscription order, after every Set.
type Manager struct {
	active atomic.Pointer[Snapshot]

	mu     sync.Mutex
	nextID int
	subs   map[int]func()
	order  []int
}

func NewManager() *Manager { return &Manager{subs: make(map[int]func())} }

// Set stores a copy of s and notifies subscribers.
func (m *Manager) Set(s Snapshot) {
	cp := new(Snapshot)
	*cp = s
	if cp.LoadedAt.IsZero() {
		cp.LoadedAt = time.Now().UTC()
	}
	m.active.Store(cp)

	for _, fn := range m.subscribers() {
		fn()
	}
}

// Subscribe registers fn for change notifications. The returned cancel is
// idempotent.
func (m *Manager) Subscribe(fn func()) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs == nil {
		m.subs = make(map[int]func())
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.order = append(m.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			for i, v := range m.order {
				if v == id {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		})
	}
}

// subscribers copies the callback list so Set runs them without the lock.
func (m *Manager) subscribers() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]func(), 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.subs[id])
	}
	return out
}

// Get returns the active snapshot and whether it is usable.
func (m *Manager) Get() (*Snapshot, bool) {
	s := m.active.Load()
	return s, s != nil && s.FS != nil
}

// ContentVersion implements httpmw.ContentInfo.
func (m *Manager) ContentVersion() string {
	if s := m.active.Load(); s != nil {
		return s.Meta.Version
	}
	return ""
}

// ContentHash implements httpmw.ContentInfo.
func (m *Manager) ContentHash() string {
	if s := m.active.Load(); s != nil {
		return s.Meta.SHA256
	}
	return ""
}

func (m *Manager) Source() Source {
	if s := m.active.Load(); s != nil {
		return s.Meta.Source
	}
	return SourceUnknown
}

func (m *Manager) LoadedAt() time.Time {
	if s := m.active.Load(); s != nil {
		return s.LoadedAt
	}
	return time.Time{}
}
