package session

import (
	"slices"
	"sync"
)

type subscriber struct {
	id int
	fn func(*User)
}

// Subscribe registers fn for user state changes and immediately delivers the
// current value. Publications are delivered synchronously in registration order.
// A nil user means signed out.
func (m *Manager) Subscribe(fn func(*User)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers = append(m.subscribers, subscriber{id: id, fn: fn})
	current := m.current
	m.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()

			m.subscribers = slices.DeleteFunc(m.subscribers, func(s subscriber) bool {
				return s.id == id
			})
		})
	}
}

// Current returns the last published user.
func (m *Manager) Current() *User {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current
}

func (m *Manager) publish(user *User) {
	m.mu.Lock()
	m.current = user
	subscribers := slices.Clone(m.subscribers)
	m.mu.Unlock()

	for _, s := range subscribers {
		s.fn(user)
	}
}
