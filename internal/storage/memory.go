package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"reminderd/internal/reminder"
)

// Memory is a process-local Store.
type Memory struct {
	mu         sync.RWMutex
	reminders  map[string]reminder.State
	users      map[string]User
	deliveries []DeliveryEntry
	closed     bool

	// FailUpserts, FailFinds and FailDeletes make the matching reminder
	// call fail while positive, decrementing per call.
	FailUpserts int
	FailFinds   int
	FailDeletes int
}

func NewMemory() *Memory {
	return &Memory{
		reminders: map[string]reminder.State{},
		users:     map[string]User{},
	}
}

var errInjected = errors.New("storage: injected failure")

func (m *Memory) FindReminder(_ context.Context, userID string) (reminder.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return reminder.State{}, ErrClosed
	}
	if m.FailFinds > 0 {
		m.FailFinds--
		return reminder.State{}, errInjected
	}
	st, ok := m.reminders[userID]
	if !ok {
		return reminder.State{}, ErrNotFound
	}
	return st.Clone(), nil
}

func (m *Memory) UpsertReminder(_ context.Context, st reminder.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.FailUpserts > 0 {
		m.FailUpserts--
		return errInjected
	}
	now := time.Now()
	if prev, ok := m.reminders[st.UserID]; ok && !prev.CreatedAt.IsZero() {
		st.CreatedAt = prev.CreatedAt
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = now
	}
	m.reminders[st.UserID] = st.Clone()
	return nil
}

func (m *Memory) DeleteReminder(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.FailDeletes > 0 {
		m.FailDeletes--
		return errInjected
	}
	if _, ok := m.reminders[userID]; !ok {
		return ErrNotFound
	}
	delete(m.reminders, userID)
	return nil
}

func (m *Memory) ListActiveReminders(_ context.Context) ([]reminder.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]reminder.State, 0, len(m.reminders))
	for _, st := range m.reminders {
		if st.IsActive {
			out = append(out, st.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) GetUser(_ context.Context, userID string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) UpsertUser(_ context.Context, u User) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user id is required")
	}
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetPushEndpoint(_ context.Context, userID, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PushEndpoint = endpoint
	m.users[userID] = u
	return nil
}

func (m *Memory) AppendDeliveries(_ context.Context, entries []DeliveryEntry) error {
	m.mu.Lock()
	m.deliveries = append(m.deliveries, entries...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListDeliveries(_ context.Context, userID string, limit int) ([]DeliveryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []DeliveryEntry
	for i := len(m.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.deliveries[i].UserID == userID {
			out = append(out, m.deliveries[i])
		}
	}
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
