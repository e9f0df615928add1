// Package mock provides mock implementations of storage interfaces for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/giantswarm/appleid-oauth/providers"
	"github.com/giantswarm/appleid-oauth/storage"
)

// callCounter counts calls per method name
type callCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *callCounter) inc(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[method]++
}

// Calls returns how often method was called
func (c *callCounter) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[method]
}

// MockStateStore is a mock implementation of StateStore for testing.
// The Func fields default to a working in-memory store and can be replaced
// to inject failures.
type MockStateStore struct {
	callCounter

	mu     sync.Mutex
	states map[string]*storage.AuthorizationState

	SaveStateFunc    func(ctx context.Context, state *storage.AuthorizationState) error
	ConsumeStateFunc func(ctx context.Context, state string) (*storage.AuthorizationState, error)
	CountFunc        func(ctx context.Context) (int64, error)
}

var _ storage.StateStore = (*MockStateStore)(nil)

// NewMockStateStore creates a new mock state store
func NewMockStateStore() *MockStateStore {
	m := &MockStateStore{
		states: make(map[string]*storage.AuthorizationState),
	}

	m.SaveStateFunc = func(_ context.Context, state *storage.AuthorizationState) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		stored := *state
		m.states[state.State] = &stored
		return nil
	}

	m.ConsumeStateFunc = func(_ context.Context, state string) (*storage.AuthorizationState, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		stored, ok := m.states[state]
		if !ok {
			return nil, storage.ErrStateNotFound
		}
		delete(m.states, state)
		if !stored.ExpiresAt.IsZero() && time.Now().After(stored.ExpiresAt) {
			return nil, storage.ErrStateNotFound
		}
		return stored, nil
	}

	m.CountFunc = func(_ context.Context) (int64, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		return int64(len(m.states)), nil
	}

	return m
}

// SaveState stores a state
func (m *MockStateStore) SaveState(ctx context.Context, state *storage.AuthorizationState) error {
	m.inc("SaveState")
	return m.SaveStateFunc(ctx, state)
}

// ConsumeState fetches and removes a state
func (m *MockStateStore) ConsumeState(ctx context.Context, state string) (*storage.AuthorizationState, error) {
	m.inc("ConsumeState")
	return m.ConsumeStateFunc(ctx, state)
}

// Count returns the number of stored states
func (m *MockStateStore) Count(ctx context.Context) (int64, error) {
	m.inc("Count")
	return m.CountFunc(ctx)
}

// Get returns a stored state without consuming it
func (m *MockStateStore) Get(state string) (*storage.AuthorizationState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[state]
	return s, ok
}

// MockUserStore is a mock implementation of UserStore for testing
type MockUserStore struct {
	callCounter

	mu    sync.Mutex
	users map[string]*storage.UserRecord

	UpsertBySubjectFunc func(ctx context.Context, provider string, user *providers.User) (*storage.UserRecord, bool, error)
	GetBySubjectFunc    func(ctx context.Context, provider, subject string) (*storage.UserRecord, error)
	CountUsersFunc      func(ctx context.Context) (int64, error)
}

var _ storage.UserStore = (*MockUserStore)(nil)

// NewMockUserStore creates a new mock user store
func NewMockUserStore() *MockUserStore {
	m := &MockUserStore{
		users: make(map[string]*storage.UserRecord),
	}

	m.UpsertBySubjectFunc = func(_ context.Context, provider string, user *providers.User) (*storage.UserRecord, bool, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		key := provider + ":" + user.ID
		existing, found := m.users[key]
		rec := storage.MergeUser(existing, provider, user, time.Now())
		m.users[key] = rec
		out := *rec
		return &out, !found, nil
	}

	m.GetBySubjectFunc = func(_ context.Context, provider, subject string) (*storage.UserRecord, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		rec, ok := m.users[provider+":"+subject]
		if !ok {
			return nil, storage.ErrUserNotFound
		}
		out := *rec
		return &out, nil
	}

	m.CountUsersFunc = func(_ context.Context) (int64, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		return int64(len(m.users)), nil
	}

	return m
}

// UpsertBySubject creates or updates a user
func (m *MockUserStore) UpsertBySubject(ctx context.Context, provider string, user *providers.User) (*storage.UserRecord, bool, error) {
	m.inc("UpsertBySubject")
	return m.UpsertBySubjectFunc(ctx, provider, user)
}

// GetBySubject returns a user
func (m *MockUserStore) GetBySubject(ctx context.Context, provider, subject string) (*storage.UserRecord, error) {
	m.inc("GetBySubject")
	return m.GetBySubjectFunc(ctx, provider, subject)
}

// CountUsers returns the number of stored users
func (m *MockUserStore) CountUsers(ctx context.Context) (int64, error) {
	m.inc("CountUsers")
	return m.CountUsersFunc(ctx)
}
