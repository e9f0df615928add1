// Package memory provides an in-memory implementation of all storage interfaces.
// It is suitable for development, testing, and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/appleid-oauth/instrumentation"
	"github.com/giantswarm/appleid-oauth/internal/util"
	"github.com/giantswarm/appleid-oauth/providers"
	"github.com/giantswarm/appleid-oauth/security"
	"github.com/giantswarm/appleid-oauth/storage"
)

const (
	// stateLogLength is the number of characters to include when logging state values
	stateLogLength = 8

	// DefaultMaxStates bounds the number of pending authorization states.
	// SaveState fails once the limit is reached and nothing has expired.
	DefaultMaxStates = 100000
)

// Store is an in-memory implementation of all storage interfaces.
// It implements StateStore and UserStore.
type Store struct {
	mu sync.RWMutex

	// Pending authorization states, keyed by state value
	states    map[string]*storage.AuthorizationState
	maxStates int

	// Users keyed by provider and subject; the refresh token is sealed when
	// an encryptor is set
	users map[string]*storage.UserRecord

	// Security
	encryptor *security.Encryptor

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	statesCountAtomic atomic.Int64
	usersCountAtomic  atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger

	now func() time.Time
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.StateStore = (*Store)(nil)
	_ storage.UserStore  = (*Store)(nil)
)

// New creates a new in-memory store with default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		states:          make(map[string]*storage.AuthorizationState),
		maxStates:       DefaultMaxStates,
		users:           make(map[string]*storage.UserRecord),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
		now:             time.Now,
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetMaxStates sets the maximum number of pending states. Values <= 0 restore the default.
func (s *Store) SetMaxStates(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		n = DefaultMaxStates
	}
	s.maxStates = n
}

// SetEncryptor sets the encryptor used for refresh tokens at rest
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc.IsEnabled() {
		s.logger.Info("Refresh token encryption at rest enabled for storage")
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}

	// Initialize atomic counters with current counts
	s.statesCountAtomic.Store(int64(len(s.states)))
	s.usersCountAtomic.Store(int64(len(s.users)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.statesCountAtomic.Load() },
			func() int64 { return s.usersCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// ============================================================
// StateStore Implementation
// ============================================================

// SaveState stores an authorization state until it expires
func (s *Store) SaveState(ctx context.Context, state *storage.AuthorizationState) error {
	ctx, span := s.startStorageSpan(ctx, "save_state")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_state", err, startTime)
	}()

	if state == nil {
		err = fmt.Errorf("state cannot be nil")
		return err
	}
	if state.State == "" {
		err = fmt.Errorf("state value cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[state.State]; exists {
		err = fmt.Errorf("state already exists")
		return err
	}

	if len(s.states) >= s.maxStates {
		s.removeExpiredStatesLocked()
		if len(s.states) >= s.maxStates {
			err = fmt.Errorf("too many pending authorization states (limit %d)", s.maxStates)
			s.logger.Warn("Authorization state limit reached", "limit", s.maxStates)
			return err
		}
	}

	stored := *state
	s.states[state.State] = &stored
	s.statesCountAtomic.Add(1)

	s.logger.Debug("Saved authorization state",
		"state_prefix", util.SafeTruncate(state.State, stateLogLength),
		"attempt_id", state.AttemptID,
		"expires_at", state.ExpiresAt)

	return nil
}

// ConsumeState fetches and deletes a state under a single lock, so concurrent
// callbacks presenting the same state cannot both succeed.
func (s *Store) ConsumeState(ctx context.Context, state string) (*storage.AuthorizationState, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_state")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "consume_state", err, startTime)
	}()

	s.mu.Lock()
	stored, ok := s.states[state]
	if ok {
		delete(s.states, state)
		s.statesCountAtomic.Add(-1)
	}
	s.mu.Unlock()

	if !ok {
		err = storage.ErrStateNotFound
		return nil, err
	}

	if security.IsExpired(stored.ExpiresAt, s.now()) {
		s.logger.Debug("Rejected expired authorization state",
			"state_prefix", util.SafeTruncate(state, stateLogLength),
			"attempt_id", stored.AttemptID)
		err = storage.ErrStateNotFound
		return nil, err
	}

	return stored, nil
}

// Count returns the number of stored states, including expired ones not yet cleaned up
func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.states)), nil
}

// ============================================================
// UserStore Implementation
// ============================================================

func userKey(provider, subject string) string {
	return provider + ":" + subject
}

// UpsertBySubject creates or updates the user linked to (provider, user.ID)
func (s *Store) UpsertBySubject(ctx context.Context, provider string, user *providers.User) (*storage.UserRecord, bool, error) {
	ctx, span := s.startStorageSpan(ctx, "upsert_user")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "upsert_user", err, startTime)
	}()

	if user == nil || user.ID == "" {
		err = fmt.Errorf("user subject cannot be empty")
		return nil, false, err
	}
	if provider == "" {
		err = fmt.Errorf("provider cannot be empty")
		return nil, false, err
	}

	key := userKey(provider, user.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.users[key]
	var current *storage.UserRecord
	if found {
		current, err = s.openUserLocked(key, existing)
		if err != nil {
			return nil, false, err
		}
	}

	merged := storage.MergeUser(current, provider, user, s.now())

	sealed, err := s.sealUserLocked(key, merged)
	if err != nil {
		return nil, false, err
	}
	s.users[key] = sealed
	if !found {
		s.usersCountAtomic.Add(1)
	}

	out := *merged
	return &out, !found, nil
}

// GetBySubject returns the user linked to (provider, subject)
func (s *Store) GetBySubject(ctx context.Context, provider, subject string) (*storage.UserRecord, error) {
	ctx, span := s.startStorageSpan(ctx, "get_user")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_user", err, startTime)
	}()

	key := userKey(provider, subject)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.users[key]
	if !ok {
		err = storage.ErrUserNotFound
		return nil, err
	}

	var rec *storage.UserRecord
	rec, err = s.openUserLocked(key, stored)
	return rec, err
}

// CountUsers returns the number of stored users
func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *Store) sealUserLocked(key string, rec *storage.UserRecord) (*storage.UserRecord, error) {
	out := *rec
	if s.encryptor.IsEnabled() && out.RefreshToken != "" {
		start := time.Now()
		sealed, err := s.encryptor.Seal([]byte(out.RefreshToken), []byte(key))
		s.recordEncryption("encrypt", start)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		out.RefreshToken = sealed
	}
	return &out, nil
}

func (s *Store) openUserLocked(key string, rec *storage.UserRecord) (*storage.UserRecord, error) {
	out := *rec
	if s.encryptor.IsEnabled() && out.RefreshToken != "" {
		start := time.Now()
		plain, err := s.encryptor.Open(out.RefreshToken, []byte(key))
		s.recordEncryption("decrypt", start)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
		out.RefreshToken = string(plain)
	}
	return &out, nil
}

func (s *Store) recordEncryption(operation string, start time.Time) {
	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordEncryptionOperation(context.Background(), operation,
			float64(time.Since(start).Microseconds())/1000)
	}
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cleaned := s.removeExpiredStatesLocked(); cleaned > 0 {
		s.logger.Debug("Cleaned up expired authorization states", "count", cleaned)
	}
}

// removeExpiredStatesLocked must be called with s.mu held for writing.
func (s *Store) removeExpiredStatesLocked() int {
	now := s.now()
	cleaned := 0
	for key, state := range s.states {
		if security.IsExpired(state.ExpiresAt, now) {
			delete(s.states, key)
			cleaned++
		}
	}
	if cleaned > 0 {
		s.statesCountAtomic.Add(int64(-cleaned))
	}
	return cleaned
}

// ============================================================
// Instrumentation helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
			attribute.String(instrumentation.AttrStorageType, "memory"),
		))

	return ctx, span
}

func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
