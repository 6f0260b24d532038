// Package session tracks where each sender is in the faucet conversation.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/fabriguespe/xmtp-faucet-bot/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	// SuggestedTTL is a reasonable idle timeout for deployments that opt into eviction.
	SuggestedTTL = 30 * time.Minute
	// CleanupInterval is how often Run sweeps expired conversations.
	CleanupInterval = 5 * time.Minute
)

// Store holds the conversation step per sender address.
// Keys are used exactly as given.
type Store interface {
	// Get returns the sender's step, or ok=false if the sender has no session.
	Get(sender string) (step models.Step, ok bool)
	Set(sender string, step models.Step)
	Delete(sender string)
}

type entry struct {
	lastSeen time.Time
	step     models.Step
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// WithOnEvicted registers a callback fired for each session removed by expiry.
func WithOnEvicted(fn func(sender string)) Option {
	return func(s *MemoryStore) { s.onEvicted = fn }
}

// MemoryStore is the in-process Store. Sessions are lost on restart.
// A session untouched for longer than the TTL reads as absent; a TTL of 0
// keeps sessions for the life of the process.
type MemoryStore struct {
	sessions  map[string]*entry
	now       func() time.Time
	onEvicted func(sender string)
	ttl       time.Duration
	mu        sync.Mutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(ttl time.Duration, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*entry),
		now:      time.Now,
		ttl:      ttl,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.lastSeen) > s.ttl
}

// Get implements Store. Reading a live session refreshes its idle timer.
func (s *MemoryStore) Get(sender string) (models.Step, bool) {
	now := s.now()

	s.mu.Lock()
	e, ok := s.sessions[sender]
	if !ok {
		s.mu.Unlock()
		return models.StepNew, false
	}
	if s.expired(e, now) {
		delete(s.sessions, sender)
		s.mu.Unlock()
		s.evicted(sender)
		return models.StepNew, false
	}
	e.lastSeen = now
	step := e.step
	s.mu.Unlock()

	return step, true
}

// Set implements Store.
func (s *MemoryStore) Set(sender string, step models.Step) {
	now := s.now()

	s.mu.Lock()
	s.sessions[sender] = &entry{step: step, lastSeen: now}
	s.mu.Unlock()
}

// Delete implements Store. Deleting a missing session is a no-op.
func (s *MemoryStore) Delete(sender string) {
	s.mu.Lock()
	delete(s.sessions, sender)
	s.mu.Unlock()
}

// Len returns the number of stored sessions, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CleanupExpired removes every expired session and returns how many were removed.
func (s *MemoryStore) CleanupExpired() int {
	if s.ttl <= 0 {
		return 0
	}
	now := s.now()

	s.mu.Lock()
	var removed []string
	for sender, e := range s.sessions {
		if s.expired(e, now) {
			delete(s.sessions, sender)
			removed = append(removed, sender)
		}
	}
	s.mu.Unlock()

	for _, sender := range removed {
		s.evicted(sender)
	}
	return len(removed)
}

// Run sweeps expired sessions every CleanupInterval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context) error {
	if s.ttl <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.CleanupExpired(); n > 0 {
				log.Debug().Int("evicted", n).Int("remaining", s.Len()).Msg("Expired sessions removed")
			}
		}
	}
}

func (s *MemoryStore) evicted(sender string) {
	if s.onEvicted != nil {
		s.onEvicted(sender)
	}
}

var _ Store = (*MemoryStore)(nil)
