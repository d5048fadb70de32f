// Package store provides the in-memory and Redis-backed implementations of
// the gateway's key-value stores.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dotrep/payment-gateway/internal/models"
)

// MemoryChallengeStore keeps outstanding challenges in a map.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*models.PaymentChallenge
}

func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{challenges: make(map[string]*models.PaymentChallenge)}
}

func (s *MemoryChallengeStore) Put(_ context.Context, challenge *models.PaymentChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[challenge.Challenge] = challenge
	return nil
}

func (s *MemoryChallengeStore) TakeAndDelete(_ context.Context, token string) (*models.PaymentChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.challenges[token]
	if !ok {
		return nil, nil
	}
	delete(s.challenges, token)
	return challenge, nil
}

func (s *MemoryChallengeStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, challenge := range s.challenges {
		if challenge.Expired(now) {
			delete(s.challenges, token)
			removed++
		}
	}
	return removed, nil
}

// MemoryReplayStore is the map-backed replay ledger. The mutex makes
// PutIfAbsent a single critical section per call.
type MemoryReplayStore struct {
	mu   sync.Mutex
	seen map[string]models.ReplayMeta
}

func NewMemoryReplayStore() *MemoryReplayStore {
	return &MemoryReplayStore{seen: make(map[string]models.ReplayMeta)}
}

func (s *MemoryReplayStore) PutIfAbsent(_ context.Context, txID string, meta models.ReplayMeta) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[txID]; ok {
		return false, nil
	}
	s.seen[txID] = meta
	return true, nil
}

// MemorySessionStore keeps billing sessions in a map with a per-store lock,
// so Mutate callbacks serialize per session.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.BillingSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*models.BillingSession)}
}

func (s *MemorySessionStore) Create(_ context.Context, session *models.BillingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.SessionID]; ok {
		return fmt.Errorf("session %s already exists", session.SessionID)
	}
	s.sessions[session.SessionID] = session
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (*models.BillingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	copied := *session
	return &copied, nil
}

func (s *MemorySessionStore) Mutate(_ context.Context, sessionID string, fn func(*models.BillingSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return fn(session)
}
