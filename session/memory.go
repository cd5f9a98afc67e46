package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. It is intended for tests and
// single-instance deployments; records do not survive a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	byPrincipal map[string]*Record
	byRefresh   map[string]string // refresh digest -> principal ID
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byPrincipal: make(map[string]*Record),
		byRefresh:   make(map[string]string),
	}
}

func (s *MemoryStore) UpsertSingleSession(_ context.Context, rec *Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(rec.PrincipalID)
	s.byPrincipal[rec.PrincipalID] = rec.Clone()
	s.byRefresh[refreshDigest(rec.RefreshToken)] = rec.PrincipalID
	return nil
}

func (s *MemoryStore) FindByRefreshToken(_ context.Context, token string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principalID, ok := s.byRefresh[refreshDigest(token)]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := s.byPrincipal[principalID]
	if !ok || rec.RefreshToken != token {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) FindByPrincipalID(_ context.Context, principalID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byPrincipal[principalID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) RotateAccessTokenID(_ context.Context, rot Rotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byPrincipal[rot.PrincipalID]
	if !ok || !rot.matches(rec) {
		return ErrNotFound
	}
	rec.AccessTokenID = rot.AccessTokenID
	rec.LastUsedAt = rot.LastUsedAt
	return nil
}

func (s *MemoryStore) TouchSession(_ context.Context, principalID, accessTokenID string, lastUsedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byPrincipal[principalID]
	if !ok || rec.AccessTokenID != accessTokenID {
		return ErrNotFound
	}
	rec.LastUsedAt = lastUsedAt
	return nil
}

func (s *MemoryStore) DeleteByPrincipalID(_ context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(principalID)
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for principalID, rec := range s.byPrincipal {
		if rec.Expired(now) {
			s.deleteLocked(principalID)
			deleted++
		}
	}
	return deleted, nil
}

// Len reports the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPrincipal)
}

func (s *MemoryStore) deleteLocked(principalID string) {
	rec, ok := s.byPrincipal[principalID]
	if !ok {
		return
	}
	delete(s.byRefresh, refreshDigest(rec.RefreshToken))
	delete(s.byPrincipal, principalID)
}
