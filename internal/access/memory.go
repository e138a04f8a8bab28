package access

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. It backs
// tests and local development; production uses the Postgres store.
type InMemory struct {
	mu       sync.RWMutex
	byID     map[string]*Conversation
	byToken  map[string]string // token -> conversation id
	attempts []Attempt
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[string]*Conversation),
		byToken: make(map[string]string),
	}
}

func (s *InMemory) CreateConversation(ctx context.Context, c *Conversation) error {
	if c == nil || c.ID == "" || c.AccessToken == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.byID[cp.ID] = &cp
	s.byToken[cp.AccessToken] = cp.ID
	return nil
}

func (s *InMemory) FindConversation(ctx context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) FindByToken(ctx context.Context, token string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *InMemory) RecordAccess(ctx context.Context, id, ip, userAgent string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.AccessCount++
	t := at
	c.LastAccessedAt = &t
	c.LastAccessedIP = ip
	c.LastUserAgent = userAgent
	c.UpdatedAt = at
	return nil
}

func (s *InMemory) RotateToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byToken, c.AccessToken)
	c.AccessToken = token
	c.TokenExpiresAt = expiresAt
	s.byToken[token] = c.ID
	return nil
}

func (s *InMemory) SetLock(ctx context.Context, id string, locked bool, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	if locked {
		changed := !c.IsLocked || c.LockReason != reason
		c.IsLocked = true
		c.LockReason = reason
		return changed, nil
	}
	if !c.IsLocked {
		return false, nil
	}
	c.IsLocked = false
	c.LockReason = ""
	return true, nil
}

func (s *InMemory) InsertAttempt(ctx context.Context, a *Attempt) error {
	if a == nil || a.ID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, *a)
	return nil
}

func (s *InMemory) CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.attempts {
		if a.IPAddress == ip && a.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) CountByTokenIPSince(ctx context.Context, token, ip string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.attempts {
		if a.Token == token && a.IPAddress == ip && a.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) SecuritySummary(ctx context.Context, since time.Time) ([]AdminSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byAdmin := make(map[string]*AdminSummary)
	for _, a := range s.attempts {
		if !a.CreatedAt.After(since) || a.ConversationID == "" {
			continue
		}
		conv, ok := s.byID[a.ConversationID]
		if !ok {
			continue
		}
		sum, ok := byAdmin[conv.AdminID]
		if !ok {
			sum = &AdminSummary{AdminID: conv.AdminID}
			byAdmin[conv.AdminID] = sum
		}
		sum.Attempts++
		switch a.Result {
		case ResultSuccess:
			sum.Succeeded++
		case ResultBlocked:
			sum.Blocked++
		case ResultRateLimited:
			sum.RateLimited++
		}
	}
	out := make([]AdminSummary, 0, len(byAdmin))
	for _, sum := range byAdmin {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Attempts != out[j].Attempts {
			return out[i].Attempts > out[j].Attempts
		}
		return out[i].AdminID < out[j].AdminID
	})
	return out, nil
}

// Attempts returns a copy of the ledger, newest last. Test helper.
func (s *InMemory) Attempts() []Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Attempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}
