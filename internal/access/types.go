package access

import (
	"time"
)

// Conversation lifecycle statuses. Lock state is tracked separately and is
// orthogonal to status.
const (
	StatusActive   = "active"
	StatusClosed   = "closed"
	StatusArchived = "archived"
)

// Conversation is a chat thread between one admin and one candidate,
// reachable through a magic-link token.
type Conversation struct {
	ID             string     `json:"id"`
	CandidateID    string     `json:"candidate_id"`
	AdminID        string     `json:"admin_id"`
	Opportunity    string     `json:"opportunity"`
	AccessToken    string     `json:"-"`
	TokenExpiresAt time.Time  `json:"token_expires_at"`
	Status         string     `json:"status"`
	IsLocked       bool       `json:"is_locked"`
	LockReason     string     `json:"lock_reason,omitempty"`
	AccessCount    int64      `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	LastAccessedIP string     `json:"last_accessed_ip,omitempty"`
	LastUserAgent  string     `json:"last_user_agent,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// PublicView strips the fields that must never leave the service
// (token, lock reason, last-access forensics).
func (c *Conversation) PublicView() *ConversationView {
	return &ConversationView{
		ID:          c.ID,
		CandidateID: c.CandidateID,
		Opportunity: c.Opportunity,
		Status:      c.Status,
		AccessCount: c.AccessCount,
		CreatedAt:   c.CreatedAt,
	}
}

// ConversationView is the candidate-facing projection returned on a
// successful validation.
type ConversationView struct {
	ID          string    `json:"id"`
	CandidateID string    `json:"candidate_id"`
	Opportunity string    `json:"opportunity"`
	Status      string    `json:"status"`
	AccessCount int64     `json:"access_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// AttemptResult classifies a ledger entry.
type AttemptResult string

const (
	ResultSuccess     AttemptResult = "success"
	ResultExpired     AttemptResult = "expired"
	ResultInvalid     AttemptResult = "invalid"
	ResultRateLimited AttemptResult = "rate_limited"
	ResultBlocked     AttemptResult = "blocked"
)

// Attempt is one immutable access-ledger entry. Rows are never updated or
// deleted; they back both rate counting and the security dashboard.
type Attempt struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Token          string        `json:"token"`
	IPAddress      string        `json:"ip_address"`
	UserAgent      string        `json:"user_agent,omitempty"`
	Result         AttemptResult `json:"result"`
	Fingerprint    *Fingerprint  `json:"fingerprint,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Code identifies why a validation was denied.
type Code string

const (
	CodeInvalidToken       Code = "invalid_token"
	CodeConversationLocked Code = "conversation_locked"
	CodeTokenExpired       Code = "token_expired"
	CodeRateLimited        Code = "rate_limited"
	CodeDailyLimitExceeded Code = "daily_limit_exceeded"
	CodeSuspiciousActivity Code = "suspicious_activity"
)

// ValidationRequest carries one inbound magic-link validation.
type ValidationRequest struct {
	Token       string       `json:"token"`
	IPAddress   string       `json:"ip_address"`
	UserAgent   string       `json:"user_agent,omitempty"`
	Fingerprint *Fingerprint `json:"fingerprint,omitempty"`
}

// ValidationResult is the structured outcome handed back to the HTTP layer.
type ValidationResult struct {
	Success      bool              `json:"success"`
	Code         Code              `json:"error,omitempty"`
	Message      string            `json:"message,omitempty"`
	Conversation *ConversationView `json:"conversation,omitempty"`
}

// AdminSummary aggregates ledger rows per owning admin for the security
// dashboard.
type AdminSummary struct {
	AdminID     string `json:"admin_id"`
	Attempts    int64  `json:"attempts"`
	Succeeded   int64  `json:"succeeded"`
	Blocked     int64  `json:"blocked"`
	RateLimited int64  `json:"rate_limited"`
}
