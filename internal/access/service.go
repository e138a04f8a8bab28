package access

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"talentgate.io/internal/ids"
	"talentgate.io/internal/obs"
)

const (
	defaultTokenTTL     = 7 * 24 * time.Hour
	defaultRotateWindow = 24 * time.Hour

	lockReasonSuspicious = "Suspicious access pattern detected"
)

// Limits holds the abuse thresholds. All comparisons are inclusive and all
// windows are trailing wall-clock intervals (created_at > now - window).
type Limits struct {
	HourlyIPMax  int
	HourlyWindow time.Duration
	DailyIPMax   int
	DailyWindow  time.Duration
	RepeatMax    int
	RepeatWindow time.Duration
}

// DefaultLimits returns the production thresholds.
func DefaultLimits() Limits {
	return Limits{
		HourlyIPMax:  5,
		HourlyWindow: time.Hour,
		DailyIPMax:   10,
		DailyWindow:  24 * time.Hour,
		RepeatMax:    3,
		RepeatWindow: 5 * time.Minute,
	}
}

// DefaultBotSignatures are matched case-insensitively as substrings of the
// user agent. Any hit locks the conversation on the spot.
var DefaultBotSignatures = []string{
	"bot",
	"crawler",
	"spider",
	"scraper",
	"curl",
	"wget",
	"python-requests",
	"python-urllib",
	"go-http-client",
	"java/",
	"okhttp",
	"axios",
	"node-fetch",
	"libwww-perl",
	"httpclient",
	"phantomjs",
	"headlesschrome",
	"selenium",
	"puppeteer",
	"playwright",
}

// Service is the access-control core: it validates magic-link tokens,
// appends ledger entries, and drives the conversation lock state.
type Service struct {
	store Store
	now   func() time.Time

	limits       Limits
	signatures   []string
	tokenTTL     time.Duration
	rotateWindow time.Duration
}

// Option configures Service behavior.
type Option func(*Service)

// WithLimits overrides the abuse thresholds.
func WithLimits(l Limits) Option {
	return func(s *Service) {
		if l.HourlyIPMax > 0 {
			s.limits.HourlyIPMax = l.HourlyIPMax
		}
		if l.HourlyWindow > 0 {
			s.limits.HourlyWindow = l.HourlyWindow
		}
		if l.DailyIPMax > 0 {
			s.limits.DailyIPMax = l.DailyIPMax
		}
		if l.DailyWindow > 0 {
			s.limits.DailyWindow = l.DailyWindow
		}
		if l.RepeatMax > 0 {
			s.limits.RepeatMax = l.RepeatMax
		}
		if l.RepeatWindow > 0 {
			s.limits.RepeatWindow = l.RepeatWindow
		}
	}
}

// WithBotSignatures replaces the user-agent signature list.
func WithBotSignatures(signatures []string) Option {
	return func(s *Service) {
		if len(signatures) > 0 {
			s.signatures = normalizeSignatures(signatures)
		}
	}
}

// WithTokenTTL overrides the magic-link lifetime applied on mint and rotate.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithRotateWindow overrides how close to expiry a successful access
// triggers transparent token rotation.
func WithRotateWindow(window time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.rotateWindow = window
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the core with production defaults.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		now:          time.Now,
		limits:       DefaultLimits(),
		signatures:   normalizeSignatures(DefaultBotSignatures),
		tokenTTL:     defaultTokenTTL,
		rotateWindow: defaultRotateWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate runs the decision procedure for one inbound magic-link request.
// Every decided branch appends exactly one ledger entry before returning;
// a ledger write failure fails the whole call so a decision is never handed
// out without its audit row.
func (s *Service) Validate(ctx context.Context, req ValidationRequest) (ValidationResult, error) {
	token := strings.TrimSpace(req.Token)
	ip := strings.TrimSpace(req.IPAddress)
	ua := strings.TrimSpace(req.UserAgent)
	now := s.now().UTC()

	if req.Fingerprint != nil && req.Fingerprint.Hash == "" {
		req.Fingerprint.Hash = req.Fingerprint.ComputeHash()
	}

	record := func(conversationID string, result AttemptResult) error {
		return s.store.InsertAttempt(ctx, &Attempt{
			ID:             ids.New(),
			ConversationID: conversationID,
			Token:          token,
			IPAddress:      ip,
			UserAgent:      ua,
			Result:         result,
			Fingerprint:    req.Fingerprint,
			CreatedAt:      now,
		})
	}
	deny := func(code Code, message string) ValidationResult {
		obs.IncValidation(string(code))
		return ValidationResult{Success: false, Code: code, Message: message}
	}

	// Existence. Malformed tokens never reach the store but are still
	// ledgered as invalid.
	var conv *Conversation
	if tokenSyntaxOK(token) {
		found, err := s.store.FindByToken(ctx, token)
		if err != nil && err != ErrNotFound {
			return ValidationResult{}, err
		}
		conv = found
	}
	if conv == nil {
		if err := record("", ResultInvalid); err != nil {
			return ValidationResult{}, err
		}
		return deny(CodeInvalidToken, "This link is invalid or has been revoked."), nil
	}

	// Lock takes precedence over everything else about the conversation.
	if conv.IsLocked {
		if err := record(conv.ID, ResultBlocked); err != nil {
			return ValidationResult{}, err
		}
		return deny(CodeConversationLocked, "Access to this conversation is restricted. Please contact support."), nil
	}

	// A closed or archived conversation behaves like a revoked link.
	if conv.Status != StatusActive {
		if err := record(conv.ID, ResultInvalid); err != nil {
			return ValidationResult{}, err
		}
		return deny(CodeInvalidToken, "This link is invalid or has been revoked."), nil
	}

	if !conv.TokenExpiresAt.After(now) {
		if err := record(conv.ID, ResultExpired); err != nil {
			return ValidationResult{}, err
		}
		return deny(CodeTokenExpired, "This link has expired. Ask your contact to send a fresh one."), nil
	}

	// Rate limits count previously ledgered attempts, so the Nth+1 attempt
	// trips an inclusive threshold of N.
	hourly, err := s.store.CountByIPSince(ctx, ip, now.Add(-s.limits.HourlyWindow))
	if err != nil {
		return ValidationResult{}, err
	}
	if hourly >= s.limits.HourlyIPMax {
		if err := record(conv.ID, ResultRateLimited); err != nil {
			return ValidationResult{}, err
		}
		return deny(CodeRateLimited, "Too many attempts. Try again later."), nil
	}

	daily, err := s.store.CountByIPSince(ctx, ip, now.Add(-s.limits.DailyWindow))
	if err != nil {
		return ValidationResult{}, err
	}
	if daily >= s.limits.DailyIPMax {
		if err := record(conv.ID, ResultRateLimited); err != nil {
			return ValidationResult{}, err
		}
		return deny(CodeDailyLimitExceeded, "Daily attempt limit exceeded. Try again tomorrow."), nil
	}

	// Rapid-repeat heuristic includes the in-flight attempt, so the third
	// hit on a (token, ip) pair inside the window locks the conversation.
	repeats, err := s.store.CountByTokenIPSince(ctx, token, ip, now.Add(-s.limits.RepeatWindow))
	if err != nil {
		return ValidationResult{}, err
	}
	suspicious := repeats+1 >= s.limits.RepeatMax
	if !suspicious && s.matchesBotSignature(ua) {
		suspicious = true
	}
	if suspicious {
		if _, err := s.store.SetLock(ctx, conv.ID, true, lockReasonSuspicious); err != nil {
			return ValidationResult{}, err
		}
		obs.IncLock()
		if err := record(conv.ID, ResultBlocked); err != nil {
			return ValidationResult{}, err
		}
		return deny(CodeSuspiciousActivity, "Access blocked due to suspicious activity."), nil
	}

	if err := s.store.RecordAccess(ctx, conv.ID, ip, ua, now); err != nil {
		return ValidationResult{}, err
	}
	if conv.TokenExpiresAt.Sub(now) <= s.rotateWindow {
		if err := s.store.RotateToken(ctx, conv.ID, NewToken(), now.Add(s.tokenTTL)); err != nil {
			return ValidationResult{}, err
		}
	}
	if err := record(conv.ID, ResultSuccess); err != nil {
		return ValidationResult{}, err
	}

	obs.IncValidation("success")
	conv.AccessCount++
	return ValidationResult{Success: true, Conversation: conv.PublicView()}, nil
}

// Lock marks a conversation locked. Locking an already-locked conversation
// simply overwrites the reason.
func (s *Service) Lock(ctx context.Context, id, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Locked by administrator"
	}
	changed, err := s.store.SetLock(ctx, id, true, reason)
	if err != nil {
		return err
	}
	if changed {
		obs.IncLock()
	}
	return nil
}

// Unlock clears the lock flag and reason. It reports true only when a
// locked row existed and was flipped; unlocking twice returns false.
func (s *Service) Unlock(ctx context.Context, id string) (bool, error) {
	return s.store.SetLock(ctx, id, false, "")
}

// CreateConversation provisions a thread with a fresh magic token.
func (s *Service) CreateConversation(ctx context.Context, candidateID, adminID, opportunity string) (*Conversation, error) {
	candidateID = strings.TrimSpace(candidateID)
	adminID = strings.TrimSpace(adminID)
	if candidateID == "" || adminID == "" {
		return nil, ErrInvalidInput
	}
	now := s.now().UTC()
	conv := &Conversation{
		ID:             ids.New(),
		CandidateID:    candidateID,
		AdminID:        adminID,
		Opportunity:    strings.TrimSpace(opportunity),
		AccessToken:    NewToken(),
		TokenExpiresAt: now.Add(s.tokenTTL),
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ResendToken rotates the magic token unconditionally for the admin resend
// flow and returns the conversation carrying the new token.
func (s *Service) ResendToken(ctx context.Context, id string) (*Conversation, error) {
	conv, err := s.store.FindConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	token := NewToken()
	expires := now.Add(s.tokenTTL)
	if err := s.store.RotateToken(ctx, conv.ID, token, expires); err != nil {
		return nil, err
	}
	conv.AccessToken = token
	conv.TokenExpiresAt = expires
	conv.UpdatedAt = now
	return conv, nil
}

// SecuritySummary aggregates ledger rows per admin over the trailing window.
func (s *Service) SecuritySummary(ctx context.Context, window time.Duration) ([]AdminSummary, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return s.store.SecuritySummary(ctx, s.now().UTC().Add(-window))
}

func (s *Service) matchesBotSignature(userAgent string) bool {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return false
	}
	for _, sig := range s.signatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

// NewToken mints an unguessable URL-safe magic-link token.
func NewToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// tokenSyntaxOK accepts URL-safe base64 identifiers of sane length.
func tokenSyntaxOK(token string) bool {
	if len(token) < 8 || len(token) > 128 {
		return false
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func normalizeSignatures(signatures []string) []string {
	out := make([]string, 0, len(signatures))
	for _, sig := range signatures {
		sig = strings.ToLower(strings.TrimSpace(sig))
		if sig != "" {
			out = append(out, sig)
		}
	}
	return out
}
