package access

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// Open connects with tuned pool defaults; adjust under load tests.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) CreateConversation(ctx context.Context, c *Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		insert into conversations(
			id, candidate_id, admin_id, opportunity,
			access_token, token_expires_at, status, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$8)
	`, c.ID, c.CandidateID, c.AdminID, c.Opportunity,
		c.AccessToken, c.TokenExpiresAt, c.Status, c.CreatedAt)
	return err
}

const conversationColumns = `
	id, candidate_id, admin_id, opportunity,
	access_token, token_expires_at, status,
	is_locked, coalesce(lock_reason,''),
	access_count, last_accessed_at,
	coalesce(last_accessed_ip,''), coalesce(last_user_agent,''),
	created_at, updated_at`

func (s *PGStore) FindConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+conversationColumns+` from conversations where id=$1`, id)
	return scanConversation(row)
}

func (s *PGStore) FindByToken(ctx context.Context, token string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+conversationColumns+` from conversations where access_token=$1`, token)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var (
		c            Conversation
		lastAccessed sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.CandidateID, &c.AdminID, &c.Opportunity,
		&c.AccessToken, &c.TokenExpiresAt, &c.Status,
		&c.IsLocked, &c.LockReason,
		&c.AccessCount, &lastAccessed,
		&c.LastAccessedIP, &c.LastUserAgent,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastAccessed.Valid {
		t := lastAccessed.Time
		c.LastAccessedAt = &t
	}
	return &c, nil
}

func (s *PGStore) RecordAccess(ctx context.Context, id, ip, userAgent string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update conversations
		set access_count = access_count + 1,
		    last_accessed_at = $2,
		    last_accessed_ip = $3,
		    last_user_agent = $4,
		    updated_at = $2
		where id = $1
	`, id, at, ip, userAgent)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) RotateToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update conversations
		set access_token = $2, token_expires_at = $3, updated_at = now()
		where id = $1
	`, id, token, expiresAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetLock(ctx context.Context, id string, locked bool, reason string) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if locked {
		res, err = s.db.ExecContext(ctx, `
			update conversations
			set is_locked = true, lock_reason = $2, updated_at = now()
			where id = $1
		`, id, reason)
	} else {
		// Unlock only flips rows that are actually locked so the caller
		// can tell a no-op from a real transition.
		res, err = s.db.ExecContext(ctx, `
			update conversations
			set is_locked = false, lock_reason = null, updated_at = now()
			where id = $1 and is_locked
		`, id)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PGStore) InsertAttempt(ctx context.Context, a *Attempt) error {
	var fp []byte
	if a.Fingerprint != nil {
		fp, _ = json.Marshal(a.Fingerprint)
	}
	_, err := s.db.ExecContext(ctx, `
		insert into access_attempts(
			id, conversation_id, token, ip_address, user_agent, result, fingerprint, created_at)
		values ($1, nullif($2,''), $3, $4, $5, $6, $7, $8)
	`, a.ID, a.ConversationID, a.Token, a.IPAddress, a.UserAgent, string(a.Result), fp, a.CreatedAt)
	return err
}

func (s *PGStore) CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from access_attempts
		where ip_address = $1 and created_at > $2
	`, ip, since).Scan(&n)
	return n, err
}

func (s *PGStore) CountByTokenIPSince(ctx context.Context, token, ip string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from access_attempts
		where token = $1 and ip_address = $2 and created_at > $3
	`, token, ip, since).Scan(&n)
	return n, err
}

func (s *PGStore) SecuritySummary(ctx context.Context, since time.Time) ([]AdminSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		select c.admin_id,
		       count(*) as attempts,
		       count(*) filter (where a.result = 'success') as succeeded,
		       count(*) filter (where a.result = 'blocked') as blocked,
		       count(*) filter (where a.result = 'rate_limited') as rate_limited
		from access_attempts a
		join conversations c on c.id = a.conversation_id
		where a.created_at > $1
		group by c.admin_id
		order by attempts desc, c.admin_id asc
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []AdminSummary
	for rows.Next() {
		var sum AdminSummary
		if err := rows.Scan(&sum.AdminID, &sum.Attempts, &sum.Succeeded, &sum.Blocked, &sum.RateLimited); err != nil {
			return nil, err
		}
		res = append(res, sum)
	}
	return res, rows.Err()
}
