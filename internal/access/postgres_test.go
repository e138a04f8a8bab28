package access

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var conversationCols = []string{
	"id", "candidate_id", "admin_id", "opportunity",
	"access_token", "token_expires_at", "status",
	"is_locked", "lock_reason",
	"access_count", "last_accessed_at",
	"last_accessed_ip", "last_user_agent",
	"created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db), mock
}

func TestPGFindByToken(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("from conversations where access_token=\\$1").
		WithArgs("tok-abc").
		WillReturnRows(sqlmock.NewRows(conversationCols).AddRow(
			"conv-1", "cand-1", "admin-1", "Backend Engineer",
			"tok-abc", now.Add(24*time.Hour), StatusActive,
			false, "",
			int64(2), now.Add(-time.Hour),
			"1.2.3.4", "Mozilla/5.0",
			now.Add(-48*time.Hour), now,
		))

	conv, err := store.FindByToken(context.Background(), "tok-abc")
	if err != nil {
		t.Fatal(err)
	}
	if conv.ID != "conv-1" || conv.AccessCount != 2 || conv.IsLocked {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if conv.LastAccessedAt == nil {
		t.Fatal("expected last_accessed_at to be set")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGFindByTokenNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("from conversations where access_token=\\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(conversationCols))

	_, err := store.FindByToken(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRecordAccess(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now().UTC()

	mock.ExpectExec("update conversations").
		WithArgs("conv-1", at, "1.2.3.4", "Mozilla/5.0").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.RecordAccess(context.Background(), "conv-1", "1.2.3.4", "Mozilla/5.0", at); err != nil {
		t.Fatal(err)
	}

	mock.ExpectExec("update conversations").
		WithArgs("missing", at, "1.2.3.4", "Mozilla/5.0").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RecordAccess(context.Background(), "missing", "1.2.3.4", "Mozilla/5.0", at)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRotateToken(t *testing.T) {
	store, mock := newMockStore(t)
	expires := time.Now().UTC().Add(7 * 24 * time.Hour)

	mock.ExpectExec("update conversations").
		WithArgs("conv-1", "fresh-token", expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.RotateToken(context.Background(), "conv-1", "fresh-token", expires); err != nil {
		t.Fatal(err)
	}
}

func TestPGSetLock(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update conversations").
		WithArgs("conv-1", "Suspicious access pattern detected").
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := store.SetLock(context.Background(), "conv-1", true, "Suspicious access pattern detected")
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected lock to report a change")
	}

	// Unlocking an already-unlocked row matches nothing and reports false.
	mock.ExpectExec("update conversations").
		WithArgs("conv-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err = store.SetLock(context.Background(), "conv-1", false, "")
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("expected unlock no-op to report false")
	}
}

func TestPGInsertAttempt(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	fp := &Fingerprint{UserAgent: "Mozilla/5.0", Timezone: "Europe/Berlin"}
	fp.Hash = fp.ComputeHash()

	mock.ExpectExec("insert into access_attempts").
		WithArgs("att-1", "conv-1", "tok-abc", "1.2.3.4", "Mozilla/5.0",
			"success", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.InsertAttempt(context.Background(), &Attempt{
		ID:             "att-1",
		ConversationID: "conv-1",
		Token:          "tok-abc",
		IPAddress:      "1.2.3.4",
		UserAgent:      "Mozilla/5.0",
		Result:         ResultSuccess,
		Fingerprint:    fp,
		CreatedAt:      now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGCounts(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Now().UTC().Add(-time.Hour)

	mock.ExpectQuery("select count\\(\\*\\) from access_attempts").
		WithArgs("1.2.3.4", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := store.CountByIPSince(context.Background(), "1.2.3.4", since)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("expected 4, got %d", n)
	}

	mock.ExpectQuery("select count\\(\\*\\) from access_attempts").
		WithArgs("tok-abc", "1.2.3.4", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err = store.CountByTokenIPSince(context.Background(), "tok-abc", "1.2.3.4", since)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}

func TestPGSecuritySummary(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Now().UTC().Add(-24 * time.Hour)

	mock.ExpectQuery("select c.admin_id").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows(
			[]string{"admin_id", "attempts", "succeeded", "blocked", "rate_limited"}).
			AddRow("admin-a", int64(7), int64(4), int64(2), int64(1)).
			AddRow("admin-b", int64(1), int64(1), int64(0), int64(0)))

	items, err := store.SecuritySummary(context.Background(), since)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected two rows, got %d", len(items))
	}
	if items[0].AdminID != "admin-a" || items[0].Attempts != 7 || items[0].Blocked != 2 {
		t.Fatalf("unexpected first row: %+v", items[0])
	}
}
