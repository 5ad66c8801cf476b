package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/lawaid/internal/domain"
	"github.com/go-redis/redis/v8"
)

func newRecord(id string, updated time.Time) *domain.SessionRecord {
	return &domain.SessionRecord{
		SessionID:      id,
		TranscriptJSON: `{"instruction":"be brief","turns":[]}`,
		Status:         domain.Status{FallbackUsed: true, Endpoint: "fallback"},
		SearchEnabled:  true,
		DocumentName:   "act.pdf",
		CreatedAt:      updated.Add(-time.Minute),
		UpdatedAt:      updated,
	}
}

func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	got, err := repo.GetSession(ctx, "missing")
	if err != nil {
		t.Fatalf("GetSession(missing) error = %v", err)
	}
	if got != nil {
		t.Fatalf("GetSession(missing) = %+v, want nil", got)
	}

	now := time.Now().Truncate(time.Second)
	if err := repo.UpsertSession(ctx, newRecord("s1", now)); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}

	got, err = repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession(s1) error = %v", err)
	}
	if got == nil {
		t.Fatal("GetSession(s1) = nil, want record")
	}
	if got.Status.Endpoint != "fallback" || !got.Status.FallbackUsed {
		t.Fatalf("status = %+v, want fallback endpoint", got.Status)
	}
	if got.DocumentName != "act.pdf" || !got.SearchEnabled {
		t.Fatalf("record = %+v, want document and search flag", got)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, now)
	}

	update := newRecord("s1", now)
	update.DocumentName = ""
	update.Status = domain.Status{Warning: "Please enter an API key"}
	if err := repo.UpsertSession(ctx, update); err != nil {
		t.Fatalf("UpsertSession(update) error = %v", err)
	}
	got, _ = repo.GetSession(ctx, "s1")
	if got.DocumentName != "" || got.Status.Warning == "" {
		t.Fatalf("record after update = %+v", got)
	}

	if err := repo.UpsertSession(ctx, newRecord("stale", now.Add(-2*time.Hour))); err != nil {
		t.Fatalf("UpsertSession(stale) error = %v", err)
	}
	n, err := repo.CleanupExpiredSessions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredSessions() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("CleanupExpiredSessions() = %d, want 1", n)
	}
	if got, _ := repo.GetSession(ctx, "stale"); got != nil {
		t.Fatal("stale session survived cleanup")
	}

	if err := repo.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if err := repo.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession(again) error = %v", err)
	}
	if got, _ := repo.GetSession(ctx, "s1"); got != nil {
		t.Fatal("session survived delete")
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseRepository(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	repo, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "lawaid.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	exerciseRepository(t, repo)
}

func TestNewSQLiteRejectsEmptyPath(t *testing.T) {
	t.Parallel()
	if _, err := NewSQLite(""); err == nil {
		t.Fatal("NewSQLite(\"\") error = nil, want error")
	}
}

func TestOpenBackends(t *testing.T) {
	t.Parallel()

	repo, err := Open(Options{})
	if err != nil {
		t.Fatalf("Open(default) error = %v", err)
	}
	if _, ok := repo.(*MemoryStore); !ok {
		t.Fatalf("Open(default) = %T, want *MemoryStore", repo)
	}

	if _, err := Open(Options{Backend: "etcd"}); err == nil {
		t.Fatal("Open(etcd) error = nil, want error")
	}
	if _, err := Open(Options{Backend: BackendRedis}); err == nil {
		t.Fatal("Open(redis without addr) error = nil, want error")
	}
}

func TestRedisStoreKeysAndCleanup(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	r := NewRedisWithClient(client, time.Hour)
	defer func() { _ = r.Close() }()

	if got := r.key("abc"); got != "lawaid:session:abc" {
		t.Fatalf("key() = %q", got)
	}
	n, err := r.CleanupExpiredSessions(context.Background(), time.Minute)
	if err != nil || n != 0 {
		t.Fatalf("CleanupExpiredSessions() = %d, %v; want 0, nil", n, err)
	}
	if _, err := r.GetSession(context.Background(), "abc"); err == nil {
		t.Fatal("GetSession() against unreachable redis error = nil, want error")
	}
}
