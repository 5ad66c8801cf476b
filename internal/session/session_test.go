package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/lawaid/internal/domain"
	"github.com/ashureev/lawaid/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testEndpoints = []domain.Endpoint{
	{Name: "primary", Kind: domain.KindHF, URL: "http://primary"},
	{Name: "fallback", Kind: domain.KindHF, URL: "http://fallback"},
}

func TestSessionCredentialClearsWarning(t *testing.T) {
	t.Parallel()

	s := New("", "be brief", testEndpoints, false)
	s.SetWarning(WarningMissingCredential)
	s.SetCredential("hf_token")

	assert.Equal(t, "hf_token", s.Credential())
	assert.Empty(t, s.Status().Warning)
	assert.NotEmpty(t, s.ID())
}

func TestSessionResetKeepsCredential(t *testing.T) {
	t.Parallel()

	s := New("id-1", "be brief", testEndpoints, true)
	s.SetCredential("hf_token")
	require.NoError(t, s.Append(domain.RoleUser, "hello"))
	require.NoError(t, s.Append(domain.RoleAssistant, "hi"))
	s.SetDocument(&domain.Document{Name: "act.pdf", Pages: []string{"one"}})
	s.SetStatus(domain.Status{FallbackUsed: true, Error: "boom"})

	s.Reset()

	assert.Empty(t, s.Conversation())
	assert.Len(t, s.Turns(), 1)
	assert.Equal(t, domain.RoleSystem, s.Turns()[0].Role())
	assert.Nil(t, s.Document())
	assert.Empty(t, s.DocumentName())
	assert.Equal(t, domain.Status{}, s.Status())
	assert.Equal(t, "hf_token", s.Credential())
	assert.True(t, s.SearchEnabled())
}

func TestSessionEndpointsAreSnapshot(t *testing.T) {
	t.Parallel()

	eps := append([]domain.Endpoint(nil), testEndpoints...)
	s := New("", "", eps, false)
	eps[0].Name = "changed"

	assert.Equal(t, "primary", s.Endpoints()[0].Name)
}

func TestRecordRestoreDropsCredential(t *testing.T) {
	t.Parallel()

	s := New("id-2", "be brief", testEndpoints, true)
	s.SetCredential("secret")
	require.NoError(t, s.Append(domain.RoleUser, "what is section 420?"))
	s.SetDocument(&domain.Document{Name: "ipc.txt"})

	rec, err := s.Record()
	require.NoError(t, err)
	assert.NotContains(t, rec.TranscriptJSON, "secret")

	restored, err := Restore(rec, testEndpoints)
	require.NoError(t, err)
	assert.Equal(t, "id-2", restored.ID())
	assert.Empty(t, restored.Credential())
	assert.Nil(t, restored.Document())
	assert.Equal(t, "ipc.txt", restored.DocumentName())
	require.Len(t, restored.Conversation(), 1)
	assert.Equal(t, "what is section 420?", restored.Conversation()[0].Text())
	assert.Equal(t, "be brief", restored.Instruction())
}

func TestManagerGetRestoresFromStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := store.NewMemory()

	first := NewManager(repo, "be brief", testEndpoints)
	s, err := first.Get(ctx, "")
	require.NoError(t, err)
	require.NoError(t, s.Append(domain.RoleUser, "hello"))
	require.NoError(t, first.Save(ctx, s))

	again, err := first.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Same(t, s, again)

	second := NewManager(repo, "be brief", testEndpoints)
	restored, err := second.Get(ctx, s.ID())
	require.NoError(t, err)
	require.Len(t, restored.Conversation(), 1)
	assert.Equal(t, "hello", restored.Conversation()[0].Text())

	fresh, err := second.Get(ctx, "unknown-id")
	require.NoError(t, err)
	assert.Equal(t, "unknown-id", fresh.ID())
	assert.Empty(t, fresh.Conversation())
}

func TestManagerLockRejectsConcurrentSubmission(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mgr := NewManager(nil, "", testEndpoints)
	s, err := mgr.Get(ctx, "")
	require.NoError(t, err)

	unlock, ok := mgr.Lock(s.ID())
	require.True(t, ok)

	_, ok = mgr.Lock(s.ID())
	assert.False(t, ok)

	unlock()
	unlock2, ok := mgr.Lock(s.ID())
	assert.True(t, ok)
	unlock2()

	_, ok = mgr.Lock("not-live")
	assert.False(t, ok)
}

func TestManagerSetEndpointsAffectsNewSessionsOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mgr := NewManager(nil, "", testEndpoints)
	old, err := mgr.Get(ctx, "")
	require.NoError(t, err)

	mgr.SetEndpoints([]domain.Endpoint{{Name: "reloaded", Kind: domain.KindLocal}})
	fresh, err := mgr.Get(ctx, "")
	require.NoError(t, err)

	assert.Len(t, old.Endpoints(), 2)
	require.Len(t, fresh.Endpoints(), 1)
	assert.Equal(t, "reloaded", fresh.Endpoints()[0].Name)
}

func TestManagerDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := store.NewMemory()

	mgr := NewManager(repo, "", nil)
	s, err := mgr.Get(ctx, "")
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, s))

	require.NoError(t, mgr.Delete(ctx, s.ID()))
	assert.Equal(t, 0, mgr.Len())
	rec, err := repo.GetSession(ctx, s.ID())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSweepSkipsBusySessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mgr := NewManager(nil, "", nil)
	idle, err := mgr.Get(ctx, "idle")
	require.NoError(t, err)
	busy, err := mgr.Get(ctx, "busy")
	require.NoError(t, err)
	require.True(t, busy.TryLock())
	defer busy.Unlock()

	var mu sync.Mutex
	var cleaned []string
	removed := Sweep(ctx, mgr, time.Minute, time.Now().Add(time.Hour), func(id string) {
		mu.Lock()
		cleaned = append(cleaned, id)
		mu.Unlock()
	})

	assert.Equal(t, []string{idle.ID()}, removed)
	assert.Equal(t, []string{"idle"}, cleaned)
	assert.Equal(t, 1, mgr.Len())
}

func TestTTLWorkerStopsOnCancel(t *testing.T) {
	t.Parallel()

	mgr := NewManager(nil, "", nil)
	_, err := mgr.Get(context.Background(), "short-lived")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cleaned := make(chan string, 1)
	done := StartTTLWorker(ctx, mgr, time.Nanosecond, 5*time.Millisecond, func(id string) {
		select {
		case cleaned <- id:
		default:
		}
	})

	select {
	case id := <-cleaned:
		assert.Equal(t, "short-lived", id)
	case <-time.After(2 * time.Second):
		t.Fatal("TTL worker did not expire the session")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("TTL worker did not stop")
	}
}
