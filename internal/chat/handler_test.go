package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/lawaid/internal/identity"
	"github.com/ashureev/lawaid/internal/inference"
	"github.com/ashureev/lawaid/internal/session"
	"github.com/ashureev/lawaid/internal/store"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	router   chi.Router
	sessions *session.Manager
	repo     *store.MemoryStore
	id       string
}

func newTestAPI(t *testing.T, gen Generator) *testAPI {
	t.Helper()
	repo := store.NewMemory()
	sessions := session.NewManager(repo, testInstruction, testEndpoints)
	h := NewHandler(newTestService(t, gen), sessions, nil, HandlerConfig{})
	t.Cleanup(h.Close)

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	h.RegisterRoutes(r)
	return &testAPI{router: r, sessions: sessions, repo: repo, id: uuid.NewString()}
}

func (a *testAPI) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(identity.SessionHeaderName, a.id)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) postJSON(t *testing.T, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return a.do(t, http.MethodPost, path, "application/json", body)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHandleChatRequiresCredential(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, replyWith("unused"))

	rec := a.postJSON(t, "/api/chat", ChatRequest{Message: "What is bail?"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decode[errorReply](t, rec)
	assert.Equal(t, session.WarningMissingCredential, body.Status.Warning)
}

func TestHandleChatFlow(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, replyWith("Bail is conditional release."))

	rec := a.postJSON(t, "/api/credential", CredentialRequest{Token: "hf_token"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.postJSON(t, "/api/chat", ChatRequest{Message: "What is bail?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reply := decode[Reply](t, rec)
	assert.Equal(t, "Bail is conditional release.", reply.Text)
	assert.Equal(t, KindModel, reply.Kind)

	rec = a.do(t, http.MethodGet, "/api/session", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[SessionView](t, rec)
	assert.Equal(t, a.id, view.SessionID)
	require.Len(t, view.Turns, 2)
	assert.True(t, view.HasCredential)
	assert.Equal(t, []string{"primary", "fallback"}, view.Endpoints)

	stored, err := a.repo.GetSession(context.Background(), a.id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotContains(t, stored.TranscriptJSON, "hf_token")

	rec = a.do(t, http.MethodPost, "/api/reset", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[SessionView](t, rec).Turns)
}

func TestHandleChatAllTiersFailed(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{fn: func(inference.Input) (inference.Result, error) {
		return inference.Result{}, &inference.Failure{}
	}}
	a := newTestAPI(t, gen)
	a.postJSON(t, "/api/credential", CredentialRequest{Token: "hf_token"})

	rec := a.postJSON(t, "/api/chat", ChatRequest{Message: "What is bail?"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[errorReply](t, rec)
	assert.NotEmpty(t, body.Status.Error)
}

func TestHandleChatRejectsConcurrentSubmission(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, replyWith("unused"))

	sess, err := a.sessions.Get(context.Background(), a.id)
	require.NoError(t, err)
	unlock, ok := a.sessions.Lock(sess.ID())
	require.True(t, ok)
	defer unlock()

	rec := a.postJSON(t, "/api/chat", ChatRequest{Message: "What is bail?"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "request_in_progress")
}

func TestHandleChatInvalidBody(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, replyWith("unused"))

	rec := a.do(t, http.MethodPost, "/api/chat", "application/json", []byte(`{"message":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.postJSON(t, "/api/chat", ChatRequest{Message: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartBody(t *testing.T, name string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestHandleUpload(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, replyWith("unused"))

	body, ct := multipartBody(t, "act.txt", []byte("Section 1\n\nSection 2\n\nSection 3"))
	rec := a.do(t, http.MethodPost, "/api/upload", ct, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, UploadResponse{Name: "act.txt", Pages: 3}, decode[UploadResponse](t, rec))

	body, ct = multipartBody(t, "blob.bin", []byte{0xff, 0xfe, 0x00, 0x01})
	rec = a.do(t, http.MethodPost, "/api/upload", ct, body)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/session", "", nil)
	view := decode[SessionView](t, rec)
	require.NotNil(t, view.Document)
	assert.Equal(t, "act.txt", view.Document.Name)

	rec = a.do(t, http.MethodPost, "/api/upload", "application/json", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearchWithoutProvider(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, replyWith("unused"))

	rec := a.postJSON(t, "/api/search", SearchRequest{Enabled: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.postJSON(t, "/api/search", SearchRequest{Enabled: false})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebSocketChat(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, replyWith("Over the socket."))
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set(identity.SessionHeaderName, a.id)
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", &websocket.DialOptions{
		HTTPHeader: header,
	})
	require.NoError(t, err)
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "") }()

	exchange := func(in Frame) Frame {
		t.Helper()
		require.NoError(t, wsjson.Write(ctx, ws, in))
		var out Frame
		require.NoError(t, wsjson.Read(ctx, ws, &out))
		return out
	}

	out := exchange(Frame{Type: FrameMessage, Content: "What is bail?"})
	assert.Equal(t, FrameWarning, out.Type)
	assert.Equal(t, session.WarningMissingCredential, out.Content)

	out = exchange(Frame{Type: FrameMessage, Content: "hello"})
	assert.Equal(t, FrameReply, out.Type)
	assert.Equal(t, KindCanned, out.Kind)

	sess, err := a.sessions.Get(ctx, a.id)
	require.NoError(t, err)
	sess.SetCredential("hf_token")

	out = exchange(Frame{Type: FrameMessage, Content: "What is bail?"})
	assert.Equal(t, FrameReply, out.Type)
	assert.Equal(t, "Over the socket.", out.Content)
	assert.Equal(t, KindModel, out.Kind)

	out = exchange(Frame{Type: "ping"})
	assert.Equal(t, FrameError, out.Type)
}
