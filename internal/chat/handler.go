package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/lawaid/internal/api"
	"github.com/ashureev/lawaid/internal/docqa"
	"github.com/ashureev/lawaid/internal/domain"
	"github.com/ashureev/lawaid/internal/identity"
	"github.com/ashureev/lawaid/internal/inference"
	"github.com/ashureev/lawaid/internal/session"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// errBusy is returned when the session already has a submission in flight.
var errBusy = errors.New("request_in_progress")

// multipartOverhead is allowed on top of the upload limit for form framing.
const multipartOverhead = 1 << 20

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// OriginPatterns are the WebSocket origins accepted in addition to the
	// request host.
	OriginPatterns []string
	Logger         *slog.Logger
}

// Handler serves the chat API.
type Handler struct {
	svc      *Service
	sessions *session.Manager
	log      ConversationLogger
	cfg      HandlerConfig
	logger   *slog.Logger
}

// NewHandler creates a chat handler. A nil conversation logger discards
// events.
func NewHandler(svc *Service, sessions *session.Manager, conversationLogger ConversationLogger, cfg HandlerConfig) *Handler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:      svc,
		sessions: sessions,
		log:      conversationLogger,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		r.Post("/reset", h.HandleReset)
		r.Post("/credential", h.HandleCredential)
		r.Post("/upload", h.HandleUpload)
		r.Post("/search", h.HandleSearch)
		r.Get("/session", h.HandleSession)
	})
	r.Get("/ws/chat", h.HandleWebSocket)
}

// Close releases handler resources.
func (h *Handler) Close() {
	if err := h.log.Close(); err != nil {
		h.logger.Warn("failed to close conversation logger", "error", err)
	}
}

// OnSessionExpired is the session TTL cleanup callback.
func (h *Handler) OnSessionExpired(sessionID string) {
	h.log.CloseSession(sessionID)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Get(r.Context(), identity.SessionIDFromContext(r.Context()))
	if err != nil {
		h.logger.Error("Failed to load session", "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	return sess, true
}

func (h *Handler) save(ctx context.Context, sess *session.Session) {
	if err := h.sessions.Save(ctx, sess); err != nil {
		h.logger.Warn("Failed to persist session", "session_id", sess.ID(), "error", err)
	}
}

type errorReply struct {
	Error  string        `json:"error"`
	Status domain.Status `json:"status"`
}

// submit runs one locked submission and records it in the conversation log.
func (h *Handler) submit(ctx context.Context, sess *session.Session, text, channel string) (Reply, error) {
	unlock, ok := h.sessions.Lock(sess.ID())
	if !ok {
		return Reply{}, errBusy
	}
	defer unlock()

	reqID := chiMiddleware.GetReqID(ctx)
	h.log.Log(ConversationLogEvent{
		SessionID:  sess.ID(),
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: text,
		Meta:       map[string]any{"request_id": reqID},
	})

	start := time.Now()
	reply, err := h.svc.Ask(ctx, sess, text)
	h.save(ctx, sess)

	event := ConversationLogEvent{
		SessionID: sess.ID(),
		Channel:   channel,
		Direction: "inbound",
		EventType: "chat_assistant_message",
		Meta: map[string]any{
			"request_id":    reqID,
			"kind":          reply.Kind,
			"endpoint":      reply.Status.Endpoint,
			"fallback_used": reply.Status.FallbackUsed,
			"duration_ms":   time.Since(start).Milliseconds(),
		},
	}
	if err != nil {
		event.EventType = "chat_error"
		event.ContentRaw = err.Error()
	} else {
		event.ContentRaw = reply.Text
		if reply.Page > 0 {
			event.Meta["page"] = reply.Page
		}
		if reply.Citation != "" {
			event.Meta["citation"] = reply.Citation
		}
	}
	h.log.Log(event)

	return reply, err
}

// HandleChat handles POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req ChatRequest
	if status, err := api.DecodeJSON(w, r, &req); err != nil {
		api.Error(w, status, err.Error())
		return
	}

	h.logger.Info("Chat request",
		"session_id", sess.ID(),
		"message_length", len(req.Message),
	)

	reply, err := h.submit(r.Context(), sess, req.Message, "chat_http")
	if err != nil {
		status, message := h.errorStatus(err)
		api.JSON(w, status, errorReply{Error: message, Status: sess.Status()})
		return
	}
	api.JSON(w, http.StatusOK, reply)
}

func (h *Handler) errorStatus(err error) (int, string) {
	var failure *inference.Failure
	switch {
	case errors.Is(err, errBusy):
		return http.StatusConflict, errBusy.Error()
	case errors.Is(err, ErrEmptyMessage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrMissingCredential):
		return http.StatusUnauthorized, session.WarningMissingCredential
	case errors.As(err, &failure):
		return http.StatusBadGateway, failure.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// HandleReset handles POST /api/reset.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	unlock, ok := h.sessions.Lock(sess.ID())
	if !ok {
		api.Error(w, http.StatusConflict, errBusy.Error())
		return
	}
	defer unlock()

	h.svc.Reset(sess)
	h.save(r.Context(), sess)
	h.log.Log(ConversationLogEvent{
		SessionID:  sess.ID(),
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "chat_reset",
		ContentRaw: "reset",
	})
	api.JSON(w, http.StatusOK, h.view(sess))
}

// HandleCredential handles POST /api/credential.
func (h *Handler) HandleCredential(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req CredentialRequest
	if status, err := api.DecodeJSON(w, r, &req); err != nil {
		api.Error(w, status, err.Error())
		return
	}
	sess.SetCredential(req.Token)
	h.save(r.Context(), sess)
	api.JSON(w, http.StatusOK, map[string]any{"has_credential": req.Token != "", "status": sess.Status()})
}

// HandleSearch handles POST /api/search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SearchRequest
	if status, err := api.DecodeJSON(w, r, &req); err != nil {
		api.Error(w, status, err.Error())
		return
	}
	if req.Enabled && !h.svc.SearchAvailable() {
		api.Error(w, http.StatusBadRequest, "web search is not configured")
		return
	}
	sess.SetSearchEnabled(req.Enabled)
	h.save(r.Context(), sess)
	api.JSON(w, http.StatusOK, map[string]bool{"search_enabled": req.Enabled})
}

// HandleUpload handles POST /api/upload (multipart field "file").
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	limit := h.svc.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, docqa.ErrDocumentTooLarge.Error())
			return
		}
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	unlock, ok := h.sessions.Lock(sess.ID())
	if !ok {
		api.Error(w, http.StatusConflict, errBusy.Error())
		return
	}
	defer unlock()

	doc, err := h.svc.Upload(r.Context(), sess, header.Filename, header.Header.Get("Content-Type"), file)
	switch {
	case errors.Is(err, docqa.ErrDocumentTooLarge):
		api.Error(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, docqa.ErrUnsupportedDocument):
		api.Error(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case err != nil:
		h.logger.Warn("Document upload failed", "session_id", sess.ID(), "error", err)
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	h.save(r.Context(), sess)
	h.log.Log(ConversationLogEvent{
		SessionID:  sess.ID(),
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "document_upload",
		ContentRaw: doc.Name,
		Meta:       map[string]any{"pages": doc.PageCount(), "mime_type": doc.MimeType},
	})
	api.JSON(w, http.StatusOK, UploadResponse{Name: doc.Name, Pages: doc.PageCount()})
}

// HandleSession handles GET /api/session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	api.JSON(w, http.StatusOK, h.view(sess))
}

func (h *Handler) view(sess *session.Session) SessionView {
	conv := sess.Conversation()
	turns := make([]TurnView, 0, len(conv))
	for _, t := range conv {
		turns = append(turns, TurnView{
			Role:      t.Role(),
			Text:      t.Text(),
			Timestamp: t.Timestamp().UTC().Format(time.RFC3339),
		})
	}

	endpoints := sess.Endpoints()
	names := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		names = append(names, ep.Name)
	}

	v := SessionView{
		SessionID:     sess.ID(),
		Turns:         turns,
		Status:        sess.Status(),
		SearchEnabled: sess.SearchEnabled(),
		HasCredential: h.svc.credential(sess) != "",
		Endpoints:     names,
	}
	if doc := sess.Document(); doc != nil {
		v.Document = &UploadResponse{Name: doc.Name, Pages: doc.PageCount()}
	} else if name := sess.DocumentName(); name != "" {
		v.Document = &UploadResponse{Name: name}
	}
	return v
}

// HandleWebSocket handles GET /ws/chat. Each message frame is processed to
// completion before the next one is read.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.logger.Info("WebSocket connection request", "session_id", sess.ID(), "ip", identity.IPFromRequest(r))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "session_id", sess.ID())
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "session_id", sess.ID())
		}
	}()

	ctx := r.Context()
	for {
		var in Frame
		if err := wsjson.Read(ctx, ws, &in); err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "session_id", sess.ID())
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "session_id", sess.ID())
			}
			return
		}

		if in.Type != FrameMessage {
			if err := wsjson.Write(ctx, ws, Frame{Type: FrameError, Content: "unsupported frame type"}); err != nil {
				return
			}
			continue
		}

		if err := wsjson.Write(ctx, ws, h.frameFor(ctx, sess, in.Content)); err != nil {
			h.logger.Warn("WebSocket write error", "error", err, "session_id", sess.ID())
			return
		}
	}
}

func (h *Handler) frameFor(ctx context.Context, sess *session.Session, text string) Frame {
	reply, err := h.submit(ctx, sess, text, "chat_ws")
	if err != nil {
		status := sess.Status()
		if errors.Is(err, ErrMissingCredential) {
			return Frame{Type: FrameWarning, Content: session.WarningMissingCredential, Status: &status}
		}
		_, message := h.errorStatus(err)
		return Frame{Type: FrameError, Content: message, Status: &status}
	}
	return Frame{
		Type:     FrameReply,
		Content:  reply.Text,
		Kind:     reply.Kind,
		Citation: reply.Citation,
		Page:     reply.Page,
		Status:   &reply.Status,
	}
}
