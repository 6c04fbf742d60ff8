package daemon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"parley/internal/api"
	"parley/internal/blobstore"
	"parley/internal/classify"
	"parley/internal/config"
	"parley/internal/deadletter"
	"parley/internal/logging"
	"parley/internal/orchestrator"
	"parley/internal/stream"
	"parley/internal/transcribe"
)

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	limiter *ownerLimiter

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:    strings.TrimSpace(cfg.Paths.APIBind),
		logger:  logging.NewComponentLogger(logger, "api-server"),
		daemon:  d,
		limiter: newOwnerLimiter(cfg.RateLimit),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/transcription", authMiddleware(cfg, srv.rateLimitMiddleware(srv.handleTranscription)))
	mux.HandleFunc("/api/deadletters", authMiddleware(cfg, srv.rateLimitMiddleware(srv.handleDeadLetters)))
	mux.HandleFunc("/api/chat", authMiddleware(cfg, srv.rateLimitMiddleware(srv.handleChat)))
	mux.HandleFunc("/api/status", authMiddleware(cfg, srv.handleStatus))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		// Long generations stream for minutes; no write timeout.
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address not configured")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listener address, or "" before start.
func (s *apiServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleTranscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.TranscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorKind(w, http.StatusBadRequest, string(classify.KindInvalidFormat), "invalid request body")
		return
	}
	ownerID := ownerFromContext(r.Context())

	switch req.Action {
	case api.ActionTranscribe:
		s.handleTranscribe(w, r, ownerID, req)
	case api.ActionRetry:
		s.handleRetry(w, r, ownerID, req)
	case api.ActionDeleteOne:
		s.handleDeleteOne(w, r, ownerID, req)
	case api.ActionDeleteAll:
		s.handleDeleteAll(w, r, ownerID)
	case api.ActionSetModel:
		s.handleSetModel(w, r, ownerID, req)
	default:
		s.writeErrorKind(w, http.StatusBadRequest, string(classify.KindInvalidFormat),
			fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (s *apiServer) handleTranscribe(w http.ResponseWriter, r *http.Request, ownerID string, req api.TranscriptionRequest) {
	orchReq := orchestrator.Request{
		AudioKey:        req.AudioKey,
		Model:           req.Model,
		MimeType:        req.MimeType,
		FileName:        req.FileName,
		DurationSeconds: req.DurationSeconds,
	}
	if req.RecordedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, req.RecordedAt); err == nil {
			orchReq.RecordedAt = parsed
		}
	}

	if req.AudioKey == "" {
		if req.AudioBase64 == "" {
			s.writeErrorKind(w, http.StatusBadRequest, string(classify.KindInvalidFormat), "audio payload required")
			return
		}
		audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
		if err != nil {
			s.writeErrorKind(w, http.StatusBadRequest, string(classify.KindInvalidFormat), "audio payload is not valid base64")
			return
		}
		if req.Preserve {
			// Stage the audio so a failure can preserve it.
			key, err := s.daemon.orch.SaveAudio(ownerID, req.FileName, audio, req.DurationSeconds, orchReq.RecordedAt)
			if err != nil {
				s.writeClassified(w, err)
				return
			}
			orchReq.AudioKey = key
		} else {
			orchReq.AudioBytes = audio
		}
	}

	text, err := s.daemon.orch.Transcribe(r.Context(), ownerID, orchReq)
	if err != nil {
		s.writeClassified(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TranscriptionResponse{Success: true, Transcription: text})
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request, ownerID string, req api.TranscriptionRequest) {
	if req.EntryID == "" {
		s.writeErrorKind(w, http.StatusBadRequest, string(classify.KindInvalidFormat), "entryId required")
		return
	}
	text, err := s.daemon.orch.Retry(r.Context(), ownerID, req.EntryID)
	if err != nil {
		s.writeClassified(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TranscriptionResponse{Success: true, Transcription: text})
}

func (s *apiServer) handleDeleteOne(w http.ResponseWriter, r *http.Request, ownerID string, req api.TranscriptionRequest) {
	if req.EntryID == "" {
		s.writeErrorKind(w, http.StatusBadRequest, string(classify.KindInvalidFormat), "entryId required")
		return
	}
	deleted, err := s.daemon.orch.DeleteEntry(r.Context(), ownerID, req.EntryID)
	if err != nil {
		s.writeClassified(w, err)
		return
	}
	var count int64
	if deleted {
		count = 1
	}
	s.writeJSON(w, http.StatusOK, api.TranscriptionResponse{Success: true, DeletedCount: count})
}

func (s *apiServer) handleDeleteAll(w http.ResponseWriter, r *http.Request, ownerID string) {
	count, err := s.daemon.orch.DeleteAllEntries(r.Context(), ownerID)
	if err != nil {
		s.writeClassified(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TranscriptionResponse{Success: true, DeletedCount: count})
}

func (s *apiServer) handleSetModel(w http.ResponseWriter, r *http.Request, ownerID string, req api.TranscriptionRequest) {
	model := transcribe.ResolveModel(req.Model)
	if model == "" {
		s.writeErrorKind(w, http.StatusBadRequest, string(classify.KindInvalidFormat), "model required")
		return
	}
	if err := s.daemon.store.SetOwnerDefaultModel(r.Context(), ownerID, model); err != nil {
		s.writeClassified(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TranscriptionResponse{Success: true, Model: model})
}

func (s *apiServer) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ownerID := ownerFromContext(r.Context())
	entries, err := s.daemon.store.ListByOwner(r.Context(), ownerID)
	if err != nil {
		s.writeClassified(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeadLetterListResponse{Entries: api.FromEntries(entries)})
}

// handleChat relays the upstream event stream to the caller frame by frame.
func (s *apiServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorKind(w, http.StatusBadRequest, string(classify.KindInvalidFormat), "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		s.writeErrorKind(w, http.StatusBadRequest, string(classify.KindInvalidFormat), "messages required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	relay := newSSERelay(w, flusher)
	upstream := stream.Request{
		Model:            req.Model,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
	}
	for _, msg := range req.Messages {
		upstream.Messages = append(upstream.Messages, stream.Message{Role: msg.Role, Content: msg.Content})
	}

	err := s.daemon.chat.Stream(r.Context(), upstream, relay.handlers())
	if err != nil {
		kind := classify.Classify(err)
		relay.frame(map[string]string{"error": classify.UserMessage(kind)})
		s.logger.Warn("chat relay failed", logging.Error(err))
		return
	}
	relay.raw("[DONE]")
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status()
	stats, err := s.daemon.store.Stats(r.Context())
	if err != nil {
		s.writeClassified(w, err)
		return
	}
	byKind := make(map[string]int, len(stats.ByKind))
	for kind, count := range stats.ByKind {
		byKind[string(kind)] = count
	}
	s.writeJSON(w, http.StatusOK, api.StatusResponse{
		Running:       status.Running,
		PID:           status.PID,
		DatabasePath:  status.DatabasePath,
		LockFilePath:  status.LockFilePath,
		DeadLetters:   stats.Total,
		ByKind:        byKind,
		RetentionDays: s.daemon.cfg.Retention.Days,
	})
}

// writeClassified maps an orchestration error to status, kind, and the fixed
// user-facing sentence, attaching the preserved entry ID when one exists.
func (s *apiServer) writeClassified(w http.ResponseWriter, err error) {
	if errors.Is(err, deadletter.ErrPermissionDenied) || errors.Is(err, blobstore.ErrPermissionDenied) {
		s.writeJSON(w, http.StatusForbidden, api.ErrorResponse{
			Kind:    string(classify.KindUnknown),
			Message: "access denied",
		})
		return
	}
	if errors.Is(err, deadletter.ErrNotFound) || errors.Is(err, blobstore.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, api.ErrorResponse{
			Kind:    string(classify.KindUnknown),
			Message: "not found",
		})
		return
	}

	kind := classify.Classify(err)
	resp := api.ErrorResponse{
		Kind:    string(kind),
		Message: classify.UserMessage(kind),
	}
	if preserved, ok := orchestrator.AsPreserved(err); ok {
		resp.PreservedEntryID = preserved.EntryID
	}
	s.writeJSON(w, statusForKind(kind), resp)
}

func statusForKind(kind classify.Kind) int {
	switch kind {
	case classify.KindTimeout:
		return http.StatusGatewayTimeout
	case classify.KindRateLimit:
		return http.StatusTooManyRequests
	case classify.KindInvalidFormat:
		return http.StatusBadRequest
	case classify.KindNetworkError, classify.KindAPIError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) writeErrorKind(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Kind: kind, Message: message})
}
