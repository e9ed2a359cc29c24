package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/UJ2202/TOMAS/internal/config"
	"github.com/UJ2202/TOMAS/internal/engine"
	"github.com/UJ2202/TOMAS/internal/executor"
	"github.com/UJ2202/TOMAS/internal/ids"
	"github.com/UJ2202/TOMAS/internal/mode"
	"github.com/UJ2202/TOMAS/internal/protocol"
	"github.com/UJ2202/TOMAS/internal/session"
	"github.com/UJ2202/TOMAS/internal/workspace"
)

const (
	maxJSONRequestBytes int64 = 2 << 20
	maxUploadBytes      int64 = 50 << 20
	maxWSRequestBytes   int64 = 1 << 20
)

type server struct {
	logger     *log.Logger
	modes      *mode.Registry
	store      session.Store
	executor   *executor.Executor
	workspaces *workspace.Manager
	runtime    *config.RuntimeConfig
}

func NewServer(logger *log.Logger, addr string, modes *mode.Registry, store session.Store, exec *executor.Executor, workspaces *workspace.Manager, runtime *config.RuntimeConfig) *http.Server {
	h := &server{
		logger:     logger,
		modes:      modes,
		store:      store,
		executor:   exec,
		workspaces: workspaces,
		runtime:    runtime,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /v1/modes", h.handleListModes)
	mux.HandleFunc("GET /v1/modes/{id}", h.handleGetMode)
	mux.HandleFunc("POST /v1/executions", h.handleExecute)
	mux.HandleFunc("GET /v1/sessions", h.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", h.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.handleDeleteSession)
	mux.HandleFunc("GET /v1/sessions/{id}/result", h.handleSessionResult)
	mux.HandleFunc("GET /v1/sessions/{id}/messages", h.handleSessionMessages)
	mux.HandleFunc("POST /v1/sessions/{id}/files", h.handleUploadFile)
	mux.HandleFunc("GET /v1/sessions/{id}/files", h.handleListFiles)
	mux.HandleFunc("GET /v1/files/{id}/download", h.handleDownloadFile)
	mux.HandleFunc("POST /v1/config", h.handleConfig)
	mux.HandleFunc("GET /v1/sessions/{id}/ws", h.handleSessionWS)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleListModes(w http.ResponseWriter, r *http.Request) {
	filter := mode.Filter{Category: strings.TrimSpace(r.URL.Query().Get("category"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("engine")); raw != "" {
		kind, err := engine.ParseKind(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Engine = kind
	}
	writeJSON(w, http.StatusOK, map[string]any{"modes": s.modes.List(filter)})
}

func (s *server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	m, err := s.modes.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, "mode not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type executeRequest struct {
	ModeID    string         `json:"mode_id"`
	Task      string         `json:"task"`
	InputData map[string]any `json:"input_data"`
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req executeRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ModeID) == "" {
		http.Error(w, "mode_id is required", http.StatusBadRequest)
		return
	}

	rec, err := s.executor.Launch(r.Context(), req.ModeID, req.Task, req.InputData)
	if err != nil {
		var verr *mode.ValidationError
		switch {
		case errors.Is(err, mode.ErrNotFound):
			http.Error(w, "mode not found", http.StatusNotFound)
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "invalid input",
				"fields": verr.Fields,
			})
		default:
			s.logger.Printf("execution launch failed mode=%s err=%v", req.ModeID, err)
			http.Error(w, "failed to start execution", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": rec.SessionID,
		"status":     rec.Status,
	})
}

func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter := session.ListFilter{
		Status: session.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
		ModeID: strings.TrimSpace(r.URL.Query().Get("mode_id")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	records, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, sessionJSON(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(rec))
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if s.executor.Active(rec.SessionID) {
		http.Error(w, "session is still running; cancel it first", http.StatusConflict)
		return
	}

	if err := s.store.DeleteSession(r.Context(), rec.SessionID); err != nil {
		http.Error(w, "failed to delete session", http.StatusInternalServerError)
		return
	}
	if err := s.workspaces.Reclaim(rec.SessionID); err != nil {
		s.logger.Printf("workspace reclaim failed session_id=%s err=%v", rec.SessionID, err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": rec.SessionID})
}

func (s *server) handleSessionResult(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if !rec.Status.Terminal() {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "session has not finished",
			"status": rec.Status,
		})
		return
	}

	outputOnly := false
	files, err := s.store.ListFiles(r.Context(), rec.SessionID, &outputOnly)
	if err != nil {
		http.Error(w, "failed to list output files", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  rec.SessionID,
		"status":      rec.Status,
		"error":       rec.ErrorMessage,
		"output_data": rec.OutputData,
		"files":       fileListJSON(files),
	})
}

func (s *server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	limit, offset := 0, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, _ = strconv.Atoi(raw)
	}

	msgs, err := s.store.GetMessages(r.Context(), rec.SessionID, limit, offset)
	if err != nil {
		http.Error(w, "failed to list messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": rec.SessionID,
		"messages":   msgs,
	})
}

func (s *server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "multipart field \"file\" is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	originalName := filepath.Base(strings.TrimSpace(header.Filename))
	if originalName == "" || originalName == "." || originalName == string(filepath.Separator) {
		http.Error(w, "upload filename is required", http.StatusBadRequest)
		return
	}

	inputDir, err := s.workspaces.InputDir(rec.SessionID)
	if err != nil {
		http.Error(w, "workspace unavailable", http.StatusInternalServerError)
		return
	}

	fileID := ids.New()
	storedName := fileID + "_" + originalName
	destPath := filepath.Join(inputDir, storedName)
	dest, err := os.Create(destPath)
	if err != nil {
		s.logger.Printf("upload create failed session_id=%s err=%v", rec.SessionID, err)
		http.Error(w, "failed to store upload", http.StatusInternalServerError)
		return
	}
	size, err := io.Copy(dest, file)
	closeErr := dest.Close()
	if err != nil || closeErr != nil {
		_ = os.Remove(destPath)
		http.Error(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(originalName))
	}

	created, err := s.store.CreateFile(r.Context(), session.FileRecord{
		FileID:           fileID,
		SessionID:        rec.SessionID,
		Filename:         storedName,
		OriginalFilename: originalName,
		Path:             destPath,
		Size:             size,
		MimeType:         mimeType,
		IsInput:          true,
	})
	if err != nil {
		_ = os.Remove(destPath)
		http.Error(w, "failed to record upload", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, fileJSON(created))
}

func (s *server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	var inputOnly *bool
	if raw := strings.TrimSpace(r.URL.Query().Get("input_only")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "input_only must be a boolean", http.StatusBadRequest)
			return
		}
		inputOnly = &parsed
	}

	files, err := s.store.ListFiles(r.Context(), rec.SessionID, inputOnly)
	if err != nil {
		http.Error(w, "failed to list files", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": rec.SessionID,
		"files":      fileListJSON(files),
	})
}

func (s *server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetFile(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load file", http.StatusInternalServerError)
		return
	}

	if _, err := os.Stat(rec.Path); err != nil {
		http.Error(w, "file contents missing", http.StatusGone)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalFilename))
	if rec.MimeType != "" {
		w.Header().Set("Content-Type", rec.MimeType)
	}
	http.ServeFile(w, r, rec.Path)
}

type configRequest struct {
	APIKeys  map[string]string `json:"api_keys"`
	Settings map[string]any    `json:"settings"`
}

func (s *server) handleConfig(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req configRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}

	for provider, key := range req.APIKeys {
		s.runtime.SetAPIKey(provider, key)
	}
	for name, value := range req.Settings {
		s.runtime.SetSetting(name, value)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.runtime.Providers(),
	})
}

func (s *server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, err := s.store.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	events, detach, err := s.executor.Attach(sessionID)
	if err != nil {
		http.Error(w, "session already terminated", http.StatusConflict)
		return
	}
	defer detach()

	upgrader := websocket.Upgrader{CheckOrigin: isWebSocketOriginAllowed}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("session ws upgrade failed session_id=%s err=%v", sessionID, err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxWSRequestBytes)

	// Reader decodes control commands; a read error just means the
	// client went away and never cancels the run.
	commandErrs := make(chan string, 8)
	readerGone := make(chan struct{})
	go func() {
		defer close(readerGone)
		for {
			var cmd protocol.Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if !cmd.Valid() {
				select {
				case commandErrs <- fmt.Sprintf("invalid command type %q", cmd.Type):
				default:
				}
				continue
			}
			if err := s.executor.Command(sessionID, cmd); err != nil {
				select {
				case commandErrs <- err.Error():
				default:
				}
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
			if event.Terminal() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(event.Type)),
					time.Now().Add(time.Second))
				return
			}
		case msg := <-commandErrs:
			errEvent := protocol.StreamEvent{
				Type:      protocol.EventTypeError,
				SessionID: sessionID,
				Timestamp: time.Now().UTC(),
				Error:     msg,
			}
			if err := conn.WriteJSON(errEvent); err != nil {
				return
			}
		case <-readerGone:
			return
		}
	}
}

func (s *server) loadSession(w http.ResponseWriter, r *http.Request) (session.SessionRecord, bool) {
	rec, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return session.SessionRecord{}, false
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return session.SessionRecord{}, false
	}
	return rec, true
}

func sessionJSON(rec session.SessionRecord) map[string]any {
	out := map[string]any{
		"session_id":     rec.SessionID,
		"mode_id":        rec.ModeID,
		"engine":         rec.Engine,
		"status":         rec.Status,
		"total_tokens":   rec.TotalTokens,
		"total_cost_usd": rec.TotalCostUSD,
		"created_at":     rec.CreatedAt,
		"updated_at":     rec.UpdatedAt,
	}
	if rec.ErrorMessage != "" {
		out["error"] = rec.ErrorMessage
	}
	if !rec.StartedAt.IsZero() {
		out["started_at"] = rec.StartedAt
	}
	if !rec.CompletedAt.IsZero() {
		out["completed_at"] = rec.CompletedAt
	}
	return out
}

func fileJSON(rec session.FileRecord) map[string]any {
	return map[string]any{
		"file_id":           rec.FileID,
		"session_id":        rec.SessionID,
		"filename":          rec.Filename,
		"original_filename": rec.OriginalFilename,
		"size":              rec.Size,
		"mime_type":         rec.MimeType,
		"is_input":          rec.IsInput,
		"created_at":        rec.CreatedAt,
	}
}

func fileListJSON(files []session.FileRecord) []map[string]any {
	out := make([]map[string]any, 0, len(files))
	for _, f := range files {
		out = append(out, fileJSON(f))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func isWebSocketOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsedOrigin, err := url.Parse(origin)
	if err != nil || strings.TrimSpace(parsedOrigin.Host) == "" {
		return false
	}
	return strings.EqualFold(parsedOrigin.Host, r.Host)
}
