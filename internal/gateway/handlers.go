package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"summa/internal/agent"
	"summa/internal/chain"

	"github.com/google/uuid"
	sse "github.com/tmaxmax/go-sse"
)

const maxRequestBody = 1 << 20

type runRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" validate:"required"`
}

type textRequest struct {
	Text     string `json:"text" validate:"required"`
	Language string `json:"language"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, chain.ErrEmptyInput.Error())
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Tool results are emitted from parallel goroutines.
	var mu sync.Mutex
	send := func(event string, data any) {
		b, err := json.Marshal(data)
		if err != nil {
			slog.Warn("gateway: encoding event", "event", event, "error", err)
			return
		}
		msg := &sse.Message{Type: sse.Type(event)}
		msg.AppendData(string(b))

		mu.Lock()
		defer mu.Unlock()
		if err := sess.Send(msg); err != nil {
			slog.Debug("gateway: sending event", "event", event, "error", err)
			return
		}
		if err := sess.Flush(); err != nil {
			slog.Debug("gateway: flushing event", "event", event, "error", err)
		}
	}

	send("session", map[string]string{"session_id": req.SessionID})

	var sentError bool
	ctx := agent.ContextWithChannel(r.Context(), "http")
	err = s.runner.Run(ctx, req.SessionID, req.Message, func(ev agent.Event) {
		switch ev.Type {
		case agent.EventToken:
			send("token", map[string]any{"content": ev.Data})
		case agent.EventToolCall:
			send("tool_call", ev.Data)
		case agent.EventToolResult:
			send("tool_result", ev.Data)
		case agent.EventError:
			sentError = true
			send("error", map[string]any{"error": ev.Data})
		case agent.EventDone:
			send("done", map[string]any{"output": ev.Data})
		}
	})

	if err != nil {
		slog.Warn("gateway: run failed", "session_id", req.SessionID, "error", err)
		if !sentError {
			send("error", map[string]string{"error": err.Error()})
		}
	}
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.chain.Summarize(r.Context(), req.Text)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": out})
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.chain.TranslateTo(r.Context(), req.Text, req.Language)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"translation": out})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.chain.SummarizeAndTranslate(r.Context(), req.Text)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := s.history.Sessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	id := r.PathValue("id")
	sess, err := s.history.Session(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	turns, err := s.history.Turns(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess, "turns": turns})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("gateway: writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chain.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, 499, err.Error())
	default:
		slog.Warn("gateway: upstream call failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
