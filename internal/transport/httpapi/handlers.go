package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"anypush/internal/apperr"
	"anypush/internal/content"
	"anypush/internal/settings"
	logx "anypush/pkg/logx"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// pushRequest is the body of both push routes. For /push/url an empty
// content falls back to source.url.
type pushRequest struct {
	Content string         `json:"content"`
	Source  content.Source `json:"source"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.status != nil {
		body["loops"] = s.status()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handlePushText(w http.ResponseWriter, r *http.Request) {
	s.push(w, r, content.KindText)
}

func (s *Server) handlePushURL(w http.ResponseWriter, r *http.Request) {
	s.push(w, r, content.KindURL)
}

func (s *Server) push(w http.ResponseWriter, r *http.Request, kind content.Kind) {
	var req pushRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	// Whitespace only decides emptiness; the content is pushed as sent.
	text := req.Content
	if kind == content.KindURL && blank(text) {
		text = req.Source.URL
	}
	if blank(text) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "content is required", Field: "content"})
		return
	}
	item := content.Item{Kind: kind, Content: text, Source: req.Source}
	writeJSON(w, http.StatusOK, s.backend.Push(r.Context(), item))
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	svc := chi.URLParam(r, "service")
	writeJSON(w, http.StatusOK, s.backend.Test(r.Context(), svc))
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	b, err := s.backend.Settings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var b settings.Bundle
	if err := decodeJSON(r, &b); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	saved, err := s.backend.SaveSettings(r.Context(), b)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.backend.ExportSettings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	name := settings.ExportFileName(s.now())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	keys, err := s.backend.ImportSettings(r.Context(), data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": keys})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.ResetSettings(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Notices())
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ce *apperr.ConfigError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Field: ce.Field})
	case apperr.IsImport(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case apperr.IsDelivery(err):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
	case errors.Is(err, apperr.ErrStorageUnavailable):
		s.log.Warn("storage unavailable", logx.Err(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	default:
		s.log.Error("request failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
