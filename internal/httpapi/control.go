package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/ent0n29/healthpilot/internal/dictation"
	"github.com/ent0n29/healthpilot/internal/live"
)

type liveStartRequest struct {
	Instruction string `json:"instruction"`
}

type liveFrameRequest struct {
	MIMEType   string `json:"mime_type"`
	DataBase64 string `json:"data_base64"`
}

type voiceLocaleRequest struct {
	Locale   string `json:"locale"`
	Language string `json:"language"`
}

type dictationStartRequest struct {
	Field  string `json:"field"`
	Locale string `json:"locale"`
}

func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "live session not configured")
		return
	}
	var req liveStartRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	err := s.live.Start(r.Context(), live.StartOptions{Instruction: strings.TrimSpace(req.Instruction)})
	if errors.Is(err, live.ErrAbandoned) {
		respondError(w, http.StatusConflict, "abandoned", err.Error())
		return
	}
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.live.Snapshot())
}

func (s *Server) handleLiveStop(w http.ResponseWriter, _ *http.Request) {
	if s.live == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "live session not configured")
		return
	}
	s.live.Stop()
	respondJSON(w, http.StatusOK, s.live.Snapshot())
}

func (s *Server) handleLiveStatus(w http.ResponseWriter, _ *http.Request) {
	if s.live == nil {
		respondJSON(w, http.StatusOK, live.Snapshot{State: live.StateIdle})
		return
	}
	respondJSON(w, http.StatusOK, s.live.Snapshot())
}

func (s *Server) handleLiveFrame(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "live session not configured")
		return
	}
	var req liveFrameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.DataBase64))
	if err != nil || len(data) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "data_base64 must be non-empty base64")
		return
	}
	sent, err := s.live.SendAuxiliaryFrame(data, strings.TrimSpace(req.MIMEType))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sent": sent})
}

func (s *Server) handleVoiceListen(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice commands not configured")
		return
	}
	// The recognition pass outlives this request.
	if err := s.voice.Listen(context.WithoutCancel(r.Context())); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.voice.Status())
}

func (s *Server) handleVoiceStop(w http.ResponseWriter, _ *http.Request) {
	if s.voice == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice commands not configured")
		return
	}
	s.voice.StopListening()
	respondJSON(w, http.StatusOK, s.voice.Status())
}

func (s *Server) handleVoiceTask(w http.ResponseWriter, _ *http.Request) {
	if s.voice == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice commands not configured")
		return
	}
	respondJSON(w, http.StatusOK, s.voice.Status())
}

func (s *Server) handleVoiceReset(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice commands not configured")
		return
	}
	if err := s.voice.Reset(r.Context()); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.voice.Status())
}

func (s *Server) handleVoiceLocale(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice commands not configured")
		return
	}
	var req voiceLocaleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Locale = strings.TrimSpace(req.Locale)
	if req.Locale == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "locale is required")
		return
	}
	s.voice.SetLocale(req.Locale, strings.TrimSpace(req.Language))
	respondJSON(w, http.StatusOK, s.voice.Status())
}

func (s *Server) handleDictationStart(w http.ResponseWriter, r *http.Request) {
	if s.dictation == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "dictation not configured")
		return
	}
	var req dictationStartRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	locale := strings.TrimSpace(req.Locale)
	if locale == "" && s.voice != nil {
		locale = s.voice.Status().Locale
	}
	err := s.dictation.Start(context.WithoutCancel(r.Context()), strings.TrimSpace(req.Field), locale)
	if errors.Is(err, dictation.ErrNoField) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.dictation.Status())
}

func (s *Server) handleDictationStop(w http.ResponseWriter, _ *http.Request) {
	if s.dictation == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "dictation not configured")
		return
	}
	s.dictation.Stop()
	respondJSON(w, http.StatusOK, s.dictation.Status())
}
