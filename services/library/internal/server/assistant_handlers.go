package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"dorian/internal/googleauth"
	"dorian/internal/util"
	"dorian/services/library/internal/assistant"
)

// MediaRecorder uploads frequently arrive without a usable part type.
const defaultAudioMimeType = "audio/webm"

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request, _ googleauth.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	question := strings.TrimSpace(r.URL.Query().Get("question"))
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if !s.allowRate(w, r, "ask", s.askLimiter) {
		return
	}

	answer, err := s.assistant.Answer(r.Context(), question, r.URL.Query().Get("session_id"))
	if err != nil {
		var derr *assistant.DispatchError
		if errors.As(err, &derr) {
			writeDispatchError(w, r, derr)
			return
		}
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request, _ googleauth.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.voice == nil {
		writeError(w, http.StatusServiceUnavailable, "voice assistant not configured")
		return
	}
	if !s.allowRate(w, r, "audio", s.audioLimiter) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxAudioBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio is required (field: audio)")
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = defaultAudioMimeType
	}
	reply, err := s.voice.Reply(r.Context(), mimeType, audio)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyAudio) || r.Context().Err() != nil {
			writeAppError(w, r, err)
			return
		}
		util.LoggerFromContext(r.Context()).Warn("voice reply failed", "err", err)
		writeError(w, http.StatusBadGateway, "voice reply failed")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
