package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mgpai22/chitra/internal/config"
	"github.com/mgpai22/chitra/internal/playback"
	"github.com/mgpai22/chitra/internal/session"
)

type errorResponse struct {
	Error string `json:"error"`
}

type inputRequest struct {
	URL    string `json:"url,omitempty"`
	Preset string `json:"preset,omitempty"`
}

type imageRequest struct {
	URL string `json:"url"`
}

type playbackRequest struct {
	Time    float64 `json:"time"` // seconds
	Playing *bool   `json:"playing,omitempty"`
	Seek    bool    `json:"seek,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// errorStatus maps session errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, config.ErrMissingCredential):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrNoInput), errors.Is(err, playback.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, session.ErrUnknownPreset):
		return http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*entry, bool) {
	id := mux.Vars(r)["id"]
	e, ok := s.lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("session %q not found", id))
		return nil, false
	}
	return e, true
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.List())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	sess := s.factory(id)

	s.mu.Lock()
	s.sessions[id] = &entry{session: sess}
	s.mu.Unlock()

	s.logger.Infow("Session created", "session", id)
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.session.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("session %q not found", id))
		return
	}
	s.closeEntry(e)
	s.logger.Infow("Session deleted", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleSelectInput accepts a multipart "file" upload, or JSON naming a
// URL or preset.
func (s *Server) handleSelectInput(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	var src session.InputSource
	if isMultipart(r) {
		path, name, err := s.saveUpload(w, r, e)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		src = session.FileInput{Name: name, Path: path}
	} else {
		var req inputRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
		switch {
		case req.URL != "" && req.Preset != "":
			writeError(w, http.StatusBadRequest, errors.New("give either url or preset, not both"))
			return
		case req.URL != "":
			src = session.URLInput{Address: req.URL}
		case req.Preset != "":
			src = session.PresetInput{ID: req.Preset}
		default:
			writeError(w, http.StatusBadRequest, errors.New("url, preset or a file upload is required"))
			return
		}
	}

	if err := e.session.SelectInput(r.Context(), src); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, e.session.Snapshot())
}

func (s *Server) handleSetAudio(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	if !isMultipart(r) {
		writeError(w, http.StatusBadRequest, errors.New("multipart file upload required"))
		return
	}

	path, _, err := s.saveUpload(w, r, e)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := e.session.SetTranscriptionAudio(r.Context(), path); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, e.session.Snapshot())
}

func (s *Server) handleClearAudio(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	if err := e.session.SetTranscriptionAudio(r.Context(), ""); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, e.session.Snapshot())
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	if err := e.session.Process(r.Context()); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, e.session.Snapshot())
}

func (s *Server) handleOverrideImage(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid segment index: %w", err))
		return
	}

	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := e.session.OverrideImage(index, req.URL); err != nil {
		if errors.Is(err, session.ErrClosed) {
			writeError(w, http.StatusGone, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, e.session.Snapshot())
}

// handlePlayback relays the player's clock: a tick by default, or a seek.
func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	e, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	var req playbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Time < 0 {
		writeError(w, http.StatusBadRequest, errors.New("time must not be negative"))
		return
	}

	at := time.Duration(req.Time * float64(time.Second))
	if req.Playing != nil {
		e.session.SetPlaying(*req.Playing)
	}
	if req.Seek {
		if err := e.session.Seek(at); err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
	} else {
		e.session.Tick(at)
	}
	writeJSON(w, http.StatusOK, e.session.Snapshot().Playback)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// saveUpload stores the "file" form field in the session's upload dir and
// returns its path and original name.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request, e *entry) (string, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", fmt.Errorf("failed to read upload: %w", err)
	}
	defer file.Close()

	dir, err := s.uploadDir(e)
	if err != nil {
		return "", "", err
	}

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || strings.TrimSpace(name) == "" {
		name = "upload"
	}
	path := filepath.Join(dir, uuid.NewString()+"-"+name)

	out, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to store upload: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return "", "", fmt.Errorf("failed to store upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", "", fmt.Errorf("failed to store upload: %w", err)
	}

	s.logger.Debugw("Upload stored", "name", name, "path", path, "size", header.Size)
	return path, name, nil
}

func (s *Server) uploadDir(e *entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.closed {
		return "", session.ErrClosed
	}
	if e.uploadDir != "" {
		return e.uploadDir, nil
	}
	dir, err := os.MkdirTemp(s.uploadRoot, "chitra-session-*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	e.uploadDir = dir
	return dir, nil
}
