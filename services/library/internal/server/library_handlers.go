package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dorian/internal/googleauth"
	"dorian/pkg/domain"
	"dorian/services/library/internal/app"
)

const maxJSONBodyBytes = 1 << 20

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, _ googleauth.User) {
	switch r.Method {
	case http.MethodGet:
		books, err := s.app.ListBooks(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, books)
	case http.MethodPost:
		fields, ok := s.readFields(w, r)
		if !ok {
			return
		}
		book, err := s.app.CreateBook(r.Context(), fields)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, book)
	default:
		methodNotAllowed(w)
	}
}

// handleBookRoutes serves /api/books/ and everything below it.
func (s *Server) handleBookRoutes(w http.ResponseWriter, r *http.Request, user googleauth.User) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/books/"), "/")
	if rest == "" {
		s.handleBooks(w, r, user)
		return
	}
	if rest == "with-progress" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		books, err := s.app.ListBooksWithProgress(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, books)
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	id, ok := parseID(parts[0])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	if len(parts) == 1 {
		s.handleBook(w, r, id)
		return
	}
	switch parts[1] {
	case "progress":
		s.handleProgress(w, r, id)
	case "content":
		s.handleContent(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPut:
		fields, ok := s.readFields(w, r)
		if !ok {
			return
		}
		book, err := s.app.UpdateBook(r.Context(), id, fields)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		if err := s.app.DeleteBook(r.Context(), id); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Book deleted successfully"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, bookID int64) {
	switch r.Method {
	case http.MethodGet:
		progress, err := s.app.GetProgress(r.Context(), bookID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, progress)
	case http.MethodPut:
		fields, ok := s.readFields(w, r)
		if !ok {
			return
		}
		progress, err := s.app.UpdateProgress(r.Context(), bookID, fields)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, progress)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request, bookID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	content, err := s.app.BookContent(r.Context(), bookID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

// handleUpload serves POST /api/upload/{ebook|audiobook}/{id}.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, _ googleauth.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/upload/"), "/"), "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	kind, ok := domain.ParseFileKind(parts[0])
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid file type")
		return
	}
	id, ok := parseID(parts[1])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()

	key, err := s.app.UploadFile(r.Context(), kind, id, header.Filename, file, header.Size)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_path": key})
}

// handleSignedURL serves GET /api/signed-url/{id}?type=audiobook|ebook.
func (s *Server) handleSignedURL(w http.ResponseWriter, r *http.Request, _ googleauth.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, ok := parseID(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/signed-url/"), "/"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	kind := domain.KindAudiobook
	if raw := r.URL.Query().Get("type"); raw != "" {
		if kind, ok = domain.ParseFileKind(raw); !ok {
			writeError(w, http.StatusBadRequest, "Invalid file type")
			return
		}
	}
	signed, err := s.app.SignedURL(r.Context(), id, kind)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"signed_url": signed})
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/static/")
	rc, contentType, err := s.app.OpenFile(r.Context(), key)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	// seekable objects get Range support, which audio players rely on
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, "", time.Time{}, rs)
		return
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = io.Copy(w, rc)
	}
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request, _ googleauth.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Statistics(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// readFields decodes a book or progress payload sent either as a JSON
// object or as form fields.
func (s *Server) readFields(w http.ResponseWriter, r *http.Request) (app.Fields, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		if err := r.ParseMultipartForm(maxJSONBodyBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return nil, false
		}
		return app.FieldsFromForm(r.MultipartForm.Value), true
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return nil, false
		}
		return app.FieldsFromForm(r.PostForm), true
	}

	var fields app.Fields
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(&fields); err != nil {
		if errors.Is(err, io.EOF) {
			return app.Fields{}, true
		}
		writeError(w, http.StatusBadRequest, "invalid json body")
		return nil, false
	}
	if fields == nil {
		fields = app.Fields{}
	}
	return fields, true
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
