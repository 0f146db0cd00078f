package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/session"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.renderPage(w, sess, nil, nil)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.Server.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.renderPage(w, sess, &notice{Kind: noticeError, Message: fmt.Sprintf("Could not read upload: %v", err)}, nil)
		return
	}

	uploads, err := readUploads(r)
	if err != nil {
		s.renderPage(w, sess, &notice{Kind: noticeError, Message: err.Error()}, nil)
		return
	}

	res, err := sess.Process(r.Context(), r.FormValue("api_key"), uploads)
	switch {
	case errors.Is(err, session.ErrMissingAPIKey):
		s.renderPage(w, sess, &notice{Kind: noticeError, Message: "Please add your API key to continue."}, nil)
	case errors.Is(err, parser.ErrUnsupportedFileType):
		s.renderPage(w, sess, &notice{Kind: noticeError, Message: fmt.Sprintf("%v. Supported types: %s", err, strings.Join(parser.Extensions(), ", "))}, nil)
	case err != nil:
		log.Error().Err(err).Str("session", sess.ID).Msg("Failed to process documents")
		s.renderPage(w, sess, &notice{Kind: noticeError, Message: fmt.Sprintf("Processing failed: %v", err)}, nil)
	default:
		msg := fmt.Sprintf("Processed %d chunks from %d files", res.Chunks, res.Files)
		s.renderPage(w, sess, &notice{Kind: noticeInfo, Message: msg}, nil)
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	resp, err := sess.Ask(r.Context(), r.FormValue("question"))
	switch {
	case errors.Is(err, session.ErrEmptyQuestion):
		s.renderPage(w, sess, nil, nil)
	case errors.Is(err, session.ErrNotReady):
		s.renderPage(w, sess, &notice{Kind: noticeInfo, Message: "Please process your documents first."}, nil)
	case err != nil:
		s.renderPage(w, sess, &notice{Kind: noticeError, Message: fmt.Sprintf("Could not answer: %v", err)}, nil)
	default:
		s.renderPage(w, sess, nil, resp.Sources)
	}
}

// session resolves the cookie to a live session, creating one and setting the
// cookie when needed.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	sess, created, err := s.sessions.GetOrCreate(id)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		http.Error(w, "could not create session", http.StatusInternalServerError)
		return nil, false
	}
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess, true
}

func (s *Server) renderPage(w http.ResponseWriter, sess *session.Session, n *notice, sources []models.SourceSnippet) {
	data := pageData{
		Title:      s.cfg.Server.Title,
		Accept:     strings.Join(parser.Extensions(), ","),
		Ready:      sess.Ready(),
		Notice:     n,
		Transcript: s.page.transcript(sess.Transcript()),
		Sources:    sourceViews(sources, s.cfg.RAG.SourceDisplay),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.render(w, data); err != nil {
		log.Error().Err(err).Msg("Failed to render page")
	}
}

func readUploads(r *http.Request) ([]parser.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File["files"]
	uploads := make([]parser.Upload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", h.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", h.Filename, err)
		}
		uploads = append(uploads, parser.Upload{Name: h.Filename, Data: data})
	}
	return uploads, nil
}
