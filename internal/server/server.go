// Package server serves the browser chat: document upload and processing in
// a sidebar, the transcript, and the sources behind the latest answer.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/session"
)

const sessionCookie = "docqa_session"

type Server struct {
	cfg      *config.Config
	sessions *session.Manager
	page     *renderer
}

func New(cfg *config.Config, sessions *session.Manager) (*Server, error) {
	page, err := newRenderer()
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, sessions: sessions, page: page}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /process", s.handleProcess)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return logMiddleware(mux)
}

// Run serves until ctx is cancelled, expiring idle sessions in the background.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		t := time.NewTicker(max(s.cfg.Server.SessionIdle/4, time.Minute))
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.sessions.Expire(s.cfg.Server.SessionIdle)
			}
		}
	}()

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Chat server listening")
		errs <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
