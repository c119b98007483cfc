package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

// Provider publishes a JSON-serializable view of the engine.
type Provider interface {
	StatusSnapshot() interface{}
}

// Server exposes the analyzer state over HTTP for operators and
// dashboards.
type Server struct {
	srv      *http.Server
	provider Provider
}

func NewServer(port int, provider Provider) *Server {
	s := &Server{provider: provider}

	router := httprouter.New()
	router.GET("/inspectors", s.handleInspectors)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	return s
}

func (s *Server) handleInspectors(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.provider.StatusSnapshot()); err != nil {
		log.Error().Err(err).Msg("failed to encode status snapshot")
	}
}

func (s *Server) Run(ctx context.Context) error {
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx) //nolint:errcheck
}
