package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// AdminServer serves the out-of-band metrics and liveness endpoints on
// the admin port, separate from the operator API.
type AdminServer struct {
	port   int
	server *http.Server
	log    *zerolog.Logger
}

func NewAdminServer(port int, logger *zerolog.Logger) *AdminServer {
	adminLog := logger.With().Str("component", "AdminServer").Logger()
	return &AdminServer{port: port, log: &adminLog}
}

func (s *AdminServer) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Int("port", s.port).Msg("admin server listening")
	return s.server.ListenAndServe()
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
