package service

import (
	"context"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

type HealthzServer struct {
	mu     sync.Mutex
	ctx    context.Context
	server *http.Server
}

// Handler returns the CORS-wrapped /healthz mux
func (h *HealthzServer) Handler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(hdlr)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	return h.prepare(ctx, addr).ListenAndServe()
}

// prepare registers the server so a Shutdown racing the listener still stops it
func (h *HealthzServer) prepare(ctx context.Context, addr string) *http.Server {
	server := &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	h.mu.Lock()
	h.server = server
	h.ctx = ctx
	h.mu.Unlock()
	return server
}

func (h *HealthzServer) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}
