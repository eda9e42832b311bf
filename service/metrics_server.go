package service

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsServer struct {
	mu     sync.Mutex
	ctx    context.Context
	server *http.Server
}

// Handler serves the default prometheus registry on /metrics
func (m *MetricsServer) Handler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.Handle("/metrics", promhttp.Handler())
	return hdlr
}

func (m *MetricsServer) Start(ctx context.Context, addr string) error {
	return m.prepare(ctx, addr).ListenAndServe()
}

// prepare registers the server so a Shutdown racing the listener still stops it
func (m *MetricsServer) prepare(ctx context.Context, addr string) *http.Server {
	server := &http.Server{
		Handler: m.Handler(),
		Addr:    addr,
	}
	m.mu.Lock()
	m.server = server
	m.ctx = ctx
	m.mu.Unlock()
	return server
}

func (m *MetricsServer) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(m.ctx)
}
