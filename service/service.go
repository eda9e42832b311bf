package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-unitgate/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"
)

// Config selects the listen addresses of the servers
type Config struct {
	MetricsHost string
	MetricsPort int
	HealthzHost string
	HealthzPort string
}

// DefaultConfig listens on the standard healthz address and the given metrics address
func DefaultConfig(metricsHost string, metricsPort int) Config {
	return Config{
		MetricsHost: metricsHost,
		MetricsPort: metricsPort,
		HealthzHost: HealthzHost,
		HealthzPort: HealthzPort,
	}
}

type Service struct {
	Config  Config
	Healthz *HealthzServer
	Metrics *MetricsServer

	group errgroup.Group
}

func New(cfg Config) *Service {
	s := &Service{
		Config:  cfg,
		Healthz: &HealthzServer{},
		Metrics: &MetricsServer{},
	}
	return s
}

// Start serves healthz and metrics in the background. Listen failures are
// logged and counted but never stop the gate run.
func (s *Service) Start(ctx context.Context) {
	log.Info("service starting")

	healthzAddr := net.JoinHostPort(s.Config.HealthzHost, s.Config.HealthzPort)
	log.Info("starting healthz server", "addr", healthzAddr)
	healthz := s.Healthz.prepare(ctx, healthzAddr)
	s.group.Go(func() error {
		if err := healthz.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("healthz", err)
			return err
		}
		return nil
	})

	metricsAddr := net.JoinHostPort(s.Config.MetricsHost, strconv.Itoa(s.Config.MetricsPort))
	log.Info("starting metrics server", "addr", metricsAddr)
	metricsSrv := s.Metrics.prepare(ctx, metricsAddr)
	s.group.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("error starting metrics server", "err", err)
			metrics.RecordErrorDetails("metrics_server", err)
			return err
		}
		return nil
	})

	log.Info("service started")
}

// Shutdown stops both servers and waits for their goroutines to return
func (s *Service) Shutdown() {
	log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	log.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	log.Info("metrics stopped")

	if err := s.group.Wait(); err != nil {
		log.Warn("service exited with error", "err", err)
	}
	log.Info("service stopped")
}
