// Command fabricd is the fabric manager: it accepts mixer worker
// connections on the Control Plane socket (§4.3), brokers sessions through
// the Backend Registry, and accepts remote-fabric interconnect connections
// (§4.4). Mirrors the teacher's single-binary server entrypoint style.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcfabric/mcfabric/internal/config"
	"github.com/mcfabric/mcfabric/internal/controlplane"
	"github.com/mcfabric/mcfabric/internal/interconnectserver"
	"github.com/mcfabric/mcfabric/pkg/metrics"
	"github.com/mcfabric/mcfabric/pkg/signaling"
)

const shutdownGrace = 5 * time.Second

func main() {
	configPath := flag.String("config", "fabric.yaml", "path to the fabric bootstrap config file")
	flag.Parse()

	log := slog.Default()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	mgr := controlplane.New(cfg.ControlPlane, cfg.ControlPlane.RegistrySize, m)
	defer mgr.Stop()

	ic := interconnectserver.New(ctx, cfg.Interconnect, cfg.Peers, cfg.Loops, m)

	mux := http.NewServeMux()
	mux.HandleFunc("/worker", mgr.ServeHTTP)
	mux.HandleFunc("/interconnect", func(w http.ResponseWriter, r *http.Request) {
		conn, err := signaling.Upgrade(w, r)
		if err != nil {
			log.Warn("interconnect upgrade failed", "err", err)
			return
		}
		ic.Accept(conn)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	addr := cfg.ControlPlane.ListenAddr
	if addr == "" {
		addr = ":8900"
	}
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info("fabricd listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}
