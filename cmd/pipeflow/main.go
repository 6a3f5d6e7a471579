// Command pipeflow runs a small demo node: a TCP listener bound to an
// echo pipeline, plus a Prometheus text endpoint exposing the runtime's
// stats tree. It exists to exercise net/listener, pipeline, stats, and
// configbinder end to end, the way a teaching example would.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/pipeflow/pipeflow/configbinder"
	"github.com/pipeflow/pipeflow/internal/telemetry/logger"
	"github.com/pipeflow/pipeflow/net/listener"
	"github.com/pipeflow/pipeflow/stats"
)

var (
	listenAddr = flag.String("listen", "127.0.0.1:9000", "address the echo pipeline listens on")
	statsAddr  = flag.String("stats", "127.0.0.1:9090", "address the Prometheus text endpoint listens on")
	maxConns   = flag.Int("max-connections", 0, "admission limit on the echo listener, 0 = unlimited")
)

var log = logger.GlobalLogger()

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pipeflow: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	connGauge := stats.NewGauge("pipeflow_echo_connections")
	bytesCounter := stats.NewCounter("pipeflow_echo_bytes_total")

	script := configbinder.NewScript()
	script.Listen(*listenAddr, listener.Options{MaxConnections: *maxConns}, func(m *configbinder.Module) {
		m.Use("print", newEchoFilter(connGauge.Gauge(), bytesCounter.Counter()))
	})

	bound, err := configbinder.NewBinder(script).Bind()
	if err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	defer func() {
		for _, l := range bound.Listeners {
			_ = l.Close()
		}
	}()

	log.Info("echo listener started", "addr", bound.Listeners[0].Addr())

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if err := stats.WriteAll(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	srv := &http.Server{Addr: *statsAddr, Handler: mux}

	// The stats server and the signal wait run as two independent group
	// members. On a signal the second member calls Shutdown, which makes
	// ListenAndServe return; Wait returns once both members have returned.
	// The group's context is cancelled only if a member returns an error.
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("stats server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		waitForSignal(ctx)
		log.Info("shutting down")
		return srv.Shutdown(context.Background())
	})
	log.Info("stats endpoint started", "addr", *statsAddr)

	return g.Wait()
}

// waitForSignal blocks until SIGINT/SIGTERM arrives or ctx is canceled
// by another group member failing first.
func waitForSignal(ctx context.Context) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigs:
	case <-ctx.Done():
	}
}
