package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/bountymxe/mxe-go/internal/cluster"
	"github.com/bountymxe/mxe-go/internal/config"
)

const shutdownTimeout = 5 * time.Second

type serveFlags struct {
	listen       string
	publishAfter int
	execDelay    time.Duration
	notifyDelay  time.Duration
}

func newServeSimCommand(g *globalFlags, streams IOConfig) *cobra.Command {
	f := &serveFlags{publishAfter: -1, execDelay: -1, notifyDelay: -1}

	cmd := &cobra.Command{
		Use:   "serve-sim",
		Short: "Serve a simulated MXE cluster behind the gateway API",
		Long: `Runs an in-process cluster that publishes its key, executes
compute_bounty on submitted inputs, and notifies results over polling and
Server-Sent Events. Prometheus metrics are served at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			return runServeSim(cmd.Context(), cfg, f, streams, nil)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.listen, "listen", "", "listen address (overrides Simulator.Address)")
	flags.IntVar(&f.publishAfter, "publish-after", -1, "key lookups answered with not yet published")
	flags.DurationVar(&f.execDelay, "exec-delay", -1, "time from submission to finalization")
	flags.DurationVar(&f.notifyDelay, "notify-delay", -1, "time from finalization to notification")
	return cmd
}

// runServeSim serves until ctx ends. ready, when set, is called with the
// bound address once the listener is open.
func runServeSim(ctx context.Context, cfg *config.Config, f *serveFlags, streams IOConfig, ready func(net.Addr)) error {
	sc := cfg.Simulator
	if f.listen != "" {
		sc.Address = f.listen
	}
	if f.publishAfter >= 0 {
		sc.PublishAfter = f.publishAfter
	}
	if f.execDelay >= 0 {
		sc.ExecDelay = int(f.execDelay / time.Millisecond)
	}
	if f.notifyDelay >= 0 {
		sc.NotifyDelay = int(f.notifyDelay / time.Millisecond)
	}

	backend, err := newLogBackend(cfg, streams.Stderr)
	if err != nil {
		return err
	}
	defer backend.Close()
	logger := backend.GetLogger("serve-sim")

	sim, err := cluster.New(cluster.Config{
		PublishAfter: sc.PublishAfter,
		ExecDelay:    time.Duration(sc.ExecDelay) * time.Millisecond,
		NotifyDelay:  time.Duration(sc.NotifyDelay) * time.Millisecond,
		Logger:       backend.GetLogger("cluster"),
	})
	if err != nil {
		return err
	}
	defer sim.Close()

	reg := prometheus.NewRegistry()
	handler, err := instrument(reg, sim.Handler())
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", handler)

	ln, err := net.Listen("tcp", sc.Address)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          backend.GetGoLogger("http", "WARNING"),
	}

	fmt.Fprintf(streams.Stdout, "listening on http://%s\n", ln.Addr())
	fmt.Fprintf(streams.Stdout, "cluster key %s\n", sim.PublicKey())
	logger.Noticef("serving simulated cluster on %s", ln.Addr())
	if ready != nil {
		ready(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Noticef("shutting down")
	// Event streams only end when the cluster stops.
	sim.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// instrument registers process and request collectors on reg and wraps h
// with request counting and timing.
func instrument(reg *prometheus.Registry, h http.Handler) (http.Handler, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mxe_sim",
		Name:      "http_requests_total",
		Help:      "Gateway requests by status code and method.",
	}, []string{"code", "method"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mxe_sim",
		Name:      "http_request_duration_seconds",
		Help:      "Gateway request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"code", "method"})

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requests,
		duration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return promhttp.InstrumentHandlerDuration(duration, promhttp.InstrumentHandlerCounter(requests, h)), nil
}
