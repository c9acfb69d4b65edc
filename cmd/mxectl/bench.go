package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"lukechampine.com/frand"

	mxe "github.com/bountymxe/mxe-go"
	"github.com/bountymxe/mxe-go/internal/config"
)

type benchFlags struct {
	sessions    int
	concurrency int
	maxInput    uint64
	metrics     string
	journal     string
	profileDir  string
	quiet       bool
}

// BenchReport summarizes a bench run.
type BenchReport struct {
	Sessions  int
	Decrypted int
	Failed    map[mxe.FailureReason]int
	Latencies []time.Duration
	Elapsed   time.Duration
}

func newBenchCommand(g *globalFlags, streams IOConfig) *cobra.Command {
	f := &benchFlags{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run many bounty computations concurrently",
		Long: `Runs sessions with random effort and quality values through one client
and reports outcomes and latencies. Client metrics are served at /metrics
on the metrics address while the run is in progress.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			report, err := runBench(cmd.Context(), cfg, f, streams)
			if err != nil {
				return err
			}
			printReport(streams, report)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&f.sessions, "sessions", "n", 20, "number of sessions")
	flags.IntVar(&f.concurrency, "concurrency", 4, "sessions in flight at once")
	flags.Uint64Var(&f.maxInput, "max-input", 100, "upper bound of random inputs")
	flags.StringVar(&f.metrics, "metrics-listen", "", "metrics listen address (overrides Metrics.Address)")
	flags.StringVar(&f.journal, "journal", "", "session journal file (overrides Journal.Path)")
	flags.StringVar(&f.profileDir, "cpuprofile-dir", "", "write a CPU profile of the run to this directory")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "do not show progress")
	return cmd
}

func runBench(ctx context.Context, cfg *config.Config, f *benchFlags, streams IOConfig) (*BenchReport, error) {
	if cfg.Gateway.URL == "" {
		return nil, fmt.Errorf("gateway URL is not set: use --gateway or %s", config.EnvGatewayURL)
	}
	if f.sessions < 1 || f.concurrency < 1 || f.maxInput < 1 {
		return nil, errors.New("sessions, concurrency and max-input must be positive")
	}
	if f.journal != "" {
		cfg.Journal.Path = f.journal
	}
	if f.metrics != "" {
		cfg.Metrics.Address = f.metrics
	}

	backend, err := newLogBackend(cfg, streams.Stderr)
	if err != nil {
		return nil, err
	}
	defer backend.Close()
	logger := backend.GetLogger("bench")

	reg := prometheus.NewRegistry()
	client, err := newClient(cfg, backend, cfg.Session.TimeoutDuration(), mxe.WithMetrics(reg))
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if addr := cfg.Metrics.Address; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		srv := &http.Server{
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go srv.Serve(ln)
		defer srv.Close()
		logger.Noticef("serving metrics on http://%s/metrics", ln.Addr())
	}

	if f.profileDir != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(f.profileDir), profile.Quiet, profile.NoShutdownHook).Stop()
	}
	var bar *progressbar.ProgressBar
	if !f.quiet {
		bar = progressbar.NewOptions(f.sessions,
			progressbar.OptionSetWriter(streams.Stderr),
			progressbar.OptionSetDescription("sessions"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	report := &BenchReport{Sessions: f.sessions, Failed: make(map[mxe.FailureReason]int)}
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, f.concurrency)
	)
	start := time.Now()
	for i := 0; i < f.sessions; i++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			effort, quality := frand.Uint64n(f.maxInput), frand.Uint64n(f.maxInput)
			res, err := client.Compute(ctx, effort, quality)

			mu.Lock()
			defer mu.Unlock()
			if bar != nil {
				bar.Add(1)
			}
			if err != nil {
				var se *mxe.SessionError
				reason := mxe.ReasonInternal
				if errors.As(err, &se) {
					reason = se.Reason
				}
				report.Failed[reason]++
				logger.Warningf("session failed: %v", err)
				return
			}
			report.Decrypted++
			report.Latencies = append(report.Latencies, res.Elapsed)
		}()
	}
	wg.Wait()
	report.Elapsed = time.Since(start)
	return report, nil
}

func printReport(streams IOConfig, r *BenchReport) {
	fmt.Fprintf(streams.Stdout, "sessions:  %d in %v\n", r.Sessions, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(streams.Stdout, "decrypted: %d\n", r.Decrypted)
	reasons := make([]string, 0, len(r.Failed))
	for reason := range r.Failed {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(streams.Stdout, "failed:    %d %s\n", r.Failed[mxe.FailureReason(reason)], reason)
	}
	if len(r.Latencies) == 0 {
		return
	}
	sort.Slice(r.Latencies, func(i, j int) bool { return r.Latencies[i] < r.Latencies[j] })
	pct := func(p int) time.Duration {
		return r.Latencies[(len(r.Latencies)-1)*p/100].Round(time.Millisecond)
	}
	fmt.Fprintf(streams.Stdout, "latency:   p50 %v  p90 %v  max %v\n", pct(50), pct(90), pct(100))
}
