package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	mxe "github.com/bountymxe/mxe-go"
	"github.com/bountymxe/mxe-go/internal/config"
	"github.com/bountymxe/mxe-go/internal/log"
)

type computeFlags struct {
	journal  string
	timeout  time.Duration
	delivery string
	json     bool
}

// ComputeOutput is the JSON form of a decrypted result.
type ComputeOutput struct {
	CorrelationID         string   `json:"correlationId"`
	Values                []uint64 `json:"values"`
	SubmissionSignature   string   `json:"submissionSignature"`
	FinalizationSignature string   `json:"finalizationSignature"`
	ElapsedMillis         int64    `json:"elapsedMs"`
}

func newComputeCommand(g *globalFlags, streams IOConfig) *cobra.Command {
	f := &computeFlags{}

	cmd := &cobra.Command{
		Use:   "compute <value>...",
		Short: "Run one confidential computation",
		Long: `Encrypts the values for the configured circuit, submits them, and prints
the decrypted result. The default circuit is compute_bounty, which takes
effort and quality and returns the bounty.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseValues(args)
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			return runCompute(cmd, cfg, f, inputs, streams)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.journal, "journal", "", "session journal file (overrides Journal.Path)")
	flags.DurationVar(&f.timeout, "timeout", 0, "session timeout (overrides Session.Timeout)")
	flags.StringVar(&f.delivery, "delivery", "", "notification delivery: auto, sse or polling")
	flags.BoolVar(&f.json, "json", false, "print the result as JSON")
	return cmd
}

func runCompute(cmd *cobra.Command, cfg *config.Config, f *computeFlags, inputs []uint64, streams IOConfig) error {
	if cfg.Gateway.URL == "" {
		return fmt.Errorf("gateway URL is not set: use --gateway or %s", config.EnvGatewayURL)
	}
	if f.journal != "" {
		cfg.Journal.Path = f.journal
	}
	if f.delivery != "" {
		cfg.Gateway.Delivery = f.delivery
	}
	timeout := cfg.Session.TimeoutDuration()
	if f.timeout > 0 {
		timeout = f.timeout
	}

	backend, err := newLogBackend(cfg, streams.Stderr)
	if err != nil {
		return err
	}
	defer backend.Close()

	client, err := newClient(cfg, backend, timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	res, err := client.Run(cmd.Context(), inputs)
	if err != nil {
		var se *mxe.SessionError
		if errors.As(err, &se) && se.Retryable() {
			return fmt.Errorf("%w (retryable with a new session)", err)
		}
		return err
	}

	if f.json {
		enc := json.NewEncoder(streams.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ComputeOutput{
			CorrelationID:         res.CorrelationID.String(),
			Values:                res.Values,
			SubmissionSignature:   res.SubmissionSignature,
			FinalizationSignature: res.FinalizationSignature,
			ElapsedMillis:         res.Elapsed.Milliseconds(),
		})
	}

	value := color.New(color.FgGreen, color.Bold)
	circuit := client.Circuit()
	if circuit.Name == mxe.BountyCircuit.Name && len(res.Values) == 1 {
		fmt.Fprintf(streams.Stdout, "bounty:         %s\n", value.Sprint(res.Values[0]))
	} else {
		fmt.Fprintf(streams.Stdout, "values:         %s\n", value.Sprint(res.Values))
	}
	fmt.Fprintf(streams.Stdout, "correlation id: %s\n", res.CorrelationID)
	fmt.Fprintf(streams.Stdout, "submission:     %s\n", res.SubmissionSignature)
	fmt.Fprintf(streams.Stdout, "finalization:   %s\n", res.FinalizationSignature)
	fmt.Fprintf(streams.Stdout, "elapsed:        %v\n", res.Elapsed.Round(time.Millisecond))
	return nil
}

// newClient connects to the configured gateway.
func newClient(cfg *config.Config, backend *log.Backend, timeout time.Duration, extra ...mxe.Option) (*mxe.Client, error) {
	gw := cfg.Gateway
	httpOpts := []mxe.HTTPOption{
		mxe.WithAPIKey(gw.APIKey),
		mxe.WithDeliveryStrategy(mxe.DeliveryStrategy(gw.Delivery)),
		mxe.WithTransportLogger(backend.GetLogger("transport")),
	}
	if gw.RequestTimeout > 0 {
		httpOpts = append(httpOpts, mxe.WithHTTPTimeout(time.Duration(gw.RequestTimeout)*time.Millisecond))
	}
	if gw.Retries > 0 {
		httpOpts = append(httpOpts, mxe.WithRetries(gw.Retries))
	}
	if gw.PollInterval > 0 {
		httpOpts = append(httpOpts, mxe.WithPollInterval(time.Duration(gw.PollInterval)*time.Millisecond))
	}
	transport, err := mxe.NewHTTPTransport(gw.URL, httpOpts...)
	if err != nil {
		return nil, err
	}

	s := cfg.Session
	opts := []mxe.Option{
		mxe.WithLogger(backend.GetLogger("mxe")),
		mxe.WithCircuit(mxe.Circuit{Name: s.Circuit, InputArity: s.InputArity, OutputArity: s.OutputArity}),
		mxe.WithRouting(mxe.Routing{ProgramID: cfg.Routing.ProgramID, ClusterID: cfg.Routing.ClusterID}),
		mxe.WithKeyRetries(s.KeyRetries),
		mxe.WithKeyRetryDelay(s.KeyRetryDelayDuration()),
		mxe.WithTimeout(timeout),
	}
	if cfg.Journal.Path != "" {
		opts = append(opts, mxe.WithJournal(cfg.Journal.Path))
	}
	return mxe.New(transport, append(opts, extra...)...)
}

func parseValues(args []string) ([]uint64, error) {
	out := make([]uint64, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid argument %q: values are unsigned 64-bit integers", a)
		}
		out = append(out, v)
	}
	return out, nil
}
