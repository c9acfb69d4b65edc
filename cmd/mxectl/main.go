// Command mxectl runs confidential bounty computations against an MXE
// gateway and serves a simulated cluster for local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bountymxe/mxe-go/internal/config"
	"github.com/bountymxe/mxe-go/internal/log"
)

// IOConfig holds the streams commands read from and write to.
type IOConfig struct {
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultIOConfig returns the process streams.
func DefaultIOConfig() IOConfig {
	return IOConfig{Stdout: os.Stdout, Stderr: os.Stderr}
}

type globalFlags struct {
	configFile string
	envFile    string
	gateway    string
	logLevel   string
}

// newRootCommand creates the root cobra command.
func newRootCommand(streams IOConfig) *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "mxectl",
		Short: "MXE confidential computation client",
		Long: `mxectl encrypts inputs for an MXE cluster, submits them through a
gateway, waits for finalization and the result notification, and decrypts
the result locally. Inputs and outputs never leave this process in the clear.`,
		Example: `
  # Start a simulated cluster
  mxectl serve-sim --listen 127.0.0.1:8080

  # Compute the bounty for effort 8 and quality 9
  mxectl compute --gateway http://127.0.0.1:8080 8 9

  # Show the last ten sessions
  mxectl history --journal sessions.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(streams.Stdout)
	cmd.SetErr(streams.Stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&g.configFile, "config", "c", "", "path to the configuration file (TOML format)")
	flags.StringVar(&g.envFile, "env-file", ".env", "environment file loaded before the configuration")
	flags.StringVar(&g.gateway, "gateway", "", "gateway URL (overrides "+config.EnvGatewayURL+")")
	flags.StringVar(&g.logLevel, "log-level", "", "log level: ERROR, WARNING, NOTICE, INFO or DEBUG")

	cmd.AddCommand(
		newComputeCommand(g, streams),
		newServeSimCommand(g, streams),
		newHistoryCommand(g, streams),
		newBenchCommand(g, streams),
	)
	return cmd
}

// run executes the command line args, which include the program name.
func run(args []string, streams IOConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(streams)
	cmd.SetArgs(args[1:])
	return cmd.ExecuteContext(ctx)
}

// loadConfig reads the environment file and the configuration, then applies
// command line overrides.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if g.configFile != "" {
		cfg, err = config.LoadFile(g.configFile)
	} else {
		cfg, err = config.Load(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if g.gateway != "" {
		cfg.Gateway.URL = g.gateway
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogBackend logs to the configured file, or to stderr so that command
// output stays machine readable.
func newLogBackend(cfg *config.Config, stderr io.Writer) (*log.Backend, error) {
	if cfg.Logging.File != "" || cfg.Logging.Disable {
		return log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	}
	return log.NewWithWriter(stderr, cfg.Logging.Level)
}
