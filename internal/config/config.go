// Package config loads the mxectl configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bountymxe/mxe-go/internal/log"
)

const (
	defaultDelivery       = "auto"
	defaultCircuit        = "compute_bounty"
	defaultKeyRetries     = 10
	defaultKeyRetryDelay  = 500
	defaultSessionTimeout = 2 * 60 * 1000
	defaultLogLevel       = "NOTICE"
	defaultSimAddress     = "127.0.0.1:8080"

	// EnvGatewayURL overrides Gateway.URL.
	EnvGatewayURL = "MXE_GATEWAY_URL"
	// EnvAPIKey overrides Gateway.APIKey.
	EnvAPIKey = "MXE_API_KEY"
)

// Gateway is the gateway connection configuration.
type Gateway struct {
	// URL is the gateway root. Commands that talk to a gateway require it.
	URL string

	// APIKey is sent with every request when set.
	APIKey string

	// Delivery is the notification delivery strategy: auto, sse or polling.
	Delivery string

	// RequestTimeout is the per-request timeout in milliseconds.
	RequestTimeout int

	// Retries bounds retries of idempotent requests.
	Retries int

	// PollInterval is the initial polling interval in milliseconds.
	PollInterval int
}

func (g *Gateway) validate() error {
	if g.URL != "" {
		u, err := url.Parse(g.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: Gateway: URL '%v' is invalid", g.URL)
		}
	}
	switch g.Delivery {
	case "auto", "sse", "polling":
	default:
		return fmt.Errorf("config: Gateway: Delivery '%v' is invalid", g.Delivery)
	}
	if g.RequestTimeout < 0 || g.Retries < 0 || g.PollInterval < 0 {
		return errors.New("config: Gateway: negative values are not allowed")
	}
	return nil
}

// Routing identifies where computations are placed.
type Routing struct {
	ProgramID string
	ClusterID string
}

// Session is the computation session configuration.
type Session struct {
	// Circuit is the circuit name.
	Circuit string

	// InputArity and OutputArity are the circuit's value counts.
	InputArity  int
	OutputArity int

	// KeyRetries is the number of cluster key lookups before giving up.
	KeyRetries int

	// KeyRetryDelay is the wait between key lookups in milliseconds.
	KeyRetryDelay int

	// Timeout bounds a whole session in milliseconds.
	Timeout int
}

func (s *Session) applyDefaults() {
	if s.Circuit == "" {
		s.Circuit = defaultCircuit
	}
	if s.InputArity == 0 && s.OutputArity == 0 {
		s.InputArity, s.OutputArity = 2, 1
	}
	if s.KeyRetries == 0 {
		s.KeyRetries = defaultKeyRetries
	}
	if s.KeyRetryDelay == 0 {
		s.KeyRetryDelay = defaultKeyRetryDelay
	}
	if s.Timeout == 0 {
		s.Timeout = defaultSessionTimeout
	}
}

func (s *Session) validate() error {
	if s.InputArity <= 0 || s.OutputArity <= 0 {
		return fmt.Errorf("config: Session: invalid arity %d/%d", s.InputArity, s.OutputArity)
	}
	if s.KeyRetries < 0 || s.KeyRetryDelay < 0 || s.Timeout < 0 {
		return errors.New("config: Session: negative values are not allowed")
	}
	return nil
}

// KeyRetryDelayDuration returns KeyRetryDelay as a time.Duration.
func (s *Session) KeyRetryDelayDuration() time.Duration {
	return time.Duration(s.KeyRetryDelay) * time.Millisecond
}

// TimeoutDuration returns Timeout as a time.Duration.
func (s *Session) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Millisecond
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (l *Logging) validate() error {
	if !log.ValidLevel(l.Level) {
		return fmt.Errorf("config: Logging: Level '%v' is invalid", l.Level)
	}
	return nil
}

// Journal is the session journal configuration.
type Journal struct {
	// Path is the bolt database file. Sessions are not journaled when empty.
	Path string
}

// Metrics is the Prometheus endpoint configuration.
type Metrics struct {
	// Address is the listen address of the /metrics endpoint. Metrics are
	// not served when empty.
	Address string
}

// Simulator configures the in-process cluster served by serve-sim.
type Simulator struct {
	// Address is the listen address.
	Address string

	// PublishAfter is the number of key lookups answered with "not yet
	// published".
	PublishAfter int

	// ExecDelay and NotifyDelay are in milliseconds.
	ExecDelay   int
	NotifyDelay int
}

// Config is the top level mxectl configuration.
type Config struct {
	Gateway   *Gateway
	Routing   *Routing
	Session   *Session
	Logging   *Logging
	Journal   *Journal
	Metrics   *Metrics
	Simulator *Simulator
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Gateway == nil {
		cfg.Gateway = &Gateway{}
	}
	if cfg.Gateway.Delivery == "" {
		cfg.Gateway.Delivery = defaultDelivery
	}
	if cfg.Routing == nil {
		cfg.Routing = &Routing{}
	}
	if cfg.Session == nil {
		cfg.Session = &Session{}
	}
	cfg.Session.applyDefaults()
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Journal == nil {
		cfg.Journal = &Journal{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}
	if cfg.Simulator == nil {
		cfg.Simulator = &Simulator{}
	}
	if cfg.Simulator.Address == "" {
		cfg.Simulator.Address = defaultSimAddress
	}

	if err := cfg.Gateway.validate(); err != nil {
		return err
	}
	if err := cfg.Session.validate(); err != nil {
		return err
	}
	return cfg.Logging.validate()
}

// ApplyEnv overrides gateway settings from the environment.
func (cfg *Config) ApplyEnv() {
	if cfg.Gateway == nil {
		cfg.Gateway = &Gateway{}
	}
	if v := os.Getenv(EnvGatewayURL); v != "" {
		cfg.Gateway.URL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Gateway.APIKey = v
	}
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config. Environment overrides are applied before validation.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	cfg.ApplyEnv()
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
