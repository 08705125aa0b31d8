// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/threshold"
)

// Config is the configuration of a provisioning process.
type Config struct {
	LedgerURL     string       `env:"HANDOFF_LEDGER_URL"`
	Package       ref.ObjectID `env:"HANDOFF_PACKAGE"`
	AdminCap      ref.ObjectID `env:"HANDOFF_ADMIN_CAP"`
	Registry      ref.ObjectID `env:"HANDOFF_REGISTRY"`
	AdminSeedFile string       `env:"HANDOFF_ADMIN_SEED_FILE"`

	KeyServers          map[string]string `env:"HANDOFF_KEY_SERVERS" envKeyValSeparator:"="`
	KeyServerRecipients map[string]string `env:"HANDOFF_KEY_SERVER_RECIPIENTS" envKeyValSeparator:"="`
	KeyServerWeights    map[string]int    `env:"HANDOFF_KEY_SERVER_WEIGHTS" envKeyValSeparator:"="`
	KeyServerInsecure   bool              `env:"HANDOFF_KEY_SERVER_INSECURE"`
	Threshold           int               `env:"HANDOFF_THRESHOLD" envDefault:"1"`

	SessionTTL      time.Duration `env:"HANDOFF_SESSION_TTL" envDefault:"10m"`
	SubmitTimeout   time.Duration `env:"HANDOFF_SUBMIT_TIMEOUT" envDefault:"10s"`
	FinalityTimeout time.Duration `env:"HANDOFF_FINALITY_TIMEOUT" envDefault:"30s"`
	LookupTimeout   time.Duration `env:"HANDOFF_LOOKUP_TIMEOUT" envDefault:"15s"`
	SessionTimeout  time.Duration `env:"HANDOFF_SESSION_TIMEOUT" envDefault:"30s"`
	DecryptTimeout  time.Duration `env:"HANDOFF_DECRYPT_TIMEOUT" envDefault:"30s"`
	ServerTimeout   time.Duration `env:"HANDOFF_SERVER_TIMEOUT" envDefault:"10s"`

	EphemeralFunding uint64 `env:"HANDOFF_EPHEMERAL_FUNDING" envDefault:"10000000"`

	BudgetSampleProject    ref.ObjectID  `env:"HANDOFF_BUDGET_SAMPLE_PROJECT"`
	BudgetSampleCapability ref.ObjectID  `env:"HANDOFF_BUDGET_SAMPLE_CAPABILITY"`
	BudgetRefresh          time.Duration `env:"HANDOFF_BUDGET_REFRESH" envDefault:"5m"`

	BlobDir     string `env:"HANDOFF_BLOB_DIR"`
	JournalPath string `env:"HANDOFF_JOURNAL_PATH"`

	ListenAddress  string   `env:"HANDOFF_LISTEN_ADDRESS" envDefault:":8080"`
	CORSOrigins    []string `env:"HANDOFF_CORS_ORIGINS"`
	GrantIssuer    string   `env:"HANDOFF_GRANT_ISSUER"`
	GrantAudience  string   `env:"HANDOFF_GRANT_AUDIENCE" envDefault:"handoff"`
	GrantPublicKey string   `env:"HANDOFF_GRANT_PUBLIC_KEY"`

	OTelEndpoint string     `env:"HANDOFF_OTEL_ENDPOINT"`
	LogLevel     slog.Level `env:"HANDOFF_LOG_LEVEL" envDefault:"INFO"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses environ instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(options env.Options) (*Config, error) {
	var config Config
	if err := env.ParseWithOptions(&config, options); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &config, nil
}

// Validate checks the fields every provisioning process needs.
func (c *Config) Validate() error {
	var errs []error
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	require("HANDOFF_LEDGER_URL", c.LedgerURL)
	require("HANDOFF_PACKAGE", string(c.Package))
	require("HANDOFF_ADMIN_CAP", string(c.AdminCap))
	require("HANDOFF_REGISTRY", string(c.Registry))
	require("HANDOFF_ADMIN_SEED_FILE", c.AdminSeedFile)
	require("HANDOFF_BLOB_DIR", c.BlobDir)
	for name, id := range map[string]ref.ObjectID{
		"HANDOFF_PACKAGE":   c.Package,
		"HANDOFF_ADMIN_CAP": c.AdminCap,
		"HANDOFF_REGISTRY":  c.Registry,
	} {
		if id.IsZero() {
			continue
		}
		if _, err := ref.ParseObjectID(string(id)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	servers, err := c.ThresholdServers()
	if err != nil {
		errs = append(errs, err)
	} else {
		total := 0
		for _, server := range servers {
			total += server.Weight
		}
		if c.Threshold < 1 || c.Threshold > total {
			errs = append(errs, fmt.Errorf("HANDOFF_THRESHOLD %d is outside 1..%d", c.Threshold, total))
		}
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("HANDOFF_SESSION_TTL must be positive"))
	}
	// Each server call must end inside the decrypt stage.
	if c.ServerTimeout <= 0 || c.ServerTimeout >= c.DecryptTimeout {
		errs = append(errs, fmt.Errorf("HANDOFF_SERVER_TIMEOUT %s must be positive and below HANDOFF_DECRYPT_TIMEOUT %s",
			c.ServerTimeout, c.DecryptTimeout))
	}
	if c.BudgetSampleCapability != "" && c.BudgetSampleProject == "" {
		errs = append(errs, errors.New("HANDOFF_BUDGET_SAMPLE_CAPABILITY needs HANDOFF_BUDGET_SAMPLE_PROJECT"))
	}
	if c.GrantPublicKey != "" {
		if _, err := c.GrantKey(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// KeyServer is one configured decryption server.
type KeyServer struct {
	ID        string
	Address   string
	Recipient string
	Weight    int
}

// KeyServerList joins the key server maps, sorted by id.
func (c *Config) KeyServerList() ([]KeyServer, error) {
	if len(c.KeyServers) == 0 {
		return nil, errors.New("HANDOFF_KEY_SERVERS is required")
	}
	for id := range c.KeyServerRecipients {
		if _, ok := c.KeyServers[id]; !ok {
			return nil, fmt.Errorf("HANDOFF_KEY_SERVER_RECIPIENTS names unknown server %q", id)
		}
	}
	for id := range c.KeyServerWeights {
		if _, ok := c.KeyServers[id]; !ok {
			return nil, fmt.Errorf("HANDOFF_KEY_SERVER_WEIGHTS names unknown server %q", id)
		}
	}
	servers := make([]KeyServer, 0, len(c.KeyServers))
	for id, address := range c.KeyServers {
		recipient := c.KeyServerRecipients[id]
		if recipient == "" {
			return nil, fmt.Errorf("key server %q has no recipient", id)
		}
		weight, ok := c.KeyServerWeights[id]
		if !ok {
			weight = 1
		}
		if weight < 1 {
			return nil, fmt.Errorf("key server %q has weight %d", id, weight)
		}
		servers = append(servers, KeyServer{ID: id, Address: address, Recipient: recipient, Weight: weight})
	}
	slices.SortFunc(servers, func(a, b KeyServer) int { return strings.Compare(a.ID, b.ID) })
	return servers, nil
}

// ThresholdServers returns the key servers in the form encryption
// needs.
func (c *Config) ThresholdServers() ([]threshold.Server, error) {
	servers, err := c.KeyServerList()
	if err != nil {
		return nil, err
	}
	out := make([]threshold.Server, len(servers))
	for index, server := range servers {
		out[index] = threshold.Server{ID: server.ID, Recipient: server.Recipient, Weight: server.Weight}
	}
	return out, nil
}

// GrantKey decodes the base64 Ed25519 public key that verifies
// inbound provisioning grants.
func (c *Config) GrantKey() (ed25519.PublicKey, error) {
	raw := strings.TrimSpace(c.GrantPublicKey)
	if raw == "" {
		return nil, errors.New("HANDOFF_GRANT_PUBLIC_KEY is required")
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("HANDOFF_GRANT_PUBLIC_KEY: %w", err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("HANDOFF_GRANT_PUBLIC_KEY has %d bytes, want %d", len(decoded), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(decoded), nil
}

// KeyServerDaemon is the configuration of one key server process.
type KeyServerDaemon struct {
	ID             string       `env:"HANDOFF_KEYSERVER_ID,required"`
	ListenAddress  string       `env:"HANDOFF_KEYSERVER_LISTEN" envDefault:":7443"`
	IdentityFile   string       `env:"HANDOFF_KEYSERVER_IDENTITY_FILE,required"`
	SigningKeyFile string       `env:"HANDOFF_KEYSERVER_SIGNING_KEY_FILE,required"`
	LedgerURL      string       `env:"HANDOFF_LEDGER_URL,required"`
	Package        ref.ObjectID `env:"HANDOFF_PACKAGE,required"`

	ChallengeTTL  time.Duration `env:"HANDOFF_KEYSERVER_CHALLENGE_TTL" envDefault:"2m"`
	MaxSessionTTL time.Duration `env:"HANDOFF_KEYSERVER_MAX_SESSION_TTL" envDefault:"30m"`

	// TLSCertFile and TLSKeyFile serve TLS when both are set. With
	// neither, the server listens in plaintext for a TLS-terminating
	// sidecar or a local test network.
	TLSCertFile string `env:"HANDOFF_KEYSERVER_TLS_CERT"`
	TLSKeyFile  string `env:"HANDOFF_KEYSERVER_TLS_KEY"`

	OTelEndpoint string     `env:"HANDOFF_OTEL_ENDPOINT"`
	LogLevel     slog.Level `env:"HANDOFF_LOG_LEVEL" envDefault:"INFO"`
}

// LoadKeyServer parses a key server daemon's environment. A nil
// environ reads the process environment.
func LoadKeyServer(environ map[string]string) (*KeyServerDaemon, error) {
	var daemon KeyServerDaemon
	if err := env.ParseWithOptions(&daemon, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if (daemon.TLSCertFile == "") != (daemon.TLSKeyFile == "") {
		return nil, errors.New("config: HANDOFF_KEYSERVER_TLS_CERT and HANDOFF_KEYSERVER_TLS_KEY must be set together")
	}
	if daemon.MaxSessionTTL <= 0 || daemon.ChallengeTTL <= 0 {
		return nil, errors.New("config: key server TTLs must be positive")
	}
	return &daemon, nil
}
