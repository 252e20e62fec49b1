package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the configuration for the passgate server.
type Config struct {
	LogLevel           string `hcl:"log_level,optional"`
	LogFormat          string `hcl:"log_format,optional"`
	LogFile            string `hcl:"log_file,optional"`
	LogRotationPeriod  int    `hcl:"log_rotation_period,optional"`
	LogRotateMegabytes int    `hcl:"log_rotate_megabytes,optional"`
	LogRotateMaxFiles  int    `hcl:"log_rotate_max_files,optional"`

	Listeners   []ListenerBlock   `hcl:"listener,block"`
	Storage     *StorageBlock     `hcl:"storage,block"`
	Gate        *GateBlock        `hcl:"gate,block"`
	Credentials []CredentialBlock `hcl:"credential,block"`
}

// StorageBlock selects and configures the physical backend.
type StorageBlock struct {
	Type string `hcl:"type,label"` // "inmem", "file", or "postgres"

	// File storage
	Path string `hcl:"path,optional"`

	// PostgreSQL storage
	ConnectionURL   string `hcl:"connection_url,optional"`
	Table           string `hcl:"table,optional"`
	MaxParallel     string `hcl:"max_parallel,optional"`
	SkipCreateTable string `hcl:"skip_create_table,optional"`
}

// Config returns the storage configuration as a map consumed by the
// backend factories.
func (s *StorageBlock) Config() map[string]string {
	conf := make(map[string]string)

	conf["type"] = s.Type

	if s.Path != "" {
		conf["path"] = s.Path
	}
	if s.ConnectionURL != "" {
		conf["connection_url"] = s.ConnectionURL
	}
	if s.Table != "" {
		conf["table"] = s.Table
	}
	if s.MaxParallel != "" {
		conf["max_parallel"] = s.MaxParallel
	}
	if s.SkipCreateTable != "" {
		conf["skip_create_table"] = s.SkipCreateTable
	}

	return conf
}

// GateBlock configures the verification gate itself: the redirect
// allow-list, the two failure/fallback destinations, and timing knobs.
type GateBlock struct {
	AllowedOrigins []string `hcl:"allowed_origins"`
	FallbackURL    string   `hcl:"fallback_url"`
	FailureURL     string   `hcl:"failure_url"`

	StoreOpTimeout string `hcl:"store_op_timeout,optional"` // default 5s
	SweepInterval  string `hcl:"sweep_interval,optional"`   // empty disables the periodic sweep
	ProxyMode      bool   `hcl:"proxy_mode,optional"`
}

// StoreOpTimeoutDuration parses StoreOpTimeout, defaulting to 5s.
func (g *GateBlock) StoreOpTimeoutDuration() (time.Duration, error) {
	if g.StoreOpTimeout == "" {
		return 5 * time.Second, nil
	}
	d, err := parseutil.ParseDurationSecond(g.StoreOpTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid store_op_timeout: %w", err)
	}
	return d, nil
}

// SweepIntervalDuration parses SweepInterval; zero means disabled.
func (g *GateBlock) SweepIntervalDuration() (time.Duration, error) {
	if g.SweepInterval == "" {
		return 0, nil
	}
	d, err := parseutil.ParseDurationSecond(g.SweepInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid sweep_interval: %w", err)
	}
	return d, nil
}

// CredentialBlock declares a bearer credential accepted by the revocation
// endpoint. A credential is bound to one owner partition unless marked
// admin.
type CredentialBlock struct {
	Name    string `hcl:"name,label"`
	Token   string `hcl:"token"`
	OwnerID string `hcl:"owner_id,optional"`
	Admin   bool   `hcl:"admin,optional"`
}

type ListenerBlock struct {
	Name        string `hcl:"name,label"`
	Address     string `hcl:"address"`
	TLSCertFile string `hcl:"tls_cert_file,optional"`
	TLSKeyFile  string `hcl:"tls_key_file,optional"`
	TLSEnabled  bool   `hcl:"tls_enabled,optional"`
}

// LoadConfig reads and decodes an HCL configuration file.
func LoadConfig(configFile string) (*Config, error) {
	var config Config

	if err := hclsimple.DecodeFile(configFile, nil, &config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the cross-field requirements a decoded config must meet.
func (c *Config) Validate() error {
	if c.Storage == nil {
		return fmt.Errorf("a storage block must be specified")
	}
	if c.Gate == nil {
		return fmt.Errorf("a gate block must be specified")
	}
	if len(c.Gate.AllowedOrigins) == 0 {
		return fmt.Errorf("gate.allowed_origins must list at least one origin")
	}
	if c.Gate.FallbackURL == "" {
		return fmt.Errorf("gate.fallback_url must be set")
	}
	if c.Gate.FailureURL == "" {
		return fmt.Errorf("gate.failure_url must be set")
	}
	if _, err := c.Gate.StoreOpTimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.Gate.SweepIntervalDuration(); err != nil {
		return err
	}
	for _, cred := range c.Credentials {
		if cred.Token == "" {
			return fmt.Errorf("credential %q has no token", cred.Name)
		}
		if !cred.Admin && cred.OwnerID == "" {
			return fmt.Errorf("credential %q must set owner_id or admin", cred.Name)
		}
	}
	return nil
}

// GetListenerByName returns a listener by its name (label)
func (c *Config) GetListenerByName(name string) (*ListenerBlock, error) {
	for _, listener := range c.Listeners {
		if listener.Name == name {
			return &listener, nil
		}
	}
	return nil, fmt.Errorf("listener '%s' not found", name)
}
