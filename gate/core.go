package gate

import (
	"errors"
	"time"

	"github.com/passgate/passgate/logger"
	"github.com/passgate/passgate/physical"
)

// timeNow is swapped in tests that need a fixed clock.
var timeNow = time.Now

// CoreConfig carries everything needed to build a Core. Configuration is
// injected as an immutable value at construction so multiple cores with
// different policies can coexist in one process.
type CoreConfig struct {
	Storage physical.Storage
	Logger  logger.Logger

	// AllowedOrigins gates both redirect destinations and CORS echo.
	AllowedOrigins []string

	// FallbackURL is the safe default destination substituted when a
	// redirect target is rejected.
	FallbackURL string

	// StoreOpTimeout bounds every physical storage call.
	StoreOpTimeout time.Duration

	// Credentials accepted by the revocation endpoint.
	Credentials []Credential
}

// Core orchestrates the verification flow: store lookup, schema check,
// revocation and expiration checks, redirect resolution, and the
// opportunistic sweep. It is safe for unbounded concurrent use; all
// coordination happens through the store's per-key atomicity.
type Core struct {
	store    *Store
	resolver *Resolver
	sweeper  *Sweeper
	creds    *CredentialSet
	metrics  *Metrics
	logger   logger.Logger
}

// NewCore validates the configuration and wires the components.
func NewCore(conf *CoreConfig) (*Core, error) {
	if conf.Storage == nil {
		return nil, errors.New("a physical storage must be provided")
	}
	if len(conf.AllowedOrigins) == 0 {
		return nil, errors.New("at least one allowed origin must be configured")
	}

	log := conf.Logger
	if log == nil {
		log = logger.NewZerologLogger(logger.DefaultConfig())
	}

	metrics := &Metrics{}

	resolver, err := NewResolver(conf.AllowedOrigins, conf.FallbackURL, log.WithSubsystem("resolver"), metrics)
	if err != nil {
		return nil, err
	}

	store := NewStore(conf.Storage, log.WithSubsystem("store"), conf.StoreOpTimeout)

	c := &Core{
		store:    store,
		resolver: resolver,
		creds:    NewCredentialSet(conf.Credentials),
		metrics:  metrics,
		logger:   log,
	}
	c.sweeper = NewSweeper(store, log.WithSubsystem("sweeper"), metrics)

	return c, nil
}

// Store returns the token store adapter.
func (c *Core) Store() *Store {
	return c.store
}

// Resolver returns the redirect resolver.
func (c *Core) Resolver() *Resolver {
	return c.resolver
}

// Sweeper returns the cleanup sweeper.
func (c *Core) Sweeper() *Sweeper {
	return c.sweeper
}

// Metrics returns the gate's operational counters.
func (c *Core) Metrics() *Metrics {
	return c.metrics
}

// Credentials returns the configured revocation credential set.
func (c *Core) Credentials() *CredentialSet {
	return c.creds
}

// Logger returns the core logger.
func (c *Core) Logger() logger.Logger {
	return c.logger
}
