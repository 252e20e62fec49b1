package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
)

const (
	// EnvGateAddress is the environment variable holding the gate's
	// base URL.
	EnvGateAddress = "PASSGATE_ADDR"

	// EnvGateClientTimeout overrides the default request timeout.
	EnvGateClientTimeout = "PASSGATE_CLIENT_TIMEOUT"

	// EnvGateCredential holds the bearer secret for revocation calls.
	EnvGateCredential = "PASSGATE_CREDENTIAL"
)

// Config is used to configure the creation of the client.
type Config struct {
	// Address is the address of the gate. This should be a complete URL
	// such as "http://gate.example.com".
	Address string

	// HttpClient is the HTTP client to use. DefaultConfig sets sane
	// defaults; start from those rather than an empty client.
	HttpClient *http.Client

	// Timeout applies to each request unless an earlier deadline is
	// passed through context.Context.
	Timeout time.Duration

	// Error records any problem encountered while reading the
	// environment so NewClient can report it.
	Error error
}

// DefaultConfig returns a default configuration for the client, reading
// the environment on top of built-in defaults. The underlying transport
// never follows redirects: the redirect-preferred flow's Location header
// is the result, not a hop.
func DefaultConfig() *Config {
	config := &Config{
		Address: "http://127.0.0.1:8200",
		Timeout: 60 * time.Second,
	}
	config.HttpClient = cleanhttp.DefaultPooledClient()
	config.HttpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	if addr := os.Getenv(EnvGateAddress); addr != "" {
		config.Address = addr
	}
	if raw := os.Getenv(EnvGateClientTimeout); raw != "" {
		timeout, err := parseutil.ParseDurationSecond(raw)
		if err != nil {
			config.Error = fmt.Errorf("could not parse %s: %w", EnvGateClientTimeout, err)
			return config
		}
		config.Timeout = timeout
	}

	return config
}

// Client is the client to the gate's HTTP API.
type Client struct {
	modifyLock sync.RWMutex
	addr       *url.URL
	config     *Config
	credential string
}

// NewClient returns a new client for the given configuration. A nil
// configuration behaves as DefaultConfig.
func NewClient(c *Config) (*Client, error) {
	if c == nil {
		c = DefaultConfig()
	}
	if c.Error != nil {
		return nil, c.Error
	}

	u, err := url.Parse(c.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", c.Address, err)
	}
	if c.HttpClient == nil {
		c.HttpClient = DefaultConfig().HttpClient
	}
	if c.Timeout > 0 {
		c.HttpClient.Timeout = c.Timeout
	}

	client := &Client{
		addr:   u,
		config: c,
	}
	if cred := os.Getenv(EnvGateCredential); cred != "" {
		client.credential = cred
	}
	return client, nil
}

// Address returns the gate URL the client is configured against.
func (c *Client) Address() string {
	c.modifyLock.RLock()
	defer c.modifyLock.RUnlock()
	return c.addr.String()
}

// SetCredential sets the bearer secret used for revocation calls.
func (c *Client) SetCredential(credential string) {
	c.modifyLock.Lock()
	defer c.modifyLock.Unlock()
	c.credential = credential
}

func (c *Client) newRequest(ctx context.Context, method, apiPath string, body any) (*http.Request, error) {
	u := *c.addr
	u.Path = strings.TrimSuffix(u.Path, "/") + apiPath

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
