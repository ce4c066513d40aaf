package kvbridge

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/kvbridge/kvbridge/ffi"
)

const (
	defaultAddress       = "localhost:6379"
	defaultInflightLimit = 1000
)

// RetryStrategy configures the engine's reconnect backoff. The delay grows as
// Factor * ExponentBase^attempt, capped after NumberOfRetries attempts.
type RetryStrategy struct {
	ExponentBase    uint32
	Factor          uint32
	NumberOfRetries uint32
}

// Config carries the connection settings for a standalone client. The zero
// value is usable; unset fields are filled in by setDefaults.
type Config struct {
	// Addresses of the seed nodes, as "host:port". Defaults to
	// "localhost:6379".
	Addresses []string

	// UseTLS enables TLS for engine connections. InsecureTLS additionally
	// skips certificate verification.
	UseTLS      bool
	InsecureTLS bool

	Username string
	Password string

	// DatabaseID selects the logical database. Ignored in cluster mode.
	DatabaseID int

	Protocol   ffi.ProtocolVersion
	ClientName string

	// RequestTimeout bounds a single request once submitted. Zero leaves the
	// engine default in place.
	RequestTimeout    time.Duration
	ConnectionTimeout time.Duration

	ReadFrom          ffi.ReadFromKind
	ReadFromAffinity  string
	ReconnectStrategy *RetryStrategy

	// InflightLimit caps concurrently pending requests. Submissions beyond
	// the cap block until a slot frees up.
	InflightLimit int

	// Compression transparently compresses values above a size threshold.
	// Nil disables it.
	Compression *CompressionConfig

	// Breaker wraps submissions in a circuit breaker. Nil disables it.
	Breaker *BreakerConfig

	// Logger for connection lifecycle diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewConfig returns an empty Config for fluent construction with the With*
// builders. Literal construction works just as well.
func NewConfig() *Config {
	return &Config{}
}

// WithAddress appends a seed node address in "host:port" form.
func (c *Config) WithAddress(addr string) *Config {
	c.Addresses = append(c.Addresses, addr)
	return c
}

// WithUseTLS enables or disables TLS for engine connections.
func (c *Config) WithUseTLS(useTLS bool) *Config {
	c.UseTLS = useTLS
	return c
}

// WithCredentials sets the authentication username and password.
func (c *Config) WithCredentials(username, password string) *Config {
	c.Username = username
	c.Password = password
	return c
}

// WithDatabaseID selects the logical database.
func (c *Config) WithDatabaseID(id int) *Config {
	c.DatabaseID = id
	return c
}

// WithClientName sets the connection name reported to the engine.
func (c *Config) WithClientName(name string) *Config {
	c.ClientName = name
	return c
}

// WithRequestTimeout bounds a single request once submitted.
func (c *Config) WithRequestTimeout(d time.Duration) *Config {
	c.RequestTimeout = d
	return c
}

// WithReadFrom sets the read routing preference.
func (c *Config) WithReadFrom(kind ffi.ReadFromKind) *Config {
	c.ReadFrom = kind
	return c
}

// WithReconnectStrategy sets the engine's reconnect backoff.
func (c *Config) WithReconnectStrategy(s *RetryStrategy) *Config {
	c.ReconnectStrategy = s
	return c
}

func (c *Config) setDefaults() {
	if len(c.Addresses) == 0 {
		c.Addresses = []string{defaultAddress}
	}
	if c.InflightLimit <= 0 {
		c.InflightLimit = defaultInflightLimit
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Compression != nil {
		c.Compression.setDefaults()
	}
}

// connectionParams validates the config and maps it to the managed form of
// the projected connection block.
func (c *Config) connectionParams(clusterMode bool) (ffi.ConnectionParams, error) {
	params := ffi.ConnectionParams{
		ClusterMode:   clusterMode,
		ReadFrom:      c.ReadFrom,
		ReadFromValue: c.ReadFromAffinity,
		AuthUsername:  c.Username,
		AuthPassword:  c.Password,
		DatabaseID:    int64(c.DatabaseID),
		Protocol:      c.Protocol,
		ClientName:    c.ClientName,
	}
	for _, addr := range c.Addresses {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return params, fmt.Errorf("invalid address %q: %w", addr, err)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return params, fmt.Errorf("invalid port in address %q: %w", addr, err)
		}
		params.Addresses = append(params.Addresses, ffi.HostPort{Host: host, Port: uint16(port)})
	}
	switch {
	case c.UseTLS && c.InsecureTLS:
		params.TLSMode = ffi.TLSInsecure
	case c.UseTLS:
		params.TLSMode = ffi.TLSSecure
	default:
		params.TLSMode = ffi.TLSNoTLS
	}
	if c.RequestTimeout > 0 {
		params.RequestTimeout = optionalMillis(c.RequestTimeout)
	}
	if c.ConnectionTimeout > 0 {
		params.ConnectionTimeout = optionalMillis(c.ConnectionTimeout)
	}
	if s := c.ReconnectStrategy; s != nil {
		params.HasRetryStrategy = true
		params.RetryExponentBase = s.ExponentBase
		params.RetryFactor = s.Factor
		params.RetryCount = s.NumberOfRetries
	}
	params.InflightLimit = ffi.OptionalU32{HasValue: 1, Value: uint32(c.InflightLimit)}
	return params, nil
}

func optionalMillis(d time.Duration) ffi.OptionalU32 {
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)) {
		ms = int64(^uint32(0))
	}
	return ffi.OptionalU32{HasValue: 1, Value: uint32(ms)}
}
