package kvbridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbridge/kvbridge/ffi"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.setDefaults()

	assert.Equal(t, []string{defaultAddress}, cfg.Addresses)
	assert.Equal(t, defaultInflightLimit, cfg.InflightLimit)
	assert.NotNil(t, cfg.Logger)
}

func TestConfigBuilders(t *testing.T) {
	cfg := NewConfig().
		WithAddress("a.internal:6379").
		WithAddress("b.internal:6380").
		WithUseTLS(true).
		WithCredentials("svc", "secret").
		WithDatabaseID(3).
		WithClientName("svc-cache").
		WithRequestTimeout(250 * time.Millisecond).
		WithReadFrom(ffi.ReadFromPreferReplica).
		WithReconnectStrategy(&RetryStrategy{ExponentBase: 2, Factor: 100, NumberOfRetries: 5})

	assert.Equal(t, []string{"a.internal:6379", "b.internal:6380"}, cfg.Addresses)
	assert.True(t, cfg.UseTLS)
	assert.Equal(t, "svc", cfg.Username)
	assert.Equal(t, 3, cfg.DatabaseID)
	assert.Equal(t, "svc-cache", cfg.ClientName)
	assert.Equal(t, 250*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, ffi.ReadFromPreferReplica, cfg.ReadFrom)
	require.NotNil(t, cfg.ReconnectStrategy)
	assert.Equal(t, uint32(5), cfg.ReconnectStrategy.NumberOfRetries)
}

func TestConfigConnectionParams(t *testing.T) {
	cfg := Config{
		Addresses:         []string{"a.internal:6379", "b.internal:6380"},
		UseTLS:            true,
		Username:          "svc",
		Password:          "secret",
		DatabaseID:        2,
		Protocol:          ffi.ProtocolRESP3,
		ClientName:        "svc-cache",
		RequestTimeout:    250 * time.Millisecond,
		ConnectionTimeout: 5 * time.Second,
		ReadFrom:          ffi.ReadFromPreferReplica,
		ReconnectStrategy: &RetryStrategy{ExponentBase: 2, Factor: 100, NumberOfRetries: 5},
	}
	cfg.setDefaults()

	params, err := cfg.connectionParams(true)
	require.NoError(t, err)

	assert.Equal(t, []ffi.HostPort{
		{Host: "a.internal", Port: 6379},
		{Host: "b.internal", Port: 6380},
	}, params.Addresses)
	assert.Equal(t, ffi.TLSSecure, params.TLSMode)
	assert.True(t, params.ClusterMode)
	assert.Equal(t, ffi.OptionalU32{HasValue: 1, Value: 250}, params.RequestTimeout)
	assert.Equal(t, ffi.OptionalU32{HasValue: 1, Value: 5000}, params.ConnectionTimeout)
	assert.Equal(t, ffi.ReadFromPreferReplica, params.ReadFrom)
	assert.True(t, params.HasRetryStrategy)
	assert.Equal(t, uint32(5), params.RetryCount)
	assert.Equal(t, "svc", params.AuthUsername)
	assert.Equal(t, int64(2), params.DatabaseID)
	assert.Equal(t, "svc-cache", params.ClientName)
	assert.Equal(t, uint32(defaultInflightLimit), params.InflightLimit.Value)
}

func TestConfigTLSModes(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()

	params, err := cfg.connectionParams(false)
	require.NoError(t, err)
	assert.Equal(t, ffi.TLSNoTLS, params.TLSMode)

	cfg.UseTLS = true
	cfg.InsecureTLS = true
	params, err = cfg.connectionParams(false)
	require.NoError(t, err)
	assert.Equal(t, ffi.TLSInsecure, params.TLSMode)
}

func TestConfigOptionalTimeoutsOmitted(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()

	params, err := cfg.connectionParams(false)
	require.NoError(t, err)
	assert.Zero(t, params.RequestTimeout.HasValue)
	assert.Zero(t, params.ConnectionTimeout.HasValue)
	assert.False(t, params.HasRetryStrategy)
}

func TestConfigInvalidAddress(t *testing.T) {
	for _, addr := range []string{"no-port", "host:badport", "host:99999"} {
		cfg := Config{Addresses: []string{addr}}
		cfg.setDefaults()
		_, err := cfg.connectionParams(false)
		assert.Error(t, err, addr)
	}
}
