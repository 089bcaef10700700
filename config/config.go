// Package config holds the plain data structures the client and server
// builders accept. Parsing a config file into these structures is
// deliberately kept out of this package — cmd/ example binaries decode
// a YAML file into them with gopkg.in/yaml.v3; the core library only
// ever consumes an already-populated struct, so embedding this module
// in another process never forces a particular file format on it.
package config

import (
	"time"

	"github.com/msgpack-rpc/msgpack-rpc-go/address"
	"github.com/msgpack-rpc/msgpack-rpc-go/rpclog"
)

// LoggingConfig mirrors the spec's logging configuration keys.
type LoggingConfig struct {
	FilePath       string `yaml:"file_path"`
	MaxFileSize    int    `yaml:"max_file_size"`
	MaxFiles       int    `yaml:"max_files"`
	OutputLogLevel string `yaml:"output_log_level"`
}

// ToLoggerConfig projects the YAML-friendly LoggingConfig into the
// rpclog.Config the logging constructor wants, parsing the level name.
// An unrecognized level name falls back to info, the same default
// ParseLevel itself returns alongside its error.
func (l LoggingConfig) ToLoggerConfig() rpclog.Config {
	level, _ := rpclog.ParseLevel(l.OutputLogLevel)
	return rpclog.Config{
		FilePath:       l.FilePath,
		MaxFileSize:    l.MaxFileSize,
		MaxFiles:       l.MaxFiles,
		OutputLogLevel: level,
	}
}

// MessageParserConfig governs the read loop's chunk size.
type MessageParserConfig struct {
	ReadBufferSize int `yaml:"read_buffer_size"`
}

// ExecutorConfig sizes the transport and callback thread pools.
type ExecutorConfig struct {
	NumTransportThreads int `yaml:"num_transport_threads"`
	NumCallbackThreads  int `yaml:"num_callback_threads"`
}

// ReconnectionConfig governs the client connector's backoff schedule.
type ReconnectionConfig struct {
	InitialWaitingTimeSec   float64 `yaml:"initial_waiting_time_sec"`
	MaxWaitingTimeSec       float64 `yaml:"max_waiting_time_sec"`
	MaxJitterWaitingTimeSec float64 `yaml:"max_jitter_waiting_time_sec"`
}

// InitialWaitingTime projects InitialWaitingTimeSec into a time.Duration.
func (r ReconnectionConfig) InitialWaitingTime() time.Duration {
	return durationFromSeconds(r.InitialWaitingTimeSec, time.Second)
}

// MaxWaitingTime projects MaxWaitingTimeSec into a time.Duration.
func (r ReconnectionConfig) MaxWaitingTime() time.Duration {
	return durationFromSeconds(r.MaxWaitingTimeSec, 30*time.Second)
}

// MaxJitterWaitingTime projects MaxJitterWaitingTimeSec into a time.Duration.
func (r ReconnectionConfig) MaxJitterWaitingTime() time.Duration {
	return durationFromSeconds(r.MaxJitterWaitingTimeSec, 100*time.Millisecond)
}

func durationFromSeconds(v float64, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v * float64(time.Second))
}

// ClientConfig is the full builder-time configuration surface for a
// Client, corresponding to spec section 6's client configuration keys.
type ClientConfig struct {
	URIs          []string
	CallTimeoutSec float64
	MessageParser MessageParserConfig
	Executor      ExecutorConfig
	Reconnection  ReconnectionConfig
	Logging       LoggingConfig
}

// DefaultClientConfig returns a ClientConfig with every numeric field
// at the default the zero value would resolve to anyway — provided so
// callers can start from it and override only what they need.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		CallTimeoutSec: 10,
		MessageParser:  MessageParserConfig{ReadBufferSize: 64 * 1024},
		Executor:       ExecutorConfig{NumTransportThreads: 1, NumCallbackThreads: 1},
		Reconnection: ReconnectionConfig{
			InitialWaitingTimeSec:   1,
			MaxWaitingTimeSec:       30,
			MaxJitterWaitingTimeSec: 0.1,
		},
	}
}

// WithURIs returns a copy of c with its candidate URI list replaced.
func (c ClientConfig) WithURIs(uris ...string) ClientConfig {
	c.URIs = uris
	return c
}

// WithCallTimeout returns a copy of c with its call timeout replaced.
func (c ClientConfig) WithCallTimeout(d time.Duration) ClientConfig {
	c.CallTimeoutSec = d.Seconds()
	return c
}

// CallTimeout projects CallTimeoutSec into a time.Duration.
func (c ClientConfig) CallTimeout() time.Duration {
	return durationFromSeconds(c.CallTimeoutSec, 10*time.Second)
}

// ParsedURIs parses every entry of URIs, failing on the first invalid
// one.
func (c ClientConfig) ParsedURIs() ([]address.URI, error) {
	return parseAll(c.URIs)
}

// ServerConfig is the full builder-time configuration surface for a
// Server: the same sub-keys as ClientConfig where applicable, plus the
// listen-address URI list.
type ServerConfig struct {
	URIs     []string
	Executor ExecutorConfig
	Logging  LoggingConfig
}

// DefaultServerConfig mirrors DefaultClientConfig's executor defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Executor: ExecutorConfig{NumTransportThreads: 1, NumCallbackThreads: 1},
	}
}

// WithURIs returns a copy of c with its listen-address list replaced.
func (c ServerConfig) WithURIs(uris ...string) ServerConfig {
	c.URIs = uris
	return c
}

// ParsedURIs parses every entry of URIs, failing on the first invalid
// one.
func (c ServerConfig) ParsedURIs() ([]address.URI, error) {
	return parseAll(c.URIs)
}

func parseAll(raw []string) ([]address.URI, error) {
	uris := make([]address.URI, 0, len(raw))
	for _, r := range raw {
		u, err := address.Parse(r)
		if err != nil {
			return nil, err
		}
		uris = append(uris, u)
	}
	return uris, nil
}
