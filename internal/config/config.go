// Package config loads the callbackd configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/synapse-core/ipgate"
	"github.com/synapse-core/ipgate/internal/events"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Log      LogConfig      `yaml:"log"`
	Access   AccessConfig   `yaml:"access"`
}

type ServerConfig struct {
	Addr              string `yaml:"addr"`
	Port              int    `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeoutMs     int    `yaml:"read_timeout_ms" validate:"min=0"`
	WriteTimeoutMs    int    `yaml:"write_timeout_ms" validate:"min=0"`
	IdleTimeoutMs     int    `yaml:"idle_timeout_ms" validate:"min=0"`
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms" validate:"min=0"`
}

// Address is the host:port the HTTP server listens on.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Addr, strconv.Itoa(s.Port))
}

func (s ServerConfig) ReadTimeout() time.Duration     { return ms(s.ReadTimeoutMs) }
func (s ServerConfig) WriteTimeout() time.Duration    { return ms(s.WriteTimeoutMs) }
func (s ServerConfig) IdleTimeout() time.Duration     { return ms(s.IdleTimeoutMs) }
func (s ServerConfig) ShutdownTimeout() time.Duration { return ms(s.ShutdownTimeoutMs) }

// GRPCConfig enables the gRPC listener when Addr is set.
type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	URL             string `yaml:"url" validate:"required"`
	MaxOpenConns    int    `yaml:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int    `yaml:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_ms" validate:"min=0"`
	MigrateOnStart  bool   `yaml:"migrate_on_start"`
}

// RedisConfig enables the idempotency guard when URL is set.
type RedisConfig struct {
	URL               string `yaml:"url"`
	IdempotencyTTLSec int    `yaml:"idempotency_ttl_sec" validate:"min=0"`
}

func (r RedisConfig) IdempotencyTTL() time.Duration {
	return time.Duration(r.IdempotencyTTLSec) * time.Second
}

type KafkaSASL struct {
	Enabled   bool   `yaml:"enabled"`
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

type KafkaTLS struct {
	Enabled            bool `yaml:"enabled"`
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

type KafkaConfig struct {
	Enabled        bool      `yaml:"enabled"`
	Brokers        []string  `yaml:"brokers"`
	Topic          string    `yaml:"topic"`
	ClientID       string    `yaml:"client_id"`
	Acks           string    `yaml:"acks" validate:"omitempty,oneof=none one all"`
	Compression    string    `yaml:"compression" validate:"omitempty,oneof=none gzip snappy lz4 zstd"`
	TimeoutMs      int       `yaml:"timeout_ms" validate:"min=0"`
	BatchBytes     int64     `yaml:"batch_bytes" validate:"min=0"`
	BatchTimeoutMs int       `yaml:"batch_timeout_ms" validate:"min=0"`
	BufferSize     int       `yaml:"buffer_size" validate:"min=0"`
	SASL           KafkaSASL `yaml:"sasl"`
	TLS            KafkaTLS  `yaml:"tls"`
}

// PublisherConfig converts the section into events.Config.
func (k KafkaConfig) PublisherConfig() events.Config {
	return events.Config{
		Enabled:      k.Enabled,
		Brokers:      k.Brokers,
		Topic:        k.Topic,
		ClientID:     k.ClientID,
		Acks:         k.Acks,
		Compression:  k.Compression,
		Timeout:      ms(k.TimeoutMs),
		BatchBytes:   k.BatchBytes,
		BatchTimeout: ms(k.BatchTimeoutMs),
		BufferSize:   k.BufferSize,
		SASL: events.SASLConfig{
			Enabled:   k.SASL.Enabled,
			Mechanism: k.SASL.Mechanism,
			Username:  k.SASL.Username,
			Password:  k.SASL.Password,
		},
		TLS: events.TLSConfig{
			Enabled:            k.TLS.Enabled,
			InsecureSkipVerify: k.TLS.InsecureSkipVerify,
		},
	}
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// AccessConfig configures the client address filter guarding callback routes.
type AccessConfig struct {
	TrustedProxyDepth int      `yaml:"trusted_proxy_depth" validate:"min=0"`
	ForwardedHeader   string   `yaml:"forwarded_header"`
	AllowedIPs        []string `yaml:"allowed_ips"`
	ProxyPrefixes     []string `yaml:"proxy_prefixes"`
	MaxChainLength    int      `yaml:"max_chain_length" validate:"min=0"`
}

// FilterOptions turns the section into ipgate options.
func (a AccessConfig) FilterOptions() ([]ipgate.Option, error) {
	allowed, err := ipgate.ParsePrefixes(a.AllowedIPs...)
	if err != nil {
		return nil, fmt.Errorf("access.allowed_ips: %w", err)
	}

	opts := []ipgate.Option{
		ipgate.TrustedProxyDepth(a.TrustedProxyDepth),
		ipgate.AllowPrefixes(allowed...),
	}
	if a.ForwardedHeader != "" {
		opts = append(opts, ipgate.ForwardedHeader(a.ForwardedHeader))
	}
	if a.MaxChainLength > 0 {
		opts = append(opts, ipgate.MaxChainLength(a.MaxChainLength))
	}
	if len(a.ProxyPrefixes) > 0 {
		proxies, err := ipgate.ParsePrefixes(a.ProxyPrefixes...)
		if err != nil {
			return nil, fmt.Errorf("access.proxy_prefixes: %w", err)
		}
		opts = append(opts, ipgate.RequireProxyPrefixes(proxies...))
	}
	return opts, nil
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              "0.0.0.0",
			Port:              3000,
			ReadTimeoutMs:     10000,
			WriteTimeoutMs:    10000,
			IdleTimeoutMs:     60000,
			ShutdownTimeoutMs: 10000,
		},
		Database: DatabaseConfig{
			MaxOpenConns:   10,
			MaxIdleConns:   5,
			MigrateOnStart: true,
		},
		Redis: RedisConfig{
			IdempotencyTTLSec: 86400,
		},
		Kafka: KafkaConfig{
			Topic:     "transaction-callbacks",
			ClientID:  "callbackd",
			Acks:      "one",
			TimeoutMs: 5000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Access: AccessConfig{
			ForwardedHeader: "X-Forwarded-For",
			MaxChainLength:  ipgate.DefaultMaxChainLength,
		},
	}
}

// LoadDotEnv loads variables from the given .env files (".env" when none are
// given) without overriding the existing environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load reads the YAML file at path (skipped when path is empty), then applies
// environment overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = b
		return nil
	}

	str("SERVER_ADDR", &c.Server.Addr)
	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_URL", &c.Redis.URL)
	str("GRPC_ADDR", &c.GRPC.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("FORWARDED_HEADER", &c.Access.ForwardedHeader)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	list("ALLOWED_IPS", &c.Access.AllowedIPs)
	list("TRUSTED_PROXY_PREFIXES", &c.Access.ProxyPrefixes)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)

	if err := integer("SERVER_PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := integer("TRUSTED_PROXY_DEPTH", &c.Access.TrustedProxyDepth); err != nil {
		return err
	}
	if err := boolean("KAFKA_ENABLED", &c.Kafka.Enabled); err != nil {
		return err
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	return nil
}

// Validate checks field constraints and that the access section builds a filter.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Access.FilterOptions(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Kafka.PublisherConfig().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
