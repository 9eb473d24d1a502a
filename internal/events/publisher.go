// Package events publishes accepted callbacks to Kafka.
package events

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

const (
	defaultBufferSize = 1000
	defaultTimeout    = 5 * time.Second
)

var (
	// ErrBufferFull is returned when the publish buffer has no room; the
	// message is dropped.
	ErrBufferFull = errors.New("event buffer full")
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("publisher closed")
)

// Config configures the Kafka publisher.
type Config struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	ClientID     string
	Acks         string // "none", "one" or "all"
	Compression  string // "", "none", "gzip", "snappy", "lz4" or "zstd"
	Timeout      time.Duration
	BatchBytes   int64
	BatchTimeout time.Duration
	BufferSize   int
	SASL         SASLConfig
	TLS          TLSConfig
}

type SASLConfig struct {
	Enabled   bool
	Mechanism string // "PLAIN", "SCRAM-SHA-256" or "SCRAM-SHA-512"
	Username  string
	Password  string
}

type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
}

// Validate checks the settings needed when publishing is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return errors.New("kafka brokers empty")
	}
	if c.Topic == "" {
		return errors.New("kafka topic empty")
	}
	if c.SASL.Enabled {
		switch c.SASL.Mechanism {
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
		default:
			return fmt.Errorf("unsupported kafka sasl mechanism %q", c.SASL.Mechanism)
		}
	}
	return nil
}

// Publisher hands messages to Kafka without blocking the caller.
type Publisher interface {
	Publish(key, value []byte) error
	Close() error
}

type noop struct{}

func (noop) Publish(key, value []byte) error { return nil }
func (noop) Close() error                    { return nil }

// Noop returns a Publisher that discards everything.
func Noop() Publisher { return noop{} }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type message struct {
	key []byte
	val []byte
}

type publisher struct {
	w       messageWriter
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan message
	wg     sync.WaitGroup
}

// NewPublisher returns a Kafka publisher, or Noop when cfg is disabled.
func NewPublisher(cfg Config, logger *slog.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tr := &kafka.Transport{
		DialTimeout: 10 * time.Second,
		ClientID:    cfg.ClientID,
	}
	if cfg.TLS.Enabled {
		tr.TLS = &tls.Config{InsecureSkipVerify: cfg.TLS.InsecureSkipVerify}
	}
	if cfg.SASL.Enabled {
		switch cfg.SASL.Mechanism {
		case "PLAIN":
			tr.SASL = plain.Mechanism{Username: cfg.SASL.Username, Password: cfg.SASL.Password}
		case "SCRAM-SHA-256", "SCRAM-SHA-512":
			algo := scram.SHA256
			if cfg.SASL.Mechanism == "SCRAM-SHA-512" {
				algo = scram.SHA512
			}
			mech, err := scram.Mechanism(algo, cfg.SASL.Username, cfg.SASL.Password)
			if err != nil {
				return nil, fmt.Errorf("failed to build kafka sasl mechanism: %w", err)
			}
			tr.SASL = mech
		}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: requiredAcks(cfg.Acks),
		Compression:  compression(cfg.Compression),
		BatchBytes:   cfg.BatchBytes,
		BatchTimeout: cfg.BatchTimeout,
		Transport:    tr,
	}

	return newPublisher(w, cfg, logger), nil
}

func newPublisher(w messageWriter, cfg Config, logger *slog.Logger) *publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	p := &publisher{
		w:       w,
		timeout: timeout,
		logger:  logger,
		ch:      make(chan message, size),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

func requiredAcks(acks string) kafka.RequiredAcks {
	switch acks {
	case "none":
		return kafka.RequireNone
	case "all":
		return kafka.RequireAll
	default:
		return kafka.RequireOne
	}
}

// compression maps a codec name to kafka-go's constant. An empty name or
// "none" disables compression.
func compression(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}

func (p *publisher) loop() {
	defer p.wg.Done()
	for m := range p.ch {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.w.WriteMessages(ctx, kafka.Message{Key: m.key, Value: m.val})
		cancel()
		if err != nil {
			p.logger.Warn("kafka write failed", "error", err)
		}
	}
}

// Publish queues the message and returns immediately.
func (p *publisher) Publish(key, value []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	select {
	case p.ch <- message{key: key, val: value}:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting messages, flushes the buffer and closes the writer.
func (p *publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	p.wg.Wait()
	return p.w.Close()
}
