package journal

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"mqttaction/internal/mqtt"
	"mqttaction/pkg/types"
)

const writeTimeout = 10 * time.Second

// Writer is the part of *kafka.Writer the journal uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer for cfg.Brokers. Records are keyed by
// decision and hash-partitioned on that key.
func NewKafkaWriter(cfg types.JournalConfig) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no Kafka brokers configured")
	}

	transport := &kafka.Transport{}
	if strings.ToUpper(cfg.Security.Protocol) == "SSL" {
		tlsConfig, err := createTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		transport.TLS = tlsConfig
	}

	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		Transport:              transport,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}, nil
}

// createTLSConfig loads the PKCS#12 truststore and keystore of the journal.
func createTLSConfig(cfg types.JournalConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.Security.TruststorePath != "" {
		pool, err := mqtt.LoadTruststore(cfg.Security.TruststorePath, cfg.Security.TruststorePassword)
		if err != nil {
			return nil, fmt.Errorf("failed to load truststore: %w", err)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.Security.KeystorePath != "" {
		cert, err := mqtt.LoadKeystore(cfg.Security.KeystorePath, cfg.Security.KeystorePassword)
		if err != nil {
			return nil, fmt.Errorf("failed to load keystore: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
