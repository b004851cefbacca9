package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"

	"mqttaction/pkg/types"
)

const tlsMinVersion = tls.VersionTLS12

// buildTLSConfig creates the client TLS configuration for an ssl:// broker.
// SNI is always the configured host. Without a truststore the system roots
// are used.
func buildTLSConfig(cfg types.ConnectionConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tlsMinVersion,
	}

	if cfg.TLS.TruststorePath != "" {
		pool, err := LoadTruststore(cfg.TLS.TruststorePath, cfg.TLS.TruststorePassword)
		if err != nil {
			return nil, fmt.Errorf("failed to load truststore: %w", err)
		}
		tlsConfig.RootCAs = pool
	}

	// Client certificate for mutual TLS
	if cfg.TLS.KeystorePath != "" {
		cert, err := LoadKeystore(cfg.TLS.KeystorePath, cfg.TLS.KeystorePassword)
		if err != nil {
			return nil, fmt.Errorf("failed to load keystore: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// LoadTruststore loads CA certificates from a PKCS#12 truststore.
func LoadTruststore(filename, password string) (*x509.CertPool, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	certs, err := pkcs12.DecodeTrustStore(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode PKCS#12 truststore (check password): %w", err)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found in truststore %s", filename)
	}

	pool := x509.NewCertPool()
	for _, cert := range certs {
		pool.AddCert(cert)
	}
	return pool, nil
}

// LoadKeystore loads a client certificate and private key from a PKCS#12
// keystore, keeping any CA chain bundled with it.
func LoadKeystore(filename, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return tls.Certificate{}, err
	}

	privateKey, cert, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to decode PKCS#12 keystore (check password): %w", err)
	}
	if privateKey == nil || cert == nil {
		return tls.Certificate{}, fmt.Errorf("no private key or certificate found in keystore")
	}

	chain := [][]byte{cert.Raw}
	for _, ca := range caCerts {
		chain = append(chain, ca.Raw)
	}

	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  privateKey,
		Leaf:        cert,
	}, nil
}
