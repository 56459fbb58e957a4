package api

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
)

// TLSConfig holds the certificate and key paths.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

var tlsConfig *TLSConfig

// ErrPartialTLS is returned when only one of the certificate and key is set.
var ErrPartialTLS = errors.New("FLOWGRAPH_TLS_CERT and FLOWGRAPH_TLS_KEY must be set together")

// InitTLS reads FLOWGRAPH_TLS_CERT and FLOWGRAPH_TLS_KEY. With neither set
// the server speaks plain HTTP.
func InitTLS() error {
	certFile := os.Getenv("FLOWGRAPH_TLS_CERT")
	keyFile := os.Getenv("FLOWGRAPH_TLS_KEY")

	tlsConfig = nil
	switch {
	case certFile == "" && keyFile == "":
		return nil
	case certFile == "" || keyFile == "":
		return ErrPartialTLS
	}
	tlsConfig = &TLSConfig{CertFile: certFile, KeyFile: keyFile}
	return nil
}

func IsTLSEnabled() bool {
	return tlsConfig != nil
}

// GetTLSConfig returns the current TLS paths, or nil.
func GetTLSConfig() *TLSConfig {
	return tlsConfig
}

// LoadTLSConfig loads the key pair. It returns nil, nil when TLS is off.
func LoadTLSConfig() (*tls.Config, error) {
	if !IsTLSEnabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// SetTLSConfigForTest allows tests to set TLS config directly.
func SetTLSConfigForTest(cfg *TLSConfig) {
	tlsConfig = cfg
}
