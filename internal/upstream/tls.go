package upstream

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// TLSConfig describes the client identity and trust material used when
// talking to the upstream feature-management server over HTTPS.
type TLSConfig struct {
	ClientCertFile     string
	ClientKeyFile      string
	KeystoreFile       string
	KeystorePassphrase string
	TrustedRootFile    string
	SkipVerify         bool
}

// buildTransport constructs an *http.Transport's TLS client config from
// cfg. A PEM client cert/key pair and a PKCS12 keystore are mutually
// exclusive identity sources; supplying both is a configuration error.
func buildTransport(cfg *TLSConfig) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg == nil {
		return transport, nil
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.SkipVerify}

	hasPEM := cfg.ClientCertFile != "" || cfg.ClientKeyFile != ""
	hasKeystore := cfg.KeystoreFile != ""
	if hasPEM && hasKeystore {
		return nil, fmt.Errorf("tls: client_cert_file/client_key_file and keystore_file are mutually exclusive")
	}

	switch {
	case hasPEM:
		if cfg.ClientCertFile == "" || cfg.ClientKeyFile == "" {
			return nil, fmt.Errorf("tls: both client_cert_file and client_key_file are required")
		}
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("tls: load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}

	case hasKeystore:
		cert, err := loadPKCS12(cfg.KeystoreFile, cfg.KeystorePassphrase)
		if err != nil {
			return nil, fmt.Errorf("tls: load keystore: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.TrustedRootFile != "" {
		pool, err := loadTrustedRoot(cfg.TrustedRootFile)
		if err != nil {
			return nil, fmt.Errorf("tls: load trusted root: %w", err)
		}
		tlsConfig.RootCAs = pool
	}

	transport.TLSClientConfig = tlsConfig
	return transport, nil
}

// loadPKCS12 decodes a PKCS12 keystore file into a usable tls.Certificate,
// including any intermediate certificates the keystore carries.
func loadPKCS12(path, passphrase string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read keystore %s: %w", path, err)
	}

	privateKey, leaf, caCerts, err := pkcs12.DecodeChain(data, passphrase)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode keystore: %w", err)
	}

	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  privateKey,
		Leaf:        leaf,
	}
	for _, ca := range caCerts {
		cert.Certificate = append(cert.Certificate, ca.Raw)
	}
	return cert, nil
}

func loadTrustedRoot(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trusted root %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no PEM certificates found in %s", path)
	}
	return pool, nil
}
