package server

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"meridian-hq/vesta/pkg/config"
)

// buildTLSConfig loads the certificate bundle and private key and
// assembles the TLS listener configuration. Keys stored with legacy PEM
// encryption are decrypted with the configured passphrase.
func buildTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	cert, err := loadCertificate(cfg.CertFile, cfg.KeyFile, cfg.Passphrase)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// loadCertificate reads the PEM certificate bundle and key from disk.
func loadCertificate(certFile, keyFile, passphrase string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read certificate bundle %q: %w", certFile, err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read private key %q: %w", keyFile, err)
	}

	if passphrase != "" {
		keyPEM, err = decryptKeyPEM(keyPEM, passphrase)
		if err != nil {
			return tls.Certificate{}, err
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load key pair: %w", err)
	}
	return cert, nil
}

// decryptKeyPEM decrypts a legacy RFC 1423 encrypted PEM private key.
// Unencrypted keys pass through untouched so a configured passphrase
// does not break plain keys.
func decryptKeyPEM(keyPEM []byte, passphrase string) ([]byte, error) {
	block, rest := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("private key is not valid PEM")
	}
	if !x509.IsEncryptedPEMBlock(block) {
		return keyPEM, nil
	}
	der, err := x509.DecryptPEMBlock(block, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}
	out := pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der})
	return append(out, rest...), nil
}
