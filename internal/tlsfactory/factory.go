// Package tlsfactory builds per-endpoint server-side *tls.Config values
// directly from in-memory PEM bytes held in the artifact store — no
// temporary files, no disk round-trip.
package tlsfactory

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"tlstester/internal/store"
)

// Spec describes one endpoint's TLS requirements.
type Spec struct {
	// CertID names the subject whose key/cert pair (CertID+".key" /
	// CertID+".crt") this endpoint presents.
	CertID string
	// Version, if non-zero, pins both the minimum and maximum negotiated
	// TLS version to this value. Zero means "minimum TLS 1.3, unrestricted
	// maximum".
	Version uint16
	// ClientTrustID, if non-empty, names the subject whose chain
	// (ClientTrustID+".crt") is the trust anchor for required client
	// certificates. Empty means no client certificate is requested.
	ClientTrustID string
}

// Build produces a server *tls.Config satisfying Spec, reading certificate
// and key material from s.
func Build(s *store.Store, spec Spec) (*tls.Config, error) {
	certPEM, ok := s.Get(spec.CertID + ".crt")
	if !ok {
		return nil, fmt.Errorf("tlsfactory: missing artifact %s.crt", spec.CertID)
	}
	keyPEM, ok := s.Get(spec.CertID + ".key")
	if !ok {
		return nil, fmt.Errorf("tlsfactory: missing artifact %s.key", spec.CertID)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("tlsfactory: load key pair for %s: %w", spec.CertID, err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}

	if spec.Version != 0 {
		cfg.MinVersion = spec.Version
		cfg.MaxVersion = spec.Version
	}

	if spec.ClientTrustID != "" {
		trustPEM, ok := s.Get(spec.ClientTrustID + ".crt")
		if !ok {
			return nil, fmt.Errorf("tlsfactory: missing client trust artifact %s.crt", spec.ClientTrustID)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(trustPEM) {
			return nil, fmt.Errorf("tlsfactory: no certificates parsed from %s.crt", spec.ClientTrustID)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, nil
}
