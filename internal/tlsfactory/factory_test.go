package tlsfactory

import (
	"crypto/tls"
	"testing"
	"time"

	"tlstester/internal/pki"
)

func TestBuild_DefaultVersionIsTLS13Minimum(t *testing.T) {
	s, err := pki.Generate("tlsfactory-test.invalid", time.Now())
	if err != nil {
		t.Fatalf("pki.Generate: %v", err)
	}

	cfg, err := Build(s, Spec{CertID: "server1"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %x, want TLS1.3", cfg.MinVersion)
	}
	if cfg.MaxVersion != 0 {
		t.Errorf("MaxVersion = %x, want unrestricted (0)", cfg.MaxVersion)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("Certificates len = %d, want 1", len(cfg.Certificates))
	}
	if cfg.ClientAuth != tls.NoClientCert {
		t.Errorf("ClientAuth = %v, want NoClientCert", cfg.ClientAuth)
	}
}

func TestBuild_VersionPinSetsBothBounds(t *testing.T) {
	s, err := pki.Generate("tlsfactory-test.invalid", time.Now())
	if err != nil {
		t.Fatalf("pki.Generate: %v", err)
	}

	cfg, err := Build(s, Spec{CertID: "server1", Version: tls.VersionTLS12})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS12 || cfg.MaxVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion=%x MaxVersion=%x, want both pinned to TLS1.2", cfg.MinVersion, cfg.MaxVersion)
	}
}

func TestBuild_ClientTrustRequiresClientCert(t *testing.T) {
	s, err := pki.Generate("tlsfactory-test.invalid", time.Now())
	if err != nil {
		t.Fatalf("pki.Generate: %v", err)
	}

	cfg, err := Build(s, Spec{CertID: "server1", ClientTrustID: "ca2"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", cfg.ClientAuth)
	}
	if cfg.ClientCAs == nil {
		t.Error("ClientCAs is nil")
	}
}

func TestBuild_MissingCertIsError(t *testing.T) {
	s, err := pki.Generate("tlsfactory-test.invalid", time.Now())
	if err != nil {
		t.Fatalf("pki.Generate: %v", err)
	}
	if _, err := Build(s, Spec{CertID: "doesnotexist"}); err == nil {
		t.Error("expected error for missing cert id")
	}
}
