// Package pki synthesizes the fixed key/certificate hierarchy this harness
// tests TLS clients against: a handful of independent CAs, each signing a
// small number of leaf certificates, built once in memory from a single
// reference instant so that validity windows stay deterministic relative
// to each other across a run.
package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// rsaKeyBits is the modulus size for every generated key pair. Fixed by
// spec: 2048-bit RSA, public exponent 65537 (the crypto/rsa default).
const rsaKeyBits = 2048

// dn is the distinguished name used as the primary key for subjects during
// generation. Equality is structural.
type dn struct {
	organization string
	commonName   string
}

func (d dn) pkixName() pkix.Name {
	return pkix.Name{Organization: []string{d.organization}, CommonName: d.commonName}
}

// subject is one generated key/certificate pair plus its place in the
// trust hierarchy. parent is nil for self-signed roots.
type subject struct {
	name   string // artifact-name prefix, e.g. "server1"
	dn     dn
	key    *rsa.PrivateKey
	cert   *x509.Certificate
	parent *subject
}

// chain returns the certificate chain in chain-up order: the subject's own
// certificate first, its issuer next, and so on until a self-signed root.
func (s *subject) chain() []*x509.Certificate {
	var out []*x509.Certificate
	for cur := s; cur != nil; cur = cur.parent {
		out = append(out, cur.cert)
	}
	return out
}

// builder accumulates subjects in declaration order and produces artifacts
// as it goes. All certificates it issues share one reference instant so a
// builder's output is deterministic relative to itself.
type builder struct {
	now      time.Time
	hostname string
	subjects map[string]*subject
}

func newBuilder(hostname string, now time.Time) *builder {
	return &builder{
		now:      now,
		hostname: hostname,
		subjects: make(map[string]*subject),
	}
}

// newCA creates a self-signed CA subject with a critical
// basicConstraints{CA=true, pathLen=1} extension. The template sets no
// other extension, but crypto/x509 adds a non-critical
// subjectKeyIdentifier to every CA certificate it creates.
func (b *builder) newCA(name string) (*subject, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("pki: generate CA key for %q: %w", name, err)
	}

	subjectDN := dn{organization: "Org " + name, commonName: "The Certificate Authority"}

	serial, err := randomSerial()
	if err != nil {
		return nil, fmt.Errorf("pki: generate CA serial for %q: %w", name, err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subjectDN.pkixName(),
		NotBefore:             b.now.Add(0),
		NotAfter:              b.now.AddDate(0, 0, 14),
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
		MaxPathLenZero:        false,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("pki: self-sign CA %q: %w", name, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("pki: parse generated CA %q: %w", name, err)
	}

	s := &subject{name: name, dn: subjectDN, key: key, cert: cert}
	if err := b.insert(s); err != nil {
		return nil, err
	}
	return s, nil
}

// leafOpts controls the notBefore/notAfter offsets for a leaf certificate,
// in days relative to the builder's reference instant.
type leafOpts struct {
	notBeforeDays int
	notAfterDays  int
}

var defaultLeafOpts = leafOpts{notBeforeDays: 0, notAfterDays: 14}

// newLeaf creates a leaf certificate signed by issuer, carrying a
// non-critical subjectAltName with exactly one dNSName (the configured
// hostname) and no basicConstraints or key usage extensions.
func (b *builder) newLeaf(name string, issuer *subject, opts leafOpts) (*subject, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("pki: generate leaf key for %q: %w", name, err)
	}

	subjectDN := dn{organization: "Org " + name, commonName: b.hostname}

	serial, err := randomSerial()
	if err != nil {
		return nil, fmt.Errorf("pki: generate leaf serial for %q: %w", name, err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      subjectDN.pkixName(),
		NotBefore:    b.now.AddDate(0, 0, opts.notBeforeDays),
		NotAfter:     b.now.AddDate(0, 0, opts.notAfterDays),
		DNSNames:     []string{b.hostname},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, issuer.cert, &key.PublicKey, issuer.key)
	if err != nil {
		return nil, fmt.Errorf("pki: sign leaf %q with issuer %q: %w", name, issuer.name, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("pki: parse generated leaf %q: %w", name, err)
	}

	s := &subject{name: name, dn: subjectDN, key: key, cert: cert, parent: issuer}
	if err := b.insert(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (b *builder) insert(s *subject) error {
	if _, exists := b.subjects[s.name]; exists {
		return fmt.Errorf("pki: duplicate subject %q", s.name)
	}
	b.subjects[s.name] = s
	return nil
}

// randomSerial returns a fresh positive serial number. 128 bits of
// randomness, same budget commonly used for this purpose across the
// corpus.
func randomSerial() (*big.Int, error) {
	max := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, err
	}
	if serial.Sign() == 0 {
		serial.SetInt64(1)
	}
	return serial, nil
}
