package pki

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"tlstester/internal/store"
)

// spec describes one subject to generate, in a fixed, order-sensitive
// sequence. issuer is empty for a self-signed CA.
type spec struct {
	name     string
	issuer   string // empty => self-signed CA
	leafOpts leafOpts
	keycrt   bool
}

// subjectTable is the exact, order-sensitive subject list this harness
// generates. Order matters: a subject's issuer must already exist.
var subjectTable = []spec{
	{name: "ca1"},
	{name: "server1", issuer: "ca1", leafOpts: leafOpts{0, 14}},
	{name: "server1x", issuer: "ca1", leafOpts: leafOpts{-15, -1}},
	{name: "ca2"},
	{name: "server2", issuer: "ca2", leafOpts: leafOpts{0, 14}},
	{name: "client2", issuer: "ca2", leafOpts: leafOpts{0, 14}, keycrt: true},
	{name: "ca3"},
	{name: "server3", issuer: "ca3", leafOpts: leafOpts{0, 14}},
}

// Generate builds the full subject hierarchy and publishes every artifact
// (NAME.key, NAME.crt, and NAME.keycrt where requested) into a fresh
// Store. hostname is the CN/SAN value used for every leaf. now is the
// single reference instant every certificate's validity window is
// computed against.
//
// Any failure is returned to the caller; it is always fatal to startup,
// so callers should treat a non-nil error as unrecoverable.
func Generate(hostname string, now time.Time) (*store.Store, error) {
	b := newBuilder(hostname, now)
	s := store.New()

	for _, sp := range subjectTable {
		var subj *subject
		var err error

		if sp.issuer == "" {
			subj, err = b.newCA(sp.name)
		} else {
			issuer, ok := b.subjects[sp.issuer]
			if !ok {
				return nil, fmt.Errorf("pki: subject %q references unknown issuer %q", sp.name, sp.issuer)
			}
			subj, err = b.newLeaf(sp.name, issuer, sp.leafOpts)
		}
		if err != nil {
			return nil, err
		}

		if err := publish(s, subj, sp.keycrt); err != nil {
			return nil, err
		}
	}

	s.Seal()
	return s, nil
}

// publish emits subj's artifacts into s: NAME.key, NAME.crt, and — if
// requested — NAME.keycrt as the byte-wise concatenation of the two.
func publish(s *store.Store, subj *subject, keycrt bool) error {
	keyBytes := encodeKeyPEM(subj.key)
	if err := s.Put(subj.name+".key", keyBytes); err != nil {
		return err
	}

	certBytes := encodeChainPEM(subj.chain())
	if err := s.Put(subj.name+".crt", certBytes); err != nil {
		return err
	}

	if keycrt {
		combined := make([]byte, 0, len(keyBytes)+len(certBytes))
		combined = append(combined, keyBytes...)
		combined = append(combined, certBytes...)
		if err := s.Put(subj.name+".keycrt", combined); err != nil {
			return err
		}
	}
	return nil
}

// encodeKeyPEM renders an RSA private key as unencrypted, traditional
// OpenSSL-form PEM (PKCS#1).
func encodeKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// encodeChainPEM walks the chain in chain-up order (subject first, root
// last) and concatenates each certificate's PEM block.
func encodeChainPEM(chain []*x509.Certificate) []byte {
	var out []byte
	for _, cert := range chain {
		out = append(out, pem.EncodeToMemory(&pem.Block{
			Type:  "CERTIFICATE",
			Bytes: cert.Raw,
		})...)
	}
	return out
}
