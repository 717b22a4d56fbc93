package fleet

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"net"
	"strconv"
	"testing"
	"time"

	"tlstester/internal/logger"
	"tlstester/internal/mapi"
	"tlstester/internal/metrics"
	"tlstester/internal/pki"
)

func init() {
	logger.Init(false)
}

func testStore(t *testing.T) *Fleet {
	t.Helper()
	s, err := pki.Generate("localhost.localdomain", time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("pki.Generate: %v", err)
	}
	return New(s, metrics.New(), "127.0.0.1", 0, false)
}

func TestStart_BindsEveryDeclaredEndpoint(t *testing.T) {
	f := testStore(t)
	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Shutdown(2 * time.Second)

	for _, ep := range Endpoints {
		port, ok := f.Ports().Get(ep.Name)
		if !ok {
			t.Errorf("endpoint %q missing from port map", ep.Name)
			continue
		}
		if port <= 0 {
			t.Errorf("endpoint %q bound to invalid port %d", ep.Name, port)
		}
	}
}

func TestStart_PortMapNamesMatchDeclarationOrder(t *testing.T) {
	f := testStore(t)
	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Shutdown(2 * time.Second)

	names := f.Ports().Names()
	if len(names) != len(Endpoints) {
		t.Fatalf("got %d names, want %d", len(names), len(Endpoints))
	}
	for i, ep := range Endpoints {
		if names[i] != ep.Name {
			t.Errorf("names[%d] = %q, want %q", i, names[i], ep.Name)
		}
	}
}

func TestPlainEndpoint_SendsChallengeWithoutHandshake(t *testing.T) {
	f := testStore(t)
	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Shutdown(2 * time.Second)

	port, _ := f.Ports().Get("plain")
	conn, err := net.DialTimeout("tcp", "127.0.0.1"+portSuffix(port), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)
	var header [2]byte
	if _, err := r.Read(header[:]); err != nil {
		t.Fatalf("read header: %v", err)
	}
	want := uint16(len(mapi.ChallengeBlob))<<1 | 1
	if got := binary.LittleEndian.Uint16(header[:]); got != want {
		t.Errorf("challenge header = %#x, want %#x", got, want)
	}
}

func TestServer1Endpoint_TLSHandshakeSucceedsWithCA1Trust(t *testing.T) {
	s, err := pki.Generate("localhost.localdomain", time.Now())
	if err != nil {
		t.Fatalf("pki.Generate: %v", err)
	}
	f := New(s, metrics.New(), "127.0.0.1", 0, false)
	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Shutdown(2 * time.Second)

	caPEM, _ := s.Get("ca1.crt")
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		t.Fatal("failed to parse ca1.crt")
	}

	port, _ := f.Ports().Get("server1")
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 2 * time.Second}, "tcp", "127.0.0.1"+portSuffix(port), &tls.Config{
		RootCAs:    pool,
		ServerName: "localhost.localdomain",
	})
	if err != nil {
		t.Fatalf("tls dial: %v", err)
	}
	defer conn.Close()
}

func TestExpiredCertEndpoint_HandshakeFailsOnExpiredLeaf(t *testing.T) {
	s, err := pki.Generate("localhost.localdomain", time.Now())
	if err != nil {
		t.Fatalf("pki.Generate: %v", err)
	}
	f := New(s, metrics.New(), "127.0.0.1", 0, false)
	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Shutdown(2 * time.Second)

	caPEM, _ := s.Get("ca1.crt")
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caPEM)

	port, _ := f.Ports().Get("expiredcert")
	_, err = tls.DialWithDialer(&net.Dialer{Timeout: 2 * time.Second}, "tcp", "127.0.0.1"+portSuffix(port), &tls.Config{
		RootCAs:    pool,
		ServerName: "localhost.localdomain",
	})
	if err == nil {
		t.Fatal("expected handshake failure against an expired leaf certificate")
	}
}

func portSuffix(port int) string {
	return ":" + strconv.Itoa(port)
}
