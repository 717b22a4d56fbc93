// Package fleet binds the concurrent listener set that drives the MAPI
// challenge/response/error exchange against every declared TLS
// configuration.
package fleet

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tlstester/internal/logger"
	"tlstester/internal/mapi"
	"tlstester/internal/metrics"
	"tlstester/internal/store"
	"tlstester/internal/tlsfactory"
)

// Endpoint declares one MAPI listener: its name, whether it speaks TLS,
// and — if it does — the TLS configuration spec that produces its
// acceptor. A zero tlsfactory.Spec{} paired with TLS=false describes the
// plaintext endpoint.
type Endpoint struct {
	Name string
	TLS  bool
	Spec tlsfactory.Spec
}

// Endpoints is the fixed, order-sensitive declaration of every MAPI
// endpoint this harness binds. Declaration order determines sequential
// port allocation and the line order of the directory's port listing.
var Endpoints = []Endpoint{
	{Name: "plain", TLS: false},
	{Name: "server1", TLS: true, Spec: tlsfactory.Spec{CertID: "server1"}},
	{Name: "server2", TLS: true, Spec: tlsfactory.Spec{CertID: "server2"}},
	{Name: "server3", TLS: true, Spec: tlsfactory.Spec{CertID: "server3"}},
	{Name: "expiredcert", TLS: true, Spec: tlsfactory.Spec{CertID: "server1x"}},
	{Name: "tls12", TLS: true, Spec: tlsfactory.Spec{CertID: "server1", Version: tls.VersionTLS12}},
	{Name: "clientauth", TLS: true, Spec: tlsfactory.Spec{CertID: "server1", ClientTrustID: "ca2"}},
}

// PortMap is the insertion-ordered name → bound-port mapping populated as
// each listener binds. Safe for concurrent read after Fleet.Start
// returns; all writes happen during Start, and each endpoint's port is
// written before that endpoint's listener begins accepting.
type PortMap struct {
	mu    sync.RWMutex
	names []string
	ports map[string]int
}

func newPortMap() *PortMap {
	return &PortMap{ports: make(map[string]int)}
}

func (p *PortMap) set(name string, port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.ports[name]; !exists {
		p.names = append(p.names, name)
	}
	p.ports[name] = port
}

// Get returns the bound port for name and whether it is present.
func (p *PortMap) Get(name string) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	port, ok := p.ports[name]
	return port, ok
}

// Names returns every endpoint name in declaration order.
func (p *PortMap) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Fleet owns one listener per declared Endpoint plus the shared,
// immutable state (artifact store, metrics) every connection handler
// reads.
type Fleet struct {
	store      *store.Store
	metrics    *metrics.Metrics
	listenAddr string
	sequential bool
	basePort   int

	ports     *PortMap
	listeners []net.Listener
	wg        sync.WaitGroup
}

// New constructs a Fleet. listenAddr is the bind interface shared by
// every listener; basePort and sequential together select port
// allocation for MAPI endpoints when sequential is true (base port + 1,
// +2, … in declaration order — base port itself is reserved for the
// directory publisher).
func New(s *store.Store, m *metrics.Metrics, listenAddr string, basePort int, sequential bool) *Fleet {
	return &Fleet{
		store:      s,
		metrics:    m,
		listenAddr: listenAddr,
		sequential: sequential,
		basePort:   basePort,
		ports:      newPortMap(),
	}
}

// Ports returns the fleet's port map. Only meaningful after Start returns
// successfully.
func (f *Fleet) Ports() *PortMap {
	return f.ports
}

// Start binds every declared endpoint and begins accepting on each in its
// own goroutine. It returns once all listeners are bound, or the first
// bind/TLS-config failure occurs — never once listeners stop serving.
func (f *Fleet) Start() error {
	log := logger.WithComponent("fleet")

	for i, ep := range Endpoints {
		port := 0
		if f.sequential {
			port = f.basePort + 1 + i
		}

		ln, err := listen(f.listenAddr, port)
		if err != nil {
			return err
		}

		boundPort := ln.Addr().(*net.TCPAddr).Port
		f.ports.set(ep.Name, boundPort)
		if f.metrics != nil {
			f.metrics.SetBoundPort(ep.Name, boundPort)
		}
		f.listeners = append(f.listeners, ln)

		log.Info().Str("endpoint", ep.Name).Int("port", boundPort).Bool("tls", ep.TLS).Msg("endpoint bound")

		var tlsCfg *tls.Config
		if ep.TLS {
			tlsCfg, err = tlsfactory.Build(f.store, ep.Spec)
			if err != nil {
				return err
			}
		}

		f.wg.Add(1)
		go f.accept(ep, ln, tlsCfg)
	}

	return nil
}

// Shutdown closes every listener and waits up to timeout for in-flight
// connection handlers to finish.
func (f *Fleet) Shutdown(timeout time.Duration) {
	for _, ln := range f.listeners {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		logger.WithComponent("fleet").Warn().Msg("shutdown timed out waiting for connections to drain")
	}
}

func listen(addr string, port int) (net.Listener, error) {
	lc := net.ListenConfig{Control: setReuseAddr}
	return lc.Listen(context.Background(), "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
}

// accept runs the accept loop for one listener until it is closed by
// Shutdown. Each accepted connection is handled in its own goroutine, so
// a slow or hung client on this endpoint never blocks accept on any
// other endpoint or any other connection on this one.
func (f *Fleet) accept(ep Endpoint, ln net.Listener, tlsCfg *tls.Config) {
	defer f.wg.Done()
	log := logger.WithEndpoint(logger.WithComponent("fleet"), ep.Name)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Debug().Err(err).Msg("listener closed")
			return
		}

		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			handleConnection(conn, ep, tlsCfg, f.metrics, log)
		}()
	}
}

// handleConnection drives the fixed per-connection protocol: optional TLS
// handshake, send challenge, read one logical request, send error,
// close. Any failure is logged and the connection is dropped; it is
// never fatal to the listener.
func handleConnection(conn net.Conn, ep Endpoint, tlsCfg *tls.Config, m *metrics.Metrics, log zerolog.Logger) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	log = log.With().Str("conn_id", uuid.NewString()).Logger()

	if m != nil {
		m.RecordConnection(ep.Name, metrics.OutcomeAccepted)
	}

	var rw interface {
		Read(p []byte) (int, error)
		Write(p []byte) (int, error)
	} = conn

	if ep.TLS {
		tlsConn := tls.Server(conn, tlsCfg)
		if err := tlsConn.HandshakeContext(context.Background()); err != nil {
			log.Warn().Str("remote_addr", remote).Err(err).Msg("tls handshake failed")
			if m != nil {
				m.RecordConnection(ep.Name, metrics.OutcomeHandshakeFailed)
			}
			return
		}
		if m != nil {
			m.RecordConnection(ep.Name, metrics.OutcomeHandshakeOK)
		}
		rw = tlsConn
	}

	if err := mapi.Exchange(rw); err != nil {
		log.Debug().Str("remote_addr", remote).Err(err).Msg("mapi exchange failed")
		if m != nil {
			m.RecordConnection(ep.Name, metrics.OutcomeFramingError)
		}
		return
	}

	if m != nil {
		m.RecordConnection(ep.Name, metrics.OutcomeCompleted)
	}
}
