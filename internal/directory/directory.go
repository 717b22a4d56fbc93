// Package directory serves the HTTP index that publishes the MAPI
// endpoint port map and the raw PKI artifacts to the client under test.
package directory

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tlstester/internal/fleet"
	"tlstester/internal/logger"
	"tlstester/internal/metrics"
	"tlstester/internal/store"
)

// Server is the directory publisher's HTTP server.
type Server struct {
	store      *store.Store
	ports      *fleet.PortMap
	metrics    *metrics.Metrics
	listenAddr string
	port       int
	ready      atomic.Bool

	httpSrv *http.Server
}

// New creates a directory Server. ready is set once the caller's fleet has
// finished binding every endpoint; until then /healthz reports not-ready.
func New(s *store.Store, ports *fleet.PortMap, m *metrics.Metrics, listenAddr string, port int) *Server {
	srv := &Server{store: s, ports: ports, metrics: m, listenAddr: listenAddr, port: port}
	srv.httpSrv = &http.Server{
		Addr:              listenAddr + ":" + strconv.Itoa(port),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.httpSrv.Handler = srv.Handler()
	return srv
}

// MarkReady flips the readiness flag consumed by /healthz.
func (srv *Server) MarkReady() {
	srv.ready.Store(true)
}

// Handler returns the HTTP handler implementing the directory's wire
// contract: the port map, raw artifacts, health, and metrics.
func (srv *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handleIndexOrArtifact)
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(srv.metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe starts the directory HTTP server and blocks until it
// returns an error (including the graceful http.ErrServerClosed produced
// by Shutdown).
func (srv *Server) ListenAndServe() error {
	log := logger.WithComponent("directory")
	log.Info().Str("addr", srv.httpSrv.Addr).Msg("directory publisher listening")
	return srv.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the directory HTTP server, letting in-flight
// requests finish or ctx expire.
func (srv *Server) Shutdown(ctx context.Context) error {
	return srv.httpSrv.Shutdown(ctx)
}

func (srv *Server) handleIndexOrArtifact(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		srv.handleIndex(w, r)
		return
	}
	srv.handleArtifact(w, r)
}

// handleIndex returns one NAME:PORT line per MAPI endpoint, in
// declaration order.
func (srv *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	var b strings.Builder
	for _, name := range srv.ports.Names() {
		port, ok := srv.ports.Get(name)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s:%d\n", name, port)
	}
	w.Header().Set("Content-Type", string(store.ContentTypeText))
	w.Write([]byte(b.String()))
}

// handleArtifact serves a raw artifact by name (NAME.key, NAME.crt, or
// NAME.keycrt); any query string is ignored. Unknown names are 404.
func (srv *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")

	content, ok := srv.store.Get(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	contentType, _ := srv.store.ContentTypeFor(name)
	w.Header().Set("Content-Type", string(contentType))
	w.Write(content)
}

func (srv *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !srv.ready.Load() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", string(store.ContentTypeText))
	fmt.Fprint(w, "ok")
}
