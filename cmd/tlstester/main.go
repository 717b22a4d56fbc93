// Command tlstester is a TLS test harness for clients of a database wire
// protocol (MAPI). On startup it synthesizes a self-contained PKI and
// binds a fleet of TLS and plaintext listeners, each driving one fixed
// challenge/response/error exchange, plus an HTTP directory publishing
// the name-to-port map and the raw PKI artifacts.
//
// Usage:
//
//	tlstester --base-port 30000
//	tlstester --base-port 30000 --sequential --write ./artifacts
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tlstester/internal/config"
	"tlstester/internal/directory"
	"tlstester/internal/fleet"
	"tlstester/internal/logger"
	"tlstester/internal/metrics"
	"tlstester/internal/pki"
	"tlstester/internal/store"
)

func main() {
	cfg := config.Defaults()

	root := &cobra.Command{
		Use:           "tlstester",
		Short:         "TLS conformance test harness for MAPI clients",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(cmd.Flags()); err != nil {
				return err
			}
			return run(cfg)
		},
	}
	cfg.BindFlags(root.Flags())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger.Init(cfg.Verbose)
	log := logger.WithComponent("main")

	st, err := pki.Generate(cfg.Hostname, time.Now())
	if err != nil {
		return fmt.Errorf("pki generation: %w", err)
	}
	log.Info().Int("artifacts", len(st.Names())).Msg("pki generated")

	if cfg.WriteDir != "" {
		if err := persist(st, cfg.WriteDir); err != nil {
			return fmt.Errorf("persist artifacts: %w", err)
		}
		log.Info().Str("dir", cfg.WriteDir).Msg("artifacts written to disk")
	}

	m := metrics.New()
	m.SetArtifactsTotal(len(st.Names()))

	f := fleet.New(st, m, cfg.ListenAddr, cfg.BasePort, cfg.Sequential)
	if err := f.Start(); err != nil {
		return fmt.Errorf("start fleet: %w", err)
	}
	defer f.Shutdown(15 * time.Second)

	dir := directory.New(st, f.Ports(), m, cfg.ListenAddr, cfg.BasePort)
	dir.MarkReady()

	errCh := make(chan error, 1)
	go func() {
		errCh <- dir.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := dir.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("directory shutdown error")
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("directory publisher: %w", err)
	}
}

// persist writes every artifact in st to dir, one file per artifact,
// creating dir if it does not already exist. Overwrites are permitted.
func persist(st *store.Store, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, name := range st.Names() {
		content, ok := st.Get(name)
		if !ok {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
