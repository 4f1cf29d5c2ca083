// Package devserver parses devserver command flags and starts the reference
// authority server.
package devserver

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"

	server "github.com/louisbranch/initiative.watch/internal/devserver"
	"github.com/louisbranch/initiative.watch/internal/devserver/storage/sqlite"
	entrypoint "github.com/louisbranch/initiative.watch/internal/platform/cmd"
	"github.com/louisbranch/initiative.watch/internal/platform/timeouts"
)

// Config holds devserver command configuration.
type Config struct {
	Port        int    `env:"INITIATIVE_WATCH_DEVSERVER_PORT" envDefault:"8080"`
	Addr        string `env:"INITIATIVE_WATCH_DEVSERVER_ADDR"`
	StoragePath string `env:"INITIATIVE_WATCH_DEVSERVER_STORAGE_PATH" envDefault:"devserver.db"`
	LegacyOnly  bool   `env:"INITIATIVE_WATCH_DEVSERVER_LEGACY_ONLY"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The devserver port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The devserver listen address (overrides -port)")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "Path to the SQLite database file")
	fs.BoolVar(&cfg.LegacyOnly, "legacy-only", cfg.LegacyOnly, "Disable the unified action endpoint")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the reference authority server.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDevserver, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.StoragePath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close storage: %v", err)
			}
		}()

		addr := cfg.Addr
		if addr == "" {
			addr = fmt.Sprintf(":%d", cfg.Port)
		}

		var opts []server.Option
		if cfg.LegacyOnly {
			opts = append(opts, server.WithLegacyOnly(true))
		}
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           server.New(store, opts...).Router(),
			ReadHeaderTimeout: timeouts.ReadHeader,
		}

		serveErr := make(chan error, 1)
		log.Printf("devserver listening on %s (legacy-only=%t)", addr, cfg.LegacyOnly)
		go func() {
			serveErr <- httpServer.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown http server: %w", err)
			}
			return nil
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	})
}
