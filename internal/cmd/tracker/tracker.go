// Package tracker parses tracker command flags and starts the session
// client daemon.
package tracker

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/initiative.watch/internal/dispatch"
	"github.com/louisbranch/initiative.watch/internal/gateway"
	entrypoint "github.com/louisbranch/initiative.watch/internal/platform/cmd"
	"github.com/louisbranch/initiative.watch/internal/session/event"
	"github.com/louisbranch/initiative.watch/internal/tracker"
)

// Config holds tracker command configuration.
type Config struct {
	ServerURL    string        `env:"INITIATIVE_WATCH_SERVER_URL" envDefault:"http://localhost:8080"`
	SessionID    string        `env:"INITIATIVE_WATCH_SESSION_ID"`
	Role         string        `env:"INITIATIVE_WATCH_ROLE" envDefault:"player"`
	Mode         string        `env:"INITIATIVE_WATCH_DISPATCH_MODE"`
	BaseInterval time.Duration `env:"INITIATIVE_WATCH_POLL_INTERVAL"`
	MaxInterval  time.Duration `env:"INITIATIVE_WATCH_POLL_MAX_INTERVAL"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "Base URL of the remote session authority")
	fs.StringVar(&cfg.SessionID, "session-id", cfg.SessionID, "The session to open")
	fs.StringVar(&cfg.Role, "role", cfg.Role, "Session role sent with every request (player or gm)")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Command protocol mode: unified, legacy, or auto")
	fs.DurationVar(&cfg.BaseInterval, "poll-interval", cfg.BaseInterval, "Base poll interval (default 7s)")
	fs.DurationVar(&cfg.MaxInterval, "poll-max-interval", cfg.MaxInterval, "Maximum backed-off poll interval (default 28s)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the session client and polls until the context ends.
func Run(ctx context.Context, cfg Config) error {
	if cfg.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	mode, err := dispatch.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTracker, func(ctx context.Context) error {
		authority := gateway.New(cfg.ServerURL, gateway.WithRole(cfg.Role))
		client := tracker.NewClient(tracker.Config{
			Authority:    authority,
			SessionID:    cfg.SessionID,
			Mode:         mode,
			BaseInterval: cfg.BaseInterval,
			MaxInterval:  cfg.MaxInterval,
			Notify: func(message string) {
				log.Printf("notice: %s", message)
			},
			OnEvents: func(events []event.Event) {
				for i := len(events) - 1; i >= 0; i-- {
					log.Printf("event %s: %s", events[i].Type, events[i].Message)
				}
			},
		})

		log.Printf("tracking session %s at %s (mode=%s)", cfg.SessionID, cfg.ServerURL, client.Mode())
		client.Run(ctx)
		return nil
	})
}
