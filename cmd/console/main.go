package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkin-sync/internal/config"
	"checkin-sync/internal/logger"
	"checkin-sync/internal/roster"
	"checkin-sync/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const programName = "checkin-console"

var (
	globalFlags = struct {
		debug   bool
		baseURL string
	}{}
	configFile string
)

type configKey struct{}

func configFromContext(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(configKey{}).(*config.Config)
	return cfg
}

// station is the roster and transport of one staff station.
type station struct {
	cfg       *config.Config
	roster    *roster.Store
	transport *transport.Transport
	registry  *prometheus.Registry
}

func newStation(cfg *config.Config) *station {
	var opts []roster.Option
	if cfg.Client.StaleGuard {
		opts = append(opts, roster.WithStaleGuard())
	}
	store := roster.New(opts...)

	client := transport.NewClient(cfg.Client.BaseURL, cfg.Client.RequestTimeout())
	var dialers []transport.Dialer
	for _, name := range cfg.Client.Transports {
		switch name {
		case config.TransportWebsocket:
			dialers = append(dialers, transport.NewWebsocketDialer(client))
		case config.TransportPolling:
			dialers = append(dialers, transport.NewPollingDialer(client, cfg.Client.PollTimeout()))
		}
	}

	registry := prometheus.NewRegistry()
	t := transport.New(client, store, dialers,
		transport.WithMaxAttempts(cfg.Client.MaxReconnectAttempts),
		transport.WithBackoff(transport.Backoff{Min: cfg.Client.BackoffMin(), Max: cfg.Client.BackoffMax()}),
		transport.WithMetrics(registry),
	)
	return &station{cfg: cfg, roster: store, transport: t, registry: registry}
}

// login authenticates when credentials are configured. Stations without
// credentials work against a server that does not enforce tokens.
func (s *station) login(ctx context.Context) error {
	if s.cfg.Client.Username == "" {
		return nil
	}
	user, err := s.transport.Client().Login(ctx, s.cfg.Client.Username, s.cfg.Client.Password)
	if err != nil {
		return fmt.Errorf("login as %s: %w", s.cfg.Client.Username, err)
	}
	logger.Debug("Logged in", "username", user.Username)
	return nil
}

// stationRun loads the station, logs in and runs fn with a request timeout.
func stationRun(cmd *cobra.Command, fn func(ctx context.Context, s *station) error) error {
	cfg := configFromContext(cmd.Context())
	if cfg == nil {
		return fmt.Errorf("no config found in context")
	}
	s := newStation(cfg)
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	if err := s.login(ctx); err != nil {
		return err
	}
	return fn(ctx, s)
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Staff station for the event check-in desk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "config/console.dev.yaml", "path to config file")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.baseURL, "server", "", "member service base URL, overrides client.base_url")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if globalFlags.baseURL != "" {
			cfg.Client.BaseURL = globalFlags.baseURL
			if err := cfg.ValidateClient(); err != nil {
				return err
			}
		}
		level := cfg.Log.Level
		if globalFlags.debug {
			level = "debug"
		}
		// Output goes to stdout, logs to stderr.
		logger.InitializeWriter(os.Stderr, level, cfg.Log.Format)

		cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
		return nil
	}

	// Subcommands
	rootCmd.AddCommand(watchCommand())
	rootCmd.AddCommand(listCommand())
	rootCmd.AddCommand(addCommand())
	rootCmd.AddCommand(editCommand())
	rootCmd.AddCommand(deleteCommand())
	rootCmd.AddCommand(checkinCommand())
	rootCmd.AddCommand(stateCommand())
	rootCmd.AddCommand(interviewsCommand())
	rootCmd.AddCommand(importCommand())
	rootCmd.AddCommand(registerCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
