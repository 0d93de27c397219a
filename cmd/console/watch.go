package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/logger"
	"checkin-sync/internal/roster"
	"checkin-sync/internal/transport"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func watchCommand() *cobra.Command {
	var query, metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live member list",
		Long: "Follow the live member list over the push channel. Type 'r' and Enter to " +
			"reconnect after the station gave up, 'q' to quit.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromContext(cmd.Context())
			if cfg == nil {
				return fmt.Errorf("no config found in context")
			}
			s := newStation(cfg)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := s.login(ctx); err != nil {
				return err
			}
			if metricsAddr != "" {
				srv := serveMetrics(metricsAddr, s)
				defer srv.Close()
			}
			return watchRun(ctx, cancel, s, query)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "only show members matching this text")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve station metrics on this address, e.g. :9101")
	return cmd
}

func watchRun(ctx context.Context, cancel context.CancelFunc, s *station, query string) error {
	t := s.transport
	t.OnStatus(func(status transport.Status) {
		fmt.Fprintf(os.Stdout, "-- %s %s\n", status, t.ActiveTransport())
	})
	t.OnNotice(func(n transport.Notice) {
		switch n.Kind {
		case transport.NoticePersistentFailure:
			fmt.Fprintf(os.Stdout, "-- %s; type 'r' to reconnect\n", n.Message)
		default:
			fmt.Fprintf(os.Stdout, "-- %s\n", n.Message)
		}
	})

	subID, changes := s.roster.Subscribe()
	defer s.roster.Unsubscribe(subID)

	go readCommands(cancel, t)

	t.Start(ctx)
	defer t.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-changes:
			render(os.Stdout, s.roster, drain(changes, c), query)
		}
	}
}

// drain collects the changes already queued behind first.
func drain(changes <-chan roster.Change, first roster.Change) []roster.Change {
	batch := []roster.Change{first}
	for {
		select {
		case c := <-changes:
			batch = append(batch, c)
		default:
			return batch
		}
	}
}

// render announces the batch and reprints the whole filtered list from the
// roster, so notifications dropped on a full queue never leave it stale.
func render(w io.Writer, r *roster.Store, batch []roster.Change, query string) {
	for _, c := range batch {
		switch c.Kind {
		case roster.ChangeUpsert:
			if m, ok := r.Get(c.ID); ok && len(roster.Filter([]domain.Member{m}, query)) > 0 {
				printMember(w, "Changed", &m)
			}
		case roster.ChangeRemoval:
			fmt.Fprintf(w, "Removed member %d\n", c.ID)
		}
	}
	printMembers(w, roster.Filter(r.Read(), query))
}

func readCommands(cancel context.CancelFunc, t *transport.Transport) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "r":
			logger.Info("Reconnect requested")
			t.Reconnect()
		case "q":
			cancel()
			return
		}
	}
}

func serveMetrics(addr string, s *station) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "address", addr, "error", err)
		}
	}()
	return srv
}
