package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/libp2p/go-libp2p"
	"github.com/spf13/cobra"

	"github.com/hedeqiang/telreg"
	"github.com/hedeqiang/telreg/broadcast"
	"github.com/hedeqiang/telreg/capability"
	"github.com/hedeqiang/telreg/internal/config"
	"github.com/hedeqiang/telreg/internal/server"
	"github.com/hedeqiang/telreg/middleware"
	"github.com/hedeqiang/telreg/transport"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registry server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().String("listen-addr", "", "Address to serve HTTP and WebSocket on")
	cmd.Flags().Duration("write-timeout", 0, "Timeout for a single push to a remote listener")
	cmd.Flags().Int("outbox-size", 0, "Pushes queued per remote listener before it is dropped")
	cmd.Flags().String("sticky-store", "", "Where sticky announcements are kept (memory|file|sqlite)")
	cmd.Flags().String("sticky-path", "", "Path of the file or sqlite sticky store")
	cmd.Flags().Int("sticky-failure-threshold", 0, "Store failures before sticky announcements fall back to memory")
	cmd.Flags().Duration("sticky-retry-after", 0, "How long the sticky store stays switched off after failing")
	cmd.Flags().Bool("gossip-enabled", false, "Publish announcements over libp2p gossipsub")
	cmd.Flags().StringSlice("gossip-listen", nil, "libp2p listen multiaddrs")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	store, closeStore, err := openStickyStore(cfg.Sticky)
	if err != nil {
		return err
	}
	defer closeStore()

	sticky := broadcast.NewSticky(store)
	sink := broadcast.NewMulti(sticky)

	if cfg.Gossip.Enabled {
		h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.Gossip.Listen...))
		if err != nil {
			return fmt.Errorf("start libp2p host: %w", err)
		}
		defer h.Close()

		g, err := broadcast.NewGossip(ctx, h, cfg.Gossip.Topic)
		if err != nil {
			return err
		}
		defer g.Close()
		sink.Add(g)
		log.Infof("gossip peer %s listening on %v", h.ID(), h.Addrs())
	}

	checker, err := capability.NewTokens(map[capability.Permission][]string{
		capability.Dump:           cfg.Tokens.Dump,
		capability.CoarseLocation: cfg.Tokens.Location,
	})
	if err != nil {
		return err
	}

	metrics := middleware.NewMetrics()
	reg := telreg.New(
		telreg.WithSink(sink),
		telreg.WithChecker(checker),
		telreg.WithMiddleware(metrics, middleware.NewLogger(nil, "registry")),
		telreg.WithLogLevel(cfg.LogLevel),
	)
	defer reg.Close()

	srv := server.New(server.Config{
		Registry: reg,
		Sticky:   sticky,
		Metrics:  metrics,
		Addr:     cfg.ListenAddr,
		Session: transport.SessionConfig{
			OutboxSize:   cfg.OutboxSize,
			WriteTimeout: cfg.WriteTimeout,
		},
	})
	return srv.Serve(ctx)
}

// openStickyStore builds the configured store and a function releasing it.
func openStickyStore(c config.StickyConfig) (broadcast.Store, func(), error) {
	switch c.Store {
	case "file":
		return broadcast.Guard(broadcast.NewFileStore(c.Path), c.FailureThreshold, c.RetryAfter), func() {}, nil
	case "sqlite":
		s, err := broadcast.OpenSQLStore(c.Path)
		if err != nil {
			return nil, nil, err
		}
		return broadcast.Guard(s, c.FailureThreshold, c.RetryAfter), closer(s), nil
	default:
		return broadcast.NewMemoryStore(), func() {}, nil
	}
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Warnf("close: %v", err)
		}
	}
}
