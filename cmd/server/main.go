package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgossip/discovery"
	"github.com/ryandielhenn/zephyrgossip/internal/config"
	"github.com/ryandielhenn/zephyrgossip/internal/producer"
	"github.com/ryandielhenn/zephyrgossip/internal/telemetry"
	"github.com/ryandielhenn/zephyrgossip/pkg/admin"
	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
)

// Set with -ldflags "-X main.version=... -X main.gitSHA=...".
var (
	version = "dev"
	gitSHA  = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "zephyrgossip:", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Parse flags and environment
	cfg, usage, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		fmt.Println(usage)
		return nil
	}
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.LogDev)
	if err != nil {
		return err
	}
	defer log.Sync()
	telemetry.SetBuildInfo(version, gitSHA)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Optionally extend the static peer list from etcd
	if len(cfg.EtcdEndpoints) > 0 {
		extra, err := loadEtcdPeers(ctx, cfg)
		if err != nil {
			return err
		}
		log.Info("[Boot] loaded peers from etcd", zap.Strings("peers", extra))
		cfg.Peers = append(cfg.Peers, extra...)
	}

	// 3. Bind the node and start receiving
	node, err := gossip.New(cfg.Gossip(), gossip.WithLogger(log))
	if err != nil {
		return err
	}
	defer node.Close()
	if err := node.Start(ctx); err != nil {
		return err
	}
	log.Info("[Boot] gossip node listening",
		zap.Uint64("id", node.ID()),
		zap.Stringer("addr", node.LocalAddr()),
		zap.Strings("peers", node.Peers()))

	prod := producer.New(node, log)

	// 4. Admin HTTP endpoints
	if cfg.Admin != "" {
		srv := &http.Server{
			Addr:              cfg.Admin,
			Handler:           admin.NewServer(node, prod, log).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("[Boot] admin listening", zap.String("addr", cfg.Admin))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("admin server", zap.Error(err))
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// 5. Broadcast stdin; keep relaying after EOF until signalled
	go func() {
		if err := prod.Run(ctx, os.Stdin, cfg.FramingMode()); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("stdin producer stopped", zap.Error(err))
			return
		}
		log.Info("stdin closed; relaying until signalled", zap.Uint64("last_seq", prod.Seq()))
	}()

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadEtcdPeers(ctx context.Context, cfg *config.Config) ([]string, error) {
	cli, err := discovery.NewClient(cfg.EtcdEndpoints)
	if err != nil {
		return nil, fmt.Errorf("etcd client: %w", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	peers, err := discovery.LoadPeers(ctx, cli, cfg.EtcdPrefix)
	if err != nil {
		return nil, err
	}
	return config.NormalizePeers(discovery.Addrs(peers, fmt.Sprint(cfg.ID)), cfg.DefaultPort)
}
