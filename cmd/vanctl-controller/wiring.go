package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabricpilot/vanctl/internal/backbonelink"
	"github.com/fabricpilot/vanctl/internal/claim"
	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/compose"
	"github.com/fabricpilot/vanctl/internal/config"
	"github.com/fabricpilot/vanctl/internal/reconciler"
	"github.com/fabricpilot/vanctl/internal/statesync"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/syncbridge"
	"github.com/fabricpilot/vanctl/internal/transport"
	"github.com/fabricpilot/vanctl/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func runController(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	initLogging(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if configPath != "" {
		watcher := config.NewWatcher(configPath, 0)
		if err := watcher.Start(ctx, func(reloaded config.Config) {
			initLogging(reloaded)
		}); err != nil {
			logging.Warn("Controller", "configuration hot-reload disabled: %v", err)
		}
	}

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	coll, namespace, err := cluster.NewFromConfig(cfg.Cluster)
	if err != nil {
		return fmt.Errorf("building cluster collaborator: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := reconciler.NewMetrics(reg)

	// Provider reads the site_data rows "vanctl apps deploy" writes; the
	// controller daemon only needs the AppStateProvider side (below) to
	// surface them through the sync bridge, never the Build/Deploy side.
	provider := compose.NewProvider(st)
	bridge := syncbridge.New(st, coll, namespace, provider)
	engine := statesync.NewEngine(statesync.ClassManagement, cfg.ControllerName, bridge)
	bridge.SetEngine(engine)

	go watchClusterSecrets(ctx, coll, bridge)

	claimSrv := claim.New(st, coll, namespace, cfg.ClaimAddress)

	dial := dialBackbone(st, coll, namespace, cfg.ControllerName)
	linkMgr := backbonelink.NewManager(st, coll, dial, cfg.ControllerName)
	linkMgr.Subscribe(
		func(backboneID string, sess *transport.Session) {
			engine.AddConnection(backboneID, sess)
			claimSrv.AttachToSession(sess)
			attachSyncReceiver(sess, cfg.ManagementSyncAddress, engine, bridge)
			logging.Info("Controller", "attached claim/sync receivers for backbone %s", backboneID)
		},
		func(backboneID string) {
			engine.DeleteConnection(backboneID)
		},
	)

	mgr := reconciler.New(st, coll, namespace, bridge, claimSrv, metrics)
	mgr.Start(ctx)
	defer mgr.Stop()

	go linkMgr.Run(ctx)

	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux(reg),
	}
	go func() {
		logging.Info("Controller", "serving metrics on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Controller", err, "metrics server exited")
		}
	}()

	bundleSrv := &http.Server{
		Addr:    cfg.Bundle.Addr,
		Handler: bundleMux(st, coll, namespace, cfg.Bundle),
	}
	go func() {
		logging.Info("Controller", "serving site bundles on %s", cfg.Bundle.Addr)
		if err := bundleSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Controller", err, "bundle server exited")
		}
	}()

	<-ctx.Done()
	logging.Info("Controller", "shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	_ = bundleSrv.Shutdown(shutdownCtx)
	return nil
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func initLogging(cfg config.Config) {
	level := logging.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	format := logging.FormatText
	if cfg.LogFormat == "json" {
		format = logging.FormatJSON
	}
	logging.InitForCLI(level, os.Stderr, format)
}

// watchClusterSecrets pushes a fresh local-state hash to the sync engine as
// soon as the collaborator reports a Kubernetes Secret changed, so a TLS
// rotation reaches peers without waiting for their own heartbeat-driven
// pull (§4.7). Reconnects on a short backoff if the watch stream ends or
// errors, mirroring reconciler.Manager's runFinalizer.
func watchClusterSecrets(ctx context.Context, coll cluster.Collaborator, bridge *syncbridge.Bridge) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ch, err := coll.WatchSecrets(ctx)
		if err != nil {
			logging.Error("Controller", err, "starting secret watch")
		} else {
			for name := range ch {
				bridge.OnSecretChanged(ctx, name)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}
