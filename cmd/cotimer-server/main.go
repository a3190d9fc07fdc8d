package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cotimer/server/internal/broker"
	"github.com/cotimer/server/internal/config"
	"github.com/cotimer/server/internal/httpapi"
	"github.com/cotimer/server/internal/logging"
	"github.com/cotimer/server/internal/metrics"
	"github.com/cotimer/server/internal/session"
	"github.com/cotimer/server/internal/transport"
)

const shutdownTimeout = 30 * time.Second

// Set at build time via -ldflags.
var (
	version = "0.1.0"
	commit  = "none"
	date    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cotimer-server",
	Short: "Collaborative interval timer broker",
	Long: `cotimer-server keeps shared timer sessions in sync. Clients join a
session over WebSocket and every interval, timer, and profile change is
relayed to the rest of the room.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cotimer-server %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches /etc/cotimer and the working directory)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Validate()

	var logOut io.Writer = os.Stdout
	if !cfg.LogEnabled {
		logOut = io.Discard
	}
	logging.Init(cfg.LogFormat(), cfg.LogLevel, logOut)
	log := logging.L("main")

	log.Info("starting cotimer-server",
		"version", version,
		"env", cfg.Env,
		"httpAddr", cfg.HTTPAddr(),
		"wsAddr", cfg.WSAddr(),
	)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	store := session.NewStore()
	b := broker.New(store, collector, nil, time.Duration(cfg.CleanupIntervalMS)*time.Millisecond)
	ws := transport.NewHandler(b, collector)
	api := httpapi.NewServer(store, ws, b.Health(), registry)

	stopCleanup := make(chan struct{})
	go b.Run(stopCleanup)

	// With distinct ports the WebSocket endpoint gets its own listener;
	// otherwise /ws is mounted on the API router.
	split := cfg.SplitListeners()
	servers := []*http.Server{{Addr: cfg.HTTPAddr(), Handler: api.Routes(!split)}}
	if split {
		servers = append(servers, &http.Server{Addr: cfg.WSAddr(), Handler: api.WSRoutes()})
	}

	listenErr := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			log.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				listenErr <- fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
	case runErr = <-listenErr:
		log.Error("listener failed", logging.KeyError, runErr)
	}

	close(stopCleanup)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := ws.Shutdown(ctx); err != nil {
		log.Warn("websocket shutdown", logging.KeyError, err)
	}
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("http shutdown", "addr", srv.Addr, logging.KeyError, err)
		}
	}

	log.Info("stopped")
	return runErr
}
