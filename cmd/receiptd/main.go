package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/NoahSaso/cw-receipt/config"
	"github.com/NoahSaso/cw-receipt/core"
	"github.com/NoahSaso/cw-receipt/core/state"
	"github.com/NoahSaso/cw-receipt/observability/logging"
	"github.com/NoahSaso/cw-receipt/observability/metrics"
	"github.com/NoahSaso/cw-receipt/rpc"
	"github.com/NoahSaso/cw-receipt/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid config: %v", err))
	}

	logger := logging.Setup("receiptd", cfg.Env, cfg.LogFile)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node, err := core.NewNode(state.NewManager(db))
	if err != nil {
		logger.Error("Failed to start node", slog.Any("error", err))
		os.Exit(1)
	}

	if err := seedGenesis(node, cfg, logger); err != nil {
		logger.Error("Failed to seed genesis", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(node, rpc.ServerConfig{
		AuthToken:          cfg.RPCAuthToken,
		RateLimitPerMinute: cfg.RPCRateLimit,
		Logger:             logger,
		Metrics:            metrics.Default(),
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc server listening", slog.String("address", cfg.ListenAddress))
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// seedGenesis instantiates the ledger on first boot. A node restarted over an
// existing data directory ignores the genesis section entirely.
func seedGenesis(node *core.Node, cfg *config.Config, logger *slog.Logger) error {
	initialized, err := node.Initialized()
	if err != nil {
		return err
	}
	if initialized {
		return nil
	}

	owner, output, ok, err := cfg.GenesisAddresses()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("data directory is empty and no genesis output is configured")
	}
	if err := node.Instantiate(owner, output); err != nil {
		return err
	}
	logger.Info("ledger initialized",
		slog.String("output", output.String()),
		slog.Bool("ownerless", owner == nil),
	)
	return nil
}
