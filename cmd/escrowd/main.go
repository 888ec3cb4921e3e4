package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"escrowd/config"
	"escrowd/crypto"
	"escrowd/escrow"
	"escrowd/gateway"
	"escrowd/gateway/middleware"
	"escrowd/observability"
	"escrowd/observability/logging"
	"escrowd/rpc"
	"escrowd/state"
	"escrowd/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ESCROWD_ENV"))
	logger := logging.Setup("escrowd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	st := state.NewEscrowState(db)
	if cfg.SeedFile != "" {
		if err := seedAccounts(st, cfg.SeedFile); err != nil {
			logger.Error("Failed to seed accounts", slog.Any("error", err))
			os.Exit(1)
		}
	}

	engine := escrow.NewEngine(st)
	engine.SetEmitter(observability.NewLogEmitter(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rpcServer := rpc.NewServer(engine, st)
	gatewayHandler := gateway.New(gateway.Config{
		Engine:      engine,
		State:       st,
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimit{RequestsPerMinute: cfg.RateLimitPerMinute, Burst: 20}),
		Obs:         middleware.NewObservability(),
	})

	errCh := make(chan error, 2)
	go func() {
		logger.Info("Starting JSON-RPC server", slog.String("addr", cfg.RPCAddress))
		errCh <- rpcServer.Start(ctx, cfg.RPCAddress)
	}()
	go func() {
		logger.Info("Starting gateway", slog.String("addr", cfg.GatewayAddress))
		errCh <- serveHandler(ctx, cfg.GatewayAddress, gatewayHandler)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", slog.Any("error", err))
			stop()
			os.Exit(1)
		}
	}
}

func serveHandler(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// seedAccounts mints the balances listed in a JSON file of bech32 address to
// amount. Accounts that already hold funds are left alone, so restarting the
// daemon never double-mints.
func seedAccounts(st *state.EscrowState, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seeds map[string]uint64
	if err := json.Unmarshal(data, &seeds); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	for addrStr, amount := range seeds {
		addr, err := crypto.DecodeAddress(addrStr)
		if err != nil {
			return fmt.Errorf("seed account %q: %w", addrStr, err)
		}
		balance, err := st.AccountBalance(addr.Raw())
		if err != nil {
			return err
		}
		if balance > 0 {
			continue
		}
		if err := st.Mint(addr.Raw(), amount); err != nil {
			return err
		}
	}
	return nil
}
