package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"swapguard/config"
	"swapguard/core/events"
	"swapguard/core/state"
	"swapguard/crypto"
	"swapguard/integrations/venue"
	"swapguard/native/access"
	"swapguard/native/audit"
	"swapguard/native/twap"
	"swapguard/observability/logging"
	sgotel "swapguard/observability/otel"
	"swapguard/rpc"
	"swapguard/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "DEV ONLY: run against an in-memory database")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := setupLogging(cfg)

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = leveldb
	}
	defer db.Close()

	shutdownTelemetry := func(context.Context) error { return nil }
	if cfg.Telemetry.Enabled {
		shutdown, err := sgotel.Init(context.Background(), sgotel.Config{
			ServiceName: "swapguardd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     sgotel.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		shutdownTelemetry = shutdown
	}

	manager := state.NewManager(db)
	registry := access.NewRegistry(manager)

	if err := seedGenesis(manager, registry, cfg, logger); err != nil {
		logger.Error("Failed to seed genesis state", slog.Any("error", err))
		os.Exit(1)
	}

	// Module events are buffered here and drained through events_list.
	feed := events.NewRecorder()
	registry.SetEmitter(feed)

	auditor := audit.NewEngine()
	auditor.SetState(manager)
	auditor.SetAccess(registry)
	auditor.SetPauses(registry)
	auditor.SetTokenLedger(manager)
	auditor.SetEmitter(feed)

	exchange, err := venue.NewFixedRate(manager, cfg.Genesis.VenueRateBps)
	if err != nil {
		logger.Error("Failed to construct venue", slog.Any("error", err))
		os.Exit(1)
	}

	orders := twap.NewEngine()
	orders.SetState(manager)
	orders.SetTokenLedger(manager)
	orders.SetExchange(exchange)
	orders.SetAccess(registry)
	orders.SetPauses(registry)
	orders.SetEmitter(feed)
	orders.SetExecutionInterval(time.Duration(cfg.Twap.IntervalSeconds) * time.Second)
	if err := orders.SetExecutorFeeBps(cfg.Twap.ExecutorFeeBps); err != nil {
		logger.Error("Failed to configure executor fee", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(manager, auditor, orders, registry, logger)
	server.SetEventFeed(feed)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("RPC server stopped", slog.Any("error", err))
	case sig := <-sigCh:
		logger.Info("Shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("Telemetry shutdown failed", slog.Any("error", err))
	}
	if err := manager.Commit(); err != nil {
		logger.Error("Final state flush failed", slog.Any("error", err))
	}
}

func setupLogging(cfg *config.Config) *slog.Logger {
	if path := strings.TrimSpace(cfg.LogPath); path != "" {
		writer := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		return logging.SetupWithWriter("swapguardd", cfg.Environment, writer)
	}
	return logging.Setup("swapguardd", cfg.Environment)
}

// seedGenesis initialises access control, token metadata and opening balances
// on first boot. Reruns are no-ops once an owner exists.
func seedGenesis(manager *state.Manager, registry *access.Registry, cfg *config.Config, logger *slog.Logger) error {
	_, initialised, err := registry.Owner()
	if err != nil {
		return err
	}
	if initialised {
		return nil
	}
	ownerRaw := strings.TrimSpace(cfg.Genesis.Owner)
	if ownerRaw == "" {
		logger.Warn("No genesis owner configured; administrative methods stay locked until one is seeded")
		return nil
	}
	owner, err := crypto.MustAddressBytes(ownerRaw)
	if err != nil {
		return fmt.Errorf("decode genesis owner: %w", err)
	}
	if err := registry.Initialize(owner); err != nil {
		return err
	}
	for _, caller := range cfg.Genesis.TrustedCallers {
		addr, err := crypto.MustAddressBytes(caller)
		if err != nil {
			return fmt.Errorf("decode trusted caller %q: %w", caller, err)
		}
		if err := registry.SetTrustedCaller(owner, addr, true); err != nil {
			return err
		}
	}
	for _, token := range cfg.Genesis.Tokens {
		addr, err := crypto.MustAddressBytes(token.Address)
		if err != nil {
			return fmt.Errorf("decode token %q: %w", token.Address, err)
		}
		info := state.TokenInfo{Symbol: token.Symbol, Name: token.Name, Decimals: token.Decimals}
		if err := manager.RegisterToken(addr, info); err != nil {
			return err
		}
	}
	for _, fund := range cfg.Genesis.Balances {
		if err := mintFund(manager, fund, [20]byte{}); err != nil {
			return err
		}
	}
	for _, fund := range cfg.Genesis.VenueLiquidity {
		if err := mintFund(manager, fund, venue.LiquidityAddress()); err != nil {
			return err
		}
	}

	auditor := audit.NewEngine()
	auditor.SetState(manager)
	auditor.SetAccess(registry)
	auditor.SetPauses(registry)
	auditor.SetTokenLedger(manager)
	if err := auditor.SetDefaultThreshold(owner, cfg.Audit.DefaultThresholdBps); err != nil {
		return err
	}

	if err := manager.Commit(); err != nil {
		return err
	}
	logger.Info("Genesis state seeded",
		slog.String("owner", ownerRaw),
		slog.Int("trustedCallers", len(cfg.Genesis.TrustedCallers)),
		slog.Int("tokens", len(cfg.Genesis.Tokens)))
	return nil
}

func mintFund(manager *state.Manager, fund config.GenesisFund, fallback [20]byte) error {
	token, err := crypto.MustAddressBytes(fund.Token)
	if err != nil {
		return fmt.Errorf("decode fund token %q: %w", fund.Token, err)
	}
	account := fallback
	if trimmed := strings.TrimSpace(fund.Account); trimmed != "" {
		account, err = crypto.MustAddressBytes(trimmed)
		if err != nil {
			return fmt.Errorf("decode fund account %q: %w", fund.Account, err)
		}
	}
	if account == ([20]byte{}) {
		return fmt.Errorf("fund account required for token %s", fund.Token)
	}
	amount, err := fund.ParsedAmount()
	if err != nil {
		return err
	}
	return manager.Mint(token, account, amount)
}
