package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denet-labs/polygon-token-api/internal/config"
	"github.com/denet-labs/polygon-token-api/internal/db"
	"github.com/denet-labs/polygon-token-api/internal/eth"
	"github.com/denet-labs/polygon-token-api/internal/explorer"
	"github.com/denet-labs/polygon-token-api/internal/rpc"
	"github.com/denet-labs/polygon-token-api/internal/service"
	"github.com/denet-labs/polygon-token-api/pkg/tokens"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var Version = "dev" // Overridden by release build script

func init() {
	logger := zap.Must(zap.NewProduction())
	if config.Get().LogZapMode == "development" {
		logger = zap.Must(zap.NewDevelopment())
	}
	zap.ReplaceGlobals(logger)
}

func main() {
	cfg := config.Get()
	zap.L().Info("Starting polygon-token-api...",
		zap.String("Version", Version))

	// Main context: canceled when we want to stop normal operation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	contract, err := tokens.ParseAddress(cfg.TokenContractAddress)
	if err != nil {
		zap.L().Fatal("Invalid TOKEN_CONTRACT_ADDRESS", zap.Error(err))
	}

	client, err := eth.CreateEthClient()
	if err != nil {
		zap.L().Fatal("Failed to create Polygon client", zap.Error(err))
	}

	var ledger explorer.TransferLedger = explorer.NewClient(
		cfg.ExplorerApiUrl,
		cfg.ExplorerApiKey,
		explorer.WithTimeout(cfg.ExplorerTimeout),
		explorer.WithChainID(cfg.ExplorerChainId),
	)

	var cache *badger.DB
	if cfg.LedgerCacheTTL > 0 {
		cache, err = db.OpenBadger(cfg.LedgerCachePath)
		if err != nil {
			zap.L().Fatal("Failed to open ledger cache", zap.Error(err))
		}
		ledger = explorer.NewCachedLedger(ledger, cache, cfg.LedgerCacheTTL)
		zap.L().Info("Transfer history cache enabled",
			zap.String("path", cfg.LedgerCachePath),
			zap.Duration("ttl", cfg.LedgerCacheTTL))
	}

	reader := eth.NewTokenReader(client, contract)
	checkContract(ctx, reader)

	svc := service.NewTokenService(reader, ledger)
	zap.L().Info("Serving token", zap.String("contract", contract.Hex()))

	closeRpcServer := rpc.StartRPCServer(cfg.RPCPort, svc, ctx)

	// Catch up to two signals: first for graceful, second to force
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	doneCh := make(chan struct{})

	go func() {
		<-sigCh
		zap.L().Info("Received shutdown signal, initiating graceful shutdown...")

		// 1. Stop new requests on RPC
		closeRpcServer()

		// 2. Close the ledger cache
		if cache != nil {
			if err := cache.Close(); err != nil {
				zap.L().Warn("Error closing ledger cache", zap.Error(err))
			}
		}

		// 3. Close the Polygon client
		client.Close()

		// 4. Cancel main context, aborting in-flight upstream calls
		cancel()

		// 5. Signal that cleanup is done
		close(doneCh)

		// If a second signal arrives, force an immediate exit
		<-sigCh
		zap.L().Error("Received second signal, forcing shutdown")
		os.Exit(1)
	}()

	// Wait for graceful shutdown to finish releasing the cache and client
	<-doneCh

	zap.L().Info("Shutdown complete")
	_ = zap.L().Sync()
}

// checkContract warns when the configured address has no bytecode. The node
// being unreachable at start-up is not fatal.
func checkContract(ctx context.Context, reader *eth.TokenReader) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ok, err := reader.HasCode(ctx)
	if err != nil {
		zap.L().Warn("Could not verify token contract", zap.Error(err))
		return
	}
	if !ok {
		zap.L().Warn("No contract code at TOKEN_CONTRACT_ADDRESS", zap.String("contract", reader.Contract().Hex()))
	}
}
