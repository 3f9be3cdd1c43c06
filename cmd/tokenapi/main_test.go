package main

import (
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/denet-labs/polygon-token-api/internal/config"
	"github.com/denet-labs/polygon-token-api/internal/db"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestServiceStartAndStop runs main() against a stubbed configuration, then sends
// SIGTERM and expects a graceful shutdown.
func TestServiceStartAndStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cachePath := t.TempDir() + "/ledger"

	oldGet := config.Get
	defer func() { config.Get = oldGet }()
	config.Get = func() config.Config {
		return config.Config{
			LogZapMode:           "development",
			RPCPort:              port,
			PolygonNodeUrl:       "http://127.0.0.1:1",
			TokenContractAddress: "0x1a9b54a3075119f1546c52ca0940551a6ce5d2d0",
			ExplorerApiUrl:       "http://127.0.0.1:1/api",
			ExplorerTimeout:      time.Second,
			LedgerCacheTTL:       time.Minute,
			LedgerCachePath:      cachePath,
		}
	}

	core, recorded := observer.New(zap.InfoLevel)
	oldLogger := zap.L()
	zap.ReplaceGlobals(zap.New(core))
	defer zap.ReplaceGlobals(oldLogger)

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	// Give main() enough time to register its signal handler
	time.Sleep(300 * time.Millisecond)

	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("failed to find our own process: %v", err)
	}
	_ = proc.Signal(syscall.SIGTERM)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("main() did not exit after sending SIGTERM")
	}

	// The cache directory lock is released only once main() closed badger
	reopened, err := db.OpenBadger(cachePath)
	if err != nil {
		t.Fatalf("ledger cache was not closed on shutdown: %v", err)
	}
	reopened.Close()

	for _, msg := range []string{
		"Starting polygon-token-api...",
		"Transfer history cache enabled",
		"Starting RPC server on port",
		"Received shutdown signal, initiating graceful shutdown...",
		"Shutdown complete",
	} {
		if recorded.FilterMessage(msg).Len() == 0 {
			t.Errorf("expected log %q, not found", msg)
		}
	}
}
