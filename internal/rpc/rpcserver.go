package rpc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/denet-labs/polygon-token-api/internal/rpc/handlers"
	"go.uber.org/zap"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func StartRPCServer(port int, api handlers.TokenAPI, ctx context.Context) func() {
	zap.L().Info("Starting RPC server on port", zap.Int("port", port))
	mux := http.NewServeMux()

	handlers.SetupHandlers(mux, handlers.MethodHandlers{
		"/status/": {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.StatusGetHandler(r, api)
			},
		},
		"/get_balance/": {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.BalanceGetHandler(r, api)
			},
		},
		"/get_balance_batch/": {
			handlers.HTTP_POST: func(r *http.Request) (any, error) {
				return handlers.BalanceBatchPostHandler(r, api)
			},
		},
		"/get_top_holders/": {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.TopHoldersGetHandler(r, api)
			},
		},
		"/get_top_holders_with_transactions/": {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.TopHoldersWithTransactionsGetHandler(r, api)
			},
		},
		"/get_token_info/": {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.TokenInfoGetHandler(r, api)
			},
		},
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				zap.L().Info("RPC server closed")
			} else {
				zap.L().Fatal("starting RPC server failed", zap.Error(err))
			}
		}
	}()
	closeFunc := func() {
		zap.L().Info("Closing RPC server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("server shutdown failed", zap.Error(err))
		}
	}
	return closeFunc
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{w, http.StatusOK}
		next.ServeHTTP(rw, r)

		zap.L().Info("Request",
			zap.String("ip", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
