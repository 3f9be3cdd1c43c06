package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/denet-labs/polygon-token-api/pkg/tokens"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testContract = common.HexToAddress("0x1a9b54a3075119f1546c52ca0940551a6ce5d2d0")

type stubAPI struct {
	metadataErr error
}

func (s *stubAPI) Contract() common.Address { return testContract }

func (s *stubAPI) GetBalance(ctx context.Context, address string) (float64, error) {
	if _, err := tokens.ParseAddress(address); err != nil {
		return 0, err
	}
	return 12.5, nil
}

func (s *stubAPI) GetBalancesBatch(ctx context.Context, addresses []string) ([]float64, error) {
	if _, err := tokens.ParseAddresses(addresses); err != nil {
		return nil, err
	}
	return make([]float64, len(addresses)), nil
}

func (s *stubAPI) GetTopHolders(ctx context.Context, n int) ([]tokens.Holder, error) {
	return []tokens.Holder{{Address: testContract.Hex(), Balance: 1}}, nil
}

func (s *stubAPI) GetTopHoldersWithActivity(ctx context.Context, n int) ([]tokens.HolderActivity, error) {
	return []tokens.HolderActivity{{Holder: tokens.Holder{Address: testContract.Hex(), Balance: 1}}}, nil
}

func (s *stubAPI) GetTokenMetadata(ctx context.Context) (tokens.TokenMetadata, error) {
	if s.metadataErr != nil {
		return tokens.TokenMetadata{}, s.metadataErr
	}
	return tokens.TokenMetadata{Name: "DeNet File Token", Symbol: "DE", TotalSupply: 1}, nil
}

func startTestServer(t *testing.T, api *stubAPI) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	closeFunc := StartRPCServer(port, api, ctx)
	t.Cleanup(closeFunc)

	// Give server some time to start
	time.Sleep(100 * time.Millisecond)
	return port
}

func TestStartRPCServer_StartAndClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	closeFunc := StartRPCServer(port, &stubAPI{}, ctx)

	time.Sleep(100 * time.Millisecond)

	url := fmt.Sprintf("http://127.0.0.1:%d/status/", port)
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(bodyBytes), `"status":"OK"`)

	start := time.Now()
	closeFunc()
	elapsed := time.Since(start)
	require.Less(t, elapsed, 5*time.Second, "server shutdown took too long")

	// Confirm server is closed
	time.Sleep(100 * time.Millisecond)
	_, err = http.Get(url)
	require.Error(t, err, "expected error after server shutdown, got none")
}

func TestStartRPCServer_InvalidRoute(t *testing.T) {
	port := startTestServer(t, &stubAPI{})

	url := fmt.Sprintf("http://127.0.0.1:%d/invalid-route", port)
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartRPCServer_TokenEndpoints(t *testing.T) {
	port := startTestServer(t, &stubAPI{})

	checkResponse(t, port, "status/", http.StatusOK, `"contract":"`+testContract.Hex()+`"`)
	checkResponse(t, port, "get_balance/?address="+testContract.Hex(), http.StatusOK, `{"balance":12.5}`)
	checkResponse(t, port, "get_balance/?address=0xnothex", http.StatusBadRequest, `"error":"invalid address`)
	checkResponse(t, port, "get_balance/", http.StatusBadRequest, "address is required")
	checkResponse(t, port, "get_top_holders/?n=1", http.StatusOK, `"top_holders":[`)
	checkResponse(t, port, "get_top_holders/?n=x", http.StatusBadRequest, "must be an integer")
	checkResponse(t, port, "get_top_holders_with_transactions/", http.StatusOK, `"last_transaction_date":null`)
	checkResponse(t, port, "get_token_info/", http.StatusOK, `"symbol":"DE"`)
}

func TestStartRPCServer_BalanceBatch(t *testing.T) {
	port := startTestServer(t, &stubAPI{})
	url := fmt.Sprintf("http://127.0.0.1:%d/get_balance_batch/", port)

	resp, err := http.Post(url, "application/json", strings.NewReader(`{"addresses":["`+testContract.Hex()+`"]}`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"balances":[0]}`, string(body))

	resp, err = http.Post(url, "application/json", strings.NewReader(`{"addresses":["0x1", "`+testContract.Hex()+`"]}`))
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body), "address #0")

	resp, err = http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStartRPCServer_UpstreamFailure(t *testing.T) {
	port := startTestServer(t, &stubAPI{
		metadataErr: fmt.Errorf("%w: %w", tokens.ErrMetadataFetch, errors.New("connection refused")),
	})

	checkResponse(t, port, "get_token_info/", http.StatusBadRequest, "failed to fetch token metadata: connection refused")
}

func TestResponseWriter_StatusCodeCapture(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	testLogger := zap.New(core)
	originalLogger := zap.L()
	zap.ReplaceGlobals(testLogger)
	defer zap.ReplaceGlobals(originalLogger)

	port := startTestServer(t, &stubAPI{})

	url := fmt.Sprintf("http://127.0.0.1:%d/get_balance/?address=bad", port)
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)

	foundStatusLog := false
	foundIPLog := false
	foundMethodLog := false
	foundPathLog := false

	for _, entry := range logs.All() {
		if entry.Message == "Request" {
			for _, f := range entry.Context {
				switch f.Key {
				case "status":
					if f.Integer == int64(http.StatusBadRequest) {
						foundStatusLog = true
					}
				case "ip":
					if f.String != "" {
						foundIPLog = true
					}
				case "method":
					if f.String == http.MethodGet {
						foundMethodLog = true
					}
				case "path":
					if f.String == "/get_balance/" {
						foundPathLog = true
					}
				}
			}
		}
	}
	if !foundStatusLog || !foundIPLog || !foundMethodLog || !foundPathLog {
		t.Errorf("did not find expected log fields: status, ip, method, path")
	}
}

func TestServer_ConcurrentRequests(t *testing.T) {
	port := startTestServer(t, &stubAPI{})

	url := fmt.Sprintf("http://127.0.0.1:%d/get_token_info/", port)

	const numRequests = 10
	errChan := make(chan error, numRequests)

	for i := 0; i < numRequests; i++ {
		go func() {
			resp, err := http.Get(url)
			if err != nil {
				errChan <- fmt.Errorf("failed to connect: %v", err)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				errChan <- fmt.Errorf("expected 200, got %d", resp.StatusCode)
				return
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				errChan <- fmt.Errorf("failed to read body: %v", err)
				return
			}
			if len(body) == 0 {
				errChan <- fmt.Errorf("expected non-empty body")
				return
			}
			errChan <- nil
		}()
	}

	for i := 0; i < numRequests; i++ {
		require.NoError(t, <-errChan)
	}
}

func checkResponse(t *testing.T, port int, path string, expectedStatusCode int, expectedSnippet string) {
	t.Helper()
	url := fmt.Sprintf("http://127.0.0.1:%d/%s", port, path)

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, expectedStatusCode, resp.StatusCode, url)

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)
	require.Contains(t, string(body), expectedSnippet, "unexpected response from "+url)
}
