package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/denet-labs/polygon-token-api/pkg/tokens"
	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultTopHolders   = 5
	lastTransactionTime = "2006-01-02 15:04:05"
	maxRequestBodyBytes = 1 << 20
)

// TokenAPI is implemented by service.TokenService.
type TokenAPI interface {
	Contract() common.Address
	GetBalance(ctx context.Context, address string) (float64, error)
	GetBalancesBatch(ctx context.Context, addresses []string) ([]float64, error)
	GetTopHolders(ctx context.Context, n int) ([]tokens.Holder, error)
	GetTopHoldersWithActivity(ctx context.Context, n int) ([]tokens.HolderActivity, error)
	GetTokenMetadata(ctx context.Context) (tokens.TokenMetadata, error)
}

type StatusResponse struct {
	Status   string `json:"status"`
	Contract string `json:"contract"`
}

type BalanceResponse struct {
	Balance float64 `json:"balance"`
}

type BalanceBatchRequest struct {
	Addresses []string `json:"addresses"`
}

type BalanceBatchResponse struct {
	Balances []float64 `json:"balances"`
}

type TopHoldersResponse struct {
	TopHolders []tokens.Holder `json:"top_holders"`
}

type TopHolderWithTransaction struct {
	Address             string  `json:"address"`
	Balance             float64 `json:"balance"`
	LastTransactionDate *string `json:"last_transaction_date"`
}

type TopHoldersWithTransactionsResponse struct {
	TopHolders []TopHolderWithTransaction `json:"top_holders"`
}

func StatusGetHandler(r *http.Request, api TokenAPI) (StatusResponse, error) {
	return StatusResponse{Status: "OK", Contract: api.Contract().Hex()}, nil
}

func BalanceGetHandler(r *http.Request, api TokenAPI) (BalanceResponse, error) {
	address := r.URL.Query().Get("address")
	if address == "" {
		return BalanceResponse{}, fmt.Errorf("%w: address is required", tokens.ErrInvalidAddress)
	}
	balance, err := api.GetBalance(r.Context(), address)
	if err != nil {
		return BalanceResponse{}, err
	}
	return BalanceResponse{Balance: balance}, nil
}

func BalanceBatchPostHandler(r *http.Request, api TokenAPI) (BalanceBatchResponse, error) {
	var req BalanceBatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return BalanceBatchResponse{}, errors.New("'addresses' field is required")
		}
		return BalanceBatchResponse{}, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Addresses == nil {
		return BalanceBatchResponse{}, errors.New("'addresses' field is required")
	}
	if len(req.Addresses) == 0 {
		return BalanceBatchResponse{}, fmt.Errorf("%w: 'addresses' must not be empty", tokens.ErrEmptyInput)
	}
	balances, err := api.GetBalancesBatch(r.Context(), req.Addresses)
	if err != nil {
		return BalanceBatchResponse{}, err
	}
	return BalanceBatchResponse{Balances: balances}, nil
}

func TopHoldersGetHandler(r *http.Request, api TokenAPI) (TopHoldersResponse, error) {
	n, err := parseTopN(r)
	if err != nil {
		return TopHoldersResponse{}, err
	}
	holders, err := api.GetTopHolders(r.Context(), n)
	if err != nil {
		return TopHoldersResponse{}, err
	}
	if holders == nil {
		holders = []tokens.Holder{}
	}
	return TopHoldersResponse{TopHolders: holders}, nil
}

func TopHoldersWithTransactionsGetHandler(r *http.Request, api TokenAPI) (TopHoldersWithTransactionsResponse, error) {
	n, err := parseTopN(r)
	if err != nil {
		return TopHoldersWithTransactionsResponse{}, err
	}
	holders, err := api.GetTopHoldersWithActivity(r.Context(), n)
	if err != nil {
		return TopHoldersWithTransactionsResponse{}, err
	}
	resp := TopHoldersWithTransactionsResponse{
		TopHolders: make([]TopHolderWithTransaction, len(holders)),
	}
	for i, h := range holders {
		item := TopHolderWithTransaction{Address: h.Address, Balance: h.Balance}
		if h.LastTransaction != nil {
			date := h.LastTransaction.UTC().Format(lastTransactionTime)
			item.LastTransactionDate = &date
		}
		resp.TopHolders[i] = item
	}
	return resp, nil
}

// TokenInfoGetHandler always describes the configured contract. The optional
// address parameter is validated but not used.
func TokenInfoGetHandler(r *http.Request, api TokenAPI) (tokens.TokenMetadata, error) {
	if address := r.URL.Query().Get("address"); address != "" {
		if _, err := tokens.ParseAddress(address); err != nil {
			return tokens.TokenMetadata{}, err
		}
	}
	return api.GetTokenMetadata(r.Context())
}

func parseTopN(r *http.Request) (int, error) {
	v := r.URL.Query().Get("n")
	if v == "" {
		return defaultTopHolders, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid n %q: must be an integer", v)
	}
	return n, nil
}
