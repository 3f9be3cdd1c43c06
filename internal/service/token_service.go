package service

import (
	"context"
	"fmt"

	"github.com/denet-labs/polygon-token-api/internal/explorer"
	"github.com/denet-labs/polygon-token-api/pkg/tokens"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// TokenReader is implemented by eth.TokenReader.
type TokenReader interface {
	Contract() common.Address
	Decimals(ctx context.Context) (uint8, error)
	GetBalance(ctx context.Context, address string) (float64, error)
	GetBalancesBatch(ctx context.Context, addresses []string) ([]float64, error)
	GetTokenMetadata(ctx context.Context) (tokens.TokenMetadata, error)
}

// TokenService answers every API question about the configured token. It holds
// no per-request state.
type TokenService struct {
	reader TokenReader
	ledger explorer.TransferLedger
}

func NewTokenService(reader TokenReader, ledger explorer.TransferLedger) *TokenService {
	return &TokenService{reader: reader, ledger: ledger}
}

// Contract is the token every operation refers to.
func (s *TokenService) Contract() common.Address {
	return s.reader.Contract()
}

func (s *TokenService) GetBalance(ctx context.Context, address string) (float64, error) {
	return s.reader.GetBalance(ctx, address)
}

func (s *TokenService) GetBalancesBatch(ctx context.Context, addresses []string) ([]float64, error) {
	return s.reader.GetBalancesBatch(ctx, addresses)
}

func (s *TokenService) GetTokenMetadata(ctx context.Context) (tokens.TokenMetadata, error) {
	return s.reader.GetTokenMetadata(ctx)
}

func (s *TokenService) GetTopHolders(ctx context.Context, n int) ([]tokens.Holder, error) {
	transfers, decimals, err := s.history(ctx)
	if err != nil {
		return nil, err
	}
	return tokens.RankTopHolders(transfers, n, decimals), nil
}

func (s *TokenService) GetTopHoldersWithActivity(ctx context.Context, n int) ([]tokens.HolderActivity, error) {
	transfers, decimals, err := s.history(ctx)
	if err != nil {
		return nil, err
	}
	return tokens.RankTopHoldersWithActivity(transfers, n, decimals), nil
}

func (s *TokenService) history(ctx context.Context) ([]tokens.Transfer, uint8, error) {
	contract := s.reader.Contract()
	transfers, err := s.ledger.FetchAllTransfers(ctx, contract)
	if err != nil {
		zap.L().Error("Failed to fetch transfer history", zap.String("contract", contract.Hex()), zap.Error(err))
		return nil, 0, err
	}
	decimals, err := s.reader.Decimals(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", tokens.ErrBalanceFetch, err)
	}
	return transfers, decimals, nil
}
