package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/denet-labs/polygon-token-api/pkg/tokens"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(`[
    {"constant": true, "inputs": [], "name": "name", "outputs": [{"name": "", "type": "string"}], "stateMutability": "view", "type": "function"},
    {"constant": true, "inputs": [], "name": "symbol", "outputs": [{"name": "", "type": "string"}], "stateMutability": "view", "type": "function"},
    {"constant": true, "inputs": [], "name": "decimals", "outputs": [{"name": "", "type": "uint8"}], "stateMutability": "view", "type": "function"},
    {"constant": true, "inputs": [], "name": "totalSupply", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
    {"constant": true, "inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
	]`))
	if err != nil {
		panic("failed to parse ERC20 ABI")
	}
	erc20ABI = parsed
}

// TokenReader reads live state of a single ERC20 contract.
//
// decimals() is read once per reader and then served from memory; it is never
// invalidated. A failed read is not cached.
type TokenReader struct {
	client   EthClient
	contract common.Address

	mu       sync.Mutex
	decimals *uint8
}

func NewTokenReader(client EthClient, contract common.Address) *TokenReader {
	return &TokenReader{
		client:   client,
		contract: contract,
	}
}

func (r *TokenReader) Contract() common.Address {
	return r.contract
}

// HasCode reports whether the contract address holds deployed bytecode.
func (r *TokenReader) HasCode(ctx context.Context) (bool, error) {
	code, err := r.client.CodeAt(ctx, r.contract, nil)
	if err != nil {
		return false, fmt.Errorf("failed to read code at %s: %w", r.contract.Hex(), err)
	}
	return len(code) > 0, nil
}

func (r *TokenReader) Decimals(ctx context.Context) (uint8, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.decimals != nil {
		return *r.decimals, nil
	}
	values, err := r.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals() output type %T", values[0])
	}
	r.decimals = &d
	zap.L().Info("Cached token decimals",
		zap.String("contract", r.contract.Hex()),
		zap.Uint8("decimals", d),
	)
	return d, nil
}

// GetBalance returns the scaled balance of address.
func (r *TokenReader) GetBalance(ctx context.Context, address string) (float64, error) {
	addr, err := tokens.ParseAddress(address)
	if err != nil {
		return 0, err
	}
	decimals, err := r.Decimals(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", tokens.ErrBalanceFetch, err)
	}
	raw, err := r.rawBalance(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", tokens.ErrBalanceFetch, err)
	}
	return tokens.ToDisplay(raw, decimals), nil
}

// GetBalancesBatch reads all balances concurrently. The result follows the
// input order. Any failure aborts the whole batch and no partial result is
// returned.
func (r *TokenReader) GetBalancesBatch(ctx context.Context, addresses []string) ([]float64, error) {
	addrs, err := tokens.ParseAddresses(addresses)
	if err != nil {
		return nil, err
	}
	decimals, err := r.Decimals(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tokens.ErrBalanceFetch, err)
	}

	balances := make([]float64, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range addrs {
		g.Go(func() error {
			raw, err := r.rawBalance(gctx, addr)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", tokens.ErrBalanceFetch, addr.Hex(), err)
			}
			balances[i] = tokens.ToDisplay(raw, decimals)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return balances, nil
}

func (r *TokenReader) GetTokenMetadata(ctx context.Context) (tokens.TokenMetadata, error) {
	var (
		md     tokens.TokenMetadata
		supply *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		name, err := r.callString(gctx, "name")
		md.Name = name
		return err
	})
	g.Go(func() error {
		symbol, err := r.callString(gctx, "symbol")
		md.Symbol = symbol
		return err
	})
	g.Go(func() error {
		values, err := r.call(gctx, "totalSupply")
		if err != nil {
			return err
		}
		v, ok := values[0].(*big.Int)
		if !ok {
			return fmt.Errorf("unexpected totalSupply() output type %T", values[0])
		}
		supply = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return tokens.TokenMetadata{}, fmt.Errorf("%w: %w", tokens.ErrMetadataFetch, err)
	}

	decimals, err := r.Decimals(ctx)
	if err != nil {
		return tokens.TokenMetadata{}, fmt.Errorf("%w: %w", tokens.ErrMetadataFetch, err)
	}
	md.TotalSupply = tokens.ToDisplay(supply, decimals)
	return md, nil
}

func (r *TokenReader) rawBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	values, err := r.call(ctx, "balanceOf", addr)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf() output type %T", values[0])
	}
	return v, nil
}

func (r *TokenReader) callRaw(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s(): %w", method, err)
	}
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s() call failed: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s() returned no data, is %s a token contract?", method, r.contract.Hex())
	}
	return out, nil
}

func (r *TokenReader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	out, err := r.callRaw(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	values, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s() output: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s() decoded to no values", method)
	}
	return values, nil
}

// callString decodes a string return value, falling back to bytes32 for
// tokens that predate the string convention.
func (r *TokenReader) callString(ctx context.Context, method string) (string, error) {
	out, err := r.callRaw(ctx, method)
	if err != nil {
		return "", err
	}
	values, err := erc20ABI.Unpack(method, out)
	if err == nil && len(values) == 1 {
		if s, ok := values[0].(string); ok {
			return strings.TrimRight(s, "\x00"), nil
		}
	}
	if len(out) == 32 {
		return strings.TrimSpace(strings.TrimRight(string(out), "\x00")), nil
	}
	if err == nil {
		err = errors.New("not a string")
	}
	return "", fmt.Errorf("failed to decode %s() output: %w", method, err)
}
