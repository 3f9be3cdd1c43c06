package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/denet-labs/polygon-token-api/internal/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

var CreateEthClient = createEthClient

// EthClient is the subset of ethclient.Client the token reader needs. It also
// satisfies bind.ContractCaller.
type EthClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	Close()
}

func createEthClient() (EthClient, error) {
	nodeUrl := config.Get().PolygonNodeUrl
	if nodeUrl == "" {
		return nil, errors.New("failed to configure Polygon client - PolygonNodeUrl is not set")
	}
	client, err := ethclient.Dial(nodeUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to configure Polygon client - %w", err)
	}
	return client, nil
}
