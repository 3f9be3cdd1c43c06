package tokens

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the mint source and burn sink. It never holds a balance.
var ZeroAddress = common.Address{}

// Transfer is a single token movement as reported by the block explorer.
type Transfer struct {
	BlockNumber uint64
	TxHash      string
	From        common.Address
	To          common.Address
	Value       *big.Int
	Timestamp   uint64
}

type Holder struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

// HolderActivity is a Holder plus the time of its last incoming transfer.
// LastTransaction is nil when no incoming transfer was recorded.
type HolderActivity struct {
	Holder
	LastTransaction *time.Time
}

type TokenMetadata struct {
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	TotalSupply float64 `json:"totalSupply"`
}
