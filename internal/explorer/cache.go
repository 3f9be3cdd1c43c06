package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/denet-labs/polygon-token-api/pkg/tokens"
	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const ledgerKeyPrefix = "ledger:transfers:"

// CachedLedger keeps the last fetched history of each contract in badger for
// ttl. Errors are never cached.
type CachedLedger struct {
	next TransferLedger
	db   *badger.DB
	ttl  time.Duration
}

func NewCachedLedger(next TransferLedger, db *badger.DB, ttl time.Duration) *CachedLedger {
	return &CachedLedger{next: next, db: db, ttl: ttl}
}

type storedTransfer struct {
	BlockNumber uint64 `json:"b"`
	TxHash      string `json:"h"`
	From        string `json:"f"`
	To          string `json:"t"`
	Value       string `json:"v"`
	Timestamp   uint64 `json:"ts"`
}

func (c *CachedLedger) FetchAllTransfers(ctx context.Context, contract common.Address) ([]tokens.Transfer, error) {
	cached, ok, err := c.load(contract)
	if err != nil {
		zap.L().Warn("Failed to read cached transfer history", zap.String("contract", contract.Hex()), zap.Error(err))
	}
	if ok {
		zap.L().Debug("Serving transfer history from cache", zap.String("contract", contract.Hex()), zap.Int("transfers", len(cached)))
		return cached, nil
	}

	transfers, err := c.next.FetchAllTransfers(ctx, contract)
	if err != nil {
		return nil, err
	}
	if err := c.store(contract, transfers); err != nil {
		zap.L().Warn("Failed to cache transfer history", zap.String("contract", contract.Hex()), zap.Error(err))
	}
	return transfers, nil
}

func (c *CachedLedger) load(contract common.Address) ([]tokens.Transfer, bool, error) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ledgerKey(contract))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	transfers, err := decodeStored(raw)
	if err != nil {
		return nil, false, err
	}
	return transfers, true, nil
}

func decodeStored(raw []byte) ([]tokens.Transfer, error) {
	var stored []storedTransfer
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("corrupt cache entry: %w", err)
	}
	transfers := make([]tokens.Transfer, len(stored))
	for i, s := range stored {
		value, ok := new(big.Int).SetString(s.Value, 10)
		if !ok {
			return nil, fmt.Errorf("corrupt cache entry: value %q", s.Value)
		}
		transfers[i] = tokens.Transfer{
			BlockNumber: s.BlockNumber,
			TxHash:      s.TxHash,
			From:        common.HexToAddress(s.From),
			To:          common.HexToAddress(s.To),
			Value:       value,
			Timestamp:   s.Timestamp,
		}
	}
	return transfers, nil
}

func (c *CachedLedger) store(contract common.Address, transfers []tokens.Transfer) error {
	stored := make([]storedTransfer, 0, len(transfers))
	for _, t := range transfers {
		if t.Value == nil {
			continue
		}
		stored = append(stored, storedTransfer{
			BlockNumber: t.BlockNumber,
			TxHash:      t.TxHash,
			From:        t.From.Hex(),
			To:          t.To.Hex(),
			Value:       t.Value.String(),
			Timestamp:   t.Timestamp,
		})
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(ledgerKey(contract), raw).WithTTL(c.ttl))
	})
}

// CacheEntry is one cached transfer history as seen by WalkCache.
type CacheEntry struct {
	Contract  common.Address
	ExpiresAt time.Time
	Transfers []tokens.Transfer
	Err       error
}

// WalkCache calls fn for every cached history in db. Entries that fail to
// decode are reported through CacheEntry.Err.
func WalkCache(db *badger.DB, fn func(CacheEntry) error) error {
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(ledgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			entry := CacheEntry{
				Contract: common.HexToAddress(strings.TrimPrefix(string(item.Key()), ledgerKeyPrefix)),
			}
			if exp := item.ExpiresAt(); exp > 0 {
				entry.ExpiresAt = time.Unix(int64(exp), 0).UTC()
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				entry.Err = err
			} else {
				entry.Transfers, entry.Err = decodeStored(raw)
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func ledgerKey(contract common.Address) []byte {
	return []byte(ledgerKeyPrefix + strings.ToLower(contract.Hex()))
}
