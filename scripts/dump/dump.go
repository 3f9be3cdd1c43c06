package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/denet-labs/polygon-token-api/internal/explorer"
	"github.com/denet-labs/polygon-token-api/pkg/tokens"
	"github.com/dgraph-io/badger/v4"
)

func main() {
	dbPath := flag.String("db", "./db/badger/ledger", "path of the ledger cache")
	top := flag.Int("top", 5, "number of holders to print per contract")
	decimals := flag.Uint("decimals", 18, "token decimals used to scale balances")
	flag.Parse()
	tokenDecimals, err := toDecimals(*decimals)
	if err != nil {
		log.Fatal(err)
	}

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithReadOnly(true).WithLogger(nil))
	if err != nil {
		log.Fatalf("Failed to open BadgerDB: %v", err)
	}
	defer db.Close()

	fmt.Println("Dumping ledger cache contents...")

	count := 0
	err = explorer.WalkCache(db, func(e explorer.CacheEntry) error {
		count++
		fmt.Printf("Contract: %s\n", e.Contract.Hex())
		if !e.ExpiresAt.IsZero() {
			fmt.Printf("  Expires: %s (in %s)\n", e.ExpiresAt.Format(time.RFC3339), time.Until(e.ExpiresAt).Round(time.Second))
		}
		if e.Err != nil {
			fmt.Printf("  [ERROR] Could not decode entry: %v\n", e.Err)
			fmt.Println("-------------------------")
			return nil
		}
		fmt.Printf("  Transfers: %d\n", len(e.Transfers))
		if n := len(e.Transfers); n > 0 {
			fmt.Printf("  Blocks: %d..%d\n", e.Transfers[0].BlockNumber, e.Transfers[n-1].BlockNumber)
		}
		for i, h := range tokens.RankTopHoldersWithActivity(e.Transfers, *top, tokenDecimals) {
			last := "never"
			if h.LastTransaction != nil {
				last = h.LastTransaction.Format(time.DateTime)
			}
			fmt.Printf("  #%d %s %f (last received %s)\n", i+1, h.Address, h.Balance, last)
		}
		fmt.Println("-------------------------")
		return nil
	})
	if err != nil {
		log.Fatalf("Error while iterating: %v", err)
	}

	fmt.Printf("Dump complete, %d contract(s).\n", count)
}

func toDecimals(v uint) (uint8, error) {
	if v > math.MaxUint8 {
		return 0, fmt.Errorf("decimals must be between 0 and %d, got %d", math.MaxUint8, v)
	}
	return uint8(v), nil
}
