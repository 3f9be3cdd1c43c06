package tokens

import (
	"bytes"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the state reconstructed by replaying a transfer history.
type Ledger struct {
	// Balances holds the signed running total per address. Addresses whose
	// history is incomplete can go negative.
	Balances map[common.Address]*big.Int
	// LastActivity holds the latest timestamp at which the address received
	// tokens.
	LastActivity map[common.Address]uint64
}

// Replay applies the transfers in the given order. The zero address is
// skipped on both sides.
func Replay(transfers []Transfer) *Ledger {
	l := &Ledger{
		Balances:     make(map[common.Address]*big.Int),
		LastActivity: make(map[common.Address]uint64),
	}
	for _, t := range transfers {
		if t.Value == nil {
			continue
		}
		if t.From != ZeroAddress {
			l.balance(t.From).Sub(l.balance(t.From), t.Value)
		}
		if t.To != ZeroAddress {
			l.balance(t.To).Add(l.balance(t.To), t.Value)
			if last, ok := l.LastActivity[t.To]; !ok || t.Timestamp > last {
				l.LastActivity[t.To] = t.Timestamp
			}
		}
	}
	return l
}

func (l *Ledger) balance(addr common.Address) *big.Int {
	b, ok := l.Balances[addr]
	if !ok {
		b = new(big.Int)
		l.Balances[addr] = b
	}
	return b
}

type rankedEntry struct {
	addr    common.Address
	balance *big.Int
}

// Top returns up to n addresses with a strictly positive balance, largest
// first. Equal balances are ordered by address ascending.
func (l *Ledger) Top(n int) []common.Address {
	if n <= 0 {
		return []common.Address{}
	}
	entries := make([]rankedEntry, 0, len(l.Balances))
	for addr, bal := range l.Balances {
		if bal.Sign() > 0 {
			entries = append(entries, rankedEntry{addr: addr, balance: bal})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if c := entries[i].balance.Cmp(entries[j].balance); c != 0 {
			return c > 0
		}
		return bytes.Compare(entries[i].addr[:], entries[j].addr[:]) < 0
	})
	if n < len(entries) {
		entries = entries[:n]
	}
	out := make([]common.Address, len(entries))
	for i, e := range entries {
		out[i] = e.addr
	}
	return out
}

// RankTopHolders replays transfers and returns the n largest holders with
// balances scaled by decimals.
func RankTopHolders(transfers []Transfer, n int, decimals uint8) []Holder {
	l := Replay(transfers)
	top := l.Top(n)
	holders := make([]Holder, len(top))
	for i, addr := range top {
		holders[i] = Holder{
			Address: addr.Hex(),
			Balance: ToDisplay(l.Balances[addr], decimals),
		}
	}
	return holders
}

// RankTopHoldersWithActivity is RankTopHolders plus the UTC time of each
// holder's last incoming transfer.
func RankTopHoldersWithActivity(transfers []Transfer, n int, decimals uint8) []HolderActivity {
	l := Replay(transfers)
	top := l.Top(n)
	holders := make([]HolderActivity, len(top))
	for i, addr := range top {
		h := HolderActivity{
			Holder: Holder{
				Address: addr.Hex(),
				Balance: ToDisplay(l.Balances[addr], decimals),
			},
		}
		if ts, ok := l.LastActivity[addr]; ok {
			last := time.Unix(int64(ts), 0).UTC()
			h.LastTransaction = &last
		}
		holders[i] = h
	}
	return holders
}
