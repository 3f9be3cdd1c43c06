package tokens

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress accepts a 20-byte hex address in any case, with or without the
// 0x prefix.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

func ParseAddresses(ss []string) ([]common.Address, error) {
	if len(ss) == 0 {
		return nil, ErrEmptyInput
	}
	addrs := make([]common.Address, len(ss))
	for i, s := range ss {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("address #%d: %w", i, err)
		}
		addrs[i] = addr
	}
	return addrs, nil
}
