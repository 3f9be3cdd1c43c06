package tokens

import "errors"

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrEmptyInput     = errors.New("empty input")
	ErrBalanceFetch   = errors.New("failed to fetch balance")
	ErrLedgerFetch    = errors.New("failed to fetch transfer history")
	ErrMetadataFetch  = errors.New("failed to fetch token metadata")
)
