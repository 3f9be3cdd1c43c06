package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/denet-labs/polygon-token-api/pkg/tokens"
	"github.com/ethereum/go-ethereum/common"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// ResultCap is the most rows the explorer returns for one tokentx query.
// A response of exactly this size has most likely been truncated.
const ResultCap = 10000

const (
	DefaultTimeout = 30 * time.Second
	statusOK       = "1"
)

// TransferLedger yields the full transfer history of a token contract,
// ordered by timestamp ascending.
type TransferLedger interface {
	FetchAllTransfers(ctx context.Context, contract common.Address) ([]tokens.Transfer, error)
}

// Client talks to an Etherscan-compatible block explorer (PolygonScan by
// default). Only a single request is issued per history fetch; pagination is
// not supported.
type Client struct {
	baseURL string
	apiKey  string
	chainID uint64
	timeout time.Duration
	http    *fasthttp.Client
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithChainID adds the chainid parameter used by multichain explorer APIs.
func WithChainID(id uint64) ClientOption {
	return func(c *Client) {
		c.chainID = id
	}
}

func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: DefaultTimeout,
		http: &fasthttp.Client{
			Name: "polygon-token-api",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenTxResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type tokenTx struct {
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
}

func (c *Client) FetchAllTransfers(ctx context.Context, contract common.Address) ([]tokens.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", tokens.ErrLedgerFetch, err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	args := req.URI().QueryArgs()
	if c.chainID > 0 {
		args.Set("chainid", strconv.FormatUint(c.chainID, 10))
	}
	args.Set("module", "account")
	args.Set("action", "tokentx")
	args.Set("contractaddress", contract.Hex())
	args.Set("startblock", "0")
	args.Set("endblock", "99999999")
	args.Set("sort", "asc")
	if c.apiKey != "" {
		args.Set("apikey", c.apiKey)
	}

	start := time.Now()
	if err := c.http.DoTimeout(req, resp, c.timeout); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, fmt.Errorf("%w: explorer request timed out after %s", tokens.ErrLedgerFetch, c.timeout)
		}
		return nil, fmt.Errorf("%w: %w", tokens.ErrLedgerFetch, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		// Rate limits and key errors still come with a JSON status body.
		var se *statusError
		if _, err := decodeTokenTxResponse(resp.Body()); errors.As(err, &se) {
			return nil, fmt.Errorf("%w: explorer responded with HTTP %d: %w", tokens.ErrLedgerFetch, code, se)
		}
		return nil, fmt.Errorf("%w: explorer responded with HTTP %d", tokens.ErrLedgerFetch, code)
	}

	transfers, err := decodeTokenTxResponse(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tokens.ErrLedgerFetch, err)
	}

	zap.L().Info("Fetched transfer history",
		zap.String("contract", contract.Hex()),
		zap.Int("transfers", len(transfers)),
		zap.Duration("took", time.Since(start)),
	)
	if len(transfers) >= ResultCap {
		zap.L().Warn("Transfer history may be truncated by the explorer, holder ranking can be inaccurate",
			zap.String("contract", contract.Hex()),
			zap.Int("transfers", len(transfers)),
		)
	}
	return transfers, nil
}

// statusError is an explorer reply whose status field is not "1".
type statusError struct {
	status  string
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("explorer returned status %q: %s", e.status, e.message)
}

func decodeTokenTxResponse(body []byte) ([]tokens.Transfer, error) {
	var r tokenTxResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("invalid explorer response: %w", err)
	}
	if r.Status != statusOK {
		msg := r.Message
		// On failure the result field carries a human readable reason.
		var detail string
		if err := json.Unmarshal(r.Result, &detail); err == nil && detail != "" && detail != msg {
			msg = strings.TrimSpace(msg + " " + detail)
		}
		if msg == "" {
			msg = "no message"
		}
		return nil, &statusError{status: r.Status, message: msg}
	}

	var txs []tokenTx
	if err := json.Unmarshal(r.Result, &txs); err != nil {
		return nil, fmt.Errorf("invalid explorer result: %w", err)
	}
	transfers := make([]tokens.Transfer, 0, len(txs))
	for i, tx := range txs {
		t, err := tx.toTransfer()
		if err != nil {
			return nil, fmt.Errorf("transfer #%d (%s): %w", i, tx.Hash, err)
		}
		transfers = append(transfers, t)
	}
	return transfers, nil
}

func (tx tokenTx) toTransfer() (tokens.Transfer, error) {
	value, ok := new(big.Int).SetString(tx.Value, 10)
	if !ok || value.Sign() < 0 {
		return tokens.Transfer{}, fmt.Errorf("invalid value %q", tx.Value)
	}
	ts, err := strconv.ParseUint(tx.TimeStamp, 10, 64)
	if err != nil {
		return tokens.Transfer{}, fmt.Errorf("invalid timeStamp %q", tx.TimeStamp)
	}
	var blockNumber uint64
	if tx.BlockNumber != "" {
		blockNumber, err = strconv.ParseUint(tx.BlockNumber, 10, 64)
		if err != nil {
			return tokens.Transfer{}, fmt.Errorf("invalid blockNumber %q", tx.BlockNumber)
		}
	}
	if !common.IsHexAddress(tx.From) || !common.IsHexAddress(tx.To) {
		return tokens.Transfer{}, fmt.Errorf("invalid address pair %q -> %q", tx.From, tx.To)
	}
	return tokens.Transfer{
		BlockNumber: blockNumber,
		TxHash:      strings.ToLower(tx.Hash),
		From:        common.HexToAddress(tx.From),
		To:          common.HexToAddress(tx.To),
		Value:       value,
		Timestamp:   ts,
	}, nil
}
