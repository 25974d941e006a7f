package tatum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/dfaith-labs/payout-service/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.tatum.io"
	apiKeyHeader                = "x-api-key"
	responseBodyReadLimit int64 = 4096
)

var (
	errAPIKeyRequired     = errors.New("tatum api key is required")
	errSigningKeyRequired = errors.New("wallet signing key is required")
	errChainRequired      = errors.New("chain is required")
)

// Config carries the credentials and chain parameters for the broadcast API.
type Config struct {
	APIKey          string
	SigningKey      string
	Chain           string
	ContractAddress string
	TokenDecimals   int32
	TokenGasLimit   string
	NativeGasLimit  string
	GasPrice        string
}

// Client wraps the Tatum v3 blockchain transaction API used to sign and
// broadcast transfers and to look up their confirmation state.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        Config
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the provider base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the broadcast client and validates its credentials.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.SigningKey = strings.TrimSpace(cfg.SigningKey)
	cfg.Chain = strings.TrimSpace(cfg.Chain)

	if cfg.APIKey == "" {
		return nil, errAPIKeyRequired
	}
	if cfg.SigningKey == "" {
		return nil, errSigningKeyRequired
	}
	if cfg.Chain == "" {
		return nil, errChainRequired
	}

	client := &Client{
		cfg:        cfg,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// APIError is a non-2xx provider response, preserved verbatim.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tatum api error (%d): %s", e.StatusCode, e.Body)
}

// ProviderStatus implements the pkg/errors provider dump hook.
func (e *APIError) ProviderStatus() int { return e.StatusCode }

// ProviderBody implements the pkg/errors provider dump hook.
func (e *APIError) ProviderBody() string { return e.Body }

type feePayload struct {
	GasLimit string `json:"gasLimit"`
	GasPrice string `json:"gasPrice"`
}

type tokenTransferRequest struct {
	Chain           string     `json:"chain"`
	To              string     `json:"to"`
	Amount          string     `json:"amount"`
	ContractAddress string     `json:"contractAddress"`
	FromPrivateKey  string     `json:"fromPrivateKey"`
	Fee             feePayload `json:"fee"`
}

type nativeTransferRequest struct {
	Chain          string     `json:"chain"`
	To             string     `json:"to"`
	Amount         string     `json:"amount"`
	FromPrivateKey string     `json:"fromPrivateKey"`
	Fee            feePayload `json:"fee"`
}

type transferResponse struct {
	TxID string `json:"txId"`
}

// Confirmation is the result of a single confirmation lookup.
type Confirmation struct {
	Confirmed   bool
	BlockNumber int64
}

// BroadcastTokenTransfer submits a token transfer to the destination address.
// The amount is converted to base units using the configured token decimals.
func (c *Client) BroadcastTokenTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "tatum client not configured")
	}

	units := amount.Shift(c.cfg.TokenDecimals)
	if !units.IsInteger() {
		return "", pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("amount has more than %d decimal places", c.cfg.TokenDecimals))
	}

	payload := tokenTransferRequest{
		Chain:           c.cfg.Chain,
		To:              to,
		Amount:          units.String(),
		ContractAddress: c.cfg.ContractAddress,
		FromPrivateKey:  c.cfg.SigningKey,
		Fee: feePayload{
			GasLimit: c.cfg.TokenGasLimit,
			GasPrice: c.cfg.GasPrice,
		},
	}

	return c.broadcast(ctx, "v3/blockchain/token/transaction", payload)
}

// BroadcastNativeTransfer submits a native coin transfer. The provider expects
// the amount in whole coin units, not wei.
func (c *Client) BroadcastNativeTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "tatum client not configured")
	}

	payload := nativeTransferRequest{
		Chain:          c.cfg.Chain,
		To:             to,
		Amount:         amount.String(),
		FromPrivateKey: c.cfg.SigningKey,
		Fee: feePayload{
			GasLimit: c.cfg.NativeGasLimit,
			GasPrice: c.cfg.GasPrice,
		},
	}

	return c.broadcast(ctx, "v3/blockchain/transaction", payload)
}

func (c *Client) broadcast(ctx context.Context, path string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal broadcast request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(body))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build broadcast request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(apiKeyHeader, c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute broadcast request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", pkgerrors.Wrap(pkgerrors.CodeBroadcast,
			&APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))},
			"broadcast rejected")
	}

	var result transferResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode broadcast response")
	}
	if result.TxID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "broadcast response missing txId")
	}

	return result.TxID, nil
}

// GetTransaction performs a single confirmation lookup for a broadcast
// transfer. A transaction with a positive block number counts as confirmed.
func (c *Client) GetTransaction(ctx context.Context, txID string) (Confirmation, error) {
	if c == nil {
		return Confirmation{}, pkgerrors.New(pkgerrors.CodeDependency, "tatum client not configured")
	}

	path := fmt.Sprintf("v3/blockchain/transaction/%s/%s", url.PathEscape(c.cfg.Chain), url.PathEscape(txID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path), nil)
	if err != nil {
		return Confirmation{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build transaction lookup")
	}
	httpReq.Header.Set(apiKeyHeader, c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Confirmation{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute transaction lookup")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return Confirmation{}, pkgerrors.Wrap(pkgerrors.CodeDependency,
			&APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))},
			"transaction lookup failed")
	}

	var apiResp struct {
		BlockNumber int64 `json:"blockNumber"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return Confirmation{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode transaction lookup")
	}

	return Confirmation{
		Confirmed:   apiResp.BlockNumber > 0,
		BlockNumber: apiResp.BlockNumber,
	}, nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
