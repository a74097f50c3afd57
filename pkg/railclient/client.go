/**
 * @description
 * This package provides a client for the custody gateway that fronts the
 * blockchain RPC endpoint. It encapsulates wallet provisioning, balance
 * queries, signed USDC transfers and transaction-log queries behind typed
 * request/response structs, speaking JSON-RPC 2.0 over HTTP.
 *
 * Key custody is the gateway's responsibility: wallet creation returns a sealed
 * signing-key handle that this service stores opaquely and hands back verbatim
 * when authorizing a transfer. The bot never sees key material.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package railclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// JSON-RPC error codes surfaced by the custody gateway.
const (
	codeInsufficientFunds = -32001
)

// Client is a client for the custody gateway RPC API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new custody gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Wallet is a freshly provisioned custodial wallet.
type Wallet struct {
	Address       string `json:"address"`
	SigningKeyRef string `json:"signing_key_ref"`
}

// TransferResult is the outcome of a submitted transfer.
type TransferResult struct {
	Hash     string `json:"hash"`
	FeeMicro int64  `json:"fee_micro"`
}

// HistoryEntry is one row of a wallet's transaction log.
type HistoryEntry struct {
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	AmountMicro int64     `json:"amount_micro"`
	Date        time.Time `json:"date"`
}

// InsufficientFundsError reports a transfer rejected for lack of balance, with
// the numbers needed to render a helpful message.
type InsufficientFundsError struct {
	RequiredMicro  int64 `json:"required_micro"`
	AvailableMicro int64 `json:"available_micro"`
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %d, available %d", e.RequiredMicro, e.AvailableMicro)
}

// RailError is any other gateway-level failure. It is logged in full and shown
// to users as a generic message.
type RailError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RailError) Error() string {
	return fmt.Sprintf("rail error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC round trip and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read rpc response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &RailError{Code: resp.StatusCode, Message: string(respBody)}
	}

	var decoded rpcResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if decoded.Error != nil {
		if decoded.Error.Code == codeInsufficientFunds {
			var details InsufficientFundsError
			if len(decoded.Error.Data) > 0 {
				_ = json.Unmarshal(decoded.Error.Data, &details)
			}
			return &details
		}
		return &RailError{Code: decoded.Error.Code, Message: decoded.Error.Message}
	}
	if out != nil {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("failed to decode rpc result: %w", err)
		}
	}
	return nil
}

// CreateWallet provisions a custodial wallet for a new user.
func (c *Client) CreateWallet(ctx context.Context) (*Wallet, error) {
	var wallet Wallet
	if err := c.call(ctx, "wallet_create", map[string]string{"currency": "USDC"}, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetBalance returns the USDC balance for an address, in micro-units.
func (c *Client) GetBalance(ctx context.Context, address string) (int64, error) {
	var result struct {
		BalanceMicro int64 `json:"balance_micro"`
	}
	params := map[string]string{"address": address}
	if err := c.call(ctx, "wallet_balance", params, &result); err != nil {
		return 0, err
	}
	return result.BalanceMicro, nil
}

// Transfer submits a signed transfer authorized by the sealed key handle.
func (c *Client) Transfer(ctx context.Context, signingKeyRef, toAddress string, amountMicro int64) (*TransferResult, error) {
	params := map[string]interface{}{
		"signing_key_ref": signingKeyRef,
		"to":              toAddress,
		"amount_micro":    amountMicro,
		"currency":        "USDC",
	}
	var result TransferResult
	if err := c.call(ctx, "wallet_transfer", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetHistory returns the most recent transfers touching an address.
func (c *Client) GetHistory(ctx context.Context, address string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	params := map[string]interface{}{"address": address, "limit": limit}
	var result struct {
		Entries []HistoryEntry `json:"entries"`
	}
	if err := c.call(ctx, "wallet_history", params, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}
