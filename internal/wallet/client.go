/*

This package models the custodial wallet/signing collaborator. Key custody and
signing mechanics live behind a remote service; this client only hands it an
unsigned call and gets back a submitted transaction hash. The lifecycle
manager treats a signer failure like any other ledger execution failure: the
transaction record is marked failed, never silently dropped.

*/

package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/velikanghost/alioth-server-sub001/internal/logger"
)

// Call is an unsigned contract invocation.
type Call struct {
	ChainID uint64 `json:"chain_id"`
	To      string `json:"to"`
	Data    []byte `json:"-"`
	// DataHex is the wire form of Data.
	DataHex string `json:"data"`
	// ValueWei is the native-token value attached to the call, as a decimal
	// string. Empty means zero.
	ValueWei string `json:"value_wei,omitempty"`
}

// Signer submits an unsigned call on behalf of a custodial wallet and returns
// the transaction hash assigned by the chain.
type Signer interface {
	SubmitTransaction(ctx context.Context, walletID string, call Call) (string, error)
}

// RemoteSigner talks to the custody service over HTTP.
type RemoteSigner struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewRemoteSigner creates a signer client for the given custody endpoint.
func NewRemoteSigner(baseURL string) *RemoteSigner {
	return &RemoteSigner{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.GetForComponent("wallet_signer"),
	}
}

type submitRequest struct {
	WalletID string `json:"wallet_id"`
	Call     Call   `json:"call"`
}

type submitResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error,omitempty"`
}

// SubmitTransaction signs and broadcasts the call, returning the tx hash.
func (s *RemoteSigner) SubmitTransaction(ctx context.Context, walletID string, call Call) (string, error) {
	call.DataHex = "0x" + hex.EncodeToString(call.Data)

	body, err := json.Marshal(submitRequest{WalletID: walletID, Call: call})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("signer request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read signer response: %w", err)
	}

	var out submitResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshal signer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || out.Error != "" {
		return "", fmt.Errorf("signer rejected transaction (status %d): %s", resp.StatusCode, out.Error)
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("signer returned empty transaction hash")
	}

	s.logger.Info().
		Str("walletID", walletID).
		Uint64("chainID", call.ChainID).
		Str("to", call.To).
		Str("txHash", out.TxHash).
		Msg("Transaction submitted via custody signer")

	return out.TxHash, nil
}
