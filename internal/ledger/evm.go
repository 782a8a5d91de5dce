package ledger

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"

	"github.com/velikanghost/alioth-server-sub001/internal/config"
	"github.com/velikanghost/alioth-server-sub001/internal/logger"
	"github.com/velikanghost/alioth-server-sub001/internal/wallet"
)

const (
	receiptPollInterval = 3 * time.Second
	weiPerEth           = 1e18
	bpsPerPercent       = 100.0
)

// EVMClient implements Client against an Alioth vault contract on one EVM
// chain. Reads go straight to the node over JSON-RPC; writes are routed
// through the custody signer.
type EVMClient struct {
	chainID       uint64
	vaultContract string
	rpc           *RPCClient
	signer        wallet.Signer
	walletID      string

	// nativePriceUSD values gas in USD; it may serve stale or fallback prices,
	// gas valuation is advisory only.
	nativePriceUSD func(ctx context.Context) float64

	decimalsCache *xsync.Map[string, int]
	symbolCache   *xsync.Map[string, string]
	logger        zerolog.Logger
}

// NewEVMClient builds a ledger client for one configured chain.
func NewEVMClient(cfg config.ChainConfig, signer wallet.Signer, walletID string, nativePriceUSD func(ctx context.Context) float64) (*EVMClient, error) {
	if cfg.VaultContract == "" {
		return nil, fmt.Errorf("chain %d has no vault contract configured", cfg.ChainID)
	}
	if len(cfg.RPCURLs) == 0 {
		return nil, fmt.Errorf("chain %d has no RPC endpoints configured", cfg.ChainID)
	}
	if signer == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}
	if nativePriceUSD == nil {
		nativePriceUSD = func(context.Context) float64 { return config.FallbackPrices["WETH"] }
	}

	return &EVMClient{
		chainID:        cfg.ChainID,
		vaultContract:  cfg.VaultContract,
		rpc:            NewRPCClient(cfg.RPCURLs...),
		signer:         signer,
		walletID:       walletID,
		nativePriceUSD: nativePriceUSD,
		decimalsCache:  xsync.NewMap[string, int](),
		symbolCache:    xsync.NewMap[string, string](),
		logger:         logger.GetForComponent("ledger_client").With().Uint64("chainID", cfg.ChainID).Logger(),
	}, nil
}

func (c *EVMClient) ChainID() uint64 { return c.chainID }

// PreviewDeposit returns the shares a deposit of amount would mint.
func (c *EVMClient) PreviewDeposit(ctx context.Context, token string, amount sdkmath.Int) (sdkmath.Int, error) {
	result, err := c.rpc.EthCall(ctx, c.vaultContract, encodeCall(selectorPreviewDeposit, encodeAddress(token), encodeInt(amount)))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("previewDeposit call failed: %w", err)
	}
	w, err := word(result, 0)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return decodeInt(w), nil
}

// Deposit submits a deposit through the custody signer.
func (c *EVMClient) Deposit(ctx context.Context, user, token string, amount, minShares sdkmath.Int) (string, error) {
	calldata := encodeCall(selectorDeposit, encodeAddress(token), encodeInt(amount), encodeInt(minShares), encodeAddress(user))
	return c.submit(ctx, calldata)
}

// PreviewWithdraw returns the token amount redeeming shares would yield.
func (c *EVMClient) PreviewWithdraw(ctx context.Context, token string, shares sdkmath.Int) (sdkmath.Int, error) {
	result, err := c.rpc.EthCall(ctx, c.vaultContract, encodeCall(selectorPreviewWithdraw, encodeAddress(token), encodeInt(shares)))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("previewWithdraw call failed: %w", err)
	}
	w, err := word(result, 0)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return decodeInt(w), nil
}

// Withdraw submits a withdrawal through the custody signer.
func (c *EVMClient) Withdraw(ctx context.Context, user, token string, shares, minAmount sdkmath.Int) (string, error) {
	calldata := encodeCall(selectorWithdraw, encodeAddress(token), encodeInt(shares), encodeInt(minAmount), encodeAddress(user))
	return c.submit(ctx, calldata)
}

// Rebalance moves a user's funds for token into the target protocol adapter.
func (c *EVMClient) Rebalance(ctx context.Context, user, token string, amount sdkmath.Int, toAdapter string) (string, error) {
	calldata := encodeCall(selectorRebalance, encodeAddress(user), encodeAddress(token), encodeInt(amount), encodeAddress(toAdapter))
	return c.submit(ctx, calldata)
}

func (c *EVMClient) submit(ctx context.Context, calldata []byte) (string, error) {
	txHash, err := c.signer.SubmitTransaction(ctx, c.walletID, wallet.Call{
		ChainID: c.chainID,
		To:      c.vaultContract,
		Data:    calldata,
	})
	if err != nil {
		return "", fmt.Errorf("signer submission failed: %w", err)
	}
	return txHash, nil
}

// GetUserPosition reads the user's authoritative position for one token.
func (c *EVMClient) GetUserPosition(ctx context.Context, user, token string) (UserPosition, error) {
	result, err := c.rpc.EthCall(ctx, c.vaultContract, encodeCall(selectorUserPosition, encodeAddress(user), encodeAddress(token)))
	if err != nil {
		return UserPosition{}, fmt.Errorf("getUserPosition call failed: %w", err)
	}
	// (uint256 shares, uint256 value, uint256 apyBps, address receiptToken)
	if len(result) < 4*32 {
		return UserPosition{}, fmt.Errorf("unexpected getUserPosition result length: %d", len(result))
	}
	return UserPosition{
		Shares:       decodeInt(result[0:32]),
		Value:        decodeInt(result[32:64]),
		APY:          float64(decodeInt(result[64:96]).Int64()) / bpsPerPercent,
		ReceiptToken: decodeAddress(result[96:128]),
	}, nil
}

// GetUserPortfolio reads the complete ledger-side portfolio in one call.
// Symbols are resolved from the token contracts and cached.
func (c *EVMClient) GetUserPortfolio(ctx context.Context, user string) ([]PortfolioEntry, error) {
	result, err := c.rpc.EthCall(ctx, c.vaultContract, encodeCall(selectorUserPortfolio, encodeAddress(user)))
	if err != nil {
		return nil, fmt.Errorf("getUserPortfolio call failed: %w", err)
	}

	// (address[] tokens, address[] receiptTokens, uint256[] shares,
	//  uint256[] values, uint256[] apysBps)
	tokens, err := decodeDynamicArray(result, 0)
	if err != nil {
		return nil, err
	}
	receipts, err := decodeDynamicArray(result, 1)
	if err != nil {
		return nil, err
	}
	shares, err := decodeDynamicArray(result, 2)
	if err != nil {
		return nil, err
	}
	values, err := decodeDynamicArray(result, 3)
	if err != nil {
		return nil, err
	}
	apys, err := decodeDynamicArray(result, 4)
	if err != nil {
		return nil, err
	}
	if len(receipts) != len(tokens) || len(shares) != len(tokens) || len(values) != len(tokens) || len(apys) != len(tokens) {
		return nil, fmt.Errorf("getUserPortfolio arrays are not parallel: %d/%d/%d/%d/%d",
			len(tokens), len(receipts), len(shares), len(values), len(apys))
	}

	entries := make([]PortfolioEntry, 0, len(tokens))
	for i := range tokens {
		tokenAddr := decodeAddress(tokens[i])
		symbol, err := c.TokenSymbol(ctx, tokenAddr)
		if err != nil {
			c.logger.Warn().Err(err).Str("token", tokenAddr).Msg("Failed to resolve token symbol")
			symbol = ""
		}
		entries = append(entries, PortfolioEntry{
			Token:        tokenAddr,
			ReceiptToken: decodeAddress(receipts[i]),
			Symbol:       symbol,
			Shares:       decodeInt(shares[i]),
			Value:        decodeInt(values[i]),
			APY:          float64(decodeInt(apys[i]).Int64()) / bpsPerPercent,
		})
	}
	return entries, nil
}

// GetTokenStats reads the vault-wide aggregate for a token.
func (c *EVMClient) GetTokenStats(ctx context.Context, token string) (TokenStats, error) {
	result, err := c.rpc.EthCall(ctx, c.vaultContract, encodeCall(selectorTokenStats, encodeAddress(token)))
	if err != nil {
		return TokenStats{}, fmt.Errorf("getTokenStats call failed: %w", err)
	}
	if len(result) < 4*32 {
		return TokenStats{}, fmt.Errorf("unexpected getTokenStats result length: %d", len(result))
	}
	return TokenStats{
		TotalShares:  decodeInt(result[0:32]),
		TotalValue:   decodeInt(result[32:64]),
		APY:          float64(decodeInt(result[64:96]).Int64()) / bpsPerPercent,
		ReceiptToken: decodeAddress(result[96:128]),
	}, nil
}

// IsTokenSupported reports whether the vault accepts deposits of token.
func (c *EVMClient) IsTokenSupported(ctx context.Context, token string) (bool, error) {
	result, err := c.rpc.EthCall(ctx, c.vaultContract, encodeCall(selectorTokenSupported, encodeAddress(token)))
	if err != nil {
		return false, fmt.Errorf("isTokenSupported call failed: %w", err)
	}
	w, err := word(result, 0)
	if err != nil {
		return false, err
	}
	return !decodeInt(w).IsZero(), nil
}

// TokenDecimals reads decimals() live from the token contract. Decimals are
// immutable on-chain so the read is cached.
func (c *EVMClient) TokenDecimals(ctx context.Context, token string) (int, error) {
	if cached, ok := c.decimalsCache.Load(token); ok {
		return cached, nil
	}
	result, err := c.rpc.EthCall(ctx, token, encodeCall(selectorDecimals))
	if err != nil {
		return 0, fmt.Errorf("decimals call failed for %s: %w", token, err)
	}
	w, err := word(result, 0)
	if err != nil {
		return 0, err
	}
	decimals := int(decodeInt(w).Int64())
	if decimals < 0 || decimals > 18 {
		return 0, fmt.Errorf("token %s reports implausible decimals %d", token, decimals)
	}
	c.decimalsCache.Store(token, decimals)
	return decimals, nil
}

// TokenSymbol reads symbol() from the token contract, cached.
func (c *EVMClient) TokenSymbol(ctx context.Context, token string) (string, error) {
	if cached, ok := c.symbolCache.Load(token); ok {
		return cached, nil
	}
	result, err := c.rpc.EthCall(ctx, token, encodeCall(selectorSymbol))
	if err != nil {
		return "", fmt.Errorf("symbol call failed for %s: %w", token, err)
	}
	symbol, err := decodeString(result, 0)
	if err != nil {
		return "", err
	}
	c.symbolCache.Store(token, symbol)
	return symbol, nil
}

// WaitForConfirmation polls for the transaction receipt until it is mined or
// the timeout elapses. On timeout the transaction stays pending on-chain;
// only this caller stops waiting.
func (c *EVMClient) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (Receipt, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, txHash)
		if err != nil {
			c.logger.Warn().Err(err).Str("txHash", txHash).Msg("Receipt poll failed, retrying")
		} else if receipt != nil {
			return c.resolveReceipt(ctx, receipt)
		}

		if time.Now().After(deadline) {
			c.logger.Warn().Str("txHash", txHash).Dur("timeout", timeout).Msg("Confirmation wait timed out; transaction remains pending")
			return Receipt{TxHash: txHash, Status: StatusPending}, nil
		}

		select {
		case <-ctx.Done():
			return Receipt{TxHash: txHash, Status: StatusPending}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CheckReceipt is a single non-blocking receipt probe used by the
// pending-transaction resolver. A StatusPending result means still unmined.
func (c *EVMClient) CheckReceipt(ctx context.Context, txHash string) (Receipt, error) {
	receipt, err := c.rpc.TransactionReceipt(ctx, txHash)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipt lookup failed: %w", err)
	}
	if receipt == nil {
		return Receipt{TxHash: txHash, Status: StatusPending}, nil
	}
	return c.resolveReceipt(ctx, receipt)
}

func (c *EVMClient) resolveReceipt(ctx context.Context, raw *TxReceipt) (Receipt, error) {
	gasUsed, err := parseHexUint(raw.GasUsed)
	if err != nil {
		return Receipt{}, fmt.Errorf("parse gasUsed: %w", err)
	}
	gasPrice, err := parseHexUint(raw.EffectiveGasPrice)
	if err != nil {
		return Receipt{}, fmt.Errorf("parse effectiveGasPrice: %w", err)
	}
	blockNumber, err := parseHexUint(raw.BlockNumber)
	if err != nil {
		return Receipt{}, fmt.Errorf("parse blockNumber: %w", err)
	}

	status := StatusConfirmed
	if raw.Status == "0x0" {
		status = StatusReverted
	}

	gasFeeUSD := float64(gasUsed) * float64(gasPrice) / weiPerEth * c.nativePriceUSD(ctx)

	return Receipt{
		TxHash:      raw.TransactionHash,
		Status:      status,
		GasUsed:     gasUsed,
		GasFeeUSD:   gasFeeUSD,
		BlockNumber: blockNumber,
	}, nil
}
