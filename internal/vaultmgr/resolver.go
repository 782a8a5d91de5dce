package vaultmgr

import (
	"context"
	"time"

	"github.com/velikanghost/alioth-server-sub001/internal/ledger"
	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

// ResolvePending sweeps transactions that outlived their confirmation wait
// and settles any whose receipts have since landed. Records are resolved with
// a single receipt check each; still-unmined transactions stay pending for
// the next sweep.
func (m *Manager) ResolvePending(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := m.store.ListStalePendingTransactions(olderThan)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	m.logger.Info().Int("count", len(stale)).Msg("Resolving stale pending transactions")

	resolved := 0
	for i := range stale {
		tx := &stale[i]
		client, ok := m.ledgers[tx.ChainID]
		if !ok {
			m.logger.Warn().Str("transaction", tx.ID).Uint64("chainID", tx.ChainID).Msg("Skipping pending transaction on unconfigured chain")
			continue
		}

		receipt, err := client.CheckReceipt(ctx, tx.TxHash)
		if err != nil {
			m.logger.Error().Err(err).Str("transaction", tx.ID).Msg("Receipt check failed")
			continue
		}

		switch receipt.Status {
		case ledger.StatusPending:
			continue
		case ledger.StatusReverted:
			// fail's return value is the caller-facing operation error; the
			// record update itself is logged inside.
			_ = m.fail(tx, types.TxReverted, "transaction reverted on chain", nil)
			resolved++
		case ledger.StatusConfirmed:
			unlock := m.lock(tx.UserAddress, tx.ChainID)
			opLogger := m.logger.With().Str("transaction", tx.ID).Str("user", tx.UserAddress).Uint64("chainID", tx.ChainID).Logger()
			if _, cerr := m.confirm(ctx, client, tx, receipt, opLogger); cerr != nil {
				opLogger.Error().Err(cerr).Msg("Could not finalize confirmed transaction")
				unlock()
				continue
			}
			unlock()
			resolved++
		}
	}

	return resolved, nil
}

// RunPendingResolver sweeps on a fixed interval until the context is
// cancelled. olderThan should exceed the confirmation timeout so the resolver
// never races a live operation's own wait.
func (m *Manager) RunPendingResolver(ctx context.Context, interval, olderThan time.Duration) {
	m.logger.Info().Dur("interval", interval).Msg("Pending transaction resolver started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Pending transaction resolver stopped")
			return
		case <-ticker.C:
			if _, err := m.ResolvePending(ctx, olderThan); err != nil {
				m.logger.Error().Err(err).Msg("Pending resolution sweep failed")
			}
		}
	}
}
