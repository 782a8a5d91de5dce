// ./internal/state/snapshot_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/velikanghost/alioth-server-sub001/internal/types"
)

// InsertAPRSnapshot appends one immutable snapshot row. There is no update
// path on this table: history is only ever superseded by newer rows.
func InsertAPRSnapshot(snapshot types.APRSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	riskJSON, err := json.Marshal(snapshot.Risk)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal risk_metrics: %w", err)
	}

	query := `
		INSERT INTO apr_snapshots (
			chain_id, protocol, token_address, token_symbol,
			supply_apr, reward_apr, total_apy,
			total_value_locked_usd, utilization_rate, risk_metrics,
			block_number, snapshot_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRow(query,
		snapshot.ChainID, snapshot.Protocol, snapshot.TokenAddress, snapshot.TokenSymbol,
		snapshot.SupplyAPR, snapshot.RewardAPR, snapshot.TotalAPY,
		snapshot.TotalValueLocked, snapshot.UtilizationRate, riskJSON,
		snapshot.BlockNumber, snapshot.Timestamp,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert APR snapshot: %w", err)
	}

	log.Debug().
		Int64("snapshot_id", snapshotID).
		Str("protocol", snapshot.Protocol).
		Uint64("chain_id", snapshot.ChainID).
		Str("token", snapshot.TokenSymbol).
		Float64("total_apy", snapshot.TotalAPY).
		Msg("APR snapshot saved")

	return snapshotID, nil
}

// LatestSnapshots returns, for each protocol, the most recent snapshot of the
// token on the chain taken at or after the cutoff.
func LatestSnapshots(chainID uint64, tokenSymbol string, since time.Time) ([]types.APRSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	query := selectSnapshotSQL + `
		WHERE snapshot_id IN (
			SELECT DISTINCT ON (protocol) snapshot_id
			FROM apr_snapshots
			WHERE chain_id = $1 AND token_symbol = $2 AND snapshot_timestamp >= $3
			ORDER BY protocol, snapshot_timestamp DESC
		)
		ORDER BY total_apy DESC;`
	rows, err := DB.Query(query, chainID, tokenSymbol, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshots: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// QuerySnapshots returns snapshot history matching the filter, newest first.
func QuerySnapshots(filter types.SnapshotFilter) ([]types.APRSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var conditions []string
	var args []any
	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.ChainID != 0 {
		addCondition("chain_id = $%d", filter.ChainID)
	}
	if filter.Protocol != "" {
		addCondition("protocol = $%d", filter.Protocol)
	}
	if filter.TokenAddress != "" {
		addCondition("token_address = $%d", filter.TokenAddress)
	}
	if filter.TokenSymbol != "" {
		addCondition("token_symbol = $%d", filter.TokenSymbol)
	}
	if !filter.From.IsZero() {
		addCondition("snapshot_timestamp >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		addCondition("snapshot_timestamp <= $%d", filter.To)
	}

	query := selectSnapshotSQL
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY snapshot_timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d;", len(args))

	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

const selectSnapshotSQL = `
	SELECT snapshot_id, chain_id, protocol, token_address, token_symbol,
		supply_apr, reward_apr, total_apy,
		total_value_locked_usd, utilization_rate, risk_metrics,
		block_number, snapshot_timestamp
	FROM apr_snapshots`

func scanSnapshots(rows *sql.Rows) ([]types.APRSnapshot, error) {
	var out []types.APRSnapshot
	for rows.Next() {
		var s types.APRSnapshot
		var riskJSON []byte
		err := rows.Scan(
			&s.ID, &s.ChainID, &s.Protocol, &s.TokenAddress, &s.TokenSymbol,
			&s.SupplyAPR, &s.RewardAPR, &s.TotalAPY,
			&s.TotalValueLocked, &s.UtilizationRate, &riskJSON,
			&s.BlockNumber, &s.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		if err := json.Unmarshal(riskJSON, &s.Risk); err != nil {
			return nil, fmt.Errorf("failed to unmarshal risk_metrics: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
