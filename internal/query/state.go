package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	fpmath "SpotVault/internal/math"
)

// GetMarketSummary returns one market's mirrored state: balances, interest
// indices, share totals, and the revenue pool. Returns nil when the market
// has no row.
func (qs *QueryService) GetMarketSummary(
	ctx context.Context,
	marketIndex uint16,
) (*MarketSummaryResponse, error) {
	var r MarketSummaryResponse
	var idx int32
	err := qs.db.QueryRowContext(ctx, `
		SELECT market_index, name, deposit_balance, borrow_balance,
		       cumulative_deposit_interest, cumulative_borrow_interest,
		       revenue_pool, total_if_shares, user_if_shares,
		       insurance_vault_balance, last_sequence
		FROM projections.market_summary
		WHERE market_index = $1
	`, int32(marketIndex)).Scan(
		&idx, &r.Name, &r.DepositBalance, &r.BorrowBalance,
		&r.CumulativeDepositInterest, &r.CumulativeBorrowInterest,
		&r.RevenuePool, &r.TotalIfShares, &r.UserIfShares,
		&r.InsuranceVaultBalance, &r.AsOfSequence,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.MarketIndex = uint16(idx)
	return &r, nil
}

// GetStake returns one authority's stake in a market, with the shares
// revalued at the current vault ratio and any outstanding escrowed request.
// Returns nil when there is no stake record.
func (qs *QueryService) GetStake(
	ctx context.Context,
	marketIndex uint16,
	authority uuid.UUID,
) (*StakeResponse, error) {
	var r StakeResponse
	var totalShares, vaultBalance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT s.if_shares, s.last_withdraw_request_shares,
		       s.last_withdraw_request_value, s.last_withdraw_request_ts,
		       s.last_sequence, m.total_if_shares, m.insurance_vault_balance
		FROM projections.stakes s
		JOIN projections.market_summary m ON m.market_index = s.market_index
		WHERE s.market_index = $1 AND s.authority = $2
	`, int32(marketIndex), authority.String()).Scan(
		&r.IfShares, &r.LastWithdrawRequestShares,
		&r.LastWithdrawRequestValue, &r.LastWithdrawRequestTs,
		&r.AsOfSequence, &totalShares, &vaultBalance,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.MarketIndex = marketIndex
	r.Authority = authority.String()
	if r.IfShares > 0 {
		value, err := fpmath.UnstakeSharesToAmount(r.IfShares, totalShares, vaultBalance)
		if err != nil {
			return nil, fmt.Errorf("stake valuation: %w", err)
		}
		r.CurrentValue = value
	}
	return &r, nil
}

// GetUserStats returns an authority's stake rollup across all markets.
// Returns nil when the authority has no stats record.
func (qs *QueryService) GetUserStats(
	ctx context.Context,
	authority uuid.UUID,
) (*UserStatsResponse, error) {
	var r UserStatsResponse
	err := qs.db.QueryRowContext(ctx, `
		SELECT number_of_users, quote_asset_insurance_fund_stake, last_sequence
		FROM projections.user_stats
		WHERE authority = $1
	`, authority.String()).Scan(
		&r.NumberOfUsers, &r.QuoteAssetInsuranceFundStake, &r.AsOfSequence,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Authority = authority.String()
	return &r, nil
}
