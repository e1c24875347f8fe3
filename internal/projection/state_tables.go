package projection

import (
	"context"
	"database/sql"
	"fmt"
)

// MarketStateRow mirrors one market's committed core state.
type MarketStateRow struct {
	MarketIndex               uint16
	Name                      string
	DepositBalance            int64
	BorrowBalance             int64
	CumulativeDepositInterest int64
	CumulativeBorrowInterest  int64
	RevenuePool               int64
	TotalIfShares             int64
	UserIfShares              int64
	InsuranceVaultBalance     int64
	LastSequence              int64
}

// StakeStateRow mirrors one stake record, including the outstanding
// escrowed withdrawal request if any.
type StakeStateRow struct {
	MarketIndex               uint16
	Authority                 string
	IfShares                  int64
	LastWithdrawRequestShares int64
	LastWithdrawRequestValue  int64
	LastWithdrawRequestTs     int64
	LastSequence              int64
}

// UserStatsRow mirrors one authority's stake-value rollup.
type UserStatsRow struct {
	Authority                    string
	NumberOfUsers                int64
	QuoteAssetInsuranceFundStake int64
	LastSequence                 int64
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// The upserts guard on last_sequence so a startup sync and the streaming
// worker can interleave without an older view clobbering a newer one.

func upsertMarketState(ctx context.Context, ex execer, r MarketStateRow) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.market_summary
			(market_index, name, deposit_balance, borrow_balance,
			 cumulative_deposit_interest, cumulative_borrow_interest,
			 revenue_pool, total_if_shares, user_if_shares,
			 insurance_vault_balance, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (market_index) DO UPDATE SET
			name = EXCLUDED.name,
			deposit_balance = EXCLUDED.deposit_balance,
			borrow_balance = EXCLUDED.borrow_balance,
			cumulative_deposit_interest = EXCLUDED.cumulative_deposit_interest,
			cumulative_borrow_interest = EXCLUDED.cumulative_borrow_interest,
			revenue_pool = EXCLUDED.revenue_pool,
			total_if_shares = EXCLUDED.total_if_shares,
			user_if_shares = EXCLUDED.user_if_shares,
			insurance_vault_balance = EXCLUDED.insurance_vault_balance,
			last_sequence = EXCLUDED.last_sequence
		WHERE projections.market_summary.last_sequence <= EXCLUDED.last_sequence
	`, int32(r.MarketIndex), r.Name, r.DepositBalance, r.BorrowBalance,
		r.CumulativeDepositInterest, r.CumulativeBorrowInterest,
		r.RevenuePool, r.TotalIfShares, r.UserIfShares,
		r.InsuranceVaultBalance, r.LastSequence)
	return err
}

func upsertStakeState(ctx context.Context, ex execer, r StakeStateRow) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.stakes
			(market_index, authority, if_shares, last_withdraw_request_shares,
			 last_withdraw_request_value, last_withdraw_request_ts, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_index, authority) DO UPDATE SET
			if_shares = EXCLUDED.if_shares,
			last_withdraw_request_shares = EXCLUDED.last_withdraw_request_shares,
			last_withdraw_request_value = EXCLUDED.last_withdraw_request_value,
			last_withdraw_request_ts = EXCLUDED.last_withdraw_request_ts,
			last_sequence = EXCLUDED.last_sequence
		WHERE projections.stakes.last_sequence <= EXCLUDED.last_sequence
	`, int32(r.MarketIndex), r.Authority, r.IfShares, r.LastWithdrawRequestShares,
		r.LastWithdrawRequestValue, r.LastWithdrawRequestTs, r.LastSequence)
	return err
}

func upsertUserStats(ctx context.Context, ex execer, r UserStatsRow) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.user_stats
			(authority, number_of_users, quote_asset_insurance_fund_stake, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (authority) DO UPDATE SET
			number_of_users = EXCLUDED.number_of_users,
			quote_asset_insurance_fund_stake = EXCLUDED.quote_asset_insurance_fund_stake,
			last_sequence = EXCLUDED.last_sequence
		WHERE projections.user_stats.last_sequence <= EXCLUDED.last_sequence
	`, r.Authority, r.NumberOfUsers, r.QuoteAssetInsuranceFundStake, r.LastSequence)
	return err
}

// SyncStateTables writes a full set of state rows in one transaction. Called
// on startup after replay so the read API serves current state immediately,
// not just rows the next events happen to touch.
func SyncStateTables(
	ctx context.Context,
	db *sql.DB,
	markets []MarketStateRow,
	stakes []StakeStateRow,
	stats []UserStatsRow,
) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range markets {
		if err := upsertMarketState(ctx, tx, r); err != nil {
			return fmt.Errorf("sync market %d: %w", r.MarketIndex, err)
		}
	}
	for _, r := range stakes {
		if err := upsertStakeState(ctx, tx, r); err != nil {
			return fmt.Errorf("sync stake %d/%s: %w", r.MarketIndex, r.Authority, err)
		}
	}
	for _, r := range stats {
		if err := upsertUserStats(ctx, tx, r); err != nil {
			return fmt.Errorf("sync stats %s: %w", r.Authority, err)
		}
	}

	return tx.Commit()
}
