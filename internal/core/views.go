package core

import (
	"github.com/google/uuid"

	"SpotVault/internal/event"
)

// MarketView is a read-model copy of one market's committed state, attached
// to outputs so the shell can mirror it into queryable projection tables.
type MarketView struct {
	MarketIndex               uint16
	Name                      string
	DepositBalance            int64
	BorrowBalance             int64
	CumulativeDepositInterest int64
	CumulativeBorrowInterest  int64
	RevenuePoolBalance        int64
	TotalIfShares             int64
	UserIfShares              int64
	InsuranceVaultBalance     int64
}

// StakeView is a read-model copy of one stake record, including any
// outstanding escrowed withdrawal request.
type StakeView struct {
	MarketIndex               uint16
	Authority                 uuid.UUID
	IfShares                  int64
	LastWithdrawRequestShares int64
	LastWithdrawRequestValue  int64
	LastWithdrawRequestTs     int64
}

// StatsView is a read-model copy of an authority's stake-value rollup.
type StatsView struct {
	Authority                    uuid.UUID
	NumberOfUsers                int64
	QuoteAssetInsuranceFundStake int64
}

// attachStateViews copies the committed state touched by evt onto the
// output. Views reflect state after the event applied.
func (c *VaultCore) attachStateViews(output *CoreOutput, evt event.Event) {
	idx := evt.MarketIndex()
	if idx != nil {
		if m, err := c.markets.Get(*idx); err == nil {
			output.MarketView = &MarketView{
				MarketIndex:               m.MarketIndex,
				Name:                      m.Name,
				DepositBalance:            m.DepositBalance,
				BorrowBalance:             m.BorrowBalance,
				CumulativeDepositInterest: m.CumulativeDepositInterest,
				CumulativeBorrowInterest:  m.CumulativeBorrowInterest,
				RevenuePoolBalance:        m.RevenuePool.Balance,
				TotalIfShares:             m.TotalIfShares,
				UserIfShares:              m.UserIfShares,
				InsuranceVaultBalance:     c.insuranceVaultBalanceOf(m.MarketIndex),
			}
		}
	}

	authority := eventAuthority(evt)
	if authority == nil || !isStakeEvent(evt) {
		return
	}
	if idx != nil {
		if s, err := c.stakes.Get(*idx, *authority); err == nil {
			output.StakeView = &StakeView{
				MarketIndex:               s.MarketIndex,
				Authority:                 s.Authority,
				IfShares:                  s.IfShares,
				LastWithdrawRequestShares: s.LastWithdrawRequestShares,
				LastWithdrawRequestValue:  s.LastWithdrawRequestValue,
				LastWithdrawRequestTs:     s.LastWithdrawRequestTs,
			}
		}
	}
	if s, ok := c.stats.Get(*authority); ok {
		output.StatsView = &StatsView{
			Authority:                    s.Authority,
			NumberOfUsers:                s.NumberOfUsers,
			QuoteAssetInsuranceFundStake: s.QuoteAssetInsuranceFundStake,
		}
	}
}

// ExportStateViews returns views of every market, stake, and stats record.
// Used on startup to seed the state projection tables after replay.
func (c *VaultCore) ExportStateViews() ([]MarketView, []StakeView, []StatsView) {
	var markets []MarketView
	for _, idx := range c.markets.ActiveMarkets() {
		m, err := c.markets.Get(idx)
		if err != nil {
			continue
		}
		markets = append(markets, MarketView{
			MarketIndex:               m.MarketIndex,
			Name:                      m.Name,
			DepositBalance:            m.DepositBalance,
			BorrowBalance:             m.BorrowBalance,
			CumulativeDepositInterest: m.CumulativeDepositInterest,
			CumulativeBorrowInterest:  m.CumulativeBorrowInterest,
			RevenuePoolBalance:        m.RevenuePool.Balance,
			TotalIfShares:             m.TotalIfShares,
			UserIfShares:              m.UserIfShares,
			InsuranceVaultBalance:     c.insuranceVaultBalanceOf(m.MarketIndex),
		})
	}

	var stakes []StakeView
	for _, s := range c.stakes.All() {
		stakes = append(stakes, StakeView{
			MarketIndex:               s.MarketIndex,
			Authority:                 s.Authority,
			IfShares:                  s.IfShares,
			LastWithdrawRequestShares: s.LastWithdrawRequestShares,
			LastWithdrawRequestValue:  s.LastWithdrawRequestValue,
			LastWithdrawRequestTs:     s.LastWithdrawRequestTs,
		})
	}

	var stats []StatsView
	for _, s := range c.stats.All() {
		stats = append(stats, StatsView{
			Authority:                    s.Authority,
			NumberOfUsers:                s.NumberOfUsers,
			QuoteAssetInsuranceFundStake: s.QuoteAssetInsuranceFundStake,
		})
	}

	return markets, stakes, stats
}
