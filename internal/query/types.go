package query

// VaultBalanceResponse reports a market's two token pools.
type VaultBalanceResponse struct {
	MarketIndex           uint16 `json:"market_index"`
	Asset                 string `json:"asset"`
	SpotVaultBalance      int64  `json:"spot_vault_balance"`
	InsuranceVaultBalance int64  `json:"insurance_vault_balance"`
	AsOfSequence          int64  `json:"as_of_sequence"`
}

// InsuranceHistoryResponse represents one insurance fund token flow for API
// queries: a stake deposit, an unstake payout, or a revenue settle.
type InsuranceHistoryResponse struct {
	MarketIndex   uint16 `json:"market_index"`
	JournalType   int32  `json:"journal_type"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	Sequence      int64  `json:"sequence"`
	Timestamp     int64  `json:"timestamp"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// MarketSummaryResponse reports one market's mirrored state.
type MarketSummaryResponse struct {
	MarketIndex               uint16 `json:"market_index"`
	Name                      string `json:"name"`
	DepositBalance            int64  `json:"deposit_balance"`
	BorrowBalance             int64  `json:"borrow_balance"`
	CumulativeDepositInterest int64  `json:"cumulative_deposit_interest"`
	CumulativeBorrowInterest  int64  `json:"cumulative_borrow_interest"`
	RevenuePool               int64  `json:"revenue_pool"`
	TotalIfShares             int64  `json:"total_if_shares"`
	UserIfShares              int64  `json:"user_if_shares"`
	InsuranceVaultBalance     int64  `json:"insurance_vault_balance"`
	AsOfSequence              int64  `json:"as_of_sequence"`
}

// StakeResponse reports one authority's stake in a market. CurrentValue is
// the shares revalued at the vault ratio as of the row's sequence; the
// request fields are nonzero only while an escrowed withdrawal is open.
type StakeResponse struct {
	MarketIndex               uint16 `json:"market_index"`
	Authority                 string `json:"authority"`
	IfShares                  int64  `json:"if_shares"`
	CurrentValue              int64  `json:"current_value"`
	LastWithdrawRequestShares int64  `json:"last_withdraw_request_shares"`
	LastWithdrawRequestValue  int64  `json:"last_withdraw_request_value"`
	LastWithdrawRequestTs     int64  `json:"last_withdraw_request_ts"`
	AsOfSequence              int64  `json:"as_of_sequence"`
}

// UserStatsResponse reports an authority's stake rollup across markets.
type UserStatsResponse struct {
	Authority                    string `json:"authority"`
	NumberOfUsers                int64  `json:"number_of_users"`
	QuoteAssetInsuranceFundStake int64  `json:"quote_asset_insurance_fund_stake"`
	AsOfSequence                 int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// EventLogEntry represents an event log row for API queries.
type EventLogEntry struct {
	Sequence       int64   `json:"sequence"`
	EventType      string  `json:"event_type"`
	IdempotencyKey string  `json:"idempotency_key"`
	MarketIndex    *uint16 `json:"market_index,omitempty"`
	StateHash      []byte  `json:"state_hash"`
	PrevHash       []byte  `json:"prev_hash"`
	SourceSequence int64   `json:"source_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
