package projection

// InsuranceHistoryEntry records one insurance fund token flow: a stake
// deposit, an unstake payout, or a revenue settle.
type InsuranceHistoryEntry struct {
	MarketIndex   uint16
	JournalType   int32
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalID     string
	Sequence      int64
	Timestamp     int64
}

// InsuranceHistoryProjection maintains a queryable in-memory insurance fund
// flow history, newest last. The durable copy lives in
// projections.insurance_history.
type InsuranceHistoryProjection struct {
	entries []InsuranceHistoryEntry
}

func NewInsuranceHistoryProjection() *InsuranceHistoryProjection {
	return &InsuranceHistoryProjection{
		entries: make([]InsuranceHistoryEntry, 0),
	}
}

// AddEntry records an insurance fund flow.
func (p *InsuranceHistoryProjection) AddEntry(entry InsuranceHistoryEntry) {
	p.entries = append(p.entries, entry)
}

// QueryByMarket returns the most recent flows for a market, newest first.
func (p *InsuranceHistoryProjection) QueryByMarket(marketIndex uint16, limit int) []InsuranceHistoryEntry {
	result := make([]InsuranceHistoryEntry, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].MarketIndex == marketIndex {
			result = append(result, p.entries[i])
		}
	}

	return result
}
