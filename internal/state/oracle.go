package state

import "fmt"

// OraclePrice is the latest confirmed price observation for a market.
type OraclePrice struct {
	MarketIndex uint16
	Price       int64 // PricePrecision scale
	Confidence  int64
	Sequence    int64
	Timestamp   int64
}

// OracleManager tracks the latest oracle price per market. Price sequences
// may gap; stale or duplicate sequences are ignored.
type OracleManager struct {
	prices map[uint16]*OraclePrice
}

func NewOracleManager() *OracleManager {
	return &OracleManager{prices: make(map[uint16]*OraclePrice)}
}

// UpdatePrice stores a price observation. Out-of-order observations are
// silently dropped.
func (om *OracleManager) UpdatePrice(marketIndex uint16, price, confidence, sequence, timestamp int64) error {
	if price <= 0 {
		return fmt.Errorf("%w: non-positive price %d for market %d", ErrInvalidConfiguration, price, marketIndex)
	}

	current := om.prices[marketIndex]
	if current != nil && sequence <= current.Sequence {
		return nil
	}

	om.prices[marketIndex] = &OraclePrice{
		MarketIndex: marketIndex,
		Price:       price,
		Confidence:  confidence,
		Sequence:    sequence,
		Timestamp:   timestamp,
	}
	return nil
}

// Price returns the latest observation, failing when none exists or the
// observation is older than the market's staleness threshold.
func (om *OracleManager) Price(m *SpotMarket, now int64) (*OraclePrice, error) {
	p, ok := om.prices[m.MarketIndex]
	if !ok {
		return nil, fmt.Errorf("%w: market %d", ErrNoOraclePrice, m.MarketIndex)
	}
	if now-p.Timestamp > m.OracleStalenessThreshold {
		return nil, fmt.Errorf("%w: market %d price age %ds exceeds %ds",
			ErrStaleOracle, m.MarketIndex, now-p.Timestamp, m.OracleStalenessThreshold)
	}
	return p, nil
}

// Restore directly sets a price (used for snapshot restore).
func (om *OracleManager) Restore(p *OraclePrice) {
	om.prices[p.MarketIndex] = p
}

// All returns all latest prices (for snapshot creation).
func (om *OracleManager) All() map[uint16]*OraclePrice {
	result := make(map[uint16]*OraclePrice, len(om.prices))
	for k, v := range om.prices {
		result[k] = v
	}
	return result
}
