package event

import "fmt"

// OraclePriceUpdate represents a price update from the oracle feed
type OraclePriceUpdate struct {
	Market         uint16
	Price          int64 // Fixed-point: price scale (1_000_000)
	Confidence     int64 // Fixed-point: price scale, width of the confidence band
	PriceSequence  int64 // Monotonic per market
	PriceTimestamp int64 // Epoch microseconds (versioned input)
}

func (o *OraclePriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%d:price:%d", o.Market, o.PriceSequence)
}

func (o *OraclePriceUpdate) EventType() EventType {
	return EventTypeOraclePriceUpdate
}

func (o *OraclePriceUpdate) MarketIndex() *uint16 {
	idx := o.Market
	return &idx
}

func (o *OraclePriceUpdate) SourceSequence() int64 {
	return o.PriceSequence
}
