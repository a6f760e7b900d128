package model

import "github.com/shopspring/decimal"

// CandleSource records whether a candle was built from trades or overwritten
// by a snapshot.
type CandleSource string

const (
	CandleSourceTrades   CandleSource = "trades"
	CandleSourceSnapshot CandleSource = "snapshot"
)

// CandleKey identifies a candle bucket: (symbol, exchange, interval, bucket_ts).
type CandleKey struct {
	Symbol   string
	Exchange string
	Interval int64 // milliseconds
	BucketTS int64 // milliseconds, floor(t/interval)*interval
}

// Candle is a single OHLC bucket.
type Candle struct {
	Key        CandleKey
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	TradeCount int
	Source     CandleSource
	IsComplete bool
}

// BucketTS returns floor(t/interval)*interval.
func BucketTS(t, interval int64) int64 {
	if interval <= 0 {
		return t
	}
	return (t / interval) * interval
}

// Valid checks the candle invariant low <= open,close <= high and volume >= 0.
func (c *Candle) Valid() bool {
	if c.Volume.IsNegative() {
		return false
	}
	if c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) {
		return false
	}
	if c.High.LessThan(c.Open) || c.High.LessThan(c.Close) {
		return false
	}
	return true
}
