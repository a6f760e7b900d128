package model

import "github.com/shopspring/decimal"

// BookLevel is a single price/size level in an L2 book.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookSnapshot is the wire shape of a full reference-venue book replace.
type BookSnapshot struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
	TS     int64
}

// BookDelta is a single incremental level update: size==0 removes the level.
type BookDelta struct {
	Symbol string
	Side   Side
	Price  decimal.Decimal
	Size   decimal.Decimal
	TS     int64
}

// Trade is a normalized reference-venue print.
type Trade struct {
	Symbol string
	Price  decimal.Decimal
	Size   decimal.Decimal
	Side   Side
	TS     int64
}

// AggregatedPrice is PriceAggregator's output.
type AggregatedPrice struct {
	Symbol      string
	WeightedMid decimal.Decimal
	Confidence  float64
	TopBid      decimal.Decimal
	TopAsk      decimal.Decimal
	TS          int64
}
