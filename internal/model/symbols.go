package model

import "github.com/shopspring/decimal"

// tickSizes is the per-symbol minimum price increment table referenced by
// spec.md §6 ("e.g. BTC-PYUSD -> 0.5"). Kept as a small static map rather
// than a config-loaded table since tick sizes are venue-published facts,
// not operator-tunable parameters; an operator who needs a new symbol adds
// an entry here.
var tickSizes = map[string]decimal.Decimal{
	"BTC-PYUSD": decimal.RequireFromString("0.5"),
	"ETH-PYUSD": decimal.RequireFromString("0.05"),
	"SOL-PYUSD": decimal.RequireFromString("0.001"),
	"BTC-USD":   decimal.RequireFromString("0.5"),
	"ETH-USD":   decimal.RequireFromString("0.05"),
}

// TickSize returns the configured tick size for symbol and whether it is known.
func TickSize(symbol string) (decimal.Decimal, bool) {
	t, ok := tickSizes[symbol]
	return t, ok
}

// SnapToTick rounds price to the nearest multiple of tick.
func SnapToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return price
	}
	units := price.DivRound(tick, 0)
	return units.Mul(tick)
}

// RegisterSymbol allows tests and operators to add/override a tick size at runtime.
func RegisterSymbol(symbol string, tick decimal.Decimal) {
	tickSizes[symbol] = tick
}
