package hours

// Metadata is the per-instrument trading-hours payload cached by the
// metadata tracker and attached to positions.
type Metadata struct {
	TimeZoneID   string
	LiquidHours  string
	TradingHours string
}
