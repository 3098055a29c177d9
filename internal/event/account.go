package event

import "PortView/internal/tws"

// PositionUpdate reports the current state of one position in the account
// update stream. Quantity 0 means the position was closed. AvgCost and the
// PnL fields are omitted by some upstream versions; nil means "not
// reported", and the projection falls back to the previously stored value.
type PositionUpdate struct {
	Contract      tws.Contract
	Quantity      float64
	Price         float64
	MarketValue   float64
	AvgCost       *float64
	UnrealizedPnL *float64
	RealizedPnL   *float64
	AccountID     string
}

func (*PositionUpdate) Kind() Kind { return KindPositionUpdate }

// AccountValue is one key/value fact from the account update stream. Value
// arrives as a string; numeric keys are parsed by the feed. Currency is the
// local currency the value is denominated in, or "BASE" for cross-currency
// totals.
type AccountValue struct {
	Key       string
	Value     string
	Currency  string
	AccountID string
}

func (*AccountValue) Kind() Kind { return KindAccountValue }

// AccountLoadComplete signals that the initial account download finished.
type AccountLoadComplete struct {
	AccountID string
}

func (*AccountLoadComplete) Kind() Kind { return KindAccountLoadComplete }
