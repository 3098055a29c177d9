package projection

import (
	"time"

	"PortView/internal/hours"
)

// Position is one holding in an emitted snapshot. Local fields are in the
// position's own currency; the *Base fields are converted to the account's
// base currency and are nil while the conversion rate is unknown.
type Position struct {
	ConID         int64   `json:"conId"`
	Symbol        string  `json:"symbol"`
	Currency      string  `json:"currency"`
	Quantity      float64 `json:"quantity"`
	AvgCost       float64 `json:"avgCost"`
	Price         float64 `json:"price"`
	MarketValue   float64 `json:"marketValue"`
	UnrealizedPnL float64 `json:"unrealizedPnL"`
	RealizedPnL   float64 `json:"realizedPnL"`

	FXRateToBase      *float64 `json:"fxRateToBase,omitempty"`
	MarketValueBase   *float64 `json:"marketValueBase,omitempty"`
	UnrealizedPnLBase *float64 `json:"unrealizedPnLBase,omitempty"`
	FXPending         bool     `json:"fxPending"`

	Hours *hours.Metadata `json:"hours,omitempty"`
}

// CurrencyAmount is a currency-keyed value. Snapshot lists of these are
// always sorted lexicographically by currency so emission is deterministic.
type CurrencyAmount struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

// PortfolioSnapshot is the immutable materialized view emitted after every
// state-affecting event.
type PortfolioSnapshot struct {
	Positions []Position `json:"positions"`

	// Aggregates in base currency, summed over positions with a resolved
	// rate only.
	PositionsMarketValue   float64 `json:"positionsMarketValue"`
	PositionsUnrealizedPnL float64 `json:"positionsUnrealizedPnL"`

	// CashBalance is the externally reported base-currency total when
	// known, otherwise the sum of resolved per-currency equivalents.
	CashBalance            float64          `json:"cashBalance"`
	CashBalancesByCurrency []CurrencyAmount `json:"cashBalancesByCurrency"`
	CashExchangeRates      []CurrencyAmount `json:"cashExchangeRates"`

	// BaseCurrency is empty until learned from the account stream.
	BaseCurrency string  `json:"baseCurrency,omitempty"`
	TotalEquity  float64 `json:"totalEquity"`

	InitialLoadComplete bool      `json:"initialLoadComplete"`
	LastUpdateAt        time.Time `json:"lastUpdateAt"`

	PositionCount           int              `json:"positionCount"`
	PositionsPendingFXCount int              `json:"positionsPendingFxCount"`
	PendingFXByCurrency     []CurrencyAmount `json:"positionsPendingFxByCurrency"`
}
