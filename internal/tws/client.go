package tws

// Account-value keys consumed by the feed. The upstream terminal emits many
// more; everything else is ignored.
const (
	KeyTotalCashBalance = "TotalCashBalance"
	KeyExchangeRate     = "ExchangeRate"
	KeyTotalCashValue   = "TotalCashValue"
	KeyNetLiquidation   = "NetLiquidation"
)

// BaseCurrencyMarker is the pseudo currency code the terminal uses on
// account values that report the base-currency total across all currencies.
const BaseCurrencyMarker = "BASE"

// QuoteOptions control a market-data subscription.
type QuoteOptions struct {
	// Snapshot requests a one-shot quote instead of a stream.
	Snapshot bool
	// GenericTicks is the comma-separated generic tick list, e.g. "221"
	// for mark price.
	GenericTicks string
}

// Client is the outgoing-request half of the upstream terminal API. The
// transport/session layer that implements it is out of scope here; the
// in-repo implementation is the twssim simulator.
type Client interface {
	// SubscribeAccountUpdates starts or stops the account update stream
	// for one account.
	SubscribeAccountUpdates(subscribe bool, accountID string) error

	// RequestMetadata requests contract details for an instrument. The
	// response arrives as MetadataReceived/MetadataRequestEnd events
	// carrying reqID.
	RequestMetadata(reqID int64, c Contract) error

	// SubscribeQuote starts a market-data stream; ticks arrive as events
	// carrying reqID.
	SubscribeQuote(reqID int64, c Contract, opts QuoteOptions) error

	// CancelQuote stops a market-data stream.
	CancelQuote(reqID int64) error
}
