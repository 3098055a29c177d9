package tws

// TickType discriminates quote tick payloads. Values follow the upstream
// terminal API's numeric tick-type codes.
type TickType int32

const (
	TickBidPrice     TickType = 1
	TickAskPrice     TickType = 2
	TickLastPrice    TickType = 4
	TickMarkPrice    TickType = 37
	TickDelayedBid   TickType = 66
	TickDelayedAsk   TickType = 67
	TickDelayedLast  TickType = 68
	TickDelayedMark  TickType = 79
)

func (t TickType) String() string {
	switch t {
	case TickBidPrice:
		return "BidPrice"
	case TickAskPrice:
		return "AskPrice"
	case TickLastPrice:
		return "LastPrice"
	case TickMarkPrice:
		return "MarkPrice"
	case TickDelayedBid:
		return "DelayedBid"
	case TickDelayedAsk:
		return "DelayedAsk"
	case TickDelayedLast:
		return "DelayedLast"
	case TickDelayedMark:
		return "DelayedMark"
	default:
		return "Unknown"
	}
}

// Normalize folds delayed tick types onto their live counterparts so a feed
// configured for delayed market data still derives rates.
func (t TickType) Normalize() TickType {
	switch t {
	case TickDelayedBid:
		return TickBidPrice
	case TickDelayedAsk:
		return TickAskPrice
	case TickDelayedLast:
		return TickLastPrice
	case TickDelayedMark:
		return TickMarkPrice
	default:
		return t
	}
}
