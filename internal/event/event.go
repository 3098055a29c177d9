package event

// Kind discriminates upstream event payloads
type Kind int32

const (
	KindUnknown Kind = iota
	KindPositionUpdate
	KindAccountValue
	KindAccountLoadComplete
	KindMetadataReceived
	KindMetadataRequestEnd
	KindTickPrice
	KindTickSize
	KindTickGeneric
	KindTickString
	KindTickParams
	KindTickSnapshotEnd
	KindUpstreamError
)

// Event is the interface all upstream event payloads implement. The feed's
// dispatch switch matches on the concrete type; Kind exists for logging and
// metrics labels.
type Event interface {
	Kind() Kind
}

// Sink receives upstream events from the transport layer. The feed's
// subscription implements it; the transport (or the simulator) calls
// Deliver for every event it decodes.
type Sink interface {
	Deliver(ev Event)
}

func (k Kind) String() string {
	switch k {
	case KindPositionUpdate:
		return "PositionUpdate"
	case KindAccountValue:
		return "AccountValue"
	case KindAccountLoadComplete:
		return "AccountLoadComplete"
	case KindMetadataReceived:
		return "MetadataReceived"
	case KindMetadataRequestEnd:
		return "MetadataRequestEnd"
	case KindTickPrice:
		return "TickPrice"
	case KindTickSize:
		return "TickSize"
	case KindTickGeneric:
		return "TickGeneric"
	case KindTickString:
		return "TickString"
	case KindTickParams:
		return "TickParams"
	case KindTickSnapshotEnd:
		return "TickSnapshotEnd"
	case KindUpstreamError:
		return "UpstreamError"
	default:
		return "Unknown"
	}
}
