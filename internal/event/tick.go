package event

import "PortView/internal/tws"

// TickPrice is a price tick on a quote subscription.
type TickPrice struct {
	ReqID int64
	Tick  tws.TickType
	Price float64
}

func (*TickPrice) Kind() Kind { return KindTickPrice }

// TickSize is a size tick. The FX path ignores sizes but the event is part
// of the quote stream contract.
type TickSize struct {
	ReqID int64
	Tick  tws.TickType
	Size  float64
}

func (*TickSize) Kind() Kind { return KindTickSize }

// TickGeneric carries generic-tick values such as mark price.
type TickGeneric struct {
	ReqID int64
	Tick  tws.TickType
	Value float64
}

func (*TickGeneric) Kind() Kind { return KindTickGeneric }

// TickString carries string-valued ticks (timestamps, option data).
type TickString struct {
	ReqID int64
	Tick  tws.TickType
	Value string
}

func (*TickString) Kind() Kind { return KindTickString }

// TickParams reports market-data parameters for a subscription.
type TickParams struct {
	ReqID       int64
	MinTick     float64
	BBOExchange string
}

func (*TickParams) Kind() Kind { return KindTickParams }

// TickSnapshotEnd terminates a snapshot quote request.
type TickSnapshotEnd struct {
	ReqID int64
}

func (*TickSnapshotEnd) Kind() Kind { return KindTickSnapshotEnd }

// UpstreamError is an error event from the terminal, tied to a request id
// when ReqID is positive.
type UpstreamError struct {
	ReqID int64
	Code  int
	Err   error
}

func (*UpstreamError) Kind() Kind { return KindUpstreamError }
