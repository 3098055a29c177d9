package event

import "PortView/internal/tws"

// MetadataReceived carries the contract details answering a metadata
// request.
type MetadataReceived struct {
	ReqID   int64
	Details tws.ContractDetails
}

func (*MetadataReceived) Kind() Kind { return KindMetadataReceived }

// MetadataRequestEnd terminates a metadata request. It may arrive without a
// preceding MetadataReceived when the instrument is unknown upstream.
type MetadataRequestEnd struct {
	ReqID int64
}

func (*MetadataRequestEnd) Kind() Kind { return KindMetadataRequestEnd }
