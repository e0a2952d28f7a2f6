package domain

// OnChainStatus is the settlement status an indexer reports for an
// extrinsic.
type OnChainStatus string

const (
	OnChainSuccess OnChainStatus = "success"
	OnChainFailed  OnChainStatus = "failed"
)

// Transfer is one balance movement reported by a chain indexer.
type Transfer struct {
	Amount        string
	BlockNumber   uint64
	ExtrinsicHash string
	Fee           string
	Timestamp     uint64
	Status        OnChainStatus
	From          string
	To            string
}

// EventKind tags the chain-family-specific event class a DomainEvent
// belongs to.
type EventKind string

const (
	EventStorageOrder EventKind = "storage_order"
	EventDIDRegistry  EventKind = "did_registry"
)

// DomainEvent is a chain-family-specific event (storage order placed, DID
// anchored) reported by an indexer. Fields beyond the extrinsic identity
// stay in Attributes; the engine only joins on ExtrinsicHash and Status.
type DomainEvent struct {
	Kind          EventKind
	ExtrinsicHash string
	BlockNumber   uint64
	Account       string
	Status        OnChainStatus
	Attributes    map[string]string
}
