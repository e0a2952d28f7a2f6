package domain

import "time"

// Transaction is one signed, persisted chain transaction. The composite key
// (Chain, ChainType, Address, Nonce) is unique; RawTransaction is immutable
// once created.
type Transaction struct {
	ID               uint64
	Chain            Chain
	ChainType        ChainType
	Address          string
	Nonce            uint64
	ReferenceTable   string
	ReferenceID      string
	RawTransaction   string
	TransactionHash  string
	Status           TxStatus
	WebhookTriggered bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type TxStatus string

const (
	TxStatusPending   TxStatus = "PENDING"
	TxStatusConfirmed TxStatus = "CONFIRMED"
	TxStatusFailed    TxStatus = "FAILED"
)

// Terminal reports whether the status can no longer change without an
// explicit administrative override.
func (s TxStatus) Terminal() bool {
	return s == TxStatusConfirmed || s == TxStatusFailed
}
