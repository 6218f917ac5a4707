package model

import "time"

// Operation is the kind of a committed ledger change.
type Operation string

const (
	OpCredit   Operation = "credit"
	OpDebit    Operation = "debit"
	OpTransfer Operation = "transfer"
)

// Valid reports whether op is one of the three known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCredit, OpDebit, OpTransfer:
		return true
	}
	return false
}

// HistoryEntry is an immutable record of one committed operation.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	PerformerID AccountID `json:"performer_id"`
	Operation   Operation `json:"operation"`
	Amount      int64     `json:"amount"`
	Reason      string    `json:"reason"`
	TargetID    AccountID `json:"target_id,omitempty"`
	SourceID    AccountID `json:"source_id,omitempty"`
}
