package models

import (
	"mmpay/src/types"
	"time"

	"github.com/google/uuid"
)

// TransactionEvent is one row of a transaction's append-only status
// history. Rows are only ever inserted; the (transaction_id, seq) pair
// keeps the audit trail ordered and the (transaction_id, leg, outcome)
// triple is what makes duplicate callbacks detectable.
type TransactionEvent struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`

	TransactionID uuid.UUID `gorm:"not null;index:idx_txn_events_seq,priority:1" json:"transaction_id"`
	Seq           int       `gorm:"not null;index:idx_txn_events_seq,priority:2" json:"seq"`

	FromStatus types.TransactionStatus `gorm:"not null" json:"from_status"`
	ToStatus   types.TransactionStatus `gorm:"not null" json:"to_status"`
	Reason     string                  `json:"reason,omitempty"`

	// Leg/Outcome/RequestID are set when the transition was driven by a
	// gateway callback (or the sweep acting as one); empty otherwise.
	Leg       types.PaymentLeg      `gorm:"index:idx_txn_events_leg" json:"leg,omitempty"`
	Outcome   types.CallbackOutcome `gorm:"index:idx_txn_events_leg" json:"outcome,omitempty"`
	RequestID string                `json:"request_id,omitempty"`

	RecordedAt time.Time `gorm:"autoCreateTime:nano" json:"recorded_at"`
}
