package models

import (
	"mmpay/src/types"
	"time"

	"github.com/google/uuid"
)

// Transaction is the unit of work: one payer-to-payee payment with a
// commission withheld. Amounts are minor currency units. NetAmount +
// CommissionAmount == GrossAmount always.
type Transaction struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`

	PayerReference string `gorm:"not null;index" json:"payer_reference"`
	PayeeReference string `gorm:"not null;index" json:"payee_reference"`

	GrossAmount      int64 `gorm:"not null" json:"gross_amount"`
	CommissionAmount int64 `gorm:"not null" json:"commission_amount"`
	NetAmount        int64 `gorm:"not null" json:"net_amount"`

	Status types.TransactionStatus `gorm:"not null;index" json:"status"`

	// Gateway correlation ids. Written under the optimistic lock when the
	// leg is claimed, then swapped for the gateway-assigned id once the
	// request is accepted. Unique indexes double as the callback lookup path.
	CollectionRequestID   *string `gorm:"uniqueIndex" json:"collection_request_id,omitempty"`
	DisbursementRequestID *string `gorm:"uniqueIndex" json:"disbursement_request_id,omitempty"`
	ReversalRequestID     *string `gorm:"uniqueIndex" json:"reversal_request_id,omitempty"`

	// Version is bumped on every write; updates are conditional on it.
	Version uint64 `gorm:"not null;default:0" json:"-"`

	// Frozen stops all automatic transitions, set on an amount mismatch
	// or when an in-flight gateway request could not be confirmed.
	Frozen           bool `gorm:"not null;default:false" json:"frozen,omitempty"`
	ReversalAttempts int  `gorm:"not null;default:0" json:"-"`

	LastTransitionAt time.Time   `json:"last_transition_at"`
	Metadata         types.JSONB `json:"metadata,omitempty"`

	Events []*TransactionEvent `gorm:"foreignKey:TransactionID" json:"events,omitempty"`

	types.Timestamps
}
