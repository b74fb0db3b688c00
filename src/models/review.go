package models

import (
	"mmpay/src/types"

	"github.com/google/uuid"
)

// ReviewItem is a manual-intervention ticket: amount mismatches, reversals
// that exhausted their retries and callbacks that matched no transaction.
// These are never auto-resolved.
type ReviewItem struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`

	TransactionID *uuid.UUID       `gorm:"index" json:"transaction_id,omitempty"`
	Kind          types.ReviewKind `gorm:"not null;index" json:"kind"`
	Detail        types.JSONB      `json:"detail,omitempty"`

	Resolved     bool   `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedNote string `json:"resolved_note,omitempty"`

	types.Timestamps
}
