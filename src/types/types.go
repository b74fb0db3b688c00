package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

// TransactionStatus is the single forward-only status of a payment
// transaction. Terminal values are SETTLED, REVERSED and COLLECTION_FAILED.
type TransactionStatus string

const (
	TRANSACTION_CREATED            TransactionStatus = "CREATED"
	TRANSACTION_COLLECTION_PENDING TransactionStatus = "COLLECTION_PENDING"
	TRANSACTION_COLLECTION_FAILED  TransactionStatus = "COLLECTION_FAILED"
	TRANSACTION_COLLECTED          TransactionStatus = "COLLECTED"
	TRANSACTION_DISBURSE_PENDING   TransactionStatus = "DISBURSEMENT_PENDING"
	TRANSACTION_DISBURSE_FAILED    TransactionStatus = "DISBURSEMENT_FAILED"
	TRANSACTION_SETTLED            TransactionStatus = "SETTLED"
	TRANSACTION_REVERSAL_PENDING   TransactionStatus = "REVERSAL_PENDING"
	TRANSACTION_REVERSED           TransactionStatus = "REVERSED"
)

// Terminal reports whether no further transition may leave the status.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TRANSACTION_SETTLED, TRANSACTION_REVERSED, TRANSACTION_COLLECTION_FAILED:
		return true
	}
	return false
}

// PaymentLeg names which gateway operation a request id or callback
// belongs to.
type PaymentLeg string

const (
	LEG_COLLECTION   PaymentLeg = "collection"
	LEG_DISBURSEMENT PaymentLeg = "disbursement"
	LEG_REVERSAL     PaymentLeg = "reversal"
)

// CallbackOutcome is the gateway-reported result for a leg.
type CallbackOutcome string

const (
	OUTCOME_SUCCESS CallbackOutcome = "success"
	OUTCOME_FAILURE CallbackOutcome = "failure"
)

// GatewayCallback is the decoded webhook payload. RequestID is the
// gateway-assigned correlation id returned when the leg was initiated;
// ReportedAmount is what the gateway says it actually moved, in minor
// currency units.
type GatewayCallback struct {
	RequestID      string          `json:"request_id"`
	Leg            PaymentLeg      `json:"leg"`
	Outcome        CallbackOutcome `json:"outcome"`
	ReportedAmount int64           `json:"reported_amount"`
	FailureReason  string          `json:"failure_reason,omitempty"`
}

type ReviewKind string

const (
	REVIEW_AMOUNT_MISMATCH     ReviewKind = "amount_mismatch"
	REVIEW_REVERSAL_STUCK      ReviewKind = "reversal_stuck"
	REVIEW_UNKNOWN_TRANSACTION ReviewKind = "unknown_transaction"
	REVIEW_REQUEST_UNCONFIRMED ReviewKind = "request_unconfirmed"
)

type NotifyEventKind string

const (
	NOTIFY_COLLECTION_FAILED NotifyEventKind = "collection_failed"
	NOTIFY_COLLECTED         NotifyEventKind = "collected"
	NOTIFY_SETTLED           NotifyEventKind = "settled"
	NOTIFY_PAYMENT_RECEIVED  NotifyEventKind = "payment_received"
	NOTIFY_REVERSAL_STARTED  NotifyEventKind = "reversal_started"
	NOTIFY_REVERSED          NotifyEventKind = "reversed"
)

type InitiatePaymentRequestBody struct {
	PayerReference string `json:"payer_reference" binding:"required,msisdn"`
	PayeeReference string `json:"payee_reference" binding:"required,msisdn"`
	GrossAmount    int64  `json:"gross_amount" binding:"required,gt=0"`
}

type ResolveReviewRequestBody struct {
	Note string `json:"note" binding:"required"`
}

type SimpleRequestParams struct {
	ID string `uri:"id" binding:"required,uuid"`
}
