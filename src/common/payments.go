package common

import (
	"context"
	"errors"
	"log"
	"mmpay/src/config"
	"mmpay/src/db"
	"mmpay/src/lib"
	"mmpay/src/models"
	"mmpay/src/types"
	"mmpay/src/utils"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// allowedTransitions is the forward-only state machine. Any edge not
// listed here is illegal and will never be written to the ledger.
var allowedTransitions = map[types.TransactionStatus][]types.TransactionStatus{
	types.TRANSACTION_CREATED:            {types.TRANSACTION_COLLECTION_PENDING, types.TRANSACTION_COLLECTION_FAILED},
	types.TRANSACTION_COLLECTION_PENDING: {types.TRANSACTION_COLLECTED, types.TRANSACTION_COLLECTION_FAILED},
	types.TRANSACTION_COLLECTED:          {types.TRANSACTION_DISBURSE_PENDING, types.TRANSACTION_REVERSAL_PENDING},
	types.TRANSACTION_DISBURSE_PENDING:   {types.TRANSACTION_SETTLED, types.TRANSACTION_DISBURSE_FAILED},
	types.TRANSACTION_DISBURSE_FAILED:    {types.TRANSACTION_REVERSAL_PENDING},
	types.TRANSACTION_REVERSAL_PENDING:   {types.TRANSACTION_REVERSED},
}

func transitionAllowed(from, to types.TransactionStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionSpec describes one status-machine edge to apply: the target
// status, an audit reason, the callback identity that triggered it (empty
// for orchestrator-driven edges) and any extra column updates to write in
// the same conditional UPDATE.
type TransitionSpec struct {
	To        types.TransactionStatus
	Reason    string
	Leg       types.PaymentLeg
	Outcome   types.CallbackOutcome
	RequestID string
	Updates   map[string]any
}

// ApplyTransition performs a single optimistic-lock transition: the
// status write is conditional on the version the caller read, and the
// history row is appended in the same database transaction. Returns
// types.ErrStaleVersion when another worker got there first.
func ApplyTransition(txn *models.Transaction, spec *TransitionSpec) error {
	if txn.Frozen {
		return types.ErrIllegalTransition
	}
	if !transitionAllowed(txn.Status, spec.To) {
		log.Printf("[ledger] Refusing illegal transition %s -> %s for transaction %s\n", txn.Status, spec.To, txn.ID.String())
		return types.ErrIllegalTransition
	}
	now := time.Now()
	d := db.GetDb()
	return d.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":             spec.To,
			"version":            gorm.Expr("version + 1"),
			"last_transition_at": now,
		}
		for k, v := range spec.Updates {
			updates[k] = v
		}
		res := tx.
			Model(&models.Transaction{}).
			Where("id = ? AND version = ?", txn.ID, txn.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrStaleVersion
		}

		var seq int64
		if err := tx.
			Model(&models.TransactionEvent{}).
			Where("transaction_id = ?", txn.ID).
			Count(&seq).
			Error; err != nil {
			return err
		}
		event := models.TransactionEvent{
			TransactionID: txn.ID,
			Seq:           int(seq) + 1,
			FromStatus:    txn.Status,
			ToStatus:      spec.To,
			Reason:        spec.Reason,
			Leg:           spec.Leg,
			Outcome:       spec.Outcome,
			RequestID:     spec.RequestID,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		lib.TransitionsTotal.WithLabelValues(string(spec.To)).Inc()
		txn.Status = spec.To
		txn.Version++
		txn.LastTransitionAt = now
		return nil
	})
}

const maxTransitionRetries = 5

// TransitionWithRetry serializes concurrent mutations of one transaction:
// read the current row, let decide pick the edge (or bail out), write
// conditionally, and on a lost race re-read and re-decide. decide
// returning a nil spec means the transition is no longer applicable -- a
// duplicate callback or an already-completed recovery -- and is not an
// error. The applied flag reports whether THIS call wrote the edge;
// side effects (notifications, follow-up legs) must only fire when it is
// true, never merely because the row ended up in some status.
func TransitionWithRetry(id uuid.UUID, decide func(txn *models.Transaction) (*TransitionSpec, error)) (*models.Transaction, bool, error) {
	d := db.GetDb()
	for i := 0; i < maxTransitionRetries; i++ {
		var txn models.Transaction
		if err := d.
			Model(&models.Transaction{}).
			Where("id = ?", id).
			First(&txn).
			Error; err != nil {
			return nil, false, err
		}
		spec, err := decide(&txn)
		if err != nil {
			return &txn, false, err
		}
		if spec == nil {
			return &txn, false, nil
		}
		err = ApplyTransition(&txn, spec)
		if errors.Is(err, types.ErrStaleVersion) {
			continue
		}
		if err != nil {
			return &txn, false, err
		}
		return &txn, true, nil
	}
	return nil, false, types.ErrStaleVersion
}

// CreateTransaction validates and persists a new CREATED transaction with
// its commission split and the first history row.
func CreateTransaction(payerReference, payeeReference string, grossAmount int64) (*models.Transaction, error) {
	commission, net, err := utils.SplitAmount(grossAmount)
	if err != nil {
		return nil, err
	}
	txn := models.Transaction{
		PayerReference:   payerReference,
		PayeeReference:   payeeReference,
		GrossAmount:      grossAmount,
		CommissionAmount: commission,
		NetAmount:        net,
		Status:           types.TRANSACTION_CREATED,
		LastTransitionAt: time.Now(),
	}
	d := db.GetDb()
	if err := d.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}
		event := models.TransactionEvent{
			TransactionID: txn.ID,
			Seq:           1,
			FromStatus:    types.TRANSACTION_CREATED,
			ToStatus:      types.TRANSACTION_CREATED,
			Reason:        "payment requested",
		}
		return tx.Create(&event).Error
	}); err != nil {
		log.Printf("Error creating Transaction: %s\n", err.Error())
		return nil, err
	}
	lib.TransitionsTotal.WithLabelValues(string(types.TRANSACTION_CREATED)).Inc()
	return &txn, nil
}

const gatewayAttempts = 3

func gatewayRetryable(err error) bool {
	return errors.Is(err, types.ErrGatewayUnavailable)
}

// claimRefPrefix marks a request-id column as held by a worker that has
// not yet stored the gateway-assigned id. The claim is written under the
// optimistic lock BEFORE any gateway request exists, so of any number of
// racing workers exactly one can ever issue the money-moving call.
const claimRefPrefix = "claim-"

func newClaimRef() string {
	return claimRefPrefix + uuid.NewString()
}

func isClaimRef(ref string) bool {
	return strings.HasPrefix(ref, claimRefPrefix)
}

// storeGatewayRequestID swaps a claim ref for the gateway-assigned id.
// Conditional on the claim, so a rotated or already-resolved claim is
// never overwritten.
func storeGatewayRequestID(id uuid.UUID, column, claim, requestID string) error {
	d := db.GetDb()
	res := d.
		Model(&models.Transaction{}).
		Where("id = ? AND "+column+" = ?", id, claim).
		Updates(map[string]any{
			column:    requestID,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		log.Printf("[payments] Claim on %s for %s was taken over before the gateway id could be stored\n", column, id.String())
		return types.ErrStaleVersion
	}
	return nil
}

// InitiatePayment is the public entry point: validate, split, persist
// CREATED and ask the gateway to collect the gross amount from the payer.
// A synchronous rejection (or exhausted retries) marks the
// transaction COLLECTION_FAILED and propagates the error; nothing is
// left in limbo.
func InitiatePayment(ctx context.Context, payerReference, payeeReference string, grossAmount int64) (uuid.UUID, error) {
	txn, err := CreateTransaction(payerReference, payeeReference, grossAmount)
	if err != nil {
		return uuid.Nil, err
	}

	gw := lib.GetGateway()
	var requestID string
	err = utils.WithBackoff(ctx, "collection", gatewayAttempts, time.Second, func() error {
		var err error
		requestID, err = gw.InitiateCollection(ctx, payerReference, grossAmount, txn.ID.String())
		return err
	}, gatewayRetryable)
	if err != nil {
		log.Printf("[payments] Collection request for %s failed: %s\n", txn.ID.String(), err.Error())
		_, applied, terr := TransitionWithRetry(txn.ID, func(t *models.Transaction) (*TransitionSpec, error) {
			if t.Status != types.TRANSACTION_CREATED {
				return nil, nil
			}
			return &TransitionSpec{
				To:     types.TRANSACTION_COLLECTION_FAILED,
				Reason: "collection request rejected: " + err.Error(),
			}, nil
		})
		if terr != nil {
			log.Printf("[payments] Error recording collection failure for %s: %s\n", txn.ID.String(), terr.Error())
		} else if applied {
			lib.Notify(payerReference, types.NOTIFY_COLLECTION_FAILED, txn.ID.String())
		}
		return txn.ID, err
	}

	if _, _, err := TransitionWithRetry(txn.ID, func(t *models.Transaction) (*TransitionSpec, error) {
		if t.Status != types.TRANSACTION_CREATED {
			return nil, nil
		}
		return &TransitionSpec{
			To:        types.TRANSACTION_COLLECTION_PENDING,
			Reason:    "collection request accepted",
			Leg:       types.LEG_COLLECTION,
			RequestID: requestID,
			Updates:   map[string]any{"collection_request_id": requestID},
		}, nil
	}); err != nil {
		return txn.ID, err
	}
	return txn.ID, nil
}

// StartDisbursement issues the second leg. The DISBURSEMENT_PENDING claim
// is taken under the transaction's optimistic lock before the gateway is
// ever called: a worker that loses the claim never reaches the gateway,
// so at most one disbursement request can exist for a transaction no
// matter how many callbacks, retries and sweeps race here.
func StartDisbursement(ctx context.Context, id uuid.UUID) error {
	claim := newClaimRef()
	txn, claimed, err := TransitionWithRetry(id, func(t *models.Transaction) (*TransitionSpec, error) {
		if t.Status != types.TRANSACTION_COLLECTED || t.DisbursementRequestID != nil || t.Frozen {
			return nil, nil
		}
		return &TransitionSpec{
			To:        types.TRANSACTION_DISBURSE_PENDING,
			Reason:    "disbursement requested",
			Leg:       types.LEG_DISBURSEMENT,
			RequestID: claim,
			Updates:   map[string]any{"disbursement_request_id": claim},
		}, nil
	})
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	gw := lib.GetGateway()
	var requestID string
	err = utils.WithBackoff(ctx, "disbursement", gatewayAttempts, time.Second, func() error {
		var err error
		requestID, err = gw.InitiateDisbursement(ctx, txn.PayeeReference, txn.NetAmount, txn.ID.String())
		return err
	}, gatewayRetryable)
	if err != nil {
		log.Printf("[payments] Disbursement request for %s rejected: %s\n", txn.ID.String(), err.Error())
		if _, _, terr := TransitionWithRetry(txn.ID, func(t *models.Transaction) (*TransitionSpec, error) {
			if t.Status != types.TRANSACTION_DISBURSE_PENDING || t.DisbursementRequestID == nil || *t.DisbursementRequestID != claim {
				return nil, nil
			}
			return &TransitionSpec{
				To:     types.TRANSACTION_DISBURSE_FAILED,
				Reason: "disbursement request rejected: " + err.Error(),
				Leg:    types.LEG_DISBURSEMENT,
			}, nil
		}); terr != nil {
			return terr
		}
		// Funds are already collected; the only safe exit is a reversal.
		return ScheduleReversal(ctx, txn.ID, "disbursement request rejected: "+err.Error())
	}

	return storeGatewayRequestID(txn.ID, "disbursement_request_id", claim, requestID)
}

// RetryDisbursement is the administrative recovery path for a transaction
// stuck in COLLECTED. Idempotent: anything other than COLLECTED with no
// disbursement id is a no-op.
func RetryDisbursement(ctx context.Context, id uuid.UUID) error {
	return StartDisbursement(ctx, id)
}

// ScheduleReversal returns collected funds to the payer after the
// disbursement leg could not complete. The REVERSAL_PENDING claim is
// taken under the optimistic lock first, the same single-issuer pattern
// as StartDisbursement; when the gateway call then fails the claim stays
// in place and the reconciliation sweep re-issues it, bounded by
// ReversalMaxAttempts before escalating to the review queue.
func ScheduleReversal(ctx context.Context, id uuid.UUID, reason string) error {
	claim := newClaimRef()
	txn, claimed, err := TransitionWithRetry(id, func(t *models.Transaction) (*TransitionSpec, error) {
		if t.Frozen || t.ReversalRequestID != nil {
			return nil, nil
		}
		switch t.Status {
		case types.TRANSACTION_COLLECTED, types.TRANSACTION_DISBURSE_FAILED:
		default:
			return nil, nil
		}
		return &TransitionSpec{
			To:        types.TRANSACTION_REVERSAL_PENDING,
			Reason:    reason,
			Leg:       types.LEG_REVERSAL,
			RequestID: claim,
			Updates:   map[string]any{"reversal_request_id": claim},
		}, nil
	})
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	return issueReversal(ctx, txn, claim)
}

// issueReversal performs the gateway call for a held REVERSAL_PENDING
// claim and stores the gateway-assigned id on acceptance.
func issueReversal(ctx context.Context, txn *models.Transaction, claim string) error {
	collectionRef := ""
	if txn.CollectionRequestID != nil {
		collectionRef = *txn.CollectionRequestID
	}

	gw := lib.GetGateway()
	var requestID string
	err := utils.WithBackoff(ctx, "reversal", gatewayAttempts, time.Second, func() error {
		var err error
		requestID, err = gw.InitiateReversal(ctx, txn.PayerReference, txn.GrossAmount, collectionRef)
		return err
	}, gatewayRetryable)
	if err != nil {
		log.Printf("[payments] Reversal request for %s failed: %s\n", txn.ID.String(), err.Error())
		return recordReversalAttempt(txn, err)
	}

	if err := storeGatewayRequestID(txn.ID, "reversal_request_id", claim, requestID); err != nil {
		return err
	}
	lib.Notify(txn.PayerReference, types.NOTIFY_REVERSAL_STARTED, txn.ID.String())
	return nil
}

func recordReversalAttempt(txn *models.Transaction, cause error) error {
	d := db.GetDb()
	if err := d.
		Model(&models.Transaction{}).
		Where("id = ?", txn.ID).
		Updates(map[string]any{
			"reversal_attempts": gorm.Expr("reversal_attempts + 1"),
			"version":           gorm.Expr("version + 1"),
		}).
		Error; err != nil {
		return err
	}
	if txn.ReversalAttempts+1 >= config.ReversalMaxAttempts() {
		CreateReviewItem(&txn.ID, types.REVIEW_REVERSAL_STUCK, types.JSONB{
			"status":   string(txn.Status),
			"attempts": txn.ReversalAttempts + 1,
			"error":    cause.Error(),
		})
	}
	return cause
}

// GetTransaction returns a transaction with its ordered status history.
func GetTransaction(id uuid.UUID) (*models.Transaction, error) {
	d := db.GetDb()
	var txn models.Transaction
	if err := d.
		Model(&models.Transaction{}).
		Preload("Events", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("seq asc")
		}).
		Where("id = ?", id).
		First(&txn).
		Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// CreateReviewItem pushes a manual-intervention ticket; failures to do so
// are logged, never propagated, so the payment path cannot be blocked by
// the review queue.
func CreateReviewItem(txnID *uuid.UUID, kind types.ReviewKind, detail types.JSONB) {
	d := db.GetDb()
	item := models.ReviewItem{
		TransactionID: txnID,
		Kind:          kind,
		Detail:        detail,
	}
	if err := d.Create(&item).Error; err != nil {
		log.Printf("[review] Error creating review item: %s\n", err.Error())
		return
	}
	log.Printf("[review] Created %s review item %s\n", kind, item.ID.String())
}
