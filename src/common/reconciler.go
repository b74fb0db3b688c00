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
	"time"

	"gorm.io/gorm"
)

func findByRequestID(leg types.PaymentLeg, requestID string) (*models.Transaction, error) {
	column := ""
	switch leg {
	case types.LEG_COLLECTION:
		column = "collection_request_id"
	case types.LEG_DISBURSEMENT:
		column = "disbursement_request_id"
	case types.LEG_REVERSAL:
		column = "reversal_request_id"
	default:
		return nil, types.ErrUnknownTransaction
	}
	d := db.GetDb()
	var txn models.Transaction
	err := d.
		Model(&models.Transaction{}).
		Where(column+" = ?", requestID).
		First(&txn).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrUnknownTransaction
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func expectedLegAmount(txn *models.Transaction, leg types.PaymentLeg) int64 {
	if leg == types.LEG_DISBURSEMENT {
		return txn.NetAmount
	}
	// Collection pulls the gross amount; a reversal returns it.
	return txn.GrossAmount
}

// callbackRecorded is the authoritative idempotency check: the status
// history already contains a transition triggered by this leg+outcome.
func callbackRecorded(txn *models.Transaction, cb *types.GatewayCallback) (bool, error) {
	d := db.GetDb()
	var n int64
	err := d.
		Model(&models.TransactionEvent{}).
		Where(&models.TransactionEvent{
			TransactionID: txn.ID,
			Leg:           cb.Leg,
			Outcome:       cb.Outcome,
		}).
		Count(&n).
		Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HandleGatewayCallback matches an asynchronous gateway callback to its
// transaction and advances the state machine. Errors returned here are
// for internal recording only; the webhook transport always acknowledges
// so the gateway stops retrying.
func HandleGatewayCallback(ctx context.Context, cb *types.GatewayCallback) error {
	txn, err := findByRequestID(cb.Leg, cb.RequestID)
	if err != nil {
		if errors.Is(err, types.ErrUnknownTransaction) {
			log.Printf("[reconciler] Callback for unknown request id %s (%s)\n", cb.RequestID, cb.Leg)
			lib.CallbacksTotal.WithLabelValues(string(cb.Leg), string(cb.Outcome), "unknown").Inc()
			CreateReviewItem(nil, types.REVIEW_UNKNOWN_TRANSACTION, types.JSONB{
				"request_id": cb.RequestID,
				"leg":        string(cb.Leg),
				"outcome":    string(cb.Outcome),
			})
		}
		return err
	}

	if cb.ReportedAmount != expectedLegAmount(txn, cb.Leg) {
		log.Printf("[reconciler] Amount mismatch on %s leg of %s: reported %d\n", cb.Leg, txn.ID.String(), cb.ReportedAmount)
		lib.CallbacksTotal.WithLabelValues(string(cb.Leg), string(cb.Outcome), "mismatch").Inc()
		freezeTransaction(txn, cb)
		return types.ErrAmountMismatch
	}

	// Fast path first, then the history table decides. Gateways retry
	// delivery until acknowledged, so duplicates are the normal case, not
	// the exception.
	if lib.CallbackSeen(ctx, cb.RequestID, string(cb.Leg), string(cb.Outcome)) {
		lib.CallbacksTotal.WithLabelValues(string(cb.Leg), string(cb.Outcome), "duplicate").Inc()
		return nil
	}
	recorded, err := callbackRecorded(txn, cb)
	if err != nil {
		return err
	}
	if recorded {
		lib.CallbacksTotal.WithLabelValues(string(cb.Leg), string(cb.Outcome), "duplicate").Inc()
		lib.MarkCallbackSeen(ctx, cb.RequestID, string(cb.Leg), string(cb.Outcome))
		return nil
	}

	if txn.Frozen {
		log.Printf("[reconciler] Transaction %s is frozen; callback ignored\n", txn.ID.String())
		lib.CallbacksTotal.WithLabelValues(string(cb.Leg), string(cb.Outcome), "frozen").Inc()
		return nil
	}

	if err := applyCallback(ctx, txn, cb); err != nil {
		lib.CallbacksTotal.WithLabelValues(string(cb.Leg), string(cb.Outcome), "error").Inc()
		return err
	}
	lib.CallbacksTotal.WithLabelValues(string(cb.Leg), string(cb.Outcome), "applied").Inc()
	lib.MarkCallbackSeen(ctx, cb.RequestID, string(cb.Leg), string(cb.Outcome))
	return nil
}

func applyCallback(ctx context.Context, txn *models.Transaction, cb *types.GatewayCallback) error {
	switch cb.Leg {
	case types.LEG_COLLECTION:
		return applyCollectionResult(ctx, txn, cb)
	case types.LEG_DISBURSEMENT:
		return applyDisbursementResult(ctx, txn, cb)
	case types.LEG_REVERSAL:
		return applyReversalResult(txn, cb)
	}
	return types.ErrUnknownTransaction
}

func applyCollectionResult(ctx context.Context, txn *models.Transaction, cb *types.GatewayCallback) error {
	to := types.TRANSACTION_COLLECTED
	reason := "collection succeeded"
	if cb.Outcome == types.OUTCOME_FAILURE {
		to = types.TRANSACTION_COLLECTION_FAILED
		reason = "collection failed: " + cb.FailureReason
	}
	updated, applied, err := TransitionWithRetry(txn.ID, func(t *models.Transaction) (*TransitionSpec, error) {
		if t.Status != types.TRANSACTION_COLLECTION_PENDING {
			// Late callback; the decision was already made by another path.
			return nil, nil
		}
		return &TransitionSpec{
			To:        to,
			Reason:    reason,
			Leg:       cb.Leg,
			Outcome:   cb.Outcome,
			RequestID: cb.RequestID,
		}, nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	switch updated.Status {
	case types.TRANSACTION_COLLECTED:
		lib.Notify(updated.PayerReference, types.NOTIFY_COLLECTED, updated.ID.String())
		// Funds are confirmed in the holding account; push the second leg.
		if err := StartDisbursement(ctx, updated.ID); err != nil {
			log.Printf("[reconciler] Error starting disbursement for %s: %s\n", updated.ID.String(), err.Error())
		}
	case types.TRANSACTION_COLLECTION_FAILED:
		lib.Notify(updated.PayerReference, types.NOTIFY_COLLECTION_FAILED, updated.ID.String())
	}
	return nil
}

func applyDisbursementResult(ctx context.Context, txn *models.Transaction, cb *types.GatewayCallback) error {
	if cb.Outcome == types.OUTCOME_SUCCESS {
		updated, applied, err := TransitionWithRetry(txn.ID, func(t *models.Transaction) (*TransitionSpec, error) {
			if t.Status != types.TRANSACTION_DISBURSE_PENDING {
				return nil, nil
			}
			return &TransitionSpec{
				To:        types.TRANSACTION_SETTLED,
				Reason:    "disbursement succeeded",
				Leg:       cb.Leg,
				Outcome:   cb.Outcome,
				RequestID: cb.RequestID,
			}, nil
		})
		if err != nil {
			return err
		}
		if applied {
			lib.Notify(updated.PayerReference, types.NOTIFY_SETTLED, updated.ID.String())
			lib.Notify(updated.PayeeReference, types.NOTIFY_PAYMENT_RECEIVED, updated.ID.String())
		}
		return nil
	}

	updated, applied, err := TransitionWithRetry(txn.ID, func(t *models.Transaction) (*TransitionSpec, error) {
		if t.Status != types.TRANSACTION_DISBURSE_PENDING {
			return nil, nil
		}
		return &TransitionSpec{
			To:        types.TRANSACTION_DISBURSE_FAILED,
			Reason:    "disbursement failed: " + cb.FailureReason,
			Leg:       cb.Leg,
			Outcome:   cb.Outcome,
			RequestID: cb.RequestID,
		}, nil
	})
	if err != nil {
		return err
	}
	if applied {
		return ScheduleReversal(ctx, updated.ID, "disbursement failed: "+cb.FailureReason)
	}
	return nil
}

func applyReversalResult(txn *models.Transaction, cb *types.GatewayCallback) error {
	if cb.Outcome == types.OUTCOME_FAILURE {
		// A failed reversal cannot be advanced automatically.
		log.Printf("[reconciler] Reversal failed for %s: %s\n", txn.ID.String(), cb.FailureReason)
		CreateReviewItem(&txn.ID, types.REVIEW_REVERSAL_STUCK, types.JSONB{
			"request_id": cb.RequestID,
			"error":      cb.FailureReason,
		})
		return nil
	}
	updated, applied, err := TransitionWithRetry(txn.ID, func(t *models.Transaction) (*TransitionSpec, error) {
		if t.Status != types.TRANSACTION_REVERSAL_PENDING {
			return nil, nil
		}
		return &TransitionSpec{
			To:        types.TRANSACTION_REVERSED,
			Reason:    "reversal completed",
			Leg:       cb.Leg,
			Outcome:   cb.Outcome,
			RequestID: cb.RequestID,
		}, nil
	})
	if err != nil {
		return err
	}
	if applied {
		lib.Notify(updated.PayerReference, types.NOTIFY_REVERSED, updated.ID.String())
	}
	return nil
}

func freezeTransaction(txn *models.Transaction, cb *types.GatewayCallback) {
	d := db.GetDb()
	if err := d.
		Model(&models.Transaction{}).
		Where("id = ?", txn.ID).
		Updates(map[string]any{
			"frozen":  true,
			"version": gorm.Expr("version + 1"),
		}).
		Error; err != nil {
		log.Printf("[reconciler] Error freezing transaction %s: %s\n", txn.ID.String(), err.Error())
	}
	CreateReviewItem(&txn.ID, types.REVIEW_AMOUNT_MISMATCH, types.JSONB{
		"request_id":      cb.RequestID,
		"leg":             string(cb.Leg),
		"outcome":         string(cb.Outcome),
		"reported_amount": cb.ReportedAmount,
		"expected_amount": expectedLegAmount(txn, cb.Leg),
	})
}

// rotateClaim takes over a claimed request id so the sweep can re-issue
// the gateway call without racing the original claim holder. Conditional
// on both the old claim and the version read by the sweep.
func rotateClaim(txn *models.Transaction, column, oldClaim string) (string, bool) {
	newClaim := newClaimRef()
	d := db.GetDb()
	res := d.
		Model(&models.Transaction{}).
		Where("id = ? AND "+column+" = ? AND version = ?", txn.ID, oldClaim, txn.Version).
		Updates(map[string]any{
			column:    newClaim,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		log.Printf("[sweep] Error rotating claim for %s: %s\n", txn.ID.String(), res.Error.Error())
		return "", false
	}
	if res.RowsAffected == 0 {
		return "", false
	}
	txn.Version++
	return newClaim, true
}

// quarantineUnconfirmed freezes a transaction whose in-flight gateway
// request was never confirmed either way. Whether money moved cannot be
// decided from this side, so only an operator with the provider's ledger
// may advance it.
func quarantineUnconfirmed(txn *models.Transaction, reason string) {
	d := db.GetDb()
	if err := d.
		Model(&models.Transaction{}).
		Where("id = ? AND frozen = ?", txn.ID, false).
		Updates(map[string]any{
			"frozen":  true,
			"version": gorm.Expr("version + 1"),
		}).
		Error; err != nil {
		log.Printf("[sweep] Error freezing transaction %s: %s\n", txn.ID.String(), err.Error())
		return
	}
	CreateReviewItem(&txn.ID, types.REVIEW_REQUEST_UNCONFIRMED, types.JSONB{
		"status": string(txn.Status),
		"reason": reason,
	})
}

// SweepStuckTransactions is the polling fallback for callbacks that never
// arrived. Anything pending beyond the configured timeout with a real
// gateway id is re-queried and the answer fed through the same reconciler
// path as a live callback. Rows stalled before a gateway id was stored
// are recovered by their leg: a COLLECTED row gets its disbursement
// claimed, a DISBURSE_FAILED row gets its reversal claimed, a claimed
// reversal is re-issued under a rotated claim, and a claimed disbursement
// is quarantined because re-issuing the payee leg is never safe.
func SweepStuckTransactions(ctx context.Context) {
	d := db.GetDb()
	cutoff := time.Now().Add(-config.PendingTimeout())
	var stuck []models.Transaction
	err := d.
		Model(&models.Transaction{}).
		Where("status IN ?", []types.TransactionStatus{
			types.TRANSACTION_CREATED,
			types.TRANSACTION_COLLECTION_PENDING,
			types.TRANSACTION_COLLECTED,
			types.TRANSACTION_DISBURSE_PENDING,
			types.TRANSACTION_DISBURSE_FAILED,
			types.TRANSACTION_REVERSAL_PENDING,
		}).
		Where("frozen = ?", false).
		Where("last_transition_at < ?", cutoff).
		Order("last_transition_at asc").
		Limit(100).
		Find(&stuck).
		Error
	if err != nil {
		log.Printf("[sweep] Error retrieving stuck transactions: %s\n", err.Error())
		return
	}
	if len(stuck) == 0 {
		return
	}
	log.Printf("[sweep] Found %d stuck transactions\n", len(stuck))

	gw := lib.GetGateway()
	for i := range stuck {
		txn := &stuck[i]
		switch {
		case txn.Status == types.TRANSACTION_CREATED:
			// The collection request may or may not have reached the gateway.
			quarantineUnconfirmed(txn, "collection request never confirmed")
		case txn.Status == types.TRANSACTION_COLLECTED:
			if err := StartDisbursement(ctx, txn.ID); err != nil {
				log.Printf("[sweep] Disbursement retry for %s failed: %s\n", txn.ID.String(), err.Error())
				continue
			}
			lib.SweepRecoveredTotal.Inc()
		case txn.Status == types.TRANSACTION_DISBURSE_FAILED:
			if err := ScheduleReversal(ctx, txn.ID, "reversal re-issued by reconciliation sweep"); err != nil {
				log.Printf("[sweep] Reversal retry for %s failed: %s\n", txn.ID.String(), err.Error())
				continue
			}
			lib.SweepRecoveredTotal.Inc()
		case txn.Status == types.TRANSACTION_DISBURSE_PENDING &&
			txn.DisbursementRequestID != nil && isClaimRef(*txn.DisbursementRequestID):
			quarantineUnconfirmed(txn, "disbursement request never confirmed")
		case txn.Status == types.TRANSACTION_REVERSAL_PENDING &&
			txn.ReversalRequestID != nil && isClaimRef(*txn.ReversalRequestID):
			if txn.ReversalAttempts >= config.ReversalMaxAttempts() {
				// Already escalated to the review queue.
				continue
			}
			claim, ok := rotateClaim(txn, "reversal_request_id", *txn.ReversalRequestID)
			if !ok {
				continue
			}
			if err := issueReversal(ctx, txn, claim); err != nil {
				log.Printf("[sweep] Reversal re-issue for %s failed: %s\n", txn.ID.String(), err.Error())
				continue
			}
			lib.SweepRecoveredTotal.Inc()
		default:
			requestID := pendingRequestID(txn)
			if requestID == "" {
				continue
			}
			cb, err := gw.QueryStatus(ctx, requestID)
			if err != nil {
				log.Printf("[sweep] Error querying gateway for %s: %s\n", requestID, err.Error())
				continue
			}
			if cb == nil {
				// Still processing on the gateway side; check again next sweep.
				continue
			}
			if err := HandleGatewayCallback(ctx, cb); err != nil {
				log.Printf("[sweep] Error applying polled result for %s: %s\n", txn.ID.String(), err.Error())
				continue
			}
			lib.SweepRecoveredTotal.Inc()
		}
	}
}

func pendingRequestID(txn *models.Transaction) string {
	switch txn.Status {
	case types.TRANSACTION_COLLECTION_PENDING:
		if txn.CollectionRequestID != nil {
			return *txn.CollectionRequestID
		}
	case types.TRANSACTION_DISBURSE_PENDING:
		if txn.DisbursementRequestID != nil {
			return *txn.DisbursementRequestID
		}
	case types.TRANSACTION_REVERSAL_PENDING:
		if txn.ReversalRequestID != nil {
			return *txn.ReversalRequestID
		}
	}
	return ""
}
