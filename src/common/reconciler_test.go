package common

import (
	"mmpay/src/models"
	"mmpay/src/types"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpectedLegAmount(t *testing.T) {
	txn := models.Transaction{
		GrossAmount:      1000,
		CommissionAmount: 50,
		NetAmount:        950,
	}

	assert.Equal(t, int64(1000), expectedLegAmount(&txn, types.LEG_COLLECTION))
	assert.Equal(t, int64(950), expectedLegAmount(&txn, types.LEG_DISBURSEMENT))
	// Reversals return what was taken from the payer, not the net.
	assert.Equal(t, int64(1000), expectedLegAmount(&txn, types.LEG_REVERSAL))
}

func TestPendingRequestID(t *testing.T) {
	collection := "col-1"
	disbursement := "dis-1"
	reversal := "rev-1"

	t.Run("Should pick the request id for the in-flight leg", func(t *testing.T) {
		txn := models.Transaction{
			Status:                types.TRANSACTION_DISBURSE_PENDING,
			CollectionRequestID:   &collection,
			DisbursementRequestID: &disbursement,
		}
		assert.Equal(t, disbursement, pendingRequestID(&txn))

		txn.Status = types.TRANSACTION_COLLECTION_PENDING
		assert.Equal(t, collection, pendingRequestID(&txn))

		txn.Status = types.TRANSACTION_REVERSAL_PENDING
		txn.ReversalRequestID = &reversal
		assert.Equal(t, reversal, pendingRequestID(&txn))
	})

	t.Run("Should return empty when the leg was never requested", func(t *testing.T) {
		txn := models.Transaction{Status: types.TRANSACTION_COLLECTION_PENDING}
		assert.Empty(t, pendingRequestID(&txn))

		txn.Status = types.TRANSACTION_SETTLED
		txn.CollectionRequestID = &collection
		assert.Empty(t, pendingRequestID(&txn))
	})
}
