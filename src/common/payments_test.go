package common

import (
	"mmpay/src/models"
	"mmpay/src/types"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	t.Run("Should allow the happy path end to end", func(t *testing.T) {
		path := []types.TransactionStatus{
			types.TRANSACTION_CREATED,
			types.TRANSACTION_COLLECTION_PENDING,
			types.TRANSACTION_COLLECTED,
			types.TRANSACTION_DISBURSE_PENDING,
			types.TRANSACTION_SETTLED,
		}
		for i := 0; i < len(path)-1; i++ {
			assert.Truef(t, transitionAllowed(path[i], path[i+1]), "%s -> %s should be allowed", path[i], path[i+1])
		}
	})

	t.Run("Should allow the reversal path", func(t *testing.T) {
		assert.True(t, transitionAllowed(types.TRANSACTION_DISBURSE_PENDING, types.TRANSACTION_DISBURSE_FAILED))
		assert.True(t, transitionAllowed(types.TRANSACTION_DISBURSE_FAILED, types.TRANSACTION_REVERSAL_PENDING))
		assert.True(t, transitionAllowed(types.TRANSACTION_COLLECTED, types.TRANSACTION_REVERSAL_PENDING))
		assert.True(t, transitionAllowed(types.TRANSACTION_REVERSAL_PENDING, types.TRANSACTION_REVERSED))
	})

	t.Run("Should have no exits from terminal statuses", func(t *testing.T) {
		terminals := []types.TransactionStatus{
			types.TRANSACTION_SETTLED,
			types.TRANSACTION_REVERSED,
			types.TRANSACTION_COLLECTION_FAILED,
		}
		all := []types.TransactionStatus{
			types.TRANSACTION_CREATED,
			types.TRANSACTION_COLLECTION_PENDING,
			types.TRANSACTION_COLLECTED,
			types.TRANSACTION_COLLECTION_FAILED,
			types.TRANSACTION_DISBURSE_PENDING,
			types.TRANSACTION_DISBURSE_FAILED,
			types.TRANSACTION_SETTLED,
			types.TRANSACTION_REVERSAL_PENDING,
			types.TRANSACTION_REVERSED,
		}
		for _, from := range terminals {
			assert.True(t, from.Terminal())
			for _, to := range all {
				assert.Falsef(t, transitionAllowed(from, to), "%s -> %s should be refused", from, to)
			}
		}
	})

	t.Run("Should never skip the pending leg", func(t *testing.T) {
		assert.False(t, transitionAllowed(types.TRANSACTION_CREATED, types.TRANSACTION_COLLECTED))
		assert.False(t, transitionAllowed(types.TRANSACTION_COLLECTED, types.TRANSACTION_SETTLED))
		assert.False(t, transitionAllowed(types.TRANSACTION_COLLECTION_PENDING, types.TRANSACTION_SETTLED))
		assert.False(t, transitionAllowed(types.TRANSACTION_COLLECTED, types.TRANSACTION_REVERSED))
	})

	t.Run("Should never move backwards", func(t *testing.T) {
		assert.False(t, transitionAllowed(types.TRANSACTION_COLLECTED, types.TRANSACTION_COLLECTION_PENDING))
		assert.False(t, transitionAllowed(types.TRANSACTION_DISBURSE_PENDING, types.TRANSACTION_COLLECTED))
		assert.False(t, transitionAllowed(types.TRANSACTION_REVERSAL_PENDING, types.TRANSACTION_COLLECTED))
	})
}

func TestClaimRefs(t *testing.T) {
	ref := newClaimRef()
	assert.True(t, isClaimRef(ref))
	assert.NotEqual(t, ref, newClaimRef())
	assert.False(t, isClaimRef("GW-D-1"))
	assert.False(t, isClaimRef(""))
}

func TestApplyTransitionGuards(t *testing.T) {
	t.Run("Should refuse transitions on a frozen transaction", func(t *testing.T) {
		txn := models.Transaction{
			ID:     uuid.New(),
			Status: types.TRANSACTION_COLLECTION_PENDING,
			Frozen: true,
		}
		err := ApplyTransition(&txn, &TransitionSpec{To: types.TRANSACTION_COLLECTED})
		assert.ErrorIs(t, err, types.ErrIllegalTransition)
		assert.Equal(t, types.TRANSACTION_COLLECTION_PENDING, txn.Status)
	})

	t.Run("Should refuse illegal edges without touching the row", func(t *testing.T) {
		txn := models.Transaction{
			ID:      uuid.New(),
			Status:  types.TRANSACTION_SETTLED,
			Version: 3,
		}
		err := ApplyTransition(&txn, &TransitionSpec{To: types.TRANSACTION_DISBURSE_PENDING})
		assert.ErrorIs(t, err, types.ErrIllegalTransition)
		assert.Equal(t, uint64(3), txn.Version)
	})
}
