package lib

import (
	"context"
	"fmt"
	"mmpay/src/types"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimulatedGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("Should issue distinct request ids per leg", func(t *testing.T) {
		g := NewSimulatedGateway()
		colID, err := g.InitiateCollection(ctx, "255700000001", 1000, "txn-1")
		assert.Nil(t, err)
		disID, err := g.InitiateDisbursement(ctx, "255700000002", 950, "txn-1")
		assert.Nil(t, err)
		assert.NotEmpty(t, colID)
		assert.NotEmpty(t, disID)
		assert.NotEqual(t, colID, disID)
	})

	t.Run("Should reject when the knob is set", func(t *testing.T) {
		g := NewSimulatedGateway()
		g.RejectDisbursements = true
		_, err := g.InitiateDisbursement(ctx, "255700000002", 950, "txn-1")
		assert.ErrorIs(t, err, types.ErrGatewayRejected)
	})

	t.Run("Should report unavailable before rejecting", func(t *testing.T) {
		g := NewSimulatedGateway()
		g.RejectCollections = true
		g.Unavailable = true
		_, err := g.InitiateCollection(ctx, "255700000001", 1000, "txn-1")
		assert.ErrorIs(t, err, types.ErrGatewayUnavailable)
	})

	t.Run("Should replay the issued request through QueryStatus", func(t *testing.T) {
		g := NewSimulatedGateway()
		id, err := g.InitiateCollection(ctx, "255700000001", 1000, "txn-1")
		assert.Nil(t, err)

		cb, err := g.QueryStatus(ctx, id)
		assert.Nil(t, err)
		assert.Equal(t, id, cb.RequestID)
		assert.Equal(t, types.LEG_COLLECTION, cb.Leg)
		assert.Equal(t, types.OUTCOME_SUCCESS, cb.Outcome)
		assert.Equal(t, int64(1000), cb.ReportedAmount)

		g.SetOutcome(id, types.OUTCOME_FAILURE)
		cb, err = g.QueryStatus(ctx, id)
		assert.Nil(t, err)
		assert.Equal(t, types.OUTCOME_FAILURE, cb.Outcome)
	})

	t.Run("Should reject amounts carrying the rejection sentinel", func(t *testing.T) {
		g := NewSimulatedGateway()
		_, err := g.InitiateCollection(ctx, "255700000001", 1099, "txn-1")
		assert.ErrorIs(t, err, types.ErrGatewayRejected)
	})

	t.Run("Should fail amounts carrying the failure sentinel asynchronously", func(t *testing.T) {
		g := NewSimulatedGateway()
		id, err := g.InitiateDisbursement(ctx, "255700000002", 1098, "txn-1")
		assert.Nil(t, err)

		cb, err := g.QueryStatus(ctx, id)
		assert.Nil(t, err)
		assert.Equal(t, types.OUTCOME_FAILURE, cb.Outcome)
		assert.NotEmpty(t, cb.FailureReason)
	})

	t.Run("Should not know requests it never issued", func(t *testing.T) {
		g := NewSimulatedGateway()
		_, err := g.QueryStatus(ctx, "SIM-COLLECTION-nope")
		assert.ErrorIs(t, err, types.ErrUnknownTransaction)
	})
}

func newTestLiveGateway(t *testing.T, handler http.HandlerFunc) *LiveGateway {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	os.Setenv("GATEWAY_BASE_URL", server.URL)
	os.Setenv("GATEWAY_API_KEY", "test-key")
	return NewLiveGateway()
}

func TestLiveGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return the gateway-assigned request id", func(t *testing.T) {
		g := newTestLiveGateway(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/collections", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"request_id":"GW-123"}`)
		})
		id, err := g.InitiateCollection(ctx, "255700000001", 1000, "txn-1")
		assert.Nil(t, err)
		assert.Equal(t, "GW-123", id)
	})

	t.Run("Should map a 4xx to a rejection", func(t *testing.T) {
		g := newTestLiveGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		})
		_, err := g.InitiateDisbursement(ctx, "255700000002", 950, "txn-1")
		assert.ErrorIs(t, err, types.ErrGatewayRejected)
	})

	t.Run("Should map a 5xx to unavailable", func(t *testing.T) {
		g := newTestLiveGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := g.InitiateReversal(ctx, "255700000001", 1000, "GW-123")
		assert.ErrorIs(t, err, types.ErrGatewayUnavailable)
	})

	t.Run("Should treat a 202 status query as still processing", func(t *testing.T) {
		g := newTestLiveGateway(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/requests/GW-123", r.URL.Path)
			w.WriteHeader(http.StatusAccepted)
		})
		cb, err := g.QueryStatus(ctx, "GW-123")
		assert.Nil(t, err)
		assert.Nil(t, cb)
	})

	t.Run("Should surface unknown request ids from the status query", func(t *testing.T) {
		g := newTestLiveGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		_, err := g.QueryStatus(ctx, "GW-404")
		assert.ErrorIs(t, err, types.ErrUnknownTransaction)
	})

	t.Run("Should decode a completed status query", func(t *testing.T) {
		g := newTestLiveGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"request_id":"GW-123","leg":"disbursement","outcome":"success","reported_amount":950}`)
		})
		cb, err := g.QueryStatus(ctx, "GW-123")
		assert.Nil(t, err)
		assert.Equal(t, types.LEG_DISBURSEMENT, cb.Leg)
		assert.Equal(t, types.OUTCOME_SUCCESS, cb.Outcome)
		assert.Equal(t, int64(950), cb.ReportedAmount)
	})
}
