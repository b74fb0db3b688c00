package lib

import (
	"context"
	"fmt"
	"log"
	"mmpay/src/types"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// Gateway is the outbound boundary to the mobile-money provider. Every
// method either returns a gateway-assigned request id (the leg was
// accepted and a callback will follow) or fails synchronously with
// types.ErrGatewayRejected / types.ErrGatewayUnavailable.
type Gateway interface {
	Name() string
	InitiateCollection(ctx context.Context, payerReference string, amount int64, reference string) (string, error)
	InitiateDisbursement(ctx context.Context, payeeReference string, amount int64, reference string) (string, error)
	InitiateReversal(ctx context.Context, payerReference string, amount int64, originalRequestID string) (string, error)
	// QueryStatus asks the gateway for the current outcome of an accepted
	// request; used by the reconciliation sweep when a callback never
	// arrived. A nil callback means the request is still processing.
	QueryStatus(ctx context.Context, requestID string) (*types.GatewayCallback, error)
}

var gateway Gateway

// GetGateway returns the process-wide gateway client. The simulated or
// live backing is chosen once from GATEWAY_MODE at first use, never by
// env checks inside the payment flow.
func GetGateway() Gateway {
	if gateway != nil {
		return gateway
	}
	if os.Getenv("GATEWAY_MODE") == "live" {
		gateway = NewLiveGateway()
	} else {
		gateway = NewSimulatedGateway()
	}
	log.Printf("[gateway] using %s client\n", gateway.Name())
	return gateway
}

// NewGatewayClient replaces the gateway instance, used by tests.
func NewGatewayClient(g Gateway) Gateway {
	gateway = g
	return gateway
}

type simRequest struct {
	Leg     types.PaymentLeg
	Account string
	Amount  int64
	Outcome types.CallbackOutcome
}

// Demo-mode amount sentinels: any amount whose last two digits match one
// of these gets a deterministic non-happy outcome, so failure paths can
// be driven end to end without a real provider.
const (
	simRejectSentinel  int64 = 99 // synchronous rejection
	simFailureSentinel int64 = 98 // accepted, then a failure callback
)

// SimulatedGateway is the demo-mode backing: it accepts or rejects
// deterministically and remembers every issued request so QueryStatus and
// tests can replay outcomes. No network involved.
type SimulatedGateway struct {
	mu       sync.Mutex
	requests map[string]*simRequest

	// Knobs for exercising the failure paths.
	RejectCollections   bool
	RejectDisbursements bool
	RejectReversals     bool
	Unavailable         bool
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{requests: make(map[string]*simRequest)}
}

func (g *SimulatedGateway) Name() string { return "Simulated" }

func (g *SimulatedGateway) issue(leg types.PaymentLeg, account string, amount int64, reject bool) (string, error) {
	if g.Unavailable {
		return "", types.ErrGatewayUnavailable
	}
	if reject || amount%100 == simRejectSentinel {
		return "", types.ErrGatewayRejected
	}
	outcome := types.OUTCOME_SUCCESS
	if amount%100 == simFailureSentinel {
		outcome = types.OUTCOME_FAILURE
	}
	id := fmt.Sprintf("SIM-%s-%s", leg, uuid.New().String())
	g.mu.Lock()
	g.requests[id] = &simRequest{Leg: leg, Account: account, Amount: amount, Outcome: outcome}
	g.mu.Unlock()
	return id, nil
}

func (g *SimulatedGateway) InitiateCollection(ctx context.Context, payerReference string, amount int64, reference string) (string, error) {
	return g.issue(types.LEG_COLLECTION, payerReference, amount, g.RejectCollections)
}

func (g *SimulatedGateway) InitiateDisbursement(ctx context.Context, payeeReference string, amount int64, reference string) (string, error) {
	return g.issue(types.LEG_DISBURSEMENT, payeeReference, amount, g.RejectDisbursements)
}

func (g *SimulatedGateway) InitiateReversal(ctx context.Context, payerReference string, amount int64, originalRequestID string) (string, error) {
	return g.issue(types.LEG_REVERSAL, payerReference, amount, g.RejectReversals)
}

func (g *SimulatedGateway) QueryStatus(ctx context.Context, requestID string) (*types.GatewayCallback, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.requests[requestID]
	if !ok {
		return nil, types.ErrUnknownTransaction
	}
	cb := &types.GatewayCallback{
		RequestID:      requestID,
		Leg:            req.Leg,
		Outcome:        req.Outcome,
		ReportedAmount: req.Amount,
	}
	if req.Outcome == types.OUTCOME_FAILURE {
		cb.FailureReason = "simulated failure"
	}
	return cb, nil
}

// SetOutcome overrides the remembered outcome for an issued request so
// tests and demos can drive failure callbacks through QueryStatus.
func (g *SimulatedGateway) SetOutcome(requestID string, outcome types.CallbackOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if req, ok := g.requests[requestID]; ok {
		req.Outcome = outcome
	}
}

// LiveGateway talks to the provider's REST API through a circuit breaker.
// Request signing and TLS setup belong to the transport layer behind
// GATEWAY_BASE_URL and are not handled here.
type LiveGateway struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
}

func NewLiveGateway() *LiveGateway {
	client := resty.New().
		SetBaseURL(os.Getenv("GATEWAY_BASE_URL")).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", os.Getenv("GATEWAY_API_KEY"))).
		SetTimeout(10 * time.Second).
		SetRetryCount(0) // retries are the caller's job, with backoff
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gateway",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("[gateway] circuit %s: %s -> %s\n", name, from.String(), to.String())
			GatewayCircuitState.Set(circuitStateValue(to))
		},
	})
	return &LiveGateway{client: client, breaker: breaker}
}

func circuitStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	}
	return 0
}

func (g *LiveGateway) Name() string { return "Live" }

type gatewayRequestBody struct {
	Account           string `json:"account"`
	Amount            int64  `json:"amount"`
	Reference         string `json:"reference,omitempty"`
	OriginalRequestID string `json:"original_request_id,omitempty"`
}

type gatewayRequestResponse struct {
	RequestID string `json:"request_id"`
}

func (g *LiveGateway) post(ctx context.Context, path string, body *gatewayRequestBody, leg types.PaymentLeg) (string, error) {
	result, err := g.breaker.Execute(func() (any, error) {
		var out gatewayRequestResponse
		resp, err := g.client.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&out).
			Post(path)
		if err != nil {
			return nil, types.ErrGatewayUnavailable
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, types.ErrGatewayUnavailable
		}
		if resp.IsError() {
			// 4xx: the gateway understood the request and said no.
			return nil, types.ErrGatewayRejected
		}
		if out.RequestID == "" {
			return nil, types.ErrGatewayUnavailable
		}
		return out.RequestID, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = types.ErrGatewayUnavailable
		}
		GatewayRequestsTotal.WithLabelValues(string(leg), "error").Inc()
		return "", err
	}
	GatewayRequestsTotal.WithLabelValues(string(leg), "accepted").Inc()
	return result.(string), nil
}

func (g *LiveGateway) InitiateCollection(ctx context.Context, payerReference string, amount int64, reference string) (string, error) {
	return g.post(ctx, "/v1/collections", &gatewayRequestBody{
		Account:   payerReference,
		Amount:    amount,
		Reference: reference,
	}, types.LEG_COLLECTION)
}

func (g *LiveGateway) InitiateDisbursement(ctx context.Context, payeeReference string, amount int64, reference string) (string, error) {
	return g.post(ctx, "/v1/disbursements", &gatewayRequestBody{
		Account:   payeeReference,
		Amount:    amount,
		Reference: reference,
	}, types.LEG_DISBURSEMENT)
}

func (g *LiveGateway) InitiateReversal(ctx context.Context, payerReference string, amount int64, originalRequestID string) (string, error) {
	return g.post(ctx, "/v1/reversals", &gatewayRequestBody{
		Account:           payerReference,
		Amount:            amount,
		OriginalRequestID: originalRequestID,
	}, types.LEG_REVERSAL)
}

func (g *LiveGateway) QueryStatus(ctx context.Context, requestID string) (*types.GatewayCallback, error) {
	result, err := g.breaker.Execute(func() (any, error) {
		var out types.GatewayCallback
		resp, err := g.client.R().
			SetContext(ctx).
			SetResult(&out).
			Get(fmt.Sprintf("/v1/requests/%s", requestID))
		if err != nil || resp.StatusCode() >= http.StatusInternalServerError {
			return nil, types.ErrGatewayUnavailable
		}
		if resp.StatusCode() == http.StatusNotFound {
			return nil, types.ErrUnknownTransaction
		}
		if resp.StatusCode() == http.StatusAccepted {
			// Still processing on the gateway side.
			return (*types.GatewayCallback)(nil), nil
		}
		if resp.IsError() {
			return nil, types.ErrGatewayRejected
		}
		return &out, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = types.ErrGatewayUnavailable
		}
		return nil, err
	}
	return result.(*types.GatewayCallback), nil
}
