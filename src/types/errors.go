package types

import "errors"

var (
	// ErrInvalidAmount rejects a payment request before any state exists.
	ErrInvalidAmount = errors.New("gross amount must be a positive number of minor currency units")

	// ErrGatewayUnavailable means the gateway could not be reached (or its
	// circuit is open); callers retry with bounded backoff.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrGatewayRejected is a synchronous rejection of a leg request.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")

	// ErrStaleVersion signals a lost optimistic-lock race; the caller must
	// re-read the transaction and re-decide the transition.
	ErrStaleVersion = errors.New("transaction version is stale")

	// ErrUnknownTransaction means a callback's request id matches no leg of
	// any recorded transaction.
	ErrUnknownTransaction = errors.New("no transaction matches the gateway request id")

	// ErrAmountMismatch means the gateway reported moving a different amount
	// than the leg's expected amount. The transaction is frozen for review.
	ErrAmountMismatch = errors.New("callback amount does not match the expected leg amount")

	// ErrIllegalTransition guards the forward-only state machine.
	ErrIllegalTransition = errors.New("illegal status transition")
)
