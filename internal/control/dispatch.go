package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/deweblabs/txrelay/internal/core/domain"
)

// Worker names accepted by Dispatch. External schedulers use the same
// strings in their invocation messages.
const (
	WorkerTransmitter = "transaction_transmitter"
	WorkerReconciler  = "transaction_reconciler"
)

// ErrUnknownWorker is returned for a worker name Dispatch does not route.
var ErrUnknownWorker = errors.New("unknown worker")

// Parameters scopes a worker invocation to one chain deployment.
type Parameters struct {
	Chain     domain.Chain     `json:"chain"`
	ChainType domain.ChainType `json:"chainType"`
}

// Invocation is one worker run request. The internal ticker scheduler and
// any external scheduler both speak this shape.
type Invocation struct {
	WorkerName string     `json:"workerName"`
	Parameters Parameters `json:"parameters"`
}

// Dispatch routes an invocation to the named worker and runs it to
// completion.
func (e *Engine) Dispatch(ctx context.Context, inv Invocation) error {
	if !domain.KnownChains[inv.Parameters.Chain] {
		return fmt.Errorf("%w: %s", domain.ErrInvalidChain, inv.Parameters.Chain)
	}

	switch inv.WorkerName {
	case WorkerTransmitter:
		return e.RunTransmission(ctx, inv.Parameters.Chain, inv.Parameters.ChainType)
	case WorkerReconciler:
		return e.RunReconciliation(ctx, inv.Parameters.Chain, inv.Parameters.ChainType)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownWorker, inv.WorkerName)
	}
}
