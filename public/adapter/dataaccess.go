package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/tenzoki/ipcbus/internal/bus"
)

// Validator performs local, synchronous pre-validation of a data-access
// operation before it is sent to the remote collaborator. Returning a
// non-nil error short-circuits Query/Mutate without touching the bus.
type Validator func(operation string, payload []byte) error

// DataAccessAdapter is the two-stage collaborator described in spec §4.10,
// fourth bullet: a cheap local pre-validation pass followed by the remote
// authoritative request/response, grounded on the
// StorageRequest/StorageResponse shape of the teacher's storage client.
type DataAccessAdapter struct {
	requester *Requester
	target    string
	validate  Validator
}

// NewDataAccessAdapter binds to target, the data-access collaborator's bus
// endpoint id. validate may be nil, in which case every operation skips
// local pre-validation.
func NewDataAccessAdapter(b *bus.Bus, switchboard *bus.Switchboard, selfEndpoint, target string, timeout time.Duration, validate Validator) *DataAccessAdapter {
	if validate == nil {
		validate = func(string, []byte) error { return nil }
	}
	return &DataAccessAdapter{
		requester: NewRequester(b, switchboard, selfEndpoint, timeout),
		target:    target,
		validate:  validate,
	}
}

// Query runs local pre-validation for operation, then — only if it passes —
// sends the authoritative request to the remote collaborator and returns
// its result payload.
func (a *DataAccessAdapter) Query(ctx context.Context, operation string, payload []byte) ([]byte, error) {
	if err := a.validate(operation, payload); err != nil {
		return nil, fmt.Errorf("local pre-validation failed for %s: %w", operation, err)
	}
	resp, err := a.requester.Call(ctx, a.target, operation, payload)
	if err != nil {
		return nil, err
	}
	return resp.Payload.Bytes, nil
}

// Mutate is Query's write-path counterpart. It runs the same Validator and
// sends the same remote request as Query; the Validator can tell reads from
// writes only by the operation name it receives.
func (a *DataAccessAdapter) Mutate(ctx context.Context, operation string, payload []byte) ([]byte, error) {
	return a.Query(ctx, operation, payload)
}
