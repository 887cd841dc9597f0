// Package persist delivers observations and completed tasks to durable
// backends without ever blocking the capture cycle.
package persist

import (
	"context"
	"errors"

	"github.com/vthunder/acuity/internal/ledger"
	"github.com/vthunder/acuity/internal/types"
)

// Backend accepts records for durable storage
type Backend interface {
	AppendObservation(ctx context.Context, obs types.Observation) error
	AppendCompletedTask(ctx context.Context, ct types.CompletedTask) error
}

// Reader answers history queries
type Reader interface {
	Observations(ctx context.Context, r ledger.Range, limit int) ([]types.Observation, error)
	CompletedTasks(ctx context.Context, r ledger.Range) ([]types.CompletedTask, error)
}

// Multi writes to every backend and joins their errors
type Multi []Backend

func (m Multi) AppendObservation(ctx context.Context, obs types.Observation) error {
	var errs []error
	for _, b := range m {
		if err := b.AppendObservation(ctx, obs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) AppendCompletedTask(ctx context.Context, ct types.CompletedTask) error {
	var errs []error
	for _, b := range m {
		if err := b.AppendCompletedTask(ctx, ct); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
