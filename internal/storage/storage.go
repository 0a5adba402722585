package storage

import (
	"context"
	"errors"

	"collateralScope/internal/model"
)

// Sink records collateral observations.
type Sink interface {
	PutStatusChange(ctx context.Context, change model.StatusChange) error
	PutSnapshot(ctx context.Context, snapshot model.PriceSnapshot) error
}

// Multi fans records out to every sink and joins their errors.
type Multi []Sink

func (m Multi) PutStatusChange(ctx context.Context, change model.StatusChange) error {
	var errs []error
	for _, sink := range m {
		if err := sink.PutStatusChange(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) PutSnapshot(ctx context.Context, snapshot model.PriceSnapshot) error {
	var errs []error
	for _, sink := range m {
		if err := sink.PutSnapshot(ctx, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
