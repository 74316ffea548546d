// Package services contains server-side business logic: token issuance and
// rotation, accounts, the entitlement ledger and billing lifecycle events.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/stylist/internal/common"
)

// storageCtx bounds a single storage round trip.
func storageCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// retryableRead reports whether a failed read is worth one more attempt.
// Domain outcomes are final.
func retryableRead(err error) bool {
	return !errors.Is(err, common.ErrorNotFound) &&
		!errors.Is(err, common.ErrorAlreadyExists) &&
		!errors.Is(err, common.ErrorValidation)
}

// storageError marks unexpected persistence failures with common.ErrorStorage.
// Domain sentinels pass through untouched.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorAlreadyExists) ||
		errors.Is(err, common.ErrorStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", common.ErrorStorage, op, err)
}
