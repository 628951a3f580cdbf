package services

import (
	"context"
	"errors"
	"fmt"

	"carwash/internal/repositories"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrProfileNotFound      = fmt.Errorf("kyc profile %w", ErrNotFound)
	ErrForbidden            = errors.New("forbidden")
	ErrNotFoundOrForbidden  = fmt.Errorf("%w or forbidden", ErrNotFound)
	ErrDuplicateProfile     = errors.New("kyc profile already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrExpiredOrInvalidCode = errors.New("code expired or invalid")
	ErrTooManyAttempts      = fmt.Errorf("too many attempts: %w", ErrExpiredOrInvalidCode)
	ErrResendThrottled      = errors.New("resend throttled")
	ErrInvalidTransition    = errors.New("invalid kyc status transition")
	ErrConcurrentUpdate     = errors.New("concurrent update")
	ErrTransactionFailure   = errors.New("transaction failure")
	ErrQueueFull            = errors.New("verification queue full")
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

var domainErrors = []error{
	ErrNotFound, ErrForbidden, ErrDuplicateProfile, ErrInvalidInput,
	ErrExpiredOrInvalidCode, ErrResendThrottled, ErrInvalidTransition,
	ErrConcurrentUpdate, ErrTransactionFailure,
}

// runTx runs fn in one transaction. Domain errors come back as is,
// everything else (storage, commit) as ErrTransactionFailure.
func runTx(ctx context.Context, store repositories.Store, fn func(tx repositories.Repos) error) error {
	err := store.WithTx(ctx, fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrVersionConflict) {
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransactionFailure, err)
}
