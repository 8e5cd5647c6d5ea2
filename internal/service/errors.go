package service

import (
	"context"
	"errors"

	"ignitia/internal/repository"
	"ignitia/pkg/apperr"
)

// translate maps repository errors onto the error kinds callers see. Anything
// unrecognised is a storage failure and is reported, never swallowed.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := apperr.As(err); typed != nil {
		return typed
	}

	var stockErr *repository.StockError
	switch {
	case errors.As(err, &stockErr):
		if errors.Is(stockErr.Err, repository.ErrItemNotFound) {
			return apperr.OutOfStock(stockErr.ItemID, "item "+stockErr.ItemID+" is not in the catalog")
		}
		return apperr.OutOfStock(stockErr.ItemID, "insufficient stock for item "+stockErr.ItemID)
	case errors.Is(err, repository.ErrInsufficientBalance):
		return apperr.New(apperr.CodeInsufficientBalance, "insufficient wallet balance")
	case errors.Is(err, repository.ErrNonPositiveAmount):
		return apperr.New(apperr.CodeInvalidAmount, "amount must be positive")
	case errors.Is(err, repository.ErrAmountOverflow):
		return apperr.New(apperr.CodeInvalidAmount, "amount would overflow the wallet balance")
	case errors.Is(err, repository.ErrOptimisticLock):
		return apperr.Wrap(apperr.CodeConflict, err, "wallet was modified concurrently, retry")
	case errors.Is(err, repository.ErrItemNotFound):
		return apperr.New(apperr.CodeItemNotFound, "item not found")
	case errors.Is(err, repository.ErrOrderNotFound):
		return apperr.New(apperr.CodeOrderNotFound, "order not found")
	case errors.Is(err, repository.ErrOrderStatusInvalid):
		return apperr.New(apperr.CodeInvalidState, "order is no longer pending")
	case errors.Is(err, repository.ErrEventNotFound):
		return apperr.New(apperr.CodeEventNotFound, "event not found")
	case errors.Is(err, repository.ErrDuplicateRegistration):
		return apperr.Wrap(apperr.CodeConflict, err, "user is already registered for this event")
	case errors.Is(err, repository.ErrRegistrationStatusInvalid):
		return apperr.New(apperr.CodeInvalidState, "registration status transition not allowed")
	case errors.Is(err, repository.ErrPaymentNotFound):
		return apperr.New(apperr.CodePaymentNotFound, "payment not found")
	case errors.Is(err, repository.ErrPaymentStatusInvalid):
		return apperr.New(apperr.CodeInvalidState, "payment is no longer pending")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.CodeStorageUnavailable, err, op+" did not finish in time")
	}
	return apperr.Wrap(apperr.CodeStorageUnavailable, err, op)
}
