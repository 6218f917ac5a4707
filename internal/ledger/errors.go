package ledger

import (
	"errors"
	"fmt"

	"FamilyPoints/internal/model"
)

// Business rule rejections. Callers branch on them with errors.Is.
var (
	ErrInvalidAmount            = errors.New("amount must be a positive whole number")
	ErrInvalidReason            = errors.New("reason must be descriptive text, not empty or only digits")
	ErrUnknownAccount           = errors.New("unknown account")
	ErrSelfTransfer             = errors.New("cannot transfer points to the same account")
	ErrTransferSourceIneligible = errors.New("account cannot be used as a transfer source")
	ErrDebitIneligible          = errors.New("account cannot be debited")
	ErrAccountExists            = errors.New("account already exists")
	ErrInsufficientFunds        = errors.New("insufficient points")

	// ErrPersist wraps a failed durable write. The mutation was not applied.
	ErrPersist = errors.New("ledger not saved")
)

// InsufficientFundsError carries the balance that blocked a debit or transfer.
type InsufficientFundsError struct {
	Account model.AccountID
	Have    int64
	Need    int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient points on %s: have %d, need %d", e.Account, e.Have, e.Need)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
