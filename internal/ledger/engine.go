package ledger

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"FamilyPoints/internal/model"
)

// Recorder mirrors committed entries to secondary storage. Failures are
// logged and never undo a commit.
type Recorder interface {
	RecordEntry(entry model.HistoryEntry, balancesAfter map[model.AccountID]int64) error
}

// Request is a fully populated operation ready for the Engine.
type Request struct {
	Operation model.Operation
	Performer model.AccountID
	Source    model.AccountID
	Target    model.AccountID
	Amount    int64
	Reason    string
}

// Result is a committed operation and the new balances of the accounts it
// touched.
type Result struct {
	Entry    model.HistoryEntry
	Balances map[model.AccountID]int64
}

// Engine validates and applies credits, debits and transfers. It is the only
// code that changes balances.
type Engine struct {
	store    *Store
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewEngine creates an Engine writing to store. rec may be nil.
func NewEngine(store *Store, rec Recorder, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		recorder: rec,
		logger:   logger.Named("engine"),
		now:      store.now,
		newID:    func() string { return uuid.NewString() },
	}
}

// ValidateAmount rejects zero and negative amounts.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateReason trims reason and rejects it when empty or made only of
// digits, signs and separators.
func ValidateReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", ErrInvalidReason
	}
	numeric := true
	for _, r := range reason {
		if !unicode.IsDigit(r) && !unicode.IsSpace(r) && !strings.ContainsRune("+-.,", r) {
			numeric = false
			break
		}
	}
	if numeric {
		return "", ErrInvalidReason
	}
	return reason, nil
}

// Apply dispatches req to the matching operation.
func (e *Engine) Apply(req Request) (*Result, error) {
	switch req.Operation {
	case model.OpCredit:
		return e.Credit(req.Performer, req.Target, req.Amount, req.Reason)
	case model.OpDebit:
		return e.Debit(req.Performer, req.Target, req.Amount, req.Reason)
	case model.OpTransfer:
		return e.Transfer(req.Performer, req.Source, req.Target, req.Amount, req.Reason)
	default:
		return nil, fmt.Errorf("unsupported operation %q", req.Operation)
	}
}

// Credit adds amount to target.
func (e *Engine) Credit(performer, target model.AccountID, amount int64, reason string) (*Result, error) {
	reason, err := validate(amount, reason)
	if err != nil {
		return nil, err
	}
	var res *Result
	err = e.store.update(func(t *tx) error {
		if !t.known(target) {
			return fmt.Errorf("%w: %s", ErrUnknownAccount, target)
		}
		bal := t.balance(target)
		if bal > math.MaxInt64-amount {
			return fmt.Errorf("%w: balance would overflow", ErrInvalidAmount)
		}
		t.setBalance(target, bal+amount)
		entry := e.entry(performer, model.OpCredit, amount, reason)
		entry.TargetID = target
		t.appendEntry(entry)
		res = &Result{Entry: entry, Balances: map[model.AccountID]int64{target: bal + amount}}
		return nil
	})
	return e.finish(res, err)
}

// Debit removes amount from target. The balance must cover the amount.
func (e *Engine) Debit(performer, target model.AccountID, amount int64, reason string) (*Result, error) {
	reason, err := validate(amount, reason)
	if err != nil {
		return nil, err
	}
	var res *Result
	err = e.store.update(func(t *tx) error {
		if !t.known(target) {
			return fmt.Errorf("%w: %s", ErrUnknownAccount, target)
		}
		if !t.pool.CanDebit(target) {
			return fmt.Errorf("%w: %s", ErrDebitIneligible, target)
		}
		bal := t.balance(target)
		if bal < amount {
			return &InsufficientFundsError{Account: target, Have: bal, Need: amount}
		}
		t.setBalance(target, bal-amount)
		entry := e.entry(performer, model.OpDebit, amount, reason)
		entry.TargetID = target
		t.appendEntry(entry)
		res = &Result{Entry: entry, Balances: map[model.AccountID]int64{target: bal - amount}}
		return nil
	})
	return e.finish(res, err)
}

// Transfer moves amount from source to target in one step.
func (e *Engine) Transfer(performer, source, target model.AccountID, amount int64, reason string) (*Result, error) {
	reason, err := validate(amount, reason)
	if err != nil {
		return nil, err
	}
	if source == target {
		return nil, ErrSelfTransfer
	}
	var res *Result
	err = e.store.update(func(t *tx) error {
		if !t.known(source) {
			return fmt.Errorf("%w: %s", ErrUnknownAccount, source)
		}
		if !t.known(target) {
			return fmt.Errorf("%w: %s", ErrUnknownAccount, target)
		}
		if !t.pool.CanTransferFrom(source) {
			return fmt.Errorf("%w: %s", ErrTransferSourceIneligible, source)
		}
		from, to := t.balance(source), t.balance(target)
		if from < amount {
			return &InsufficientFundsError{Account: source, Have: from, Need: amount}
		}
		if to > math.MaxInt64-amount {
			return fmt.Errorf("%w: balance would overflow", ErrInvalidAmount)
		}
		t.setBalance(source, from-amount)
		t.setBalance(target, to+amount)
		entry := e.entry(performer, model.OpTransfer, amount, reason)
		entry.SourceID = source
		entry.TargetID = target
		t.appendEntry(entry)
		res = &Result{Entry: entry, Balances: map[model.AccountID]int64{
			source: from - amount,
			target: to + amount,
		}}
		return nil
	})
	return e.finish(res, err)
}

func validate(amount int64, reason string) (string, error) {
	if err := ValidateAmount(amount); err != nil {
		return "", err
	}
	return ValidateReason(reason)
}

func (e *Engine) entry(performer model.AccountID, op model.Operation, amount int64, reason string) model.HistoryEntry {
	return model.HistoryEntry{
		ID:          e.newID(),
		Timestamp:   e.now(),
		PerformerID: performer,
		Operation:   op,
		Amount:      amount,
		Reason:      reason,
	}
}

func (e *Engine) finish(res *Result, err error) (*Result, error) {
	if err != nil {
		e.logger.Info("operation rejected", zap.Error(err))
		return nil, err
	}
	e.logger.Info("operation committed",
		zap.String("id", res.Entry.ID),
		zap.String("op", string(res.Entry.Operation)),
		zap.String("performer", string(res.Entry.PerformerID)),
		zap.String("source", string(res.Entry.SourceID)),
		zap.String("target", string(res.Entry.TargetID)),
		zap.Int64("amount", res.Entry.Amount))
	if e.recorder != nil {
		if rerr := e.recorder.RecordEntry(res.Entry, res.Balances); rerr != nil {
			e.logger.Error("record entry", zap.String("id", res.Entry.ID), zap.Error(rerr))
		}
	}
	return res, nil
}
