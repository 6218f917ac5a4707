package dialogue

import (
	"FamilyPoints/internal/ledger"
	"FamilyPoints/internal/model"
)

// StateName identifies a dialogue state.
type StateName string

const (
	StateIdle              StateName = "idle"
	StateChooseOperation   StateName = "choose_operation"
	StateSelectAccount     StateName = "select_account"
	StateSelectSecond      StateName = "select_second_account"
	StateEnterAmount       StateName = "enter_amount"
	StateEnterReason       StateName = "enter_reason"
	StateAwaitConfirmation StateName = "await_confirmation"
)

// state is one variant per dialogue step. Each variant carries only the
// fields that are already known at that step.
type state interface {
	name() StateName
	pending() ledger.Request
}

type idle struct{}

type chooseOperation struct{}

// selectAccount picks the target of a credit or debit, or the source of a
// transfer.
type selectAccount struct {
	op model.Operation
}

// selectSecond picks the destination of a transfer.
type selectSecond struct {
	source model.AccountID
}

type enterAmount struct {
	op     model.Operation
	source model.AccountID
	target model.AccountID
}

type enterReason struct {
	op     model.Operation
	source model.AccountID
	target model.AccountID
	amount int64
}

type awaitConfirmation struct {
	req ledger.Request
}

func (idle) name() StateName              { return StateIdle }
func (chooseOperation) name() StateName   { return StateChooseOperation }
func (selectAccount) name() StateName     { return StateSelectAccount }
func (selectSecond) name() StateName      { return StateSelectSecond }
func (enterAmount) name() StateName       { return StateEnterAmount }
func (enterReason) name() StateName       { return StateEnterReason }
func (awaitConfirmation) name() StateName { return StateAwaitConfirmation }

func (idle) pending() ledger.Request            { return ledger.Request{} }
func (chooseOperation) pending() ledger.Request { return ledger.Request{} }
func (s selectAccount) pending() ledger.Request { return ledger.Request{Operation: s.op} }
func (s selectSecond) pending() ledger.Request {
	return ledger.Request{Operation: model.OpTransfer, Source: s.source}
}
func (s enterAmount) pending() ledger.Request {
	return ledger.Request{Operation: s.op, Source: s.source, Target: s.target}
}
func (s enterReason) pending() ledger.Request {
	return ledger.Request{Operation: s.op, Source: s.source, Target: s.target, Amount: s.amount}
}
func (s awaitConfirmation) pending() ledger.Request { return s.req }
