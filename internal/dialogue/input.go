package dialogue

import (
	"strings"

	"FamilyPoints/internal/model"
)

// InputKind classifies one inbound user intent.
type InputKind int

const (
	InputStart InputKind = iota
	InputCancel
	InputButton
	InputText
)

func (k InputKind) String() string {
	switch k {
	case InputStart:
		return "start"
	case InputCancel:
		return "cancel"
	case InputButton:
		return "button"
	case InputText:
		return "text"
	}
	return "unknown"
}

// Input is one token of user input.
type Input struct {
	Kind  InputKind
	Value string
}

func Start() Input              { return Input{Kind: InputStart} }
func Cancel() Input             { return Input{Kind: InputCancel} }
func Press(token string) Input  { return Input{Kind: InputButton, Value: token} }
func Text(message string) Input { return Input{Kind: InputText, Value: message} }

// Button tokens.
const (
	TokenCredit      = "op:credit"
	TokenDebit       = "op:debit"
	TokenTransfer    = "op:transfer"
	TokenLeaderboard = "view:leaderboard"
	TokenHistory     = "view:history"
	TokenConfirm     = "confirm"
	TokenCancel      = "cancel"

	accountPrefix = "acct:"
)

// AccountToken is the button token selecting id.
func AccountToken(id model.AccountID) string {
	return accountPrefix + string(id)
}

func parseAccountToken(token string) (model.AccountID, bool) {
	id, ok := strings.CutPrefix(token, accountPrefix)
	if !ok || id == "" {
		return "", false
	}
	return model.AccountID(id), true
}

func parseOperationToken(token string) (model.Operation, bool) {
	switch token {
	case TokenCredit:
		return model.OpCredit, true
	case TokenDebit:
		return model.OpDebit, true
	case TokenTransfer:
		return model.OpTransfer, true
	}
	return "", false
}

// Button is one selectable choice.
type Button struct {
	Label string
	Token string
}

// Reply is what the machine wants shown to the user: HTML text plus optional
// rows of buttons.
type Reply struct {
	Text    string
	Buttons [][]Button
}
