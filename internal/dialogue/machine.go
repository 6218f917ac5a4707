package dialogue

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"FamilyPoints/internal/ledger"
	"FamilyPoints/internal/model"
)

// Accounts lists and names selectable accounts.
type Accounts interface {
	Accounts() []model.Account
	Resolve(id model.AccountID) string
}

// Balances answers the early, non-authoritative sufficiency check.
type Balances interface {
	Balance(id model.AccountID) (int64, bool)
}

// Committer applies a confirmed request.
type Committer interface {
	Apply(req ledger.Request) (*ledger.Result, error)
}

// Views renders the read-only menu entries.
type Views interface {
	Leaderboard() string
	History() string
}

// Deps are the collaborators of a Machine.
type Deps struct {
	Accounts Accounts
	Balances Balances
	Engine   Committer
	Views    Views
	Policy   ledger.PoolPolicy
	Logger   *zap.Logger
	Now      func() time.Time
}

type session struct {
	state   state
	touched time.Time
}

// transition handles one input kind in one state. It returns the reply and
// the next state.
type transition func(m *Machine, user model.AccountID, cur state, in Input) (Reply, state)

// Machine runs one independent dialogue per user.
type Machine struct {
	deps     Deps
	logger   *zap.Logger
	table    map[StateName]map[InputKind]transition
	mu       sync.Mutex
	sessions map[model.AccountID]*session
}

// New creates a Machine.
func New(deps Deps) *Machine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Machine{
		deps:     deps,
		logger:   deps.Logger.Named("dialogue"),
		table:    transitions(),
		sessions: make(map[model.AccountID]*session),
	}
}

// transitions is the full state × input table. Start and cancel are handled
// before the table for every state.
func transitions() map[StateName]map[InputKind]transition {
	return map[StateName]map[InputKind]transition{
		StateChooseOperation: {
			InputButton: (*Machine).pickOperation,
		},
		StateSelectAccount: {
			InputButton: (*Machine).pickFirstAccount,
		},
		StateSelectSecond: {
			InputButton: (*Machine).pickSecondAccount,
		},
		StateEnterAmount: {
			InputText: (*Machine).enterAmount,
		},
		StateEnterReason: {
			InputText: (*Machine).enterReason,
		},
		StateAwaitConfirmation: {
			InputButton: (*Machine).confirm,
		},
	}
}

// Handle feeds one input to user's dialogue and returns the reply.
func (m *Machine) Handle(user model.AccountID, in Input) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[user]
	if !ok {
		s = &session{state: idle{}}
		m.sessions[user] = s
	}
	s.touched = m.deps.Now()
	from := s.state.name()

	var (
		reply Reply
		next  state
	)
	switch {
	case in.Kind == InputCancel || (in.Kind == InputButton && in.Value == TokenCancel):
		reply, next = m.cancel(s.state)
	case in.Kind == InputStart:
		reply, next = m.menu("What would you like to do?"), chooseOperation{}
	default:
		if h, ok := m.table[from][in.Kind]; ok {
			reply, next = h(m, user, s.state, in)
		} else {
			reply, next = m.reprompt(s.state), s.state
		}
	}
	s.state = next

	if to := next.name(); to != from {
		m.logger.Debug("transition",
			zap.String("user", string(user)),
			zap.String("input", in.Kind.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
	}
	return reply
}

// State returns the current state of user's dialogue.
func (m *Machine) State(user model.AccountID) StateName {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[user]; ok {
		return s.state.name()
	}
	return StateIdle
}

// Pending returns the request user has gathered so far.
func (m *Machine) Pending(user model.AccountID) ledger.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[user]; ok {
		return s.state.pending()
	}
	return ledger.Request{}
}

// ExpireIdle returns sessions untouched for ttl to Idle and forgets them.
// It reports how many unfinished dialogues were dropped.
func (m *Machine) ExpireIdle(ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.deps.Now().Add(-ttl)
	dropped := 0
	for user, s := range m.sessions {
		if !s.touched.Before(cutoff) {
			continue
		}
		if s.state.name() != StateIdle {
			dropped++
			m.logger.Info("dialogue expired", zap.String("user", string(user)), zap.String("state", string(s.state.name())))
		}
		delete(m.sessions, user)
	}
	return dropped
}

func (m *Machine) cancel(cur state) (Reply, state) {
	if cur.name() == StateIdle {
		return Reply{Text: "Nothing to cancel. Send /start to begin."}, idle{}
	}
	return Reply{Text: "Operation cancelled. Send /start when you want to do something else."}, idle{}
}

func (m *Machine) pickOperation(_ model.AccountID, cur state, in Input) (Reply, state) {
	switch in.Value {
	case TokenLeaderboard:
		return m.withMenu(m.deps.Views.Leaderboard()), cur
	case TokenHistory:
		return m.withMenu(m.deps.Views.History()), cur
	}
	op, ok := parseOperationToken(in.Value)
	if !ok {
		return m.reprompt(cur), cur
	}
	next := selectAccount{op: op}
	return m.prompt(next), next
}

func (m *Machine) pickFirstAccount(_ model.AccountID, cur state, in Input) (Reply, state) {
	st := cur.(selectAccount)
	id, ok := parseAccountToken(in.Value)
	if !ok || !m.offered(m.firstChoices(st.op), id) {
		return m.reprompt(cur), cur
	}
	var next state
	if st.op == model.OpTransfer {
		next = selectSecond{source: id}
	} else {
		next = enterAmount{op: st.op, target: id}
	}
	return m.prompt(next), next
}

func (m *Machine) pickSecondAccount(_ model.AccountID, cur state, in Input) (Reply, state) {
	st := cur.(selectSecond)
	id, ok := parseAccountToken(in.Value)
	if ok && id == st.source {
		return m.guide("Cannot transfer points to the same account! Please select a different recipient.", cur), cur
	}
	if !ok || !m.offered(m.secondChoices(st.source), id) {
		return m.reprompt(cur), cur
	}
	next := enterAmount{op: model.OpTransfer, source: st.source, target: id}
	return m.prompt(next), next
}

func (m *Machine) enterAmount(_ model.AccountID, cur state, in Input) (Reply, state) {
	st := cur.(enterAmount)
	amount, err := strconv.ParseInt(strings.TrimSpace(in.Value), 10, 64)
	if err != nil {
		return m.guide("That's not a number. Please enter the amount in digits (e.g., 10):", cur), cur
	}
	if ledger.ValidateAmount(amount) != nil {
		return m.guide("Amount must be a positive number. Please enter a valid number:", cur), cur
	}

	// Early check only; the Engine decides again at confirmation.
	payer := st.target
	if st.op == model.OpTransfer {
		payer = st.source
	}
	if st.op != model.OpCredit {
		if bal, known := m.deps.Balances.Balance(payer); known && bal < amount {
			return Reply{Text: insufficientText(m.name(payer), bal)}, idle{}
		}
	}

	next := enterReason{op: st.op, source: st.source, target: st.target, amount: amount}
	return m.prompt(next), next
}

func (m *Machine) enterReason(user model.AccountID, cur state, in Input) (Reply, state) {
	st := cur.(enterReason)
	reason, err := ledger.ValidateReason(in.Value)
	if err != nil {
		if strings.TrimSpace(in.Value) == "" {
			return m.guide("Please provide a reason for the action:", cur), cur
		}
		return m.guide("Reasons should be descriptive, not just numbers. Please provide a proper reason:", cur), cur
	}
	next := awaitConfirmation{req: ledger.Request{
		Operation: st.op,
		Performer: user,
		Source:    st.source,
		Target:    st.target,
		Amount:    st.amount,
		Reason:    reason,
	}}
	return m.prompt(next), next
}

func (m *Machine) confirm(_ model.AccountID, cur state, in Input) (Reply, state) {
	st := cur.(awaitConfirmation)
	if in.Value != TokenConfirm {
		return m.reprompt(cur), cur
	}
	res, err := m.deps.Engine.Apply(st.req)
	if err != nil {
		if errors.Is(err, ledger.ErrPersist) {
			m.logger.Error("commit not saved", zap.Error(err))
		}
		return Reply{Text: RejectionText(err, m.name)}, idle{}
	}
	return Reply{Text: ResultText(res, m.name)}, idle{}
}

func (m *Machine) firstChoices(op model.Operation) []model.Account {
	var out []model.Account
	for _, a := range m.deps.Accounts.Accounts() {
		switch {
		case op == model.OpDebit && !m.deps.Policy.CanDebit(a.ID):
		case op == model.OpTransfer && !m.deps.Policy.CanTransferFrom(a.ID):
		default:
			out = append(out, a)
		}
	}
	return out
}

func (m *Machine) secondChoices(source model.AccountID) []model.Account {
	var out []model.Account
	for _, a := range m.deps.Accounts.Accounts() {
		if a.ID != source {
			out = append(out, a)
		}
	}
	return out
}

func (m *Machine) offered(choices []model.Account, id model.AccountID) bool {
	for _, a := range choices {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (m *Machine) name(id model.AccountID) string {
	return m.deps.Accounts.Resolve(id)
}
