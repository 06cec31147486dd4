package ledger

import (
	"sync"

	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/message"
	"github.com/grafikui/shareaware-saga/money"
)

// GatewayOptions sets the gateway's answers.
type GatewayOptions struct {
	RejectToUser   bool
	RejectFromUser bool
}

// Transfer is one movement executed by the gateway.
type Transfer struct {
	ID      string
	Account string
	Amount  money.Money
	Inbound bool
}

// Gateway is a payment gateway stand-in moving money between wallets and
// users' external accounts.
type Gateway struct {
	mu        sync.Mutex
	opts      GatewayOptions
	transfers map[string]Transfer
	order     []string
}

// NewGateway returns a gateway answering per opts.
func NewGateway(opts GatewayOptions) *Gateway {
	return &Gateway{opts: opts, transfers: make(map[string]Transfer)}
}

// Transfers returns executed transfers in order.
func (g *Gateway) Transfers() []Transfer {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Transfer, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.transfers[id])
	}
	return out
}

// Handlers returns the gateway's command handlers.
func (g *Gateway) Handlers() map[string]saga.CommandHandler {
	return map[string]saga.CommandHandler{
		message.TypeTransferMoneyToUser:   handle(g.ToUser),
		message.TypeTransferMoneyFromUser: handle(g.FromUser),
	}
}

func (g *Gateway) record(t Transfer) {
	if _, ok := g.transfers[t.ID]; ok {
		return
	}
	g.transfers[t.ID] = t
	g.order = append(g.order, t.ID)
}

// ToUser pays a withdrawal out to the recipient.
func (g *Gateway) ToUser(cmd message.TransferMoneyToUser) (saga.Message, error) {
	if err := cmd.Amount.Validate(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.opts.RejectToUser {
		return message.MoneyCannotBeTransferredToUser{WithdrawalID: cmd.WithdrawalID, Recipient: cmd.Recipient}, nil
	}
	g.record(Transfer{ID: cmd.WithdrawalID, Account: cmd.Recipient, Amount: cmd.Amount})
	return message.MoneyTransferredToUser{WithdrawalID: cmd.WithdrawalID, Amount: cmd.Amount}, nil
}

// FromUser charges the source account for a replenishment.
func (g *Gateway) FromUser(cmd message.TransferMoneyFromUser) (saga.Message, error) {
	if err := cmd.Amount.Validate(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.opts.RejectFromUser {
		return message.MoneyCannotBeTransferredFromUser{ReplenishmentID: cmd.ReplenishmentID, Source: cmd.Source}, nil
	}
	g.record(Transfer{ID: cmd.ReplenishmentID, Account: cmd.Source, Amount: cmd.Amount, Inbound: true})
	return message.MoneyTransferredFromUser{ReplenishmentID: cmd.ReplenishmentID, Amount: cmd.Amount}, nil
}
