package workflow

import (
	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/message"
	"github.com/grafikui/shareaware-saga/money"
	"github.com/grafikui/shareaware-saga/operation"
)

// ReplenishmentState is the persisted state of a replenishment.
type ReplenishmentState struct {
	ReplenishmentID string      `json:"replenishment_id"`
	WalletID        string      `json:"wallet_id"`
	Source          string      `json:"source"`
	Amount          money.Money `json:"amount"`
}

// Replenishment charges the user's external account and credits the wallet.
// Nothing is reserved before the charge, so a refusal ends the instance
// directly.
func Replenishment() *saga.Workflow[ReplenishmentState] {
	return &saga.Workflow[ReplenishmentState]{
		Name:      ReplenishmentType,
		Initiator: message.TypeReplenishWallet,
		Start:     startReplenishment,
		Reactions: map[string]saga.Reaction[ReplenishmentState]{
			message.TypeMoneyTransferredFromUser: saga.On(func(s *ReplenishmentState, _ message.MoneyTransferredFromUser) saga.Outcome {
				return saga.Emit(message.RechargeBalance{
					WalletID:  s.WalletID,
					Operation: operation.ReplenishmentID(s.ReplenishmentID),
					Amount:    s.Amount,
				})
			}),
			message.TypeBalanceRecharged: saga.On(func(s *ReplenishmentState, _ message.BalanceRecharged) saga.Outcome {
				return saga.Complete(message.WalletReplenished{
					ReplenishmentID: s.ReplenishmentID,
					WalletID:        s.WalletID,
					Amount:          s.Amount,
				})
			}),
			message.TypeMoneyCannotBeTransferredFromUser: saga.On(func(s *ReplenishmentState, r message.MoneyCannotBeTransferredFromUser) saga.Outcome {
				return saga.Fail(message.WalletNotReplenished{
					ReplenishmentID: s.ReplenishmentID,
					WalletID:        s.WalletID,
					Cause:           r.Reason(),
				})
			}),
		},
		Routes: mergeRoutes(
			walletRoutes(operation.Replenishment, message.TypeBalanceRecharged),
			map[string]saga.RouteFunc{
				message.TypeMoneyTransferredFromUser:         saga.RouteBy(func(e message.MoneyTransferredFromUser) string { return e.ReplenishmentID }),
				message.TypeMoneyCannotBeTransferredFromUser: saga.RouteBy(func(e message.MoneyCannotBeTransferredFromUser) string { return e.ReplenishmentID }),
			},
		),
		After: map[string][]string{
			message.TypeMoneyTransferredFromUser:         {saga.Started},
			message.TypeMoneyCannotBeTransferredFromUser: {saga.Started},
			message.TypeBalanceRecharged:                 {message.TypeMoneyTransferredFromUser},
		},
	}
}

func startReplenishment(cmd saga.Message) (string, ReplenishmentState, saga.Message, error) {
	c, ok := cmd.(message.ReplenishWallet)
	if !ok {
		return "", ReplenishmentState{}, nil, unexpected(message.TypeReplenishWallet, cmd)
	}
	if err := c.Validate(); err != nil {
		return "", ReplenishmentState{}, nil, err
	}

	state := ReplenishmentState{
		ReplenishmentID: c.ReplenishmentID,
		WalletID:        c.WalletID,
		Source:          c.Source,
		Amount:          c.Amount,
	}
	return c.ReplenishmentID, state, message.TransferMoneyFromUser{
		ReplenishmentID: c.ReplenishmentID,
		Source:          c.Source,
		Amount:          c.Amount,
	}, nil
}
