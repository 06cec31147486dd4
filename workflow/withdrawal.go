package workflow

import (
	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/message"
	"github.com/grafikui/shareaware-saga/money"
	"github.com/grafikui/shareaware-saga/operation"
)

// WithdrawalState is the persisted state of a withdrawal.
type WithdrawalState struct {
	WithdrawalID string      `json:"withdrawal_id"`
	WalletID     string      `json:"wallet_id"`
	Recipient    string      `json:"recipient"`
	Amount       money.Money `json:"amount"`
	Cause        string      `json:"cause,omitempty"`
}

func (s *WithdrawalState) opID() operation.ID { return operation.WithdrawalID(s.WithdrawalID) }

// Withdrawal reserves the amount in the wallet, pays it out through the
// gateway and debits the reservation. A refused payout cancels the
// reservation.
func Withdrawal() (*saga.Workflow[WithdrawalState], error) {
	protocol := saga.Compensation[WithdrawalState]{
		Rejected: message.TypeInsufficientFunds,
		SettleOn: message.TypeMoneyTransferredToUser,
		Settle: func(s *WithdrawalState, _ saga.Message) saga.Message {
			return message.DebitReservedMoney{WalletID: s.WalletID, Operation: s.opID()}
		},
		Settled:   message.TypeReservedMoneyDebited,
		ActFailed: message.TypeMoneyCannotBeTransferredToUser,
		Cancel: func(s *WithdrawalState, sig saga.Message) saga.Message {
			s.Cause = reason(sig, "money cannot be transferred")
			return message.CancelMoneyReservation{WalletID: s.WalletID, Operation: s.opID()}
		},
		Canceled: message.TypeMoneyReservationCanceled,
		Success: func(s *WithdrawalState, _ saga.Message) saga.Message {
			return message.MoneyWithdrawn{WithdrawalID: s.WithdrawalID, WalletID: s.WalletID, Amount: s.Amount}
		},
		Failure: func(s *WithdrawalState, sig saga.Message) saga.Message {
			return message.MoneyNotWithdrawn{WithdrawalID: s.WithdrawalID, WalletID: s.WalletID, Cause: reason(sig, s.Cause)}
		},
	}
	settle, err := protocol.Reactions()
	if err != nil {
		return nil, err
	}

	forward := map[string]saga.Reaction[WithdrawalState]{
		message.TypeMoneyReserved: saga.On(func(s *WithdrawalState, _ message.MoneyReserved) saga.Outcome {
			return saga.Emit(message.TransferMoneyToUser{
				WithdrawalID: s.WithdrawalID,
				Recipient:    s.Recipient,
				Amount:       s.Amount,
			})
		}),
	}

	reactions, err := saga.MergeReactions(forward, settle)
	if err != nil {
		return nil, err
	}

	return &saga.Workflow[WithdrawalState]{
		Name:      WithdrawalType,
		Initiator: message.TypeWithdrawMoney,
		Start:     startWithdrawal,
		Reactions: reactions,
		Routes: mergeRoutes(
			walletRoutes(operation.Withdrawal, reservationEvents...),
			map[string]saga.RouteFunc{
				message.TypeMoneyTransferredToUser:         saga.RouteBy(func(e message.MoneyTransferredToUser) string { return e.WithdrawalID }),
				message.TypeMoneyCannotBeTransferredToUser: saga.RouteBy(func(e message.MoneyCannotBeTransferredToUser) string { return e.WithdrawalID }),
			},
		),
		After: mergeSteps(protocol.After(), map[string][]string{
			message.TypeMoneyReserved:                  {saga.Started},
			message.TypeInsufficientFunds:              {saga.Started},
			message.TypeMoneyTransferredToUser:         {message.TypeMoneyReserved},
			message.TypeMoneyCannotBeTransferredToUser: {message.TypeMoneyReserved},
		}),
	}, nil
}

func startWithdrawal(cmd saga.Message) (string, WithdrawalState, saga.Message, error) {
	c, ok := cmd.(message.WithdrawMoney)
	if !ok {
		return "", WithdrawalState{}, nil, unexpected(message.TypeWithdrawMoney, cmd)
	}
	if err := c.Validate(); err != nil {
		return "", WithdrawalState{}, nil, err
	}

	state := WithdrawalState{
		WithdrawalID: c.WithdrawalID,
		WalletID:     c.WalletID,
		Recipient:    c.Recipient,
		Amount:       c.Amount,
	}
	return c.WithdrawalID, state, message.ReserveMoney{
		WalletID:  c.WalletID,
		Operation: state.opID(),
		Amount:    c.Amount,
	}, nil
}
