package workflow

import (
	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/message"
	"github.com/grafikui/shareaware-saga/money"
	"github.com/grafikui/shareaware-saga/operation"
)

// PurchaseState is the persisted state of a purchase.
type PurchaseState struct {
	PurchaseID string      `json:"purchase_id"`
	Purchaser  string      `json:"purchaser"`
	ShareID    string      `json:"share_id"`
	Quantity   int64       `json:"quantity"`
	Price      money.Money `json:"price"`
	Amount     money.Money `json:"amount"`
	Cause      string      `json:"cause,omitempty"`
}

func (s *PurchaseState) opID() operation.ID { return operation.PurchaseID(s.PurchaseID) }

func (s *PurchaseState) failed(cause string) message.SharesPurchaseFailed {
	return message.SharesPurchaseFailed{PurchaseID: s.PurchaseID, Purchaser: s.Purchaser, Cause: cause}
}

// Purchase reserves the price in the purchaser's wallet, obtains the shares
// on the market, adds them to the purchaser's investment and debits the
// reservation. A market refusal cancels the reservation.
func Purchase() (*saga.Workflow[PurchaseState], error) {
	protocol := saga.Compensation[PurchaseState]{
		Rejected: message.TypeInsufficientFunds,
		SettleOn: message.TypeSharesAdded,
		Settle: func(s *PurchaseState, _ saga.Message) saga.Message {
			return message.DebitReservedMoney{WalletID: s.Purchaser, Operation: s.opID()}
		},
		Settled:   message.TypeReservedMoneyDebited,
		ActFailed: message.TypeSharesCannotBeObtained,
		Cancel: func(s *PurchaseState, sig saga.Message) saga.Message {
			s.Cause = reason(sig, "shares cannot be obtained")
			return message.CancelMoneyReservation{WalletID: s.Purchaser, Operation: s.opID()}
		},
		Canceled: message.TypeMoneyReservationCanceled,
		Success: func(s *PurchaseState, _ saga.Message) saga.Message {
			return message.SharesPurchased{
				PurchaseID: s.PurchaseID,
				Purchaser:  s.Purchaser,
				ShareID:    s.ShareID,
				Quantity:   s.Quantity,
				Amount:     s.Amount,
			}
		},
		Failure: func(s *PurchaseState, sig saga.Message) saga.Message {
			return s.failed(reason(sig, s.Cause))
		},
	}
	settle, err := protocol.Reactions()
	if err != nil {
		return nil, err
	}

	forward := map[string]saga.Reaction[PurchaseState]{
		message.TypeMoneyReserved: saga.On(func(s *PurchaseState, _ message.MoneyReserved) saga.Outcome {
			return saga.Emit(message.ObtainShares{
				PurchaseID: s.PurchaseID,
				ShareID:    s.ShareID,
				Quantity:   s.Quantity,
				Price:      s.Price,
			})
		}),
		message.TypeSharesObtained: saga.On(func(s *PurchaseState, _ message.SharesObtained) saga.Outcome {
			return saga.Emit(message.AddShares{
				InvestmentID: message.InvestmentID(s.Purchaser, s.ShareID),
				PurchaseID:   s.PurchaseID,
				Quantity:     s.Quantity,
			})
		}),
	}

	reactions, err := saga.MergeReactions(forward, settle)
	if err != nil {
		return nil, err
	}

	return &saga.Workflow[PurchaseState]{
		Name:      PurchaseType,
		Initiator: message.TypePurchaseShares,
		Start:     startPurchase,
		Reactions: reactions,
		Routes: mergeRoutes(
			walletRoutes(operation.Purchase, reservationEvents...),
			map[string]saga.RouteFunc{
				message.TypeSharesObtained:         saga.RouteBy(func(e message.SharesObtained) string { return e.PurchaseID }),
				message.TypeSharesCannotBeObtained: saga.RouteBy(func(e message.SharesCannotBeObtained) string { return e.PurchaseID }),
				message.TypeSharesAdded:            saga.RouteBy(func(e message.SharesAdded) string { return e.PurchaseID }),
			},
		),
		After: mergeSteps(protocol.After(), map[string][]string{
			message.TypeMoneyReserved:          {saga.Started},
			message.TypeInsufficientFunds:      {saga.Started},
			message.TypeSharesObtained:         {message.TypeMoneyReserved},
			message.TypeSharesCannotBeObtained: {message.TypeMoneyReserved},
			message.TypeSharesAdded:            {message.TypeSharesObtained},
		}),
	}, nil
}

func startPurchase(cmd saga.Message) (string, PurchaseState, saga.Message, error) {
	c, ok := cmd.(message.PurchaseShares)
	if !ok {
		return "", PurchaseState{}, nil, unexpected(message.TypePurchaseShares, cmd)
	}
	if err := c.Validate(); err != nil {
		return "", PurchaseState{}, nil, err
	}
	amount, err := money.Multiply(c.Price, c.Quantity)
	if err != nil {
		return "", PurchaseState{}, nil, err
	}

	state := PurchaseState{
		PurchaseID: c.PurchaseID,
		Purchaser:  c.Purchaser,
		ShareID:    c.ShareID,
		Quantity:   c.Quantity,
		Price:      c.Price,
		Amount:     amount,
	}
	return c.PurchaseID, state, message.ReserveMoney{
		WalletID:  c.Purchaser,
		Operation: state.opID(),
		Amount:    amount,
	}, nil
}
