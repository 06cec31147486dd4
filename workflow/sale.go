package workflow

import (
	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/message"
	"github.com/grafikui/shareaware-saga/money"
	"github.com/grafikui/shareaware-saga/operation"
)

// SaleState is the persisted state of a sale.
type SaleState struct {
	SaleID   string      `json:"sale_id"`
	Seller   string      `json:"seller"`
	ShareID  string      `json:"share_id"`
	Quantity int64       `json:"quantity"`
	Price    money.Money `json:"price"`
	Proceeds money.Money `json:"proceeds"`
	Cause    string      `json:"cause,omitempty"`
}

func (s *SaleState) investment() string { return message.InvestmentID(s.Seller, s.ShareID) }

// Sale reserves shares in the seller's investment, sells them on the
// market, credits the proceeds to the seller's wallet and completes the
// reservation. A market refusal cancels the reservation.
func Sale() (*saga.Workflow[SaleState], error) {
	protocol := saga.Compensation[SaleState]{
		Rejected: message.TypeInsufficientShares,
		SettleOn: message.TypeBalanceRecharged,
		Settle: func(s *SaleState, _ saga.Message) saga.Message {
			return message.CompleteSharesReservation{InvestmentID: s.investment(), SaleID: s.SaleID}
		},
		Settled:   message.TypeSharesReservationCompleted,
		ActFailed: message.TypeSharesCannotBeSoldOnMarket,
		Cancel: func(s *SaleState, sig saga.Message) saga.Message {
			s.Cause = reason(sig, "shares cannot be sold")
			return message.CancelSharesReservation{InvestmentID: s.investment(), SaleID: s.SaleID}
		},
		Canceled: message.TypeSharesReservationCanceled,
		Success: func(s *SaleState, _ saga.Message) saga.Message {
			return message.SharesSold{
				SaleID:   s.SaleID,
				Seller:   s.Seller,
				ShareID:  s.ShareID,
				Quantity: s.Quantity,
				Amount:   s.Proceeds,
			}
		},
		Failure: func(s *SaleState, sig saga.Message) saga.Message {
			return message.SharesSaleFailed{SaleID: s.SaleID, Seller: s.Seller, Cause: reason(sig, s.Cause)}
		},
	}
	settle, err := protocol.Reactions()
	if err != nil {
		return nil, err
	}

	forward := map[string]saga.Reaction[SaleState]{
		message.TypeSharesReserved: saga.On(func(s *SaleState, _ message.SharesReserved) saga.Outcome {
			return saga.Emit(message.SellSharesOnMarket{
				SaleID:   s.SaleID,
				ShareID:  s.ShareID,
				Quantity: s.Quantity,
				Price:    s.Price,
			})
		}),
		message.TypeSharesSoldOnMarket: saga.On(func(s *SaleState, e message.SharesSoldOnMarket) saga.Outcome {
			s.Proceeds = e.Proceeds
			return saga.Emit(message.RechargeBalance{
				WalletID:  s.Seller,
				Operation: operation.SaleID(s.SaleID),
				Amount:    e.Proceeds,
			})
		}),
	}

	reactions, err := saga.MergeReactions(forward, settle)
	if err != nil {
		return nil, err
	}

	return &saga.Workflow[SaleState]{
		Name:      SaleType,
		Initiator: message.TypeSellShares,
		Start:     startSale,
		Reactions: reactions,
		Routes: mergeRoutes(
			walletRoutes(operation.Sale, message.TypeBalanceRecharged),
			map[string]saga.RouteFunc{
				message.TypeSharesReserved:             saga.RouteBy(func(e message.SharesReserved) string { return e.SaleID }),
				message.TypeInsufficientShares:         saga.RouteBy(func(e message.InsufficientShares) string { return e.SaleID }),
				message.TypeSharesSoldOnMarket:         saga.RouteBy(func(e message.SharesSoldOnMarket) string { return e.SaleID }),
				message.TypeSharesCannotBeSoldOnMarket: saga.RouteBy(func(e message.SharesCannotBeSoldOnMarket) string { return e.SaleID }),
				message.TypeSharesReservationCompleted: saga.RouteBy(func(e message.SharesReservationCompleted) string { return e.SaleID }),
				message.TypeSharesReservationCanceled:  saga.RouteBy(func(e message.SharesReservationCanceled) string { return e.SaleID }),
			},
		),
		After: mergeSteps(protocol.After(), map[string][]string{
			message.TypeSharesReserved:             {saga.Started},
			message.TypeInsufficientShares:         {saga.Started},
			message.TypeSharesSoldOnMarket:         {message.TypeSharesReserved},
			message.TypeSharesCannotBeSoldOnMarket: {message.TypeSharesReserved},
			message.TypeBalanceRecharged:           {message.TypeSharesSoldOnMarket},
		}),
	}, nil
}

func startSale(cmd saga.Message) (string, SaleState, saga.Message, error) {
	c, ok := cmd.(message.SellShares)
	if !ok {
		return "", SaleState{}, nil, unexpected(message.TypeSellShares, cmd)
	}
	if err := c.Validate(); err != nil {
		return "", SaleState{}, nil, err
	}

	state := SaleState{
		SaleID:   c.SaleID,
		Seller:   c.Seller,
		ShareID:  c.ShareID,
		Quantity: c.Quantity,
		Price:    c.Price,
		Proceeds: money.Zero(c.Price.Currency),
	}
	return c.SaleID, state, message.ReserveShares{
		InvestmentID: state.investment(),
		SaleID:       c.SaleID,
		Quantity:     c.Quantity,
	}, nil
}
