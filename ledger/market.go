package ledger

import (
	"sync"

	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/message"
	"github.com/grafikui/shareaware-saga/money"
)

// MarketOptions sets the market's answers. The market refuses nothing
// unless told to.
type MarketOptions struct {
	RejectObtain bool
	RejectSale   bool

	// Halted shares are refused in both directions.
	Halted []string
}

// Market is a share exchange stand-in.
type Market struct {
	mu     sync.Mutex
	opts   MarketOptions
	halted map[string]bool
	trades []string
}

// NewMarket returns a market answering per opts.
func NewMarket(opts MarketOptions) *Market {
	halted := make(map[string]bool, len(opts.Halted))
	for _, s := range opts.Halted {
		halted[s] = true
	}
	return &Market{opts: opts, halted: halted}
}

// Trades returns the ids of the purchases and sales the market executed.
func (m *Market) Trades() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.trades...)
}

// Handlers returns the market's command handlers.
func (m *Market) Handlers() map[string]saga.CommandHandler {
	return map[string]saga.CommandHandler{
		message.TypeObtainShares:       handle(m.Obtain),
		message.TypeSellSharesOnMarket: handle(m.Sell),
	}
}

// Obtain buys shares for a purchase.
func (m *Market) Obtain(cmd message.ObtainShares) (saga.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opts.RejectObtain || m.halted[cmd.ShareID] {
		return message.SharesCannotBeObtained{PurchaseID: cmd.PurchaseID, ShareID: cmd.ShareID}, nil
	}
	m.trades = append(m.trades, cmd.PurchaseID)
	return message.SharesObtained{PurchaseID: cmd.PurchaseID, ShareID: cmd.ShareID, Quantity: cmd.Quantity}, nil
}

// Sell sells shares for a sale at the asked price.
func (m *Market) Sell(cmd message.SellSharesOnMarket) (saga.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opts.RejectSale || m.halted[cmd.ShareID] {
		return message.SharesCannotBeSoldOnMarket{SaleID: cmd.SaleID, ShareID: cmd.ShareID}, nil
	}
	proceeds, err := money.Multiply(cmd.Price, cmd.Quantity)
	if err != nil {
		return nil, err
	}
	m.trades = append(m.trades, cmd.SaleID)
	return message.SharesSoldOnMarket{
		SaleID:   cmd.SaleID,
		ShareID:  cmd.ShareID,
		Quantity: cmd.Quantity,
		Proceeds: proceeds,
	}, nil
}
