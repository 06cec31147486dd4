package ledger

import (
	"fmt"
	"sync"

	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/message"
)

type holding struct {
	available int64
	reserved  map[string]int64
	settled   map[string]settlement
	// quantity a settled reservation held
	settledQty map[string]int64
}

// Investment holds share positions keyed by investment id. A reservation
// takes shares out of the available count until it is completed or
// canceled.
type Investment struct {
	mu       sync.Mutex
	holdings map[string]*holding
	added    map[string]int64
	refused  map[string]message.InsufficientShares
}

// NewInvestment returns an empty investment ledger.
func NewInvestment() *Investment {
	return &Investment{
		holdings: make(map[string]*holding),
		added:    make(map[string]int64),
		refused:  make(map[string]message.InsufficientShares),
	}
}

func (i *Investment) holding(id string) *holding {
	h, ok := i.holdings[id]
	if !ok {
		h = &holding{
			reserved:   make(map[string]int64),
			settled:    make(map[string]settlement),
			settledQty: make(map[string]int64),
		}
		i.holdings[id] = h
	}
	return h
}

// Deposit adds shares outside of any workflow.
func (i *Investment) Deposit(investmentID string, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.holding(investmentID).available += quantity
	return nil
}

// Shares returns the available share count.
func (i *Investment) Shares(investmentID string) int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if h, ok := i.holdings[investmentID]; ok {
		return h.available
	}
	return 0
}

// Reserved returns the reserved share count.
func (i *Investment) Reserved(investmentID string) int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	var total int64
	if h, ok := i.holdings[investmentID]; ok {
		for _, q := range h.reserved {
			total += q
		}
	}
	return total
}

// Handlers returns the investment's command handlers.
func (i *Investment) Handlers() map[string]saga.CommandHandler {
	return map[string]saga.CommandHandler{
		message.TypeAddShares:                 handle(i.Add),
		message.TypeReserveShares:             handle(i.Reserve),
		message.TypeCompleteSharesReservation: handle(i.Complete),
		message.TypeCancelSharesReservation:   handle(i.Cancel),
	}
}

// Add credits purchased shares once per purchase.
func (i *Investment) Add(cmd message.AddShares) (saga.Message, error) {
	if cmd.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", cmd.Quantity)
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	h := i.holding(cmd.InvestmentID)
	if _, ok := i.added[cmd.PurchaseID]; !ok {
		h.available += cmd.Quantity
		i.added[cmd.PurchaseID] = cmd.Quantity
	}
	return message.SharesAdded{
		InvestmentID:    cmd.InvestmentID,
		PurchaseID:      cmd.PurchaseID,
		SharesAvailable: h.available,
	}, nil
}

// Reserve answers SharesReserved, or InsufficientShares when too few shares
// are available. A sale reserves at most once: once its reservation is
// settled, or it was refused, a redelivered command gets the first answer.
func (i *Investment) Reserve(cmd message.ReserveShares) (saga.Message, error) {
	if cmd.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", cmd.Quantity)
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	if refusal, ok := i.refused[cmd.SaleID]; ok {
		return refusal, nil
	}
	h, ok := i.holdings[cmd.InvestmentID]
	if ok {
		if q, reserved := h.reserved[cmd.SaleID]; reserved {
			return message.SharesReserved{InvestmentID: cmd.InvestmentID, SaleID: cmd.SaleID, Quantity: q}, nil
		}
		if h.settled[cmd.SaleID] != 0 {
			return message.SharesReserved{InvestmentID: cmd.InvestmentID, SaleID: cmd.SaleID, Quantity: h.settledQty[cmd.SaleID]}, nil
		}
	}
	if !ok || h.available < cmd.Quantity {
		var available int64
		if ok {
			available = h.available
		}
		refusal := message.InsufficientShares{
			InvestmentID: cmd.InvestmentID,
			SaleID:       cmd.SaleID,
			Requested:    cmd.Quantity,
			Available:    available,
		}
		i.refused[cmd.SaleID] = refusal
		return refusal, nil
	}

	h.available -= cmd.Quantity
	h.reserved[cmd.SaleID] = cmd.Quantity
	return message.SharesReserved{InvestmentID: cmd.InvestmentID, SaleID: cmd.SaleID, Quantity: cmd.Quantity}, nil
}

// Complete consumes a reservation; the shares leave the investment.
func (i *Investment) Complete(cmd message.CompleteSharesReservation) (saga.Message, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	h, ok := i.holdings[cmd.InvestmentID]
	if !ok {
		return nil, fmt.Errorf("investment %s: %w", cmd.InvestmentID, ErrUnknownAccount)
	}
	if h.settled[cmd.SaleID] != completed {
		q, reserved := h.reserved[cmd.SaleID]
		if !reserved {
			return nil, fmt.Errorf("complete %s in %s: %w", cmd.SaleID, cmd.InvestmentID, ErrNoReservation)
		}
		delete(h.reserved, cmd.SaleID)
		h.settled[cmd.SaleID] = completed
		h.settledQty[cmd.SaleID] = q
	}
	return message.SharesReservationCompleted{
		InvestmentID:    cmd.InvestmentID,
		SaleID:          cmd.SaleID,
		SharesAvailable: h.available,
	}, nil
}

// Cancel returns reserved shares to the available count.
func (i *Investment) Cancel(cmd message.CancelSharesReservation) (saga.Message, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	h, ok := i.holdings[cmd.InvestmentID]
	if !ok {
		return nil, fmt.Errorf("investment %s: %w", cmd.InvestmentID, ErrUnknownAccount)
	}
	if h.settled[cmd.SaleID] != canceled {
		q, reserved := h.reserved[cmd.SaleID]
		if !reserved {
			return nil, fmt.Errorf("cancel %s in %s: %w", cmd.SaleID, cmd.InvestmentID, ErrNoReservation)
		}
		h.available += q
		delete(h.reserved, cmd.SaleID)
		h.settled[cmd.SaleID] = canceled
		h.settledQty[cmd.SaleID] = q
	}
	return message.SharesReservationCanceled{InvestmentID: cmd.InvestmentID, SaleID: cmd.SaleID}, nil
}
