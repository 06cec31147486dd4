package ledger

import (
	"fmt"
	"sync"

	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/message"
	"github.com/grafikui/shareaware-saga/money"
	"github.com/grafikui/shareaware-saga/operation"
)

type reservationKey struct {
	wallet string
	op     operation.ID
}

type settlement int

const (
	debited settlement = iota + 1
	completed
	canceled
)

// Wallet holds money balances. A reservation moves money out of the
// available balance until it is debited or canceled.
type Wallet struct {
	mu           sync.Mutex
	balances     map[string]money.Money
	reservations map[reservationKey]money.Money
	settled      map[reservationKey]settlement
	settledWith  map[reservationKey]money.Money
	refused      map[reservationKey]message.InsufficientFunds
	recharged    map[reservationKey]money.Money
}

// NewWallet returns an empty wallet ledger.
func NewWallet() *Wallet {
	return &Wallet{
		balances:     make(map[string]money.Money),
		reservations: make(map[reservationKey]money.Money),
		settled:      make(map[reservationKey]settlement),
		settledWith:  make(map[reservationKey]money.Money),
		refused:      make(map[reservationKey]message.InsufficientFunds),
		recharged:    make(map[reservationKey]money.Money),
	}
}

// Open creates a wallet with an initial balance.
func (w *Wallet) Open(walletID string, balance money.Money) error {
	if err := balance.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.balances[walletID]; ok {
		return fmt.Errorf("wallet %s already open", walletID)
	}
	w.balances[walletID] = balance
	return nil
}

// Balance returns the available balance of a wallet.
func (w *Wallet) Balance(walletID string) (money.Money, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.balances[walletID]
	return b, ok
}

// Reserved returns the total reserved in a wallet.
func (w *Wallet) Reserved(walletID string) money.Money {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := money.Zero(w.balances[walletID].Currency)
	for key, amount := range w.reservations {
		if key.wallet != walletID {
			continue
		}
		if sum, err := money.Add(total, amount); err == nil {
			total = sum
		}
	}
	return total
}

// Handlers returns the wallet's command handlers.
func (w *Wallet) Handlers() map[string]saga.CommandHandler {
	return map[string]saga.CommandHandler{
		message.TypeReserveMoney:           handle(w.Reserve),
		message.TypeDebitReservedMoney:     handle(w.Debit),
		message.TypeCancelMoneyReservation: handle(w.Cancel),
		message.TypeRechargeBalance:        handle(w.Recharge),
	}
}

// Reserve answers MoneyReserved, or InsufficientFunds when the available
// balance does not cover the amount. An operation is reserved at most once:
// after its reservation is debited or canceled, or after it was refused, a
// redelivered command gets the first answer again.
func (w *Wallet) Reserve(cmd message.ReserveMoney) (saga.Message, error) {
	if err := cmd.Operation.Validate(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	key := reservationKey{cmd.WalletID, cmd.Operation}
	if amount, ok := w.reservations[key]; ok {
		return message.MoneyReserved{WalletID: cmd.WalletID, Operation: cmd.Operation, Amount: amount}, nil
	}
	if w.settled[key] != 0 {
		return message.MoneyReserved{WalletID: cmd.WalletID, Operation: cmd.Operation, Amount: w.settledWith[key]}, nil
	}
	if refusal, ok := w.refused[key]; ok {
		return refusal, nil
	}

	balance, ok := w.balances[cmd.WalletID]
	if !ok {
		balance = money.Zero(cmd.Amount.Currency)
	}
	greater, err := money.IsGreater(cmd.Amount, balance)
	if err != nil {
		return nil, err
	}
	if !ok || greater {
		refusal := message.InsufficientFunds{
			WalletID:  cmd.WalletID,
			Operation: cmd.Operation,
			Requested: cmd.Amount,
			Available: balance,
		}
		w.refused[key] = refusal
		return refusal, nil
	}

	rest, err := money.Subtract(balance, cmd.Amount)
	if err != nil {
		return nil, err
	}
	w.balances[cmd.WalletID] = rest
	w.reservations[key] = cmd.Amount
	return message.MoneyReserved{WalletID: cmd.WalletID, Operation: cmd.Operation, Amount: cmd.Amount}, nil
}

// Debit consumes a reservation.
func (w *Wallet) Debit(cmd message.DebitReservedMoney) (saga.Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := reservationKey{cmd.WalletID, cmd.Operation}
	if w.settled[key] == debited {
		return message.ReservedMoneyDebited{
			WalletID:  cmd.WalletID,
			Operation: cmd.Operation,
			Amount:    w.settledWith[key],
			Balance:   w.balances[cmd.WalletID],
		}, nil
	}
	amount, ok := w.reservations[key]
	if !ok {
		return nil, fmt.Errorf("debit %s in wallet %s: %w", cmd.Operation, cmd.WalletID, ErrNoReservation)
	}

	delete(w.reservations, key)
	w.settled[key] = debited
	w.settledWith[key] = amount
	return message.ReservedMoneyDebited{
		WalletID:  cmd.WalletID,
		Operation: cmd.Operation,
		Amount:    amount,
		Balance:   w.balances[cmd.WalletID],
	}, nil
}

// Cancel releases a reservation back to the available balance.
func (w *Wallet) Cancel(cmd message.CancelMoneyReservation) (saga.Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := reservationKey{cmd.WalletID, cmd.Operation}
	if w.settled[key] == canceled {
		return message.MoneyReservationCanceled{WalletID: cmd.WalletID, Operation: cmd.Operation, Amount: w.settledWith[key]}, nil
	}
	amount, ok := w.reservations[key]
	if !ok {
		return nil, fmt.Errorf("cancel %s in wallet %s: %w", cmd.Operation, cmd.WalletID, ErrNoReservation)
	}

	balance, err := money.Add(w.balances[cmd.WalletID], amount)
	if err != nil {
		return nil, err
	}
	w.balances[cmd.WalletID] = balance
	delete(w.reservations, key)
	w.settled[key] = canceled
	w.settledWith[key] = amount
	return message.MoneyReservationCanceled{WalletID: cmd.WalletID, Operation: cmd.Operation, Amount: amount}, nil
}

// Recharge credits the wallet, opening it if needed.
func (w *Wallet) Recharge(cmd message.RechargeBalance) (saga.Message, error) {
	if err := cmd.Operation.Validate(); err != nil {
		return nil, err
	}
	if err := cmd.Amount.Validate(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	key := reservationKey{cmd.WalletID, cmd.Operation}
	if amount, ok := w.recharged[key]; ok {
		return message.BalanceRecharged{
			WalletID:  cmd.WalletID,
			Operation: cmd.Operation,
			Amount:    amount,
			Balance:   w.balances[cmd.WalletID],
		}, nil
	}

	current, ok := w.balances[cmd.WalletID]
	if !ok {
		current = money.Zero(cmd.Amount.Currency)
	}
	balance, err := money.Add(current, cmd.Amount)
	if err != nil {
		return nil, err
	}
	w.balances[cmd.WalletID] = balance
	w.recharged[key] = cmd.Amount
	return message.BalanceRecharged{
		WalletID:  cmd.WalletID,
		Operation: cmd.Operation,
		Amount:    cmd.Amount,
		Balance:   balance,
	}, nil
}
