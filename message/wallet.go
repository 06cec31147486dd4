package message

import (
	"github.com/grafikui/shareaware-saga/money"
	"github.com/grafikui/shareaware-saga/operation"
)

// Wallet messages carry the operation id of the workflow that asked for
// them; the wallet itself is workflow-agnostic.

type ReserveMoney struct {
	WalletID  string       `json:"wallet_id"`
	Operation operation.ID `json:"operation"`
	Amount    money.Money  `json:"amount"`
}

func (ReserveMoney) MessageType() string { return TypeReserveMoney }

type MoneyReserved struct {
	WalletID  string       `json:"wallet_id"`
	Operation operation.ID `json:"operation"`
	Amount    money.Money  `json:"amount"`
}

func (MoneyReserved) MessageType() string { return TypeMoneyReserved }

// InsufficientFunds rejects a ReserveMoney the balance cannot cover.
type InsufficientFunds struct {
	WalletID  string       `json:"wallet_id"`
	Operation operation.ID `json:"operation"`
	Requested money.Money  `json:"requested"`
	Available money.Money  `json:"available"`
}

func (InsufficientFunds) MessageType() string { return TypeInsufficientFunds }

func (r InsufficientFunds) Reason() string {
	return "insufficient funds: requested " + r.Requested.String() + ", available " + r.Available.String()
}

type DebitReservedMoney struct {
	WalletID  string       `json:"wallet_id"`
	Operation operation.ID `json:"operation"`
}

func (DebitReservedMoney) MessageType() string { return TypeDebitReservedMoney }

type ReservedMoneyDebited struct {
	WalletID  string       `json:"wallet_id"`
	Operation operation.ID `json:"operation"`
	Amount    money.Money  `json:"amount"`
	Balance   money.Money  `json:"balance"`
}

func (ReservedMoneyDebited) MessageType() string { return TypeReservedMoneyDebited }

type CancelMoneyReservation struct {
	WalletID  string       `json:"wallet_id"`
	Operation operation.ID `json:"operation"`
}

func (CancelMoneyReservation) MessageType() string { return TypeCancelMoneyReservation }

type MoneyReservationCanceled struct {
	WalletID  string       `json:"wallet_id"`
	Operation operation.ID `json:"operation"`
	Amount    money.Money  `json:"amount"`
}

func (MoneyReservationCanceled) MessageType() string { return TypeMoneyReservationCanceled }

type RechargeBalance struct {
	WalletID  string       `json:"wallet_id"`
	Operation operation.ID `json:"operation"`
	Amount    money.Money  `json:"amount"`
}

func (RechargeBalance) MessageType() string { return TypeRechargeBalance }

type BalanceRecharged struct {
	WalletID  string       `json:"wallet_id"`
	Operation operation.ID `json:"operation"`
	Amount    money.Money  `json:"amount"`
	Balance   money.Money  `json:"balance"`
}

func (BalanceRecharged) MessageType() string { return TypeBalanceRecharged }
