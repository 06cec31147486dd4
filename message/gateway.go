package message

import "github.com/grafikui/shareaware-saga/money"

type TransferMoneyToUser struct {
	WithdrawalID string      `json:"withdrawal_id"`
	Recipient    string      `json:"recipient"`
	Amount       money.Money `json:"amount"`
}

func (TransferMoneyToUser) MessageType() string { return TypeTransferMoneyToUser }

type MoneyTransferredToUser struct {
	WithdrawalID string      `json:"withdrawal_id"`
	Amount       money.Money `json:"amount"`
}

func (MoneyTransferredToUser) MessageType() string { return TypeMoneyTransferredToUser }

type MoneyCannotBeTransferredToUser struct {
	WithdrawalID string `json:"withdrawal_id"`
	Recipient    string `json:"recipient"`
}

func (MoneyCannotBeTransferredToUser) MessageType() string { return TypeMoneyCannotBeTransferredToUser }

func (MoneyCannotBeTransferredToUser) Reason() string { return "payment gateway refused the payout" }

type TransferMoneyFromUser struct {
	ReplenishmentID string      `json:"replenishment_id"`
	Source          string      `json:"source"`
	Amount          money.Money `json:"amount"`
}

func (TransferMoneyFromUser) MessageType() string { return TypeTransferMoneyFromUser }

type MoneyTransferredFromUser struct {
	ReplenishmentID string      `json:"replenishment_id"`
	Amount          money.Money `json:"amount"`
}

func (MoneyTransferredFromUser) MessageType() string { return TypeMoneyTransferredFromUser }

type MoneyCannotBeTransferredFromUser struct {
	ReplenishmentID string `json:"replenishment_id"`
	Source          string `json:"source"`
}

func (MoneyCannotBeTransferredFromUser) MessageType() string {
	return TypeMoneyCannotBeTransferredFromUser
}

func (MoneyCannotBeTransferredFromUser) Reason() string { return "payment gateway refused the charge" }
