package message

import (
	"errors"

	"github.com/grafikui/shareaware-saga/money"
)

// PurchaseShares starts a purchase of Quantity shares at Price each.
type PurchaseShares struct {
	PurchaseID string      `json:"purchase_id"`
	Purchaser  string      `json:"purchaser"`
	ShareID    string      `json:"share_id"`
	Quantity   int64       `json:"quantity"`
	Price      money.Money `json:"price"`
}

func (PurchaseShares) MessageType() string { return TypePurchaseShares }

// Validate checks the command before a purchase is started.
func (c PurchaseShares) Validate() error {
	return errors.Join(
		required(map[string]string{"purchase_id": c.PurchaseID, "purchaser": c.Purchaser, "share_id": c.ShareID}),
		positive("quantity", c.Quantity),
		c.Price.Validate(),
	)
}

// SellShares starts a sale of Quantity shares at Price each.
type SellShares struct {
	SaleID   string      `json:"sale_id"`
	Seller   string      `json:"seller"`
	ShareID  string      `json:"share_id"`
	Quantity int64       `json:"quantity"`
	Price    money.Money `json:"price"`
}

func (SellShares) MessageType() string { return TypeSellShares }

// Validate checks the command before a sale is started.
func (c SellShares) Validate() error {
	return errors.Join(
		required(map[string]string{"sale_id": c.SaleID, "seller": c.Seller, "share_id": c.ShareID}),
		positive("quantity", c.Quantity),
		c.Price.Validate(),
	)
}

// WithdrawMoney starts a transfer from a wallet to the user's external
// account.
type WithdrawMoney struct {
	WithdrawalID string      `json:"withdrawal_id"`
	WalletID     string      `json:"wallet_id"`
	Recipient    string      `json:"recipient"`
	Amount       money.Money `json:"amount"`
}

func (WithdrawMoney) MessageType() string { return TypeWithdrawMoney }

// Validate checks the command before a withdrawal is started.
func (c WithdrawMoney) Validate() error {
	return errors.Join(
		required(map[string]string{"withdrawal_id": c.WithdrawalID, "wallet_id": c.WalletID, "recipient": c.Recipient}),
		c.Amount.Validate(),
	)
}

// ReplenishWallet starts a transfer from the user's external account into a
// wallet.
type ReplenishWallet struct {
	ReplenishmentID string      `json:"replenishment_id"`
	WalletID        string      `json:"wallet_id"`
	Source          string      `json:"source"`
	Amount          money.Money `json:"amount"`
}

func (ReplenishWallet) MessageType() string { return TypeReplenishWallet }

// Validate checks the command before a replenishment is started.
func (c ReplenishWallet) Validate() error {
	return errors.Join(
		required(map[string]string{"replenishment_id": c.ReplenishmentID, "wallet_id": c.WalletID, "source": c.Source}),
		c.Amount.Validate(),
	)
}

// Terminal events.

type SharesPurchased struct {
	PurchaseID string      `json:"purchase_id"`
	Purchaser  string      `json:"purchaser"`
	ShareID    string      `json:"share_id"`
	Quantity   int64       `json:"quantity"`
	Amount     money.Money `json:"amount"`
}

func (SharesPurchased) MessageType() string { return TypeSharesPurchased }

type SharesPurchaseFailed struct {
	PurchaseID string `json:"purchase_id"`
	Purchaser  string `json:"purchaser"`
	Cause      string `json:"cause"`
}

func (SharesPurchaseFailed) MessageType() string { return TypeSharesPurchaseFailed }

type SharesSold struct {
	SaleID   string      `json:"sale_id"`
	Seller   string      `json:"seller"`
	ShareID  string      `json:"share_id"`
	Quantity int64       `json:"quantity"`
	Amount   money.Money `json:"amount"`
}

func (SharesSold) MessageType() string { return TypeSharesSold }

type SharesSaleFailed struct {
	SaleID string `json:"sale_id"`
	Seller string `json:"seller"`
	Cause  string `json:"cause"`
}

func (SharesSaleFailed) MessageType() string { return TypeSharesSaleFailed }

type MoneyWithdrawn struct {
	WithdrawalID string      `json:"withdrawal_id"`
	WalletID     string      `json:"wallet_id"`
	Amount       money.Money `json:"amount"`
}

func (MoneyWithdrawn) MessageType() string { return TypeMoneyWithdrawn }

type MoneyNotWithdrawn struct {
	WithdrawalID string `json:"withdrawal_id"`
	WalletID     string `json:"wallet_id"`
	Cause        string `json:"cause"`
}

func (MoneyNotWithdrawn) MessageType() string { return TypeMoneyNotWithdrawn }

type WalletReplenished struct {
	ReplenishmentID string      `json:"replenishment_id"`
	WalletID        string      `json:"wallet_id"`
	Amount          money.Money `json:"amount"`
}

func (WalletReplenished) MessageType() string { return TypeWalletReplenished }

type WalletNotReplenished struct {
	ReplenishmentID string `json:"replenishment_id"`
	WalletID        string `json:"wallet_id"`
	Cause           string `json:"cause"`
}

func (WalletNotReplenished) MessageType() string { return TypeWalletNotReplenished }
