package message

import "github.com/grafikui/shareaware-saga/money"

type ObtainShares struct {
	PurchaseID string      `json:"purchase_id"`
	ShareID    string      `json:"share_id"`
	Quantity   int64       `json:"quantity"`
	Price      money.Money `json:"price"`
}

func (ObtainShares) MessageType() string { return TypeObtainShares }

type SharesObtained struct {
	PurchaseID string `json:"purchase_id"`
	ShareID    string `json:"share_id"`
	Quantity   int64  `json:"quantity"`
}

func (SharesObtained) MessageType() string { return TypeSharesObtained }

type SharesCannotBeObtained struct {
	PurchaseID string `json:"purchase_id"`
	ShareID    string `json:"share_id"`
}

func (SharesCannotBeObtained) MessageType() string { return TypeSharesCannotBeObtained }

func (SharesCannotBeObtained) Reason() string { return "shares cannot be obtained on the market" }

type SellSharesOnMarket struct {
	SaleID   string      `json:"sale_id"`
	ShareID  string      `json:"share_id"`
	Quantity int64       `json:"quantity"`
	Price    money.Money `json:"price"`
}

func (SellSharesOnMarket) MessageType() string { return TypeSellSharesOnMarket }

type SharesSoldOnMarket struct {
	SaleID   string      `json:"sale_id"`
	ShareID  string      `json:"share_id"`
	Quantity int64       `json:"quantity"`
	Proceeds money.Money `json:"proceeds"`
}

func (SharesSoldOnMarket) MessageType() string { return TypeSharesSoldOnMarket }

type SharesCannotBeSoldOnMarket struct {
	SaleID  string `json:"sale_id"`
	ShareID string `json:"share_id"`
}

func (SharesCannotBeSoldOnMarket) MessageType() string { return TypeSharesCannotBeSoldOnMarket }

func (SharesCannotBeSoldOnMarket) Reason() string { return "shares cannot be sold on the market" }
