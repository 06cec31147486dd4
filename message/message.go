// Package message is the vocabulary exchanged between the workflows and the
// ledgers they coordinate: commands, the events that confirm them, and the
// rejections that refuse them.
package message

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Message types.
const (
	TypePurchaseShares  = "PurchaseShares"
	TypeSellShares      = "SellShares"
	TypeWithdrawMoney   = "WithdrawMoney"
	TypeReplenishWallet = "ReplenishWallet"

	TypeSharesPurchased      = "SharesPurchased"
	TypeSharesPurchaseFailed = "SharesPurchaseFailed"
	TypeSharesSold           = "SharesSold"
	TypeSharesSaleFailed     = "SharesSaleFailed"
	TypeMoneyWithdrawn       = "MoneyWithdrawn"
	TypeMoneyNotWithdrawn    = "MoneyNotWithdrawn"
	TypeWalletReplenished    = "WalletReplenished"
	TypeWalletNotReplenished = "WalletNotReplenished"

	TypeReserveMoney             = "ReserveMoney"
	TypeMoneyReserved            = "MoneyReserved"
	TypeInsufficientFunds        = "InsufficientFunds"
	TypeDebitReservedMoney       = "DebitReservedMoney"
	TypeReservedMoneyDebited     = "ReservedMoneyDebited"
	TypeCancelMoneyReservation   = "CancelMoneyReservation"
	TypeMoneyReservationCanceled = "MoneyReservationCanceled"
	TypeRechargeBalance          = "RechargeBalance"
	TypeBalanceRecharged         = "BalanceRecharged"

	TypeAddShares                  = "AddShares"
	TypeSharesAdded                = "SharesAdded"
	TypeReserveShares              = "ReserveShares"
	TypeSharesReserved             = "SharesReserved"
	TypeInsufficientShares         = "InsufficientShares"
	TypeCompleteSharesReservation  = "CompleteSharesReservation"
	TypeSharesReservationCompleted = "SharesReservationCompleted"
	TypeCancelSharesReservation    = "CancelSharesReservation"
	TypeSharesReservationCanceled  = "SharesReservationCanceled"

	TypeObtainShares               = "ObtainShares"
	TypeSharesObtained             = "SharesObtained"
	TypeSharesCannotBeObtained     = "SharesCannotBeObtained"
	TypeSellSharesOnMarket         = "SellSharesOnMarket"
	TypeSharesSoldOnMarket         = "SharesSoldOnMarket"
	TypeSharesCannotBeSoldOnMarket = "SharesCannotBeSoldOnMarket"

	TypeTransferMoneyToUser              = "TransferMoneyToUser"
	TypeMoneyTransferredToUser           = "MoneyTransferredToUser"
	TypeMoneyCannotBeTransferredToUser   = "MoneyCannotBeTransferredToUser"
	TypeTransferMoneyFromUser            = "TransferMoneyFromUser"
	TypeMoneyTransferredFromUser         = "MoneyTransferredFromUser"
	TypeMoneyCannotBeTransferredFromUser = "MoneyCannotBeTransferredFromUser"
)

// InvestmentID is the id of the investment holding shareID for owner.
func InvestmentID(owner, shareID string) string {
	return owner + "/" + shareID
}

type decoder func(data []byte) (any, error)

func decodeAs[T any](data []byte) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var decoders = map[string]decoder{
	TypePurchaseShares:  decodeAs[PurchaseShares],
	TypeSellShares:      decodeAs[SellShares],
	TypeWithdrawMoney:   decodeAs[WithdrawMoney],
	TypeReplenishWallet: decodeAs[ReplenishWallet],

	TypeSharesPurchased:      decodeAs[SharesPurchased],
	TypeSharesPurchaseFailed: decodeAs[SharesPurchaseFailed],
	TypeSharesSold:           decodeAs[SharesSold],
	TypeSharesSaleFailed:     decodeAs[SharesSaleFailed],
	TypeMoneyWithdrawn:       decodeAs[MoneyWithdrawn],
	TypeMoneyNotWithdrawn:    decodeAs[MoneyNotWithdrawn],
	TypeWalletReplenished:    decodeAs[WalletReplenished],
	TypeWalletNotReplenished: decodeAs[WalletNotReplenished],

	TypeReserveMoney:             decodeAs[ReserveMoney],
	TypeMoneyReserved:            decodeAs[MoneyReserved],
	TypeInsufficientFunds:        decodeAs[InsufficientFunds],
	TypeDebitReservedMoney:       decodeAs[DebitReservedMoney],
	TypeReservedMoneyDebited:     decodeAs[ReservedMoneyDebited],
	TypeCancelMoneyReservation:   decodeAs[CancelMoneyReservation],
	TypeMoneyReservationCanceled: decodeAs[MoneyReservationCanceled],
	TypeRechargeBalance:          decodeAs[RechargeBalance],
	TypeBalanceRecharged:         decodeAs[BalanceRecharged],

	TypeAddShares:                  decodeAs[AddShares],
	TypeSharesAdded:                decodeAs[SharesAdded],
	TypeReserveShares:              decodeAs[ReserveShares],
	TypeSharesReserved:             decodeAs[SharesReserved],
	TypeInsufficientShares:         decodeAs[InsufficientShares],
	TypeCompleteSharesReservation:  decodeAs[CompleteSharesReservation],
	TypeSharesReservationCompleted: decodeAs[SharesReservationCompleted],
	TypeCancelSharesReservation:    decodeAs[CancelSharesReservation],
	TypeSharesReservationCanceled:  decodeAs[SharesReservationCanceled],

	TypeObtainShares:               decodeAs[ObtainShares],
	TypeSharesObtained:             decodeAs[SharesObtained],
	TypeSharesCannotBeObtained:     decodeAs[SharesCannotBeObtained],
	TypeSellSharesOnMarket:         decodeAs[SellSharesOnMarket],
	TypeSharesSoldOnMarket:         decodeAs[SharesSoldOnMarket],
	TypeSharesCannotBeSoldOnMarket: decodeAs[SharesCannotBeSoldOnMarket],

	TypeTransferMoneyToUser:              decodeAs[TransferMoneyToUser],
	TypeMoneyTransferredToUser:           decodeAs[MoneyTransferredToUser],
	TypeMoneyCannotBeTransferredToUser:   decodeAs[MoneyCannotBeTransferredToUser],
	TypeTransferMoneyFromUser:            decodeAs[TransferMoneyFromUser],
	TypeMoneyTransferredFromUser:         decodeAs[MoneyTransferredFromUser],
	TypeMoneyCannotBeTransferredFromUser: decodeAs[MoneyCannotBeTransferredFromUser],
}

// Decode decodes a JSON payload of the given message type into its value
// type.
func Decode(messageType string, data []byte) (any, error) {
	decode, ok := decoders[messageType]
	if !ok {
		return nil, fmt.Errorf("unknown message type %q", messageType)
	}
	v, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", messageType, err)
	}
	return v, nil
}

// Known reports whether messageType is part of the vocabulary.
func Known(messageType string) bool {
	_, ok := decoders[messageType]
	return ok
}

func required(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func positive(name string, n int64) error {
	if n <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, n)
	}
	return nil
}
