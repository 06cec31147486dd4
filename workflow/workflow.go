// Package workflow defines the share purchase, sale, withdrawal and
// replenishment workflows on top of the saga engine.
//
// Wallet signals carry an operation.ID and are routed by its kind; every
// other signal carries the id of the workflow that issued its command.
package workflow

import (
	"fmt"

	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/message"
	"github.com/grafikui/shareaware-saga/operation"
)

// Workflow types.
const (
	PurchaseType      saga.WorkflowType = "purchase"
	SaleType          saga.WorkflowType = "sale"
	WithdrawalType    saga.WorkflowType = "withdrawal"
	ReplenishmentType saga.WorkflowType = "replenishment"
)

// All returns the four workflow definitions, ready for saga.NewEngine.
func All() ([]saga.Definition, error) {
	purchase, err := Purchase()
	if err != nil {
		return nil, err
	}
	sale, err := Sale()
	if err != nil {
		return nil, err
	}
	withdrawal, err := Withdrawal()
	if err != nil {
		return nil, err
	}
	return []saga.Definition{purchase, sale, withdrawal, Replenishment()}, nil
}

// byOperation routes a wallet signal to the instance named by its operation
// id when the id is of the given kind.
func byOperation[T saga.Message](kind operation.Kind, op func(T) operation.ID) saga.RouteFunc {
	return saga.RouteBy(func(sig T) string {
		id, _ := op(sig).Is(kind)
		return id
	})
}

// reason is the rejection text of sig, or fallback when sig is not a
// rejection.
func reason(sig saga.Message, fallback string) string {
	if r, ok := sig.(saga.Rejection); ok {
		return r.Reason()
	}
	return fallback
}

func unexpected(want string, got saga.Message) error {
	return fmt.Errorf("expected %s, got %s", want, got.MessageType())
}

// reservationEvents are the wallet signals of a money reservation.
var reservationEvents = []string{
	message.TypeMoneyReserved,
	message.TypeInsufficientFunds,
	message.TypeReservedMoneyDebited,
	message.TypeMoneyReservationCanceled,
}

// walletRoutes returns the operation-id routes of the given wallet signal
// types for one workflow kind.
func walletRoutes(kind operation.Kind, types ...string) map[string]saga.RouteFunc {
	all := map[string]saga.RouteFunc{
		message.TypeMoneyReserved:            byOperation(kind, func(e message.MoneyReserved) operation.ID { return e.Operation }),
		message.TypeInsufficientFunds:        byOperation(kind, func(e message.InsufficientFunds) operation.ID { return e.Operation }),
		message.TypeReservedMoneyDebited:     byOperation(kind, func(e message.ReservedMoneyDebited) operation.ID { return e.Operation }),
		message.TypeMoneyReservationCanceled: byOperation(kind, func(e message.MoneyReservationCanceled) operation.ID { return e.Operation }),
		message.TypeBalanceRecharged:         byOperation(kind, func(e message.BalanceRecharged) operation.ID { return e.Operation }),
	}
	routes := make(map[string]saga.RouteFunc, len(types))
	for _, t := range types {
		routes[t] = all[t]
	}
	return routes
}

func mergeSteps(tables ...map[string][]string) map[string][]string {
	merged := make(map[string][]string)
	for _, table := range tables {
		for t, preceding := range table {
			merged[t] = append(merged[t], preceding...)
		}
	}
	return merged
}

func mergeRoutes(tables ...map[string]saga.RouteFunc) map[string]saga.RouteFunc {
	merged := make(map[string]saga.RouteFunc)
	for _, table := range tables {
		for t, rule := range table {
			merged[t] = rule
		}
	}
	return merged
}
