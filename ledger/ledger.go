// Package ledger provides in-memory reference implementations of the
// sub-ledgers the workflows coordinate: wallets, investments, the share
// market and the payment gateway.
//
// Every command is processed atomically against its ledger and produces
// exactly one event or rejection. Commands are idempotent per operation, so
// a redelivered command yields the same event without applying twice.
package ledger

import (
	"context"
	"errors"
	"fmt"

	saga "github.com/grafikui/shareaware-saga"
)

var (
	// ErrUnknownAccount is returned for commands against a wallet or
	// investment that was never opened.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrNoReservation is returned when settling or canceling a reservation
	// that does not exist.
	ErrNoReservation = errors.New("no such reservation")
)

// handle adapts a typed command function to saga.CommandHandler.
func handle[T saga.Message](fn func(cmd T) (saga.Message, error)) saga.CommandHandler {
	return func(_ context.Context, cmd saga.Message) (saga.Message, error) {
		typed, ok := cmd.(T)
		if !ok {
			return nil, fmt.Errorf("unexpected command %T", cmd)
		}
		return fn(typed)
	}
}

// Handlers merges the command handlers of several ledgers.
func Handlers(tables ...map[string]saga.CommandHandler) map[string]saga.CommandHandler {
	merged := make(map[string]saga.CommandHandler)
	for _, table := range tables {
		for t, h := range table {
			merged[t] = h
		}
	}
	return merged
}
