// saga-worker runs the saga engine against RabbitMQ: it consumes initiating
// commands, events and rejections from the saga queue, publishes the commands
// the engine issues and serves saga state over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/amqptransport"
	"github.com/grafikui/shareaware-saga/config"
	"github.com/grafikui/shareaware-saga/httpapi"
	"github.com/grafikui/shareaware-saga/ledger"
	"github.com/grafikui/shareaware-saga/workflow"
)

func main() {
	runLedger := flag.Bool("ledger", true, "Also consume ledger commands with the in-process reference ledgers")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *runLedger, logger); err != nil {
		logger.Error("saga worker stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, runLedger bool, logger *zap.Logger) error {
	db, err := cfg.OpenDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	storage, err := cfg.Storage(db)
	if err != nil {
		return err
	}
	if err := storage.Migrate(ctx); err != nil {
		return err
	}

	lock, closeLock, err := cfg.NewLock(db)
	if err != nil {
		return err
	}
	defer closeLock()

	conn, err := amqptransport.Dial(cfg.AMQPURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	publisher := amqptransport.NewPublisher(conn.Channel, cfg.Exchange, logger)

	defs, err := workflow.All()
	if err != nil {
		return err
	}
	engine, err := saga.NewEngine(storage, publisher, saga.EngineOptions{
		Lock:    lock,
		LockTTL: cfg.LockTTL,
		Logger:  logger,
		Events:  dropCounter(logger),
	}, defs...)
	if err != nil {
		return err
	}

	consumers := []queueConsumer{{
		topology: amqptransport.Topology{Exchange: cfg.Exchange, Queue: cfg.SagaQueue, Bindings: sagaBindings(engine)},
		handler:  amqptransport.EngineHandler(engine, logger),
	}}
	if runLedger {
		handlers := referenceLedgers()
		consumers = append(consumers, queueConsumer{
			topology: amqptransport.Topology{Exchange: cfg.Exchange, Queue: cfg.LedgerQueue, Bindings: handlerTypes(handlers)},
			handler:  amqptransport.LedgerHandler(handlers, publisher),
		})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, len(consumers)+1)

	for _, qc := range consumers {
		ch, err := conn.Conn.Channel()
		if err != nil {
			return fmt.Errorf("open consumer channel: %w", err)
		}
		defer ch.Close()

		if err := amqptransport.Declare(ch, qc.topology); err != nil {
			return err
		}
		deliveries, err := amqptransport.Deliveries(ch, qc.topology.Queue, "saga-worker")
		if err != nil {
			return err
		}
		logger.Info("consuming",
			zap.String("queue", qc.topology.Queue),
			zap.Strings("bindings", qc.topology.Bindings),
		)

		wg.Add(1)
		go func(qc queueConsumer) {
			defer wg.Done()
			if err := amqptransport.NewConsumer(qc.handler, logger).Consume(ctx, deliveries); err != nil {
				errs <- fmt.Errorf("queue %s: %w", qc.topology.Queue, err)
			}
		}(qc)
	}

	app := httpapi.NewApp(engine, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			errs <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errs:
	}

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("http shutdown: %w", err))
	}
	wg.Wait()

	return runErr
}

type queueConsumer struct {
	topology amqptransport.Topology
	handler  amqptransport.Handler
}

// sagaBindings are the message types the engine consumes: initiating
// commands plus every routed event and rejection.
func sagaBindings(e *saga.Engine) []string {
	return append(e.InitiatorTypes(), e.Router().SignalTypes()...)
}

// referenceLedgers returns the command handlers of the in-process wallet,
// investment, market and gateway.
func referenceLedgers() map[string]saga.CommandHandler {
	return ledger.Handlers(
		ledger.NewWallet().Handlers(),
		ledger.NewInvestment().Handlers(),
		ledger.NewMarket(ledger.MarketOptions{}).Handlers(),
		ledger.NewGateway(ledger.GatewayOptions{}).Handlers(),
	)
}

func handlerTypes(handlers map[string]saga.CommandHandler) []string {
	types := make([]string, 0, len(handlers))
	for t := range handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// dropCounter logs a running count of dropped signals per reason.
func dropCounter(logger *zap.Logger) *saga.EngineEvents {
	var mu sync.Mutex
	counts := make(map[saga.DropReason]int)
	return &saga.EngineEvents{
		OnSignalDropped: func(id string, sig saga.Message, reason saga.DropReason) {
			mu.Lock()
			counts[reason]++
			n := counts[reason]
			mu.Unlock()
			logger.Debug("drop count",
				zap.String("reason", string(reason)),
				zap.Int("count", n),
			)
		},
	}
}
