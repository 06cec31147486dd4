package amqptransport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saga "github.com/grafikui/shareaware-saga"
	"github.com/grafikui/shareaware-saga/ledger"
	"github.com/grafikui/shareaware-saga/message"
	"github.com/grafikui/shareaware-saga/money"
	"github.com/grafikui/shareaware-saga/operation"
	"github.com/grafikui/shareaware-saga/workflow"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

type ackRecord struct {
	acked    bool
	nacked   bool
	requeued bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	records map[uint64]*ackRecord
}

func newAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{records: make(map[uint64]*ackRecord)}
}

func (a *fakeAcknowledger) record(tag uint64) *ackRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.records[tag]
	if !ok {
		r = &ackRecord{}
		a.records[tag] = r
	}
	return r
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.record(tag).acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	r := a.record(tag)
	r.nacked = true
	r.requeued = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func delivery(t *testing.T, ack amqp.Acknowledger, tag uint64, msg saga.Message) amqp.Delivery {
	t.Helper()
	pub, err := Encode(msg, time.Unix(0, 0))
	require.NoError(t, err)
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		Type:         pub.Type,
		MessageId:    pub.MessageId,
		ContentType:  pub.ContentType,
		Body:         pub.Body,
	}
}

func consumeAll(t *testing.T, c *Consumer, deliveries ...amqp.Delivery) {
	t.Helper()
	ch := make(chan amqp.Delivery, len(deliveries))
	for _, d := range deliveries {
		ch <- d
	}
	close(ch)
	err := c.Consume(context.Background(), ch)
	assert.EqualError(t, err, "delivery channel closed")
}

func TestPublisher_SendsTypedPersistentMessages(t *testing.T) {
	ch := &fakeChannel{}
	pub := NewPublisher(ch, "saga", nil)
	msg := message.ReserveMoney{WalletID: "alice", Operation: operation.PurchaseID("p-1"), Amount: money.MustNew(3, 0, "USD")}

	require.NoError(t, pub.Send(context.Background(), msg))
	require.NoError(t, pub.Send(context.Background(), msg))

	require.Len(t, ch.sent, 2)
	first := ch.sent[0]
	assert.Equal(t, "saga", first.exchange)
	assert.Equal(t, message.TypeReserveMoney, first.key)
	assert.Equal(t, message.TypeReserveMoney, first.msg.Type)
	assert.Equal(t, ContentType, first.msg.ContentType)
	assert.Equal(t, amqp.Persistent, first.msg.DeliveryMode)
	assert.NotEmpty(t, first.msg.MessageId)
	assert.Equal(t, first.msg.MessageId, ch.sent[1].msg.MessageId, "re-sent message keeps its id")
}

func TestPublisher_PropagatesChannelError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	pub := NewPublisher(ch, "saga", nil)

	err := pub.Send(context.Background(), message.SharesAdded{InvestmentID: "i", PurchaseID: "p"})
	assert.ErrorContains(t, err, "channel closed")
}

func TestDecode_RoundTrip(t *testing.T) {
	sent := message.BalanceRecharged{
		WalletID:  "bob",
		Operation: operation.SaleID("s-1"),
		Amount:    money.MustNew(20, 50, "USD"),
		Balance:   money.MustNew(20, 50, "USD"),
	}
	got, err := Decode(delivery(t, nil, 1, sent))
	require.NoError(t, err)
	assert.Equal(t, sent, got)

	_, err = Decode(amqp.Delivery{Body: []byte(`{}`)})
	assert.Error(t, err)
}

func TestConsumer_AckNackSemantics(t *testing.T) {
	ack := newAcknowledger()
	transient := errors.New("storage unavailable")

	c := NewConsumer(func(_ context.Context, msg saga.Message) error {
		switch m := msg.(type) {
		case message.SharesAdded:
			if m.PurchaseID == "transient" {
				return transient
			}
			if m.PurchaseID == "permanent" {
				return Permanent(errors.New("bad"))
			}
		}
		return nil
	}, nil)

	undecodable := amqp.Delivery{Acknowledger: ack, DeliveryTag: 4, Type: "Nope", Body: []byte(`{}`)}
	consumeAll(t, c,
		delivery(t, ack, 1, message.SharesAdded{PurchaseID: "ok"}),
		delivery(t, ack, 2, message.SharesAdded{PurchaseID: "transient"}),
		delivery(t, ack, 3, message.SharesAdded{PurchaseID: "permanent"}),
		undecodable,
	)

	assert.Equal(t, &ackRecord{acked: true}, ack.record(1))
	assert.Equal(t, &ackRecord{nacked: true, requeued: true}, ack.record(2))
	assert.Equal(t, &ackRecord{nacked: true}, ack.record(3))
	assert.Equal(t, &ackRecord{nacked: true}, ack.record(4))
}

func TestConsumer_AcksRedeliveredMessageIDOnce(t *testing.T) {
	ack := newAcknowledger()
	calls := make(map[string]int)
	failOnce := true

	c := NewConsumer(func(_ context.Context, msg saga.Message) error {
		m := msg.(message.SharesAdded)
		calls[m.PurchaseID]++
		if m.PurchaseID == "flaky" && failOnce {
			failOnce = false
			return errors.New("storage unavailable")
		}
		return nil
	}, nil)

	first := message.SharesAdded{InvestmentID: "i", PurchaseID: "p-1", SharesAvailable: 3}
	flaky := message.SharesAdded{InvestmentID: "i", PurchaseID: "flaky"}
	consumeAll(t, c,
		delivery(t, ack, 1, first),
		delivery(t, ack, 2, first),
		delivery(t, ack, 3, flaky),
		delivery(t, ack, 4, flaky),
		delivery(t, ack, 5, flaky),
	)

	assert.Equal(t, 1, calls["p-1"], "same message id is handled once")
	assert.Equal(t, &ackRecord{acked: true}, ack.record(2))
	assert.Equal(t, 2, calls["flaky"], "a failed delivery is not remembered")
	assert.Equal(t, &ackRecord{nacked: true, requeued: true}, ack.record(3))
	assert.Equal(t, &ackRecord{acked: true}, ack.record(4))
	assert.Equal(t, &ackRecord{acked: true}, ack.record(5))
}

func TestRecentIDs_ForgetsOldest(t *testing.T) {
	r := newRecentIDs(2)
	r.add("a")
	r.add("b")
	r.add("a")
	assert.True(t, r.contains("a"))

	r.add("c")
	assert.False(t, r.contains("a"))
	assert.True(t, r.contains("b"))
	assert.True(t, r.contains("c"))
	assert.Len(t, r.ids, 2)
}

func TestConsumer_StopsOnContextDone(t *testing.T) {
	c := NewConsumer(func(context.Context, saga.Message) error { return nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, c.Consume(ctx, make(chan amqp.Delivery)))
}

func newEngine(t *testing.T, sink saga.CommandSink) *saga.Engine {
	t.Helper()
	defs, err := workflow.All()
	require.NoError(t, err)
	e, err := saga.NewEngine(saga.NewMemoryStorage(), sink, saga.EngineOptions{}, defs...)
	require.NoError(t, err)
	return e
}

func TestEngineHandler(t *testing.T) {
	ch := &fakeChannel{}
	engine := newEngine(t, NewPublisher(ch, "saga", nil))
	handle := EngineHandler(engine, nil)
	ctx := context.Background()

	start := message.ReplenishWallet{ReplenishmentID: "r-1", WalletID: "w", Source: "card", Amount: money.MustNew(5, 0, "USD")}
	require.NoError(t, handle(ctx, start))
	require.NoError(t, handle(ctx, start), "redelivered initiator is acknowledged")
	require.Len(t, ch.sent, 1)
	assert.Equal(t, message.TypeTransferMoneyFromUser, ch.sent[0].key)

	require.NoError(t, handle(ctx, message.MoneyTransferredFromUser{ReplenishmentID: "r-1", Amount: start.Amount}))
	require.Len(t, ch.sent, 2)
	assert.Equal(t, message.TypeRechargeBalance, ch.sent[1].key)

	err := handle(ctx, message.ReplenishWallet{})
	assert.ErrorIs(t, err, ErrPermanent)

	err = handle(ctx, message.ReserveMoney{})
	assert.ErrorIs(t, err, ErrPermanent, "commands are not routed to the engine")
}

func TestEngineHandler_ReactionFailureIsPermanent(t *testing.T) {
	storage := saga.NewMemoryStorage()
	defs, err := workflow.All()
	require.NoError(t, err)
	ch := &fakeChannel{}
	engine, err := saga.NewEngine(storage, NewPublisher(ch, "saga", nil), saga.EngineOptions{}, defs...)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, storage.Create(ctx, &saga.Instance{
		ID:        "r-1",
		Workflow:  workflow.ReplenishmentType,
		State:     []byte(`[]`),
		Status:    saga.StatusPending,
		Applied:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}))

	ack := newAcknowledger()
	c := NewConsumer(EngineHandler(engine, nil), nil)
	consumeAll(t, c, delivery(t, ack, 1, message.MoneyTransferredFromUser{ReplenishmentID: "r-1", Amount: money.MustNew(5, 0, "USD")}))

	assert.Equal(t, &ackRecord{nacked: true}, ack.record(1), "a reaction that cannot run is not requeued")
	assert.Empty(t, ch.sent)

	err = EngineHandler(engine, nil)(ctx, message.MoneyTransferredFromUser{ReplenishmentID: "r-1"})
	assert.ErrorIs(t, err, ErrPermanent)
	assert.ErrorIs(t, err, saga.ErrReactionFailed)
}

func TestDeterministic(t *testing.T) {
	reaction := saga.NewReactionFailedError("a", "X", errors.New("bad state"))
	transient := errors.New("storage unavailable")

	assert.True(t, deterministic(reaction))
	assert.True(t, deterministic(errors.Join(reaction, saga.NewNoReactionError("w", "X"))))
	assert.False(t, deterministic(transient))
	assert.False(t, deterministic(errors.Join(reaction, transient)), "a transient part is retried")
}

func TestLedgerHandler_PublishesResult(t *testing.T) {
	ch := &fakeChannel{}
	wallet := ledger.NewWallet()
	handle := LedgerHandler(wallet.Handlers(), NewPublisher(ch, "saga", nil))
	ctx := context.Background()

	err := handle(ctx, message.RechargeBalance{WalletID: "w", Operation: operation.ReplenishmentID("r-1"), Amount: money.MustNew(5, 0, "USD")})
	require.NoError(t, err)
	require.Len(t, ch.sent, 1)
	assert.Equal(t, message.TypeBalanceRecharged, ch.sent[0].key)

	err = handle(ctx, message.ObtainShares{})
	assert.ErrorIs(t, err, ErrPermanent)

	err = handle(ctx, message.DebitReservedMoney{WalletID: "w", Operation: operation.PurchaseID("nope")})
	assert.ErrorIs(t, err, ErrPermanent)
	assert.ErrorIs(t, err, ledger.ErrNoReservation)
}
