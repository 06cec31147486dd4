package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// testMsg is a message whose type is data, so one struct serves every step
// of the test workflow.
type testMsg struct {
	Kind string
	ID   string
}

func (m testMsg) MessageType() string { return m.Kind }

type testRejection struct {
	testMsg
	Why string
}

func (r testRejection) Reason() string { return r.Why }

func msg(kind, id string) testMsg { return testMsg{Kind: kind, ID: id} }

type orderState struct {
	ID    string
	Notes []string
}

func byID(sig Message) []string {
	switch m := sig.(type) {
	case testMsg:
		return []string{m.ID}
	case testRejection:
		return []string{m.ID}
	}
	return nil
}

// orderWorkflow is Start -> Reserve, Reserved -> Act, then the
// compensation protocol around Act.
func orderWorkflow(t *testing.T) *Workflow[orderState] {
	t.Helper()

	note := func(s *orderState, sig Message) { s.Notes = append(s.Notes, sig.MessageType()) }
	settle, err := Compensation[orderState]{
		Rejected: "Refused",
		SettleOn: "Acted",
		Settle: func(s *orderState, sig Message) Message {
			note(s, sig)
			return msg("Settle", s.ID)
		},
		Settled:   "Settled",
		ActFailed: "ActFailed",
		Cancel: func(s *orderState, sig Message) Message {
			note(s, sig)
			return msg("Cancel", s.ID)
		},
		Canceled: "Canceled",
		Success: func(s *orderState, sig Message) Message {
			note(s, sig)
			return msg("Done", s.ID)
		},
		Failure: func(s *orderState, sig Message) Message {
			if r, ok := sig.(Rejection); ok {
				s.Notes = append(s.Notes, r.Reason())
			}
			return msg("Failed", s.ID)
		},
	}.Reactions()
	if err != nil {
		t.Fatalf("Reactions: %v", err)
	}

	reactions, err := MergeReactions(map[string]Reaction[orderState]{
		"Reserved": On(func(s *orderState, sig testMsg) Outcome {
			s.Notes = append(s.Notes, sig.Kind)
			return Emit(msg("Act", s.ID))
		}),
	}, settle)
	if err != nil {
		t.Fatalf("MergeReactions: %v", err)
	}

	routes := make(map[string]RouteFunc)
	for signalType := range reactions {
		routes[signalType] = byID
	}

	return &Workflow[orderState]{
		Name:      "order",
		Initiator: "Start",
		Start: func(cmd Message) (string, orderState, Message, error) {
			m := cmd.(testMsg)
			if m.ID == "" {
				return "", orderState{}, nil, fmt.Errorf("id is required")
			}
			return m.ID, orderState{ID: m.ID}, msg("Reserve", m.ID), nil
		},
		Reactions: reactions,
		Routes:    routes,
	}
}

type recordingSink struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *recordingSink) Send(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.MessageType()
	}
	return out
}

func (s *recordingSink) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func newTestEngine(t *testing.T, opts EngineOptions) (*Engine, *MemoryStorage, *recordingSink) {
	t.Helper()
	storage := NewMemoryStorage()
	sink := &recordingSink{}
	engine, err := NewEngine(storage, sink, opts, orderWorkflow(t))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, storage, sink
}

func deliverAll(t *testing.T, e *Engine, sigs ...Message) {
	t.Helper()
	for _, sig := range sigs {
		if err := e.Deliver(context.Background(), sig); err != nil {
			t.Fatalf("Deliver %s: %v", sig.MessageType(), err)
		}
	}
}

func equalTypes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestExecuteStartsInstance(t *testing.T) {
	engine, storage, sink := newTestEngine(t, EngineOptions{})
	ctx := context.Background()

	id, err := engine.Execute(ctx, msg("Start", "o-1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if id != "o-1" {
		t.Errorf("id = %q, want %q", id, "o-1")
	}
	if got := sink.types(); !equalTypes(got, []string{"Reserve"}) {
		t.Errorf("sent = %v, want [Reserve]", got)
	}

	inst, _ := storage.Load(ctx, "o-1")
	if inst == nil {
		t.Fatal("instance not stored")
	}
	if inst.Status != StatusPending || inst.Archived {
		t.Errorf("status = %q archived = %v, want pending and live", inst.Status, inst.Archived)
	}
	if inst.Workflow != "order" {
		t.Errorf("workflow = %q, want order", inst.Workflow)
	}
	if len(inst.Applied) != 0 {
		t.Errorf("applied = %v, want empty", inst.Applied)
	}
}

func TestExecuteRejectsBadCommands(t *testing.T) {
	engine, storage, sink := newTestEngine(t, EngineOptions{})
	ctx := context.Background()

	_, err := engine.Execute(ctx, msg("Refund", "o-1"))
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown command: got %v, want ErrUnknownCommand", err)
	}

	_, err = engine.Execute(ctx, msg("Start", ""))
	if !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("invalid command: got %v, want ErrInvalidCommand", err)
	}

	_, err = engine.Execute(ctx, nil)
	if !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("nil command: got %v, want ErrInvalidCommand", err)
	}

	if len(sink.types()) != 0 {
		t.Errorf("sent = %v, want nothing", sink.types())
	}
	if n, _ := storage.CountByStatus(ctx, StatusPending); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestExecuteExistingInstance(t *testing.T) {
	engine, _, sink := newTestEngine(t, EngineOptions{})
	ctx := context.Background()

	if _, err := engine.Execute(ctx, msg("Start", "o-1")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	_, err := engine.Execute(ctx, msg("Start", "o-1"))
	if !errors.Is(err, ErrInstanceExists) {
		t.Fatalf("got %v, want ErrInstanceExists", err)
	}

	var existsErr *InstanceExistsError
	if !errors.As(err, &existsErr) || existsErr.InstanceID != "o-1" {
		t.Errorf("got %#v, want InstanceExistsError for o-1", err)
	}
	if got := sink.types(); len(got) != 1 {
		t.Errorf("sent = %v, want one command", got)
	}
}

func TestExecuteSinkFailureCreatesNothing(t *testing.T) {
	engine, storage, sink := newTestEngine(t, EngineOptions{})
	ctx := context.Background()
	sink.fail(errors.New("broker down"))

	if _, err := engine.Execute(ctx, msg("Start", "o-1")); err == nil {
		t.Fatal("expected error")
	}
	if inst, _ := storage.Load(ctx, "o-1"); inst != nil {
		t.Error("instance created although the command was not sent")
	}
}

func TestDeliverHappyPath(t *testing.T) {
	engine, storage, sink := newTestEngine(t, EngineOptions{})
	ctx := context.Background()

	if _, err := engine.Execute(ctx, msg("Start", "o-1")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	deliverAll(t, engine, msg("Reserved", "o-1"), msg("Acted", "o-1"), msg("Settled", "o-1"))

	want := []string{"Reserve", "Act", "Settle", "Done"}
	if got := sink.types(); !equalTypes(got, want) {
		t.Errorf("sent = %v, want %v", got, want)
	}

	inst, _ := storage.Load(ctx, "o-1")
	if !inst.Archived || inst.Status != StatusCompleted || inst.Terminal != "Done" {
		t.Errorf("instance = %+v, want archived completed with terminal Done", inst)
	}
	if inst.Version != 3 {
		t.Errorf("version = %d, want 3", inst.Version)
	}

	var state orderState
	if err := json.Unmarshal(inst.State, &state); err != nil {
		t.Fatalf("state: %v", err)
	}
	if !equalTypes(state.Notes, []string{"Reserved", "Acted", "Settled"}) {
		t.Errorf("notes = %v", state.Notes)
	}
}

func TestDeliverCompensation(t *testing.T) {
	engine, storage, sink := newTestEngine(t, EngineOptions{})
	ctx := context.Background()

	engine.Execute(ctx, msg("Start", "o-1"))
	deliverAll(t, engine, msg("Reserved", "o-1"), msg("ActFailed", "o-1"), msg("Canceled", "o-1"))

	want := []string{"Reserve", "Act", "Cancel", "Failed"}
	if got := sink.types(); !equalTypes(got, want) {
		t.Errorf("sent = %v, want %v", got, want)
	}
	inst, _ := storage.Load(ctx, "o-1")
	if inst.Status != StatusFailed || inst.Terminal != "Failed" {
		t.Errorf("status = %q terminal = %q, want failed/Failed", inst.Status, inst.Terminal)
	}
}

func TestDeliverRejection(t *testing.T) {
	engine, storage, sink := newTestEngine(t, EngineOptions{})
	ctx := context.Background()

	engine.Execute(ctx, msg("Start", "o-1"))
	deliverAll(t, engine, testRejection{testMsg: msg("Refused", "o-1"), Why: "no stock"})

	if got := sink.types(); !equalTypes(got, []string{"Reserve", "Failed"}) {
		t.Errorf("sent = %v", got)
	}
	inst, _ := storage.Load(ctx, "o-1")
	var state orderState
	json.Unmarshal(inst.State, &state)
	if !equalTypes(state.Notes, []string{"no stock"}) {
		t.Errorf("notes = %v, want the rejection reason", state.Notes)
	}
}

func TestDeliverDropsRedundantSignals(t *testing.T) {
	var mu sync.Mutex
	dropped := map[DropReason]int{}
	events := &EngineEvents{
		OnSignalDropped: func(id string, sig Message, reason DropReason) {
			mu.Lock()
			defer mu.Unlock()
			dropped[reason]++
		},
	}
	engine, _, sink := newTestEngine(t, EngineOptions{Events: events})
	ctx := context.Background()

	engine.Execute(ctx, msg("Start", "o-1"))
	deliverAll(t, engine,
		msg("Reserved", "o-1"),
		msg("Reserved", "o-1"), // duplicate
		msg("Reserved", "o-2"), // unknown instance
		testRejection{testMsg: msg("Refused", "o-1")},
		msg("Acted", "o-1"), // archived
	)

	if got := sink.types(); !equalTypes(got, []string{"Reserve", "Act", "Failed"}) {
		t.Errorf("sent = %v", got)
	}
	want := map[DropReason]int{DropDuplicate: 1, DropUnknownInstance: 1, DropArchived: 1}
	for reason, n := range want {
		if dropped[reason] != n {
			t.Errorf("dropped[%s] = %d, want %d", reason, dropped[reason], n)
		}
	}
}

func TestDeliverUnroutableSignal(t *testing.T) {
	engine, _, _ := newTestEngine(t, EngineOptions{})

	err := engine.Deliver(context.Background(), msg("Mystery", "o-1"))
	if !errors.Is(err, ErrUnroutableSignal) {
		t.Errorf("got %v, want ErrUnroutableSignal", err)
	}
}

func TestDeliverEmptyRouteIsNoop(t *testing.T) {
	engine, _, sink := newTestEngine(t, EngineOptions{})

	if err := engine.Deliver(context.Background(), msg("Reserved", "")); err != nil {
		t.Errorf("Deliver: %v", err)
	}
	if len(sink.types()) != 0 {
		t.Errorf("sent = %v, want nothing", sink.types())
	}
}

func TestDeliverSinkFailureLeavesInstanceUnchanged(t *testing.T) {
	engine, storage, sink := newTestEngine(t, EngineOptions{})
	ctx := context.Background()

	engine.Execute(ctx, msg("Start", "o-1"))
	sink.fail(errors.New("broker down"))

	if err := engine.Deliver(ctx, msg("Reserved", "o-1")); err == nil {
		t.Fatal("expected error")
	}
	inst, _ := storage.Load(ctx, "o-1")
	if inst.HasApplied("Reserved") || inst.Version != 0 {
		t.Fatalf("signal applied although its command was not sent: %+v", inst)
	}

	// Redelivery after recovery applies the signal.
	sink.fail(nil)
	deliverAll(t, engine, msg("Reserved", "o-1"))
	if got := sink.types(); !equalTypes(got, []string{"Reserve", "Act"}) {
		t.Errorf("sent = %v", got)
	}
}

func TestConcurrentDuplicateDelivery(t *testing.T) {
	engine, _, sink := newTestEngine(t, EngineOptions{})
	ctx := context.Background()
	engine.Execute(ctx, msg("Start", "o-1"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := engine.Deliver(ctx, msg("Reserved", "o-1")); err != nil {
				t.Errorf("Deliver: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := sink.types(); !equalTypes(got, []string{"Reserve", "Act"}) {
		t.Errorf("sent = %v, want exactly one Act", got)
	}
}

func TestEngineEvents(t *testing.T) {
	var started, archived, applied, issued int
	events := &EngineEvents{
		OnInstanceStarted:  func(string, WorkflowType, Message) { started++ },
		OnInstanceArchived: func(string, WorkflowType, Message) { archived++ },
		OnSignalApplied: func(string, Message) {
			applied++
			panic("hook failure must not break processing")
		},
		OnCommandIssued: func(string, Message) { issued++ },
	}
	engine, _, _ := newTestEngine(t, EngineOptions{Events: events})
	ctx := context.Background()

	engine.Execute(ctx, msg("Start", "o-1"))
	deliverAll(t, engine, msg("Reserved", "o-1"), msg("Acted", "o-1"), msg("Settled", "o-1"))

	if started != 1 || archived != 1 || applied != 3 || issued != 3 {
		t.Errorf("started=%d archived=%d applied=%d issued=%d, want 1/1/3/3", started, archived, applied, issued)
	}
}

func TestNewEngineValidation(t *testing.T) {
	storage := NewMemoryStorage()
	sink := &recordingSink{}

	if _, err := NewEngine(nil, sink, EngineOptions{}); err == nil {
		t.Error("nil storage accepted")
	}
	if _, err := NewEngine(storage, nil, EngineOptions{}); err == nil {
		t.Error("nil sink accepted")
	}

	noReaction := orderWorkflow(t)
	noReaction.Routes["Orphan"] = byID
	_, err := NewEngine(storage, sink, EngineOptions{}, noReaction)
	if !errors.Is(err, ErrNoReaction) {
		t.Errorf("route without reaction: got %v, want ErrNoReaction", err)
	}

	noRoute := orderWorkflow(t)
	delete(noRoute.Routes, "Acted")
	_, err = NewEngine(storage, sink, EngineOptions{}, noRoute)
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("reaction without route: got %v, want ErrInvalidDefinition", err)
	}

	_, err = NewEngine(storage, sink, EngineOptions{}, orderWorkflow(t), orderWorkflow(t))
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("duplicate workflow: got %v, want ErrInvalidDefinition", err)
	}

	other := orderWorkflow(t)
	other.Name = "other"
	_, err = NewEngine(storage, sink, EngineOptions{}, orderWorkflow(t), other)
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("duplicate initiator: got %v, want ErrInvalidDefinition", err)
	}
}

func TestRouterAcrossWorkflows(t *testing.T) {
	first := orderWorkflow(t)
	second := orderWorkflow(t)
	second.Name = "mirror"
	second.Initiator = "StartMirror"
	second.Routes["Reserved"] = func(sig Message) []string {
		return []string{"m-" + sig.(testMsg).ID, "m-" + sig.(testMsg).ID, ""}
	}

	router := NewRouter(first, second)
	targets, err := router.Route(msg("Reserved", "1"))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	want := []Target{{Workflow: "order", InstanceID: "1"}, {Workflow: "mirror", InstanceID: "m-1"}}
	if len(targets) != len(want) {
		t.Fatalf("targets = %v, want %v", targets, want)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Errorf("targets[%d] = %v, want %v", i, targets[i], want[i])
		}
	}

	if ids := router.RouteFor("mirror", msg("Reserved", "1")); len(ids) != 1 || ids[0] != "m-1" {
		t.Errorf("RouteFor = %v", ids)
	}
	if !router.Consumes("Acted") || router.Consumes("Mystery") {
		t.Error("Consumes disagrees with the routing table")
	}
}

func TestInitiatorAndSignalTypes(t *testing.T) {
	engine, _, _ := newTestEngine(t, EngineOptions{})

	if !engine.Initiates("Start") || engine.Initiates("Reserved") {
		t.Error("Initiates disagrees with the definitions")
	}
	if got := engine.InitiatorTypes(); !equalTypes(got, []string{"Start"}) {
		t.Errorf("InitiatorTypes = %v", got)
	}
	want := []string{"ActFailed", "Acted", "Canceled", "Refused", "Reserved", "Settled"}
	if got := engine.Router().SignalTypes(); !equalTypes(got, want) {
		t.Errorf("SignalTypes = %v, want %v", got, want)
	}
}

func TestStale(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	engine, _, _ := newTestEngine(t, EngineOptions{Clock: clock})
	ctx := context.Background()

	engine.Execute(ctx, msg("Start", "old"))
	engine.Execute(ctx, msg("Start", "done"))
	deliverAll(t, engine, testRejection{testMsg: msg("Refused", "done")})

	now = now.Add(2 * time.Hour)
	engine.Execute(ctx, msg("Start", "fresh"))

	result, err := engine.Stale(ctx, time.Hour, 10)
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if result.Total != 1 || result.Instances[0].ID != "old" {
		t.Errorf("stale = %+v, want only old", result.Instances)
	}
}

func TestCompensationValidation(t *testing.T) {
	build := func(*orderState, Message) Message { return msg("X", "") }
	c := Compensation[orderState]{
		Rejected: "A", SettleOn: "B", Settled: "C", ActFailed: "A", Canceled: "E",
		Settle: build, Cancel: build, Success: build, Failure: build,
	}
	if _, err := c.Reactions(); err == nil {
		t.Error("signal reused for two edges accepted")
	}

	c.ActFailed = "D"
	c.Cancel = nil
	if _, err := c.Reactions(); err == nil {
		t.Error("missing builder accepted")
	}

	c.Cancel = build
	if _, err := c.Reactions(); err != nil {
		t.Errorf("valid protocol rejected: %v", err)
	}

	after := c.After()
	if !equalTypes(after["C"], []string{"B"}) || !equalTypes(after["E"], []string{"D"}) || len(after) != 2 {
		t.Errorf("After = %v", after)
	}
}

func TestMergeReactionsRejectsOverlap(t *testing.T) {
	r := On(func(*orderState, testMsg) Outcome { return Emit(msg("X", "")) })
	_, err := MergeReactions(map[string]Reaction[orderState]{"A": r}, map[string]Reaction[orderState]{"A": r})
	if err == nil {
		t.Error("overlapping tables merged")
	}
}

func TestReactionWithoutMessageFails(t *testing.T) {
	wf := orderWorkflow(t)
	wf.Reactions["Reserved"] = func(*orderState, Message) (Outcome, error) { return Outcome{}, nil }
	engine, err := NewEngine(NewMemoryStorage(), &recordingSink{}, EngineOptions{}, wf)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()
	engine.Execute(ctx, msg("Start", "o-1"))

	err = engine.Deliver(ctx, msg("Reserved", "o-1"))
	if !errors.Is(err, ErrReactionFailed) {
		t.Fatalf("got %v, want ErrReactionFailed", err)
	}
	var failed *ReactionFailedError
	if !errors.As(err, &failed) || failed.InstanceID != "o-1" || failed.SignalType != "Reserved" {
		t.Errorf("error = %#v", err)
	}
	inst, _ := engine.Instance(ctx, "o-1")
	if inst.HasApplied("Reserved") || inst.Version != 0 {
		t.Errorf("failed reaction changed the instance: %+v", inst)
	}
}

func TestUndecodableStateFailsReaction(t *testing.T) {
	engine, storage, sink := newTestEngine(t, EngineOptions{})
	ctx := context.Background()
	now := time.Now()
	err := storage.Create(ctx, &Instance{
		ID: "o-1", Workflow: "order", State: json.RawMessage(`{"Notes":7}`),
		Status: StatusPending, Applied: []string{}, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = engine.Deliver(ctx, msg("Reserved", "o-1"))
	if !errors.Is(err, ErrReactionFailed) {
		t.Errorf("got %v, want ErrReactionFailed", err)
	}
	if len(sink.types()) != 0 {
		t.Errorf("sent = %v, want nothing", sink.types())
	}
}

// orderSteps is the step table of orderWorkflow.
func orderSteps() map[string][]string {
	return map[string][]string{
		"Reserved":  {Started},
		"Refused":   {Started},
		"Acted":     {"Reserved"},
		"ActFailed": {"Reserved"},
		"Settled":   {"Acted"},
		"Canceled":  {"ActFailed"},
	}
}

func TestDeliverDropsSignalAtWrongStep(t *testing.T) {
	var reasons []DropReason
	wf := orderWorkflow(t)
	wf.After = orderSteps()
	sink := &recordingSink{}
	engine, err := NewEngine(NewMemoryStorage(), sink, EngineOptions{Events: &EngineEvents{
		OnSignalDropped: func(_ string, _ Message, r DropReason) { reasons = append(reasons, r) },
	}}, wf)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()
	engine.Execute(ctx, msg("Start", "o-1"))

	// A stale settlement and an early act result arrive before the reservation.
	deliverAll(t, engine, msg("Settled", "o-1"), msg("Acted", "o-1"))
	if got := sink.types(); !equalTypes(got, []string{"Reserve"}) {
		t.Fatalf("sent = %v, want only Reserve", got)
	}

	deliverAll(t, engine,
		msg("Reserved", "o-1"),
		msg("Canceled", "o-1"),
		testRejection{testMsg: msg("Refused", "o-1")},
		msg("Acted", "o-1"),
		msg("Settled", "o-1"),
	)
	if got := sink.types(); !equalTypes(got, []string{"Reserve", "Act", "Settle", "Done"}) {
		t.Errorf("sent = %v", got)
	}
	want := []DropReason{DropOutOfOrder, DropOutOfOrder, DropOutOfOrder, DropOutOfOrder}
	if len(reasons) != len(want) {
		t.Fatalf("dropped = %v, want %v", reasons, want)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Errorf("drop %d = %s, want %s", i, reasons[i], want[i])
		}
	}

	inst, _ := engine.Instance(ctx, "o-1")
	if inst.Status != StatusCompleted || !equalTypes(inst.Applied, []string{"Reserved", "Acted", "Settled"}) {
		t.Errorf("instance = %+v", inst)
	}
}

func TestWorkflowAccepts(t *testing.T) {
	wf := orderWorkflow(t)
	if !wf.Accepts("Acted", nil) {
		t.Error("workflow without steps refused a signal")
	}

	wf.After = orderSteps()
	tests := []struct {
		signal  string
		applied []string
		want    bool
	}{
		{"Reserved", nil, true},
		{"Reserved", []string{"Reserved"}, false},
		{"Acted", nil, false},
		{"Acted", []string{"Reserved"}, true},
		{"Canceled", []string{"Reserved", "Acted"}, false},
		{"Canceled", []string{"Reserved", "ActFailed"}, true},
		{"Unlisted", []string{"Reserved"}, true},
	}
	for _, tt := range tests {
		if got := wf.Accepts(tt.signal, tt.applied); got != tt.want {
			t.Errorf("Accepts(%s, %v) = %v, want %v", tt.signal, tt.applied, got, tt.want)
		}
	}
}

func TestNewEngineRejectsInconsistentSteps(t *testing.T) {
	cases := map[string]map[string][]string{
		"unknown signal":      {"Mystery": {Started}},
		"unknown predecessor": {"Acted": {"Mystery"}},
		"unreachable":         {"Acted": {}},
	}
	for name, steps := range cases {
		wf := orderWorkflow(t)
		wf.After = steps
		_, err := NewEngine(NewMemoryStorage(), &recordingSink{}, EngineOptions{}, wf)
		if !errors.Is(err, ErrInvalidDefinition) {
			t.Errorf("%s: got %v, want ErrInvalidDefinition", name, err)
		}
	}
}

func TestTruncateError(t *testing.T) {
	if TruncateError(nil) != "" {
		t.Error("nil error not empty")
	}
	long := errors.New(string(make([]byte, MaxErrorLength+10)))
	if got := TruncateError(long); len(got) != MaxErrorLength {
		t.Errorf("len = %d, want %d", len(got), MaxErrorLength)
	}
}
