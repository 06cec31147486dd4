package saga

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// testStorage runs the behaviour every Storage implementation shares.
func testStorage(t *testing.T, newStorage func(t *testing.T) Storage) {
	base := time.UnixMilli(1_700_000_000_000)

	instance := func(id string, wf WorkflowType, created time.Time) *Instance {
		return &Instance{
			ID:        id,
			Workflow:  wf,
			State:     json.RawMessage(`{"n":1}`),
			Status:    StatusPending,
			Applied:   []string{},
			CreatedAt: created,
			UpdatedAt: created,
		}
	}

	t.Run("CreateAndLoad", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		if err := s.Create(ctx, instance("a", "purchase", base)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := s.Load(ctx, "a")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got == nil {
			t.Fatal("Load returned nil")
		}
		if got.Workflow != "purchase" || got.Status != StatusPending || got.Archived {
			t.Errorf("loaded = %+v", got)
		}
		if string(got.State) != `{"n":1}` {
			t.Errorf("state = %s", got.State)
		}
		if !got.CreatedAt.Equal(base) || !got.UpdatedAt.Equal(base) {
			t.Errorf("timestamps = %v / %v, want %v", got.CreatedAt, got.UpdatedAt, base)
		}
		if got.Applied == nil || len(got.Applied) != 0 {
			t.Errorf("applied = %#v, want empty", got.Applied)
		}

		missing, err := s.Load(ctx, "missing")
		if err != nil || missing != nil {
			t.Errorf("Load missing = %v, %v; want nil, nil", missing, err)
		}

		err = s.Create(ctx, instance("a", "sale", base))
		if !errors.Is(err, ErrInstanceExists) {
			t.Errorf("duplicate Create: got %v, want ErrInstanceExists", err)
		}
	})

	t.Run("SaveIsVersioned", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		s.Create(ctx, instance("a", "purchase", base))

		first, _ := s.Load(ctx, "a")
		second, _ := s.Load(ctx, "a")

		first.Applied = append(first.Applied, "MoneyReserved")
		first.Archived = true
		first.Status = StatusCompleted
		first.Terminal = "SharesPurchased"
		first.UpdatedAt = base.Add(time.Minute)
		if err := s.Save(ctx, first); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if first.Version != 1 {
			t.Errorf("version = %d, want 1", first.Version)
		}

		err := s.Save(ctx, second)
		if !errors.Is(err, ErrConcurrentUpdate) {
			t.Errorf("stale Save: got %v, want ErrConcurrentUpdate", err)
		}

		got, _ := s.Load(ctx, "a")
		if !got.Archived || got.Status != StatusCompleted || got.Terminal != "SharesPurchased" {
			t.Errorf("loaded = %+v", got)
		}
		if !got.HasApplied("MoneyReserved") {
			t.Errorf("applied = %v", got.Applied)
		}
		if !got.UpdatedAt.Equal(base.Add(time.Minute)) {
			t.Errorf("updated = %v", got.UpdatedAt)
		}

		if err := s.Save(ctx, instance("ghost", "purchase", base)); !errors.Is(err, ErrConcurrentUpdate) {
			t.Errorf("Save unknown: got %v, want ErrConcurrentUpdate", err)
		}
	})

	t.Run("Query", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		for i, id := range []string{"p1", "p2", "s1", "s2"} {
			wf := WorkflowType("purchase")
			if id[0] == 's' {
				wf = "sale"
			}
			s.Create(ctx, instance(id, wf, base.Add(time.Duration(i)*time.Minute)))
		}
		done, _ := s.Load(ctx, "s2")
		done.Status = StatusFailed
		done.Archived = true
		done.UpdatedAt = base.Add(time.Hour)
		s.Save(ctx, done)

		all, err := s.Query(ctx, InstanceFilter{})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if all.Total != 4 || len(all.Instances) != 4 {
			t.Fatalf("total = %d len = %d, want 4", all.Total, len(all.Instances))
		}
		if all.Instances[0].ID != "s2" || all.Instances[3].ID != "p1" {
			t.Errorf("order = %s..%s, want newest first", all.Instances[0].ID, all.Instances[3].ID)
		}

		purchases, _ := s.Query(ctx, InstanceFilter{Workflow: []WorkflowType{"purchase"}})
		if purchases.Total != 2 {
			t.Errorf("purchase total = %d, want 2", purchases.Total)
		}

		failed, _ := s.Query(ctx, InstanceFilter{Status: []InstanceStatus{StatusFailed, StatusCompleted}})
		if failed.Total != 1 || failed.Instances[0].ID != "s2" {
			t.Errorf("archived = %+v", failed.Instances)
		}

		cutoff := base.Add(30 * time.Minute)
		idle, _ := s.Query(ctx, InstanceFilter{Status: []InstanceStatus{StatusPending}, UpdatedBefore: &cutoff})
		if idle.Total != 3 {
			t.Errorf("idle total = %d, want 3", idle.Total)
		}

		after := base.Add(2 * time.Minute)
		recent, _ := s.Query(ctx, InstanceFilter{CreatedAfter: &after})
		if recent.Total != 2 {
			t.Errorf("created after total = %d, want 2", recent.Total)
		}

		page, _ := s.Query(ctx, InstanceFilter{Limit: 2, Offset: 1})
		if page.Total != 4 || len(page.Instances) != 2 || page.Instances[0].ID != "s1" {
			t.Errorf("page = %+v (total %d)", page.Instances, page.Total)
		}

		beyond, _ := s.Query(ctx, InstanceFilter{Offset: 10})
		if beyond.Total != 4 || len(beyond.Instances) != 0 {
			t.Errorf("beyond = %d instances, total %d", len(beyond.Instances), beyond.Total)
		}

		pending, err := s.CountByStatus(ctx, StatusPending)
		if err != nil || pending != 3 {
			t.Errorf("CountByStatus pending = %d, %v; want 3", pending, err)
		}
		archived, _ := s.CountByStatus(ctx, StatusCompleted, StatusFailed)
		if archived != 1 {
			t.Errorf("CountByStatus archived = %d, want 1", archived)
		}
	})
}

func TestMemoryStorage(t *testing.T) {
	testStorage(t, func(*testing.T) Storage { return NewMemoryStorage() })
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	s.Create(ctx, &Instance{ID: "a", Status: StatusPending, Applied: []string{}})

	loaded, _ := s.Load(ctx, "a")
	loaded.Applied = append(loaded.Applied, "X")
	loaded.Status = StatusFailed

	again, _ := s.Load(ctx, "a")
	if again.Status != StatusPending || len(again.Applied) != 0 {
		t.Errorf("mutating a loaded instance changed storage: %+v", again)
	}
	if s.IsProductionSafe() {
		t.Error("memory storage claims to be production safe")
	}
}
