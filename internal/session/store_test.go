package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/verte-zerg/typestream/internal/apperr"
	"github.com/verte-zerg/typestream/internal/clock"
	"github.com/verte-zerg/typestream/internal/model"
)

func TestCreateThenGetIsInitialized(t *testing.T) {
	st := NewMemoryStore()
	created := st.Create()
	got, err := st.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusInitialized {
		t.Fatalf("status = %q, want initialized", got.Status)
	}
	if got.Input != "" || got.Text != "" {
		t.Fatalf("expected empty text and input, got %+v", got)
	}
	if got.StartTime != nil || got.EndTime != nil || got.LastUpdate != nil || got.LastError != nil {
		t.Fatalf("expected nil timestamps, got %+v", got)
	}
}

func TestCreateNeverReusesIDs(t *testing.T) {
	ids := []string{"a", "a", "b"}
	next := 0
	st := NewMemoryStore(WithIDFunc(func() string {
		id := ids[next]
		next++
		return id
	}))
	first := st.Create()
	second := st.Create()
	if first.ID == second.ID {
		t.Fatalf("expected distinct ids, got %q twice", first.ID)
	}
	if second.ID != "b" {
		t.Fatalf("second id = %q, want b", second.ID)
	}
	st.Delete(first.ID)
}

func TestUpdateUnknownIsNotFound(t *testing.T) {
	st := NewMemoryStore()
	input := "x"
	_, err := st.Update("nonexistent-id", Patch{Input: &input})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if apperr.Status(err) != 404 {
		t.Fatalf("status = %d, want 404", apperr.Status(err))
	}
	if st.Len() != 0 {
		t.Fatalf("update must not create sessions")
	}
}

func TestUpdateMergesFields(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	st := NewMemoryStore(WithClock(clk))
	sess := st.CreateWithText("hello world", 2)

	input := "hel"
	status := model.StatusActive
	now := clk.Now()
	updated, err := st.Update(sess.ID, Patch{Input: &input, Status: &status, StartTime: &now})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Input != "hel" || updated.Status != model.StatusActive || updated.Text != "hello world" {
		t.Fatalf("unexpected session %+v", updated)
	}
	if updated.StartTime == nil || !updated.StartTime.Equal(now) {
		t.Fatalf("start time not set: %+v", updated.StartTime)
	}

	msg := "boom"
	updated, _ = st.Update(sess.ID, Patch{LastError: &msg})
	if updated.LastError == nil || *updated.LastError != "boom" {
		t.Fatalf("last error not set")
	}
	updated, _ = st.Update(sess.ID, Patch{ClearError: true})
	if updated.LastError != nil {
		t.Fatalf("last error not cleared")
	}
}

func TestModifyCannotChangeIDAndRollsBackOnError(t *testing.T) {
	st := NewMemoryStore()
	sess := st.Create()
	got, err := st.Modify(sess.ID, func(s *model.Session) error {
		s.ID = "other"
		s.Input = "abc"
		return nil
	})
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if got.ID != sess.ID || got.Input != "abc" {
		t.Fatalf("unexpected session %+v", got)
	}

	failure := fmt.Errorf("nope")
	_, err = st.Modify(sess.ID, func(s *model.Session) error {
		s.Input = "changed"
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected failure, got %v", err)
	}
	current, _ := st.Get(sess.ID)
	if current.Input != "abc" {
		t.Fatalf("input = %q, want rollback to abc", current.Input)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	st := NewMemoryStore()
	sess := st.Create()
	now := time.Now()
	if _, err := st.Update(sess.ID, Patch{StartTime: &now}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := st.Get(sess.ID)
	*got.StartTime = got.StartTime.Add(time.Hour)
	again, _ := st.Get(sess.ID)
	if !again.StartTime.Equal(now) {
		t.Fatalf("stored start time was mutated through a copy")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	st := NewMemoryStore()
	sess := st.Create()
	if !st.Delete(sess.ID) {
		t.Fatalf("first delete should report true")
	}
	if st.Delete(sess.ID) {
		t.Fatalf("second delete should report false")
	}
	if _, err := st.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestConcurrentModifySerializes(t *testing.T) {
	st := NewMemoryStore()
	sess := st.Create()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = st.Modify(sess.ID, func(s *model.Session) error {
				s.Input += "x"
				return nil
			})
		}()
	}
	wg.Wait()
	got, _ := st.Get(sess.ID)
	if len(got.Input) != 50 {
		t.Fatalf("input length = %d, want 50", len(got.Input))
	}
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	st := NewMemoryStore(WithClock(clk))
	idle := st.Create()
	clk.Advance(20 * time.Minute)
	fresh := st.Create()
	clk.Advance(15 * time.Minute)

	removed := st.Sweep(clk.Now(), 30*time.Minute)
	if len(removed) != 1 || removed[0] != idle.ID {
		t.Fatalf("removed = %v, want [%s]", removed, idle.ID)
	}
	if _, err := st.Get(fresh.ID); err != nil {
		t.Fatalf("fresh session swept: %v", err)
	}
	if got := st.Sweep(clk.Now(), 0); got != nil {
		t.Fatalf("zero ttl should disable sweeping")
	}
}

func TestSweepInterval(t *testing.T) {
	if got := SweepInterval(30 * time.Minute); got != time.Minute {
		t.Fatalf("interval = %v, want 1m", got)
	}
	if got := SweepInterval(10 * time.Second); got != 5*time.Second {
		t.Fatalf("interval = %v, want 5s", got)
	}
	if got := SweepInterval(time.Nanosecond); got != time.Millisecond {
		t.Fatalf("interval = %v, want 1ms", got)
	}
}

func TestJanitorTinyTTL(t *testing.T) {
	st := NewMemoryStore()
	created := st.Create()
	removed := make(chan []string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunJanitor(ctx, st, time.Nanosecond, hclog.NewNullLogger(), func(ids []string) {
			select {
			case removed <- ids:
			default:
			}
		})
	}()

	select {
	case ids := <-removed:
		if len(ids) != 1 || ids[0] != created.ID {
			t.Fatalf("unexpected removed ids %v", ids)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not sweep")
	}
	cancel()
	<-done
}
