package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"blinkbrain/internal/domain"
	"blinkbrain/internal/notifier"
	"blinkbrain/internal/storage"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	seq     int
	pending map[string]time.Time
	fail    error
}

func (f *fakeDispatcher) Schedule(_ context.Context, _, _ string, at time.Time, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.seq++
	h := fmt.Sprintf("h%d", f.seq)
	f.pending[h] = at
	return h, nil
}

func (f *fakeDispatcher) Cancel(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, handle)
	return nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

type countingStore struct {
	storage.Store
	writes  int
	failSet error
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	if c.failSet != nil {
		return c.failSet
	}
	c.writes++
	return c.Store.Set(ctx, key, value)
}

type noNotes struct{}

func (noNotes) FindByID(string) (domain.Note, bool) { return domain.Note{}, false }

type fixture struct {
	repo *Repository
	kv   *countingStore
	disp *fakeDispatcher
	clk  clock.FakeClock
}

// 2024-03-12 08:00 UTC, a Tuesday.
var start = time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) fixture {
	t.Helper()
	kv := &countingStore{Store: storage.NewMemory()}
	disp := &fakeDispatcher{pending: map[string]time.Time{}}
	clk := clock.NewFake()
	clk.Set(start)
	repo := New(kv, notifier.NewCoordinator(disp, noNotes{}), WithClock(clk), WithLocation(time.UTC))
	if err := repo.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return fixture{repo: repo, kv: kv, disp: disp, clk: clk}
}

func daily(h, m int) domain.ScheduleRule {
	return domain.ScheduleRule{Kind: domain.KindDaily, TimeOfDay: &domain.TimeOfDay{Hour: h, Minute: m}, Active: true}
}

func TestCreateComputesAndSchedules(t *testing.T) {
	f := newFixture(t)
	rem, err := f.repo.Create(context.Background(), "n1", []domain.ScheduleRule{daily(9, 0), daily(8, 30)}, 60)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := time.Date(2024, 3, 12, 8, 30, 0, 0, time.UTC)
	if rem.NextFireAt == nil || !rem.NextFireAt.Equal(want) {
		t.Fatalf("NextFireAt = %v, want %v", rem.NextFireAt, want)
	}
	if rem.NotificationHandle == "" || f.disp.count() != 1 {
		t.Fatalf("handle %q pending %d", rem.NotificationHandle, f.disp.count())
	}
	for _, s := range rem.Schedules {
		if s.ID == "" {
			t.Fatalf("schedule without id: %+v", s)
		}
	}
	got, ok := f.repo.GetByNoteID("n1")
	if !ok || got.ID != rem.ID {
		t.Fatalf("GetByNoteID = %+v %v", got, ok)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.repo.Create(ctx, "n1", nil, 60); !errors.Is(err, ErrNoSchedules) {
		t.Fatalf("Create without schedules err = %v", err)
	}
	if _, err := f.repo.Create(ctx, "n1", []domain.ScheduleRule{daily(9, 0)}, -1); !errors.Is(err, ErrInvalidCountdown) {
		t.Fatalf("Create negative countdown err = %v", err)
	}
	if f.kv.writes != 0 {
		t.Fatalf("validation failure wrote %d times", f.kv.writes)
	}
}

func TestDisableMidCycleCancels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rem, _ := f.repo.Create(ctx, "n1", []domain.ScheduleRule{daily(9, 0)}, 60)

	if err := f.repo.Disable(ctx, rem.ID); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	got, _ := f.repo.Get(rem.ID)
	if got.NextFireAt != nil || got.NotificationHandle != "" || !got.Disabled {
		t.Fatalf("after disable = %+v", got)
	}
	if f.disp.count() != 0 {
		t.Fatalf("pending notifications = %d, want 0", f.disp.count())
	}

	if err := f.repo.Enable(ctx, rem.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	got, _ = f.repo.Get(rem.ID)
	if got.NextFireAt == nil || got.NotificationHandle == "" || f.disp.count() != 1 {
		t.Fatalf("after enable = %+v pending %d", got, f.disp.count())
	}
}

func TestUnknownIDIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ops := map[string]func() error{
		"update":          func() error { d := true; return f.repo.Update(ctx, "nope", Update{Disabled: &d}) },
		"delete":          func() error { return f.repo.Delete(ctx, "nope") },
		"add schedule":    func() error { return f.repo.AddSchedule(ctx, "nope", daily(1, 0)) },
		"remove schedule": func() error { return f.repo.RemoveSchedule(ctx, "nope", "s") },
		"mark triggered":  func() error { return f.repo.MarkTriggered(ctx, "nope") },
	}
	for name, op := range ops {
		if err := op(); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if f.kv.writes != 0 {
		t.Fatalf("no-op operations wrote %d times", f.kv.writes)
	}
}

func TestPersistenceFailureLeavesStateAndNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rem, _ := f.repo.Create(ctx, "n1", []domain.ScheduleRule{daily(9, 0)}, 60)

	boom := errors.New("quota exceeded")
	f.kv.failSet = boom
	err := f.repo.AddSchedule(ctx, rem.ID, daily(8, 15))
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, boom) {
		t.Fatalf("AddSchedule err = %v", err)
	}
	got, _ := f.repo.Get(rem.ID)
	if len(got.Schedules) != 1 || !got.NextFireAt.Equal(*rem.NextFireAt) {
		t.Fatalf("failed write leaked into memory: %+v", got)
	}
	if f.disp.count() != 1 {
		t.Fatalf("pending = %d, want exactly the restored notification", f.disp.count())
	}
	if _, ok := f.disp.pending[got.NotificationHandle]; !ok {
		t.Fatalf("in-memory handle %q is not pending", got.NotificationHandle)
	}

	if _, err := f.repo.Create(ctx, "n2", []domain.ScheduleRule{daily(7, 0)}, 0); !errors.Is(err, ErrPersistence) {
		t.Fatalf("Create err = %v", err)
	}
	if len(f.repo.List()) != 1 || f.disp.count() != 1 {
		t.Fatalf("failed create left state: %d reminders, %d pending", len(f.repo.List()), f.disp.count())
	}
}

func TestDispatcherFailureStillPersists(t *testing.T) {
	f := newFixture(t)
	f.disp.fail = errors.New("no permission")
	rem, err := f.repo.Create(context.Background(), "n1", []domain.ScheduleRule{daily(9, 0)}, 60)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rem.NextFireAt == nil || rem.NotificationHandle != "" {
		t.Fatalf("rem = %+v, want next time without handle", rem)
	}
	if f.kv.writes != 1 {
		t.Fatalf("writes = %d, want 1", f.kv.writes)
	}
}

func TestScheduleEditing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rem, _ := f.repo.Create(ctx, "n1", []domain.ScheduleRule{daily(9, 0)}, 60)
	ruleID := rem.Schedules[0].ID

	tod := &domain.TimeOfDay{Hour: 8, Minute: 5}
	if err := f.repo.UpdateSchedule(ctx, rem.ID, ruleID, ScheduleUpdate{TimeOfDay: &tod}); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	got, _ := f.repo.Get(rem.ID)
	if want := start.Add(5 * time.Minute); !got.NextFireAt.Equal(want) {
		t.Fatalf("after update NextFireAt = %v, want %v", got.NextFireAt, want)
	}

	writes := f.kv.writes
	if err := f.repo.UpdateSchedule(ctx, rem.ID, "missing", ScheduleUpdate{TimeOfDay: &tod}); err != nil {
		t.Fatalf("UpdateSchedule missing rule: %v", err)
	}
	if f.kv.writes != writes {
		t.Fatalf("unknown rule id caused a write")
	}

	if err := f.repo.RemoveSchedule(ctx, rem.ID, ruleID); err != nil {
		t.Fatalf("RemoveSchedule: %v", err)
	}
	got, _ = f.repo.Get(rem.ID)
	if len(got.Schedules) != 0 || got.NextFireAt != nil || got.NotificationHandle != "" {
		t.Fatalf("after removing last rule = %+v", got)
	}
	if f.disp.count() != 0 {
		t.Fatalf("pending = %d, want 0", f.disp.count())
	}
}

func TestMarkTriggeredAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rem, _ := f.repo.Create(ctx, "n1", []domain.ScheduleRule{daily(9, 0)}, 60)

	f.clk.Set(*rem.NextFireAt)
	if err := f.repo.Acknowledge(ctx, rem.ID, "stale-handle"); err != nil {
		t.Fatalf("Acknowledge stale: %v", err)
	}
	got, _ := f.repo.Get(rem.ID)
	if got.LastTriggeredAt != nil {
		t.Fatalf("stale acknowledge marked the reminder")
	}

	if err := f.repo.Acknowledge(ctx, rem.ID, rem.NotificationHandle); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	got, _ = f.repo.Get(rem.ID)
	want := time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)
	if got.LastTriggeredAt == nil || !got.NextFireAt.Equal(want) {
		t.Fatalf("after trigger = %+v, want next %v", got, want)
	}
	if got.NotificationHandle == rem.NotificationHandle || f.disp.count() != 1 {
		t.Fatalf("handle %q pending %d", got.NotificationHandle, f.disp.count())
	}
}

func TestOneShotNotResurrected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := start.Add(time.Hour)
	rem, _ := f.repo.Create(ctx, "n1", []domain.ScheduleRule{{Kind: domain.KindOnce, Anchor: &at, Active: true}}, 10)

	f.clk.Set(at)
	if err := f.repo.MarkTriggered(ctx, rem.ID); err != nil {
		t.Fatalf("MarkTriggered: %v", err)
	}
	got, _ := f.repo.Get(rem.ID)
	if got.NextFireAt != nil || got.NotificationHandle != "" {
		t.Fatalf("one-shot rearmed: %+v", got)
	}
}

func TestDeleteCancels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rem, _ := f.repo.Create(ctx, "n1", []domain.ScheduleRule{daily(9, 0)}, 60)
	if err := f.repo.Delete(ctx, rem.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := f.repo.Get(rem.ID); ok {
		t.Fatalf("reminder still present")
	}
	if f.disp.count() != 0 {
		t.Fatalf("pending = %d after delete", f.disp.count())
	}
}

func TestReloadAndResync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rem, _ := f.repo.Create(ctx, "n1", []domain.ScheduleRule{daily(9, 0)}, 60)

	disp := &fakeDispatcher{pending: map[string]time.Time{}}
	clk := clock.NewFake()
	clk.Set(start.Add(2 * time.Hour))
	fresh := New(f.kv, notifier.NewCoordinator(disp, noNotes{}), WithClock(clk), WithLocation(time.UTC))
	if err := fresh.Resync(ctx); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("Resync before Load err = %v", err)
	}
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := fresh.Resync(ctx); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	got, ok := fresh.Get(rem.ID)
	want := time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC)
	if !ok || !got.NextFireAt.Equal(want) {
		t.Fatalf("resynced = %+v, want next %v", got, want)
	}
	if disp.count() != 1 {
		t.Fatalf("resync armed %d notifications, want 1", disp.count())
	}
}

func TestUpdateCountdownRefreshesNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rem, _ := f.repo.Create(ctx, "n1", []domain.ScheduleRule{daily(9, 0)}, 60)

	cd := 300
	if err := f.repo.Update(ctx, rem.ID, Update{CountdownSeconds: &cd}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := f.repo.Get(rem.ID)
	if got.CountdownSeconds != 300 || got.NotificationHandle == rem.NotificationHandle {
		t.Fatalf("after countdown update = %+v", got)
	}
	if !got.NextFireAt.Equal(*rem.NextFireAt) || f.disp.count() != 1 {
		t.Fatalf("countdown change moved fire time or leaked notifications")
	}
	neg := -5
	if err := f.repo.Update(ctx, rem.ID, Update{CountdownSeconds: &neg}); !errors.Is(err, ErrInvalidCountdown) {
		t.Fatalf("negative countdown err = %v", err)
	}
}
