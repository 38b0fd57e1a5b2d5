package event

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/repository"
	"github.com/hitoshi/unihub/internal/store"
)

// failingCommitKV は複数コレクションのコミットだけが失敗するKVStore。
type failingCommitKV struct {
	*repository.MemoryKVStore
}

func (f failingCommitKV) CompareAndSwap(ctx context.Context, expected map[string]int64, values map[string][]byte) error {
	if len(values) > 1 {
		return errors.New("commit failed")
	}
	return f.MemoryKVStore.CompareAndSwap(ctx, expected, values)
}

func newTestService(t *testing.T, kv repository.KVStore, events []model.CalendarEvent) (*Service, *store.Store) {
	t.Helper()
	st := store.New(kv, nil, nil)
	svc := NewService(st, time.UTC)
	ctx := context.Background()
	if events != nil {
		if err := svc.SaveEvents(ctx, events); err != nil {
			t.Fatalf("SaveEvents failed: %v", err)
		}
	}
	// 既定データの影響を受けないよう通知を空にしておく
	if err := store.Save(ctx, st, store.Notifications, []model.Notification{}); err != nil {
		t.Fatalf("Save notifications failed: %v", err)
	}
	return svc, st
}

func TestRegisterForEvent_IsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryKVStore(), []model.CalendarEvent{{ID: "e1", AttendeeIDs: []string{}}})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.RegisterForEvent(ctx, "e1", "u1"); err != nil {
			t.Fatalf("RegisterForEvent failed: %v", err)
		}
	}

	events, _ := svc.GetEvents(ctx)
	count := 0
	for _, id := range events[0].AttendeeIDs {
		if id == "u1" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("u1 appears %d times in %v, want 1", count, events[0].AttendeeIDs)
	}
}

func TestRegisterForEvent_ConcurrentSameUser(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryKVStore(), []model.CalendarEvent{{ID: "e1"}})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.RegisterForEvent(ctx, "e1", "u1")
		}()
	}
	wg.Wait()

	events, _ := svc.GetEvents(ctx)
	if len(events[0].AttendeeIDs) != 1 {
		t.Errorf("AttendeeIDs = %v, want [u1]", events[0].AttendeeIDs)
	}
}

func TestRegisterForEvent_MissingEventIsNoOp(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryKVStore(), []model.CalendarEvent{{ID: "e1"}})
	ctx := context.Background()

	if err := svc.RegisterForEvent(ctx, "missing", "u1"); err != nil {
		t.Fatalf("RegisterForEvent returned error: %v", err)
	}
	events, _ := svc.GetEvents(ctx)
	if len(events) != 1 || len(events[0].AttendeeIDs) != 0 {
		t.Errorf("events changed: %+v", events)
	}
}

func TestAddEvent_Validation(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryKVStore(), []model.CalendarEvent{})
	ctx := context.Background()

	cases := []model.CalendarEvent{
		{Title: "", Date: "2026-11-01", Time: "10:00"},
		{Title: "x", Date: "11/01/2026", Time: "10:00"},
		{Title: "x", Date: "2026-11-01", Time: "25:00"},
		{Title: "x", Date: "2026-11-01", Time: "10:00", Price: -1},
	}
	for _, c := range cases {
		if _, err := svc.AddEvent(ctx, c); err == nil {
			t.Errorf("AddEvent(%+v) succeeded, want error", c)
		}
	}

	e, err := svc.AddEvent(ctx, model.CalendarEvent{Title: "勉強会", Date: "2026-11-01", Time: "10:00", AttendeeIDs: []string{"a", "a", "b"}})
	if err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	if e.ID == "" || e.College != model.CollegeGlobal || len(e.AttendeeIDs) != 2 {
		t.Errorf("event = %+v", e)
	}
}

func TestPurchaseTicket_WritesTicketAndNotification(t *testing.T) {
	svc, st := newTestService(t, repository.NewMemoryKVStore(), []model.CalendarEvent{{ID: "e1", Title: "定期演奏会", Date: "2026-11-20"}})
	ctx := context.Background()

	tk, err := svc.PurchaseTicket(ctx, model.Ticket{EventID: "e1", OwnerName: "佐藤 葵"})
	if err != nil {
		t.Fatalf("PurchaseTicket failed: %v", err)
	}
	if tk.Status != model.TicketStatusValid || tk.SecurityHash == "" || tk.EventTitle != "定期演奏会" || tk.EventDate != "2026-11-20" {
		t.Errorf("ticket = %+v", tk)
	}

	tickets, _ := svc.GetTickets(ctx)
	if len(tickets) != 1 || tickets[0].ID != tk.ID {
		t.Fatalf("tickets = %+v", tickets)
	}

	notes, _ := store.Load(ctx, st, store.Notifications)
	matching := 0
	for _, n := range notes {
		if n.Type == model.NotificationEvent && strings.Contains(n.Message, "定期演奏会") {
			matching++
		}
	}
	if len(notes) != 1 || matching != 1 {
		t.Errorf("notifications = %+v, want exactly one referencing the event title", notes)
	}
}

// イベントが存在しなくても購入できる（弱参照）
func TestPurchaseTicket_DanglingEventReference(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryKVStore(), []model.CalendarEvent{})

	tk, err := svc.PurchaseTicket(context.Background(), model.Ticket{EventID: "gone", EventTitle: "過去のイベント", OwnerName: "a"})
	if err != nil {
		t.Fatalf("PurchaseTicket failed: %v", err)
	}
	if tk.EventTitle != "過去のイベント" {
		t.Errorf("EventTitle = %q", tk.EventTitle)
	}
}

func TestPurchaseTicket_FailedCommitLeavesNeither(t *testing.T) {
	kv := failingCommitKV{MemoryKVStore: repository.NewMemoryKVStore()}
	svc, st := newTestService(t, kv, []model.CalendarEvent{{ID: "e1", Title: "x"}})
	ctx := context.Background()

	if _, err := svc.PurchaseTicket(ctx, model.Ticket{EventID: "e1", OwnerName: "a"}); err == nil {
		t.Fatal("expected commit error")
	}
	tickets, _ := svc.GetTickets(ctx)
	notes, _ := store.Load(ctx, st, store.Notifications)
	if len(tickets) != 0 || len(notes) != 0 {
		t.Errorf("partial write observed: tickets=%d notifications=%d", len(tickets), len(notes))
	}
}

// 購入処理の途中状態（片方だけ書き込まれた状態）が観測されないこと
func TestPurchaseTicket_NoIntermediateStateObserved(t *testing.T) {
	svc, st := newTestService(t, repository.NewMemoryKVStore(), []model.CalendarEvent{{ID: "e1", Title: "x"}})
	ctx := context.Background()

	const purchases = 30
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			var tickets []model.Ticket
			var notes []model.Notification
			// 両コレクションを同じBatchで読むことで一貫した時点を観測する
			_ = st.Batch(ctx, func(tx *store.Tx) error {
				var err error
				if tickets, err = store.LoadTx(tx, store.Tickets); err != nil {
					return err
				}
				notes, err = store.LoadTx(tx, store.Notifications)
				return err
			}, store.Tickets, store.Notifications)
			if len(tickets) != len(notes) {
				t.Errorf("observed tickets=%d notifications=%d", len(tickets), len(notes))
				return
			}
		}
	}()

	for i := 0; i < purchases; i++ {
		if _, err := svc.PurchaseTicket(ctx, model.Ticket{EventID: "e1", OwnerName: "a"}); err != nil {
			t.Fatalf("PurchaseTicket failed: %v", err)
		}
	}
	close(done)
	wg.Wait()

	tickets, _ := svc.GetTickets(ctx)
	if len(tickets) != purchases {
		t.Errorf("tickets = %d, want %d", len(tickets), purchases)
	}
}

func TestPurchaseTicket_Validation(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryKVStore(), []model.CalendarEvent{})
	ctx := context.Background()

	if _, err := svc.PurchaseTicket(ctx, model.Ticket{OwnerName: "a"}); err == nil {
		t.Error("missing event id accepted")
	}
	if _, err := svc.PurchaseTicket(ctx, model.Ticket{EventID: "e1", OwnerName: "  "}); err == nil {
		t.Error("blank owner accepted")
	}
}

func TestSaveEvents_RejectsDuplicateIDs(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryKVStore(), []model.CalendarEvent{{ID: "e1"}})
	ctx := context.Background()

	err := svc.SaveEvents(ctx, []model.CalendarEvent{{ID: "e2"}, {ID: "e2"}})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidInput {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
	events, _ := svc.GetEvents(ctx)
	if len(events) != 1 || events[0].ID != "e1" {
		t.Errorf("events = %+v, rejected save must not be written", events)
	}
}

func TestSaveEvents_DedupesAttendees(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryKVStore(), nil)
	ctx := context.Background()

	input := []model.CalendarEvent{{ID: "e1", AttendeeIDs: []string{"u1", "u2", "u1", "u2", "u3"}}}
	if err := svc.SaveEvents(ctx, input); err != nil {
		t.Fatalf("SaveEvents failed: %v", err)
	}

	events, _ := svc.GetEvents(ctx)
	if got := strings.Join(events[0].AttendeeIDs, ","); got != "u1,u2,u3" {
		t.Errorf("AttendeeIDs = %s, want u1,u2,u3", got)
	}
	// 呼び出し側のスライスは書き換えない
	if len(input[0].AttendeeIDs) != 5 {
		t.Errorf("input mutated: %v", input[0].AttendeeIDs)
	}
}

func TestSaveTickets_RejectsDuplicateIDs(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryKVStore(), nil)

	err := svc.SaveTickets(context.Background(), []model.Ticket{{ID: "t1"}, {ID: "t1"}})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidInput {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
}
