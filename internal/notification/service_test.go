package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/repository"
	"github.com/hitoshi/unihub/internal/store"
)

var baseTime = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, ns []model.Notification) *Service {
	t.Helper()
	svc := NewService(store.New(repository.NewMemoryKVStore(), nil, nil))
	svc.now = func() time.Time { return baseTime }
	if ns != nil {
		if err := svc.SaveNotifications(context.Background(), ns); err != nil {
			t.Fatalf("SaveNotifications failed: %v", err)
		}
	}
	return svc
}

func TestAdd_PrependsUnread(t *testing.T) {
	svc := newTestService(t, []model.Notification{{ID: "n_old", Type: model.NotificationSystem, IsRead: true}})
	ctx := context.Background()

	n, err := svc.Add(ctx, model.Notification{Type: model.NotificationFollow, Title: "t", IsRead: true})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if n.ID == "" || !n.Timestamp.Equal(baseTime) || n.IsRead {
		t.Errorf("added = %+v", n)
	}
	ns, _ := svc.GetNotifications(ctx)
	if len(ns) != 2 || ns[0].ID != n.ID {
		t.Errorf("notifications = %+v", ns)
	}
}

func TestAdd_RejectsUnknownType(t *testing.T) {
	svc := newTestService(t, []model.Notification{})
	if _, err := svc.Add(context.Background(), model.Notification{Type: "promo"}); err == nil {
		t.Fatal("不明な通知種別が受け入れられました")
	}
}

func TestMarkRead_OnlyMovesForward(t *testing.T) {
	svc := newTestService(t, []model.Notification{
		{ID: "n1", Type: model.NotificationSystem},
		{ID: "n2", Type: model.NotificationSystem},
	})
	ctx := context.Background()

	if err := svc.MarkRead(ctx, "n1"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	// 既読への再操作と存在しないIDはいずれも何もしない
	if err := svc.MarkRead(ctx, "n1"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if err := svc.MarkRead(ctx, "missing"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	count, _ := svc.UnreadCount(ctx)
	if count != 1 {
		t.Errorf("UnreadCount = %d, want 1", count)
	}

	_ = svc.MarkAllRead(ctx)
	count, _ = svc.UnreadCount(ctx)
	if count != 0 {
		t.Errorf("UnreadCount after MarkAllRead = %d, want 0", count)
	}
}

func TestPruneRead_KeepsUnreadAndRecent(t *testing.T) {
	svc := newTestService(t, []model.Notification{
		{ID: "old_read", Type: model.NotificationSystem, IsRead: true, Timestamp: baseTime.Add(-60 * 24 * time.Hour)},
		{ID: "old_unread", Type: model.NotificationSystem, Timestamp: baseTime.Add(-60 * 24 * time.Hour)},
		{ID: "new_read", Type: model.NotificationSystem, IsRead: true, Timestamp: baseTime},
	})
	ctx := context.Background()

	pruned, err := svc.PruneRead(ctx, baseTime.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("PruneRead failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	ns, _ := svc.GetNotifications(ctx)
	if len(ns) != 2 || ns[0].ID != "old_unread" || ns[1].ID != "new_read" {
		t.Errorf("remaining = %+v", ns)
	}
}

func TestBuild(t *testing.T) {
	n := Build(model.NotificationEvent, "チケット購入", "購入しました", "evt1", baseTime)
	if n.ID == "" || n.IsRead || n.RefID != "evt1" || !n.Timestamp.Equal(baseTime) {
		t.Errorf("Build = %+v", n)
	}
}

func TestSaveNotifications_RejectsDuplicateIDs(t *testing.T) {
	svc := newTestService(t, []model.Notification{})

	err := svc.SaveNotifications(context.Background(), []model.Notification{
		{ID: "n1", Type: model.NotificationSystem},
		{ID: "n1", Type: model.NotificationEvent},
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidInput {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
	ns, _ := svc.GetNotifications(context.Background())
	if len(ns) != 0 {
		t.Errorf("notifications = %+v, want none", ns)
	}
}
