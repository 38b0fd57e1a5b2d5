// Package notification は通知コレクションへのアクセスを提供する。
package notification

import (
	"context"
	"time"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/store"
)

// Service は通知のサービス層。
type Service struct {
	store *store.Store
	now   func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(st *store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// GetNotifications は新しい順の通知一覧を返す。
func (s *Service) GetNotifications(ctx context.Context) ([]model.Notification, error) {
	return store.Load(ctx, s.store, store.Notifications)
}

// SaveNotifications は通知一覧を丸ごと置き換える。
func (s *Service) SaveNotifications(ctx context.Context, ns []model.Notification) error {
	if err := model.CheckUniqueIDs("通知", ns, func(n model.Notification) string { return n.ID }); err != nil {
		return err
	}
	return store.Save(ctx, s.store, store.Notifications, ns)
}

// Build はIDと時刻を補完した未読の通知を生成する。保存はしない。
func Build(typ model.NotificationType, title, message, refID string, now time.Time) model.Notification {
	return model.Notification{
		ID:        model.NewID("ntf"),
		Type:      typ,
		Title:     title,
		Message:   message,
		RefID:     refID,
		Timestamp: now,
	}
}

// Add は通知を先頭に追加する。IDと時刻が空の場合は補完する。
func (s *Service) Add(ctx context.Context, n model.Notification) (model.Notification, error) {
	if !n.Type.Valid() {
		return model.Notification{}, model.NewInvalidInputError("不明な通知種別です: " + string(n.Type))
	}
	if n.ID == "" {
		n.ID = model.NewID("ntf")
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = s.now()
	}
	n.IsRead = false
	if err := store.Prepend(ctx, s.store, store.Notifications, n); err != nil {
		return model.Notification{}, err
	}
	return n, nil
}

// MarkRead は通知を既読にする。既読から未読には戻さない。
func (s *Service) MarkRead(ctx context.Context, id string) error {
	_, err := store.Modify(ctx, s.store, store.Notifications,
		func(n model.Notification) bool { return n.ID == id && !n.IsRead },
		func(n *model.Notification) { n.IsRead = true },
	)
	return err
}

// MarkAllRead は全ての通知を既読にする。
func (s *Service) MarkAllRead(ctx context.Context) error {
	_, err := store.Modify(ctx, s.store, store.Notifications,
		func(n model.Notification) bool { return !n.IsRead },
		func(n *model.Notification) { n.IsRead = true },
	)
	return err
}

// UnreadCount は未読の通知数を返す。
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	ns, err := s.GetNotifications(ctx)
	if err != nil {
		return 0, err
	}
	return CountUnread(ns), nil
}

// CountUnread は一覧中の未読数を数える。
func CountUnread(ns []model.Notification) int {
	count := 0
	for _, n := range ns {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// PruneRead は指定時刻より古い既読通知を削除し、削除件数を返す。
// 未読の通知は古くても残す。
func (s *Service) PruneRead(ctx context.Context, before time.Time) (int, error) {
	return store.Remove(ctx, s.store, store.Notifications, func(n model.Notification) bool {
		return n.IsRead && n.Timestamp.Before(before)
	})
}
