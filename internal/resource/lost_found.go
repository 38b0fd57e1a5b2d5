package resource

import (
	"context"
	"strings"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/store"
)

// GetLostFound は落とし物掲示板の一覧を新しい順で返す。
func (s *Service) GetLostFound(ctx context.Context) ([]model.LostFoundItem, error) {
	return store.Load(ctx, s.store, store.LostFound)
}

// ReportLostFound は落とし物・拾得物を先頭に追加する。状態は常にOpenで始まる。
func (s *Service) ReportLostFound(ctx context.Context, item model.LostFoundItem) (model.LostFoundItem, error) {
	if item.Type != model.LostFoundLost && item.Type != model.LostFoundFound {
		return model.LostFoundItem{}, model.NewInvalidInputError("種別はLostまたはFoundを指定してください")
	}
	if strings.TrimSpace(item.Title) == "" {
		return model.LostFoundItem{}, model.NewInvalidInputError("タイトルは必須です")
	}
	if item.ID == "" {
		item.ID = model.NewID("lf")
	}
	item.Status = model.LostFoundOpen
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	if err := store.Prepend(ctx, s.store, store.LostFound, item); err != nil {
		return model.LostFoundItem{}, err
	}
	return item, nil
}

// ResolveLostFound は項目を解決済みにする。解決済みから戻すことはない。
// 存在しないIDの場合は何もしない。
func (s *Service) ResolveLostFound(ctx context.Context, id string) error {
	_, err := store.Modify(ctx, s.store, store.LostFound,
		func(it model.LostFoundItem) bool { return it.ID == id && it.Status == model.LostFoundOpen },
		func(it *model.LostFoundItem) { it.Status = model.LostFoundResolved },
	)
	return err
}

// DeleteLostFound は項目を削除する。存在しないIDの場合は何もしない。
func (s *Service) DeleteLostFound(ctx context.Context, id string) error {
	_, err := store.Remove(ctx, s.store, store.LostFound, func(it model.LostFoundItem) bool { return it.ID == id })
	return err
}
