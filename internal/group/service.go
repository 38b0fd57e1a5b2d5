// Package group はグループとグループメッセージへのアクセスを提供する。
package group

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/store"
)

// Service はグループのサービス層。
type Service struct {
	store *store.Store
	now   func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(st *store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// GetGroups はグループ一覧を返す。
func (s *Service) GetGroups(ctx context.Context) ([]model.Group, error) {
	return store.Load(ctx, s.store, store.Groups)
}

// SaveGroups はグループ一覧を丸ごと置き換える。
// IDの重複は拒否し、メンバーの重複は取り除いて保存する。
func (s *Service) SaveGroups(ctx context.Context, groups []model.Group) error {
	if err := model.CheckUniqueIDs("グループ", groups, func(g model.Group) string { return g.ID }); err != nil {
		return err
	}
	groups = slices.Clone(groups)
	for i := range groups {
		if groups[i].MemberIDs != nil {
			groups[i].MemberIDs = model.DedupeIDs(groups[i].MemberIDs)
		}
	}
	return store.Save(ctx, s.store, store.Groups, groups)
}

// JoinGroup はユーザーをメンバーに追加し、メンバー数を1増やす。
// 参加済みの場合と存在しないグループの場合は何もしない。
func (s *Service) JoinGroup(ctx context.Context, groupID, userID string) error {
	if userID == "" {
		return model.NewInvalidInputError("ユーザーIDは必須です")
	}
	_, err := store.Modify(ctx, s.store, store.Groups,
		func(g model.Group) bool { return g.ID == groupID && !g.HasMember(userID) },
		func(g *model.Group) {
			g.MemberIDs = append(g.MemberIDs, userID)
			g.Members++
		},
	)
	return err
}

// GetMessages はグループのメッセージを投稿順で返す。
func (s *Service) GetMessages(ctx context.Context, groupID string) ([]model.GroupMessage, error) {
	all, err := store.Load(ctx, s.store, store.GroupMessages)
	if err != nil {
		return nil, err
	}
	out := make([]model.GroupMessage, 0)
	for _, m := range all {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

// PostMessage はメッセージを末尾に追加する。
func (s *Service) PostMessage(ctx context.Context, groupID, authorID, text string) (model.GroupMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.GroupMessage{}, model.NewInvalidInputError("メッセージは必須です")
	}
	m := model.GroupMessage{
		ID:        model.NewID("gmsg"),
		GroupID:   groupID,
		AuthorID:  authorID,
		Text:      text,
		Timestamp: s.now(),
	}
	if err := store.Append(ctx, s.store, store.GroupMessages, m); err != nil {
		return model.GroupMessage{}, err
	}
	return m, nil
}
