// Package user はユーザーと現在のユーザーの参照を管理する。
//
// フォロワー数や投稿数などの集計値は表示用のキャッシュとして独立に更新し、
// 投稿コレクションから再計算しない。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/store"
)

// ProfileUpdate はプロフィール更新の入力。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Name    *string
	Avatar  *string
	Status  *string
	Bio     *string
	College *model.College
}

// Service はユーザー管理のサービス層。
type Service struct {
	store *store.Store
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// GetUsers はユーザー一覧を返す。
func (s *Service) GetUsers(ctx context.Context) ([]model.User, error) {
	return store.Load(ctx, s.store, store.Users)
}

// SaveUsers はユーザー一覧を丸ごと置き換える。
func (s *Service) SaveUsers(ctx context.Context, users []model.User) error {
	if err := model.CheckUniqueIDs("ユーザー", users, func(u model.User) string { return u.ID }); err != nil {
		return err
	}
	return store.Save(ctx, s.store, store.Users, users)
}

// GetUser はIDに一致するユーザーを返す。存在しない場合はnilを返す。
func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	users, err := s.GetUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

// CurrentUser は保存済みの参照が指すユーザーを返す。
// 参照が未設定か、指す先のユーザーが存在しない場合は先頭のユーザーを返す。
// ユーザーが1人もいない場合はnilを返す。
func (s *Service) CurrentUser(ctx context.Context) (*model.User, error) {
	id, found, err := s.store.LoadScalar(ctx, store.CurrentUserKey)
	if err != nil {
		return nil, fmt.Errorf("現在のユーザーの取得に失敗しました: %w", err)
	}
	users, err := s.GetUsers(ctx)
	if err != nil {
		return nil, err
	}
	if found {
		for i := range users {
			if users[i].ID == id {
				return &users[i], nil
			}
		}
		slog.Warn("現在のユーザーの参照先が存在しません",
			slog.String("user_id", id),
		)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// SetCurrentUser は現在のユーザーの参照を切り替える。
func (s *Service) SetCurrentUser(ctx context.Context, id string) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return model.NewNotFoundError("ユーザー", id)
	}
	return s.store.SaveScalar(ctx, store.CurrentUserKey, id)
}

// UpdateProfile はプロフィールを更新する。存在しないIDの場合は何もしない。
func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) error {
	if upd.College != nil && !upd.College.Valid() {
		return model.NewInvalidInputError(fmt.Sprintf("不明なカレッジです: %s", *upd.College))
	}
	if upd.Name != nil && *upd.Name == "" {
		return model.NewInvalidInputError("名前は必須です")
	}
	_, err := store.Modify(ctx, s.store, store.Users,
		func(u model.User) bool { return u.ID == id },
		func(u *model.User) {
			if upd.Name != nil {
				u.Name = *upd.Name
			}
			if upd.Avatar != nil {
				u.Avatar = *upd.Avatar
			}
			if upd.Status != nil {
				u.Status = *upd.Status
			}
			if upd.Bio != nil {
				u.Bio = *upd.Bio
			}
			if upd.College != nil {
				u.College = *upd.College
			}
		},
	)
	return err
}

// Follow はフォロー数とフォロワー数の表示値を1ずつ増やす。
// フォロー関係自体は保持しないため、同じ組み合わせで繰り返すと加算され続ける。
func (s *Service) Follow(ctx context.Context, followerID, targetID string) error {
	if followerID == targetID {
		return model.NewInvalidInputError("自分自身はフォローできません")
	}
	return store.Update(ctx, s.store, store.Users, func(users []model.User) ([]model.User, error) {
		changed := false
		for i := range users {
			switch users[i].ID {
			case followerID:
				users[i].Following++
				changed = true
			case targetID:
				users[i].Followers++
				changed = true
			}
		}
		if !changed {
			return nil, store.ErrUnchanged
		}
		return users, nil
	})
}

// RecordPost は投稿者の投稿数の表示値を1増やす。
func (s *Service) RecordPost(ctx context.Context, authorID string) error {
	_, err := store.Modify(ctx, s.store, store.Users,
		func(u model.User) bool { return u.ID == authorID },
		func(u *model.User) { u.Posts++ },
	)
	return err
}
