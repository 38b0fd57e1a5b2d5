// Package post は投稿コレクションへのアクセスを提供する。
package post

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/ranking"
	"github.com/hitoshi/unihub/internal/store"
)

// Service は投稿の取得と更新を行うサービス層。
// 投稿の追加はモデレーション通過後にのみ呼び出される。
type Service struct {
	store *store.Store
	now   func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(st *store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// GetPosts は保存順（新しいものが先頭）の投稿一覧を返す。
func (s *Service) GetPosts(ctx context.Context) ([]model.Post, error) {
	return store.Load(ctx, s.store, store.Posts)
}

// SavePosts は投稿一覧を丸ごと置き換える。
func (s *Service) SavePosts(ctx context.Context, posts []model.Post) error {
	if err := model.CheckUniqueIDs("投稿", posts, func(p model.Post) string { return p.ID }); err != nil {
		return err
	}
	return store.Save(ctx, s.store, store.Posts, posts)
}

// AddPost は投稿を先頭に追加する。
// IDが空の場合は採番し、CreatedAtは先頭の投稿より過去にならないよう補正する。
func (s *Service) AddPost(ctx context.Context, p model.Post) (model.Post, error) {
	if p.ID == "" {
		p.ID = model.NewID("post")
	}
	if p.College == "" {
		p.College = model.CollegeGlobal
	}
	var added model.Post
	err := store.Update(ctx, s.store, store.Posts, func(posts []model.Post) ([]model.Post, error) {
		for _, existing := range posts {
			if existing.ID == p.ID {
				return nil, model.NewInvalidInputError(fmt.Sprintf("投稿IDが重複しています: %s", p.ID))
			}
		}
		added = p
		if added.CreatedAt.IsZero() {
			added.CreatedAt = s.now()
		}
		if len(posts) > 0 && added.CreatedAt.Before(posts[0].CreatedAt) {
			added.CreatedAt = posts[0].CreatedAt
		}
		return append([]model.Post{added}, posts...), nil
	})
	if err != nil {
		return model.Post{}, err
	}
	return added, nil
}

// LikePost はいいね数を1増やす。存在しないIDの場合は何もしない。
func (s *Service) LikePost(ctx context.Context, id string) error {
	return s.bump(ctx, id, func(p *model.Post) { p.Likes++ })
}

// CommentPost はコメント数を1増やす。
func (s *Service) CommentPost(ctx context.Context, id string) error {
	return s.bump(ctx, id, func(p *model.Post) { p.Comments++ })
}

// ViewPost は閲覧数を1増やす。
func (s *Service) ViewPost(ctx context.Context, id string) error {
	return s.bump(ctx, id, func(p *model.Post) { p.Views++ })
}

func (s *Service) bump(ctx context.Context, id string, fn func(*model.Post)) error {
	_, err := store.Modify(ctx, s.store, store.Posts,
		func(p model.Post) bool { return p.ID == id },
		fn,
	)
	return err
}

// DeletePost は投稿を削除する。投稿が物理削除される唯一の経路で、管理者のみ実行できる。
func (s *Service) DeletePost(ctx context.Context, actor model.User, id string) error {
	if !actor.IsAdmin {
		return model.NewForbiddenError()
	}
	_, err := store.Remove(ctx, s.store, store.Posts, func(p model.Post) bool { return p.ID == id })
	return err
}

// ListByCollege は指定カレッジとGlobalの投稿を保存順で返す。
func (s *Service) ListByCollege(ctx context.Context, college model.College) ([]model.Post, error) {
	posts, err := s.GetPosts(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.Feed(posts, college), nil
}
