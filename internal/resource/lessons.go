package resource

import (
	"context"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/store"
)

// GetLessons は音声レッスン一覧を返す。
func (s *Service) GetLessons(ctx context.Context) ([]model.AudioLesson, error) {
	return store.Load(ctx, s.store, store.Lessons)
}

// SaveLessons は音声レッスン一覧を丸ごと置き換える。
func (s *Service) SaveLessons(ctx context.Context, lessons []model.AudioLesson) error {
	if err := model.CheckUniqueIDs("レッスン", lessons, func(l model.AudioLesson) string { return l.ID }); err != nil {
		return err
	}
	return store.Save(ctx, s.store, store.Lessons, lessons)
}

// RecordProgress は再生の進捗を記録する。進捗は増える方向にのみ更新され、100で完了になる。
func (s *Service) RecordProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 || progress > 100 {
		return model.NewInvalidInputError("進捗は0から100で指定してください")
	}
	_, err := store.Modify(ctx, s.store, store.Lessons,
		func(l model.AudioLesson) bool { return l.ID == id && progress > l.Progress },
		func(l *model.AudioLesson) {
			l.Progress = progress
			if progress == 100 {
				l.Completed = true
			}
		},
	)
	return err
}

// CompleteLesson はレッスンを完了にする。
func (s *Service) CompleteLesson(ctx context.Context, id string) error {
	return s.RecordProgress(ctx, id, 100)
}
