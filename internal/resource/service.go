// Package resource は学習リソース、落とし物掲示板、音声レッスンへのアクセスを提供する。
package resource

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/security"
	"github.com/hitoshi/unihub/internal/store"
)

// Parsed は外部フィードから取り込んだ1件のリソース。
type Parsed struct {
	GUID         string
	Title        string
	Link         string
	Summary      string // 未サニタイズのHTML
	ThumbnailURL string
	PublishedAt  *time.Time
}

// Service はリソース系コレクションのサービス層。
type Service struct {
	store     *store.Store
	sanitizer security.Sanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(st *store.Store, sanitizer security.Sanitizer) *Service {
	return &Service{store: st, sanitizer: sanitizer, now: time.Now}
}

// GetResources はリソース一覧を返す。
func (s *Service) GetResources(ctx context.Context) ([]model.Resource, error) {
	return store.Load(ctx, s.store, store.Resources)
}

// SaveResources はリソース一覧を丸ごと置き換える。
func (s *Service) SaveResources(ctx context.Context, resources []model.Resource) error {
	if err := model.CheckUniqueIDs("リソース", resources, func(r model.Resource) string { return r.ID }); err != nil {
		return err
	}
	return store.Save(ctx, s.store, store.Resources, resources)
}

// UpsertResources はフィードから取得したリソースを登録または上書きする。
// 同一性は同じ取得元の中で次の優先順で判定する。
//  1. GUID
//  2. リンク
//  3. hash(title + published + summary)
//
// 新規のものは先頭に追加される。戻り値は追加数と更新数。
func (s *Service) UpsertResources(ctx context.Context, sourceURL string, kind string, college model.College, items []Parsed) (inserted, updated int, err error) {
	if len(items) == 0 {
		return 0, 0, nil
	}
	if college == "" {
		college = model.CollegeGlobal
	}
	now := s.now()

	err = store.Update(ctx, s.store, store.Resources, func(resources []model.Resource) ([]model.Resource, error) {
		inserted, updated = 0, 0
		base := len(resources)
		for _, p := range items {
			summary := s.sanitizer.Sanitize(p.Summary)
			hash := contentHash(p.Title, p.PublishedAt, summary)

			if i := findExisting(resources, sourceURL, p, hash); i >= 0 {
				r := &resources[i]
				r.GUID = p.GUID
				r.Title = p.Title
				r.Link = p.Link
				r.Summary = summary
				r.ContentHash = hash
				if p.ThumbnailURL != "" {
					r.ThumbnailURL = p.ThumbnailURL
				}
				if p.PublishedAt != nil {
					r.PublishedAt = *p.PublishedAt
				}
				updated++
				continue
			}

			r := model.Resource{
				ID:           model.NewID("res"),
				Title:        p.Title,
				Summary:      summary,
				Link:         p.Link,
				Kind:         kind,
				College:      college,
				ThumbnailURL: p.ThumbnailURL,
				SourceURL:    sourceURL,
				GUID:         p.GUID,
				ContentHash:  hash,
				PublishedAt:  now,
			}
			if p.PublishedAt != nil {
				r.PublishedAt = *p.PublishedAt
			}
			// 同じバッチ内の重複も検出できるよう即座に候補へ加える
			resources = append(resources, r)
			inserted++
		}
		if inserted == 0 && updated == 0 {
			return nil, store.ErrUnchanged
		}
		// 新規分をフィード内の順序のまま先頭に並べ替える
		out := make([]model.Resource, 0, len(resources))
		out = append(out, resources[base:]...)
		return append(out, resources[:base]...), nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("リソースの登録に失敗しました: %w", err)
	}

	slog.Info("リソースUPSERT完了",
		slog.String("source_url", sourceURL),
		slog.Int("inserted", inserted),
		slog.Int("updated", updated),
	)
	return inserted, updated, nil
}

func findExisting(resources []model.Resource, sourceURL string, p Parsed, hash string) int {
	if p.GUID != "" {
		for i, r := range resources {
			if r.SourceURL == sourceURL && r.GUID == p.GUID {
				return i
			}
		}
	}
	if p.Link != "" {
		for i, r := range resources {
			if r.SourceURL == sourceURL && r.Link == p.Link {
				return i
			}
		}
	}
	for i, r := range resources {
		if r.SourceURL == sourceURL && r.ContentHash == hash {
			return i
		}
	}
	return -1
}

func contentHash(title string, publishedAt *time.Time, summary string) string {
	pub := ""
	if publishedAt != nil {
		pub = publishedAt.UTC().Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(title + "|" + pub + "|" + summary))
	return fmt.Sprintf("%x", sum)
}
