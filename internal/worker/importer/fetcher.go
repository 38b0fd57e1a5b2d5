// Package importer は学内フィード（RSS/Atom）からリソースを取り込むバックグラウンド処理を提供する。
// スケジューラ、フェッチャー、リトライ/バックオフ戦略を含む。
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/resource"
	"github.com/hitoshi/unihub/internal/security"
)

// Source は取り込み対象のフィード。
type Source struct {
	URL     string
	Kind    string
	College model.College
}

// ResourceUpserter はリソースの登録・更新インターフェース。
type ResourceUpserter interface {
	UpsertResources(ctx context.Context, sourceURL string, kind string, college model.College, items []resource.Parsed) (int, int, error)
}

// MetricsRecorder は取り込みのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordFetchSuccess(source string)
	RecordFetchFailure(source string, reason string)
	RecordParseFailure(source string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordItemsUpserted(count int)
}

type nopRecorder struct{}

func (nopRecorder) RecordFetchSuccess(string)         {}
func (nopRecorder) RecordFetchFailure(string, string) {}
func (nopRecorder) RecordParseFailure(string)         {}
func (nopRecorder) RecordHTTPStatus(int)              {}
func (nopRecorder) RecordFetchLatency(time.Duration)  {}
func (nopRecorder) RecordItemsUpserted(int)           {}

// Fetcher は個別フィードのHTTP取得とパースを行う。
// ETag/Last-Modifiedによる条件付きGET、SSRF検証、gofeedによるパース、
// リソースコレクションへの登録を実行する。
type Fetcher struct {
	upserter    ResourceUpserter
	guard       security.Guard
	client      *http.Client
	logger      *slog.Logger
	metrics     MetricsRecorder
	interval    time.Duration
	maxBodySize int64
	now         func() time.Time
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// intervalは取得成功後に次の取得まで空ける時間。
func NewFetcher(
	upserter ResourceUpserter,
	guard security.Guard,
	logger *slog.Logger,
	metrics MetricsRecorder,
	timeout time.Duration,
	interval time.Duration,
	maxBodySize int64,
) *Fetcher {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Fetcher{
		upserter:    upserter,
		guard:       guard,
		client:      guard.NewClient(timeout),
		logger:      logger,
		metrics:     metrics,
		interval:    interval,
		maxBodySize: maxBodySize,
		now:         time.Now,
	}
}

// Fetch はフィードを取得し、結果に応じてstateを更新する。
// 取得元の問題（停止・バックオフ・パース失敗）はstateに記録してnilを返し、
// stateの保存自体が必要な呼び出し元の処理を妨げない。
// 取り込み元がHTMLページの場合はフィードを自動検出し、以後は検出したURLから取得する。
func (f *Fetcher) Fetch(ctx context.Context, src Source, state *SourceState) error {
	if state.FeedURL != "" {
		return f.fetch(ctx, src, state, state.FeedURL, false)
	}
	return f.fetch(ctx, src, state, src.URL, true)
}

func (f *Fetcher) fetch(ctx context.Context, src Source, state *SourceState, target string, discover bool) error {
	start := f.now()

	if err := f.guard.ValidateURL(target); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("source_url", src.URL),
			slog.String("error", err.Error()),
		)
		state.stop(fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		f.metrics.RecordFetchFailure(src.URL, "ssrf")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "UniHub/1.0 Resource Importer")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")
	if state.ETag != "" {
		req.Header.Set("If-None-Match", state.ETag)
	}
	if state.LastModified != "" {
		req.Header.Set("If-Modified-Since", state.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("source_url", src.URL),
			slog.String("error", err.Error()),
		)
		state.backoff(f.now(), fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()))
		f.metrics.RecordFetchFailure(src.URL, "network")
		return nil
	}
	defer resp.Body.Close()

	duration := f.now().Sub(start)
	f.metrics.RecordHTTPStatus(resp.StatusCode)
	f.metrics.RecordFetchLatency(duration)

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultNotModified:
		f.logger.Info("フィードは未変更です（304）",
			slog.String("source_url", src.URL),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		state.succeed(f.now(), f.interval)
		f.metrics.RecordFetchSuccess(src.URL)
		return nil

	case FetchResultStop:
		if state.FeedURL != "" {
			// 検出済みのフィードが消えた場合はページから検出し直す
			f.logger.Warn("検出済みのフィードが取得できません",
				slog.String("source_url", src.URL),
				slog.String("feed_url", state.FeedURL),
				slog.Int("http_status", resp.StatusCode),
			)
			state.forgetFeed()
			state.backoff(f.now(), fmt.Sprintf("検出済みフィードがHTTPステータス %d を返しました", resp.StatusCode))
			f.metrics.RecordFetchFailure(src.URL, "rediscover")
			return nil
		}
		reason := fmt.Sprintf("HTTPステータス %d により取り込みを停止しました", resp.StatusCode)
		f.logger.Warn("フィードの取り込みを停止します",
			slog.String("source_url", src.URL),
			slog.Int("http_status", resp.StatusCode),
		)
		state.stop(reason)
		f.metrics.RecordFetchFailure(src.URL, "stopped")
		return nil

	case FetchResultBackoff:
		f.logger.Warn("フィードの取得にバックオフを適用します",
			slog.String("source_url", src.URL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", state.ConsecutiveErrors+1),
		)
		state.backoff(f.now(), fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode))
		f.metrics.RecordFetchFailure(src.URL, "backoff")
		return nil

	case FetchResultOK:
	default:
		f.logger.Warn("予期しないHTTPステータスコード",
			slog.String("source_url", src.URL),
			slog.Int("http_status", resp.StatusCode),
		)
		state.backoff(f.now(), fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode))
		f.metrics.RecordFetchFailure(src.URL, "unexpected_status")
		return nil
	}

	body, err := security.ReadLimited(resp.Body, f.maxBodySize)
	if err != nil {
		reason := "read"
		if errors.Is(err, security.ErrResponseTooLarge) {
			reason = "too_large"
		}
		f.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("source_url", src.URL),
			slog.String("error", err.Error()),
		)
		state.backoff(f.now(), fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()))
		f.metrics.RecordFetchFailure(src.URL, reason)
		return nil
	}

	if discover && !isFeedResponse(resp.Header.Get("Content-Type"), body) {
		link, ok := discoverFeedURL(body, target)
		if !ok {
			f.logger.Error("ページからフィードを検出できませんでした",
				slog.String("source_url", src.URL),
			)
			state.parseFailure(f.now(), f.interval, "フィードが見つかりません")
			f.metrics.RecordParseFailure(src.URL)
			return nil
		}
		f.logger.Info("ページからフィードを検出しました",
			slog.String("source_url", src.URL),
			slog.String("feed_url", link),
		)
		state.forgetFeed()
		state.FeedURL = link
		return f.fetch(ctx, src, state, link, false)
	}

	parsedFeed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		f.logger.Error("フィードのパースに失敗しました",
			slog.String("source_url", src.URL),
			slog.String("error", err.Error()),
		)
		state.parseFailure(f.now(), f.interval, err.Error())
		f.metrics.RecordParseFailure(src.URL)
		return nil
	}

	items := convertItems(parsedFeed, target)
	inserted, updated, err := f.upserter.UpsertResources(ctx, src.URL, src.Kind, src.College, items)
	if err != nil {
		// ストアに書けない場合は取得元の問題ではないため状態を進めずに返す
		return fmt.Errorf("リソースの登録に失敗 (%s): %w", src.URL, err)
	}

	// 登録できた場合のみ検証子を保存する。失敗時に保存すると次回304で取りこぼす
	if etag := resp.Header.Get("ETag"); etag != "" {
		state.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		state.LastModified = lastMod
	}
	state.succeed(f.now(), f.interval)
	f.metrics.RecordFetchSuccess(src.URL)
	f.metrics.RecordItemsUpserted(inserted + updated)

	f.logger.Info("フィードの取り込みが完了しました",
		slog.String("source_url", src.URL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("items_inserted", inserted),
		slog.Int("items_updated", updated),
		slog.Int("items_total", len(items)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// convertItems はgofeedの記事をresource.Parsedに変換する。
func convertItems(feed *gofeed.Feed, sourceURL string) []resource.Parsed {
	base, _ := url.Parse(sourceURL)
	if feed.Link != "" {
		if u, err := url.Parse(feed.Link); err == nil && u.IsAbs() {
			base = u
		}
	}

	out := make([]resource.Parsed, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		p := resource.Parsed{
			GUID:         item.GUID,
			Title:        strings.TrimSpace(item.Title),
			Link:         resolveURL(base, item.Link),
			Summary:      item.Description,
			ThumbnailURL: thumbnailURL(item, base),
		}
		if p.Summary == "" {
			p.Summary = item.Content
		}

		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			p.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			p.PublishedAt = &t
		}

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if p.Link == "" && (strings.HasPrefix(p.GUID, "http://") || strings.HasPrefix(p.GUID, "https://")) {
			p.Link = p.GUID
		}
		out = append(out, p)
	}
	return out
}
