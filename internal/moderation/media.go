package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/unihub/internal/security"
)

// MediaFetcher は添付画像を取得する。
type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL string) (data []byte, mimeType string, err error)
}

// MediaDownloader はSSRF対策付きのクライアントで添付画像をダウンロードする。
type MediaDownloader struct {
	client   *http.Client
	guard    security.Guard
	maxBytes int64
	logger   *slog.Logger
}

// NewMediaDownloader はMediaDownloaderの新しいインスタンスを生成する。
func NewMediaDownloader(guard security.Guard, timeout time.Duration, maxBytes int64, logger *slog.Logger) *MediaDownloader {
	return &MediaDownloader{
		client:   guard.NewClient(timeout),
		guard:    guard,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Fetch は画像をダウンロードし、本文とMIMEタイプを返す。
// 画像以外のコンテンツ、上限を超えるサイズ、200以外のステータスはエラーになる。
func (d *MediaDownloader) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := d.guard.ValidateURL(rawURL); err != nil {
		return nil, "", fmt.Errorf("添付URLが許可されていません: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "UniHub/1.0 Moderation")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("添付画像の取得に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("添付画像の取得でステータス %d が返されました", resp.StatusCode)
	}

	data, err := security.ReadLimited(resp.Body, d.maxBytes)
	if err != nil {
		return nil, "", fmt.Errorf("添付画像の読み取りに失敗しました: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", fmt.Errorf("添付ファイルが画像ではありません: %s", mimeType)
	}
	return data, mimeType, nil
}
