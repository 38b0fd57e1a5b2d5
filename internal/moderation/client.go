// Package moderation は投稿をストアに登録する前に外部の分類サービスで審査する。
//
// 分類サービスの失敗は安全性による拒否と同じく扱い、投稿は登録しない（fail-closed）。
// 審査中の再送信は受け付けない。
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/unihub/internal/model"
)

// maxVerdictBytes は分類サービスのレスポンス本文の上限。
const maxVerdictBytes = 64 * 1024

// Request は分類サービスへのリクエスト。
// ImageBytesはJSON上でbase64文字列として送られる。
type Request struct {
	Text       string `json:"text"`
	ImageBytes []byte `json:"imageBytes,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
}

// Verdict は分類サービスの判定結果。
type Verdict struct {
	Category     model.Category `json:"category"`
	IsSafe       bool           `json:"isSafe"`
	SafetyReason string         `json:"safetyReason,omitempty"`
}

// Classifier は投稿内容を分類するサービスのインターフェース。
type Classifier interface {
	Classify(ctx context.Context, req Request) (Verdict, error)
}

// Client は分類サービスのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	apiKey     string
}

// NewClient はClientの新しいインスタンスを生成する。
// apiKeyが空の場合はAuthorizationヘッダーを付与しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// wireVerdict はisSafeの欠落を検出するための受信用の型。
type wireVerdict struct {
	Category     model.Category `json:"category"`
	IsSafe       *bool          `json:"isSafe"`
	SafetyReason string         `json:"safetyReason"`
}

// Classify は投稿内容を分類サービスに送り、判定結果を返す。
// 2xx以外のステータス、構造化されていないレスポンス、安全判定での未知のカテゴリはエラーになる。
// リトライはしない。
func (c *Client) Classify(ctx context.Context, req Request) (Verdict, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("リクエストのシリアライズに失敗しました: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "UniHub/1.0 Moderation")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("分類サービスの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return Verdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("分類サービスがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return Verdict{}, fmt.Errorf("分類サービスがステータス %d を返しました", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxVerdictBytes))
	if err != nil {
		return Verdict{}, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var w wireVerdict
	if err := json.Unmarshal(raw, &w); err != nil {
		c.logger.Error("分類サービスのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return Verdict{}, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if w.IsSafe == nil {
		return Verdict{}, fmt.Errorf("レスポンスにisSafeが含まれていません")
	}
	// 拒否の場合はカテゴリが欠けていても理由を優先して返す
	if *w.IsSafe && !w.Category.Valid() {
		return Verdict{}, fmt.Errorf("未知のカテゴリです: %q", w.Category)
	}

	return Verdict{
		Category:     w.Category,
		IsSafe:       *w.IsSafe,
		SafetyReason: w.SafetyReason,
	}, nil
}
