package importer

import (
	"fmt"
	"time"
)

// FetchResult はHTTPステータスコードに基づく取得結果の分類。
type FetchResult int

const (
	// FetchResultOK は取得成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultNotModified はコンテンツ未変更（304）。
	FetchResultNotModified
	// FetchResultStop は取得停止が必要なステータス（404/410/401/403）。
	FetchResultStop
	// FetchResultBackoff はバックオフが必要なステータス（429/5xx）。
	FetchResultBackoff
	// FetchResultUnknown は未知のステータスコード。
	FetchResultUnknown
)

const (
	initialBackoff        = 30 * time.Minute
	maxBackoff            = 12 * time.Hour
	parseFailureThreshold = 10
)

// ClassifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == 200:
		return FetchResultOK
	case statusCode == 304:
		return FetchResultNotModified
	case statusCode == 404 || statusCode == 410 || statusCode == 401 || statusCode == 403:
		return FetchResultStop
	case statusCode == 429 || statusCode >= 500:
		return FetchResultBackoff
	default:
		return FetchResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// SourceState は取り込み元ごとの取得状態。ストアのスカラー値として保存する。
type SourceState struct {
	FeedURL           string    `json:"feedUrl,omitempty"` // HTMLページから検出したフィード
	ETag              string    `json:"etag,omitempty"`
	LastModified      string    `json:"lastModified,omitempty"`
	ConsecutiveErrors int       `json:"consecutiveErrors"`
	NextFetchAt       time.Time `json:"nextFetchAt"`
	Stopped           bool      `json:"stopped"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
}

// Due は取得予定時刻を過ぎているかを返す。停止済みの取り込み元は対象外。
func (s SourceState) Due(now time.Time) bool {
	return !s.Stopped && !now.Before(s.NextFetchAt)
}

// forgetFeed は検出済みのフィードと条件付きGETの検証子を破棄する。
func (s *SourceState) forgetFeed() {
	s.FeedURL = ""
	s.ETag = ""
	s.LastModified = ""
}

func (s *SourceState) stop(reason string) {
	s.Stopped = true
	s.ErrorMessage = reason
}

func (s *SourceState) backoff(now time.Time, reason string) {
	s.ConsecutiveErrors++
	s.ErrorMessage = reason
	s.NextFetchAt = now.Add(CalculateBackoff(s.ConsecutiveErrors - 1))
}

func (s *SourceState) succeed(now time.Time, interval time.Duration) {
	s.ConsecutiveErrors = 0
	s.ErrorMessage = ""
	s.NextFetchAt = now.Add(interval)
}

// parseFailure はパース失敗を数え、閾値に達したら取得を停止する。
func (s *SourceState) parseFailure(now time.Time, interval time.Duration, reason string) {
	s.ConsecutiveErrors++
	s.ErrorMessage = fmt.Sprintf("パース失敗 (%d回連続): %s", s.ConsecutiveErrors, reason)
	s.NextFetchAt = now.Add(interval)
	if s.ConsecutiveErrors >= parseFailureThreshold {
		s.stop(fmt.Sprintf("パース失敗が%d回連続したため取り込みを停止しました: %s", s.ConsecutiveErrors, reason))
	}
}
