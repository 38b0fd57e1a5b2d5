// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// ストア、ポーリング、モデレーション、リソース取り込み、HTTPの各記録インターフェースを満たす。
type Collector struct {
	storeLoads    *prometheus.CounterVec
	storeSaves    *prometheus.CounterVec
	seedFallbacks *prometheus.CounterVec

	pollTicks  *prometheus.CounterVec
	pollErrors *prometheus.CounterVec

	moderation        *prometheus.CounterVec
	moderationLatency prometheus.Histogram

	fetchSuccess  *prometheus.CounterVec
	fetchFail     *prometheus.CounterVec
	parseFail     *prometheus.CounterVec
	fetchStatus   *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
	itemsUpserted prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storeLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unihub_store_loads_total",
			Help: "コレクション読み込みの合計数",
		}, []string{"collection"}),
		storeSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unihub_store_saves_total",
			Help: "コレクション書き込みの合計数",
		}, []string{"collection"}),
		seedFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unihub_store_seed_fallback_total",
			Help: "保存データを復元できず初期データを返した回数",
		}, []string{"collection"}),
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unihub_poll_ticks_total",
			Help: "ビューの再読み込み回数",
		}, []string{"view"}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unihub_poll_errors_total",
			Help: "ビューの再読み込み失敗回数",
		}, []string{"view"}),
		moderation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unihub_moderation_total",
			Help: "審査結果別の投稿数",
		}, []string{"outcome"}),
		moderationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "unihub_moderation_latency_seconds",
			Help:    "審査から登録完了までのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		fetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unihub_import_fetch_success_total",
			Help: "リソースフィード取得成功の合計数",
		}, []string{"source"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unihub_import_fetch_fail_total",
			Help: "リソースフィード取得失敗の合計数",
		}, []string{"source", "reason"}),
		parseFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unihub_import_parse_fail_total",
			Help: "リソースフィードのパース失敗の合計数",
		}, []string{"source"}),
		fetchStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unihub_import_http_status_total",
			Help: "リソースフィード取得時のHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "unihub_import_fetch_latency_seconds",
			Help:    "リソースフィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unihub_import_items_upserted_total",
			Help: "取り込まれたリソースの合計数",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unihub_http_requests_total",
			Help: "APIリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "unihub_http_request_duration_seconds",
			Help:    "APIリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.storeLoads,
		c.storeSaves,
		c.seedFallbacks,
		c.pollTicks,
		c.pollErrors,
		c.moderation,
		c.moderationLatency,
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.fetchStatus,
		c.fetchLatency,
		c.itemsUpserted,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// RecordStoreLoad はコレクションの読み込みを記録する。
func (c *Collector) RecordStoreLoad(key string) {
	c.storeLoads.WithLabelValues(key).Inc()
}

// RecordStoreSave はコレクションの書き込みを記録する。
func (c *Collector) RecordStoreSave(key string) {
	c.storeSaves.WithLabelValues(key).Inc()
}

// RecordSeedFallback は初期データへのフォールバックを記録する。
func (c *Collector) RecordSeedFallback(key string) {
	c.seedFallbacks.WithLabelValues(key).Inc()
}

// RecordPollTick はビューの再読み込みを記録する。
func (c *Collector) RecordPollTick(view string) {
	c.pollTicks.WithLabelValues(view).Inc()
}

// RecordPollError はビューの再読み込み失敗を記録する。
func (c *Collector) RecordPollError(view string) {
	c.pollErrors.WithLabelValues(view).Inc()
}

// RecordModeration は審査結果と所要時間を記録する。
func (c *Collector) RecordModeration(outcome string, duration time.Duration) {
	c.moderation.WithLabelValues(outcome).Inc()
	c.moderationLatency.Observe(duration.Seconds())
}

// RecordFetchSuccess はフィード取得成功を記録する。
func (c *Collector) RecordFetchSuccess(source string) {
	c.fetchSuccess.WithLabelValues(source).Inc()
}

// RecordFetchFailure はフィード取得失敗を記録する。
func (c *Collector) RecordFetchFailure(source string, reason string) {
	c.fetchFail.WithLabelValues(source, reason).Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure(source string) {
	c.parseFail.WithLabelValues(source).Inc()
}

// RecordHTTPStatus はフィード取得時のHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.fetchStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフィード取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordItemsUpserted は取り込んだリソース数を記録する。
func (c *Collector) RecordItemsUpserted(count int) {
	c.itemsUpserted.Add(float64(count))
}

// RecordRequest はAPIリクエストを記録する。routeはchiのルートパターン。
func (c *Collector) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
