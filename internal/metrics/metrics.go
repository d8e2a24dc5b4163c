// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証フローの結果ラベル。
const (
	OutcomeSuccess    = "success"
	OutcomeRejected   = "rejected"
	OutcomeUnverified = "unverified"
	OutcomeThrottled  = "throttled"
	OutcomeError      = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、HTTPミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthEvent(flow, outcome string)
	RecordEmailSent(kind string)
	RecordEmailFailure(kind string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordTokensCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authEvents     *prometheus.CounterVec
	emails         *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	tokensCleaned  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finwise_auth_events_total",
			Help: "認証フローの実行結果別の合計数",
		}, []string{"flow", "outcome"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finwise_emails_total",
			Help: "トランザクションメールの種別・結果別の送信数",
		}, []string{"kind", "result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finwise_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "finwise_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tokensCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finwise_verification_tokens_cleaned_total",
			Help: "クリーンアップで削除された期限切れメール確認トークンの合計数",
		}),
	}

	reg.MustRegister(
		c.authEvents,
		c.emails,
		c.httpStatus,
		c.requestLatency,
		c.tokensCleaned,
	)

	return c
}

// RecordAuthEvent は認証フローの結果を記録する。
func (c *Collector) RecordAuthEvent(flow, outcome string) {
	c.authEvents.WithLabelValues(flow, outcome).Inc()
}

// RecordEmailSent はメール送信成功を記録する。
func (c *Collector) RecordEmailSent(kind string) {
	c.emails.WithLabelValues(kind, "sent").Inc()
}

// RecordEmailFailure はメール送信失敗を記録する。
func (c *Collector) RecordEmailFailure(kind string) {
	c.emails.WithLabelValues(kind, "failed").Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordTokensCleaned はクリーンアップで削除したトークン数を記録する。
func (c *Collector) RecordTokensCleaned(count int64) {
	c.tokensCleaned.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。メトリクス不要の構成やテストで使用する。
type Nop struct{}

func (Nop) RecordAuthEvent(string, string)     {}
func (Nop) RecordEmailSent(string)             {}
func (Nop) RecordEmailFailure(string)          {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordTokensCleaned(int64)          {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
