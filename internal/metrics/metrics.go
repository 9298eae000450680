// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// バックエンド呼び出しの結果ラベル。
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バックエンドクライアントや認証サービスから利用する。
type MetricsCollector interface {
	RecordBackendCall(endpoint, outcome string, duration time.Duration)
	RecordBackendStatus(statusCode int)
	RecordAuthEvent(event string)
	SubscriberAdded()
	SubscriberRemoved()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	backendCalls   *prometheus.CounterVec
	backendStatus  *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	authEvents     *prometheus.CounterVec
	subscribers    prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traversaal_backend_requests_total",
			Help: "バックエンド呼び出しのエンドポイント・結果別の合計数",
		}, []string{"endpoint", "outcome"}),
		backendStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traversaal_backend_http_status_total",
			Help: "バックエンドのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "traversaal_backend_latency_seconds",
			Help:    "バックエンド呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traversaal_auth_events_total",
			Help: "セッション変更イベントの種別ごとの合計数",
		}, []string{"event"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traversaal_session_event_subscribers",
			Help: "セッション変更イベントの購読者数",
		}),
	}

	reg.MustRegister(
		c.backendCalls,
		c.backendStatus,
		c.backendLatency,
		c.authEvents,
		c.subscribers,
	)

	return c
}

// RecordBackendCall はバックエンド呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordBackendCall(endpoint, outcome string, duration time.Duration) {
	c.backendCalls.WithLabelValues(endpoint, outcome).Inc()
	c.backendLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordBackendStatus はバックエンドのHTTPステータスコードを記録する。
func (c *Collector) RecordBackendStatus(statusCode int) {
	c.backendStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAuthEvent はセッション変更イベントを記録する。
func (c *Collector) RecordAuthEvent(event string) {
	c.authEvents.WithLabelValues(event).Inc()
}

// SubscriberAdded は購読者数を1増やす。
func (c *Collector) SubscriberAdded() {
	c.subscribers.Inc()
}

// SubscriberRemoved は購読者数を1減らす。
func (c *Collector) SubscriberRemoved() {
	c.subscribers.Dec()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordBackendCall(string, string, time.Duration) {}
func (Nop) RecordBackendStatus(int)                         {}
func (Nop) RecordAuthEvent(string)                          {}
func (Nop) SubscriberAdded()                                {}
func (Nop) SubscriberRemoved()                              {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
