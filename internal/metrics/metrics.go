// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスやミドルウェアから利用する。
type MetricsCollector interface {
	LoginSucceeded()
	LoginFailed()
	EnrichmentResult(result string)
	RecordPhoneUpdate()
	RecordHTTPStatus(statusCode int)
	RecordCallbackLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess    prometheus.Counter
	loginFail       prometheus.Counter
	enrichment      *prometheus.CounterVec
	phoneUpdates    prometheus.Counter
	httpStatus      *prometheus.CounterVec
	callbackLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renraku_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renraku_login_fail_total",
			Help: "ログイン失敗の合計数",
		}),
		enrichment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "renraku_phone_enrichment_total",
			Help: "電話番号取得の結果別の合計数",
		}, []string{"result"}),
		phoneUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "renraku_phone_updates_total",
			Help: "電話番号更新の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "renraku_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		callbackLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "renraku_callback_latency_seconds",
			Help:    "OAuthコールバック処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.enrichment,
		c.phoneUpdates,
		c.httpStatus,
		c.callbackLatency,
	)

	return c
}

// LoginSucceeded はログイン成功を記録する。
func (c *Collector) LoginSucceeded() {
	c.loginSuccess.Inc()
}

// LoginFailed はログイン失敗を記録する。
func (c *Collector) LoginFailed() {
	c.loginFail.Inc()
}

// EnrichmentResult は電話番号取得の結果を記録する。
// resultはfound, absent, error, skippedのいずれか。
func (c *Collector) EnrichmentResult(result string) {
	c.enrichment.WithLabelValues(result).Inc()
}

// RecordPhoneUpdate は電話番号更新を記録する。
func (c *Collector) RecordPhoneUpdate() {
	c.phoneUpdates.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCallbackLatency はコールバック処理のレイテンシを記録する。
func (c *Collector) RecordCallbackLatency(duration time.Duration) {
	c.callbackLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
