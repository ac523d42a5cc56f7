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
// トランスポート層と状態管理層から利用する。
type MetricsCollector interface {
	// RecordRequest はAPI呼び出しの結果を記録する。通信失敗時のstatusCodeは0。
	RecordRequest(operation string, statusCode int)
	// RecordRequestLatency はAPI呼び出しのレイテンシを記録する。
	RecordRequestLatency(operation string, duration time.Duration)
	// RecordUnauthorized は401応答による強制ログアウトを記録する。
	RecordUnauthorized()
	// RecordStaleDiscard は古いクエリの応答を破棄したことを記録する。
	RecordStaleDiscard()
	// RecordChannelFallback はチャンネル取得失敗で空リストに置き換えたことを記録する。
	RecordChannelFallback()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	unauthorized    prometheus.Counter
	staleDiscards   prometheus.Counter
	channelFallback prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geekcms_api_requests_total",
			Help: "API呼び出しの合計数（操作・ステータスコード別）",
		}, []string{"operation", "status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geekcms_api_request_duration_seconds",
			Help:    "API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geekcms_unauthorized_total",
			Help: "401応答による強制ログアウトの合計数",
		}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geekcms_stale_responses_discarded_total",
			Help: "新しいクエリに置き換えられて破棄された応答の合計数",
		}),
		channelFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geekcms_channel_fallback_total",
			Help: "チャンネル取得失敗で空リストを返した合計数",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.requestLatency,
		c.unauthorized,
		c.staleDiscards,
		c.channelFallback,
	)

	return c
}

// RecordRequest はAPI呼び出しの結果を記録する。
func (c *Collector) RecordRequest(operation string, statusCode int) {
	c.requests.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(operation string, duration time.Duration) {
	c.requestLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordUnauthorized は401応答を記録する。
func (c *Collector) RecordUnauthorized() {
	c.unauthorized.Inc()
}

// RecordStaleDiscard は破棄された応答を記録する。
func (c *Collector) RecordStaleDiscard() {
	c.staleDiscards.Inc()
}

// RecordChannelFallback はチャンネル取得の失敗を記録する。
func (c *Collector) RecordChannelFallback() {
	c.channelFallback.Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordRequest(string, int)                 {}
func (Nop) RecordRequestLatency(string, time.Duration) {}
func (Nop) RecordUnauthorized()                        {}
func (Nop) RecordStaleDiscard()                        {}
func (Nop) RecordChannelFallback()                     {}

// WriteTextfile はnode_exporterのtextfileコレクタ形式でメトリクスをファイルに書き出す。
// CLIのように短命なプロセスのメトリクスを収集するために使用する。
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, gatherer)
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
