// Package metrics はPrometheusメトリクスの収集と出力を提供する。
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector はメトリクス収集のインターフェース。
// APIクライアントから利用する。
type MetricsCollector interface {
	RecordRequest(method, route string, statusCode int, duration time.Duration)
	RecordNetworkError(method, route string)
	RecordRetry(route string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	networkErrors *prometheus.CounterVec
	retries       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventdesk_api_requests_total",
			Help: "イベントAPI呼び出しの合計数（メソッド・ルート・ステータス別）",
		}, []string{"method", "route", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventdesk_api_request_duration_seconds",
			Help:    "イベントAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		networkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventdesk_api_network_errors_total",
			Help: "レスポンスを受け取れなかったAPI呼び出しの合計数",
		}, []string{"method", "route"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventdesk_api_retries_total",
			Help: "リトライしたAPI呼び出しの合計数",
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.requests,
		c.latency,
		c.networkErrors,
		c.retries,
	)

	return c
}

// RecordRequest はレスポンスを受け取ったAPI呼び出しを記録する。
func (c *Collector) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordNetworkError は通信エラーを記録する。
func (c *Collector) RecordNetworkError(method, route string) {
	c.networkErrors.WithLabelValues(method, route).Inc()
}

// RecordRetry はリトライを記録する。
func (c *Collector) RecordRetry(route string) {
	c.retries.WithLabelValues(route).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordRequest(string, string, int, time.Duration) {}
func (NopCollector) RecordNetworkError(string, string)               {}
func (NopCollector) RecordRetry(string)                              {}

// WriteTextfile はnode_exporterのtextfileコレクタ形式でメトリクスをファイルに書き出す。
// CLIは短命なプロセスのため、スクレイプではなく終了時の書き出しで公開する。
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
