// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// セッション検証の結果ラベル
const (
	VerifyOK              = "ok"
	VerifyNoCredential    = "no_credential"
	VerifyUnauthenticated = "unauthenticated"
	VerifyTransport       = "transport"
	VerifyMalformed       = "malformed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ガード、Verifier、IDストアから利用する。
type MetricsCollector interface {
	RecordVerify(result string, duration time.Duration)
	RecordGuardDecision(class string, decision string)
	RecordLogin(outcome string)
	RecordIdentityFetch(outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	verifyTotal   *prometheus.CounterVec
	verifyLatency prometheus.Histogram
	guardDecision *prometheus.CounterVec
	loginTotal    *prometheus.CounterVec
	identityFetch *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "instacard_session_verify_total",
			Help: "セッション検証の結果別の合計数",
		}, []string{"result"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "instacard_session_verify_latency_seconds",
			Help:    "セッション検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		guardDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "instacard_guard_decisions_total",
			Help: "ルートガードの判定数",
		}, []string{"class", "decision"}),
		loginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "instacard_login_total",
			Help: "ログイン試行の結果別の合計数",
		}, []string{"outcome"}),
		identityFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "instacard_identity_fetch_total",
			Help: "ユーザー情報取得の結果別の合計数",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.verifyTotal,
		c.verifyLatency,
		c.guardDecision,
		c.loginTotal,
		c.identityFetch,
	)

	return c
}

// RecordVerify はセッション検証の結果とレイテンシを記録する。
// 資格情報がなくI/Oを行わなかった場合はレイテンシを記録しない。
func (c *Collector) RecordVerify(result string, duration time.Duration) {
	c.verifyTotal.WithLabelValues(result).Inc()
	if result != VerifyNoCredential {
		c.verifyLatency.Observe(duration.Seconds())
	}
}

// RecordGuardDecision はルートガードの判定を記録する。
func (c *Collector) RecordGuardDecision(class string, decision string) {
	c.guardDecision.WithLabelValues(class, decision).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.loginTotal.WithLabelValues(outcome).Inc()
}

// RecordIdentityFetch はユーザー情報取得の結果を記録する。
func (c *Collector) RecordIdentityFetch(outcome string) {
	c.identityFetch.WithLabelValues(outcome).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordVerify(string, time.Duration) {}
func (Nop) RecordGuardDecision(string, string) {}
func (Nop) RecordLogin(string)                 {}
func (Nop) RecordIdentityFetch(string)         {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
