// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 生成結果のラベル値
const (
	GenerationSuccess     = "success"
	GenerationFailed      = "failed"
	GenerationRateLimited = "rate_limited"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、リアルタイムハブ、ワーカーから利用する。
type MetricsCollector interface {
	RecordGeneration(status string)
	RecordTokens(prompt, completion int)
	RecordLLMLatency(duration time.Duration)
	RecordTranslation(success bool)
	RecordRoomCreated()
	RecordRoomJoin()
	RecordRoomsCleaned(count int)
	AddRealtimeConnections(delta int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	generations         *prometheus.CounterVec
	tokens              *prometheus.CounterVec
	llmLatency          prometheus.Histogram
	translations        *prometheus.CounterVec
	roomsCreated        prometheus.Counter
	roomJoins           prometheus.Counter
	roomsCleaned        prometheus.Counter
	realtimeConnections prometheus.Gauge
	httpStatus          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizroom_generations_total",
			Help: "結果別のクイズ生成リクエスト数",
		}, []string{"status"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizroom_llm_tokens_total",
			Help: "種別ごとのLLMトークン消費量",
		}, []string{"kind"}),
		llmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quizroom_llm_latency_seconds",
			Help:    "LLM呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		}),
		translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizroom_translations_total",
			Help: "結果別の翻訳API呼び出し数",
		}, []string{"status"}),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quizroom_rooms_created_total",
			Help: "作成されたルームの合計数",
		}),
		roomJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quizroom_room_joins_total",
			Help: "ルームへの新規参加の合計数",
		}),
		roomsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quizroom_rooms_cleaned_total",
			Help: "期限切れで削除されたルームの合計数",
		}),
		realtimeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quizroom_realtime_connections",
			Help: "現在接続中のリアルタイム接続数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizroom_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.generations,
		c.tokens,
		c.llmLatency,
		c.translations,
		c.roomsCreated,
		c.roomJoins,
		c.roomsCleaned,
		c.realtimeConnections,
		c.httpStatus,
	)

	return c
}

// RecordGeneration はクイズ生成の結果を記録する。
func (c *Collector) RecordGeneration(status string) {
	c.generations.WithLabelValues(status).Inc()
}

// RecordTokens はLLMのトークン消費量を記録する。
func (c *Collector) RecordTokens(prompt, completion int) {
	c.tokens.WithLabelValues("prompt").Add(float64(prompt))
	c.tokens.WithLabelValues("completion").Add(float64(completion))
}

// RecordLLMLatency はLLM呼び出しのレイテンシを記録する。
func (c *Collector) RecordLLMLatency(duration time.Duration) {
	c.llmLatency.Observe(duration.Seconds())
}

// RecordTranslation は翻訳API呼び出しの結果を記録する。
func (c *Collector) RecordTranslation(success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	c.translations.WithLabelValues(status).Inc()
}

// RecordRoomCreated はルーム作成を記録する。
func (c *Collector) RecordRoomCreated() {
	c.roomsCreated.Inc()
}

// RecordRoomJoin はルームへの新規参加を記録する。
func (c *Collector) RecordRoomJoin() {
	c.roomJoins.Inc()
}

// RecordRoomsCleaned は削除されたルーム数を記録する。
func (c *Collector) RecordRoomsCleaned(count int) {
	c.roomsCleaned.Add(float64(count))
}

// AddRealtimeConnections は接続数ゲージを増減する。
func (c *Collector) AddRealtimeConnections(delta int) {
	c.realtimeConnections.Add(float64(delta))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
// メトリクスを必要としないテストやツールで使用する。
type NopCollector struct{}

func (NopCollector) RecordGeneration(string)           {}
func (NopCollector) RecordTokens(int, int)             {}
func (NopCollector) RecordLLMLatency(time.Duration)    {}
func (NopCollector) RecordTranslation(bool)            {}
func (NopCollector) RecordRoomCreated()                {}
func (NopCollector) RecordRoomJoin()                   {}
func (NopCollector) RecordRoomsCleaned(int)            {}
func (NopCollector) AddRealtimeConnections(int)        {}
func (NopCollector) RecordHTTPStatus(int)              {}

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

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
