// Package metrics собирает метрики релея в формате Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "foodrelay"

type Metrics struct {
	registry *prometheus.Registry

	chatRequests    *prometheus.CounterVec
	upstreamStatus  *prometheus.CounterVec
	streamBytes     prometheus.Counter
	skippedChunks   prometheus.Counter
	storedHistories prometheus.Gauge
}

// New регистрирует метрики в собственном реестре, чтобы тесты не конфликтовали
// с глобальным prometheus.DefaultRegisterer.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by mode (stream|json) and outcome.",
		}, []string{"mode", "outcome"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_responses_total",
			Help:      "Upstream responses by HTTP status code.",
		}, []string{"code"}),
		streamBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_relayed_total",
			Help:      "Bytes of upstream event stream relayed to clients.",
		}),
		skippedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_fragments_skipped_total",
			Help:      "Stream data lines that could not be decoded.",
		}),
		storedHistories: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations_active",
			Help:      "Conversations currently held by the store.",
		}),
	}
	reg.MustRegister(
		m.chatRequests,
		m.upstreamStatus,
		m.streamBytes,
		m.skippedChunks,
		m.storedHistories,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ChatRequest(stream bool, outcome string) {
	if m == nil {
		return
	}
	mode := "json"
	if stream {
		mode = "stream"
	}
	m.chatRequests.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) UpstreamStatus(code int) {
	if m == nil {
		return
	}
	m.upstreamStatus.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Metrics) StreamBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.streamBytes.Add(float64(n))
}

func (m *Metrics) SkippedFragments(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skippedChunks.Add(float64(n))
}

func (m *Metrics) ActiveConversations(n int) {
	if m == nil {
		return
	}
	m.storedHistories.Set(float64(n))
}

// Handler отдаёт /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
