package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
)

var streamStates = []entity.StreamState{
	entity.StreamIdle,
	entity.StreamConnecting,
	entity.StreamOpen,
	entity.StreamClosed,
	entity.StreamErrored,
}

// Metrics счётчики живого потока и их экспорт в Prometheus
type Metrics struct {
	FramesSent       atomic.Uint64
	FrameBytes       atomic.Uint64
	FramesSkipped    atomic.Uint64
	FramesDropped    atomic.Uint64
	MessagesReceived atomic.Uint64
	MessagesDropped  atomic.Uint64
	Sessions         atomic.Uint64

	mu       sync.Mutex
	state    entity.StreamState
	messages map[entity.MessageKind]uint64

	registry *prometheus.Registry
}

// New создаёт метрики со своим реестром
func New() *Metrics {
	m := &Metrics{
		state:    entity.StreamIdle,
		messages: make(map[entity.MessageKind]uint64),
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	counters := []struct {
		name, help string
		value      *atomic.Uint64
	}{
		{"safeeye_stream_frames_sent_total", "Total frames sent to the detector", &m.FramesSent},
		{"safeeye_stream_frame_bytes_total", "Total JPEG bytes sent to the detector", &m.FrameBytes},
		{"safeeye_stream_frames_skipped_total", "Ticks skipped because capture was not ready", &m.FramesSkipped},
		{"safeeye_stream_frames_dropped_total", "Frames dropped because the socket was not open", &m.FramesDropped},
		{"safeeye_stream_messages_received_total", "Detector messages applied", &m.MessagesReceived},
		{"safeeye_stream_messages_dropped_total", "Detector messages dropped as malformed or unknown", &m.MessagesDropped},
		{"safeeye_stream_sessions_total", "Detector sessions started", &m.Sessions},
	}
	for _, c := range counters {
		value := c.value
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(value.Load()) },
		))
	}

	for _, state := range streamStates {
		state := state
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "safeeye_stream_state",
				Help:        "Current detector session state (1 for the active state)",
				ConstLabels: prometheus.Labels{"state": string(state)},
			},
			func() float64 {
				if m.State() == state {
					return 1
				}
				return 0
			},
		))
	}

	for _, kind := range []entity.MessageKind{entity.KindDetections, entity.KindStatus, entity.KindConnectionEstablished} {
		kind := kind
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name:        "safeeye_stream_messages_by_kind_total",
				Help:        "Detector messages applied, by message type",
				ConstLabels: prometheus.Labels{"kind": string(kind)},
			},
			func() float64 { return float64(m.MessagesOf(kind)) },
		))
	}
}

func (m *Metrics) FrameSent(bytes int) {
	m.FramesSent.Add(1)
	m.FrameBytes.Add(uint64(bytes))
}

func (m *Metrics) FrameSkipped() { m.FramesSkipped.Add(1) }
func (m *Metrics) FrameDropped() { m.FramesDropped.Add(1) }
func (m *Metrics) MessageDropped() { m.MessagesDropped.Add(1) }

func (m *Metrics) MessageReceived(kind entity.MessageKind) {
	m.MessagesReceived.Add(1)
	m.mu.Lock()
	m.messages[kind]++
	m.mu.Unlock()
}

// MessagesOf возвращает число принятых сообщений данного типа
func (m *Metrics) MessagesOf(kind entity.MessageKind) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[kind]
}

func (m *Metrics) StateChanged(state entity.StreamState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	if state == entity.StreamConnecting {
		m.Sessions.Add(1)
	}
}

func (m *Metrics) State() entity.StreamState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handler возвращает HTTP-обработчик Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ port.StreamMetrics = (*Metrics)(nil)
