package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/annel0/eggscan/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Исходы обработки региона
const (
	OutcomeOK     = "ok"
	OutcomeAbsent = "absent"
	OutcomeError  = "error"
)

// Стадии, на которых чанк может оказаться нечитаемым
const (
	StageRead   = "read"
	StageDecode = "decode"
)

// ScanMetrics Prometheus-метрики одного запуска сканера.
// Все методы безопасны для nil-получателя, поэтому сканер работает и без метрик.
type ScanMetrics struct {
	regions        *prometheus.CounterVec
	chunks         prometheus.Counter
	chunkErrors    *prometheus.CounterVec
	hits           *prometheus.CounterVec
	regionDuration prometheus.Histogram
	inflight       prometheus.Gauge
}

// NewScanMetrics создаёт метрики и регистрирует их в reg.
// Отдельный регистр вместо глобального позволяет запускать несколько сканов в одном процессе.
func NewScanMetrics(reg prometheus.Registerer) *ScanMetrics {
	m := &ScanMetrics{
		regions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eggscan",
			Name:      "regions_total",
			Help:      "Обработанные регионы по исходу.",
		}, []string{"outcome"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eggscan",
			Name:      "chunks_scanned_total",
			Help:      "Успешно декодированные и просмотренные чанки.",
		}),
		chunkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eggscan",
			Name:      "chunk_errors_total",
			Help:      "Чанки, которые не удалось прочитать или декодировать.",
		}, []string{"stage"}),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eggscan",
			Name:      "hits_total",
			Help:      "Найденные блоки по имени.",
		}, []string{"block"}),
		regionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eggscan",
			Name:      "region_duration_seconds",
			Help:      "Время обработки одного региона.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eggscan",
			Name:      "regions_inflight",
			Help:      "Регионы, обрабатываемые прямо сейчас.",
		}),
	}

	reg.MustRegister(m.regions, m.chunks, m.chunkErrors, m.hits, m.regionDuration, m.inflight)
	return m
}

// RegionStarted отмечает начало обработки региона
func (m *ScanMetrics) RegionStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

// RegionFinished отмечает завершение региона с указанным исходом
func (m *ScanMetrics) RegionFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	m.regions.WithLabelValues(outcome).Inc()
	m.regionDuration.Observe(elapsed.Seconds())
}

// ChunkScanned отмечает просмотренный чанк
func (m *ScanMetrics) ChunkScanned() {
	if m == nil {
		return
	}
	m.chunks.Inc()
}

// ChunkError отмечает ошибку чанка на стадии stage
func (m *ScanMetrics) ChunkError(stage string) {
	if m == nil {
		return
	}
	m.chunkErrors.WithLabelValues(stage).Inc()
}

// Hit отмечает найденный блок
func (m *ScanMetrics) Hit(block string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(block).Inc()
}

// StartHTTP запускает эндпоинт /metrics на addr (например, ":2112").
// Метод неблокирующий; вернувшийся сервер нужно закрыть по завершении скана.
func StartHTTP(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info("📈 Prometheus /metrics доступен по адресу %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
	return srv
}
