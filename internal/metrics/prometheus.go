package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"breathing-analytics/internal/models"
)

var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration продолжительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RecordingsAnalyzed проанализированные записи
	RecordingsAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordings_analyzed_total",
			Help: "Total number of analyzed recordings by rate estimation method",
		},
		[]string{"method"},
	)

	// AnalysisLatency задержка анализа
	AnalysisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_latency_seconds",
			Help:    "Analysis processing latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// FramesAnalyzed кадры в проанализированных записях
	FramesAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frames_analyzed_total",
			Help: "Total number of frames processed",
		},
	)

	// BreathingRate распределение оценок частоты дыхания
	BreathingRate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "breathing_rate_bpm",
			Help:    "Estimated breathing rate of analyzed recordings",
			Buckets: []float64{6, 9, 12, 15, 18, 21, 24, 27, 30},
		},
	)

	// RateConfidence распределение уверенности оценки
	RateConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "breathing_rate_confidence",
			Help:    "Confidence of breathing rate estimates",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	// FatigueWindowsDetected обнаруженные окна усталости
	FatigueWindowsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fatigue_windows_detected_total",
			Help: "Total number of fatigue windows detected",
		},
	)

	// InsightsGenerated сгенерированные рекомендации
	InsightsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insights_generated_total",
			Help: "Total number of insights generated",
		},
		[]string{"severity"},
	)

	// TimelineDiagnostics нарушения контракта источником landmark-ов
	TimelineDiagnostics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeline_diagnostics_total",
			Help: "Total number of timeline diagnostics by kind",
		},
		[]string{"kind"},
	)

	// QueueSize размер очереди обработки
	QueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "processing_queue_size",
			Help: "Current size of the processing queue",
		},
	)

	// RedisOperations операции с Redis
	RedisOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	// PublishOperations публикации в MQTT
	PublishOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_publish_total",
			Help: "Total number of MQTT publish attempts",
		},
		[]string{"status"},
	)
)

// ObserveAnalysis обновляет метрики по результату анализа
func ObserveAnalysis(result models.AnalysisResult, elapsed time.Duration) {
	AnalysisLatency.Observe(elapsed.Seconds())
	RecordingsAnalyzed.WithLabelValues(result.Rate.Method).Inc()
	FramesAnalyzed.Add(float64(result.FrameCount))
	RateConfidence.Observe(result.Rate.Confidence)
	if result.Rate.HasRate() {
		BreathingRate.Observe(result.Rate.RateBPM)
	}
	FatigueWindowsDetected.Add(float64(len(result.FatigueWindows)))
	for _, in := range result.Insights {
		InsightsGenerated.WithLabelValues(string(in.Severity)).Inc()
	}
	for _, d := range result.Diagnostics {
		TimelineDiagnostics.WithLabelValues(d.Kind).Inc()
	}
}

// OperationStatus метка статуса операции по ошибке
func OperationStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
