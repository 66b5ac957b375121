package analytics

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"breathing-analytics/internal/fatigue"
	"breathing-analytics/internal/insights"
	"breathing-analytics/internal/models"
	"breathing-analytics/internal/motion"
	"breathing-analytics/internal/spectral"
)

// maxLoggedDiagnostics сколько диагностик одной записи попадает в лог
const maxLoggedDiagnostics = 5

// Report результат конвейера для одной записи
type Report struct {
	Rate           models.RateEstimate
	FatigueWindows []models.FatigueWindow
	Insights       []models.Insight
	Diagnostics    []models.Diagnostic
}

// Pipeline синхронный конвейер: сигнал движения, частота, окна усталости, рекомендации.
// Не хранит состояния между вызовами и безопасен для параллельного использования.
type Pipeline struct {
	params   Params
	detector *fatigue.Detector
	rules    *insights.Generator
	logger   *slog.Logger
}

// NewPipeline создает конвейер
func NewPipeline(params Params, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		params:   params,
		detector: fatigue.NewDetector(params.fatigueConfig()),
		rules:    insights.NewGenerator(params.insightRules()),
		logger:   logger,
	}
}

// Params параметры конвейера
func (p *Pipeline) Params() Params {
	return p.params
}

// Analyze анализирует запись с параметрами по умолчанию
func Analyze(timeline models.Timeline, sampleRateHz float64) Report {
	return NewPipeline(DefaultParams(), nil).Analyze(timeline, sampleRateHz)
}

// Analyze прогоняет запись через все стадии. Вырожденный вход дает
// нулевую уверенность и пустые списки, но не ошибку.
func (p *Pipeline) Analyze(timeline models.Timeline, sampleRateHz float64) Report {
	sig := motion.Extract(timeline, p.params.motionOptions())

	rate := spectral.DetectRate(sig.Displacement, sampleRateHz, p.params.spectralOptions())
	windows := p.detector.Detect(sig.Values, sig.Reliable, sig.TimestampsMs, sampleRateHz)

	return Report{
		Rate:           rate,
		FatigueWindows: windows,
		Insights:       p.rules.Generate(rate, windows),
		Diagnostics:    sig.Diagnostics,
	}
}

// AnalyzeRecording анализирует документ записи и собирает сводный результат
func (p *Pipeline) AnalyzeRecording(rec models.Recording) models.AnalysisResult {
	sessionID := rec.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	report := p.Analyze(rec.Frames, rec.SampleRateHz)
	p.logDiagnostics(sessionID, report.Diagnostics)

	var duration int64
	if n := len(rec.Frames); n > 1 {
		duration = max(rec.Frames[n-1].TimestampMs-rec.Frames[0].TimestampMs, 0)
	}

	return models.AnalysisResult{
		SessionID:      sessionID,
		AnalyzedAt:     time.Now().UTC(),
		FrameCount:     len(rec.Frames),
		DurationMs:     duration,
		SampleRateHz:   rec.SampleRateHz,
		Rate:           report.Rate,
		FatigueWindows: report.FatigueWindows,
		Insights:       report.Insights,
		Diagnostics:    report.Diagnostics,
	}
}

func (p *Pipeline) logDiagnostics(sessionID string, diags []models.Diagnostic) {
	for i, d := range diags {
		if i == maxLoggedDiagnostics {
			p.logger.Warn("timeline diagnostics truncated",
				"session_id", sessionID,
				"total", len(diags))
			return
		}
		p.logger.Warn("timeline diagnostic",
			"session_id", sessionID,
			"kind", d.Kind,
			"frame_index", d.FrameIndex,
			"timestamp_ms", d.TimestampMs,
			"detail", d.Detail)
	}
}
