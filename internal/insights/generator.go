package insights

import (
	"fmt"

	"breathing-analytics/internal/models"
)

// Rules пороги правил. Значения ориентировочные, не клинические.
type Rules struct {
	MinConfidence      float64
	SlowBelowBPM       float64
	ElevatedAboveBPM   float64
	HighRateAboveBPM   float64 // учащенное дыхание выше этой частоты получает высокую важность
	ShallowDepthBelow  float64
	DeepDepthAbove     float64
	HighSeverityFrom   float64
	MediumSeverityFrom float64
}

// DefaultRules правила по умолчанию
func DefaultRules() Rules {
	return Rules{
		MinConfidence:      0.5,
		SlowBelowBPM:       12,
		ElevatedAboveBPM:   20,
		HighRateAboveBPM:   26,
		ShallowDepthBelow:  0.3,
		DeepDepthAbove:     0.7,
		HighSeverityFrom:   0.7,
		MediumSeverityFrom: 0.4,
	}
}

// Generator строит рекомендации по результатам анализа
type Generator struct {
	rules Rules
}

// NewGenerator создает генератор
func NewGenerator(rules Rules) *Generator {
	return &Generator{rules: rules}
}

// Generate порядок: частота, глубина, затем окна усталости по времени.
// При уверенности ниже порога рекомендации о частоте и глубине не выдаются.
func (g *Generator) Generate(rate models.RateEstimate, windows []models.FatigueWindow) []models.Insight {
	out := []models.Insight{}

	if rate.HasRate() && rate.Confidence >= g.rules.MinConfidence {
		out = append(out, g.rateInsight(rate), g.depthInsight(rate))
	}

	for _, w := range windows {
		out = append(out, g.windowInsight(w))
	}

	return out
}

func (g *Generator) rateInsight(rate models.RateEstimate) models.Insight {
	bpm := rate.RateBPM
	switch {
	case bpm > g.rules.ElevatedAboveBPM:
		severity := models.SeverityMedium
		if bpm > g.rules.HighRateAboveBPM {
			severity = models.SeverityHigh
		}
		return models.Insight{
			Title:          "Elevated breathing rate",
			Description:    fmt.Sprintf("Your breathing averaged %.1f breaths per minute, above the %.0f bpm resting range.", bpm, g.rules.ElevatedAboveBPM),
			Severity:       severity,
			Recommendation: "Slow down and try longer exhales, for example inhale for 4 counts and exhale for 6.",
		}
	case bpm < g.rules.SlowBelowBPM:
		return models.Insight{
			Title:          "Slow breathing rate",
			Description:    fmt.Sprintf("Your breathing averaged %.1f breaths per minute, below the usual %.0f bpm.", bpm, g.rules.SlowBelowBPM),
			Severity:       models.SeverityLow,
			Recommendation: "Slow, controlled breathing is fine at rest; during effort make sure you are not holding your breath.",
		}
	default:
		return models.Insight{
			Title:          "Steady breathing rate",
			Description:    fmt.Sprintf("Your breathing averaged %.1f breaths per minute, within the %.0f-%.0f bpm range.", bpm, g.rules.SlowBelowBPM, g.rules.ElevatedAboveBPM),
			Severity:       models.SeverityLow,
			Recommendation: "Keep this rhythm and stay relaxed through the shoulders.",
		}
	}
}

func (g *Generator) depthInsight(rate models.RateEstimate) models.Insight {
	pct := rate.DepthScore * 100
	switch {
	case rate.DepthScore < g.rules.ShallowDepthBelow:
		return models.Insight{
			Title:          "Shallow breathing",
			Description:    fmt.Sprintf("Breathing depth scored %.0f%%, chest and shoulder movement was small.", pct),
			Severity:       models.SeverityMedium,
			Recommendation: "Breathe into your belly and let the ribs expand sideways on each inhale.",
		}
	case rate.DepthScore > g.rules.DeepDepthAbove:
		return models.Insight{
			Title:          "Deep breathing",
			Description:    fmt.Sprintf("Breathing depth scored %.0f%%, with full torso movement.", pct),
			Severity:       models.SeverityLow,
			Recommendation: "Good depth. Avoid lifting the shoulders so the effort stays in the diaphragm.",
		}
	default:
		return models.Insight{
			Title:          "Moderate breathing depth",
			Description:    fmt.Sprintf("Breathing depth scored %.0f%%.", pct),
			Severity:       models.SeverityLow,
			Recommendation: "Try a few slower, fuller breaths to open up the chest.",
		}
	}
}

func (g *Generator) windowInsight(w models.FatigueWindow) models.Insight {
	severity := models.SeverityLow
	switch {
	case w.Severity >= g.rules.HighSeverityFrom:
		severity = models.SeverityHigh
	case w.Severity >= g.rules.MediumSeverityFrom:
		severity = models.SeverityMedium
	}

	start := w.StartMs
	return models.Insight{
		Title: "Breathing pause detected",
		Description: fmt.Sprintf("Breathing became shallow or stopped at %s for %.1f seconds.",
			FormatClock(w.StartMs), float64(w.DurationMs())/1000),
		Severity:       severity,
		Recommendation: "Keep breathing through the effort; exhale on the hardest part of each movement.",
		TimestampMs:    &start,
	}
}

// FormatClock форматирует миллисекунды как MM:SS
func FormatClock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
