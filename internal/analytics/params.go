package analytics

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"breathing-analytics/internal/fatigue"
	"breathing-analytics/internal/insights"
	"breathing-analytics/internal/motion"
	"breathing-analytics/internal/spectral"
)

// Params настраиваемые пороги конвейера анализа.
// Значения по умолчанию эвристические, их можно переопределить YAML-файлом.
type Params struct {
	SmoothingWindow int     `yaml:"smoothing_window"`
	MinVisibility   float64 `yaml:"min_visibility"`

	MinDurationSeconds float64 `yaml:"min_duration_seconds"`
	BandLowHz          float64 `yaml:"band_low_hz"`
	BandHighHz         float64 `yaml:"band_high_hz"`
	DepthReference     float64 `yaml:"depth_reference"`

	ThresholdFraction float64 `yaml:"threshold_fraction"`
	MergeToleranceMs  int64   `yaml:"merge_tolerance_ms"`
	MinWindowMs       int64   `yaml:"min_window_ms"`
	EnvelopeSeconds   float64 `yaml:"envelope_seconds"`

	MinInsightConfidence float64 `yaml:"min_insight_confidence"`
	SlowBelowBPM         float64 `yaml:"slow_below_bpm"`
	ElevatedAboveBPM     float64 `yaml:"elevated_above_bpm"`
	HighRateAboveBPM     float64 `yaml:"high_rate_above_bpm"`
	ShallowDepthBelow    float64 `yaml:"shallow_depth_below"`
	DeepDepthAbove       float64 `yaml:"deep_depth_above"`

	// Границы важности окна утомления: high от HighSeverityFrom, medium от MediumSeverityFrom
	HighSeverityFrom   float64 `yaml:"high_severity_from"`
	MediumSeverityFrom float64 `yaml:"medium_severity_from"`
}

// DefaultParams параметры по умолчанию
func DefaultParams() Params {
	m := motion.DefaultOptions()
	s := spectral.DefaultOptions()
	f := fatigue.DefaultConfig()
	r := insights.DefaultRules()

	return Params{
		SmoothingWindow:      m.SmoothingWindow,
		MinVisibility:        m.MinVisibility,
		MinDurationSeconds:   s.MinDurationSeconds,
		BandLowHz:            s.BandLowHz,
		BandHighHz:           s.BandHighHz,
		DepthReference:       s.DepthReference,
		ThresholdFraction:    f.ThresholdFraction,
		MergeToleranceMs:     f.MergeToleranceMs,
		MinWindowMs:          f.MinDurationMs,
		EnvelopeSeconds:      f.EnvelopeSeconds,
		MinInsightConfidence: r.MinConfidence,
		SlowBelowBPM:         r.SlowBelowBPM,
		ElevatedAboveBPM:     r.ElevatedAboveBPM,
		HighRateAboveBPM:     r.HighRateAboveBPM,
		ShallowDepthBelow:    r.ShallowDepthBelow,
		DeepDepthAbove:       r.DeepDepthAbove,
		HighSeverityFrom:     r.HighSeverityFrom,
		MediumSeverityFrom:   r.MediumSeverityFrom,
	}
}

// LoadParams читает параметры из YAML поверх значений по умолчанию
func LoadParams(path string) (Params, error) {
	params := DefaultParams()

	data, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("failed to read params file: %w", err)
	}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return params, fmt.Errorf("failed to parse params file: %w", err)
	}
	if err := params.Validate(); err != nil {
		return params, fmt.Errorf("invalid params in %s: %w", path, err)
	}

	return params, nil
}

// Validate проверяет согласованность параметров
func (p Params) Validate() error {
	var errs []error

	if p.SmoothingWindow < 1 {
		errs = append(errs, errors.New("smoothing_window must be >= 1"))
	}
	if p.MinVisibility < 0 || p.MinVisibility > 1 {
		errs = append(errs, errors.New("min_visibility must be in [0,1]"))
	}
	if p.MinDurationSeconds <= 0 {
		errs = append(errs, errors.New("min_duration_seconds must be > 0"))
	}
	if p.BandLowHz <= 0 || p.BandHighHz <= p.BandLowHz {
		errs = append(errs, errors.New("breathing band must satisfy 0 < band_low_hz < band_high_hz"))
	}
	if p.DepthReference <= 0 {
		errs = append(errs, errors.New("depth_reference must be > 0"))
	}
	if p.ThresholdFraction <= 0 || p.ThresholdFraction >= 1 {
		errs = append(errs, errors.New("threshold_fraction must be in (0,1)"))
	}
	if p.MergeToleranceMs < 0 || p.MinWindowMs < 0 {
		errs = append(errs, errors.New("merge_tolerance_ms and min_window_ms must be >= 0"))
	}
	if p.EnvelopeSeconds < 0 {
		errs = append(errs, errors.New("envelope_seconds must be >= 0"))
	}
	if p.EnvelopeSeconds*1000 > float64(p.MinWindowMs) {
		errs = append(errs, errors.New("envelope_seconds must not exceed min_window_ms"))
	}
	if p.MinInsightConfidence < 0 || p.MinInsightConfidence > 1 {
		errs = append(errs, errors.New("min_insight_confidence must be in [0,1]"))
	}
	if p.SlowBelowBPM >= p.ElevatedAboveBPM {
		errs = append(errs, errors.New("slow_below_bpm must be below elevated_above_bpm"))
	}
	if p.HighRateAboveBPM < p.ElevatedAboveBPM {
		errs = append(errs, errors.New("high_rate_above_bpm must be >= elevated_above_bpm"))
	}
	if p.ShallowDepthBelow < 0 || p.DeepDepthAbove > 1 || p.ShallowDepthBelow > p.DeepDepthAbove {
		errs = append(errs, errors.New("depth thresholds must satisfy 0 <= shallow_depth_below <= deep_depth_above <= 1"))
	}
	if p.MediumSeverityFrom < 0 || p.HighSeverityFrom > 1 || p.MediumSeverityFrom > p.HighSeverityFrom {
		errs = append(errs, errors.New("severity bands must satisfy 0 <= medium_severity_from <= high_severity_from <= 1"))
	}

	return errors.Join(errs...)
}

func (p Params) motionOptions() motion.Options {
	return motion.Options{
		SmoothingWindow: p.SmoothingWindow,
		MinVisibility:   p.MinVisibility,
	}
}

func (p Params) spectralOptions() spectral.Options {
	return spectral.Options{
		MinDurationSeconds: p.MinDurationSeconds,
		BandLowHz:          p.BandLowHz,
		BandHighHz:         p.BandHighHz,
		DepthReference:     p.DepthReference,
	}
}

func (p Params) fatigueConfig() fatigue.Config {
	return fatigue.Config{
		ThresholdFraction: p.ThresholdFraction,
		MergeToleranceMs:  p.MergeToleranceMs,
		MinDurationMs:     p.MinWindowMs,
		EnvelopeSeconds:   p.EnvelopeSeconds,
	}
}

func (p Params) insightRules() insights.Rules {
	return insights.Rules{
		MinConfidence:      p.MinInsightConfidence,
		SlowBelowBPM:       p.SlowBelowBPM,
		ElevatedAboveBPM:   p.ElevatedAboveBPM,
		HighRateAboveBPM:   p.HighRateAboveBPM,
		ShallowDepthBelow:  p.ShallowDepthBelow,
		DeepDepthAbove:     p.DeepDepthAbove,
		HighSeverityFrom:   p.HighSeverityFrom,
		MediumSeverityFrom: p.MediumSeverityFrom,
	}
}
