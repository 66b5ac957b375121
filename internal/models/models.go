package models

import (
	"strings"
	"time"
)

// Имена опорных точек корпуса, которые нужны экстрактору движения
const (
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
)

// TorsoLandmarks закрытый набор точек, по которым считается центр корпуса
var TorsoLandmarks = [4]string{LeftShoulder, RightShoulder, LeftHip, RightHip}

// NormalizeLandmarkName приводит имя точки к виду left_shoulder
func NormalizeLandmarkName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return strings.NewReplacer("-", "_", " ", "_").Replace(name)
}

// Landmark 3D-позиция анатомической точки от внешнего pose-детектора
type Landmark struct {
	X          float64 `json:"x" msgpack:"x"`
	Y          float64 `json:"y" msgpack:"y"`
	Z          float64 `json:"z" msgpack:"z"`
	Visibility float64 `json:"visibility" msgpack:"visibility"`
}

// Frame один кадр записи
type Frame struct {
	Index       int                 `json:"index"`
	TimestampMs int64               `json:"timestamp_ms"`
	Landmarks   map[string]Landmark `json:"landmarks"`
}

// Timeline упорядоченная последовательность кадров одной записи
type Timeline []Frame

// Timestamps возвращает метки времени кадров
func (t Timeline) Timestamps() []int64 {
	ts := make([]int64, len(t))
	for i, f := range t {
		ts[i] = f.TimestampMs
	}
	return ts
}

// Метод оценки частоты
const (
	MethodFFTHann          = "fft_hann"
	MethodInsufficientData = "insufficient_data"
)

// RateEstimate оценка частоты дыхания
type RateEstimate struct {
	RateBPM     float64 `json:"rate_bpm,omitempty" msgpack:"rate_bpm"`
	Confidence  float64 `json:"confidence" msgpack:"confidence"`
	FrequencyHz float64 `json:"frequency_hz,omitempty" msgpack:"frequency_hz"`
	DepthScore  float64 `json:"depth_score" msgpack:"depth_score"`
	Method      string  `json:"method" msgpack:"method"`
}

// HasRate сообщает, удалось ли оценить частоту
func (r RateEstimate) HasRate() bool {
	return r.RateBPM > 0 && r.Method != MethodInsufficientData
}

// FatigueWindow интервал поверхностного или отсутствующего дыхания
type FatigueWindow struct {
	StartMs  int64   `json:"start_ms" msgpack:"start_ms"`
	EndMs    int64   `json:"end_ms" msgpack:"end_ms"`
	Severity float64 `json:"severity" msgpack:"severity"`
}

// DurationMs длительность окна
func (w FatigueWindow) DurationMs() int64 {
	return w.EndMs - w.StartMs
}

// Severity уровень важности рекомендации
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Insight рекомендация для пользователя
type Insight struct {
	Title          string   `json:"title" msgpack:"title"`
	Description    string   `json:"description" msgpack:"description"`
	Severity       Severity `json:"severity" msgpack:"severity"`
	Recommendation string   `json:"recommendation" msgpack:"recommendation"`
	TimestampMs    *int64   `json:"timestamp_ms,omitempty" msgpack:"timestamp_ms,omitempty"`
}

// Diagnostic нефатальное замечание о качестве входных данных
type Diagnostic struct {
	Kind        string `json:"kind" msgpack:"kind"`
	FrameIndex  int    `json:"frame_index" msgpack:"frame_index"`
	TimestampMs int64  `json:"timestamp_ms" msgpack:"timestamp_ms"`
	Detail      string `json:"detail" msgpack:"detail"`
}

// Виды диагностик
const (
	DiagnosticNonMonotonic     = "non_monotonic_timestamp"
	DiagnosticMissingLandmarks = "missing_landmarks"
	DiagnosticNoLandmarks      = "no_landmarks"
)

// AnalysisResult результат анализа одной записи
type AnalysisResult struct {
	SessionID      string          `json:"session_id" msgpack:"session_id"`
	AnalyzedAt     time.Time       `json:"analyzed_at" msgpack:"analyzed_at"`
	FrameCount     int             `json:"frame_count" msgpack:"frame_count"`
	DurationMs     int64           `json:"duration_ms" msgpack:"duration_ms"`
	SampleRateHz   float64         `json:"sample_rate_hz" msgpack:"sample_rate_hz"`
	Rate           RateEstimate    `json:"rate_estimate" msgpack:"rate_estimate"`
	FatigueWindows []FatigueWindow `json:"fatigue_windows" msgpack:"fatigue_windows"`
	Insights       []Insight       `json:"insights" msgpack:"insights"`
	Diagnostics    []Diagnostic    `json:"diagnostics,omitempty" msgpack:"diagnostics,omitempty"`
}

// Recording документ записи, который присылает источник landmark-ов
type Recording struct {
	SessionID    string   `json:"session_id"`
	SampleRateHz float64  `json:"sample_rate_hz"`
	Frames       Timeline `json:"frames"`
}
