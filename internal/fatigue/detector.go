package fatigue

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"breathing-analytics/internal/models"
)

// Config параметры детектора окон усталости.
// Значения по умолчанию эвристические и подлежат калибровке.
type Config struct {
	// ThresholdFraction доля среднего модуля амплитуды, ниже которой дыхание считается поверхностным
	ThresholdFraction float64
	// MergeToleranceMs окна с меньшим промежутком объединяются
	MergeToleranceMs int64
	// MinDurationMs более короткие окна отбрасываются
	MinDurationMs int64
	// EnvelopeSeconds ширина окна огибающей амплитуды
	EnvelopeSeconds float64
}

// DefaultConfig конфигурация по умолчанию
func DefaultConfig() Config {
	return Config{
		ThresholdFraction: 0.3,
		MergeToleranceMs:  2000,
		MinDurationMs:     1000,
		EnvelopeSeconds:   1.0,
	}
}

// Detector ищет участки устойчиво низкой амплитуды сигнала движения
type Detector struct {
	config Config
}

// NewDetector создает детектор
func NewDetector(cfg Config) *Detector {
	return &Detector{config: cfg}
}

// span интервал сигнала в отсчетах, границы включительно
type span struct {
	from, to int
}

// Threshold динамический порог для сигнала
func (d *Detector) Threshold(signal []float64) float64 {
	return d.threshold(signal, nil)
}

// threshold считается только по достоверным отсчетам
func (d *Detector) threshold(signal []float64, reliable []bool) float64 {
	sum, count := 0.0, 0
	for i, v := range signal {
		if !isReliable(reliable, i) {
			continue
		}
		sum += math.Abs(v)
		count++
	}
	if count == 0 {
		return 0
	}
	return d.config.ThresholdFraction * sum / float64(count)
}

// Detect возвращает окна усталости, отсортированные по началу и не пересекающиеся.
// reliable отмечает отсчеты, посчитанные по кадрам с landmark-ами; nil значит все.
// Недостоверные отсчеты в окна не попадают: пропуски данных не являются паузой дыхания.
// timestampsMs выровнены с signal; при несовпадении длины время восстанавливается из sampleRateHz.
func (d *Detector) Detect(signal []float64, reliable []bool, timestampsMs []int64, sampleRateHz float64) []models.FatigueWindow {
	windows := []models.FatigueWindow{}
	n := len(signal)
	if n == 0 {
		return windows
	}
	if len(reliable) != n {
		reliable = nil
	}

	threshold := d.threshold(signal, reliable)
	if threshold <= 0 || math.IsNaN(threshold) {
		return windows
	}

	ts, stepMs := timeAxis(timestampsMs, n, sampleRateHz)

	envelope := movingMax(signal, d.envelopeHalfWidth(sampleRateHz, stepMs))
	spans := lowRuns(envelope, reliable, threshold)
	for i := range spans {
		spans[i] = extend(spans[i], signal, reliable, threshold)
	}

	candidates := make([]models.FatigueWindow, 0, len(spans))
	for _, s := range spans {
		end := ts[s.to] + stepMs
		if s.to+1 < n {
			end = ts[s.to+1]
		}
		candidates = append(candidates, models.FatigueWindow{StartMs: ts[s.from], EndMs: end})
	}

	for _, w := range merge(candidates, d.config.MergeToleranceMs) {
		if w.DurationMs() < d.config.MinDurationMs || w.EndMs <= w.StartMs {
			continue
		}
		w.Severity = severity(signal, reliable, ts, w, threshold)
		windows = append(windows, w)
	}

	return windows
}

// envelopeHalfWidth половина окна огибающей в отсчетах. Окно нечетное и
// укладывается как в EnvelopeSeconds, так и в минимальную длительность окна.
func (d *Detector) envelopeHalfWidth(sampleRateHz float64, stepMs int64) int {
	rate := sampleRateHz
	if rate <= 0 && stepMs > 0 {
		rate = 1000 / float64(stepMs)
	}
	if rate <= 0 || d.config.EnvelopeSeconds <= 0 {
		return 0
	}

	width := int(math.Floor(d.config.EnvelopeSeconds*rate + 1e-9))
	if d.config.MinDurationMs > 0 {
		width = min(width, int(math.Floor(float64(d.config.MinDurationMs)*rate/1000+1e-9)))
	}
	if width%2 == 0 {
		width--
	}
	return max(width-1, 0) / 2
}

// timeAxis возвращает метки времени отсчетов и типичный шаг между ними
func timeAxis(timestampsMs []int64, n int, sampleRateHz float64) ([]int64, int64) {
	var step int64
	if sampleRateHz > 0 {
		step = int64(math.Round(1000 / sampleRateHz))
	}

	if len(timestampsMs) == n {
		if step == 0 && n > 1 && timestampsMs[n-1] > timestampsMs[0] {
			step = (timestampsMs[n-1] - timestampsMs[0]) / int64(n-1)
		}
		return timestampsMs, max(step, 1)
	}

	step = max(step, 1)
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = int64(i) * step
	}
	return ts, step
}

// movingMax локальный максимум по центрированному окну ±half
func movingMax(signal []float64, half int) []float64 {
	out := make([]float64, len(signal))
	for i := range signal {
		from := max(0, i-half)
		to := min(len(signal)-1, i+half)
		out[i] = floats.Max(signal[from : to+1])
	}
	return out
}

// lowRuns максимальные непрерывные участки достоверных отсчетов ниже порога
func lowRuns(values []float64, reliable []bool, threshold float64) []span {
	var spans []span
	start := -1
	for i, v := range values {
		if v < threshold && isReliable(reliable, i) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			spans = append(spans, span{start, i - 1})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(values) - 1})
	}
	return spans
}

// extend расширяет участок наружу, пока сам сигнал остается ниже порога
func extend(s span, signal []float64, reliable []bool, threshold float64) span {
	for s.from > 0 && signal[s.from-1] < threshold && isReliable(reliable, s.from-1) {
		s.from--
	}
	for s.to < len(signal)-1 && signal[s.to+1] < threshold && isReliable(reliable, s.to+1) {
		s.to++
	}
	return s
}

func isReliable(reliable []bool, i int) bool {
	return reliable == nil || reliable[i]
}

// merge объединяет окна с промежутком меньше tolerance, пока такие пары есть
func merge(windows []models.FatigueWindow, toleranceMs int64) []models.FatigueWindow {
	if len(windows) == 0 {
		return nil
	}
	sorted := make([]models.FatigueWindow, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartMs < sorted[j].StartMs
	})

	merged := []models.FatigueWindow{sorted[0]}
	for _, w := range sorted[1:] {
		last := &merged[len(merged)-1]
		if w.StartMs-last.EndMs < toleranceMs {
			if w.EndMs > last.EndMs {
				last.EndMs = w.EndMs
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// severity 0 при средней амплитуде на пороге, 1 при нулевой
func severity(signal []float64, reliable []bool, ts []int64, w models.FatigueWindow, threshold float64) float64 {
	sum, count := 0.0, 0
	for i, t := range ts {
		if t < w.StartMs || t >= w.EndMs || !isReliable(reliable, i) {
			continue
		}
		sum += math.Abs(signal[i])
		count++
	}
	if count == 0 {
		return 0
	}
	s := 1 - (sum/float64(count))/threshold
	return math.Min(math.Max(s, 0), 1)
}
