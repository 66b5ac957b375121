package motion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"breathing-analytics/internal/models"
)

// DefaultSmoothingWindow ширина центрированного скользящего среднего
const DefaultSmoothingWindow = 5

// Options параметры экстрактора
type Options struct {
	SmoothingWindow int
	// MinVisibility точки с меньшей видимостью считаются отсутствующими, 0 отключает проверку
	MinVisibility float64
}

// DefaultOptions параметры по умолчанию
func DefaultOptions() Options {
	return Options{SmoothingWindow: DefaultSmoothingWindow}
}

// Signal сигнал движения корпуса, выровненный по кадрам записи
type Signal struct {
	// Values сглаженная величина смещения сглаженного центра корпуса между кадрами
	Values []float64
	// Reliable отсчет посчитан только по кадрам с landmark-ами, включая окна сглаживания
	Reliable []bool
	// Displacement сглаженная проекция центра корпуса на главную ось траектории
	Displacement []float64
	// TimestampsMs метки времени кадров, неубывающие
	TimestampsMs []int64
	ValidFrames  int
	Diagnostics  []models.Diagnostic
}

// Len длина сигнала в отсчетах
func (s Signal) Len() int {
	return len(s.Values)
}

type vec3 [3]float64

// Extract сводит каждый кадр к одному значению движения корпуса и сглаживает результат.
// Пустая запись дает пустой сигнал, отсутствующие точки не являются ошибкой.
func Extract(timeline models.Timeline, opts Options) Signal {
	n := len(timeline)
	sig := Signal{
		Values:       make([]float64, n),
		Reliable:     make([]bool, n),
		Displacement: make([]float64, n),
		TimestampsMs: make([]int64, n),
	}
	if n == 0 {
		return sig
	}

	centroids := make([]vec3, n)
	valid := make([]bool, n)
	var prev vec3
	havePrev := false
	firstMissing, missing := -1, 0

	for i, frame := range timeline {
		ts := frame.TimestampMs
		if i > 0 && ts < sig.TimestampsMs[i-1] {
			sig.Diagnostics = append(sig.Diagnostics, models.Diagnostic{
				Kind:        models.DiagnosticNonMonotonic,
				FrameIndex:  frame.Index,
				TimestampMs: ts,
				Detail:      fmt.Sprintf("timestamp %d ms precedes previous %d ms, clamped", ts, sig.TimestampsMs[i-1]),
			})
			ts = sig.TimestampsMs[i-1]
		}
		sig.TimestampsMs[i] = ts

		c, ok := torsoCentroid(frame, opts.MinVisibility)
		if ok {
			if !havePrev {
				// кадры до первой валидной позиции стоят в ней
				for j := 0; j < i; j++ {
					centroids[j] = c
				}
			}
			prev = c
			havePrev = true
			valid[i] = true
			sig.ValidFrames++
		} else {
			missing++
			if firstMissing < 0 {
				firstMissing = i
			}
			c = prev
		}
		centroids[i] = c
	}

	switch {
	case sig.ValidFrames == 0:
		sig.Diagnostics = append(sig.Diagnostics, models.Diagnostic{
			Kind:        models.DiagnosticNoLandmarks,
			FrameIndex:  timeline[0].Index,
			TimestampMs: sig.TimestampsMs[0],
			Detail:      fmt.Sprintf("none of %d frames carry all torso landmarks", n),
		})
		return sig
	case missing > 0:
		sig.Diagnostics = append(sig.Diagnostics, models.Diagnostic{
			Kind:        models.DiagnosticMissingLandmarks,
			FrameIndex:  timeline[firstMissing].Index,
			TimestampMs: sig.TimestampsMs[firstMissing],
			Detail:      fmt.Sprintf("%d of %d frames miss torso landmarks", missing, n),
		})
	}

	window := opts.SmoothingWindow
	if window <= 0 {
		window = DefaultSmoothingWindow
	}
	smoothed := smoothCentroids(centroids, window)

	// без пары соседних валидных кадров значение движения повторяет предыдущее
	raw := make([]float64, n)
	for i := 1; i < n; i++ {
		if valid[i] && valid[i-1] {
			raw[i] = distance(smoothed[i], smoothed[i-1])
		} else {
			raw[i] = raw[i-1]
		}
	}

	sig.Values = Smooth(raw, window)
	sig.Reliable = reliability(valid, window/2)
	sig.Displacement = principalProjection(smoothed)

	return sig
}

// reliability отсчет достоверен, если все кадры, попавшие в оба сглаживания
// и в разность соседних кадров, валидны
func reliability(valid []bool, half int) []bool {
	n := len(valid)
	// invalidBefore[i] число невалидных кадров в [0, i)
	invalidBefore := make([]int, n+1)
	for i, ok := range valid {
		invalidBefore[i+1] = invalidBefore[i]
		if !ok {
			invalidBefore[i+1]++
		}
	}

	out := make([]bool, n)
	for i := range out {
		from := max(0, i-2*half-1)
		to := min(n, i+2*half+1)
		out[i] = invalidBefore[to]-invalidBefore[from] == 0
	}
	return out
}

// smoothCentroids сглаживает траекторию центра корпуса покоординатно
func smoothCentroids(centroids []vec3, window int) []vec3 {
	n := len(centroids)
	out := make([]vec3, n)
	axis := make([]float64, n)
	for k := 0; k < 3; k++ {
		for i, c := range centroids {
			axis[i] = c[k]
		}
		for i, v := range Smooth(axis, window) {
			out[i][k] = v
		}
	}
	return out
}

// Smooth центрированное скользящее среднее. У краев окно симметрично сужается,
// поэтому результат не выходит за min/max входа.
func Smooth(values []float64, window int) []float64 {
	n := len(values)
	out := make([]float64, n)
	half := window / 2
	for i := range values {
		h := min(half, i, n-1-i)
		sum := 0.0
		for j := i - h; j <= i+h; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(2*h+1)
	}
	return out
}

func torsoCentroid(frame models.Frame, minVisibility float64) (vec3, bool) {
	var c vec3
	for _, name := range models.TorsoLandmarks {
		lm, ok := frame.Landmarks[name]
		if !ok || lm.Visibility < minVisibility {
			return vec3{}, false
		}
		if math.IsNaN(lm.X) || math.IsNaN(lm.Y) || math.IsNaN(lm.Z) {
			return vec3{}, false
		}
		c[0] += lm.X
		c[1] += lm.Y
		c[2] += lm.Z
	}
	for k := range c {
		c[k] /= float64(len(models.TorsoLandmarks))
	}
	return c, true
}

func distance(a, b vec3) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// principalProjection проецирует центры корпуса на ось наибольшей дисперсии
func principalProjection(centroids []vec3) []float64 {
	n := len(centroids)
	out := make([]float64, n)

	var mean vec3
	axis := make([]float64, n)
	for k := 0; k < 3; k++ {
		for i := range centroids {
			axis[i] = centroids[i][k]
		}
		mean[k] = stat.Mean(axis, nil)
	}

	cov := mat.NewSymDense(3, nil)
	for _, c := range centroids {
		for a := 0; a < 3; a++ {
			for b := a; b < 3; b++ {
				cov.SetSym(a, b, cov.At(a, b)+(c[a]-mean[a])*(c[b]-mean[b]))
			}
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return out
	}
	values := eig.Values(nil)
	if values[2] <= 0 {
		return out
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	dir := vec3{vectors.At(0, 2), vectors.At(1, 2), vectors.At(2, 2)}

	// ориентация оси детерминирована: наибольшая по модулю компонента положительна
	dominant := 0
	for k := 1; k < 3; k++ {
		if math.Abs(dir[k]) > math.Abs(dir[dominant]) {
			dominant = k
		}
	}
	if dir[dominant] < 0 {
		for k := range dir {
			dir[k] = -dir[k]
		}
	}

	for i, c := range centroids {
		out[i] = (c[0]-mean[0])*dir[0] + (c[1]-mean[1])*dir[1] + (c[2]-mean[2])*dir[2]
	}
	return out
}
