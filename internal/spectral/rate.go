package spectral

import (
	"math"
	"math/bits"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"breathing-analytics/internal/models"
)

// Options параметры оценки частоты дыхания
type Options struct {
	// MinDurationSeconds минимальная длительность сигнала для спектральной оценки
	MinDurationSeconds float64
	BandLowHz          float64
	BandHighHz         float64
	// DepthReference RMS смещения, соответствующий глубине 1.0
	DepthReference float64
}

// DefaultOptions полоса 0.1–0.5 Гц (6–30 вдохов в минуту), минимум 10 секунд
func DefaultOptions() Options {
	return Options{
		MinDurationSeconds: 10,
		BandLowHz:          0.1,
		BandHighHz:         0.5,
		DepthReference:     0.02,
	}
}

// MinSamples минимальное число отсчетов для заданной частоты дискретизации
func (o Options) MinSamples(sampleRateHz float64) int {
	return int(math.Ceil(o.MinDurationSeconds * sampleRateHz))
}

// DetectRate оценивает частоту дыхания по доминирующей частоте спектра в полосе дыхания.
//
// Сигнал очищается от линейного тренда, умножается на окно Ханна и дополняется
// нулями до степени двойки. Уверенность равна доле мощности полосы, попавшей
// в главный лепесток пика, нормированной так, что плоский спектр дает 0.
// Функция никогда не паникует на шумном или пустом входе.
func DetectRate(signal []float64, sampleRateHz float64, opts Options) models.RateEstimate {
	n := len(signal)
	x := detrend(signal)

	estimate := models.RateEstimate{
		Method:     models.MethodInsufficientData,
		DepthScore: depthScore(x, opts.DepthReference),
	}

	if sampleRateHz <= 0 || math.IsNaN(sampleRateHz) || math.IsInf(sampleRateHz, 0) {
		return estimate
	}
	if n == 0 || n < opts.MinSamples(sampleRateHz) {
		return estimate
	}

	m := nextPowerOfTwo(n)
	lo := int(math.Ceil(opts.BandLowHz * float64(m) / sampleRateHz))
	hi := int(math.Floor(opts.BandHighHz * float64(m) / sampleRateHz))
	lo = max(lo, 1)
	hi = min(hi, m/2)
	if lo > hi {
		return estimate
	}

	estimate.Method = models.MethodFFTHann

	padded := make([]float64, m)
	copy(padded, window.Hann(x))
	coeffs := fourier.NewFFT(m).Coefficients(nil, padded)

	power := make([]float64, len(coeffs))
	for k, c := range coeffs {
		a := cmplx.Abs(c)
		power[k] = a * a
	}

	bandPower := floats.Sum(power[lo : hi+1])
	if bandPower <= 0 || math.IsNaN(bandPower) {
		return estimate
	}

	peak := lo
	for k := lo + 1; k <= hi; k++ {
		if power[k] > power[peak] {
			peak = k
		}
	}

	freq := (float64(peak) + interpolatePeak(power, peak)) * sampleRateHz / float64(m)
	freq = math.Min(math.Max(freq, opts.BandLowHz), opts.BandHighHz)

	estimate.FrequencyHz = freq
	estimate.RateBPM = freq * 60
	estimate.Confidence = peakConfidence(power, peak, lo, hi, int(math.Ceil(float64(m)/float64(n))))

	return estimate
}

// peakConfidence доля мощности в лепестке ±halfLobe бинов вокруг пика,
// линейно перенесенная так, что равномерный спектр дает 0, а чистый тон 1
func peakConfidence(power []float64, peak, lo, hi, halfLobe int) float64 {
	from := max(lo, peak-halfLobe)
	to := min(hi, peak+halfLobe)

	bandBins := float64(hi - lo + 1)
	lobeBins := float64(to - from + 1)
	if lobeBins >= bandBins {
		return 0
	}

	share := floats.Sum(power[from:to+1]) / floats.Sum(power[lo:hi+1])
	flat := lobeBins / bandBins
	return clamp01((share - flat) / (1 - flat))
}

// interpolatePeak параболическое уточнение положения пика в долях бина
func interpolatePeak(power []float64, k int) float64 {
	if k <= 0 || k >= len(power)-1 {
		return 0
	}
	a, b, c := math.Sqrt(power[k-1]), math.Sqrt(power[k]), math.Sqrt(power[k+1])
	denom := a - 2*b + c
	if denom == 0 {
		return 0
	}
	delta := 0.5 * (a - c) / denom
	return math.Min(math.Max(delta, -0.5), 0.5)
}

func detrend(signal []float64) []float64 {
	out := make([]float64, len(signal))
	if len(signal) < 2 {
		return out
	}

	idx := make([]float64, len(signal))
	for i := range idx {
		idx[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(idx, signal, nil, false)
	for i, v := range signal {
		out[i] = v - (alpha + beta*idx[i])
	}
	return out
}

func depthScore(x []float64, reference float64) float64 {
	if len(x) == 0 || reference <= 0 {
		return 0
	}
	rms := math.Sqrt(floats.Dot(x, x) / float64(len(x)))
	return clamp01(rms / reference)
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}
