package fatigue

import (
	"math"
	"math/rand"
	"testing"

	"breathing-analytics/internal/models"
)

// breathing модуль скорости движения: |sin| с частотой 0.3 Гц
func breathing(n int, fs float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.01 * math.Abs(math.Sin(2*math.Pi*0.3*float64(i)/fs))
	}
	return out
}

func timestamps(n int, fs float64) []int64 {
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = int64(math.Round(float64(i) * 1000 / fs))
	}
	return ts
}

func TestDetectEmptySignal(t *testing.T) {
	d := NewDetector(DefaultConfig())

	windows := d.Detect(nil, nil, nil, 15)
	if windows == nil || len(windows) != 0 {
		t.Errorf("Expected empty non-nil list, got %v", windows)
	}
}

func TestDetectAllZero(t *testing.T) {
	d := NewDetector(DefaultConfig())

	windows := d.Detect(make([]float64, 900), nil, timestamps(900, 15), 15)
	if len(windows) != 0 {
		t.Errorf("Expected no windows for a zero signal, got %v", windows)
	}
}

func TestDetectSteadyBreathingHasNoWindows(t *testing.T) {
	const fs = 15.0
	d := NewDetector(DefaultConfig())

	windows := d.Detect(breathing(900, fs), nil, timestamps(900, fs), fs)
	if len(windows) != 0 {
		t.Errorf("Expected zero crossings of a steady breath not to be flagged, got %v", windows)
	}
}

func TestDetectSinglePause(t *testing.T) {
	const fs = 15.0
	signal := breathing(900, fs)
	// 25–30 с почти без движения
	for i := 375; i < 450; i++ {
		signal[i] = 1e-5
	}

	d := NewDetector(DefaultConfig())
	windows := d.Detect(signal, nil, timestamps(900, fs), fs)

	if len(windows) != 1 {
		t.Fatalf("Expected exactly one window, got %d: %v", len(windows), windows)
	}
	w := windows[0]
	if w.StartMs > 25000 || w.StartMs < 24500 {
		t.Errorf("Expected window to start near 25000 ms, got %d", w.StartMs)
	}
	if w.EndMs < 30000 || w.EndMs > 30500 {
		t.Errorf("Expected window to end near 30000 ms, got %d", w.EndMs)
	}
	if w.Severity <= 0.5 {
		t.Errorf("Expected severity > 0.5, got %.3f", w.Severity)
	}
}

func TestDetectPauseAtSignalEnd(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnvelopeSeconds = 0
	d := NewDetector(cfg)

	signal := make([]float64, 100)
	for i := range signal[:70] {
		signal[i] = 1
	}
	ts := make([]int64, 100)
	for i := range ts {
		ts[i] = int64(i) * 100
	}

	windows := d.Detect(signal, nil, ts, 10)
	if len(windows) != 1 {
		t.Fatalf("Expected one window, got %v", windows)
	}
	if windows[0].StartMs != 7000 || windows[0].EndMs != 10000 {
		t.Errorf("Expected [7000, 10000), got [%d, %d)", windows[0].StartMs, windows[0].EndMs)
	}
	if windows[0].Severity != 1 {
		t.Errorf("Expected severity 1 for a flat pause, got %f", windows[0].Severity)
	}
}

func TestDetectDropsShortWindows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnvelopeSeconds = 0
	d := NewDetector(cfg)

	signal := make([]float64, 900)
	for i := range signal {
		signal[i] = 1
	}
	// ~0.67 с: короче минимальной длительности
	for i := 100; i < 110; i++ {
		signal[i] = 0
	}
	// 2 с
	for i := 400; i < 430; i++ {
		signal[i] = 0
	}

	windows := d.Detect(signal, nil, nil, 15)
	if len(windows) != 1 {
		t.Fatalf("Expected only the long pause, got %v", windows)
	}
	if windows[0].StartMs != 400*67 || windows[0].EndMs != 430*67 {
		t.Errorf("Unexpected window bounds on synthesized time axis: %+v", windows[0])
	}
}

func TestDetectWindowInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	cfg := DefaultConfig()
	d := NewDetector(cfg)

	for trial := 0; trial < 100; trial++ {
		n := 1 + rng.Intn(1500)
		signal := make([]float64, n)
		level := 1.0
		for i := range signal {
			if rng.Float64() < 0.02 {
				level = []float64{0, 0.05, 1, 2}[rng.Intn(4)]
			}
			signal[i] = level * rng.Float64()
		}

		windows := d.Detect(signal, nil, timestamps(n, 15), 15)

		for i, w := range windows {
			if w.EndMs <= w.StartMs {
				t.Fatalf("trial %d: empty window %+v", trial, w)
			}
			if w.DurationMs() < cfg.MinDurationMs {
				t.Fatalf("trial %d: window shorter than minimum %+v", trial, w)
			}
			if w.Severity < 0 || w.Severity > 1 {
				t.Fatalf("trial %d: severity out of range %+v", trial, w)
			}
			if i == 0 {
				continue
			}
			prev := windows[i-1]
			if w.StartMs < prev.EndMs {
				t.Fatalf("trial %d: overlapping windows %+v %+v", trial, prev, w)
			}
			if w.StartMs-prev.EndMs < cfg.MergeToleranceMs {
				t.Fatalf("trial %d: windows closer than merge tolerance %+v %+v", trial, prev, w)
			}
		}
	}
}

func TestMergeIsTransitive(t *testing.T) {
	got := merge([]models.FatigueWindow{
		{StartMs: 4000, EndMs: 6000},
		{StartMs: 0, EndMs: 1000},
		{StartMs: 2500, EndMs: 3500},
		{StartMs: 9000, EndMs: 10000},
	}, 2000)

	want := []models.FatigueWindow{
		{StartMs: 0, EndMs: 6000},
		{StartMs: 9000, EndMs: 10000},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("window %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestMergeContainedWindow(t *testing.T) {
	got := merge([]models.FatigueWindow{
		{StartMs: 0, EndMs: 5000},
		{StartMs: 1000, EndMs: 2000},
	}, 2000)

	if len(got) != 1 || got[0].EndMs != 5000 {
		t.Errorf("Expected contained window to be absorbed, got %v", got)
	}
}

func TestThreshold(t *testing.T) {
	d := NewDetector(DefaultConfig())

	if got := d.Threshold([]float64{1, -1, 2, -2}); math.Abs(got-0.45) > 1e-12 {
		t.Errorf("Expected threshold 0.45, got %f", got)
	}
	if got := d.Threshold(nil); got != 0 {
		t.Errorf("Expected threshold 0 for empty signal, got %f", got)
	}
}

func TestTimeAxisFallback(t *testing.T) {
	ts, step := timeAxis([]int64{0, 100}, 4, 10)
	if step != 100 {
		t.Errorf("Expected step 100, got %d", step)
	}
	want := []int64{0, 100, 200, 300}
	for i := range want {
		if ts[i] != want[i] {
			t.Errorf("ts[%d]: expected %d, got %d", i, want[i], ts[i])
		}
	}

	// частота неизвестна: шаг выводится из меток
	_, step = timeAxis([]int64{0, 50, 100, 150}, 4, 0)
	if step != 50 {
		t.Errorf("Expected step 50 from timestamps, got %d", step)
	}
}

func TestMovingMax(t *testing.T) {
	got := movingMax([]float64{0, 3, 0, 0, 0, 1}, 1)
	want := []float64{3, 3, 3, 0, 1, 1}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("movingMax[%d]: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestDetectOneSecondPauseAtCommonRates(t *testing.T) {
	for _, fs := range []float64{10, 15, 20, 25, 30, 60} {
		before := int(10 * fs)
		pause := int(math.Round(fs))
		n := 2*before + pause

		signal := make([]float64, n)
		for i := range signal {
			signal[i] = 1
		}
		for i := before; i < before+pause; i++ {
			signal[i] = 0.001
		}

		d := NewDetector(DefaultConfig())
		windows := d.Detect(signal, nil, timestamps(n, fs), fs)

		if len(windows) != 1 {
			t.Errorf("fs=%.0f: expected one window for a 1 s pause, got %v", fs, windows)
			continue
		}
		if windows[0].DurationMs() < 1000 {
			t.Errorf("fs=%.0f: expected at least 1000 ms, got %d", fs, windows[0].DurationMs())
		}
		if windows[0].Severity <= 0.9 {
			t.Errorf("fs=%.0f: expected severity close to 1, got %.3f", fs, windows[0].Severity)
		}
	}
}

func TestEnvelopeFitsMinimumWindow(t *testing.T) {
	for _, fs := range []float64{10, 15, 20, 25, 30, 60, 120} {
		d := NewDetector(DefaultConfig())
		width := 2*d.envelopeHalfWidth(fs, 0) + 1

		if width%2 != 1 || float64(width) > fs {
			t.Errorf("fs=%.0f: envelope width %d exceeds one second of samples", fs, width)
		}
	}
}

func TestDetectSkipsUnreliableSamples(t *testing.T) {
	const fs = 15.0
	signal := breathing(900, fs)
	reliable := make([]bool, len(signal))
	for i := range reliable {
		reliable[i] = true
	}
	// 20–22 с без landmark-ов: значение повторяется и низко
	for i := 300; i < 330; i++ {
		signal[i] = 0
		reliable[i] = false
	}

	d := NewDetector(DefaultConfig())

	if windows := d.Detect(signal, reliable, timestamps(900, fs), fs); len(windows) != 0 {
		t.Errorf("Expected a data gap not to be reported as a pause, got %v", windows)
	}
	if windows := d.Detect(signal, nil, timestamps(900, fs), fs); len(windows) != 1 {
		t.Errorf("Expected the same gap to be a pause when marked reliable, got %v", windows)
	}
}

func TestDetectIgnoresMismatchedMask(t *testing.T) {
	signal := make([]float64, 100)
	for i := range signal[:70] {
		signal[i] = 1
	}

	cfg := DefaultConfig()
	cfg.EnvelopeSeconds = 0
	windows := NewDetector(cfg).Detect(signal, []bool{false}, nil, 10)

	if len(windows) != 1 {
		t.Errorf("Expected mask of wrong length to be ignored, got %v", windows)
	}
}
