package audio

import (
	"math"
	"testing"
)

func TestResample_OutputLength(t *testing.T) {
	cases := []struct {
		name       string
		inputLen   int
		inputRate  int
		outputRate int
	}{
		{"upsample 22050 to 24000", 4, 22050, 24000},
		{"upsample 8k to 16k", 100, 8000, 16000},
		{"downsample 24k to 8k", 2400, 24000, 8000},
		{"downsample 16k to 8k", 100, 16000, 8000},
		{"odd rates", 441, 44100, 22050},
		{"single sample", 1, 22050, 24000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			samples := make([]int16, tc.inputLen)
			for i := range samples {
				samples[i] = int16(i % 1000)
			}

			out := Resample(samples, tc.inputRate, tc.outputRate)

			ratio := float64(tc.outputRate) / float64(tc.inputRate)
			expected := int(float64(tc.inputLen) * ratio)
			if len(out) != expected {
				t.Errorf("Expected output length %d, got %d", expected, len(out))
			}
		})
	}
}

func TestResample_Identity(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768, 42}

	out := Resample(samples, 24000, 24000)

	if len(out) != len(samples) {
		t.Fatalf("Expected length %d, got %d", len(samples), len(out))
	}
	for i := range samples {
		if out[i] != samples[i] {
			t.Errorf("Expected sample %d at index %d, got %d", samples[i], i, out[i])
		}
	}

	// Must be a copy, not an alias
	out[0] = 9999
	if samples[0] == 9999 {
		t.Error("Resample at equal rates must not alias the input slice")
	}
}

func TestResample_Empty(t *testing.T) {
	out := Resample(nil, 22050, 24000)
	if len(out) != 0 {
		t.Errorf("Expected empty output for empty input, got length %d", len(out))
	}

	out = Resample([]int16{}, 8000, 48000)
	if len(out) != 0 {
		t.Errorf("Expected empty output for empty input, got length %d", len(out))
	}
}

func TestResample_MonotonicInput(t *testing.T) {
	// Linear interpolation of a strictly increasing sequence must stay non-decreasing
	samples := make([]int16, 200)
	for i := range samples {
		samples[i] = int16(i * 50)
	}

	for _, rates := range [][2]int{{22050, 24000}, {24000, 22050}, {8000, 48000}} {
		out := Resample(samples, rates[0], rates[1])
		for i := 1; i < len(out); i++ {
			if out[i] < out[i-1] {
				t.Fatalf("Resample %d->%d: output not non-decreasing at index %d: %d < %d",
					rates[0], rates[1], i, out[i], out[i-1])
			}
		}
	}
}

func TestResample_ConcreteCase(t *testing.T) {
	// 4 samples at 22050Hz to 24000Hz: floor(4 * 24000/22050) = 4 samples
	samples := []int16{0, 100, 200, 300}

	out := Resample(samples, 22050, 24000)

	if len(out) != 4 {
		t.Fatalf("Expected 4 output samples, got %d", len(out))
	}
	if out[0] != 0 {
		t.Errorf("Expected first sample 0, got %d", out[0])
	}
	// Last source position is clamped near the end; allow rounding slack
	if out[3] < 270 || out[3] > 300 {
		t.Errorf("Expected last sample near 300, got %d", out[3])
	}
}

func TestResample_NoOutOfRangeReads(t *testing.T) {
	// The last output index lands past the final source sample for most
	// upsample ratios; the ceiling index must clamp instead of wrapping.
	samples := []int16{1000, 2000}
	out := Resample(samples, 8000, 48000)

	if len(out) != 12 {
		t.Fatalf("Expected 12 output samples, got %d", len(out))
	}
	for i, s := range out {
		if s < 1000 || s > 2000 {
			t.Errorf("Sample %d out of interpolation range [1000, 2000]: %d", i, s)
		}
	}
	if out[len(out)-1] != 2000 {
		t.Errorf("Expected clamped tail to hold last sample 2000, got %d", out[len(out)-1])
	}
}

func TestBytesToSamples(t *testing.T) {
	data := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80}
	samples := BytesToSamples(data)

	expected := []int16{0, 32767, -32768}
	if len(samples) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(samples))
	}
	for i, exp := range expected {
		if samples[i] != exp {
			t.Errorf("Expected sample %d at index %d, got %d", exp, i, samples[i])
		}
	}
}

func TestSamplesToBytes_RoundTrip(t *testing.T) {
	samples := []int16{0, 32767, -32768, 1, -1}
	data := SamplesToBytes(samples)

	if len(data) != len(samples)*2 {
		t.Fatalf("Expected %d bytes, got %d", len(samples)*2, len(data))
	}

	back := BytesToSamples(data)
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("Round trip mismatch at index %d: %d != %d", i, back[i], samples[i])
		}
	}
}

func TestNormalizeAudio(t *testing.T) {
	samples := []int16{20000, -30000, 10000}
	maxAmplitude := int16(16000)

	normalized := NormalizeAudio(samples, maxAmplitude)

	maxAbs := int16(0)
	for _, s := range normalized {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > maxAbs {
			maxAbs = abs
		}
	}
	if maxAbs > maxAmplitude {
		t.Errorf("Expected max amplitude <= %d, got %d", maxAmplitude, maxAbs)
	}
}

func TestNormalizeAudio_AlreadyWithinRange(t *testing.T) {
	samples := []int16{100, 200, -100, -200}
	normalized := NormalizeAudio(samples, 10000)

	for i := range samples {
		if normalized[i] != samples[i] {
			t.Errorf("Expected unchanged sample at index %d", i)
		}
	}
}

func TestCalculateRMS(t *testing.T) {
	samples := []int16{1000, -1000, 2000, -2000}
	rms := CalculateRMS(samples)

	expected := math.Sqrt((1000000 + 1000000 + 4000000 + 4000000) / 4.0)
	if math.Abs(rms-expected) > 0.1 {
		t.Errorf("Expected RMS %.2f, got %.2f", expected, rms)
	}
}

func TestCalculateRMS_Empty(t *testing.T) {
	if rms := CalculateRMS(nil); rms != 0.0 {
		t.Errorf("Expected RMS 0.0 for empty input, got %.2f", rms)
	}
}
