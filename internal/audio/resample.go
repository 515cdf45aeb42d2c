package audio

import "math"

// Resample converts PCM samples from inputRate to outputRate using linear
// interpolation. The output length is floor(len(samples) * outputRate / inputRate).
// Equal rates return a copy. This is a basic implementation - for production,
// consider a library with better quality algorithms (e.g. sinc interpolation).
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			// Clamp, never read past the last sample
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		interpolated := float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction
		output[i] = int16(math.Round(interpolated))
	}

	return output
}

// BytesToSamples converts little-endian 16-bit PCM bytes to samples.
// A trailing odd byte is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts PCM samples to little-endian 16-bit bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}
	return data
}

// NormalizeAudio scales samples down so the peak does not exceed maxAmplitude.
// Samples already within range are returned unchanged.
func NormalizeAudio(samples []int16, maxAmplitude int16) []int16 {
	if len(samples) == 0 {
		return samples
	}

	maxVal := int16(0)
	for _, sample := range samples {
		abs := sample
		if abs < 0 {
			abs = -abs
		}
		if abs > maxVal {
			maxVal = abs
		}
	}

	if maxVal <= maxAmplitude {
		return samples
	}

	ratio := float64(maxAmplitude) / float64(maxVal)
	normalized := make([]int16, len(samples))
	for i, sample := range samples {
		normalized[i] = int16(float64(sample) * ratio)
	}

	return normalized
}

// CalculateRMS calculates the root mean square of audio samples.
// Useful for detecting audio levels and silence.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
