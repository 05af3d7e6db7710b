// Package sig generates deterministic 16-bit PCM test signals for the
// spectrogram pipeline and its tests.
package sig

import "math"

// Sine returns size samples of a pure sine wave at frequency Hz,
// scaled to 90% of full scale to avoid clipping at the int16 boundary.
func Sine(size int, sampleRate, frequency float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int16(math.Sin(2*math.Pi*frequency*t) * math.MaxInt16 * 0.9)
	}
	return buffer
}

// Harmonics returns size samples of a 440Hz fundamental plus two
// harmonics, useful as a broadband-ish but still tonal test signal.
func Harmonics(size int, sampleRate float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*t)*0.5 +
			math.Sin(2*math.Pi*880*t)*0.3 +
			math.Sin(2*math.Pi*1320*t)*0.2
		buffer[i] = int16(signal * math.MaxInt16 * 0.9)
	}
	return buffer
}

// Constant returns size samples all set to value.
func Constant(size int, value int16) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		buffer[i] = value
	}
	return buffer
}

// PeakBin returns the index of the largest value in spectrum within
// [startBin, endBin], clamping the range to the slice bounds.
func PeakBin(spectrum []float64, startBin, endBin int) int {
	if len(spectrum) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(spectrum) {
		endBin = len(spectrum) - 1
	}

	peak := startBin
	for i := startBin + 1; i <= endBin; i++ {
		if spectrum[i] > spectrum[peak] {
			peak = i
		}
	}
	return peak
}
