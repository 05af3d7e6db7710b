// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math"
)

// Mel converts a frequency in Hz to the mel scale.
func Mel(freq float64) float64 {
	return 2595.0 * math.Log10(1.0+freq/700.0)
}

// MelToFreq converts a mel value back to frequency in Hz.
func MelToFreq(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// MelBank is a bank of triangular filters mapping transform bins to
// perceptual mel bands. Each row covers bins between its low and high
// edge, rising linearly from 0 at the low edge to 1 at the center bin
// and falling linearly back to 0 at the high edge.
type MelBank struct {
	sampleRate float64
	fftSize    int
	numFilters int
	minFreq    float64
	maxFreq    float64

	filters  [][]float64 // [numFilters][fftSize/2+1]
	energies []float64   // reused output buffer for Apply
}

// NewMelBank constructs a filter bank for the given transform size and
// frequency range. Fails with ErrInvalidConfig unless numFilters > 0,
// fftSize > 0 and 0 <= minFreq < maxFreq <= sampleRate/2.
func NewMelBank(sampleRate float64, fftSize, numFilters int, minFreq, maxFreq float64) (*MelBank, error) {
	if numFilters <= 0 {
		return nil, fmt.Errorf("%w: filter count must be positive, got %d", ErrInvalidConfig, numFilters)
	}
	if fftSize <= 0 {
		return nil, fmt.Errorf("%w: fft size must be positive, got %d", ErrInvalidConfig, fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %g", ErrInvalidConfig, sampleRate)
	}
	if minFreq < 0 || minFreq >= maxFreq || maxFreq > sampleRate/2 {
		return nil, fmt.Errorf("%w: frequency range [%g, %g] invalid for sample rate %g", ErrInvalidConfig, minFreq, maxFreq, sampleRate)
	}

	b := &MelBank{
		sampleRate: sampleRate,
		fftSize:    fftSize,
		numFilters: numFilters,
		minFreq:    minFreq,
		maxFreq:    maxFreq,
		filters:    make([][]float64, numFilters),
		energies:   make([]float64, numFilters),
	}
	b.initializeFilters()
	return b, nil
}

// initializeFilters places numFilters+2 equally spaced points on the
// mel scale between minFreq and maxFreq; consecutive triples of the
// corresponding Hz values become the (low, center, high) edges of each
// triangular filter.
func (b *MelBank) initializeFilters() {
	minMel := Mel(b.minFreq)
	maxMel := Mel(b.maxFreq)

	freqPoints := make([]float64, b.numFilters+2)
	for i := range freqPoints {
		mel := minMel + (maxMel-minMel)*float64(i)/float64(b.numFilters+1)
		freqPoints[i] = MelToFreq(mel)
	}

	for i := 0; i < b.numFilters; i++ {
		b.filters[i] = b.triangularFilter(freqPoints[i], freqPoints[i+1], freqPoints[i+2])
	}
}

// triangularFilter builds one filter row: a linear rising ramp from 0
// at the low-edge bin to 1 at the center bin, and a linear falling
// ramp back to 0 at the high-edge bin. All other bins stay zero.
func (b *MelBank) triangularFilter(lowFreq, centerFreq, highFreq float64) []float64 {
	filter := make([]float64, b.fftSize/2+1)

	lowBin := b.clampBin(b.FreqToBin(lowFreq))
	centerBin := b.clampBin(b.FreqToBin(centerFreq))
	highBin := b.clampBin(b.FreqToBin(highFreq))

	if centerBin > lowBin {
		for bin := lowBin; bin <= centerBin; bin++ {
			filter[bin] = float64(bin-lowBin) / float64(centerBin-lowBin)
		}
	}
	if highBin > centerBin {
		for bin := centerBin + 1; bin <= highBin; bin++ {
			filter[bin] = float64(highBin-bin) / float64(highBin-centerBin)
		}
	}

	return filter
}

// FreqToBin maps a frequency to its nearest transform bin.
func (b *MelBank) FreqToBin(freq float64) int {
	return int(math.Round(freq * float64(b.fftSize) / b.sampleRate))
}

// BinToFreq maps a transform bin back to its center frequency.
func (b *MelBank) BinToFreq(bin int) float64 {
	return float64(bin) * b.sampleRate / float64(b.fftSize)
}

func (b *MelBank) clampBin(bin int) int {
	if bin < 0 {
		return 0
	}
	if max := b.fftSize / 2; bin > max {
		return max
	}
	return bin
}

// Apply computes the per-band energies of a power spectrum:
// energy[f] = sum over bins of power[bin]*filter[f][bin].
// A spectrum whose length does not match the bank's transform size
// fails with ErrInvalidInput. The returned slice is reused by
// subsequent calls.
func (b *MelBank) Apply(powerSpectrum []float64) ([]float64, error) {
	if b == nil || b.filters == nil {
		return nil, fmt.Errorf("%w: mel filter bank", ErrUninitialized)
	}
	if len(powerSpectrum) != b.fftSize/2+1 {
		return nil, fmt.Errorf("%w: power spectrum length %d, expected %d", ErrInvalidInput, len(powerSpectrum), b.fftSize/2+1)
	}

	for f, filter := range b.filters {
		energy := 0.0
		for bin, weight := range filter {
			energy += powerSpectrum[bin] * weight
		}
		b.energies[f] = energy
	}
	return b.energies, nil
}

// Filter returns a copy of the weight row for one filter, or nil for
// an out-of-range index.
func (b *MelBank) Filter(idx int) []float64 {
	if idx < 0 || idx >= b.numFilters {
		return nil
	}
	row := make([]float64, len(b.filters[idx]))
	copy(row, b.filters[idx])
	return row
}

// NumFilters returns the number of mel bands.
func (b *MelBank) NumFilters() int {
	return b.numFilters
}
