// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"melscope/pkg/bitint"
)

// workspace holds pre-allocated buffers for spectral calculations.
// Returned slices alias these buffers and are overwritten by the next
// call on the same Engine.
type workspace struct {
	windowed []float64    // windowed copy of the input frame
	coeffs   []complex128 // one-sided FFT output, size/2+1 bins
	power    []float64    // power spectrum, size/2+1 bins
}

// Engine performs the forward real-input transform for one fixed
// power-of-two size. The fourier.FFT plan it owns is valid only for
// that size; an Engine is never copied or shared, and its owner must
// serialize all calls.
type Engine struct {
	size      int
	fftObj    *fourier.FFT
	window    []float64
	workspace workspace
}

// NewEngine creates an Engine for the given transform size with the
// given analysis window. The size must be a positive power of two;
// anything else fails with ErrInvalidConfig and no Engine is produced.
func NewEngine(size int, windowType WindowFunc) (*Engine, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("%w: transform size must be a positive power of 2, got %d", ErrInvalidConfig, size)
	}

	window := make([]float64, size)
	windowCoeffs(window, windowType)

	// One-sided output for real input is size/2+1 bins.
	outputSize := size/2 + 1

	return &Engine{
		size:   size,
		fftObj: fourier.NewFFT(size),
		window: window,
		workspace: workspace{
			windowed: make([]float64, size),
			coeffs:   make([]complex128, outputSize),
			power:    make([]float64, outputSize),
		},
	}, nil
}

// Size returns the configured transform size.
func (e *Engine) Size() int {
	return e.size
}

// Forward runs the forward transform on a real-valued frame and
// returns the unnormalized one-sided spectrum, size/2+1 complex bins.
// The returned slice is reused by subsequent calls.
func (e *Engine) Forward(samples []float64) ([]complex128, error) {
	if e == nil || e.fftObj == nil {
		return nil, fmt.Errorf("%w: spectral engine", ErrUninitialized)
	}
	if len(samples) != e.size {
		return nil, fmt.Errorf("%w: frame length %d does not match transform size %d", ErrInvalidInput, len(samples), e.size)
	}

	e.fftObj.Coefficients(e.workspace.coeffs, samples)
	return e.workspace.coeffs, nil
}

// PowerSpectrum forward-transforms samples and returns the squared
// magnitude of each bin divided by the transform size, for bins
// 0..size/2 inclusive. Every entry is >= 0. The returned slice is
// reused by subsequent calls.
func (e *Engine) PowerSpectrum(samples []float64) ([]float64, error) {
	coeffs, err := e.Forward(samples)
	if err != nil {
		return nil, err
	}

	scale := 1.0 / float64(e.size)
	for i, c := range coeffs {
		re, im := real(c), imag(c)
		e.workspace.power[i] = (re*re + im*im) * scale
	}
	return e.workspace.power, nil
}

// ApplyWindow multiplies samples elementwise by the precomputed window
// coefficients. The input is not modified; the returned slice is
// reused by subsequent calls.
func (e *Engine) ApplyWindow(samples []float64) ([]float64, error) {
	if e == nil || e.fftObj == nil {
		return nil, fmt.Errorf("%w: spectral engine", ErrUninitialized)
	}
	if len(samples) != e.size {
		return nil, fmt.Errorf("%w: frame length %d does not match transform size %d", ErrInvalidInput, len(samples), e.size)
	}

	for i, s := range samples {
		e.workspace.windowed[i] = s * e.window[i]
	}
	return e.workspace.windowed, nil
}

// ProcessWithWindow applies the analysis window and returns the power
// spectrum of the windowed frame in one step.
func (e *Engine) ProcessWithWindow(samples []float64) ([]float64, error) {
	windowed, err := e.ApplyWindow(samples)
	if err != nil {
		return nil, err
	}
	return e.PowerSpectrum(windowed)
}

// BinFrequency returns the center frequency in Hz of the given bin for
// the given sample rate, or 0 for an out-of-range bin.
func (e *Engine) BinFrequency(bin int, sampleRate float64) float64 {
	if e == nil || bin < 0 || bin > e.size/2 {
		return 0
	}
	return float64(bin) * sampleRate / float64(e.size)
}
