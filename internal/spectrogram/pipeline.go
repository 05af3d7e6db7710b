// SPDX-License-Identifier: MIT
/*
Package spectrogram turns fixed-length 16-bit PCM frames into
perceptually scaled, color-mapped spectrum columns:

	frame -> normalize -> Hann window -> FFT -> power spectrum
	      -> mel filter bank -> log compress -> per-frame normalize
	      -> RGBA color column

The pipeline is single-threaded and run-to-completion: ProcessFrame
has no internal locking or suspension points, and callers must
serialize all calls against one instance. That responsibility sits
with the capture layer, which hands frames over one at a time.
*/
package spectrogram

import (
	"fmt"
	"math"
	"time"

	"melscope/internal/colormap"
	"melscope/internal/dsp"
)

const (
	// Floor for log compression, keeps log10 defined on silent bands.
	minLogEnergy = 1e-10

	// ProcessFrame slower than this is reported as overloaded.
	overloadThresholdMs = 50.0

	// The FPS gauge is recomputed once per this many frames.
	fpsUpdateFrames = 30
)

// Config is the construction-time configuration of a Pipeline.
// HopSize is carried for consumers that schedule frames; the pipeline
// itself processes whatever frame it is handed and does not enforce
// any cadence.
type Config struct {
	SampleRate float64
	FrameSize  int
	HopSize    int
	NumBands   int
	MinFreq    float64
	MaxFreq    float64
	Window     dsp.WindowFunc
	ColorMap   colormap.Map
}

// Stats carries the pipeline's advisory performance figures.
type Stats struct {
	ProcessingTimeMs    float64 // last frame
	AvgProcessingTimeMs float64 // cumulative average since last reset
	FPS                 float64 // recomputed every 30 frames, 0 before that
	FramesProcessed     uint64
}

// Pipeline owns a spectral engine and a mel filter bank and converts
// PCM frames into normalized mel spectra and RGBA columns.
type Pipeline struct {
	cfg    Config
	engine *dsp.Engine
	bank   *dsp.MelBank
	cmap   colormap.Map

	samples []float64 // normalized input frame
	mel     []float64 // log-compressed, frame-normalized mel spectrum
	column  []byte    // RGBA color column, NumBands*4

	stats       Stats
	fpsCounter  int
	lastFPSMark time.Time
}

// New constructs a Pipeline. Fails with dsp.ErrInvalidConfig when the
// frame size is not a power of two, the band count is not positive or
// the frequency range does not fit below the Nyquist frequency; no
// partially valid pipeline is produced.
func New(cfg Config) (*Pipeline, error) {
	engine, bank, err := buildStages(cfg)
	if err != nil {
		return nil, err
	}

	cmap := cfg.ColorMap
	if cmap.Stops == nil {
		cmap = colormap.Viridis
	}

	return &Pipeline{
		cfg:         cfg,
		engine:      engine,
		bank:        bank,
		cmap:        cmap,
		samples:     make([]float64, cfg.FrameSize),
		mel:         make([]float64, cfg.NumBands),
		column:      make([]byte, cfg.NumBands*4),
		lastFPSMark: time.Now(),
	}, nil
}

// buildStages validates cfg and constructs the derived stages. Used by
// both New and UpdateConfig so a failed reconfiguration cannot leave a
// half-built pipeline behind.
func buildStages(cfg Config) (*dsp.Engine, *dsp.MelBank, error) {
	engine, err := dsp.NewEngine(cfg.FrameSize, cfg.Window)
	if err != nil {
		return nil, nil, err
	}
	bank, err := dsp.NewMelBank(cfg.SampleRate, cfg.FrameSize, cfg.NumBands, cfg.MinFreq, cfg.MaxFreq)
	if err != nil {
		return nil, nil, err
	}
	return engine, bank, nil
}

// ProcessFrame runs one PCM frame through the pipeline. A nil frame or
// one whose length differs from the configured frame size fails with
// dsp.ErrInvalidInput and leaves every buffer and statistic unchanged.
func (p *Pipeline) ProcessFrame(frame []int16) error {
	if p == nil || p.engine == nil {
		return fmt.Errorf("%w: pipeline", dsp.ErrUninitialized)
	}
	if frame == nil || len(frame) != p.cfg.FrameSize {
		return fmt.Errorf("%w: frame length %d does not match configured frame size %d",
			dsp.ErrInvalidInput, len(frame), p.cfg.FrameSize)
	}

	start := time.Now()

	// Scale int16 into [-1, 1); windowing happens inside the engine.
	for i, s := range frame {
		p.samples[i] = float64(s) / 32768.0
	}

	power, err := p.engine.ProcessWithWindow(p.samples)
	if err != nil {
		return err
	}
	energies, err := p.bank.Apply(power)
	if err != nil {
		return err
	}

	// Log compression, then normalization against this frame's own
	// min and max. The per-frame range is intentional and matches the
	// displayed behavior this pipeline reproduces, even though it
	// makes absolute levels inconsistent across frames.
	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for i, e := range energies {
		v := 10.0 * math.Log10(math.Max(e, minLogEnergy))
		p.mel[i] = v
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if r := maxVal - minVal; r > 0 {
		for i := range p.mel {
			p.mel[i] = (p.mel[i] - minVal) / r
		}
	}

	for i, v := range p.mel {
		r, g, b := p.cmap.Interpolate(v)
		p.column[i*4+0] = r
		p.column[i*4+1] = g
		p.column[i*4+2] = b
		p.column[i*4+3] = 255
	}

	p.updateStats(start)
	return nil
}

// updateStats folds the elapsed time into the cumulative average and
// refreshes the FPS gauge every fpsUpdateFrames frames.
func (p *Pipeline) updateStats(start time.Time) {
	elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)

	n := float64(p.stats.FramesProcessed + 1)
	p.stats.ProcessingTimeMs = elapsedMs
	p.stats.AvgProcessingTimeMs = (p.stats.AvgProcessingTimeMs*(n-1) + elapsedMs) / n
	p.stats.FramesProcessed++

	p.fpsCounter++
	if p.fpsCounter >= fpsUpdateFrames {
		sinceMs := float64(time.Since(p.lastFPSMark)) / float64(time.Millisecond)
		if sinceMs > 0 {
			p.stats.FPS = float64(fpsUpdateFrames) * 1000.0 / sinceMs
		}
		p.lastFPSMark = time.Now()
		p.fpsCounter = 0
	}
}

// MelSpectrum returns a copy of the latest normalized mel spectrum,
// NumBands values in [0, 1].
func (p *Pipeline) MelSpectrum() []float64 {
	out := make([]float64, len(p.mel))
	copy(out, p.mel)
	return out
}

// MelSpectrumInto copies the latest normalized mel spectrum into dst,
// which must be exactly NumBands long. Allocation-free variant for
// per-frame consumers.
func (p *Pipeline) MelSpectrumInto(dst []float64) error {
	if len(dst) != len(p.mel) {
		return fmt.Errorf("%w: destination length %d, expected %d", dsp.ErrInvalidInput, len(dst), len(p.mel))
	}
	copy(dst, p.mel)
	return nil
}

// ColorColumn returns a copy of the latest color-mapped column,
// NumBands RGBA quads.
func (p *Pipeline) ColorColumn() []byte {
	out := make([]byte, len(p.column))
	copy(out, p.column)
	return out
}

// ColorColumnInto copies the latest color-mapped column into dst,
// which must be exactly NumBands*4 bytes long. Allocation-free
// variant for per-frame consumers.
func (p *Pipeline) ColorColumnInto(dst []byte) error {
	if len(dst) != len(p.column) {
		return fmt.Errorf("%w: destination length %d, expected %d", dsp.ErrInvalidInput, len(dst), len(p.column))
	}
	copy(dst, p.column)
	return nil
}

// Stats returns the current advisory statistics.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// ResetStats zeroes the statistics and restarts the FPS interval.
func (p *Pipeline) ResetStats() {
	p.stats = Stats{}
	p.fpsCounter = 0
	p.lastFPSMark = time.Now()
}

// IsOverloaded reports whether the last frame took longer than the
// overload threshold. Purely advisory; the pipeline never drops
// frames on its own.
func (p *Pipeline) IsOverloaded() bool {
	return p.stats.ProcessingTimeMs > overloadThresholdMs
}

// SetColorMap swaps the active color map.
func (p *Pipeline) SetColorMap(m colormap.Map) {
	if m.Stops != nil {
		p.cmap = m
	}
}

// Config returns the active configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// UpdateConfig replaces the configuration and reallocates every
// derived buffer, window and filter bank. Accumulated statistics are
// kept; call ResetStats separately if a fresh baseline is wanted. On
// an invalid configuration the pipeline is left untouched. Must not
// run concurrently with ProcessFrame.
func (p *Pipeline) UpdateConfig(cfg Config) error {
	engine, bank, err := buildStages(cfg)
	if err != nil {
		return err
	}

	p.cfg = cfg
	p.engine = engine
	p.bank = bank
	p.samples = make([]float64, cfg.FrameSize)
	p.mel = make([]float64, cfg.NumBands)
	p.column = make([]byte, cfg.NumBands*4)
	if cfg.ColorMap.Stops != nil {
		p.cmap = cfg.ColorMap
	}
	return nil
}
