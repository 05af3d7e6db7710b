// SPDX-License-Identifier: MIT
package spectrogram

import (
	"errors"
	"testing"

	"melscope/internal/colormap"
	"melscope/internal/dsp"
	"melscope/pkg/sig"
)

func testConfig() Config {
	return Config{
		SampleRate: 16000,
		FrameSize:  1024,
		HopSize:    512,
		NumBands:   64,
		MinFreq:    20,
		MaxFreq:    8000,
		Window:     dsp.Hann,
		ColorMap:   colormap.Viridis,
	}
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"frame size not power of two", func(c *Config) { c.FrameSize = 1000 }},
		{"zero frame size", func(c *Config) { c.FrameSize = 0 }},
		{"zero bands", func(c *Config) { c.NumBands = 0 }},
		{"negative bands", func(c *Config) { c.NumBands = -8 }},
		{"min above max", func(c *Config) { c.MinFreq = 9000 }},
		{"max above nyquist", func(c *Config) { c.MaxFreq = 8001 }},
		{"negative min", func(c *Config) { c.MinFreq = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, dsp.ErrInvalidConfig) {
				t.Errorf("error = %v, expected ErrInvalidConfig", err)
			}
		})
	}
}

func TestProcessFrameRejectsBadFrames(t *testing.T) {
	p := newTestPipeline(t)

	// Process one good frame so there is state to corrupt.
	if err := p.ProcessFrame(sig.Sine(1024, 16000, 440)); err != nil {
		t.Fatal(err)
	}
	before := p.Stats()
	spectrumBefore := p.MelSpectrum()

	for _, frame := range [][]int16{nil, {}, make([]int16, 512), make([]int16, 1025)} {
		if err := p.ProcessFrame(frame); !errors.Is(err, dsp.ErrInvalidInput) {
			t.Errorf("frame length %d: error = %v, expected ErrInvalidInput", len(frame), err)
		}
	}

	// Rejected frames must leave stats and outputs untouched.
	if p.Stats() != before {
		t.Errorf("stats changed after rejected frames: %+v != %+v", p.Stats(), before)
	}
	for i, v := range p.MelSpectrum() {
		if v != spectrumBefore[i] {
			t.Errorf("mel spectrum changed at band %d after rejected frame", i)
			break
		}
	}
}

func TestProcessFrameOutputRanges(t *testing.T) {
	p := newTestPipeline(t)

	if err := p.ProcessFrame(sig.Harmonics(1024, 16000)); err != nil {
		t.Fatal(err)
	}

	spectrum := p.MelSpectrum()
	if len(spectrum) != 64 {
		t.Fatalf("mel spectrum length = %d, expected 64", len(spectrum))
	}
	sawZero, sawOne := false, false
	for i, v := range spectrum {
		if v < 0 || v > 1 {
			t.Errorf("band %d = %g, outside [0,1]", i, v)
		}
		if v == 0 {
			sawZero = true
		}
		if v == 1 {
			sawOne = true
		}
	}
	// Per-frame min/max normalization pins the extremes of every
	// non-flat frame to exactly 0 and 1.
	if !sawZero || !sawOne {
		t.Errorf("per-frame normalization did not reach both 0 and 1 (zero=%v one=%v)", sawZero, sawOne)
	}

	column := p.ColorColumn()
	if len(column) != 64*4 {
		t.Fatalf("color column length = %d, expected %d", len(column), 64*4)
	}
	for i := 0; i < len(column); i += 4 {
		if column[i+3] != 255 {
			t.Errorf("band %d alpha = %d, expected 255", i/4, column[i+3])
		}
	}
}

func TestSilentFrameStaysDark(t *testing.T) {
	p := newTestPipeline(t)

	if err := p.ProcessFrame(make([]int16, 1024)); err != nil {
		t.Fatal(err)
	}

	// All-zero input hits the log floor in every band, so the frame
	// range collapses and normalization leaves the raw zeros in place.
	for i, v := range p.MelSpectrum() {
		if v >= 0.1 {
			t.Errorf("band %d = %g for silent input, expected < 0.1", i, v)
		}
	}
}

func TestSinePeakBand(t *testing.T) {
	p := newTestPipeline(t)

	// A 1 kHz tone must put its brightest band well below the top of
	// the range and at value 1 after per-frame normalization.
	if err := p.ProcessFrame(sig.Sine(1024, 16000, 1000)); err != nil {
		t.Fatal(err)
	}

	spectrum := p.MelSpectrum()
	peak := sig.PeakBin(spectrum, 0, len(spectrum)-1)
	if spectrum[peak] != 1.0 {
		t.Errorf("peak band value = %g, expected exactly 1", spectrum[peak])
	}
	if peak == 0 || peak == len(spectrum)-1 {
		t.Errorf("1 kHz peak landed on boundary band %d", peak)
	}
}

func TestStatsAccumulate(t *testing.T) {
	p := newTestPipeline(t)
	frame := sig.Sine(1024, 16000, 440)

	for i := 0; i < 10; i++ {
		if err := p.ProcessFrame(frame); err != nil {
			t.Fatal(err)
		}
	}

	stats := p.Stats()
	if stats.FramesProcessed != 10 {
		t.Errorf("FramesProcessed = %d, expected 10", stats.FramesProcessed)
	}
	if stats.AvgProcessingTimeMs <= 0 {
		t.Errorf("AvgProcessingTimeMs = %g, expected > 0", stats.AvgProcessingTimeMs)
	}
	// FPS is only recomputed every 30 frames; after 10 it is still
	// the reset value.
	if stats.FPS != 0 {
		t.Errorf("FPS = %g before 30 frames, expected 0", stats.FPS)
	}

	for i := 0; i < 20; i++ {
		if err := p.ProcessFrame(frame); err != nil {
			t.Fatal(err)
		}
	}
	if p.Stats().FPS <= 0 {
		t.Errorf("FPS = %g after 30 frames, expected > 0", p.Stats().FPS)
	}

	p.ResetStats()
	if s := p.Stats(); s != (Stats{}) {
		t.Errorf("stats after reset = %+v, expected zero value", s)
	}
}

func TestIsOverloaded(t *testing.T) {
	p := newTestPipeline(t)

	if p.IsOverloaded() {
		t.Error("fresh pipeline should not report overload")
	}
	p.stats.ProcessingTimeMs = 51.0
	if !p.IsOverloaded() {
		t.Error("51ms frame should report overload")
	}
	p.stats.ProcessingTimeMs = 50.0
	if p.IsOverloaded() {
		t.Error("50ms frame is exactly at the threshold, not over it")
	}
}

func TestUpdateConfig(t *testing.T) {
	p := newTestPipeline(t)
	if err := p.ProcessFrame(sig.Sine(1024, 16000, 440)); err != nil {
		t.Fatal(err)
	}
	statsBefore := p.Stats()

	cfg := testConfig()
	cfg.FrameSize = 512
	cfg.NumBands = 32
	if err := p.UpdateConfig(cfg); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	// Statistics survive reconfiguration.
	if p.Stats() != statsBefore {
		t.Errorf("stats changed across UpdateConfig: %+v != %+v", p.Stats(), statsBefore)
	}

	// Old frame size is now rejected, new one accepted.
	if err := p.ProcessFrame(make([]int16, 1024)); !errors.Is(err, dsp.ErrInvalidInput) {
		t.Errorf("old frame size accepted after reconfig: %v", err)
	}
	if err := p.ProcessFrame(sig.Sine(512, 16000, 440)); err != nil {
		t.Fatalf("new frame size rejected: %v", err)
	}
	if got := len(p.MelSpectrum()); got != 32 {
		t.Errorf("mel spectrum length after reconfig = %d, expected 32", got)
	}
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	p := newTestPipeline(t)

	bad := testConfig()
	bad.FrameSize = 1000
	if err := p.UpdateConfig(bad); !errors.Is(err, dsp.ErrInvalidConfig) {
		t.Fatalf("error = %v, expected ErrInvalidConfig", err)
	}

	// The old configuration must still be fully functional.
	if err := p.ProcessFrame(sig.Sine(1024, 16000, 440)); err != nil {
		t.Errorf("pipeline broken after rejected reconfig: %v", err)
	}
}

func TestProcessFrameHotPath(t *testing.T) {
	p := newTestPipeline(t)
	frame := sig.Harmonics(1024, 16000)

	if err := p.ProcessFrame(frame); err != nil {
		t.Fatal(err)
	}
	allocs := testing.AllocsPerRun(100, func() {
		_ = p.ProcessFrame(frame)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in ProcessFrame hot path, got %.1f", allocs)
	}
}

func BenchmarkProcessFrame(b *testing.B) {
	p, err := New(testConfig())
	if err != nil {
		b.Fatal(err)
	}
	frame := sig.Harmonics(1024, 16000)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = p.ProcessFrame(frame)
	}
}
