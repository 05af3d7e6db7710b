package capture

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "melscope/internal/log"
)

// WAVInfo describes a WAV file's format.
type WAVInfo struct {
	SampleRate  float64
	NumChannels int
	BitDepth    int
}

// ProbeWAV reads the format header of the WAV file at path without
// decoding its samples.
func ProbeWAV(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return WAVInfo{}, fmt.Errorf("not a valid WAV file: %s", path)
	}

	return WAVInfo{
		SampleRate:  float64(decoder.SampleRate),
		NumChannels: int(decoder.NumChans),
		BitDepth:    int(decoder.BitDepth),
	}, nil
}

// StreamWAV decodes the WAV file at path and delivers its first
// channel to the handler as consecutive mono frames of frameSize
// samples. A trailing partial frame is dropped. Returns the number of
// full frames delivered.
func StreamWAV(path string, frameSize int, handler FrameFunc) (int, error) {
	if frameSize <= 0 {
		return 0, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}
	if handler == nil {
		return 0, fmt.Errorf("frame handler cannot be nil")
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return 0, fmt.Errorf("not a valid WAV file: %s", path)
	}

	channels := int(decoder.NumChans)
	convert := sampleConverter(int(decoder.BitDepth))
	if convert == nil {
		return 0, fmt.Errorf("unsupported WAV bit depth: %d", decoder.BitDepth)
	}

	applog.Infof("Capture: Streaming %s (%.0f Hz, %d ch, %d-bit)",
		path, float64(decoder.SampleRate), channels, decoder.BitDepth)

	chunk := &audio.IntBuffer{
		Format: decoder.Format(),
		Data:   make([]int, frameSize*channels),
	}
	frame := make([]int16, frameSize)
	filled := 0
	frames := 0

	for {
		n, err := decoder.PCMBuffer(chunk)
		if err != nil {
			return frames, fmt.Errorf("failed to decode WAV data: %w", err)
		}
		if n == 0 {
			break
		}

		// Take channel 0 of each interleaved sample group.
		for i := 0; i+channels-1 < n; i += channels {
			frame[filled] = convert(chunk.Data[i])
			filled++
			if filled == frameSize {
				handler(frame)
				frames++
				filled = 0
			}
		}
	}

	if filled > 0 {
		applog.Debugf("Capture: Dropped trailing partial frame of %d samples", filled)
	}

	return frames, nil
}

// sampleConverter maps a WAV bit depth to a function converting a
// decoded sample into int16. Returns nil for unsupported depths.
func sampleConverter(bitDepth int) func(int) int16 {
	switch bitDepth {
	case 8:
		// 8-bit PCM is unsigned, centered on 128.
		return func(s int) int16 { return int16((s - 128) << 8) }
	case 16:
		return func(s int) int16 { return int16(s) }
	case 24:
		return func(s int) int16 { return int16(s >> 8) }
	case 32:
		return func(s int) int16 { return int16(s >> 16) }
	default:
		return nil
	}
}
