// SPDX-License-Identifier: MIT
package capture

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"melscope/internal/config"
	applog "melscope/internal/log"
)

// Stream captures live audio from a PortAudio device and delivers
// mono int16 frames to a handler. Multi-channel input is reduced to
// channel 0 before the handler runs.
type Stream struct {
	cfg     config.AudioConfig
	handler FrameFunc

	inputBuffer  []int16
	monoInput    []int16
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// Recording state and buffers.
	isRecording int32 // Atomic flag for thread-safe state
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer // Reusable buffer for format conversion
}

// NewStream resolves the input device and pre-allocates all buffers.
// PortAudio must already be initialized.
func NewStream(cfg config.AudioConfig, handler FrameFunc) (*Stream, error) {
	inputDevice, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		cfg:         cfg,
		handler:     handler,
		inputBuffer: make([]int16, cfg.FrameSize*cfg.InputChannels),
		monoInput:   make([]int16, cfg.FrameSize),
		inputDevice: inputDevice,
	}

	if cfg.LowLatency {
		s.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		s.inputLatency = inputDevice.DefaultHighInputLatency
	}

	return s, nil
}

// Start opens and starts the input stream. Frames begin arriving at
// the handler on the audio callback thread.
func (s *Stream) Start() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: s.cfg.InputChannels,
			Device:   s.inputDevice,
			Latency:  s.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0,
			Device:   nil,
		},
		FramesPerBuffer: s.cfg.FrameSize,
		SampleRate:      s.cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, s.processInputStream)
	if err != nil {
		return err
	}
	s.inputStream = stream

	if err := s.inputStream.Start(); err != nil {
		s.inputStream.Close()
		return err
	}

	applog.Infof("Capture: Input stream started (%s, %.0f Hz, %d ch, latency %s)",
		s.inputDevice.Name, s.cfg.SampleRate, s.cfg.InputChannels, s.inputLatency)
	return nil
}

// Stop stops and closes the input stream.
func (s *Stream) Stop() error {
	if s.inputStream != nil {
		if err := s.inputStream.Stop(); err != nil {
			return err
		}
		if err := s.inputStream.Close(); err != nil {
			return err
		}
		s.inputStream = nil
	}
	return nil
}

// Close stops any active recording and the input stream.
func (s *Stream) Close() error {
	if atomic.LoadInt32(&s.isRecording) == 1 {
		if err := s.StopRecording(); err != nil {
			return err
		}
	}
	return s.Stop()
}

// processInputStream is the audio callback.
// Performance Critical:
// - Runs on the PortAudio callback thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (s *Stream) processInputStream(in []int16) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	copy(s.inputBuffer, in)

	frame := s.inputBuffer
	if s.cfg.InputChannels > 1 {
		for i := range s.cfg.FrameSize {
			idx := i * s.cfg.InputChannels
			if idx < len(s.inputBuffer) {
				s.monoInput[i] = s.inputBuffer[idx]
			} else {
				s.monoInput[i] = 0
			}
		}
		frame = s.monoInput
	}

	if s.handler != nil {
		s.handler(frame)
	}

	// Write to WAV file if recording
	if atomic.LoadInt32(&s.isRecording) == 1 && s.wavEncoder != nil {
		for i, sample := range s.inputBuffer {
			s.sampleBuf.Data[i] = int(sample)
		}
		s.sampleBuf.Data = s.sampleBuf.Data[:len(s.inputBuffer)]

		if err := s.wavEncoder.Write(s.sampleBuf); err != nil {
			applog.Errorf("Capture: Error writing to WAV file: %v", err)
		}
	}
}
