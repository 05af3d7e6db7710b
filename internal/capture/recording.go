package capture

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// StartRecording begins pass-through recording of the captured input
// to a 16-bit PCM WAV file. All captured channels are recorded, not
// just the analyzed one.
func (s *Stream) StartRecording(filename string) error {
	if atomic.LoadInt32(&s.isRecording) == 1 {
		return fmt.Errorf("already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	s.outputFile = file

	s.wavEncoder = wav.NewEncoder(file, int(s.cfg.SampleRate),
		16, s.cfg.InputChannels, 1)

	s.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: s.cfg.InputChannels,
			SampleRate:  int(s.cfg.SampleRate),
		},
		Data: make([]int, s.cfg.FrameSize*s.cfg.InputChannels),
	}

	atomic.StoreInt32(&s.isRecording, 1)

	return nil
}

// StopRecording finalizes the WAV file. Calling it while not
// recording is a no-op.
func (s *Stream) StopRecording() error {
	if atomic.LoadInt32(&s.isRecording) == 0 {
		return nil
	}

	atomic.StoreInt32(&s.isRecording, 0)

	if s.wavEncoder != nil {
		if err := s.wavEncoder.Close(); err != nil {
			return err
		}
		s.wavEncoder = nil
	}

	if s.outputFile != nil {
		if err := s.outputFile.Close(); err != nil {
			return err
		}
		s.outputFile = nil
	}

	return nil
}
