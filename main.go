package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"melscope/cmd"
	"melscope/internal/capture"
	"melscope/internal/colormap"
	"melscope/internal/config"
	"melscope/internal/dsp"
	applog "melscope/internal/log"
	"melscope/internal/spectrogram"
	"melscope/internal/transport"
	"melscope/internal/transport/udp"
	"melscope/internal/waterfall"
	"melscope/pkg/build"
)

// main is the entry point for the spectrogram application.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Construct the pipeline, waterfall and transports
//
// 2. Concurrent Phase (Hot Path):
//   - Stream frames from a WAV file, or
//   - Start live capture and process frames on the audio callback
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop recording if active
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Build metadata is optional; development builds skip the ldflags.
	if err := build.Initialize(); err != nil {
		applog.Debugf("Build info unavailable: %v", err)
	}

	cfg, command, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("%v", err)
	}

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	}

	if command == "list" {
		if err := cmd.RunList(); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	// File mode re-derives the sample rate from the WAV header, so the
	// pipeline is built inside each run path.
	if cfg.Audio.InputFile != "" {
		if err := runFile(cfg); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	if err := runLive(cfg); err != nil {
		applog.Fatalf("%v", err)
	}
}

// buildVisualization constructs the pipeline and waterfall from a
// validated configuration.
func buildVisualization(cfg *config.Config) (*spectrogram.Pipeline, *waterfall.Buffer, error) {
	windowType, err := dsp.ParseWindowFunc(cfg.Spectrogram.Window)
	if err != nil {
		return nil, nil, err
	}
	cmap, err := colormap.Parse(cfg.Spectrogram.ColorMap)
	if err != nil {
		return nil, nil, err
	}

	pipeline, err := spectrogram.New(spectrogram.Config{
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FrameSize,
		HopSize:    cfg.Audio.HopSize,
		NumBands:   cfg.Spectrogram.NumBands,
		MinFreq:    cfg.Spectrogram.MinFreq,
		MaxFreq:    cfg.Spectrogram.MaxFreq,
		Window:     windowType,
		ColorMap:   cmap,
	})
	if err != nil {
		return nil, nil, err
	}

	wf, err := waterfall.New(cfg.Display.Width, cfg.Display.Height, cfg.Spectrogram.NumBands)
	if err != nil {
		return nil, nil, err
	}
	if err := wf.SetRange(cfg.Display.MinValue, cfg.Display.MaxValue); err != nil {
		return nil, nil, err
	}
	wf.SetColorMap(cmap)

	return pipeline, wf, nil
}

// newFrameHandler wires the pipeline, waterfall and transports into a
// single per-frame callback. All buffers are allocated up front.
func newFrameHandler(cfg *config.Config, pipeline *spectrogram.Pipeline,
	wf *waterfall.Buffer, wst transport.Transport, pub *udp.ColumnPublisher) capture.FrameFunc {

	melBuf := make([]float64, cfg.Spectrogram.NumBands)
	colBuf := make([]byte, cfg.Spectrogram.NumBands*4)
	rasterBuf := make([]byte, cfg.Display.Width*cfg.Display.Height*4)

	wsInterval := cfg.Transport.WSSendInterval
	var lastRasterSend time.Time
	overloaded := false

	return func(frame []int16) {
		if err := pipeline.ProcessFrame(frame); err != nil {
			applog.Warnf("Pipeline: Dropping frame: %v", err)
			return
		}

		if err := pipeline.MelSpectrumInto(melBuf); err == nil {
			if err := wf.UpdateColumn(melBuf); err != nil {
				applog.Warnf("Waterfall: %v", err)
			}
		}

		if pub != nil {
			if err := pipeline.ColorColumnInto(colBuf); err == nil {
				pub.Publish(colBuf)
			}
		}

		if wst != nil {
			// Send copies binary payloads before queueing, so reusing
			// rasterBuf on the next frame is safe.
			now := time.Now()
			if now.Sub(lastRasterSend) >= wsInterval {
				lastRasterSend = now
				if err := wf.TextureDataInto(rasterBuf); err == nil {
					wst.Send(rasterBuf)
				}
			}
		}

		if over := pipeline.IsOverloaded(); over != overloaded {
			overloaded = over
			if over {
				stats := pipeline.Stats()
				applog.Warnf("Pipeline: Frame processing overloaded (%.1fms)", stats.ProcessingTimeMs)
			}
		}
	}
}

// setupTransports builds the configured output transports. Either may
// be nil when disabled.
func setupTransports(cfg *config.Config) (transport.Transport, *udp.ColumnPublisher, error) {
	var wst transport.Transport
	if cfg.Transport.WSEnabled {
		wst = transport.NewWebSocketTransport(cfg.Transport.WSAddress, cfg.Transport.WSSendInterval)
	}

	var pub *udp.ColumnPublisher
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return nil, nil, err
		}
		pub, err = udp.NewColumnPublisher(cfg.Transport.UDPSendInterval, sender, cfg.Spectrogram.NumBands)
		if err != nil {
			sender.Close()
			return nil, nil, err
		}
	}

	return wst, pub, nil
}

// runFile streams a WAV file through the pipeline at full speed.
func runFile(cfg *config.Config) error {
	info, err := capture.ProbeWAV(cfg.Audio.InputFile)
	if err != nil {
		return err
	}

	// The file's sample rate wins over the configured one. Clamp the
	// analysis range to the new Nyquist frequency if needed.
	cfg.Audio.SampleRate = info.SampleRate
	if nyquist := info.SampleRate / 2; cfg.Spectrogram.MaxFreq > nyquist {
		applog.Warnf("Clamping max frequency to Nyquist: %.0f Hz", nyquist)
		cfg.Spectrogram.MaxFreq = nyquist
	}

	pipeline, wf, err := buildVisualization(cfg)
	if err != nil {
		return err
	}

	wst, pub, err := setupTransports(cfg)
	if err != nil {
		return err
	}
	defer closeTransports(wst, pub)

	handler := newFrameHandler(cfg, pipeline, wf, wst, pub)

	start := time.Now()
	frames, err := capture.StreamWAV(cfg.Audio.InputFile, cfg.Audio.FrameSize, handler)
	if err != nil {
		return err
	}

	stats := pipeline.Stats()
	elapsed := time.Since(start)
	fmt.Printf("Processed %d frames in %s (avg %.2fms/frame)\n",
		frames, elapsed.Round(time.Millisecond), stats.AvgProcessingTimeMs)
	return nil
}

// runLive captures from an input device until interrupted.
func runLive(cfg *config.Config) error {
	// Limit OS threads to optimize for real-time audio processing:
	// one thread for the audio callback, one for transports and I/O.
	runtime.GOMAXPROCS(2)

	if err := capture.Initialize(); err != nil {
		return err
	}
	defer capture.Terminate()

	pipeline, wf, err := buildVisualization(cfg)
	if err != nil {
		return err
	}

	wst, pub, err := setupTransports(cfg)
	if err != nil {
		return err
	}
	defer closeTransports(wst, pub)

	handler := newFrameHandler(cfg, pipeline, wf, wst, pub)

	stream, err := capture.NewStream(cfg.Audio, handler)
	if err != nil {
		return err
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	if err := stream.Start(); err != nil {
		return err
	}

	if cfg.Recording.Enabled {
		if err := stream.StartRecording(cfg.Recording.OutputFile); err != nil {
			stream.Close()
			return err
		}
		applog.Infof("Recording to %s", cfg.Recording.OutputFile)
	}

	fmt.Printf("Capturing. '%s --help' for usage information.\n", build.GetBuildFlags().Name)

	<-done

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if cfg.Recording.Enabled {
		if err := stream.StopRecording(); err != nil {
			applog.Errorf("Error stopping recording: %v", err)
		} else {
			fmt.Printf("\nRecording saved to: %s\n", cfg.Recording.OutputFile)
		}
	}

	if err := stream.Close(); err != nil {
		applog.Errorf("Error closing capture stream: %v", err)
	}

	stats := pipeline.Stats()
	applog.Infof("Processed %d frames (avg %.2fms, %.1f FPS)",
		stats.FramesProcessed, stats.AvgProcessingTimeMs, stats.FPS)
	return nil
}

func closeTransports(wst transport.Transport, pub *udp.ColumnPublisher) {
	if wst != nil {
		wst.Close()
	}
	if pub != nil {
		pub.Close()
	}
}
