package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"melscope/internal/capture"
	"melscope/internal/config"
	"melscope/pkg/build"
)

// ParseArgs loads the configuration, applies command-line overrides
// and returns the effective config plus the selected command ("" for
// the default run, "list" for device listing). The config file path
// can be set with MELSCOPE_CONFIG; otherwise config.yaml is searched
// in the working directory.
func ParseArgs() (*config.Config, string, error) {
	buildInfo := build.GetBuildFlags()

	cfg, err := config.Load(os.Getenv("MELSCOPE_CONFIG"))
	if err != nil {
		return nil, "", err
	}

	command := ""

	rootCmd := &cobra.Command{
		Use:   buildInfo.Name,
		Short: "Real-time mel spectrogram waterfall engine",
		Version: fmt.Sprintf("%s (commit %s, built %s)",
			buildInfo.Version, buildInfo.Commit, buildInfo.Time),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	// Audio input configuration. Flag defaults come from the loaded
	// config, so unset flags keep the file's values.
	rootCmd.PersistentFlags().IntVarP(&cfg.Audio.InputDevice, "device", "d", cfg.Audio.InputDevice,
		"Specify input device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentFlags().Float64VarP(&cfg.Audio.SampleRate, "sample-rate", "s", cfg.Audio.SampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&cfg.Audio.FrameSize, "frame-size", "b", cfg.Audio.FrameSize,
		"Samples per analysis frame (must be a power of 2)")
	rootCmd.PersistentFlags().IntVarP(&cfg.Audio.InputChannels, "channels", "c", cfg.Audio.InputChannels,
		"Number of channels to capture (1=mono, 2=stereo)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Audio.LowLatency, "low-latency", "l", cfg.Audio.LowLatency,
		"Use low latency mode for real-time processing")
	rootCmd.PersistentFlags().StringVarP(&cfg.Audio.InputFile, "file", "f", cfg.Audio.InputFile,
		"Stream a WAV file instead of capturing from a device")

	// Spectrogram configuration.
	rootCmd.PersistentFlags().IntVar(&cfg.Spectrogram.NumBands, "bands", cfg.Spectrogram.NumBands,
		"Number of mel bands per column")
	rootCmd.PersistentFlags().Float64Var(&cfg.Spectrogram.MinFreq, "min-freq", cfg.Spectrogram.MinFreq,
		"Low edge of the analyzed frequency range (Hz)")
	rootCmd.PersistentFlags().Float64Var(&cfg.Spectrogram.MaxFreq, "max-freq", cfg.Spectrogram.MaxFreq,
		"High edge of the analyzed frequency range (Hz)")
	rootCmd.PersistentFlags().StringVar(&cfg.Spectrogram.Window, "window", cfg.Spectrogram.Window,
		"Analysis window function (hann, hamming, blackman, ...)")
	rootCmd.PersistentFlags().StringVar(&cfg.Spectrogram.ColorMap, "colormap", cfg.Spectrogram.ColorMap,
		"Color map (viridis, inferno, plasma)")

	// Waterfall display configuration.
	rootCmd.PersistentFlags().IntVar(&cfg.Display.Width, "width", cfg.Display.Width,
		"Waterfall width in columns (history length)")
	rootCmd.PersistentFlags().IntVar(&cfg.Display.Height, "height", cfg.Display.Height,
		"Waterfall height in rows")

	// Transport configuration.
	rootCmd.PersistentFlags().BoolVar(&cfg.Transport.WSEnabled, "ws", cfg.Transport.WSEnabled,
		"Serve waterfall rasters over WebSocket")
	rootCmd.PersistentFlags().StringVar(&cfg.Transport.WSAddress, "ws-address", cfg.Transport.WSAddress,
		"WebSocket listen address")
	rootCmd.PersistentFlags().BoolVar(&cfg.Transport.UDPEnabled, "udp", cfg.Transport.UDPEnabled,
		"Send color columns over UDP")
	rootCmd.PersistentFlags().StringVar(&cfg.Transport.UDPTargetAddress, "udp-address", cfg.Transport.UDPTargetAddress,
		"UDP target address")

	// Recording configuration.
	rootCmd.PersistentFlags().BoolVarP(&cfg.Recording.Enabled, "record", "r", cfg.Recording.Enabled,
		"Record captured audio to a WAV file")
	rootCmd.PersistentFlags().StringVarP(&cfg.Recording.OutputFile, "output", "o", cfg.Recording.OutputFile,
		"Output file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	// Debug configuration.
	rootCmd.PersistentFlags().BoolVarP(&cfg.Debug, "verbose", "v", cfg.Debug,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, "", err
	}

	if cfg.Recording.Enabled && cfg.Recording.OutputFile == "" {
		cfg.Recording.OutputFile = "recording-" +
			time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	}

	// Flags can introduce values the file never had, validate again.
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, command, nil
}

// RunList prints the available audio devices.
func RunList() error {
	if err := capture.Initialize(); err != nil {
		return err
	}
	defer capture.Terminate()
	return capture.ListDevices()
}
