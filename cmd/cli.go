// SPDX-License-Identifier: MIT

// Package cmd wires the command line to the audio engine.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sinescope/internal/audio"
	"sinescope/internal/command"
	"sinescope/internal/config"
	"sinescope/internal/log"
	"sinescope/internal/tui"
	"sinescope/pkg/build"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	verbose    bool
	backend    string
	device     string
	inputFile  string
	sampleRate float64

	cfg *config.Config
}

// Execute runs the command line in args until ctx is done.
func Execute(ctx context.Context, args []string, out io.Writer) error {
	root := NewRootCommand(out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Output that is not logging goes
// to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	info := build.GetBuildInfo()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         info.Description,
		Version:       info.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "f", "",
		"Path to the YAML configuration file (default ./sinescope.yaml if present)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output")
	pf.StringVarP(&opts.backend, "backend", "b", config.DefaultBackend,
		"Audio backend: portaudio, null or file")
	pf.StringVarP(&opts.device, "device", "d", "default",
		"Device index or name substring. Use 'list' to see available devices.")
	pf.StringVar(&opts.inputFile, "input-file", "",
		"WAV file read by the file backend")
	pf.Float64VarP(&opts.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate in Hz, 0 uses the device default")

	rootCmd.AddCommand(
		newToneCommand(opts),
		newScopeCommand(opts),
		newMonitorCommand(opts),
		newListCommand(opts, out),
		newVersionCommand(out),
	)
	return rootCmd
}

// load reads the config file and applies the flags the user set on top.
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Audio.Backend = o.backend
	}
	if flags.Changed("device") {
		cfg.Audio.InputDevice = o.device
		cfg.Audio.OutputDevice = o.device
	}
	if flags.Changed("input-file") {
		cfg.Audio.InputFile = o.inputFile
		if !flags.Changed("backend") {
			cfg.Audio.Backend = config.BackendFile
		}
	}
	if flags.Changed("sample-rate") {
		cfg.Audio.SampleRate = o.sampleRate
	}

	level, ok := log.ParseLevel(cfg.LogLevel)
	if !ok {
		log.Warnf("Config: unknown log level %q, using %s", cfg.LogLevel, level)
	}
	if o.verbose {
		level = log.LevelDebug
	}
	log.SetLevel(level)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	o.cfg = cfg
	return nil
}

// engine opens the configured backend. The returned func closes it.
func (o *options) engine() (*audio.Engine, func(), error) {
	backend, err := audio.NewBackend(o.cfg)
	if err != nil {
		return nil, nil, err
	}
	log.Debugf("Audio: using %s backend", backend.Name())
	closeFn := func() {
		if err := backend.Close(); err != nil {
			log.Warnf("Audio: closing %s backend: %v", backend.Name(), err)
		}
	}
	return audio.NewEngine(o.cfg, backend), closeFn, nil
}

func newToneCommand(opts *options) *cobra.Command {
	var (
		freq, ampl, dur float64
		channels        string
	)
	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Play a sine tone on selected output channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			tc := opts.cfg.Tone
			pairs := []any{"freq", tc.Freq, "ampl", tc.Ampl, "dur", tc.Dur, "channels", tc.Channels}
			if cmd.Flags().Changed("freq") {
				pairs = append(pairs, "freq", freq)
			}
			if cmd.Flags().Changed("ampl") {
				pairs = append(pairs, "ampl", ampl)
			}
			if cmd.Flags().Changed("dur") {
				pairs = append(pairs, "dur", dur)
			}
			if cmd.Flags().Changed("channels") {
				chs, err := ParseChannels(channels)
				if err != nil {
					return err
				}
				pairs = append(pairs, "channels", chs)
			}
			req := command.BuildTone(pairs)

			engine, closeBackend, err := opts.engine()
			if err != nil {
				return err
			}
			defer closeBackend()
			return engine.RunTone(cmd.Context(), req)
		},
	}
	f := cmd.Flags()
	f.Float64Var(&freq, "freq", config.DefaultToneFreq, "Tone frequency in Hz")
	f.Float64Var(&ampl, "ampl", config.DefaultToneAmpl, "Linear amplitude")
	f.Float64Var(&dur, "dur", 0, "Duration in seconds, 0 plays until interrupted")
	f.StringVarP(&channels, "channels", "c", "", "Comma separated output channels, empty for all")
	return cmd
}

func newScopeCommand(opts *options) *cobra.Command {
	var (
		channels      string
		displayLength int
		trigger       int
		spectrum      bool
		udp, ws       bool
		meter         bool
	)
	cmd := &cobra.Command{
		Use:     "scope",
		Aliases: []string{"meter"},
		Short:   "Capture input channels and publish triggered scope windows",
		Long: "Capture input channels and publish triggered scope windows.\n" +
			"Invoked as 'meter' it shows the live level meter.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			meter = meter || cmd.CalledAs() == "meter"
			f := cmd.Flags()
			if f.Changed("channels") {
				chs, err := ParseChannels(channels)
				if err != nil {
					return err
				}
				cfg.Scope.Channels = chs
			}
			if f.Changed("display-length") {
				cfg.Scope.DisplayLength = displayLength
			}
			if f.Changed("trigger-channel") {
				cfg.Scope.TriggerChannel = trigger
			}
			if f.Changed("spectrum") {
				cfg.Scope.Spectrum = spectrum
			}
			if f.Changed("udp") {
				cfg.Transport.UDPEnabled = udp
			}
			if f.Changed("ws") {
				cfg.Transport.WSEnabled = ws
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			engine, closeBackend, err := opts.engine()
			if err != nil {
				return err
			}
			defer closeBackend()

			spec := command.NewCaptureSpec(cfg.Scope.Channels...)
			run := func(ctx context.Context) error { return engine.RunScope(ctx, spec) }
			if meter {
				return runWithMeter(cmd.Context(), engine, "Scope", run)
			}
			return run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&channels, "channels", "c", "", "Comma separated input channels, default 0")
	f.IntVar(&displayLength, "display-length", config.DefaultDisplayLength, "Points per display window")
	f.IntVarP(&trigger, "trigger-channel", "t", 0, "Position in --channels used for triggering")
	f.BoolVar(&spectrum, "spectrum", false, "Estimate the dominant frequency per channel")
	f.BoolVar(&udp, "udp", false, "Publish snapshots over UDP")
	f.BoolVar(&ws, "ws", false, "Publish snapshots over WebSocket")
	f.BoolVarP(&meter, "meter", "m", false, "Show a live level meter")
	return cmd
}

func newMonitorCommand(opts *options) *cobra.Command {
	var (
		channel, window int
		frequency       bool
		meter           bool
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Meter one input channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			f := cmd.Flags()
			if f.Changed("channel") {
				cfg.Monitor.Channel = channel
			}
			if f.Changed("window") {
				cfg.Monitor.Window = window
			}
			if f.Changed("frequency") {
				cfg.Monitor.Frequency = frequency
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			engine, closeBackend, err := opts.engine()
			if err != nil {
				return err
			}
			defer closeBackend()

			run := func(ctx context.Context) error { return engine.RunMonitor(ctx, cfg.Monitor.Channel) }
			if meter {
				return runWithMeter(cmd.Context(), engine, "Monitor", run)
			}
			return run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.IntVar(&channel, "channel", 0, "Input channel to meter")
	f.IntVarP(&window, "window", "w", config.DefaultMonitorWindow, "Samples per level measurement")
	f.BoolVar(&frequency, "frequency", false, "Estimate the dominant frequency")
	f.BoolVarP(&meter, "meter", "m", false, "Show a live level meter")
	return cmd
}

func newListCommand(opts *options, out io.Writer) *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := audio.NewBackend(opts.cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			if !interactive {
				devices, err := backend.Devices()
				if err != nil {
					return err
				}
				audio.ListDevices(out, devices)
				return nil
			}

			sel, err := tui.RunDevicePicker(backend.Devices)
			if err != nil || sel == nil {
				return err
			}
			field := "input_device"
			if sel.Device.MaxInputChannels == 0 {
				field = "output_device"
			}
			fmt.Fprintf(out, "audio:\n  %s: \"%d\"\n  sample_rate: %.0f\n", field, sel.Device.ID, sel.SampleRate)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false,
		"Pick a device and print its config snippet")
	return cmd
}

func newVersionCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(out, build.GetBuildInfo())
		},
	}
}

// runWithMeter runs fn in the background while the meter owns the
// terminal. Quitting the meter stops fn; fn ending closes the meter.
func runWithMeter(ctx context.Context, engine *audio.Engine, title string, fn func(context.Context) error) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the meter needs a terminal on stdout")
	}
	engine.SetInteractive(true)
	// Only errors are logged while the meter is up.
	prev := log.GetLevel()
	log.SetLevel(log.LevelError)
	defer log.SetLevel(prev)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		runErr = fn(ctx)
	}()

	uiErr := tui.RunMeter(engine.State(), title, done)
	cancel()
	<-done
	return errors.Join(runErr, uiErr)
}

// ParseChannels parses a comma separated channel list such as "0,2,3".
// Blank entries are ignored; an empty string yields nil.
func ParseChannels(s string) ([]int, error) {
	var out []int
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ch, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid channel %q: %w", part, err)
		}
		if ch < 0 {
			return nil, fmt.Errorf("invalid channel %d: must not be negative", ch)
		}
		out = append(out, ch)
	}
	return out, nil
}
