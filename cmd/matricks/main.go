package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/fkcurrie/matricks-golang/internal/config"
	"github.com/fkcurrie/matricks-golang/internal/core"
	"github.com/fkcurrie/matricks-golang/internal/discovery"
	"github.com/fkcurrie/matricks-golang/internal/display"
	"github.com/fkcurrie/matricks-golang/internal/logging"
	"github.com/fkcurrie/matricks-golang/internal/plugin"
	"github.com/fkcurrie/matricks-golang/pkg/strip"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return 2
	}

	command, args := args[0], args[1:]
	switch command {
	case "run":
		cfg := config.Default()
		flagSet := manualFlags("run", cfg)
		if code, done := parse(flagSet, args); done {
			return code
		}
		return runCore(cfg)

	case "auto":
		cfg, code, ok := loadArg("auto", args)
		if !ok {
			return code
		}
		return runCore(cfg)

	case "save":
		cfg := config.Default()
		flagSet := manualFlags("save", cfg)
		if code, done := parse(flagSet, args); done {
			return code
		}
		if flagSet.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: matricks save CONFIG.toml [flags]")
			return 2
		}
		if err := cfg.Validate(); err != nil {
			log.Error("Invalid matrix configuration.", "err", err)
			return 1
		}
		if err := config.Save(flagSet.Arg(0), cfg); err != nil {
			log.Error("Failed to save matrix configuration.", "err", err)
			return 1
		}
		log.Info("Saved matrix configuration.", "path", flagSet.Arg(0))
		return 0

	case "clear":
		cfg, code, ok := loadOptionalArg("clear", args)
		if !ok {
			return code
		}
		return clearMatrix(cfg)

	case "test":
		cfg, code, ok := loadOptionalArg("test", args)
		if !ok {
			return code
		}
		return testPattern(cfg)

	case "version", "--version":
		fmt.Fprintf(stdout, "matricks %s\n", version)
		return 0

	case "help", "-h", "--help":
		printUsage(stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		printUsage(os.Stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Run WebAssembly plugins on an LED matrix.

Usage:
  matricks run [flags]                 configure the matrix with flags
  matricks auto CONFIG.toml            load the configuration from a file
  matricks save CONFIG.toml [flags]    write the flag configuration to a file
  matricks clear [CONFIG.toml]         turn every LED off
  matricks test [CONFIG.toml]          show a test pattern
  matricks version                     print the version

Strip drivers: %v
Run "matricks run --help" for the configuration flags.
`, strip.Kinds())
}

// parse parses flags, reporting whether the command should exit with
// the returned code
func parse(flagSet *pflag.FlagSet, args []string) (int, bool) {
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, true
		}
		return 2, true
	}
	return 0, false
}

// manualFlags binds the configuration flags to cfg
func manualFlags(name string, cfg *config.Config) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("matricks "+name, pflag.ContinueOnError)
	flagSet.SortFlags = false

	m := &cfg.Matrix
	flagSet.IntVarP(&m.Width, "width", "x", m.Width, "number of LED columns")
	flagSet.IntVarP(&m.Height, "height", "y", m.Height, "number of LED rows")
	flagSet.Float64VarP(&m.FPS, "fps", "f", m.FPS, "target frames per second")
	flagSet.BoolVarP(&m.Serpentine, "serpentine", "s", m.Serpentine, "rows alternate direction along the strip")
	flagSet.BoolVar(&m.Vertical, "vertical", m.Vertical, "the strip runs along columns")
	flagSet.BoolVar(&m.MirrorHorizontal, "mirror-horizontal", m.MirrorHorizontal, "mirror the picture left to right")
	flagSet.BoolVar(&m.MirrorVertical, "mirror-vertical", m.MirrorVertical, "mirror the picture top to bottom")
	flagSet.IntVarP(&m.Brightness, "brightness", "b", m.Brightness, "strip brightness, 0-255")
	flagSet.IntVar(&m.GPIOPin, "gpio-pin", m.GPIOPin, "GPIO pin driving the strip")
	flagSet.IntVar(&m.DMAChannel, "dma-channel", m.DMAChannel, "DMA channel used for the strip")
	flagSet.IntVar(&m.Frequency, "frequency", m.Frequency, "strip signal frequency in Hz")
	flagSet.Float64Var(&m.Magnification, "magnification", m.Magnification, "pixels per LED for the png driver")

	p := &cfg.Plugin
	flagSet.StringVarP(&p.Path, "plugins", "p", p.Path, "plugin file or directory of plugins")
	flagSet.BoolVarP(&p.Loop, "loop", "l", p.Loop, "run the plugins forever")
	flagSet.IntVarP(&p.TimeLimit, "time-limit", "t", p.TimeLimit, "seconds each plugin may run, 0 for no limit")
	flagSet.StringSliceVar(&p.AllowHost, "allow-host", p.AllowHost, "host plugins may reach over HTTP")
	flagSet.StringArrayVar(&p.MapPath, "map-path", p.MapPath, "directory grant as SANDBOX_PATH>HOST_PATH")
	flagSet.StringVar(&p.Protocol, "protocol", p.Protocol, "update response format: auto, frame or update")
	flagSet.StringVar(&p.ConfigDelivery, "config-delivery", p.ConfigDelivery, "how plugins receive the configuration: json, keyvalue or both")
	flagSet.IntVar(&p.CallTimeoutMS, "call-timeout-ms", p.CallTimeoutMS, "milliseconds a plugin call may take, 0 for no limit")

	d := &cfg.Driver
	flagSet.StringVar(&d.Kind, "driver", d.Kind, fmt.Sprintf("strip driver, one of %v", strip.Kinds()))
	flagSet.StringVar(&d.Output, "output", d.Output, "output file or URL for simulated drivers")
	flagSet.StringVar(&d.PowerChip, "power-chip", d.PowerChip, "GPIO chip of the strip power line")
	flagSet.IntVar(&d.PowerLine, "power-line", d.PowerLine, "GPIO line switching strip power, -1 for none")
	flagSet.IntVar(&d.StopTimeoutMS, "stop-timeout-ms", d.StopTimeoutMS, "milliseconds to wait for the matrix to clear on exit, 0 to wait until done")

	flagSet.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	flagSet.StringVar(&cfg.Log.Dir, "log-dir", cfg.Log.Dir, "directory for matricks.log")
	return flagSet
}

// loadArg loads the configuration file named by the only argument
func loadArg(name string, args []string) (*config.Config, int, bool) {
	flagSet := pflag.NewFlagSet("matricks "+name, pflag.ContinueOnError)
	if code, done := parse(flagSet, args); done {
		return nil, code, false
	}
	if flagSet.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: matricks %s CONFIG.toml\n", name)
		return nil, 2, false
	}
	return load(flagSet.Arg(0))
}

// loadOptionalArg loads the named configuration file, or the defaults
// when none is given
func loadOptionalArg(name string, args []string) (*config.Config, int, bool) {
	flagSet := pflag.NewFlagSet("matricks "+name, pflag.ContinueOnError)
	if code, done := parse(flagSet, args); done {
		return nil, code, false
	}
	switch flagSet.NArg() {
	case 0:
		return config.Default(), 0, true
	case 1:
		return load(flagSet.Arg(0))
	default:
		fmt.Fprintf(os.Stderr, "usage: matricks %s [CONFIG.toml]\n", name)
		return nil, 2, false
	}
}

func load(path string) (*config.Config, int, bool) {
	cfg, err := config.Load(path)
	if err != nil {
		log.Error("Failed to load matrix configuration.", "err", err)
		return nil, 1, false
	}
	return cfg, 0, true
}

// opener returns the driver factory for the configured driver
func opener(cfg *config.Config) display.Opener {
	return func(opts strip.Options) (strip.Driver, error) {
		opts.Output = cfg.Driver.Output
		opts.PowerChip = cfg.Driver.PowerChip
		opts.PowerLine = cfg.Driver.PowerLine
		return strip.Open(cfg.Driver.Kind, opts)
	}
}

// newController validates the configuration and builds the logger and
// matrix controller shared by every command that drives the strip
func newController(cfg *config.Config) (*display.Controller, *log.Logger, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid matrix configuration: %w", err)
	}
	logger, closer, err := logging.Open(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		return nil, nil, nil, err
	}
	controller, err := display.NewController(cfg.MatrixConfiguration(), opener(cfg), logger)
	if err != nil {
		closer.Close()
		return nil, nil, nil, fmt.Errorf("failed to create matrix controller: %w", err)
	}
	return controller, logger, closer, nil
}

func runCore(cfg *config.Config) int {
	controller, logger, closer, err := newController(cfg)
	if err != nil {
		log.Error(err)
		log.Error("Quitting Matricks.")
		return 1
	}
	defer closer.Close()

	delivery, err := plugin.ParseDelivery(cfg.Plugin.ConfigDelivery)
	if err != nil {
		logger.Error(err)
		return 1
	}
	protocol, err := plugin.ParseProtocol(cfg.Plugin.Protocol)
	if err != nil {
		logger.Error(err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := core.New(core.Options{
		Matrix:       cfg.MatrixConfiguration(),
		Loop:         cfg.Plugin.Loop,
		TimeLimit:    cfg.TimeLimit(),
		AllowedHosts: cfg.Plugin.AllowHost,
		PathMaps:     cfg.Plugin.MapPath,
		Delivery:     delivery,
		Protocol:     protocol,
		CallTimeout:  cfg.CallTimeout(),
		StopTimeout:  cfg.StopTimeout(),
	}, discovery.NewScanner(cfg.Plugin.Path), plugin.NewRuntime(), controller, logger)

	logger.Info("Starting Matricks.", "version", version, "plugins", cfg.Plugin.Path, "driver", cfg.Driver.Kind)
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return 1
	}
	return 0
}

// clearMatrix starts and immediately stops the controller, which blanks
// every LED on the way out
func clearMatrix(cfg *config.Config) int {
	controller, logger, closer, err := newController(cfg)
	if err != nil {
		log.Error(err)
		return 1
	}
	defer closer.Close()

	if err := controller.Start(); err != nil {
		logger.Error("Failed to clear matrix.", "err", err)
		return 1
	}
	if err := controller.Stop(context.Background()); err != nil {
		logger.Error("Failed to clear matrix.", "err", err)
		return 1
	}
	logger.Info("Cleared matrix.")
	return 0
}
