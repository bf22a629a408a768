// Package core runs plugins one after another and forwards the frames
// they produce to the matrix.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fkcurrie/matricks-golang/internal/logging"
	"github.com/fkcurrie/matricks-golang/internal/plugin"
	"github.com/fkcurrie/matricks-golang/internal/types"
)

// ErrAborted wraps every condition that ends a run early
var ErrAborted = errors.New("matricks aborted")

// Source lists and reads plugin modules
type Source interface {
	List(ctx context.Context) ([]string, error)
	Read(path string) ([]byte, error)
}

// Display accepts the frames produced by plugins
type Display interface {
	Start() error
	Update(frame types.FrameBuffer) error
	Stop(ctx context.Context) error
}

// Options controls how plugins are run
type Options struct {
	Matrix types.MatrixConfiguration

	// Loop repeats the plugin list until the context is cancelled
	Loop bool
	// TimeLimit moves on to the next plugin after this long. Zero means
	// plugins run until they finish.
	TimeLimit time.Duration

	// AllowedHosts and PathMaps are granted to every plugin. PathMaps
	// holds "SANDBOX_PATH>HOST_PATH" directives.
	AllowedHosts []string
	PathMaps     []string

	Delivery plugin.ConfigDelivery
	Protocol plugin.Protocol

	// CallTimeout bounds each call into a plugin. Zero means no limit.
	CallTimeout time.Duration
	// StopTimeout bounds the wait for the matrix to clear at the end of
	// a run. Zero waits indefinitely.
	StopTimeout time.Duration
}

// Scheduler runs plugins against a display
type Scheduler struct {
	opts    Options
	source  Source
	runtime plugin.Runtime
	display Display
	root    *log.Logger
	log     *log.Logger
}

// New creates a scheduler
func New(opts Options, source Source, runtime plugin.Runtime, display Display, logger *log.Logger) *Scheduler {
	if opts.Delivery == nil {
		opts.Delivery = plugin.BothDelivery{}
	}
	return &Scheduler{
		opts:    opts,
		source:  source,
		runtime: runtime,
		display: display,
		root:    logger,
		log:     logger.WithPrefix("core"),
	}
}

// Run starts the display and runs every plugin, repeating if looping is
// enabled. It returns nil once all plugins have finished, the context
// error when cancelled, and an error wrapping ErrAborted when the run
// cannot continue. The display is always stopped before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("Starting matrix controller.")
	if err := s.display.Start(); err != nil {
		s.log.Error("Failed to start matrix controller.")
		return s.abort(err)
	}
	defer s.stopDisplay()

	pathMaps := plugin.ParsePathMaps(s.opts.PathMaps, s.log)

	for {
		paths, err := s.source.List(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.interrupted(ctxErr)
			}
			s.log.Error("Unable to list plugins.", "err", err)
			return s.abort(err)
		}

		for _, path := range paths {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.interrupted(ctxErr)
			}
			if err := s.runPlugin(ctx, path, pathMaps); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return s.interrupted(ctxErr)
				}
				return s.abort(err)
			}
		}

		if !s.opts.Loop {
			s.log.Info("All plugins have finished.")
			return nil
		}
	}
}

func (s *Scheduler) abort(err error) error {
	s.log.Error("Quitting Matricks.")
	return fmt.Errorf("%w: %w", ErrAborted, err)
}

func (s *Scheduler) interrupted(err error) error {
	s.log.Info("Interrupted, stopping plugins.")
	return err
}

func (s *Scheduler) stopDisplay() {
	ctx := context.Background()
	if s.opts.StopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.StopTimeout)
		defer cancel()
	}

	s.log.Info("Stopping matrix controller.")
	if err := s.display.Stop(ctx); err != nil {
		s.log.Warn("Matrix controller did not stop cleanly.")
		s.log.Debug("Failed with the following error", "err", err)
	}
}

// runPlugin loads, sets up and updates one plugin. It returns an error
// only when the whole run has to end; problems with the plugin itself
// are logged and skip it.
func (s *Scheduler) runPlugin(ctx context.Context, path string, pathMaps []plugin.PathMap) error {
	name := plugin.NameFromPath(path)

	data, err := s.source.Read(path)
	if err != nil {
		s.skip(name, "Unable to read plugin", err)
		return nil
	}

	manifest := plugin.NewManifest(name, data).
		WithAllowedHosts(s.opts.AllowedHosts...).
		WithPaths(pathMaps...)
	manifest.Timeout = s.opts.CallTimeout
	for _, host := range manifest.AllowedHosts {
		s.log.Debug("Adding host to the manifest.", "host", host)
	}
	for _, p := range manifest.Paths {
		s.log.Debug("Adding path mapping to the manifest.", "from", p.From, "to", p.To)
	}

	if err := s.opts.Delivery.Apply(manifest, s.opts.Matrix); err != nil {
		s.skip(name, "Unable to apply configuration to plugin", err)
		return nil
	}
	setupInput, err := s.opts.Delivery.SetupInput(s.opts.Matrix)
	if err != nil {
		s.skip(name, "Unable to apply configuration to plugin", err)
		return nil
	}

	s.log.Info("Starting plugin.", "plugin", name)
	pluginLog := logging.ForPlugin(s.root, name)
	instance, err := s.runtime.Instantiate(ctx, manifest, pluginLog)
	if err != nil {
		s.skip(name, "Unable to instantiate plugin", err)
		return nil
	}
	defer func() {
		if err := instance.Close(context.Background()); err != nil {
			s.log.Debug("Failed to close plugin", "plugin", name, "err", err)
		}
	}()

	if _, err := instance.Call(ctx, "setup", setupInput); err != nil {
		s.log.Warn("Unable to set up plugin.", "plugin", name)
		s.log.Debug("Received the following error while setting up the plugin", "err", err)
	} else {
		s.log.Info("Successfully set up plugin.", "plugin", name)
	}

	return s.updateLoop(ctx, name, instance, pluginLog)
}

// skip logs why a plugin is being skipped
func (s *Scheduler) skip(name, reason string, err error) {
	s.log.Warn(reason+".", "plugin", name)
	s.log.Debug("Failed with the following error", "plugin", name, "err", err)
	s.log.Warn("This plugin will be skipped.", "plugin", name)
}

// updateLoop calls update once per frame interval until the plugin is
// done, fails or runs out of time
func (s *Scheduler) updateLoop(ctx context.Context, name string, instance plugin.Instance, pluginLog *log.Logger) error {
	cfg := s.opts.Matrix
	interval := cfg.FrameInterval()

	start := time.Now()
	lastFrame := start
	var deadline time.Time
	if s.opts.TimeLimit > 0 {
		deadline = start.Add(s.opts.TimeLimit)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		now := time.Now()
		if !deadline.IsZero() && !now.Before(deadline) {
			s.log.Info("Plugin time limit reached.", "plugin", name)
			return nil
		}

		next := lastFrame.Add(interval)
		if now.Before(next) {
			wake := next
			if !deadline.IsZero() && deadline.Before(wake) {
				wake = deadline
			}
			if err := sleep(ctx, wake.Sub(now)); err != nil {
				return err
			}
			continue
		}

		lastFrame = time.Now()
		out, err := instance.Call(ctx, "update", nil)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.skip(name, "Unable to retrieve state update from plugin", err)
			return nil
		}

		update, err := s.opts.Protocol.Decode(out, cfg.Width, cfg.Height)
		if err != nil {
			if errors.Is(err, plugin.ErrInvalidUTF8) {
				s.skip(name, "Received invalid UTF-8 result from plugin", err)
			} else {
				s.skip(name, "Received malformed update from plugin", err)
			}
			return nil
		}

		for _, msg := range update.LogMessage {
			pluginLog.Info(msg)
		}

		if update.Done {
			s.log.Info("Done with plugin.", "plugin", name)
			return nil
		}

		if err := s.display.Update(update.State); err != nil {
			s.log.Error("Failed to send state update to matrix control.")
			s.log.Debug("Failed with the following error", "err", err)
			return err
		}
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
