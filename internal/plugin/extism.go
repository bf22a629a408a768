package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	extism "github.com/extism/go-sdk"
)

// Instance is a running plugin
type Instance interface {
	// Call invokes an exported function and returns its output
	Call(ctx context.Context, function string, input []byte) ([]byte, error)
	// Close releases the instance
	Close(ctx context.Context) error
}

// Runtime creates plugin instances from manifests
type Runtime interface {
	Instantiate(ctx context.Context, m *Manifest, logger *log.Logger) (Instance, error)
}

// ExtismRuntime runs plugins with the Extism WebAssembly host
type ExtismRuntime struct {
	// EnableWasi gives plugins the WASI system interface
	EnableWasi bool
}

// NewRuntime returns an Extism runtime with WASI enabled
func NewRuntime() *ExtismRuntime {
	return &ExtismRuntime{EnableWasi: true}
}

// Instantiate compiles the manifest's module and links the host log
// functions, which write to logger
func (r *ExtismRuntime) Instantiate(ctx context.Context, m *Manifest, logger *log.Logger) (Instance, error) {
	if len(m.Module) == 0 {
		return nil, errors.New("plugin module is empty")
	}

	p, err := extism.NewPlugin(ctx, toExtism(m), extism.PluginConfig{
		EnableWasi: r.EnableWasi,
	}, HostFunctions(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate plugin %s: %w", m.Name, err)
	}
	return &extismInstance{plugin: p}, nil
}

// toExtism converts a manifest into the runtime's form
func toExtism(m *Manifest) extism.Manifest {
	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmData{Data: m.Module, Name: m.Name},
		},
		AllowedHosts: m.AllowedHosts,
		AllowedPaths: m.allowedPaths(),
		Config:       m.Config,
	}
	if m.Timeout > 0 {
		manifest.Timeout = uint64(m.Timeout.Milliseconds())
	}
	return manifest
}

type extismInstance struct {
	plugin *extism.Plugin
}

func (i *extismInstance) Call(ctx context.Context, function string, input []byte) ([]byte, error) {
	exit, out, err := i.plugin.CallWithContext(ctx, function, input)
	if err != nil {
		return nil, err
	}
	if exit != 0 {
		return nil, fmt.Errorf("%s returned exit code %d", function, exit)
	}
	// The output buffer belongs to the plugin's memory
	return append([]byte(nil), out...), nil
}

func (i *extismInstance) Close(ctx context.Context) error {
	return i.plugin.Close()
}

// logFunctionNames maps each level to the import names plugins use for
// it, current name first
var logFunctionNames = []struct {
	level log.Level
	names []string
}{
	{log.DebugLevel, []string{"debug", "matricks_debug"}},
	{log.InfoLevel, []string{"info", "matricks_info"}},
	{log.WarnLevel, []string{"warn", "matricks_warn"}},
	{log.ErrorLevel, []string{"error", "matricks_error"}},
}

// HostFunctions returns the log callbacks imported by plugins. Each takes
// a pointer to a string in plugin memory and returns nothing.
func HostFunctions(logger *log.Logger) []extism.HostFunction {
	var funcs []extism.HostFunction
	for _, entry := range logFunctionNames {
		level := entry.level
		for _, name := range entry.names {
			funcs = append(funcs, extism.NewHostFunctionWithStack(
				name,
				func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
					msg, err := p.ReadString(stack[0])
					if err != nil {
						logger.Debug("Failed to read log message from plugin", "err", err)
						return
					}
					logger.Log(level, msg)
				},
				[]extism.ValueType{extism.ValueTypePTR},
				[]extism.ValueType{},
			))
		}
	}
	return funcs
}
