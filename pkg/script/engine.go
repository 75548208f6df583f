// Package script runs JavaScript automation scripts against a connected
// device. Scripts see the device session as `device`, the app controller as
// `controller`, plus `console`, `sleep(ms)` and an `output` object whose
// contents are handed back to the caller.
package script

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dop251/goja"

	"github.com/wxauto/wxprobe/pkg/automator"
	"github.com/wxauto/wxprobe/pkg/config"
	"github.com/wxauto/wxprobe/pkg/controller"
)

// Engine wraps a goja runtime bound to one controller. Scripts run one at a
// time.
type Engine struct {
	runtime *goja.Runtime
	ctrl    *controller.Controller
	auto    automator.Automation
	cfg     *config.Config
	output  map[string]interface{}

	mu  sync.Mutex
	ctx context.Context // of the script currently running
}

// New creates an engine whose bindings drive ctrl.
func New(ctrl *controller.Controller) *Engine {
	e := &Engine{
		runtime: goja.New(),
		ctrl:    ctrl,
		auto:    ctrl.Automation(),
		cfg:     ctrl.Config(),
		output:  make(map[string]interface{}),
		ctx:     context.Background(),
	}
	e.runtime.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	e.setupBuiltins()
	return e
}

func (e *Engine) setupBuiltins() {
	e.runtime.Set("console", e.consoleObject())
	e.runtime.Set("sleep", e.sleep)
	e.runtime.Set("device", e.deviceObject())
	e.runtime.Set("controller", e.controllerObject())
	e.runtime.Set("output", e.output)
}

// SetVariable defines a global visible to scripts.
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtime.Set(name, value)
}

// Eval evaluates an expression and exports its value.
func (e *Engine) Eval(ctx context.Context, src string) (interface{}, error) {
	v, err := e.run(ctx, "<eval>", src)
	if err != nil {
		return nil, err
	}
	return v.Export(), nil
}

// Run executes src; name is used in error positions.
func (e *Engine) Run(ctx context.Context, name, src string) error {
	_, err := e.run(ctx, name, src)
	return err
}

// RunFile executes the script at path.
func (e *Engine) RunFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path) //#nosec G304 -- user-provided script
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return e.Run(ctx, path, string(src))
}

func (e *Engine) run(ctx context.Context, name, src string) (goja.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	e.ctx = ctx
	defer func() { e.ctx = context.Background() }()

	stop := make(chan struct{})
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		select {
		case <-ctx.Done():
			e.runtime.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	v, err := e.runtime.RunProgram(prog)
	close(stop)
	<-watching
	// an interrupt that lost the race would hit the next run
	e.runtime.ClearInterrupt()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("script %s: %w", name, err)
	}
	return v, nil
}

// Output returns a copy of the values the script stored in `output`.
func (e *Engine) Output() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	source := e.output
	if v := e.runtime.Get("output"); v != nil && !goja.IsUndefined(v) {
		if m, ok := v.Export().(map[string]interface{}); ok {
			source = m
		}
	}
	result := make(map[string]interface{}, len(source))
	for k, v := range source {
		result[k] = v
	}
	return result
}
