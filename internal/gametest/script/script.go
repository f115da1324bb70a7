// Package script loads GameTest-style JavaScript test files. Each file runs
// in its own goja runtime; tests registered by the file keep that runtime and
// call back into it when they run. A goja runtime is not goroutine safe, so
// tests from one file must never run concurrently (the runner drives runs
// sequentially).
package script

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dop251/goja"

	"voxelcraft.ai/gametest/internal/gametest"
	"voxelcraft.ai/gametest/internal/gametest/registry"
)

const (
	DefaultMaxTicks = 100
	// DefaultCallTimeout bounds a single call into script code.
	DefaultCallTimeout = 2 * time.Second
)

// ScriptError is an exception thrown by script code that did not originate
// from a harness call.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string { return e.Message }

type Loader struct {
	Registry        *registry.Registry
	DefaultMaxTicks int
	CallTimeout     time.Duration
	// Logger receives console.log output. Nil discards it.
	Logger *log.Logger
}

// LoadDir loads every *.js file in dir in lexical order.
func (l *Loader) LoadDir(dir string) ([]registry.Handle, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.js"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var out []registry.Handle
	for _, p := range paths {
		hs, err := l.LoadFile(p)
		out = append(out, hs...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (l *Loader) LoadFile(path string) ([]registry.Handle, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return l.LoadSource(path, string(b))
}

// LoadSource evaluates src and registers the tests it declared, in
// declaration order. Nothing is registered if evaluation fails. On a
// registration error the tests registered before it stay registered.
func (l *Loader) LoadSource(name, src string) ([]registry.Handle, error) {
	if l.Registry == nil {
		return nil, errors.New("script: nil registry")
	}
	e := newEngine(l, name)
	if err := e.run(src); err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	out := make([]registry.Handle, 0, len(e.pending))
	for _, b := range e.pending {
		h, err := l.Registry.Register(b.definition(e))
		if err != nil {
			return out, fmt.Errorf("load %s: %w", name, err)
		}
		out = append(out, h)
	}
	return out, nil
}

type engine struct {
	vm      *goja.Runtime
	loader  *Loader
	source  string
	pending []*builder
}

func newEngine(l *Loader, source string) *engine {
	e := &engine{vm: goja.New(), loader: l, source: source}
	e.setupGlobals()
	return e
}

func (e *engine) timeout() time.Duration {
	if e.loader.CallTimeout > 0 {
		return e.loader.CallTimeout
	}
	return DefaultCallTimeout
}

// guard interrupts the runtime if fn runs past the call timeout.
func (e *engine) guard(fn func() error) error {
	timer := time.AfterFunc(e.timeout(), func() {
		e.vm.Interrupt("script call timed out")
	})
	defer func() {
		timer.Stop()
		e.vm.ClearInterrupt()
	}()
	return fn()
}

func (e *engine) run(src string) error {
	return e.guard(func() error {
		_, err := e.vm.RunScript(e.source, src)
		return unwrapException(err)
	})
}

// call invokes a script callback and maps exceptions back to Go errors.
func (e *engine) call(fn goja.Callable, args ...goja.Value) (goja.Value, error) {
	var out goja.Value
	err := e.guard(func() error {
		v, err := fn(goja.Undefined(), args...)
		out = v
		return unwrapException(err)
	})
	return out, err
}

// callback adapts a script function to a step action.
func (e *engine) callback(fn goja.Callable) func() error {
	return func() error {
		_, err := e.call(fn)
		return err
	}
}

// throw raises err inside the runtime; unwrapException recovers it intact.
func (e *engine) throw(err error) {
	panic(e.vm.NewGoError(err))
}

func (e *engine) setupGlobals() {
	gt := e.vm.NewObject()
	_ = gt.Set("register", func(call goja.FunctionCall) goja.Value {
		suite := call.Argument(0).String()
		name := call.Argument(1).String()
		fn, ok := goja.AssertFunction(call.Argument(2))
		if !ok {
			panic(e.vm.NewTypeError("GameTest.register(%q, %q): test body must be a function", suite, name))
		}
		b := &builder{
			def: registry.TestDefinition{
				Suite:    suite,
				Name:     name,
				MaxTicks: e.defaultMaxTicks(),
				Required: true,
				Source:   e.source,
			},
			fn: fn,
		}
		e.pending = append(e.pending, b)
		return b.object(e.vm)
	})
	_ = e.vm.Set("GameTest", gt)

	console := e.vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		if e.loader.Logger == nil {
			return goja.Undefined()
		}
		args := make([]any, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			args = append(args, a.String())
		}
		e.loader.Logger.Println(args...)
		return goja.Undefined()
	})
	_ = e.vm.Set("console", console)
}

func (e *engine) defaultMaxTicks() int {
	if e.loader.DefaultMaxTicks > 0 {
		return e.loader.DefaultMaxTicks
	}
	return DefaultMaxTicks
}

// builder backs the chainable object GameTest.register returns.
type builder struct {
	def registry.TestDefinition
	fn  goja.Callable
}

func (b *builder) object(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	chain := func(set func(goja.FunctionCall)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			set(call)
			return obj
		}
	}
	_ = obj.Set("maxTicks", chain(func(c goja.FunctionCall) { b.def.MaxTicks = int(c.Argument(0).ToInteger()) }))
	_ = obj.Set("structureName", chain(func(c goja.FunctionCall) { b.def.Structure = c.Argument(0).String() }))
	_ = obj.Set("setupTicks", chain(func(c goja.FunctionCall) { b.def.SetupTicks = int(c.Argument(0).ToInteger()) }))
	_ = obj.Set("rotateTest", chain(func(c goja.FunctionCall) { b.def.Rotate = boolArg(c, 0, true) }))
	_ = obj.Set("required", chain(func(c goja.FunctionCall) { b.def.Required = boolArg(c, 0, true) }))
	_ = obj.Set("tag", chain(func(c goja.FunctionCall) {
		for _, a := range c.Arguments {
			b.def.Tags = append(b.def.Tags, a.String())
		}
	}))
	return obj
}

func (b *builder) definition(e *engine) registry.TestDefinition {
	def := b.def
	fn := b.fn
	def.Func = func(t *gametest.T) error {
		_, err := e.call(fn, newTestObject(e, t))
		return err
	}
	return def
}

func boolArg(c goja.FunctionCall, i int, def bool) bool {
	v := c.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return def
	}
	return v.ToBoolean()
}

// unwrapException turns a thrown harness error back into the Go error it
// started as. Plain script exceptions become ScriptError.
func unwrapException(err error) error {
	if err == nil {
		return nil
	}
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return err
	}
	if obj, ok := ex.Value().(*goja.Object); ok {
		if v := obj.Get("value"); v != nil {
			if ge, ok := v.Export().(error); ok {
				return ge
			}
		}
	}
	return &ScriptError{Message: ex.Value().String()}
}
