package script

import (
	"github.com/dop251/goja"

	"voxelcraft.ai/gametest/internal/gametest"
	"voxelcraft.ai/gametest/internal/host"
)

// newTestObject builds the `test` argument handed to a registered test body.
// Every method that fails throws, so script code stops at the first failure
// the same way an exception would.
func newTestObject(e *engine, t *gametest.T) *goja.Object {
	vm := e.vm
	obj := vm.NewObject()

	must := func(err error) {
		if err != nil {
			e.throw(err)
		}
	}
	fnArg := func(c goja.FunctionCall, i int, method string) goja.Callable {
		fn, ok := goja.AssertFunction(c.Argument(i))
		if !ok {
			panic(vm.NewTypeError("test.%s: argument %d must be a function", method, i+1))
		}
		return fn
	}
	intArg := func(c goja.FunctionCall, i int) int { return int(c.Argument(i).ToInteger()) }
	posArg := func(c goja.FunctionCall, i int) host.Vec3i {
		return host.Vec3i{X: intArg(c, i), Y: intArg(c, i+1), Z: intArg(c, i+2)}
	}
	set := func(name string, fn func(goja.FunctionCall) goja.Value) {
		_ = obj.Set(name, fn)
	}
	undef := goja.Undefined()

	// Outcome.
	set("succeed", func(goja.FunctionCall) goja.Value {
		t.Succeed()
		return undef
	})
	set("fail", func(c goja.FunctionCall) goja.Value {
		must(t.Fail(c.Argument(0).String()))
		return undef
	})
	set("succeedWhen", func(c goja.FunctionCall) goja.Value {
		must(t.SucceedWhen(e.callback(fnArg(c, 0, "succeedWhen"))))
		return undef
	})
	set("succeedOnTick", func(c goja.FunctionCall) goja.Value {
		must(t.SucceedOnTick(intArg(c, 0)))
		return undef
	})
	set("succeedOnTickWhen", func(c goja.FunctionCall) goja.Value {
		must(t.SucceedOnTickWhen(intArg(c, 0), e.callback(fnArg(c, 1, "succeedOnTickWhen"))))
		return undef
	})
	set("eventually", func(c goja.FunctionCall) goja.Value {
		must(t.Eventually(e.callback(fnArg(c, 0, "eventually")), intArg(c, 1)))
		return undef
	})

	// Scheduling.
	set("runAtTickTime", func(c goja.FunctionCall) goja.Value {
		must(t.RunAtTickTime(intArg(c, 0), e.callback(fnArg(c, 1, "runAtTickTime"))))
		return undef
	})
	set("runAfterDelay", func(c goja.FunctionCall) goja.Value {
		must(t.RunAfterDelay(intArg(c, 0), e.callback(fnArg(c, 1, "runAfterDelay"))))
		return undef
	})
	set("repeatUntil", func(c goja.FunctionCall) goja.Value {
		var then func() error
		if fn, ok := goja.AssertFunction(c.Argument(2)); ok {
			then = e.callback(fn)
		}
		must(t.RepeatUntil(e.callback(fnArg(c, 0, "repeatUntil")), intArg(c, 1), then))
		return undef
	})
	set("getTick", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(t.Tick())
	})

	// Assertions.
	set("assert", func(c goja.FunctionCall) goja.Value {
		must(t.Assert(c.Argument(0).ToBoolean(), c.Argument(1).String()))
		return undef
	})
	set("assertBlockPresent", func(c goja.FunctionCall) goja.Value {
		must(t.AssertBlockPresent(c.Argument(0).String(), posArg(c, 1), boolArg(c, 4, true)))
		return undef
	})
	set("assertEntityPresent", func(c goja.FunctionCall) goja.Value {
		must(t.AssertEntityPresent(c.Argument(0).String(), posArg(c, 1)))
		return undef
	})
	set("assertEntityNotPresent", func(c goja.FunctionCall) goja.Value {
		must(t.AssertEntityNotPresent(c.Argument(0).String(), posArg(c, 1)))
		return undef
	})
	set("assertEntityCount", func(c goja.FunctionCall) goja.Value {
		must(t.AssertEntityCount(c.Argument(0).String(), intArg(c, 1)))
		return undef
	})

	// World.
	set("spawn", func(c goja.FunctionCall) goja.Value {
		id, err := t.Spawn(c.Argument(0).String(), posArg(c, 1))
		must(err)
		return vm.ToValue(string(id))
	})
	set("setBlock", func(c goja.FunctionCall) goja.Value {
		must(t.SetBlock(c.Argument(0).String(), posArg(c, 1)))
		return undef
	})
	set("getBlock", func(c goja.FunctionCall) goja.Value {
		b, err := t.BlockAt(posArg(c, 0))
		must(err)
		return vm.ToValue(b)
	})
	set("pressButton", func(c goja.FunctionCall) goja.Value {
		must(t.PressButton(posArg(c, 0)))
		return undef
	})
	set("walkTo", func(c goja.FunctionCall) goja.Value {
		must(t.WalkTo(host.EntityID(c.Argument(0).String()), posArg(c, 1)))
		return undef
	})
	set("removeEntity", func(c goja.FunctionCall) goja.Value {
		must(t.Remove(host.EntityID(c.Argument(0).String())))
		return undef
	})
	return obj
}
