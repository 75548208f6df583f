package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/wxauto/wxprobe/pkg/automator"
	"github.com/wxauto/wxprobe/pkg/logger"
	"github.com/wxauto/wxprobe/pkg/wait"
)

// check turns a Go error into a JavaScript exception.
func (e *Engine) check(err error) {
	if err != nil {
		panic(e.runtime.NewGoError(err))
	}
}

func (e *Engine) typeError(format string, args ...interface{}) {
	panic(e.runtime.NewTypeError(fmt.Sprintf(format, args...)))
}

func (e *Engine) set(obj *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) {
	if err := obj.Set(name, fn); err != nil {
		e.typeError("failed to set %s: %v", name, err)
	}
}

func defined(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

// arg returns argument i, or undefined.
func arg(call goja.FunctionCall, i int) goja.Value {
	if i < len(call.Arguments) {
		return call.Arguments[i]
	}
	return goja.Undefined()
}

func (e *Engine) intArg(call goja.FunctionCall, i int, name string) int {
	v := arg(call, i)
	if !defined(v) {
		e.typeError("%s is required", name)
	}
	return int(v.ToInteger())
}

func (e *Engine) stringArg(call goja.FunctionCall, i int, fallback string) string {
	if v := arg(call, i); defined(v) {
		return v.String()
	}
	return fallback
}

func (e *Engine) msArg(call goja.FunctionCall, i int, fallback time.Duration) time.Duration {
	if v := arg(call, i); defined(v) {
		return time.Duration(v.ToInteger()) * time.Millisecond
	}
	return fallback
}

// selector accepts a plain string (exact text) or an object with text,
// className, resourceId, description and clickable keys.
func (e *Engine) selector(v goja.Value) automator.Selector {
	if !defined(v) {
		e.typeError("selector is required")
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return automator.ByText(v.String())
	}

	str := func(key string) string {
		if p := obj.Get(key); defined(p) {
			return p.String()
		}
		return ""
	}
	sel := automator.Selector{
		Text:        str("text"),
		ClassName:   str("className"),
		ResourceID:  str("resourceId"),
		Description: str("description"),
	}
	if p := obj.Get("clickable"); defined(p) {
		sel.Clickable = p.ToBoolean()
	}
	if sel.IsZero() {
		e.typeError("empty selector")
	}
	return sel
}

// plain converts a Go value to a plain JavaScript object through its JSON
// form, so scripts can stringify and destructure it.
func (e *Engine) plain(v interface{}) goja.Value {
	data, err := json.Marshal(v)
	e.check(err)
	var out interface{}
	e.check(json.Unmarshal(data, &out))
	return e.runtime.ToValue(out)
}

// dataPath resolves relative script paths against the data directory.
func (e *Engine) dataPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return e.cfg.DataPath(p)
}

func (e *Engine) writeData(p string, data []byte) string {
	path := e.dataPath(p)
	e.check(os.MkdirAll(filepath.Dir(path), 0o755))
	e.check(os.WriteFile(path, data, 0o644)) //#nosec G306 -- script output
	return path
}

func (e *Engine) consoleObject() *goja.Object {
	makeConsoleFunc := func(log func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]interface{}, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = a.Export()
			}
			log("%s", strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	e.set(console, "log", makeConsoleFunc(logger.Info))
	e.set(console, "info", makeConsoleFunc(logger.Info))
	e.set(console, "debug", makeConsoleFunc(logger.Debug))
	e.set(console, "warn", makeConsoleFunc(logger.Warn))
	e.set(console, "error", makeConsoleFunc(logger.Error))
	return console
}

// sleep(ms) blocks the script; cancelling the run wakes it.
func (e *Engine) sleep(call goja.FunctionCall) goja.Value {
	d := time.Duration(e.intArg(call, 0, "ms")) * time.Millisecond
	e.check(wait.Sleep(e.ctx, d))
	return goja.Undefined()
}

func (e *Engine) deviceObject() *goja.Object {
	obj := e.runtime.NewObject()

	// device.connect([address])
	e.set(obj, "connect", func(call goja.FunctionCall) goja.Value {
		e.check(e.auto.Connect(e.ctx, e.stringArg(call, 0, e.cfg.Device.Address)))
		return goja.Undefined()
	})

	e.set(obj, "info", func(call goja.FunctionCall) goja.Value {
		info, err := e.auto.Info(e.ctx, e.selector(arg(call, 0)))
		e.check(err)
		return e.plain(info)
	})

	e.set(obj, "deviceInfo", func(goja.FunctionCall) goja.Value {
		info, err := e.auto.DeviceInfo(e.ctx)
		e.check(err)
		return e.plain(info)
	})

	e.set(obj, "currentApp", func(goja.FunctionCall) goja.Value {
		app, err := e.auto.CurrentApp(e.ctx)
		e.check(err)
		return e.plain(app)
	})

	e.set(obj, "windowSize", func(goja.FunctionCall) goja.Value {
		w, h, err := e.auto.WindowSize(e.ctx)
		e.check(err)
		return e.plain(map[string]int{"width": w, "height": h})
	})

	e.set(obj, "isScreenOn", func(goja.FunctionCall) goja.Value {
		on, err := e.auto.IsScreenOn(e.ctx)
		e.check(err)
		return e.runtime.ToValue(on)
	})

	e.set(obj, "screenOn", func(goja.FunctionCall) goja.Value {
		e.check(e.auto.ScreenOn(e.ctx))
		return goja.Undefined()
	})

	e.set(obj, "click", func(call goja.FunctionCall) goja.Value {
		e.check(e.auto.Click(e.ctx, e.intArg(call, 0, "x"), e.intArg(call, 1, "y")))
		return goja.Undefined()
	})

	// device.longClick(x, y, [ms])
	e.set(obj, "longClick", func(call goja.FunctionCall) goja.Value {
		e.check(e.auto.LongClick(e.ctx, e.intArg(call, 0, "x"), e.intArg(call, 1, "y"),
			e.msArg(call, 2, time.Second)))
		return goja.Undefined()
	})

	e.set(obj, "back", func(goja.FunctionCall) goja.Value {
		e.check(e.auto.Back(e.ctx))
		return goja.Undefined()
	})

	e.set(obj, "pressKey", func(call goja.FunctionCall) goja.Value {
		e.check(e.auto.PressKey(e.ctx, e.intArg(call, 0, "code")))
		return goja.Undefined()
	})

	// device.swipe(x1, y1, x2, y2, [ms])
	e.set(obj, "swipe", func(call goja.FunctionCall) goja.Value {
		e.check(e.auto.Swipe(e.ctx,
			e.intArg(call, 0, "x1"), e.intArg(call, 1, "y1"),
			e.intArg(call, 2, "x2"), e.intArg(call, 3, "y2"),
			e.msArg(call, 4, e.cfg.Gestures.UnlockDuration)))
		return goja.Undefined()
	})

	// device.startApp([package])
	e.set(obj, "startApp", func(call goja.FunctionCall) goja.Value {
		e.check(e.auto.StartApp(e.ctx, e.stringArg(call, 0, e.cfg.App.Package)))
		return goja.Undefined()
	})

	e.set(obj, "exists", func(call goja.FunctionCall) goja.Value {
		ok, err := e.auto.Exists(e.ctx, e.selector(arg(call, 0)))
		e.check(err)
		return e.runtime.ToValue(ok)
	})

	// device.waitExists(selector, [ms])
	e.set(obj, "waitExists", func(call goja.FunctionCall) goja.Value {
		ok, err := e.auto.WaitExists(e.ctx, e.selector(arg(call, 0)), e.msArg(call, 1, e.cfg.Timing.SettleTimeout))
		e.check(err)
		return e.runtime.ToValue(ok)
	})

	e.set(obj, "count", func(call goja.FunctionCall) goja.Value {
		n, err := e.auto.Count(e.ctx, e.selector(arg(call, 0)))
		e.check(err)
		return e.runtime.ToValue(n)
	})

	// device.elements(selector, [limit])
	e.set(obj, "elements", func(call goja.FunctionCall) goja.Value {
		limit := 0
		if v := arg(call, 1); defined(v) {
			limit = int(v.ToInteger())
		}
		els, err := e.auto.Elements(e.ctx, e.selector(arg(call, 0)), limit)
		e.check(err)
		if els == nil {
			els = []automator.ElementInfo{}
		}
		return e.plain(els)
	})

	e.set(obj, "clickElement", func(call goja.FunctionCall) goja.Value {
		e.check(e.auto.ClickElement(e.ctx, e.selector(arg(call, 0))))
		return goja.Undefined()
	})

	e.set(obj, "setText", func(call goja.FunctionCall) goja.Value {
		e.check(e.auto.SetText(e.ctx, e.selector(arg(call, 0)), e.stringArg(call, 1, "")))
		return goja.Undefined()
	})

	// device.screenshot([path]) saves a PNG and returns its path
	e.set(obj, "screenshot", func(call goja.FunctionCall) goja.Value {
		data, err := e.auto.Screenshot(e.ctx)
		e.check(err)
		return e.runtime.ToValue(e.writeData(e.stringArg(call, 0, "script_screenshot.png"), data))
	})

	// device.dump([path]) returns the hierarchy XML, saving it when a path
	// is given
	e.set(obj, "dump", func(call goja.FunctionCall) goja.Value {
		xml, err := e.auto.DumpHierarchy(e.ctx)
		e.check(err)
		if p := e.stringArg(call, 0, ""); p != "" {
			e.writeData(p, []byte(xml))
		}
		return e.runtime.ToValue(xml)
	})

	return obj
}

func (e *Engine) controllerObject() *goja.Object {
	obj := e.runtime.NewObject()

	e.set(obj, "connect", func(goja.FunctionCall) goja.Value {
		e.check(e.ctrl.Connect(e.ctx))
		return goja.Undefined()
	})

	e.set(obj, "startApp", func(goja.FunctionCall) goja.Value {
		e.check(e.ctrl.StartApp(e.ctx))
		return goja.Undefined()
	})

	// controller.checkLogin([ms])
	e.set(obj, "checkLogin", func(call goja.FunctionCall) goja.Value {
		e.check(e.ctrl.CheckLogin(e.ctx, e.msArg(call, 0, e.cfg.Timing.LoginTimeout)))
		return goja.Undefined()
	})

	e.set(obj, "isOnHomePage", func(goja.FunctionCall) goja.Value {
		return e.runtime.ToValue(e.ctrl.IsOnHomePage(e.ctx))
	})

	e.set(obj, "goHome", func(goja.FunctionCall) goja.Value {
		e.check(e.ctrl.GoToHome(e.ctx))
		return goja.Undefined()
	})

	// controller.openSearch() returns whether the input field appeared
	e.set(obj, "openSearch", func(goja.FunctionCall) goja.Value {
		verified, err := e.ctrl.OpenSearch(e.ctx)
		e.check(err)
		return e.runtime.ToValue(verified)
	})

	e.set(obj, "searchFriend", func(call goja.FunctionCall) goja.Value {
		e.check(e.ctrl.SearchFriend(e.ctx, e.stringArg(call, 0, "")))
		return goja.Undefined()
	})

	return obj
}
