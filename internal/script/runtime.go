// Package script runs a user Lua hook over every classified tag.
package script

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// ErrScript marks failures raised by the Lua hook
var ErrScript = errors.New("tag script error")

// HookName is the global function a script must define
const HookName = "transform_tag"

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Runtime owns one Lua state. It is not safe for concurrent use.
type Runtime struct {
	L    *lua.LState
	hook lua.LValue
}

// NewRuntime creates a Lua state with the string helpers registered
func NewRuntime() *Runtime {
	L := lua.NewState()
	r := &Runtime{L: L}
	registerHelpers(L)
	return r
}

// Close releases Lua resources
func (r *Runtime) Close() {
	r.L.Close()
}

// LoadFile executes a Lua file and looks up transform_tag
func (r *Runtime) LoadFile(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("%w: failed to load %s: %w", ErrScript, path, err)
	}
	return r.bindHook()
}

// LoadString executes Lua source and looks up transform_tag
func (r *Runtime) LoadString(code string) error {
	if err := r.L.DoString(code); err != nil {
		return fmt.Errorf("%w: failed to load script: %w", ErrScript, err)
	}
	return r.bindHook()
}

func (r *Runtime) bindHook() error {
	fn := r.L.GetGlobal(HookName)
	if fn.Type() != lua.LTFunction {
		return fmt.Errorf("%w: script does not define function %s", ErrScript, HookName)
	}
	r.hook = fn
	return nil
}

// TransformTag calls transform_tag(type, key, value). A string result
// replaces the value, nil drops the tag.
func (r *Runtime) TransformTag(namespace, key, value string) (string, bool, error) {
	if r.hook == nil {
		return value, true, nil
	}

	if err := r.L.CallByParam(lua.P{
		Fn:      r.hook,
		NRet:    1,
		Protect: true,
	}, lua.LString(namespace), lua.LString(key), lua.LString(value)); err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrScript, err)
	}

	ret := r.L.Get(-1)
	r.L.Pop(1)

	switch v := ret.(type) {
	case lua.LString:
		return string(v), true, nil
	case lua.LNumber:
		return v.String(), true, nil
	}
	if ret == lua.LNil {
		return "", false, nil
	}
	return "", false, fmt.Errorf("%w: %s must return a string or nil, got %s", ErrScript, HookName, ret.Type())
}

func registerHelpers(L *lua.LState) {
	L.SetGlobal("trim", L.NewFunction(luaTrim))
	L.SetGlobal("lower", L.NewFunction(luaLower))
	L.SetGlobal("upper", L.NewFunction(luaUpper))
	L.SetGlobal("clean_spaces", L.NewFunction(luaCleanSpaces))
}

func luaTrim(L *lua.LState) int {
	L.Push(lua.LString(strings.TrimSpace(L.CheckString(1))))
	return 1
}

func luaLower(L *lua.LState) int {
	L.Push(lua.LString(strings.ToLower(L.CheckString(1))))
	return 1
}

func luaUpper(L *lua.LState) int {
	L.Push(lua.LString(strings.ToUpper(L.CheckString(1))))
	return 1
}

// luaCleanSpaces collapses runs of whitespace and trims the ends
func luaCleanSpaces(L *lua.LState) int {
	s := whitespaceRegex.ReplaceAllString(L.CheckString(1), " ")
	L.Push(lua.LString(strings.TrimSpace(s)))
	return 1
}
