package modules

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
	lua "github.com/yuin/gopher-lua"
)

// PaletteModule provides color constructors to palette scripts.
// Every constructor returns a table with r, g, b and the optional gain and white.
type PaletteModule struct{}

// NewPaletteModule creates a new palette module
func NewPaletteModule() *PaletteModule {
	return &PaletteModule{}
}

// Loader is the module loader for Lua
func (m *PaletteModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "rgb", L.NewFunction(m.rgb))
	L.SetField(mod, "hex", L.NewFunction(m.hex))
	L.SetField(mod, "hsv", L.NewFunction(m.hsv))

	L.Push(mod)
	return 1
}

// rgb(r, g, b, [gain], [white])
func (m *PaletteModule) rgb(L *lua.LState) int {
	tbl := L.NewTable()
	L.SetField(tbl, "r", lua.LNumber(L.CheckInt(1)))
	L.SetField(tbl, "g", lua.LNumber(L.CheckInt(2)))
	L.SetField(tbl, "b", lua.LNumber(L.CheckInt(3)))
	m.optional(L, tbl, 4)
	L.Push(tbl)
	return 1
}

// hex("#rrggbb", [gain], [white])
func (m *PaletteModule) hex(L *lua.LState) int {
	s := L.CheckString(1)
	c, err := colorful.Hex(s)
	if err != nil {
		L.ArgError(1, "invalid hex color "+s)
		return 0
	}
	r, g, b := c.RGB255()

	tbl := L.NewTable()
	L.SetField(tbl, "r", lua.LNumber(r))
	L.SetField(tbl, "g", lua.LNumber(g))
	L.SetField(tbl, "b", lua.LNumber(b))
	m.optional(L, tbl, 2)
	L.Push(tbl)
	return 1
}

// hsv(h, s, v, [gain], [white]) with h in degrees and s, v in [0,1]
func (m *PaletteModule) hsv(L *lua.LState) int {
	h := float64(L.CheckNumber(1))
	s := float64(L.CheckNumber(2))
	v := float64(L.CheckNumber(3))
	r, g, b := colorful.Hsv(math.Mod(h, 360), s, v).Clamped().RGB255()

	tbl := L.NewTable()
	L.SetField(tbl, "r", lua.LNumber(r))
	L.SetField(tbl, "g", lua.LNumber(g))
	L.SetField(tbl, "b", lua.LNumber(b))
	m.optional(L, tbl, 4)
	L.Push(tbl)
	return 1
}

// optional copies gain and white from args at idx and idx+1 when given
func (m *PaletteModule) optional(L *lua.LState, tbl *lua.LTable, idx int) {
	if L.GetTop() >= idx {
		L.SetField(tbl, "gain", lua.LNumber(L.CheckInt(idx)))
	}
	if L.GetTop() >= idx+1 {
		L.SetField(tbl, "white", lua.LNumber(L.CheckInt(idx+1)))
	}
}
