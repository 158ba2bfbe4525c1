// Package lua evaluates palette scripts that produce the fade color sequence.
package lua

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/rgbwfade/internal/color"
	"github.com/dokzlo13/rgbwfade/internal/lua/modules"
)

// LoadPalette runs the script at path and returns the colors it returns.
// The script must return an array of color tables, e.g.
//
//	local palette = require("palette")
//	return { palette.rgb(200, 0, 0), palette.hex("#00c800", 80), { r = 0, g = 0, b = 200 } }
func LoadPalette(ctx context.Context, path string) ([]color.Spec, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read palette script: %w", err)
	}

	specs, err := evalPalette(ctx, string(src), filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("palette script %s: %w", path, err)
	}

	log.Info().Str("script", path).Int("colors", len(specs)).Msg("Palette script loaded")
	return specs, nil
}

// LoadPaletteString is LoadPalette for an in-memory script
func LoadPaletteString(ctx context.Context, src string) ([]color.Spec, error) {
	return evalPalette(ctx, src, "")
}

func evalPalette(ctx context.Context, src, name string) ([]color.Spec, error) {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	L.PreloadModule("log", modules.NewLogModule(name).Loader)
	L.PreloadModule("palette", modules.NewPaletteModule().Loader)

	top := L.GetTop()
	if err := L.DoString(src); err != nil {
		return nil, err
	}
	if L.GetTop() == top {
		return nil, fmt.Errorf("script returned nothing, want a table of colors")
	}

	tbl, ok := L.Get(-1).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("script returned %s, want a table of colors", L.Get(-1).Type())
	}

	n := tbl.Len()
	specs := make([]color.Spec, 0, n)
	for i := 1; i <= n; i++ {
		entry, ok := tbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("color %d: want a table, got %s", i, tbl.RawGetInt(i).Type())
		}
		spec, err := specFromTable(entry)
		if err != nil {
			return nil, fmt.Errorf("color %d: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func specFromTable(tbl *lua.LTable) (color.Spec, error) {
	var spec color.Spec
	var err error

	if name, ok := tbl.RawGetString("name").(lua.LString); ok {
		spec.Name = string(name)
	}
	if hex, ok := tbl.RawGetString("hex").(lua.LString); ok {
		spec.Hex = string(hex)
	}

	for _, f := range []struct {
		key string
		dst *int
	}{
		{"r", &spec.R},
		{"g", &spec.G},
		{"b", &spec.B},
	} {
		if *f.dst, _, err = intField(tbl, f.key); err != nil {
			return spec, err
		}
	}

	gain, ok, err := intField(tbl, "gain")
	if err != nil {
		return spec, err
	}
	if ok {
		spec.Gain = &gain
	}

	white, ok, err := intField(tbl, "white")
	if err != nil {
		return spec, err
	}
	if ok {
		spec.White = &white
	}

	return spec, nil
}

// intField reads an integer field. Missing fields report ok=false.
func intField(tbl *lua.LTable, key string) (int, bool, error) {
	switch v := tbl.RawGetString(key).(type) {
	case *lua.LNilType:
		return 0, false, nil
	case lua.LNumber:
		f := float64(v)
		if f != math.Trunc(f) {
			return 0, false, fmt.Errorf("field %s: want an integer, got %v", key, f)
		}
		return int(f), true, nil
	default:
		return 0, false, fmt.Errorf("field %s: want a number, got %s", key, v.Type())
	}
}
