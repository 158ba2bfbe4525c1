package lua

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dokzlo13/rgbwfade/internal/color"
)

func TestLoadPaletteString(t *testing.T) {
	src := `
local palette = require("palette")
local log = require("log")

log.info("building palette", { count = 4 })

return {
	palette.rgb(200, 0, 0),
	palette.hex("#00c800", 80),
	palette.hsv(240, 1, 1, 60, 10),
	{ name = "warm", r = 255, g = 120, b = 0, white = 30 },
}
`
	specs, err := LoadPaletteString(context.Background(), src)
	if err != nil {
		t.Fatalf("LoadPaletteString() error = %v", err)
	}

	seq, err := color.FromSpecs(specs)
	if err != nil {
		t.Fatalf("FromSpecs() error = %v", err)
	}

	want := []color.Target{
		{R: 200, G: 0, B: 0, Gain: 100, White: 0},
		{R: 0, G: 200, B: 0, Gain: 80, White: 0},
		{R: 0, G: 0, B: 255, Gain: 60, White: 10},
		{R: 255, G: 120, B: 0, Gain: 100, White: 30},
	}
	if seq.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", seq.Len(), len(want))
	}
	for i, w := range want {
		if got := seq.At(i); got != w {
			t.Errorf("At(%d) = %v, want %v", i, got, w)
		}
	}
	if specs[3].Name != "warm" {
		t.Errorf("Name = %q, want warm", specs[3].Name)
	}
}

func TestLoadPaletteString_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"no return", `local x = 1`, "returned nothing"},
		{"not a table", `return 42`, "want a table of colors"},
		{"entry not a table", `return { 1 }`, "color 1"},
		{"fractional channel", `return { { r = 1.5, g = 0, b = 0 } }`, "want an integer"},
		{"string channel", `return { { r = "red", g = 0, b = 0 } }`, "want a number"},
		{"bad hex", `return { require("palette").hex("nope") }`, "invalid hex"},
		{"syntax error", `return {`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPaletteString(context.Background(), tt.src)
			if err == nil {
				t.Fatal("LoadPaletteString() error = nil, want error")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadPaletteString() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadPalette_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "palette.lua")
	if err := os.WriteFile(path, []byte(`return { { r = 1, g = 2, b = 3 } }`), 0o644); err != nil {
		t.Fatal(err)
	}

	specs, err := LoadPalette(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadPalette() error = %v", err)
	}
	if len(specs) != 1 || specs[0].R != 1 || specs[0].G != 2 || specs[0].B != 3 {
		t.Errorf("LoadPalette() = %+v, want one color 1,2,3", specs)
	}
	if specs[0].Gain != nil || specs[0].White != nil {
		t.Errorf("LoadPalette() gain/white = %v/%v, want unset", specs[0].Gain, specs[0].White)
	}
}

func TestLoadPalette_MissingFile(t *testing.T) {
	_, err := LoadPalette(context.Background(), filepath.Join(t.TempDir(), "missing.lua"))
	if err == nil {
		t.Error("LoadPalette() error = nil, want error")
	}
}
