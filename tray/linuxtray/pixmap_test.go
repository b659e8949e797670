package linuxtray

import (
	"bytes"
	"testing"

	"github.com/ReEnvision-AI/trayicon/tray/commontray"
)

func TestToPixmap(t *testing.T) {
	img := &commontray.Image{
		Width:  2,
		Height: 1,
		Pixels: []byte{
			0x11, 0x22, 0x33, 0x44, // RGBA
			0xaa, 0xbb, 0xcc, 0xdd,
		},
	}
	pm := toPixmap(img)

	if pm.Width != 2 || pm.Height != 1 {
		t.Fatalf("expected 2x1 pixmap, got %dx%d", pm.Width, pm.Height)
	}
	want := []byte{
		0x44, 0x11, 0x22, 0x33, // ARGB
		0xdd, 0xaa, 0xbb, 0xcc,
	}
	if !bytes.Equal(pm.Bytes, want) {
		t.Errorf("expected ARGB bytes %x, got %x", want, pm.Bytes)
	}
}

func TestToPixmapDoesNotAliasInput(t *testing.T) {
	img := &commontray.Image{Width: 1, Height: 1, Pixels: []byte{1, 2, 3, 4}}
	pm := toPixmap(img)
	img.Pixels[0] = 0xff
	if pm.Bytes[1] == 0xff {
		t.Error("pixmap shares memory with the caller's buffer")
	}
}

func TestToTooltip(t *testing.T) {
	tt := toTooltip("hover text")
	if tt.Title != "hover text" {
		t.Errorf("expected tooltip title %q, got %q", "hover text", tt.Title)
	}
	if tt.IconName != "" || len(tt.IconPixmap) != 0 {
		t.Error("expected an icon-free tooltip")
	}
}
