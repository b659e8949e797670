// Command traydemo runs a tray icon that toggles color on primary click
// and quits on secondary click.
package main

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ncruces/zenity"

	"github.com/ReEnvision-AI/trayicon/internal/logging"
	"github.com/ReEnvision-AI/trayicon/internal/store"
	"github.com/ReEnvision-AI/trayicon/tray"
	"github.com/ReEnvision-AI/trayicon/tray/commontray"
)

const appName = "traydemo"

// Compile with the following to get rid of the cmd popup on windows
// go build -ldflags="-H windowsgui"

var (
	blue  = color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
	green = color.NRGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff}
)

func main() {
	if err := logging.Init(appName); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
	}
	defer logging.Close()
	slog.Info("traydemo starting")

	clicks := 0
	icon := tray.New(store.IconName(appName), "Tray demo", renderDot(32, blue),
		func(ic *tray.Icon) {
			clicks++
			slog.Info("primary click", "clicks", clicks)
			next := blue
			if clicks%2 == 1 {
				next = green
			}
			if err := ic.UpdateIcon(renderDot(32, next)); err != nil {
				slog.Warn("failed to update icon", "error", err)
			}
			if err := ic.UpdateTitle(fmt.Sprintf("Tray demo (%d clicks)", clicks)); err != nil {
				slog.Warn("failed to update title", "error", err)
			}
		},
		func(ic *tray.Icon) {
			slog.Info("secondary click, quitting")
			ic.Stop()
		},
	)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		slog.Debug("shutting down due to signal")
		icon.Stop()
	}()

	if err := icon.Run(); err != nil {
		slog.Error("tray icon failed", "error", err)
		if zerr := zenity.Error(err.Error(), zenity.Title(appName)); zerr != nil {
			slog.Warn("failed to show error dialog", "error", zerr)
		}
		os.Exit(1)
	}
	slog.Info("traydemo exiting")
}

// renderDot draws a filled circle so the demo needs no image assets.
func renderDot(size int, c color.NRGBA) *commontray.Image {
	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	r := size / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x-r, y-r
			if dx*dx+dy*dy <= r*r {
				rgba.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: c.A})
			}
		}
	}
	return &commontray.Image{Width: size, Height: size, Pixels: rgba.Pix}
}
