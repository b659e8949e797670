package linuxtray

import "github.com/ReEnvision-AI/trayicon/tray/commontray"

// pixmap is the (iiay) icon structure from the StatusNotifierItem
// specification. Bytes are ARGB32 in network byte order.
type pixmap struct {
	Width  int32
	Height int32
	Bytes  []byte
}

// tooltip is the (sa(iiay)ss) ToolTip structure.
type tooltip struct {
	IconName    string
	IconPixmap  []pixmap
	Title       string
	Description string
}

// toPixmap converts a caller RGBA buffer to the wire pixel layout.
func toPixmap(img *commontray.Image) pixmap {
	b := make([]byte, len(img.Pixels))
	for i := 0; i+3 < len(img.Pixels); i += 4 {
		r, g, bl, a := img.Pixels[i], img.Pixels[i+1], img.Pixels[i+2], img.Pixels[i+3]
		b[i], b[i+1], b[i+2], b[i+3] = a, r, g, bl
	}
	return pixmap{
		Width:  int32(img.Width),
		Height: int32(img.Height),
		Bytes:  b,
	}
}

func toTooltip(title string) tooltip {
	return tooltip{Title: title}
}
