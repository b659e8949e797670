//go:build windows

package wintray

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ReEnvision-AI/trayicon/tray/commontray"
)

// newIconHandle turns an RGBA buffer into an HICON. The pixels are wrapped
// as PNG; CreateIconFromResourceEx accepts PNG icon resources since Vista.
func newIconHandle(img *commontray.Image) (windows.Handle, error) {
	rgba := &image.RGBA{
		Pix:    img.Pixels,
		Stride: img.Width * 4,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return 0, fmt.Errorf("encode icon png: %w", err)
	}
	data := buf.Bytes()
	hicon, _, callErr := pCreateIconFromResourceEx.Call(
		uintptr(unsafe.Pointer(&data[0])),
		uintptr(len(data)),
		1,          // icon, not cursor
		0x00030000, // icon resource format version
		uintptr(img.Width),
		uintptr(img.Height),
		0,
	)
	if hicon == 0 {
		return 0, creationError("CreateIconFromResourceEx", callErr)
	}
	return windows.Handle(hicon), nil
}

// encodeTip encodes a title into the fixed UTF-16LE tooltip buffer,
// truncating to capacity and leaving a terminating NUL.
func encodeTip(title string) ([128]uint16, error) {
	var tip [128]uint16
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, _, err := transform.Bytes(encoder, []byte(title))
	if err != nil {
		return tip, fmt.Errorf("encode tooltip: %w", err)
	}
	n := len(encoded) / 2
	if n > len(tip)-1 {
		n = len(tip) - 1
		// Truncating between the halves of a surrogate pair would leave an
		// unpaired high surrogate at the end of the buffer.
		last := uint16(encoded[2*(n-1)]) | uint16(encoded[2*(n-1)+1])<<8
		if last >= 0xd800 && last <= 0xdbff {
			n--
		}
	}
	for i := 0; i < n; i++ {
		tip[i] = uint16(encoded[2*i]) | uint16(encoded[2*i+1])<<8
	}
	return tip, nil
}
