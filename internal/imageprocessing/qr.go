package imageprocessing

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCode encodes payload as a square PNG of size pixels.
func QRCode(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("empty QR payload")
	}
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}
