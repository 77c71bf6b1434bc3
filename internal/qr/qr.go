// Package qr issues scan tokens and renders them as QR images.
package qr

import (
	"fmt"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// ImageSize is the rendered PNG edge length in pixels.
const ImageSize = 256

// NewToken returns a fresh opaque scan token. The 128-bit random space makes
// collisions negligible; the database unique constraint is the backstop.
func NewToken() string {
	return uuid.NewString()
}

// Render encodes a token into a PNG with medium error correction.
func Render(token string) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("qr: empty token")
	}
	png, err := qrcode.Encode(token, qrcode.Medium, ImageSize)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return png, nil
}

// ImageFilename returns the media-relative location for a student's QR image.
func ImageFilename(studentID string) string {
	return fmt.Sprintf("qr_codes/qr_code_%s.png", studentID)
}
