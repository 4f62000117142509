// Package images handles the inline data-URL photos stored on items and
// profiles.
package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/nfnt/resize"
)

// DefaultMIME is assumed when a data URL or upload does not declare one.
const DefaultMIME = "image/jpeg"

// ErrNotDataURL is returned for strings that are not base64 data URLs.
var ErrNotDataURL = errors.New("not a base64 data URL")

// ParseDataURL splits a data URL into its MIME type and decoded bytes.
func ParseDataURL(s string) (string, []byte, error) {
	mime, payload, err := SplitDataURL(s)
	if err != nil {
		return "", nil, err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	return mime, data, nil
}

// SplitDataURL returns the MIME type and the still-encoded base64 payload.
func SplitDataURL(s string) (string, string, error) {
	if !strings.HasPrefix(s, "data:") {
		return "", "", ErrNotDataURL
	}
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", "", ErrNotDataURL
	}
	mime := strings.TrimSuffix(header, ";base64")
	if mime == "" {
		mime = DefaultMIME
	}
	return mime, payload, nil
}

// EncodeDataURL builds a base64 data URL.
func EncodeDataURL(mime string, data []byte) string {
	if mime == "" {
		mime = DefaultMIME
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// FromReader reads an upload into a data URL, sniffing the MIME type when
// the caller does not know it.
func FromReader(r io.Reader, mime string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("unsupported upload type %q", mime)
	}
	return EncodeDataURL(mime, data), nil
}

// decodable lists the MIME types with a registered decoder.
var decodable = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// MaxPixels bounds the decoded size of a photo that needs downscaling.
const MaxPixels = 50_000_000

// Normalize downscales a data-URL photo wider than maxWidth, preserving the
// aspect ratio, and re-encodes it as JPEG. Photos already narrow enough,
// formats without a registered decoder (such as WebP) and maxWidth <= 0 are
// returned unchanged.
func Normalize(dataURL string, maxWidth int) (string, error) {
	if maxWidth <= 0 || dataURL == "" {
		return dataURL, nil
	}

	mime, data, err := ParseDataURL(dataURL)
	if err != nil {
		return "", err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) && !decodable[mime] {
		return dataURL, nil
	}
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= maxWidth {
		return dataURL, nil
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return "", fmt.Errorf("image too large: %dx%d", cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	resized := resize.Resize(uint(maxWidth), 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return EncodeDataURL("image/jpeg", buf.Bytes()), nil
}
