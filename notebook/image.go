package notebook

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
)

// PNGDataURIPrefix is stripped from image payloads before decoding.
const PNGDataURIPrefix = "data:image/png;base64,"

var pngEncoder = png.Encoder{CompressionLevel: png.BestCompression}

// ReencodePNG decodes a base64 PNG payload, re-encodes it with maximum
// compression and returns it as standard base64 without line breaks. The
// smaller of the original and re-encoded PNG is kept; pixels are unchanged.
func ReencodePNG(encoded string) (string, error) {
	encoded = strings.TrimPrefix(strings.TrimSpace(encoded), PNGDataURIPrefix)
	encoded = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, encoded)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 image: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to decode png: %w", err)
	}

	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode png: %w", err)
	}

	out := buf.Bytes()
	if len(raw) < len(out) {
		out = raw
	}
	return base64.StdEncoding.EncodeToString(out), nil
}
