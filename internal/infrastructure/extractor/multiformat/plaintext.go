package multiformat

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// extractPlainText decodes UTF-8 leniently. A UTF-16 byte order mark switches
// decoding to UTF-16; invalid sequences are dropped.
func extractPlainText(payload []byte) (string, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(encoding.Nop.NewDecoder()), payload)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return strings.ToValidUTF8(string(decoded), ""), nil
}
