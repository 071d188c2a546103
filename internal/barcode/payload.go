package barcode

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// PayloadText converts a decoded payload to UTF-8 text.
//
// Valid UTF-8 is returned unchanged. Anything else is read as ISO-8859-1,
// the default byte-mode charset of the common 2D symbologies, so every byte
// maps to exactly one rune and the conversion cannot fail.
func PayloadText(p []byte) string {
	if utf8.Valid(p) {
		return string(p)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(p)
	if err != nil {
		runes := make([]rune, len(p))
		for i, b := range p {
			runes[i] = rune(b)
		}
		return string(runes)
	}
	return string(out)
}
