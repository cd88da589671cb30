package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as a string with invalid UTF-8 replaced and CRLF line
// endings normalized, so rune offsets match what the reviewer sees.
func extractPlain(content []byte) (string, error) {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\ufffd")
	}
	return strings.ReplaceAll(s, "\r\n", "\n"), nil
}
