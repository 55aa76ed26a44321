package invoke

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/unicode/norm"
)

// DecodeOutput turns captured process output into text.
//
// Invalid UTF-8 is replaced rather than rejected, a leading BOM is
// dropped, CRLF line endings become LF and the result is NFC normalized
// so patterns match the same way on every platform.
func DecodeOutput(b []byte) string {
	decoded, err := unicode.UTF8BOM.NewDecoder().Bytes(b)
	if err != nil {
		decoded = b
	}
	s := strings.ToValidUTF8(string(decoded), "\uFFFD")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return norm.NFC.String(s)
}
