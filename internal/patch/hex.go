package patch

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseHex decodes a byte string written as "84 C0 0F 84", "84C00F84",
// "0x84,0xC0" or any mix of those.
func ParseHex(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})

	var b strings.Builder
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		if len(f)%2 == 1 {
			f = "0" + f
		}
		b.WriteString(f)
	}

	out, err := hex.DecodeString(b.String())
	if err != nil {
		return nil, fmt.Errorf("parse hex %q: %w", s, err)
	}
	return out, nil
}

// FormatHex renders b as upper-case, space separated byte pairs.
func FormatHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}
