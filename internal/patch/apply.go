package patch

import "fmt"

// OffsetOutOfRangeError reports a replacement that would run past the end of
// the buffer (or start before it).
type OffsetOutOfRangeError struct {
	Offset int
	Length int
	Size   int
}

func (e *OffsetOutOfRangeError) Error() string {
	return fmt.Sprintf("patch of %d bytes at offset 0x%X exceeds image of %d bytes", e.Length, e.Offset, e.Size)
}

// Apply overwrites len(repl) bytes of buf starting at offset. The buffer is
// never resized; out-of-range writes fail without touching buf.
func Apply(buf []byte, offset int, repl []byte) error {
	if offset < 0 || offset > len(buf) || len(repl) > len(buf)-offset {
		return &OffsetOutOfRangeError{Offset: offset, Length: len(repl), Size: len(buf)}
	}
	copy(buf[offset:offset+len(repl)], repl)
	return nil
}
