package integrity

import (
	"fmt"
	"hash/crc32"
)

// Digest is a CRC-32 fingerprint of an image. It is for before/after
// comparison in logs and reports, not for tamper detection.
type Digest uint32

// Sum fingerprints buf.
func Sum(buf []byte) Digest {
	return Digest(crc32.ChecksumIEEE(buf))
}

func (d Digest) String() string {
	return fmt.Sprintf("%08x", uint32(d))
}
