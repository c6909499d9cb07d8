package patch

import "bytes"

// FindAll returns the offset of every occurrence of sig in buf, in ascending
// order. The search resumes one byte after each match, so overlapping
// occurrences are all reported.
func FindAll(buf, sig []byte) []int {
	if len(sig) == 0 || len(sig) > len(buf) {
		return nil
	}

	var offsets []int
	start := 0
	for start <= len(buf)-len(sig) {
		i := bytes.Index(buf[start:], sig)
		if i < 0 {
			break
		}
		offsets = append(offsets, start+i)
		start += i + 1
	}
	return offsets
}
