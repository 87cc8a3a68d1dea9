package function

import (
	"strings"
)

func MaskPan(pan string) string {
	if pan != "" {
		length := len(pan)
		visibleCount := length / 4
		hiddenCount := length - (visibleCount * 2)

		mask := pan[:visibleCount] + strings.Repeat("*", hiddenCount) + pan[length-visibleCount:]

		return mask
	} else {
		return ""
	}
}

// MaskTrack menyamarkan PAN di dalam data track sebelum ditulis ke log
func MaskTrack(track string) string {
	end := strings.IndexAny(track, "^=")
	if end < 0 {
		return MaskPan(track)
	}
	start := 0
	if strings.HasPrefix(track, "%") {
		start = 2
	} else if strings.HasPrefix(track, ";") {
		start = 1
	}
	if start > end {
		return strings.Repeat("*", len(track))
	}
	return track[:start] + MaskPan(track[start:end]) + strings.Repeat("*", len(track)-end)
}

func PadRightZero(s string, totalLength int) string {
	if len(s) >= totalLength {
		return s
	}
	return s + strings.Repeat("0", totalLength-len(s))
}

func PadRightSpace(s string, totalLength int) string {
	if len(s) >= totalLength {
		return s
	}
	return s + strings.Repeat(" ", totalLength-len(s))
}

func PadLeftZero(s string, totalLength int) string {
	if len(s) >= totalLength {
		return s
	}
	return strings.Repeat("0", totalLength-len(s)) + s
}

// Truncate memotong s agar tidak lebih dari n byte
func Truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
