package transfer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// maxFilenameLength caps sanitized upload names.
const maxFilenameLength = 200

// FormatRate renders an instantaneous speed in bytes/sec as a human-readable
// string, with two decimals above the byte range.
func FormatRate(bytesPerSec int64) string {
	switch {
	case bytesPerSec < kib:
		return fmt.Sprintf("%d B/s", bytesPerSec)
	case bytesPerSec < mib:
		return fmt.Sprintf("%.2f KB/s", float64(bytesPerSec)/kib)
	case bytesPerSec < gib:
		return fmt.Sprintf("%.2f MB/s", float64(bytesPerSec)/mib)
	default:
		return fmt.Sprintf("%.2f GB/s", float64(bytesPerSec)/gib)
	}
}

// FormatETA renders a remaining-time estimate in seconds as "Ns", "Mm Ss" or
// "Hh Mm".
func FormatETA(seconds int64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}

// SanitizeFilename makes a name safe to use as a final upload name: spaces
// become underscores, filesystem-hostile characters are stripped and the
// length is capped.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return -1
		}
		return r
	}, name)

	// Cap by runes; a byte slice could split a multibyte character.
	if utf8.RuneCountInString(name) > maxFilenameLength {
		name = string([]rune(name)[:maxFilenameLength])
	}

	return name
}
