package domain

import "unicode/utf8"

const TruncationMarker = "..."

// TruncateRunes keeps the first max runes of text. When text is longer, marker
// is appended to the kept prefix.
func TruncateRunes(text string, max int, marker string) string {
	if max < 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	count := 0
	for idx := range text {
		if count == max {
			return text[:idx] + marker
		}
		count++
	}
	return text
}

func RuneLen(text string) int {
	return utf8.RuneCountInString(text)
}
