package detect

import (
	"fmt"
	"regexp"
	"strconv"
)

// WarnPercent is the percentage at or above which the model name and a
// warning marker are appended to a text result.
const WarnPercent = 80

var percentPattern = regexp.MustCompile(`(\d+(\.\d+)?)%`)

// ParsePercent extracts the first "<number>%" from a service result string.
// It returns 0 when no percentage is present.
func ParsePercent(result string) float64 {
	m := percentPattern.FindStringSubmatch(result)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

// FormatResultText returns the text shown to the user for a text verdict.
func FormatResultText(result string, percent float64, model string) string {
	if percent >= WarnPercent {
		return fmt.Sprintf("%s (Model: %s) ⚠️", result, model)
	}
	return result
}

// fallbackText is shown when the text service could not produce a verdict.
func fallbackText() string {
	return fmt.Sprintf("AI detection unavailable, showing neutral score (%d%%)", int(FallbackPercent))
}
