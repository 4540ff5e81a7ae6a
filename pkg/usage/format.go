package usage

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatStatistics renders the usage block appended to final step output.
func FormatStatistics(c Counters) string {
	var b strings.Builder
	b.WriteString("## 📊 Session Statistics\n")
	fmt.Fprintf(&b, "- **Total Tokens**: %s\n", GroupedInt(c.TokensConsumed))
	fmt.Fprintf(&b, "- **Prompt Tokens**: %s\n", GroupedInt(c.PromptTokens))
	fmt.Fprintf(&b, "- **Completion Tokens**: %s\n", GroupedInt(c.CompletionTokens))
	fmt.Fprintf(&b, "- **API Calls**: %d\n", c.RequestsMade)
	return b.String()
}

// HumanTokens formats token counts with K/M suffixes for quick scanning.
func HumanTokens(n int) string {
	if n >= 1_000_000 {
		return formatScaled(float64(n)/1_000_000, "M")
	}
	if n >= 1_000 {
		return formatScaled(float64(n)/1_000, "K")
	}
	return strconv.Itoa(n)
}

// GroupedInt formats integers with comma separators.
func GroupedInt(n int) string {
	if n < 0 {
		return "-" + GroupedInt(-n)
	}
	s := strconv.Itoa(n)
	if n < 1000 {
		return s
	}

	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func formatScaled(value float64, suffix string) string {
	s := fmt.Sprintf("%.1f", value)
	s = strings.TrimSuffix(s, ".0")
	return s + suffix
}
