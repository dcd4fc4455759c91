package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatCurrency renders a whole-unit amount with thousands separators,
// e.g. FormatCurrency(1050, "MWK") == "MWK 1,050".
func FormatCurrency(amount int64, currency string) string {
	digits := decimal.NewFromInt(amount).Abs().StringFixed(0)

	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}

	sign := ""
	if amount < 0 {
		sign = "-"
	}
	if currency == "" {
		return sign + b.String()
	}
	return currency + " " + sign + b.String()
}

// TimeAgo renders how long ago t was relative to now in coarse units.
func TimeAgo(now, t time.Time) string {
	secs := int(now.Sub(t) / time.Second)
	switch {
	case secs < 60:
		return "Just now"
	case secs < 3600:
		return fmt.Sprintf("%d minutes ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%d hours ago", secs/3600)
	default:
		return fmt.Sprintf("%d days ago", secs/86400)
	}
}
