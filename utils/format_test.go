package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatCurrency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		amount   int64
		currency string
		want     string
	}{
		{name: "zero", amount: 0, currency: "MWK", want: "MWK 0"},
		{name: "below_thousand", amount: 999, currency: "MWK", want: "MWK 999"},
		{name: "thousand", amount: 1050, currency: "MWK", want: "MWK 1,050"},
		{name: "million", amount: 1000000, currency: "MWK", want: "MWK 1,000,000"},
		{name: "negative", amount: -12345, currency: "MWK", want: "MWK -12,345"},
		{name: "no_currency", amount: 123456, currency: "", want: "123,456"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, FormatCurrency(tc.amount, tc.currency))
		})
	}
}

func TestTimeAgo(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 6, 12, 0, 0, 0, time.UTC)

	require.Equal(t, "Just now", TimeAgo(now, now.Add(-30*time.Second)))
	require.Equal(t, "5 minutes ago", TimeAgo(now, now.Add(-5*time.Minute)))
	require.Equal(t, "3 hours ago", TimeAgo(now, now.Add(-3*time.Hour)))
	require.Equal(t, "2 days ago", TimeAgo(now, now.Add(-49*time.Hour)))
}
