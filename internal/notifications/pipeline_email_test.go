package notifications

import (
	"testing"

	"proptyos-backend/internal/pipeline"
)

func TestFormatMoney(t *testing.T) {
	cases := []struct {
		amount   int64
		currency string
		want     string
	}{
		{0, "NGN", "NGN 0"},
		{950, "NGN", "NGN 950"},
		{2_500_000, "NGN", "NGN 2,500,000"},
		{1_000_000_000, "USD", "USD 1,000,000,000"},
		{-45_000, "NGN", "NGN -45,000"},
		{1234, "", "NGN 1,234"},
	}
	for _, tc := range cases {
		got := FormatMoney(pipeline.Money{Amount: tc.amount, Currency: tc.currency})
		if got != tc.want {
			t.Errorf("FormatMoney(%d, %q) = %q, want %q", tc.amount, tc.currency, got, tc.want)
		}
	}
}
