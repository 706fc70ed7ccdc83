package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeInterval(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "monthly", want: "monthly"},
		{in: "yearly", want: "yearly"},
		{in: "YEARLY", want: "yearly"},
		{in: "annual", want: "yearly"},
		{in: "", want: "monthly"},
		{in: "weekly", want: "monthly"},
	}

	for _, tt := range tests {
		if got := normalizeInterval(tt.in); got != tt.want {
			t.Fatalf("normalizeInterval(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsKnownInterval(t *testing.T) {
	assert.True(t, isKnownInterval("monthly"))
	assert.True(t, isKnownInterval(" Yearly "))
	assert.False(t, isKnownInterval(""))
	assert.False(t, isKnownInterval("lifetime"))
}

func TestValidityWindow(t *testing.T) {
	anchor := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)

	start, end := ValidityWindow("yearly", anchor)
	assert.Equal(t, anchor, start)
	assert.Equal(t, time.Date(2027, 1, 31, 10, 0, 0, 0, time.UTC), end)

	start, end = ValidityWindow("monthly", anchor)
	assert.Equal(t, anchor, start)
	assert.Equal(t, anchor.AddDate(0, 1, 0), end)

	_, end = ValidityWindow("", anchor)
	assert.Equal(t, anchor.AddDate(0, 1, 0), end)
}
