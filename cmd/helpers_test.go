package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"negative", -time.Minute, "expired"},
		{"seconds", 30 * time.Second, "< 1 minute"},
		{"one minute", 90 * time.Second, "1 minute"},
		{"minutes", 5 * time.Minute, "5 minutes"},
		{"one hour", time.Hour + time.Minute, "1 hour"},
		{"hours", 3 * time.Hour, "3 hours"},
		{"one day", 25 * time.Hour, "1 day"},
		{"days", 72 * time.Hour, "3 days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}

func TestFormatExpiryWithDirection(t *testing.T) {
	future := formatExpiryWithDirection(time.Now().Add(2 * time.Hour))
	assert.Equal(t, "in 2 hours", future)

	past := formatExpiryWithDirection(time.Now().Add(-2 * time.Hour))
	assert.Contains(t, past, "expired 2 hours ago")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly ten", truncate("exactly ten", 11))
	assert.Equal(t, "a long t...", truncate("a long topic string", 11))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
