package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCurrency(t *testing.T) {
	assert.Equal(t, "KES 500", Currency(500))
	assert.Equal(t, "KES 1,500", Currency(1500))
	// Display matches the truncated integer amount sent to the provider.
	assert.Equal(t, "KES 300", Currency(300.99))
}

func TestDate(t *testing.T) {
	ts := time.Date(2025, time.March, 7, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, "7 March 2025, 14:30", Date(ts))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "CyberMtandao", Truncate("CyberMtandaoServices", 12))
	assert.Equal(t, "short", Truncate("short", 12))
	assert.Equal(t, "whole", Truncate("whole", 0))
}
