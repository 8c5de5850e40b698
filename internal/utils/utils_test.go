package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateProfileName(t *testing.T) {
	name := GenerateProfileName()
	assert.NotEmpty(t, name)
	assert.NotContains(t, name, "_")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kibibytes", 2048, "2.0 KiB"},
		{"mebibytes", 5 * 1024 * 1024, "5.0 MiB"},
		{"gibibytes", 3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.n))
		})
	}
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "0 B/s", FormatRate(0))
	assert.Equal(t, "0 B/s", FormatRate(-1))
	assert.Equal(t, "10 B/s", FormatRate(10))
	assert.Equal(t, "2.0 KiB/s", FormatRate(2048))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(-time.Second))
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second))
	assert.Equal(t, "1h1m15s", FormatDuration(3675*time.Second))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", FormatTime(time.Time{}))
	assert.NotEqual(t, "-", FormatTime(time.Now()))
}
