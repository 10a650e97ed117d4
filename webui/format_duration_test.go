package webui

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{900 * time.Millisecond, "0s"},
		{45 * time.Second, "45s"},
		{time.Minute, "1m 0s"},
		{59*time.Minute + 59*time.Second, "59m 59s"},
		{2*time.Hour + 34*time.Minute, "2h 34m"},
		{29 * time.Hour, "1d 5h"},
		{10 * 24 * time.Hour, "1w 3d"},
		{-5 * time.Minute, "-5m 0s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
