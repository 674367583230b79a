package schedule

import (
	"testing"
	"time"
)

func TestFormatInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		secs int64
		want string
	}{
		{secs: 30, want: "30 seconds"},
		{secs: 60, want: "1 minutes"},
		{secs: 90, want: "1.5 minutes"},
		{secs: 3600, want: "1 hours"},
		{secs: 5400, want: "1.5 hours"},
		{secs: 86400, want: "1 days"},
		{secs: 7 * 86400, want: "7 days"},
	}
	for _, tt := range tests {
		if got := FormatInterval(tt.secs); got != tt.want {
			t.Fatalf("FormatInterval(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()
	if got := FormatTimestamp(0, time.UTC); got != "never" {
		t.Fatalf("FormatTimestamp(0) = %q, want never", got)
	}
	ts := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC).Unix()
	if got := FormatTimestamp(ts, time.UTC); got != "2030-01-02 03:04:05" {
		t.Fatalf("FormatTimestamp = %q", got)
	}
}
