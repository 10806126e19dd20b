package timeutil

import (
	"testing"
	"time"
)

func TestRelativeTo(t *testing.T) {
	t.Parallel()
	ref := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"just now", ref.Add(-30 * time.Second), "less than a minute ago"},
		{"one minute", ref.Add(-1 * time.Minute), "1 minute ago"},
		{"minutes", ref.Add(-5 * time.Minute), "5 minutes ago"},
		{"one hour", ref.Add(-1 * time.Hour), "1 hour ago"},
		{"hours", ref.Add(-3 * time.Hour), "3 hours ago"},
		{"days", ref.Add(-49 * time.Hour), "2 days ago"},
		{"future minutes", ref.Add(5 * time.Minute), "in 5 minutes"},
		{"future hours", ref.Add(2 * time.Hour), "in 2 hours"},
		{"old falls back to date", ref.Add(-90 * 24 * time.Hour), "2025-03-17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RelativeTo(tt.t, ref); got != tt.want {
				t.Errorf("RelativeTo() = %q, want %q", got, tt.want)
			}
		})
	}
}
