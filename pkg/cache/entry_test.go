package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ttl  time.Duration
		now  time.Time
		want bool
	}{
		{
			name: "valid entry",
			ttl:  time.Hour,
			now:  created.Add(30 * time.Minute),
			want: false,
		},
		{
			name: "at boundary",
			ttl:  time.Hour,
			now:  created.Add(time.Hour),
			want: false,
		},
		{
			name: "just expired",
			ttl:  time.Hour,
			now:  created.Add(time.Hour + time.Nanosecond),
			want: true,
		},
		{
			name: "zero ttl is expired after any time passes",
			ttl:  0,
			now:  created.Add(time.Millisecond),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry[string]{CreatedAt: created, TTL: tt.ttl}
			if got := entry.IsExpired(tt.now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_Remaining(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := &Entry[int]{CreatedAt: created, TTL: 5 * time.Minute}

	if got := entry.Remaining(created.Add(time.Minute)); got != 4*time.Minute {
		t.Errorf("Remaining() = %v, want 4m", got)
	}
	if got := entry.Remaining(created.Add(time.Hour)); got != 0 {
		t.Errorf("Remaining() after expiry = %v, want 0", got)
	}
}
