package fetch

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	t.Parallel()

	cache := NewMemoryCache()
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "plans"); err != nil || ok {
		t.Fatalf("Get() on empty cache = ok=%v err=%v, want miss", ok, err)
	}

	entry := Entry{Payload: json.RawMessage(`{"plan":"premium"}`), FetchedAt: time.Now().UTC()}
	if err := cache.Set(ctx, "plans", entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := cache.Get(ctx, "plans")
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v err=%v, want hit", ok, err)
	}
	if string(got.Payload) != `{"plan":"premium"}` {
		t.Fatalf("payload = %s", got.Payload)
	}

	// Writes replace, never append.
	updated := Entry{Payload: json.RawMessage(`{"plan":"basic"}`), FetchedAt: time.Now().UTC()}
	if err := cache.Set(ctx, "plans", updated); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, _, _ = cache.Get(ctx, "plans")
	if string(got.Payload) != `{"plan":"basic"}` {
		t.Fatalf("payload after overwrite = %s", got.Payload)
	}
}

func TestEntryFreshness(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry Entry
		ttl   time.Duration
		want  bool
	}{
		{
			name:  "within ttl",
			entry: Entry{FetchedAt: now.Add(-4 * time.Minute)},
			ttl:   5 * time.Minute,
			want:  true,
		},
		{
			name:  "exactly at ttl",
			entry: Entry{FetchedAt: now.Add(-5 * time.Minute)},
			ttl:   5 * time.Minute,
			want:  false,
		},
		{
			name:  "beyond ttl",
			entry: Entry{FetchedAt: now.Add(-time.Hour)},
			ttl:   5 * time.Minute,
			want:  false,
		},
		{
			name:  "zero ttl never fresh",
			entry: Entry{FetchedAt: now},
			ttl:   0,
			want:  false,
		},
		{
			name:  "zero fetch time never fresh",
			entry: Entry{},
			ttl:   5 * time.Minute,
			want:  false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.entry.Fresh(now, tt.ttl); got != tt.want {
				t.Fatalf("Fresh() = %v, want %v", got, tt.want)
			}
		})
	}
}
