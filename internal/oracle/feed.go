package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// FeedBook keeps the latest reading per feed in memory. It backs the stream
// subscriber and doubles as a manual override source during incidents and tests.
type FeedBook struct {
	mu       sync.RWMutex
	readings map[string]Reading
}

func NewFeedBook() *FeedBook {
	return &FeedBook{readings: make(map[string]Reading)}
}

// Set replaces the latest reading of a feed. Older rounds never overwrite newer ones.
func (b *FeedBook) Set(r Reading) bool {
	key := normaliseFeed(r.FeedID)
	if key == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.readings[key]; ok && r.UpdatedAt.Before(cur.UpdatedAt) {
		return false
	}
	r.FeedID = key
	b.readings[key] = r
	return true
}

// SetDecimal records a decimal string such as "101.25" published at ts.
func (b *FeedBook) SetDecimal(feedID, answer string, ts time.Time) error {
	r, err := ParseReading(feedID, answer, ts)
	if err != nil {
		return err
	}
	b.Set(r)
	return nil
}

func (b *FeedBook) Latest(_ context.Context, feedID string) (Reading, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.readings[normaliseFeed(feedID)]
	if !ok {
		return Reading{}, fmt.Errorf("%w: %s", ErrFeedNotFound, feedID)
	}
	return r, nil
}

func (b *FeedBook) Feeds() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.readings))
	for k := range b.readings {
		out = append(out, k)
	}
	return out
}

func normaliseFeed(feedID string) string {
	return strings.ToUpper(strings.TrimSpace(feedID))
}
