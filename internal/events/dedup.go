package events

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Dedup suppresses repeated events inside a TTL window, bounded by an
// LRU so unattended bursts cannot grow memory.
type Dedup struct {
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
}

func NewDedup(maxKeys int, ttl time.Duration) *Dedup {
	c, _ := lru.New[string, time.Time](maxKeys)
	return &Dedup{cache: c, ttl: ttl}
}

// IsDuplicate reports whether key was seen inside the TTL window and
// records it otherwise.
func (d *Dedup) IsDuplicate(key string) bool {
	if addedAt, ok := d.cache.Get(key); ok {
		if time.Since(addedAt) < d.ttl {
			return true
		}
	}
	d.cache.Add(key, time.Now())
	return false
}

// BuildKey buckets the event time to one second so micro-timing
// differences between emitters collapse to the same key.
func BuildKey(deviceID, state string, at time.Time) string {
	return fmt.Sprintf("%s|%s|%d", deviceID, state, at.Truncate(time.Second).Unix())
}
