package downloads

import (
	"hash/fnv"
	"sync"
)

// DateFormat is the canonical day format for download bucketing
const DateFormat = "2006-01-02"

// VersionKey identifies a package version
type VersionKey struct {
	Package string
	Version string
}

// PendingKey identifies a pending counter bucket: one package version on
// one UTC calendar day
type PendingKey struct {
	Key VersionKey
	Day string
}

// shard holds a slice of the pending counts under its own lock
type shard struct {
	mu      sync.Mutex
	pending map[PendingKey]int64
}

// Counter accumulates download counts in memory across a fixed number of
// shards. Increments touch exactly one shard, so concurrent downloads of
// different versions rarely contend.
type Counter struct {
	shards []*shard
}

// NewCounter creates a counter with the given number of shards
func NewCounter(numShards int) *Counter {
	if numShards <= 0 {
		numShards = 16
	}
	shards := make([]*shard, numShards)
	for i := range shards {
		shards[i] = &shard{pending: make(map[PendingKey]int64)}
	}
	return &Counter{shards: shards}
}

// NumShards returns the shard count
func (c *Counter) NumShards() int {
	return len(c.shards)
}

// Increment adds one download for the key on the given day
func (c *Counter) Increment(key VersionKey, day string) {
	c.Add(key, day, 1)
}

// Add adds n downloads for the key on the given day
func (c *Counter) Add(key VersionKey, day string, n int64) {
	pk := PendingKey{Key: key, Day: day}
	s := c.shards[c.shardIndex(pk)]

	s.mu.Lock()
	s.pending[pk] += n
	s.mu.Unlock()
}

// DrainShard removes and returns all pending counts from one shard. The
// shard is left empty; increments arriving during the drain land in the
// fresh map and survive to the next flush.
func (c *Counter) DrainShard(i int) map[PendingKey]int64 {
	s := c.shards[i]

	s.mu.Lock()
	drained := s.pending
	s.pending = make(map[PendingKey]int64)
	s.mu.Unlock()

	return drained
}

// mergeShard adds counts back into a shard after a failed flush
func (c *Counter) mergeShard(i int, counts map[PendingKey]int64) {
	s := c.shards[i]

	s.mu.Lock()
	for pk, n := range counts {
		s.pending[pk] += n
	}
	s.mu.Unlock()
}

// PendingTotals reports the number of pending buckets and the total
// pending download count across all shards
func (c *Counter) PendingTotals() (entries int, downloads int64) {
	for _, s := range c.shards {
		s.mu.Lock()
		entries += len(s.pending)
		for _, n := range s.pending {
			downloads += n
		}
		s.mu.Unlock()
	}
	return entries, downloads
}

// shardIndex selects the shard for a pending key via FNV-1a
func (c *Counter) shardIndex(pk PendingKey) int {
	h := fnv.New32a()
	h.Write([]byte(pk.Key.Package))
	h.Write([]byte{0})
	h.Write([]byte(pk.Key.Version))
	h.Write([]byte{0})
	h.Write([]byte(pk.Day))
	return int(h.Sum32() % uint32(len(c.shards)))
}
