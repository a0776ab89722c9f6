// Package detection implements behavioral threat scoring for SSH Guardian.
//
// This file provides the per-key authentication history store backing the
// feature extractor. Every event is recorded twice: once under its source
// IP and once under its username, so features can be derived from both
// sides of an authentication attempt.
//
// Thread Safety: Uses 16-way sharding for concurrent access with minimal
// contention. Observe performs the append and the causal read under one
// per-key lock so no other event can interleave between them.
//
// Memory Management:
//   - Bounded ring buffer per key (fixed memory footprint)
//   - Time-based pruning against the retention horizon on every append
//   - LRU eviction per shard (max 10K keys per shard)
package detection

import (
	"container/list"
	"context"
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

// hashSeed is the global seed for maphash operations.
// Initialized once at package load for consistent hashing across the process lifetime.
var hashSeed = maphash.MakeSeed()

// KeyKind selects which of the two history dimensions an operation
// addresses.
type KeyKind int

const (
	KeyIP KeyKind = iota
	KeyUser
)

func (k KeyKind) String() string {
	if k == KeyIP {
		return "ip"
	}
	return "user"
}

// ringEntry is a single history record in compact form (one machine word
// for the timestamp, one byte for the event type).
type ringEntry struct {
	ts          int64 // UnixNano, monotone within a ring
	counterpart string
	typ         uint8
}

const (
	codeOther uint8 = iota
	codeFailedPassword
	codeInvalidUser
	codeAcceptedPassword
	codeDisconnect
)

func eventTypeCode(t domain.EventType) uint8 {
	switch t {
	case domain.EventFailedPassword:
		return codeFailedPassword
	case domain.EventInvalidUser:
		return codeInvalidUser
	case domain.EventAcceptedPassword:
		return codeAcceptedPassword
	case domain.EventDisconnect:
		return codeDisconnect
	default:
		return codeOther
	}
}

func codeEventType(c uint8) domain.EventType {
	switch c {
	case codeFailedPassword:
		return domain.EventFailedPassword
	case codeInvalidUser:
		return domain.EventInvalidUser
	case codeAcceptedPassword:
		return domain.EventAcceptedPassword
	case codeDisconnect:
		return domain.EventDisconnect
	default:
		return domain.EventOther
	}
}

// historyRing provides O(1) push with bounded capacity and time-based
// pruning. Entries are kept in ascending timestamp order, which Observe
// guarantees by clamping out-of-order appends.
//
// Thread Safety: NOT thread-safe. Caller must hold the owning keyWindow
// lock.
type historyRing struct {
	data  []ringEntry
	head  int // next write position
	count int
	cap   int
}

func newHistoryRing(capacity int) *historyRing {
	if capacity <= 0 {
		capacity = 512
	}
	return &historyRing{
		data: make([]ringEntry, capacity),
		cap:  capacity,
	}
}

func (r *historyRing) push(e ringEntry) {
	r.data[r.head] = e
	r.head = (r.head + 1) % r.cap
	if r.count < r.cap {
		r.count++
	}
}

// pruneBefore drops entries older than cutoff from the logical tail,
// zeroing the slots so counterpart strings are released.
func (r *historyRing) pruneBefore(cutoff int64) {
	for r.count > 0 {
		idx := (r.head - r.count + r.cap) % r.cap
		if r.data[idx].ts >= cutoff {
			return
		}
		r.data[idx] = ringEntry{}
		r.count--
	}
}

// newest returns the most recently pushed entry timestamp, or 0 when empty.
func (r *historyRing) newest() int64 {
	if r.count == 0 {
		return 0
	}
	idx := (r.head - 1 + r.cap) % r.cap
	return r.data[idx].ts
}

// collect appends all retained entries, oldest first, to dst.
func (r *historyRing) collect(dst []domain.HistoryEntry) []domain.HistoryEntry {
	for i := 0; i < r.count; i++ {
		idx := (r.head - r.count + i + r.cap) % r.cap
		e := r.data[idx]
		dst = append(dst, domain.HistoryEntry{
			Timestamp:   time.Unix(0, e.ts),
			EventType:   codeEventType(e.typ),
			Counterpart: e.counterpart,
		})
	}
	return dst
}

// countSince returns the number of entries with timestamp >= cutoff.
func (r *historyRing) countSince(cutoff int64) int {
	count := 0
	for i := r.count - 1; i >= 0; i-- {
		idx := (r.head - r.count + i + r.cap) % r.cap
		if r.data[idx].ts < cutoff {
			break
		}
		count++
	}
	return count
}

// keyWindow holds the retained history for one key.
type keyWindow struct {
	ring     *historyRing
	lifetime int64 // total appends ever seen for this key
	mu       sync.Mutex
}

// maxKeysPerShard limits memory usage per shard via LRU eviction.
const maxKeysPerShard = 10000

// historyShard holds the key tracking map for one shard.
// Uses LRU eviction when at capacity.
type historyShard struct {
	windows map[string]*keyWindow
	mu      sync.RWMutex
	lruList *list.List
	lruMap  map[string]*list.Element
}

// Snapshot is the consistent causal view returned by Observe: every
// retained entry for the key, ascending by timestamp, including the entry
// just appended.
type Snapshot struct {
	Entries []domain.HistoryEntry
	// Lifetime counts every append the key has ever seen, including
	// entries since pruned or overwritten.
	Lifetime int64
	// Anchor is the effective timestamp the new entry was stored with.
	// It equals the event timestamp except when an out-of-order append
	// was clamped forward.
	Anchor time.Time
	// Clamped reports whether the append was out of order.
	Clamped bool
}

// HistoryConfig configures the history store.
type HistoryConfig struct {
	ShardCount      int           // shards per key kind (default: 16)
	RingCapacity    int           // retained entries per key (default: 512)
	Retention       time.Duration // prune horizon (default: 24h, the longest feature window)
	MaxKeysPerShard int           // LRU bound per shard (default: 10000)
	CleanupInterval time.Duration // idle key sweep interval (default: 60s)
}

// DefaultHistoryConfig returns production-ready defaults sized for the
// 24-hour feature window.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		ShardCount:      16,
		RingCapacity:    512,
		Retention:       24 * time.Hour,
		MaxKeysPerShard: maxKeysPerShard,
		CleanupInterval: 60 * time.Second,
	}
}

type keyShardSet struct {
	shards     []*historyShard
	shardCount int
	maxKeys    int
}

func newKeyShardSet(shardCount, maxKeys int) *keyShardSet {
	shards := make([]*historyShard, shardCount)
	for i := 0; i < shardCount; i++ {
		shards[i] = &historyShard{
			windows: make(map[string]*keyWindow),
			lruList: list.New(),
			lruMap:  make(map[string]*list.Element),
		}
	}
	return &keyShardSet{shards: shards, shardCount: shardCount, maxKeys: maxKeys}
}

func (s *keyShardSet) shard(key string) *historyShard {
	return s.shards[secureHash(key)%uint64(s.shardCount)]
}

// secureHash computes a consistent hash for key sharding using maphash.
func secureHash(s string) uint64 {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.WriteString(s)
	return h.Sum64()
}

// HistoryStore tracks authentication history under two key dimensions
// (source IP and username) with bounded per-key memory.
//
// Thread Safety: All methods are safe for concurrent use. Observe holds a
// single per-key lock across the append and the read so each key's event
// sequence stays causal under the concurrent worker pool.
type HistoryStore struct {
	ip   *keyShardSet
	user *keyShardSet

	ringCap   int
	retention time.Duration

	outOfOrder atomic.Int64

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewHistoryStore creates a store with the given configuration, filling
// zero fields from DefaultHistoryConfig.
func NewHistoryStore(config HistoryConfig) *HistoryStore {
	def := DefaultHistoryConfig()
	if config.ShardCount <= 0 {
		config.ShardCount = def.ShardCount
	}
	if config.RingCapacity <= 0 {
		config.RingCapacity = def.RingCapacity
	}
	if config.Retention <= 0 {
		config.Retention = def.Retention
	}
	if config.MaxKeysPerShard <= 0 {
		config.MaxKeysPerShard = def.MaxKeysPerShard
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}

	return &HistoryStore{
		ip:              newKeyShardSet(config.ShardCount, config.MaxKeysPerShard),
		user:            newKeyShardSet(config.ShardCount, config.MaxKeysPerShard),
		ringCap:         config.RingCapacity,
		retention:       config.Retention,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
}

func (h *HistoryStore) set(kind KeyKind) *keyShardSet {
	if kind == KeyIP {
		return h.ip
	}
	return h.user
}

// window returns the tracking window for a key, creating it (with LRU
// eviction) when absent. Caller must not hold any window lock.
func (h *HistoryStore) window(set *keyShardSet, key string) *keyWindow {
	shard := set.shard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	window, exists := shard.windows[key]
	if !exists {
		if len(shard.windows) >= set.maxKeys {
			oldest := shard.lruList.Back()
			if oldest != nil {
				oldKey := oldest.Value.(string)
				delete(shard.windows, oldKey)
				delete(shard.lruMap, oldKey)
				shard.lruList.Remove(oldest)
			}
		}
		window = &keyWindow{ring: newHistoryRing(h.ringCap)}
		shard.windows[key] = window
		shard.lruMap[key] = shard.lruList.PushFront(key)
	} else if elem, ok := shard.lruMap[key]; ok {
		shard.lruList.MoveToFront(elem)
	}
	return window
}

// appendLocked records one entry, returning its effective timestamp and
// whether it was clamped. Out-of-order appends (older than the key's
// newest retained entry) keep arrival order: the effective timestamp is
// clamped forward so the ring stays sorted and windowed reads stay valid.
func (h *HistoryStore) appendLocked(w *keyWindow, entry domain.HistoryEntry) (int64, bool) {
	eff := entry.Timestamp.UnixNano()
	clamped := false
	if newest := w.ring.newest(); w.ring.count > 0 && eff < newest {
		eff = newest
		clamped = true
		h.outOfOrder.Add(1)
	}

	w.ring.pruneBefore(eff - h.retention.Nanoseconds())
	w.ring.push(ringEntry{
		ts:          eff,
		counterpart: entry.Counterpart,
		typ:         eventTypeCode(entry.EventType),
	})
	w.lifetime++
	return eff, clamped
}

// Append records an entry under one key without reading back.
func (h *HistoryStore) Append(kind KeyKind, key string, entry domain.HistoryEntry) {
	w := h.window(h.set(kind), key)
	w.mu.Lock()
	h.appendLocked(w, entry)
	w.mu.Unlock()
}

// Observe records an entry and returns the key's retained history in one
// atomic step. The snapshot includes the entry just appended, so a window
// count taken from it always covers the current event.
func (h *HistoryStore) Observe(kind KeyKind, key string, entry domain.HistoryEntry) Snapshot {
	w := h.window(h.set(kind), key)

	w.mu.Lock()
	defer w.mu.Unlock()

	eff, clamped := h.appendLocked(w, entry)
	return Snapshot{
		Entries:  w.ring.collect(make([]domain.HistoryEntry, 0, w.ring.count)),
		Lifetime: w.lifetime,
		Anchor:   time.Unix(0, eff),
		Clamped:  clamped,
	}
}

// EntriesSince returns the key's retained entries with timestamp >= cutoff,
// oldest first.
func (h *HistoryStore) EntriesSince(kind KeyKind, key string, cutoff time.Time) []domain.HistoryEntry {
	w, ok := h.lookup(kind, key)
	if !ok {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	n := w.ring.countSince(cutoff.UnixNano())
	if n == 0 {
		return nil
	}
	all := w.ring.collect(make([]domain.HistoryEntry, 0, w.ring.count))
	return all[len(all)-n:]
}

// Len returns the number of retained entries for a key.
func (h *HistoryStore) Len(kind KeyKind, key string) int {
	w, ok := h.lookup(kind, key)
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ring.count
}

// LifetimeCount returns every append the key has ever seen, including
// pruned entries.
func (h *HistoryStore) LifetimeCount(kind KeyKind, key string) int64 {
	w, ok := h.lookup(kind, key)
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lifetime
}

func (h *HistoryStore) lookup(kind KeyKind, key string) (*keyWindow, bool) {
	shard := h.set(kind).shard(key)
	shard.mu.RLock()
	w, ok := shard.windows[key]
	shard.mu.RUnlock()
	return w, ok
}

// TrackedKeys returns the number of keys currently retained for a kind.
func (h *HistoryStore) TrackedKeys(kind KeyKind) int {
	total := 0
	for _, shard := range h.set(kind).shards {
		shard.mu.RLock()
		total += len(shard.windows)
		shard.mu.RUnlock()
	}
	return total
}

// TotalEntries returns the number of retained entries across all keys of
// a kind. Intended for the stats surface, not the scoring path.
func (h *HistoryStore) TotalEntries(kind KeyKind) int {
	total := 0
	for _, shard := range h.set(kind).shards {
		shard.mu.RLock()
		for _, w := range shard.windows {
			w.mu.Lock()
			total += w.ring.count
			w.mu.Unlock()
		}
		shard.mu.RUnlock()
	}
	return total
}

// OutOfOrderClamped returns how many appends arrived behind their key's
// newest entry and were clamped forward.
func (h *HistoryStore) OutOfOrderClamped() int64 {
	return h.outOfOrder.Load()
}

// StartCleanup launches a background goroutine that evicts keys whose
// newest entry has aged past the retention horizon.
func (h *HistoryStore) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(h.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCleanup:
				return
			case <-ticker.C:
				h.Cleanup(time.Now())
			}
		}
	}()
}

// StopCleanup stops the background cleanup goroutine.
// Idempotent via sync.Once protection.
func (h *HistoryStore) StopCleanup() {
	h.stopOnce.Do(func() {
		close(h.stopCleanup)
	})
}

// Cleanup removes keys with no entries newer than now minus retention.
// Runs in parallel across shards.
func (h *HistoryStore) Cleanup(now time.Time) {
	cutoff := now.Add(-h.retention).UnixNano()

	var wg sync.WaitGroup
	for _, set := range []*keyShardSet{h.ip, h.user} {
		for _, shard := range set.shards {
			wg.Add(1)
			go func(s *historyShard) {
				defer wg.Done()
				cleanupShard(s, cutoff)
			}(shard)
		}
	}
	wg.Wait()
}

func cleanupShard(shard *historyShard, cutoff int64) {
	shard.mu.Lock()
	defer shard.mu.Unlock()
	for key, w := range shard.windows {
		w.mu.Lock()
		stale := w.ring.newest() < cutoff
		w.mu.Unlock()

		if stale {
			delete(shard.windows, key)
			if elem, ok := shard.lruMap[key]; ok {
				shard.lruList.Remove(elem)
				delete(shard.lruMap, key)
			}
		}
	}
}
