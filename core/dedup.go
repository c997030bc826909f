package core

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"
)

// DedupScope controls which fields feed the dedup fingerprint.
type DedupScope int

const (
	// ScopeWithIdentifier includes the message identifier in the
	// fingerprint (the default): two messages with the same topic/body but
	// different identifiers are NOT considered duplicates.
	ScopeWithIdentifier DedupScope = iota
	// ScopeContentOnly excludes the identifier, so duplicate detection
	// is by topic/body/tags alone.
	ScopeContentOnly
)

// DedupConfig configures the Deduplicator.
type DedupConfig struct {
	Window          time.Duration
	MaxCacheSize    int
	DigestAlgorithm string // "SHA-256" (default) or "SHA-512"
	Scope           DedupScope
}

// DefaultDedupConfig returns defaults.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		Window:          300 * time.Second,
		MaxCacheSize:    100_000,
		DigestAlgorithm: "SHA-256",
		Scope:           ScopeWithIdentifier,
	}
}

// dedupCacheSlack is the hysteresis the eviction sweep leaves below
// MaxCacheSize so it doesn't thrash on every tick.
const dedupCacheSlack = 1000

// Deduplicator is a window-bounded uniqueness check keyed by message
// fingerprint, with bounded memory via periodic eviction.
type Deduplicator struct {
	cfg    DedupConfig
	logger Logger

	mu      sync.Mutex
	entries map[string]time.Time

	stopCleanup chan struct{}
	stopped     sync.Once
}

// NewDeduplicator creates a Deduplicator and starts its background eviction
// task.
func NewDeduplicator(cfg DedupConfig, logger Logger) *Deduplicator {
	if logger == nil {
		logger = &NoopLogger{}
	}
	d := &Deduplicator{
		cfg:         cfg,
		logger:      logger,
		entries:     make(map[string]time.Time),
		stopCleanup: make(chan struct{}),
	}
	go d.cleanupLoop()
	return d
}

// DedupResult is the outcome of a Check call.
type DedupResult int

const (
	Unique DedupResult = iota
	Duplicate
)

// Check computes the message's fingerprint and performs an insert-if-absent
// admission check, sliding the window forward on a stale collision. Safe
// for concurrent use without external locking beyond the Deduplicator's
// own short critical section.
func (d *Deduplicator) Check(m *Message) DedupResult {
	fp := d.fingerprint(m)
	now := time.Now()

	d.mu.Lock()
	existing, ok := d.entries[fp]
	if !ok {
		d.entries[fp] = now
		d.mu.Unlock()
		return Unique
	}
	if now.Sub(existing) <= d.cfg.Window {
		d.mu.Unlock()
		return Duplicate
	}
	d.entries[fp] = now
	d.mu.Unlock()
	return Unique
}

// fingerprint derives a canonical digest over (topic, body, identifier,
// sorted tag key=value pairs). Falls back to a non-cryptographic hash if
// the configured digest algorithm is unavailable.
func (d *Deduplicator) fingerprint(m *Message) string {
	var b strings.Builder
	b.WriteString(m.Topic)
	b.WriteByte(0x1f)
	b.WriteString(m.Body)
	b.WriteByte(0x1f)
	if d.cfg.Scope == ScopeWithIdentifier {
		b.WriteString(m.ID)
		b.WriteByte(0x1f)
	}

	keys := make([]string, 0, len(m.Tags))
	for k := range m.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m.Tags[k])
		b.WriteByte(0x1f)
	}

	input := []byte(b.String())

	switch d.cfg.DigestAlgorithm {
	case "SHA-512":
		sum := sha512.Sum512(input)
		return hex.EncodeToString(sum[:])
	case "SHA-256", "":
		sum := sha256.Sum256(input)
		return hex.EncodeToString(sum[:])
	default:
		d.logger.Warnf("dedup: digest algorithm %q unavailable, falling back to fnv-1a", d.cfg.DigestAlgorithm)
		h := fnv.New64a()
		_, _ = h.Write(input)
		return hex.EncodeToString(h.Sum(nil))
	}
}

func (d *Deduplicator) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.cleanup()
		case <-d.stopCleanup:
			return
		}
	}
}

// cleanup evicts entries older than the window, then additionally evicts
// the oldest entries by timestamp if the cache still exceeds MaxCacheSize,
// down to MaxCacheSize-dedupCacheSlack.
func (d *Deduplicator) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	expiry := time.Now().Add(-d.cfg.Window)
	for fp, ts := range d.entries {
		if ts.Before(expiry) {
			delete(d.entries, fp)
		}
	}

	if len(d.entries) <= d.cfg.MaxCacheSize {
		return
	}

	type kv struct {
		fp string
		ts time.Time
	}
	all := make([]kv, 0, len(d.entries))
	for fp, ts := range d.entries {
		all = append(all, kv{fp, ts})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })

	target := d.cfg.MaxCacheSize - dedupCacheSlack
	if target < 0 {
		target = 0
	}
	toEvict := len(all) - target
	for i := 0; i < toEvict; i++ {
		delete(d.entries, all[i].fp)
	}
	d.logger.Debugf("dedup: cache cleanup evicted %d entries, size now %d", toEvict, len(d.entries))
}

// Size returns the current number of cached fingerprints, for stats/tests.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Shutdown stops the background eviction task.
func (d *Deduplicator) Shutdown() {
	d.stopped.Do(func() { close(d.stopCleanup) })
}
