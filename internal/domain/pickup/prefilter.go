package pickup

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Prefilter is a bloom filter over committed order ids that lets scan
// lookups reject garbage codes (misreads, random QR content) without a
// database round trip.
//
// The change feed owns the filter's lifecycle: on every (re)connect it
// re-seeds the committed ids and only then marks the filter healthy, and it
// feeds new ids as they commit, so by the time a printed receipt can
// physically reach the counter its id is present. Bloom false positives only
// cost one authoritative read; false negatives cannot occur for added ids.
// Before the first sync and whenever the feed is down the filter reports
// itself degraded and stops filtering entirely, so a valid code is never
// rejected by the probabilistic layer, not even one committed during an
// outage window.
type Prefilter struct {
	mu      sync.RWMutex
	filter  *bloom.BloomFilter
	healthy bool
}

// NewPrefilter sizes the filter for the expected number of order ids.
func NewPrefilter(expected uint) *Prefilter {
	return &Prefilter{
		filter: bloom.NewWithEstimates(expected, 0.001),
	}
}

// Seed adds a batch of known ids. It does not flip the filter healthy: only
// the change feed may do that, after it has both established delivery and
// seeded everything committed so far, otherwise ids written in between would
// be filtered out until restart.
func (p *Prefilter) Seed(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.filter.AddString(id)
	}
}

// Add records a newly committed order id.
func (p *Prefilter) Add(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter.AddString(id)
}

// SetHealthy flips the filter between authoritative and degraded mode. The
// change-feed listener calls this on connect and disconnect.
func (p *Prefilter) SetHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// MightContain reports whether code could be a committed order id. In
// degraded mode it always returns true, falling back to plain lookups.
func (p *Prefilter) MightContain(code string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.healthy {
		return true
	}
	return p.filter.TestString(code)
}
