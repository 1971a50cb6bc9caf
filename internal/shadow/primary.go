package shadow

import "github.com/secretgrind/secretgrind/internal/hostapi"

// l1CacheSize is the MRU front-list size for the auxiliary (high-address)
// secondary-map cache: a 24-entry MRU front list.
const l1CacheSize = 24

type l1Entry struct {
	index uint64
	sm    *secMap
}

// primaryMap is the two-level sparse address space backing shadow memory:
// a primary array over a configurable low prefix, and an auxiliary
// L1(MRU)/L2(ordered set) cache for everything above it. Nothing here
// locks — callers are always serialized by the single instrumentation
// thread driving the engine.
type primaryMap struct {
	prefixSMs int      // number of secondary-map slots covered by the primary array
	primary   []*secMap

	aux map[uint64]*secMap      // SM index (>= prefixSMs) -> secMap
	l2  *hostapi.OrderedAddrSet // ordered set of aux indices present
	l1  [l1CacheSize]l1Entry
	l1N int // number of valid entries in l1, front-packed

	distNoAccess  *secMap
	distTainted   *secMap
	distUntainted *secMap

	issued   uint64 // private (non-distinguished) SMs ever allocated
	deissued uint64 // private SMs replaced by a distinguished pointer
	kindPop  map[State]uint64
}

// newPrimaryMap builds a primary map covering `prefixBytes` worth of
// address space (rounded down to a whole number of 64 KiB secondary
// maps).
func newPrimaryMap(prefixBytes uint64) *primaryMap {
	prefixSMs := int(prefixBytes >> smShift)
	return &primaryMap{
		prefixSMs:     prefixSMs,
		primary:       make([]*secMap, prefixSMs),
		aux:           make(map[uint64]*secMap),
		l2:            hostapi.NewOrderedAddrSet(),
		distNoAccess:  newUniform(NoAccess, true),
		distTainted:   newUniform(Tainted, true),
		distUntainted: newUniform(Untainted, true),
		kindPop:       make(map[State]uint64),
	}
}

func (p *primaryMap) distinguishedFor(st State) *secMap {
	switch st {
	case Tainted:
		return p.distTainted
	case Untainted:
		return p.distUntainted
	default:
		return p.distNoAccess
	}
}

func (p *primaryMap) isDistinguished(sm *secMap) bool {
	return sm == p.distNoAccess || sm == p.distTainted || sm == p.distUntainted
}

// lookup returns the secMap backing SM index idx, defaulting to the
// all-noaccess distinguished map if nothing has ever been installed
// there. It never installs or replaces a secondary map (safe for reads);
// for an auxiliary index it does reorder or fill the L1 MRU cache.
func (p *primaryMap) lookup(idx uint64) *secMap {
	if int(idx) < p.prefixSMs {
		if sm := p.primary[idx]; sm != nil {
			return sm
		}
		return p.distNoAccess
	}
	if e, pos := p.l1Find(idx); pos >= 0 {
		p.l1Bubble(pos)
		return e.sm
	}
	if sm, ok := p.aux[idx]; ok {
		p.l1Insert(idx, sm)
		return sm
	}
	return p.distNoAccess
}

// slot returns a pointer to the secMap backing idx, creating a default
// (distinguished all-noaccess) entry if none exists, so the caller can
// copy-for-write and install a private replacement via install().
func (p *primaryMap) slot(idx uint64) *secMap {
	if int(idx) < p.prefixSMs {
		if p.primary[idx] == nil {
			p.primary[idx] = p.distNoAccess
		}
		return p.primary[idx]
	}
	if e, pos := p.l1Find(idx); pos >= 0 {
		p.l1Bubble(pos)
		return e.sm
	}
	if sm, ok := p.aux[idx]; ok {
		p.l1Insert(idx, sm)
		return sm
	}
	p.aux[idx] = p.distNoAccess
	p.l2.Add(hostapi.Addr(idx))
	p.l1Insert(idx, p.distNoAccess)
	return p.distNoAccess
}

// install replaces the secMap backing idx with sm, bookkeeping the
// issued/de-issued diagnostic counters.
func (p *primaryMap) install(idx uint64, sm *secMap) {
	if int(idx) < p.prefixSMs {
		old := p.primary[idx]
		p.primary[idx] = sm
		p.bookkeepReplace(old, sm)
		return
	}
	old, had := p.aux[idx]
	p.aux[idx] = sm
	if !had {
		p.l2.Add(hostapi.Addr(idx))
	}
	p.l1Insert(idx, sm)
	p.bookkeepReplace(old, sm)
}

func (p *primaryMap) bookkeepReplace(old, sm *secMap) {
	if old != nil && !p.isDistinguished(old) && p.isDistinguished(sm) {
		p.deissued++
	}
	if !p.isDistinguished(sm) && (old == nil || p.isDistinguished(old)) {
		p.issued++
	}
}

func (p *primaryMap) l1Find(idx uint64) (l1Entry, int) {
	for i := 0; i < p.l1N; i++ {
		if p.l1[i].index == idx {
			return p.l1[i], i
		}
	}
	return l1Entry{}, -1
}

// l1Bubble moves the entry at pos to the front (self-organizing MRU list).
func (p *primaryMap) l1Bubble(pos int) {
	if pos == 0 {
		return
	}
	e := p.l1[pos]
	copy(p.l1[1:pos+1], p.l1[0:pos])
	p.l1[0] = e
}

func (p *primaryMap) l1Insert(idx uint64, sm *secMap) {
	if _, pos := p.l1Find(idx); pos >= 0 {
		p.l1[pos].sm = sm
		p.l1Bubble(pos)
		return
	}
	n := l1CacheSize
	if p.l1N < n {
		n = p.l1N + 1
		p.l1N = n
	}
	copy(p.l1[1:n], p.l1[0:n-1])
	p.l1[0] = l1Entry{index: idx, sm: sm}
}
