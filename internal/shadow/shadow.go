package shadow

// DefaultPrefixBytes is the default size of the primary array's low
// address prefix: 32 GiB on 64-bit hosts. Tests and embedded uses that
// don't need the full guest address space may pass a smaller prefix to
// New.
const DefaultPrefixBytes = 32 << 30

// Memory is the byte-granular shadow memory tracking guest taint state.
type Memory struct {
	primary *primaryMap
	side    *sideTable

	// anomalies counts NOACCESS reads degraded to untainted (a
	// shadow-access anomaly), surfaced for diagnostics/tests.
	anomalies uint64
}

// New returns a shadow memory whose primary array covers prefixBytes of
// low address space (rounded down to a 64 KiB secondary-map boundary).
func New(prefixBytes uint64) *Memory {
	return &Memory{
		primary: newPrimaryMap(prefixBytes),
		side:    newSideTable(),
	}
}

func split(addr uint64) (smIdx uint64, off int) {
	return addr >> smShift, int(addr & smMask)
}

// cellState returns the raw 2-bit cell at addr without consulting the
// side-table.
func (m *Memory) cellState(addr uint64) State {
	idx, off := split(addr)
	return m.primary.lookup(idx).cell(off)
}

// setCellState writes the raw 2-bit cell at addr, copy-for-writing the
// backing secondary map if it is currently a shared distinguished page.
func (m *Memory) setCellState(addr uint64, st State) {
	idx, off := split(addr)
	sm := m.primary.slot(idx)
	if m.primary.isDistinguished(sm) {
		if cur, _ := sm.isUniform(); cur == st {
			return // already reads as st via the distinguished page; no COW needed
		}
		sm = sm.clone()
		m.primary.install(idx, sm)
	}
	sm.setCell(off, st)
}

// ReadByte returns the canonical taint byte for addr: 0x00 untainted,
// 0xff tainted, or the exact stored pattern for a partially tainted byte.
// Reading a NOACCESS byte is a shadow-access anomaly: it is reported (via
// Anomalies()) and degrades to 0x00.
func (m *Memory) ReadByte(addr uint64) byte {
	switch m.cellState(addr) {
	case Tainted:
		return 0xff
	case Untainted:
		return 0x00
	case PartUntainted:
		return m.side.get(addr)
	default: // NoAccess
		m.anomalies++
		return 0x00
	}
}

// IsByteTainted reports whether addr currently carries any taint: fully
// tainted, or partially tainted with at least one set bit.
func (m *Memory) IsByteTainted(addr uint64) bool {
	switch m.cellState(addr) {
	case Tainted:
		return true
	case PartUntainted:
		return m.side.get(addr) != 0
	default:
		return false
	}
}

// IsRangeTainted reports whether any byte in [addr, addr+length) carries
// taint. Used as the alloc.TaintChecker passed to the allocation
// registry's Free so release-time warnings can be decided without the
// registry touching shadow memory directly.
func (m *Memory) IsRangeTainted(addr, length uint64) bool {
	for i := uint64(0); i < length; i++ {
		if m.IsByteTainted(addr + i) {
			return true
		}
	}
	return false
}

// Anomalies returns the running count of NOACCESS reads degraded to
// untainted.
func (m *Memory) Anomalies() uint64 { return m.anomalies }

// WriteByte installs vbits as addr's shadow byte. vbits of 0x00 or 0xff
// collapse to the uniform UNTAINTED/TAINTED cell states; anything else is
// PARTUNTAINTED and goes to the side-table.
func (m *Memory) WriteByte(addr uint64, vbits byte) {
	switch vbits {
	case 0x00:
		m.setCellState(addr, Untainted)
		m.side.clear(addr)
	case 0xff:
		m.setCellState(addr, Tainted)
		m.side.clear(addr)
	default:
		m.setCellState(addr, PartUntainted)
		m.side.set(addr, vbits)
	}
}

// SetRange bulk-writes len bytes starting at addr to a uniform state.
// st must be NoAccess, Tainted, or Untainted — SetRange never produces
// PartUntainted cells.
func (m *Memory) SetRange(addr, length uint64, st State) {
	if length == 0 {
		return
	}
	end := addr + length

	// Head remainder up to the next smWordBytes boundary.
	for addr < end && addr%smWordBytes != 0 {
		m.setCellState(addr, st)
		m.side.clear(addr)
		addr++
	}
	if addr >= end {
		return
	}

	for addr < end {
		smStart := addr - addr%smBytes
		smEnd := smStart + smBytes
		if addr == smStart && end >= smEnd {
			// Whole secondary map: swap wholesale to the distinguished
			// page instead of writing cell-by-cell. Any replaced private
			// map is simply dropped.
			idx, _ := split(addr)
			m.primary.install(idx, m.primary.distinguishedFor(st))
			m.clearSideTableRange(addr, smBytes)
			addr = smEnd
			continue
		}
		// Partial map: fill whole words, then trailing bytes.
		wordLimit := addr
		if smEnd < end {
			wordLimit = smEnd
		} else {
			wordLimit = end
		}
		idx, off := split(addr)
		sm := m.primary.slot(idx)
		if m.primary.isDistinguished(sm) {
			sm = sm.clone()
			m.primary.install(idx, sm)
		}
		w := fillWord(st)
		for addr+smWordBytes <= wordLimit {
			sm.words[off/smWordBytes] = w
			m.clearSideTableRange(addr, smWordBytes)
			addr += smWordBytes
			off += smWordBytes
		}
		for addr < wordLimit {
			sm.setCell(off, st)
			m.side.clear(addr)
			addr++
			off++
		}
	}
}

func (m *Memory) clearSideTableRange(addr, length uint64) {
	for a := addr; a < addr+length; a += sideTableBlockBytes {
		if e, ok := m.side.entries[blockBase(a)]; ok {
			for i := range e.live {
				e.live[i] = false
			}
		}
	}
}

// CopyRange copies len bytes of shadow state from src to dst, preserving
// PartUntainted side-table values. Handles overlap like memmove: iterates
// in the direction that preserves correctness when the ranges overlap.
func (m *Memory) CopyRange(src, dst, length uint64) {
	if length == 0 || src == dst {
		return
	}
	if dst < src || dst >= src+length {
		for i := uint64(0); i < length; i++ {
			m.copyByte(src+i, dst+i)
		}
	} else {
		for i := length; i > 0; i-- {
			m.copyByte(src+i-1, dst+i-1)
		}
	}
}

func (m *Memory) copyByte(src, dst uint64) {
	st := m.cellState(src)
	if st == PartUntainted {
		m.WriteByte(dst, m.side.get(src))
		return
	}
	m.setCellState(dst, st)
	m.side.clear(dst)
}

// LoadV reads nbytes of shadow state starting at addr and returns the
// taint word as nbytes bytes (0x00/0xff per byte, or exact reconstruction
// for partially tainted bytes). With bigEndian false the bytes come back
// in address order; with bigEndian true they come back in reverse
// address order (the byte at addr+nbytes-1 first, the byte at addr last).
func (m *Memory) LoadV(addr uint64, nbytes int, bigEndian bool) []byte {
	out := make([]byte, nbytes)
	for i := 0; i < nbytes; i++ {
		b := m.ReadByte(addr + uint64(i))
		if bigEndian {
			out[nbytes-1-i] = b
		} else {
			out[i] = b
		}
	}
	return out
}

// StoreV writes a taint word (as produced by LoadV) of len(word) bytes
// starting at addr, in the same byte order LoadV used.
func (m *Memory) StoreV(addr uint64, word []byte, bigEndian bool) {
	n := len(word)
	for i := 0; i < n; i++ {
		var b byte
		if bigEndian {
			b = word[n-1-i]
		} else {
			b = word[i]
		}
		m.WriteByte(addr+uint64(i), b)
	}
}

// Stats reports diagnostic counters: issued/de-issued secondary maps and
// side-table population.
type Stats struct {
	Issued, Deissued uint64
	SideTableEntries int
}

func (m *Memory) Stats() Stats {
	return Stats{
		Issued:           m.primary.issued,
		Deissued:         m.primary.deissued,
		SideTableEntries: m.side.len(),
	}
}

// GC forces a side-table garbage-collection pass (normally triggered
// automatically when the table exceeds its soft capacity).
func (m *Memory) GC() { m.side.gc() }
