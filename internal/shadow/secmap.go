package shadow

// secMap is one 64 KiB secondary map: 2048 uint64 words, each covering 32
// guest bytes. Three instances are "distinguished" — shared, logically
// read-only pages representing a uniformly noaccess/tainted/untainted 64
// KiB region. Writing through a pointer to a distinguished secMap must
// copy-for-write first; primaryMap.isDistinguished reports that.
type secMap struct {
	words         [smWords]uint64
	distinguished bool
}

// newUniform returns a (possibly distinguished) secMap filled with st.
func newUniform(st State, distinguished bool) *secMap {
	sm := &secMap{distinguished: distinguished}
	w := fillWord(st)
	for i := range sm.words {
		sm.words[i] = w
	}
	return sm
}

// clone returns a private, writable copy of sm.
func (sm *secMap) clone() *secMap {
	cp := &secMap{words: sm.words}
	return cp
}

// cell returns the 2-bit state at byte offset `off` within the map.
func (sm *secMap) cell(off int) State {
	return cellInWord(sm.words[off/smWordBytes], off%smWordBytes)
}

// setCell sets the 2-bit state at byte offset `off` within the map. The
// caller must have already copy-for-written a distinguished map.
func (sm *secMap) setCell(off int, st State) {
	wi := off / smWordBytes
	sm.words[wi] = setCellInWord(sm.words[wi], off%smWordBytes, st)
}

// isUniform reports whether the whole map is one state, and which.
func (sm *secMap) isUniform() (State, bool) {
	first, ok := uniformState(sm.words[0])
	if !ok {
		return 0, false
	}
	for _, w := range sm.words[1:] {
		if w != sm.words[0] {
			return 0, false
		}
	}
	return first, true
}
