package nametree

import "bytes"

// LongestPrefixMatch returns the stored key that is the longest prefix of
// key, as (matched length, locator). An exact match wins outright. When no
// stored key is a prefix of key the result is ErrKeyNotFound.
//
// Each round descends to the leaf responsible for the current probe and
// scans backward from the insertion point. Any non-prefix entry met on the
// way bounds every prefix stored further left: a longer prefix would sort
// between that entry and the probe and would have been scanned first. The
// probe is then truncated to the tightest bound and the descent repeats,
// so stale separators in interior pages never hide a match.
func (t *BTree) LongestPrefixMatch(key []byte) (int, uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(key) == 0 {
		return 0, 0, ErrKeyNotFound
	}

	probe := key
	for len(probe) > 0 {
		leaf, err := t.descendToLeaf(probe)
		if err != nil {
			return 0, 0, t.wrapCorrupt(err)
		}
		idx, found, err := leaf.searchKey(probe)
		if err != nil {
			t.unpin(leaf)
			return 0, 0, t.wrapCorrupt(err)
		}
		if found {
			tr, err := leaf.Trailer(idx)
			t.unpin(leaf)
			if err != nil {
				return 0, 0, t.wrapCorrupt(err)
			}
			return len(probe), tr.Value, nil
		}

		bound := len(probe)
		matched := -1
		var value uint64
		for i := idx - 1; i >= 0 && bound > 0; i-- {
			stored, err := leaf.KeyComponent(i, 0)
			if err != nil {
				t.unpin(leaf)
				return 0, 0, t.wrapCorrupt(err)
			}
			if len(stored) <= bound && bytes.HasPrefix(probe, stored) {
				tr, err := leaf.Trailer(i)
				if err != nil {
					t.unpin(leaf)
					return 0, 0, t.wrapCorrupt(err)
				}
				matched = len(stored)
				value = tr.Value
				break
			}
			if l := lcpLen(stored, probe); l < bound {
				bound = l
			}
		}
		t.unpin(leaf)
		if matched >= 0 {
			return matched, value, nil
		}
		if bound >= len(probe) {
			// Nothing in this leaf constrained the probe; a full-length
			// match would have been exact, so try one byte shorter.
			bound = len(probe) - 1
		}
		probe = probe[:bound]
	}
	return 0, 0, ErrKeyNotFound
}
