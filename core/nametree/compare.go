package nametree

import "bytes"

// Out-of-range comparison results. An index before the first entry means
// the probe key is greater than everything that side of the page; an index
// past the last entry means it is less. The page is not touched, so an
// out-of-range probe can never mark it corrupt. Callers rely only on the
// sign.
const (
	CompareAfterAll  = 999
	CompareBeforeAll = -999
)

// Compare orders key against entry i. The result is negative when key
// sorts before the entry, zero on equality, positive when it sorts after.
// Keys order bytewise with the shorter key first on a shared prefix; when
// component 0 matches in full, an entry carrying a non-empty second key
// component orders after the single-component probe key.
func (n *Node) Compare(key []byte, i int) (int, error) {
	if i < 0 {
		return CompareAfterAll, nil
	}
	if i >= n.EntryCount() {
		return CompareBeforeAll, nil
	}
	stored, err := n.KeyComponent(i, 0)
	if err != nil {
		return 0, err
	}
	cmplen := len(key)
	if cmplen > len(stored) {
		cmplen = len(stored)
	}
	if res := bytes.Compare(key[:cmplen], stored[:cmplen]); res != 0 {
		return res, nil
	}
	if len(key) != len(stored) {
		if len(key) < len(stored) {
			return -1, nil
		}
		return 1, nil
	}
	second, err := n.KeyComponent(i, 1)
	if err != nil {
		return 0, err
	}
	if len(second) > 0 {
		return -1, nil
	}
	return 0, nil
}

// searchKey binary-searches the page for key. It returns (i, true) when
// entry i matches exactly, otherwise (insertion point, false) where the
// insertion point is the index of the first entry with a greater key.
func (n *Node) searchKey(key []byte) (int, bool, error) {
	lo, hi := 0, n.EntryCount()
	for lo < hi {
		mid := (lo + hi) / 2
		res, err := n.Compare(key, mid)
		if err != nil {
			return 0, false, err
		}
		switch {
		case res == 0:
			return mid, true, nil
		case res < 0:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return lo, false, nil
}

// lcpLen is the length of the longest common prefix of a and b.
func lcpLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
