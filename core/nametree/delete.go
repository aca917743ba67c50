package nametree

import (
	"go.uber.org/zap"

	"github.com/sushant-115/namedex/core/storage/pagefile"
)

// pathStep records one pinned node on the descent path and which of its
// entries was followed.
type pathStep struct {
	node     *Node
	childIdx int
}

// Delete removes key and its locator. Deleting an absent key fails with
// ErrKeyNotFound. Pages falling below a quarter occupancy are rebalanced
// against a sibling, bottom-up along the descent path.
func (t *BTree) Delete(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := make([]pathStep, 0, 8)
	unwind := func() {
		for i := len(path) - 1; i >= 0; i-- {
			if path[i].node != nil {
				t.unpin(path[i].node)
			}
		}
	}

	id := t.rootPageID
	for {
		n, err := t.fetchNode(id)
		if err != nil {
			unwind()
			return t.wrapCorrupt(err)
		}
		path = append(path, pathStep{node: n})
		if n.Level() == 0 {
			break
		}
		childID, childIdx, err := t.childFor(n, key)
		if err != nil {
			unwind()
			return t.wrapCorrupt(err)
		}
		path[len(path)-1].childIdx = childIdx
		id = childID
	}

	leaf := path[len(path)-1].node
	idx, found, err := leaf.searchKey(key)
	if err != nil {
		unwind()
		return t.wrapCorrupt(err)
	}
	if !found {
		unwind()
		return ErrKeyNotFound
	}
	if err := leaf.deleteEntryAt(idx); err != nil {
		unwind()
		return t.wrapCorrupt(err)
	}

	// Rebalance the path bottom-up. Merging into a sibling can leave the
	// parent underfull in turn.
	for i := len(path) - 1; i > 0; i-- {
		child := path[i].node
		if !t.underfull(child) {
			break
		}
		childFreed, err := t.rebalance(path[i-1].node, path[i-1].childIdx, child)
		if err != nil {
			unwind()
			return t.wrapCorrupt(err)
		}
		if childFreed {
			path[i].node = nil
		}
	}

	unwind()

	if err := t.collapseRoot(); err != nil {
		return t.wrapCorrupt(err)
	}
	t.metrics.RecordDelete()
	return nil
}

// underfull reports whether the page holds less than a quarter of its
// usable bytes. The root is exempt.
func (t *BTree) underfull(n *Node) bool {
	return n.usedBytes()*4 < n.usableBytes()
}

// rebalance restores occupancy of child (entry ci of parent) by moving one
// entry from a sibling or, when no sibling can spare one, merging with a
// sibling that fits. Reports whether the child page itself was freed. A
// page whose siblings can neither donate nor absorb is left underfull.
func (t *BTree) rebalance(parent *Node, ci int, child *Node) (bool, error) {
	if ci > 0 {
		left, err := t.fetchSibling(parent, ci-1)
		if err != nil {
			return false, err
		}
		moved, err := t.redistributeFromLeft(parent, ci, left, child)
		if err != nil {
			t.unpin(left)
			return false, err
		}
		if moved {
			t.unpin(left)
			return false, nil
		}
		merged, err := t.mergeIntoLeft(parent, ci, left, child)
		t.unpin(left)
		if err != nil {
			return false, err
		}
		if merged {
			return true, nil
		}
	}
	if ci < parent.EntryCount()-1 {
		right, err := t.fetchSibling(parent, ci+1)
		if err != nil {
			return false, err
		}
		moved, err := t.redistributeFromRight(parent, ci, child, right)
		if err != nil {
			t.unpin(right)
			return false, err
		}
		if moved {
			t.unpin(right)
			return false, nil
		}
		// mergeRightIntoChild unpins and frees the right page itself.
		return false, t.mergeRightIntoChild(parent, ci, child, right)
	}
	return false, nil
}

func (t *BTree) fetchSibling(parent *Node, idx int) (*Node, error) {
	tr, err := parent.Trailer(idx)
	if err != nil {
		return nil, err
	}
	return t.fetchNode(pagefile.PageID(tr.Value))
}

// canSpare reports whether the donor stays above the underflow threshold
// after giving up an entry of the given key length.
func (t *BTree) canSpare(donor *Node, keyLen int) bool {
	if donor.EntryCount() < 2 {
		return false
	}
	remaining := donor.usedBytes() - keyLen - trailerSize
	return remaining*4 >= donor.usableBytes()
}

// canReplaceSeparator reports whether parent entry idx's key can be
// swapped for newKey without overflowing the parent.
func canReplaceSeparator(parent *Node, idx int, newKey []byte) (bool, error) {
	tr, err := parent.Trailer(idx)
	if err != nil {
		return false, err
	}
	pe := parent.payloadEnd() - int(tr.KeySize0) + len(newKey)
	return pe <= len(parent.data)-parent.EntryCount()*trailerSize, nil
}

// replaceSeparator swaps the key of parent entry idx for newKey, keeping
// the child pointer. The caller has verified the replacement fits, so the
// delete-then-insert pair cannot fail halfway.
func (t *BTree) replaceSeparator(parent *Node, idx int, newKey []byte, child uint64) error {
	if err := parent.deleteEntryAt(idx); err != nil {
		return err
	}
	return parent.insertEntryAt(idx, newKey, child)
}

// redistributeFromLeft moves the left sibling's greatest entry to the
// front of child and updates child's separator to the moved key.
func (t *BTree) redistributeFromLeft(parent *Node, ci int, left, child *Node) (bool, error) {
	last := left.EntryCount() - 1
	k, err := left.KeyComponent(last, 0)
	if err != nil {
		return false, err
	}
	if !t.canSpare(left, len(k)) || !child.FreeSpace(len(k)) {
		return false, nil
	}
	ok, err := canReplaceSeparator(parent, ci, k)
	if err != nil || !ok {
		return false, err
	}
	tr, err := left.Trailer(last)
	if err != nil {
		return false, err
	}
	moved := append([]byte(nil), k...)
	if err := left.deleteEntryAt(last); err != nil {
		return false, err
	}
	if err := child.insertEntryAt(0, moved, tr.Value); err != nil {
		return false, err
	}
	childTr, err := parent.Trailer(ci)
	if err != nil {
		return false, err
	}
	if err := t.replaceSeparator(parent, ci, moved, childTr.Value); err != nil {
		return false, err
	}
	t.metrics.RecordRedistribution()
	return true, nil
}

// redistributeFromRight moves the right sibling's least entry to the end
// of child and updates the right sibling's separator to its new minimum.
func (t *BTree) redistributeFromRight(parent *Node, ci int, child, right *Node) (bool, error) {
	k, err := right.KeyComponent(0, 0)
	if err != nil {
		return false, err
	}
	if !t.canSpare(right, len(k)) || !child.FreeSpace(len(k)) {
		return false, nil
	}
	newMin, err := right.KeyComponent(1, 0)
	if err != nil {
		return false, err
	}
	newMin = append([]byte(nil), newMin...)
	ok, err := canReplaceSeparator(parent, ci+1, newMin)
	if err != nil || !ok {
		return false, err
	}
	tr, err := right.Trailer(0)
	if err != nil {
		return false, err
	}
	moved := append([]byte(nil), k...)
	if err := right.deleteEntryAt(0); err != nil {
		return false, err
	}
	if err := child.appendEntry(moved, tr.Value); err != nil {
		return false, err
	}
	rightTr, err := parent.Trailer(ci + 1)
	if err != nil {
		return false, err
	}
	if err := t.replaceSeparator(parent, ci+1, newMin, rightTr.Value); err != nil {
		return false, err
	}
	t.metrics.RecordRedistribution()
	return true, nil
}

// mergeNodes appends every entry of src to dst. src's keys all order
// after dst's, so appends preserve order.
func mergeNodes(dst, src *Node) (bool, error) {
	combined := dst.usedBytes() + src.usedBytes()
	if combined > dst.usableBytes() {
		return false, nil
	}
	for i := 0; i < src.EntryCount(); i++ {
		k, err := src.KeyComponent(i, 0)
		if err != nil {
			return false, err
		}
		tr, err := src.Trailer(i)
		if err != nil {
			return false, err
		}
		if err := dst.appendEntry(k, tr.Value); err != nil {
			return false, err
		}
	}
	return true, nil
}

// mergeIntoLeft empties child into its left sibling, removes child's
// separator from the parent and frees the child page. The caller drops
// its reference when this reports true.
func (t *BTree) mergeIntoLeft(parent *Node, ci int, left, child *Node) (bool, error) {
	merged, err := mergeNodes(left, child)
	if err != nil || !merged {
		return false, err
	}
	if err := parent.deleteEntryAt(ci); err != nil {
		return false, err
	}
	freed := child.PageID()
	t.unpin(child)
	if err := t.pool.FreePage(freed); err != nil {
		return false, err
	}
	t.metrics.RecordPageMerge()
	t.logger.Debug("merged page into left sibling",
		zap.Uint64("freed", uint64(freed)),
		zap.Uint64("into", uint64(left.PageID())))
	return true, nil
}

// mergeRightIntoChild empties the right sibling into child, removes the
// right sibling's separator from the parent and frees its page. The right
// node is consumed whether or not the merge happens.
func (t *BTree) mergeRightIntoChild(parent *Node, ci int, child, right *Node) error {
	merged, err := mergeNodes(child, right)
	if err != nil || !merged {
		t.unpin(right)
		return err
	}
	if err := parent.deleteEntryAt(ci + 1); err != nil {
		t.unpin(right)
		return err
	}
	freed := right.PageID()
	t.unpin(right)
	if err := t.pool.FreePage(freed); err != nil {
		return err
	}
	t.metrics.RecordPageMerge()
	t.logger.Debug("merged right sibling into page",
		zap.Uint64("freed", uint64(freed)),
		zap.Uint64("into", uint64(child.PageID())))
	return nil
}

// collapseRoot shrinks the tree while the root is an interior page with a
// single child. The promoted child's first separator is rewritten to the
// empty key so the new root keeps ordering before every possible name.
// Requires that no descent pins are held.
func (t *BTree) collapseRoot() error {
	for {
		root, err := t.fetchNode(t.rootPageID)
		if err != nil {
			return err
		}
		if root.Level() == 0 || root.EntryCount() > 1 {
			t.unpin(root)
			return nil
		}
		tr, err := root.Trailer(0)
		if err != nil {
			t.unpin(root)
			return err
		}
		oldID := root.PageID()
		t.unpin(root)

		childID := pagefile.PageID(tr.Value)
		if err := t.normalizeRootEntry(childID); err != nil {
			return err
		}
		if err := t.pageFile.SetRootPageID(childID); err != nil {
			return err
		}
		t.rootPageID = childID
		if err := t.pool.FreePage(oldID); err != nil {
			return err
		}
		t.logger.Info("tree shrank a level", zap.Uint64("new_root", uint64(childID)))
	}
}

// normalizeRootEntry rewrites an interior page's first separator to the
// empty key before the page becomes the root.
func (t *BTree) normalizeRootEntry(id pagefile.PageID) error {
	n, err := t.fetchNode(id)
	if err != nil {
		return err
	}
	defer t.unpin(n)
	if n.Level() == 0 || n.EntryCount() == 0 {
		return nil
	}
	tr, err := n.Trailer(0)
	if err != nil {
		return err
	}
	if tr.KeySize0 == 0 {
		return nil
	}
	child := tr.Value
	if err := n.deleteEntryAt(0); err != nil {
		return err
	}
	return n.insertEntryAt(0, nil, child)
}
