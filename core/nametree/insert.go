package nametree

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"github.com/sushant-115/namedex/core/storage/pagefile"
)

// promotedEntry is the separator handed up to the parent after a split:
// the minimum key of the new right sibling and its page id.
type promotedEntry struct {
	key   []byte
	child pagefile.PageID
}

// Insert stores value under key. Inserting a key that is already present
// fails with ErrKeyExists.
func (t *BTree) Insert(key []byte, value uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(key) > t.maxKeySize {
		return fmt.Errorf("%w: %d bytes, maximum %d", ErrKeyTooLarge, len(key), t.maxKeySize)
	}

	promo, err := t.insertInto(t.rootPageID, key, value)
	if err != nil {
		return t.wrapCorrupt(err)
	}
	if promo != nil {
		if err := t.growRoot(promo); err != nil {
			return t.wrapCorrupt(err)
		}
	}
	t.metrics.RecordInsert()
	return nil
}

// growRoot adds a level: a new root whose first entry covers everything
// below the promoted separator via the empty key, keeping the invariant
// that the root's first separator orders before every possible name. The
// new root is fully written before the tree header points at it.
func (t *BTree) growRoot(promo *promotedEntry) error {
	oldRoot := t.rootPageID
	oldLevel, err := t.nodeLevel(oldRoot)
	if err != nil {
		return err
	}
	page, id, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	root := initNode(page, id, oldLevel+1)
	if err := root.appendEntry(nil, uint64(oldRoot)); err != nil {
		return err
	}
	if err := root.appendEntry(promo.key, uint64(promo.child)); err != nil {
		return err
	}
	if err := t.pool.UnpinPage(id, true); err != nil {
		return err
	}
	if err := t.pageFile.SetRootPageID(id); err != nil {
		return err
	}
	t.rootPageID = id
	t.logger.Info("tree grew a level",
		zap.Uint64("new_root", uint64(id)),
		zap.Int("level", oldLevel+1))
	return nil
}

func (t *BTree) nodeLevel(id pagefile.PageID) (int, error) {
	n, err := t.fetchNode(id)
	if err != nil {
		return 0, err
	}
	level := n.Level()
	t.unpin(n)
	return level, nil
}

// insertInto recursively places (key, value) in the subtree rooted at id.
// A non-nil promotedEntry means the page split and the caller must link
// the new sibling.
func (t *BTree) insertInto(id pagefile.PageID, key []byte, value uint64) (*promotedEntry, error) {
	n, err := t.fetchNode(id)
	if err != nil {
		return nil, err
	}

	if n.Level() == 0 {
		idx, found, err := n.searchKey(key)
		if err != nil {
			t.unpin(n)
			return nil, err
		}
		if found {
			t.unpin(n)
			return nil, fmt.Errorf("%w: %q", ErrKeyExists, key)
		}
		if n.FreeSpace(len(key)) {
			err := n.insertEntryAt(idx, key, value)
			t.unpin(n)
			return nil, err
		}
		promo, err := t.splitAndInsert(n, key, value)
		t.unpin(n)
		return promo, err
	}

	childID, _, err := t.childFor(n, key)
	if err != nil {
		t.unpin(n)
		return nil, err
	}
	promo, err := t.insertInto(childID, key, value)
	if err != nil || promo == nil {
		t.unpin(n)
		return nil, err
	}

	// Link the new sibling into this node. The promoted separator is the
	// sibling's minimum key, so it always lands at index >= 1.
	sepIdx, _, err := n.searchKey(promo.key)
	if err != nil {
		t.unpin(n)
		return nil, err
	}
	if n.FreeSpace(len(promo.key)) {
		err := n.insertEntryAt(sepIdx, promo.key, uint64(promo.child))
		t.unpin(n)
		return nil, err
	}
	up, err := t.splitAndInsert(n, promo.key, uint64(promo.child))
	t.unpin(n)
	return up, err
}

// splitAndInsert splits the full page n, moving its upper half to a new
// right sibling, then places the pending entry on whichever side it
// belongs. The sibling is fully written and unpinned before its separator
// is returned for linking, so a crash mid-split leaves at worst an
// unreferenced page.
func (t *BTree) splitAndInsert(n *Node, key []byte, value uint64) (*promotedEntry, error) {
	sibPage, sibID, err := t.pool.NewPage()
	if err != nil {
		return nil, err
	}
	abort := func(err error) (*promotedEntry, error) {
		_ = t.pool.UnpinPage(sibID, false)
		_ = t.pool.FreePage(sibID)
		return nil, err
	}
	sib := initNode(sibPage, sibID, n.Level())

	count := n.EntryCount()
	keep := (count + 1) / 2
	var sepKey []byte
	for i := keep; i < count; i++ {
		k, err := n.KeyComponent(i, 0)
		if err != nil {
			return abort(err)
		}
		tr, err := n.Trailer(i)
		if err != nil {
			return abort(err)
		}
		if err := sib.appendEntry(k, tr.Value); err != nil {
			return abort(err)
		}
		if i == keep {
			sepKey = append([]byte(nil), k...)
		}
	}
	if err := n.removeUpper(keep); err != nil {
		return abort(err)
	}

	target := n
	if bytes.Compare(key, sepKey) >= 0 {
		target = sib
	}
	idx, _, err := target.searchKey(key)
	if err != nil {
		return abort(err)
	}
	if err := target.insertEntryAt(idx, key, value); err != nil {
		return abort(err)
	}

	if err := t.pool.UnpinPage(sibID, true); err != nil {
		return nil, err
	}
	t.metrics.RecordPageSplit()
	t.logger.Debug("split page",
		zap.Uint64("page", uint64(n.PageID())),
		zap.Uint64("sibling", uint64(sibID)),
		zap.Int("kept", keep),
		zap.Int("moved", count-keep))
	return &promotedEntry{key: sepKey, child: sibID}, nil
}
