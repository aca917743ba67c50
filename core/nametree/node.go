// Package nametree implements the on-disk B-tree index mapping
// hierarchical content names to opaque payload locators. Interior pages
// hold (separator key, child page id) entries; leaf pages hold
// (name, locator) entries. All multi-byte on-page fields are big-endian.
package nametree

import (
	"fmt"

	"github.com/sushant-115/namedex/core/encoding/bigendian"
	"github.com/sushant-115/namedex/core/storage/bufferpool"
	"github.com/sushant-115/namedex/core/storage/pagefile"
)

// Node page layout. A 24-byte header is followed by the key payload area
// growing forward, while fixed-size entry trailers grow backward from the
// end of the page. Entry i's trailer occupies
// [pageSize-(i+1)*trailerSize, pageSize-i*trailerSize).
const (
	nodeHeaderSize = 24

	hdrPageIDOff     = 0  // 8 bytes
	hdrLevelOff      = 8  // 2 bytes, 0 means leaf
	hdrEntryCountOff = 10 // 2 bytes
	hdrFlagsOff      = 12 // 2 bytes
	hdrPayloadEndOff = 14 // 4 bytes, offset of the first free payload byte

	trailerSize = 28

	trKeyOffset0Off = 0  // 4 bytes
	trKeySize0Off   = 4  // 4 bytes
	trKeyOffset1Off = 8  // 4 bytes
	trKeySize1Off   = 12 // 4 bytes
	trValueOff      = 16 // 8 bytes
	trFlagsOff      = 24 // 2 bytes
)

// Trailer is the decoded fixed-size portion of one entry.
type Trailer struct {
	KeyOffset0 uint32
	KeySize0   uint32
	KeyOffset1 uint32
	KeySize1   uint32
	Value      uint64
	Flags      uint16
}

// MaxKeySize is the largest key insertable into a tree with the given page
// size. A page must always hold at least two maximum-size entries or a
// full page could not be split.
func MaxKeySize(pageSize int) int {
	return (pageSize - nodeHeaderSize - 2*trailerSize) / 2
}

// Node interprets a pinned buffer pool page as a tree node. It does not
// own the pin; the caller that fetched the page releases it.
type Node struct {
	page *bufferpool.Page
	data []byte
}

func newNode(page *bufferpool.Page) *Node {
	return &Node{page: page, data: page.GetData()}
}

// initNode formats a freshly allocated page as an empty node.
func initNode(page *bufferpool.Page, id pagefile.PageID, level int) *Node {
	n := newNode(page)
	for i := 0; i < nodeHeaderSize; i++ {
		n.data[i] = 0
	}
	n.putHeader(hdrPageIDOff, uint64(id), 8)
	n.putHeader(hdrLevelOff, uint64(level), 2)
	n.putHeader(hdrPayloadEndOff, nodeHeaderSize, 4)
	page.SetDirty(true)
	return n
}

// header reads a fixed-offset header field. Offsets and widths are
// compile-time constants well inside the minimum page size, so the codec
// cannot fail here.
func (n *Node) header(off, width int) uint64 {
	v, _ := bigendian.Uint(n.data[off:off+width], width)
	return v
}

func (n *Node) putHeader(off int, v uint64, width int) {
	_ = bigendian.PutUint(n.data[off:off+width], v, width)
}

func (n *Node) PageID() pagefile.PageID { return pagefile.PageID(n.header(hdrPageIDOff, 8)) }
func (n *Node) Level() int              { return int(n.header(hdrLevelOff, 2)) }
func (n *Node) EntryCount() int         { return int(n.header(hdrEntryCountOff, 2)) }

func (n *Node) payloadEnd() int           { return int(n.header(hdrPayloadEndOff, 4)) }
func (n *Node) setEntryCount(count int)   { n.putHeader(hdrEntryCountOff, uint64(count), 2) }
func (n *Node) setPayloadEnd(end int)     { n.putHeader(hdrPayloadEndOff, uint64(end), 4) }

// Capacity is the number of entries the page can hold if every key were
// empty.
func (n *Node) Capacity() int {
	return (len(n.data) - nodeHeaderSize) / trailerSize
}

// usedBytes counts payload bytes plus trailer bytes in use.
func (n *Node) usedBytes() int {
	return (n.payloadEnd() - nodeHeaderSize) + n.EntryCount()*trailerSize
}

// usableBytes is the space available to payload and trailers combined.
func (n *Node) usableBytes() int {
	return len(n.data) - nodeHeaderSize
}

// FreeSpace reports whether an entry with a key of keyLen bytes fits: the
// payload area must not collide with one more trailer slot.
func (n *Node) FreeSpace(keyLen int) bool {
	count := n.EntryCount()
	if count >= n.Capacity() {
		return false
	}
	return n.payloadEnd()+keyLen <= len(n.data)-(count+1)*trailerSize
}

func (n *Node) corruptErr(tag string) error {
	return fmt.Errorf("%w: page %d: %s", ErrPageCorrupt, n.PageID(), tag)
}

// markCorrupt records the first failed structural check on the page and
// returns the matching error. The tag is sticky for the page's in-memory
// lifetime.
func (n *Node) markCorrupt(tag string) error {
	n.page.MarkCorrupt(tag)
	return n.corruptErr(tag)
}

// validate runs the structural checks applied to every page entering an
// operation. A page already marked corrupt is re-reported without
// re-validation.
func (n *Node) validate() error {
	if tag, ok := n.page.CorruptTag(); ok {
		return n.corruptErr(tag)
	}
	count := n.EntryCount()
	if count > n.Capacity() {
		return n.markCorrupt(fmt.Sprintf("entry count %d exceeds capacity %d", count, n.Capacity()))
	}
	pe := n.payloadEnd()
	if pe < nodeHeaderSize || pe > len(n.data)-count*trailerSize {
		return n.markCorrupt(fmt.Sprintf("payload end %d outside [%d, %d]", pe, nodeHeaderSize, len(n.data)-count*trailerSize))
	}
	if n.Level() > 0 && count == 0 {
		return n.markCorrupt("interior page with no entries")
	}
	return nil
}

func (n *Node) trailerSlot(i int) int {
	return len(n.data) - (i+1)*trailerSize
}

func (n *Node) trailerField(i, fieldOff, width int) uint64 {
	off := n.trailerSlot(i) + fieldOff
	v, _ := bigendian.Uint(n.data[off:off+width], width)
	return v
}

func (n *Node) setTrailerField(i, fieldOff int, v uint64, width int) {
	off := n.trailerSlot(i) + fieldOff
	_ = bigendian.PutUint(n.data[off:off+width], v, width)
}

// Trailer decodes entry i's fixed-size trailer. The index is range-checked
// against the entry count before the page is touched.
func (n *Node) Trailer(i int) (Trailer, error) {
	if i < 0 || i >= n.EntryCount() {
		return Trailer{}, fmt.Errorf("%w: entry %d of %d", ErrIndexOutOfRange, i, n.EntryCount())
	}
	if tag, ok := n.page.CorruptTag(); ok {
		return Trailer{}, n.corruptErr(tag)
	}
	return Trailer{
		KeyOffset0: uint32(n.trailerField(i, trKeyOffset0Off, 4)),
		KeySize0:   uint32(n.trailerField(i, trKeySize0Off, 4)),
		KeyOffset1: uint32(n.trailerField(i, trKeyOffset1Off, 4)),
		KeySize1:   uint32(n.trailerField(i, trKeySize1Off, 4)),
		Value:      n.trailerField(i, trValueOff, 8),
		Flags:      uint16(n.trailerField(i, trFlagsOff, 2)),
	}, nil
}

// KeyComponent returns component which (0 or 1) of entry i's key as a
// subslice of the page buffer, valid only while the page stays pinned. A
// zero-size component is returned empty without inspecting its offset. An
// out-of-bounds (offset, size) pair marks the page corrupt.
func (n *Node) KeyComponent(i, which int) ([]byte, error) {
	if which != 0 && which != 1 {
		return nil, fmt.Errorf("%w: key component %d", ErrIndexOutOfRange, which)
	}
	tr, err := n.Trailer(i)
	if err != nil {
		return nil, err
	}
	off, size := int(tr.KeyOffset0), int(tr.KeySize0)
	if which == 1 {
		off, size = int(tr.KeyOffset1), int(tr.KeySize1)
	}
	if size == 0 {
		return nil, nil
	}
	if off < nodeHeaderSize || off+size > len(n.data) {
		return nil, n.markCorrupt(fmt.Sprintf("entry %d component %d: offset %d size %d outside payload of %d-byte page", i, which, off, size, len(n.data)))
	}
	return n.data[off : off+size], nil
}

// insertEntryAt places (key, value) as entry idx, shifting trailers idx and
// above one slot toward the payload area. The caller has already
// established that idx preserves key order and that FreeSpace(len(key))
// holds.
func (n *Node) insertEntryAt(idx int, key []byte, value uint64) error {
	count := n.EntryCount()
	if idx < 0 || idx > count {
		return fmt.Errorf("%w: insert at %d of %d", ErrIndexOutOfRange, idx, count)
	}
	if !n.FreeSpace(len(key)) {
		return fmt.Errorf("%w: %d-byte key on page %d", ErrPageOverflow, len(key), n.PageID())
	}

	pe := n.payloadEnd()
	koff := 0
	if len(key) > 0 {
		koff = pe
		copy(n.data[pe:], key)
		pe += len(key)
	}

	end := len(n.data)
	if idx < count {
		copy(n.data[end-(count+1)*trailerSize:], n.data[end-count*trailerSize:end-idx*trailerSize])
	}

	n.setTrailerField(idx, trKeyOffset0Off, uint64(koff), 4)
	n.setTrailerField(idx, trKeySize0Off, uint64(len(key)), 4)
	n.setTrailerField(idx, trKeyOffset1Off, 0, 4)
	n.setTrailerField(idx, trKeySize1Off, 0, 4)
	n.setTrailerField(idx, trValueOff, value, 8)
	n.setTrailerField(idx, trFlagsOff, 0, 2)

	n.setPayloadEnd(pe)
	n.setEntryCount(count + 1)
	n.page.SetDirty(true)
	return nil
}

func (n *Node) appendEntry(key []byte, value uint64) error {
	return n.insertEntryAt(n.EntryCount(), key, value)
}

// deleteEntryAt removes entry idx, closing both the trailer gap and the
// payload gap so the payload area stays contiguous. Trailer offsets of
// surviving entries pointing past the removed key bytes are adjusted.
func (n *Node) deleteEntryAt(idx int) error {
	tr, err := n.Trailer(idx)
	if err != nil {
		return err
	}
	count := n.EntryCount()
	end := len(n.data)

	if idx < count-1 {
		copy(n.data[end-(count-1)*trailerSize:], n.data[end-count*trailerSize:end-(idx+1)*trailerSize])
	}
	for i := end - count*trailerSize; i < end-(count-1)*trailerSize; i++ {
		n.data[i] = 0
	}

	pe := n.payloadEnd()
	koff, ksiz := int(tr.KeyOffset0), int(tr.KeySize0)
	if ksiz > 0 {
		copy(n.data[koff:], n.data[koff+ksiz:pe])
		for i := pe - ksiz; i < pe; i++ {
			n.data[i] = 0
		}
		for j := 0; j < count-1; j++ {
			if off := int(n.trailerField(j, trKeyOffset0Off, 4)); off > koff {
				n.setTrailerField(j, trKeyOffset0Off, uint64(off-ksiz), 4)
			}
			if size := int(n.trailerField(j, trKeySize1Off, 4)); size > 0 {
				if off := int(n.trailerField(j, trKeyOffset1Off, 4)); off > koff {
					n.setTrailerField(j, trKeyOffset1Off, uint64(off-ksiz), 4)
				}
			}
		}
		pe -= ksiz
	}

	n.setPayloadEnd(pe)
	n.setEntryCount(count - 1)
	n.page.SetDirty(true)
	return nil
}

// removeUpper drops every entry at index keep and above by rebuilding the
// page from the kept entries. Used by splits after the upper half has been
// copied to the sibling.
func (n *Node) removeUpper(keep int) error {
	count := n.EntryCount()
	if keep < 0 || keep > count {
		return fmt.Errorf("%w: keep %d of %d", ErrIndexOutOfRange, keep, count)
	}
	type entry struct {
		key   []byte
		value uint64
	}
	kept := make([]entry, 0, keep)
	for i := 0; i < keep; i++ {
		k, err := n.KeyComponent(i, 0)
		if err != nil {
			return err
		}
		tr, err := n.Trailer(i)
		if err != nil {
			return err
		}
		kept = append(kept, entry{key: append([]byte(nil), k...), value: tr.Value})
	}
	for i := nodeHeaderSize; i < len(n.data); i++ {
		n.data[i] = 0
	}
	n.setEntryCount(0)
	n.setPayloadEnd(nodeHeaderSize)
	for _, e := range kept {
		if err := n.appendEntry(e.key, e.value); err != nil {
			return err
		}
	}
	n.page.SetDirty(true)
	return nil
}
