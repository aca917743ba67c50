// Package bufferpool keeps an LRU-managed set of in-memory page frames on
// top of a pagefile. A page is pinned while any operation reads or mutates
// it; only unpinned pages are eligible for eviction. The pool guarantees at
// most one in-memory representation per page id at a time.
package bufferpool

import (
	"container/list"
	"sync"

	"github.com/sushant-115/namedex/core/storage/pagefile"
)

// Page is the in-memory copy of one disk page.
type Page struct {
	id       pagefile.PageID
	data     []byte
	pinCount uint32
	isDirty  bool

	// corrupt carries a diagnostic tag naming the structural check that
	// failed. Once set it is permanent for the page's in-memory lifetime;
	// it is never cleared except by recycling the frame for a different
	// page.
	corrupt string

	lruElement *list.Element

	// latch protects the page contents for integrators that allow
	// concurrent pinners of the same page.
	latch sync.RWMutex
}

// NewPage creates an empty page frame.
func NewPage(id pagefile.PageID, size int) *Page {
	return &Page{id: id, data: make([]byte, size)}
}

// Reset prepares the frame for a different page. Data is zeroed so stale
// bytes never leak into a new page's buffer.
func (p *Page) Reset() {
	p.id = pagefile.InvalidPageID
	p.pinCount = 0
	p.isDirty = false
	p.corrupt = ""
	p.lruElement = nil
	for i := range p.data {
		p.data[i] = 0
	}
}

func (p *Page) GetData() []byte           { return p.data }
func (p *Page) GetPageID() pagefile.PageID { return p.id }
func (p *Page) IsDirty() bool             { return p.isDirty }
func (p *Page) SetDirty(dirty bool)       { p.isDirty = dirty }
func (p *Page) Pin()                      { p.pinCount++ }
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}
func (p *Page) GetPinCount() uint32 { return p.pinCount }

// MarkCorrupt records the diagnostic tag of the first failed structural
// check. Later calls keep the original tag: the first detection is the one
// worth diagnosing.
func (p *Page) MarkCorrupt(tag string) {
	if p.corrupt == "" {
		p.corrupt = tag
	}
}

// CorruptTag reports whether the page has been marked corrupt and the
// diagnostic tag recorded at detection time.
func (p *Page) CorruptTag() (string, bool) {
	return p.corrupt, p.corrupt != ""
}

// RLock acquires a shared latch on the page contents.
func (p *Page) RLock() { p.latch.RLock() }

// RUnlock releases a shared latch.
func (p *Page) RUnlock() { p.latch.RUnlock() }

// Lock acquires an exclusive latch on the page contents.
func (p *Page) Lock() { p.latch.Lock() }

// Unlock releases an exclusive latch.
func (p *Page) Unlock() { p.latch.Unlock() }
