package bufferpool

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sushant-115/namedex/core/storage/pagefile"
)

var (
	ErrPoolFull        = errors.New("buffer pool is full and no pages can be evicted")
	ErrPageNotResident = errors.New("page not resident in buffer pool")
	ErrPagePinned      = errors.New("page is pinned")
)

// Manager is the page cache between the tree and the page file. It
// implements an LRU eviction policy over a fixed number of frames.
type Manager struct {
	pageFile *pagefile.PageFile
	logger   *zap.Logger
	poolSize int
	pageSize int

	mu        sync.Mutex
	pages     []*Page
	pageTable map[pagefile.PageID]int // PageID to frame index
	lruList   *list.List              // frame indices, most recent at front
}

// NewManager creates a pool of poolSize frames over the given page file.
func NewManager(poolSize int, pf *pagefile.PageFile, logger *zap.Logger) *Manager {
	m := &Manager{
		pageFile:  pf,
		logger:    logger,
		poolSize:  poolSize,
		pageSize:  pf.PageSize(),
		pages:     make([]*Page, poolSize),
		pageTable: make(map[pagefile.PageID]int),
		lruList:   list.New(),
	}
	for i := 0; i < poolSize; i++ {
		m.pages[i] = NewPage(pagefile.InvalidPageID, m.pageSize)
	}
	return m
}

// FetchPage returns the page pinned. If the page is not resident it is read
// from the page file into an evicted frame.
func (m *Manager) FetchPage(id pagefile.PageID) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frameIdx, ok := m.pageTable[id]; ok {
		page := m.pages[frameIdx]
		page.Pin()
		if page.lruElement != nil {
			m.lruList.MoveToFront(page.lruElement)
		}
		return page, nil
	}

	frameIdx, err := m.victimFrame()
	if err != nil {
		return nil, err
	}
	victim := m.pages[frameIdx]
	if err := m.evict(victim, frameIdx); err != nil {
		return nil, err
	}

	if err := m.pageFile.ReadPage(id, victim.GetData()); err != nil {
		return nil, fmt.Errorf("reading page %d: %w", id, err)
	}
	victim.id = id
	victim.pinCount = 1
	victim.isDirty = false
	m.pageTable[id] = frameIdx
	victim.lruElement = m.lruList.PushFront(frameIdx)
	return victim, nil
}

// evict flushes a dirty victim and removes it from the page table. Caller
// must hold m.mu. The frame is left reset.
func (m *Manager) evict(victim *Page, frameIdx int) error {
	if victim.GetPageID() != pagefile.InvalidPageID {
		if victim.IsDirty() {
			m.logger.Debug("flushing dirty victim page", zap.Uint64("page", uint64(victim.GetPageID())))
			if err := m.pageFile.WritePage(victim.GetPageID(), victim.GetData()); err != nil {
				return fmt.Errorf("flushing victim page %d: %w", victim.GetPageID(), err)
			}
		}
		delete(m.pageTable, victim.GetPageID())
		if victim.lruElement != nil {
			m.lruList.Remove(victim.lruElement)
		}
	}
	victim.Reset()
	return nil
}

// victimFrame finds an unpinned frame, preferring the least recently used.
// Caller must hold m.mu.
func (m *Manager) victimFrame() (int, error) {
	for e := m.lruList.Back(); e != nil; e = e.Prev() {
		frameIdx := e.Value.(int)
		if m.pages[frameIdx].GetPinCount() == 0 {
			return frameIdx, nil
		}
	}
	for i := 0; i < m.poolSize; i++ {
		if m.pages[i].GetPageID() == pagefile.InvalidPageID {
			return i, nil
		}
	}
	m.logger.Error("buffer pool exhausted, all pages pinned")
	return -1, ErrPoolFull
}

// UnpinPage releases one pin. dirty marks the page as modified; the flag is
// only cleared by a successful flush.
func (m *Manager) UnpinPage(id pagefile.PageID, dirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	frameIdx, ok := m.pageTable[id]
	if !ok {
		return fmt.Errorf("%w: page %d", ErrPageNotResident, id)
	}
	page := m.pages[frameIdx]
	if page.GetPinCount() == 0 {
		return fmt.Errorf("cannot unpin page %d with pin count 0", id)
	}
	page.Unpin()
	if dirty {
		page.SetDirty(true)
	}
	return nil
}

// NewPage allocates a page in the page file and returns it pinned and
// dirty.
func (m *Manager) NewPage() (*Page, pagefile.PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.pageFile.AllocatePage()
	if err != nil {
		return nil, pagefile.InvalidPageID, err
	}
	frameIdx, err := m.victimFrame()
	if err != nil {
		// The allocated disk page is returned to the free list rather
		// than orphaned.
		_ = m.pageFile.FreePage(id)
		return nil, pagefile.InvalidPageID, err
	}
	victim := m.pages[frameIdx]
	if err := m.evict(victim, frameIdx); err != nil {
		_ = m.pageFile.FreePage(id)
		return nil, pagefile.InvalidPageID, err
	}

	victim.id = id
	victim.pinCount = 1
	victim.isDirty = true
	m.pageTable[id] = frameIdx
	victim.lruElement = m.lruList.PushFront(frameIdx)
	return victim, id, nil
}

// FreePage drops the page from the pool and returns it to the page file's
// free list. The page must be unpinned.
func (m *Manager) FreePage(id pagefile.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if frameIdx, ok := m.pageTable[id]; ok {
		page := m.pages[frameIdx]
		if page.GetPinCount() > 0 {
			return fmt.Errorf("%w: page %d has pin count %d", ErrPagePinned, id, page.GetPinCount())
		}
		delete(m.pageTable, id)
		if page.lruElement != nil {
			m.lruList.Remove(page.lruElement)
		}
		page.Reset()
	}
	return m.pageFile.FreePage(id)
}

// FlushPage writes the page to the page file if it is dirty.
func (m *Manager) FlushPage(id pagefile.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	frameIdx, ok := m.pageTable[id]
	if !ok {
		return fmt.Errorf("%w: page %d", ErrPageNotResident, id)
	}
	page := m.pages[frameIdx]
	if !page.IsDirty() {
		return nil
	}
	if err := m.pageFile.WritePage(id, page.GetData()); err != nil {
		return err
	}
	page.SetDirty(false)
	return nil
}

// FlushAllPages writes every dirty resident page and syncs the page file.
// The first error is returned after attempting all pages.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, page := range m.pages {
		if page.GetPageID() == pagefile.InvalidPageID || !page.IsDirty() {
			continue
		}
		if err := m.pageFile.WritePage(page.GetPageID(), page.GetData()); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			m.logger.Error("failed to flush page", zap.Uint64("page", uint64(page.GetPageID())), zap.Error(err))
			continue
		}
		page.SetDirty(false)
	}
	if err := m.pageFile.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
