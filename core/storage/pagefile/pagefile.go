// Package pagefile stores fixed-size index pages in a single file. Page 0
// holds the file header (magic, page size, root page id, free list head);
// every other page is addressed by its PageID at offset id*pageSize.
package pagefile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/sushant-115/namedex/core/encoding/bigendian"
)

// PageID identifies a page in the file for the page's whole lifetime.
type PageID uint64

const (
	// InvalidPageID doubles as the header page id; it never refers to an
	// index page.
	InvalidPageID PageID = 0

	DefaultPageSize = 8192
	MinPageSize     = 512

	fileMagic   uint64 = 0x4e414d4544455831 // "NAMEDEX1"
	fileVersion uint64 = 1

	// Header field layout within page 0, all big-endian.
	hdrOffMagic    = 0
	hdrOffVersion  = 8
	hdrOffPageSize = 12
	hdrOffRoot     = 16
	hdrOffFreeList = 24
	hdrOffCount    = 32
	headerSize     = 40
)

var (
	ErrIO               = errors.New("i/o error")
	ErrBadMagic         = errors.New("not a namedex page file")
	ErrPageSizeMismatch = errors.New("page file page size does not match configured page size")
	ErrInvalidPageID    = errors.New("invalid page id")
	ErrBufferSize       = errors.New("page buffer size does not match page size")
)

// PageFile owns the underlying file handle. All methods are safe for
// concurrent use.
type PageFile struct {
	path     string
	file     *os.File
	pageSize int
	logger   *zap.Logger

	mu         sync.Mutex
	rootPageID PageID
	freeListID PageID
	pageCount  uint64
}

// Open opens an existing page file at path, or creates a new one when none
// exists. pageSize must match the file's page size when opening an existing
// file.
func Open(path string, pageSize int, logger *zap.Logger) (*PageFile, error) {
	if pageSize < MinPageSize {
		return nil, fmt.Errorf("page size %d below minimum %d", pageSize, MinPageSize)
	}
	pf := &PageFile{path: path, pageSize: pageSize, logger: logger}

	_, statErr := os.Stat(path)
	switch {
	case os.IsNotExist(statErr):
		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
		if err != nil {
			return nil, fmt.Errorf("%w: creating %s: %v", ErrIO, path, err)
		}
		pf.file = file
		pf.pageCount = 1 // page 0 is the header
		if err := pf.writeHeader(); err != nil {
			file.Close()
			_ = os.Remove(path)
			return nil, err
		}
		logger.Info("created page file", zap.String("path", path), zap.Int("page_size", pageSize))
	case statErr == nil:
		file, err := os.OpenFile(path, os.O_RDWR, 0o666)
		if err != nil {
			return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
		}
		pf.file = file
		if err := pf.readHeader(); err != nil {
			file.Close()
			return nil, err
		}
		logger.Info("opened page file", zap.String("path", path),
			zap.Uint64("root_page", uint64(pf.rootPageID)), zap.Uint64("pages", pf.pageCount))
	default:
		return nil, fmt.Errorf("%w: stating %s: %v", ErrIO, path, statErr)
	}
	return pf, nil
}

// writeHeader serializes the header fields into page 0. Caller must hold
// pf.mu (or be the only goroutine with access, as in Open).
func (pf *PageFile) writeHeader() error {
	buf := make([]byte, pf.pageSize)
	fields := []struct {
		off, width int
		v          uint64
	}{
		{hdrOffMagic, 8, fileMagic},
		{hdrOffVersion, 4, fileVersion},
		{hdrOffPageSize, 4, uint64(pf.pageSize)},
		{hdrOffRoot, 8, uint64(pf.rootPageID)},
		{hdrOffFreeList, 8, uint64(pf.freeListID)},
		{hdrOffCount, 8, pf.pageCount},
	}
	for _, f := range fields {
		if err := bigendian.PutUint(buf[f.off:], f.v, f.width); err != nil {
			return fmt.Errorf("encoding header field at offset %d: %w", f.off, err)
		}
	}
	if _, err := pf.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: writing header: %v", ErrIO, err)
	}
	return pf.file.Sync()
}

func (pf *PageFile) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(io.NewSectionReader(pf.file, 0, int64(headerSize)), buf); err != nil {
		return fmt.Errorf("%w: reading header: %v", ErrIO, err)
	}
	magic, _ := bigendian.Uint(buf[hdrOffMagic:], 8)
	if magic != fileMagic {
		return fmt.Errorf("%w: %s", ErrBadMagic, pf.path)
	}
	size, _ := bigendian.Uint(buf[hdrOffPageSize:], 4)
	if int(size) != pf.pageSize {
		return fmt.Errorf("%w: file has %d, configured %d", ErrPageSizeMismatch, size, pf.pageSize)
	}
	root, _ := bigendian.Uint(buf[hdrOffRoot:], 8)
	free, _ := bigendian.Uint(buf[hdrOffFreeList:], 8)
	count, _ := bigendian.Uint(buf[hdrOffCount:], 8)
	pf.rootPageID = PageID(root)
	pf.freeListID = PageID(free)
	pf.pageCount = count
	return nil
}

// PageSize returns the fixed page size of the file.
func (pf *PageFile) PageSize() int { return pf.pageSize }

// RootPageID returns the persisted root page id, or InvalidPageID when the
// tree has not been initialized yet.
func (pf *PageFile) RootPageID() PageID {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.rootPageID
}

// SetRootPageID persists a new root page id to the file header.
func (pf *PageFile) SetRootPageID(id PageID) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	old := pf.rootPageID
	pf.rootPageID = id
	if err := pf.writeHeader(); err != nil {
		pf.rootPageID = old
		return err
	}
	return nil
}

// ReadPage reads the page's bytes into buf, which must be exactly one page
// long.
func (pf *PageFile) ReadPage(id PageID, buf []byte) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if id == InvalidPageID || uint64(id) >= pf.pageCount {
		return fmt.Errorf("%w: %d (file has %d pages)", ErrInvalidPageID, id, pf.pageCount)
	}
	if len(buf) != pf.pageSize {
		return fmt.Errorf("%w: got %d, want %d", ErrBufferSize, len(buf), pf.pageSize)
	}
	offset := int64(id) * int64(pf.pageSize)
	if _, err := pf.file.ReadAt(buf, offset); err != nil {
		return fmt.Errorf("%w: reading page %d at offset %d: %v", ErrIO, id, offset, err)
	}
	return nil
}

// WritePage writes buf to the page's location. The write is not synced;
// Sync makes it durable.
func (pf *PageFile) WritePage(id PageID, buf []byte) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if id == InvalidPageID || uint64(id) >= pf.pageCount {
		return fmt.Errorf("%w: %d (file has %d pages)", ErrInvalidPageID, id, pf.pageCount)
	}
	if len(buf) != pf.pageSize {
		return fmt.Errorf("%w: got %d, want %d", ErrBufferSize, len(buf), pf.pageSize)
	}
	offset := int64(id) * int64(pf.pageSize)
	if _, err := pf.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("%w: writing page %d at offset %d: %v", ErrIO, id, offset, err)
	}
	return nil
}

// AllocatePage returns a page id for a new page, reusing a freed page when
// the free list is non-empty and extending the file otherwise.
func (pf *PageFile) AllocatePage() (PageID, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if pf.freeListID != InvalidPageID {
		id := pf.freeListID
		// A freed page stores the next free page id in its first 8 bytes.
		next := make([]byte, 8)
		offset := int64(id) * int64(pf.pageSize)
		if _, err := pf.file.ReadAt(next, offset); err != nil {
			return InvalidPageID, fmt.Errorf("%w: reading free list page %d: %v", ErrIO, id, err)
		}
		nextID, _ := bigendian.Uint(next, 8)
		pf.freeListID = PageID(nextID)
		if err := pf.writeHeader(); err != nil {
			pf.freeListID = id
			return InvalidPageID, err
		}
		pf.logger.Debug("reusing freed page", zap.Uint64("page", uint64(id)))
		return id, nil
	}

	id := PageID(pf.pageCount)
	empty := make([]byte, pf.pageSize)
	offset := int64(id) * int64(pf.pageSize)
	if _, err := pf.file.WriteAt(empty, offset); err != nil {
		return InvalidPageID, fmt.Errorf("%w: extending file for page %d: %v", ErrIO, id, err)
	}
	pf.pageCount++
	if err := pf.writeHeader(); err != nil {
		pf.pageCount--
		return InvalidPageID, err
	}
	return id, nil
}

// FreePage puts the page on the free list for reuse by a later allocation.
func (pf *PageFile) FreePage(id PageID) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if id == InvalidPageID || uint64(id) >= pf.pageCount {
		return fmt.Errorf("%w: %d", ErrInvalidPageID, id)
	}
	link := make([]byte, pf.pageSize)
	if err := bigendian.PutUint(link, uint64(pf.freeListID), 8); err != nil {
		return err
	}
	offset := int64(id) * int64(pf.pageSize)
	if _, err := pf.file.WriteAt(link, offset); err != nil {
		return fmt.Errorf("%w: writing free list link to page %d: %v", ErrIO, id, err)
	}
	old := pf.freeListID
	pf.freeListID = id
	if err := pf.writeHeader(); err != nil {
		pf.freeListID = old
		return err
	}
	pf.logger.Debug("freed page", zap.Uint64("page", uint64(id)))
	return nil
}

// Sync flushes all buffered writes to stable storage.
func (pf *PageFile) Sync() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.file == nil {
		return nil
	}
	if err := pf.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrIO, err)
	}
	return nil
}

// Close syncs and closes the file handle.
func (pf *PageFile) Close() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.file == nil {
		return nil
	}
	syncErr := pf.file.Sync()
	closeErr := pf.file.Close()
	pf.file = nil
	if syncErr != nil {
		return fmt.Errorf("%w: sync on close: %v", ErrIO, syncErr)
	}
	return closeErr
}
