package nametree

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sushant-115/namedex/core/storage/bufferpool"
	"github.com/sushant-115/namedex/core/storage/pagefile"
	"github.com/sushant-115/namedex/internal/config"
	internaltelemetry "github.com/sushant-115/namedex/internal/telemetry"
	"github.com/sushant-115/namedex/pkg/logger"
	"github.com/sushant-115/namedex/pkg/telemetry"
)

// BTree is the name index: a B-tree over hierarchical content names whose
// leaves carry opaque payload locators. One writer or any number of
// readers may operate at a time.
type BTree struct {
	pageFile *pagefile.PageFile
	pool     *bufferpool.Manager
	logger   *zap.Logger
	metrics  *internaltelemetry.IndexMetrics

	telShutdown telemetry.ShutdownFunc

	mu         sync.RWMutex
	rootPageID pagefile.PageID
	maxKeySize int
}

// New builds a tree over an already-open page file and pool. An empty page
// file gets a fresh leaf root. metrics may be nil.
func New(pf *pagefile.PageFile, pool *bufferpool.Manager, log *zap.Logger, metrics *internaltelemetry.IndexMetrics) (*BTree, error) {
	t := &BTree{
		pageFile:   pf,
		pool:       pool,
		logger:     log,
		metrics:    metrics,
		maxKeySize: MaxKeySize(pf.PageSize()),
	}
	root := pf.RootPageID()
	if root == pagefile.InvalidPageID {
		page, id, err := pool.NewPage()
		if err != nil {
			return nil, fmt.Errorf("allocating root page: %w", err)
		}
		initNode(page, id, 0)
		if err := pool.UnpinPage(id, true); err != nil {
			return nil, err
		}
		if err := pf.SetRootPageID(id); err != nil {
			return nil, fmt.Errorf("recording root page: %w", err)
		}
		root = id
		log.Info("initialized empty index", zap.Uint64("root_page", uint64(id)))
	}
	t.rootPageID = root
	return t, nil
}

// Open builds the full stack from configuration: logger, telemetry, page
// file, buffer pool and the tree on top.
func Open(cfg config.Config) (*BTree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("index_id", uuid.NewString()))

	tel, telShutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	metrics, err := internaltelemetry.NewIndexMetrics(tel.Meter)
	if err != nil {
		_ = telShutdown(context.Background())
		return nil, err
	}

	pf, err := pagefile.Open(cfg.Storage.Path, cfg.Storage.PageSize, log)
	if err != nil {
		_ = telShutdown(context.Background())
		return nil, err
	}
	pool := bufferpool.NewManager(cfg.Storage.PoolSize, pf, log)

	t, err := New(pf, pool, log, metrics)
	if err != nil {
		_ = pf.Close()
		_ = telShutdown(context.Background())
		return nil, err
	}
	t.telShutdown = telShutdown
	return t, nil
}

// Close flushes every dirty page, syncs and closes the page file, and
// shuts down telemetry. The first error is returned after attempting all
// steps.
func (t *BTree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	if err := t.pool.FlushAllPages(); err != nil {
		firstErr = err
	}
	if err := t.pageFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if t.telShutdown != nil {
		if err := t.telShutdown(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	_ = t.logger.Sync()
	return firstErr
}

// wrapCorrupt tags a corrupt-page error with the operation-level outcome:
// the whole structure is suspect and the operation was aborted.
func (t *BTree) wrapCorrupt(err error) error {
	if errors.Is(err, ErrPageCorrupt) && !errors.Is(err, ErrTreeCorrupt) {
		return fmt.Errorf("%w: %w", ErrTreeCorrupt, err)
	}
	return err
}

// fetchNode pins the page and validates it before any entry access. A
// page failing validation is unpinned and reported corrupt.
func (t *BTree) fetchNode(id pagefile.PageID) (*Node, error) {
	page, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, err
	}
	n := newNode(page)
	if err := n.validate(); err != nil {
		t.metrics.RecordCorruptPage()
		_ = t.pool.UnpinPage(id, false)
		return nil, err
	}
	return n, nil
}

func (t *BTree) unpin(n *Node) {
	if err := t.pool.UnpinPage(n.PageID(), false); err != nil {
		t.logger.Error("unpin failed", zap.Uint64("page", uint64(n.PageID())), zap.Error(err))
	}
}

// childFor picks the child to descend into for key: the exactly matching
// separator if there is one, otherwise the last separator ordered before
// the key, clamped to the first entry.
func (t *BTree) childFor(n *Node, key []byte) (pagefile.PageID, int, error) {
	idx, found, err := n.searchKey(key)
	if err != nil {
		return pagefile.InvalidPageID, 0, err
	}
	childIdx := idx
	if !found {
		childIdx = idx - 1
		if childIdx < 0 {
			childIdx = 0
		}
	}
	tr, err := n.Trailer(childIdx)
	if err != nil {
		return pagefile.InvalidPageID, 0, err
	}
	return pagefile.PageID(tr.Value), childIdx, nil
}

// descendToLeaf walks from the root to the leaf responsible for key,
// holding at most one pin at a time. The returned leaf is pinned.
func (t *BTree) descendToLeaf(key []byte) (*Node, error) {
	n, err := t.fetchNode(t.rootPageID)
	if err != nil {
		return nil, err
	}
	for n.Level() > 0 {
		childID, _, err := t.childFor(n, key)
		t.unpin(n)
		if err != nil {
			return nil, err
		}
		n, err = t.fetchNode(childID)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Search returns the payload locator stored under key, or ErrKeyNotFound.
func (t *BTree) Search(key []byte) (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	start := time.Now()

	leaf, err := t.descendToLeaf(key)
	if err != nil {
		return 0, t.wrapCorrupt(err)
	}
	idx, found, err := leaf.searchKey(key)
	if err != nil {
		t.unpin(leaf)
		return 0, t.wrapCorrupt(err)
	}
	if !found {
		t.unpin(leaf)
		return 0, ErrKeyNotFound
	}
	tr, err := leaf.Trailer(idx)
	t.unpin(leaf)
	if err != nil {
		return 0, t.wrapCorrupt(err)
	}
	t.metrics.RecordLookup(time.Since(start).Microseconds())
	return tr.Value, nil
}
