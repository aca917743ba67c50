package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/namedex/core/storage/pagefile"
)

func setupPool(t *testing.T, poolSize int) (*Manager, *pagefile.PageFile) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.ndx")
	pf, err := pagefile.Open(path, pagefile.MinPageSize, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pf.Close() })
	return NewManager(poolSize, pf, zap.NewNop()), pf
}

func TestNewPagePinnedAndDirty(t *testing.T) {
	pool, _ := setupPool(t, 4)

	page, id, err := pool.NewPage()
	require.NoError(t, err)
	require.Equal(t, pagefile.PageID(1), id)
	require.Equal(t, uint32(1), page.GetPinCount())
	require.True(t, page.IsDirty())
}

func TestFetchReturnsSameFrame(t *testing.T) {
	pool, _ := setupPool(t, 4)

	page, id, err := pool.NewPage()
	require.NoError(t, err)
	page.GetData()[100] = 0x42
	require.NoError(t, pool.UnpinPage(id, true))

	again, err := pool.FetchPage(id)
	require.NoError(t, err)
	require.Same(t, page, again, "resident page must not be duplicated")
	require.Equal(t, byte(0x42), again.GetData()[100])
	require.NoError(t, pool.UnpinPage(id, false))
}

func TestEvictionFlushesDirtyPage(t *testing.T) {
	pool, _ := setupPool(t, 2)

	page, id, err := pool.NewPage()
	require.NoError(t, err)
	page.GetData()[0] = 0xaa
	require.NoError(t, pool.UnpinPage(id, true))

	// Fill the pool past capacity so the dirty page gets evicted.
	for i := 0; i < 3; i++ {
		_, other, err := pool.NewPage()
		require.NoError(t, err)
		require.NoError(t, pool.UnpinPage(other, false))
	}

	// Fetch brings it back from disk with the written byte intact.
	reloaded, err := pool.FetchPage(id)
	require.NoError(t, err)
	require.Equal(t, byte(0xaa), reloaded.GetData()[0])
	require.NoError(t, pool.UnpinPage(id, false))
}

func TestPinnedPagesAreNotEvicted(t *testing.T) {
	pool, _ := setupPool(t, 2)

	_, a, err := pool.NewPage()
	require.NoError(t, err)
	_, b, err := pool.NewPage()
	require.NoError(t, err)

	// Both frames pinned: no victim available.
	_, _, err = pool.NewPage()
	require.ErrorIs(t, err, ErrPoolFull)

	require.NoError(t, pool.UnpinPage(a, false))
	require.NoError(t, pool.UnpinPage(b, false))
	_, _, err = pool.NewPage()
	require.NoError(t, err)
}

func TestCorruptTagStickyWhileResident(t *testing.T) {
	pool, _ := setupPool(t, 4)

	page, id, err := pool.NewPage()
	require.NoError(t, err)
	page.MarkCorrupt("entry 3: component 0 exceeds page")
	page.MarkCorrupt("a later check") // first tag wins
	require.NoError(t, pool.UnpinPage(id, true))

	again, err := pool.FetchPage(id)
	require.NoError(t, err)
	tag, ok := again.CorruptTag()
	require.True(t, ok)
	require.Equal(t, "entry 3: component 0 exceeds page", tag)
	require.NoError(t, pool.UnpinPage(id, false))
}

func TestFreePageRejectsPinned(t *testing.T) {
	pool, _ := setupPool(t, 4)

	_, id, err := pool.NewPage()
	require.NoError(t, err)
	require.ErrorIs(t, pool.FreePage(id), ErrPagePinned)

	require.NoError(t, pool.UnpinPage(id, false))
	require.NoError(t, pool.FreePage(id))
}

func TestFlushAllPages(t *testing.T) {
	pool, pf := setupPool(t, 4)

	page, id, err := pool.NewPage()
	require.NoError(t, err)
	page.GetData()[10] = 0x7
	require.NoError(t, pool.UnpinPage(id, true))
	require.NoError(t, pool.FlushAllPages())

	buf := make([]byte, pf.PageSize())
	require.NoError(t, pf.ReadPage(id, buf))
	require.Equal(t, byte(0x7), buf[10])
}
