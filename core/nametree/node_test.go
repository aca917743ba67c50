package nametree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sushant-115/namedex/core/storage/bufferpool"
	"github.com/sushant-115/namedex/core/storage/pagefile"
)

func newTestLeaf(t *testing.T) *Node {
	t.Helper()
	page := bufferpool.NewPage(pagefile.PageID(7), pagefile.MinPageSize)
	return initNode(page, pagefile.PageID(7), 0)
}

func mustInsert(t *testing.T, n *Node, key string, value uint64) {
	t.Helper()
	idx, found, err := n.searchKey([]byte(key))
	require.NoError(t, err)
	require.False(t, found, "duplicate key %q in test setup", key)
	require.NoError(t, n.insertEntryAt(idx, []byte(key), value))
}

func TestInitNodeHeader(t *testing.T) {
	n := newTestLeaf(t)

	require.Equal(t, pagefile.PageID(7), n.PageID())
	require.Equal(t, 0, n.Level())
	require.Equal(t, 0, n.EntryCount())
	require.Equal(t, nodeHeaderSize, n.payloadEnd())
	require.NoError(t, n.validate())
}

func TestInsertAndReadEntries(t *testing.T) {
	n := newTestLeaf(t)

	mustInsert(t, n, "content/b", 2)
	mustInsert(t, n, "content/a", 1)
	mustInsert(t, n, "content/c", 3)

	require.Equal(t, 3, n.EntryCount())
	for i, want := range []struct {
		key   string
		value uint64
	}{
		{"content/a", 1},
		{"content/b", 2},
		{"content/c", 3},
	} {
		k, err := n.KeyComponent(i, 0)
		require.NoError(t, err)
		require.Equal(t, want.key, string(k))
		tr, err := n.Trailer(i)
		require.NoError(t, err)
		require.Equal(t, want.value, tr.Value)
	}
}

func TestEmptyKeyEntry(t *testing.T) {
	n := newTestLeaf(t)
	require.NoError(t, n.insertEntryAt(0, nil, 42))

	k, err := n.KeyComponent(0, 0)
	require.NoError(t, err)
	require.Empty(t, k)
	tr, err := n.Trailer(0)
	require.NoError(t, err)
	require.Equal(t, uint64(42), tr.Value)
	require.Equal(t, nodeHeaderSize, n.payloadEnd(), "empty key consumes no payload")
}

func TestDeleteEntryCompactsPayload(t *testing.T) {
	n := newTestLeaf(t)
	mustInsert(t, n, "aa", 1)
	mustInsert(t, n, "bbbb", 2)
	mustInsert(t, n, "cc", 3)
	before := n.payloadEnd()

	require.NoError(t, n.deleteEntryAt(1))

	require.Equal(t, 2, n.EntryCount())
	require.Equal(t, before-4, n.payloadEnd())
	k, err := n.KeyComponent(0, 0)
	require.NoError(t, err)
	require.Equal(t, "aa", string(k))
	k, err = n.KeyComponent(1, 0)
	require.NoError(t, err)
	require.Equal(t, "cc", string(k))
	tr, err := n.Trailer(1)
	require.NoError(t, err)
	require.Equal(t, uint64(3), tr.Value)
}

func TestRemoveUpper(t *testing.T) {
	n := newTestLeaf(t)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		mustInsert(t, n, k, uint64(k[0]))
	}

	require.NoError(t, n.removeUpper(2))

	require.Equal(t, 2, n.EntryCount())
	k, err := n.KeyComponent(1, 0)
	require.NoError(t, err)
	require.Equal(t, "b", string(k))
	require.Equal(t, nodeHeaderSize+2, n.payloadEnd())
}

func TestFreeSpaceAccounting(t *testing.T) {
	n := newTestLeaf(t)

	inserted := 0
	for n.FreeSpace(10) {
		mustInsert(t, n, string(rune('a'+inserted/26))+string(rune('a'+inserted%26))+"01234567", uint64(inserted))
		inserted++
	}
	require.Greater(t, inserted, 0)
	require.LessOrEqual(t, n.EntryCount(), n.Capacity())
	require.NoError(t, n.validate())

	// Every used byte is accounted for.
	require.Equal(t, (n.payloadEnd()-nodeHeaderSize)+n.EntryCount()*trailerSize, n.usedBytes())
}

func TestTrailerIndexOutOfRange(t *testing.T) {
	n := newTestLeaf(t)
	mustInsert(t, n, "only", 1)

	_, err := n.Trailer(-1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = n.Trailer(1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = n.KeyComponent(0, 2)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestBadKeyOffsetMarksPageCorrupt(t *testing.T) {
	n := newTestLeaf(t)
	mustInsert(t, n, "victim", 1)

	// Forge a key region reaching past the end of the page.
	n.setTrailerField(0, trKeyOffset0Off, uint64(len(n.data)-10), 4)
	n.setTrailerField(0, trKeySize0Off, 20, 4)

	_, err := n.KeyComponent(0, 0)
	require.ErrorIs(t, err, ErrPageCorrupt)
	_, ok := n.page.CorruptTag()
	require.True(t, ok)

	// The tag is sticky: every later access re-reports it without
	// re-validating, including ones that would otherwise succeed.
	_, err = n.Trailer(0)
	require.ErrorIs(t, err, ErrPageCorrupt)
	require.ErrorIs(t, n.validate(), ErrPageCorrupt)
}

func TestValidateRejectsBadHeader(t *testing.T) {
	n := newTestLeaf(t)
	n.setEntryCount(n.Capacity() + 1)
	require.ErrorIs(t, n.validate(), ErrPageCorrupt)

	n = newTestLeaf(t)
	n.setPayloadEnd(len(n.data) + 1)
	require.ErrorIs(t, n.validate(), ErrPageCorrupt)

	page := bufferpool.NewPage(pagefile.PageID(9), pagefile.MinPageSize)
	interior := initNode(page, pagefile.PageID(9), 1)
	require.ErrorIs(t, interior.validate(), ErrPageCorrupt, "interior page with no entries")
}

func TestMaxKeySizeLeavesRoomForSplit(t *testing.T) {
	// A page holding one maximum-size entry must accept a second, or a
	// full page could never be split into two non-empty halves.
	n := newTestLeaf(t)
	max := MaxKeySize(pagefile.MinPageSize)

	big := make([]byte, max)
	for i := range big {
		big[i] = 'x'
	}
	require.NoError(t, n.insertEntryAt(0, big, 1))
	require.True(t, n.FreeSpace(max))
}
