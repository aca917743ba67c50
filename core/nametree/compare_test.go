package nametree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareOrdering(t *testing.T) {
	n := newTestLeaf(t)
	mustInsert(t, n, "abc", 1)

	cases := []struct {
		key  string
		want int // sign of the expected result
	}{
		{"abc", 0},
		{"ab", -1},   // shorter key on a shared prefix orders first
		{"abcd", 1},  // longer key orders after its prefix
		{"abd", 1},   // byte difference dominates length
		{"abb", -1},
		{"", -1},
		{"b", 1},
	}
	for _, tc := range cases {
		res, err := n.Compare([]byte(tc.key), 0)
		require.NoError(t, err)
		switch {
		case tc.want == 0:
			require.Zero(t, res, "key %q", tc.key)
		case tc.want < 0:
			require.Negative(t, res, "key %q", tc.key)
		default:
			require.Positive(t, res, "key %q", tc.key)
		}
	}
}

func TestCompareOutOfRangeSentinels(t *testing.T) {
	n := newTestLeaf(t)
	mustInsert(t, n, "abc", 1)

	res, err := n.Compare([]byte("anything"), -1)
	require.NoError(t, err)
	require.Equal(t, CompareAfterAll, res)

	res, err = n.Compare([]byte("anything"), 1)
	require.NoError(t, err)
	require.Equal(t, CompareBeforeAll, res)

	// Out-of-range probes never touch the page, so it stays healthy.
	_, corrupt := n.page.CorruptTag()
	require.False(t, corrupt)
	require.NoError(t, n.validate())
}

func TestCompareSecondComponent(t *testing.T) {
	n := newTestLeaf(t)
	mustInsert(t, n, "abc", 1)

	// Give the entry a non-empty second key component. The external
	// single-component key now orders before the entry.
	pe := n.payloadEnd()
	copy(n.data[pe:], "v1")
	n.setTrailerField(0, trKeyOffset1Off, uint64(pe), 4)
	n.setTrailerField(0, trKeySize1Off, 2, 4)
	n.setPayloadEnd(pe + 2)

	res, err := n.Compare([]byte("abc"), 0)
	require.NoError(t, err)
	require.Negative(t, res)

	// Component 0 ordering is unaffected.
	res, err = n.Compare([]byte("abd"), 0)
	require.NoError(t, err)
	require.Positive(t, res)
}

func TestCompareOnCorruptPage(t *testing.T) {
	n := newTestLeaf(t)
	mustInsert(t, n, "abc", 1)
	n.page.MarkCorrupt("test corruption")

	_, err := n.Compare([]byte("abc"), 0)
	require.ErrorIs(t, err, ErrPageCorrupt)

	// Sentinels are still produced without touching the page.
	res, err := n.Compare([]byte("abc"), -1)
	require.NoError(t, err)
	require.Equal(t, CompareAfterAll, res)
}

func TestCompareSelfIsEqual(t *testing.T) {
	n := newTestLeaf(t)
	for _, k := range []string{"", "a", "content/a", "content/a/seg0"} {
		mustInsert(t, n, k, 1)
	}

	for i := 0; i < n.EntryCount(); i++ {
		k, err := n.KeyComponent(i, 0)
		require.NoError(t, err)
		res, err := n.Compare(k, i)
		require.NoError(t, err)
		require.Zero(t, res, "entry %d", i)
	}
}

func TestCompareAntisymmetric(t *testing.T) {
	keys := []string{"", "a", "ab", "abc", "abd", "abcd", "b"}
	for _, a := range keys {
		na := newTestLeaf(t)
		mustInsert(t, na, a, 1)
		for _, b := range keys {
			nb := newTestLeaf(t)
			mustInsert(t, nb, b, 1)

			ab, err := na.Compare([]byte(b), 0)
			require.NoError(t, err)
			ba, err := nb.Compare([]byte(a), 0)
			require.NoError(t, err)
			switch {
			case ab == 0:
				require.Zero(t, ba, "%q vs %q", a, b)
			case ab < 0:
				require.Positive(t, ba, "%q vs %q", a, b)
			default:
				require.Negative(t, ba, "%q vs %q", a, b)
			}
		}
	}
}

func TestSearchKeyInsertionPoints(t *testing.T) {
	n := newTestLeaf(t)
	for _, k := range []string{"b", "d", "f"} {
		mustInsert(t, n, k, uint64(k[0]))
	}

	cases := []struct {
		key   string
		idx   int
		found bool
	}{
		{"a", 0, false},
		{"b", 0, true},
		{"c", 1, false},
		{"d", 1, true},
		{"e", 2, false},
		{"f", 2, true},
		{"g", 3, false},
	}
	for _, tc := range cases {
		idx, found, err := n.searchKey([]byte(tc.key))
		require.NoError(t, err)
		require.Equal(t, tc.idx, idx, "key %q", tc.key)
		require.Equal(t, tc.found, found, "key %q", tc.key)
	}
}

func TestLcpLen(t *testing.T) {
	require.Equal(t, 0, lcpLen([]byte("abc"), []byte("xyz")))
	require.Equal(t, 2, lcpLen([]byte("abc"), []byte("abd")))
	require.Equal(t, 3, lcpLen([]byte("abc"), []byte("abcdef")))
	require.Equal(t, 0, lcpLen(nil, []byte("a")))
}
