package nametree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLongestPrefixMatchExact(t *testing.T) {
	tree := setupTree(t)
	require.NoError(t, tree.Insert([]byte("a/b"), 1))
	require.NoError(t, tree.Insert([]byte("a/b/c"), 2))

	matched, value, err := tree.LongestPrefixMatch([]byte("a/b/c"))
	require.NoError(t, err)
	require.Equal(t, 5, matched, "exact match wins over shorter prefixes")
	require.Equal(t, uint64(2), value)
}

func TestLongestPrefixMatchPicksLongest(t *testing.T) {
	tree := setupTree(t)
	require.NoError(t, tree.Insert([]byte("a"), 1))
	require.NoError(t, tree.Insert([]byte("a/b"), 2))
	require.NoError(t, tree.Insert([]byte("a/b/c"), 3))
	require.NoError(t, tree.Insert([]byte("x"), 9))

	matched, value, err := tree.LongestPrefixMatch([]byte("a/b/c/d/e"))
	require.NoError(t, err)
	require.Equal(t, 5, matched)
	require.Equal(t, uint64(3), value)

	matched, value, err = tree.LongestPrefixMatch([]byte("a/zzz"))
	require.NoError(t, err)
	require.Equal(t, 1, matched)
	require.Equal(t, uint64(1), value)
}

func TestLongestPrefixMatchNoMatch(t *testing.T) {
	tree := setupTree(t)
	require.NoError(t, tree.Insert([]byte("content/a"), 1))

	_, _, err := tree.LongestPrefixMatch([]byte("q"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	_, _, err = tree.LongestPrefixMatch(nil)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestLongestPrefixMatchIgnoresNonPrefixNeighbors(t *testing.T) {
	tree := setupTree(t)
	require.NoError(t, tree.Insert([]byte("app"), 1))
	// Neighbors sorting between "app" and the probe that are not
	// prefixes of it.
	require.NoError(t, tree.Insert([]byte("apple-pie"), 2))
	require.NoError(t, tree.Insert([]byte("apple/aa"), 3))

	matched, value, err := tree.LongestPrefixMatch([]byte("apple/pie"))
	require.NoError(t, err)
	require.Equal(t, 3, matched)
	require.Equal(t, uint64(1), value)
}

func TestLongestPrefixMatchAcrossLeaves(t *testing.T) {
	tree := setupTree(t)
	require.NoError(t, tree.Insert([]byte("app"), 7))

	// Push enough keys between "app" and the probe that the prefix lives
	// several leaves to the left of the probe's insertion point.
	for i := 0; i < 300; i++ {
		require.NoError(t, tree.Insert([]byte(fmt.Sprintf("appl%04d", i)), uint64(i+100)))
	}
	checkTree(t, tree)

	matched, value, err := tree.LongestPrefixMatch([]byte("apple/pie/seg0"))
	require.NoError(t, err)
	require.Equal(t, 3, matched)
	require.Equal(t, uint64(7), value)
}

func TestLongestPrefixMatchDeepHierarchy(t *testing.T) {
	tree := setupTree(t)
	values := map[string]uint64{}
	for i, name := range []string{
		"net",
		"net/example",
		"net/example/video",
		"net/example/video/hd",
	} {
		values[name] = uint64(i + 1)
		require.NoError(t, tree.Insert([]byte(name), uint64(i+1)))
	}

	probe := "net/example/video/hd/frame/0001"
	matched, value, err := tree.LongestPrefixMatch([]byte(probe))
	require.NoError(t, err)
	require.Equal(t, len("net/example/video/hd"), matched)
	require.Equal(t, values["net/example/video/hd"], value)

	// Removing the deepest prefix shifts the match one level up.
	require.NoError(t, tree.Delete([]byte("net/example/video/hd")))
	matched, value, err = tree.LongestPrefixMatch([]byte(probe))
	require.NoError(t, err)
	require.Equal(t, len("net/example/video"), matched)
	require.Equal(t, values["net/example/video"], value)
}
