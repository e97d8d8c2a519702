package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NoahSaso/cw-receipt/storage"
)

func TestTxnReadYourWrites(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	txn := mgr.Begin()

	require.NoError(t, txn.KVPut([]byte("counter"), uint64(7)))

	var got uint64
	ok, err := txn.KVGet([]byte("counter"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), got)

	// Committed state must not see the buffered write yet.
	ok, err = mgr.KVGet([]byte("counter"), &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, txn.Commit())

	ok, err = mgr.KVGet([]byte("counter"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), got)
}

func TestTxnDiscard(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	txn := mgr.Begin()

	require.NoError(t, txn.KVPut([]byte("value"), "abandoned"))
	txn.Discard()

	ok, err := mgr.KVHas([]byte("value"))
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, txn.KVPut([]byte("value"), "late"))
}

func TestTxnCommitIsAtomicBatch(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	txn := mgr.Begin()

	require.NoError(t, txn.KVPut([]byte("a"), uint64(1)))
	require.NoError(t, txn.KVPut([]byte("b"), uint64(2)))
	require.NoError(t, txn.KVPut([]byte("a"), uint64(3)))
	require.NoError(t, txn.Commit())

	var got uint64
	ok, err := mgr.KVGet([]byte("a"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), got, "last write for a key must win")
}

func TestIterateWithPrefix(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.NoError(t, mgr.KVPut([]byte("list/b"), "2"))
	require.NoError(t, mgr.KVPut([]byte("list/a"), "1"))
	require.NoError(t, mgr.KVPut([]byte("list/c"), "3"))
	require.NoError(t, mgr.KVPut([]byte("other"), "x"))

	var suffixes []string
	err := mgr.IterateWithPrefix([]byte("list/"), nil, func(suffix, _ []byte) (bool, error) {
		suffixes = append(suffixes, string(suffix))
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, suffixes)

	suffixes = nil
	err = mgr.IterateWithPrefix([]byte("list/"), []byte("a"), func(suffix, _ []byte) (bool, error) {
		suffixes = append(suffixes, string(suffix))
		return len(suffixes) < 1, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, suffixes)
}
