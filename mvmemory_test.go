package block_stm

import (
	"testing"

	"github.com/test-go/testify/require"
)

func writeStatus(pairs ...KVPair) ExecutionStatus[*MockOutput] {
	return Success(&MockOutput{Writes: pairs})
}

func TestMVMemoryRecord(t *testing.T) {
	mv := NewMVMemory[*MockOutput](16)

	for i := TxnIndex(0); i < 3; i++ {
		wroteNewLocation := mv.Record(TxnVersion{i, 0}, ReadSet{
			ReadDescriptor{Key("a"), InvalidTxnVersion},
			ReadDescriptor{Key("d"), InvalidTxnVersion},
		}, writeStatus(
			KVPair{Key("a"), Value("1")},
			KVPair{Key("b"), Value("1")},
			KVPair{Key("c"), Value("1")},
		))
		require.True(t, wroteNewLocation)
	}
	valid, err := mv.ValidateReadSet(0)
	require.NoError(t, err)
	require.True(t, valid)
	valid, err = mv.ValidateReadSet(1)
	require.NoError(t, err)
	require.False(t, valid)
	valid, err = mv.ValidateReadSet(2)
	require.NoError(t, err)
	require.False(t, valid)

	// abort 1 and 2
	mv.ConvertWritesToEstimates(1)
	mv.ConvertWritesToEstimates(2)

	wroteNewLocation := mv.Record(TxnVersion{3, 1}, ReadSet{
		// simulate a read of a key that's ESTIMATE
		ReadDescriptor{Key("a"), TxnVersion{2, 1}},
	}, writeStatus())
	require.False(t, wroteNewLocation)
	valid, err = mv.ValidateReadSet(3)
	require.NoError(t, err)
	require.False(t, valid)

	blocking, ok := mv.FindBlockingRead(3)
	require.True(t, ok)
	require.Equal(t, TxnIndex(2), blocking)

	value, version, err := mv.Read(Key("a"), 1)
	require.NoError(t, err)
	require.Equal(t, Value("1"), value)
	require.Equal(t, TxnVersion{0, 0}, version)

	_, _, err = mv.Read(Key("a"), 2)
	require.Equal(t, ErrReadError{BlockingTxn: 1}, err)

	_, _, err = mv.Read(Key("a"), 3)
	require.Equal(t, ErrReadError{BlockingTxn: 2}, err)

	// rerun tx 1
	wroteNewLocation = mv.Record(TxnVersion{1, 1}, ReadSet{
		ReadDescriptor{Key("a"), TxnVersion{0, 0}},
		ReadDescriptor{Key("d"), InvalidTxnVersion},
	}, writeStatus(
		KVPair{Key("a"), Value("2")},
		KVPair{Key("b"), Value("2")},
		KVPair{Key("c"), Value("2")},
	))
	require.False(t, wroteNewLocation)
	valid, err = mv.ValidateReadSet(1)
	require.NoError(t, err)
	require.True(t, valid)

	// rerun tx 2
	// don't write `c` this time
	wroteNewLocation = mv.Record(TxnVersion{2, 1}, ReadSet{
		ReadDescriptor{Key("a"), TxnVersion{1, 1}},
		ReadDescriptor{Key("d"), InvalidTxnVersion},
	}, writeStatus(
		KVPair{Key("a"), Value("3")},
		KVPair{Key("b"), Value("3")},
	))
	require.False(t, wroteNewLocation)
	valid, err = mv.ValidateReadSet(2)
	require.NoError(t, err)
	require.True(t, valid)
	require.Equal(t, []Key{"a", "b"}, mv.LastInputOutput().WrittenKeys(2))

	// run tx 3
	wroteNewLocation = mv.Record(TxnVersion{3, 1}, ReadSet{
		// simulate a read of a key that's deleted later.
		ReadDescriptor{Key("d"), TxnVersion{1, 1}},
	}, writeStatus())
	require.False(t, wroteNewLocation)
	valid, err = mv.ValidateReadSet(3)
	require.NoError(t, err)
	require.False(t, valid)

	value, version, err = mv.Read(Key("a"), 2)
	require.NoError(t, err)
	require.Equal(t, Value("2"), value)
	require.Equal(t, TxnVersion{1, 1}, version)

	value, version, err = mv.Read(Key("a"), 3)
	require.NoError(t, err)
	require.Equal(t, Value("3"), value)
	require.Equal(t, TxnVersion{2, 1}, version)

	// the stale `c` of tx 2 is gone
	value, version, err = mv.Read(Key("c"), 3)
	require.NoError(t, err)
	require.Equal(t, Value("2"), value)
	require.Equal(t, TxnVersion{1, 1}, version)
}

func TestMVMemoryShrinkingWriteSet(t *testing.T) {
	mv := NewMVMemory[*MockOutput](4)

	require.True(t, mv.Record(TxnVersion{1, 0}, nil, writeStatus(KVPair{Key("k"), Value("old")})))
	value, _, err := mv.Read(Key("k"), 3)
	require.NoError(t, err)
	require.Equal(t, Value("old"), value)

	// incarnation 1 don't write `k`
	require.False(t, mv.Record(TxnVersion{1, 1}, nil, writeStatus()))
	for txn := TxnIndex(2); txn < 4; txn++ {
		_, _, err = mv.Read(Key("k"), txn)
		require.Equal(t, ErrNotFound, err)
	}
}

func TestMVMemoryAbortWritesNothing(t *testing.T) {
	mv := NewMVMemory[*MockOutput](4)
	require.True(t, mv.Record(TxnVersion{0, 0}, nil, writeStatus(KVPair{Key("k"), Value("v")})))

	require.False(t, mv.Record(TxnVersion{0, 1}, nil, Abort[*MockOutput](ErrSkipRest)))
	_, _, err := mv.Read(Key("k"), 1)
	require.Equal(t, ErrNotFound, err)
	require.Empty(t, mv.LastInputOutput().WrittenKeys(0))
}

func TestMVMemoryReadSetInvalidation(t *testing.T) {
	mv := NewMVMemory[*MockOutput](4)

	// tx 2 reads `k` written by incarnation 0 of tx 1
	require.True(t, mv.Record(TxnVersion{1, 0}, nil, writeStatus(KVPair{Key("k"), Value("1")})))
	mv.Record(TxnVersion{2, 0}, ReadSet{{Key("k"), TxnVersion{1, 0}}}, writeStatus())
	valid, err := mv.ValidateReadSet(2)
	require.NoError(t, err)
	require.True(t, valid)

	// tx 1 re-executed, same location but new version
	require.False(t, mv.Record(TxnVersion{1, 1}, nil, writeStatus(KVPair{Key("k"), Value("1")})))
	valid, err = mv.ValidateReadSet(2)
	require.NoError(t, err)
	require.False(t, valid)

	// a read from storage is invalidated by a new write below
	mv.Record(TxnVersion{3, 0}, ReadSet{{Key("x"), InvalidTxnVersion}}, writeStatus())
	valid, err = mv.ValidateReadSet(3)
	require.NoError(t, err)
	require.True(t, valid)
	require.True(t, mv.Record(TxnVersion{0, 0}, nil, writeStatus(KVPair{Key("x"), Value("0")})))
	valid, err = mv.ValidateReadSet(3)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestValidateWithoutReadSet(t *testing.T) {
	mv := NewMVMemory[*MockOutput](2)
	_, err := mv.ValidateReadSet(1)
	require.Error(t, err)
	require.True(t, IsInvariantViolation(err))
}
