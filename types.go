package block_stm

type (
	TxnIndex    int
	Incarnation uint
)

type TxnVersion struct {
	Index       TxnIndex
	Incarnation Incarnation
}

var InvalidTxnVersion = TxnVersion{-1, 0}

func (v TxnVersion) Valid() bool {
	return v.Index >= 0
}

type (
	Key   string
	Value []byte
)

// KVPair is a single write, a nil Value marks a deletion.
type KVPair struct {
	Key   Key
	Value Value
}

type ReadDescriptor struct {
	Key Key
	// invalid version means the key is read from storage
	Version TxnVersion
}

type ReadSet []ReadDescriptor
