package block_stm

import (
	"github.com/tidwall/btree"
)

type memdbItem struct {
	key   Key
	value Value
}

func memdbItemLess(a, b memdbItem) bool {
	return a.key < b.key
}

// MemDB is an in-memory Storage and Committer.
type MemDB struct {
	btree.BTreeG[memdbItem]
}

var (
	_ Storage   = (*MemDB)(nil)
	_ Committer = (*MemDB)(nil)
)

func NewMemDB() *MemDB {
	return &MemDB{*btree.NewBTreeG[memdbItem](memdbItemLess)}
}

// NewMemDBNonConcurrent returns a new BTree which is not safe for concurrent
// write operations by multiple goroutines.
func NewMemDBNonConcurrent() *MemDB {
	return &MemDB{*btree.NewBTreeGOptions[memdbItem](memdbItemLess, btree.Options{
		NoLocks: true,
	})}
}

func (db *MemDB) Scan(cb func(key Key, value Value) bool) {
	db.BTreeG.Scan(func(item memdbItem) bool {
		return cb(item.key, item.value)
	})
}

func (db *MemDB) Get(key Key) (Value, error) {
	item, ok := db.BTreeG.Get(memdbItem{key: key})
	if !ok {
		return nil, nil
	}
	return item.value, nil
}

func (db *MemDB) Set(key Key, value Value) {
	if value == nil {
		panic("nil value not allowed")
	}
	db.BTreeG.Set(memdbItem{key: key, value: value})
}

func (db *MemDB) Delete(key Key) {
	db.BTreeG.Delete(memdbItem{key: key})
}

func (db *MemDB) Commit(changes []KVPair) error {
	for _, pair := range changes {
		if pair.Value == nil {
			db.Delete(pair.Key)
		} else {
			db.Set(pair.Key, pair.Value)
		}
	}
	return nil
}
