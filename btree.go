package block_stm

import (
	"sync/atomic"

	"github.com/tidwall/btree"
)

// BTree wraps an atomic pointer to an unsafe btree.BTreeG, readers load the current
// root without locking, writers copy-on-write and publish with compare-and-swap.
type BTree[T any] struct {
	atomic.Pointer[btree.BTreeG[T]]
}

// NewBTree returns a new BTree.
func NewBTree[T any](less func(a, b T) bool) *BTree[T] {
	var t BTree[T]
	t.Store(btree.NewBTreeGOptions[T](less, btree.Options{
		NoLocks: true,
	}))
	return &t
}

func (bt *BTree[T]) Get(item T) (result T, ok bool) {
	return bt.Load().Get(item)
}

// GetOrDefault returns the existing item, or inserts the item completed by fillDefaults.
// fillDefaults can be called more than once if the insertion races with other writers.
func (bt *BTree[T]) GetOrDefault(item T, fillDefaults func(*T)) T {
	for {
		t := bt.Load()
		result, ok := t.Get(item)
		if ok {
			return result
		}
		fillDefaults(&item)
		c := t.Copy()
		c.Set(item)
		if bt.CompareAndSwap(t, c) {
			return item
		}
	}
}

func (bt *BTree[T]) Scan(iter func(item T) bool) {
	bt.Load().Scan(iter)
}

func (bt *BTree[T]) Len() int {
	return bt.Load().Len()
}
