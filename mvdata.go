package block_stm

import (
	"github.com/tidwall/btree"
)

// MVData is the multi-version map, for each key it keeps the values written by the
// transactions of the block, ordered by transaction index.
//
// The key index is a copy-on-write tree so reads never take a lock, each key owns a
// concurrency safe tree, writers to different keys never contend.
type MVData struct {
	inner *BTree[dataItem]
}

func NewMVData() *MVData {
	return &MVData{inner: NewBTree(dataItemLess)}
}

// getTreeOrDefault returns the tree for the given key, creates a new tree if the key is not present
func (d *MVData) getTreeOrDefault(key Key) *btree.BTreeG[secondaryDataItem] {
	return d.inner.GetOrDefault(dataItem{Key: key}, func(item *dataItem) {
		item.Tree = btree.NewBTreeG[secondaryDataItem](secondaryDataItemLess)
	}).Tree
}

// getTree returns the tree for the given key, returns nil if the key is not present
func (d *MVData) getTree(key Key) *btree.BTreeG[secondaryDataItem] {
	item, _ := d.inner.Get(dataItem{Key: key})
	return item.Tree
}

// Write inserts or overrides the entry of (key, version.Index), a nil value is a tombstone.
func (d *MVData) Write(key Key, value Value, version TxnVersion) {
	tree := d.getTreeOrDefault(key)
	tree.Set(secondaryDataItem{Index: version.Index, Incarnation: version.Incarnation, Value: value})
}

// WriteEstimate marks the entry of (key, txn) as ESTIMATE.
func (d *MVData) WriteEstimate(key Key, txn TxnIndex) {
	tree := d.getTreeOrDefault(key)
	tree.Set(secondaryDataItem{Index: txn, Estimate: true})
}

// Delete removes the entry of (key, txn).
func (d *MVData) Delete(key Key, txn TxnIndex) {
	tree := d.getTree(key)
	if tree == nil {
		return
	}
	tree.Delete(secondaryDataItem{Index: txn})
}

// Read returns the value written by the closest transaction below txn:
//   - (value, version, nil) if found, value is nil for a deletion
//   - ErrNotFound if no transaction below txn wrote the key, caller should read from storage
//   - ErrReadError if the closest entry is an ESTIMATE
func (d *MVData) Read(key Key, txn TxnIndex) (Value, TxnVersion, error) {
	tree := d.getTree(key)
	if tree == nil {
		return nil, InvalidTxnVersion, ErrNotFound
	}

	item, ok := seekClosestTxn(tree, txn)
	if !ok {
		return nil, InvalidTxnVersion, ErrNotFound
	}
	if item.Estimate {
		return nil, InvalidTxnVersion, ErrReadError{BlockingTxn: item.Index}
	}
	return item.Value, item.Version(), nil
}

// Snapshot returns the latest values written below txn, ordered by key,
// deletions are included with nil value.
func (d *MVData) Snapshot(txn TxnIndex) ([]KVPair, error) {
	var (
		snapshot []KVPair
		err      error
	)
	d.inner.Scan(func(outer dataItem) bool {
		item, ok := seekClosestTxn(outer.Tree, txn)
		if !ok {
			return true
		}
		if item.Estimate {
			err = ErrReadError{BlockingTxn: item.Index}
			return false
		}
		snapshot = append(snapshot, KVPair{Key: outer.Key, Value: item.Value})
		return true
	})
	return snapshot, err
}

// seekClosestTxn returns the closest entry with index smaller than txn.
func seekClosestTxn(tree *btree.BTreeG[secondaryDataItem], txn TxnIndex) (secondaryDataItem, bool) {
	var (
		result secondaryDataItem
		found  bool
	)
	tree.Descend(secondaryDataItem{Index: txn - 1}, func(item secondaryDataItem) bool {
		result, found = item, true
		return false
	})
	return result, found
}

type dataItem struct {
	Key  Key
	Tree *btree.BTreeG[secondaryDataItem]
}

func dataItemLess(a, b dataItem) bool {
	return a.Key < b.Key
}

type secondaryDataItem struct {
	Index       TxnIndex
	Incarnation Incarnation
	Value       Value
	Estimate    bool
}

func secondaryDataItemLess(a, b secondaryDataItem) bool {
	return a.Index < b.Index
}

func (item secondaryDataItem) Version() TxnVersion {
	return TxnVersion{Index: item.Index, Incarnation: item.Incarnation}
}
