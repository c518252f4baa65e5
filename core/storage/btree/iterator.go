package btree

import (
	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/record"
)

// Iterator walks a tree's leaves in key order, starting either at the
// smallest key or at the first key >= a given start key.
type Iterator struct {
	tree     *BTree
	leaf     *LeafNode
	idx      int
	done     bool
	curKey   []byte
	curValue record.RowID
}

// Begin returns an iterator positioned before the smallest key in the
// tree.
func (t *BTree) Begin() (*Iterator, error) {
	if t.IsEmpty() {
		return &Iterator{tree: t, done: true}, nil
	}
	leaf, err := t.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	return &Iterator{tree: t, leaf: leaf, idx: -1}, nil
}

// Seek returns an iterator positioned before the first key >= key.
func (t *BTree) Seek(key []byte) (*Iterator, error) {
	if t.IsEmpty() {
		return &Iterator{tree: t, done: true}, nil
	}
	leaf, _, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}
	idx, _ := leaf.find(t.cmp, key)
	return &Iterator{tree: t, leaf: leaf, idx: idx - 1}, nil
}

func (t *BTree) leftmostLeaf() (*LeafNode, error) {
	rootID, _ := t.rootID()
	currentID := rootID
	for {
		isLeaf, err := t.isLeafPage(currentID)
		if err != nil {
			return nil, err
		}
		if isLeaf {
			return t.fetchLeaf(currentID)
		}
		internal, err := t.fetchInternal(currentID)
		if err != nil {
			return nil, err
		}
		currentID = internal.Children[0]
	}
}

// Next advances the iterator and reports whether a (key, value) pair
// is now available.
func (it *Iterator) Next() bool {
	if it.done || it.leaf == nil {
		return false
	}
	it.idx++
	for it.idx >= it.leaf.Size() {
		if it.leaf.NextLeaf == page.InvalidID {
			it.done = true
			return false
		}
		next, err := it.tree.fetchLeaf(it.leaf.NextLeaf)
		if err != nil {
			it.done = true
			return false
		}
		it.leaf = next
		it.idx = 0
		if it.leaf.Size() > 0 {
			break
		}
	}
	it.curKey = it.leaf.Keys[it.idx]
	it.curValue = it.leaf.Values[it.idx]
	return true
}

func (it *Iterator) Key() []byte          { return it.curKey }
func (it *Iterator) Value() record.RowID  { return it.curValue }
