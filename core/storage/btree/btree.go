// Package btree's BTree type ties the leaf/internal page codecs and the
// Index Roots directory together into descent, insert, and delete
// operations, each paging nodes in and out through a buffer.PoolManager.
package btree

import (
	"fmt"

	"github.com/emberdb/storage/core/storage/buffer"
	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/record"
	"github.com/emberdb/storage/core/storage/storageerr"
	"go.uber.org/zap"
)

// BTree is one disk-resident B+ tree index, identified by IndexID and
// rooted at whatever page the Index Roots directory currently records
// for it.
type BTree struct {
	bpm        *buffer.PoolManager
	roots      *IndexRoots
	IndexID    uint32
	cmp        Comparator
	keySize    int
	leafMax    int
	internalMax int
	logger     *zap.Logger
}

// New returns a handle onto the tree for indexID, using keySize-byte
// keys ordered by cmp. The tree may already exist on disk (its root is
// looked up lazily on first use) or be created empty by the first
// Insert.
func New(bpm *buffer.PoolManager, roots *IndexRoots, indexID uint32, keySize int, cmp Comparator, logger *zap.Logger) *BTree {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cmp == nil {
		cmp = BytesComparator
	}
	return &BTree{
		bpm:         bpm,
		roots:       roots,
		IndexID:     indexID,
		cmp:         cmp,
		keySize:     keySize,
		leafMax:     maxLeafEntries(keySize),
		internalMax: maxInternalChildren(keySize),
		logger:      logger,
	}
}

func (t *BTree) rootID() (page.ID, bool) {
	id, err := t.roots.GetRoot(t.IndexID)
	if err != nil {
		return page.InvalidID, false
	}
	return id, true
}

// IsEmpty reports whether the tree currently has no root at all.
func (t *BTree) IsEmpty() bool {
	_, ok := t.rootID()
	return !ok
}

func (t *BTree) fetchLeaf(id page.ID) (*LeafNode, error) {
	frame, err := t.bpm.FetchPage(id)
	if err != nil {
		return nil, err
	}
	frame.RLock()
	n, err := DeserializeLeaf(frame.Data())
	frame.RUnlock()
	if unpinErr := t.bpm.UnpinPage(id, false); unpinErr != nil && err == nil {
		err = unpinErr
	}
	return n, err
}

func (t *BTree) fetchInternal(id page.ID) (*InternalNode, error) {
	frame, err := t.bpm.FetchPage(id)
	if err != nil {
		return nil, err
	}
	frame.RLock()
	n, err := DeserializeInternal(frame.Data())
	frame.RUnlock()
	if unpinErr := t.bpm.UnpinPage(id, false); unpinErr != nil && err == nil {
		err = unpinErr
	}
	return n, err
}

func (t *BTree) writeLeaf(n *LeafNode) error {
	frame, err := t.bpm.FetchPage(n.Self)
	if err != nil {
		return err
	}
	frame.Lock()
	n.SerializeTo(frame.Data())
	frame.Unlock()
	return t.bpm.UnpinPage(n.Self, true)
}

func (t *BTree) writeInternal(n *InternalNode) error {
	frame, err := t.bpm.FetchPage(n.Self)
	if err != nil {
		return err
	}
	frame.Lock()
	n.SerializeTo(frame.Data())
	frame.Unlock()
	return t.bpm.UnpinPage(n.Self, true)
}

func (t *BTree) isLeafPage(id page.ID) (bool, error) {
	frame, err := t.bpm.FetchPage(id)
	if err != nil {
		return false, err
	}
	frame.RLock()
	isLeaf := nodeType(frame.Data()[0]) == nodeLeaf
	frame.RUnlock()
	return isLeaf, t.bpm.UnpinPage(id, false)
}

// findLeaf descends from the root to the leaf that would hold key,
// returning the chain of internal page ids visited along the way (root
// first) so callers that need to walk back up for splits/merges don't
// have to re-descend.
func (t *BTree) findLeaf(key []byte) (*LeafNode, []page.ID, error) {
	rootID, ok := t.rootID()
	if !ok {
		return nil, nil, fmt.Errorf("%w: tree %d is empty", storageerr.ErrNotFound, t.IndexID)
	}

	var path []page.ID
	currentID := rootID
	for {
		isLeaf, err := t.isLeafPage(currentID)
		if err != nil {
			return nil, nil, err
		}
		if isLeaf {
			leaf, err := t.fetchLeaf(currentID)
			return leaf, path, err
		}
		internal, err := t.fetchInternal(currentID)
		if err != nil {
			return nil, nil, err
		}
		path = append(path, currentID)
		idx := internal.Lookup(t.cmp, key)
		currentID = internal.Children[idx]
	}
}

// GetValue returns the value associated with key.
func (t *BTree) GetValue(key []byte) (record.RowID, bool, error) {
	if t.IsEmpty() {
		return record.RowID{}, false, nil
	}
	leaf, _, err := t.findLeaf(key)
	if err != nil {
		return record.RowID{}, false, err
	}
	v, ok := leaf.Get(t.cmp, key)
	return v, ok, nil
}

// Insert adds key/value to the tree. It reports false without error if
// key already exists.
func (t *BTree) Insert(key []byte, value record.RowID) (bool, error) {
	if len(key) != t.keySize {
		return false, fmt.Errorf("%w: key is %d bytes, tree expects %d", storageerr.ErrInvalidArgument, len(key), t.keySize)
	}
	if t.IsEmpty() {
		return t.startNewTree(key, value)
	}

	leaf, path, err := t.findLeaf(key)
	if err != nil {
		return false, err
	}
	if !leaf.Insert(t.cmp, key, value) {
		return false, nil
	}
	if !leaf.IsFull() {
		return true, t.writeLeaf(leaf)
	}
	return true, t.splitLeafAndPropagate(leaf, path)
}

func (t *BTree) startNewTree(key []byte, value record.RowID) (bool, error) {
	frame, err := t.bpm.NewPage()
	if err != nil {
		return false, err
	}
	leaf := NewLeafNode(frame.ID(), page.InvalidID, t.keySize, t.leafMax)
	leaf.Insert(t.cmp, key, value)
	leaf.SerializeTo(frame.Data())
	rootID := frame.ID()
	if err := t.bpm.UnpinPage(rootID, true); err != nil {
		return false, err
	}
	return true, t.roots.SetRoot(t.IndexID, rootID)
}

func (t *BTree) splitLeafAndPropagate(leaf *LeafNode, path []page.ID) error {
	frame, err := t.bpm.NewPage()
	if err != nil {
		return err
	}
	sibling, sepKey := leaf.SplitOff(frame.ID())
	sibling.Parent = leaf.Parent
	if err := t.writeLeaf(leaf); err != nil {
		return err
	}
	sibling.SerializeTo(frame.Data())
	if err := t.bpm.UnpinPage(sibling.Self, true); err != nil {
		return err
	}
	return t.insertIntoParent(leaf.Self, sepKey, sibling.Self, path)
}

// insertIntoParent links rightChild into the parent of leftChild (the
// last entry on path), creating a new root if leftChild had none, and
// recursively splitting that parent if the insertion overflows it.
func (t *BTree) insertIntoParent(leftChild page.ID, key []byte, rightChild page.ID, path []page.ID) error {
	if len(path) == 0 {
		frame, err := t.bpm.NewPage()
		if err != nil {
			return err
		}
		root := NewInternalNode(frame.ID(), page.InvalidID, t.keySize, t.internalMax)
		root.PopulateRoot(leftChild, rightChild, key)
		root.SerializeTo(frame.Data())
		rootID := frame.ID()
		if err := t.bpm.UnpinPage(rootID, true); err != nil {
			return err
		}
		if err := t.setParent(leftChild, rootID); err != nil {
			return err
		}
		if err := t.setParent(rightChild, rootID); err != nil {
			return err
		}
		return t.roots.SetRoot(t.IndexID, rootID)
	}

	parentID := path[len(path)-1]
	parent, err := t.fetchInternal(parentID)
	if err != nil {
		return err
	}
	parent.InsertAfter(leftChild, key, rightChild)
	if err := t.setParent(rightChild, parentID); err != nil {
		return err
	}
	if !parent.IsFull() {
		return t.writeInternal(parent)
	}

	frame, err := t.bpm.NewPage()
	if err != nil {
		return err
	}
	sibling, sepKey := parent.SplitOff(frame.ID())
	if err := t.writeInternal(parent); err != nil {
		return err
	}
	sibling.SerializeTo(frame.Data())
	if err := t.bpm.UnpinPage(sibling.Self, true); err != nil {
		return err
	}
	for _, child := range sibling.Children {
		if err := t.setParent(child, sibling.Self); err != nil {
			return err
		}
	}
	return t.insertIntoParent(parent.Self, sepKey, sibling.Self, path[:len(path)-1])
}

func (t *BTree) setParent(childID, parentID page.ID) error {
	isLeaf, err := t.isLeafPage(childID)
	if err != nil {
		return err
	}
	if isLeaf {
		leaf, err := t.fetchLeaf(childID)
		if err != nil {
			return err
		}
		leaf.Parent = parentID
		return t.writeLeaf(leaf)
	}
	internal, err := t.fetchInternal(childID)
	if err != nil {
		return err
	}
	internal.Parent = parentID
	return t.writeInternal(internal)
}

// Destroy frees every page belonging to the tree and removes its entry
// from the Index Roots directory.
func (t *BTree) Destroy() error {
	rootID, ok := t.rootID()
	if !ok {
		return nil
	}
	if err := t.destroySubtree(rootID); err != nil {
		return err
	}
	return t.roots.DeleteRoot(t.IndexID)
}

func (t *BTree) destroySubtree(id page.ID) error {
	isLeaf, err := t.isLeafPage(id)
	if err != nil {
		return err
	}
	if !isLeaf {
		internal, err := t.fetchInternal(id)
		if err != nil {
			return err
		}
		for _, child := range internal.Children {
			if err := t.destroySubtree(child); err != nil {
				return err
			}
		}
	}
	return t.bpm.DeletePage(id)
}
