package btree

import (
	"encoding/binary"

	"github.com/emberdb/storage/core/storage/page"
)

// InternalNode holds the fully decoded contents of an internal page:
// len(Children) == len(Keys)+1, and Children[i] is the subtree holding
// every key k with Keys[i-1] <= k < Keys[i] (with the first and last
// child's ranges open-ended).
type InternalNode struct {
	Self     page.ID
	Parent   page.ID
	KeySize  int
	MaxSize  int // max number of children
	Keys     [][]byte
	Children []page.ID
}

// NewInternalNode returns an empty internal node, with no children and no
// keys; callers fill in Children and Keys themselves.
func NewInternalNode(self, parent page.ID, keySize, maxSize int) *InternalNode {
	return &InternalNode{Self: self, Parent: parent, KeySize: keySize, MaxSize: maxSize}
}

func (n *InternalNode) Size() int { return len(n.Children) }

func (n *InternalNode) IsFull() bool { return len(n.Children) >= n.MaxSize }

// SerializeTo writes the internal node's contents into buf, a
// page.Size buffer.
func (n *InternalNode) SerializeTo(buf []byte) {
	h := header{
		typ:     nodeInternal,
		size:    uint16(len(n.Keys)),
		maxSize: uint16(n.MaxSize),
		parent:  n.Parent,
		keySize: uint16(n.KeySize),
		self:    n.Self,
	}
	writeHeader(buf, h)

	off := internalHeaderSize
	for _, k := range n.Keys {
		copy(buf[off:off+n.KeySize], k)
		off += n.KeySize
	}
	for _, c := range n.Children {
		binary.LittleEndian.PutUint32(buf[off:], uint32(c))
		off += childSize
	}
	writeChecksum(buf)
}

// DeserializeInternal reads an internal node out of buf.
func DeserializeInternal(buf []byte) (*InternalNode, error) {
	if err := verifyChecksum(buf); err != nil {
		return nil, err
	}
	h := readHeader(buf)
	n := &InternalNode{
		Self:    h.self,
		Parent:  h.parent,
		KeySize: int(h.keySize),
		MaxSize: int(h.maxSize),
		Keys:    make([][]byte, h.size),
	}
	off := internalHeaderSize
	for i := range n.Keys {
		key := make([]byte, n.KeySize)
		copy(key, buf[off:off+n.KeySize])
		n.Keys[i] = key
		off += n.KeySize
	}
	n.Children = make([]page.ID, h.size+1)
	for i := range n.Children {
		n.Children[i] = page.ID(binary.LittleEndian.Uint32(buf[off:]))
		off += childSize
	}
	return n, nil
}

// Lookup returns the index of the child subtree that would hold key.
func (n *InternalNode) Lookup(cmp Comparator, key []byte) int {
	lo, hi := 0, len(n.Keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.Keys[mid], key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// ChildIndex returns the index of childID among n.Children, or -1.
func (n *InternalNode) ChildIndex(childID page.ID) int {
	for i, c := range n.Children {
		if c == childID {
			return i
		}
	}
	return -1
}

// PopulateRoot sets n up as a fresh two-child root: leftChild and
// rightChild separated by key.
func (n *InternalNode) PopulateRoot(leftChild, rightChild page.ID, key []byte) {
	n.Children = []page.ID{leftChild, rightChild}
	n.Keys = [][]byte{key}
}

// InsertAfter inserts (key, rightChild) immediately after leftChild,
// used when a child splits and the new sibling must be linked in next
// to it with the separator key the split produced.
func (n *InternalNode) InsertAfter(leftChild page.ID, key []byte, rightChild page.ID) {
	idx := n.ChildIndex(leftChild)
	n.Keys = append(n.Keys, nil)
	copy(n.Keys[idx+1:], n.Keys[idx:])
	n.Keys[idx] = key

	n.Children = append(n.Children, page.InvalidID)
	copy(n.Children[idx+2:], n.Children[idx+1:])
	n.Children[idx+1] = rightChild
}

// RemoveChild removes childID and its preceding separator key (or the
// following one, if childID is the first child).
func (n *InternalNode) RemoveChild(childID page.ID) {
	idx := n.ChildIndex(childID)
	if idx < 0 {
		return
	}
	keyIdx := idx - 1
	if keyIdx < 0 {
		keyIdx = 0
	}
	if len(n.Keys) > 0 {
		n.Keys = append(n.Keys[:keyIdx], n.Keys[keyIdx+1:]...)
	}
	n.Children = append(n.Children[:idx], n.Children[idx+1:]...)
}

// SplitOff moves the upper half of n's children (and the keys between
// them) into a new sibling node, pulling the separator key that
// belongs in the parent out of the split rather than leaving it on
// either side — matching internal-node split semantics, where that
// middle key doesn't get duplicated into either sibling's own array.
func (n *InternalNode) SplitOff(siblingPageID page.ID) (*InternalNode, []byte) {
	mid := len(n.Children) / 2
	parentKey := n.Keys[mid-1]

	sibling := NewInternalNode(siblingPageID, n.Parent, n.KeySize, n.MaxSize)
	sibling.Children = append(sibling.Children, n.Children[mid:]...)
	sibling.Keys = append(sibling.Keys, n.Keys[mid:]...)

	n.Children = n.Children[:mid]
	n.Keys = n.Keys[:mid-1]
	return sibling, parentKey
}

// MergeFrom appends right's children and keys onto n (n must be the
// left sibling), reinserting parentKey as the separator between n's
// old last child and right's old first child.
func (n *InternalNode) MergeFrom(right *InternalNode, parentKey []byte) {
	n.Keys = append(n.Keys, parentKey)
	n.Keys = append(n.Keys, right.Keys...)
	n.Children = append(n.Children, right.Children...)
}

// MoveFirstTo moves n's first child (and the key separating it from
// what remains) onto the end of left, reusing parentKey as the new
// separator between left's old children and the moved child.
func (n *InternalNode) MoveFirstTo(left *InternalNode, parentKey []byte) []byte {
	movedChild := n.Children[0]
	newParentKey := n.Keys[0]

	left.Keys = append(left.Keys, parentKey)
	left.Children = append(left.Children, movedChild)

	n.Children = n.Children[1:]
	n.Keys = n.Keys[1:]
	return newParentKey
}

// MoveLastTo moves n's last child (and the key separating it from the
// rest of n) onto the front of right, reusing parentKey as the new
// separator between the moved child and right's old children.
func (n *InternalNode) MoveLastTo(right *InternalNode, parentKey []byte) []byte {
	lastChild := len(n.Children) - 1
	lastKey := len(n.Keys) - 1
	movedChild := n.Children[lastChild]
	newParentKey := n.Keys[lastKey]

	right.Children = append([]page.ID{movedChild}, right.Children...)
	right.Keys = append([][]byte{parentKey}, right.Keys...)

	n.Children = n.Children[:lastChild]
	n.Keys = n.Keys[:lastKey]
	return newParentKey
}
