package btree

import (
	"encoding/binary"

	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/record"
)

// LeafNode holds the fully decoded contents of a leaf page: parallel
// Keys/Values slices plus the pointer to the next leaf in key order,
// used to walk a range scan without revisiting internal pages.
type LeafNode struct {
	Self     page.ID
	Parent   page.ID
	NextLeaf page.ID
	KeySize  int
	MaxSize  int
	Keys     [][]byte
	Values   []record.RowID
}

// NewLeafNode returns an empty leaf ready to be populated and written.
func NewLeafNode(self, parent page.ID, keySize, maxSize int) *LeafNode {
	return &LeafNode{Self: self, Parent: parent, NextLeaf: page.InvalidID, KeySize: keySize, MaxSize: maxSize}
}

func (n *LeafNode) Size() int { return len(n.Keys) }

// IsFull reports whether the leaf already holds MaxSize entries.
func (n *LeafNode) IsFull() bool { return len(n.Keys) >= n.MaxSize }

// SerializeTo writes the leaf's contents into buf, a page.Size buffer.
func (n *LeafNode) SerializeTo(buf []byte) {
	h := header{
		typ:      nodeLeaf,
		size:     uint16(len(n.Keys)),
		maxSize:  uint16(n.MaxSize),
		parent:   n.Parent,
		keySize:  uint16(n.KeySize),
		self:     n.Self,
		nextLeaf: n.NextLeaf,
	}
	writeHeader(buf, h)

	off := leafHeaderSize
	for _, k := range n.Keys {
		copy(buf[off:off+n.KeySize], k)
		off += n.KeySize
	}
	for _, v := range n.Values {
		binary.LittleEndian.PutUint32(buf[off:], uint32(v.PageID))
		binary.LittleEndian.PutUint32(buf[off+4:], v.Slot)
		off += valueSize
	}
	writeChecksum(buf)
}

// DeserializeLeaf reads a leaf node out of buf, a page.Size buffer
// previously produced by SerializeTo.
func DeserializeLeaf(buf []byte) (*LeafNode, error) {
	if err := verifyChecksum(buf); err != nil {
		return nil, err
	}
	h := readHeader(buf)
	n := &LeafNode{
		Self:     h.self,
		Parent:   h.parent,
		NextLeaf: h.nextLeaf,
		KeySize:  int(h.keySize),
		MaxSize:  int(h.maxSize),
		Keys:     make([][]byte, h.size),
		Values:   make([]record.RowID, h.size),
	}
	off := leafHeaderSize
	for i := range n.Keys {
		key := make([]byte, n.KeySize)
		copy(key, buf[off:off+n.KeySize])
		n.Keys[i] = key
		off += n.KeySize
	}
	for i := range n.Values {
		n.Values[i] = record.RowID{
			PageID: page.ID(binary.LittleEndian.Uint32(buf[off:])),
			Slot:   binary.LittleEndian.Uint32(buf[off+4:]),
		}
		off += valueSize
	}
	return n, nil
}

// find returns the index of key if present, and whether it was found.
func (n *LeafNode) find(cmp Comparator, key []byte) (int, bool) {
	lo, hi := 0, len(n.Keys)
	for lo < hi {
		mid := (lo + hi) / 2
		c := cmp(n.Keys[mid], key)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// Insert places key/value in sorted order. It returns false if key
// already exists (leaf B+ tree keys are unique).
func (n *LeafNode) Insert(cmp Comparator, key []byte, value record.RowID) bool {
	idx, found := n.find(cmp, key)
	if found {
		return false
	}
	n.Keys = append(n.Keys, nil)
	n.Values = append(n.Values, record.RowID{})
	copy(n.Keys[idx+1:], n.Keys[idx:])
	copy(n.Values[idx+1:], n.Values[idx:])
	n.Keys[idx] = key
	n.Values[idx] = value
	return true
}

// Remove deletes key if present and reports whether it was found.
func (n *LeafNode) Remove(cmp Comparator, key []byte) bool {
	idx, found := n.find(cmp, key)
	if !found {
		return false
	}
	n.Keys = append(n.Keys[:idx], n.Keys[idx+1:]...)
	n.Values = append(n.Values[:idx], n.Values[idx+1:]...)
	return true
}

// Get returns the value for key and whether it was found.
func (n *LeafNode) Get(cmp Comparator, key []byte) (record.RowID, bool) {
	idx, found := n.find(cmp, key)
	if !found {
		return record.RowID{}, false
	}
	return n.Values[idx], true
}

// SplitOff moves the upper half of n's entries into a new sibling node
// and returns it along with the separator key for the parent (the
// sibling's first key).
func (n *LeafNode) SplitOff(siblingPageID page.ID) (*LeafNode, []byte) {
	mid := len(n.Keys) / 2
	sibling := NewLeafNode(siblingPageID, n.Parent, n.KeySize, n.MaxSize)
	sibling.Keys = append(sibling.Keys, n.Keys[mid:]...)
	sibling.Values = append(sibling.Values, n.Values[mid:]...)
	sibling.NextLeaf = n.NextLeaf
	n.Keys = n.Keys[:mid]
	n.Values = n.Values[:mid]
	n.NextLeaf = siblingPageID
	return sibling, sibling.Keys[0]
}

// MergeFrom appends right's entries onto n (n must be the left sibling)
// and adopts right's next-leaf pointer.
func (n *LeafNode) MergeFrom(right *LeafNode) {
	n.Keys = append(n.Keys, right.Keys...)
	n.Values = append(n.Values, right.Values...)
	n.NextLeaf = right.NextLeaf
}

// MoveFirstTo appends n's first entry onto the end of left, used during
// leaf redistribution when the left sibling is underfull.
func (n *LeafNode) MoveFirstTo(left *LeafNode) {
	left.Keys = append(left.Keys, n.Keys[0])
	left.Values = append(left.Values, n.Values[0])
	n.Keys = n.Keys[1:]
	n.Values = n.Values[1:]
}

// MoveLastTo prepends n's last entry onto the front of right, used
// during leaf redistribution when the right sibling is underfull.
func (n *LeafNode) MoveLastTo(right *LeafNode) {
	last := len(n.Keys) - 1
	right.Keys = append([][]byte{n.Keys[last]}, right.Keys...)
	right.Values = append([]record.RowID{n.Values[last]}, right.Values...)
	n.Keys = n.Keys[:last]
	n.Values = n.Values[:last]
}
