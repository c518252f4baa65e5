package btree

import (
	"fmt"

	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/storageerr"
)

func (t *BTree) leafMinSize() int { return t.leafMax / 2 }

func (t *BTree) internalMinSize() int {
	m := (t.internalMax + 1) / 2
	if m < 2 {
		m = 2
	}
	return m
}

// Remove deletes key from the tree, redistributing or merging
// underfull nodes as it walks back up. It reports an error wrapping
// storageerr.ErrNotFound if key isn't present.
func (t *BTree) Remove(key []byte) error {
	if t.IsEmpty() {
		return fmt.Errorf("%w: tree %d is empty", storageerr.ErrNotFound, t.IndexID)
	}
	leaf, path, err := t.findLeaf(key)
	if err != nil {
		return err
	}
	if !leaf.Remove(t.cmp, key) {
		return fmt.Errorf("%w: key not present", storageerr.ErrNotFound)
	}

	if len(path) == 0 {
		// Leaf is the root. An empty root means the tree is now empty;
		// any other size is always valid for a root.
		if leaf.Size() == 0 {
			if err := t.bpm.DeletePage(leaf.Self); err != nil {
				return err
			}
			return t.roots.DeleteRoot(t.IndexID)
		}
		return t.writeLeaf(leaf)
	}

	if leaf.Size() >= t.leafMinSize() {
		if err := t.writeLeaf(leaf); err != nil {
			return err
		}
		return t.fixAncestorSeparators(path, leaf.Self, leaf.Keys[0])
	}
	return t.coalesceOrRedistributeLeaf(leaf, path)
}

// fixAncestorSeparators walks up path (root first, direct parent last)
// updating whichever ancestor separator key names childID's minimum,
// now that it's newMinKey. childID being the first child of its parent
// means no separator in that parent names it directly — the parent's
// own effective minimum just changed instead, so the fix-up continues
// to the grandparent.
func (t *BTree) fixAncestorSeparators(path []page.ID, childID page.ID, newMinKey []byte) error {
	if len(path) == 0 {
		return nil
	}
	parentID := path[len(path)-1]
	parent, err := t.fetchInternal(parentID)
	if err != nil {
		return err
	}
	idx := parent.ChildIndex(childID)
	if idx == 0 {
		return t.fixAncestorSeparators(path[:len(path)-1], parentID, newMinKey)
	}
	parent.Keys[idx-1] = newMinKey
	return t.writeInternal(parent)
}

func (t *BTree) coalesceOrRedistributeLeaf(leaf *LeafNode, path []page.ID) error {
	parentID := path[len(path)-1]
	parent, err := t.fetchInternal(parentID)
	if err != nil {
		return err
	}
	idx := parent.ChildIndex(leaf.Self)
	useRight := idx == 0

	var siblingID page.ID
	if useRight {
		siblingID = parent.Children[idx+1]
	} else {
		siblingID = parent.Children[idx-1]
	}
	sibling, err := t.fetchLeaf(siblingID)
	if err != nil {
		return err
	}

	if leaf.Size()+sibling.Size() > t.leafMax {
		if useRight {
			sibling.MoveFirstTo(leaf)
			parent.Keys[idx] = sibling.Keys[0]
		} else {
			sibling.MoveLastTo(leaf)
			parent.Keys[idx-1] = leaf.Keys[0]
		}
		if err := t.writeLeaf(leaf); err != nil {
			return err
		}
		if err := t.writeLeaf(sibling); err != nil {
			return err
		}
		return t.writeInternal(parent)
	}

	if useRight {
		leaf.MergeFrom(sibling)
		if err := t.writeLeaf(leaf); err != nil {
			return err
		}
		if err := t.bpm.DeletePage(sibling.Self); err != nil {
			return err
		}
		parent.RemoveChild(sibling.Self)
	} else {
		sibling.MergeFrom(leaf)
		if err := t.writeLeaf(sibling); err != nil {
			return err
		}
		if err := t.bpm.DeletePage(leaf.Self); err != nil {
			return err
		}
		parent.RemoveChild(leaf.Self)
	}
	return t.afterChildRemoved(parent, path[:len(path)-1])
}

// afterChildRemoved writes parent back (collapsing it into the new root
// if it's the root and down to one child) or recurses into
// coalesce/redistribute if it's now underfull itself.
func (t *BTree) afterChildRemoved(parent *InternalNode, ancestorPath []page.ID) error {
	if len(ancestorPath) == 0 {
		if parent.Size() == 1 {
			onlyChild := parent.Children[0]
			if err := t.setParent(onlyChild, page.InvalidID); err != nil {
				return err
			}
			if err := t.bpm.DeletePage(parent.Self); err != nil {
				return err
			}
			return t.roots.SetRoot(t.IndexID, onlyChild)
		}
		return t.writeInternal(parent)
	}

	if parent.Size() >= t.internalMinSize() {
		return t.writeInternal(parent)
	}
	return t.coalesceOrRedistributeInternal(parent, ancestorPath)
}

func (t *BTree) coalesceOrRedistributeInternal(node *InternalNode, path []page.ID) error {
	grandparentID := path[len(path)-1]
	grandparent, err := t.fetchInternal(grandparentID)
	if err != nil {
		return err
	}
	idx := grandparent.ChildIndex(node.Self)
	useRight := idx == 0

	var siblingID page.ID
	if useRight {
		siblingID = grandparent.Children[idx+1]
	} else {
		siblingID = grandparent.Children[idx-1]
	}
	sibling, err := t.fetchInternal(siblingID)
	if err != nil {
		return err
	}

	if node.Size()+sibling.Size() > t.internalMax {
		if useRight {
			movedChild := sibling.Children[0]
			newKey := sibling.MoveFirstTo(node, grandparent.Keys[idx])
			grandparent.Keys[idx] = newKey
			if err := t.setParent(movedChild, node.Self); err != nil {
				return err
			}
		} else {
			movedChild := sibling.Children[len(sibling.Children)-1]
			newKey := sibling.MoveLastTo(node, grandparent.Keys[idx-1])
			grandparent.Keys[idx-1] = newKey
			if err := t.setParent(movedChild, node.Self); err != nil {
				return err
			}
		}
		if err := t.writeInternal(node); err != nil {
			return err
		}
		if err := t.writeInternal(sibling); err != nil {
			return err
		}
		return t.writeInternal(grandparent)
	}

	if useRight {
		for _, child := range sibling.Children {
			if err := t.setParent(child, node.Self); err != nil {
				return err
			}
		}
		node.MergeFrom(sibling, grandparent.Keys[idx])
		if err := t.writeInternal(node); err != nil {
			return err
		}
		if err := t.bpm.DeletePage(sibling.Self); err != nil {
			return err
		}
		grandparent.RemoveChild(sibling.Self)
	} else {
		for _, child := range node.Children {
			if err := t.setParent(child, sibling.Self); err != nil {
				return err
			}
		}
		sibling.MergeFrom(node, grandparent.Keys[idx-1])
		if err := t.writeInternal(sibling); err != nil {
			return err
		}
		if err := t.bpm.DeletePage(node.Self); err != nil {
			return err
		}
		grandparent.RemoveChild(node.Self)
	}
	return t.afterChildRemoved(grandparent, path[:len(path)-1])
}
