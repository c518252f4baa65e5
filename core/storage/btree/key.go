// Package btree implements a disk-resident B+ tree: fixed-size leaf and
// internal pages, descent/insert/delete with redistribution and merge,
// and a leaf-chained iterator for range scans. Keys are opaque
// fixed-length byte strings; ordering is supplied by a Comparator so the
// tree itself never needs to know what a key actually encodes.
package btree

// Comparator orders two keys of the same fixed length. It must return a
// negative number if a < b, zero if a == b, and positive if a > b.
type Comparator func(a, b []byte) int

// BytesComparator orders keys by unsigned lexicographic byte comparison
// — the natural choice for keys that are themselves big-endian encoded
// integers or raw strings.
func BytesComparator(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
