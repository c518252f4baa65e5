package btree

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/storageerr"
)

type nodeType uint8

const (
	nodeInternal nodeType = 0
	nodeLeaf     nodeType = 1
)

const (
	commonHeaderSize = 1 + 2 + 2 + 4 + 2 + 4 // type, size, maxSize, parent, keySize, self
	leafExtraHeader  = 4                     // next leaf page id
	leafHeaderSize   = commonHeaderSize + leafExtraHeader
	internalHeaderSize = commonHeaderSize
	crcSize          = 4
	valueSize        = 8 // serialized record.RowID: page id (4) + slot (4)
	childSize        = 4 // serialized page.ID
)

// header is the set of fields every node page — leaf or internal —
// carries, read from or written to the front of a raw page buffer.
type header struct {
	typ        nodeType
	size       uint16
	maxSize    uint16
	parent     page.ID
	keySize    uint16
	self       page.ID
	nextLeaf   page.ID // leaf-only; zero for internal nodes
}

func readHeader(buf []byte) header {
	var h header
	h.typ = nodeType(buf[0])
	h.size = binary.LittleEndian.Uint16(buf[1:3])
	h.maxSize = binary.LittleEndian.Uint16(buf[3:5])
	h.parent = page.ID(binary.LittleEndian.Uint32(buf[5:9]))
	h.keySize = binary.LittleEndian.Uint16(buf[9:11])
	h.self = page.ID(binary.LittleEndian.Uint32(buf[11:15]))
	if h.typ == nodeLeaf {
		h.nextLeaf = page.ID(binary.LittleEndian.Uint32(buf[15:19]))
	}
	return h
}

func writeHeader(buf []byte, h header) {
	buf[0] = byte(h.typ)
	binary.LittleEndian.PutUint16(buf[1:3], h.size)
	binary.LittleEndian.PutUint16(buf[3:5], h.maxSize)
	binary.LittleEndian.PutUint32(buf[5:9], uint32(h.parent))
	binary.LittleEndian.PutUint16(buf[9:11], h.keySize)
	binary.LittleEndian.PutUint32(buf[11:15], uint32(h.self))
	if h.typ == nodeLeaf {
		binary.LittleEndian.PutUint32(buf[15:19], uint32(h.nextLeaf))
	}
}

func headerSize(typ nodeType) int {
	if typ == nodeLeaf {
		return leafHeaderSize
	}
	return internalHeaderSize
}

// writeChecksum stamps the CRC32 of everything before the trailing 4
// bytes into those final 4 bytes of buf.
func writeChecksum(buf []byte) {
	sum := crc32.ChecksumIEEE(buf[:len(buf)-crcSize])
	binary.LittleEndian.PutUint32(buf[len(buf)-crcSize:], sum)
}

// verifyChecksum reports whether buf's trailing 4 bytes match the
// CRC32 of everything before them.
func verifyChecksum(buf []byte) error {
	want := binary.LittleEndian.Uint32(buf[len(buf)-crcSize:])
	got := crc32.ChecksumIEEE(buf[:len(buf)-crcSize])
	if want != got {
		return fmt.Errorf("%w: btree node checksum mismatch", storageerr.ErrCorruption)
	}
	return nil
}

// maxLeafEntries returns how many (key, value) pairs fit on a leaf page
// with keys of keySize bytes.
func maxLeafEntries(keySize int) int {
	return (page.Size - leafHeaderSize - crcSize) / (keySize + valueSize)
}

// maxInternalChildren returns how many children (and therefore
// children-1 keys) fit on an internal page with keys of keySize bytes.
func maxInternalChildren(keySize int) int {
	return ((page.Size - internalHeaderSize - crcSize) - childSize) / (keySize + childSize)
}
