package disk

import "github.com/emberdb/storage/core/storage/page"

// metaHeaderSize covers NumAllocatedPages and NumExtents, both uint32.
const metaHeaderSize = 8

// maxExtents bounds how many extents the meta page can track: each extent
// contributes one uint32 usage counter after the header.
const maxExtents = (page.Size - metaHeaderSize) / 4

// metaPage is the disk file's meta block, stored right after the file
// header and ahead of every bitmap and data page: global allocation bookkeeping plus
// a per-extent used-page counter, mirroring the layout the bitmap
// allocator's extent scan relies on.
type metaPage struct {
	numAllocatedPages uint32
	numExtents        uint32
	extentUsedPages   [maxExtents]uint32
}

func (m *metaPage) serializeTo(buf []byte) {
	putUint32(buf[0:4], m.numAllocatedPages)
	putUint32(buf[4:8], m.numExtents)
	off := metaHeaderSize
	for i := uint32(0); i < m.numExtents; i++ {
		putUint32(buf[off:off+4], m.extentUsedPages[i])
		off += 4
	}
}

func (m *metaPage) deserializeFrom(buf []byte) {
	m.numAllocatedPages = getUint32(buf[0:4])
	m.numExtents = getUint32(buf[4:8])
	off := metaHeaderSize
	for i := uint32(0); i < m.numExtents; i++ {
		m.extentUsedPages[i] = getUint32(buf[off : off+4])
		off += 4
	}
}
