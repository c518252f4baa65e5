// Package disk implements the paged database file: a fixed-size header,
// a bitmap-based extent allocator, and raw page read/write on top of a
// single os.File.
package disk

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/emberdb/storage/core/storage/page"
	"github.com/emberdb/storage/core/storage/storageerr"
	"go.uber.org/zap"
)

const fileMagic uint32 = 0x676F6A6F // "gojo" read as a big-endian uint32; stored little-endian, the bytes are "ojog"

// fileHeaderSize is the fixed size of the on-disk header occupying the
// very first bytes of the database file, ahead of physical page 0.
const fileHeaderSize = 16

type fileHeader struct {
	magic    uint32
	pageSize uint32
	reserved uint64
}

func (h *fileHeader) serializeTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.pageSize)
	binary.LittleEndian.PutUint64(buf[8:16], h.reserved)
}

func (h *fileHeader) deserializeFrom(buf []byte) {
	h.magic = binary.LittleEndian.Uint32(buf[0:4])
	h.pageSize = binary.LittleEndian.Uint32(buf[4:8])
	h.reserved = binary.LittleEndian.Uint64(buf[8:16])
}

// Manager owns the single database file and translates logical page ids
// (contiguous, extent-agnostic) to physical page offsets, handing out and
// reclaiming pages through a bitmap allocator.
type Manager struct {
	mu     sync.Mutex
	file   *os.File
	header fileHeader
	meta   metaPage
	logger *zap.Logger
}

// OpenOrCreate opens path if it exists, validating its header, or creates
// it fresh with an empty meta page when create is true and the file does
// not yet exist.
func OpenOrCreate(path string, create bool, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	_, statErr := os.Stat(path)
	exists := statErr == nil
	if !exists && !create {
		return nil, fmt.Errorf("%w: database file %q does not exist", storageerr.ErrNotFound, path)
	}

	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", storageerr.ErrIO, path, err)
	}

	m := &Manager{file: f, logger: logger}
	if exists {
		if err := m.loadHeader(); err != nil {
			f.Close()
			return nil, err
		}
		if err := m.loadMeta(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		m.header = fileHeader{magic: fileMagic, pageSize: page.Size}
		if err := m.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		if err := m.writeMeta(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) loadHeader() error {
	buf := make([]byte, fileHeaderSize)
	if _, err := m.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("%w: read file header: %v", storageerr.ErrIO, err)
	}
	var h fileHeader
	h.deserializeFrom(buf)
	if h.magic != fileMagic {
		return fmt.Errorf("%w: bad file magic %x", storageerr.ErrCorruption, h.magic)
	}
	if h.pageSize != page.Size {
		return fmt.Errorf("%w: page size mismatch: file has %d, binary expects %d", storageerr.ErrCorruption, h.pageSize, page.Size)
	}
	m.header = h
	return nil
}

func (m *Manager) writeHeader() error {
	buf := make([]byte, fileHeaderSize)
	m.header.serializeTo(buf)
	if _, err := m.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: write file header: %v", storageerr.ErrIO, err)
	}
	return nil
}

func (m *Manager) metaOffset() int64 { return fileHeaderSize }

func (m *Manager) loadMeta() error {
	buf := make([]byte, page.Size)
	if _, err := m.file.ReadAt(buf, m.metaOffset()); err != nil && err != io.EOF {
		return fmt.Errorf("%w: read meta page: %v", storageerr.ErrIO, err)
	}
	m.meta.deserializeFrom(buf)
	return nil
}

func (m *Manager) writeMeta() error {
	buf := make([]byte, page.Size)
	m.meta.serializeTo(buf)
	if _, err := m.file.WriteAt(buf, m.metaOffset()); err != nil {
		return fmt.Errorf("%w: write meta page: %v", storageerr.ErrIO, err)
	}
	return nil
}

// bitmapPhysicalPageID returns the physical page slot (counted after the
// file header and the meta page) holding the bitmap for extentIndex. Both
// AllocatePage/DeallocatePage and IsPageFree must go through this helper —
// computing it inline in more than one place is exactly how the original
// implementation's DeAllocatePage and IsPageFree ended up disagreeing with
// the allocator about where a given extent's bitmap actually lives.
func bitmapPhysicalPageID(extentIndex uint32) uint32 {
	return extentIndex*(BitmapSize+1) + 1
}

// dataPhysicalPageID returns the physical page slot for offset within
// extentIndex's data region.
func dataPhysicalPageID(extentIndex, offset uint32) uint32 {
	return extentIndex*(BitmapSize+1) + offset + 2
}

func (m *Manager) physicalOffset(physicalPageID uint32) int64 {
	return m.metaOffset() + int64(page.Size) + int64(physicalPageID)*int64(page.Size)
}

func (m *Manager) readPhysical(physicalPageID uint32, buf []byte) error {
	_, err := m.file.ReadAt(buf, m.physicalOffset(physicalPageID))
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: read physical page %d: %v", storageerr.ErrIO, physicalPageID, err)
	}
	return nil
}

func (m *Manager) writePhysical(physicalPageID uint32, buf []byte) error {
	if _, err := m.file.WriteAt(buf, m.physicalOffset(physicalPageID)); err != nil {
		return fmt.Errorf("%w: write physical page %d: %v", storageerr.ErrIO, physicalPageID, err)
	}
	return nil
}

// ReadPage reads the contents of logical page id into buf, which must be
// exactly page.Size bytes.
func (m *Manager) ReadPage(id page.ID, buf []byte) error {
	if len(buf) != page.Size {
		return fmt.Errorf("%w: ReadPage buffer must be %d bytes, got %d", storageerr.ErrInvalidArgument, page.Size, len(buf))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	physical := m.logicalToPhysical(uint32(id) - 1)
	return m.readPhysical(physical, buf)
}

// WritePage writes buf, which must be exactly page.Size bytes, to logical
// page id.
func (m *Manager) WritePage(id page.ID, buf []byte) error {
	if len(buf) != page.Size {
		return fmt.Errorf("%w: WritePage buffer must be %d bytes, got %d", storageerr.ErrInvalidArgument, page.Size, len(buf))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	physical := m.logicalToPhysical(uint32(id) - 1)
	return m.writePhysical(physical, buf)
}

func (m *Manager) logicalToPhysical(logical uint32) uint32 {
	extentIndex := logical / BitmapSize
	offset := logical % BitmapSize
	return dataPhysicalPageID(extentIndex, offset)
}

// AllocatePage reserves the next free logical page, extending the extent
// set if every existing extent is full, and returns its id.
func (m *Manager) AllocatePage() (page.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var extentIndex uint32
	found := false
	for i := uint32(0); i < m.meta.numExtents; i++ {
		if m.meta.extentUsedPages[i] < BitmapSize {
			extentIndex = i
			found = true
			break
		}
	}
	if !found {
		if m.meta.numExtents >= maxExtents {
			return page.InvalidID, fmt.Errorf("%w: no free extent slots remain", storageerr.ErrOutOfSpace)
		}
		extentIndex = m.meta.numExtents
		m.meta.numExtents++
		m.meta.extentUsedPages[extentIndex] = 0
	}

	var bitmap BitmapPage
	bitmapID := bitmapPhysicalPageID(extentIndex)
	if found {
		buf := make([]byte, page.Size)
		if err := m.readPhysical(bitmapID, buf); err != nil {
			return page.InvalidID, err
		}
		bitmap.DeserializeFrom(buf)
	}

	var offset uint32
	if !bitmap.AllocatePage(&offset) {
		return page.InvalidID, fmt.Errorf("%w: extent %d reported free but bitmap is full", storageerr.ErrCorruption, extentIndex)
	}

	buf := make([]byte, page.Size)
	bitmap.SerializeTo(buf)
	if err := m.writePhysical(bitmapID, buf); err != nil {
		return page.InvalidID, err
	}

	m.meta.extentUsedPages[extentIndex]++
	m.meta.numAllocatedPages++
	if err := m.writeMeta(); err != nil {
		return page.InvalidID, err
	}

	logical := extentIndex*BitmapSize + offset
	id := page.ID(logical + 1)
	m.logger.Debug("allocated page", zap.Int32("page_id", int32(id)), zap.Uint32("extent", extentIndex), zap.Uint32("offset", offset))
	return id, nil
}

// DeallocatePage marks id's backing page free again.
func (m *Manager) DeallocatePage(id page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logical := uint32(id) - 1
	extentIndex := logical / BitmapSize
	offset := logical % BitmapSize
	if extentIndex >= m.meta.numExtents {
		return fmt.Errorf("%w: page %d not allocated", storageerr.ErrInvalidArgument, id)
	}

	bitmapID := bitmapPhysicalPageID(extentIndex)
	buf := make([]byte, page.Size)
	if err := m.readPhysical(bitmapID, buf); err != nil {
		return err
	}
	var bitmap BitmapPage
	bitmap.DeserializeFrom(buf)

	if !bitmap.DeAllocatePage(offset) {
		return fmt.Errorf("%w: page %d already free", storageerr.ErrInvalidArgument, id)
	}

	bitmap.SerializeTo(buf)
	if err := m.writePhysical(bitmapID, buf); err != nil {
		return err
	}

	m.meta.extentUsedPages[extentIndex]--
	m.meta.numAllocatedPages--
	return m.writeMeta()
}

// IsPageFree reports whether id's backing slot is currently unallocated.
func (m *Manager) IsPageFree(id page.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logical := uint32(id) - 1
	extentIndex := logical / BitmapSize
	offset := logical % BitmapSize
	if extentIndex >= m.meta.numExtents {
		return true, nil
	}

	bitmapID := bitmapPhysicalPageID(extentIndex)
	buf := make([]byte, page.Size)
	if err := m.readPhysical(bitmapID, buf); err != nil {
		return false, err
	}
	var bitmap BitmapPage
	bitmap.DeserializeFrom(buf)
	return bitmap.IsPageFree(offset), nil
}

// NumAllocatedPages reports how many logical pages are currently in
// use, used by callers deciding whether a database file is brand new.
func (m *Manager) NumAllocatedPages() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta.numAllocatedPages
}

// Sync flushes any buffered writes to stable storage.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", storageerr.ErrIO, err)
	}
	return nil
}

// Close syncs and closes the underlying file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		m.logger.Warn("sync on close failed", zap.Error(err))
	}
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", storageerr.ErrIO, err)
	}
	return nil
}
