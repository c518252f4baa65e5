// Package txnhooks defines the capability interfaces the storage core
// calls into for transactional bookkeeping it does not implement itself:
// locking and write-ahead logging. Every call site treats a nil hook as
// "do nothing" — the storage core works standalone, and an embedder wires
// in real implementations only if it wants them.
package txnhooks

import "github.com/emberdb/storage/core/storage/page"

// Transaction identifies the caller on whose behalf a locking or logging
// operation is performed. The storage core never constructs one; it only
// threads through whatever an embedder passes in.
type Transaction interface {
	ID() uint64
}

// LockManager grants and releases row-level locks. No component of the
// storage core accepts or calls a LockManager; the interface is a hook
// point for an embedder's concurrency-control layer.
type LockManager interface {
	LockShared(txn Transaction, pageID page.ID, slot uint32) error
	LockExclusive(txn Transaction, pageID page.ID, slot uint32) error
	Unlock(txn Transaction, pageID page.ID, slot uint32) error
}

// LogManager records before/after images of page mutations. The buffer
// pool, table heap and catalog accept one (nil allowed) and store it,
// but never call it; the storage core does not implement recovery, so
// nothing here is ever read back.
type LogManager interface {
	AppendUpdate(txn Transaction, pageID page.ID, before, after []byte) (page.LSN, error)
	Flush(upTo page.LSN) error
}
