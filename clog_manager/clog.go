package clog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"HelixDB/types"

	"github.com/dgraph-io/ristretto/v2"
)

/*
The status log is the authoritative record of every real transaction's
outcome. Layout:

Status file
─────────────────────────────────
| Page 0 | Page 1 | Page 2 | ... |
─────────────────────────────────

Each 4KB page packs 16384 two-bit statuses; a transaction id maps directly to
(page, byte, shift). Pages are written through on every status change and
cached for reads. A status write that fails at the file is fatal to the
server: the caller must not continue as if the outcome were recorded.
*/

// Open opens (or creates) the status log under dir. cacheBytes bounds the
// in-memory page cache.
func Open(dir string, cacheBytes int64) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create clog dir: %w", err)
	}

	path := filepath.Join(dir, fileName)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open status log %s: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat status log: %w", err)
	}

	if cacheBytes < PageSize {
		cacheBytes = PageSize
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: (cacheBytes / PageSize) * 10,
		MaxCost:     cacheBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create clog page cache: %w", err)
	}

	m := &Manager{
		file:      file,
		filePath:  path,
		numPages:  uint64(stat.Size()) / PageSize,
		cache:     cache,
		floor:     types.FirstNormalTxID,
		floorPath: filepath.Join(dir, floorFileName),
	}
	if raw, err := os.ReadFile(m.floorPath); err == nil && len(raw) >= 4 {
		if f := types.TxID(binary.BigEndian.Uint32(raw)); f.IsNormal() {
			m.floor = f
		}
	} else if err != nil && !os.IsNotExist(err) {
		cache.Close()
		file.Close()
		return nil, fmt.Errorf("failed to read recovery floor: %w", err)
	}
	return m, nil
}

// SetStatus records the outcome of a transaction id. Writes are idempotent:
// re-recording the same outcome is a no-op, and the only sanctioned
// transitions are in-progress -> any and sub-committed -> committed/aborted.
// A failed write is a storage I/O error and is fatal to the server.
func (m *Manager) SetStatus(id types.TxID, st Status) error {
	if !id.IsNormal() {
		return fmt.Errorf("cannot set status of reserved transaction id %s", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("status log is closed")
	}

	pageNo := uint64(id) / StatusesPerPage
	page, err := m.loadPage(pageNo)
	if err != nil {
		return err
	}

	byteIdx, shift := slotOf(id)
	existing := Status(page[byteIdx] >> shift & statusMask)
	if existing == st {
		return nil
	}
	if existing.IsFinal() {
		return fmt.Errorf("transaction %s already %s, cannot record %s", id, existing, st)
	}

	page[byteIdx] = page[byteIdx]&^(statusMask<<shift) | byte(st)<<shift

	if _, err := m.file.WriteAt(page, int64(pageNo)*PageSize); err != nil {
		return fmt.Errorf("failed to write status page %d: %w", pageNo, err)
	}
	if pageNo >= m.numPages {
		m.numPages = pageNo + 1
	}
	m.cache.Set(pageNo, page, PageSize)
	return nil
}

// GetStatus returns the recorded outcome of a transaction id. An id that has
// not completed (or was never allocated) reads as in-progress; that is not an
// error. Reserved ids read as committed so bootstrap and frozen tuples are
// visible everywhere.
func (m *Manager) GetStatus(id types.TxID) (Status, error) {
	if !id.IsNormal() {
		if id == types.BootstrapTxID || id == types.FrozenTxID {
			return StatusCommitted, nil
		}
		return StatusInProgress, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return StatusInProgress, fmt.Errorf("status log is closed")
	}

	pageNo := uint64(id) / StatusesPerPage
	if pageNo >= m.numPages {
		if _, ok := m.cache.Get(pageNo); !ok {
			return StatusInProgress, nil
		}
	}

	page, err := m.loadPage(pageNo)
	if err != nil {
		return StatusInProgress, err
	}
	byteIdx, shift := slotOf(id)
	return Status(page[byteIdx] >> shift & statusMask), nil
}

// MarkCrashedAborted closes out every id below upTo still recorded as
// in-progress or sub-committed. Called once at startup: a transaction that
// was alive at crash time never got its outcome written, which makes it
// aborted by definition. The scan starts at the persisted recovery floor —
// every id below it got a final status from an earlier pass and ids never
// repeat — and upTo becomes the new floor, so the cost is proportional to
// one restart's worth of ids, not the whole history.
func (m *Manager) MarkCrashedAborted(upTo types.TxID) (int, error) {
	start := m.floor
	marked := 0
	for id := start; id.Precedes(upTo); id = id.Next() {
		st, err := m.GetStatus(id)
		if err != nil {
			return marked, err
		}
		if st == StatusInProgress || st == StatusSubCommitted {
			if err := m.SetStatus(id, StatusAborted); err != nil {
				return marked, err
			}
			marked++
		}
	}

	if m.floor.Precedes(upTo) {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(upTo))
		if err := os.WriteFile(m.floorPath, buf[:], 0644); err != nil {
			return marked, fmt.Errorf("failed to persist recovery floor: %w", err)
		}
		m.floor = upTo
	}
	return marked, nil
}

// Metrics returns page cache hit/miss counters.
func (m *Manager) Metrics() *ristretto.Metrics {
	return m.cache.Metrics
}

// Close flushes nothing (writes are write-through) and releases the file and cache.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.cache.Close()
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("failed to close status log: %w", err)
	}
	return nil
}

// loadPage returns the page from cache or disk, or a zero page for a page
// that does not exist yet. Caller holds m.mu.
func (m *Manager) loadPage(pageNo uint64) ([]byte, error) {
	if page, ok := m.cache.Get(pageNo); ok {
		return page, nil
	}

	page := make([]byte, PageSize)
	if pageNo < m.numPages {
		if _, err := m.file.ReadAt(page, int64(pageNo)*PageSize); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read status page %d: %w", pageNo, err)
		}
	}
	m.cache.Set(pageNo, page, PageSize)
	return page, nil
}

// slotOf maps an id to its byte offset and bit shift within its page.
func slotOf(id types.TxID) (byteIdx uint64, shift uint) {
	slot := uint64(id) % StatusesPerPage
	return slot / StatusesPerByte, uint(slot%StatusesPerByte) * 2
}
