package state

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"swapguard/storage"
)

// Manager provides RLP-coded views over the raw key-value store. Writes are
// buffered in a dirty cache and journaled so an operation can be reverted to a
// prior snapshot, mirroring the snapshot/revert discipline of an EVM state
// database. Commit flushes the dirty cache to the backing database.
type Manager struct {
	mu      sync.Mutex
	db      storage.Database
	dirty   map[string][]byte
	journal []journalEntry
}

type journalEntry struct {
	key     string
	prev    []byte
	existed bool
}

// NewManager constructs a manager over the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:    db,
		dirty: make(map[string][]byte),
	}
}

// KVGet decodes the value stored at key into out, reporting whether the key
// exists. Absence is not an error.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok, err := m.rawGet(key)
	if err != nil || !ok {
		return false, err
	}
	if out != nil {
		if err := rlp.DecodeBytes(raw, out); err != nil {
			return false, fmt.Errorf("state: decode %q: %w", string(key), err)
		}
	}
	return true, nil
}

// KVPut encodes value and stores it at key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", string(key), err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journalWrite(key)
	m.dirty[string(key)] = encoded
	return nil
}

// Snapshot marks the current journal position. The returned revision can be
// passed to RevertToSnapshot to undo every write made since.
func (m *Manager) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.journal)
}

// RevertToSnapshot unwinds the dirty cache back to the supplied revision.
func (m *Manager) RevertToSnapshot(rev int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rev < 0 || rev > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= rev; i-- {
		entry := m.journal[i]
		if entry.existed {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:rev]
}

// Commit flushes buffered writes to the backing database and resets the
// journal.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range m.dirty {
		if err := m.db.Put([]byte(key), value); err != nil {
			return fmt.Errorf("state: commit %q: %w", key, err)
		}
	}
	m.dirty = make(map[string][]byte)
	m.journal = nil
	return nil
}

func (m *Manager) rawGet(key []byte) ([]byte, bool, error) {
	m.mu.Lock()
	if cached, ok := m.dirty[string(key)]; ok {
		m.mu.Unlock()
		if cached == nil {
			return nil, false, nil
		}
		return cached, true, nil
	}
	m.mu.Unlock()
	raw, err := m.db.Get(key)
	if err != nil {
		if err == storage.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

func (m *Manager) journalWrite(key []byte) {
	prev, existed := m.dirty[string(key)]
	if !existed {
		if raw, err := m.db.Get(key); err == nil {
			prev = raw
			existed = true
		}
	}
	m.journal = append(m.journal, journalEntry{key: string(key), prev: prev, existed: existed})
}
