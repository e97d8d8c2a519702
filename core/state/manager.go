package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/NoahSaso/cw-receipt/storage"
)

// Reader exposes typed read access to the key-value state. Values are RLP
// encoded.
type Reader interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVHas(key []byte) (bool, error)
}

// Writer extends Reader with typed mutation helpers. Both Manager and Txn
// satisfy it; the ledger engine only ever mutates through a Txn.
type Writer interface {
	Reader
	KVPut(key []byte, value interface{}) error
}

// Manager provides typed access to the committed state backed by the ordered
// key-value database.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVGet loads and decodes the value stored under key. The boolean reports
// whether the key was present.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	data, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVHas reports whether the key exists without decoding its value.
func (m *Manager) KVHas(key []byte) (bool, error) {
	return m.db.Has(key)
}

// KVPut encodes and stores the value under key, bypassing any transaction.
// Reserved for genesis initialisation; request handling goes through Begin.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	data, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, data)
}

// IterateWithPrefix walks committed keys sharing the prefix in ascending byte
// order, starting strictly after prefix+startAfter when startAfter is
// non-empty. The callback receives the key suffix (prefix stripped) and the
// raw RLP value; returning false stops the walk early.
func (m *Manager) IterateWithPrefix(prefix, startAfter []byte, fn func(suffix, value []byte) (bool, error)) error {
	it := m.db.NewIterator(prefix, startAfter)
	defer it.Release()
	for it.Next() {
		suffix := it.Key()[len(prefix):]
		cont, err := fn(suffix, it.Value())
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return it.Error()
}

// Begin opens a buffered transaction. Writes are held in an overlay with
// read-your-writes semantics until Commit applies them to the database in a
// single atomic batch.
func (m *Manager) Begin() *Txn {
	return &Txn{mgr: m, pending: make(map[string][]byte)}
}

// Txn buffers a request's mutations so a failure partway through leaves the
// committed state untouched.
type Txn struct {
	mgr     *Manager
	pending map[string][]byte
	order   []string
	done    bool
}

func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	if data, ok := t.pending[string(key)]; ok {
		if out == nil {
			return true, nil
		}
		if err := rlp.DecodeBytes(data, out); err != nil {
			return false, fmt.Errorf("state: decode %q: %w", key, err)
		}
		return true, nil
	}
	return t.mgr.KVGet(key, out)
}

func (t *Txn) KVHas(key []byte) (bool, error) {
	if _, ok := t.pending[string(key)]; ok {
		return true, nil
	}
	return t.mgr.KVHas(key)
}

func (t *Txn) KVPut(key []byte, value interface{}) error {
	if t.done {
		return fmt.Errorf("state: transaction already finished")
	}
	data, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	if _, ok := t.pending[string(key)]; !ok {
		t.order = append(t.order, string(key))
	}
	t.pending[string(key)] = data
	return nil
}

// Commit writes every buffered mutation to the database atomically.
func (t *Txn) Commit() error {
	if t.done {
		return fmt.Errorf("state: transaction already finished")
	}
	t.done = true
	if len(t.pending) == 0 {
		return nil
	}
	writes := make([]storage.KV, 0, len(t.order))
	for _, k := range t.order {
		writes = append(writes, storage.KV{Key: []byte(k), Value: t.pending[k]})
	}
	return t.mgr.db.WriteBatch(writes)
}

// Discard drops every buffered mutation.
func (t *Txn) Discard() {
	t.done = true
	t.pending = nil
	t.order = nil
}

// PendingKeys returns the buffered keys in ascending order. Test helper.
func (t *Txn) PendingKeys() [][]byte {
	keys := make([][]byte, 0, len(t.pending))
	for k := range t.pending {
		keys = append(keys, []byte(k))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys
}
