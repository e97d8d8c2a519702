package storage

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = fmt.Errorf("storage: key not found")

// Database is a generic interface for an ordered key-value store. The ledger
// relies on keys iterating in ascending byte order within a prefix, which both
// backends guarantee.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	// NewIterator returns an iterator over every key sharing the supplied
	// prefix. When start is non-empty, keys less than or equal to
	// prefix+start are skipped (exclusive lower bound).
	NewIterator(prefix []byte, start []byte) Iterator
	// WriteBatch applies the supplied key-value pairs in a single atomic write.
	WriteBatch(writes []KV) error
	Close() // A way to gracefully shut down the database connection.
}

// KV is a single pending write inside a batch. A nil Value deletes the key.
type KV struct {
	Key   []byte
	Value []byte
}

// Iterator walks keys in ascending byte order. Next must be called before the
// first use of Key/Value.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *MemDB) WriteBatch(writes []KV) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, kv := range writes {
		if kv.Value == nil {
			delete(db.data, string(kv.Key))
			continue
		}
		db.data[string(kv.Key)] = append([]byte(nil), kv.Value...)
	}
	return nil
}

func (db *MemDB) NewIterator(prefix []byte, start []byte) Iterator {
	db.mu.RLock()
	defer db.mu.RUnlock()
	lower := append(append([]byte(nil), prefix...), start...)
	keys := make([]string, 0)
	for k := range db.data {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if len(start) > 0 && bytes.Compare([]byte(k), lower) <= 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]KV, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, KV{
			Key:   []byte(k),
			Value: append([]byte(nil), db.data[k]...),
		})
	}
	return &memIterator{entries: entries, pos: -1}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

type memIterator struct {
	entries []KV
	pos     int
}

func (it *memIterator) Next() bool {
	if it.pos+1 >= len(it.entries) {
		return false
	}
	it.pos++
	return true
}

func (it *memIterator) Key() []byte   { return it.entries[it.pos].Key }
func (it *memIterator) Value() []byte { return it.entries[it.pos].Value }
func (it *memIterator) Error() error  { return nil }
func (it *memIterator) Release()      {}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return value, err
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

func (ldb *LevelDB) WriteBatch(writes []KV) error {
	batch := new(leveldb.Batch)
	for _, kv := range writes {
		if kv.Value == nil {
			batch.Delete(kv.Key)
			continue
		}
		batch.Put(kv.Key, kv.Value)
	}
	return ldb.db.Write(batch, nil)
}

func (ldb *LevelDB) NewIterator(prefix []byte, start []byte) Iterator {
	rng := util.BytesPrefix(prefix)
	if len(start) > 0 {
		lower := append(append([]byte(nil), prefix...), start...)
		// Exclusive bound: seek past the cursor key itself.
		rng.Start = append(lower, 0x00)
	}
	return &levelIterator{it: ldb.db.NewIterator(rng, nil)}
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

type levelIterator struct {
	it iterator.Iterator
}

func (l *levelIterator) Next() bool { return l.it.Next() }

func (l *levelIterator) Key() []byte {
	return append([]byte(nil), l.it.Key()...)
}

func (l *levelIterator) Value() []byte {
	return append([]byte(nil), l.it.Value()...)
}

func (l *levelIterator) Error() error { return l.it.Error() }
func (l *levelIterator) Release()     { l.it.Release() }
