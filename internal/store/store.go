package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var ErrNotFound = errors.New("record not found")

// Store keeps JSON records in leveldb under "<prefix><id>" keys.
type Store struct {
	db *leveldb.DB
}

func Open(p string) (*Store, error) {
	_, err := os.Stat(p)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := os.MkdirAll(p, 0700); err != nil {
			return nil, err
		}
	}

	db, err := leveldb.OpenFile(p, nil)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", p, err)
	}
	return &Store{db: db}, nil
}

// OpenMem opens a store that lives only in memory.
func OpenMem() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(key string, v interface{}) error {
	value, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("reading record '%s': %w", key, err)
	}
	if err = json.Unmarshal(value, v); err != nil {
		return fmt.Errorf("decoding record '%s': %w", key, err)
	}
	return nil
}

func (s *Store) Put(key string, v interface{}) error {
	bytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding record '%s': %w", key, err)
	}
	if err = s.db.Put([]byte(key), bytes, nil); err != nil {
		return fmt.Errorf("writing record '%s': %w", key, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("deleting record '%s': %w", key, err)
	}
	return nil
}

// Iterate calls fn with every record whose key starts with prefix, in key
// order. Returning an error from fn stops the iteration.
func (s *Store) Iterate(prefix string, fn func(key string, value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		if err := fn(string(iter.Key()), value); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Keys lists the keys stored under prefix.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.Iterate(prefix, func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

// Batch collects writes that are applied atomically by Write.
type Batch struct {
	b   *leveldb.Batch
	err error
}

func (s *Store) NewBatch() *Batch {
	return &Batch{b: new(leveldb.Batch)}
}

func (b *Batch) Put(key string, v interface{}) {
	if b.err != nil {
		return
	}
	bytes, err := json.Marshal(v)
	if err != nil {
		b.err = fmt.Errorf("encoding record '%s': %w", key, err)
		return
	}
	b.b.Put([]byte(key), bytes)
}

func (b *Batch) Delete(key string) {
	b.b.Delete([]byte(key))
}

func (b *Batch) Len() int {
	return b.b.Len()
}

func (s *Store) Write(b *Batch) error {
	if b.err != nil {
		return b.err
	}
	if b.b.Len() == 0 {
		return nil
	}
	if err := s.db.Write(b.b, nil); err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}
	return nil
}
