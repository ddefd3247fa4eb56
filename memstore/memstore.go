// Package memstore provides an in-memory RecordFetcher and PersistenceWriter.
//
// Rows are stored msgpack-encoded, so every read and write copies: a caller
// holding a returned Row can never observe or change stored state.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/bolock"
)

type key struct {
	class string
	id    string
}

// Store is a concurrency-safe in-memory row store.
type Store struct {
	mu     sync.RWMutex
	rows   map[key][]byte
	writes int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		rows: make(map[key][]byte),
	}
}

// Put inserts or replaces the row of an object.
func (s *Store) Put(class string, id bolock.Identity, row bolock.Row) error {
	b, err := encode(row)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[key{class, id.String()}] = b
	return nil
}

// Get returns a copy of the full row of an object.
func (s *Store) Get(class string, id bolock.Identity) (bolock.Row, error) {
	return s.FetchRow(context.Background(), class, id, nil)
}

// Delete removes the row of an object.
func (s *Store) Delete(class string, id bolock.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, key{class, id.String()})
}

// Writes returns the number of WriteFields calls that reached a row.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// FetchRow implements bolock.RecordFetcher. A nil columns slice returns
// every stored column.
func (s *Store) FetchRow(_ context.Context, class string, id bolock.Identity, columns []string) (bolock.Row, error) {
	s.mu.RLock()
	b, ok := s.rows[key{class, id.String()}]
	s.mu.RUnlock()
	if !ok {
		return nil, bolock.NewNotFoundError(class, id)
	}
	row, err := decode(b)
	if err != nil {
		return nil, err
	}
	if columns == nil {
		return row, nil
	}
	out := make(bolock.Row, len(columns))
	for _, c := range columns {
		out[c] = row[c]
	}
	return out, nil
}

// WriteFields implements bolock.PersistenceWriter by merging fields into
// the stored row.
func (s *Store) WriteFields(_ context.Context, class string, id bolock.Identity, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{class, id.String()}
	b, ok := s.rows[k]
	if !ok {
		return bolock.NewNotFoundError(class, id)
	}
	row, err := decode(b)
	if err != nil {
		return err
	}
	for c, v := range fields {
		row[c] = v
	}
	if b, err = encode(row); err != nil {
		return err
	}
	s.rows[k] = b
	s.writes++
	return nil
}

func encode(row bolock.Row) ([]byte, error) {
	b, err := msgpack.Marshal(map[string]any(row))
	if err != nil {
		return nil, fmt.Errorf("memstore: encode row: %w", err)
	}
	return b, nil
}

func decode(b []byte) (bolock.Row, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("memstore: decode row: %w", err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return bolock.Row(m), nil
}

var (
	_ bolock.RecordFetcher     = (*Store)(nil)
	_ bolock.PersistenceWriter = (*Store)(nil)
)
