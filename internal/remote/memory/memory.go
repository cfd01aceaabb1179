// Package memory is an in-process remote. With a file path it also
// persists its tables as JSON, which lets two local devices share one
// remote without network access.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"nirmaan/internal/remote"
)

type Store struct {
	mu     sync.Mutex
	path   string
	tables map[string][]remote.Row
	fail   map[string]error
	calls  []string
}

var _ remote.TableStore = (*Store)(nil)

func New() *Store {
	return &Store{tables: make(map[string][]remote.Row), fail: make(map[string]error)}
}

// NewFromFile loads tables from path if it exists and writes every
// change back to it.
func NewFromFile(path string) (*Store, error) {
	s := New()
	s.path = path
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &s.tables); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return s, nil
}

// Fail makes every call touching table return err until cleared with nil.
func (s *Store) Fail(table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, table)
		return
	}
	s.fail[table] = err
}

// Calls returns "op:table" for every call so far.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Store) enter(op, table string) error {
	s.calls = append(s.calls, op+":"+table)
	if !remote.KnownTable(table) {
		return fmt.Errorf("%w: %s", remote.ErrUnknownTable, table)
	}
	return s.fail[table]
}

func (s *Store) Upsert(_ context.Context, table string, rows []remote.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("upsert", table); err != nil {
		return err
	}
	existing := s.tables[table]
	index := make(map[string]int, len(existing))
	for i, r := range existing {
		index[r.ID()] = i
	}
	for _, r := range rows {
		cp := copyRow(r)
		if i, ok := index[cp.ID()]; ok {
			existing[i] = cp
			continue
		}
		index[cp.ID()] = len(existing)
		existing = append(existing, cp)
	}
	s.tables[table] = existing
	return s.flush()
}

func (s *Store) Delete(_ context.Context, table string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("delete", table); err != nil {
		return err
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.tables[table][:0]
	for _, r := range s.tables[table] {
		if !drop[r.ID()] {
			kept = append(kept, r)
		}
	}
	s.tables[table] = kept
	return s.flush()
}

func (s *Store) SelectAll(_ context.Context, table string) ([]remote.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("select", table); err != nil {
		return nil, err
	}
	out := make([]remote.Row, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, copyRow(r))
	}
	return out, nil
}

func (s *Store) flush() error {
	if s.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(s.tables, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tables: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}

func copyRow(r remote.Row) remote.Row {
	cp := make(remote.Row, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}
