// Package ledger is the on-device source of truth for the construction
// ledger. Every mutation is applied in memory, persisted to the KV store
// and announced to subscribers before the mutating call returns.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"nirmaan/internal/core"
	"nirmaan/internal/log"
	"nirmaan/internal/storage"
)

// Storage keys. They match the names earlier releases wrote so an
// existing device keeps its data.
const (
	KeyIncomes    = "ss_incomes"
	KeyExpenses   = "ss_expenses"
	KeyLabours    = "ss_labours"
	KeyAttendance = "ss_attendance"
	KeyPayments   = "ss_payments"
	KeySettings   = "ss_settings"
	KeyAuth       = "ss_auth"
	KeyLastSync   = "ss_lastSyncTime"
	KeyLastPush   = "ss_lastPushTime"
	KeyTombstones = "ss_tombstones"
)

// Collection names as announced in Change and used for tombstones.
const (
	NameIncomes    = "incomes"
	NameExpenses   = "expenses"
	NameLabours    = "labours"
	NameAttendance = "attendance"
	NamePayments   = "payments"
	NameSettings   = "settings"
	NameAuth       = "auth"
	NameSync       = "sync"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrDuplicateID = errors.New("duplicate record id")
)

// Origin tells subscribers whether a change came from this device or
// from a pull.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
	// OriginReset marks the wipe performed by Reset. It is not pushed.
	OriginReset
)

func (o Origin) String() string {
	switch o {
	case OriginRemote:
		return "remote"
	case OriginReset:
		return "reset"
	}
	return "local"
}

// Change is delivered to subscribers after each committed mutation.
type Change struct {
	Collection string
	Origin     Origin
}

// Tombstone remembers a locally deleted record until a push has removed
// it from the remote.
type Tombstone struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	DeletedAt  time.Time `json:"deletedAt"`
}

// Store holds the ledger state.
type Store struct {
	mu    sync.RWMutex
	kv    storage.KV
	state Snapshot
	// seen holds the bytes last read from or written to each key.
	seen map[string][]byte
	now  func() time.Time
	log  *log.Logger

	subsMu  sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

type Option func(*Store)

// WithClock overrides time.Now for stamping records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.log = l.WithComponent(log.ComponentLedger) }
}

// New creates a store with default contents. Call Initialize to load
// what the device has persisted.
func New(kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:    kv,
		state: emptySnapshot(),
		seen:  make(map[string][]byte),
		now:   time.Now,
		log:   log.Default(log.ComponentLedger),
		subs:  make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open is New followed by Initialize.
func Open(ctx context.Context, kv storage.KV, opts ...Option) *Store {
	s := New(kv, opts...)
	s.Initialize(ctx)
	return s
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Incomes:    []core.Income{},
		Expenses:   []core.Expense{},
		Labours:    []core.Labour{},
		Attendance: []core.Attendance{},
		Payments:   []core.LabourPayment{},
		Settings:   core.DefaultSettings(),
		Tombstones: []Tombstone{},
	}
}

// Initialize loads every collection from the KV store. Missing or
// unreadable entries fall back to defaults; Initialize never fails.
func (s *Store) Initialize(ctx context.Context) {
	st := emptySnapshot()
	seen := make(map[string][]byte, len(allKeys))
	for _, key := range allKeys {
		raw, ok := s.read(ctx, key)
		if !ok {
			continue
		}
		if raw != nil {
			seen[key] = raw
		}
		s.install(ctx, &st, key, raw)
	}

	s.mu.Lock()
	s.state = st
	s.seen = seen
	s.mu.Unlock()
}

// Refresh folds in keys another process sharing the KV store has
// rewritten since this store last read or wrote them, and announces the
// collections that moved. It reports whether anything changed.
func (s *Store) Refresh(ctx context.Context) bool {
	changes := s.lock(ctx)
	s.mu.Unlock()
	s.notify(changes...)
	return len(changes) > 0
}

// lock takes the write lock after folding in outside writes. The
// returned changes must be passed to notify once the lock is released.
func (s *Store) lock(ctx context.Context) []Change {
	s.mu.Lock()
	var changes []Change
	announced := make(map[string]bool)
	for _, key := range allKeys {
		raw, ok := s.read(ctx, key)
		if !ok || bytes.Equal(raw, s.seen[key]) {
			continue
		}
		s.install(ctx, &s.state, key, raw)
		origin := OriginLocal
		if raw == nil {
			delete(s.seen, key)
			origin = OriginReset
		} else {
			s.seen[key] = raw
		}
		name := keyNames[key]
		if !announced[name] {
			announced[name] = true
			changes = append(changes, Change{Collection: name, Origin: origin})
		}
	}
	if len(changes) > 0 {
		s.log.DebugContext(ctx, "Picked up outside ledger writes", "collections", len(changes))
	}
	return changes
}

// read returns the stored bytes for key, nil when the key is absent.
// ok is false when the KV store could not be read.
func (s *Store) read(ctx context.Context, key string) (raw []byte, ok bool) {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.WarnContext(ctx, "Failed to read stored value",
			"key", key, log.FieldOperation, log.OpLoad, log.FieldError, err.Error())
		return nil, false
	}
	if !found || len(raw) == 0 {
		return nil, true
	}
	return raw, true
}

// install decodes raw into the field of st that key addresses. Absent or
// corrupt values install the default.
func (s *Store) install(ctx context.Context, st *Snapshot, key string, raw []byte) {
	def := emptySnapshot()
	switch key {
	case KeyIncomes:
		st.Incomes = decode(ctx, s, key, raw, def.Incomes)
	case KeyExpenses:
		st.Expenses = decode(ctx, s, key, raw, def.Expenses)
	case KeyLabours:
		st.Labours = decode(ctx, s, key, raw, def.Labours)
	case KeyAttendance:
		st.Attendance = decode(ctx, s, key, raw, def.Attendance)
	case KeyPayments:
		st.Payments = decode(ctx, s, key, raw, def.Payments)
	case KeyAuth:
		st.Auth = decode(ctx, s, key, raw, def.Auth)
	case KeyTombstones:
		st.Tombstones = decode(ctx, s, key, raw, def.Tombstones)
	case KeySettings:
		st.Settings = decode(ctx, s, key, raw, def.Settings).Normalized()
	case KeyLastSync:
		st.LastSyncTime = decodeTime(ctx, s, key, raw)
	case KeyLastPush:
		st.LastPushTime = decodeTime(ctx, s, key, raw)
	}
}

func decodeTime(ctx context.Context, s *Store, key string, raw []byte) time.Time {
	v := decode(ctx, s, key, raw, "")
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		s.log.WarnContext(ctx, "Ignoring unreadable timestamp", "key", key, log.FieldError, err.Error())
		return time.Time{}
	}
	return t
}

func decode[T any](ctx context.Context, s *Store, key string, raw []byte, def T) T {
	if len(raw) == 0 {
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.log.WarnContext(ctx, "Stored value is corrupt, using default",
			"key", key, log.FieldOperation, log.OpLoad, log.FieldError, err.Error())
		return def
	}
	return v
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Store) Settings() core.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Settings.Clone()
}

func (s *Store) Auth() core.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Auth
}

func (s *Store) LastSyncTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastSyncTime
}

// Subscribe registers fn for every committed change. fn runs on the
// mutating goroutine after the store lock is released, so it may read
// from the store but should not block.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Store) notify(changes ...Change) {
	s.subsMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// commit persists the given keys of the current state. Persistence
// failures are logged and swallowed: the in-memory state stays
// authoritative for the rest of the session. Callers hold s.mu.
func (s *Store) commit(ctx context.Context, keys ...string) {
	entries := make(map[string][]byte, len(keys))
	for _, key := range keys {
		raw, err := s.encode(key)
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to encode ledger state", "key", key, log.FieldError, err.Error())
			continue
		}
		entries[key] = raw
	}
	if err := s.kv.PutMany(ctx, entries); err != nil {
		s.log.ErrorContext(ctx, "Failed to persist ledger state",
			log.FieldOperation, log.OpPersist,
			log.FieldErrorType, log.ErrorTypeDatabase,
			log.FieldError, err.Error())
		return
	}
	for key, raw := range entries {
		s.seen[key] = raw
	}
}

func (s *Store) encode(key string) ([]byte, error) {
	st := &s.state
	switch key {
	case KeyIncomes:
		return json.Marshal(st.Incomes)
	case KeyExpenses:
		return json.Marshal(st.Expenses)
	case KeyLabours:
		return json.Marshal(st.Labours)
	case KeyAttendance:
		return json.Marshal(st.Attendance)
	case KeyPayments:
		return json.Marshal(st.Payments)
	case KeySettings:
		return json.Marshal(st.Settings)
	case KeyAuth:
		return json.Marshal(st.Auth)
	case KeyTombstones:
		return json.Marshal(st.Tombstones)
	case KeyLastSync:
		return encodeTime(st.LastSyncTime)
	case KeyLastPush:
		return encodeTime(st.LastPushTime)
	}
	return nil, fmt.Errorf("unknown key %q", key)
}

func encodeTime(t time.Time) ([]byte, error) {
	if t.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

var allKeys = []string{
	KeyIncomes, KeyExpenses, KeyLabours, KeyAttendance, KeyPayments,
	KeySettings, KeyAuth, KeyLastSync, KeyLastPush, KeyTombstones,
}

// keyNames maps each key to the collection announced when it changes.
var keyNames = map[string]string{
	KeyIncomes:    NameIncomes,
	KeyExpenses:   NameExpenses,
	KeyLabours:    NameLabours,
	KeyAttendance: NameAttendance,
	KeyPayments:   NamePayments,
	KeySettings:   NameSettings,
	KeyAuth:       NameAuth,
	KeyLastSync:   NameSync,
	KeyLastPush:   NameSync,
	KeyTombstones: NameSync,
}

// Reset discards every ledger collection, settings, auth state and sync
// bookkeeping. Stored passwords and manual remote configuration are kept.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.state = emptySnapshot()
	s.seen = make(map[string][]byte)
	if err := s.kv.Delete(ctx, allKeys...); err != nil {
		s.log.ErrorContext(ctx, "Failed to clear ledger state", log.FieldError, err.Error())
	}
	s.mu.Unlock()

	changes := make([]Change, 0, 7)
	for _, name := range []string{NameIncomes, NameExpenses, NameLabours, NameAttendance, NamePayments, NameSettings, NameAuth} {
		changes = append(changes, Change{Collection: name, Origin: OriginReset})
	}
	s.notify(changes...)
}
