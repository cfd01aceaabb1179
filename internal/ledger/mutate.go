package ledger

import (
	"context"
	"fmt"
	"time"

	"nirmaan/internal/core"
)

// Collection addresses one record list inside the store.
type Collection[T core.Record[T]] struct {
	name string
	key  string
	slot func(*Snapshot) *[]T
	// onRemove cascades a removal into other collections. It runs under
	// the store lock and returns the collection it changed, if any.
	onRemove func(s *Store, removed map[string]bool, now time.Time) (changed string)
}

func (c Collection[T]) Name() string { return c.name }

var (
	Incomes = Collection[core.Income]{
		name: NameIncomes, key: KeyIncomes,
		slot: func(s *Snapshot) *[]core.Income { return &s.Incomes },
	}
	Expenses = Collection[core.Expense]{
		name: NameExpenses, key: KeyExpenses,
		slot: func(s *Snapshot) *[]core.Expense { return &s.Expenses },
	}
	Labours = Collection[core.Labour]{
		name: NameLabours, key: KeyLabours,
		slot:     func(s *Snapshot) *[]core.Labour { return &s.Labours },
		onRemove: dropAttendanceOf,
	}
	Payments = Collection[core.LabourPayment]{
		name: NamePayments, key: KeyPayments,
		slot: func(s *Snapshot) *[]core.LabourPayment { return &s.Payments },
	}
	// Attendance is only written through ToggleAttendance and SetOvertime,
	// which keep one record per labour per day.
	attendance = Collection[core.Attendance]{
		name: NameAttendance, key: KeyAttendance,
		slot: func(s *Snapshot) *[]core.Attendance { return &s.Attendance },
	}
)

var collectionKeys = map[string]string{
	NameIncomes:    KeyIncomes,
	NameExpenses:   KeyExpenses,
	NameLabours:    KeyLabours,
	NameAttendance: KeyAttendance,
	NamePayments:   KeyPayments,
}

// Mutate replaces a collection with updater(current). updater receives a
// copy and must be pure.
//
// Records without an id get one; new records without UpdatedAt are
// stamped with the current time. Existing records keep their stamp, even
// a zero one installed by a pull, so callers that change a record must
// re-stamp it themselves (the typed helpers in this package do). Records
// whose ids are new are validated; any duplicate id or invalid record
// rejects the whole mutation. Ids that disappear are tombstoned so the
// next push deletes them remotely.
func Mutate[T core.Record[T]](ctx context.Context, s *Store, c Collection[T], updater func([]T) []T) error {
	pending := s.lock(ctx)
	now := s.now()
	slot := c.slot(&s.state)
	prev := *slot
	next := updater(cloneSlice(prev))
	if next == nil {
		next = []T{}
	}

	prevIDs := make(map[string]bool, len(prev))
	for _, r := range prev {
		prevIDs[r.RecordID()] = true
	}
	seen := make(map[string]bool, len(next))
	for i, r := range next {
		if r.RecordID() == "" {
			r = r.WithID(core.NewID())
		}
		id := r.RecordID()
		if !prevIDs[id] && r.Modified().IsZero() {
			r = r.Touched(now)
		}
		if seen[id] {
			s.mu.Unlock()
			s.notify(pending...)
			return fmt.Errorf("%w: %s %s", ErrDuplicateID, c.name, id)
		}
		seen[id] = true
		if !prevIDs[id] {
			if err := core.Validate(r); err != nil {
				s.mu.Unlock()
				s.notify(pending...)
				return fmt.Errorf("%s: %w", c.name, err)
			}
		}
		next[i] = r
	}

	removed := make(map[string]bool)
	for id := range prevIDs {
		if !seen[id] {
			removed[id] = true
		}
	}

	*slot = next
	keys := []string{c.key}
	changes := []Change{{Collection: c.name, Origin: OriginLocal}}
	if s.untombstone(c.name, seen) || len(removed) > 0 {
		keys = append(keys, KeyTombstones)
	}
	if len(removed) > 0 {
		s.tombstone(c.name, removed, now)
		if c.onRemove != nil {
			if changed := c.onRemove(s, removed, now); changed != "" {
				keys = append(keys, collectionKeys[changed])
				changes = append(changes, Change{Collection: changed, Origin: OriginLocal})
			}
		}
	}
	s.commit(ctx, keys...)
	s.mu.Unlock()

	s.notify(append(pending, changes...)...)
	return nil
}

func (s *Store) tombstone(collection string, ids map[string]bool, now time.Time) {
	for id := range ids {
		s.state.Tombstones = append(s.state.Tombstones, Tombstone{
			Collection: collection,
			ID:         id,
			DeletedAt:  now.UTC(),
		})
	}
}

// untombstone drops tombstones for ids that are present again.
func (s *Store) untombstone(collection string, present map[string]bool) bool {
	kept := s.state.Tombstones[:0]
	changed := false
	for _, t := range s.state.Tombstones {
		if t.Collection == collection && present[t.ID] {
			changed = true
			continue
		}
		kept = append(kept, t)
	}
	s.state.Tombstones = kept
	return changed
}

func dropAttendanceOf(s *Store, labourIDs map[string]bool, now time.Time) string {
	kept := make([]core.Attendance, 0, len(s.state.Attendance))
	dropped := make(map[string]bool)
	for _, a := range s.state.Attendance {
		if labourIDs[a.LabourID] {
			dropped[a.ID] = true
			continue
		}
		kept = append(kept, a)
	}
	if len(dropped) == 0 {
		return ""
	}
	s.state.Attendance = kept
	s.tombstone(NameAttendance, dropped, now)
	return NameAttendance
}

// ClearTombstones forgets tombstones the remote has acknowledged.
func (s *Store) ClearTombstones(ctx context.Context, collection string, ids []string) {
	if len(ids) == 0 {
		return
	}
	done := make(map[string]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	pending := s.lock(ctx)
	if s.untombstone(collection, done) {
		s.commit(ctx, KeyTombstones)
	}
	s.mu.Unlock()
	s.notify(pending...)
}
