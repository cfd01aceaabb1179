package ledger

import (
	"slices"
	"time"

	"nirmaan/internal/core"
)

// Snapshot is a point-in-time copy of the whole ledger. Mutating a
// snapshot never affects the store.
type Snapshot struct {
	Incomes      []core.Income
	Expenses     []core.Expense
	Labours      []core.Labour
	Attendance   []core.Attendance
	Payments     []core.LabourPayment
	Settings     core.Settings
	Auth         core.AuthState
	LastSyncTime time.Time
	// LastPushTime is when the last complete push read the ledger. Every
	// record modified before it was on the remote at that moment.
	LastPushTime time.Time
	Tombstones   []Tombstone
}

func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Incomes:      cloneSlice(s.Incomes),
		Expenses:     cloneSlice(s.Expenses),
		Labours:      cloneSlice(s.Labours),
		Attendance:   cloneSlice(s.Attendance),
		Payments:     cloneSlice(s.Payments),
		Settings:     s.Settings.Clone(),
		Auth:         s.Auth,
		LastSyncTime: s.LastSyncTime,
		LastPushTime: s.LastPushTime,
		Tombstones:   cloneSlice(s.Tombstones),
	}
}

// Records are plain values, so a shallow slice copy is a deep copy.
func cloneSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return slices.Clone(in)
}

// Labour looks up a labour by id.
func (s Snapshot) Labour(id string) (core.Labour, bool) {
	for _, l := range s.Labours {
		if l.ID == id {
			return l, true
		}
	}
	return core.Labour{}, false
}

// LabourName returns the labour's name, or "Unknown" for a dangling id.
func (s Snapshot) LabourName(id string) string {
	if l, ok := s.Labour(id); ok {
		return l.Name
	}
	return UnknownLabour
}

const UnknownLabour = "Unknown"

// AttendanceFor returns the record for labourID on date, if any.
func (s Snapshot) AttendanceFor(labourID string, date core.Date) (core.Attendance, bool) {
	for _, a := range s.Attendance {
		if a.LabourID == labourID && a.Date.Equal(date.Time) {
			return a, true
		}
	}
	return core.Attendance{}, false
}

// AttendanceOn returns every record for date.
func (s Snapshot) AttendanceOn(date core.Date) []core.Attendance {
	var out []core.Attendance
	for _, a := range s.Attendance {
		if a.Date.Equal(date.Time) {
			out = append(out, a)
		}
	}
	return out
}

// TombstonesFor returns the ids deleted locally from collection.
func (s Snapshot) TombstonesFor(collection string) []string {
	var ids []string
	for _, t := range s.Tombstones {
		if t.Collection == collection {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
