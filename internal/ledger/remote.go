package ledger

import (
	"context"

	"nirmaan/internal/core"
)

// RemoteUpdate carries the collections a pull decided to install. A nil
// field leaves that collection untouched.
type RemoteUpdate struct {
	Incomes    []core.Income
	Expenses   []core.Expense
	Labours    []core.Labour
	Attendance []core.Attendance
	Payments   []core.LabourPayment
	Settings   *core.Settings
}

// ApplyRemote runs merge against the current state under the store lock
// and installs what it returns. Writes another process made to the KV
// store are folded in first, so merge never sees a stale copy. Installed
// collections are persisted and announced with OriginRemote. No
// tombstones are recorded: records that vanish here were removed
// remotely, not by this device.
func (s *Store) ApplyRemote(ctx context.Context, merge func(current Snapshot) RemoteUpdate) {
	changes := s.lock(ctx)
	u := merge(s.state.Clone())

	var keys []string
	installed := func(name, key string) {
		keys = append(keys, key)
		changes = append(changes, Change{Collection: name, Origin: OriginRemote})
	}
	if u.Incomes != nil {
		s.state.Incomes = u.Incomes
		installed(NameIncomes, KeyIncomes)
	}
	if u.Expenses != nil {
		s.state.Expenses = u.Expenses
		installed(NameExpenses, KeyExpenses)
	}
	if u.Labours != nil {
		s.state.Labours = u.Labours
		installed(NameLabours, KeyLabours)
	}
	if u.Attendance != nil {
		s.state.Attendance = u.Attendance
		installed(NameAttendance, KeyAttendance)
	}
	if u.Payments != nil {
		s.state.Payments = u.Payments
		installed(NamePayments, KeyPayments)
	}
	if u.Settings != nil {
		s.state.Settings = u.Settings.Normalized()
		installed(NameSettings, KeySettings)
	}
	if len(keys) > 0 {
		s.commit(ctx, keys...)
	}
	s.mu.Unlock()

	s.notify(changes...)
}
