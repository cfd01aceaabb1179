package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"nirmaan/internal/core"
)

type validatable interface{ Validate() error }

// add prepends r, matching the newest-first order entry screens show.
func add[T interface {
	core.Record[T]
	validatable
}](ctx context.Context, s *Store, c Collection[T], r T) (T, error) {
	r = r.WithID(core.NewID()).Touched(s.now())
	if err := r.Validate(); err != nil {
		return r, err
	}
	err := Mutate(ctx, s, c, func(list []T) []T {
		return append([]T{r}, list...)
	})
	return r, err
}

func replace[T interface {
	core.Record[T]
	validatable
}](ctx context.Context, s *Store, c Collection[T], r T) (T, error) {
	if r.RecordID() == "" {
		return r, fmt.Errorf("%s: %w", c.name, ErrNotFound)
	}
	r = r.Touched(s.now())
	if err := r.Validate(); err != nil {
		return r, err
	}
	found := false
	err := Mutate(ctx, s, c, func(list []T) []T {
		for i := range list {
			if list[i].RecordID() == r.RecordID() {
				list[i] = r
				found = true
			}
		}
		return list
	})
	if err == nil && !found {
		err = fmt.Errorf("%s %s: %w", c.name, r.RecordID(), ErrNotFound)
	}
	return r, err
}

func remove[T core.Record[T]](ctx context.Context, s *Store, c Collection[T], id string) error {
	found := false
	err := Mutate(ctx, s, c, func(list []T) []T {
		out := list[:0]
		for _, r := range list {
			if r.RecordID() == id {
				found = true
				continue
			}
			out = append(out, r)
		}
		return out
	})
	if err == nil && !found {
		err = fmt.Errorf("%s %s: %w", c.name, id, ErrNotFound)
	}
	return err
}

func (s *Store) AddIncome(ctx context.Context, in core.Income) (core.Income, error) {
	return add(ctx, s, Incomes, in)
}

func (s *Store) UpdateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	return replace(ctx, s, Incomes, in)
}

func (s *Store) DeleteIncome(ctx context.Context, id string) error {
	return remove(ctx, s, Incomes, id)
}

// AddExpense applies the entry-form defaults before storing.
func (s *Store) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	return add(ctx, s, Expenses, e.Normalize())
}

func (s *Store) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	return replace(ctx, s, Expenses, e.Normalize())
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	return remove(ctx, s, Expenses, id)
}

// AddLabour appends to the roster; the roster keeps insertion order.
func (s *Store) AddLabour(ctx context.Context, l core.Labour) (core.Labour, error) {
	l = l.WithID(core.NewID()).Touched(s.now())
	if err := l.Validate(); err != nil {
		return l, err
	}
	err := Mutate(ctx, s, Labours, func(list []core.Labour) []core.Labour {
		return append(list, l)
	})
	return l, err
}

func (s *Store) UpdateLabour(ctx context.Context, l core.Labour) (core.Labour, error) {
	return replace(ctx, s, Labours, l)
}

// DeleteLabour removes the labour and every attendance record that
// references it. Payments are kept and report under "Unknown".
func (s *Store) DeleteLabour(ctx context.Context, id string) error {
	return remove(ctx, s, Labours, id)
}

func (s *Store) AddPayment(ctx context.Context, p core.LabourPayment) (core.LabourPayment, error) {
	return add(ctx, s, Payments, p)
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	return remove(ctx, s, Payments, id)
}

// ToggleAttendance marks labourID as status on date.
//
// With no record for the day a new one is created with zero overtime and
// the labour's current daily wage as its wage at time.
// Marking the status the day already has clears the record. Any other
// status replaces the record's status, keeping its id and overtime.
// The returned bool reports whether a record exists afterwards.
func (s *Store) ToggleAttendance(ctx context.Context, labourID string, date core.Date, status core.AttendanceStatus) (core.Attendance, bool, error) {
	if !status.Valid() {
		return core.Attendance{}, false, fmt.Errorf("%w: %q", core.ErrInvalidStatus, status)
	}
	if err := date.Validate(); err != nil {
		return core.Attendance{}, false, err
	}
	s.Refresh(ctx)
	lab, ok := s.labour(labourID)
	if !ok {
		return core.Attendance{}, false, fmt.Errorf("labour %s: %w", labourID, ErrNotFound)
	}

	var result core.Attendance
	exists := false
	now := s.now()
	err := Mutate(ctx, s, attendance, func(list []core.Attendance) []core.Attendance {
		for i, a := range list {
			if a.LabourID != labourID || !a.Date.Equal(date.Time) {
				continue
			}
			if a.Status == status {
				return append(list[:i], list[i+1:]...)
			}
			a.Status = status
			result, exists = a.Touched(now), true
			list[i] = result
			return list
		}
		result = core.Attendance{
			ID:         core.NewID(),
			Date:       date,
			LabourID:   labourID,
			Status:     status,
			WageAtTime: lab.DailyWage,
		}.Touched(now)
		exists = true
		return append(list, result)
	})
	if err != nil {
		return core.Attendance{}, false, err
	}
	return result, exists, nil
}

// SetOvertime records overtime hours on an existing attendance record.
func (s *Store) SetOvertime(ctx context.Context, labourID string, date core.Date, hours float64) (core.Attendance, error) {
	if hours < 0 || hours > 24 {
		return core.Attendance{}, core.ErrInvalidHours
	}
	var result core.Attendance
	found := false
	now := s.now()
	err := Mutate(ctx, s, attendance, func(list []core.Attendance) []core.Attendance {
		for i, a := range list {
			if a.LabourID == labourID && a.Date.Equal(date.Time) {
				a.OvertimeHours = hours
				result = a.Touched(now)
				list[i] = result
				found = true
			}
		}
		return list
	})
	if err == nil && !found {
		err = fmt.Errorf("attendance for %s on %s: %w", labourID, date, ErrNotFound)
	}
	return result, err
}

// UpdateSettings applies fn to a copy of the settings. The estimated
// budget is recomputed from the category budgets afterwards.
func (s *Store) UpdateSettings(ctx context.Context, fn func(*core.Settings)) (core.Settings, error) {
	pending := s.lock(ctx)
	next := s.state.Settings.Clone()
	fn(&next)
	for c, v := range next.CategoryBudgets {
		var err error
		switch {
		case !c.Valid():
			err = fmt.Errorf("%w: %q", core.ErrInvalidCategory, c)
		case v.IsNegative():
			err = fmt.Errorf("%s: %w", c, core.ErrNegativeBudget)
		}
		if err != nil {
			s.mu.Unlock()
			s.notify(pending...)
			return core.Settings{}, err
		}
	}
	next = next.Normalized()
	next.UpdatedAt = s.now().UTC()
	s.state.Settings = next
	s.commit(ctx, KeySettings)
	s.mu.Unlock()

	s.notify(append(pending, Change{Collection: NameSettings, Origin: OriginLocal})...)
	return next.Clone(), nil
}

// SetCategoryBudget sets one category's budget.
func (s *Store) SetCategoryBudget(ctx context.Context, c core.Category, amount decimal.Decimal) (core.Settings, error) {
	if !c.Valid() {
		return core.Settings{}, fmt.Errorf("%w: %q", core.ErrInvalidCategory, c)
	}
	return s.UpdateSettings(ctx, func(st *core.Settings) {
		st.CategoryBudgets[c] = amount.Round(2)
	})
}

// SetAuth stores the session state. Auth never syncs.
func (s *Store) SetAuth(ctx context.Context, a core.AuthState) {
	pending := s.lock(ctx)
	s.state.Auth = a
	s.commit(ctx, KeyAuth)
	s.mu.Unlock()
	s.notify(append(pending, Change{Collection: NameAuth, Origin: OriginLocal})...)
}

// SetLastSyncTime records the completion time of a fully successful sync.
func (s *Store) SetLastSyncTime(ctx context.Context, t time.Time) {
	pending := s.lock(ctx)
	s.state.LastSyncTime = t.UTC()
	s.commit(ctx, KeyLastSync)
	s.mu.Unlock()
	s.notify(append(pending, Change{Collection: NameSync, Origin: OriginRemote})...)
}

// SetLastPushTime records a fully successful push that read the ledger
// at t. It also counts as the last sync.
func (s *Store) SetLastPushTime(ctx context.Context, t time.Time) {
	pending := s.lock(ctx)
	s.state.LastPushTime = t.UTC()
	s.state.LastSyncTime = t.UTC()
	s.commit(ctx, KeyLastPush, KeyLastSync)
	s.mu.Unlock()
	s.notify(append(pending, Change{Collection: NameSync, Origin: OriginRemote})...)
}

func (s *Store) labour(id string) (core.Labour, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.state.Labours {
		if l.ID == id {
			return l, true
		}
	}
	return core.Labour{}, false
}
