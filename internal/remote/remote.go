// Package remote describes the shared tabular store devices sync with.
package remote

import (
	"context"
	"errors"
)

// Remote table names.
const (
	TableLabours    = "labours"
	TableIncomes    = "incomes"
	TableExpenses   = "expenses"
	TableAttendance = "attendance"
	TablePayments   = "labour_payments"
	TableSettings   = "settings"
)

// AllTables lists every synced table.
var AllTables = []string{TableLabours, TableIncomes, TableExpenses, TableAttendance, TablePayments, TableSettings}

// SettingsRowID is the id of the single settings row.
const SettingsRowID = "global"

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrNotConfigured = errors.New("remote not configured")
)

// KnownTable reports whether name is a synced table.
func KnownTable(name string) bool {
	for _, t := range AllTables {
		if t == name {
			return true
		}
	}
	return false
}

// Row is one remote record keyed by snake_case column name.
type Row map[string]any

// ID returns the row's id column as a string.
func (r Row) ID() string {
	return asString(r[ColID])
}

// TableStore is the capability set the sync engine needs from a remote.
// Upsert is keyed on the id column; Delete of a missing id is not an
// error.
type TableStore interface {
	Upsert(ctx context.Context, table string, rows []Row) error
	Delete(ctx context.Context, table string, ids []string) error
	SelectAll(ctx context.Context, table string) ([]Row, error)
}

// Endpoint is a possibly-absent remote. Tables reports false when no
// remote is configured, in which case sync is a no-op.
type Endpoint interface {
	Tables() (TableStore, bool)
	Describe() string
	Close() error
}

type unconfigured struct{}

// Unconfigured is the endpoint used when no URL and key are set.
func Unconfigured() Endpoint { return unconfigured{} }

func (unconfigured) Tables() (TableStore, bool) { return nil, false }
func (unconfigured) Describe() string           { return "none" }
func (unconfigured) Close() error               { return nil }

type configured struct {
	store  TableStore
	name   string
	closer func() error
}

// Configured wraps a live table store. closer may be nil.
func Configured(name string, store TableStore, closer func() error) Endpoint {
	return &configured{store: store, name: name, closer: closer}
}

func (c *configured) Tables() (TableStore, bool) { return c.store, true }
func (c *configured) Describe() string           { return c.name }

func (c *configured) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
