package services

import (
	"errors"
	"fmt"
	"time"
)

// Direction of a sync run.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// SkipReason says why a run did nothing. Empty means it ran.
type SkipReason string

const (
	SkipUnconfigured SkipReason = "unconfigured"
	SkipOffline      SkipReason = "offline"
)

// TableResult is the outcome for one remote table.
type TableResult struct {
	Table   string `json:"table"`
	Rows    int    `json:"rows"`
	Deleted int    `json:"deleted,omitempty"`
	Skipped int    `json:"skipped,omitempty"`
	Err     error  `json:"-"`
}

// Report describes one push or pull. Table failures are reported here
// and never abort the other tables.
type Report struct {
	Direction  Direction     `json:"direction"`
	Skipped    SkipReason    `json:"skipped,omitempty"`
	Tables     []TableResult `json:"tables,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// OK reports whether the run happened and every table succeeded.
func (r Report) OK() bool {
	return r.Skipped == "" && r.Err() == nil
}

// Failed lists the tables that errored.
func (r Report) Failed() []string {
	var out []string
	for _, t := range r.Tables {
		if t.Err != nil {
			out = append(out, t.Table)
		}
	}
	return out
}

// Err joins every table error, nil when all succeeded.
func (r Report) Err() error {
	var errs []error
	for _, t := range r.Tables {
		if t.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Table, t.Err))
		}
	}
	return errors.Join(errs...)
}

// SkippedRows counts fetched rows that were dropped as unreadable.
func (r Report) SkippedRows() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Skipped
	}
	return n
}

// Synced lists the tables that succeeded.
func (r Report) Synced() []string {
	var out []string
	for _, t := range r.Tables {
		if t.Err == nil {
			out = append(out, t.Table)
		}
	}
	return out
}
