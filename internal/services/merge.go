package services

import (
	"fmt"
	"time"

	"nirmaan/internal/core"
	"nirmaan/internal/ledger"
)

// Policy decides how pulled rows combine with the local ledger.
type Policy string

const (
	// PolicyLWW keeps the newer side of each record by UpdatedAt.
	PolicyLWW Policy = "lww"
	// PolicyOverwrite replaces each local collection with the remote table.
	PolicyOverwrite Policy = "overwrite"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyLWW, PolicyOverwrite:
		return p, nil
	case "":
		return PolicyLWW, nil
	}
	return "", fmt.Errorf("unknown pull policy %q", s)
}

// mergeState is what a merge needs to know about the local side.
type mergeState struct {
	tombstoned map[string]bool
	lastPush   time.Time
}

func newMergeState(cur ledger.Snapshot, collection string) mergeState {
	ids := cur.TombstonesFor(collection)
	m := mergeState{tombstoned: make(map[string]bool, len(ids)), lastPush: cur.LastPushTime}
	for _, id := range ids {
		m.tombstoned[id] = true
	}
	return m
}

// unpushed reports whether a local record may be missing remotely
// because this device has not pushed it yet.
func (m mergeState) unpushed(modified time.Time) bool {
	return m.lastPush.IsZero() || modified.After(m.lastPush)
}

// mergeLWW combines one collection. Remote order is kept; surviving
// local-only records follow in local order.
//
//   - an id deleted here and not yet pushed stays deleted
//   - an id on both sides takes the newer UpdatedAt, remote on a tie
//   - a local-only id survives only while it may still be unpushed
func mergeLWW[T core.Record[T]](local, remote []T, m mergeState) []T {
	byID := make(map[string]T, len(local))
	for _, r := range local {
		byID[r.RecordID()] = r
	}

	out := make([]T, 0, len(remote)+len(local))
	seen := make(map[string]bool, len(remote))
	for _, r := range remote {
		id := r.RecordID()
		if m.tombstoned[id] || seen[id] {
			continue
		}
		seen[id] = true
		if l, ok := byID[id]; ok && l.Modified().After(r.Modified()) {
			out = append(out, l)
			continue
		}
		out = append(out, r)
	}
	for _, l := range local {
		if seen[l.RecordID()] || !m.unpushed(l.Modified()) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func merge[T core.Record[T]](p Policy, local, remote []T, m mergeState) []T {
	if p == PolicyOverwrite {
		if remote == nil {
			return []T{}
		}
		return remote
	}
	return mergeLWW(local, remote, m)
}

// dedupeAttendance keeps one record per labour and day, the most
// recently modified one. Two devices marking the same day offline
// produce two ids for one slot.
func dedupeAttendance(in []core.Attendance) []core.Attendance {
	idx := make(map[string]int, len(in))
	out := make([]core.Attendance, 0, len(in))
	for _, a := range in {
		key := a.Key()
		if i, ok := idx[key]; ok {
			if a.UpdatedAt.After(out[i].UpdatedAt) {
				out[i] = a
			}
			continue
		}
		idx[key] = len(out)
		out = append(out, a)
	}
	return out
}

// mergeSettings picks between local settings and the remote row. A
// local copy that was never edited always loses.
func mergeSettings(p Policy, local, remote core.Settings) core.Settings {
	if p == PolicyOverwrite || local.UpdatedAt.IsZero() || !local.UpdatedAt.After(remote.UpdatedAt) {
		return remote
	}
	return local
}
