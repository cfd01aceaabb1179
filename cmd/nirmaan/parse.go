package main

import (
	"fmt"
	"strings"

	"nirmaan/internal/core"
	"nirmaan/internal/ledger"
)

// choose matches value against known, ignoring case. A value that is a
// unique substring of one choice also matches, so "salik" finds
// "Dr. Salik".
func choose[T ~string](what, value string, known []T) (T, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	var partial []T
	for _, k := range known {
		kl := strings.ToLower(string(k))
		if kl == v {
			return k, nil
		}
		if v != "" && strings.Contains(kl, v) {
			partial = append(partial, k)
		}
	}
	if len(partial) == 1 {
		return partial[0], nil
	}
	names := make([]string, len(known))
	for i, k := range known {
		names[i] = string(k)
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q (one of: %s)", what, value, strings.Join(names, ", "))
}

// dateOrToday parses s, defaulting to the current day when blank.
func dateOrToday(s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return core.Today(), nil
	}
	return core.ParseDate(s)
}

// findLabour resolves ref as a labour id or, failing that, a name.
func findLabour(snap ledger.Snapshot, ref string) (core.Labour, error) {
	ref = strings.TrimSpace(ref)
	if l, ok := snap.Labour(ref); ok {
		return l, nil
	}
	var found []core.Labour
	for _, l := range snap.Labours {
		if strings.EqualFold(l.Name, ref) {
			found = append(found, l)
		}
	}
	switch len(found) {
	case 0:
		return core.Labour{}, fmt.Errorf("%w: labour %q", ledger.ErrNotFound, ref)
	case 1:
		return found[0], nil
	}
	return core.Labour{}, fmt.Errorf("%d labours are named %q, use the id", len(found), ref)
}
