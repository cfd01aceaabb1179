package sheets

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"nirmaan/internal/remote"
)

type rowUpdate struct {
	row    int // 1-based sheet row
	values []interface{}
}

// rowsFromValues turns a values matrix (header row first) into rows.
// Rows without an id are skipped.
func rowsFromValues(values [][]interface{}) []remote.Row {
	if len(values) == 0 {
		return nil
	}
	header := toStrings(values[0])
	idCol := indexOf(header, remote.ColID)
	if idCol < 0 {
		return nil
	}
	out := make([]remote.Row, 0, len(values)-1)
	for _, raw := range values[1:] {
		if strings.TrimSpace(cell(raw, idCol)) == "" {
			continue
		}
		row := make(remote.Row, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(raw) {
				row[col] = raw[i]
			} else {
				row[col] = ""
			}
		}
		out = append(out, row)
	}
	return out
}

// planUpsert computes the writes that bring the sheet in line with rows.
// The header is extended with any missing columns; existing rows are
// rewritten in place and new ones go below the last used row.
func planUpsert(table string, values [][]interface{}, rows []remote.Row) []rowUpdate {
	var header []string
	if len(values) > 0 {
		header = toStrings(values[0])
	}
	headerChanged := false
	for _, col := range columnsFor(table, rows) {
		if indexOf(header, col) < 0 {
			header = append(header, col)
			headerChanged = true
		}
	}

	idCol := indexOf(header, remote.ColID)
	existing := make(map[string]int)
	for i := 1; i < len(values); i++ {
		if id := strings.TrimSpace(cell(values[i], idCol)); id != "" {
			existing[id] = i + 1
		}
	}

	var updates []rowUpdate
	if headerChanged {
		hv := make([]interface{}, len(header))
		for i, h := range header {
			hv[i] = h
		}
		updates = append(updates, rowUpdate{row: 1, values: hv})
	}
	next := len(values) + 1
	if next < 2 {
		next = 2
	}
	for _, r := range rows {
		vals := make([]interface{}, len(header))
		for i, col := range header {
			v, ok := r[col]
			if !ok || v == nil {
				vals[i] = ""
				continue
			}
			vals[i] = v
		}
		target, ok := existing[r.ID()]
		if !ok {
			target = next
			existing[r.ID()] = target
			next++
		}
		updates = append(updates, rowUpdate{row: target, values: vals})
	}
	return updates
}

// columnsFor is the table's canonical columns followed by any extra
// columns the rows carry, in sorted order.
func columnsFor(table string, rows []remote.Row) []string {
	cols := remote.Columns(table)
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c] = true
	}
	var extra []string
	for _, r := range rows {
		for k := range r {
			if !known[k] {
				known[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

// planDelete returns the 0-based sheet row indexes holding ids, highest
// first so earlier deletions do not shift later ones.
func planDelete(values [][]interface{}, ids []string) []int {
	if len(values) == 0 {
		return nil
	}
	idCol := indexOf(toStrings(values[0]), remote.ColID)
	if idCol < 0 {
		return nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []int
	for i := len(values) - 1; i >= 1; i-- {
		if want[strings.TrimSpace(cell(values[i], idCol))] {
			out = append(out, i)
		}
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func cell(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	switch v := row[idx].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}
