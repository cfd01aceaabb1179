package dashboard

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"nirmaan/internal/core"
	"nirmaan/internal/ledger"
)

// EntryKind tags a history or activity entry.
type EntryKind string

const (
	KindIncome     EntryKind = "income"
	KindExpense    EntryKind = "expense"
	KindAttendance EntryKind = "attendance"
)

// HistoryEntry is one income or expense in the merged history.
type HistoryEntry struct {
	Kind    EntryKind       `json:"kind"`
	ID      string          `json:"id"`
	Date    core.Date       `json:"date"`
	Amount  decimal.Decimal `json:"amount"`
	Income  *core.Income    `json:"income,omitempty"`
	Expense *core.Expense   `json:"expense,omitempty"`
}

// HistoryGroup holds the entries for one day.
type HistoryGroup struct {
	Date    core.Date      `json:"date"`
	Entries []HistoryEntry `json:"entries"`
}

// MergedHistory merges incomes and expenses, newest day first and
// newest id first within a day, grouped by date. A non-empty query keeps
// the entries FilterIncomes and FilterExpenses would keep.
func MergedHistory(s ledger.Snapshot, query string) []HistoryGroup {
	incomes := FilterIncomes(s, query)
	expenses := FilterExpenses(s, "", query)
	entries := make([]HistoryEntry, 0, len(incomes)+len(expenses))
	for i := range incomes {
		in := incomes[i]
		entries = append(entries, HistoryEntry{Kind: KindIncome, ID: in.ID, Date: in.Date, Amount: in.Amount, Income: &in})
	}
	for i := range expenses {
		e := expenses[i]
		entries = append(entries, HistoryEntry{Kind: KindExpense, ID: e.ID, Date: e.Date, Amount: e.Amount, Expense: &e})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].Date.Compare(entries[j].Date); c != 0 {
			return c > 0
		}
		return core.CompareIDs(entries[i].ID, entries[j].ID) > 0
	})

	var groups []HistoryGroup
	for _, e := range entries {
		if n := len(groups); n > 0 && groups[n-1].Date.Equal(e.Date.Time) {
			groups[n-1].Entries = append(groups[n-1].Entries, e)
			continue
		}
		groups = append(groups, HistoryGroup{Date: e.Date, Entries: []HistoryEntry{e}})
	}
	return groups
}

func matches(q string, fields ...string) bool {
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(strings.Join(fields, " ")), q)
}

// FilterIncomes returns incomes whose remarks, payer or source contain
// query, case-insensitively, in the order stored.
func FilterIncomes(s ledger.Snapshot, query string) []core.Income {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []core.Income
	for _, in := range s.Incomes {
		if matches(q, in.Remarks, string(in.PaidBy), string(in.Source)) {
			out = append(out, in)
		}
	}
	return out
}

// FilterExpenses returns expenses in category (all when empty) whose
// notes, payee, item or category contain query.
func FilterExpenses(s ledger.Snapshot, category core.Category, query string) []core.Expense {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []core.Expense
	for _, e := range s.Expenses {
		if category != "" && e.Category != category {
			continue
		}
		if matches(q, e.Notes, e.PaidTo, e.ItemDetail, string(e.Category)) {
			out = append(out, e)
		}
	}
	return out
}

// Activity is one item of the recent-activity feed.
type Activity struct {
	Kind   EntryKind       `json:"kind"`
	ID     string          `json:"id"`
	Date   core.Date       `json:"date"`
	Amount decimal.Decimal `json:"amount,omitempty"`
	// Title and Detail are ready-to-show text.
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// RecentLimit is the length of the recent-activity feed.
const RecentLimit = 5

// RecentActivity returns the newest incomes, expenses and attendance
// marks by id.
func RecentActivity(s ledger.Snapshot) []Activity {
	all := make([]Activity, 0, len(s.Incomes)+len(s.Expenses)+len(s.Attendance))
	for _, in := range s.Incomes {
		all = append(all, Activity{
			Kind: KindIncome, ID: in.ID, Date: in.Date, Amount: in.Amount,
			Title:  core.FormatAmount(in.Amount),
			Detail: string(in.PaidBy) + " added fund",
		})
	}
	for _, e := range s.Expenses {
		detail := "Spent on " + string(e.Category)
		if e.Category == core.Food {
			detail = e.ItemDetail + " bill"
		}
		all = append(all, Activity{
			Kind: KindExpense, ID: e.ID, Date: e.Date, Amount: e.Amount,
			Title:  core.FormatAmount(e.Amount),
			Detail: detail,
		})
	}
	for _, a := range s.Attendance {
		all = append(all, Activity{
			Kind: KindAttendance, ID: a.ID, Date: a.Date,
			Title:  s.LabourName(a.LabourID) + " marked " + string(a.Status),
			Detail: "Daily Attendance",
		})
	}
	sort.SliceStable(all, func(i, j int) bool {
		return core.CompareIDs(all[i].ID, all[j].ID) > 0
	})
	if len(all) > RecentLimit {
		all = all[:RecentLimit]
	}
	return all
}
