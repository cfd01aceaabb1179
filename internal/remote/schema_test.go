package remote

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"nirmaan/internal/core"
)

func TestColumnsCoverEveryTable(t *testing.T) {
	for _, table := range AllTables {
		cols := Columns(table)
		if len(cols) == 0 || cols[0] != ColID {
			t.Fatalf("%s: id must be the first column, got %v", table, cols)
		}
		seen := map[string]bool{}
		for _, c := range cols {
			if seen[c] {
				t.Fatalf("%s: duplicate column %s", table, c)
			}
			seen[c] = true
		}
		if !seen[ColUpdatedAt] {
			t.Fatalf("%s: missing updated_at", table)
		}
	}
}

func TestRowsUseOnlyDeclaredColumns(t *testing.T) {
	lab := core.Labour{ID: "L1", Name: "Ramesh", DailyWage: decimal.NewFromInt(800)}
	rows := map[string]Row{
		TableIncomes:    IncomeToRow(core.Income{ID: "i"}),
		TableExpenses:   ExpenseToRow(core.Expense{ID: "e"}),
		TableLabours:    LabourToRow(lab),
		TableAttendance: AttendanceToRow(core.Attendance{ID: "a"}, &lab),
		TablePayments:   PaymentToRow(core.LabourPayment{ID: "p"}, &lab),
		TableSettings:   SettingsToRow(core.DefaultSettings()),
	}
	for table, row := range rows {
		declared := map[string]bool{}
		for _, c := range Columns(table) {
			declared[c] = true
		}
		for col := range row {
			if !declared[col] {
				t.Fatalf("%s: row uses undeclared column %s", table, col)
			}
		}
		if len(row) != len(declared) {
			t.Fatalf("%s: row has %d columns, schema %d", table, len(row), len(declared))
		}
	}
}

func TestAttendanceRowDenormalizesLabour(t *testing.T) {
	lab := core.Labour{ID: "L1", Name: "Ramesh", DailyWage: decimal.NewFromInt(800)}
	a := core.Attendance{ID: "a1", Date: core.NewDate(2025, 1, 3), LabourID: "L1", Status: core.Present, OvertimeHours: 2}
	row := AttendanceToRow(a, &lab)
	if row[ColLabourName] != "Ramesh" || row[ColDailyWageAtTime] != "800" {
		t.Fatalf("denormalized columns missing: %v", row)
	}
	dangling := AttendanceToRow(a, nil)
	if dangling[ColLabourName] != "" || dangling[ColDailyWageAtTime] != "0" {
		t.Fatalf("dangling row: %v", dangling)
	}
}

func TestAttendanceRowKeepsWageAtTime(t *testing.T) {
	lab := core.Labour{ID: "L1", Name: "Ramesh", DailyWage: decimal.NewFromInt(1000)}
	a := core.Attendance{ID: "a1", Date: core.NewDate(2025, 1, 3), LabourID: "L1", Status: core.Present, WageAtTime: decimal.NewFromInt(800)}

	row := AttendanceToRow(a, &lab)
	if row[ColDailyWageAtTime] != "800" {
		t.Fatalf("daily_wage_at_time = %v, want the wage captured when marked", row[ColDailyWageAtTime])
	}
	back, err := AttendanceFromRow(row)
	if err != nil {
		t.Fatalf("from row: %v", err)
	}
	if !back.WageAtTime.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("wage lost on the way back: %v", back.WageAtTime)
	}
}

func snake(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func TestColumnsAreSnakeCaseOfFields(t *testing.T) {
	d := core.NewDate(2025, 1, 3)
	one := decimal.NewFromInt(1)
	records := map[string]any{
		TableIncomes: core.Income{ID: "i", Date: d, Amount: one},
		TableExpenses: core.Expense{ID: "e", Date: d, Amount: one, ItemDetail: "Cement",
			PaidBy: core.PartnerSalik, Notes: "n"},
		TableLabours:    core.Labour{ID: "l", Mobile: "98", Category: core.Masonry},
		TableAttendance: core.Attendance{ID: "a", Date: d},
		TablePayments:   core.LabourPayment{ID: "p", Date: d, Amount: one},
	}
	renamed := map[string]string{"wage_at_time": ColDailyWageAtTime}

	for table, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			t.Fatal(err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			t.Fatal(err)
		}
		declared := map[string]bool{}
		for _, c := range Columns(table) {
			declared[c] = true
		}
		for f := range fields {
			col := snake(f)
			if r, ok := renamed[col]; ok {
				col = r
			}
			if !declared[col] {
				t.Errorf("%s: field %s has no column %s", table, f, col)
			}
		}
	}
}

func TestFromRowAcceptsDriverTypes(t *testing.T) {
	updated := time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)
	row := Row{
		ColID:            []byte("a1"),
		ColDate:          time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
		ColLabourID:      "L1",
		ColStatus:        "Half-Day",
		ColOvertimeHours: []byte("1.5"),
		ColLabourName:    "ignored",
		ColUpdatedAt:     "2025-01-03 10:00:00",
	}
	a, err := AttendanceFromRow(row)
	if err != nil {
		t.Fatalf("from row: %v", err)
	}
	if a.ID != "a1" || a.Date.String() != "2025-01-03" || a.OvertimeHours != 1.5 || !a.UpdatedAt.Equal(updated) {
		t.Fatalf("unexpected %+v", a)
	}

	in, err := IncomeFromRow(Row{ColID: "i1", ColDate: float64(45660), ColAmount: float64(5000)})
	if err != nil {
		t.Fatalf("sheets serial date: %v", err)
	}
	if in.Date.String() != "2025-01-03" || !in.Amount.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("unexpected %+v", in)
	}
}

func TestFromRowRejectsBadRows(t *testing.T) {
	if _, err := IncomeFromRow(Row{ColDate: "2025-01-01", ColAmount: "10"}); err == nil {
		t.Fatalf("expected error for missing id")
	}
	if _, err := ExpenseFromRow(Row{ColID: "e1", ColDate: "yesterday"}); err == nil {
		t.Fatalf("expected error for bad date")
	}
	if _, err := LabourFromRow(Row{ColID: "l1", ColDailyWage: "lots"}); err == nil {
		t.Fatalf("expected error for bad wage")
	}
}

func TestSettingsRow(t *testing.T) {
	s := core.DefaultSettings()
	s.SchoolName = "Site A"
	s.CategoryBudgets[core.Masonry] = decimal.NewFromInt(1000)
	s = s.Normalized()

	row := SettingsToRow(s)
	if row.ID() != SettingsRowID {
		t.Fatalf("settings row id = %q", row.ID())
	}
	got, err := SettingsFromRow(row)
	if err != nil {
		t.Fatalf("from row: %v", err)
	}
	if got.SchoolName != "Site A" || !got.Budget(core.Masonry).Equal(decimal.NewFromInt(1000)) || !got.EstimatedBudget.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestEndpoints(t *testing.T) {
	if _, ok := Unconfigured().Tables(); ok {
		t.Fatalf("unconfigured endpoint must not expose tables")
	}
	closed := false
	ep := Configured("memory", nil, func() error { closed = true; return nil })
	if _, ok := ep.Tables(); !ok {
		t.Fatalf("configured endpoint must expose tables")
	}
	ep.Close()
	if !closed {
		t.Fatalf("closer not called")
	}
}
