package dashboard

import (
	"testing"

	"github.com/shopspring/decimal"

	"nirmaan/internal/core"
	"nirmaan/internal/ledger"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func fixture() ledger.Snapshot {
	settings := core.DefaultSettings()
	settings.CategoryBudgets[core.Masonry] = d("2000")
	settings.CategoryBudgets[core.Food] = d("100")
	settings = settings.Normalized()

	return ledger.Snapshot{
		Incomes: []core.Income{
			{ID: "1700000000001", Date: core.NewDate(2025, 1, 1), Amount: d("5000"), PaidBy: core.PartnerMuzahir, Source: core.SourceInvestment, Remarks: "first tranche"},
			{ID: "1700000000002", Date: core.NewDate(2025, 1, 2), Amount: d("3000"), PaidBy: core.PartnerSalik, Source: core.SourceLoan},
			{ID: "1700000000003", Date: core.NewDate(2025, 1, 2), Amount: d("500"), PaidBy: core.PartnerOther, Source: core.SourceDonation},
		},
		Expenses: []core.Expense{
			{ID: "1700000000004", Date: core.NewDate(2025, 1, 2), Amount: d("1200"), Category: core.Masonry, SubCategory: core.SubMaterial, ItemDetail: "Cement", PaidTo: "Gupta Traders"},
			{ID: "1700000000005", Date: core.NewDate(2025, 1, 3), Amount: d("150"), Category: core.Food, SubCategory: core.SubVendor, ItemDetail: "Tea", PaidTo: "Vendor/Shop"},
		},
		Labours: []core.Labour{
			{ID: "L1", Name: "Ramesh", Type: "Mistri", DailyWage: d("800"), Category: core.Masonry},
			{ID: "L2", Name: "Suresh", Type: "Majdoor", DailyWage: d("400")},
			{ID: "L3", Name: "Anil", Type: "Plumber", DailyWage: d("600"), Category: core.Plumbing},
		},
		Attendance: []core.Attendance{
			{ID: "1700000000006", Date: core.NewDate(2025, 1, 3), LabourID: "L1", Status: core.Present, OvertimeHours: 2},
			{ID: "1700000000007", Date: core.NewDate(2025, 1, 3), LabourID: "L2", Status: core.HalfDay},
			{ID: "1700000000008", Date: core.NewDate(2025, 1, 3), LabourID: "L3", Status: core.Absent},
			{ID: "1700000000009", Date: core.NewDate(2025, 1, 4), LabourID: "gone", Status: core.Present},
		},
		Payments: []core.LabourPayment{
			{ID: "P1", LabourID: "L1", Date: core.NewDate(2025, 1, 3), Amount: d("500"), Type: core.PaymentAdvance},
			{ID: "P2", LabourID: "L1", Date: core.NewDate(2025, 1, 4), Amount: d("200"), Type: core.PaymentFull},
			{ID: "P3", LabourID: "gone", Date: core.NewDate(2025, 1, 4), Amount: d("50"), Type: core.PaymentAdvance},
		},
		Settings: settings,
	}
}

func TestAttendanceCost(t *testing.T) {
	l := core.Labour{DailyWage: d("800")}
	cases := []struct {
		status core.AttendanceStatus
		hours  float64
		want   string
	}{
		{core.Present, 0, "800"},
		{core.HalfDay, 0, "400"},
		{core.Absent, 0, "0"},
		{core.Present, 2, "1000"},
		{core.Absent, 4, "400"},
		{core.HalfDay, 1.5, "550"},
	}
	for _, tc := range cases {
		got := AttendanceCost(l, core.Attendance{Status: tc.status, OvertimeHours: tc.hours})
		if !got.Equal(d(tc.want)) {
			t.Fatalf("%s +%vh: got %s want %s", tc.status, tc.hours, got, tc.want)
		}
	}
}

func TestComputeTotals(t *testing.T) {
	got := ComputeTotals(fixture())
	// Ramesh 800 + 2h*100 = 1000; Suresh half of 400 = 200; Anil absent; dangling ignored.
	want := Totals{
		Income:        d("8500"),
		ManualExpense: d("1350"),
		LabourCost:    d("1200"),
		Expense:       d("2550"),
		NetBalance:    d("5950"),
	}
	checks := map[string][2]decimal.Decimal{
		"income":  {got.Income, want.Income},
		"manual":  {got.ManualExpense, want.ManualExpense},
		"labour":  {got.LabourCost, want.LabourCost},
		"expense": {got.Expense, want.Expense},
		"net":     {got.NetBalance, want.NetBalance},
	}
	for name, pair := range checks {
		if !pair[0].Equal(pair[1]) {
			t.Fatalf("%s: got %s want %s", name, pair[0], pair[1])
		}
	}
}

func TestComputeTotalsScenarios(t *testing.T) {
	worker := core.Labour{ID: "W1", Name: "Ramesh", Type: "Mistri", DailyWage: d("800")}
	day := core.NewDate(2025, 1, 2)
	cases := []struct {
		name                         string
		snap                         ledger.Snapshot
		income, labour, expense, net string
	}{
		{"empty ledger", ledger.Snapshot{}, "0", "0", "0", "0"},
		{"one of each", ledger.Snapshot{
			Incomes:    []core.Income{{ID: "I1", Date: day, Amount: d("5000"), PaidBy: core.PartnerMuzahir}},
			Expenses:   []core.Expense{{ID: "E1", Date: day, Amount: d("2000"), Category: core.Material, SubCategory: core.SubMaterial}},
			Labours:    []core.Labour{worker},
			Attendance: []core.Attendance{{ID: "A1", Date: day, LabourID: "W1", Status: core.Present}},
		}, "5000", "800", "2800", "2200"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeTotals(tc.snap)
			if !got.Income.Equal(d(tc.income)) || !got.LabourCost.Equal(d(tc.labour)) ||
				!got.Expense.Equal(d(tc.expense)) || !got.NetBalance.Equal(d(tc.net)) {
				t.Fatalf("got %+v", got)
			}
			if !got.NetBalance.Equal(got.Income.Sub(got.ManualExpense.Add(got.LabourCost))) {
				t.Fatalf("net balance does not balance: %+v", got)
			}
		})
	}
}

func TestLabourCostDefaultsToMasonry(t *testing.T) {
	got := LabourCostByCategory(fixture())
	if !got[core.Masonry].Equal(d("1200")) {
		t.Fatalf("masonry labour = %s", got[core.Masonry])
	}
	if !got[core.Plumbing].IsZero() {
		t.Fatalf("absent plumber should cost nothing, got %s", got[core.Plumbing])
	}
}

func TestPartnerShares(t *testing.T) {
	got := PartnerShares(fixture())
	if len(got) != 3 || got[0].Name != "Muzahir" || !got[2].Amount.Equal(d("500")) {
		t.Fatalf("unexpected shares %+v", got)
	}

	s := fixture()
	s.Incomes = s.Incomes[:1]
	got = PartnerShares(s)
	if len(got) != 1 || got[0].Partner != core.PartnerMuzahir {
		t.Fatalf("zero shares must be dropped: %+v", got)
	}
	if len(PartnerShares(ledger.Snapshot{})) != 0 {
		t.Fatalf("no income, no shares")
	}
}

func TestBudgetBreakdown(t *testing.T) {
	rows := BudgetBreakdown(fixture())
	if len(rows) != 2 {
		t.Fatalf("expected masonry and food rows, got %+v", rows)
	}
	masonry, food := rows[0], rows[1]
	if masonry.Category != core.Masonry || !masonry.Spent.Equal(d("2400")) {
		t.Fatalf("masonry row %+v", masonry)
	}
	if masonry.Percent != 120 || !masonry.OverBudget || !masonry.OverBy.Equal(d("400")) || masonry.Status != BudgetOver {
		t.Fatalf("masonry should be over budget: %+v", masonry)
	}
	if food.Category != core.Food || food.Percent != 150 || food.Status != BudgetOver {
		t.Fatalf("food row %+v", food)
	}
}

func TestBudgetWithoutBudgetReportsZeroPercent(t *testing.T) {
	s := fixture()
	s.Settings = core.DefaultSettings()
	for _, r := range BudgetBreakdown(s) {
		if r.Percent != 0 || r.OverBudget || r.Status != BudgetUnset {
			t.Fatalf("unbudgeted row %+v", r)
		}
	}
	if o := Budget(s); o.Percent != 0 {
		t.Fatalf("overall percent %v", o.Percent)
	}
}

func TestBudgetStatusBands(t *testing.T) {
	cases := map[float64]BudgetStatus{0: BudgetOK, 79.9: BudgetOK, 80: BudgetWarning, 99.9: BudgetWarning, 100: BudgetOver, 130: BudgetOver}
	for pct, want := range cases {
		if got := status(d("1"), pct); got != want {
			t.Fatalf("%v%%: got %s want %s", pct, got, want)
		}
	}
}

func TestMergedHistory(t *testing.T) {
	groups := MergedHistory(fixture(), "")
	if len(groups) != 3 {
		t.Fatalf("expected 3 days, got %d", len(groups))
	}
	if groups[0].Date.String() != "2025-01-03" || groups[2].Date.String() != "2025-01-01" {
		t.Fatalf("days not newest first: %s .. %s", groups[0].Date, groups[2].Date)
	}
	mid := groups[1].Entries
	if len(mid) != 3 || mid[0].ID != "1700000000004" || mid[2].ID != "1700000000002" {
		t.Fatalf("same-day entries not by id desc: %+v", mid)
	}
	if mid[0].Kind != KindExpense || mid[0].Expense == nil {
		t.Fatalf("expected expense entry")
	}
}

func TestMergedHistoryQuery(t *testing.T) {
	groups := MergedHistory(fixture(), "GUPTA")
	if len(groups) != 1 || len(groups[0].Entries) != 1 || groups[0].Entries[0].ID != "1700000000004" {
		t.Fatalf("unexpected %+v", groups)
	}
	if got := MergedHistory(fixture(), "tranche"); len(got) != 1 {
		t.Fatalf("remarks should match, got %+v", got)
	}
	if got := MergedHistory(fixture(), "cement"); len(got) != 1 || got[0].Entries[0].ID != "1700000000004" {
		t.Fatalf("item detail should match like FilterExpenses, got %+v", got)
	}
	if got := MergedHistory(fixture(), "zzz"); len(got) != 0 {
		t.Fatalf("expected nothing, got %+v", got)
	}
}

func TestFilterExpenses(t *testing.T) {
	if got := FilterExpenses(fixture(), core.Food, ""); len(got) != 1 || got[0].ItemDetail != "Tea" {
		t.Fatalf("category filter: %+v", got)
	}
	if got := FilterExpenses(fixture(), "", "cement"); len(got) != 1 {
		t.Fatalf("item detail should match: %+v", got)
	}
	if got := FilterIncomes(fixture(), "loan"); len(got) != 1 {
		t.Fatalf("source should match: %+v", got)
	}
}

func TestRecentActivity(t *testing.T) {
	got := RecentActivity(fixture())
	if len(got) != RecentLimit {
		t.Fatalf("expected %d, got %d", RecentLimit, len(got))
	}
	if got[0].ID != "1700000000009" || got[0].Title != "Unknown marked Present" {
		t.Fatalf("newest first: %+v", got[0])
	}
	if got[1].Title != "Anil marked Absent" {
		t.Fatalf("got %+v", got[1])
	}
	if got[4].Kind != KindExpense || got[4].Detail != "Tea bill" {
		t.Fatalf("food expense detail: %+v", got[4])
	}
}

func TestLabourLedger(t *testing.T) {
	rows := LabourLedger(fixture())
	if len(rows) != 4 {
		t.Fatalf("expected 3 labours plus Unknown, got %d", len(rows))
	}
	r := rows[0]
	if r.Name != "Ramesh" || r.DaysPresent != 1 || !r.Earned.Equal(d("1000")) || !r.Paid.Equal(d("700")) || !r.Due.Equal(d("300")) {
		t.Fatalf("ramesh %+v", r)
	}
	if rows[1].HalfDays != 1 || rows[1].Category != core.Masonry {
		t.Fatalf("suresh %+v", rows[1])
	}
	u := rows[3]
	if u.Name != ledger.UnknownLabour || !u.Advances.Equal(d("50")) || !u.Due.Equal(d("-50")) {
		t.Fatalf("unknown %+v", u)
	}
}

func TestPaymentsFor(t *testing.T) {
	got := PaymentsFor(fixture(), "L1")
	if len(got) != 2 || got[0].ID != "P2" {
		t.Fatalf("unexpected %+v", got)
	}
}
