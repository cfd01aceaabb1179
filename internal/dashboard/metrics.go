// Package dashboard derives read-only figures from a ledger snapshot.
// Nothing here is stored; every value is recomputed from its inputs.
package dashboard

import (
	"github.com/shopspring/decimal"

	"nirmaan/internal/core"
	"nirmaan/internal/ledger"
)

var (
	half  = decimal.NewFromFloat(0.5)
	eight = decimal.NewFromInt(8)
)

// AttendanceCost is what one attendance record earns: the full wage when
// present, half when on a half day, plus overtime paid at wage/8 per hour.
func AttendanceCost(l core.Labour, a core.Attendance) decimal.Decimal {
	var base decimal.Decimal
	switch a.Status {
	case core.Present:
		base = l.DailyWage
	case core.HalfDay:
		base = l.DailyWage.Mul(half)
	default:
		base = decimal.Zero
	}
	if a.OvertimeHours > 0 {
		hourly := l.DailyWage.Div(eight)
		base = base.Add(hourly.Mul(decimal.NewFromFloat(a.OvertimeHours)))
	}
	return base
}

// LabourCostByCategory sums attendance cost per labour category.
// Attendance whose labour no longer exists is ignored.
func LabourCostByCategory(s ledger.Snapshot) map[core.Category]decimal.Decimal {
	byID := make(map[string]core.Labour, len(s.Labours))
	for _, l := range s.Labours {
		byID[l.ID] = l
	}
	out := make(map[core.Category]decimal.Decimal)
	for _, a := range s.Attendance {
		l, ok := byID[a.LabourID]
		if !ok {
			continue
		}
		c := l.EffectiveCategory()
		out[c] = out[c].Add(AttendanceCost(l, a))
	}
	return out
}

// Totals are the headline figures.
type Totals struct {
	Income        decimal.Decimal `json:"income"`
	ManualExpense decimal.Decimal `json:"manualExpense"`
	LabourCost    decimal.Decimal `json:"labourCost"`
	Expense       decimal.Decimal `json:"expense"`
	NetBalance    decimal.Decimal `json:"netBalance"`
}

// ComputeTotals is all zero for an empty ledger.
func ComputeTotals(s ledger.Snapshot) Totals {
	incomes := make([]decimal.Decimal, 0, len(s.Incomes))
	for _, i := range s.Incomes {
		incomes = append(incomes, i.Amount)
	}
	expenses := make([]decimal.Decimal, 0, len(s.Expenses))
	for _, e := range s.Expenses {
		expenses = append(expenses, e.Amount)
	}
	var labour []decimal.Decimal
	for _, v := range LabourCostByCategory(s) {
		labour = append(labour, v)
	}

	t := Totals{
		Income:        core.Sum(incomes...),
		ManualExpense: core.Sum(expenses...),
		LabourCost:    core.Sum(labour...),
	}
	t.Expense = t.ManualExpense.Add(t.LabourCost)
	t.NetBalance = t.Income.Sub(t.Expense)
	return t
}

// PartnerShare is one slice of the income-by-partner breakdown.
type PartnerShare struct {
	Name    string          `json:"name"`
	Partner core.Partner    `json:"partner"`
	Amount  decimal.Decimal `json:"amount"`
}

// PartnerShares splits total income between the two named partners and
// everyone else. "Other" is the remainder, not a sum of Other-paid
// incomes. Zero shares are left out.
func PartnerShares(s ledger.Snapshot) []PartnerShare {
	var total, muzahir, salik decimal.Decimal
	for _, i := range s.Incomes {
		total = total.Add(i.Amount)
		switch i.PaidBy {
		case core.PartnerMuzahir:
			muzahir = muzahir.Add(i.Amount)
		case core.PartnerSalik:
			salik = salik.Add(i.Amount)
		}
	}
	all := []PartnerShare{
		{Name: "Muzahir", Partner: core.PartnerMuzahir, Amount: muzahir},
		{Name: "Salik", Partner: core.PartnerSalik, Amount: salik},
		{Name: "Other", Partner: core.PartnerOther, Amount: total.Sub(muzahir).Sub(salik)},
	}
	out := make([]PartnerShare, 0, len(all))
	for _, p := range all {
		if p.Amount.IsPositive() {
			out = append(out, p)
		}
	}
	return out
}
