package dashboard

import (
	"sort"

	"github.com/shopspring/decimal"

	"nirmaan/internal/core"
	"nirmaan/internal/ledger"
)

// LabourBalance is what a worker has earned against what they were paid.
type LabourBalance struct {
	LabourID    string          `json:"labourId"`
	Name        string          `json:"name"`
	Category    core.Category   `json:"category,omitempty"`
	DaysPresent int             `json:"daysPresent"`
	HalfDays    int             `json:"halfDays"`
	OvertimeHrs float64         `json:"overtimeHours"`
	Earned      decimal.Decimal `json:"earned"`
	Advances    decimal.Decimal `json:"advances"`
	FullPaid    decimal.Decimal `json:"fullPayments"`
	Paid        decimal.Decimal `json:"paid"`
	Due         decimal.Decimal `json:"due"`
}

// LabourLedger returns one balance per labour in roster order. Payments
// made to labours since deleted are collected under a single "Unknown"
// row at the end.
func LabourLedger(s ledger.Snapshot) []LabourBalance {
	idx := make(map[string]int, len(s.Labours))
	out := make([]LabourBalance, 0, len(s.Labours)+1)
	for _, l := range s.Labours {
		idx[l.ID] = len(out)
		out = append(out, LabourBalance{LabourID: l.ID, Name: l.Name, Category: l.EffectiveCategory()})
	}

	for _, a := range s.Attendance {
		i, ok := idx[a.LabourID]
		if !ok {
			continue
		}
		l := s.Labours[i]
		b := &out[i]
		switch a.Status {
		case core.Present:
			b.DaysPresent++
		case core.HalfDay:
			b.HalfDays++
		}
		b.OvertimeHrs += a.OvertimeHours
		b.Earned = b.Earned.Add(AttendanceCost(l, a))
	}

	unknown := -1
	for _, p := range s.Payments {
		i, ok := idx[p.LabourID]
		if !ok {
			if unknown < 0 {
				unknown = len(out)
				out = append(out, LabourBalance{Name: ledger.UnknownLabour})
			}
			i = unknown
		}
		b := &out[i]
		if p.Type == core.PaymentAdvance {
			b.Advances = b.Advances.Add(p.Amount)
		} else {
			b.FullPaid = b.FullPaid.Add(p.Amount)
		}
	}

	for i := range out {
		out[i].Paid = out[i].Advances.Add(out[i].FullPaid)
		out[i].Due = out[i].Earned.Sub(out[i].Paid)
	}
	return out
}

// PaymentsFor returns a labour's payments, newest first.
func PaymentsFor(s ledger.Snapshot, labourID string) []core.LabourPayment {
	var out []core.LabourPayment
	for _, p := range s.Payments {
		if p.LabourID == labourID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c > 0
		}
		return core.CompareIDs(out[i].ID, out[j].ID) > 0
	})
	return out
}

// Summary bundles everything the dashboard screen shows.
type Summary struct {
	Totals   Totals         `json:"totals"`
	Partners []PartnerShare `json:"partners"`
	Budget   BudgetOverview `json:"budget"`
	Recent   []Activity     `json:"recent"`
}

func Summarize(s ledger.Snapshot) Summary {
	return Summary{
		Totals:   ComputeTotals(s),
		Partners: PartnerShares(s),
		Budget:   Budget(s),
		Recent:   RecentActivity(s),
	}
}
