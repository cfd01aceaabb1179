package dashboard

import (
	"github.com/shopspring/decimal"

	"nirmaan/internal/core"
	"nirmaan/internal/ledger"
)

// BudgetStatus bands a category by how much of its budget is spent.
type BudgetStatus string

const (
	BudgetOK      BudgetStatus = "ok"
	BudgetWarning BudgetStatus = "warning"
	BudgetOver    BudgetStatus = "over"
	BudgetUnset   BudgetStatus = "unset"
)

var hundred = decimal.NewFromInt(100)

// BudgetRow is one category's budget line.
type BudgetRow struct {
	Category core.Category   `json:"category"`
	Manual   decimal.Decimal `json:"manual"`
	Labour   decimal.Decimal `json:"labour"`
	Spent    decimal.Decimal `json:"spent"`
	Budget   decimal.Decimal `json:"budget"`
	// Percent is spent/budget*100, or 0 when no budget is set.
	Percent    float64         `json:"percent"`
	OverBudget bool            `json:"overBudget"`
	OverBy     decimal.Decimal `json:"overBy"`
	Status     BudgetStatus    `json:"status"`
}

// BudgetOverview is the whole-project budget position.
type BudgetOverview struct {
	Budget  decimal.Decimal `json:"budget"`
	Spent   decimal.Decimal `json:"spent"`
	Percent float64         `json:"percent"`
	Rows    []BudgetRow     `json:"rows"`
}

// BudgetBreakdown returns one row per category in catalog order, leaving
// out categories with neither a budget nor any spending.
func BudgetBreakdown(s ledger.Snapshot) []BudgetRow {
	manual := make(map[core.Category]decimal.Decimal)
	for _, e := range s.Expenses {
		manual[e.Category] = manual[e.Category].Add(e.Amount)
	}
	labour := LabourCostByCategory(s)

	rows := make([]BudgetRow, 0, len(core.Categories))
	for _, c := range core.Categories {
		r := BudgetRow{
			Category: c,
			Manual:   manual[c],
			Labour:   labour[c],
			Budget:   s.Settings.Budget(c),
		}
		r.Spent = r.Manual.Add(r.Labour)
		if r.Budget.IsZero() && r.Spent.IsZero() {
			continue
		}
		r.Percent = percent(r.Spent, r.Budget)
		r.OverBudget = r.Percent > 100
		if r.Spent.GreaterThan(r.Budget) && r.Budget.IsPositive() {
			r.OverBy = r.Spent.Sub(r.Budget)
		}
		r.Status = status(r.Budget, r.Percent)
		rows = append(rows, r)
	}
	return rows
}

func Budget(s ledger.Snapshot) BudgetOverview {
	rows := BudgetBreakdown(s)
	t := ComputeTotals(s)
	return BudgetOverview{
		Budget:  s.Settings.EstimatedBudget,
		Spent:   t.Expense,
		Percent: percent(t.Expense, s.Settings.EstimatedBudget),
		Rows:    rows,
	}
}

func percent(spent, budget decimal.Decimal) float64 {
	if !budget.IsPositive() {
		return 0
	}
	return spent.Div(budget).Mul(hundred).InexactFloat64()
}

func status(budget decimal.Decimal, pct float64) BudgetStatus {
	switch {
	case !budget.IsPositive():
		return BudgetUnset
	case pct >= 100:
		return BudgetOver
	case pct >= 80:
		return BudgetWarning
	default:
		return BudgetOK
	}
}
