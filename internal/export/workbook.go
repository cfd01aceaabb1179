// Package export writes the ledger and its derived figures to an xlsx
// workbook for sharing outside the app.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"nirmaan/internal/dashboard"
	"nirmaan/internal/ledger"
)

// Sheet names, in workbook order.
const (
	SheetSummary = "Summary"
	SheetHistory = "History"
	SheetBudget  = "Budget"
	SheetLabour  = "Labour"
)

var (
	historyHeader = []any{"Date", "Type", "Category / Source", "Item", "Paid By", "Paid To", "Mode", "Amount", "Remarks / Notes"}
	budgetHeader  = []any{"Category", "Budget", "Manual", "Labour", "Spent", "Percent", "Status", "Over By"}
	labourHeader  = []any{"Name", "Category", "Days Present", "Half Days", "Overtime Hours", "Earned", "Advances", "Full Payments", "Paid", "Due"}
)

// Build lays out the workbook for snap. now is stamped on the summary.
func Build(snap ledger.Snapshot, now time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	w := &writer{f: f, bold: bold}
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename default sheet: %w", err)
	}
	w.summary(snap, now)
	w.history(snap)
	w.budget(snap)
	w.labour(snap)
	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	f.SetActiveSheet(0)
	return f, nil
}

// WriteWorkbook streams the workbook for snap to out.
func WriteWorkbook(out io.Writer, snap ledger.Snapshot) error {
	f, err := Build(snap, time.Now())
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveWorkbook writes the workbook for snap to path.
func SaveWorkbook(path string, snap ledger.Snapshot) error {
	f, err := Build(snap, time.Now())
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

// writer keeps the first error and turns later calls into no-ops.
type writer struct {
	f    *excelize.File
	bold int
	err  error
}

func (w *writer) sheet(name string) {
	if w.err != nil || name == SheetSummary {
		return
	}
	if _, err := w.f.NewSheet(name); err != nil {
		w.err = fmt.Errorf("create sheet %s: %w", name, err)
	}
}

func (w *writer) row(sheet string, n int, values []any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err == nil {
		err = w.f.SetSheetRow(sheet, cell, &values)
	}
	if err != nil {
		w.err = fmt.Errorf("write %s row %d: %w", sheet, n, err)
	}
}

func (w *writer) header(sheet string, values []any) {
	w.row(sheet, 1, values)
	if w.err != nil {
		return
	}
	last, err := excelize.CoordinatesToCellName(len(values), 1)
	if err == nil {
		err = w.f.SetCellStyle(sheet, "A1", last, w.bold)
	}
	if err == nil {
		err = w.f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	}
	if err != nil {
		w.err = fmt.Errorf("style %s header: %w", sheet, err)
	}
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func (w *writer) summary(snap ledger.Snapshot, now time.Time) {
	totals := dashboard.ComputeTotals(snap)
	rows := [][]any{
		{"Project", snap.Settings.SchoolName},
		{"Location", snap.Settings.Location},
		{"Generated", now.Format("2006-01-02 15:04")},
		{},
		{"Total Income", money(totals.Income)},
		{"Manual Expense", money(totals.ManualExpense)},
		{"Labour Cost", money(totals.LabourCost)},
		{"Total Expense", money(totals.Expense)},
		{"Net Balance", money(totals.NetBalance)},
		{"Estimated Budget", money(snap.Settings.EstimatedBudget)},
		{},
		{"Income by Partner"},
	}
	for _, p := range dashboard.PartnerShares(snap) {
		rows = append(rows, []any{p.Name, money(p.Amount)})
	}
	for i, r := range rows {
		if len(r) > 0 {
			w.row(SheetSummary, i+1, r)
		}
	}
	if w.err == nil {
		if err := w.f.SetColWidth(SheetSummary, "A", "A", 20); err != nil {
			w.err = fmt.Errorf("size summary: %w", err)
		}
	}
}

func (w *writer) history(snap ledger.Snapshot) {
	w.sheet(SheetHistory)
	w.header(SheetHistory, historyHeader)
	n := 2
	for _, g := range dashboard.MergedHistory(snap, "") {
		for _, e := range g.Entries {
			var r []any
			switch {
			case e.Income != nil:
				in := e.Income
				r = []any{in.Date.String(), "Income", string(in.Source), "", string(in.PaidBy), "", string(in.Mode), money(in.Amount), in.Remarks}
			case e.Expense != nil:
				ex := e.Expense
				r = []any{ex.Date.String(), "Expense", string(ex.Category), ex.ItemDetail, string(ex.PaidBy), ex.PaidTo, string(ex.Mode), money(ex.Amount), ex.Notes}
			default:
				continue
			}
			w.row(SheetHistory, n, r)
			n++
		}
	}
}

func (w *writer) budget(snap ledger.Snapshot) {
	w.sheet(SheetBudget)
	w.header(SheetBudget, budgetHeader)
	for i, r := range dashboard.BudgetBreakdown(snap) {
		w.row(SheetBudget, i+2, []any{
			string(r.Category), money(r.Budget), money(r.Manual), money(r.Labour), money(r.Spent),
			r.Percent, string(r.Status), money(r.OverBy),
		})
	}
}

func (w *writer) labour(snap ledger.Snapshot) {
	w.sheet(SheetLabour)
	w.header(SheetLabour, labourHeader)
	for i, b := range dashboard.LabourLedger(snap) {
		w.row(SheetLabour, i+2, []any{
			b.Name, string(b.Category), b.DaysPresent, b.HalfDays, b.OvertimeHrs,
			money(b.Earned), money(b.Advances), money(b.FullPaid), money(b.Paid), money(b.Due),
		})
	}
}
