package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"nirmaan/internal/core"
	"nirmaan/internal/dashboard"
	"nirmaan/internal/ledger"
	"nirmaan/internal/services"
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printSummary(w io.Writer, snap ledger.Snapshot) {
	t := dashboard.ComputeTotals(snap)
	tw := table(w)
	if name := snap.Settings.SchoolName; name != "" {
		fmt.Fprintf(tw, "Project\t%s\n", name)
	}
	fmt.Fprintf(tw, "Total income\t%s\n", core.FormatAmount(t.Income))
	fmt.Fprintf(tw, "Manual expense\t%s\n", core.FormatAmount(t.ManualExpense))
	fmt.Fprintf(tw, "Labour cost\t%s\n", core.FormatAmount(t.LabourCost))
	fmt.Fprintf(tw, "Total expense\t%s\n", core.FormatAmount(t.Expense))
	fmt.Fprintf(tw, "Net balance\t%s\n", core.FormatAmount(t.NetBalance))
	for _, p := range dashboard.PartnerShares(snap) {
		fmt.Fprintf(tw, "  %s\t%s\n", p.Name, core.FormatAmount(p.Amount))
	}
	if !snap.LastSyncTime.IsZero() {
		fmt.Fprintf(tw, "Last sync\t%s\n", snap.LastSyncTime.Local().Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func printHistory(w io.Writer, groups []dashboard.HistoryGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "no entries")
		return
	}
	tw := table(w)
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\n", g.Date)
		for _, e := range g.Entries {
			switch {
			case e.Income != nil:
				fmt.Fprintf(tw, "  +%s\t%s\t%s\t%s\n", core.FormatAmount(e.Amount), e.Income.Source, e.Income.PaidBy, e.Income.Remarks)
			case e.Expense != nil:
				fmt.Fprintf(tw, "  -%s\t%s\t%s\t%s\n", core.FormatAmount(e.Amount), e.Expense.Category, e.Expense.PaidTo, e.Expense.Notes)
			}
		}
	}
	tw.Flush()
}

func printExpenses(w io.Writer, list []core.Expense) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no expenses")
		return
	}
	tw := table(w)
	for _, e := range list {
		fmt.Fprintf(tw, "%s\t-%s\t%s\t%s\t%s\n", e.Date, core.FormatAmount(e.Amount), e.ItemDetail, e.PaidTo, e.Notes)
	}
	tw.Flush()
}

func printAttendance(w io.Writer, snap ledger.Snapshot, day core.Date) {
	marked := snap.AttendanceOn(day)
	if len(marked) == 0 {
		fmt.Fprintf(w, "nobody marked on %s\n", day)
		return
	}
	tw := table(w)
	for _, a := range marked {
		fmt.Fprintf(tw, "%s\t%s\t%g h\n", snap.LabourName(a.LabourID), a.Status, a.OvertimeHours)
	}
	tw.Flush()
}

func printPayments(w io.Writer, l core.Labour, list []core.LabourPayment) {
	if len(list) == 0 {
		fmt.Fprintf(w, "no payments to %s\n", l.Name)
		return
	}
	tw := table(w)
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Date, p.Type, core.FormatAmount(p.Amount), p.Mode, p.Remarks)
	}
	tw.Flush()
}

func printRecent(w io.Writer, items []dashboard.Activity) {
	if len(items) == 0 {
		fmt.Fprintln(w, "no activity")
		return
	}
	tw := table(w)
	for _, a := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Date, a.Title, a.Detail)
	}
	tw.Flush()
}

func printBudget(w io.Writer, b dashboard.BudgetOverview) {
	tw := table(w)
	fmt.Fprintln(tw, "CATEGORY\tSPENT\tBUDGET\tUSED\tSTATUS")
	for _, r := range b.Rows {
		status := string(r.Status)
		if r.OverBudget {
			status += " by " + core.FormatAmount(r.OverBy)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%s\n",
			r.Category, core.FormatAmount(r.Spent), core.FormatAmount(r.Budget), r.Percent, status)
	}
	fmt.Fprintf(tw, "TOTAL\t%s\t%s\t%.0f%%\t\n", core.FormatAmount(b.Spent), core.FormatAmount(b.Budget), b.Percent)
	tw.Flush()
}

func printLabourLedger(w io.Writer, rows []dashboard.LabourBalance) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no labours")
		return
	}
	tw := table(w)
	fmt.Fprintln(tw, "NAME\tDAYS\tHALF\tOT\tEARNED\tPAID\tDUE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%g\t%s\t%s\t%s\n",
			r.Name, r.DaysPresent, r.HalfDays, r.OvertimeHrs,
			core.FormatAmount(r.Earned), core.FormatAmount(r.Paid), core.FormatAmount(r.Due))
	}
	tw.Flush()
}

func printReport(w io.Writer, r services.Report) {
	switch r.Skipped {
	case services.SkipOffline:
		fmt.Fprintf(w, "%s skipped: device is offline\n", r.Direction)
		return
	case services.SkipUnconfigured:
		fmt.Fprintf(w, "%s skipped: no remote configured (see: nirmaan remote set)\n", r.Direction)
		return
	}
	tw := table(w)
	for _, t := range r.Tables {
		line := fmt.Sprintf("%s\t%d rows", t.Table, t.Rows)
		var notes []string
		if t.Deleted > 0 {
			notes = append(notes, fmt.Sprintf("%d deleted", t.Deleted))
		}
		if t.Skipped > 0 {
			notes = append(notes, fmt.Sprintf("%d unreadable", t.Skipped))
		}
		if t.Err != nil {
			notes = append(notes, "error: "+t.Err.Error())
		}
		fmt.Fprintf(tw, "%s\t%s\n", line, strings.Join(notes, ", "))
	}
	tw.Flush()
	outcome := "done"
	if !r.OK() {
		outcome = "finished with errors"
	}
	fmt.Fprintf(w, "%s %s in %s\n", r.Direction, outcome, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}
