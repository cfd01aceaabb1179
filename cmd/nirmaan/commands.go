package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nirmaan/internal/auth"
	"nirmaan/internal/backend"
	"nirmaan/internal/cli"
	"nirmaan/internal/config"
	"nirmaan/internal/connectivity"
	"nirmaan/internal/core"
	"nirmaan/internal/dashboard"
	"nirmaan/internal/export"
	"nirmaan/internal/services"
)

func runSummary(ctx context.Context, a *app, args []string) error {
	printSummary(a.out, a.store.Snapshot())
	return nil
}

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := newFlags("history", a)
	q := fs.String("q", "", "only entries whose text contains this")
	category := fs.String("category", "", "list only expenses in this category")
	if err := fs.Parse(args); err != nil {
		return err
	}
	snap := a.store.Snapshot()
	if *category == "" {
		printHistory(a.out, dashboard.MergedHistory(snap, *q))
		return nil
	}
	c, err := choose("category", *category, core.Categories)
	if err != nil {
		return err
	}
	printExpenses(a.out, dashboard.FilterExpenses(snap, c, *q))
	return nil
}

func runRecent(ctx context.Context, a *app, args []string) error {
	printRecent(a.out, dashboard.RecentActivity(a.store.Snapshot()))
	return nil
}

func runBudget(ctx context.Context, a *app, args []string) error {
	printBudget(a.out, dashboard.Budget(a.store.Snapshot()))
	return nil
}

func runLabourLedger(ctx context.Context, a *app, args []string) error {
	fs := newFlags("labour-ledger", a)
	ref := fs.String("labour", "", "show one labour's payments")
	if err := fs.Parse(args); err != nil {
		return err
	}
	snap := a.store.Snapshot()
	if *ref == "" {
		printLabourLedger(a.out, dashboard.LabourLedger(snap))
		return nil
	}
	l, err := findLabour(snap, *ref)
	if err != nil {
		return err
	}
	printPayments(a.out, l, dashboard.PaymentsFor(snap, l.ID))
	return nil
}

func runAddIncome(ctx context.Context, a *app, args []string) error {
	fs := newFlags("add-income", a)
	amount := fs.String("amount", "", "amount in rupees")
	date := fs.String("date", "", "YYYY-MM-DD (default today)")
	source := fs.String("source", string(core.SourceInvestment), "Investment, Loan, Donation or Other")
	paidBy := fs.String("paid-by", "", "partner who brought the money")
	mode := fs.String("mode", string(core.ModeCash), "Cash, Bank, UPI or Check")
	remarks := fs.String("remarks", "", "free text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("amount", *amount, "paid-by", *paidBy); err != nil {
		return err
	}

	in := core.Income{Remarks: *remarks}
	var err error
	if in.Amount, err = core.ParseAmount(*amount); err != nil {
		return err
	}
	if in.Date, err = dateOrToday(*date); err != nil {
		return err
	}
	if in.Source, err = choose("source", *source, core.IncomeSources); err != nil {
		return err
	}
	if in.PaidBy, err = choose("partner", *paidBy, core.Partners); err != nil {
		return err
	}
	if in.Mode, err = choose("mode", *mode, core.PaymentModes); err != nil {
		return err
	}

	saved, err := a.store.AddIncome(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "added income %s  %s from %s\n", saved.ID, core.FormatAmount(saved.Amount), saved.PaidBy)
	return nil
}

func runAddExpense(ctx context.Context, a *app, args []string) error {
	fs := newFlags("add-expense", a)
	amount := fs.String("amount", "", "amount in rupees")
	date := fs.String("date", "", "YYYY-MM-DD (default today)")
	category := fs.String("category", "", "expense category")
	sub := fs.String("sub", string(core.SubOther), "Karigar, Majdoor, Material, Vendor or Other")
	item := fs.String("item", "", "item bought, e.g. "+strings.Join(core.MaterialItems, ", ")+" or "+strings.Join(core.FoodItems, ", "))
	paidTo := fs.String("paid-to", "", "payee (default Vendor)")
	paidBy := fs.String("paid-by", "", "partner who paid (optional)")
	mode := fs.String("mode", string(core.ModeCash), "Cash, Bank, UPI or Check")
	notes := fs.String("notes", "", "free text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("amount", *amount, "category", *category); err != nil {
		return err
	}

	e := core.Expense{ItemDetail: *item, PaidTo: *paidTo, Notes: *notes}
	var err error
	if e.Amount, err = core.ParseAmount(*amount); err != nil {
		return err
	}
	if e.Date, err = dateOrToday(*date); err != nil {
		return err
	}
	if e.Category, err = choose("category", *category, core.Categories); err != nil {
		return err
	}
	if e.SubCategory, err = choose("sub-category", *sub, core.SubCategories); err != nil {
		return err
	}
	if *paidBy != "" {
		if e.PaidBy, err = choose("partner", *paidBy, core.Partners); err != nil {
			return err
		}
	}
	if e.Mode, err = choose("mode", *mode, core.PaymentModes); err != nil {
		return err
	}

	saved, err := a.store.AddExpense(ctx, e)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "added expense %s  %s on %s to %s\n", saved.ID, core.FormatAmount(saved.Amount), saved.Category, saved.PaidTo)
	return nil
}

func runAddLabour(ctx context.Context, a *app, args []string) error {
	fs := newFlags("add-labour", a)
	name := fs.String("name", "", "labour name")
	typ := fs.String("type", "", "trade, e.g. Mistri or Helper")
	wage := fs.String("wage", "", "daily wage in rupees")
	mobile := fs.String("mobile", "", "mobile number")
	category := fs.String("category", "", "category the wages are booked to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("name", *name); err != nil {
		return err
	}

	l := core.Labour{Name: *name, Type: *typ, Mobile: *mobile}
	var err error
	if l.DailyWage, err = core.ParseWage(*wage); err != nil {
		return err
	}
	if *category != "" {
		if l.Category, err = choose("category", *category, core.Categories); err != nil {
			return err
		}
	}
	if l.Type == "" {
		return fmt.Errorf("need -type, e.g. %s", strings.Join(core.LabourTypes(l.EffectiveCategory()), ", "))
	}

	saved, err := a.store.AddLabour(ctx, l)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "added labour %s  %s (%s) at %s/day\n", saved.ID, saved.Name, saved.Type, core.FormatAmount(saved.DailyWage))
	return nil
}

func runDeleteLabour(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: delete-labour <id|name>")
	}
	l, err := findLabour(a.store.Snapshot(), args[0])
	if err != nil {
		return err
	}
	if err := a.store.DeleteLabour(ctx, l.ID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted labour %s\n", l.Name)
	return nil
}

func runAttendance(ctx context.Context, a *app, args []string) error {
	fs := newFlags("attendance", a)
	ref := fs.String("labour", "", "labour id or name")
	date := fs.String("date", "", "YYYY-MM-DD (default today)")
	status := fs.String("status", string(core.Present), "Present, Absent or Half-Day")
	if err := fs.Parse(args); err != nil {
		return err
	}
	day, err := dateOrToday(*date)
	if err != nil {
		return err
	}
	snap := a.store.Snapshot()
	if *ref == "" {
		printAttendance(a.out, snap, day)
		return nil
	}
	l, err := findLabour(snap, *ref)
	if err != nil {
		return err
	}
	st, err := choose("status", *status, core.AttendanceStatuses)
	if err != nil {
		return err
	}

	_, marked, err := a.store.ToggleAttendance(ctx, l.ID, day, st)
	if err != nil {
		return err
	}
	if marked {
		fmt.Fprintf(a.out, "%s marked %s on %s\n", l.Name, st, day)
	} else {
		fmt.Fprintf(a.out, "%s cleared on %s\n", l.Name, day)
	}
	return nil
}

func runOvertime(ctx context.Context, a *app, args []string) error {
	fs := newFlags("overtime", a)
	ref := fs.String("labour", "", "labour id or name")
	date := fs.String("date", "", "YYYY-MM-DD (default today)")
	hours := fs.Float64("hours", 0, "overtime hours (0-24)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("labour", *ref); err != nil {
		return err
	}
	l, err := findLabour(a.store.Snapshot(), *ref)
	if err != nil {
		return err
	}
	day, err := dateOrToday(*date)
	if err != nil {
		return err
	}
	if _, err := a.store.SetOvertime(ctx, l.ID, day, *hours); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s overtime on %s set to %g h\n", l.Name, day, *hours)
	return nil
}

func runAddPayment(ctx context.Context, a *app, args []string) error {
	fs := newFlags("add-payment", a)
	ref := fs.String("labour", "", "labour id or name")
	amount := fs.String("amount", "", "amount in rupees")
	date := fs.String("date", "", "YYYY-MM-DD (default today)")
	typ := fs.String("type", string(core.PaymentAdvance), "Advance or Full Payment")
	mode := fs.String("mode", string(core.ModeCash), "Cash, Bank, UPI or Check")
	remarks := fs.String("remarks", "", "free text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("labour", *ref, "amount", *amount); err != nil {
		return err
	}
	l, err := findLabour(a.store.Snapshot(), *ref)
	if err != nil {
		return err
	}

	p := core.LabourPayment{LabourID: l.ID, Remarks: *remarks}
	if p.Amount, err = core.ParseAmount(*amount); err != nil {
		return err
	}
	if p.Date, err = dateOrToday(*date); err != nil {
		return err
	}
	if p.Type, err = choose("payment type", *typ, core.PaymentTypes); err != nil {
		return err
	}
	if p.Mode, err = choose("mode", *mode, core.PaymentModes); err != nil {
		return err
	}

	saved, err := a.store.AddPayment(ctx, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "paid %s %s to %s\n", saved.Type, core.FormatAmount(saved.Amount), l.Name)
	return nil
}

func runSetBudget(ctx context.Context, a *app, args []string) error {
	fs := newFlags("set-budget", a)
	category := fs.String("category", "", "category to budget")
	amount := fs.String("amount", "", "budget in rupees")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("category", *category, "amount", *amount); err != nil {
		return err
	}

	c, err := choose("category", *category, core.Categories)
	if err != nil {
		return err
	}
	v, err := core.ParseWage(*amount)
	if err != nil {
		return err
	}
	s, err := a.store.SetCategoryBudget(ctx, c, v)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s budget set to %s (estimated total %s)\n", c, core.FormatAmount(s.Budget(c)), core.FormatAmount(s.EstimatedBudget))
	return nil
}

func (a *app) engine(ctx context.Context) (*services.SyncEngine, func(), error) {
	policy, err := services.ParsePolicy(a.cfg.PullPolicy)
	if err != nil {
		return nil, nil, err
	}
	endpoint, rc := cli.OpenEndpoint(ctx, a.log, a.cfg, a.kv)

	tracker := connectivity.NewTracker(true)
	addr := a.cfg.ProbeAddr
	if addr == "" {
		addr = backend.ProbeAddress(rc)
	}
	var probe connectivity.ProbeFunc
	if addr != "" {
		probe = connectivity.DialProbe(addr, 5*time.Second)
	}
	connectivity.NewProber(tracker, probe, a.cfg.ProbeInterval, a.log).Check(ctx)

	e := services.NewSyncEngine(a.store, endpoint, tracker,
		services.WithPolicy(policy), services.WithEngineLogger(a.log))
	return e, func() { endpoint.Close() }, nil
}

func runPush(ctx context.Context, a *app, args []string) error {
	e, closeFn, err := a.engine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	r := e.Push(ctx)
	printReport(a.out, r)
	return r.Err()
}

func runPull(ctx context.Context, a *app, args []string) error {
	e, closeFn, err := a.engine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	r := e.Pull(ctx)
	printReport(a.out, r)
	return r.Err()
}

func runRemote(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 || args[0] != "set" {
		return errors.New("usage: remote set -backend sheets|mysql|memory -url URL -key KEY")
	}
	fs := newFlags("remote set", a)
	typ := fs.String("backend", string(backend.SheetsBackend), "sheets, mysql or memory")
	url := fs.String("url", "", "spreadsheet id/URL, MySQL DSN, or memory file")
	key := fs.String("key", "", "service account JSON/path, or MySQL password")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	rc := backend.Config{Type: backend.BackendType(*typ), URL: *url, Key: *key}
	if err := config.SaveRemote(ctx, a.kv, rc); err != nil {
		return err
	}
	if rc.Configured() {
		fmt.Fprintf(a.out, "remote saved: %s\n", rc.Type)
	} else {
		fmt.Fprintln(a.out, "remote cleared; sync is off until a URL and key are saved")
	}
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags("login", a)
	phone := fs.String("phone", "", "registered mobile number")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	svc := auth.NewService(a.kv, a.store, a.log)
	_, has, err := svc.Identify(ctx, *phone)
	if err != nil {
		return err
	}
	if !has {
		return errors.New("no password yet, create one with passwd")
	}
	id, err := svc.Login(ctx, *phone, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "signed in as %s (%s)\n", id.Partner, id.Role)
	return nil
}

func runLogout(ctx context.Context, a *app, args []string) error {
	auth.NewService(a.kv, a.store, a.log).Logout(ctx)
	fmt.Fprintln(a.out, "signed out")
	return nil
}

func runPasswd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("passwd", a)
	phone := fs.String("phone", "", "registered mobile number")
	password := fs.String("password", "", "new password")
	confirm := fs.String("confirm", "", "new password again")
	if err := fs.Parse(args); err != nil {
		return err
	}
	svc := auth.NewService(a.kv, a.store, a.log)
	_, has, err := svc.Identify(ctx, *phone)
	if err != nil {
		return err
	}
	if has {
		if err := svc.ResetPassword(ctx, *phone, *password, *confirm); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "password changed, sign in with login")
		return nil
	}
	id, err := svc.CreatePassword(ctx, *phone, *password, *confirm)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "password created, signed in as %s\n", id.Partner)
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := newFlags("export", a)
	out := fs.String("o", "nirmaan.xlsx", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := export.SaveWorkbook(*out, a.store.Snapshot()); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s\n", *out)
	return nil
}

func runReset(ctx context.Context, a *app, args []string) error {
	fs := newFlags("reset", a)
	confirm := fs.String("confirm", "", "type RESET to delete all ledger data")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *confirm != "RESET" {
		return errors.New("refusing to reset without -confirm RESET")
	}
	a.store.Reset(ctx)
	fmt.Fprintln(a.out, "all ledger data deleted")
	return nil
}
