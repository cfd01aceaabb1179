package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"nirmaan/internal/amqp"
	"nirmaan/internal/core"
	"nirmaan/internal/ledger"
	"nirmaan/internal/log"
	"nirmaan/internal/remote"
	"nirmaan/internal/remote/memory"
	"nirmaan/internal/storage"
)

var errBoom = errors.New("boom")

// clock ticks one second per reading so every stamp is distinct.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type onlineFlag struct{ on bool }

func (o *onlineFlag) Online() bool { return o.on }

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.SyncEvent
}

func (p *recordingPublisher) PublishSyncEvent(_ context.Context, ev amqp.SyncEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type device struct {
	store  *ledger.Store
	engine *SyncEngine
}

func newDevice(t *testing.T, clk *clock, ep remote.Endpoint, opts ...EngineOption) *device {
	t.Helper()
	store := ledger.Open(context.Background(), storage.NewMemoryKV(),
		ledger.WithClock(clk.Now), ledger.WithLogger(log.Discard()))
	opts = append([]EngineOption{WithEngineClock(clk.Now), WithEngineLogger(log.Discard())}, opts...)
	return &device{store: store, engine: NewSyncEngine(store, ep, nil, opts...)}
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func seed(t *testing.T, s *ledger.Store) (core.Labour, core.Income) {
	t.Helper()
	ctx := context.Background()
	l, err := s.AddLabour(ctx, core.Labour{Name: "Ramesh", Type: "Mistri", DailyWage: decimal.NewFromInt(800), Category: core.Masonry})
	if err != nil {
		t.Fatalf("add labour: %v", err)
	}
	in, err := s.AddIncome(ctx, core.Income{
		Date: core.NewDate(2025, 3, 1), Amount: decimal.NewFromInt(50000),
		Source: core.SourceInvestment, PaidBy: core.PartnerSalik, Mode: core.ModeBank,
	})
	if err != nil {
		t.Fatalf("add income: %v", err)
	}
	if _, _, err := s.ToggleAttendance(ctx, l.ID, core.NewDate(2025, 3, 1), core.Present); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := s.AddPayment(ctx, core.LabourPayment{
		LabourID: l.ID, Date: core.NewDate(2025, 3, 1), Amount: decimal.NewFromInt(500),
		Type: core.PaymentAdvance, Mode: core.ModeCash,
	}); err != nil {
		t.Fatalf("add payment: %v", err)
	}
	return l, in
}

func tableNames(r Report) []string {
	var out []string
	for _, t := range r.Tables {
		out = append(out, t.Table)
	}
	return out
}

func TestSyncSkipsWithoutRemoteOrConnection(t *testing.T) {
	ctx := context.Background()
	clk := newClock()

	d := newDevice(t, clk, nil)
	for _, r := range []Report{d.engine.Push(ctx), d.engine.Pull(ctx)} {
		if r.Skipped != SkipUnconfigured || r.Err() != nil {
			t.Errorf("%s report = %+v, want skipped unconfigured", r.Direction, r)
		}
	}

	mem := memory.New()
	offline := &onlineFlag{on: false}
	store := ledger.Open(ctx, storage.NewMemoryKV(), ledger.WithLogger(log.Discard()))
	e := NewSyncEngine(store, remote.Configured("memory", mem, nil), offline, WithEngineLogger(log.Discard()))
	if r := e.Push(ctx); r.Skipped != SkipOffline {
		t.Errorf("Push() skipped = %q, want offline", r.Skipped)
	}
	if r := e.Pull(ctx); r.Skipped != SkipOffline {
		t.Errorf("Pull() skipped = %q, want offline", r.Skipped)
	}
	if calls := mem.Calls(); len(calls) != 0 {
		t.Errorf("offline sync touched the remote: %v", calls)
	}

	offline.on = true
	if r := e.Push(ctx); r.Skipped != "" {
		t.Errorf("Push() after reconnect skipped = %q", r.Skipped)
	}
}

func TestPushSendsNonEmptyTablesWithLabourColumns(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	d := newDevice(t, newClock(), remote.Configured("memory", mem, nil))
	seed(t, d.store)

	r := d.engine.Push(ctx)
	if !r.OK() {
		t.Fatalf("Push() failed: %v", r.Err())
	}
	got := tableNames(r)
	slices.Sort(got)
	want := []string{remote.TableAttendance, remote.TableIncomes, remote.TablePayments, remote.TableLabours, remote.TableSettings}
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Errorf("pushed tables = %v, want %v", got, want)
	}
	if slices.Contains(mem.Calls(), "upsert:"+remote.TableExpenses) {
		t.Error("empty expenses collection was pushed")
	}

	rows, _ := mem.SelectAll(ctx, remote.TableAttendance)
	if len(rows) != 1 {
		t.Fatalf("attendance rows = %d", len(rows))
	}
	if rows[0][remote.ColLabourName] != "Ramesh" || rows[0][remote.ColDailyWageAtTime] != "800" {
		t.Errorf("attendance row = %v, want labour name and wage", rows[0])
	}
	rows, _ = mem.SelectAll(ctx, remote.TablePayments)
	if len(rows) != 1 || rows[0][remote.ColLabourName] != "Ramesh" {
		t.Errorf("payment rows = %v", rows)
	}
	rows, _ = mem.SelectAll(ctx, remote.TableSettings)
	if len(rows) != 1 || rows[0].ID() != remote.SettingsRowID {
		t.Errorf("settings rows = %v", rows)
	}

	snap := d.store.Snapshot()
	if !snap.LastPushTime.Equal(r.StartedAt) || snap.LastSyncTime.IsZero() {
		t.Errorf("watermarks = %v / %v, want push start %v", snap.LastPushTime, snap.LastSyncTime, r.StartedAt)
	}
	if r.FinishedAt.Before(r.StartedAt) {
		t.Errorf("FinishedAt %v before StartedAt %v", r.FinishedAt, r.StartedAt)
	}
}

func TestPushDeletesTombstonedRows(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	d := newDevice(t, newClock(), remote.Configured("memory", mem, nil))
	l, _ := seed(t, d.store)

	if r := d.engine.Push(ctx); !r.OK() {
		t.Fatalf("first push: %v", r.Err())
	}
	if err := d.store.DeleteLabour(ctx, l.ID); err != nil {
		t.Fatalf("delete labour: %v", err)
	}
	if n := len(d.store.Snapshot().Tombstones); n != 2 {
		t.Fatalf("tombstones = %d, want labour and its attendance", n)
	}

	r := d.engine.Push(ctx)
	if !r.OK() {
		t.Fatalf("second push: %v", r.Err())
	}
	for _, table := range []string{remote.TableLabours, remote.TableAttendance} {
		rows, _ := mem.SelectAll(ctx, table)
		if len(rows) != 0 {
			t.Errorf("%s still has %d rows", table, len(rows))
		}
	}
	// The payment keeps its dangling reference remotely too.
	if rows, _ := mem.SelectAll(ctx, remote.TablePayments); len(rows) != 1 {
		t.Errorf("payments = %d, want 1", len(rows))
	}
	if n := len(d.store.Snapshot().Tombstones); n != 0 {
		t.Errorf("tombstones after push = %d, want 0", n)
	}
}

func TestPushPartialFailure(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	mem.Fail(remote.TableIncomes, errBoom)
	d := newDevice(t, newClock(), remote.Configured("memory", mem, nil))
	seed(t, d.store)

	r := d.engine.Push(ctx)
	if r.OK() {
		t.Fatal("expected a failed table")
	}
	if got := r.Failed(); !slices.Equal(got, []string{remote.TableIncomes}) {
		t.Errorf("Failed() = %v", got)
	}
	if !errors.Is(r.Err(), errBoom) {
		t.Errorf("Err() = %v, want boom", r.Err())
	}
	if rows, _ := mem.SelectAll(ctx, remote.TableLabours); len(rows) != 1 {
		t.Errorf("labours not pushed alongside the failure: %d rows", len(rows))
	}
	if !d.store.LastSyncTime().IsZero() {
		t.Error("last sync time advanced after a partial push")
	}

	st := d.engine.Status()
	if !strings.Contains(st.LastError, remote.TableIncomes) || st.Syncing || !st.Configured || st.Remote != "memory" {
		t.Errorf("Status() = %+v", st)
	}

	mem.Fail(remote.TableIncomes, nil)
	if r := d.engine.Push(ctx); !r.OK() {
		t.Fatalf("retry push: %v", r.Err())
	}
	if st := d.engine.Status(); st.LastError != "" {
		t.Errorf("LastError after success = %q", st.LastError)
	}
}

func TestPullBringsAnotherDevicesLedger(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	ep := remote.Configured("memory", memory.New(), nil)
	a := newDevice(t, clk, ep)
	b := newDevice(t, clk, ep)

	l, in := seed(t, a.store)
	if _, err := a.store.UpdateSettings(ctx, func(s *core.Settings) { s.SchoolName = "Govt. Inter College" }); err != nil {
		t.Fatalf("settings: %v", err)
	}
	if r := a.engine.Push(ctx); !r.OK() {
		t.Fatalf("push: %v", r.Err())
	}

	r := b.engine.Pull(ctx)
	if !r.OK() {
		t.Fatalf("pull: %v", r.Err())
	}
	snap := b.store.Snapshot()
	if len(snap.Labours) != 1 || snap.Labours[0].ID != l.ID || !snap.Labours[0].DailyWage.Equal(decimal.NewFromInt(800)) {
		t.Errorf("labours = %+v", snap.Labours)
	}
	if len(snap.Incomes) != 1 || snap.Incomes[0].ID != in.ID || snap.Incomes[0].PaidBy != core.PartnerSalik {
		t.Errorf("incomes = %+v", snap.Incomes)
	}
	if len(snap.Attendance) != 1 || snap.Attendance[0].Status != core.Present {
		t.Errorf("attendance = %+v", snap.Attendance)
	}
	if len(snap.Payments) != 1 {
		t.Errorf("payments = %+v", snap.Payments)
	}
	if snap.Settings.SchoolName != "Govt. Inter College" {
		t.Errorf("settings = %+v", snap.Settings)
	}
	if snap.LastSyncTime.IsZero() {
		t.Error("last sync time not set after pull")
	}
	if !snap.LastPushTime.IsZero() {
		t.Error("pull must not move the push watermark")
	}
}

func TestPullLastWriteWins(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	ep := remote.Configured("memory", memory.New(), nil)
	a := newDevice(t, clk, ep)
	b := newDevice(t, clk, ep)

	l, in := seed(t, a.store)
	a.engine.Push(ctx)
	b.engine.Pull(ctx)

	// Both edit the labour; b edits last.
	la := l
	la.DailyWage = decimal.NewFromInt(850)
	if _, err := a.store.UpdateLabour(ctx, la); err != nil {
		t.Fatalf("update a: %v", err)
	}
	lb := l
	lb.DailyWage = decimal.NewFromInt(900)
	if _, err := b.store.UpdateLabour(ctx, lb); err != nil {
		t.Fatalf("update b: %v", err)
	}

	a.engine.Push(ctx)
	b.engine.Pull(ctx)
	if w := b.store.Snapshot().Labours[0].DailyWage; !w.Equal(decimal.NewFromInt(900)) {
		t.Errorf("b lost its newer edit: wage %s", w)
	}
	b.engine.Push(ctx)
	a.engine.Pull(ctx)
	if w := a.store.Snapshot().Labours[0].DailyWage; !w.Equal(decimal.NewFromInt(900)) {
		t.Errorf("a did not take the newer edit: wage %s", w)
	}

	// a deletes the income; a pull before a's push must not bring it back.
	if err := a.store.DeleteIncome(ctx, in.ID); err != nil {
		t.Fatalf("delete income: %v", err)
	}
	a.engine.Pull(ctx)
	if n := len(a.store.Snapshot().Incomes); n != 0 {
		t.Errorf("deleted income resurrected: %d incomes", n)
	}
	a.engine.Push(ctx)

	// b already pushed the income once, so its absence means a remote delete.
	// A new unpushed expense on b survives the same pull.
	if _, err := b.store.AddExpense(ctx, core.Expense{
		Date: core.NewDate(2025, 3, 2), Amount: decimal.NewFromInt(1200), Category: core.Material,
		SubCategory: core.SubMaterial, ItemDetail: "Cement", PaidTo: "Gupta Traders",
		PaidBy: core.PartnerMuzahir, Mode: core.ModeUPI,
	}); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	b.engine.Pull(ctx)
	snap := b.store.Snapshot()
	if len(snap.Incomes) != 0 {
		t.Errorf("remote delete not applied on b: %d incomes", len(snap.Incomes))
	}
	if len(snap.Expenses) != 1 {
		t.Errorf("unpushed expense dropped by pull: %d expenses", len(snap.Expenses))
	}
}

func TestPullOverwritePolicy(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newClock(), remote.Configured("memory", memory.New(), nil), WithPolicy(PolicyOverwrite))
	seed(t, d.store)
	if _, err := d.store.UpdateSettings(ctx, func(s *core.Settings) { s.Location = "Rampur" }); err != nil {
		t.Fatalf("settings: %v", err)
	}

	if r := d.engine.Pull(ctx); !r.OK() {
		t.Fatalf("pull: %v", r.Err())
	}
	snap := d.store.Snapshot()
	if len(snap.Incomes)+len(snap.Labours)+len(snap.Attendance)+len(snap.Payments) != 0 {
		t.Errorf("overwrite with empty remote kept local records: %+v", snap)
	}
	if snap.Settings.Location != "Rampur" {
		t.Error("settings replaced although the remote has no settings row")
	}
}

func TestPullPartialFailureKeepsLocalTable(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	mem := memory.New()
	ep := remote.Configured("memory", mem, nil)
	a := newDevice(t, clk, ep)
	b := newDevice(t, clk, ep)

	seed(t, a.store)
	a.engine.Push(ctx)

	if _, err := b.store.AddLabour(ctx, core.Labour{Name: "Suresh", Type: "Majdoor", DailyWage: decimal.NewFromInt(500)}); err != nil {
		t.Fatalf("add labour: %v", err)
	}
	mem.Fail(remote.TableLabours, errBoom)

	r := b.engine.Pull(ctx)
	if got := r.Failed(); !slices.Equal(got, []string{remote.TableLabours}) {
		t.Fatalf("Failed() = %v", got)
	}
	snap := b.store.Snapshot()
	if len(snap.Labours) != 1 || snap.Labours[0].Name != "Suresh" {
		t.Errorf("labours = %+v, want local Suresh only", snap.Labours)
	}
	if len(snap.Incomes) != 1 {
		t.Errorf("incomes from the healthy table not applied: %d", len(snap.Incomes))
	}
	if !snap.LastSyncTime.IsZero() {
		t.Error("last sync time advanced after a partial pull")
	}
}

func TestPullSkipsUnreadableRows(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	good := remote.IncomeToRow(core.Income{
		ID: "i1", Date: core.NewDate(2025, 3, 1), Amount: decimal.NewFromInt(10),
		Source: core.SourceLoan, PaidBy: core.PartnerOther, Mode: core.ModeCash,
	})
	bad := remote.Row{remote.ColID: "i2", remote.ColDate: "yesterday", remote.ColAmount: "10"}
	if err := mem.Upsert(ctx, remote.TableIncomes, []remote.Row{good, bad}); err != nil {
		t.Fatal(err)
	}

	d := newDevice(t, newClock(), remote.Configured("memory", mem, nil))
	r := d.engine.Pull(ctx)
	if !r.OK() {
		t.Fatalf("pull: %v", r.Err())
	}
	var res TableResult
	for _, tr := range r.Tables {
		if tr.Table == remote.TableIncomes {
			res = tr
		}
	}
	if res.Rows != 1 || res.Skipped != 1 {
		t.Errorf("incomes result = %+v, want 1 kept 1 skipped", res)
	}
	if n := len(d.store.Snapshot().Incomes); n != 1 {
		t.Errorf("incomes = %d", n)
	}
	if r.SkippedRows() != 1 {
		t.Errorf("SkippedRows() = %d", r.SkippedRows())
	}
	if !d.store.LastSyncTime().IsZero() {
		t.Error("last sync time advanced past a skipped row")
	}
}

func TestPullKeepsExpenseWithoutPayer(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	row := remote.ExpenseToRow(core.Expense{
		ID: "e1", Date: core.NewDate(2025, 3, 1), Amount: decimal.NewFromInt(150),
		Category: core.Food, SubCategory: core.SubVendor, PaidTo: core.DefaultFoodPaidTo,
		Mode: core.ModeCash, Notes: "tea",
	})
	delete(row, remote.ColPaidBy)
	if err := mem.Upsert(ctx, remote.TableExpenses, []remote.Row{row}); err != nil {
		t.Fatal(err)
	}

	d := newDevice(t, newClock(), remote.Configured("memory", mem, nil))
	r := d.engine.Pull(ctx)
	if !r.OK() || r.SkippedRows() != 0 {
		t.Fatalf("pull: err=%v skipped=%d", r.Err(), r.SkippedRows())
	}
	snap := d.store.Snapshot()
	if len(snap.Expenses) != 1 || snap.Expenses[0].PaidBy != "" || snap.Expenses[0].Notes != "tea" {
		t.Errorf("expenses = %+v", snap.Expenses)
	}
	if snap.LastSyncTime.IsZero() {
		t.Error("clean pull did not set the sync time")
	}
}

func TestPushSendsWageAtMarkingTime(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	d := newDevice(t, newClock(), remote.Configured("memory", mem, nil))
	l, _ := seed(t, d.store)

	if r := d.engine.Push(ctx); !r.OK() {
		t.Fatalf("first push: %v", r.Err())
	}
	l.DailyWage = decimal.NewFromInt(1000)
	if _, err := d.store.UpdateLabour(ctx, l); err != nil {
		t.Fatalf("raise wage: %v", err)
	}
	if _, _, err := d.store.ToggleAttendance(ctx, l.ID, core.NewDate(2025, 3, 2), core.Present); err != nil {
		t.Fatalf("mark second day: %v", err)
	}
	if r := d.engine.Push(ctx); !r.OK() {
		t.Fatalf("second push: %v", r.Err())
	}

	rows, _ := mem.SelectAll(ctx, remote.TableAttendance)
	wages := map[any]any{}
	for _, row := range rows {
		wages[row[remote.ColDate]] = row[remote.ColDailyWageAtTime]
	}
	if wages["2025-03-01"] != "800" || wages["2025-03-02"] != "1000" {
		t.Errorf("daily wage at time = %v, want 800 then 1000", wages)
	}

	b := newDevice(t, newClock(), remote.Configured("memory", mem, nil))
	b.engine.Pull(ctx)
	for _, a := range b.store.Snapshot().Attendance {
		if a.Date.String() == "2025-03-01" && !a.WageAtTime.Equal(decimal.NewFromInt(800)) {
			t.Errorf("pulled wage at time = %s", a.WageAtTime)
		}
	}
}

func TestDaemonSyncSeesWritesFromAnotherProcess(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	mem := memory.New()
	path := t.TempDir() + "/ledger.db"

	open := func() *ledger.Store {
		kv, err := storage.NewSQLiteKV(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { kv.Close() })
		return ledger.Open(ctx, kv, ledger.WithClock(clk.Now), ledger.WithLogger(log.Discard()))
	}
	daemon := open()
	engine := NewSyncEngine(daemon, remote.Configured("memory", mem, nil), nil,
		WithEngineClock(clk.Now), WithEngineLogger(log.Discard()))

	cli := open()
	in, err := cli.AddIncome(ctx, core.Income{
		Date: core.NewDate(2025, 3, 1), Amount: decimal.NewFromInt(7000),
		Source: core.SourceLoan, PaidBy: core.PartnerSalik, Mode: core.ModeCash,
	})
	if err != nil {
		t.Fatalf("add income: %v", err)
	}

	if r := engine.Pull(ctx); !r.OK() {
		t.Fatalf("pull: %v", r.Err())
	}
	if n := len(open().Snapshot().Incomes); n != 1 {
		t.Fatalf("daemon pull clobbered the file: %d incomes", n)
	}

	if r := engine.Push(ctx); !r.OK() {
		t.Fatalf("push: %v", r.Err())
	}
	rows, _ := mem.SelectAll(ctx, remote.TableIncomes)
	if len(rows) != 1 || rows[0].ID() != in.ID {
		t.Errorf("remote incomes = %v, want the income written by the other process", rows)
	}
}

func TestPushPublishesEventAndMetrics(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	pub := &recordingPublisher{}
	reg := prometheus.NewRegistry()
	metrics := NewSyncMetrics(reg)

	d := newDevice(t, newClock(), remote.Configured("memory", mem, nil), WithEvents(pub), WithMetrics(metrics))
	seed(t, d.store)

	d.engine.Push(ctx)
	if len(pub.events) != 1 || pub.events[0].Direction != string(DirectionPush) {
		t.Fatalf("events = %+v", pub.events)
	}
	if !slices.Contains(pub.events[0].Tables, remote.TableLabours) {
		t.Errorf("event tables = %v", pub.events[0].Tables)
	}
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("push", "ok")); got != 1 {
		t.Errorf("push ok runs = %v", got)
	}
	if got := testutil.ToFloat64(metrics.rows.WithLabelValues("push", remote.TableLabours)); got != 1 {
		t.Errorf("labour rows = %v", got)
	}

	mem.Fail(remote.TableExpenses, errBoom)
	mem.Fail(remote.TableIncomes, errBoom)
	d.engine.Pull(ctx)
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("pull", "partial")); got != 1 {
		t.Errorf("pull partial runs = %v", got)
	}
	if got := testutil.ToFloat64(metrics.tableErrors.WithLabelValues("pull", remote.TableIncomes)); got != 1 {
		t.Errorf("income pull errors = %v", got)
	}
	if len(pub.events) != 1 {
		t.Errorf("pulls must not publish, got %d events", len(pub.events))
	}

	var nilMetrics *SyncMetrics
	nilMetrics.SetOnline(true)
	nilMetrics.observe(Report{Direction: DirectionPush})
}

func TestSetEndpointSwapsRemote(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newClock(), nil)
	if st := d.engine.Status(); st.Configured {
		t.Fatal("expected unconfigured")
	}
	old := d.engine.SetEndpoint(remote.Configured("memory", memory.New(), nil))
	if old.Describe() != "none" {
		t.Errorf("previous endpoint = %q", old.Describe())
	}
	if r := d.engine.Push(ctx); r.Skipped != "" {
		t.Errorf("push after SetEndpoint skipped: %q", r.Skipped)
	}
}
