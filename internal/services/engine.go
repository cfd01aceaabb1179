package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"nirmaan/internal/amqp"
	"nirmaan/internal/core"
	"nirmaan/internal/ledger"
	"nirmaan/internal/log"
	"nirmaan/internal/remote"
)

// maxParallelTables bounds concurrent remote calls per run. Sheets
// throttles bursts per spreadsheet.
const maxParallelTables = 3

// OnlineChecker reports whether the remote is currently reachable.
type OnlineChecker interface {
	Online() bool
}

// EventPublisher announces finished syncs to other devices.
type EventPublisher interface {
	PublishSyncEvent(ctx context.Context, ev amqp.SyncEvent) error
}

// Status is the sync state shown to the user.
type Status struct {
	Online       bool      `json:"online"`
	Syncing      bool      `json:"syncing"`
	Configured   bool      `json:"configured"`
	Remote       string    `json:"remote"`
	LastSyncTime time.Time `json:"lastSyncTime"`
	LastError    string    `json:"lastError,omitempty"`
}

// SyncEngine reconciles the ledger with a remote endpoint. Push and Pull
// may overlap; every remote call is an idempotent upsert, delete or
// select.
type SyncEngine struct {
	store   *ledger.Store
	online  OnlineChecker
	policy  Policy
	metrics *SyncMetrics
	events  EventPublisher
	log     *log.Logger
	now     func() time.Time

	epMu     sync.RWMutex
	endpoint remote.Endpoint

	syncing   atomic.Int32
	errMu     sync.Mutex
	lastError string
}

type EngineOption func(*SyncEngine)

func WithPolicy(p Policy) EngineOption {
	return func(e *SyncEngine) { e.policy = p }
}

func WithMetrics(m *SyncMetrics) EngineOption {
	return func(e *SyncEngine) { e.metrics = m }
}

// WithEvents publishes an event after every complete push.
func WithEvents(p EventPublisher) EngineOption {
	return func(e *SyncEngine) { e.events = p }
}

func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *SyncEngine) { e.log = l.WithComponent(log.ComponentSync) }
}

// WithEngineClock must agree with the store's clock: sync watermarks are
// compared against record timestamps.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *SyncEngine) { e.now = now }
}

// NewSyncEngine builds an engine. A nil endpoint means unconfigured and a
// nil online checker means always online.
func NewSyncEngine(store *ledger.Store, endpoint remote.Endpoint, online OnlineChecker, opts ...EngineOption) *SyncEngine {
	if endpoint == nil {
		endpoint = remote.Unconfigured()
	}
	e := &SyncEngine{
		store:    store,
		endpoint: endpoint,
		online:   online,
		policy:   PolicyLWW,
		log:      log.Default(log.ComponentSync),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Endpoint returns the current remote.
func (e *SyncEngine) Endpoint() remote.Endpoint {
	e.epMu.RLock()
	defer e.epMu.RUnlock()
	return e.endpoint
}

// SetEndpoint swaps the remote and returns the previous one, which the
// caller closes.
func (e *SyncEngine) SetEndpoint(ep remote.Endpoint) remote.Endpoint {
	if ep == nil {
		ep = remote.Unconfigured()
	}
	e.epMu.Lock()
	defer e.epMu.Unlock()
	old := e.endpoint
	e.endpoint = ep
	return old
}

func (e *SyncEngine) Online() bool {
	return e.online == nil || e.online.Online()
}

func (e *SyncEngine) Status() Status {
	_, configured := e.Endpoint().Tables()
	e.errMu.Lock()
	lastErr := e.lastError
	e.errMu.Unlock()
	return Status{
		Online:       e.Online(),
		Syncing:      e.syncing.Load() > 0,
		Configured:   configured,
		Remote:       e.Endpoint().Describe(),
		LastSyncTime: e.store.LastSyncTime(),
		LastError:    lastErr,
	}
}

// begin applies the gating rules. Without a remote or a connection the
// run is skipped and reported, never failed.
func (e *SyncEngine) begin(ctx context.Context, d Direction) (remote.TableStore, Report, bool) {
	r := Report{Direction: d, StartedAt: e.now()}
	tables, ok := e.Endpoint().Tables()
	switch {
	case !ok:
		r.Skipped = SkipUnconfigured
	case !e.Online():
		r.Skipped = SkipOffline
	}
	if r.Skipped != "" {
		r.FinishedAt = r.StartedAt
		e.metrics.observe(r)
		e.log.DebugContext(ctx, "Sync skipped", log.FieldDirection, string(d), "reason", string(r.Skipped))
		return nil, r, false
	}
	e.syncing.Add(1)
	return tables, r, true
}

func (e *SyncEngine) finish(ctx context.Context, r *Report) {
	r.FinishedAt = e.now()
	e.syncing.Add(-1)
	e.metrics.observe(*r)

	e.errMu.Lock()
	if err := r.Err(); err != nil {
		e.lastError = err.Error()
	} else {
		e.lastError = ""
	}
	e.errMu.Unlock()

	e.log.InfoContext(ctx, "Sync finished",
		log.FieldDirection, string(r.Direction),
		"tables", len(r.Tables),
		"failed", len(r.Failed()),
		log.FieldDuration, r.FinishedAt.Sub(r.StartedAt).Milliseconds())
}

type pushJob struct {
	table      string
	collection string
	rows       []remote.Row
	deletes    []string
}

func toRows[T any](in []T, f func(T) remote.Row) []remote.Row {
	out := make([]remote.Row, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}

// pushJobs turns a snapshot into per-table work. Empty collections with
// nothing to delete are left out; settings always go.
func pushJobs(snap ledger.Snapshot) []pushJob {
	labours := make(map[string]*core.Labour, len(snap.Labours))
	for i := range snap.Labours {
		labours[snap.Labours[i].ID] = &snap.Labours[i]
	}

	all := []pushJob{
		{table: remote.TableLabours, collection: ledger.NameLabours, rows: toRows(snap.Labours, remote.LabourToRow)},
		{table: remote.TableIncomes, collection: ledger.NameIncomes, rows: toRows(snap.Incomes, remote.IncomeToRow)},
		{table: remote.TableExpenses, collection: ledger.NameExpenses, rows: toRows(snap.Expenses, remote.ExpenseToRow)},
		{table: remote.TableAttendance, collection: ledger.NameAttendance, rows: toRows(snap.Attendance, func(a core.Attendance) remote.Row {
			return remote.AttendanceToRow(a, labours[a.LabourID])
		})},
		{table: remote.TablePayments, collection: ledger.NamePayments, rows: toRows(snap.Payments, func(p core.LabourPayment) remote.Row {
			return remote.PaymentToRow(p, labours[p.LabourID])
		})},
		{table: remote.TableSettings, collection: ledger.NameSettings, rows: []remote.Row{remote.SettingsToRow(snap.Settings)}},
	}

	jobs := all[:0]
	for _, j := range all {
		j.deletes = snap.TombstonesFor(j.collection)
		if len(j.rows) == 0 && len(j.deletes) == 0 {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs
}

// Push upserts every local record and deletes locally removed ids. A
// failing table does not stop the others; tombstones are cleared only for
// tables whose deletes succeeded.
func (e *SyncEngine) Push(ctx context.Context) (report Report) {
	tables, report, ok := e.begin(ctx, DirectionPush)
	if !ok {
		return report
	}
	defer e.finish(ctx, &report)

	e.store.Refresh(ctx)
	jobs := pushJobs(e.store.Snapshot())
	report.Tables = make([]TableResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelTables)
	for i, job := range jobs {
		g.Go(func() error {
			report.Tables[i] = e.pushTable(gctx, tables, job)
			return nil
		})
	}
	_ = g.Wait()

	if report.Err() == nil {
		e.store.SetLastPushTime(ctx, report.StartedAt)
		e.metrics.synced(report.StartedAt)
		e.announce(ctx, report)
	}
	return report
}

func (e *SyncEngine) pushTable(ctx context.Context, tables remote.TableStore, job pushJob) TableResult {
	res := TableResult{Table: job.table}
	if len(job.rows) > 0 {
		if err := tables.Upsert(ctx, job.table, job.rows); err != nil {
			res.Err = err
			e.tableFailed(ctx, DirectionPush, job.table, err)
			return res
		}
		res.Rows = len(job.rows)
	}
	if len(job.deletes) > 0 {
		if err := tables.Delete(ctx, job.table, job.deletes); err != nil {
			res.Err = err
			e.tableFailed(ctx, DirectionPush, job.table, err)
			return res
		}
		res.Deleted = len(job.deletes)
		e.store.ClearTombstones(ctx, job.collection, job.deletes)
	}
	return res
}

func (e *SyncEngine) tableFailed(ctx context.Context, d Direction, table string, err error) {
	e.log.ErrorContext(ctx, "Sync table failed", log.NewFields().
		WithSync(string(d)).
		WithTable(table, 0).
		WithError(err).
		WithErrorType(log.ErrorTypeNetwork).
		ToSlice()...)
}

func (e *SyncEngine) announce(ctx context.Context, r Report) {
	if e.events == nil {
		return
	}
	ev := amqp.SyncEvent{Direction: string(r.Direction), Tables: r.Synced(), Timestamp: r.FinishedAt}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	if err := e.events.PublishSyncEvent(ctx, ev); err != nil {
		e.log.WarnContext(ctx, "Failed to publish sync event", log.FieldError, err.Error())
	}
}

// pulled holds the decoded rows of every table that fetched.
type pulled struct {
	ok         map[string]bool
	incomes    []core.Income
	expenses   []core.Expense
	labours    []core.Labour
	attendance []core.Attendance
	payments   []core.LabourPayment
	settings   *core.Settings
}

// Pull fetches every remote table and installs the merge of each fetched
// table with the local collection. Tables that failed keep their local
// data. The last sync time moves only when every table fetched and every
// row decoded, so a skipped row is offered again by the next pull.
func (e *SyncEngine) Pull(ctx context.Context) (report Report) {
	tables, report, ok := e.begin(ctx, DirectionPull)
	if !ok {
		return report
	}
	defer e.finish(ctx, &report)

	rows := make([][]remote.Row, len(remote.AllTables))
	report.Tables = make([]TableResult, len(remote.AllTables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelTables)
	for i, table := range remote.AllTables {
		g.Go(func() error {
			res := TableResult{Table: table}
			got, err := tables.SelectAll(gctx, table)
			if err != nil {
				res.Err = err
				e.tableFailed(gctx, DirectionPull, table, err)
			}
			rows[i] = got
			report.Tables[i] = res
			return nil
		})
	}
	_ = g.Wait()

	p := pulled{ok: make(map[string]bool)}
	for i := range report.Tables {
		res := &report.Tables[i]
		if res.Err != nil {
			continue
		}
		p.ok[res.Table] = true
		res.Rows, res.Skipped = e.decode(ctx, &p, res.Table, rows[i])
	}

	e.store.ApplyRemote(ctx, func(cur ledger.Snapshot) ledger.RemoteUpdate {
		return e.mergePulled(cur, p)
	})

	if report.Err() != nil {
		return report
	}
	if n := report.SkippedRows(); n > 0 {
		e.log.WarnContext(ctx, "Pull kept the sync time, rows were skipped", "skipped", n)
		return report
	}
	e.store.SetLastSyncTime(ctx, e.now())
	e.metrics.synced(e.now())
	return report
}

// decode fills p for one table and returns the kept and skipped counts.
func (e *SyncEngine) decode(ctx context.Context, p *pulled, table string, rows []remote.Row) (int, int) {
	switch table {
	case remote.TableIncomes:
		p.incomes = decodeRows(ctx, e, table, rows, remote.IncomeFromRow)
		return len(p.incomes), len(rows) - len(p.incomes)
	case remote.TableExpenses:
		p.expenses = decodeRows(ctx, e, table, rows, remote.ExpenseFromRow)
		return len(p.expenses), len(rows) - len(p.expenses)
	case remote.TableLabours:
		p.labours = decodeRows(ctx, e, table, rows, remote.LabourFromRow)
		return len(p.labours), len(rows) - len(p.labours)
	case remote.TableAttendance:
		p.attendance = decodeRows(ctx, e, table, rows, remote.AttendanceFromRow)
		return len(p.attendance), len(rows) - len(p.attendance)
	case remote.TablePayments:
		p.payments = decodeRows(ctx, e, table, rows, remote.PaymentFromRow)
		return len(p.payments), len(rows) - len(p.payments)
	case remote.TableSettings:
		for _, r := range rows {
			if r.ID() != remote.SettingsRowID {
				continue
			}
			s, err := remote.SettingsFromRow(r)
			if err != nil {
				e.rowSkipped(ctx, table, err)
				return 0, 1
			}
			p.settings = &s
			return 1, 0
		}
	}
	return 0, 0
}

// decodeRows converts rows and drops any that do not decode or validate.
// The result is never nil, so an empty table still replaces under the
// overwrite policy.
func decodeRows[T interface{ Validate() error }](ctx context.Context, e *SyncEngine, table string, rows []remote.Row, from func(remote.Row) (T, error)) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v, err := from(r)
		if err == nil {
			err = v.Validate()
		}
		if err != nil {
			e.rowSkipped(ctx, table, err)
			continue
		}
		out = append(out, v)
	}
	return out
}

func (e *SyncEngine) rowSkipped(ctx context.Context, table string, err error) {
	e.log.WarnContext(ctx, "Skipping unreadable remote row",
		log.FieldTable, table,
		log.FieldError, err.Error())
}

func (e *SyncEngine) mergePulled(cur ledger.Snapshot, p pulled) ledger.RemoteUpdate {
	var u ledger.RemoteUpdate
	if p.ok[remote.TableIncomes] {
		u.Incomes = merge(e.policy, cur.Incomes, p.incomes, newMergeState(cur, ledger.NameIncomes))
	}
	if p.ok[remote.TableExpenses] {
		u.Expenses = merge(e.policy, cur.Expenses, p.expenses, newMergeState(cur, ledger.NameExpenses))
	}
	if p.ok[remote.TableLabours] {
		u.Labours = merge(e.policy, cur.Labours, p.labours, newMergeState(cur, ledger.NameLabours))
	}
	if p.ok[remote.TableAttendance] {
		u.Attendance = dedupeAttendance(merge(e.policy, cur.Attendance, p.attendance, newMergeState(cur, ledger.NameAttendance)))
	}
	if p.ok[remote.TablePayments] {
		u.Payments = merge(e.policy, cur.Payments, p.payments, newMergeState(cur, ledger.NamePayments))
	}
	if p.settings != nil {
		s := mergeSettings(e.policy, cur.Settings, *p.settings)
		u.Settings = &s
	}
	return u
}
