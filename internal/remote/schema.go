package remote

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"nirmaan/internal/core"
)

// Column names. Local fields are camelCase, remote columns snake_case.
const (
	ColID              = "id"
	ColDate            = "date"
	ColAmount          = "amount"
	ColSource          = "source"
	ColPaidBy          = "paid_by"
	ColPaidTo          = "paid_to"
	ColMode            = "mode"
	ColRemarks         = "remarks"
	ColNotes           = "notes"
	ColCategory        = "category"
	ColSubCategory     = "sub_category"
	ColItemDetail      = "item_detail"
	ColName            = "name"
	ColType            = "type"
	ColDailyWage       = "daily_wage"
	ColMobile          = "mobile"
	ColLabourID        = "labour_id"
	ColStatus          = "status"
	ColOvertimeHours   = "overtime_hours"
	ColLabourName      = "labour_name"
	ColDailyWageAtTime = "daily_wage_at_time"
	ColSchoolName      = "school_name"
	ColLocation        = "location"
	ColLogo            = "logo"
	ColEstimatedBudget = "estimated_budget"
	ColCategoryBudgets = "category_budgets"
	ColLanguage        = "language"
	ColUpdatedAt       = "updated_at"
)

var tableColumns = map[string][]string{
	TableIncomes:    {ColID, ColDate, ColAmount, ColSource, ColPaidBy, ColMode, ColRemarks, ColUpdatedAt},
	TableExpenses:   {ColID, ColDate, ColAmount, ColCategory, ColSubCategory, ColItemDetail, ColPaidTo, ColPaidBy, ColMode, ColNotes, ColUpdatedAt},
	TableLabours:    {ColID, ColName, ColType, ColDailyWage, ColMobile, ColCategory, ColUpdatedAt},
	TableAttendance: {ColID, ColDate, ColLabourID, ColStatus, ColOvertimeHours, ColLabourName, ColDailyWageAtTime, ColUpdatedAt},
	TablePayments:   {ColID, ColLabourID, ColDate, ColAmount, ColType, ColMode, ColRemarks, ColLabourName, ColUpdatedAt},
	TableSettings:   {ColID, ColSchoolName, ColLocation, ColLogo, ColEstimatedBudget, ColCategoryBudgets, ColLanguage, ColUpdatedAt},
}

// Columns returns the canonical column order of table.
func Columns(table string) []string {
	return append([]string(nil), tableColumns[table]...)
}

func IncomeToRow(i core.Income) Row {
	return Row{
		ColID:        i.ID,
		ColDate:      i.Date.String(),
		ColAmount:    i.Amount.String(),
		ColSource:    string(i.Source),
		ColPaidBy:    string(i.PaidBy),
		ColMode:      string(i.Mode),
		ColRemarks:   i.Remarks,
		ColUpdatedAt: formatTime(i.UpdatedAt),
	}
}

func IncomeFromRow(r Row) (core.Income, error) {
	var i core.Income
	var err error
	i.ID = r.ID()
	if i.Date, err = asDate(r[ColDate]); err != nil {
		return i, rowErr(TableIncomes, r, ColDate, err)
	}
	if i.Amount, err = asDecimal(r[ColAmount]); err != nil {
		return i, rowErr(TableIncomes, r, ColAmount, err)
	}
	i.Source = core.IncomeSource(asString(r[ColSource]))
	i.PaidBy = core.Partner(asString(r[ColPaidBy]))
	i.Mode = core.PaymentMode(asString(r[ColMode]))
	i.Remarks = asString(r[ColRemarks])
	i.UpdatedAt = asTime(r[ColUpdatedAt])
	return i, checkID(TableIncomes, i.ID)
}

func ExpenseToRow(e core.Expense) Row {
	return Row{
		ColID:          e.ID,
		ColDate:        e.Date.String(),
		ColAmount:      e.Amount.String(),
		ColCategory:    string(e.Category),
		ColSubCategory: string(e.SubCategory),
		ColItemDetail:  e.ItemDetail,
		ColPaidTo:      e.PaidTo,
		ColPaidBy:      string(e.PaidBy),
		ColMode:        string(e.Mode),
		ColNotes:       e.Notes,
		ColUpdatedAt:   formatTime(e.UpdatedAt),
	}
}

func ExpenseFromRow(r Row) (core.Expense, error) {
	var e core.Expense
	var err error
	e.ID = r.ID()
	if e.Date, err = asDate(r[ColDate]); err != nil {
		return e, rowErr(TableExpenses, r, ColDate, err)
	}
	if e.Amount, err = asDecimal(r[ColAmount]); err != nil {
		return e, rowErr(TableExpenses, r, ColAmount, err)
	}
	e.Category = core.Category(asString(r[ColCategory]))
	e.SubCategory = core.SubCategory(asString(r[ColSubCategory]))
	e.ItemDetail = asString(r[ColItemDetail])
	e.PaidTo = asString(r[ColPaidTo])
	e.PaidBy = core.Partner(asString(r[ColPaidBy]))
	e.Mode = core.PaymentMode(asString(r[ColMode]))
	e.Notes = asString(r[ColNotes])
	e.UpdatedAt = asTime(r[ColUpdatedAt])
	return e, checkID(TableExpenses, e.ID)
}

func LabourToRow(l core.Labour) Row {
	return Row{
		ColID:        l.ID,
		ColName:      l.Name,
		ColType:      l.Type,
		ColDailyWage: l.DailyWage.String(),
		ColMobile:    l.Mobile,
		ColCategory:  string(l.Category),
		ColUpdatedAt: formatTime(l.UpdatedAt),
	}
}

func LabourFromRow(r Row) (core.Labour, error) {
	var l core.Labour
	var err error
	l.ID = r.ID()
	l.Name = asString(r[ColName])
	l.Type = asString(r[ColType])
	if l.DailyWage, err = asDecimal(r[ColDailyWage]); err != nil {
		return l, rowErr(TableLabours, r, ColDailyWage, err)
	}
	l.Mobile = asString(r[ColMobile])
	l.Category = core.Category(asString(r[ColCategory]))
	l.UpdatedAt = asTime(r[ColUpdatedAt])
	return l, checkID(TableLabours, l.ID)
}

// AttendanceToRow writes the record plus the labour's name and the wage
// captured when the day was marked, so the remote table can be read on
// its own. Records without a captured wage fall back to the labour's
// current wage. lab may be nil for a dangling record.
func AttendanceToRow(a core.Attendance, lab *core.Labour) Row {
	row := Row{
		ColID:              a.ID,
		ColDate:            a.Date.String(),
		ColLabourID:        a.LabourID,
		ColStatus:          string(a.Status),
		ColOvertimeHours:   a.OvertimeHours,
		ColLabourName:      "",
		ColDailyWageAtTime: a.WageAtTime.String(),
		ColUpdatedAt:       formatTime(a.UpdatedAt),
	}
	if lab != nil {
		row[ColLabourName] = lab.Name
		if a.WageAtTime.IsZero() {
			row[ColDailyWageAtTime] = lab.DailyWage.String()
		}
	}
	return row
}

// AttendanceFromRow keeps the wage snapshot and ignores the labour name.
func AttendanceFromRow(r Row) (core.Attendance, error) {
	var a core.Attendance
	var err error
	a.ID = r.ID()
	if a.Date, err = asDate(r[ColDate]); err != nil {
		return a, rowErr(TableAttendance, r, ColDate, err)
	}
	a.LabourID = asString(r[ColLabourID])
	a.Status = core.AttendanceStatus(asString(r[ColStatus]))
	if a.OvertimeHours, err = asFloat(r[ColOvertimeHours]); err != nil {
		return a, rowErr(TableAttendance, r, ColOvertimeHours, err)
	}
	if a.WageAtTime, err = asDecimal(r[ColDailyWageAtTime]); err != nil {
		return a, rowErr(TableAttendance, r, ColDailyWageAtTime, err)
	}
	a.UpdatedAt = asTime(r[ColUpdatedAt])
	return a, checkID(TableAttendance, a.ID)
}

func PaymentToRow(p core.LabourPayment, lab *core.Labour) Row {
	row := Row{
		ColID:         p.ID,
		ColLabourID:   p.LabourID,
		ColDate:       p.Date.String(),
		ColAmount:     p.Amount.String(),
		ColType:       string(p.Type),
		ColMode:       string(p.Mode),
		ColRemarks:    p.Remarks,
		ColLabourName: "",
		ColUpdatedAt:  formatTime(p.UpdatedAt),
	}
	if lab != nil {
		row[ColLabourName] = lab.Name
	}
	return row
}

func PaymentFromRow(r Row) (core.LabourPayment, error) {
	var p core.LabourPayment
	var err error
	p.ID = r.ID()
	p.LabourID = asString(r[ColLabourID])
	if p.Date, err = asDate(r[ColDate]); err != nil {
		return p, rowErr(TablePayments, r, ColDate, err)
	}
	if p.Amount, err = asDecimal(r[ColAmount]); err != nil {
		return p, rowErr(TablePayments, r, ColAmount, err)
	}
	p.Type = core.PaymentType(asString(r[ColType]))
	p.Mode = core.PaymentMode(asString(r[ColMode]))
	p.Remarks = asString(r[ColRemarks])
	p.UpdatedAt = asTime(r[ColUpdatedAt])
	return p, checkID(TablePayments, p.ID)
}

// SettingsToRow stores the settings as the row with id "global". The
// budget map travels as a JSON object.
func SettingsToRow(s core.Settings) Row {
	budgets, _ := json.Marshal(s.CategoryBudgets)
	return Row{
		ColID:              SettingsRowID,
		ColSchoolName:      s.SchoolName,
		ColLocation:        s.Location,
		ColLogo:            s.Logo,
		ColEstimatedBudget: s.EstimatedBudget.String(),
		ColCategoryBudgets: string(budgets),
		ColLanguage:        string(s.Language),
		ColUpdatedAt:       formatTime(s.UpdatedAt),
	}
}

func SettingsFromRow(r Row) (core.Settings, error) {
	s := core.DefaultSettings()
	s.SchoolName = asString(r[ColSchoolName])
	s.Location = asString(r[ColLocation])
	s.Logo = asString(r[ColLogo])
	if raw := asString(r[ColCategoryBudgets]); raw != "" {
		budgets := make(map[core.Category]decimal.Decimal)
		if err := json.Unmarshal([]byte(raw), &budgets); err != nil {
			return s, rowErr(TableSettings, r, ColCategoryBudgets, err)
		}
		s.CategoryBudgets = budgets
	}
	s.Language = core.Language(asString(r[ColLanguage]))
	s.UpdatedAt = asTime(r[ColUpdatedAt])
	return s.Normalized(), nil
}

func checkID(table, id string) error {
	if id == "" {
		return fmt.Errorf("%s: row without id", table)
	}
	return nil
}

func rowErr(table string, r Row, col string, err error) error {
	return fmt.Errorf("%s row %q column %s: %w", table, r.ID(), col, err)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Remote cells arrive as whatever the backend's driver produces:
// strings from Sheets, []byte or numbers from SQL drivers.

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func asDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	}
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}

func asFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	}
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// sheetsEpoch is day zero of spreadsheet date serial numbers.
var sheetsEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

func asDate(v any) (core.Date, error) {
	switch x := v.(type) {
	case time.Time:
		return core.DateOf(x.UTC()), nil
	case float64:
		return core.DateOf(sheetsEpoch.AddDate(0, 0, int(x))), nil
	}
	return core.ParseDate(asString(v))
}

// asTime returns the zero time for missing or unreadable timestamps;
// such records lose every last-writer-wins comparison.
func asTime(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
