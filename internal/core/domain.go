package core

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type (
	PaymentMode      string
	IncomeSource     string
	Category         string
	SubCategory      string
	Partner          string
	AttendanceStatus string
	PaymentType      string
	Language         string
)

const (
	ModeCash  PaymentMode = "Cash"
	ModeBank  PaymentMode = "Bank"
	ModeUPI   PaymentMode = "UPI"
	ModeCheck PaymentMode = "Check"
)

const (
	SourceInvestment IncomeSource = "Investment"
	SourceLoan       IncomeSource = "Loan"
	SourceDonation   IncomeSource = "Donation"
	SourceOther      IncomeSource = "Other"
)

const (
	PartnerMuzahir Partner = "Master Muzahir"
	PartnerSalik   Partner = "Dr. Salik"
	PartnerOther   Partner = "Other"
)

const (
	Present AttendanceStatus = "Present"
	Absent  AttendanceStatus = "Absent"
	HalfDay AttendanceStatus = "Half-Day"
)

const (
	PaymentAdvance PaymentType = "Advance"
	PaymentFull    PaymentType = "Full Payment"
)

const (
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hi"
)

type (
	Income struct {
		ID        string          `json:"id"`
		Date      Date            `json:"date" validate:"required"`
		Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
		Source    IncomeSource    `json:"source" validate:"enum"`
		PaidBy    Partner         `json:"paidBy" validate:"enum"`
		Mode      PaymentMode     `json:"mode" validate:"enum"`
		Remarks   string          `json:"remarks" validate:"max=500"`
		UpdatedAt time.Time       `json:"updatedAt,omitempty"`
	}

	Expense struct {
		ID          string          `json:"id"`
		Date        Date            `json:"date" validate:"required"`
		Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
		Category    Category        `json:"category" validate:"enum"`
		SubCategory SubCategory     `json:"subCategory" validate:"enum"`
		ItemDetail  string          `json:"itemDetail,omitempty" validate:"max=200"`
		PaidTo      string          `json:"paidTo" validate:"max=200"`
		PaidBy      Partner         `json:"paidBy,omitempty" validate:"omitempty,enum"`
		Mode        PaymentMode     `json:"mode" validate:"enum"`
		Notes       string          `json:"notes" validate:"max=500"`
		UpdatedAt   time.Time       `json:"updatedAt,omitempty"`
	}

	Labour struct {
		ID        string          `json:"id"`
		Name      string          `json:"name" validate:"required,max=120"`
		Type      string          `json:"type" validate:"required,max=60"`
		DailyWage decimal.Decimal `json:"dailyWage" validate:"gte=0"`
		Mobile    string          `json:"mobile,omitempty" validate:"max=20"`
		Category  Category        `json:"category,omitempty" validate:"omitempty,enum"`
		UpdatedAt time.Time       `json:"updatedAt,omitempty"`
	}

	Attendance struct {
		ID            string           `json:"id"`
		Date          Date             `json:"date" validate:"required"`
		LabourID      string           `json:"labourId" validate:"required"`
		Status        AttendanceStatus `json:"status" validate:"enum"`
		OvertimeHours float64          `json:"overtimeHours" validate:"gte=0,lte=24"`
		// WageAtTime is the labour's daily wage when the day was first
		// marked. Zero on records written before it was kept.
		WageAtTime decimal.Decimal `json:"wageAtTime"`
		UpdatedAt  time.Time       `json:"updatedAt,omitempty"`
	}

	LabourPayment struct {
		ID        string          `json:"id"`
		LabourID  string          `json:"labourId" validate:"required"`
		Date      Date            `json:"date" validate:"required"`
		Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
		Type      PaymentType     `json:"type" validate:"enum"`
		Mode      PaymentMode     `json:"mode" validate:"enum"`
		Remarks   string          `json:"remarks" validate:"max=500"`
		UpdatedAt time.Time       `json:"updatedAt,omitempty"`
	}

	Settings struct {
		SchoolName      string                       `json:"schoolName"`
		Location        string                       `json:"location"`
		Logo            string                       `json:"logo,omitempty"`
		EstimatedBudget decimal.Decimal              `json:"estimatedBudget"`
		CategoryBudgets map[Category]decimal.Decimal `json:"categoryBudgets"`
		Language        Language                     `json:"language"`
		UpdatedAt       time.Time                    `json:"updatedAt,omitempty"`
	}

	AuthState struct {
		IsLoggedIn  bool    `json:"isLoggedIn"`
		CurrentUser Partner `json:"currentUser,omitempty"`
		Role        string  `json:"role,omitempty"`
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidStatus   = errors.New("invalid attendance status")
	ErrInvalidHours    = errors.New("overtime hours must be between 0 and 24")
	ErrNegativeBudget  = errors.New("budget cannot be negative")
)

func (m PaymentMode) Valid() bool {
	switch m {
	case ModeCash, ModeBank, ModeUPI, ModeCheck:
		return true
	}
	return false
}

func (s IncomeSource) Valid() bool {
	switch s {
	case SourceInvestment, SourceLoan, SourceDonation, SourceOther:
		return true
	}
	return false
}

func (p Partner) Valid() bool {
	switch p {
	case PartnerMuzahir, PartnerSalik, PartnerOther:
		return true
	}
	return false
}

func (s AttendanceStatus) Valid() bool {
	switch s {
	case Present, Absent, HalfDay:
		return true
	}
	return false
}

func (t PaymentType) Valid() bool {
	return t == PaymentAdvance || t == PaymentFull
}

func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageHindi
}

// Record is implemented by every collection element the ledger stores.
type Record[T any] interface {
	RecordID() string
	Modified() time.Time
	WithID(id string) T
	Touched(at time.Time) T
}

func (i Income) RecordID() string           { return i.ID }
func (i Income) Modified() time.Time        { return i.UpdatedAt }
func (i Income) WithID(id string) Income    { i.ID = id; return i }
func (i Income) Touched(t time.Time) Income { i.UpdatedAt = t.UTC(); return i }

func (e Expense) RecordID() string            { return e.ID }
func (e Expense) Modified() time.Time         { return e.UpdatedAt }
func (e Expense) WithID(id string) Expense    { e.ID = id; return e }
func (e Expense) Touched(t time.Time) Expense { e.UpdatedAt = t.UTC(); return e }

func (l Labour) RecordID() string           { return l.ID }
func (l Labour) Modified() time.Time        { return l.UpdatedAt }
func (l Labour) WithID(id string) Labour    { l.ID = id; return l }
func (l Labour) Touched(t time.Time) Labour { l.UpdatedAt = t.UTC(); return l }

func (a Attendance) RecordID() string               { return a.ID }
func (a Attendance) Modified() time.Time            { return a.UpdatedAt }
func (a Attendance) WithID(id string) Attendance    { a.ID = id; return a }
func (a Attendance) Touched(t time.Time) Attendance { a.UpdatedAt = t.UTC(); return a }

func (p LabourPayment) RecordID() string                  { return p.ID }
func (p LabourPayment) Modified() time.Time               { return p.UpdatedAt }
func (p LabourPayment) WithID(id string) LabourPayment    { p.ID = id; return p }
func (p LabourPayment) Touched(t time.Time) LabourPayment { p.UpdatedAt = t.UTC(); return p }

// EffectiveCategory returns the category labour cost is attributed to.
// Labours recorded before categories existed count as Masonry.
func (l Labour) EffectiveCategory() Category {
	if l.Category == "" {
		return Masonry
	}
	return l.Category
}

// Key identifies the single attendance slot for a labour on a day.
func (a Attendance) Key() string {
	return a.LabourID + "|" + a.Date.String()
}
