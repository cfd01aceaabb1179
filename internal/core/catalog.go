package core

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Masonry   Category = "Masonry"
	Plumbing  Category = "Plumbing"
	Paint     Category = "Paint"
	Furniture Category = "Furniture"
	Electric  Category = "Electric"
	Material  Category = "Material"
	Transport Category = "Transport"
	Food      Category = "Food"
	OtherCat  Category = "Other"
)

const (
	SubKarigar  SubCategory = "Karigar"
	SubMajdoor  SubCategory = "Majdoor"
	SubMaterial SubCategory = "Material"
	SubVendor   SubCategory = "Vendor"
	SubOther    SubCategory = "Other"
)

// Categories lists expense categories in display order.
var Categories = []Category{Masonry, Plumbing, Paint, Furniture, Electric, Material, Transport, Food, OtherCat}

var SubCategories = []SubCategory{SubKarigar, SubMajdoor, SubMaterial, SubVendor, SubOther}

var PaymentModes = []PaymentMode{ModeCash, ModeBank, ModeUPI, ModeCheck}

var Partners = []Partner{PartnerMuzahir, PartnerSalik, PartnerOther}

var IncomeSources = []IncomeSource{SourceInvestment, SourceLoan, SourceDonation, SourceOther}

var AttendanceStatuses = []AttendanceStatus{Present, Absent, HalfDay}

var PaymentTypes = []PaymentType{PaymentAdvance, PaymentFull}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (s SubCategory) Valid() bool {
	for _, known := range SubCategories {
		if s == known {
			return true
		}
	}
	return false
}

// LabourTypes returns the trade suggestions offered for a category.
func LabourTypes(c Category) []string {
	switch c {
	case Masonry:
		return []string{"Mistri", "Karigar", "Majdoor"}
	case Plumbing:
		return []string{"Plumber", "Helper"}
	case Paint:
		return []string{"Painter", "Helper"}
	case Furniture:
		return []string{"Carpenter", "Helper"}
	case Electric:
		return []string{"Electrician", "Helper"}
	default:
		return []string{"Majdoor", "Helper"}
	}
}

// MaterialItems and FoodItems are the item-detail suggestions.
var (
	MaterialItems = []string{"Cement", "Sand", "Gravel", "CrushedSand", "Steel", "Bricks"}
	FoodItems     = []string{"Tea", "Snacks", "Lunch", "Water", "Other"}
)

const (
	DefaultPaidTo     = "Vendor"
	DefaultFoodPaidTo = "Vendor/Shop"
	DefaultFoodItem   = "Food Bill"
)

// Normalize fills the defaults the entry forms apply and drops an item
// detail on expenses that do not carry one.
func (e Expense) Normalize() Expense {
	if e.Category == Food {
		if e.PaidTo == "" {
			e.PaidTo = DefaultFoodPaidTo
		}
		if e.ItemDetail == "" {
			e.ItemDetail = DefaultFoodItem
		}
		return e
	}
	if e.PaidTo == "" {
		e.PaidTo = DefaultPaidTo
	}
	if e.SubCategory != SubMaterial && e.Category != Material {
		e.ItemDetail = ""
	}
	return e
}

// DefaultSettings is what a fresh install starts with.
func DefaultSettings() Settings {
	budgets := make(map[Category]decimal.Decimal, len(Categories))
	for _, c := range Categories {
		budgets[c] = decimal.Zero
	}
	return Settings{
		SchoolName:      "EVS School",
		Location:        "",
		EstimatedBudget: decimal.Zero,
		CategoryBudgets: budgets,
		Language:        LanguageHindi,
	}
}

// Clone copies the settings, including the budget map.
func (s Settings) Clone() Settings {
	budgets := make(map[Category]decimal.Decimal, len(s.CategoryBudgets))
	for k, v := range s.CategoryBudgets {
		budgets[k] = v
	}
	s.CategoryBudgets = budgets
	return s
}

// Normalized returns a copy whose budget map covers every category and
// whose EstimatedBudget equals the sum of the category budgets.
func (s Settings) Normalized() Settings {
	s = s.Clone()
	total := decimal.Zero
	for _, c := range Categories {
		v, ok := s.CategoryBudgets[c]
		if !ok {
			v = decimal.Zero
			s.CategoryBudgets[c] = v
		}
		total = total.Add(v)
	}
	s.EstimatedBudget = total
	if !s.Language.Valid() {
		s.Language = LanguageHindi
	}
	return s
}

func (s Settings) Budget(c Category) decimal.Decimal {
	return s.CategoryBudgets[c]
}

// NewID returns a fresh record id. Version 7 ids sort by creation time,
// which keeps "most recent first" orderings stable across devices.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// idMillis extracts the creation time in Unix milliseconds from a
// version 7 id or from a legacy all-digit millisecond id.
func idMillis(id string) (int64, bool) {
	if u, err := uuid.Parse(id); err == nil && u.Version() == 7 {
		var ms int64
		for _, b := range u[:6] {
			ms = ms<<8 | int64(b)
		}
		return ms, true
	}
	if id == "" || len(id) > 18 {
		return 0, false
	}
	var ms int64
	for _, r := range id {
		if r < '0' || r > '9' {
			return 0, false
		}
		ms = ms*10 + int64(r-'0')
	}
	return ms, true
}

// CompareIDs orders ids by creation time where it can be recovered,
// falling back to plain string order.
func CompareIDs(a, b string) int {
	am, aok := idMillis(a)
	bm, bok := idMillis(b)
	if aok && bok && am != bm {
		if am < bm {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
