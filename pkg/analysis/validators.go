package analysis

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

var (
	rfcPattern          = regexp.MustCompile(`^[A-ZÑ&]{3,4}\d{6}[A-Z0-9]{3}$`)
	curpPattern         = regexp.MustCompile(`^[A-Z]{4}\d{6}[HM][A-Z]{5}[A-Z0-9]\d$`)
	nssPattern          = regexp.MustCompile(`^\d{11}$`)
	employeeCodePattern = regexp.MustCompile(`^[A-Za-z]{0,4}-?\d{1,10}$`)
	digitsPattern       = regexp.MustCompile(`\d`)
)

// dateLayouts are tried in order. Numeric layouts are day-first only: census
// files are predominantly Mexican.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"02-01-06",
	"2/1/06",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02-Jan-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

var genderValues = map[string]bool{
	"m": true, "f": true, "h": true,
	"masculino": true, "femenino": true,
	"hombre": true, "mujer": true,
	"male": true, "female": true,
}

// Validators holds the value validators shared by structure analysis and
// column classification. It is safe for concurrent use.
type Validators struct {
	salaryMin float64
	salaryMax float64
	now       func() time.Time
}

// NewValidators builds validators using the salary band from scoring.
func NewValidators(scoring config.ScoringConfig) *Validators {
	return &Validators{
		salaryMin: scoring.SalaryMin,
		salaryMax: scoring.SalaryMax,
		now:       time.Now,
	}
}

// Validate applies the named validator to a single rendered cell value.
func (v *Validators) Validate(kind models.ValidatorKind, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	switch kind {
	case models.ValidatorPersonName:
		return IsPersonName(value)
	case models.ValidatorNationalID:
		return IsRFC(value) || IsCURP(value) || IsNSS(value)
	case models.ValidatorRFC:
		return IsRFC(value)
	case models.ValidatorCURP:
		return IsCURP(value)
	case models.ValidatorNSS:
		return IsNSS(value)
	case models.ValidatorSalary:
		return v.IsSalary(value)
	case models.ValidatorDate:
		_, ok := v.ParseDate(value)
		return ok
	case models.ValidatorGender:
		return IsGender(value)
	case models.ValidatorEmployeeCode:
		return IsEmployeeCode(value)
	case models.ValidatorText:
		return !isNumeric(value)
	default:
		return false
	}
}

// Rate returns the fraction of values that pass the validator. Empty input
// scores zero.
func (v *Validators) Rate(kind models.ValidatorKind, values []string) float64 {
	if len(values) == 0 {
		return 0
	}
	passed := 0
	for _, val := range values {
		if v.Validate(kind, val) {
			passed++
		}
	}
	return float64(passed) / float64(len(values))
}

// ParseAmount parses a currency or plain number: "$25,000.00", "25000.50".
// Thousands separators must be commas.
func ParseAmount(value string) (float64, bool) {
	s := strings.TrimSpace(value)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(strings.TrimSpace(s), "MXN")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsSalary returns true for a parseable amount inside the plausible band.
func (v *Validators) IsSalary(value string) bool {
	f, ok := ParseAmount(value)
	return ok && f >= v.salaryMin && f <= v.salaryMax
}

// ParseDate parses a date in any supported layout with a year in 1900..2100.
// Two-digit years that land in the future are moved back a century.
func (v *Validators) ParseDate(value string) (time.Time, bool) {
	s := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if strings.Contains(layout, "06") && !strings.Contains(layout, "2006") && t.After(v.now()) {
			t = t.AddDate(-100, 0, 0)
		}
		if t.Year() < 1900 || t.Year() > 2100 {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// IsRFC matches the Mexican tax id for persons and companies.
func IsRFC(value string) bool {
	return rfcPattern.MatchString(strings.ToUpper(strings.TrimSpace(value)))
}

// IsCURP matches the Mexican population registry key.
func IsCURP(value string) bool {
	return curpPattern.MatchString(strings.ToUpper(strings.TrimSpace(value)))
}

// IsNSS matches an 11 digit IMSS number. Dashes and spaces are ignored.
func IsNSS(value string) bool {
	s := strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(value))
	return nssPattern.MatchString(s)
}

// IsPersonName requires at least two words, no digits, and five characters.
func IsPersonName(value string) bool {
	s := strings.TrimSpace(value)
	if len([]rune(s)) < 5 || digitsPattern.MatchString(s) {
		return false
	}
	words := strings.Fields(s)
	if len(words) < 2 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) && r != '.' && r != '\'' && r != '-' && r != ',' {
			return false
		}
	}
	return true
}

// IsGender matches the common Spanish and English gender codes.
func IsGender(value string) bool {
	return genderValues[FoldText(value)]
}

// IsEmployeeCode matches short alphanumeric payroll codes like "E-1042" or "00317".
func IsEmployeeCode(value string) bool {
	return employeeCodePattern.MatchString(strings.TrimSpace(value))
}

func isNumeric(value string) bool {
	_, ok := ParseAmount(value)
	return ok
}

// NormalizeValue renders a value in canonical form for its validator:
// dates as YYYY-MM-DD, amounts as plain decimals, identifiers upper-cased.
// Values that do not parse are returned trimmed but otherwise unchanged.
func (v *Validators) NormalizeValue(kind models.ValidatorKind, value string) string {
	s := strings.TrimSpace(value)
	if s == "" {
		return ""
	}
	switch kind {
	case models.ValidatorDate:
		if t, ok := v.ParseDate(s); ok {
			return t.Format("2006-01-02")
		}
	case models.ValidatorSalary:
		if f, ok := ParseAmount(s); ok {
			return strconv.FormatFloat(f, 'f', 2, 64)
		}
	case models.ValidatorRFC, models.ValidatorCURP, models.ValidatorNationalID, models.ValidatorEmployeeCode:
		return strings.ToUpper(s)
	case models.ValidatorNSS:
		return strings.NewReplacer("-", "", " ", "").Replace(s)
	case models.ValidatorGender:
		// "m" is left alone: it means mujer in some files and male in others.
		switch FoldText(s) {
		case "masculino", "hombre", "h", "male":
			return "male"
		case "f", "femenino", "mujer", "female":
			return "female"
		}
		return strings.ToUpper(s)
	case models.ValidatorPersonName:
		return strings.Join(strings.Fields(s), " ")
	}
	return s
}
