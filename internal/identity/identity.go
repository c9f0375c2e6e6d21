// Package identity derives the facts every screen reads about the child: age,
// age bracket and whether today is their birthday. All three are pure
// functions of the stored birth date and the current date, so nothing here
// is cached.
package identity

import (
	"fmt"
	"strings"
	"time"

	perrors "github.com/p-blackswan/buddy/internal/errors"
)

// Language is one of the supported UI languages.
type Language string

const (
	English    Language = "en"
	Macedonian Language = "mk"
	Turkish    Language = "tr"
)

// DefaultLanguage is used whenever no language has been chosen.
const DefaultLanguage = English

// Languages lists the supported languages in load order.
var Languages = []Language{English, Macedonian, Turkish}

// ParseLanguage validates a language code.
func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Languages {
		if l == known {
			return l, nil
		}
	}
	return "", perrors.Invalid("language %q is not supported", s)
}

// Name is the English name of the language, used in generation prompts.
func (l Language) Name() string {
	switch l {
	case Macedonian:
		return "Macedonian"
	case Turkish:
		return "Turkish"
	default:
		return "English"
	}
}

// AgeGroup is the coarse bracket that drives content tone and theme.
type AgeGroup string

const (
	Group7to9   AgeGroup = "7-9"
	Group10to12 AgeGroup = "10-12"
	Group12Plus AgeGroup = "12+"
)

// AgeGroupOf maps an age to its bracket.
func AgeGroupOf(age int) AgeGroup {
	switch {
	case age < 10:
		return Group7to9
	case age < 13:
		return Group10to12
	default:
		return Group12Plus
	}
}

// Accepted birth date layouts: the stored form, then the form typed on the
// age selection screen.
const (
	dateLayout  = "2006-01-02"
	inputLayout = "02.01.2006"
)

// Age bounds accepted by the age selection flow.
const (
	MinAge = 3
	MaxAge = 100
)

// BirthDate is a calendar date with no time-of-day or zone.
type BirthDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseBirthDate accepts YYYY-MM-DD, DD.MM.YYYY or an RFC 3339 timestamp.
// The date part is taken as written; no zone conversion is applied.
func ParseBirthDate(s string) (BirthDate, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateLayout, inputLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return BirthDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
		}
	}
	return BirthDate{}, perrors.Invalid("birth date %q: expected YYYY-MM-DD", s)
}

// Validate rejects birth dates giving an age outside [MinAge, MaxAge] today,
// which includes every date in the future.
func (b BirthDate) Validate(today time.Time) error {
	age := Age(b, today)
	switch {
	case age < MinAge:
		return perrors.Invalid("birth date %s: must be at least %d years old", b, MinAge)
	case age > MaxAge:
		return perrors.Invalid("birth date %s: age %d is not plausible", b, age)
	}
	return nil
}

func (b BirthDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", b.Year, b.Month, b.Day)
}

// Age returns completed years between birth and today: the year difference,
// minus one when today's month/day falls before the birth month/day. A Feb-29
// birth date therefore turns a year older on Mar 1 in non-leap years.
func Age(birth BirthDate, today time.Time) int {
	y, m, d := today.Date()
	age := y - birth.Year
	if m < birth.Month || (m == birth.Month && d < birth.Day) {
		age--
	}
	return age
}

// IsBirthdayToday compares month and day only. A Feb-29 birth date matches
// only on an actual Feb 29.
func IsBirthdayToday(birth BirthDate, today time.Time) bool {
	_, m, d := today.Date()
	return m == birth.Month && d == birth.Day
}

// Facts is the derived identity snapshot handed to readers.
type Facts struct {
	Language        Language   `json:"language,omitempty"`
	BirthDate       *BirthDate `json:"-"`
	Age             *int       `json:"age"`
	AgeGroup        AgeGroup   `json:"ageGroup,omitempty"`
	IsBirthdayToday bool       `json:"isBirthdayToday"`
}

// Derive computes Facts from the stored values. An unset birth date leaves
// age and age group unset.
func Derive(lang Language, birth *BirthDate, today time.Time) Facts {
	f := Facts{Language: lang, BirthDate: birth}
	if birth == nil {
		return f
	}
	age := Age(*birth, today)
	f.Age = &age
	f.AgeGroup = AgeGroupOf(age)
	f.IsBirthdayToday = IsBirthdayToday(*birth, today)
	return f
}

// Complete reports whether both identity facts are set.
func (f Facts) Complete() bool {
	return f.Language != "" && f.BirthDate != nil
}
