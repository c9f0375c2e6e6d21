package identity

import (
	"testing"
	"time"

	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.Local)
}

func mustBirth(t *testing.T, s string) BirthDate {
	t.Helper()
	b, err := ParseBirthDate(s)
	require.NoError(t, err)
	return b
}

func TestAge(t *testing.T) {
	tests := []struct {
		name  string
		birth string
		today time.Time
		want  int
	}{
		{"birthday today", "2015-03-10", day(2025, time.March, 10), 10},
		{"birthday tomorrow", "2015-03-10", day(2025, time.March, 9), 9},
		{"birthday yesterday", "2015-03-10", day(2025, time.March, 11), 10},
		{"earlier month", "2015-03-10", day(2025, time.February, 28), 9},
		{"later month", "2015-03-10", day(2025, time.April, 1), 10},
		{"leap birth, non-leap Feb 28", "2012-02-29", day(2023, time.February, 28), 10},
		{"leap birth, non-leap Mar 1", "2012-02-29", day(2023, time.March, 1), 11},
		{"leap birth, leap Feb 29", "2012-02-29", day(2024, time.February, 29), 12},
		{"born today", "2025-06-01", day(2025, time.June, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Age(mustBirth(t, tt.birth), tt.today))
		})
	}
}

func TestAgeGroupOf(t *testing.T) {
	assert.Equal(t, Group7to9, AgeGroupOf(7))
	assert.Equal(t, Group7to9, AgeGroupOf(9))
	assert.Equal(t, Group10to12, AgeGroupOf(10))
	assert.Equal(t, Group10to12, AgeGroupOf(12))
	assert.Equal(t, Group12Plus, AgeGroupOf(13))
	assert.Equal(t, Group12Plus, AgeGroupOf(40))
}

func TestIsBirthdayToday(t *testing.T) {
	b := mustBirth(t, "2014-11-05")
	assert.True(t, IsBirthdayToday(b, day(2025, time.November, 5)))
	assert.False(t, IsBirthdayToday(b, day(2025, time.November, 6)))
	assert.False(t, IsBirthdayToday(b, day(2025, time.October, 5)))

	leap := mustBirth(t, "2012-02-29")
	assert.False(t, IsBirthdayToday(leap, day(2023, time.February, 28)))
	assert.False(t, IsBirthdayToday(leap, day(2023, time.March, 1)))
	assert.True(t, IsBirthdayToday(leap, day(2024, time.February, 29)))
}

func TestParseBirthDate(t *testing.T) {
	b, err := ParseBirthDate("2015-03-10")
	require.NoError(t, err)
	assert.Equal(t, BirthDate{Year: 2015, Month: time.March, Day: 10}, b)
	assert.Equal(t, "2015-03-10", b.String())

	b, err = ParseBirthDate("2015-03-10T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, b.Day)

	b, err = ParseBirthDate("10.03.2015")
	require.NoError(t, err)
	assert.Equal(t, BirthDate{Year: 2015, Month: time.March, Day: 10}, b)

	_, err = ParseBirthDate("10/03/2015")
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	_, err = ParseBirthDate("2015-02-30")
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestBirthDate_Validate(t *testing.T) {
	today := day(2025, time.March, 10)
	assert.NoError(t, mustBirth(t, "2022-03-10").Validate(today))
	assert.NoError(t, mustBirth(t, "1925-03-10").Validate(today))
	assert.ErrorIs(t, mustBirth(t, "2022-03-11").Validate(today), perrors.ErrInvalidInput, "not yet 3")
	assert.NoError(t, mustBirth(t, "1925-03-09").Validate(today), "100 and a day")
	assert.ErrorIs(t, mustBirth(t, "1924-03-10").Validate(today), perrors.ErrInvalidInput, "101")
	assert.ErrorIs(t, mustBirth(t, "2026-01-01").Validate(today), perrors.ErrInvalidInput, "future")
}

func TestParseLanguage(t *testing.T) {
	l, err := ParseLanguage("MK")
	require.NoError(t, err)
	assert.Equal(t, Macedonian, l)
	assert.Equal(t, "Macedonian", l.Name())

	_, err = ParseLanguage("de")
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestDerive(t *testing.T) {
	today := day(2025, time.March, 10)

	f := Derive(English, nil, today)
	assert.Nil(t, f.Age)
	assert.Empty(t, f.AgeGroup)
	assert.False(t, f.IsBirthdayToday)
	assert.False(t, f.Complete())

	b := mustBirth(t, "2015-03-10")
	f = Derive(Turkish, &b, today)
	require.NotNil(t, f.Age)
	assert.Equal(t, 10, *f.Age)
	assert.Equal(t, Group10to12, f.AgeGroup)
	assert.True(t, f.IsBirthdayToday)
	assert.True(t, f.Complete())

	f = Derive("", &b, today)
	assert.False(t, f.Complete())
}
