package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Sunday, 2024-12-22 at noon.
var testNow = time.Date(2024, 12, 22, 12, 0, 0, 0, time.UTC)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveDate(t *testing.T) {
	cases := []struct {
		name string
		text string
		want time.Time
	}{
		{"no expression", "compré una pizza", day(2024, 12, 22)},
		{"hoy", "gasté 20000 hoy en almuerzo", day(2024, 12, 22)},
		{"ayer", "ayer pagué el taxi", day(2024, 12, 21)},
		{"anteayer", "anteayer fui al cine", day(2024, 12, 20)},
		{"antes de ayer", "antes de ayer compré mercado", day(2024, 12, 20)},
		{"hace n dias", "hace 3 días compré gasolina", day(2024, 12, 19)},
		{"hace un solo dia", "hace 1 día", day(2024, 12, 21)},
		{"weekday strictly past", "el viernes pagué el arriendo", day(2024, 12, 20)},
		{"same weekday goes back a week", "el domingo almorcé afuera", day(2024, 12, 15)},
		{"el dia n current month", "el día 5 pagué internet", day(2024, 12, 5)},
		{"el dia n previous month", "el día 25 compré regalos", day(2024, 11, 25)},
		{"iso date", "2024-12-01 pagué la cuota", day(2024, 12, 1)},
		{"el dia clamps to short month", "el día 31 pagué el seguro", day(2024, 11, 30)},
		{"word containing ayer is not ayer", "compré guayaba", day(2024, 12, 22)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveDate(tc.text, testNow))
		})
	}
}

func TestResolveDateUsesMessageClock(t *testing.T) {
	later := testNow.AddDate(0, 0, 1)

	assert.Equal(t, day(2024, 12, 21), ResolveDate("ayer", testNow))
	assert.Equal(t, day(2024, 12, 22), ResolveDate("ayer", later))
}

func TestPeriodRange(t *testing.T) {
	today := day(2024, 12, 22)

	from, to := PeriodRange("hoy", testNow)
	assert.Equal(t, today, from)
	assert.Equal(t, today.AddDate(0, 0, 1), to)

	from, to = PeriodRange("ayer", testNow)
	assert.Equal(t, today.AddDate(0, 0, -1), from)
	assert.Equal(t, today, to)

	from, to = PeriodRange("semana", testNow)
	assert.Equal(t, today.AddDate(0, 0, -7), from)
	assert.Equal(t, today.AddDate(0, 0, 1), to)

	from, to = PeriodRange("", testNow)
	assert.True(t, from.IsZero())
	assert.True(t, to.IsZero())

	// Free-form expressions narrow to a single day.
	from, to = PeriodRange("hace 3 días", testNow)
	assert.Equal(t, day(2024, 12, 19), from)
	assert.Equal(t, day(2024, 12, 20), to)
}
