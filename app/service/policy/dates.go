package policy

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDateRe  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	haceDiasRe = regexp.MustCompile(`\bhace\s+(\d+)\s+d[ií]as?\b`)
	elDiaRe    = regexp.MustCompile(`\bel\s+d[ií]a\s+(\d{1,2})\b`)
	ayerRe     = regexp.MustCompile(`\bayer\b`)
	hoyRe      = regexp.MustCompile(`\bhoy\b`)
)

var weekdays = map[string]time.Weekday{
	"lunes":     time.Monday,
	"martes":    time.Tuesday,
	"miércoles": time.Wednesday,
	"miercoles": time.Wednesday,
	"jueves":    time.Thursday,
	"viernes":   time.Friday,
	"sábado":    time.Saturday,
	"sabado":    time.Saturday,
	"domingo":   time.Sunday,
}

// ResolveDate turns a natural-language temporal expression into an
// absolute calendar date, using the message timestamp as "today".
// Absence of any temporal expression resolves to today. Re-evaluating the
// same text at a different wall clock gives a different date; callers
// capture "now" once per message.
func ResolveDate(text string, now time.Time) time.Time {
	today := Midnight(now)
	text = strings.ToLower(strings.TrimSpace(text))

	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		if parsed, err := time.ParseInLocation("2006-01-02", m[0], now.Location()); err == nil {
			return parsed
		}
	}

	// "anteayer" contains "ayer", so order matters.
	switch {
	case strings.Contains(text, "anteayer"), strings.Contains(text, "antes de ayer"):
		return today.AddDate(0, 0, -2)
	case ayerRe.MatchString(text):
		return today.AddDate(0, 0, -1)
	case hoyRe.MatchString(text):
		return today
	}

	if m := haceDiasRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return today.AddDate(0, 0, -n)
		}
	}

	if m := elDiaRe.FindStringSubmatch(text); m != nil {
		day, err := strconv.Atoi(m[1])
		if err == nil && day >= 1 && day <= 31 {
			monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
			if day > now.Day() {
				monthStart = monthStart.AddDate(0, -1, 0)
			}
			// Clamp so "el día 31" in a shorter month stays inside it
			// instead of normalizing into the next month.
			if last := monthStart.AddDate(0, 1, -1).Day(); day > last {
				day = last
			}
			return monthStart.AddDate(0, 0, day-1)
		}
	}

	for _, word := range words(text) {
		weekday, ok := weekdays[word]
		if !ok {
			continue
		}

		// Most recent past occurrence, today excluded.
		delta := int(now.Weekday()-weekday+7) % 7
		if delta == 0 {
			delta = 7
		}
		return today.AddDate(0, 0, -delta)
	}

	return today
}

// PeriodRange maps a period word to a half-open [from, to) range.
// Unknown or empty periods return zero bounds (no filter).
func PeriodRange(period string, now time.Time) (time.Time, time.Time) {
	today := Midnight(now)

	switch strings.ToLower(strings.TrimSpace(period)) {
	case "hoy":
		return today, today.AddDate(0, 0, 1)
	case "ayer":
		return today.AddDate(0, 0, -1), today
	case "semana":
		return today.AddDate(0, 0, -7), today.AddDate(0, 0, 1)
	case "mes":
		return today.AddDate(0, 0, -30), today.AddDate(0, 0, 1)
	case "año", "ano":
		return today.AddDate(0, 0, -365), today.AddDate(0, 0, 1)
	case "":
		return time.Time{}, time.Time{}
	default:
		// "hace 3 días", "el viernes" and friends narrow to a single day.
		day := ResolveDate(period, now)
		return day, day.AddDate(0, 0, 1)
	}
}

func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
