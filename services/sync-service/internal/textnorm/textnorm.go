// Package textnorm turns fragments of the calendar's Spanish-language text into
// typed values. Everything locale-specific lives here.
package textnorm

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/model"
)

// DateParts is a calendar date as read from an overlay line, before a time of
// day is attached.
type DateParts struct {
	Day   int
	Month time.Month
	Year  int
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// "miércoles, 19 de noviembre/2025"
	dateRe = regexp.MustCompile(`(?i)(\d{1,2})\s+de\s+([a-záéíóúñ]+)/(\d{4})`)
	// "8:45 am", "12:05PM"
	timeRe = regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})\s*(am|pm)`)
)

var monthsByName = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"setiembre":  time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

var (
	weekdayNames = [...]string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"}
	monthNames   = [...]string{
		"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
		"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
	}
)

// CollapseSpace trims s and replaces every run of whitespace with one space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// ParseDate finds "<day> de <month>/<year>" anywhere in line. The day is not
// checked against the month, so "31 de febrero/2025" parses.
func ParseDate(line string) (DateParts, bool) {
	m := dateRe.FindStringSubmatch(line)
	if m == nil {
		return DateParts{}, false
	}
	month, ok := monthsByName[strings.ToLower(m[2])]
	if !ok {
		return DateParts{}, false
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	return DateParts{Day: day, Month: month, Year: year}, true
}

// ParseStatus maps free text onto a Status. Paid wins over cancelled, which
// wins over an explicit booking; anything else is a new booking.
func ParseStatus(text string) model.Status {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "pagada"):
		return model.StatusPaid
	case strings.Contains(t, "cancelada"):
		return model.StatusCancelled
	default:
		return model.StatusNewBooking
	}
}

// IsStatusLine reports whether line carries one of the status keywords.
func IsStatusLine(line string) bool {
	t := strings.ToLower(line)
	return strings.Contains(t, "reserva") || strings.Contains(t, "pagada") || strings.Contains(t, "cancelada")
}

// StartTime returns the part of a "8:45 am - 9:00 am" range before the first dash.
func StartTime(timeRange string) string {
	start, _, _ := strings.Cut(timeRange, "-")
	return strings.TrimSpace(start)
}

// ParseClock reads "H:MM am|pm" into a 24-hour hour and minute.
func ParseClock(text string) (hour, minute int, ok bool) {
	m := timeRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 12 || minute > 59 {
		return 0, 0, false
	}
	switch strings.ToLower(m[3]) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour, minute, true
}

// BuildTimestamp combines parts with the start time in timeText, interpreted
// in loc (time.Local when nil).
func BuildTimestamp(parts DateParts, timeText string, loc *time.Location) (time.Time, bool) {
	if parts == (DateParts{}) || strings.TrimSpace(timeText) == "" {
		return time.Time{}, false
	}
	hour, minute, ok := ParseClock(timeText)
	if !ok {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Date(parts.Year, parts.Month, parts.Day, hour, minute, 0, 0, loc), true
}

// FormatDateLabel renders t as "Miércoles 19 de Noviembre del 2025" using t's
// own location for the calendar fields.
func FormatDateLabel(t time.Time) string {
	return weekdayNames[t.Weekday()] + " " +
		strconv.Itoa(t.Day()) + " de " +
		monthNames[t.Month()-1] + " del " +
		strconv.Itoa(t.Year())
}
