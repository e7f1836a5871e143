package extract

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/calendar"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/model"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/textnorm"
)

// ErrMissingClient means the card carried no client name. The element is
// skipped; this is not a pass failure.
var ErrMissingClient = errors.New("card has no client name")

var (
	// Colombian mobile numbers: ten digits starting with 3.
	phoneRe      = regexp.MustCompile(`\b3\d{9}\b`)
	yearRe       = regexp.MustCompile(`\d{4}`)
	leadingConRe = regexp.MustCompile(`(?i)^con(\s+|$)`)
)

// Gap names a field that could not be resolved for an otherwise valid record.
type Gap string

const (
	GapDate Gap = "date"
	GapTime Gap = "time"
)

type Result struct {
	Appointment model.Appointment
	Gaps        []Gap
	// Raw inputs behind ScheduledAt, kept for diagnostics.
	DateLine  string
	StartText string
}

type Extractor struct {
	Site     string
	Owner    string
	Location *time.Location
	Now      func() time.Time
}

func (e Extractor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Extract builds one appointment from a card and whatever its overlay showed.
// Only a missing client name is an error; unresolved date or time leave the
// corresponding fields nil and are reported in Result.Gaps.
func (e Extractor) Extract(card calendar.CardFields, overlay calendar.Overlay) (Result, error) {
	client := textnorm.CollapseSpace(card.Client)
	if client == "" {
		return Result{}, ErrMissingClient
	}

	lines := make([]string, 0, len(overlay.Lines))
	for _, l := range overlay.Lines {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	dateLine := findLine(lines, isDateLine)
	statusLine := findLine(lines, textnorm.IsStatusLine)

	// The overlay range wins only when it carries a readable clock; otherwise
	// the card's own range is used, parseable or not.
	startText := textnorm.StartTime(findLine(lines, isTimeRangeLine))
	if startText == "" {
		startText = textnorm.StartTime(card.TimeRange)
	}

	appt := model.Appointment{
		Client:       client,
		Phone:        findPhone(overlay.Text, lines),
		Service:      textnorm.CollapseSpace(card.Service),
		Specialist:   specialist(card.Specialist),
		Status:       textnorm.ParseStatus(statusLine),
		Site:         e.Site,
		Owner:        e.Owner,
		ColorTag:     strings.TrimSpace(card.Background),
		LastSyncedAt: e.now(),
	}
	if startText != "" {
		appt.TimeLabel = &startText
	}

	res := Result{DateLine: dateLine, StartText: startText}

	parts, dateOK := textnorm.ParseDate(dateLine)
	if !dateOK {
		res.Gaps = append(res.Gaps, GapDate)
	}
	if _, _, ok := textnorm.ParseClock(startText); !ok {
		res.Gaps = append(res.Gaps, GapTime)
	}
	if dateOK {
		if at, ok := textnorm.BuildTimestamp(parts, startText, e.Location); ok {
			label := textnorm.FormatDateLabel(at)
			appt.ScheduledAt = &at
			appt.DateLabel = &label
		}
	}

	res.Appointment = appt
	return res, nil
}

// Incomplete reports whether ScheduledAt could not be derived.
func (r Result) Incomplete() bool {
	return r.Appointment.ScheduledAt == nil
}

func findLine(lines []string, match func(string) bool) string {
	for _, l := range lines {
		if match(l) {
			return l
		}
	}
	return ""
}

func isDateLine(l string) bool {
	return strings.Contains(l, "/") && yearRe.MatchString(l)
}

// isTimeRangeLine matches "10:15 am - 10:45 am". A dash alone is not enough:
// hyphenated names such as "Ana-María" contain "am".
func isTimeRangeLine(l string) bool {
	if !strings.Contains(l, "-") {
		return false
	}
	_, _, ok := textnorm.ParseClock(textnorm.StartTime(l))
	return ok
}

func findPhone(text string, lines []string) *int64 {
	m := phoneRe.FindString(text)
	if m == "" {
		m = phoneRe.FindString(strings.Join(lines, "\n"))
	}
	if m == "" {
		return nil
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func specialist(line string) string {
	s := textnorm.CollapseSpace(line)
	return strings.TrimSpace(leadingConRe.ReplaceAllString(s, ""))
}
