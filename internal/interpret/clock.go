package interpret

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/homefleet-core/internal/schedule"
)

// clockPattern matches "19:00", "7:30pm", "7 pm", "19h" and "19h30" at the
// start of the text. Groups: hour, minute after ':', 'h', minute after 'h',
// am/pm.
var clockPattern = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2})|(h)(\d{2})?)?\s*(am|pm)?(?:\s|[.,!?]|$)`)

// parseWhen reads the text after a time marker. It accepts ISO date-times
// and clock times; a clock time means its next occurrence after now in loc.
func parseWhen(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	fields := strings.Fields(text)
	candidates := []string{text, fields[0]}
	if len(fields) > 1 {
		candidates = append(candidates, fields[0]+" "+fields[1])
	}
	for _, c := range candidates {
		if t, err := schedule.ParseRunAt(strings.TrimRight(c, ".,!?"), loc); err == nil {
			return t, true
		}
	}

	return parseClock(text, now, loc)
}

func parseClock(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	hasColon, hasH, meridiem := m[2] != "", m[3] != "", strings.ToLower(m[5])
	if !hasColon && !hasH && meridiem == "" {
		// A bare number is not a time.
		return time.Time{}, false
	}

	hour, _ := strconv.Atoi(m[1])
	minute := 0
	switch {
	case m[2] != "":
		minute, _ = strconv.Atoi(m[2])
	case m[4] != "":
		minute, _ = strconv.Atoi(m[4])
	}
	if minute > 59 {
		return time.Time{}, false
	}

	switch meridiem {
	case "am", "pm":
		if hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		if hour == 12 {
			hour = 0
		}
		if meridiem == "pm" {
			hour += 12
		}
	default:
		if hour > 23 {
			return time.Time{}, false
		}
	}

	local := now.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !at.After(local) {
		at = at.AddDate(0, 0, 1)
	}
	return at, true
}
