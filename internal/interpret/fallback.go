package interpret

import (
	"regexp"
	"strings"
	"time"
)

// actionKeywords are checked in order against the lower-cased prompt.
var actionKeywords = []struct {
	action   string
	keywords []string
}{
	{action: "on", keywords: []string{"turn on", "switch on", "bật", "mở"}},
	{action: "off", keywords: []string{"turn off", "switch off", "tắt"}},
	{action: "toggle", keywords: []string{"toggle", "đảo"}},
}

var (
	// devicePattern captures the words after an action keyword up to a time
	// marker or punctuation.
	devicePattern = regexp.MustCompile(
		`(?i)(?:turn on|turn off|switch on|switch off|toggle|bật|tắt|mở|đảo)\s+([\p{L}\p{M}\p{N}_\s-]+?)(?:\s+(?:at|lúc|vào)\s|[.,!?]|$)`)

	// timePattern captures everything after one or more time markers, as in
	// "vào lúc 19:00".
	timePattern = regexp.MustCompile(`(?i)(?:^|\s)(?:(?:at|lúc|vào)\s+)+(.+)$`)
)

// fallback interprets prompt without a backend.
func fallback(prompt string, now time.Time, loc *time.Location) Interpretation {
	in := Interpretation{
		Kind:       KindCommand,
		DeviceName: deviceName(prompt),
		Action:     fallbackAction(prompt),
		Source:     SourceFallback,
	}

	if m := timePattern.FindStringSubmatch(prompt); m != nil {
		if at, ok := parseWhen(m[1], now, loc); ok {
			in.Kind = KindSchedule
			in.RunAt = &at
		}
	}
	return in
}

func fallbackAction(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, a := range actionKeywords {
		for _, kw := range a.keywords {
			if strings.Contains(lower, kw) {
				return a.action
			}
		}
	}
	return DefaultAction
}

func deviceName(prompt string) string {
	m := devicePattern.FindStringSubmatch(prompt)
	if m == nil {
		return DefaultDeviceName
	}
	name := strings.Join(strings.Fields(m[1]), " ")
	if len(name) > 4 && strings.EqualFold(name[:4], "the ") {
		name = name[4:]
	}
	if name == "" {
		return DefaultDeviceName
	}
	return name
}
