package jobscheduler

import (
	"strconv"
	"strings"
	"time"
)

// SimpleCron parses the standard 5-field (minute hour dom month dow) cron
// expression and reports whether the given minute is due, tolerant of "*"
// and comma-separated lists. No cron-expression library appears anywhere
// in the retrieval pack (teacher or examples), so this is implemented
// directly on the standard library rather than inventing a dependency the
// corpus never uses — see DESIGN.md standard-library justifications.
type SimpleCron struct{}

// IsDue reports whether cronExpr matches t's minute and the schedule has
// not already fired during this same minute (last != nil && same minute).
func (SimpleCron) IsDue(cronExpr string, last *time.Time, t time.Time) bool {
	fields := strings.Fields(cronExpr)
	if len(fields) != 5 {
		return false
	}
	if last != nil && sameMinute(*last, t) {
		return false
	}

	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]
	return matchField(minute, t.Minute()) &&
		matchField(hour, t.Hour()) &&
		matchField(dom, t.Day()) &&
		matchField(month, int(t.Month())) &&
		matchField(dow, int(t.Weekday()))
}

func sameMinute(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}

func matchField(field string, value int) bool {
	if field == "*" {
		return true
	}
	for _, part := range strings.Split(field, ",") {
		if strings.Contains(part, "/") {
			segments := strings.SplitN(part, "/", 2)
			step, err := strconv.Atoi(segments[1])
			if err != nil || step <= 0 {
				continue
			}
			if segments[0] == "*" && value%step == 0 {
				return true
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err == nil && n == value {
			return true
		}
	}
	return false
}
