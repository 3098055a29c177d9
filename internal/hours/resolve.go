package hours

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MarketStatus is the resolved open/closed state of an instrument.
type MarketStatus int32

const (
	StatusUnknown MarketStatus = iota
	StatusOpen
	StatusClosed
)

func (s MarketStatus) String() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Transition is the kind of the next market-state change.
type Transition int32

const (
	TransitionNone Transition = iota
	TransitionOpen
	TransitionClose
)

func (t Transition) String() string {
	switch t {
	case TransitionOpen:
		return "Open"
	case TransitionClose:
		return "Close"
	default:
		return "None"
	}
}

// Result is the outcome of resolving a schedule against an instant.
// Minutes is nil when no transition is known.
type Result struct {
	Status     MarketStatus
	Minutes    *int
	Transition Transition
}

const minutesPerDay = 1440

// window is a half-open [start, end) interval in zone-local minute keys.
type window struct {
	start int64
	end   int64
}

// Resolve computes the market status for md at the given instant.
// Liquid hours are preferred over trading hours when both are present.
// Missing metadata, an unknown timezone, or an unparseable schedule all
// yield StatusUnknown rather than an error.
func Resolve(md *Metadata, now time.Time) Result {
	unknown := Result{Status: StatusUnknown, Transition: TransitionNone}

	if md == nil || md.TimeZoneID == "" {
		return unknown
	}

	schedule := md.LiquidHours
	if schedule == "" {
		schedule = md.TradingHours
	}
	if schedule == "" {
		return unknown
	}

	loc, err := loadZone(md.TimeZoneID)
	if err != nil {
		return unknown
	}

	windows, err := parseSchedule(schedule)
	if err != nil {
		return unknown
	}

	nowKey := minuteKey(now, loc)

	for _, w := range windows {
		if nowKey >= w.start && nowKey < w.end {
			m := int(w.end - nowKey)
			return Result{Status: StatusOpen, Minutes: &m, Transition: TransitionClose}
		}
	}

	for _, w := range windows {
		if w.start > nowKey {
			m := int(w.start - nowKey)
			return Result{Status: StatusClosed, Minutes: &m, Transition: TransitionOpen}
		}
	}

	// Past every listed window: the schedule is a rolling excerpt, so the
	// next open is the earliest session advanced by whole days.
	if len(windows) > 0 {
		next := windows[0].start
		for next <= nowKey {
			next += minutesPerDay
		}
		m := int(next - nowKey)
		return Result{Status: StatusClosed, Minutes: &m, Transition: TransitionOpen}
	}

	// Every segment was CLOSED.
	return Result{Status: StatusClosed, Transition: TransitionNone}
}

// parseSchedule parses a semicolon-separated schedule string into sorted
// windows. Segments are DATE:RANGES; ranges are comma-separated and each is
// HHMM-HHMM, HHMM-DATE:HHMM, DATE:HHMM-DATE:HHMM, or the literal CLOSED.
func parseSchedule(s string) ([]window, error) {
	var windows []window

	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		colon := strings.Index(seg, ":")
		if colon < 0 {
			return nil, fmt.Errorf("segment %q: missing date separator", seg)
		}

		segDate := seg[:colon]
		dayKey, err := dateKey(segDate)
		if err != nil {
			return nil, fmt.Errorf("segment %q: %w", seg, err)
		}

		ranges := seg[colon+1:]
		if ranges == "CLOSED" {
			continue
		}

		for _, r := range strings.Split(ranges, ",") {
			r = strings.TrimSpace(r)
			if r == "" || r == "CLOSED" {
				continue
			}

			dash := strings.Index(r, "-")
			if dash < 0 {
				return nil, fmt.Errorf("range %q: missing dash", r)
			}

			start, _, err := parseBoundary(r[:dash], dayKey)
			if err != nil {
				return nil, fmt.Errorf("range %q: %w", r, err)
			}
			end, endExplicit, err := parseBoundary(r[dash+1:], dayKey)
			if err != nil {
				return nil, fmt.Errorf("range %q: %w", r, err)
			}

			// Legacy same-day form with end before start is an overnight
			// session rolling into the next day.
			if end <= start && !endExplicit {
				end += minutesPerDay
			}
			if end <= start {
				return nil, fmt.Errorf("range %q: empty window", r)
			}

			windows = append(windows, window{start: start, end: end})
		}
	}

	sort.Slice(windows, func(i, j int) bool { return windows[i].start < windows[j].start })
	return windows, nil
}

// parseBoundary parses either HHMM (relative to dayKey) or YYYYMMDD:HHMM.
// The bool reports whether an explicit date was present.
func parseBoundary(tok string, dayKey int64) (int64, bool, error) {
	tok = strings.TrimSpace(tok)

	if colon := strings.Index(tok, ":"); colon >= 0 {
		dk, err := dateKey(tok[:colon])
		if err != nil {
			return 0, false, err
		}
		mins, err := timeOfDay(tok[colon+1:])
		if err != nil {
			return 0, false, err
		}
		return dk*minutesPerDay + mins, true, nil
	}

	mins, err := timeOfDay(tok)
	if err != nil {
		return 0, false, err
	}
	return dayKey*minutesPerDay + mins, false, nil
}

// dateKey converts YYYYMMDD to days since the civil epoch.
func dateKey(s string) (int64, error) {
	if len(s) != 8 {
		return 0, fmt.Errorf("bad date %q", s)
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0, fmt.Errorf("bad date %q", s)
	}
	m, err := strconv.Atoi(s[4:6])
	if err != nil {
		return 0, fmt.Errorf("bad date %q", s)
	}
	d, err := strconv.Atoi(s[6:])
	if err != nil {
		return 0, fmt.Errorf("bad date %q", s)
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return 0, fmt.Errorf("bad date %q", s)
	}
	return daysFromCivil(y, m, d), nil
}

// timeOfDay converts HHMM to minutes past midnight.
func timeOfDay(s string) (int64, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, fmt.Errorf("bad time %q", s)
	}
	m, err := strconv.Atoi(s[2:])
	if err != nil {
		return 0, fmt.Errorf("bad time %q", s)
	}
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	return int64(h)*60 + int64(m), nil
}

// minuteKey converts an instant to a zone-local minute key comparable with
// schedule boundaries without any calendar arithmetic.
func minuteKey(t time.Time, loc *time.Location) int64 {
	local := t.In(loc)
	y, m, d := local.Date()
	return daysFromCivil(y, int(m), d)*minutesPerDay + int64(local.Hour())*60 + int64(local.Minute())
}

// daysFromCivil maps a proleptic Gregorian date to days since 1970-01-01.
func daysFromCivil(y, m, d int) int64 {
	if m <= 2 {
		y--
	}
	era := y / 400
	if y < 0 && y%400 != 0 {
		era--
	}
	yoe := int64(y - era*400)
	var mp int64
	if m > 2 {
		mp = int64(m) - 3
	} else {
		mp = int64(m) + 9
	}
	doy := (153*mp+2)/5 + int64(d) - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return int64(era)*146097 + doe - 719468
}
