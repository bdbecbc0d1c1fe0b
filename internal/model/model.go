package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day (hour and minute) at which a
// scheduled update fires. It deliberately has no date component; the
// scheduler derives concrete run times from it.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (the dashboard form format) into a Clock.
// Trailing input after the minutes is rejected.
func ParseClock(s string) (Clock, error) {
	hh, mm, found := strings.Cut(s, ":")
	if !found {
		return Clock{}, fmt.Errorf("parse time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return Clock{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return Clock{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	if h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("parse time %q: hour out of range", s)
	}
	if m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("parse time %q: minute out of range", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Next returns the next instant at which this wall-clock time occurs:
// today at HH:MM:00 if that is still ahead of now, otherwise tomorrow.
func (c Clock) Next(now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// Targets is the set of refresh actions a scheduled update triggers.
type Targets struct {
	CovidData bool
	News      bool
}

// Zero reports whether no target is selected. Such an entry would never
// do anything and the scheduler rejects it.
func (t Targets) Zero() bool {
	return !t.CovidData && !t.News
}

// Describe renders the target set for update toasts and calendar export,
// e.g. "COVID data and news".
func (t Targets) Describe() string {
	switch {
	case t.CovidData && t.News:
		return "COVID data and news"
	case t.CovidData:
		return "COVID data"
	case t.News:
		return "news"
	default:
		return "nothing"
	}
}

// Update is a pending scheduled update. NextRun is the concrete next
// fire instant derived from At; re-arming a repeating update advances it
// by one day.
type Update struct {
	ID        string
	Name      string
	At        Clock
	Targets   Targets
	Repeating bool
	NextRun   time.Time
}

// Title is the "name - HH:MM" composite shown in the updates column.
func (u Update) Title() string {
	return u.Name + " - " + u.At.String()
}

// Article is a single news item, from the news API or an RSS source.
type Article struct {
	ID          string
	Source      string
	Title       string
	URL         string
	Content     string
	PublishedAt time.Time
}

// StatValue is a single key statistic. OK is false when the upstream
// data had no usable value; the UI shows "N/A" in that case.
type StatValue struct {
	N  int
	OK bool
}

func Stat(n int) StatValue {
	return StatValue{N: n, OK: true}
}

// Display renders the value for the dashboard, "N/A" when absent.
func (v StatValue) Display() string {
	if !v.OK {
		return "N/A"
	}
	return strconv.Itoa(v.N)
}

// Snapshot is the set of COVID statistics currently shown on the
// dashboard: local 7-day infections plus the national overview numbers.
type Snapshot struct {
	Location         string
	NationLocation   string
	LocalSevenDay    StatValue
	NationalSevenDay StatValue
	HospitalCases    StatValue
	TotalDeaths      StatValue
	UpdatedAt        time.Time
}
