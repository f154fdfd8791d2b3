package availability

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without a time zone. It is resolved against the
// clinic location only when a concrete instant is needed.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) Weekday() time.Weekday {
	return d.midnight(time.UTC).Weekday()
}

func (d Date) Before(o Date) bool {
	return d.midnight(time.UTC).Before(o.midnight(time.UTC))
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.midnight(time.UTC).AddDate(0, 0, n))
}

// At returns the instant of tod on d in loc.
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, tod.Hour(), tod.Minute(), 0, 0, loc)
}

func (d Date) midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a wall-clock time with minute precision, stored as minutes
// since midnight. 24:00 is allowed so a window can close at end of day.
type TimeOfDay int

const EndOfDay TimeOfDay = 24 * 60

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' || !digits(s[:2]) || !digits(s[3:]) {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	tod := NewTimeOfDay(h, m)
	if m > 59 || tod > EndOfDay {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return tod, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Slot is a consultation start: a (date, time-of-day) pair.
type Slot struct {
	Date Date      `json:"date"`
	Time TimeOfDay `json:"time"`
}

func (s Slot) String() string {
	return s.Date.String() + "T" + s.Time.String()
}

func (s Slot) Start(loc *time.Location) time.Time {
	return s.Date.At(s.Time, loc)
}

func (s Slot) IsZero() bool {
	return s.Date.IsZero() && s.Time == 0
}

// WeeklyRule is the recurring opening hours for one weekday.
type WeeklyRule struct {
	Weekday time.Weekday `json:"weekday"`
	Enabled bool         `json:"enabled"`
	Start   TimeOfDay    `json:"start"`
	End     TimeOfDay    `json:"end"`
}

// Override replaces the weekly rule for one calendar date.
type Override struct {
	Date    Date      `json:"date"`
	Enabled bool      `json:"enabled"`
	Start   TimeOfDay `json:"start"`
	End     TimeOfDay `json:"end"`
}

// Source tells where a resolved Window came from.
type Source string

const (
	SourceOverride Source = "override"
	SourceWeekly   Source = "weekly"
	SourceNone     Source = "none"
)

// Window is the availability for one date after override resolution.
type Window struct {
	Date    Date      `json:"date"`
	Enabled bool      `json:"enabled"`
	Start   TimeOfDay `json:"start"`
	End     TimeOfDay `json:"end"`
	Source  Source    `json:"source"`
}

// Contains reports whether t falls inside [Start, End) of an enabled window.
func (w Window) Contains(t TimeOfDay) bool {
	return w.Enabled && t >= w.Start && t < w.End
}

func validRange(enabled bool, start, end TimeOfDay) error {
	if start < 0 || end > EndOfDay {
		return fmt.Errorf("hours out of range")
	}
	if enabled && start >= end {
		return fmt.Errorf("start %s must be before end %s", start, end)
	}
	return nil
}

// DefaultWeeklyRules are the clinic hours used when nothing is configured:
// weekdays 09:00-17:00, weekends closed.
func DefaultWeeklyRules() []WeeklyRule {
	rules := make([]WeeklyRule, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		r := WeeklyRule{Weekday: wd, Enabled: true, Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(17, 0)}
		if wd == time.Saturday || wd == time.Sunday {
			r.Enabled = false
			r.End = NewTimeOfDay(13, 0)
		}
		rules = append(rules, r)
	}
	return rules
}
