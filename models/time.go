package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goodsign/monday"
	"golang.org/x/text/language"

	cst "community.io/pinboard/constants"
	se "community.io/pinboard/errors"
)

const (
	// ISOLayout is the canonical persisted form of a TimeValue, always in UTC with millisecond precision
	ISOLayout = "2006-01-02T15:04:05.000Z"
	// LocalDatetimeLayout matches the value format of html datetime-local inputs
	LocalDatetimeLayout = "2006-01-02T15:04"
	displayLayout       = "Monday 2 January 2006, 15:04"
)

var (
	// layouts carrying an explicit zone. RFC3339 parsing also accepts fractional seconds.
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04Z07:00",
		// offsets without a colon, e.g. +0200
		"2006-01-02T15:04:05Z0700",
		"2006-01-02T15:04Z0700",
	}
	// layouts without zone, interpreted in the location handed to ParseTimeIn
	zonelessLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		LocalDatetimeLayout,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	// pattern tokens understood by Format, longest first
	formatTokens = []struct {
		token  string
		render func(time.Time) string
	}{
		{"YYYY", layoutToken("2006")},
		{"SSS", func(t time.Time) string { return fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond)) }},
		{"MM", layoutToken("01")},
		{"DD", layoutToken("02")},
		{"HH", layoutToken("15")},
		{"mm", layoutToken("04")},
		{"ss", layoutToken("05")},
		{"Z", layoutToken("-07:00")},
	}
)

func layoutToken(layout string) func(time.Time) string {
	return func(t time.Time) string { return t.Format(layout) }
}

// TimeConfig carries the site's display settings. Only rendering depends on it; comparisons of TimeValue
// never do.
type TimeConfig struct {
	Location *time.Location
	// Locale is a BCP 47 tag such as nl-BE
	Locale string
	// AssumedDuration is how long an event is assumed to last. It decides both the calendar end time
	// and when a pin counts as elapsed.
	AssumedDuration time.Duration
}

// DefaultTimeConfig renders in UTC with an English locale and the default assumed duration
func DefaultTimeConfig() TimeConfig {
	return TimeConfig{Location: time.UTC, Locale: "en-US", AssumedDuration: cst.DefaultAssumedDuration}
}

// NewTimeConfig resolves the named IANA timezone and validates the locale tag
func NewTimeConfig(timezone, locale string, assumed time.Duration) (TimeConfig, *se.Err) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return TimeConfig{}, se.NewBadInput(fmt.Sprintf("unknown timezone %q", timezone)).WithCause(err)
	}
	if _, err := language.Parse(locale); err != nil {
		return TimeConfig{}, se.NewBadInput(fmt.Sprintf("invalid locale %q", locale)).WithCause(err)
	}
	if assumed < 0 {
		return TimeConfig{}, se.NewBadInput(fmt.Sprintf("negative assumed event duration %s", assumed))
	}
	return TimeConfig{Location: loc, Locale: locale, AssumedDuration: assumed}, nil
}

func (c TimeConfig) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// mondayLocale maps the BCP 47 locale onto the identifiers used by monday, e.g. nl-BE -> nl_BE
func (c TimeConfig) mondayLocale() monday.Locale {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return monday.LocaleEnUS
	}
	return monday.Locale(strings.ReplaceAll(tag.String(), "-", "_"))
}

// TimeValue is an immutable point in time. Arithmetic returns new values.
type TimeValue struct {
	t time.Time
}

// ISOLayout has room for four digit years only
const (
	minYear = 0
	maxYear = 9999
)

// TimeOf wraps t, normalized to UTC and millisecond precision
func TimeOf(t time.Time) TimeValue {
	return TimeValue{t: t.UTC().Truncate(time.Millisecond)}
}

func Now() TimeValue {
	return TimeOf(time.Now())
}

// ParseTime parses an ISO-8601 date-time. Inputs without a zone are read as UTC.
func ParseTime(s string) (TimeValue, *se.Err) {
	return ParseTimeIn(s, time.UTC)
}

// ParseTimeIn parses an ISO-8601 date-time. Inputs without a zone, such as html datetime-local values,
// are read in loc.
func ParseTimeIn(s string, loc *time.Location) (TimeValue, *se.Err) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeValue{}, se.NewParse("empty datetime")
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return inRange(s, TimeOf(t))
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	var lastErr error
	for _, layout := range zonelessLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return inRange(s, TimeOf(t))
		}
		lastErr = err
	}
	return TimeValue{}, se.NewParse(fmt.Sprintf("cannot interpret %q as a date-time", s)).WithCause(lastErr)
}

// inRange rejects values whose UTC year falls outside what ISOString can write, e.g. an offset pushing
// 0000-01-01 into year -1
func inRange(s string, v TimeValue) (TimeValue, *se.Err) {
	if !v.Representable() {
		return TimeValue{}, se.NewParse(fmt.Sprintf("%q is out of range, years run from %04d to %d in UTC", s, minYear, maxYear))
	}
	return v, nil
}

// Representable reports whether v survives a trip through ISOString and ParseTime
func (v TimeValue) Representable() bool {
	y := v.t.Year()
	return y >= minYear && y <= maxYear
}

func (v TimeValue) Time() time.Time {
	return v.t
}

func (v TimeValue) IsZero() bool {
	return v.t.IsZero()
}

func (v TimeValue) Add(d time.Duration) TimeValue {
	return TimeOf(v.t.Add(d))
}

func (v TimeValue) PlusHours(n int) TimeValue {
	return v.Add(time.Duration(n) * time.Hour)
}

func (v TimeValue) Before(o TimeValue) bool {
	return v.t.Before(o.t)
}

func (v TimeValue) After(o TimeValue) bool {
	return v.t.After(o.t)
}

func (v TimeValue) Equal(o TimeValue) bool {
	return v.t.Equal(o.t)
}

// IsElapsed reports whether v widened by grace is at or before ref
func (v TimeValue) IsElapsed(ref TimeValue, grace time.Duration) bool {
	return !v.t.Add(grace).After(ref.t)
}

func (v TimeValue) ISOString() string {
	return v.t.UTC().Format(ISOLayout)
}

func (v TimeValue) String() string {
	return v.ISOString()
}

// Format renders v in loc following pattern. Recognized tokens are YYYY, MM, DD, HH, mm, ss, SSS and Z;
// anything else is copied verbatim.
func (v TimeValue) Format(pattern string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	t := v.t.In(loc)
	var b strings.Builder
	for i := 0; i < len(pattern); {
		matched := false
		for _, ft := range formatTokens {
			if strings.HasPrefix(pattern[i:], ft.token) {
				b.WriteString(ft.render(t))
				i += len(ft.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String()
}

// Display renders v for humans in the configured timezone, with day and month names in the configured
// locale
func (v TimeValue) Display(cfg TimeConfig) string {
	return monday.Format(v.t.In(cfg.location()), displayLayout, cfg.mondayLocale())
}

func (v TimeValue) MarshalJSON() ([]byte, error) {
	if !v.Representable() {
		return nil, se.NewMalformedPin(fmt.Sprintf("datetime %s is out of range", v.t))
	}
	return json.Marshal(v.ISOString())
}

func (v *TimeValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, perr := ParseTime(s)
	if perr != nil {
		return perr
	}
	*v = parsed
	return nil
}
