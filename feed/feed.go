// Package feed renders pins as iCalendar feeds.
package feed

import (
	"fmt"
	"strings"

	ical "github.com/arran4/golang-ical"

	"community.io/pinboard/common/logging"
	se "community.io/pinboard/errors"
	md "community.io/pinboard/models"
	st "community.io/pinboard/stores"
)

const productID = "-//community.io//pinboard//EN"

// Kind names a feed and the pins it carries
type Kind struct {
	Name   string
	Filter st.Filter
}

var (
	KindAll      = Kind{Name: "all", Filter: st.FilterAll}
	KindUpcoming = Kind{Name: "upcoming", Filter: st.FilterUpcoming}
	KindArchive  = Kind{Name: "archive", Filter: st.FilterElapsed}
	Kinds        = []Kind{KindAll, KindUpcoming, KindArchive}
)

// Filename is the name the feed is served and stored under, e.g. upcoming.ics
func (k Kind) Filename() string {
	return k.Name + ".ics"
}

// TimeSensitive reports whether the pins in the feed change as time passes, not only when pins are saved
func (k Kind) TimeSensitive() bool {
	return k.Filter.IncludeElapsed != k.Filter.IncludeUpcoming
}

// KindByFilename looks up a feed by the name it is served under
func KindByFilename(name string) (Kind, bool) {
	for _, k := range Kinds {
		if k.Filename() == name {
			return k, true
		}
	}
	return Kind{}, false
}

// SiteURL turns a configured host domain into a base URL
func SiteURL(hostDomain string) string {
	if strings.Contains(hostDomain, "://") {
		return strings.TrimSuffix(hostDomain, "/")
	}
	return "https://" + strings.TrimSuffix(hostDomain, "/")
}

// PinURL is the public address of a pin's detail page
func PinURL(siteURL, slug string) string {
	return fmt.Sprintf("%s/pins/%s", siteURL, slug)
}

// Generator renders feeds from the pins currently stored
type Generator struct {
	Pins    st.PinStore
	Time    md.TimeConfig
	SiteURL string
	Title   string
	Now     func() md.TimeValue
}

func NewGenerator(pins st.PinStore, tc md.TimeConfig, hostDomain, title string) *Generator {
	return &Generator{Pins: pins, Time: tc, SiteURL: SiteURL(hostDomain), Title: title, Now: md.Now}
}

// Render lists the pins of kind k and serializes them as a calendar
func (g *Generator) Render(k Kind) ([]byte, *se.Err) {
	sp, err := g.Pins.ListSlugs(k.Filter)
	if err != nil {
		logging.WithFuncName().WithError(err).WithField("feed", k.Name).Error("error listing pins for feed")
		return nil, err
	}
	return []byte(g.Build(k, sp)), nil
}

// Build serializes the given pins. Event ids derive from slugs so that calendar clients update rather than
// duplicate events across refreshes.
func (g *Generator) Build(k Kind, sp st.SlugPins) string {
	host := strings.TrimPrefix(strings.TrimPrefix(g.SiteURL, "https://"), "http://")
	stamp := g.Now().Time()
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(fmt.Sprintf("%s (%s)", g.Title, k.Name))
	for _, e := range sp {
		attrs := e.Pin.CalendarAttributes(g.Time, PinURL(g.SiteURL, e.Slug))
		ev := cal.AddEvent(fmt.Sprintf("%s@%s", e.Slug, host))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(attrs.Start.Time())
		ev.SetEndAt(attrs.End.Time())
		ev.SetSummary(attrs.Title)
		if attrs.Description != "" {
			ev.SetDescription(attrs.Description)
		}
		ev.SetLocation(attrs.Location)
		ev.SetURL(attrs.URL)
	}
	return cal.Serialize()
}
