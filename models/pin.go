package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	se "community.io/pinboard/errors"
)

// Pin is a single community-submitted event. A Pin always carries a resolvable Datetime.
type Pin struct {
	Title               string
	Description         string
	Location            string
	PostedBy            string
	Datetime            TimeValue
	Thumbnail           string // absolute URL or bare filename under the uploads directory
	ThumbnailImageDescr string
}

// PinParams carries raw pin input as received from forms or the command line. Length and required-field
// policy is up to the caller; NewPin only insists on a resolvable datetime.
type PinParams struct {
	Title               string
	Description         string
	Location            string
	PostedBy            string
	Datetime            string
	Thumbnail           string
	ThumbnailImageDescr string
}

// PinRecord is the persisted form of a Pin
type PinRecord struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	Location            string `json:"location"`
	PostedBy            string `json:"postedBy"`
	Datetime            string `json:"datetime"`
	Thumbnail           string `json:"thumbnail,omitempty"`
	ThumbnailImageDescr string `json:"thumbnailImageDescr,omitempty"`
}

// NewPin builds a pin from raw input. Datetimes without a zone are read in loc.
func NewPin(params PinParams, loc *time.Location) (*Pin, *se.Err) {
	dt, err := ParseTimeIn(params.Datetime, loc)
	if err != nil {
		return nil, err
	}
	return &Pin{
		Title:               params.Title,
		Description:         params.Description,
		Location:            params.Location,
		PostedBy:            params.PostedBy,
		Datetime:            dt,
		Thumbnail:           params.Thumbnail,
		ThumbnailImageDescr: params.ThumbnailImageDescr,
	}, nil
}

func (p *Pin) Serialize() PinRecord {
	return PinRecord{
		Title:               p.Title,
		Description:         p.Description,
		Location:            p.Location,
		PostedBy:            p.PostedBy,
		Datetime:            p.Datetime.ISOString(),
		Thumbnail:           p.Thumbnail,
		ThumbnailImageDescr: p.ThumbnailImageDescr,
	}
}

// Deserialize is the inverse of Serialize
func Deserialize(r PinRecord) (*Pin, *se.Err) {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{FieldTitle, r.Title},
		{FieldLocation, r.Location},
		{FieldPostedBy, r.PostedBy},
		{FieldDatetime, r.Datetime},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, se.NewMalformedPin(fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")))
	}
	dt, err := ParseTime(r.Datetime)
	if err != nil {
		return nil, se.NewMalformedPin(fmt.Sprintf("unparsable datetime %q", r.Datetime)).WithCause(err)
	}
	return &Pin{
		Title:               r.Title,
		Description:         r.Description,
		Location:            r.Location,
		PostedBy:            r.PostedBy,
		Datetime:            dt,
		Thumbnail:           r.Thumbnail,
		ThumbnailImageDescr: r.ThumbnailImageDescr,
	}, nil
}

// MarshalPin refuses pins whose datetime could not be read back
func MarshalPin(p *Pin) ([]byte, *se.Err) {
	if !p.Datetime.Representable() {
		return nil, se.NewMalformedPin(fmt.Sprintf("datetime %s is out of range", p.Datetime.Time()))
	}
	b, err := json.MarshalIndent(p.Serialize(), "", "  ")
	if err != nil {
		return nil, se.NewServiceFailure("failed to encode pin").WithCause(err)
	}
	return b, nil
}

func UnmarshalPin(b []byte) (*Pin, *se.Err) {
	var r PinRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, se.NewMalformedPin("pin data is not a JSON object").WithCause(err)
	}
	return Deserialize(r)
}

// End is the assumed end of the event. The pin's own Datetime is left untouched.
func (p *Pin) End(cfg TimeConfig) TimeValue {
	return p.Datetime.Add(cfg.AssumedDuration)
}

// IsElapsed reports whether the assumed event window has fully passed at ref
func (p *Pin) IsElapsed(ref TimeValue, cfg TimeConfig) bool {
	return p.Datetime.IsElapsed(ref, cfg.AssumedDuration)
}

// CalendarAttributes holds what a calendar feed generator needs to describe the event
type CalendarAttributes struct {
	Title       string
	Description string
	Location    string
	Start       TimeValue
	End         TimeValue
	URL         string
}

func (p *Pin) CalendarAttributes(cfg TimeConfig, url string) CalendarAttributes {
	return CalendarAttributes{
		Title:       p.Title,
		Description: p.Description,
		Location:    p.Location,
		Start:       p.Datetime,
		End:         p.End(cfg),
		URL:         url,
	}
}

// CalendarButton carries the attributes of an add-to-calendar button, rendered in the site timezone
type CalendarButton struct {
	StartDate string
	StartTime string
	EndDate   string
	EndTime   string
	Timezone  string
}

func (p *Pin) CalendarButton(cfg TimeConfig) CalendarButton {
	loc := cfg.location()
	end := p.End(cfg)
	return CalendarButton{
		StartDate: p.Datetime.Format("YYYY-MM-DD", loc),
		StartTime: p.Datetime.Format("HH:mm", loc),
		EndDate:   end.Format("YYYY-MM-DD", loc),
		EndTime:   end.Format("HH:mm", loc),
		Timezone:  loc.String(),
	}
}

// LocalDatetimeValue renders the start time in the site timezone the way datetime-local inputs expect it
func (p *Pin) LocalDatetimeValue(cfg TimeConfig) string {
	return p.Datetime.Format("YYYY-MM-DDTHH:mm", cfg.location())
}

// ResolvedThumbnailPath returns "" without a thumbnail. Values containing a slash are taken as external
// URLs; bare filenames are prefixed with uploadsBaseURL.
func (p *Pin) ResolvedThumbnailPath(uploadsBaseURL string) string {
	switch {
	case p.Thumbnail == "":
		return ""
	case strings.Contains(p.Thumbnail, "/"):
		return p.Thumbnail
	default:
		return uploadsBaseURL + p.Thumbnail
	}
}
