package models

// PinView vends the pin data needed to render listings, detail pages and edit forms
type PinView struct {
	Slug                string         `json:"slug"`
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	Location            string         `json:"location"`
	PostedBy            string         `json:"postedBy"`
	Datetime            string         `json:"datetime"`
	DisplayDatetime     string         `json:"displayDatetime"`
	LocalDatetime       string         `json:"localDatetime"`
	Calendar            CalendarButton `json:"calendar"`
	ThumbnailURL        string         `json:"thumbnailUrl,omitempty"`
	ThumbnailImageDescr string         `json:"thumbnailImageDescr,omitempty"`
	Elapsed             bool           `json:"elapsed"`
}

func NewPinView(slug string, p *Pin, cfg TimeConfig, uploadsBaseURL string, now TimeValue) PinView {
	return PinView{
		Slug:                slug,
		Title:               p.Title,
		Description:         p.Description,
		Location:            p.Location,
		PostedBy:            p.PostedBy,
		Datetime:            p.Datetime.ISOString(),
		DisplayDatetime:     p.Datetime.Display(cfg),
		LocalDatetime:       p.LocalDatetimeValue(cfg),
		Calendar:            p.CalendarButton(cfg),
		ThumbnailURL:        p.ResolvedThumbnailPath(uploadsBaseURL),
		ThumbnailImageDescr: p.ThumbnailImageDescr,
		Elapsed:             p.IsElapsed(now, cfg),
	}
}
