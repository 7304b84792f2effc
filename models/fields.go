package models

// Field names as used in persisted records and submitted forms
const (
	FieldTitle               = "title"
	FieldDescription         = "description"
	FieldLocation            = "location"
	FieldPostedBy            = "postedBy"
	FieldDatetime            = "datetime"
	FieldThumbnail           = "thumbnail"
	FieldThumbnailImageDescr = "thumbnailImageDescr"
)

type pinField struct {
	name string
	get  func(*Pin) string
	set  func(*PinParams, string)
}

var pinFields = []pinField{
	{
		name: FieldTitle,
		get:  func(p *Pin) string { return p.Title },
		set:  func(pp *PinParams, v string) { pp.Title = v },
	},
	{
		name: FieldDescription,
		get:  func(p *Pin) string { return p.Description },
		set:  func(pp *PinParams, v string) { pp.Description = v },
	},
	{
		name: FieldLocation,
		get:  func(p *Pin) string { return p.Location },
		set:  func(pp *PinParams, v string) { pp.Location = v },
	},
	{
		name: FieldPostedBy,
		get:  func(p *Pin) string { return p.PostedBy },
		set:  func(pp *PinParams, v string) { pp.PostedBy = v },
	},
	{
		name: FieldDatetime,
		get:  func(p *Pin) string { return p.Datetime.ISOString() },
		set:  func(pp *PinParams, v string) { pp.Datetime = v },
	},
	{
		name: FieldThumbnail,
		get:  func(p *Pin) string { return p.Thumbnail },
		set:  func(pp *PinParams, v string) { pp.Thumbnail = v },
	},
	{
		name: FieldThumbnailImageDescr,
		get:  func(p *Pin) string { return p.ThumbnailImageDescr },
		set:  func(pp *PinParams, v string) { pp.ThumbnailImageDescr = v },
	},
}

func lookupField(name string) (pinField, bool) {
	for _, f := range pinFields {
		if f.name == name {
			return f, true
		}
	}
	return pinField{}, false
}

// FieldNames lists every pin field in persisted order
func FieldNames() []string {
	names := make([]string, 0, len(pinFields))
	for _, f := range pinFields {
		names = append(names, f.name)
	}
	return names
}

// Field returns the string form of the named field. The datetime is rendered as its ISO string.
func (p *Pin) Field(name string) (string, bool) {
	f, ok := lookupField(name)
	if !ok {
		return "", false
	}
	return f.get(p), true
}

// SetField assigns the named raw input field. It reports false for unknown names.
func (pp *PinParams) SetField(name, value string) bool {
	f, ok := lookupField(name)
	if !ok {
		return false
	}
	f.set(pp, value)
	return true
}

// ParamsFrom fills PinParams by looking up every known field through get
func ParamsFrom(get func(name string) string) PinParams {
	var pp PinParams
	for _, f := range pinFields {
		f.set(&pp, get(f.name))
	}
	return pp
}
