package main

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"community.io/pinboard/common/logging"
	"community.io/pinboard/config"
	cst "community.io/pinboard/constants"
	se "community.io/pinboard/errors"
	md "community.io/pinboard/models"
)

/*
	Utilities to stream-process http multipart form data.

	NOTE the order in which parts get processed is the same as the tree order in which corresponding
	entries are placed in the html DOM. See
	https://html.spec.whatwg.org/multipage/form-control-infrastructure.html#multipart-form-data

	NOTE It is the service that dictates the form processing logic instead of client. Every part is read
	through a LimitReader sized for the field it claims to be, and parts the service does not know are
	closed without being read.
*/

const (
	formFieldThumbnailURL  = "thumbnailUrl"
	formFieldThumbnailFile = "thumbnailFile"
	// utf-8 needs at most this many bytes per character
	maxBytesPerRune = 4
)

var (
	extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)
	// rooted paths other than our own uploads
	notRooted = regexp.MustCompile(`^[^/]`)
)

type upload struct {
	Filename string
	Data     []byte
}

// pinForm holds the fields of a create or edit pin submission
type pinForm struct {
	Title               string  `json:"title"`
	Description         string  `json:"description"`
	Location            string  `json:"location"`
	PostedBy            string  `json:"postedBy"`
	Datetime            string  `json:"datetime"`
	ThumbnailURL        string  `json:"thumbnailUrl"`
	ThumbnailImageDescr string  `json:"thumbnailImageDescr"`
	File                *upload `json:"-"`
}

func (f *pinForm) Validate(limits config.FieldLimits) error {
	_, ownUpload := f.uploadRef()
	return validation.ValidateStruct(f,
		validation.Field(&f.Title,
			validation.Required.Error("the title must not be empty"),
			validation.RuneLength(0, limits.Title).Error(fmt.Sprintf("the title has to be %d characters or shorter", limits.Title)),
		),
		validation.Field(&f.Description,
			validation.RuneLength(0, limits.Description).Error(fmt.Sprintf("the description has to be %d characters or shorter", limits.Description)),
		),
		validation.Field(&f.Location,
			validation.Required.Error("the location needs to be filled in"),
			validation.RuneLength(0, limits.Location).Error(fmt.Sprintf("the location has to be %d characters or shorter", limits.Location)),
		),
		validation.Field(&f.PostedBy,
			validation.Required.Error("posted by cannot be empty"),
			validation.RuneLength(0, limits.PostedBy).Error(fmt.Sprintf("posted by has to be %d characters or shorter", limits.PostedBy)),
		),
		validation.Field(&f.Datetime, validation.Required.Error("a date and time has to be provided")),
		// edit forms come prefilled with the public path of the current upload
		validation.Field(&f.ThumbnailURL, validation.When(!ownUpload,
			validation.RuneLength(0, limits.ThumbnailURL).Error(fmt.Sprintf("the thumbnail url has to be %d characters or shorter", limits.ThumbnailURL)),
			validation.Match(notRooted).Error("the thumbnail url is not a valid url"),
			is.URL.Error("the thumbnail url is not a valid url"),
		)),
		validation.Field(&f.ThumbnailImageDescr,
			validation.When(f.File != nil, validation.Required.Error("please describe or transcribe the thumbnail image")),
			validation.RuneLength(0, limits.ImageDescr),
		),
	)
}

// fieldErrors flattens validation errors into field name -> message
func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
	}
	return out
}

func (f *pinForm) params() md.PinParams {
	return md.PinParams{
		Title:               f.Title,
		Description:         f.Description,
		Location:            f.Location,
		PostedBy:            f.PostedBy,
		Datetime:            f.Datetime,
		ThumbnailImageDescr: f.ThumbnailImageDescr,
	}
}

// uploadRef returns the stored name of an upload when the thumbnail url is its public path, e.g. /uploads/meow.png
func (f *pinForm) uploadRef() (string, bool) {
	if !strings.HasPrefix(f.ThumbnailURL, cst.PublicUploadsPath) {
		return "", false
	}
	name := strings.TrimPrefix(f.ThumbnailURL, cst.PublicUploadsPath)
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	return name, true
}

// thumbnail is what gets stored for the thumbnail url: a bare upload name for our own uploads, else the url
func (f *pinForm) thumbnail() string {
	if name, ok := f.uploadRef(); ok {
		return name
	}
	return f.ThumbnailURL
}

// uploadName is the stored name of an uploaded thumbnail: the pin's slug plus the original extension
func (f *pinForm) uploadName(slug string) string {
	ext := strings.ToLower(filepath.Ext(f.File.Filename))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	return slug + ext
}

// textField binds a form field name to where its value goes and how long it may be
type textField struct {
	dst      *string
	maxRunes int
}

func (f *pinForm) textFields(limits config.FieldLimits) map[string]textField {
	return map[string]textField{
		md.FieldTitle:               {dst: &f.Title, maxRunes: limits.Title},
		md.FieldDescription:         {dst: &f.Description, maxRunes: limits.Description},
		md.FieldLocation:            {dst: &f.Location, maxRunes: limits.Location},
		md.FieldPostedBy:            {dst: &f.PostedBy, maxRunes: limits.PostedBy},
		md.FieldDatetime:            {dst: &f.Datetime, maxRunes: len("2006-01-02T15:04:05.000+00:00")},
		formFieldThumbnailURL:       {dst: &f.ThumbnailURL, maxRunes: limits.ThumbnailURL},
		md.FieldThumbnailImageDescr: {dst: &f.ThumbnailImageDescr, maxRunes: limits.ImageDescr},
	}
}

func processParts(r *multipart.Reader, ps ...partProcessor) *se.Err {
	for _, p := range ps {
		if err := p(r); err != nil {
			return err
		}
	}
	return nil
}

type partProcessor func(*multipart.Reader) *se.Err

// parsePinForm reads a pin submission. The honeypot field must come first.
func parsePinForm(r *multipart.Reader, trap string, limits config.FieldLimits) (*pinForm, *se.Err) {
	form := &pinForm{}
	if err := processParts(r, detectSpam(trap), parsePin(form, limits)); err != nil {
		return nil, err
	}
	return form, nil
}

// detectSpam returns a PartProcessor to detect naive bot attempts by checking whether the honeypot form field,
// which is designed to be invisible to human users, is set or not.
// NOTE It stumbles on more sophisticated and dedicated bot attempts.
func detectSpam(trap string) partProcessor {
	return func(r *multipart.Reader) *se.Err {
		clog := logging.WithFuncName()
		cerr := se.NewBadInput("error processing form data")
		// by convention bot trap form field is placed at the beginning
		part, err := r.NextPart()
		if part != nil {
			defer part.Close()
		}
		if err != nil {
			msg := "error reading next part from multiform reader"
			if err == io.EOF {
				msg = "spam trap not found"
			}
			clog.WithError(err).Error(msg)
			return cerr.WithCause(err)
		}
		if name := part.FormName(); name != trap {
			clog.Errorf("spam trap not found. Got unexpected form name %s", name)
			return cerr
		}
		if _, err := io.ReadAll(NewLimitReader(part, 0)); err != nil {
			if se.HasCode(err, se.ErrCodeOversized) {
				return se.NewSpam()
			}
			clog.WithError(err).Error("error reading value of spam trap")
			return cerr.WithCause(err)
		}
		return nil
	}
}

func parsePin(form *pinForm, limits config.FieldLimits) partProcessor {
	fields := form.textFields(limits)
	return func(r *multipart.Reader) *se.Err {
		for {
			part, err := r.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return se.NewBadInput("error reading form part").WithCause(err)
			}
			perr := parsePart(part, form, fields, limits)
			part.Close()
			if perr != nil {
				return perr
			}
		}
	}
}

func parsePart(part *multipart.Part, form *pinForm, fields map[string]textField, limits config.FieldLimits) *se.Err {
	name := part.FormName()
	if name == formFieldThumbnailFile {
		// an untouched file input still sends an empty part
		if part.FileName() == "" {
			return nil
		}
		data, err := io.ReadAll(NewLimitReader(part, limits.UploadBytes))
		if err != nil {
			if se.HasCode(err, se.ErrCodeOversized) {
				return se.NewOversized().WithMsg(fmt.Sprintf("the thumbnail is larger than %dMB, please compress it or try another image", limits.UploadBytes>>20))
			}
			return se.NewBadInput("failed to read the thumbnail").WithCause(err)
		}
		if len(data) > 0 {
			form.File = &upload{Filename: part.FileName(), Data: data}
		}
		return nil
	}
	f, ok := fields[name]
	if !ok {
		return nil
	}
	b, err := io.ReadAll(NewLimitReader(part, int64(f.maxRunes*maxBytesPerRune)))
	if err != nil {
		if se.HasCode(err, se.ErrCodeOversized) {
			return se.NewBadInput(fmt.Sprintf("got oversized data for form field %s", name))
		}
		return se.NewBadInput(fmt.Sprintf("failed to read value of form field %s", name)).WithCause(err)
	}
	*f.dst = strings.TrimSpace(string(b))
	return nil
}

// LimitReader dedicates to detecting oversized data
type LimitReader struct {
	R io.Reader // underlying reader
	n int64     // max bytes remaining
}

func NewLimitReader(r io.Reader, max int64) *LimitReader {
	// idea: try reading one more byte above given limit from given reader. If there is no more data left from r
	// then r shall return (0, io.EOF), otherwise it can return more bytes and potentially a non-nil error. We
	// take the risk of rejecting a legit request when the last read attempt returns non-io.EOF error.
	return &LimitReader{R: r, n: max + 1}
}

func (r *LimitReader) Read(p []byte) (n int, err error) {
	// tweak based on io.LimitReader.Read
	if int64(len(p)) > r.n {
		p = p[0:r.n]
	}
	n, err = r.R.Read(p)
	r.n -= int64(n)
	if r.n <= 0 {
		return 0, se.NewOversized()
	}
	return
}
