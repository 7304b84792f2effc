package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	hr "github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"community.io/pinboard/common/logging"
	mw "community.io/pinboard/common/middleware"
	"community.io/pinboard/config"
	cst "community.io/pinboard/constants"
	se "community.io/pinboard/errors"
	md "community.io/pinboard/models"
	st "community.io/pinboard/stores"
)

// room for the text fields and multipart framing on top of the upload itself
const formOverheadBytes = 1 << 20

// writer handles write traffic of pin application: creating and editing pins plus the admin session
// needed for editing
type writer struct {
	R        *hr.Router
	Cfg      *config.Config
	Pins     st.PinStore
	Locker   st.SlugLocker
	Sessions sessions.Store
}

func (wrt *writer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wrt.R.ServeHTTP(w, r)
}

func serve() error {
	s, err := setup()
	if err != nil {
		return err
	}
	return s.ListenAndServe()
}

func setup() (*http.Server, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(viper.New())
	if err != nil {
		return nil, err
	}
	logging.SetupLog("pin-writer", cfg.Verbose)
	pins, err := cfg.NewPinStore()
	if err != nil {
		return nil, err
	}
	shared, err := cfg.NewShared()
	if err != nil {
		return nil, err
	}
	wrt := newWriter(cfg, pins, shared)
	return &http.Server{
		Addr:           cfg.WriterAddr,
		Handler:        wrt,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 14,
	}, nil
}

func newWriter(cfg *config.Config, pins st.PinStore, shared *config.Shared) *writer {
	wrt := &writer{Cfg: cfg, Pins: pins, Locker: shared.Locker, Sessions: shared.Sessions}
	wrt.SetupRoutes()
	return wrt
}

func (wrt *writer) SetupRoutes() {
	r := hr.New()
	common := []mw.Middleware{mw.PanicRecoverer(), mw.RequestLogger(), mw.RequestIDer()}
	admin := append([]mw.Middleware{wrt.RequireAdmin()}, common...)
	r.POST("/pin", mw.Chain(wrt.HandleTaskCreatePin, common...))
	r.POST("/pin/:slug", mw.Chain(wrt.HandleTaskEditPin, admin...))
	r.GET("/edit", mw.Chain(wrt.HandleTaskGetEditForms, admin...))
	r.POST("/login", mw.Chain(wrt.HandleAuthLogin, common...))
	r.POST("/logout", mw.Chain(wrt.HandleAuthLogout, common...))
	r.GET("/health", func(w http.ResponseWriter, _ *http.Request, _ hr.Params) {
		resp(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	wrt.R = r
}

// savedPin tells the client where a pin landed. Slug may differ from the one derived from the title
type savedPin struct {
	Slug      string `json:"slug"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type errView struct {
	Err    string            `json:"error"`
	Code   se.ErrCode        `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (wrt *writer) HandleTaskCreatePin(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	wrt.savePin(w, r, "", false)
}

func (wrt *writer) HandleTaskEditPin(w http.ResponseWriter, r *http.Request, p hr.Params) {
	slug := p.ByName("slug")
	if !md.ValidSlug(slug) {
		respErr(w, se.NewBadInput("invalid slug"), nil)
		return
	}
	wrt.savePin(w, r, slug, true)
}

// savePin creates a new pin under a slug derived from its title, or replaces the pin at slug when
// overwrite is set
func (wrt *writer) savePin(w http.ResponseWriter, r *http.Request, slug string, overwrite bool) {
	clog := logging.ForRequest(mw.RequestID(r.Context()))
	limits := wrt.Cfg.Limits
	r.Body = http.MaxBytesReader(w, r.Body, limits.UploadBytes+formOverheadBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		clog.WithError(err).Error("error getting multiform reader")
		respErr(w, se.NewBadInput("error reading form data").WithCause(err), nil)
		return
	}
	form, perr := parsePinForm(reader, wrt.Cfg.TrapName, limits)
	if perr != nil {
		if perr.Code == se.ErrCodeSpam {
			clog.WithField("remoteAddr", r.RemoteAddr).Warning("spam attempt detected. Rejecting request")
		}
		clog.WithError(perr).Error("error parsing pin data from html form")
		respErr(w, perr, nil)
		return
	}
	if verr := form.Validate(limits); verr != nil {
		respErr(w, se.NewBadInput("the submitted pin is invalid"), fieldErrors(verr))
		return
	}
	pin, perr := md.NewPin(form.params(), wrt.Cfg.Time.Location)
	if perr != nil {
		respErr(w, se.NewBadInput("the submitted pin is invalid").WithCause(perr),
			map[string]string{md.FieldDatetime: "the date and time could not be understood"})
		return
	}
	if !overwrite {
		slug = md.Slugify(form.Title)
	}
	unlock, lerr := wrt.Locker.Lock(slug)
	if lerr != nil {
		respErr(w, lerr, nil)
		return
	}
	defer unlock()

	var existing *md.Pin
	if overwrite {
		if existing, perr = wrt.Pins.Get(slug); perr != nil {
			respErr(w, perr, nil)
			return
		}
	}
	switch {
	case form.ThumbnailURL != "":
		pin.Thumbnail = form.thumbnail()
	case form.File != nil:
		name, serr := wrt.Pins.SaveUpload(form.uploadName(slug), form.File.Data)
		if serr != nil {
			respErr(w, serr, nil)
			return
		}
		pin.Thumbnail = name
	case existing != nil:
		pin.Thumbnail = existing.Thumbnail
		if pin.ThumbnailImageDescr == "" {
			pin.ThumbnailImageDescr = existing.ThumbnailImageDescr
		}
	}
	path, serr := wrt.Pins.Save(pin, slug, overwrite)
	if serr != nil {
		clog.WithError(serr).Error("error saving pin")
		respErr(w, serr, nil)
		return
	}
	saved := st.SlugOf(path)
	clog.WithField("slug", saved).WithField("overwrite", overwrite).Info("pin saved")
	status := http.StatusCreated
	if overwrite {
		status = http.StatusOK
	}
	resp(w, status, savedPin{Slug: saved, URL: "/pins/" + saved, Thumbnail: pin.ResolvedThumbnailPath(cst.PublicUploadsPath)})
}

// HandleTaskGetEditForms vends the current values of every upcoming pin, keyed by slug, for prefilling
// edit forms
func (wrt *writer) HandleTaskGetEditForms(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	type view struct {
		Slugs []string                     `json:"slugs"`
		Forms map[string]map[string]string `json:"forms"`
	}
	sp, err := wrt.Pins.ListSlugs(st.FilterUpcoming)
	if err != nil {
		logging.WithFuncName().WithError(err).Error("error listing upcoming pins")
		respErr(w, err, nil)
		return
	}
	v := view{Slugs: make([]string, 0, len(sp)), Forms: make(map[string]map[string]string, len(sp))}
	for _, e := range sp {
		values := map[string]string{}
		for _, name := range md.FieldNames() {
			values[name], _ = e.Pin.Field(name)
		}
		// datetime-local inputs want the site's wall clock
		values[md.FieldDatetime] = e.Pin.LocalDatetimeValue(wrt.Cfg.Time)
		values[formFieldThumbnailURL] = e.Pin.ResolvedThumbnailPath(cst.PublicUploadsPath)
		v.Slugs = append(v.Slugs, e.Slug)
		v.Forms[e.Slug] = values
	}
	resp(w, http.StatusOK, v)
}

func resp(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("error encoding response")
	}
}

func respErr(w http.ResponseWriter, err *se.Err, fields map[string]string) {
	resp(w, err.StatusCode(), errView{Err: err.Error(), Code: err.Code, Fields: fields})
}
