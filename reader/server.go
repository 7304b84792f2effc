package main

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"

	"community.io/pinboard/common/logging"
	"community.io/pinboard/config"
	cst "community.io/pinboard/constants"
	se "community.io/pinboard/errors"
	"community.io/pinboard/feed"
	md "community.io/pinboard/models"
	st "community.io/pinboard/stores"
)

// reader handles read traffic of pin application: pin listings, pin details, calendar feeds and uploaded
// thumbnails. Readers hold no state beyond the data tree so any number of them can serve side by side
type reader struct {
	Router *gin.Engine
	Cfg    *config.Config
	Files  st.FileStore
	Pins   st.PinStore
	Feeds  *feed.Generator
	Now    func() md.TimeValue
}

func serve() error {
	r, err := setup()
	if err != nil {
		return err
	}
	s := &http.Server{
		Addr:           r.Cfg.ReaderAddr,
		Handler:        r.Router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 14,
	}
	return s.ListenAndServe()
}

func setup() (*reader, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(viper.New())
	if err != nil {
		return nil, err
	}
	logging.SetupLog("pin-reader", cfg.Verbose)
	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	files, err := cfg.NewFileStore()
	if err != nil {
		return nil, err
	}
	return newReader(cfg, files, cfg.PinStoreOver(files)), nil
}

func newReader(cfg *config.Config, files st.FileStore, pins st.PinStore) *reader {
	r := &reader{
		Cfg:   cfg,
		Files: files,
		Pins:  pins,
		Feeds: feed.NewGenerator(pins, cfg.Time, cfg.HostDomain, cfg.WebsiteTitle),
		Now:   md.Now,
	}
	r.SetupRoutes()
	return r
}

func (r *reader) SetupRoutes() {
	rt := gin.New()
	rt.Use(requestIDer(), requestLogger(), panicRecoverer())
	rt.NoRoute(notFound)

	rt.GET("/", r.HandleTaskListUpcomingPins)
	rt.GET("/archive", r.HandleTaskListArchivedPins)
	rt.GET("/pins/:slug", r.HandleTaskGetPin)
	rt.GET("/uploads/:file", r.HandleTaskGetUpload)
	for _, k := range feed.Kinds {
		rt.GET("/"+k.Filename(), r.HandleTaskGetFeed(k))
	}
	rt.GET("/about", r.HandleTaskGetAbout)
	rt.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.Router = rt
}

type listView struct {
	Title string       `json:"title"`
	Pins  []md.PinView `json:"pins"`
}

func (r *reader) listPins(c *gin.Context, f st.Filter, latestFirst bool, title string) {
	sp, err := r.Pins.ListSlugs(f)
	if err != nil {
		logging.ForRequest(c.GetString(cst.LogFieldRequestID)).WithError(err).Error("error listing pins")
		respErr(c, err)
		return
	}
	now := r.Now()
	v := listView{Title: title, Pins: make([]md.PinView, 0, len(sp))}
	for _, e := range sp.ByDatetime(latestFirst) {
		v.Pins = append(v.Pins, md.NewPinView(e.Slug, e.Pin, r.Cfg.Time, cst.PublicUploadsPath, now))
	}
	c.JSON(http.StatusOK, v)
}

// HandleTaskListUpcomingPins lists pins that have not ended yet, soonest first
func (r *reader) HandleTaskListUpcomingPins(c *gin.Context) {
	r.listPins(c, st.FilterUpcoming, false, r.Cfg.WebsiteTitle)
}

// HandleTaskListArchivedPins lists pins that have ended, most recent first
func (r *reader) HandleTaskListArchivedPins(c *gin.Context) {
	r.listPins(c, st.FilterElapsed, true, r.Cfg.WebsiteTitle+" - archive")
}

func (r *reader) HandleTaskGetPin(c *gin.Context) {
	slug := c.Param("slug")
	if !md.ValidSlug(slug) {
		respErr(c, se.NewBadInput("invalid slug"))
		return
	}
	p, err := r.Pins.Get(slug)
	if err != nil {
		if err.Code != se.ErrCodeNotFound {
			logging.ForRequest(c.GetString(cst.LogFieldRequestID)).WithError(err).WithField("slug", slug).
				Error("error getting pin")
		}
		respErr(c, err)
		return
	}
	c.JSON(http.StatusOK, md.NewPinView(slug, p, r.Cfg.Time, cst.PublicUploadsPath, r.Now()))
}

// validUploadName accepts plain file names only, so requests cannot reach outside the uploads directory
func validUploadName(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".") && filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}

func (r *reader) HandleTaskGetUpload(c *gin.Context) {
	name := c.Param("file")
	if !validUploadName(name) {
		notFound(c)
		return
	}
	r.serveFile(c, r.Pins.UploadPath(name), name)
}

// HandleTaskGetFeed serves the feed the feeder last generated, rendering one on the spot when there is none
// yet. Feeds split by elapsed state are always rendered on the spot: a stored copy may still list a pin that
// ended since the last regeneration.
func (r *reader) HandleTaskGetFeed(k feed.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := filepath.Join(r.Cfg.FeedsDir(), k.Filename())
		if k.TimeSensitive() {
			r.renderFeed(c, k)
			return
		}
		if _, err := r.Files.Stat(path); err == nil {
			c.Header("Content-Type", "text/calendar; charset=utf-8")
			r.serveFile(c, path, k.Filename())
			return
		} else if err.Code != se.ErrCodeNotFound {
			respErr(c, err)
			return
		}
		r.renderFeed(c, k)
	}
}

func (r *reader) renderFeed(c *gin.Context, k feed.Kind) {
	data, err := r.Feeds.Render(k)
	if err != nil {
		respErr(c, err)
		return
	}
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", data)
}

func (r *reader) serveFile(c *gin.Context, path, name string) {
	clog := logging.WithFuncName().WithField("path", path)
	info, err := r.Files.Stat(path)
	if err != nil {
		if err.Code != se.ErrCodeNotFound {
			clog.WithError(err).Error("error inspecting file")
		}
		respErr(c, err)
		return
	}
	if !info.Mode().IsRegular() {
		notFound(c)
		return
	}
	f, err := r.Files.Open(path)
	if err != nil {
		clog.WithError(err).Error("error opening file")
		respErr(c, err)
		return
	}
	defer f.Close()
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), f)
}

func (r *reader) HandleTaskGetAbout(c *gin.Context) {
	site := feed.SiteURL(r.Cfg.HostDomain)
	feeds := map[string]string{}
	for _, k := range feed.Kinds {
		feeds[k.Name] = site + "/" + k.Filename()
	}
	c.JSON(http.StatusOK, gin.H{
		"title":       r.Cfg.WebsiteTitle,
		"description": r.Cfg.WebsiteDescription,
		"site":        site,
		"timezone":    r.Cfg.Time.Location.String(),
		"feeds":       feeds,
	})
}
