// Package feeder vends a long-running worker to regenerate the calendar feeds served by readers.
package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"community.io/pinboard/common/logging"
	"community.io/pinboard/config"
	se "community.io/pinboard/errors"
	"community.io/pinboard/feed"
	st "community.io/pinboard/stores"
)

func main() {
	if err := runFeeder(); err != nil {
		log.WithError(err).Fatal("error running feeder")
	}
}

type feeder struct {
	Gen   *feed.Generator
	Files st.FileStore
	Dir   string
	Kinds []feed.Kind
}

func runFeeder() error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(viper.New())
	if err != nil {
		return err
	}
	logging.SetupLog("PinFeeder", cfg.Verbose)
	clog := logging.WithFuncName()
	files, err := cfg.NewFileStore()
	if err != nil {
		clog.WithError(err).Error("error setting up FileStore")
		return err
	}
	defer files.Close()
	pins := cfg.PinStoreOver(files)
	defer pins.Close()
	f := &feeder{
		Gen:   feed.NewGenerator(pins, cfg.Time, cfg.HostDomain, cfg.WebsiteTitle),
		Files: files,
		Dir:   cfg.FeedsDir(),
		Kinds: feed.Kinds,
	}
	if err := f.Run(cfg.FeedCron, cfg.Time.Location); err != nil {
		return err
	}
	return nil
}

// Run regenerates feeds right away and then on every tick of the cron schedule spec, until the process is
// asked to stop
func (f *feeder) Run(spec string, loc *time.Location) *se.Err {
	clog := logging.WithFuncName().WithField("schedule", spec)
	c, err := f.schedule(spec, loc)
	if err != nil {
		clog.WithError(err).Error("error scheduling feed regeneration")
		return err
	}
	if err := f.Regenerate(); err != nil {
		clog.WithError(err).Error("error generating initial feeds")
	}
	c.Start()
	// ensure the worker can be responsive to system signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
	clog.Info("got termination signal from kernel. Stopping")
	// let a regeneration in flight finish
	<-c.Stop().Done()
	return nil
}

func (f *feeder) schedule(spec string, loc *time.Location) (*cron.Cron, *se.Err) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() {
		if err := f.Regenerate(); err != nil {
			logging.WithFuncName().WithError(err).Error("error regenerating feeds")
		}
	}); err != nil {
		return nil, se.NewBadInput("invalid feed schedule " + spec).WithCause(err)
	}
	return c, nil
}

// Regenerate renders every feed and replaces the stored copies. A failing feed does not keep the others
// from being refreshed; the last failure is returned.
func (f *feeder) Regenerate() *se.Err {
	clog := logging.WithFuncName()
	var last *se.Err
	for _, k := range f.Kinds {
		data, err := f.Gen.Render(k)
		if err != nil {
			clog.WithError(err).WithField("feed", k.Name).Error("error rendering feed")
			last = err
			continue
		}
		path, err := f.Files.WriteUnique(filepath.Join(f.Dir, k.Filename()), data, true)
		if err != nil {
			clog.WithError(err).WithField("feed", k.Name).Error("error writing feed")
			last = err
			continue
		}
		clog.WithField("path", path).WithField("bytes", len(data)).Debug("feed written")
	}
	return last
}
