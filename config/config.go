// Package config loads pinboard settings from the environment, with .env files as a convenience for local
// runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strconv"
	"strings"
	"time"
	// the site timezone must resolve even on hosts without a zoneinfo database
	_ "time/tzdata"

	"github.com/go-redis/redis"
	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"github.com/segmentio/ksuid"
	"github.com/spf13/viper"

	"community.io/pinboard/common/logging"
	rt "community.io/pinboard/common/retry"
	cst "community.io/pinboard/constants"
	se "community.io/pinboard/errors"
	md "community.io/pinboard/models"
	st "community.io/pinboard/stores"
	"community.io/pinboard/stores/session"
)

// FieldLimits bounds user supplied pin fields, in characters, and uploads, in bytes
type FieldLimits struct {
	Title        int
	Description  int
	Location     int
	PostedBy     int
	ThumbnailURL int
	ImageDescr   int
	UploadBytes  int64
}

type RedisConfig struct {
	Host   string
	Port   string
	Passwd string
	DB     int
}

type Config struct {
	Env                string
	Verbose            bool
	HostDomain         string
	WebsiteTitle       string
	WebsiteDescription string
	Time               md.TimeConfig
	Dirs               st.Dirs
	CacheSize          int
	Limits             FieldLimits
	Redis              RedisConfig
	SlugLockTTL        time.Duration
	SlugLockWait       time.Duration
	ReaderAddr         string
	WriterAddr         string
	AdminPasswordHash  string
	SessionKey         string
	TrapName           string
	FeedCron           string
}

// LoadEnv reads .env style files into the process environment without overriding variables already set.
// Missing files are skipped. Nothing is read when PIN_ENV is test.
func LoadEnv(files ...string) *se.Err {
	v := viper.New()
	v.AutomaticEnv()
	if v.GetString(cst.EnvEnv) == "test" {
		return nil
	}
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return se.NewBadInput(fmt.Sprintf("error loading env file %s", f)).WithCause(err)
		}
	}
	return nil
}

// SetDefaults registers the default of every setting on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(cst.EnvVerbose, false)
	v.SetDefault(cst.EnvHostDomain, cst.DefaultHostDomain)
	v.SetDefault(cst.EnvWebsiteTitle, cst.DefaultWebsiteTitle)
	v.SetDefault(cst.EnvWebsiteDescription, cst.DefaultWebsiteDescription)
	v.SetDefault(cst.EnvTimezone, cst.DefaultTimezone)
	v.SetDefault(cst.EnvLocale, cst.DefaultLocale)
	v.SetDefault(cst.EnvAssumedDuration, cst.DefaultAssumedDuration.String())
	v.SetDefault(cst.EnvDataDir, cst.DefaultDataDir)
	v.SetDefault(cst.EnvCacheSize, cst.DefaultCacheSize)
	v.SetDefault(cst.EnvRedisPort, "6379")
	v.SetDefault(cst.EnvRedisDB, 0)
	v.SetDefault(cst.EnvSlugLockTTL, cst.DefaultSlugLockTTL)
	v.SetDefault(cst.EnvSlugLockWait, cst.DefaultSlugLockWait)
	v.SetDefault(cst.EnvMaxTitle, cst.DefaultMaxTitle)
	v.SetDefault(cst.EnvMaxDescription, cst.DefaultMaxDescription)
	v.SetDefault(cst.EnvMaxLocation, cst.DefaultMaxLocation)
	v.SetDefault(cst.EnvMaxPostedBy, cst.DefaultMaxPostedBy)
	v.SetDefault(cst.EnvMaxThumbnailURL, cst.DefaultMaxThumbnailURL)
	v.SetDefault(cst.EnvMaxUploadMB, cst.DefaultMaxUploadMB)
	v.SetDefault(cst.EnvReaderAddr, cst.DefaultReaderAddr)
	v.SetDefault(cst.EnvWriterAddr, cst.DefaultWriterAddr)
	v.SetDefault(cst.EnvTrapName, cst.DefaultTrapName)
	v.SetDefault(cst.EnvFeedCron, cst.DefaultFeedCron)
}

// Load reads every setting from the environment. Empty variables count as unset.
func Load(v *viper.Viper) (*Config, *se.Err) {
	SetDefaults(v)
	v.AutomaticEnv()

	assumed, err := parseAssumedDuration(v.GetString(cst.EnvAssumedDuration))
	if err != nil {
		return nil, err
	}
	tc, err := md.NewTimeConfig(v.GetString(cst.EnvTimezone), v.GetString(cst.EnvLocale), assumed)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Env:                v.GetString(cst.EnvEnv),
		Verbose:            v.GetBool(cst.EnvVerbose),
		HostDomain:         v.GetString(cst.EnvHostDomain),
		WebsiteTitle:       v.GetString(cst.EnvWebsiteTitle),
		WebsiteDescription: v.GetString(cst.EnvWebsiteDescription),
		Time:               tc,
		Dirs:               st.DirsUnder(v.GetString(cst.EnvDataDir), cst.FeedsDirName),
		CacheSize:          v.GetInt(cst.EnvCacheSize),
		Limits: FieldLimits{
			Title:        v.GetInt(cst.EnvMaxTitle),
			Description:  v.GetInt(cst.EnvMaxDescription),
			Location:     v.GetInt(cst.EnvMaxLocation),
			PostedBy:     v.GetInt(cst.EnvMaxPostedBy),
			ThumbnailURL: v.GetInt(cst.EnvMaxThumbnailURL),
			ImageDescr:   cst.DefaultMaxImageDescr,
			UploadBytes:  v.GetInt64(cst.EnvMaxUploadMB) << 20,
		},
		Redis: RedisConfig{
			Host:   v.GetString(cst.EnvRedisHost),
			Port:   v.GetString(cst.EnvRedisPort),
			Passwd: v.GetString(cst.EnvRedisPasswd),
			DB:     v.GetInt(cst.EnvRedisDB),
		},
		SlugLockTTL:       v.GetDuration(cst.EnvSlugLockTTL),
		SlugLockWait:      v.GetDuration(cst.EnvSlugLockWait),
		ReaderAddr:        v.GetString(cst.EnvReaderAddr),
		WriterAddr:        v.GetString(cst.EnvWriterAddr),
		AdminPasswordHash: v.GetString(cst.EnvAdminPasswordHash),
		SessionKey:        v.GetString(cst.EnvSessionKey),
		TrapName:          v.GetString(cst.EnvTrapName),
		FeedCron:          v.GetString(cst.EnvFeedCron),
	}
	if cfg.CacheSize <= 0 {
		return nil, se.NewBadInput(fmt.Sprintf("%s must be positive, got %d", cst.EnvCacheSize, cfg.CacheSize))
	}
	if cfg.Limits.UploadBytes <= 0 {
		return nil, se.NewBadInput(fmt.Sprintf("%s must be positive", cst.EnvMaxUploadMB))
	}
	return cfg, nil
}

// parseAssumedDuration accepts a Go duration such as 90m, or a bare number of hours
func parseAssumedDuration(s string) (time.Duration, *se.Err) {
	s = strings.TrimSpace(s)
	if hours, err := strconv.ParseFloat(s, 64); err == nil {
		ns := hours * float64(time.Hour)
		// ParseFloat also takes NaN and Inf
		if math.IsNaN(ns) || math.IsInf(ns, 0) || math.Abs(ns) >= math.MaxInt64 {
			return 0, se.NewBadInput(fmt.Sprintf("invalid %s %q: not a finite number of hours", cst.EnvAssumedDuration, s))
		}
		return time.Duration(ns), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, se.NewBadInput(fmt.Sprintf("invalid %s %q", cst.EnvAssumedDuration, s)).WithCause(err)
	}
	return d, nil
}

// NewFileStore makes sure the data tree exists and opens a file store over it
func (c *Config) NewFileStore() (*st.LocalFileStore, *se.Err) {
	files := st.NewLocalFileStore(c.Dirs)
	if err := files.EnsureDirectories(); err != nil {
		return nil, err
	}
	return files, nil
}

// NewPinStore opens a pin store over the data tree, creating it as needed
func (c *Config) NewPinStore() (*st.FilePinStore, *se.Err) {
	files, err := c.NewFileStore()
	if err != nil {
		return nil, err
	}
	return c.PinStoreOver(files), nil
}

// PinStoreOver opens a pin store over files, e.g. one shared with other components
func (c *Config) PinStoreOver(files st.FileStore) *st.FilePinStore {
	return st.NewFilePinStore(files, c.Dirs, c.Time, st.WithCacheSize(c.CacheSize))
}

// FeedsDir is where generated calendar feeds live
func (c *Config) FeedsDir() string {
	if len(c.Dirs.Extra) == 0 {
		return c.Dirs.Root
	}
	return c.Dirs.Extra[0]
}

// Shared is the state writers coordinate through
type Shared struct {
	Locker   st.SlugLocker
	Sessions sessions.Store
	// DB is nil unless Redis is configured
	DB *redis.Client
}

func (s *Shared) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// NewShared returns Redis backed slug locks and admin sessions when REDIS_HOST is set, otherwise ones local to
// this process
func (c *Config) NewShared() (*Shared, *se.Err) {
	if c.Redis.Host == "" {
		return &Shared{Locker: st.NewLocalLocker(), Sessions: NewCookieStore(c.SessionKey)}, nil
	}
	db, err := c.NewRedisClient()
	if err != nil {
		return nil, err
	}
	return &Shared{
		Locker:   st.NewRedisLocker(db, c.SlugLockTTL, c.SlugLockWait),
		Sessions: session.NewRedistore(db, cst.SessionMaxAge),
		DB:       db,
	}, nil
}

// NewCookieStore keeps admin sessions in signed cookies. Without a key sessions do not survive a restart
func NewCookieStore(key string) *sessions.CookieStore {
	secret := []byte(key)
	if key == "" {
		logging.WithFuncName().Warnf("%s not set, admin sessions will not survive a restart", cst.EnvSessionKey)
		secret = append(ksuid.New().Bytes(), ksuid.New().Bytes()...)
	}
	store := sessions.NewCookieStore(secret)
	store.Options.HttpOnly = true
	store.Options.MaxAge = int(cst.SessionMaxAge.Seconds())
	return store
}

// NewRedisClient connects to Redis, waiting a little for it to come up
func (c *Config) NewRedisClient() (*redis.Client, *se.Err) {
	retryOpts := []rt.RetryOption{
		rt.WithTimeout(3 * time.Second),
		rt.WithBaseDelay(100 * time.Millisecond),
		rt.WithExp(2.0),
		rt.WithRetryOn(rt.IsDepOffline),
	}
	db := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port),
		Password:   c.Redis.Passwd,
		DB:         c.Redis.DB,
		MaxRetries: 3,
	})
	// verify the client is up correctly
	pingFn := func() error {
		_, err := db.Ping().Result()
		return err
	}
	if err := rt.Retry(pingFn, retryOpts...); err != nil {
		logging.WithFuncName().WithError(err).Error("error connecting to Redis")
		db.Close()
		return nil, se.NewDependencyFailure("failed initializing Redis").WithCause(err)
	}
	return db, nil
}
