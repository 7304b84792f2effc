// Package constants vends constants used in various components of the pinboard, e.g., env var names
package constants

import "time"

const (
	// -------------- env vars --------------
	// common
	EnvVerbose = "PIN_VERBOSE"
	EnvEnv     = "PIN_ENV"
	// site
	EnvHostDomain         = "HOST_DOMAIN"
	EnvWebsiteTitle       = "WEBSITE_TITLE"
	EnvWebsiteDescription = "WEBSITE_DESCRIPTION"
	EnvTimezone           = "TZ"
	EnvLocale             = "WEBSITE_LOCALE"
	EnvAssumedDuration    = "PIN_ASSUMED_DURATION"
	// stores
	EnvDataDir      = "DATA_DIR"
	EnvCacheSize    = "PIN_CACHE_SIZE"
	EnvRedisHost    = "REDIS_HOST"
	EnvRedisPort    = "REDIS_PORT"
	EnvRedisPasswd  = "REDIS_PASSWD"
	EnvRedisDB      = "REDIS_DB"
	EnvSlugLockTTL  = "PIN_SLUG_LOCK_TTL"
	EnvSlugLockWait = "PIN_SLUG_LOCK_WAIT"
	// pin field limits
	EnvMaxTitle        = "MAX_TITLE"
	EnvMaxDescription  = "MAX_DESCRIPTION"
	EnvMaxLocation     = "MAX_LOCATION"
	EnvMaxPostedBy     = "MAX_POSTEDBY"
	EnvMaxThumbnailURL = "MAX_THUMBNAILURL"
	EnvMaxUploadMB     = "MAX_UPLOAD_MB"
	// servers
	EnvReaderAddr        = "PIN_READER_ADDR"
	EnvWriterAddr        = "PIN_WRITER_ADDR"
	EnvAdminPasswordHash = "PIN_ADMIN_PASSWORD_HASH"
	EnvSessionKey        = "PIN_SESSION_KEY"
	EnvTrapName          = "PIN_TRAP_NAME"
	// feeder
	EnvFeedCron = "PIN_FEED_CRON"

	// -------------- defaults --------------
	DefaultHostDomain         = "localhost:3000"
	DefaultDataDir            = "data/"
	DefaultWebsiteTitle       = "Community Pinboard!"
	DefaultWebsiteDescription = "A public event pinboard for your local community!"
	DefaultTimezone           = "Europe/Brussels"
	DefaultLocale             = "nl-BE"
	DefaultAssumedDuration    = 2 * time.Hour
	DefaultMaxTitle           = 80
	DefaultMaxDescription     = 400
	DefaultMaxLocation        = 150
	DefaultMaxPostedBy        = 50
	DefaultMaxThumbnailURL    = 50
	DefaultMaxImageDescr      = 300
	DefaultMaxUploadMB        = 20
	DefaultCacheSize          = 512
	DefaultReaderAddr         = ":3000"
	DefaultWriterAddr         = ":3001"
	DefaultTrapName           = "website"
	DefaultFeedCron           = "*/15 * * * *"
	DefaultSlugLockTTL        = 10 * time.Second
	DefaultSlugLockWait       = 3 * time.Second

	// -------------- layout --------------
	PinsDirName       = "pins"
	UploadsDirName    = "uploads"
	FeedsDirName      = "feeds"
	PinFileExt        = ".json"
	PublicUploadsPath = "/uploads/"
	SessionName       = "pinboard"
	SessionMaxAge     = 12 * time.Hour

	// -------------- log fields --------------
	LogFieldFuncName  = "funcName"
	LogFieldRequestID = "requestID"
)
