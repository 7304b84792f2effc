package stores

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis"
	"github.com/segmentio/ksuid"

	"community.io/pinboard/common/logging"
	"community.io/pinboard/common/retry"
	cst "community.io/pinboard/constants"
	se "community.io/pinboard/errors"
)

// Unlock releases a held slug lock. Calling it more than once is harmless
type Unlock func()

// SlugLocker serializes writers working on the same slug
type SlugLocker interface {
	Lock(slug string) (Unlock, *se.Err)
}

// LocalLocker serializes writers within one process
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*slugLock
}

type slugLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*slugLock)}
}

func (l *LocalLocker) Lock(slug string) (Unlock, *se.Err) {
	l.mu.Lock()
	sl, ok := l.locks[slug]
	if !ok {
		sl = &slugLock{}
		l.locks[slug] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			sl.mu.Unlock()
			l.mu.Lock()
			defer l.mu.Unlock()
			sl.refs--
			if sl.refs == 0 {
				delete(l.locks, slug)
			}
		})
	}, nil
}

// held reports the number of slugs with a holder or waiter
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

const keyTmplSlugLock = `lock.slug.%s`

var (
	errLockHeld = errors.New("slug lock held by another writer")
	// delete the key only when it still carries our token, so an expired and re-acquired lock is left alone
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)
)

// RedisLocker serializes writers across processes sharing one data directory
type RedisLocker struct {
	DB *redis.Client
	// TTL bounds how long a crashed holder can keep a slug locked
	TTL time.Duration
	// Wait bounds how long Lock keeps trying
	Wait time.Duration
}

func NewRedisLocker(db *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{DB: db, TTL: ttl, Wait: wait}
}

func (l *RedisLocker) Lock(slug string) (Unlock, *se.Err) {
	key := fmt.Sprintf(keyTmplSlugLock, slug)
	clog := logging.WithFuncName().WithField("key", key)
	token := ksuid.New().String()
	wait := l.Wait
	if wait <= 0 {
		wait = cst.DefaultSlugLockWait
	}
	var lastErr error
	err := retry.Retry(func() error {
		ok, err := l.DB.SetNX(key, token, l.TTL).Result()
		switch {
		case err != nil:
			lastErr = err
		case !ok:
			lastErr = errLockHeld
		default:
			lastErr = nil
		}
		return lastErr
	},
		retry.WithTimeout(wait),
		retry.WithBaseDelay(20*time.Millisecond),
		retry.WithExp(1.5),
		retry.WithMaxBackoff(250*time.Millisecond),
		retry.WithJitter(0.2),
		retry.WithRetryOn(func(err error) bool { return err == errLockHeld || retry.IsDepOffline(err) }),
	)
	if err != nil {
		if lastErr == errLockHeld {
			clog.Warn("slug still locked after waiting")
			return nil, se.NewExisted(fmt.Sprintf("pin %s is being saved by someone else, try again", slug))
		}
		clog.WithError(err).Error("error acquiring slug lock from Redis")
		return nil, se.NewDependencyFailure("error acquiring slug lock").WithCause(err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := releaseScript.Run(l.DB, []string{key}, token).Err(); err != nil {
				clog.WithError(err).Error("error releasing slug lock, it expires on its own")
			}
		})
	}, nil
}
