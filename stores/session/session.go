// Package session vends a Redis backed github.com/gorilla/sessions.Store, letting any number of writers share
// admin sessions. Cookies carry only an opaque session id; values stay server side.
package session

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis"
	"github.com/gorilla/sessions"
	"github.com/segmentio/ksuid"

	"community.io/pinboard/common/logging"
	se "community.io/pinboard/errors"
)

// Redistore is a github.com/gorilla/sessions.Store
type Redistore struct {
	DB      *redis.Client
	Options *sessions.Options
}

func NewRedistore(db *redis.Client, maxAge time.Duration) *Redistore {
	return &Redistore{
		DB: db,
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   int(maxAge.Seconds()),
			HttpOnly: true,
		},
	}
}

func key(id string) string {
	return fmt.Sprintf("session.%s", id)
}

// Get returns the session cached for this request, loading it on first use
func (s *Redistore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request's cookie. It never returns a nil session: a missing, unknown or
// unreadable session yields a fresh one, alongside the error if there was one.
func (s *Redistore) New(r *http.Request, name string) (*sessions.Session, error) {
	sess := sessions.NewSession(s, name)
	opts := *s.Options
	sess.Options = &opts
	sess.IsNew = true
	c, err := r.Cookie(name)
	if err != nil {
		return sess, nil
	}
	if _, err := ksuid.Parse(c.Value); err != nil {
		return sess, nil
	}
	b, err := s.DB.Get(key(c.Value)).Bytes()
	if err == redis.Nil {
		return sess, nil
	}
	if err != nil {
		logging.WithFuncName().WithError(err).Error("error loading session from Redis")
		return sess, se.NewDependencyFailure("error loading session").WithCause(err)
	}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&sess.Values); err != nil {
		return sess, se.NewServiceFailure("error decoding session").WithCause(err)
	}
	sess.ID = c.Value
	sess.IsNew = false
	return sess, nil
}

// Save persists the session and sets its cookie. A negative MaxAge deletes the session instead
func (s *Redistore) Save(r *http.Request, w http.ResponseWriter, sess *sessions.Session) error {
	if sess.Options.MaxAge < 0 {
		if sess.ID != "" {
			if err := s.DB.Del(key(sess.ID)).Err(); err != nil {
				return se.NewDependencyFailure("error deleting session").WithCause(err)
			}
		}
		http.SetCookie(w, sessions.NewCookie(sess.Name(), "", sess.Options))
		return nil
	}
	if sess.ID == "" {
		sess.ID = ksuid.New().String()
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sess.Values); err != nil {
		return se.NewServiceFailure("error encoding session").WithCause(err)
	}
	ttl := time.Duration(sess.Options.MaxAge) * time.Second
	if err := s.DB.Set(key(sess.ID), buf.Bytes(), ttl).Err(); err != nil {
		return se.NewDependencyFailure("error saving session").WithCause(err)
	}
	http.SetCookie(w, sessions.NewCookie(sess.Name(), sess.ID, sess.Options))
	return nil
}
