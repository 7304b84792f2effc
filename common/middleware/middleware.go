// Package middleware vends httprouter handle decorators shared by the pinboard servers.
package middleware

import (
	"context"
	"net/http"
	"time"

	hr "github.com/julienschmidt/httprouter"
	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"

	cst "community.io/pinboard/constants"
)

// HeaderRequestID carries the request id back to clients
const HeaderRequestID = "X-Request-ID"

type ctxKey int

const ctxKeyRequestID ctxKey = iota

type Middleware func(hr.Handle) hr.Handle

// Chain composites given handler and middlewares. The last middleware runs first
func Chain(h hr.Handle, ms ...Middleware) hr.Handle {
	for _, m := range ms {
		h = m(h)
	}
	return h
}

// PanicRecoverer recovers from panic of underlying handlers
func PanicRecoverer() Middleware {
	return func(h hr.Handle) hr.Handle {
		return func(w http.ResponseWriter, r *http.Request, p hr.Params) {
			defer func() {
				if reason := recover(); reason != nil {
					log.WithField("panicReason", reason).WithField(cst.LogFieldRequestID, RequestID(r.Context())).
						Error("got panic from underlying handler")
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			h(w, r, p)
		}
	}
}

// RequestIDer tags each request with a fresh id, reusing one supplied by a proxy in front
func RequestIDer() Middleware {
	return func(h hr.Handle) hr.Handle {
		return func(w http.ResponseWriter, r *http.Request, p hr.Params) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = ksuid.New().String()
			}
			w.Header().Set(HeaderRequestID, id)
			h(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)), p)
		}
	}
}

// RequestID returns the id assigned by RequestIDer, or "" outside of it
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// RequestLogger logs one line per request once the handler is done
func RequestLogger() Middleware {
	return func(h hr.Handle) hr.Handle {
		return func(w http.ResponseWriter, r *http.Request, p hr.Params) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			h(rec, r, p)
			log.WithFields(log.Fields{
				cst.LogFieldRequestID: RequestID(r.Context()),
				"method":              r.Method,
				"path":                r.URL.Path,
				"status":              rec.status,
				"latencyMillis":       time.Since(start).Milliseconds(),
				"remoteAddr":          r.RemoteAddr,
			}).Info("served request")
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
