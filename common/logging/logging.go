// Package logging sets up structured logs shared by every pinboard binary.
package logging

import (
	"io"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"

	cst "community.io/pinboard/constants"
)

// serviceFormatter stamps each entry with unix time in milliseconds and the name of the emitting binary
type serviceFormatter struct {
	service string
	next    log.Formatter
}

// Format leaves e untouched; fields are added on a copy
func (f *serviceFormatter) Format(e *log.Entry) ([]byte, error) {
	data := make(log.Fields, len(e.Data)+2)
	for k, v := range e.Data {
		data[k] = v
	}
	data["epochTimeMillis"] = e.Time.UnixNano() / int64(time.Millisecond)
	data["service"] = f.service
	stamped := *e
	stamped.Data = data
	return f.next.Format(&stamped)
}

// SetupLog points the standard logger at stdout as JSON. verbose turns on debug entries
func SetupLog(name string, verbose bool) {
	SetupLogTo(os.Stdout, name, verbose)
}

func SetupLogTo(w io.Writer, name string, verbose bool) {
	log.SetOutput(w)
	log.SetFormatter(&serviceFormatter{
		service: name,
		next:    &log.JSONFormatter{DisableTimestamp: true},
	})
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}

func callerName(skip int) string {
	pc, _, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return fr.Function
}

// WithFuncName returns an entry marked with the name of the function calling it
func WithFuncName() *log.Entry {
	return log.WithField(cst.LogFieldFuncName, callerName(1))
}

// ForRequest is WithFuncName plus the id of the request being served
func ForRequest(requestID string) *log.Entry {
	return log.WithFields(log.Fields{
		cst.LogFieldFuncName:  callerName(1),
		cst.LogFieldRequestID: requestID,
	})
}
