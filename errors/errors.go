// Package errors vends the error type shared by the pinboard's stores and servers.
package errors

import (
	"errors"
	"net/http"
	"strings"
)

type ErrCode string

const (
	ErrCodeNotImplemented    ErrCode = "NotImplemented"
	ErrCodeNotFound          ErrCode = "NotFound"
	ErrCodeServiceFailure    ErrCode = "ServiceFailure"
	ErrCodeAPIBadRequest     ErrCode = "BadRequest"
	ErrCodeDependencyFailure ErrCode = "DependencyFailure"
	ErrCodeExisted           ErrCode = "Existed"
	ErrCodeOversized         ErrCode = "Oversized"
	ErrCodeSpam              ErrCode = "Spam"
	// ErrCodeParse marks a datetime string that could not be interpreted.
	ErrCodeParse ErrCode = "Parse"
	// ErrCodeMalformedPin marks stored pin data missing required fields or carrying a bad datetime.
	ErrCodeMalformedPin ErrCode = "MalformedPin"
	// ErrCodeIO marks any filesystem failure other than a missing path.
	ErrCodeIO ErrCode = "IO"
)

type Err struct {
	Code  ErrCode
	msg   string
	cause error
}

func (e *Err) Error() string {
	return e.msg
}

// Trace returns the chain of messages associated with the error, one cause per line
func (e *Err) Trace() string {
	b := &strings.Builder{}
	b.WriteString(e.msg)
	indent := "\n\t"
	err := errors.Unwrap(e)
	for err != nil {
		b.WriteString(indent)
		b.WriteString("Caused by: ")
		b.WriteString(err.Error())
		indent += "\t"
		err = errors.Unwrap(err)
	}
	return b.String()
}

func (e *Err) Unwrap() error {
	return e.cause
}

// WithCause attaches the underlying error. Callers can still match the cause with errors.Is / errors.As,
// e.g. errors.Is(err, fs.ErrNotExist) on a NotFound error raised by a store
func (e *Err) WithCause(c error) *Err {
	e.cause = c
	return e
}

func (e *Err) WithMsg(m string) *Err {
	e.msg = m
	return e
}

// prefer NewX(msg).WithCause(cause) over a two-argument constructor since the former is explicit about
// which argument is the cause
func NewServiceFailure(m string) *Err {
	return &Err{Code: ErrCodeServiceFailure, msg: m}
}

func NewDependencyFailure(m string) *Err {
	return &Err{Code: ErrCodeDependencyFailure, msg: m}
}

func NewNotFound(m string) *Err {
	return &Err{Code: ErrCodeNotFound, msg: m}
}

func NewBadInput(m string) *Err {
	return &Err{Code: ErrCodeAPIBadRequest, msg: m}
}

func NewNotImplemented() *Err {
	return &Err{Code: ErrCodeNotImplemented, msg: "Not implemented"}
}

func NewExisted(m string) *Err {
	return &Err{Code: ErrCodeExisted, msg: m}
}

func NewOversized() *Err {
	return &Err{Code: ErrCodeOversized, msg: "data oversized"}
}

func NewSpam() *Err {
	return &Err{Code: ErrCodeSpam, msg: "spam detected"}
}

func NewParse(m string) *Err {
	return &Err{Code: ErrCodeParse, msg: m}
}

func NewMalformedPin(m string) *Err {
	return &Err{Code: ErrCodeMalformedPin, msg: m}
}

func NewIO(m string) *Err {
	return &Err{Code: ErrCodeIO, msg: m}
}

// HasCode reports whether any *Err in err's chain carries the given code
func HasCode(err error, code ErrCode) bool {
	var e *Err
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.cause
	}
	return false
}

// StatusCode returns the http response status code associated with the Err value
func (e *Err) StatusCode() int {
	switch e.Code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeAPIBadRequest, ErrCodeParse:
		return http.StatusBadRequest
	case ErrCodeExisted:
		return http.StatusConflict
	case ErrCodeOversized:
		return http.StatusRequestEntityTooLarge
	case ErrCodeSpam:
		return http.StatusForbidden
	case ErrCodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
