package errors

import (
	"io/fs"
	"net/http"
	"os"
	"testing"

	stderrors "errors"

	"github.com/stretchr/testify/assert"
)

func TestErrorsTrace(t *testing.T) {
	tcs := []struct {
		name     string
		err      *Err
		expected string
	}{
		{
			name:     "ErrWithoutCause",
			err:      NewNotImplemented(),
			expected: "Not implemented",
		},
		{
			name: "ErrWithCauses",
			err: &Err{
				msg: "foo",
				cause: &Err{
					msg:   "bar",
					cause: &Err{msg: "qux"},
				},
			},
			expected: "foo\n\tCaused by: bar\n\t\tCaused by: qux",
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			actual := c.err.Trace()
			assert.Equal(t, c.expected, actual, "unexpected error trace")
		})
	}
}

func TestErrorsStatusCode(t *testing.T) {
	tcs := []struct {
		err          *Err
		expectedCode int
	}{
		{
			err:          NewServiceFailure("fake"),
			expectedCode: http.StatusInternalServerError,
		},
		{
			err:          NewNotFound("fake"),
			expectedCode: http.StatusNotFound,
		},
		{
			err:          NewBadInput("fake"),
			expectedCode: http.StatusBadRequest,
		},
		{
			err:          NewParse("fake"),
			expectedCode: http.StatusBadRequest,
		},
		{
			err:          NewOversized(),
			expectedCode: http.StatusRequestEntityTooLarge,
		},
		{
			err:          NewMalformedPin("fake"),
			expectedCode: http.StatusInternalServerError,
		},
		{
			err:          NewIO("fake"),
			expectedCode: http.StatusInternalServerError,
		},
	}
	for _, c := range tcs {
		code := c.err.StatusCode()
		assert.Equal(t, c.expectedCode, code, "unexpected status code")
	}
}

func TestErrorsCausePreserved(t *testing.T) {
	_, oserr := os.Stat("/definitely/not/here")
	err := NewNotFound("pin not found").WithCause(oserr)

	assert.True(t, stderrors.Is(err, fs.ErrNotExist), "OS not-found signal should be reachable")
	var perr *fs.PathError
	assert.True(t, stderrors.As(err, &perr))
	assert.Equal(t, "/definitely/not/here", perr.Path)
}

func TestErrorsHasCode(t *testing.T) {
	tcs := []struct {
		name     string
		err      error
		code     ErrCode
		expected bool
	}{
		{
			name:     "DirectMatch",
			err:      NewParse("bad"),
			code:     ErrCodeParse,
			expected: true,
		},
		{
			name:     "NestedMatch",
			err:      NewMalformedPin("bad pin").WithCause(NewParse("bad datetime")),
			code:     ErrCodeParse,
			expected: true,
		},
		{
			name:     "NoMatch",
			err:      NewIO("disk full"),
			code:     ErrCodeNotFound,
			expected: false,
		},
		{
			name:     "ForeignError",
			err:      fs.ErrNotExist,
			code:     ErrCodeNotFound,
			expected: false,
		},
		{
			name:     "Nil",
			code:     ErrCodeNotFound,
			expected: false,
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, HasCode(c.err, c.code))
		})
	}
}
