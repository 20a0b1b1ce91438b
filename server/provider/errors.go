package provider

import (
	"errors"
	"net/http"
	"strconv"
)

// ErrTimeout is wrapped by Error when the call did not complete before the context deadline.
var ErrTimeout = errors.New("provider timeout")

// Error is a failed call to the video platform.
type Error struct {
	// Platform which failed the call.
	Provider Kind
	// Operation, like "startArchive".
	Op string
	// HTTP status returned by the platform, 0 if no response was received.
	Status int
	// Message returned by the platform.
	Message string
	// Underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	msg := string(e.Provider) + " " + e.Op + ": "
	switch {
	case e.Status != 0 && e.Message != "":
		msg += strconv.Itoa(e.Status) + " " + e.Message
	case e.Status != 0:
		msg += strconv.Itoa(e.Status) + " " + http.StatusText(e.Status)
	case e.Err != nil:
		msg += e.Err.Error()
	default:
		msg += "failed"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports if the platform does not know the session or the archive.
func (e *Error) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// IsNotFound reports if err is an Error with NotFound status.
func IsNotFound(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.NotFound()
}
