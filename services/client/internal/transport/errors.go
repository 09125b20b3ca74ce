package transport

import (
	"errors"
	"strconv"
	"strings"
)

// Error kinds. Every error returned by the Client matches exactly one of
// these with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrAuth       = errors.New("authentication required")
	ErrNetwork    = errors.New("network error")
	ErrServer     = errors.New("server error")
	ErrProtocol   = errors.New("protocol error")
)

// Error describes a failed backend call.
type Error struct {
	Op        string
	Kind      error
	Status    int
	Message   string
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		b.WriteString(" (status ")
		b.WriteString(strconv.Itoa(e.Status))
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UserMessage returns text suitable for showing to the user who triggered
// the failed operation.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		if te.Message != "" {
			return te.Message
		}
		switch {
		case errors.Is(te.Kind, ErrAuth):
			return "Please log in again"
		case errors.Is(te.Kind, ErrNetwork):
			return "Network unavailable, try again"
		}
		return "Something went wrong, try again"
	}
	return err.Error()
}
