package cdp

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionClosed is returned for any command sent after the underlying
// session went away.
var ErrSessionClosed = errors.New("cdp: session closed")

// ProtocolError is a per-call error reported by the browser.
type ProtocolError struct {
	Method  string
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("Protocol error (%s): %s (%d)", e.Method, e.Message, e.Code)
}

// criticalSignatures mark errors after which the page or session is gone.
var criticalSignatures = []string{
	"page crashed",
	"target closed",
	"session closed",
	"target page, context or browser has been closed",
	"browser has been closed",
}

// IsCritical reports whether err means the page itself is unusable, as
// opposed to a failure of one command.
func IsCritical(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range criticalSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
