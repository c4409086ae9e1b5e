package cdp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCritical(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"session closed sentinel", fmt.Errorf("DOM.getDocument: %w", ErrSessionClosed), true},
		{"page crashed", errors.New("Page crashed!"), true},
		{"target closed", errors.New("Protocol error (Runtime.evaluate): Target closed."), true},
		{"playwright closed", errors.New("playwright DOM.describeNode: Target page, context or browser has been closed"), true},
		{"browser closed", errors.New("Browser has been closed"), true},
		{"protocol error", &ProtocolError{Method: "DOM.resolveNode", Code: -32000, Message: "No node with given id found"}, false},
		{"timeout", context.DeadlineExceeded, false},
		{"plain", errors.New("element not visible"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCritical(tt.err))
		})
	}
}

func TestProtocolErrorMessage(t *testing.T) {
	var err error = &ProtocolError{Method: "DOM.focus", Code: -32000, Message: "Element is not focusable"}
	assert.EqualError(t, err, "Protocol error (DOM.focus): Element is not focusable (-32000)")

	var pe *ProtocolError
	assert.True(t, errors.As(fmt.Errorf("focus: %w", err), &pe))
	assert.Equal(t, -32000, pe.Code)
}
