package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"network", errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), KindNetwork},
		{"missing node", errors.New("could not find node with given id"), KindElementNotFound},
		{"bad selector", errors.New("'##q' is not a valid selector"), KindInvalidSelector},
		{"navigation", errors.New("navigation interrupted"), KindNavigation},
		{"js", errors.New("encountered exception 'Uncaught TypeError'"), KindJavaScript},
		{"other", errors.New("websocket closed"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dErr *Error
			err := mapError("click", "#go", tt.err)
			assert.True(t, errors.As(err, &dErr))
			assert.Equal(t, tt.want, dErr.Kind)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMapError_KeepsCancellation(t *testing.T) {
	err := mapError("click", "#go", fmt.Errorf("run: %w", context.Canceled))
	assert.ErrorIs(t, err, context.Canceled)

	var dErr *Error
	assert.False(t, errors.As(err, &dErr))
}

func TestError_Message(t *testing.T) {
	err := NewError("click", "#submit", KindElementNotFound, errors.New("no match"))
	assert.Equal(t, "click #submit: element not found: no match", err.Error())
	assert.False(t, err.Timeout())

	timeout := NewError("wait", "#q", KindTimeout, context.DeadlineExceeded)
	assert.True(t, IsTimeout(timeout))
	assert.True(t, IsTimeout(fmt.Errorf("wrapped: %w", timeout)))
	assert.False(t, IsTimeout(err))
}

func TestParseWaitCondition(t *testing.T) {
	assert.Equal(t, WaitVisible, ParseWaitCondition(""))
	assert.Equal(t, WaitVisible, ParseWaitCondition("bogus"))
	assert.Equal(t, WaitHidden, ParseWaitCondition("hidden"))
	assert.Equal(t, WaitDetached, ParseWaitCondition("detached"))
}

func TestKeyCode(t *testing.T) {
	assert.Equal(t, kb.Enter, keyCode("Enter"))
	assert.Equal(t, kb.Escape, keyCode("esc"))
	assert.Equal(t, "a", keyCode("a"))
}
