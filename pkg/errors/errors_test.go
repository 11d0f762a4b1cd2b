package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{404, ErrorTypeNotFound},
		{429, ErrorTypeRateLimit},
		{500, ErrorTypeServerError},
		{503, ErrorTypeServerError},
		{418, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.code), func(t *testing.T) {
			err := FromStatus(tt.code, "https://example.com/a.png")
			assert.Equal(t, tt.want, err.Type)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := FromStatus(502, "https://example.com")
	err := Wrap(ErrorTypePageFetch, cause, "fetch page")

	assert.True(t, IsType(err, ErrorTypePageFetch))
	assert.Equal(t, 502, err.Code)
	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "fetch page")
}

func TestIsTypeOnPlainError(t *testing.T) {
	assert.False(t, IsType(stderrors.New("boom"), ErrorTypeNetwork))
	assert.True(t, IsType(fmt.Errorf("outer: %w", New(ErrorTypeInvalidInput, 0, "bad url")), ErrorTypeInvalidInput))
}

func TestIsRetryableStatusCode(t *testing.T) {
	for _, code := range []int{0, 429, 500, 502, 503, 504} {
		assert.True(t, IsRetryableStatusCode(code), "code %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 501} {
		assert.False(t, IsRetryableStatusCode(code), "code %d", code)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrorTypeNetwork))
	assert.True(t, IsRetryable(ErrorTypeRateLimit))
	assert.True(t, IsRetryable(ErrorTypeServerError))
	assert.False(t, IsRetryable(ErrorTypePageFetch))
	assert.False(t, IsRetryable(ErrorTypeInvalidInput))
	assert.False(t, IsRetryable(ErrorTypeNotFound))
}
