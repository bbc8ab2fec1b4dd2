package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcileErrorIs(t *testing.T) {
	err := WrapConflict("verify", "a@x.com", fmt.Errorf("claimed elsewhere"))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "a@x.com")
}

func TestWrapTransientIsRetryable(t *testing.T) {
	err := WrapTransient("find_rows", "a@x.com", fmt.Errorf("timeout"))
	assert.True(t, IsRetryableError(err))
	assert.True(t, errors.Is(err, ErrTransient))

	conflict := WrapConflict("verify", "", fmt.Errorf("claimed"))
	assert.False(t, IsRetryableError(conflict))
}

func TestWithStatusCode(t *testing.T) {
	base := New(ErrorTypePermission, "grant_role", "a@x.com", fmt.Errorf("forbidden"))
	assert.False(t, base.Retryable)

	rateLimited := New(ErrorTypePermission, "grant_role", "", fmt.Errorf("slow down")).WithStatusCode(429)
	assert.True(t, rateLimited.Retryable)

	serverErr := New(ErrorTypeTransient, "read", "", fmt.Errorf("boom")).WithStatusCode(503)
	assert.True(t, serverErr.Retryable)

	clientErr := New(ErrorTypeTransient, "read", "", fmt.Errorf("bad")).WithStatusCode(404)
	assert.False(t, clientErr.Retryable)
}

func TestIsPermissionError(t *testing.T) {
	assert.True(t, IsPermissionError(WrapPermission("grant_role", "", fmt.Errorf("forbidden"))))
	assert.True(t, IsPermissionError(New(ErrorTypeTransient, "x", "", fmt.Errorf("denied")).WithStatusCode(403)))
	assert.False(t, IsPermissionError(WrapTransient("read", "", fmt.Errorf("timeout"))))
	assert.False(t, IsPermissionError(nil))
}

func TestUnwrap(t *testing.T) {
	inner := fmt.Errorf("root cause")
	err := WrapTransient("read", "", inner)
	assert.True(t, errors.Is(err, inner))
}
